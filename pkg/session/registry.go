package session

import (
	"context"
	"fmt"

	"github.com/tphan267/roomlink/pkg/logger"
	"github.com/tphan267/roomlink/pkg/signaling"
)

// Subscribable is the part of the channel components attach to
type Subscribable interface {
	Subscribe(fn signaling.Subscriber) func()
}

// Component is a unit wired to the room channel for the session lifetime
type Component interface {
	// Name returns unique component identifier (constant)
	Name() string

	// Attach hooks the component to the channel
	Attach(ctx context.Context, registry *Registry) error

	// Detach undoes Attach and releases what the component owns
	Detach(ctx context.Context) error
}

// Registry attaches components in registration order and detaches them in reverse
type Registry struct {
	components []Component
	byName     map[string]Component
	attached   []Component
	channel    Subscribable
	logger     *logger.Logger
}

// NewRegistry creates an empty registry bound to channel
func NewRegistry(channel Subscribable, log *logger.Logger) *Registry {
	if log == nil {
		log = logger.Discard()
	}
	return &Registry{
		byName:  make(map[string]Component),
		channel: channel,
		logger:  log,
	}
}

// Channel returns the channel components subscribe to
func (r *Registry) Channel() Subscribable {
	return r.channel
}

// Logger returns the logger
func (r *Registry) Logger() *logger.Logger {
	return r.logger
}

// Register adds a component (before AttachAll)
func (r *Registry) Register(c Component) error {
	name := c.Name()
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("component %s already registered", name)
	}
	r.byName[name] = c
	r.components = append(r.components, c)
	return nil
}

// MustRegister registers a component and panics on error (wiring time only)
func (r *Registry) MustRegister(c Component) {
	if err := r.Register(c); err != nil {
		panic(fmt.Sprintf("Failed to register component %s: %v", c.Name(), err))
	}
}

// Get retrieves a component by name
func (r *Registry) Get(name string) (Component, error) {
	c, exists := r.byName[name]
	if !exists {
		return nil, fmt.Errorf("component %s not found", name)
	}
	return c, nil
}

// AttachAll attaches every component. On failure the ones already attached
// are detached again.
func (r *Registry) AttachAll(ctx context.Context) error {
	for _, c := range r.components {
		r.logger.Debug("[Session] Attaching component: %s", c.Name())
		if err := c.Attach(ctx, r); err != nil {
			r.DetachAll(ctx)
			return fmt.Errorf("failed to attach component %s: %w", c.Name(), err)
		}
		r.attached = append(r.attached, c)
	}
	r.logger.Debug("[Session] All %d components attached", len(r.attached))
	return nil
}

// DetachAll detaches attached components in reverse order. Errors are logged.
func (r *Registry) DetachAll(ctx context.Context) {
	for i := len(r.attached) - 1; i >= 0; i-- {
		c := r.attached[i]
		r.logger.Debug("[Session] Detaching component: %s", c.Name())
		if err := c.Detach(ctx); err != nil {
			r.logger.Error("[Session] Error detaching component %s: %v", c.Name(), err)
		}
	}
	r.attached = nil
}

// subscriber is a Component that feeds one handler from the channel
type subscriber struct {
	name    string
	handle  signaling.Subscriber
	release func()
	unsub   func()
}

func newSubscriber(name string, handle signaling.Subscriber, release func()) *subscriber {
	return &subscriber{name: name, handle: handle, release: release}
}

func (s *subscriber) Name() string { return s.name }

func (s *subscriber) Attach(_ context.Context, r *Registry) error {
	if r.Channel() == nil {
		return fmt.Errorf("no channel")
	}
	s.unsub = r.Channel().Subscribe(s.handle)
	return nil
}

func (s *subscriber) Detach(_ context.Context) error {
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
	if s.release != nil {
		s.release()
	}
	return nil
}
