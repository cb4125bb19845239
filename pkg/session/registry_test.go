package session

import (
	"context"
	"errors"
	"testing"

	"github.com/tphan267/roomlink/pkg/logger"
	"github.com/tphan267/roomlink/pkg/signaling"
)

type fakeChannel struct {
	subs   int
	unsubs int
}

func (f *fakeChannel) Subscribe(fn signaling.Subscriber) func() {
	f.subs++
	return func() { f.unsubs++ }
}

type orderedComponent struct {
	name      string
	events    *[]string
	attachErr error
}

func (c *orderedComponent) Name() string { return c.name }

func (c *orderedComponent) Attach(ctx context.Context, r *Registry) error {
	if c.attachErr != nil {
		return c.attachErr
	}
	*c.events = append(*c.events, "attach:"+c.name)
	return nil
}

func (c *orderedComponent) Detach(ctx context.Context) error {
	*c.events = append(*c.events, "detach:"+c.name)
	return nil
}

func TestRegistryOrder(t *testing.T) {
	var events []string
	r := NewRegistry(&fakeChannel{}, logger.Discard())
	r.MustRegister(&orderedComponent{name: "a", events: &events})
	r.MustRegister(&orderedComponent{name: "b", events: &events})
	r.MustRegister(&orderedComponent{name: "c", events: &events})

	if err := r.AttachAll(context.Background()); err != nil {
		t.Fatalf("AttachAll failed: %v", err)
	}
	r.DetachAll(context.Background())
	r.DetachAll(context.Background())

	want := []string{"attach:a", "attach:b", "attach:c", "detach:c", "detach:b", "detach:a"}
	if len(events) != len(want) {
		t.Fatalf("Expected %v, got %v", want, events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("Event %d = %s, want %s", i, events[i], want[i])
		}
	}
}

func TestRegistryDuplicateName(t *testing.T) {
	var events []string
	r := NewRegistry(nil, nil)
	if err := r.Register(&orderedComponent{name: "a", events: &events}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(&orderedComponent{name: "a", events: &events}); err == nil {
		t.Error("Expected duplicate registration to fail")
	}
	if _, err := r.Get("a"); err != nil {
		t.Errorf("Get failed: %v", err)
	}
	if _, err := r.Get("missing"); err == nil {
		t.Error("Expected error for unknown component")
	}
}

func TestRegistryAttachFailureRollsBack(t *testing.T) {
	var events []string
	boom := errors.New("boom")
	r := NewRegistry(&fakeChannel{}, logger.Discard())
	r.MustRegister(&orderedComponent{name: "a", events: &events})
	r.MustRegister(&orderedComponent{name: "b", events: &events, attachErr: boom})

	if err := r.AttachAll(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Expected attach error, got %v", err)
	}
	if len(events) != 2 || events[1] != "detach:a" {
		t.Errorf("Expected a to be detached again, got %v", events)
	}
}

func TestSubscriberComponent(t *testing.T) {
	ch := &fakeChannel{}
	released := 0
	r := NewRegistry(ch, logger.Discard())
	r.MustRegister(newSubscriber("mesh", func(signaling.Message) {}, func() { released++ }))

	if err := r.AttachAll(context.Background()); err != nil {
		t.Fatalf("AttachAll failed: %v", err)
	}
	if ch.subs != 1 {
		t.Errorf("Expected one subscription, got %d", ch.subs)
	}

	r.DetachAll(context.Background())
	if ch.unsubs != 1 || released != 1 {
		t.Errorf("Expected unsubscribe and release, got unsubs=%d released=%d", ch.unsubs, released)
	}

	noChannel := NewRegistry(nil, logger.Discard())
	noChannel.MustRegister(newSubscriber("chat", func(signaling.Message) {}, nil))
	if err := noChannel.AttachAll(context.Background()); err == nil {
		t.Error("Expected attach to fail without a channel")
	}
}
