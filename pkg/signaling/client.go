package signaling

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tphan267/roomlink/pkg/logger"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second
	// Send pings with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum inbound frame size
	maxMessageSize = 64 * 1024

	handshakeTimeout = 10 * time.Second
)

// ErrNotOpen is returned by Publish while the channel is not open.
// The message is dropped, never queued.
var ErrNotOpen = errors.New("signaling channel is not open")

var errNormalClosure = errors.New("closed by server with normal closure")

// Subscriber receives every decoded inbound message
type Subscriber func(Message)

// StateChange describes one connection state transition
type StateChange struct {
	State     State
	Attempt   int           // consecutive failures so far
	Delay     time.Duration // wait before the next retry, zero unless retrying
	Exhausted bool          // retries used up; an explicit Connect is needed
	Err       error         // failure that caused the transition, if any
}

type subscription struct {
	id uint64
	fn Subscriber
}

// Channel owns one websocket connection per room and reconnects it with
// bounded exponential backoff. All subscribers are called on the connection
// goroutine in transport order.
type Channel struct {
	baseURL string
	opts    Options
	logger  *logger.Logger

	mu        sync.Mutex
	state     State
	attempt   int
	nextDelay time.Duration
	exhausted bool
	conn      *websocket.Conn
	cancel    context.CancelFunc
	done      chan struct{}
	roomID    string
	identity  string

	writeMu sync.Mutex

	subMu   sync.RWMutex
	subs    []subscription
	nextSub uint64

	stateMu  sync.RWMutex
	stateFns []func(StateChange)
}

// NewChannel creates a channel for rooms under baseURL (e.g. ws://host/ws)
func NewChannel(baseURL string, opts Options, log *logger.Logger) *Channel {
	if log == nil {
		log = logger.Discard()
	}
	return &Channel{
		baseURL: baseURL,
		opts:    opts.withDefaults(),
		logger:  log,
		state:   StateClosed,
	}
}

// RoomURL returns the room-scoped endpoint: <base>/room/<id>/
func RoomURL(baseURL, roomID string) (string, error) {
	base := baseURL
	if after, ok := strings.CutPrefix(base, "http://"); ok {
		base = "ws://" + after
	} else if after, ok := strings.CutPrefix(base, "https://"); ok {
		base = "wss://" + after
	}

	u, err := url.Parse(strings.TrimRight(base, "/") + "/room/" + url.PathEscape(roomID) + "/")
	if err != nil {
		return "", fmt.Errorf("invalid signaling url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("invalid signaling url scheme %q", u.Scheme)
	}
	return u.String(), nil
}

// Connect starts the connection task for roomID. It returns immediately; the
// outcome is reported through OnStateChange. Calling it while the channel is
// open or connecting is a no-op.
func (c *Channel) Connect(ctx context.Context, roomID, identity string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}
	if identity == "" {
		return fmt.Errorf("identity is required")
	}

	wsURL, err := RoomURL(c.baseURL, roomID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.state == StateOpen || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	done := c.done
	c.mu.Unlock()

	// Previous task may still be unwinding after exhaustion
	if done != nil {
		<-done
	}

	c.mu.Lock()
	if c.state == StateOpen || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	taskCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.roomID = roomID
	c.identity = identity
	c.attempt = 0
	c.nextDelay = 0
	c.exhausted = false
	c.state = StateConnecting
	done = c.done
	c.mu.Unlock()

	c.notifyState(StateChange{State: StateConnecting})
	go c.run(taskCtx, wsURL, identity, done)
	return nil
}

// run is the connection task. A terminal state change is delivered after done
// is closed, so observers may call Connect again from inside the callback.
func (c *Channel) run(ctx context.Context, wsURL, identity string, done chan struct{}) {
	final := c.loop(ctx, wsURL, identity)
	close(done)
	if final != nil {
		c.notifyState(*final)
	}
}

// loop dials, serves and backs off until the task ends. It returns the
// terminal state change to report, if any.
func (c *Channel) loop(ctx context.Context, wsURL, identity string) *StateChange {
	for {
		err := c.serve(ctx, wsURL, identity)
		if ctx.Err() != nil {
			return nil
		}

		if errors.Is(err, errNormalClosure) {
			c.logger.Info("[Signaling] Server closed the connection normally")
			c.mu.Lock()
			c.state = StateClosed
			c.mu.Unlock()
			return &StateChange{State: StateClosed, Err: err}
		}

		c.mu.Lock()
		c.attempt++
		attempt := c.attempt
		c.mu.Unlock()

		if attempt > c.opts.MaxRetries {
			c.logger.Error("[Signaling] Giving up after %d consecutive failures: %v", attempt, err)
			c.mu.Lock()
			c.exhausted = true
			c.nextDelay = 0
			c.state = StateClosed
			c.mu.Unlock()
			return &StateChange{State: StateClosed, Attempt: attempt, Exhausted: true, Err: err}
		}

		delay := Backoff(attempt, c.opts.BaseDelay, c.opts.MaxDelay)
		c.logger.Warn("[Signaling] Connection failed: %v (retry %d/%d in %v)", err, attempt, c.opts.MaxRetries, delay)

		c.mu.Lock()
		c.nextDelay = delay
		c.mu.Unlock()
		c.setState(StateChange{State: StateConnecting, Attempt: attempt, Delay: delay, Err: err})

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// serve performs one dial and reads until the connection ends
func (c *Channel) serve(ctx context.Context, wsURL, identity string) error {
	c.logger.Info("[Signaling] Connecting to %s", wsURL)

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.opts.HandshakeTimeout,
	}

	headers := http.Header{}
	if c.opts.Token != "" {
		headers.Set("Authorization", "Bearer "+c.opts.Token)
	}

	conn, _, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return fmt.Errorf("failed to connect to signaling server: %w", err)
	}

	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		conn.Close()
		return ctx.Err()
	}
	c.conn = conn
	c.attempt = 0
	c.nextDelay = 0
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	c.logger.Info("[Signaling] Connected to %s", wsURL)

	// join goes out before observers learn the channel is open
	if err := c.Publish(&Join{Username: identity}); err != nil {
		c.logger.Warn("[Signaling] Failed to announce join: %v", err)
	}
	c.setState(StateChange{State: StateOpen})

	pingDone := make(chan struct{})
	defer close(pingDone)
	go c.keepalive(ctx, conn, pingDone)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return errNormalClosure
			}
			if ctx.Err() == nil {
				c.logger.Warn("[Signaling] Read error: %v", err)
			}
			return err
		}

		if ctx.Err() != nil {
			c.closeNormally(conn)
			return ctx.Err()
		}

		msg, err := Decode(data)
		if err != nil {
			c.logger.Warn("[Signaling] Dropping inbound frame: %v", err)
			continue
		}
		c.dispatch(msg)
	}
}

// keepalive sends periodic ping messages on conn until done is closed. When
// ctx ends first it sends a normal closure.
func (c *Channel) keepalive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			c.closeNormally(conn)
			return
		case <-ticker.C:
			c.writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Warn("[Signaling] Ping failed: %v", err)
				return
			}
		}
	}
}

// closeNormally sends a 1000 close frame; write errors are ignored
func (c *Channel) closeNormally(conn *websocket.Conn) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "leaving"),
		time.Now().Add(writeWait),
	)
}

func (c *Channel) dispatch(msg Message) {
	c.subMu.RLock()
	subs := make([]subscription, len(c.subs))
	copy(subs, c.subs)
	c.subMu.RUnlock()

	for _, s := range subs {
		c.deliver(s.fn, msg)
	}
}

func (c *Channel) deliver(fn Subscriber, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("[Signaling] Subscriber panicked on %s: %v", msg.Type(), r)
		}
	}()
	fn(msg)
}

// Publish sends msg if the channel is open. Otherwise it logs a warning and
// returns ErrNotOpen; the message is not queued.
func (c *Channel) Publish(msg Message) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		if msg != nil {
			c.logger.Warn("[Signaling] Dropping %s: channel not open", msg.Type())
		}
		return ErrNotOpen
	}

	data, err := Encode(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.logger.Warn("[Signaling] Failed to send %s: %v", msg.Type(), err)
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Subscribe registers fn for every inbound message. The returned func removes
// exactly this registration.
func (c *Channel) Subscribe(fn Subscriber) func() {
	c.subMu.Lock()
	c.nextSub++
	id := c.nextSub
	c.subs = append(c.subs, subscription{id: id, fn: fn})
	c.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subMu.Lock()
			defer c.subMu.Unlock()
			for i, s := range c.subs {
				if s.id == id {
					c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// OnStateChange registers an observer for connection state transitions
func (c *Channel) OnStateChange(fn func(StateChange)) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.stateFns = append(c.stateFns, fn)
}

// Disconnect closes with code 1000, cancels any pending retry and waits for
// the connection task to exit. No subscriber runs after it returns.
// It must not be called from inside a subscriber.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	conn := c.conn
	wasClosed := c.state == StateClosed
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if conn != nil {
		c.closeNormally(conn)
		conn.Close()
	}

	if done != nil {
		<-done
	}

	c.mu.Lock()
	c.nextDelay = 0
	c.mu.Unlock()

	if !wasClosed {
		c.setState(StateChange{State: StateClosed})
		c.logger.Info("[Signaling] Connection closed")
	}
}

// State returns the current connection state
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempt returns the number of consecutive failed attempts
func (c *Channel) Attempt() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt
}

// NextDelay returns the pending retry delay, or zero
func (c *Channel) NextDelay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextDelay
}

// Exhausted reports whether the channel gave up reconnecting
func (c *Channel) Exhausted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exhausted
}

// RoomID returns the room of the last Connect call
func (c *Channel) RoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

func (c *Channel) setState(change StateChange) {
	c.mu.Lock()
	c.state = change.State
	c.mu.Unlock()
	c.notifyState(change)
}

func (c *Channel) notifyState(change StateChange) {
	c.stateMu.RLock()
	fns := make([]func(StateChange), len(c.stateFns))
	copy(fns, c.stateFns)
	c.stateMu.RUnlock()

	for _, fn := range fns {
		fn(change)
	}
}
