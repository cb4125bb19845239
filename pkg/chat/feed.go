package chat

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tphan267/roomlink/pkg/logger"
	"github.com/tphan267/roomlink/pkg/signaling"
)

// ErrEmptyMessage is returned by Send for blank text
var ErrEmptyMessage = errors.New("chat message is empty")

// Publisher sends messages to the room
type Publisher interface {
	Publish(msg signaling.Message) error
}

// Store persists chat history. Failures are logged only.
type Store interface {
	SaveMessage(roomID string, msg Message) error
}

// Message is one chat line as seen by the local participant
type Message struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	Text     string    `json:"text"`
	Local    bool      `json:"local"`
	At       time.Time `json:"at"`
}

// Feed relays room chat and keeps the in-memory history
type Feed struct {
	roomID    string
	identity  string
	publisher Publisher
	store     Store
	logger    *logger.Logger

	mu      sync.RWMutex
	history []Message

	cbMu      sync.RWMutex
	onMessage []func(Message)
}

// NewFeed creates a feed for roomID. store may be nil.
func NewFeed(roomID, identity string, publisher Publisher, store Store, log *logger.Logger) *Feed {
	if log == nil {
		log = logger.Discard()
	}
	return &Feed{
		roomID:    roomID,
		identity:  identity,
		publisher: publisher,
		store:     store,
		logger:    log,
	}
}

// OnMessage registers a callback for every new chat line
func (f *Feed) OnMessage(fn func(Message)) {
	f.cbMu.Lock()
	defer f.cbMu.Unlock()
	f.onMessage = append(f.onMessage, fn)
}

// Send publishes text to the room. The server echoes it back, so the local
// history is only updated from HandleMessage.
func (f *Feed) Send(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	return f.publisher.Publish(&signaling.Chat{Username: f.identity, Text: text})
}

// HandleMessage is the channel subscriber
func (f *Feed) HandleMessage(msg signaling.Message) {
	chat, ok := msg.(*signaling.Chat)
	if !ok {
		return
	}

	m := Message{
		ID:       uuid.NewString(),
		Username: chat.Username,
		Text:     chat.Text,
		Local:    chat.Username == f.identity,
		At:       time.Now(),
	}

	f.mu.Lock()
	f.history = append(f.history, m)
	f.mu.Unlock()

	if f.store != nil {
		if err := f.store.SaveMessage(f.roomID, m); err != nil {
			f.logger.Warn("[Chat] Failed to store message %s: %v", m.ID, err)
		}
	}

	f.cbMu.RLock()
	fns := append([]func(Message){}, f.onMessage...)
	f.cbMu.RUnlock()
	for _, fn := range fns {
		fn(m)
	}
}

// Restore seeds the history, e.g. from the local cache on start
func (f *Feed) Restore(messages []Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append(append([]Message{}, messages...), f.history...)
}

// History returns a copy of every chat line seen so far
func (f *Feed) History() []Message {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]Message{}, f.history...)
}
