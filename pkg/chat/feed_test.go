package chat

import (
	"errors"
	"testing"

	"github.com/tphan267/roomlink/pkg/logger"
	"github.com/tphan267/roomlink/pkg/signaling"
)

type recorder struct {
	msgs []signaling.Message
	err  error
}

func (r *recorder) Publish(msg signaling.Message) error {
	r.msgs = append(r.msgs, msg)
	return r.err
}

type memStore struct {
	saved []Message
	err   error
}

func (s *memStore) SaveMessage(roomID string, msg Message) error {
	s.saved = append(s.saved, msg)
	return s.err
}

func setupTestFeed(t *testing.T, store Store) (*Feed, *recorder) {
	t.Helper()
	rec := &recorder{}
	return NewFeed("room-1", "alice", rec, store, logger.Discard()), rec
}

func TestSendTrimsAndPublishes(t *testing.T) {
	feed, rec := setupTestFeed(t, nil)

	if err := feed.Send("  hello  "); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(rec.msgs) != 1 {
		t.Fatalf("Expected one published message, got %d", len(rec.msgs))
	}
	chat := rec.msgs[0].(*signaling.Chat)
	if chat.Username != "alice" || chat.Text != "hello" {
		t.Errorf("Unexpected chat message: %+v", chat)
	}
	if len(feed.History()) != 0 {
		t.Error("History should wait for the server echo")
	}
}

func TestSendRejectsBlankText(t *testing.T) {
	feed, rec := setupTestFeed(t, nil)

	if err := feed.Send(" \t\n"); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("Expected ErrEmptyMessage, got %v", err)
	}
	if len(rec.msgs) != 0 {
		t.Error("Blank text must not be published")
	}
}

func TestSendReturnsPublishError(t *testing.T) {
	feed, rec := setupTestFeed(t, nil)
	rec.err = signaling.ErrNotOpen

	if err := feed.Send("hi"); !errors.Is(err, signaling.ErrNotOpen) {
		t.Errorf("Expected ErrNotOpen, got %v", err)
	}
}

func TestHandleMessageRecordsAndNotifies(t *testing.T) {
	store := &memStore{}
	feed, _ := setupTestFeed(t, store)

	var got []Message
	feed.OnMessage(func(m Message) { got = append(got, m) })

	feed.HandleMessage(&signaling.Chat{Username: "bob", Text: "hi"})
	feed.HandleMessage(&signaling.Chat{Username: "alice", Text: "hey"})
	feed.HandleMessage(&signaling.Join{Username: "carol"})

	history := feed.History()
	if len(history) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(history))
	}
	if history[0].Local || !history[1].Local {
		t.Errorf("Expected only alice's line to be local, got %+v", history)
	}
	if history[0].ID == "" || history[0].ID == history[1].ID {
		t.Error("Expected unique message IDs")
	}
	if len(got) != 2 {
		t.Errorf("Expected 2 notifications, got %d", len(got))
	}
	if len(store.saved) != 2 {
		t.Errorf("Expected 2 stored messages, got %d", len(store.saved))
	}
}

func TestStoreFailureIsNotFatal(t *testing.T) {
	store := &memStore{err: errors.New("disk full")}
	feed, _ := setupTestFeed(t, store)

	feed.HandleMessage(&signaling.Chat{Username: "bob", Text: "hi"})

	if len(feed.History()) != 1 {
		t.Error("Expected the message in history despite store failure")
	}
}

func TestRestorePrependsHistory(t *testing.T) {
	feed, _ := setupTestFeed(t, nil)
	feed.HandleMessage(&signaling.Chat{Username: "bob", Text: "new"})

	feed.Restore([]Message{{ID: "1", Username: "carol", Text: "old"}})

	history := feed.History()
	if len(history) != 2 || history[0].Text != "old" || history[1].Text != "new" {
		t.Errorf("Unexpected history order: %+v", history)
	}

	history[0].Text = "changed"
	if feed.History()[0].Text != "old" {
		t.Error("History must return a copy")
	}
}
