package storage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/tphan267/roomlink/pkg/logger"
	"github.com/tphan267/roomlink/pkg/models"
	"github.com/tphan267/roomlink/pkg/storage/repositories"
)

func setupTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"), logger.Discard())
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCanvasSnapshotRoundTrip(t *testing.T) {
	store := setupTestStorage(t)
	repo := store.Canvas()

	strokes := []models.Stroke{
		{From: models.Point{X: 0, Y: 0}, To: models.Point{X: 10, Y: 10}, Color: "#000", Size: 2, Author: "alice"},
		{From: models.Point{X: 5, Y: 5}, To: models.Point{X: 6, Y: 9.5}, Color: "#ff0000", Size: 4, Author: "bob"},
	}
	if err := repo.SaveSnapshot("room-1", strokes); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	got, err := repo.LoadSnapshot("room-1")
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if len(got) != 2 || got[0] != strokes[0] || got[1] != strokes[1] {
		t.Errorf("Expected strokes back unchanged, got %+v", got)
	}

	var snapshot models.CanvasSnapshot
	if err := store.DB().First(&snapshot, "room_id = ?", "room-1").Error; err != nil {
		t.Fatalf("Failed to read snapshot row: %v", err)
	}
	if snapshot.StrokeCount != 2 {
		t.Errorf("Expected stroke count 2, got %d", snapshot.StrokeCount)
	}
}

func TestCanvasSnapshotOverwrites(t *testing.T) {
	store := setupTestStorage(t)
	repo := store.Canvas()

	first := []models.Stroke{{Color: "#000", Size: 1}}
	second := []models.Stroke{{Color: "#111", Size: 1}, {Color: "#222", Size: 1}}

	if err := repo.SaveSnapshot("room-1", first); err != nil {
		t.Fatalf("First save failed: %v", err)
	}
	if err := repo.SaveSnapshot("room-1", second); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}

	got, err := repo.LoadSnapshot("room-1")
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if len(got) != 2 || got[0].Color != "#111" {
		t.Errorf("Expected the second snapshot, got %+v", got)
	}
}

func TestCanvasSnapshotMissing(t *testing.T) {
	store := setupTestStorage(t)

	if _, err := store.Canvas().LoadSnapshot("nope"); !errors.Is(err, repositories.ErrSnapshotNotFound) {
		t.Errorf("Expected ErrSnapshotNotFound, got %v", err)
	}
	if err := store.Canvas().SaveSnapshot("", nil); err == nil {
		t.Error("Expected error for empty room id")
	}

	if err := store.Canvas().SaveSnapshot("room-1", nil); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	got, err := store.Canvas().LoadSnapshot("room-1")
	if err != nil {
		t.Fatalf("Expected an empty snapshot, got %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected no strokes, got %+v", got)
	}
}

func TestChatHistory(t *testing.T) {
	store := setupTestStorage(t)
	repo := store.Chat()

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, text := range []string{"one", "two", "three"} {
		err := repo.AddMessage(&models.ChatRecord{
			RoomID:    "room-1",
			Username:  "alice",
			Text:      text,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("AddMessage failed: %v", err)
		}
	}
	if err := repo.AddMessage(&models.ChatRecord{RoomID: "room-2", Username: "bob", Text: "other"}); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}

	all, err := repo.ListMessages("room-1", 0)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(all) != 3 || all[0].Text != "one" || all[2].Text != "three" {
		t.Errorf("Expected 3 messages oldest first, got %+v", all)
	}
	if all[0].ID == "" {
		t.Error("Expected a generated ID")
	}

	last, err := repo.ListMessages("room-1", 2)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(last) != 2 || last[0].Text != "two" || last[1].Text != "three" {
		t.Errorf("Expected the newest 2 messages, got %+v", last)
	}

	other, err := repo.ListMessages("room-2", 0)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(other) != 1 || other[0].Text != "other" {
		t.Errorf("Expected rooms to stay separate, got %+v", other)
	}
}

func TestInMemoryDatabase(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:", nil)
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	if store.DB() == nil {
		t.Error("Expected a database handle")
	}
	if err := store.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}
