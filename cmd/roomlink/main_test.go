package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestJoinRequiresRoom(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"join"})
	root.SetOut(&bytes.Buffer{})

	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "--room") {
		t.Errorf("Expected missing room error, got %v", err)
	}
}

func TestJoinFlags(t *testing.T) {
	cmd := newJoinCmd()
	for _, name := range []string{"room", "user", "config", "loglevel", "listen"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("Expected --%s flag", name)
		}
	}
}

func TestRunJoinWithoutIdentity(t *testing.T) {
	t.Setenv("ROOMLINK_USERNAME", "")
	t.Setenv("ROOMLINK_TOKEN", "")
	dir := t.TempDir()

	err := runJoin(context.Background(), joinFlags{
		room:   "42",
		config: filepath.Join(dir, "roomlink.yaml"),
	})
	if err == nil || !strings.Contains(err.Error(), "username") {
		t.Errorf("Expected identity error, got %v", err)
	}
}

func TestRunJoinStopsOnCancel(t *testing.T) {
	t.Setenv("ROOMLINK_SIGNALING_URL", "ws://127.0.0.1:1/ws")
	t.Setenv("ROOMLINK_API_BASE", "http://127.0.0.1:1/api")
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runJoin(ctx, joinFlags{
			room:   "42",
			user:   "alice",
			config: filepath.Join(dir, "roomlink.yaml"),
			listen: "127.0.0.1:0",
		})
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean exit, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("runJoin did not return after cancel")
	}
}
