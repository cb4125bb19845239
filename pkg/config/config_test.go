package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadCreatesDefaults(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := Load("test", file, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.APIBase != DefaultAPIBase {
		t.Errorf("Expected APIBase %q, got %q", DefaultAPIBase, cfg.APIBase)
	}
	if cfg.SignalingURL != DefaultSignalingURL {
		t.Errorf("Expected SignalingURL %q, got %q", DefaultSignalingURL, cfg.SignalingURL)
	}
	if cfg.ReconnectRetries != DefaultReconnectRetries {
		t.Errorf("Expected %d retries, got %d", DefaultReconnectRetries, cfg.ReconnectRetries)
	}
	if cfg.CanvasWidth != DefaultCanvasWidth || cfg.CanvasHeight != DefaultCanvasHeight {
		t.Errorf("Unexpected canvas size %dx%d", cfg.CanvasWidth, cfg.CanvasHeight)
	}
	if !cfg.EnableAudio || !cfg.EnableVideo {
		t.Error("Expected media to be enabled by default")
	}
	if cfg.DBPath != filepath.Join(filepath.Dir(file), "roomlink.db") {
		t.Errorf("Expected db next to config file, got %q", cfg.DBPath)
	}

	if _, err := os.Stat(file); err != nil {
		t.Fatalf("Expected config file to be written: %v", err)
	}
}

func TestLoadReadsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.yaml")
	content := `username: alice
token: abc
signaling_url: ws://example.test/ws
enable_video: false
clear_redo_on_remote: true
reconnect_retries: 3
`
	if err := os.WriteFile(file, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load("test", file, "debug")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Username != "alice" {
		t.Errorf("Expected username alice, got %q", cfg.Username)
	}
	if cfg.EnableVideo {
		t.Error("Expected video disabled from file")
	}
	if !cfg.ClearRedoOnRemote {
		t.Error("Expected clear_redo_on_remote from file")
	}
	if cfg.ReconnectRetries != 3 {
		t.Errorf("Expected 3 retries, got %d", cfg.ReconnectRetries)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected flag log level to win, got %q", cfg.LogLevel)
	}
	if got := cfg.RoomURL("r1"); got != "ws://example.test/ws/room/r1/" {
		t.Errorf("Unexpected room URL %q", got)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ROOMLINK_USERNAME", "bob")
	t.Setenv("ROOMLINK_SIGNALING_URL", "wss://signal.test/ws/")
	t.Setenv("ROOMLINK_ENABLE_VIDEO", "false")
	t.Setenv("ROOMLINK_RECONNECT_RETRIES", "2")

	cfg, err := Load("test", filepath.Join(t.TempDir(), "config.yaml"), "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Username != "bob" {
		t.Errorf("Expected env username, got %q", cfg.Username)
	}
	if got := cfg.RoomURL("abc"); got != "wss://signal.test/ws/room/abc/" {
		t.Errorf("Unexpected room URL %q", got)
	}
	if cfg.EnableVideo || !cfg.EnableAudio {
		t.Errorf("Expected audio only, got audio=%v video=%v", cfg.EnableAudio, cfg.EnableVideo)
	}
	if cfg.ReconnectRetries != 2 {
		t.Errorf("Expected 2 retries from env, got %d", cfg.ReconnectRetries)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.yaml")
	cfg, err := Load("test", file, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg.Username = "carol"
	cfg.TURNServer = "turn:relay.test"
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "username: carol") {
		t.Errorf("Expected username in saved file, got:\n%s", data)
	}

	again, err := Load("test", file, "")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.Username != "carol" {
		t.Errorf("Expected reloaded username carol, got %q", again.Username)
	}
	if turns := again.GetTURNServers(); len(turns) != 2 || !strings.HasPrefix(turns[0], "turn:relay.test:3478") {
		t.Errorf("Unexpected TURN servers %v", turns)
	}
}

func TestSaveWithoutFile(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Save(); err == nil {
		t.Error("Expected error saving config without a path")
	}
}
