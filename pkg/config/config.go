package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/golobby/config/v3"
	"github.com/golobby/config/v3/pkg/feeder"
	"github.com/joho/godotenv"
	"github.com/tphan267/roomlink/pkg/utils"
	"go.yaml.in/yaml/v3"
)

const (
	DefaultAPIBase          = "http://localhost:8000/api"
	DefaultSignalingURL     = "ws://localhost:8000/ws"
	DefaultListenAddr       = "127.0.0.1:3030"
	DefaultSTUN             = "stun:stun.l.google.com:19302"
	DefaultCanvasWidth      = 1280
	DefaultCanvasHeight     = 720
	DefaultReconnectBaseMS  = 1000
	DefaultReconnectMaxMS   = 10000
	DefaultReconnectRetries = 5
)

// Config holds the client configuration
type Config struct {
	Username     string `yaml:"username"`      // Identity inside rooms; derived from the token when empty
	Token        string `yaml:"token"`         // Bearer token issued by the backend
	APIBase      string `yaml:"api_base"`      // Backend REST base, e.g. http://host/api
	SignalingURL string `yaml:"signaling_url"` // WebSocket base; rooms live under /room/<id>/
	DBPath       string `yaml:"db_path"`
	ListenAddr   string `yaml:"listen_addr"` // Local API for the UI
	APIToken     string `yaml:"api_token"`   // Optional bearer token guarding the local API
	LogLevel     string `yaml:"log_level"`

	STUNServer string `yaml:"stun_server"`
	TURNServer string `yaml:"turn_server"`
	TURNUser   string `yaml:"turn_user"`
	TURNPass   string `yaml:"turn_pass"`

	EnableAudio bool `yaml:"enable_audio"`
	EnableVideo bool `yaml:"enable_video"`

	CanvasWidth       int  `yaml:"canvas_width"`
	CanvasHeight      int  `yaml:"canvas_height"`
	ClearRedoOnRemote bool `yaml:"clear_redo_on_remote"`

	ReconnectBaseMS  int `yaml:"reconnect_base_ms"`
	ReconnectMaxMS   int `yaml:"reconnect_max_ms"`
	ReconnectRetries int `yaml:"reconnect_retries"`

	Version string `yaml:"-"`

	mu   sync.Mutex `yaml:"-"`
	file string     `yaml:"-"`
}

// RoomURL returns the signaling endpoint for a room
func (c *Config) RoomURL(roomID string) string {
	return strings.TrimRight(c.SignalingURL, "/") + "/room/" + roomID + "/"
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
	}
}

// File returns the path the config was loaded from
func (c *Config) File() string {
	return c.file
}

// Save writes the current configuration back to the file
func (c *Config) Save() error {
	if c.file == "" {
		return fmt.Errorf("config file path is not set")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(c.file, data, 0o600)
}

// EnsureDefaultConfig applies env overrides and fills in missing values.
// When save is true and a default was filled in, the file is rewritten.
func (c *Config) EnsureDefaultConfig(save bool) error {
	changed := false
	c.mu.Lock()

	// Env overrides
	if v := utils.Env("ROOMLINK_USERNAME", ""); v != "" {
		c.Username = v
	}
	if v := utils.Env("ROOMLINK_TOKEN", ""); v != "" {
		c.Token = v
	}
	if v := utils.Env("ROOMLINK_API_BASE", ""); v != "" {
		c.APIBase = v
	}
	if v := utils.Env("ROOMLINK_SIGNALING_URL", ""); v != "" {
		c.SignalingURL = v
	}
	if v := utils.Env("ROOMLINK_LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := utils.Env("ROOMLINK_TURN_SERVER", ""); v != "" {
		c.TURNServer = v
	}
	if v := utils.Env("ROOMLINK_TURN_USER", ""); v != "" {
		c.TURNUser = v
	}
	if v := utils.Env("ROOMLINK_TURN_PASS", ""); v != "" {
		c.TURNPass = v
	}
	c.EnableAudio = utils.EnvBool("ROOMLINK_ENABLE_AUDIO", c.EnableAudio)
	c.EnableVideo = utils.EnvBool("ROOMLINK_ENABLE_VIDEO", c.EnableVideo)
	c.ReconnectRetries = utils.EnvInt("ROOMLINK_RECONNECT_RETRIES", c.ReconnectRetries)

	if c.APIBase == "" {
		c.APIBase = DefaultAPIBase
		changed = true
	}
	if c.SignalingURL == "" {
		c.SignalingURL = DefaultSignalingURL
		changed = true
	}
	if c.DBPath == "" {
		dir := "."
		if c.file != "" {
			dir = filepath.Dir(c.file)
		}
		c.DBPath = filepath.Join(dir, "roomlink.db")
		changed = true
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
		changed = true
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
		changed = true
	}
	if c.STUNServer == "" {
		c.STUNServer = DefaultSTUN
		changed = true
	}
	if c.CanvasWidth <= 0 {
		c.CanvasWidth = DefaultCanvasWidth
		changed = true
	}
	if c.CanvasHeight <= 0 {
		c.CanvasHeight = DefaultCanvasHeight
		changed = true
	}
	if c.ReconnectBaseMS <= 0 {
		c.ReconnectBaseMS = DefaultReconnectBaseMS
		changed = true
	}
	if c.ReconnectMaxMS <= 0 {
		c.ReconnectMaxMS = DefaultReconnectMaxMS
		changed = true
	}
	if c.ReconnectRetries <= 0 {
		c.ReconnectRetries = DefaultReconnectRetries
		changed = true
	}

	c.mu.Unlock()

	if changed && save && c.file != "" {
		return c.Save()
	}
	return nil
}

// Load reads configuration from a YAML file, .env and the environment.
// A missing file is not an error; it gets created with defaults.
func Load(version, file, logLevel string) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Version:     version,
		file:        file,
		EnableAudio: true,
		EnableVideo: true,
	}

	if file != "" {
		if _, err := os.Stat(file); err == nil {
			yamlFeeder := feeder.Yaml{Path: file}
			if err := config.New().AddFeeder(yamlFeeder).AddStruct(cfg).Feed(); err != nil {
				return nil, fmt.Errorf("failed to read config %s: %w", file, err)
			}
		}
	}

	if err := cfg.EnsureDefaultConfig(true); err != nil {
		return nil, err
	}

	// Command-line flag wins over file and env
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	return cfg, nil
}
