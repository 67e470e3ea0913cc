// Package config loads and validates the messenger client configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/andrewlidong/beam-messenger/internal/retry"
	"github.com/andrewlidong/beam-messenger/pkg/models"
)

// ErrMissingCredentials is returned when the room or auth token is absent.
// Without both, no connection attempt may be made.
var ErrMissingCredentials = errors.New("config: room_id and token are required")

// Config is the main configuration structure for the messenger client.
type Config struct {
	Socket   SocketConfig   `yaml:"socket"`
	Identity IdentityConfig `yaml:"identity"`
	Typing   TypingConfig   `yaml:"typing"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

// SocketConfig configures the websocket transport.
type SocketConfig struct {
	// URL is the websocket endpoint, e.g. "ws://localhost:4000/socket".
	URL string `yaml:"url"`

	// HandshakeTimeout bounds the websocket dial.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	// Reconnect controls automatic reconnect pacing.
	Reconnect ReconnectConfig `yaml:"reconnect"`
}

// ReconnectConfig mirrors retry.Config in yaml-friendly form.
type ReconnectConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Factor       float64       `yaml:"factor"`
	Jitter       *bool         `yaml:"jitter"`
}

// IdentityConfig carries the session identity. All four fields are
// required; they are established once and never mutated.
type IdentityConfig struct {
	UserID   string `yaml:"user_id"`
	Username string `yaml:"username"`
	RoomID   string `yaml:"room_id"`
	Token    string `yaml:"token"`
}

// TypingConfig configures the typing indicator.
type TypingConfig struct {
	// IdleWindowMs is how long after the last keystroke the typing state
	// decays back to idle. Clamped to [2000, 3000].
	IdleWindowMs int `yaml:"idle_window_ms"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics, e.g. ":9090".
	// Empty disables the endpoint.
	Addr string `yaml:"addr"`
}

// TracingConfig configures OTLP trace export.
type TracingConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

// Load reads and parses the configuration file, expanding environment
// variables and applying defaults. Callers validate after applying any
// flag overrides; see Validate.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Validate checks the fields without which the client must not connect.
func (c *Config) Validate() error {
	if c.Identity.RoomID == "" || c.Identity.Token == "" {
		return ErrMissingCredentials
	}
	if c.Identity.UserID == "" {
		return errors.New("config: user_id is required")
	}
	if c.Socket.URL == "" {
		return errors.New("config: socket url is required")
	}
	return nil
}

// ToIdentity returns the immutable session identity.
func (c *Config) ToIdentity() models.Identity {
	return models.Identity{
		UserID:   c.Identity.UserID,
		Username: c.Identity.Username,
		RoomID:   c.Identity.RoomID,
		Token:    c.Identity.Token,
	}
}

// RetryConfig converts the yaml reconnect section into retry pacing.
func (c *Config) RetryConfig() retry.Config {
	rc := retry.DefaultConfig()
	if c.Socket.Reconnect.MaxAttempts != 0 {
		rc.MaxAttempts = c.Socket.Reconnect.MaxAttempts
	}
	if c.Socket.Reconnect.InitialDelay > 0 {
		rc.InitialDelay = c.Socket.Reconnect.InitialDelay
	}
	if c.Socket.Reconnect.MaxDelay > 0 {
		rc.MaxDelay = c.Socket.Reconnect.MaxDelay
	}
	if c.Socket.Reconnect.Factor > 0 {
		rc.Factor = c.Socket.Reconnect.Factor
	}
	if c.Socket.Reconnect.Jitter != nil {
		rc.Jitter = *c.Socket.Reconnect.Jitter
	}
	return rc
}

// TypingIdleWindow returns the typing decay window as a duration.
func (c *Config) TypingIdleWindow() time.Duration {
	return time.Duration(c.Typing.IdleWindowMs) * time.Millisecond
}

func applyDefaults(cfg *Config) {
	if cfg.Socket.HandshakeTimeout == 0 {
		cfg.Socket.HandshakeTimeout = 10 * time.Second
	}
	if cfg.Identity.Username == "" {
		cfg.Identity.Username = cfg.Identity.UserID
	}
	if cfg.Typing.IdleWindowMs == 0 {
		cfg.Typing.IdleWindowMs = 2500
	}
	if cfg.Typing.IdleWindowMs < 2000 {
		cfg.Typing.IdleWindowMs = 2000
	}
	if cfg.Typing.IdleWindowMs > 3000 {
		cfg.Typing.IdleWindowMs = 3000
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Tracing.SamplingRate == 0 {
		cfg.Tracing.SamplingRate = 1.0
	}
}
