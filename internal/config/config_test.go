package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "beam.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
socket:
  url: ws://localhost:4000/socket
identity:
  user_id: u1
  room_id: lobby
  token: tok
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Socket.HandshakeTimeout != 10*time.Second {
		t.Errorf("handshake_timeout = %v, want 10s default", cfg.Socket.HandshakeTimeout)
	}
	if cfg.Identity.Username != "u1" {
		t.Errorf("username = %q, want user_id fallback", cfg.Identity.Username)
	}
	if cfg.Typing.IdleWindowMs != 2500 {
		t.Errorf("idle_window_ms = %d, want 2500 default", cfg.Typing.IdleWindowMs)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("logging = %+v, want info/text defaults", cfg.Logging)
	}
	if cfg.Tracing.SamplingRate != 1.0 {
		t.Errorf("sampling_rate = %v, want 1.0 default", cfg.Tracing.SamplingRate)
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("BEAM_TEST_TOKEN", "from-env")
	path := writeConfig(t, `
socket:
  url: ws://localhost:4000/socket
identity:
  user_id: u1
  room_id: lobby
  token: ${BEAM_TEST_TOKEN}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Identity.Token != "from-env" {
		t.Errorf("token = %q, want env expansion", cfg.Identity.Token)
	}
}

func TestLoadClampsTypingWindow(t *testing.T) {
	cases := []struct {
		yaml string
		want int
	}{
		{"idle_window_ms: 500", 2000},
		{"idle_window_ms: 2500", 2500},
		{"idle_window_ms: 9000", 3000},
	}
	for _, tc := range cases {
		path := writeConfig(t, "typing:\n  "+tc.yaml+"\n")
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Typing.IdleWindowMs != tc.want {
			t.Errorf("%s: idle_window_ms = %d, want %d", tc.yaml, cfg.Typing.IdleWindowMs, tc.want)
		}
	}
}

func TestLoadRejectsMissingFileAndBadYAML(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load of a missing file succeeded")
	}

	path := writeConfig(t, "socket: [not a mapping")
	if _, err := Load(path); err == nil {
		t.Error("Load of malformed yaml succeeded")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Socket:   SocketConfig{URL: "ws://localhost:4000/socket"},
			Identity: IdentityConfig{UserID: "u1", RoomID: "lobby", Token: "tok"},
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	missingRoom := base()
	missingRoom.Identity.RoomID = ""
	if err := missingRoom.Validate(); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("missing room: err = %v, want ErrMissingCredentials", err)
	}

	missingToken := base()
	missingToken.Identity.Token = ""
	if err := missingToken.Validate(); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("missing token: err = %v, want ErrMissingCredentials", err)
	}

	missingUser := base()
	missingUser.Identity.UserID = ""
	if missingUser.Validate() == nil {
		t.Error("missing user_id accepted")
	}

	missingURL := base()
	missingURL.Socket.URL = ""
	if missingURL.Validate() == nil {
		t.Error("missing socket url accepted")
	}
}

func TestRetryConfigOverrides(t *testing.T) {
	jitter := false
	cfg := &Config{Socket: SocketConfig{Reconnect: ReconnectConfig{
		MaxAttempts:  5,
		InitialDelay: time.Second,
		MaxDelay:     8 * time.Second,
		Factor:       3.0,
		Jitter:       &jitter,
	}}}

	rc := cfg.RetryConfig()
	if rc.MaxAttempts != 5 || rc.InitialDelay != time.Second || rc.MaxDelay != 8*time.Second || rc.Factor != 3.0 || rc.Jitter {
		t.Errorf("retry config = %+v, want yaml overrides applied", rc)
	}

	defaults := (&Config{}).RetryConfig()
	if defaults.InitialDelay != 2*time.Second || !defaults.Jitter {
		t.Errorf("default retry config = %+v", defaults)
	}
}

func TestToIdentity(t *testing.T) {
	cfg := &Config{Identity: IdentityConfig{UserID: "u1", Username: "alice", RoomID: "lobby", Token: "tok"}}
	id := cfg.ToIdentity()
	if id.UserID != "u1" || id.Username != "alice" || id.RoomID != "lobby" || id.Token != "tok" {
		t.Errorf("identity = %+v", id)
	}
}
