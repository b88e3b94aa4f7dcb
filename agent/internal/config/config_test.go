package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Valid(t *testing.T) {
	yaml := `
agent:
  server_endpoint: "localhost:50051"
  principal_id: team-a
  buffer_size: 500
  spool:
    dir: /var/spool/flowbench
    pattern: "events-*.jsonl"
    poll_interval: 500ms
    offsets_file: /var/lib/flowbench/offsets.json
  server_auth:
    mode: apikey
    key_env: FLOWBENCH_KEY
  log:
    level: debug
`
	cfg := loadFromString(t, yaml)

	a := cfg.Agent
	if a.ServerEndpoint != "localhost:50051" {
		t.Errorf("server_endpoint: got %q", a.ServerEndpoint)
	}
	if a.PrincipalID != "team-a" {
		t.Errorf("principal_id: got %q", a.PrincipalID)
	}
	if a.BufferSize != 500 {
		t.Errorf("buffer_size: got %d", a.BufferSize)
	}
	if a.Spool.Pattern != "events-*.jsonl" {
		t.Errorf("spool.pattern: got %q", a.Spool.Pattern)
	}
	if a.Spool.PollInterval != 500*time.Millisecond {
		t.Errorf("spool.poll_interval: got %v", a.Spool.PollInterval)
	}
	if p := a.Spool.OffsetsPath(); p != "/var/lib/flowbench/offsets.json" {
		t.Errorf("OffsetsPath: got %q", p)
	}
	if a.ServerAuth.Header != DefaultAuthHeader {
		t.Errorf("server_auth.header: got %q, want default", a.ServerAuth.Header)
	}
	if a.Log.SlogLevel() != slog.LevelDebug {
		t.Errorf("log level: got %v", a.Log.SlogLevel())
	}
}

func TestLoad_Defaults(t *testing.T) {
	yaml := `
agent:
  server_endpoint: "localhost:50051"
  spool:
    dir: /tmp/spool
`
	cfg := loadFromString(t, yaml)

	a := cfg.Agent
	if a.BufferSize != DefaultBufferSize {
		t.Errorf("default buffer_size: got %d, want %d", a.BufferSize, DefaultBufferSize)
	}
	if a.Spool.PollInterval != DefaultPollInterval {
		t.Errorf("default poll_interval: got %v, want %v", a.Spool.PollInterval, DefaultPollInterval)
	}
	if a.Spool.Pattern != DefaultPattern {
		t.Errorf("default pattern: got %q, want %q", a.Spool.Pattern, DefaultPattern)
	}
	if p := a.Spool.OffsetsPath(); p != filepath.Join("/tmp/spool", DefaultOffsetsFile) {
		t.Errorf("default OffsetsPath: got %q", p)
	}
	if a.Log.SlogLevel() != slog.LevelInfo {
		t.Errorf("default log level: got %v", a.Log.SlogLevel())
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing endpoint", `
agent:
  spool:
    dir: /tmp/spool
`},
		{"missing spool dir", `
agent:
  server_endpoint: "localhost:50051"
`},
		{"bad pattern", `
agent:
  server_endpoint: "localhost:50051"
  spool:
    dir: /tmp/spool
    pattern: "[unterminated"
`},
		{"zero buffer", `
agent:
  server_endpoint: "localhost:50051"
  buffer_size: 0
  spool:
    dir: /tmp/spool
`},
		{"unknown auth mode", `
agent:
  server_endpoint: "localhost:50051"
  spool:
    dir: /tmp/spool
  server_auth:
    mode: magictoken
`},
		{"mtls without cert", `
agent:
  server_endpoint: "localhost:50051"
  spool:
    dir: /tmp/spool
  server_auth:
    mode: mtls
`},
		{"apikey without key_env", `
agent:
  server_endpoint: "localhost:50051"
  spool:
    dir: /tmp/spool
  server_auth:
    mode: apikey
`},
		{"unknown log level", `
agent:
  server_endpoint: "localhost:50051"
  spool:
    dir: /tmp/spool
  log:
    level: chatty
`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := loadStringErr(t, tc.yaml); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoad_AuthModes(t *testing.T) {
	tests := []struct {
		name  string
		extra string
		mode  string
	}{
		{"mtls", "cert_file: c.pem\n    key_file: k.pem", "mtls"},
		{"apikey", "key_env: K", "apikey"},
		{"none", "", "none"},
		{"empty", "", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			yaml := `
agent:
  server_endpoint: "localhost:50051"
  spool:
    dir: /tmp/spool
  server_auth:
    mode: "` + tc.mode + `"
    ` + tc.extra + `
`
			cfg := loadFromString(t, yaml)
			if cfg.Agent.ServerAuth.Mode != tc.mode {
				t.Errorf("auth mode: got %q, want %q", cfg.Agent.ServerAuth.Mode, tc.mode)
			}
		})
	}
}

func TestAuthConfig_Key(t *testing.T) {
	t.Setenv("TEST_API_KEY", "supersecret")
	a := AuthConfig{Mode: "apikey", KeyEnv: "TEST_API_KEY"}
	if got := a.Key(); got != "supersecret" {
		t.Errorf("Key(): got %q, want %q", got, "supersecret")
	}
}

func TestAuthConfig_Key_Empty(t *testing.T) {
	a := AuthConfig{Mode: "apikey"}
	if got := a.Key(); got != "" {
		t.Errorf("Key() with no KeyEnv: got %q, want empty", got)
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	write := func(level string) {
		body := "agent:\n  server_endpoint: \"localhost:50051\"\n  spool:\n    dir: /tmp/spool\n  log:\n    level: " + level + "\n"
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatalf("write config: %v", err)
		}
	}
	write("info")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, func(c *Config) { changes <- c }) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	write("debug")

	select {
	case c := <-changes:
		if c.Agent.Log.SlogLevel() != slog.LevelDebug {
			t.Errorf("reloaded level: got %v, want debug", c.Agent.Log.SlogLevel())
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload observed")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch returned %v", err)
	}
}

// loadFromString writes yaml to a temp file and calls Load, failing on error.
func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	return cfg
}

// loadStringErr writes yaml to a temp file and calls Load, returning any error.
func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return Load(path)
}

func TestWatch_InvalidReloadIsSkipped(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("agent:\n  server_endpoint: \"localhost:50051\"\n  spool:\n    dir: /tmp/spool\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	go func() { _ = Watch(ctx, path, func(c *Config) { changes <- c }) }()
	time.Sleep(100 * time.Millisecond)

	// Unrelated files in the same directory are ignored.
	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1\n"), 0o600); err != nil {
		t.Fatalf("write other: %v", err)
	}
	// Missing server_endpoint fails validation.
	if err := os.WriteFile(path, []byte("agent:\n  spool:\n    dir: /tmp/spool\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	select {
	case c := <-changes:
		t.Fatalf("unexpected reload: %+v", c.Agent)
	case <-time.After(600 * time.Millisecond):
	}
}
