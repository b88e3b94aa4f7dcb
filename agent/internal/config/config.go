package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultBufferSize   = 1000
	DefaultPollInterval = 2 * time.Second
	DefaultPattern      = "*.jsonl"
	DefaultOffsetsFile  = ".offsets.json"
	DefaultAuthHeader   = "x-api-key"
	DefaultLogLevel     = "info"
)

// Config is the top-level configuration. The `server:` key in a shared
// config.yaml is ignored by the agent.
type Config struct {
	Agent AgentConfig `yaml:"agent"`
}

// AgentConfig holds all agent-side settings.
type AgentConfig struct {
	// ServerEndpoint is the gRPC address of flowbench-server (host:port).
	ServerEndpoint string `yaml:"server_endpoint"`

	// PrincipalID is stamped on execution events that carry none.
	PrincipalID string `yaml:"principal_id"`

	// BufferSize is the maximum number of events held in memory when
	// the server is unreachable.
	BufferSize int `yaml:"buffer_size"`

	// Spool configures the directory of JSON-lines event files to tail.
	Spool SpoolConfig `yaml:"spool"`

	// ServerAuth configures how the agent authenticates to flowbench-server.
	ServerAuth AuthConfig `yaml:"server_auth"`

	Log LogConfig `yaml:"log"`
}

// SpoolConfig describes the event spool directory.
type SpoolConfig struct {
	// Dir is the directory workflow runtimes append event files to.
	Dir string `yaml:"dir"`

	// Pattern selects spool files inside Dir (filepath.Match syntax).
	Pattern string `yaml:"pattern"`

	// PollInterval is the fallback rescan period when no fsnotify event fires.
	PollInterval time.Duration `yaml:"poll_interval"`

	// OffsetsFile persists per-file read offsets across restarts. Relative
	// paths resolve against Dir.
	OffsetsFile string `yaml:"offsets_file"`
}

// OffsetsPath returns OffsetsFile resolved against Dir.
func (s SpoolConfig) OffsetsPath() string {
	if filepath.IsAbs(s.OffsetsFile) {
		return s.OffsetsFile
	}
	return filepath.Join(s.Dir, s.OffsetsFile)
}

// AuthConfig specifies how the agent authenticates to the server.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | none.
	Mode string `yaml:"mode"`

	// mTLS fields, used when Mode == "mtls".
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// Header is the gRPC metadata key the API key is sent in.
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// LogConfig controls the default slog handler.
type LogConfig struct {
	Level string `yaml:"level"`
}

// SlogLevel maps Level onto slog, falling back to info.
func (l LogConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			BufferSize: DefaultBufferSize,
			Spool: SpoolConfig{
				Pattern:      DefaultPattern,
				PollInterval: DefaultPollInterval,
				OffsetsFile:  DefaultOffsetsFile,
			},
			ServerAuth: AuthConfig{Header: DefaultAuthHeader},
			Log:        LogConfig{Level: DefaultLogLevel},
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	a := cfg.Agent
	if a.ServerEndpoint == "" {
		return fmt.Errorf("agent.server_endpoint is required")
	}
	if a.BufferSize <= 0 {
		return fmt.Errorf("agent.buffer_size must be positive")
	}
	if a.Spool.Dir == "" {
		return fmt.Errorf("agent.spool.dir is required")
	}
	if _, err := filepath.Match(a.Spool.Pattern, ""); err != nil || a.Spool.Pattern == "" {
		return fmt.Errorf("agent.spool.pattern %q is not a valid glob", a.Spool.Pattern)
	}
	if a.Spool.PollInterval <= 0 {
		return fmt.Errorf("agent.spool.poll_interval must be positive")
	}
	if a.Spool.OffsetsFile == "" {
		return fmt.Errorf("agent.spool.offsets_file is required")
	}
	switch a.ServerAuth.Mode {
	case "mtls":
		if a.ServerAuth.CertFile == "" || a.ServerAuth.KeyFile == "" {
			return fmt.Errorf("agent.server_auth: mtls requires cert_file and key_file")
		}
	case "apikey":
		if a.ServerAuth.KeyEnv == "" {
			return fmt.Errorf("agent.server_auth: apikey requires key_env")
		}
	case "none", "":
	default:
		return fmt.Errorf("agent.server_auth.mode %q unknown: want mtls|apikey|none", a.ServerAuth.Mode)
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(a.Log.Level)); err != nil {
		return fmt.Errorf("agent.log.level %q unknown: want debug|info|warn|error", a.Log.Level)
	}
	return nil
}
