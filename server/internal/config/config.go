package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultGRPCPort       = 50051
	DefaultHTTPPort       = 8080
	DefaultBackend        = BackendMemory
	DefaultAnalyticsTTL   = 5 * time.Minute
	DefaultBenchmarkTTL   = 15 * time.Minute
	DefaultHistorySize    = 100
	DefaultBenchTimeout   = 30 * time.Second
	DefaultStreamInterval = 5 * time.Second
	DefaultGCInterval     = 10 * time.Minute
	DefaultLogLevel       = "info"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
)

// Config holds the server-side configuration parsed from the `server:` section
// of config.yaml. The `agent:` key in the same file is ignored.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	GRPCPort  int             `yaml:"grpc_port"`
	HTTPPort  int             `yaml:"http_port"`
	Auth      AuthConfig      `yaml:"auth"`
	Storage   StorageConfig   `yaml:"storage"`
	Cache     CacheConfig     `yaml:"cache"`
	Recorder  RecorderConfig  `yaml:"recorder"`
	Benchmark BenchmarkConfig `yaml:"benchmark"`
	Stream    StreamConfig    `yaml:"stream"`
	Log       LogConfig       `yaml:"log"`
}

// AuthConfig controls client authentication on the server side.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	KeyEnv string `yaml:"key_env"`

	// Header is the gRPC metadata key (and HTTP header name) to read the key from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// StorageConfig selects and tunes the event store.
type StorageConfig struct {
	Backend string `yaml:"backend"`

	// Path is the badger data directory.
	Path       string `yaml:"path"`
	SyncWrites bool   `yaml:"sync_writes"`
	// GCInterval is the badger value log GC period; 0 disables it.
	GCInterval time.Duration `yaml:"gc_interval"`

	// DSNEnv names the environment variable holding the postgres DSN.
	DSNEnv         string `yaml:"dsn_env"`
	MaxConnections int32  `yaml:"max_connections"`
}

// DSN returns the postgres connection string resolved from the environment.
func (s StorageConfig) DSN() string {
	if s.DSNEnv == "" {
		return ""
	}
	return os.Getenv(s.DSNEnv)
}

// CacheConfig sets result cache lifetimes.
type CacheConfig struct {
	AnalyticsTTL time.Duration `yaml:"analytics_ttl"`
	BenchmarkTTL time.Duration `yaml:"benchmark_ttl"`
}

// RecorderConfig tunes the in-process rolling counters.
type RecorderConfig struct {
	HistorySize int `yaml:"history_size"`
}

// BenchmarkConfig tunes benchmark runs.
type BenchmarkConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// StreamConfig tunes the WebSocket counter stream.
type StreamConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// LogConfig controls the default slog handler.
type LogConfig struct {
	Level string `yaml:"level"`
}

// SlogLevel maps Level onto slog. Unknown values were rejected by validate.
func (l LogConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return defaults()
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			GRPCPort: DefaultGRPCPort,
			HTTPPort: DefaultHTTPPort,
			Storage: StorageConfig{
				Backend:    DefaultBackend,
				GCInterval: DefaultGCInterval,
			},
			Cache: CacheConfig{
				AnalyticsTTL: DefaultAnalyticsTTL,
				BenchmarkTTL: DefaultBenchmarkTTL,
			},
			Recorder:  RecorderConfig{HistorySize: DefaultHistorySize},
			Benchmark: BenchmarkConfig{Timeout: DefaultBenchTimeout},
			Stream:    StreamConfig{Interval: DefaultStreamInterval},
			Log:       LogConfig{Level: DefaultLogLevel},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.GRPCPort <= 0 || s.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d is out of range [1, 65535]", s.GRPCPort)
	}
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	if s.GRPCPort == s.HTTPPort {
		return fmt.Errorf("server.grpc_port and server.http_port must differ (both %d)", s.GRPCPort)
	}
	switch s.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}

	switch s.Storage.Backend {
	case BackendMemory:
	case BackendBadger:
		if s.Storage.Path == "" {
			return fmt.Errorf("server.storage.path is required for the badger backend")
		}
	case BackendPostgres:
		if s.Storage.DSNEnv == "" {
			return fmt.Errorf("server.storage.dsn_env is required for the postgres backend")
		}
	default:
		return fmt.Errorf("server.storage.backend %q unknown: want memory|badger|postgres", s.Storage.Backend)
	}
	if s.Storage.GCInterval < 0 {
		return fmt.Errorf("server.storage.gc_interval must not be negative")
	}
	if s.Storage.MaxConnections < 0 {
		return fmt.Errorf("server.storage.max_connections must not be negative")
	}

	if s.Cache.AnalyticsTTL <= 0 || s.Cache.BenchmarkTTL <= 0 {
		return fmt.Errorf("server.cache ttls must be positive")
	}
	if s.Recorder.HistorySize <= 0 {
		return fmt.Errorf("server.recorder.history_size must be positive")
	}
	if s.Benchmark.Timeout <= 0 {
		return fmt.Errorf("server.benchmark.timeout must be positive")
	}
	if s.Stream.Interval <= 0 {
		return fmt.Errorf("server.stream.interval must be positive")
	}

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s.Log.Level)); err != nil {
		return fmt.Errorf("server.log.level %q unknown: want debug|info|warn|error", s.Log.Level)
	}
	return nil
}
