// Package config loads runkit configuration from TOML files and the
// environment.
//
// Resolution order: an optional .env overlay is read first (variables
// already present in the environment win), then the first file found
// among StandardPaths, then RUNKIT_* overrides on top of everything. A
// missing configuration file is not an error; every field has a
// default.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/praxisworks/runkit/bus"
	kiterrors "github.com/praxisworks/runkit/errors"
	"github.com/praxisworks/runkit/logging"
	"github.com/praxisworks/runkit/ratelimit"
	"github.com/praxisworks/runkit/runs"
	"github.com/praxisworks/runkit/tasks"
)

// ErrInsecurePermissions is returned when a configuration file carrying
// an API key is readable by group or others.
var ErrInsecurePermissions = errors.New("config file has insecure permissions")

// Store backends.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreBolt   = "bolt"
)

// Bus backends.
const (
	BusMemory = "memory"
	BusNATS   = "nats"
)

// Environment variables that override file settings.
const (
	EnvAPIKey   = "RUNKIT_API_KEY"
	EnvBaseURL  = "RUNKIT_BASE_URL"
	EnvNATSURL  = "RUNKIT_NATS_URL"
	EnvLogLevel = "RUNKIT_LOG_LEVEL"
)

// Config is the root configuration for runkit components.
type Config struct {
	// LogLevel is the minimum log severity: "debug", "info", "warn",
	// or "error".
	LogLevel string `toml:"log_level"`

	// LogFormat selects "text" or "json" log output.
	LogFormat string `toml:"log_format"`

	Remote       RemoteConfig       `toml:"remote"`
	Orchestrator OrchestratorConfig `toml:"orchestrator"`
	Monitor      MonitorConfig      `toml:"monitor"`
	Store        StoreConfig        `toml:"store"`
	Bus          BusConfig          `toml:"bus"`
}

// RemoteConfig configures the HTTP client for the agent-run service.
type RemoteConfig struct {
	// BaseURL is the service root, e.g. "https://runs.example.com".
	BaseURL string `toml:"base_url"`

	// APIKey authenticates requests. Files that set it must not be
	// readable by group or others.
	APIKey string `toml:"api_key"`

	// TimeoutSeconds bounds each HTTP request.
	TimeoutSeconds int `toml:"timeout_seconds"`

	// RateRequests per RateWindowSeconds paces calls to the service.
	RateRequests      int `toml:"rate_requests"`
	RateWindowSeconds int `toml:"rate_window_seconds"`

	// MaxRetries caps retry attempts for transient failures.
	MaxRetries int `toml:"max_retries"`

	// CacheTTLSeconds is how long cached GET responses stay fresh.
	CacheTTLSeconds int `toml:"cache_ttl_seconds"`
}

// OrchestratorConfig sizes the worker pool.
type OrchestratorConfig struct {
	Workers             int `toml:"workers"`
	QueueSize           int `toml:"queue_size"`
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
}

// MonitorConfig paces the background run monitor.
type MonitorConfig struct {
	IntervalSeconds int `toml:"interval_seconds"`
}

// StoreConfig selects the task store backend.
type StoreConfig struct {
	// Backend is "memory", "file", or "bolt".
	Backend string `toml:"backend"`

	// Path is the store directory (file) or database file (bolt).
	Path string `toml:"path"`
}

// BusConfig selects the message bus backend.
type BusConfig struct {
	// Backend is "memory" or "nats".
	Backend string `toml:"backend"`

	// URL is the NATS server address, e.g. "nats://127.0.0.1:4222".
	URL string `toml:"url"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
		Remote: RemoteConfig{
			TimeoutSeconds:    30,
			RateRequests:      30,
			RateWindowSeconds: 60,
			MaxRetries:        5,
			CacheTTLSeconds:   5,
		},
		Orchestrator: OrchestratorConfig{
			Workers:             4,
			QueueSize:           64,
			PollIntervalSeconds: 3,
		},
		Monitor: MonitorConfig{
			IntervalSeconds: 10,
		},
		Store: StoreConfig{
			Backend: StoreMemory,
		},
		Bus: BusConfig{
			Backend: BusMemory,
		},
	}
}

// StandardPaths returns the candidate configuration files in order of
// priority.
func StandardPaths() []string {
	paths := []string{"runkit.toml"}

	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		paths = append(paths, filepath.Join(dir, "runkit", "config.toml"))
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "runkit", "config.toml"))
	}

	return paths
}

// Load resolves configuration from the first file found among
// StandardPaths. A missing file is not an error: defaults plus
// environment overrides still apply. Returns the path the file was
// loaded from, or "" when none was found.
func Load() (*Config, string, error) {
	// Optional overlay for local development. Variables already set
	// in the environment win over .env entries.
	_ = godotenv.Load()

	for _, path := range StandardPaths() {
		if _, err := os.Stat(path); err == nil {
			cfg, err := LoadFile(path)
			if err != nil {
				return nil, path, err
			}
			cfg.applyEnv()
			return cfg, path, nil
		}
	}

	cfg := Default()
	cfg.applyEnv()
	return cfg, "", nil
}

// LoadFile loads configuration from a specific TOML file. A file that
// sets an API key must not be readable by group or others;
// ErrInsecurePermissions is returned otherwise.
func LoadFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(string(content))
	if err != nil {
		return nil, err
	}

	if cfg.Remote.APIKey != "" && runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if mode := info.Mode().Perm(); mode&0o077 != 0 {
			return nil, fmt.Errorf("%w: %s has mode %04o (keep it 0600 or tighter)",
				ErrInsecurePermissions, path, mode)
		}
	}

	return cfg, nil
}

// Parse parses TOML content over the defaults: keys absent from the
// content keep their default values.
func Parse(content string) (*Config, error) {
	cfg := Default()
	if _, err := toml.Decode(content, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// applyEnv applies RUNKIT_* environment overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.Remote.APIKey = v
	}
	if v := os.Getenv(EnvBaseURL); v != "" {
		c.Remote.BaseURL = v
	}
	if v := os.Getenv(EnvNATSURL); v != "" {
		c.Bus.URL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

// Validate checks structural validity: known backends, required paths,
// recognized log settings. Remote credentials are not required here;
// the HTTP client enforces them at construction.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return kiterrors.Newf(kiterrors.ErrCodeValidation, "unknown log level %q", c.LogLevel)
	}

	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return kiterrors.Newf(kiterrors.ErrCodeValidation, "unknown log format %q", c.LogFormat)
	}

	switch c.Store.Backend {
	case "", StoreMemory:
	case StoreFile, StoreBolt:
		if c.Store.Path == "" {
			return kiterrors.Newf(kiterrors.ErrCodeValidation, "store backend %q requires a path", c.Store.Backend)
		}
	default:
		return kiterrors.Newf(kiterrors.ErrCodeValidation, "unknown store backend %q", c.Store.Backend)
	}

	switch c.Bus.Backend {
	case "", BusMemory:
	case BusNATS:
		if c.Bus.URL == "" {
			return kiterrors.Validation("bus backend \"nats\" requires a url")
		}
	default:
		return kiterrors.Newf(kiterrors.ErrCodeValidation, "unknown bus backend %q", c.Bus.Backend)
	}

	return nil
}

// LoggingConfig returns the logger configuration.
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{
		Level:  c.LogLevel,
		Format: c.LogFormat,
	}
}

// ClientConfig returns the HTTP run client configuration. Backoff
// bounds are fixed; only the retry count is configurable.
func (r RemoteConfig) ClientConfig() runs.HTTPConfig {
	return runs.HTTPConfig{
		BaseURL: r.BaseURL,
		APIKey:  r.APIKey,
		Timeout: time.Duration(r.TimeoutSeconds) * time.Second,
		RateLimit: ratelimit.Config{
			Requests: r.RateRequests,
			Window:   time.Duration(r.RateWindowSeconds) * time.Second,
		},
		Retry: ratelimit.RetryConfig{
			MaxRetries:     r.MaxRetries,
			InitialBackoff: time.Second,
			MaxBackoff:     60 * time.Second,
		},
		CacheTTL: time.Duration(r.CacheTTLSeconds) * time.Second,
	}
}

// PollInterval returns the worker poll interval as a duration.
func (o OrchestratorConfig) PollInterval() time.Duration {
	return time.Duration(o.PollIntervalSeconds) * time.Second
}

// Interval returns the sweep interval as a duration.
func (m MonitorConfig) Interval() time.Duration {
	return time.Duration(m.IntervalSeconds) * time.Second
}

// NewStore constructs the task store the configuration selects.
func (s StoreConfig) NewStore() (tasks.Store, error) {
	switch s.Backend {
	case "", StoreMemory:
		return tasks.NewMemoryStore(), nil
	case StoreFile:
		return tasks.NewFileStore(s.Path)
	case StoreBolt:
		return tasks.NewBoltStore(s.Path)
	default:
		return nil, kiterrors.Newf(kiterrors.ErrCodeValidation, "unknown store backend %q", s.Backend)
	}
}

// NewBus constructs the message bus the configuration selects.
func (b BusConfig) NewBus() (bus.MessageBus, error) {
	switch b.Backend {
	case "", BusMemory:
		return bus.NewMemoryBus(bus.DefaultConfig()), nil
	case BusNATS:
		cfg := bus.DefaultNATSConfig()
		if b.URL != "" {
			cfg.URL = b.URL
		}
		return bus.NewNATSBus(cfg)
	default:
		return nil, kiterrors.Newf(kiterrors.ErrCodeValidation, "unknown bus backend %q", b.Backend)
	}
}
