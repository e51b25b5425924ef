package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/nomis52/komandorr/store"
	"github.com/nomis52/komandorr/tracker"
	"gopkg.in/yaml.v3"
)

const (
	// Default feed settings
	defaultFeedPath    = "/api/activities"
	defaultFeedTimeout = 10 * time.Second

	// Default peak endpoint settings
	defaultPeakTimeout = 10 * time.Second

	// Default state settings
	defaultStateBackend = store.BackendDisk
	defaultStatePath    = "/var/lib/komandorr"

	// Default monitoring settings
	defaultMetricsPrefix = "komandorr"
	defaultJobName       = "komandorr"

	// Default logging settings
	defaultLogLevel  = "info"
	defaultLogFormat = "json"
	defaultLogOutput = "stdout"

	redactedValue = "REDACTED"
)

// Config represents the complete monitor configuration
type Config struct {
	Feed       FeedConfig       `yaml:"feed"`
	Peak       PeakConfig       `yaml:"peak"`
	Tracker    tracker.Config   `yaml:"tracker"`
	State      StateConfig      `yaml:"state"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// FeedConfig describes the activity feed to poll
type FeedConfig struct {
	// URL is the base URL of the service publishing activities
	URL string `yaml:"url"`
	// Path is appended to URL, defaults to /api/activities
	Path    string        `yaml:"path"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// PeakConfig describes the remote peak endpoint. When URL is empty the peak
// is kept in the local state store.
type PeakConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// StateConfig selects where tracker state is persisted
type StateConfig struct {
	// Backend is one of disk, sqlite or memory
	Backend string `yaml:"backend"`
	// Path is the state directory (disk) or database file (sqlite)
	Path string `yaml:"path"`
}

// MonitoringConfig holds metrics and monitoring settings
type MonitoringConfig struct {
	VictoriaMetricsURL string `yaml:"victoriametrics_url"`
	MetricsPrefix      string `yaml:"metrics_prefix"`
	JobName            string `yaml:"jobname"`
}

// LoggingConfig defines logging behavior settings
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	Output    string `yaml:"output"`
	AddSource bool   `yaml:"add_source"`
}

// UsesRemotePeak reports whether the peak lives on a remote endpoint.
func (c *Config) UsesRemotePeak() bool {
	return c.Peak.URL != ""
}

// Validate performs basic validation on the configuration
func (c *Config) Validate() error {
	if c.Feed.URL == "" {
		return errors.New("feed URL is required")
	}
	if err := validateURL(c.Feed.URL); err != nil {
		return fmt.Errorf("feed URL: %w", err)
	}
	if c.Feed.Timeout <= 0 {
		return errors.New("feed timeout must be positive")
	}
	if c.Peak.URL != "" {
		if err := validateURL(c.Peak.URL); err != nil {
			return fmt.Errorf("peak URL: %w", err)
		}
		if c.Peak.Timeout <= 0 {
			return errors.New("peak timeout must be positive")
		}
	}
	if err := c.Tracker.Validate(); err != nil {
		return fmt.Errorf("tracker: %w", err)
	}
	switch c.State.Backend {
	case store.BackendDisk, store.BackendSQLite:
		if c.State.Path == "" {
			return fmt.Errorf("state path is required for the %s backend", c.State.Backend)
		}
	case store.BackendMemory:
	default:
		return fmt.Errorf("%w: %q", store.ErrUnknownBackend, c.State.Backend)
	}
	if c.Monitoring.VictoriaMetricsURL != "" {
		if err := validateURL(c.Monitoring.VictoriaMetricsURL); err != nil {
			return fmt.Errorf("VictoriaMetrics URL: %w", err)
		}
	}
	return nil
}

// SetDefaults sets reasonable default values for optional fields
func (c *Config) SetDefaults() {
	if c.Feed.Path == "" {
		c.Feed.Path = defaultFeedPath
	}
	if c.Feed.Timeout == 0 {
		c.Feed.Timeout = defaultFeedTimeout
	}
	if c.Peak.Timeout == 0 {
		c.Peak.Timeout = defaultPeakTimeout
	}
	c.Tracker = c.Tracker.WithDefaults()
	if c.State.Backend == "" {
		c.State.Backend = defaultStateBackend
	}
	if c.State.Path == "" && c.State.Backend == store.BackendDisk {
		c.State.Path = defaultStatePath
	}
	if c.Monitoring.MetricsPrefix == "" {
		c.Monitoring.MetricsPrefix = defaultMetricsPrefix
	}
	if c.Monitoring.JobName == "" {
		c.Monitoring.JobName = defaultJobName
	}
	// Set logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if c.Logging.Output == "" {
		c.Logging.Output = defaultLogOutput
	}
}

// Redacted returns a copy of the config with secrets replaced.
func (c *Config) Redacted() *Config {
	out := *c
	if out.Feed.APIKey != "" {
		out.Feed.APIKey = redactedValue
	}
	if out.Peak.APIKey != "" {
		out.Peak.APIKey = redactedValue
	}
	return &out
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%q must include scheme and host", raw)
	}
	return nil
}

// LoadConfig reads the YAML config file at the given path and returns a Config struct
func LoadConfig(path string) (Config, error) {
	cfg := Config{Tracker: tracker.DefaultConfig()}
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode YAML config %s: %w", path, err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
