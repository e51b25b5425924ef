package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/nomis52/komandorr/server/cron"
	"gopkg.in/yaml.v3"
)

const (
	defaultListenAddr   = ":8080"
	defaultLogLevel     = "info"
	defaultPollSchedule = "@every 5s"
)

// ServerConfig represents the server runtime configuration.
type ServerConfig struct {
	Listener ListenerConfig `yaml:"listener"`
	LogLevel string         `yaml:"log_level"`
	// PollSchedule is how often the feed is polled, defaults to "@every 5s"
	PollSchedule string `yaml:"poll_schedule"`
	// PeakResetSchedule resets the peak concurrency, e.g. "@weekly". Empty disables it.
	PeakResetSchedule string `yaml:"peak_reset_schedule"`
	// The path to the monitor config file
	MonitorConfig string `yaml:"monitor_config"`
	// WatchConfig reloads the monitor config when the file changes
	WatchConfig bool `yaml:"watch_config"`
	// PeakAPIKey, when set, is required on peak updates and resets from
	// other instances.
	PeakAPIKey string `yaml:"peak_api_key"`
}

// ListenerConfig holds HTTP server listener settings.
type ListenerConfig struct {
	// The listen address, defaults to :8080
	Addr string `yaml:"addr"`
	// TLSCert and TLSKey enable HTTPS when both are set
	TLSCert string `yaml:"tls_cert"`
	TLSKey  string `yaml:"tls_key"`
}

// TLSEnabled reports whether both a certificate and key are configured.
func (l ListenerConfig) TLSEnabled() bool {
	return l.TLSCert != "" && l.TLSKey != ""
}

// LoadConfig reads the YAML config file at the given path and returns a ServerConfig struct.
func LoadConfig(path string) (*ServerConfig, error) {
	var cfg ServerConfig
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open server config file %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode YAML server config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults sets reasonable default values for optional fields.
func (c *ServerConfig) SetDefaults() {
	if c.Listener.Addr == "" {
		c.Listener.Addr = defaultListenAddr
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.PollSchedule == "" {
		c.PollSchedule = defaultPollSchedule
	}
}

// Validate checks the schedules parse and the paths are set.
func (c *ServerConfig) Validate() error {
	if c.MonitorConfig == "" {
		return errors.New("monitor_config is required")
	}
	if (c.Listener.TLSCert == "") != (c.Listener.TLSKey == "") {
		return errors.New("tls_cert and tls_key must be set together")
	}
	if _, err := cron.ParseSchedule(c.PollSchedule); err != nil {
		return fmt.Errorf("poll_schedule: %w", err)
	}
	if c.PeakResetSchedule != "" {
		if _, err := cron.ParseSchedule(c.PeakResetSchedule); err != nil {
			return fmt.Errorf("peak_reset_schedule: %w", err)
		}
	}
	return nil
}
