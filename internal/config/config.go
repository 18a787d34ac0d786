package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the default config file name
	ConfigFileName = "blogpage.yaml"

	// SessionBackendMemory keeps sessions in process memory
	SessionBackendMemory = "memory"
	// SessionBackendSQLite keeps sessions in a SQLite database
	SessionBackendSQLite = "sqlite"
)

// Config represents the blogpage server configuration
type Config struct {
	// Addr is the HTTP listen address
	Addr string `yaml:"addr,omitempty"`

	// Sessions configures page-state storage
	Sessions SessionConfig `yaml:"sessions,omitempty"`

	// WebSocket enables the live transport; HTTP posts keep working without it
	WebSocket bool `yaml:"websocket"`

	// Minify compresses rendered pages
	Minify bool `yaml:"minify"`

	// Fixture is an optional YAML file with demo posts and comments
	Fixture string `yaml:"fixture,omitempty"`

	// FakePosts is the number of generated posts when no fixture is given
	FakePosts int `yaml:"fake_posts,omitempty"`

	// Seed makes generated content reproducible; 0 picks a random seed
	Seed uint64 `yaml:"seed,omitempty"`

	// LogLevel is one of debug, info, warn, error
	LogLevel string `yaml:"log_level,omitempty"`
}

// SessionConfig configures the session store
type SessionConfig struct {
	Backend         string        `yaml:"backend,omitempty"`
	Path            string        `yaml:"path,omitempty"`
	TTL             time.Duration `yaml:"ttl,omitempty"`
	CleanupInterval time.Duration `yaml:"cleanup_interval,omitempty"`
}

// DefaultConfig returns a new Config with default values
func DefaultConfig() *Config {
	return &Config{
		Addr: ":8080",
		Sessions: SessionConfig{
			Backend:         SessionBackendMemory,
			Path:            "data/sessions.db",
			TTL:             24 * time.Hour,
			CleanupInterval: 10 * time.Minute,
		},
		WebSocket: true,
		Minify:    true,
		FakePosts: 25,
		LogLevel:  "info",
	}
}

// LoadConfig loads the configuration from path
// If the file doesn't exist, returns a default config
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Start from defaults so omitted keys keep them
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.fillDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return config, nil
}

// fillDefaults sets defaults for fields explicitly emptied in the file
func (c *Config) fillDefaults() {
	defaults := DefaultConfig()
	if c.Addr == "" {
		c.Addr = defaults.Addr
	}
	if c.Sessions.Backend == "" {
		c.Sessions.Backend = defaults.Sessions.Backend
	}
	if c.Sessions.Path == "" {
		c.Sessions.Path = defaults.Sessions.Path
	}
	if c.Sessions.TTL == 0 {
		c.Sessions.TTL = defaults.Sessions.TTL
	}
	if c.Sessions.CleanupInterval == 0 {
		c.Sessions.CleanupInterval = defaults.Sessions.CleanupInterval
	}
	if c.LogLevel == "" {
		c.LogLevel = defaults.LogLevel
	}
}

// Validate checks field values
func (c *Config) Validate() error {
	switch c.Sessions.Backend {
	case SessionBackendMemory, SessionBackendSQLite:
	default:
		return fmt.Errorf("unknown session backend %q (want %s or %s)",
			c.Sessions.Backend, SessionBackendMemory, SessionBackendSQLite)
	}
	if c.Sessions.TTL < 0 {
		return fmt.Errorf("session ttl must not be negative")
	}
	if c.Sessions.CleanupInterval < 0 {
		return fmt.Errorf("session cleanup interval must not be negative")
	}
	if c.FakePosts < 0 {
		return fmt.Errorf("fake_posts must not be negative")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return nil
}

// SaveConfig writes the configuration to path
func SaveConfig(config *Config, path string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
