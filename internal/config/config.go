// Package config loads engine configuration from a TOML file, with
// environment-variable overrides for credentials.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Common errors.
var (
	// ErrMissingCredentials is returned when the Spotify app credentials
	// are set neither in the config file nor in the environment.
	ErrMissingCredentials = errors.New("missing Spotify client_id or client_secret")

	// ErrMissingDatabaseURL is returned when no database URL is configured.
	ErrMissingDatabaseURL = errors.New("missing database url")
)

// Config represents the engine configuration loaded from a TOML file.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Spotify  SpotifyConfig  `toml:"spotify"`
	Poller   PollerConfig   `toml:"poller"`
	Status   StatusConfig   `toml:"status"`
	Notify   NotifyConfig   `toml:"notify"`
}

// DatabaseConfig contains PostgreSQL connection settings.
type DatabaseConfig struct {
	URL string `toml:"url"`
}

// SpotifyConfig contains Spotify app credentials. SPOTIFY_ID and
// SPOTIFY_SECRET environment variables take precedence when set.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// PollerConfig contains poll loop settings.
type PollerConfig struct {
	IntervalSeconds int `toml:"interval_seconds"`
	AuditEvery      int `toml:"audit_every"`
}

// Interval returns the poll interval as a duration.
func (p PollerConfig) Interval() time.Duration {
	return time.Duration(p.IntervalSeconds) * time.Second
}

// StatusConfig contains the status HTTP listener settings.
type StatusConfig struct {
	Addr string `toml:"addr"`
}

// NotifyConfig contains notification delivery settings.
type NotifyConfig struct {
	NtfyTopic string `toml:"ntfy_topic"`
}

// DefaultConfig returns a Config with defaults loaded from the embedded
// example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// Load reads and parses a TOML configuration file, applies environment
// overrides, and validates the result. An empty path yields the defaults
// plus environment overrides.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	if id := os.Getenv("SPOTIFY_ID"); id != "" {
		config.Spotify.ClientID = id
	}
	if secret := os.Getenv("SPOTIFY_SECRET"); secret != "" {
		config.Spotify.ClientSecret = secret
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		config.Database.URL = url
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	if c.Spotify.ClientID == "" || c.Spotify.ClientSecret == "" {
		return ErrMissingCredentials
	}
	if c.Database.URL == "" {
		return ErrMissingDatabaseURL
	}
	if c.Poller.IntervalSeconds <= 0 {
		return fmt.Errorf("poller interval must be positive, got %d", c.Poller.IntervalSeconds)
	}
	if c.Poller.AuditEvery < 0 {
		return fmt.Errorf("audit cadence must not be negative, got %d", c.Poller.AuditEvery)
	}
	return nil
}
