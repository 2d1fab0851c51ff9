// Package config loads and validates the YAML configuration file and watches
// it for changes at runtime.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Plex holds the media server connection settings.
type Plex struct {
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// Scheduler holds the periodic re-sync settings. Schedule is a cron
// expression; an empty schedule disables the scheduler.
type Scheduler struct {
	Enable   bool   `yaml:"enable"`
	Schedule string `yaml:"schedule"`
}

// Discord holds the Discord webhook notification settings.
type Discord struct {
	WebhookURL string `yaml:"webhook_url"`
	Username   string `yaml:"username"`
	AvatarURL  string `yaml:"avatar_url"`
}

// Webhook holds a generic HTTP webhook notification target.
type Webhook struct {
	URL     string            `yaml:"url"`
	Method  string            `yaml:"method"`
	Headers map[string]string `yaml:"headers"`
	Body    string            `yaml:"body"`
}

// Notifications groups the configured notification providers.
type Notifications struct {
	Discord  Discord   `yaml:"discord"`
	Webhooks []Webhook `yaml:"webhooks"`
}

// HTTP holds the API server settings. Port 0 disables the server.
type HTTP struct {
	Port   int    `yaml:"port"`
	Bind   string `yaml:"bind"`
	APIKey string `yaml:"api_key"`
}

// Log holds logging output settings.
type Log struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Config is the full application configuration.
type Config struct {
	Plex Plex `yaml:"plex"`

	UpdateLevel    string `yaml:"update_level"`
	UpdateStrategy string `yaml:"update_strategy"`

	TriggerOnPlay     bool `yaml:"trigger_on_play"`
	TriggerOnScan     bool `yaml:"trigger_on_scan"`
	TriggerOnActivity bool `yaml:"trigger_on_activity"`

	// IgnoreShows lists show titles or rating keys that are never updated.
	IgnoreShows []string `yaml:"ignore_shows"`

	MaxConcurrent int    `yaml:"max_concurrent"`
	DatabasePath  string `yaml:"database_path"`

	Scheduler     Scheduler     `yaml:"scheduler"`
	Notifications Notifications `yaml:"notifications"`
	HTTP          HTTP          `yaml:"http"`
	Log           Log           `yaml:"log"`
}

// Default returns the configuration defaults applied before the file is read.
func Default() *Config {
	return &Config{
		Plex: Plex{
			Timeout: 30 * time.Second,
		},
		UpdateLevel:       "show",
		UpdateStrategy:    "next",
		TriggerOnPlay:     true,
		TriggerOnScan:     true,
		TriggerOnActivity: true,
		MaxConcurrent:     1,
		DatabasePath:      "./autolingo.db",
		Scheduler: Scheduler{
			Enable:   true,
			Schedule: "0 4 * * *",
		},
		Log: Log{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.Plex.Token == "" {
		cfg.Plex.Token = os.Getenv("PLEX_TOKEN")
	}
	if cfg.Plex.URL == "" {
		cfg.Plex.URL = os.Getenv("PLEX_URL")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for missing or invalid values.
func (c *Config) Validate() error {
	if c.Plex.URL == "" {
		return fmt.Errorf("plex.url is required (or set PLEX_URL)")
	}
	if c.Plex.Token == "" {
		return fmt.Errorf("plex.token is required (or set PLEX_TOKEN)")
	}
	switch c.UpdateLevel {
	case "show", "season":
	default:
		return fmt.Errorf("update_level must be \"show\" or \"season\", got %q", c.UpdateLevel)
	}
	switch c.UpdateStrategy {
	case "all", "next":
	default:
		return fmt.Errorf("update_strategy must be \"all\" or \"next\", got %q", c.UpdateStrategy)
	}
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", c.MaxConcurrent)
	}
	if c.Plex.Timeout <= 0 {
		return fmt.Errorf("plex.timeout must be positive, got %s", c.Plex.Timeout)
	}
	return nil
}

// ShouldIgnoreShow reports whether a show is on the ignore list, matched by
// title or show rating key.
func (c *Config) ShouldIgnoreShow(title, ratingKey string) bool {
	for _, entry := range c.IgnoreShows {
		if entry == title || entry == ratingKey {
			return true
		}
	}
	return false
}
