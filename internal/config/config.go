// Package config provides YAML-based configuration loading for Glow Range.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Glow Range configuration, loaded from glow.yaml.
type Config struct {
	Cloud     CloudConfig     `yaml:"cloud"`
	DB        DBConfig        `yaml:"db"`
	Session   SessionConfig   `yaml:"session"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Notify    NotifyConfig    `yaml:"notify"`
}

// CloudConfig holds connection settings for the target cloud API.
type CloudConfig struct {
	BaseURL      string `yaml:"base_url"`
	WSURL        string `yaml:"ws_url"`    // derived from base_url when empty
	TokenURL     string `yaml:"token_url"` // derived from base_url when empty
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// DBConfig selects the session history database.
type DBConfig struct {
	Driver   string `yaml:"driver"` // "sqlite" (default) or "mysql"
	Path     string `yaml:"path"`   // sqlite file path
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// SessionConfig tunes lifecycle and dispatch behavior.
type SessionConfig struct {
	CommandTimeoutSeconds  int `yaml:"command_timeout_seconds"`  // per-device command send timeout
	ConfirmTimeoutSeconds  int `yaml:"confirm_timeout_seconds"`  // telemetry confirmation wait
	DefaultDurationSeconds int `yaml:"default_duration_seconds"` // 0 = no auto-stop
	OfflineAfterSeconds    int `yaml:"offline_after_seconds"`    // device staleness threshold
}

// DashboardConfig holds the dashboard HTTP server settings.
type DashboardConfig struct {
	Port int `yaml:"port"`
}

// NotifyConfig configures operator notification channels.
type NotifyConfig struct {
	DigestCron string              `yaml:"digest_cron"` // 5-field cron, empty disables digests
	Slack      SlackNotifyConfig   `yaml:"slack"`
	Discord    DiscordNotifyConfig `yaml:"discord"`
}

// SlackNotifyConfig holds Slack bot credentials for notifications.
type SlackNotifyConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// DiscordNotifyConfig holds Discord bot credentials for notifications.
type DiscordNotifyConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Cloud.WSURL == "" && c.Cloud.BaseURL != "" {
		ws := strings.Replace(c.Cloud.BaseURL, "https://", "wss://", 1)
		ws = strings.Replace(ws, "http://", "ws://", 1)
		c.Cloud.WSURL = strings.TrimSuffix(ws, "/") + "/api/ws/telemetry"
	}
	if c.Cloud.TokenURL == "" && c.Cloud.BaseURL != "" {
		c.Cloud.TokenURL = strings.TrimSuffix(c.Cloud.BaseURL, "/") + "/oauth/token"
	}
	if c.DB.Driver == "" {
		c.DB.Driver = "sqlite"
	}
	if c.DB.Driver == "sqlite" && c.DB.Path == "" {
		c.DB.Path = os.ExpandEnv("${HOME}/.glow/history.db")
	}
	if c.DB.Driver == "mysql" {
		if c.DB.Host == "" {
			c.DB.Host = "127.0.0.1"
		}
		if c.DB.Port == 0 {
			c.DB.Port = 3306
		}
		if c.DB.Database == "" {
			c.DB.Database = "glowrange"
		}
		if c.DB.User == "" {
			c.DB.User = "root"
		}
	}
	if c.Session.CommandTimeoutSeconds == 0 {
		c.Session.CommandTimeoutSeconds = 10
	}
	if c.Session.ConfirmTimeoutSeconds == 0 {
		c.Session.ConfirmTimeoutSeconds = 30
	}
	if c.Session.OfflineAfterSeconds == 0 {
		c.Session.OfflineAfterSeconds = 120
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8080
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Cloud.BaseURL == "" {
		errs = append(errs, "cloud.base_url is required")
	}
	if c.Cloud.ClientID == "" {
		errs = append(errs, "cloud.client_id is required")
	}
	if c.Cloud.ClientSecret == "" {
		errs = append(errs, "cloud.client_secret is required")
	}
	switch c.DB.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("db.driver %q is not supported (sqlite, mysql)", c.DB.Driver))
	}
	if c.Session.CommandTimeoutSeconds < 0 {
		errs = append(errs, "session.command_timeout_seconds must not be negative")
	}
	if c.Session.DefaultDurationSeconds < 0 {
		errs = append(errs, "session.default_duration_seconds must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
