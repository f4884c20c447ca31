package models

import "time"

// StorageBackend selects the PersistenceAdapter implementation.
type StorageBackend string

const (
	BackendLocal  StorageBackend = "local"
	BackendSQLite StorageBackend = "sqlite"
)

// StorageConfig holds persistence settings.
type StorageConfig struct {
	Backend      StorageBackend `yaml:"backend" mapstructure:"backend"`
	SQLitePath   string         `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	PollInterval time.Duration  `yaml:"poll_interval" mapstructure:"poll_interval"`
}

// LoggingConfig controls the operational logger.
type LoggingConfig struct {
	Level       string `yaml:"level" mapstructure:"level"`
	Development bool   `yaml:"development" mapstructure:"development"`
}

// SlackConfig holds Slack webhook settings for reminder delivery.
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// NotificationConfig holds reminder and alert delivery settings.
type NotificationConfig struct {
	Enabled bool        `yaml:"enabled" mapstructure:"enabled"`
	Slack   SlackConfig `yaml:"slack" mapstructure:"slack"`
}

// AlertConfig holds thresholds for due-date alerts.
type AlertConfig struct {
	DueSoonDays int `yaml:"due_soon_days" mapstructure:"due_soon_days"`
}

// VoiceConfig names the external speech-to-text command.
type VoiceConfig struct {
	Command string   `yaml:"command" mapstructure:"command"`
	Args    []string `yaml:"args,omitempty" mapstructure:"args"`
}

// ServerConfig holds HTTP API settings. Tokens maps bearer tokens to user IDs.
type ServerConfig struct {
	Addr   string            `yaml:"addr" mapstructure:"addr"`
	Tokens map[string]string `yaml:"tokens,omitempty" mapstructure:"tokens"`
}

// GlobalConfig holds system-wide settings read from .todoconfig via Viper.
type GlobalConfig struct {
	UserID          string             `yaml:"user_id" mapstructure:"user_id"`
	DefaultPriority Priority           `yaml:"default_priority" mapstructure:"default_priority"`
	Storage         StorageConfig      `yaml:"storage" mapstructure:"storage"`
	Logging         LoggingConfig      `yaml:"logging" mapstructure:"logging"`
	Notifications   NotificationConfig `yaml:"notifications" mapstructure:"notifications"`
	Alerts          AlertConfig        `yaml:"alerts" mapstructure:"alerts"`
	Voice           VoiceConfig        `yaml:"voice" mapstructure:"voice"`
	Server          ServerConfig       `yaml:"server" mapstructure:"server"`
}
