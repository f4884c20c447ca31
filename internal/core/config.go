// Package core contains the business logic of todo: the canonical task
// store, derived views, attachment encoding, edit sessions, reminders, and
// configuration.
package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/valter-silva-au/todo/pkg/models"
)

// ConfigurationManager defines the interface for loading and validating the
// .todoconfig file.
type ConfigurationManager interface {
	LoadGlobalConfig() (*models.GlobalConfig, error)
	ValidateConfig(cfg *models.GlobalConfig) error
}

// viperConfigManager implements ConfigurationManager using Viper for
// reading YAML configuration files.
type viperConfigManager struct {
	// basePath is the root directory where .todoconfig resides.
	basePath string
}

// NewConfigurationManager creates a new ConfigurationManager that reads
// configuration files relative to basePath.
func NewConfigurationManager(basePath string) ConfigurationManager {
	return &viperConfigManager{basePath: basePath}
}

// DefaultGlobalConfig returns a GlobalConfig populated with sensible defaults.
func DefaultGlobalConfig() *models.GlobalConfig {
	return &models.GlobalConfig{
		DefaultPriority: models.PriorityMedium,
		Storage: models.StorageConfig{
			Backend:      models.BackendLocal,
			SQLitePath:   "todo.db",
			PollInterval: 2 * time.Second,
		},
		Logging: models.LoggingConfig{Level: "info"},
		Alerts:  models.AlertConfig{DueSoonDays: 1},
		Server:  models.ServerConfig{Addr: ":8080"},
	}
}

// LoadGlobalConfig reads the .todoconfig file from the base path using Viper.
// If the file does not exist, defaults are returned.
func (cm *viperConfigManager) LoadGlobalConfig() (*models.GlobalConfig, error) {
	cfg := DefaultGlobalConfig()

	v := viper.New()
	v.SetConfigName(".todoconfig")
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.basePath)
	v.SetEnvPrefix("TODO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set Viper defaults so missing keys fall back gracefully.
	v.SetDefault("user.id", cfg.UserID)
	v.SetDefault("defaults.priority", string(cfg.DefaultPriority))
	v.SetDefault("storage.backend", string(cfg.Storage.Backend))
	v.SetDefault("storage.sqlite_path", cfg.Storage.SQLitePath)
	v.SetDefault("storage.poll_interval", cfg.Storage.PollInterval)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.development", cfg.Logging.Development)
	v.SetDefault("notifications.enabled", cfg.Notifications.Enabled)
	v.SetDefault("notifications.slack.webhook_url", "")
	v.SetDefault("alerts.due_soon_days", cfg.Alerts.DueSoonDays)
	v.SetDefault("voice.command", "")
	v.SetDefault("server.addr", cfg.Server.Addr)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading .todoconfig: %w", err)
		}
	}

	// Map nested YAML keys to GlobalConfig fields.
	cfg.UserID = v.GetString("user.id")
	cfg.DefaultPriority = models.Priority(strings.ToLower(v.GetString("defaults.priority")))
	cfg.Storage.Backend = models.StorageBackend(strings.ToLower(v.GetString("storage.backend")))
	cfg.Storage.SQLitePath = v.GetString("storage.sqlite_path")
	cfg.Storage.PollInterval = v.GetDuration("storage.poll_interval")
	cfg.Logging.Level = v.GetString("logging.level")
	cfg.Logging.Development = v.GetBool("logging.development")
	cfg.Notifications.Enabled = v.GetBool("notifications.enabled")
	cfg.Notifications.Slack.WebhookURL = v.GetString("notifications.slack.webhook_url")
	cfg.Alerts.DueSoonDays = v.GetInt("alerts.due_soon_days")
	cfg.Voice.Command = v.GetString("voice.command")
	cfg.Voice.Args = v.GetStringSlice("voice.args")
	cfg.Server.Addr = v.GetString("server.addr")
	cfg.Server.Tokens = v.GetStringMapString("server.tokens")

	return cfg, nil
}

var validBackends = map[models.StorageBackend]bool{
	models.BackendLocal:  true,
	models.BackendSQLite: true,
}

var validLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

// ValidateConfig checks the provided configuration for invalid values and
// returns an error naming every problem found.
func (cm *viperConfigManager) ValidateConfig(cfg *models.GlobalConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	var errs []string

	if cfg.DefaultPriority != "" && !cfg.DefaultPriority.Valid() {
		errs = append(errs, fmt.Sprintf(
			"defaults.priority %q is invalid, must be one of: high, medium, low",
			cfg.DefaultPriority,
		))
	}

	if !validBackends[cfg.Storage.Backend] {
		errs = append(errs, fmt.Sprintf(
			"storage.backend %q is invalid, must be one of: local, sqlite",
			cfg.Storage.Backend,
		))
	}

	if cfg.Storage.Backend == models.BackendSQLite {
		if cfg.Storage.SQLitePath == "" {
			errs = append(errs, "storage.sqlite_path must not be empty for the sqlite backend")
		}
		if cfg.UserID == "" && len(cfg.Server.Tokens) == 0 {
			errs = append(errs, "user.id or server.tokens must be set for the sqlite backend")
		}
	}

	if cfg.Storage.PollInterval < 0 {
		errs = append(errs, fmt.Sprintf("storage.poll_interval must be non-negative, got %s", cfg.Storage.PollInterval))
	}

	if cfg.Logging.Level != "" && !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("logging.level %q is invalid, must be one of: debug, info, warn, error", cfg.Logging.Level))
	}

	if cfg.Alerts.DueSoonDays < 0 {
		errs = append(errs, fmt.Sprintf("alerts.due_soon_days must be non-negative, got %d", cfg.Alerts.DueSoonDays))
	}

	if u := cfg.Notifications.Slack.WebhookURL; u != "" {
		if parsed, err := url.Parse(u); err != nil || parsed.Scheme == "" || parsed.Host == "" {
			errs = append(errs, fmt.Sprintf("notifications.slack.webhook_url %q is not a valid URL", u))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}
