// Package daemon manages the questforge daemon lifecycle and configuration.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"github.com/questforge/questforge/internal/app/engagement"
	"github.com/questforge/questforge/internal/domain"
	"github.com/questforge/questforge/internal/infra/aigen"
)

// Config holds all daemon configuration.
type Config struct {
	API           APIConfig           `toml:"api"`
	Storage       StorageConfig       `toml:"storage"`
	AI            AIConfig            `toml:"ai"`
	Progression   ProgressionConfig   `toml:"progression"`
	Notifications NotificationsConfig `toml:"notifications"`
	Housekeeping  HousekeepingConfig  `toml:"housekeeping"`
	Logging       LoggingConfig       `toml:"logging"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host           string `toml:"host" validate:"required"`
	Port           int    `toml:"port" validate:"min=1,max=65535"`
	CORS           bool   `toml:"cors"`
	Metrics        bool   `toml:"metrics"`
	RequestTimeout string `toml:"request_timeout"`
	HealthInterval string `toml:"health_interval"`
}

// StorageConfig controls where state lives.
type StorageConfig struct {
	Dir string `toml:"dir"`
}

// AIConfig controls the optional quest text service.
type AIConfig struct {
	Enabled     bool    `toml:"enabled"`
	BaseURL     string  `toml:"base_url" validate:"omitempty,url"`
	Model       string  `toml:"model" validate:"required_if=Enabled true"`
	Timeout     string  `toml:"timeout"`
	Temperature float64 `toml:"temperature" validate:"min=0,max=2"`
	CacheSize   int     `toml:"cache_size" validate:"min=0,max=100000"`
	CacheTTL    string  `toml:"cache_ttl"`
}

// ProgressionConfig bounds the compare-and-swap retry loop.
type ProgressionConfig struct {
	MaxCASAttempts int    `toml:"max_cas_attempts" validate:"min=1,max=50"`
	CASBaseDelay   string `toml:"cas_base_delay"`
	CASMaxDelay    string `toml:"cas_max_delay"`
}

// NotificationsConfig is the per-user notification policy.
type NotificationsConfig struct {
	MaxPerDay  int    `toml:"max_per_day" validate:"min=0,max=1000"`
	QuietStart string `toml:"quiet_start" validate:"len=5"`
	QuietEnd   string `toml:"quiet_end" validate:"len=5"`
}

// HousekeepingConfig controls the storage purge job.
type HousekeepingConfig struct {
	Enabled   bool   `toml:"enabled"`
	Schedule  string `toml:"schedule" validate:"required_if=Enabled true"`
	Retention string `toml:"retention"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `toml:"level" validate:"oneof=debug info warn error"`
	File  string `toml:"file"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	homeDir := questforgeHome()
	policy := domain.DefaultNotificationPolicy()
	retry := engagement.DefaultRetryPolicy()
	return Config{
		API: APIConfig{
			Host:           "127.0.0.1",
			Port:           8420,
			RequestTimeout: "30s",
			HealthInterval: "60s",
			Metrics:        true,
		},
		Storage: StorageConfig{
			Dir: homeDir,
		},
		AI: AIConfig{
			Enabled:     false,
			BaseURL:     aigen.DefaultBaseURL,
			Model:       "llama3.2",
			Timeout:     "20s",
			Temperature: 0.7,
			CacheSize:   256,
			CacheTTL:    "1h",
		},
		Progression: ProgressionConfig{
			MaxCASAttempts: retry.MaxAttempts,
			CASBaseDelay:   retry.BaseDelay.String(),
			CASMaxDelay:    retry.MaxDelay.String(),
		},
		Notifications: NotificationsConfig{
			MaxPerDay:  policy.MaxPerDay,
			QuietStart: policy.QuietStart,
			QuietEnd:   policy.QuietEnd,
		},
		Housekeeping: HousekeepingConfig{
			Enabled:   true,
			Schedule:  "17 3 * * *", // daily, off the hour
			Retention: "720h",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

var validate = validator.New()

// Validate checks the config for values the daemon cannot run with.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	var errs []string
	if !engagement.ValidClock(c.Notifications.QuietStart) {
		errs = append(errs, fmt.Sprintf("notifications.quiet_start %q is not HH:MM", c.Notifications.QuietStart))
	}
	if !engagement.ValidClock(c.Notifications.QuietEnd) {
		errs = append(errs, fmt.Sprintf("notifications.quiet_end %q is not HH:MM", c.Notifications.QuietEnd))
	}
	if c.Housekeeping.Enabled {
		if _, err := cron.ParseStandard(c.Housekeeping.Schedule); err != nil {
			errs = append(errs, fmt.Sprintf("housekeeping.schedule: %v", err))
		}
	}
	for name, v := range map[string]string{
		"api.request_timeout":        c.API.RequestTimeout,
		"api.health_interval":        c.API.HealthInterval,
		"ai.timeout":                 c.AI.Timeout,
		"ai.cache_ttl":               c.AI.CacheTTL,
		"progression.cas_base_delay": c.Progression.CASBaseDelay,
		"progression.cas_max_delay":  c.Progression.CASMaxDelay,
		"housekeeping.retention":     c.Housekeeping.Retention,
	} {
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err != nil || d < 0 {
			errs = append(errs, fmt.Sprintf("%s %q is not a duration", name, v))
		}
	}
	if len(errs) > 0 {
		return errors.New("invalid config: " + strings.Join(errs, "; "))
	}
	return nil
}

// RetryPolicy returns the configured compare-and-swap bounds.
func (c Config) RetryPolicy() engagement.RetryPolicy {
	def := engagement.DefaultRetryPolicy()
	p := engagement.RetryPolicy{
		MaxAttempts: c.Progression.MaxCASAttempts,
		BaseDelay:   parseDuration(c.Progression.CASBaseDelay, def.BaseDelay),
		MaxDelay:    parseDuration(c.Progression.CASMaxDelay, def.MaxDelay),
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// NotificationPolicy returns the configured notification limits.
func (c Config) NotificationPolicy() domain.NotificationPolicy {
	return domain.NotificationPolicy{
		MaxPerDay:  c.Notifications.MaxPerDay,
		QuietStart: c.Notifications.QuietStart,
		QuietEnd:   c.Notifications.QuietEnd,
	}
}

// DataDir returns the storage directory, defaulting to the questforge home.
func (c Config) DataDir() string {
	if c.Storage.Dir != "" {
		return c.Storage.Dir
	}
	return questforgeHome()
}

// LoadConfig reads config from ~/.questforge/config.toml, falling back to defaults.
func LoadConfig() (Config, error) {
	return LoadConfigFile(ConfigPath())
}

// LoadConfigFile reads config from path. A missing file yields the defaults.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil // No config file yet, use defaults
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// SaveConfig writes the config to ~/.questforge/config.toml.
func SaveConfig(cfg Config) error {
	return SaveConfigFile(ConfigPath(), cfg)
}

// SaveConfigFile writes the config to path.
func SaveConfigFile(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// ConfigPath returns the default config file location.
func ConfigPath() string {
	return filepath.Join(questforgeHome(), "config.toml")
}

// questforgeHome returns the questforge data directory.
func questforgeHome() string {
	if env := os.Getenv("QUESTFORGE_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".questforge")
}

// Home is exported for use by other packages.
func Home() string {
	return questforgeHome()
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
