package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full keeper configuration.
type Config struct {
	Keeper   KeeperConfig   `yaml:"keeper"`
	Refresh  RefreshConfig  `yaml:"refresh"`
	Closeout CloseoutConfig `yaml:"closeout"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
}

// KeeperConfig controls the poll loop.
type KeeperConfig struct {
	IntervalSeconds int    `yaml:"interval_seconds"`
	OwnerID         string `yaml:"owner_id"`
}

// RefreshConfig controls the bulk refresh throttle.
type RefreshConfig struct {
	CooldownSeconds int `yaml:"cooldown_seconds"`
}

// CloseoutConfig controls close-order execution.
type CloseoutConfig struct {
	MaxAttempts          int `yaml:"max_attempts"`
	RetryBackoffSeconds  int `yaml:"retry_backoff_seconds"`
	ExecTimeoutSeconds   int `yaml:"exec_timeout_seconds"`
	FailedRetentionHours int `yaml:"failed_retention_hours"`
}

// StorageConfig controls where data is persisted.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // path to the SQLite file, or ":memory:"
}

// LogConfig controls logging format and level.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML config file and the .env file if present. Env values
// override YAML for the keys they cover. A missing config file yields the
// defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	case os.IsNotExist(err):
		// defaults only
	default:
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// PollInterval returns the keeper loop interval as a time.Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Keeper.IntervalSeconds) * time.Second
}

// RefreshCooldown returns the bulk refresh cooldown as a time.Duration.
func (c *Config) RefreshCooldown() time.Duration {
	return time.Duration(c.Refresh.CooldownSeconds) * time.Second
}

// FailedRetention returns how long failed order tombstones are kept.
func (c *Config) FailedRetention() time.Duration {
	return time.Duration(c.Closeout.FailedRetentionHours) * time.Hour
}

// applyEnvOverrides overrides config values with env vars when present.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("OWNER_ID"); v != "" {
		cfg.Keeper.OwnerID = v
	}
	if v := os.Getenv("POLL_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Keeper.IntervalSeconds = n
		}
	}
}

// setDefaults fills required values that were left unset.
func setDefaults(cfg *Config) {
	if cfg.Keeper.IntervalSeconds <= 0 {
		cfg.Keeper.IntervalSeconds = 60
	}
	if cfg.Refresh.CooldownSeconds <= 0 {
		cfg.Refresh.CooldownSeconds = 60
	}
	if cfg.Closeout.MaxAttempts <= 0 {
		cfg.Closeout.MaxAttempts = 5
	}
	if cfg.Closeout.RetryBackoffSeconds <= 0 {
		cfg.Closeout.RetryBackoffSeconds = 30
	}
	if cfg.Closeout.ExecTimeoutSeconds <= 0 {
		cfg.Closeout.ExecTimeoutSeconds = 20
	}
	if cfg.Closeout.FailedRetentionHours <= 0 {
		cfg.Closeout.FailedRetentionHours = 168
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "lpkeeper.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
