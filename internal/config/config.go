// Package config loads habitsync settings from a YAML file and HABITSYNC_*
// environment variables. Environment values override the file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/habitsync/internal/model"
	"github.com/roach88/habitsync/internal/store"
	"github.com/roach88/habitsync/internal/syncer"
)

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// Config holds every tunable of the CLI and server.
type Config struct {
	User        string `yaml:"user"`
	Backend     string `yaml:"backend"`
	Database    string `yaml:"database"`
	QuotaBytes  int    `yaml:"quota_bytes"`
	JournalKeep int    `yaml:"journal_keep"`

	MinScore float64 `yaml:"min_score"`
	MaxScore float64 `yaml:"max_score"`

	MaxRetries   int           `yaml:"max_retries"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	SyncInterval time.Duration `yaml:"sync_interval"`

	RemoteURL   string `yaml:"remote_url"`
	RemoteToken string `yaml:"remote_token"`
	RedisURL    string `yaml:"redis_url"`
	Listen      string `yaml:"listen"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		User:         "default",
		Backend:      BackendSQLite,
		Database:     "habitsync.db",
		QuotaBytes:   5 << 20,
		JournalKeep:  store.DefaultJournalKeep,
		MinScore:     model.MinScore,
		MaxScore:     model.MaxScore,
		MaxRetries:   syncer.DefaultMaxRetries,
		RetryDelay:   syncer.DefaultRetryDelay,
		SyncInterval: syncer.DefaultSyncInterval,
		Listen:       ":8787",
	}
}

// Load reads path over the defaults, then applies environment overrides.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.User = getenv("HABITSYNC_USER", c.User)
	c.Backend = getenv("HABITSYNC_BACKEND", c.Backend)
	c.Database = getenv("HABITSYNC_DATABASE", c.Database)
	c.QuotaBytes = getenvInt("HABITSYNC_QUOTA_BYTES", c.QuotaBytes)
	c.JournalKeep = getenvInt("HABITSYNC_JOURNAL_KEEP", c.JournalKeep)
	c.MinScore = getenvFloat("HABITSYNC_MIN_SCORE", c.MinScore)
	c.MaxScore = getenvFloat("HABITSYNC_MAX_SCORE", c.MaxScore)
	c.MaxRetries = getenvInt("HABITSYNC_MAX_RETRIES", c.MaxRetries)
	c.RetryDelay = getenvDuration("HABITSYNC_RETRY_DELAY", c.RetryDelay)
	c.SyncInterval = getenvDuration("HABITSYNC_SYNC_INTERVAL", c.SyncInterval)
	c.RemoteURL = getenv("HABITSYNC_REMOTE_URL", c.RemoteURL)
	c.RemoteToken = getenv("HABITSYNC_REMOTE_TOKEN", c.RemoteToken)
	c.RedisURL = getenv("HABITSYNC_REDIS_URL", c.RedisURL)
	c.Listen = getenv("HABITSYNC_LISTEN", c.Listen)
}

// Validate reports every setting that is out of range.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.User) == "" {
		errs = append(errs, errors.New("user is required"))
	}
	switch c.Backend {
	case BackendSQLite, BackendBadger:
		if c.Database == "" {
			errs = append(errs, fmt.Errorf("database path is required for the %s backend", c.Backend))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	if c.QuotaBytes < 0 {
		errs = append(errs, errors.New("quota_bytes must not be negative"))
	}
	if c.JournalKeep <= 0 {
		errs = append(errs, errors.New("journal_keep must be positive"))
	}
	if c.MinScore >= c.MaxScore {
		errs = append(errs, fmt.Errorf("min_score %v must be below max_score %v", c.MinScore, c.MaxScore))
	}
	if c.MaxRetries <= 0 {
		errs = append(errs, errors.New("max_retries must be positive"))
	}
	if c.RetryDelay <= 0 {
		errs = append(errs, errors.New("retry_delay must be positive"))
	}
	if c.SyncInterval <= 0 {
		errs = append(errs, errors.New("sync_interval must be positive"))
	}
	if c.RemoteURL != "" && c.RedisURL != "" {
		errs = append(errs, errors.New("remote_url and redis_url are mutually exclusive"))
	}
	return errors.Join(errs...)
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
