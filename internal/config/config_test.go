package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "habitsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.RetryDelay)
	assert.Equal(t, time.Minute, cfg.SyncInterval)
	assert.Equal(t, 1000, cfg.JournalKeep)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
user: alice
backend: badger
database: /var/lib/habitsync
retry_delay: 500ms
sync_interval: 5m
max_score: 20
redis_url: redis://localhost:6379/0
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "alice", cfg.User)
	assert.Equal(t, BackendBadger, cfg.Backend)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryDelay)
	assert.Equal(t, 5*time.Minute, cfg.SyncInterval)
	assert.Equal(t, 20.0, cfg.MaxScore)
	assert.Equal(t, 0.0, cfg.MinScore, "unset keys keep their defaults")
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	_, err := Load(writeConfig(t, "user: alice\nmax_retry: 3\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_retry")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "user: alice\nmax_retries: 3\n")
	t.Setenv("HABITSYNC_USER", "bob")
	t.Setenv("HABITSYNC_MAX_RETRIES", "9")
	t.Setenv("HABITSYNC_RETRY_DELAY", "250ms")
	t.Setenv("HABITSYNC_MIN_SCORE", "1.5")
	t.Setenv("HABITSYNC_QUOTA_BYTES", "not-a-number")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "bob", cfg.User)
	assert.Equal(t, 9, cfg.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryDelay)
	assert.Equal(t, 1.5, cfg.MinScore)
	assert.Equal(t, Default().QuotaBytes, cfg.QuotaBytes, "unparseable values fall back")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"blank user", func(c *Config) { c.User = " " }, "user is required"},
		{"unknown backend", func(c *Config) { c.Backend = "etcd" }, "unknown backend"},
		{"sqlite without path", func(c *Config) { c.Database = "" }, "database path"},
		{"inverted bounds", func(c *Config) { c.MinScore = 10 }, "min_score"},
		{"zero retries", func(c *Config) { c.MaxRetries = 0 }, "max_retries"},
		{"zero keep", func(c *Config) { c.JournalKeep = 0 }, "journal_keep"},
		{"two remotes", func(c *Config) { c.RemoteURL = "http://x"; c.RedisURL = "redis://y" }, "mutually exclusive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	mem := Default()
	mem.Backend = BackendMemory
	mem.Database = ""
	assert.NoError(t, mem.Validate())
}
