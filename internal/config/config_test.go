package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noDotenv(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(noDotenv(t))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:27893", cfg.Addr)
	assert.Equal(t, DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, "kkuko.db", cfg.SQLitePath)
	assert.True(t, cfg.PresenceEnabled)
	assert.Equal(t, "1396442355976110121", cfg.DiscordAppID)
	assert.Equal(t, 2*time.Minute, cfg.PresenceRetry)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.LogDev)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KKUKO_ADDR", "127.0.0.1:9000")
	t.Setenv("KKUKO_PRESENCE_ENABLED", "false")
	t.Setenv("KKUKO_PRESENCE_RETRY", "30s")
	t.Setenv("KKUKO_LOG_LEVEL", "debug")

	cfg, err := Load(noDotenv(t))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Addr)
	assert.False(t, cfg.PresenceEnabled)
	assert.Equal(t, 30*time.Second, cfg.PresenceRetry)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadDotenvDoesNotOverrideEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("KKUKO_SQLITE_PATH=from-file.db\nKKUKO_LOG_LEVEL=warn\n"), 0o600))
	t.Setenv("KKUKO_LOG_LEVEL", "error")
	// Load sets unset keys via os.Setenv; clean up after the test
	t.Setenv("KKUKO_SQLITE_PATH", "")
	require.NoError(t, os.Unsetenv("KKUKO_SQLITE_PATH"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file.db", cfg.SQLitePath)
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestLoadParseError(t *testing.T) {
	t.Setenv("KKUKO_PRESENCE_RETRY", "soon")

	_, err := Load(noDotenv(t))
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "parse env:"), err.Error())
}

func TestValidate(t *testing.T) {
	base := Config{
		Addr:          "127.0.0.1:27893",
		StoreDriver:   DriverSQLite,
		SQLitePath:    "kkuko.db",
		PresenceRetry: time.Minute,
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Addr = " " }},
		{"unknown driver", func(c *Config) { c.StoreDriver = "mysql" }},
		{"empty sqlite path", func(c *Config) { c.SQLitePath = "" }},
		{"postgres without url", func(c *Config) { c.StoreDriver = DriverPostgres }},
		{"zero presence retry", func(c *Config) { c.PresenceEnabled = true; c.PresenceRetry = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}

	pg := base
	pg.StoreDriver = DriverPostgres
	pg.DatabaseURL = "postgres://localhost/kkuko"
	assert.NoError(t, pg.Validate())
}
