package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Addr string `env:"KKUKO_ADDR" envDefault:"127.0.0.1:27893"`

	StoreDriver string `env:"KKUKO_STORE_DRIVER" envDefault:"sqlite"`
	SQLitePath  string `env:"KKUKO_SQLITE_PATH" envDefault:"kkuko.db"`
	DatabaseURL string `env:"DATABASE_URL"`

	PresenceEnabled bool          `env:"KKUKO_PRESENCE_ENABLED" envDefault:"true"`
	DiscordAppID    string        `env:"KKUKO_DISCORD_APP_ID" envDefault:"1396442355976110121"`
	PresenceRetry   time.Duration `env:"KKUKO_PRESENCE_RETRY" envDefault:"2m"`

	LogLevel string `env:"KKUKO_LOG_LEVEL" envDefault:"info"`
	LogDev   bool   `env:"KKUKO_LOG_DEV" envDefault:"false"`
}

// Load reads an optional .env file, then the environment. Variables already
// set win over the file.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		// a missing .env is normal
		_ = godotenv.Load(f)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("%w: KKUKO_ADDR is empty", ErrInvalid)
	}
	switch c.StoreDriver {
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("%w: KKUKO_SQLITE_PATH is empty", ErrInvalid)
		}
	case DriverPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("%w: DATABASE_URL is required for the postgres store", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown store driver %q", ErrInvalid, c.StoreDriver)
	}
	if c.PresenceEnabled && c.PresenceRetry <= 0 {
		return fmt.Errorf("%w: KKUKO_PRESENCE_RETRY must be positive", ErrInvalid)
	}
	return nil
}
