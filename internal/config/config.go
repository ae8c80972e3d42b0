package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/punchamoorthee/coopledger/internal/store"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Env  string `envconfig:"ENVIRONMENT" default:"development"`
	Port string `envconfig:"SERVER_PORT" default:"8080"`

	StoreDriver string `envconfig:"STORE_DRIVER" default:"postgres"`
	DBSource    string `envconfig:"DB_SOURCE"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"coopledger.db"`
	DBMaxConns  int32  `envconfig:"DB_MAX_CONNS" default:"20"`
	AutoMigrate bool   `envconfig:"AUTO_MIGRATE" default:"true"`

	// RedisAddr is optional for the API; without it statements are not cached and integrity
	// runs cannot be queued.
	RedisAddr         string        `envconfig:"REDIS_ADDR"`
	StatementCacheTTL time.Duration `envconfig:"STATEMENT_CACHE_TTL" default:"5m"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	ReadTimeout        time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout       time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"15s"`
	RateLimitPerMinute int           `envconfig:"RATE_LIMIT_PER_MINUTE" default:"600"`

	IntegrityCron string `envconfig:"INTEGRITY_CRON" default:"0 2 * * *"`
}

// Load reads an optional .env file, then the environment. Variables already set win over the file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DBSource == "" {
			return errors.New("config: DB_SOURCE environment variable is required for the postgres store")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return errors.New("config: SQLITE_PATH must not be empty")
		}
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.DBMaxConns <= 0 {
		return errors.New("config: DB_MAX_CONNS must be positive")
	}
	if c.RateLimitPerMinute < 0 {
		return errors.New("config: RATE_LIMIT_PER_MINUTE must not be negative")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c != nil && c.Env == "production"
}

// OpenStore connects the configured ledger store and applies the schema when AutoMigrate is set.
func (c *Config) OpenStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch c.StoreDriver {
	case DriverSQLite:
		st, err = store.OpenSQLite(ctx, c.SQLitePath)
	default:
		st, err = store.NewPostgresStore(ctx, c.DBSource, c.DBMaxConns)
	}
	if err != nil {
		return nil, err
	}
	if c.AutoMigrate {
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return st, nil
}
