package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"dropvault"`
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	StoreDriver string `env:"DROP_STORE_DRIVER" envDefault:"sqlite"`
	PostgresDSN string `env:"POSTGRES_DSN"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"data/drops.db"`
	AutoMigrate bool   `env:"DROP_AUTO_MIGRATE" envDefault:"true"`

	VerificationMarker string        `env:"DROP_VERIFICATION_MARKER" envDefault:"tornettlogs.cc uhq logs"`
	CalendarTimezone   string        `env:"DROP_CALENDAR_TIMEZONE" envDefault:"UTC"`
	StoreTimeout       time.Duration `env:"DROP_STORE_TIMEOUT" envDefault:"5s"`

	GatewayRatePerSecond float64 `env:"DROP_GATEWAY_RATE_PER_SECOND" envDefault:"1"`
	GatewayBurst         int     `env:"DROP_GATEWAY_BURST" envDefault:"5"`

	RedisAddr       string        `env:"REDIS_ADDR"`
	RedisPassword   string        `env:"REDIS_PASSWORD"`
	RedisDB         int           `env:"REDIS_DB" envDefault:"0"`
	EventTopic      string        `env:"DROP_EVENT_TOPIC" envDefault:"drop.allocated"`
	OutboxBatchSize int           `env:"DROP_OUTBOX_BATCH_SIZE" envDefault:"100"`
	OutboxPollEvery time.Duration `env:"DROP_OUTBOX_POLL_INTERVAL" envDefault:"2s"`
	OTelEndpoint    string        `env:"OTEL_EXPORTER_ENDPOINT"`
	OTelEnabled     bool          `env:"OTEL_ENABLED" envDefault:"true"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.StoreDriver {
	case StoreMemory:
	case StorePostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return errors.New("POSTGRES_DSN is required for the postgres store")
		}
	case StoreSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return errors.New("SQLITE_PATH is required for the sqlite store")
		}
	default:
		return fmt.Errorf("unsupported DROP_STORE_DRIVER %q", c.StoreDriver)
	}
	if strings.TrimSpace(c.VerificationMarker) == "" {
		return errors.New("DROP_VERIFICATION_MARKER must not be blank")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.StoreTimeout <= 0 {
		return errors.New("DROP_STORE_TIMEOUT must be positive")
	}
	if c.GatewayRatePerSecond <= 0 || c.GatewayBurst <= 0 {
		return errors.New("gateway rate and burst must be positive")
	}
	return nil
}

// Location resolves the zone that defines an allocation calendar day.
func (c Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.CalendarTimezone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load DROP_CALENDAR_TIMEZONE %q: %w", name, err)
	}
	return loc, nil
}
