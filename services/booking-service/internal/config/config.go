// Package config is the booking-service configuration.
package config

import (
	"errors"
	"fmt"
	"time"

	libconfig "github.com/apptbook/platform/libs/config"
	otelx "github.com/apptbook/platform/libs/otel"
	"github.com/apptbook/platform/services/booking-service/internal/booking"
)

type Config struct {
	ServiceName string `mapstructure:"SERVICE_NAME"`
	Port        string `mapstructure:"PORT"`
	GRPCPort    string `mapstructure:"GRPC_PORT"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	RedisURL           string        `mapstructure:"REDIS_URL"`
	KafkaBrokers       string        `mapstructure:"KAFKA_BROKERS"`
	OutboxPollInterval time.Duration `mapstructure:"OUTBOX_POLL_INTERVAL"`
	OutboxBatchSize    int           `mapstructure:"OUTBOX_BATCH_SIZE"`

	JWTSecret    string `mapstructure:"JWT_SECRET"`
	JWTIssuer    string `mapstructure:"JWT_ISSUER"`
	AuthDisabled bool   `mapstructure:"AUTH_DISABLED"`

	Timezone                string        `mapstructure:"TIMEZONE"`
	MinBookingAdvanceHours  int           `mapstructure:"MIN_BOOKING_ADVANCE_HOURS"`
	MinCancellationHours    int           `mapstructure:"MIN_CANCELLATION_HOURS"`
	PastGraceMinutes        int           `mapstructure:"PAST_GRACE_MINUTES"`
	SlotGranularityMinutes  int           `mapstructure:"SLOT_GRANULARITY_MINUTES"`
	ScheduleBlocksEnabled   bool          `mapstructure:"SCHEDULE_BLOCKS_ENABLED"`
	StrictStatusTransitions bool          `mapstructure:"STRICT_STATUS_TRANSITIONS"`
	RateLimitPerMinute      int           `mapstructure:"RATE_LIMIT_PER_MINUTE"`
	CatalogCacheTTL         time.Duration `mapstructure:"CATALOG_CACHE_TTL"`

	Otel otelx.Config `mapstructure:",squash"`
}

var defaults = map[string]any{
	"SERVICE_NAME":                "booking-service",
	"PORT":                        "8083",
	"GRPC_PORT":                   "9083",
	"LOG_LEVEL":                   "info",
	"DATABASE_URL":                "",
	"DB_MAX_CONNS":                10,
	"DB_MIN_CONNS":                1,
	"REDIS_URL":                   "",
	"KAFKA_BROKERS":               "",
	"OUTBOX_POLL_INTERVAL":        "2s",
	"OUTBOX_BATCH_SIZE":           50,
	"JWT_SECRET":                  "",
	"JWT_ISSUER":                  "",
	"AUTH_DISABLED":               false,
	"TIMEZONE":                    "Local",
	"MIN_BOOKING_ADVANCE_HOURS":   1,
	"MIN_CANCELLATION_HOURS":      2,
	"PAST_GRACE_MINUTES":          5,
	"SLOT_GRANULARITY_MINUTES":    15,
	"SCHEDULE_BLOCKS_ENABLED":     false,
	"STRICT_STATUS_TRANSITIONS":   false,
	"RATE_LIMIT_PER_MINUTE":       120,
	"CATALOG_CACHE_TTL":           "30s",
	"OTEL_ENABLED":                false,
	"OTEL_EXPORTER_OTLP_ENDPOINT": "localhost:4317",
	"OTEL_SAMPLING_RATIO":         1.0,
}

func Load() (Config, error) {
	var cfg Config
	if err := libconfig.Load(&cfg, defaults); err != nil {
		return Config{}, err
	}
	cfg.Otel.ServiceName = cfg.ServiceName
	return cfg, nil
}

// Validate checks what serve needs. migrate only needs DATABASE_URL.
func (c Config) Validate() error {
	errs := []error{
		libconfig.Required("DATABASE_URL", c.DatabaseURL),
		libconfig.Port("PORT", c.Port),
	}
	if c.GRPCPort != "" {
		errs = append(errs, libconfig.Port("GRPC_PORT", c.GRPCPort))
	}
	if !c.AuthDisabled {
		errs = append(errs, libconfig.Required("JWT_SECRET", c.JWTSecret))
	}
	if c.MinBookingAdvanceHours < 0 {
		errs = append(errs, fmt.Errorf("MIN_BOOKING_ADVANCE_HOURS must not be negative"))
	}
	if c.SlotGranularityMinutes <= 0 {
		errs = append(errs, fmt.Errorf("SLOT_GRANULARITY_MINUTES must be positive"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Location is the single timezone all wall-clock times are interpreted in.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c Config) Policy() booking.Policy {
	return booking.Policy{
		MinAdvanceHours:      c.MinBookingAdvanceHours,
		MinCancellationHours: c.MinCancellationHours,
		PastGrace:            time.Duration(c.PastGraceMinutes) * time.Minute,
	}
}

func (c Config) SlotGranularity() time.Duration {
	return time.Duration(c.SlotGranularityMinutes) * time.Minute
}
