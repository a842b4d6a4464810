// Package config defines service configuration structures and loading hooks.
package config

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

// Store drivers accepted by StoreDriver.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// StoreDriver picks the record store: memory, postgres or sqlite.
	StoreDriver string `koanf:"store_driver"`

	// StoreDSN is the Postgres URL or the SQLite file path.
	StoreDSN string `koanf:"store_dsn"`

	// StoreMaxConns caps the Postgres pool.
	StoreMaxConns int `koanf:"store_max_conns"`

	// StoreMigrate applies pending migrations on startup.
	StoreMigrate bool `koanf:"store_migrate"`

	// ImportQueueSize bounds the number of async import jobs waiting.
	ImportQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of import workers.
	WorkerCount int `koanf:"worker_count"`

	// JobRetention caps how many finished import jobs stay queryable.
	JobRetention int `koanf:"job_retention"`

	// DedupeSize sets the size of the in-memory idempotency cache.
	DedupeSize int `koanf:"dedupe_size"`

	// IdempotencyTTL is how long an Idempotency-Key is remembered.
	IdempotencyTTL time.Duration `koanf:"idempotency_ttl"`

	// RedisURL, when set, keeps idempotency keys in Redis instead of memory.
	RedisURL string `koanf:"redis_url"`

	// NATSURL, when set, publishes domain events to NATS instead of the log.
	NATSURL string `koanf:"nats_url"`

	// NATSSubjectPrefix prefixes event subjects: <prefix>.<event type>.
	NATSSubjectPrefix string `koanf:"nats_subject_prefix"`

	// RelayInterval is how often the outbox is polled.
	RelayInterval time.Duration `koanf:"relay_interval"`

	// TracingExporter sends spans nowhere (none), to stderr (stdout) or to an
	// OTLP/HTTP collector (otlp).
	TracingExporter string `koanf:"tracing_exporter"`

	// TracingEndpoint is the collector URL for the otlp exporter.
	TracingEndpoint string `koanf:"tracing_endpoint"`

	// TracingSampleRatio is the fraction of root traces kept, 0 to 1.
	TracingSampleRatio float64 `koanf:"tracing_sample_ratio"`
}

// New creates a Config with defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		Addr:               ":9080",
		StoreDriver:        DriverMemory,
		StoreMaxConns:      16,
		StoreMigrate:       true,
		ImportQueueSize:    64,
		WorkerCount:        runtime.NumCPU(),
		JobRetention:       1000,
		DedupeSize:         50_000,
		IdempotencyTTL:     24 * time.Hour,
		NATSSubjectPrefix:  "attendees",
		RelayInterval:      500 * time.Millisecond,
		TracingExporter:    "none",
		TracingSampleRatio: 1,
	}
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("%w: log_format must be text or json, got %q", ErrInvalidConfig, c.LogFormat)
	case c.ImportQueueSize < 1:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.WorkerCount < 1:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.JobRetention < 1:
		return fmt.Errorf("%w: job_retention must be positive", ErrInvalidConfig)
	case c.DedupeSize < 1:
		return fmt.Errorf("%w: dedupe_size must be positive", ErrInvalidConfig)
	case c.IdempotencyTTL <= 0:
		return fmt.Errorf("%w: idempotency_ttl must be positive", ErrInvalidConfig)
	case c.RelayInterval <= 0:
		return fmt.Errorf("%w: relay_interval must be positive", ErrInvalidConfig)
	}

	switch c.StoreDriver {
	case DriverMemory:
	case DriverPostgres, DriverSQLite:
		if c.StoreDSN == "" {
			return fmt.Errorf("%w: store_dsn is required for the %s driver", ErrInvalidConfig, c.StoreDriver)
		}
	default:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}
	if c.StoreMaxConns < 1 {
		return fmt.Errorf("%w: store_max_conns must be positive", ErrInvalidConfig)
	}

	switch c.TracingExporter {
	case "none", "stdout":
	case "otlp":
		if c.TracingEndpoint == "" {
			return fmt.Errorf("%w: tracing_endpoint is required for the otlp exporter", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown tracing_exporter %q", ErrInvalidConfig, c.TracingExporter)
	}
	if c.TracingSampleRatio < 0 || c.TracingSampleRatio > 1 {
		return fmt.Errorf("%w: tracing_sample_ratio must be between 0 and 1", ErrInvalidConfig)
	}
	return nil
}
