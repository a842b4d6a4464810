package repository

import (
	"time"

	"github.com/Thiri06/Contact-Info-Capture-Agent/pkg/logger"
)

const (
	defaultMetricsInterval = 5 * time.Second
	defaultMaxConns        = 10
	defaultBusyTimeout     = 5 * time.Second
)

type settings struct {
	metricsInterval time.Duration
	maxConns        int32
	busyTimeout     time.Duration
	migrate         bool
	logger          logger.Logger
}

// Option configures a store.
type Option func(*settings)

// WithMetricsUpdateInterval sets how often gauges are refreshed from the store.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *settings) {
		if interval > 0 {
			s.metricsInterval = interval
		}
	}
}

// WithMaxConns caps the Postgres pool size.
func WithMaxConns(n int32) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxConns = n
		}
	}
}

// WithBusyTimeout sets how long SQLite waits on a locked database.
func WithBusyTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.busyTimeout = d
		}
	}
}

// WithMigrate applies schema migrations when the store opens.
func WithMigrate(enabled bool) Option {
	return func(s *settings) { s.migrate = enabled }
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

func newSettings(opts []Option) settings {
	s := settings{
		metricsInterval: defaultMetricsInterval,
		maxConns:        defaultMaxConns,
		busyTimeout:     defaultBusyTimeout,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("repository")
	}
	return s
}
