// Package repository implements the intake engine's storage ports over
// memory, PostgreSQL and SQLite.
package repository

import (
	"context"
	"fmt"

	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/ports"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open returns the store selected by driver. dsn is the Postgres URL or the
// SQLite file path and is ignored for the memory driver.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (ports.Store, error) {
	switch driver {
	case DriverMemory, "":
		return NewMemoryStore(ctx, opts...), nil
	case DriverPostgres:
		if dsn == "" {
			return nil, fmt.Errorf("%s: %w", driver, ErrMissingDSN)
		}
		return NewPostgresStore(ctx, dsn, opts...)
	case DriverSQLite:
		if dsn == "" {
			return nil, fmt.Errorf("%s: %w", driver, ErrMissingDSN)
		}
		return NewSQLiteStore(ctx, dsn, opts...)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
}
