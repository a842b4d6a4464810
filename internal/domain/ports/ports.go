// Package ports declares the storage capabilities the intake engine depends on.
// Adapters in internal/adapters/repository implement them.
package ports

import (
	"context"
	"time"

	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/model"
)

// Lookup finds active (non-superseded) records by normalized key.
type Lookup interface {
	FindByEmail(ctx context.Context, email string) ([]model.AttendeeRecord, error)
	FindByPhone(ctx context.Context, phone string) ([]model.AttendeeRecord, error)
}

// Tx is a unit of work over records, review items and the event outbox.
// Everything done through a Tx becomes visible atomically when RunInTx
// returns nil, and not at all otherwise.
type Tx interface {
	Lookup

	// LockKey serializes transactions that touch the same natural key until
	// the transaction ends.
	LockKey(ctx context.Context, key string) error

	GetRecord(ctx context.Context, id string) (model.AttendeeRecord, error)
	// InsertRecord fails with model.ErrAlreadyExists when an active,
	// non-override record already holds the same non-empty email.
	InsertRecord(ctx context.Context, rec model.AttendeeRecord) error
	// RetireRecord marks an active record superseded.
	RetireRecord(ctx context.Context, id, supersededBy string, at time.Time) error

	InsertReview(ctx context.Context, item model.ReviewItem) error
	// GetReview reads an item and holds it for the rest of the transaction.
	GetReview(ctx context.Context, id string) (model.ReviewItem, error)
	// ResolveReview applies a terminal status to a PENDING item and fails
	// with *model.StaleResolutionError otherwise.
	ResolveReview(ctx context.Context, id string, res model.Resolution) error

	AppendEvent(ctx context.Context, ev model.DomainEvent) error
}

// TxRunner runs fn inside a transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Reader serves read-only queries outside of transactions.
type Reader interface {
	GetRecord(ctx context.Context, id string) (model.AttendeeRecord, error)
	GetReview(ctx context.Context, id string) (model.ReviewItem, error)
	ListActive(ctx context.Context) ([]model.AttendeeRecord, error)
	ListReviews(ctx context.Context, filter model.ReviewFilter) ([]model.ReviewItem, error)
	CountReviews(ctx context.Context, status model.ReviewStatus) (map[model.IssueType]int, error)
}

// Outbox exposes undelivered domain events to the relay.
type Outbox interface {
	PendingEvents(ctx context.Context, limit int) ([]model.DomainEvent, error)
	MarkDispatched(ctx context.Context, ids ...string) error
}

// Store is the complete persistence capability.
type Store interface {
	TxRunner
	Reader
	Outbox
	Close() error
}
