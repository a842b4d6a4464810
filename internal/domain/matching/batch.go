package matching

import (
	"context"
	"errors"
	"sync"

	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/model"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/ports"
)

// BatchIndex remembers the records accepted earlier in one import batch so
// later rows in the same file match against them.
type BatchIndex struct {
	mu      sync.RWMutex
	byEmail map[string][]model.AttendeeRecord
	byPhone map[string][]model.AttendeeRecord
}

// NewBatchIndex returns an empty index.
func NewBatchIndex() *BatchIndex {
	return &BatchIndex{
		byEmail: make(map[string][]model.AttendeeRecord),
		byPhone: make(map[string][]model.AttendeeRecord),
	}
}

// Add records a committed row.
func (b *BatchIndex) Add(rec model.AttendeeRecord) { //nolint:gocritic // stored by value
	b.mu.Lock()
	defer b.mu.Unlock()
	if rec.Email != "" {
		b.byEmail[rec.Email] = append(b.byEmail[rec.Email], rec.Clone())
	}
	if rec.PhoneNumber != "" {
		b.byPhone[rec.PhoneNumber] = append(b.byPhone[rec.PhoneNumber], rec.Clone())
	}
}

// Len returns the number of distinct emails indexed.
func (b *BatchIndex) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byEmail)
}

// Over layers the batch on top of base.
func (b *BatchIndex) Over(base ports.Lookup) ports.Lookup {
	return &overlay{batch: b, base: base}
}

type recordGetter interface {
	GetRecord(ctx context.Context, id string) (model.AttendeeRecord, error)
}

type overlay struct {
	batch *BatchIndex
	base  ports.Lookup
}

func (o *overlay) FindByEmail(ctx context.Context, email string) ([]model.AttendeeRecord, error) {
	recs, err := o.base.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	o.batch.mu.RLock()
	extra := append([]model.AttendeeRecord(nil), o.batch.byEmail[email]...)
	o.batch.mu.RUnlock()
	return o.merge(ctx, recs, extra)
}

func (o *overlay) FindByPhone(ctx context.Context, phone string) ([]model.AttendeeRecord, error) {
	recs, err := o.base.FindByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	o.batch.mu.RLock()
	extra := append([]model.AttendeeRecord(nil), o.batch.byPhone[phone]...)
	o.batch.mu.RUnlock()
	return o.merge(ctx, recs, extra)
}

// merge adds batch records the base did not return. When the base can read
// records by id, batch entries retired since they were accepted are dropped.
func (o *overlay) merge(ctx context.Context, recs, extra []model.AttendeeRecord) ([]model.AttendeeRecord, error) {
	seen := make(map[string]struct{}, len(recs))
	for i := range recs {
		seen[recs[i].ID] = struct{}{}
	}
	getter, canVerify := o.base.(recordGetter)
	for i := range extra {
		r := extra[i]
		if _, dup := seen[r.ID]; dup {
			continue
		}
		if canVerify {
			cur, err := getter.GetRecord(ctx, r.ID)
			switch {
			case errors.Is(err, model.ErrNotFound):
				continue
			case err != nil:
				return nil, err
			case !cur.Active():
				continue
			}
			r = cur
		}
		seen[r.ID] = struct{}{}
		recs = append(recs, r)
	}
	return recs, nil
}
