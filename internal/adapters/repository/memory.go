package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/model"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/ports"
	"github.com/Thiri06/Contact-Info-Capture-Agent/pkg/metrics"
)

// MemoryStore keeps records, review items and the outbox in process memory.
// Write transactions are serialized by one mutex, so LockKey has nothing left
// to do. Changes are staged on the transaction and applied only when the
// callback succeeds.
type MemoryStore struct {
	txMu sync.Mutex // one write transaction at a time

	mu          sync.RWMutex // guards the state below
	records     map[string]model.AttendeeRecord
	byEmail     map[string][]string
	byPhone     map[string][]string
	reviews     map[string]model.ReviewItem
	reviewOrder []string
	outbox      []outboxEntry

	settings settings
	gauges   gaugeLoop
}

type outboxEntry struct {
	event      model.DomainEvent
	dispatched bool
}

var _ ports.Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty store and starts its metrics updater.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		records:  make(map[string]model.AttendeeRecord),
		byEmail:  make(map[string][]string),
		byPhone:  make(map[string][]string),
		reviews:  make(map[string]model.ReviewItem),
		settings: newSettings(opts),
	}
	s.gauges.start(ctx, s.settings.metricsInterval, s, s.settings.logger)
	return s
}

// Close stops the background metrics goroutine.
func (s *MemoryStore) Close() error {
	s.gauges.stop()
	return nil
}

// RunInTx implements ports.TxRunner.
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx ports.Tx) error) error {
	start := time.Now()
	defer func() { metrics.RecordStoreLatency("tx", float64(time.Since(start).Milliseconds())) }()

	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &memTx{
		store:   s,
		records: make(map[string]model.AttendeeRecord),
		reviews: make(map[string]model.ReviewItem),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.apply(tx)
	return nil
}

func (s *MemoryStore) apply(tx *memTx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range tx.newRecords {
		rec := tx.records[id]
		if rec.Email != "" {
			s.byEmail[rec.Email] = append(s.byEmail[rec.Email], id)
		}
		if rec.PhoneNumber != "" {
			s.byPhone[rec.PhoneNumber] = append(s.byPhone[rec.PhoneNumber], id)
		}
	}
	for id, rec := range tx.records {
		s.records[id] = rec
	}
	s.reviewOrder = append(s.reviewOrder, tx.newReviews...)
	for id, item := range tx.reviews {
		s.reviews[id] = item
	}
	for _, ev := range tx.events {
		s.outbox = append(s.outbox, outboxEntry{event: ev})
	}
}

// GetRecord implements ports.Reader.
func (s *MemoryStore) GetRecord(_ context.Context, id string) (model.AttendeeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.AttendeeRecord{}, model.ErrNotFound
	}
	return rec.Clone(), nil
}

// GetReview implements ports.Reader.
func (s *MemoryStore) GetReview(_ context.Context, id string) (model.ReviewItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.reviews[id]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.ReviewItem{}, model.ErrNotFound
	}
	return cloneItem(&item), nil
}

// ListActive returns every non-superseded record ordered by commit time.
func (s *MemoryStore) ListActive(_ context.Context) ([]model.AttendeeRecord, error) {
	s.mu.RLock()
	out := make([]model.AttendeeRecord, 0, len(s.records))
	for _, rec := range s.records {
		if rec.Active() {
			out = append(out, rec.Clone())
		}
	}
	s.mu.RUnlock()
	sortRecords(out)
	return out, nil
}

// ListReviews returns items in creation order.
func (s *MemoryStore) ListReviews(_ context.Context, filter model.ReviewFilter) ([]model.ReviewItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ReviewItem, 0)
	for _, id := range s.reviewOrder {
		item := s.reviews[id]
		if !filter.Matches(&item) {
			continue
		}
		out = append(out, cloneItem(&item))
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// CountReviews counts items in status per issue type. An empty status counts all.
func (s *MemoryStore) CountReviews(_ context.Context, status model.ReviewStatus) (map[model.IssueType]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[model.IssueType]int)
	for _, item := range s.reviews {
		if status == "" || item.Status == status {
			out[item.IssueType]++
		}
	}
	return out, nil
}

// PendingEvents implements ports.Outbox in append order.
func (s *MemoryStore) PendingEvents(_ context.Context, limit int) ([]model.DomainEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.DomainEvent, 0)
	for i := range s.outbox {
		if s.outbox[i].dispatched {
			continue
		}
		out = append(out, s.outbox[i].event)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// MarkDispatched implements ports.Outbox. Delivered entries at the head of
// the outbox are dropped.
func (s *MemoryStore) MarkDispatched(_ context.Context, ids ...string) error {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.outbox {
		if _, ok := want[s.outbox[i].event.ID]; ok {
			s.outbox[i].dispatched = true
		}
	}
	head := 0
	for head < len(s.outbox) && s.outbox[head].dispatched {
		head++
	}
	s.outbox = append([]outboxEntry(nil), s.outbox[head:]...)
	return nil
}

func (s *MemoryStore) gaugeCounts(_ context.Context) (gaugeCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := gaugeCounts{pending: make(map[model.IssueType]int)}
	for _, rec := range s.records {
		if rec.Active() {
			c.active++
		}
	}
	for _, item := range s.reviews {
		if item.Status == model.StatusPending {
			c.pending[item.IssueType]++
		}
	}
	for i := range s.outbox {
		if !s.outbox[i].dispatched {
			c.backlog++
		}
	}
	return c, nil
}

// memTx stages writes until RunInTx commits them.
type memTx struct {
	store      *MemoryStore
	records    map[string]model.AttendeeRecord
	newRecords []string
	reviews    map[string]model.ReviewItem
	newReviews []string
	events     []model.DomainEvent
}

func (t *memTx) LockKey(ctx context.Context, _ string) error {
	return ctx.Err()
}

func (t *memTx) record(id string) (model.AttendeeRecord, bool) {
	if rec, ok := t.records[id]; ok {
		return rec, true
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	rec, ok := t.store.records[id]
	return rec, ok
}

func (t *memTx) find(index map[string][]string, key string, field model.Field) []model.AttendeeRecord {
	t.store.mu.RLock()
	ids := append([]string(nil), index[key]...)
	t.store.mu.RUnlock()
	for _, id := range t.newRecords {
		if rec := t.records[id]; rec.Get(field) == key {
			ids = append(ids, id)
		}
	}
	out := make([]model.AttendeeRecord, 0, len(ids))
	for _, id := range ids {
		rec, ok := t.record(id)
		if ok && rec.Active() {
			out = append(out, rec.Clone())
		}
	}
	return out
}

func (t *memTx) FindByEmail(ctx context.Context, email string) ([]model.AttendeeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.find(t.store.byEmail, email, model.FieldEmail), nil
}

func (t *memTx) FindByPhone(ctx context.Context, phone string) ([]model.AttendeeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.find(t.store.byPhone, phone, model.FieldPhoneNumber), nil
}

func (t *memTx) GetRecord(_ context.Context, id string) (model.AttendeeRecord, error) {
	rec, ok := t.record(id)
	if !ok {
		return model.AttendeeRecord{}, model.ErrNotFound
	}
	return rec.Clone(), nil
}

func (t *memTx) InsertRecord(ctx context.Context, rec model.AttendeeRecord) error { //nolint:gocritic // stored by value
	if _, exists := t.record(rec.ID); exists {
		return model.ErrAlreadyExists
	}
	if rec.Email != "" && !rec.DuplicateOverride && rec.Active() {
		holders, err := t.FindByEmail(ctx, rec.Email)
		if err != nil {
			return err
		}
		for i := range holders {
			if !holders[i].DuplicateOverride {
				return model.ErrAlreadyExists
			}
		}
	}
	t.records[rec.ID] = rec.Clone()
	t.newRecords = append(t.newRecords, rec.ID)
	return nil
}

func (t *memTx) RetireRecord(_ context.Context, id, supersededBy string, at time.Time) error {
	rec, ok := t.record(id)
	if !ok {
		return model.ErrNotFound
	}
	if !rec.Active() {
		return model.ErrSuperseded
	}
	rec = rec.Clone()
	at = at.UTC()
	rec.SupersededBy = supersededBy
	rec.SupersededAt = &at
	t.records[id] = rec
	return nil
}

func (t *memTx) review(id string) (model.ReviewItem, bool) {
	if item, ok := t.reviews[id]; ok {
		return item, true
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	item, ok := t.store.reviews[id]
	return item, ok
}

func (t *memTx) InsertReview(_ context.Context, item model.ReviewItem) error { //nolint:gocritic // stored by value
	if _, exists := t.review(item.ID); exists {
		return model.ErrAlreadyExists
	}
	t.reviews[item.ID] = cloneItem(&item)
	t.newReviews = append(t.newReviews, item.ID)
	return nil
}

func (t *memTx) GetReview(_ context.Context, id string) (model.ReviewItem, error) {
	item, ok := t.review(id)
	if !ok {
		return model.ReviewItem{}, model.ErrNotFound
	}
	return cloneItem(&item), nil
}

func (t *memTx) ResolveReview(_ context.Context, id string, res model.Resolution) error {
	item, ok := t.review(id)
	if !ok {
		return model.ErrNotFound
	}
	if item.Status != model.StatusPending {
		return &model.StaleResolutionError{ItemID: id, Status: item.Status}
	}
	t.reviews[id] = item.Resolve(res)
	return nil
}

func (t *memTx) AppendEvent(_ context.Context, ev model.DomainEvent) error { //nolint:gocritic // stored by value
	t.events = append(t.events, ev)
	return nil
}

func cloneItem(item *model.ReviewItem) model.ReviewItem {
	out := *item
	out.Candidate = item.Candidate.Clone()
	if item.LowFields != nil {
		out.LowFields = append([]model.Field(nil), item.LowFields...)
	}
	if item.ResolvedAt != nil {
		at := *item.ResolvedAt
		out.ResolvedAt = &at
	}
	return out
}

func sortRecords(recs []model.AttendeeRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].Timestamp.Equal(recs[j].Timestamp) {
			return recs[i].Timestamp.Before(recs[j].Timestamp)
		}
		return recs[i].ID < recs[j].ID
	})
}
