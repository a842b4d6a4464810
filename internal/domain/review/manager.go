package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/matching"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/model"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/normalize"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/ports"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/validation"
	"github.com/Thiri06/Contact-Info-Capture-Agent/pkg/logger"
	"github.com/Thiri06/Contact-Info-Capture-Agent/pkg/metrics"
)

const tracerName = "github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/review"

// maxChain bounds how far a merge follows superseded-by references.
const maxChain = 16

// Outcome is the effect of a successful transition.
type Outcome struct {
	Item model.ReviewItem `json:"item"`
	// Record is the committed or merged record, nil for reject.
	Record *model.AttendeeRecord `json:"record,omitempty"`
	// SupersededID is the record retired by a merge.
	SupersededID string `json:"supersededId,omitempty"`
}

// Manager applies resolutions. Each transition runs in a single store
// transaction: status change, record mutation and event are all or nothing.
type Manager struct {
	store  ports.TxRunner
	newID  func() string
	now    func() time.Time
	logger logger.Logger
	tracer trace.Tracer
}

// Option configures a Manager.
type Option func(*Manager)

// WithIDGenerator replaces the id generator.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// WithClock replaces the time source.
func WithClock(fn func() time.Time) Option {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// WithTracerProvider records spans on tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(m *Manager) {
		if tp != nil {
			m.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager builds a manager over store.
func NewManager(store ports.TxRunner, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		newID:  model.NewID,
		now:    time.Now,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logger.Get().Named("review")
	}
	return m
}

type applyFunc func(ctx context.Context, tx ports.Tx, item *model.ReviewItem, out *Outcome) error

// Approve commits the candidate as a new record, overriding the duplicate
// check. Corrections, when given, are applied and re-validated first.
func (m *Manager) Approve(ctx context.Context, id, actor string, corrections model.Corrections) (Outcome, error) {
	return m.transition(ctx, ActionApprove, id, func(ctx context.Context, tx ports.Tx, item *model.ReviewItem, out *Outcome) error {
		cand := item.Candidate
		if len(corrections) > 0 {
			cand = corrections.Apply(cand)
		}
		cand = normalize.Record(cand)
		if err := validation.Check(&cand).Err(); err != nil {
			return err
		}
		for _, key := range matching.LockKeys(&cand) {
			if err := tx.LockKey(ctx, key); err != nil {
				return err
			}
		}

		now := m.now().UTC()
		rec := cand.Clone()
		rec.ID = m.newID()
		rec.Timestamp = now
		rec.DuplicateOverride = true
		rec.OriginReviewID = item.ID
		if err := tx.InsertRecord(ctx, rec); err != nil {
			return err
		}
		if err := m.resolve(ctx, tx, item, out, ActionApprove, actor, now, rec.ID); err != nil {
			return err
		}
		out.Record = &rec
		return m.emit(ctx, tx, model.EventRecordCommitted, rec.ID, now, model.RecordCommittedPayload{Record: rec, ReviewItemID: item.ID})
	})
}

// Reject discards the candidate. Nothing is committed and any matched
// record is left untouched.
func (m *Manager) Reject(ctx context.Context, id, actor string) (Outcome, error) {
	return m.transition(ctx, ActionReject, id, func(ctx context.Context, tx ports.Tx, item *model.ReviewItem, out *Outcome) error {
		now := m.now().UTC()
		if err := m.resolve(ctx, tx, item, out, ActionReject, actor, now, ""); err != nil {
			return err
		}
		return m.emit(ctx, tx, model.EventRecordDiscarded, item.ID, now, model.RecordDiscardedPayload{ReviewItemID: item.ID, Candidate: item.Candidate})
	})
}

// Merge folds the candidate into its suggested match. The active head of the
// match's supersession chain is retired and replaced by the merged record.
func (m *Manager) Merge(ctx context.Context, id, actor string) (Outcome, error) {
	return m.transition(ctx, ActionMerge, id, func(ctx context.Context, tx ports.Tx, item *model.ReviewItem, out *Outcome) error {
		head, err := lockedHead(ctx, tx, item.SuggestedMatchID)
		if err != nil {
			return err
		}
		if head.ID != item.SuggestedMatchID {
			m.logger.Info(ctx, "suggested match was superseded, merging into current record",
				logger.String("suggested", item.SuggestedMatchID),
				logger.String("current", head.ID),
			)
		}

		now := m.now().UTC()
		merged := MergeRecords(head, item.Candidate)
		merged.ID = m.newID()
		merged.Timestamp = now
		merged.OriginReviewID = item.ID

		if err := tx.RetireRecord(ctx, head.ID, merged.ID, now); err != nil {
			return err
		}
		if err := tx.InsertRecord(ctx, merged); err != nil {
			return err
		}
		if err := m.resolve(ctx, tx, item, out, ActionMerge, actor, now, merged.ID); err != nil {
			return err
		}
		out.Record = &merged
		out.SupersededID = head.ID
		return m.emit(ctx, tx, model.EventRecordMerged, merged.ID, now, model.RecordMergedPayload{
			Record:       merged,
			SupersededID: head.ID,
			ReviewItemID: item.ID,
		})
	})
}

func (m *Manager) transition(ctx context.Context, action Action, id string, apply applyFunc) (Outcome, error) {
	ctx, span := m.tracer.Start(ctx, "review."+string(action), trace.WithAttributes(attribute.String("review.item_id", id)))
	defer span.End()

	var out Outcome
	err := m.store.RunInTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		out = Outcome{}
		item, err := tx.GetReview(ctx, id)
		if err != nil {
			return err
		}
		if err := Check(&item, action); err != nil {
			return err
		}
		return apply(ctx, tx, &item, &out)
	})

	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, model.ErrStaleResolution):
		result = "stale"
	case errors.Is(err, model.ErrInvalidTransition):
		result = "invalid"
	case errors.Is(err, model.ErrValidation):
		result = "invalid"
	case errors.Is(err, model.ErrNotFound):
		result = "not_found"
	default:
		result = "error"
	}
	metrics.RecordReviewResolution(string(action), result)

	if err != nil {
		if result == "error" {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			m.logger.Error(ctx, "review transition failed", logger.String("action", string(action)), logger.String("item", id), logger.Error(err))
		}
		return Outcome{}, fmt.Errorf("%s review item %s: %w", action, id, err)
	}
	m.logger.Info(ctx, "review item resolved",
		logger.String("action", string(action)),
		logger.String("item", id),
		logger.String("status", string(out.Item.Status)),
	)
	return out, nil
}

func (m *Manager) resolve(ctx context.Context, tx ports.Tx, item *model.ReviewItem, out *Outcome, action Action, actor string, at time.Time, recordID string) error {
	res := model.Resolution{
		Status:         action.Target(),
		ResolvedBy:     actor,
		ResolvedAt:     at,
		ResultRecordID: recordID,
	}
	if err := tx.ResolveReview(ctx, item.ID, res); err != nil {
		return err
	}
	out.Item = item.Resolve(res)
	return nil
}

func (m *Manager) emit(ctx context.Context, tx ports.Tx, typ model.EventType, aggregateID string, at time.Time, payload any) error {
	ev, err := model.NewEvent(m.newID(), typ, aggregateID, at, payload)
	if err != nil {
		return err
	}
	return tx.AppendEvent(ctx, ev)
}

// lockedHead resolves the active head of id's chain and holds its key locks.
// The chain is read again once the locks are held, so a merge that committed
// while this one waited is followed rather than retired a second time.
func lockedHead(ctx context.Context, tx ports.Tx, id string) (model.AttendeeRecord, error) {
	head, err := activeHead(ctx, tx, id)
	if err != nil {
		return model.AttendeeRecord{}, err
	}
	for i := 0; i < maxChain; i++ {
		for _, key := range matching.LockKeys(&head) {
			if err := tx.LockKey(ctx, key); err != nil {
				return model.AttendeeRecord{}, err
			}
		}
		cur, err := activeHead(ctx, tx, head.ID)
		if err != nil {
			return model.AttendeeRecord{}, err
		}
		if cur.ID == head.ID {
			return cur, nil
		}
		head = cur
	}
	return model.AttendeeRecord{}, fmt.Errorf("suggested match %s: %w: head kept moving", id, model.ErrSuperseded)
}

// activeHead follows superseded-by references from id to the active record.
func activeHead(ctx context.Context, tx ports.Tx, id string) (model.AttendeeRecord, error) {
	cur := id
	for i := 0; i < maxChain; i++ {
		rec, err := tx.GetRecord(ctx, cur)
		if err != nil {
			return model.AttendeeRecord{}, fmt.Errorf("suggested match %s: %w", cur, err)
		}
		if rec.Active() {
			return rec, nil
		}
		cur = rec.SupersededBy
	}
	return model.AttendeeRecord{}, fmt.Errorf("suggested match %s: %w: supersession chain too long", id, model.ErrNotFound)
}
