// Package intake routes candidates either into the record store or into the
// review queue. The duplicate check and the commit run in one store
// transaction so concurrent submissions of the same email cannot both commit.
package intake

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
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/scoring"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/validation"
	"github.com/Thiri06/Contact-Info-Capture-Agent/pkg/logger"
	"github.com/Thiri06/Contact-Info-Capture-Agent/pkg/metrics"
)

const tracerName = "github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/intake"

// maxAttempts allows one retry after the store's uniqueness backstop fires.
const maxAttempts = 2

// Pipeline is the intake path shared by manual, OCR and import submissions.
type Pipeline struct {
	store     ports.TxRunner
	evaluator scoring.Evaluator
	newID     func() string
	now       func() time.Time
	logger    logger.Logger
	tracer    trace.Tracer
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithEvaluator replaces the confidence evaluator.
func WithEvaluator(e scoring.Evaluator) Option {
	return func(p *Pipeline) {
		if e != nil {
			p.evaluator = e
		}
	}
}

// WithIDGenerator replaces the id generator.
func WithIDGenerator(fn func() string) Option {
	return func(p *Pipeline) {
		if fn != nil {
			p.newID = fn
		}
	}
}

// WithClock replaces the time source.
func WithClock(fn func() time.Time) Option {
	return func(p *Pipeline) {
		if fn != nil {
			p.now = fn
		}
	}
}

// WithTracerProvider records spans on tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *Pipeline) {
		if tp != nil {
			p.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// New builds a pipeline over store.
func New(store ports.TxRunner, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:     store,
		evaluator: scoring.NewEvaluator(),
		newID:     model.NewID,
		now:       time.Now,
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Get().Named("intake")
	}
	return p
}

type submitConfig struct {
	batch *matching.BatchIndex
}

// SubmitOption tunes one submission.
type SubmitOption func(*submitConfig)

// WithBatch makes the matcher also consider rows accepted earlier in a batch.
func WithBatch(idx *matching.BatchIndex) SubmitOption {
	return func(c *submitConfig) { c.batch = idx }
}

// Submit normalizes, validates and evaluates raw, then commits it or routes
// it to review. A *model.ValidationError is returned before any store access.
func (p *Pipeline) Submit(ctx context.Context, raw model.AttendeeRecord, submittedBy string, opts ...SubmitOption) (model.IntakeOutcome, error) { //nolint:gocritic // candidate passed by value
	var cfg submitConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, span := p.tracer.Start(ctx, "intake.Submit", trace.WithAttributes(attribute.String("intake.source", string(raw.Source))))
	defer span.End()
	start := time.Now()

	cand, vres := p.prepare(raw, submittedBy)
	source := string(cand.Source)
	if err := vres.Err(); err != nil {
		metrics.RecordIntake(source, "invalid")
		span.SetStatus(codes.Error, "validation failed")
		return model.IntakeOutcome{}, err
	}

	verdict := p.evaluator.Evaluate(&cand)
	for _, f := range verdict.MediumFields {
		metrics.RecordMediumConfidence(string(f))
	}

	var (
		out model.IntakeOutcome
		err error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		out, err = p.checkAndCommit(ctx, &cand, &verdict, &cfg)
		if !errors.Is(err, model.ErrAlreadyExists) || attempt == maxAttempts {
			break
		}
		metrics.RecordBackstopRetry()
		p.logger.Warn(ctx, "uniqueness backstop fired, re-checking candidate", logger.String("email", cand.Email))
	}
	metrics.RecordIntakeLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordIntake(source, "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return model.IntakeOutcome{}, fmt.Errorf("intake: %w", err)
	}

	out.MediumFields = verdict.MediumFields
	out.Warnings = vres.Warnings
	switch out.Status {
	case model.IntakeCommitted:
		metrics.RecordIntake(source, "committed")
		span.SetAttributes(attribute.String("intake.record_id", out.Record.ID))
	case model.IntakeQueued:
		metrics.RecordIntake(source, "queued")
		metrics.RecordReviewQueued(string(out.ReviewItem.IssueType))
		span.SetAttributes(attribute.String("intake.review_item_id", out.ReviewItem.ID))
	}
	return out, nil
}

// prepare produces the normalized candidate with commit-only fields cleared.
func (p *Pipeline) prepare(raw model.AttendeeRecord, submittedBy string) (model.AttendeeRecord, validation.Result) { //nolint:gocritic // value in, value out
	cand := normalize.Record(raw)
	cand.ID = ""
	cand.DuplicateOverride = false
	cand.OriginReviewID = ""
	cand.MergedFrom = nil
	cand.SupersededBy = ""
	cand.SupersededAt = nil
	if submittedBy != "" {
		cand.SubmittedBy = submittedBy
	}
	if cand.Timestamp.IsZero() {
		cand.Timestamp = p.now().UTC()
	}
	if cand.Source == "" {
		cand.Source = model.SourceManual
	}
	if cand.Source != model.SourceOCR {
		cand.FieldConfidence = nil
	}

	res := validation.Check(&cand)
	if !cand.Source.Valid() {
		res.Issues = append(res.Issues, model.FieldIssue{Field: "source", Issue: "Unknown source", Value: string(cand.Source)})
	}
	return cand, res
}

func (p *Pipeline) checkAndCommit(ctx context.Context, cand *model.AttendeeRecord, verdict *scoring.Verdict, cfg *submitConfig) (model.IntakeOutcome, error) {
	var out model.IntakeOutcome
	err := p.store.RunInTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		out = model.IntakeOutcome{Match: model.MatchNone}

		if verdict.Flagged() {
			item := p.newItem(cand, model.IssueLowConfidence, nil)
			item.LowFields = append([]model.Field(nil), verdict.LowFields...)
			return p.enqueue(ctx, tx, &item, &out)
		}

		for _, key := range matching.LockKeys(cand) {
			if err := tx.LockKey(ctx, key); err != nil {
				return err
			}
		}

		var lookup ports.Lookup = tx
		if cfg.batch != nil {
			lookup = cfg.batch.Over(tx)
		}
		res, err := matching.Match(ctx, lookup, cand)
		if err != nil {
			return err
		}
		out.Match = res.Verdict
		if res.Ambiguous() {
			metrics.RecordAmbiguousMatch()
			p.logger.Warn(ctx, "data integrity: several active records share a key",
				logger.String("verdict", string(res.Verdict)),
				logger.String("selected", res.Match.ID),
				logger.Int("candidates", res.Candidates),
			)
		}

		switch res.Verdict {
		case model.MatchDuplicate:
			item := p.newItem(cand, model.IssueDuplicate, res.Match)
			item.MatchCount = res.Candidates
			return p.enqueue(ctx, tx, &item, &out)
		case model.MatchUncertain:
			item := p.newItem(cand, model.IssueUncertainMatch, res.Match)
			item.MatchCount = res.Candidates
			return p.enqueue(ctx, tx, &item, &out)
		case model.MatchNone:
		}

		rec := cand.Clone()
		rec.ID = p.newID()
		rec.Timestamp = p.now().UTC()
		if err := tx.InsertRecord(ctx, rec); err != nil {
			return err
		}
		ev, err := model.NewEvent(p.newID(), model.EventRecordCommitted, rec.ID, p.now(), model.RecordCommittedPayload{Record: rec})
		if err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, ev); err != nil {
			return err
		}
		out.Status = model.IntakeCommitted
		out.Record = &rec
		return nil
	})
	return out, err
}

func (p *Pipeline) newItem(cand *model.AttendeeRecord, issue model.IssueType, match *model.AttendeeRecord) model.ReviewItem {
	item := model.ReviewItem{
		ID:          p.newID(),
		Candidate:   cand.Clone(),
		IssueType:   issue,
		SubmittedBy: cand.SubmittedBy,
		CreatedAt:   p.now().UTC(),
		Status:      model.StatusPending,
	}
	if match != nil {
		item.SuggestedMatchID = match.ID
	}
	return item
}

func (p *Pipeline) enqueue(ctx context.Context, tx ports.Tx, item *model.ReviewItem, out *model.IntakeOutcome) error {
	if err := tx.InsertReview(ctx, *item); err != nil {
		return err
	}
	ev, err := model.NewEvent(p.newID(), model.EventReviewQueued, item.ID, p.now(), model.ReviewQueuedPayload{Item: *item})
	if err != nil {
		return err
	}
	if err := tx.AppendEvent(ctx, ev); err != nil {
		return err
	}
	out.Status = model.IntakeQueued
	out.ReviewItem = item
	return nil
}
