// Package batch validates import files row by row through the intake
// pipeline, detecting duplicates both against the store and within the file.
package batch

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/intake"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/matching"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/model"
	"github.com/Thiri06/Contact-Info-Capture-Agent/pkg/logger"
	"github.com/Thiri06/Contact-Info-Capture-Agent/pkg/metrics"
)

const tracerName = "github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/batch"

// Submitter is the slice of the intake pipeline a batch needs.
type Submitter interface {
	Submit(ctx context.Context, raw model.AttendeeRecord, submittedBy string, opts ...intake.SubmitOption) (model.IntakeOutcome, error)
}

// Validator runs import batches.
type Validator struct {
	submitter Submitter
	now       func() time.Time
	logger    logger.Logger
	tracer    trace.Tracer
}

// Option configures a Validator.
type Option func(*Validator)

// WithClock replaces the time source used to stamp rows.
func WithClock(fn func() time.Time) Option {
	return func(v *Validator) {
		if fn != nil {
			v.now = fn
		}
	}
}

// WithTracerProvider records spans on tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(v *Validator) {
		if tp != nil {
			v.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(v *Validator) {
		if l != nil {
			v.logger = l
		}
	}
}

// New builds a validator that submits rows through s.
func New(s Submitter, opts ...Option) *Validator {
	v := &Validator{
		submitter: s,
		now:       time.Now,
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.logger == nil {
		v.logger = logger.Get().Named("batch")
	}
	return v
}

// Run processes rows in order. Each row is committed, queued or rejected on
// its own; a failing row never stops the batch. When ctx ends mid-run the
// remaining rows are reported as errors. Nil rows are skipped without
// shifting the numbers of the rows after them.
func (v *Validator) Run(ctx context.Context, rows []model.RawRow, submittedBy string) model.BatchImportResult {
	ctx, span := v.tracer.Start(ctx, "batch.Run", trace.WithAttributes(attribute.Int("batch.rows", len(rows))))
	defer span.End()
	start := time.Now()

	res := model.BatchImportResult{Rows: make([]model.RowOutcome, 0, len(rows))}
	idx := matching.NewBatchIndex()
	for i, row := range rows {
		if row == nil {
			continue
		}
		var o model.RowOutcome
		if err := ctx.Err(); err != nil {
			o = model.RowOutcome{Row: i + 1, Status: model.RowError, Error: "import cancelled: " + err.Error()}
		} else {
			o = v.row(ctx, i+1, row, submittedBy, idx)
		}
		metrics.RecordImportRow(string(o.Status))
		res.Add(o)
	}

	metrics.RecordImportBatchLatency(float64(time.Since(start).Milliseconds()))
	span.SetAttributes(
		attribute.Int("batch.committed", res.Committed),
		attribute.Int("batch.duplicates", res.Duplicates),
		attribute.Int("batch.errors", res.Errors),
	)
	v.logger.Info(ctx, "import batch finished",
		logger.Int("total", res.Total),
		logger.Int("committed", res.Committed),
		logger.Int("queued", res.Duplicates),
		logger.Int("errors", res.Errors),
		logger.Duration("elapsed", time.Since(start)),
	)
	return res
}

func (v *Validator) row(ctx context.Context, n int, row model.RawRow, submittedBy string, idx *matching.BatchIndex) model.RowOutcome {
	o := model.RowOutcome{Row: n}
	out, err := v.submitter.Submit(ctx, row.Candidate(v.now().UTC()), submittedBy, intake.WithBatch(idx))
	if err != nil {
		o.Status = model.RowError
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			o.Issues = verr.Issues
		}
		o.Error = err.Error()
		if !errors.Is(err, model.ErrValidation) {
			v.logger.Warn(ctx, "import row failed", logger.Int("row", n), logger.Error(err))
		}
		return o
	}

	o.Warnings = out.Warnings
	switch out.Status {
	case model.IntakeCommitted:
		o.Status = model.RowCommitted
		o.RecordID = out.Record.ID
		idx.Add(*out.Record)
	case model.IntakeQueued:
		o.Status = model.RowQueued
		o.ReviewItemID = out.ReviewItem.ID
		o.IssueType = out.ReviewItem.IssueType
	}
	return o
}
