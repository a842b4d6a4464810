package service

import (
	"context"
	"fmt"

	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/dedupe"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/model"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/review"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/types"
)

// SubmitManual runs a staff-typed record through intake. Manual entries
// carry full confidence on every field.
func (s *Service) SubmitManual(ctx context.Context, rec model.AttendeeRecord, submittedBy string) (model.IntakeOutcome, error) { //nolint:gocritic // candidate passed by value
	if err := s.running(); err != nil {
		return model.IntakeOutcome{}, err
	}
	rec.Source = model.SourceManual
	rec.FieldConfidence = nil
	return s.pipeline.Submit(ctx, rec, submittedBy)
}

// SubmitCapture runs a confirmed optical extraction through intake.
func (s *Service) SubmitCapture(ctx context.Context, ext model.Extraction, submittedBy string) (model.IntakeOutcome, error) {
	if err := s.running(); err != nil {
		return model.IntakeOutcome{}, err
	}
	cand, err := ext.Candidate(s.now().UTC())
	if err != nil {
		return model.IntakeOutcome{}, err
	}
	return s.pipeline.Submit(ctx, cand, submittedBy)
}

// Record reads one record, active or superseded.
func (s *Service) Record(ctx context.Context, id string) (model.AttendeeRecord, error) {
	if err := s.running(); err != nil {
		return model.AttendeeRecord{}, err
	}
	return s.store.GetRecord(ctx, id)
}

// Import validates rows synchronously.
func (s *Service) Import(ctx context.Context, rows []model.RawRow, submittedBy string) (model.BatchImportResult, error) {
	if err := s.running(); err != nil {
		return model.BatchImportResult{}, err
	}
	return s.importer.Run(ctx, rows, submittedBy), nil
}

// SubmitImport queues rows for a background worker and returns the job.
func (s *Service) SubmitImport(ctx context.Context, rows []model.RawRow, submittedBy string) (types.JobView, error) {
	if err := s.running(); err != nil {
		return types.JobView{}, err
	}
	job := types.ImportJob{
		ID:          model.NewID(),
		Rows:        rows,
		SubmittedBy: submittedBy,
		EnqueuedAt:  s.now().UTC(),
	}
	// Registered first so a fast worker always finds the job.
	s.jobs.add(&job)
	if !s.jobQueue.Enqueue(ctx, job) {
		s.jobs.drop(job.ID)
		return types.JobView{}, ErrQueueFull
	}
	view, _ := s.jobs.get(job.ID)
	return view, nil
}

// ImportJob reports the state of an async import.
func (s *Service) ImportJob(_ context.Context, id string) (types.JobView, error) {
	if err := s.running(); err != nil {
		return types.JobView{}, err
	}
	view, ok := s.jobs.get(id)
	if !ok {
		return types.JobView{}, fmt.Errorf("%w: %s", ErrJobUnknown, id)
	}
	return view, nil
}

// Reviews lists review items matching filter, oldest first.
func (s *Service) Reviews(ctx context.Context, filter model.ReviewFilter) ([]model.ReviewItem, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	return s.store.ListReviews(ctx, filter)
}

// Review reads one review item.
func (s *Service) Review(ctx context.Context, id string) (model.ReviewItem, error) {
	if err := s.running(); err != nil {
		return model.ReviewItem{}, err
	}
	return s.store.GetReview(ctx, id)
}

// Approve commits the item's candidate, with optional corrections.
func (s *Service) Approve(ctx context.Context, id, actor string, corrections model.Corrections) (review.Outcome, error) {
	if err := s.running(); err != nil {
		return review.Outcome{}, err
	}
	return s.reviews.Approve(ctx, id, actor, corrections)
}

// Reject discards the item's candidate.
func (s *Service) Reject(ctx context.Context, id, actor string) (review.Outcome, error) {
	if err := s.running(); err != nil {
		return review.Outcome{}, err
	}
	return s.reviews.Reject(ctx, id, actor)
}

// Merge folds the item's candidate into its suggested match.
func (s *Service) Merge(ctx context.Context, id, actor string) (review.Outcome, error) {
	if err := s.running(); err != nil {
		return review.Outcome{}, err
	}
	return s.reviews.Merge(ctx, id, actor)
}

// Export returns the records fit for downstream use. Records tied to a
// review item that is still pending are left out, and the number of pending
// items is reported with a warning.
func (s *Service) Export(ctx context.Context) (model.ExportSnapshot, error) {
	if err := s.running(); err != nil {
		return model.ExportSnapshot{}, err
	}
	active, err := s.store.ListActive(ctx)
	if err != nil {
		return model.ExportSnapshot{}, err
	}
	pending, err := s.store.ListReviews(ctx, model.ReviewFilter{Status: model.StatusPending})
	if err != nil {
		return model.ExportSnapshot{}, err
	}

	open := make(map[string]struct{}, len(pending))
	for i := range pending {
		open[pending[i].ID] = struct{}{}
	}
	snap := model.ExportSnapshot{Records: make([]model.AttendeeRecord, 0, len(active)), PendingReview: len(pending)}
	for i := range active {
		if _, held := open[active[i].OriginReviewID]; held && active[i].OriginReviewID != "" {
			continue
		}
		snap.Records = append(snap.Records, active[i])
	}
	if snap.PendingReview > 0 {
		snap.Warning = fmt.Sprintf("%d unresolved items in the review queue are not included in this export", snap.PendingReview)
	}
	return snap, nil
}

// SeenAndRecord claims an idempotency key.
func (s *Service) SeenAndRecord(ctx context.Context, key string) (dedupe.Claim, error) {
	if err := s.running(); err != nil {
		return dedupe.Claim{}, err
	}
	return s.deduper.SeenAndRecord(ctx, key)
}

// Complete stores the response for a claimed idempotency key.
func (s *Service) Complete(ctx context.Context, key string, res dedupe.Result) error {
	if err := s.running(); err != nil {
		return err
	}
	return s.deduper.Complete(ctx, key, res)
}

// Unrecord releases a claimed key so the request can be retried.
func (s *Service) Unrecord(ctx context.Context, key string) {
	if s.running() != nil {
		return
	}
	s.deduper.Unrecord(ctx, key)
}
