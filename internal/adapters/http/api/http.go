// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/dedupe"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/model"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/review"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/types"
	"github.com/Thiri06/Contact-Info-Capture-Agent/pkg/logger"
)

// Request headers.
const (
	HeaderStaffID        = "X-Staff-ID"
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplay         = "Idempotent-Replay"
)

const (
	maxJSONBody    = 1 << 20
	maxImportBody  = 16 << 20
	requestTimeout = 60 * time.Second
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	dedupe.Deduper

	SubmitManual(ctx context.Context, rec model.AttendeeRecord, submittedBy string) (model.IntakeOutcome, error)
	SubmitCapture(ctx context.Context, ext model.Extraction, submittedBy string) (model.IntakeOutcome, error)
	Record(ctx context.Context, id string) (model.AttendeeRecord, error)

	Import(ctx context.Context, rows []model.RawRow, submittedBy string) (model.BatchImportResult, error)
	SubmitImport(ctx context.Context, rows []model.RawRow, submittedBy string) (types.JobView, error)
	ImportJob(ctx context.Context, id string) (types.JobView, error)

	Reviews(ctx context.Context, filter model.ReviewFilter) ([]model.ReviewItem, error)
	Review(ctx context.Context, id string) (model.ReviewItem, error)
	Approve(ctx context.Context, id, actor string, corrections model.Corrections) (review.Outcome, error)
	Reject(ctx context.Context, id, actor string) (review.Outcome, error)
	Merge(ctx context.Context, id, actor string) (review.Outcome, error)

	Export(ctx context.Context) (model.ExportSnapshot, error)
}

// Server wires HTTP routes for the intake API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	attendeeHandler *AttendeeHandler
	importHandler   *ImportHandler
	reviewHandler   *ReviewHandler
	exportHandler   *ExportHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		attendeeHandler: NewAttendeeHandler(deps),
		importHandler:   NewImportHandler(deps),
		reviewHandler:   NewReviewHandler(deps),
		exportHandler:   NewExportHandler(deps),
	}
}

// Routes returns the complete router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(TraceContextMiddleware)

	r.Get("/healthz", s.healthHandler.HandleHealth)
	r.Handle("/metrics", s.healthHandler.Metrics())
	r.Get("/stats", s.statsHandler.HandleStats)

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Post("/attendees", s.attendeeHandler.HandleCreate)
		r.Get("/attendees/{id}", s.attendeeHandler.HandleGet)
		r.Post("/captures", s.attendeeHandler.HandleCapture)

		r.Post("/imports", s.importHandler.HandleImport)
		r.Get("/imports/{id}", s.importHandler.HandleGetJob)

		r.Get("/review", s.reviewHandler.HandleList)
		r.Get("/review/{id}", s.reviewHandler.HandleGet)
		r.Post("/review/{id}/approve", s.reviewHandler.HandleApprove)
		r.Post("/review/{id}/reject", s.reviewHandler.HandleReject)
		r.Post("/review/{id}/merge", s.reviewHandler.HandleMerge)

		r.Get("/export/attendees", s.exportHandler.HandleExport)
	})
	return r
}

type errorResponse struct {
	Code    string             `json:"code"`
	Message string             `json:"message"`
	Issues  []model.FieldIssue `json:"issues,omitempty"`
	Status  model.ReviewStatus `json:"status,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeDomainError translates engine errors into HTTP responses.
func writeDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	resp := errorResponse{Message: err.Error()}
	status := http.StatusInternalServerError

	var (
		verr  *model.ValidationError
		stale *model.StaleResolutionError
		mbe   *http.MaxBytesError
	)
	switch {
	case errors.As(err, &verr):
		status, resp.Code, resp.Issues = http.StatusUnprocessableEntity, "validation_failed", verr.Issues
	case errors.Is(err, model.ErrExtraction):
		status, resp.Code = http.StatusUnprocessableEntity, "extraction_failed"
	case errors.As(err, &stale):
		status, resp.Code, resp.Status = http.StatusConflict, "already_resolved", stale.Status
	case errors.Is(err, model.ErrInvalidTransition):
		status, resp.Code = http.StatusConflict, "invalid_transition"
	case errors.Is(err, model.ErrAlreadyExists), errors.Is(err, model.ErrSuperseded):
		status, resp.Code = http.StatusConflict, "conflict"
	case errors.Is(err, model.ErrNotFound):
		status, resp.Code = http.StatusNotFound, "not_found"
	case errors.Is(err, model.ErrStoreUnavailable):
		status, resp.Code = http.StatusServiceUnavailable, "store_unavailable"
	case errors.Is(err, types.ErrQueueFull):
		status, resp.Code = http.StatusTooManyRequests, "backpressure"
	case errors.As(err, &mbe):
		status, resp.Code = http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, ErrBadRequest):
		status, resp.Code = http.StatusBadRequest, "bad_request"
	default:
		resp.Code = "internal"
		logger.Get().Named("api").Error(ctx, "request failed", logger.Error(err))
	}
	writeJSON(w, status, resp)
}

// decodeJSON reads a bounded JSON body into v. An empty body is accepted
// when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}

func staffID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(HeaderStaffID))
}
