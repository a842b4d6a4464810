package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/model"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/review"
)

const maxReviewPage = 500

// ReviewDependencies is what the review queue handlers need.
type ReviewDependencies interface {
	Reviews(ctx context.Context, filter model.ReviewFilter) ([]model.ReviewItem, error)
	Review(ctx context.Context, id string) (model.ReviewItem, error)
	Approve(ctx context.Context, id, actor string, corrections model.Corrections) (review.Outcome, error)
	Reject(ctx context.Context, id, actor string) (review.Outcome, error)
	Merge(ctx context.Context, id, actor string) (review.Outcome, error)
}

// ReviewHandler serves the review queue.
type ReviewHandler struct {
	deps ReviewDependencies
}

// NewReviewHandler creates a new review handler.
func NewReviewHandler(deps ReviewDependencies) *ReviewHandler {
	return &ReviewHandler{deps: deps}
}

type approveRequest struct {
	Corrections model.Corrections `json:"corrections"`
}

// HandleList handles GET /v1/review?status=&issue=&limit=.
func (h *ReviewHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	items, err := h.deps.Reviews(r.Context(), filter)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

// HandleGet handles GET /v1/review/{id}.
func (h *ReviewHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	item, err := h.deps.Review(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// HandleApprove handles POST /v1/review/{id}/approve. The body is optional.
func (h *ReviewHandler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	h.resolve(w, r, func(ctx context.Context, id, actor string) (review.Outcome, error) {
		return h.deps.Approve(ctx, id, actor, req.Corrections)
	})
}

// HandleReject handles POST /v1/review/{id}/reject.
func (h *ReviewHandler) HandleReject(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.deps.Reject)
}

// HandleMerge handles POST /v1/review/{id}/merge.
func (h *ReviewHandler) HandleMerge(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.deps.Merge)
}

func (h *ReviewHandler) resolve(w http.ResponseWriter, r *http.Request, act func(ctx context.Context, id, actor string) (review.Outcome, error)) {
	actor := staffID(r)
	if actor == "" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrMissingActor)
		return
	}
	out, err := act(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func parseFilter(r *http.Request) (model.ReviewFilter, error) {
	q := r.URL.Query()
	f := model.ReviewFilter{
		Status:    model.ReviewStatus(q.Get("status")),
		IssueType: model.IssueType(q.Get("issue")),
	}
	if f.Status != "" && !f.Status.Valid() {
		return f, fmt.Errorf("unknown status %q", f.Status)
	}
	if f.IssueType != "" && !f.IssueType.Valid() {
		return f, fmt.Errorf("unknown issue type %q", f.IssueType)
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxReviewPage {
			return f, fmt.Errorf("limit must be between 1 and %d", maxReviewPage)
		}
		f.Limit = n
	}
	return f, nil
}
