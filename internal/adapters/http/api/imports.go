package api

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/adapters/ingest"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/model"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/types"
)

// ImportDependencies is what the import handlers need.
type ImportDependencies interface {
	Import(ctx context.Context, rows []model.RawRow, submittedBy string) (model.BatchImportResult, error)
	SubmitImport(ctx context.Context, rows []model.RawRow, submittedBy string) (types.JobView, error)
	ImportJob(ctx context.Context, id string) (types.JobView, error)
}

// ImportHandler serves batch imports.
type ImportHandler struct {
	deps ImportDependencies
}

// NewImportHandler creates a new import handler.
func NewImportHandler(deps ImportDependencies) *ImportHandler {
	return &ImportHandler{deps: deps}
}

type importRequest struct {
	Rows []model.RawRow `json:"rows"`
}

// HandleImport handles POST /v1/imports. The body is either text/csv or
// JSON {"rows": [...]}. With ?async=true the rows are queued and 202 is
// returned with the job; otherwise the result is returned inline.
func (h *ImportHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rows, err := readRows(w, r)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}

	async, _ := strconv.ParseBool(r.URL.Query().Get("async"))
	if async {
		job, err := h.deps.SubmitImport(ctx, rows, staffID(r))
		if err != nil {
			writeDomainError(ctx, w, err)
			return
		}
		w.Header().Set("Location", "/v1/imports/"+job.ID)
		writeJSON(w, http.StatusAccepted, job)
		return
	}

	res, err := h.deps.Import(ctx, rows, staffID(r))
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleGetJob handles GET /v1/imports/{id}.
func (h *ImportHandler) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.deps.ImportJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func readRows(w http.ResponseWriter, r *http.Request) ([]model.RawRow, error) {
	body := http.MaxBytesReader(w, r.Body, maxImportBody)
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "text/csv" {
		rows, err := ingest.ReadCSV(body)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
		}
		return rows, nil
	}

	var req importRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	if len(req.Rows) > ingest.MaxRows {
		return nil, fmt.Errorf("%w: more than %d rows", ErrBadRequest, ingest.MaxRows)
	}
	return req.Rows, nil
}
