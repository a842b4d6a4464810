package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/adapters/ingest"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/model"
	"github.com/Thiri06/Contact-Info-Capture-Agent/pkg/logger"
)

// HeaderPendingReview carries the pending review count on CSV exports.
const HeaderPendingReview = "X-Pending-Review"

// ExportDependencies is what the export handler needs.
type ExportDependencies interface {
	Export(ctx context.Context) (model.ExportSnapshot, error)
}

// ExportHandler serves the authoritative attendee list.
type ExportHandler struct {
	deps ExportDependencies
}

// NewExportHandler creates a new export handler.
func NewExportHandler(deps ExportDependencies) *ExportHandler {
	return &ExportHandler{deps: deps}
}

// HandleExport handles GET /v1/export/attendees. ?format=csv returns a
// spreadsheet download; the pending count then travels in a header.
func (h *ExportHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	snap, err := h.deps.Export(r.Context())
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	if r.URL.Query().Get("format") != "csv" {
		writeJSON(w, http.StatusOK, snap)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="attendees.csv"`)
	w.Header().Set(HeaderPendingReview, strconv.Itoa(snap.PendingReview))
	w.WriteHeader(http.StatusOK)
	if err := ingest.WriteCSV(w, snap.Records); err != nil {
		logger.Get().Named("api").Warn(r.Context(), "csv export interrupted", logger.Error(err))
	}
}
