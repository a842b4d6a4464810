package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/dedupe"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/model"
)

// AttendeeDependencies is what the attendee handlers need.
type AttendeeDependencies interface {
	dedupe.Deduper
	SubmitManual(ctx context.Context, rec model.AttendeeRecord, submittedBy string) (model.IntakeOutcome, error)
	SubmitCapture(ctx context.Context, ext model.Extraction, submittedBy string) (model.IntakeOutcome, error)
	Record(ctx context.Context, id string) (model.AttendeeRecord, error)
}

// AttendeeHandler serves manual entry, OCR capture and record reads.
type AttendeeHandler struct {
	deps AttendeeDependencies
}

// NewAttendeeHandler creates a new attendee handler.
func NewAttendeeHandler(deps AttendeeDependencies) *AttendeeHandler {
	return &AttendeeHandler{deps: deps}
}

// attendeeRequest is the body of POST /v1/attendees.
type attendeeRequest struct {
	FullName    string `json:"fullName"`
	PhoneNumber string `json:"phoneNumber"`
	Email       string `json:"email"`
	Location    string `json:"location"`
	Company     string `json:"company"`
	JobTitle    string `json:"jobTitle"`
}

func (a attendeeRequest) record() model.AttendeeRecord {
	return model.AttendeeRecord{
		FullName:    a.FullName,
		PhoneNumber: a.PhoneNumber,
		Email:       a.Email,
		Location:    a.Location,
		Company:     a.Company,
		JobTitle:    a.JobTitle,
	}
}

// captureRequest is the body of POST /v1/captures.
type captureRequest struct {
	Fields model.Extraction `json:"fields"`
}

// HandleCreate handles POST /v1/attendees.
func (h *AttendeeHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req attendeeRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	h.idempotent(w, r, "attendees:", func(ctx context.Context) (model.IntakeOutcome, error) {
		return h.deps.SubmitManual(ctx, req.record(), staffID(r))
	})
}

// HandleCapture handles POST /v1/captures.
func (h *AttendeeHandler) HandleCapture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	h.idempotent(w, r, "captures:", func(ctx context.Context) (model.IntakeOutcome, error) {
		return h.deps.SubmitCapture(ctx, req.Fields, staffID(r))
	})
}

// HandleGet handles GET /v1/attendees/{id}.
func (h *AttendeeHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := h.deps.Record(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// idempotent runs submit at most once per Idempotency-Key. A repeated key
// replays the first response with 200; a key still being processed gets 409.
// Failed submissions release the key so the client can retry.
func (h *AttendeeHandler) idempotent(w http.ResponseWriter, r *http.Request, scope string, submit func(context.Context) (model.IntakeOutcome, error)) {
	ctx := r.Context()
	key := r.Header.Get(HeaderIdempotencyKey)
	if key != "" {
		key = scope + key
		claim, err := h.deps.SeenAndRecord(ctx, key)
		if err != nil {
			writeDomainError(ctx, w, err)
			return
		}
		if claim.InFlight {
			writeError(w, http.StatusConflict, "in_flight", ErrInFlight)
			return
		}
		if claim.Seen {
			w.Header().Set(HeaderReplay, "true")
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(claim.Result.Body)
			return
		}
	}

	out, err := submit(ctx)
	if err != nil {
		if key != "" {
			h.deps.Unrecord(ctx, key)
		}
		writeDomainError(ctx, w, err)
		return
	}

	status := http.StatusCreated
	if out.Status == model.IntakeQueued {
		status = http.StatusAccepted
	}
	body, err := json.Marshal(out)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	if key != "" {
		// The record is committed either way; a lost replay entry only
		// means a retry would be matched as a duplicate.
		_ = h.deps.Complete(ctx, key, dedupe.Result{Status: status, Body: body})
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}
