package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/adapters/http/api"
	service "github.com/Thiri06/Contact-Info-Capture-Agent/internal/app"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/model"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/review"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/types"
)

type client struct {
	h http.Handler
}

func (c client) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	c.h.ServeHTTP(w, req)
	return w
}

func decode[T any](w *httptest.ResponseRecorder) T {
	var v T
	So(json.Unmarshal(w.Body.Bytes(), &v), ShouldBeNil)
	return v
}

type apiError struct {
	Code    string             `json:"code"`
	Message string             `json:"message"`
	Issues  []model.FieldIssue `json:"issues"`
	Status  model.ReviewStatus `json:"status"`
}

func newClient() (client, func()) {
	svc := service.New(service.WithWorkerCount(1))
	So(svc.Start(context.Background()), ShouldBeNil)
	srv := api.NewServer(svc, svc)
	return client{h: srv.Routes()}, svc.Stop
}

const staff = api.HeaderStaffID

func TestAttendees(t *testing.T) {
	Convey("Given the API over a fresh service", t, func() {
		c, stop := newClient()
		Reset(stop)

		Convey("POST /v1/attendees commits a clean record with 201", func() {
			w := c.do(http.MethodPost, "/v1/attendees", `{"fullName":"Sarah Tan","email":"Sarah@Tech.com","phoneNumber":"+65 9123 4567"}`, map[string]string{staff: "s1"})
			So(w.Code, ShouldEqual, http.StatusCreated)
			out := decode[model.IntakeOutcome](w)
			So(out.Status, ShouldEqual, model.IntakeCommitted)
			So(out.Record.Email, ShouldEqual, "sarah@tech.com")
			So(out.Record.SubmittedBy, ShouldEqual, "s1")

			Convey("And GET /v1/attendees/{id} reads it back", func() {
				w := c.do(http.MethodGet, "/v1/attendees/"+out.Record.ID, "", nil)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode[model.AttendeeRecord](w).FullName, ShouldEqual, "Sarah Tan")
			})

			Convey("And a second submission with the same email is queued with 202", func() {
				w := c.do(http.MethodPost, "/v1/attendees", `{"fullName":"S Tan","email":"sarah@tech.com"}`, nil)
				So(w.Code, ShouldEqual, http.StatusAccepted)
				dup := decode[model.IntakeOutcome](w)
				So(dup.Match, ShouldEqual, model.MatchDuplicate)
				So(dup.ReviewItem.SuggestedMatchID, ShouldEqual, out.Record.ID)
			})
		})

		Convey("Invalid input is 422 with the issues listed", func() {
			w := c.do(http.MethodPost, "/v1/attendees", `{"fullName":"","email":"nope"}`, nil)
			So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
			e := decode[apiError](w)
			So(e.Code, ShouldEqual, "validation_failed")
			So(len(e.Issues), ShouldEqual, 2)
		})

		Convey("Malformed JSON is 400", func() {
			w := c.do(http.MethodPost, "/v1/attendees", `{"fullName":`, nil)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("An unknown record is 404", func() {
			w := c.do(http.MethodGet, "/v1/attendees/missing", "", nil)
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("A repeated Idempotency-Key replays the first response", func() {
			hdr := map[string]string{api.HeaderIdempotencyKey: "abc"}
			first := c.do(http.MethodPost, "/v1/attendees", `{"fullName":"Ana","email":"ana@example.com"}`, hdr)
			So(first.Code, ShouldEqual, http.StatusCreated)
			second := c.do(http.MethodPost, "/v1/attendees", `{"fullName":"Ana","email":"ana@example.com"}`, hdr)
			So(second.Code, ShouldEqual, http.StatusOK)
			So(second.Header().Get(api.HeaderReplay), ShouldEqual, "true")
			So(decode[model.IntakeOutcome](second).Record.ID, ShouldEqual, decode[model.IntakeOutcome](first).Record.ID)

			snap := decode[model.ExportSnapshot](c.do(http.MethodGet, "/v1/export/attendees", "", nil))
			So(len(snap.Records), ShouldEqual, 1)
			So(snap.PendingReview, ShouldEqual, 0)
		})

		Convey("A failed submission releases its Idempotency-Key", func() {
			hdr := map[string]string{api.HeaderIdempotencyKey: "retry-me"}
			So(c.do(http.MethodPost, "/v1/attendees", `{"fullName":"Ana","email":"bad"}`, hdr).Code, ShouldEqual, http.StatusUnprocessableEntity)
			So(c.do(http.MethodPost, "/v1/attendees", `{"fullName":"Ana","email":"ana@example.com"}`, hdr).Code, ShouldEqual, http.StatusCreated)
		})

		Convey("POST /v1/captures queues a low-confidence scan", func() {
			w := c.do(http.MethodPost, "/v1/captures",
				`{"fields":{"fullName":{"value":"John Doe","confidence":95},"email":{"value":"jd@corp.io","confidence":30}}}`, nil)
			So(w.Code, ShouldEqual, http.StatusAccepted)
			out := decode[model.IntakeOutcome](w)
			So(out.ReviewItem.IssueType, ShouldEqual, model.IssueLowConfidence)
		})

		Convey("A capture without fields is 422", func() {
			w := c.do(http.MethodPost, "/v1/captures", `{"fields":{}}`, nil)
			So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
			So(decode[apiError](w).Code, ShouldEqual, "extraction_failed")
		})
	})
}

func TestReview(t *testing.T) {
	Convey("Given a duplicate waiting in the review queue", t, func() {
		c, stop := newClient()
		Reset(stop)

		So(c.do(http.MethodPost, "/v1/attendees", `{"fullName":"Ana","email":"ana@example.com","company":"Acme"}`, nil).Code, ShouldEqual, http.StatusCreated)
		queued := decode[model.IntakeOutcome](c.do(http.MethodPost, "/v1/attendees", `{"fullName":"Ana Lim","email":"ana@example.com","phoneNumber":"+6590000000"}`, nil))
		id := queued.ReviewItem.ID

		Convey("GET /v1/review filters by status and issue", func() {
			w := c.do(http.MethodGet, "/v1/review?status=PENDING&issue=DUPLICATE", "", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			list := decode[struct {
				Items []model.ReviewItem `json:"items"`
				Count int                `json:"count"`
			}](w)
			So(list.Count, ShouldEqual, 1)
			So(list.Items[0].ID, ShouldEqual, id)

			So(c.do(http.MethodGet, "/v1/review?status=DONE", "", nil).Code, ShouldEqual, http.StatusBadRequest)
			So(c.do(http.MethodGet, "/v1/review?limit=0", "", nil).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Resolving without X-Staff-ID is 400", func() {
			So(c.do(http.MethodPost, "/v1/review/"+id+"/reject", "", nil).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Merge resolves it and a second action is 409 already_resolved", func() {
			w := c.do(http.MethodPost, "/v1/review/"+id+"/merge", "", map[string]string{staff: "s9"})
			So(w.Code, ShouldEqual, http.StatusOK)
			out := decode[review.Outcome](w)
			So(out.Item.Status, ShouldEqual, model.StatusMerged)
			So(out.Record.Company, ShouldEqual, "Acme")
			So(out.Record.PhoneNumber, ShouldEqual, "+6590000000")

			w = c.do(http.MethodPost, "/v1/review/"+id+"/approve", "", map[string]string{staff: "s2"})
			So(w.Code, ShouldEqual, http.StatusConflict)
			e := decode[apiError](w)
			So(e.Code, ShouldEqual, "already_resolved")
			So(e.Status, ShouldEqual, model.StatusMerged)

			item := decode[model.ReviewItem](c.do(http.MethodGet, "/v1/review/"+id, "", nil))
			So(item.ResolvedBy, ShouldEqual, "s9")
		})

		Convey("Approve accepts corrections", func() {
			w := c.do(http.MethodPost, "/v1/review/"+id+"/approve", `{"corrections":{"email":"ana.lim@example.com"}}`, map[string]string{staff: "s9"})
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode[review.Outcome](w).Record.Email, ShouldEqual, "ana.lim@example.com")
		})

		Convey("Approve with an invalid correction is 422 and the item stays pending", func() {
			w := c.do(http.MethodPost, "/v1/review/"+id+"/approve", `{"corrections":{"email":"broken"}}`, map[string]string{staff: "s9"})
			So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
			So(decode[model.ReviewItem](c.do(http.MethodGet, "/v1/review/"+id, "", nil)).Status, ShouldEqual, model.StatusPending)
		})

		Convey("Export reports the pending item", func() {
			snap := decode[model.ExportSnapshot](c.do(http.MethodGet, "/v1/export/attendees", "", nil))
			So(len(snap.Records), ShouldEqual, 1)
			So(snap.PendingReview, ShouldEqual, 1)
			So(snap.Warning, ShouldNotBeEmpty)

			w := c.do(http.MethodGet, "/v1/export/attendees?format=csv", "", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get(api.HeaderPendingReview), ShouldEqual, "1")
			So(strings.Count(w.Body.String(), "\n"), ShouldEqual, 2)
		})
	})
}

func TestImports(t *testing.T) {
	Convey("Given the API over a fresh service", t, func() {
		c, stop := newClient()
		Reset(stop)

		csv := "Full Name,Email\nAna Lim,ana@example.com\nBen Ong,ben@example.com\nAna L.,ANA@example.com\n"

		Convey("A CSV upload is classified row by row", func() {
			req := httptest.NewRequest(http.MethodPost, "/v1/imports", strings.NewReader(csv))
			req.Header.Set("Content-Type", "text/csv")
			w := httptest.NewRecorder()
			c.h.ServeHTTP(w, req)

			So(w.Code, ShouldEqual, http.StatusOK)
			res := decode[model.BatchImportResult](w)
			So(res.Total, ShouldEqual, 3)
			So(res.Committed, ShouldEqual, 2)
			So(res.Duplicates, ShouldEqual, 1)
		})

		Convey("An async JSON import returns 202 and can be polled", func() {
			w := c.do(http.MethodPost, "/v1/imports?async=true", `{"rows":[{"fullName":"Cat","email":"cat@example.com"}]}`, nil)
			So(w.Code, ShouldEqual, http.StatusAccepted)
			job := decode[types.JobView](w)
			So(w.Header().Get("Location"), ShouldEqual, "/v1/imports/"+job.ID)

			deadline := time.Now().Add(5 * time.Second)
			for job.Status != types.JobDone && time.Now().Before(deadline) {
				time.Sleep(5 * time.Millisecond)
				job = decode[types.JobView](c.do(http.MethodGet, "/v1/imports/"+job.ID, "", nil))
			}
			So(job.Status, ShouldEqual, types.JobDone)
			So(job.Result.Committed, ShouldEqual, 1)
		})

		Convey("A CSV without known columns is 400", func() {
			req := httptest.NewRequest(http.MethodPost, "/v1/imports", strings.NewReader("a,b\n1,2\n"))
			req.Header.Set("Content-Type", "text/csv; charset=utf-8")
			w := httptest.NewRecorder()
			c.h.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

// downService fails every call the way an unreachable store would.
type downService struct{ *service.Service }

func (downService) Export(context.Context) (model.ExportSnapshot, error) {
	return model.ExportSnapshot{}, model.Unavailable("list", errors.New("connection refused"))
}

func (downService) SubmitImport(context.Context, []model.RawRow, string) (types.JobView, error) {
	return types.JobView{}, types.ErrQueueFull
}

func (downService) Approve(context.Context, string, string, model.Corrections) (review.Outcome, error) {
	return review.Outcome{}, fmt.Errorf("insert record: %w", model.ErrAlreadyExists)
}

func (downService) Merge(context.Context, string, string) (review.Outcome, error) {
	return review.Outcome{}, fmt.Errorf("retire record: %w", model.ErrSuperseded)
}

func TestErrorMapping(t *testing.T) {
	Convey("Given a service whose dependencies fail", t, func() {
		svc := service.New()
		So(svc.Start(context.Background()), ShouldBeNil)
		Reset(svc.Stop)
		deps := downService{svc}
		c := client{h: api.NewServer(deps, svc).Routes()}

		Convey("A store outage is 503", func() {
			w := c.do(http.MethodGet, "/v1/export/attendees", "", nil)
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			So(decode[apiError](w).Code, ShouldEqual, "store_unavailable")
		})

		Convey("A full import queue is 429", func() {
			w := c.do(http.MethodPost, "/v1/imports?async=1", `{"rows":[]}`, nil)
			So(w.Code, ShouldEqual, http.StatusTooManyRequests)
		})

		Convey("A record that already exists is 409", func() {
			w := c.do(http.MethodPost, "/v1/review/i1/approve", "", map[string]string{api.HeaderStaffID: "staff-1"})
			So(w.Code, ShouldEqual, http.StatusConflict)
			So(decode[apiError](w).Code, ShouldEqual, "conflict")
		})

		Convey("A record superseded under a merge is 409", func() {
			w := c.do(http.MethodPost, "/v1/review/i1/merge", "", map[string]string{api.HeaderStaffID: "staff-1"})
			So(w.Code, ShouldEqual, http.StatusConflict)
			So(decode[apiError](w).Code, ShouldEqual, "conflict")
		})
	})
}

func TestOperationalEndpoints(t *testing.T) {
	Convey("Given the API", t, func() {
		c, stop := newClient()
		Reset(stop)

		Convey("/healthz answers ok", func() {
			w := c.do(http.MethodGet, "/healthz", "", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"ok"`)
		})

		Convey("/metrics exposes the intake collectors", func() {
			c.do(http.MethodGet, "/healthz", "", nil)
			w := c.do(http.MethodGet, "/metrics", "", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "http_requests_total")
		})

		Convey("/stats reports the service state", func() {
			stats := decode[map[string]any](c.do(http.MethodGet, "/stats", "", nil))
			So(stats["started"], ShouldEqual, true)
		})
	})
}
