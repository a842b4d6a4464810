package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	service "github.com/Thiri06/Contact-Info-Capture-Agent/internal/app"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/model"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/types"
	"github.com/Thiri06/Contact-Info-Capture-Agent/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func person(name, email, phone string) model.AttendeeRecord {
	return model.AttendeeRecord{FullName: name, Email: email, PhoneNumber: phone}
}

func waitJob(ctx context.Context, svc *service.Service, id string) types.JobView {
	deadline := time.Now().Add(5 * time.Second)
	for {
		view, err := svc.ImportJob(ctx, id)
		So(err, ShouldBeNil)
		if view.Status == types.JobDone || view.Status == types.JobFailed || time.Now().After(deadline) {
			return view
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New(service.WithWorkerCount(2), service.WithQueueSize(4))
		ctx := context.Background()

		Convey("Operations fail before Start", func() {
			_, err := svc.SubmitManual(ctx, person("Ana", "ana@example.com", ""), "")
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			So(svc.GetStats()["started"], ShouldEqual, false)
		})

		Convey("Start is idempotent and Stop resets the state", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.GetStats()["started"], ShouldEqual, true)
			So(svc.GetStats()["workerCount"], ShouldEqual, 2)

			svc.Stop()
			svc.Stop()
			So(svc.GetStats()["started"], ShouldEqual, false)
		})
	})
}

func TestService_Intake(t *testing.T) {
	ctx := context.Background()

	Convey("Given a started service", t, func() {
		svc := service.New(service.WithWorkerCount(1))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(svc.Stop)

		Convey("A manual record commits and can be read back", func() {
			rec := person("Sarah Tan", "Sarah@Tech.com", "+6591234567")
			rec.FieldConfidence = map[model.Field]float64{model.FieldEmail: 5}
			out, err := svc.SubmitManual(ctx, rec, "staff-1")
			So(err, ShouldBeNil)
			So(out.Status, ShouldEqual, model.IntakeCommitted)
			So(out.Record.Source, ShouldEqual, model.SourceManual)

			got, err := svc.Record(ctx, out.Record.ID)
			So(err, ShouldBeNil)
			So(got.Email, ShouldEqual, "sarah@tech.com")
		})

		Convey("A capture with an unusable confidence is an extraction error", func() {
			_, err := svc.SubmitCapture(ctx, model.Extraction{
				model.FieldEmail: {Value: "a@x.com", Confidence: 140},
			}, "")
			So(errors.Is(err, model.ErrExtraction), ShouldBeTrue)
		})

		Convey("A low-confidence capture lands in the review queue", func() {
			out, err := svc.SubmitCapture(ctx, model.Extraction{
				model.FieldFullName: {Value: "Jon Lee", Confidence: 92},
				model.FieldEmail:    {Value: "jon@lee.io", Confidence: 31},
			}, "booth-3")
			So(err, ShouldBeNil)
			So(out.Status, ShouldEqual, model.IntakeQueued)

			items, err := svc.Reviews(ctx, model.ReviewFilter{Status: model.StatusPending, IssueType: model.IssueLowConfidence})
			So(err, ShouldBeNil)
			So(len(items), ShouldEqual, 1)
			So(items[0].Candidate.Source, ShouldEqual, model.SourceOCR)

			Convey("And approving it with a corrected email commits it", func() {
				res, err := svc.Approve(ctx, items[0].ID, "staff-2", model.Corrections{model.FieldEmail: "jon@lee.io"})
				So(err, ShouldBeNil)
				So(res.Record.Email, ShouldEqual, "jon@lee.io")

				_, err = svc.Reject(ctx, items[0].ID, "staff-3")
				So(errors.Is(err, model.ErrStaleResolution), ShouldBeTrue)
			})
		})

		Convey("Export leaves out pending items and warns about them", func() {
			_, err := svc.SubmitManual(ctx, person("Ana", "ana@example.com", ""), "")
			So(err, ShouldBeNil)
			dup, err := svc.SubmitManual(ctx, person("Ana Lim", "ANA@example.com", ""), "")
			So(err, ShouldBeNil)
			So(dup.Status, ShouldEqual, model.IntakeQueued)

			snap, err := svc.Export(ctx)
			So(err, ShouldBeNil)
			So(len(snap.Records), ShouldEqual, 1)
			So(snap.PendingReview, ShouldEqual, 1)
			So(snap.Warning, ShouldContainSubstring, "1 unresolved")

			Convey("And merging clears the warning", func() {
				_, err := svc.Merge(ctx, dup.ReviewItem.ID, "staff-1")
				So(err, ShouldBeNil)
				snap, err := svc.Export(ctx)
				So(err, ShouldBeNil)
				So(len(snap.Records), ShouldEqual, 1)
				So(snap.PendingReview, ShouldEqual, 0)
				So(snap.Warning, ShouldBeEmpty)
				So(snap.Records[0].FullName, ShouldEqual, "Ana")
			})
		})

		Convey("Stats report pending reviews per issue", func() {
			_, _ = svc.SubmitManual(ctx, person("Ana", "ana@example.com", ""), "")
			_, _ = svc.SubmitManual(ctx, person("Ana", "ana@example.com", ""), "")
			stats := svc.GetStats()
			So(stats["activeRecords"], ShouldEqual, 1)
			So(stats["pendingReviews"], ShouldEqual, 1)
			So(stats["pendingByIssue"], ShouldResemble, map[string]int{string(model.IssueDuplicate): 1})
		})
	})
}

func TestService_Imports(t *testing.T) {
	ctx := context.Background()
	rows := []model.RawRow{
		{model.FieldFullName: "Ana Lim", model.FieldEmail: "ana@example.com"},
		{model.FieldFullName: "Ben Ong", model.FieldEmail: "ben@example.com"},
		{model.FieldFullName: "Ana L.", model.FieldEmail: "ANA@example.com"},
		{model.FieldFullName: "", model.FieldEmail: "broken"},
	}

	Convey("Given a started service", t, func() {
		svc := service.New(service.WithWorkerCount(2), service.WithQueueSize(1))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(svc.Stop)

		Convey("A synchronous import classifies every row", func() {
			res, err := svc.Import(ctx, rows, "importer")
			So(err, ShouldBeNil)
			So(res.Total, ShouldEqual, 4)
			So(res.Committed, ShouldEqual, 2)
			So(res.Duplicates, ShouldEqual, 1)
			So(res.Errors, ShouldEqual, 1)
		})

		Convey("An async import finishes in the background", func() {
			view, err := svc.SubmitImport(ctx, rows, "importer")
			So(err, ShouldBeNil)
			So(view.Rows, ShouldEqual, 4)

			done := waitJob(ctx, svc, view.ID)
			So(done.Status, ShouldEqual, types.JobDone)
			So(done.Result.Committed, ShouldEqual, 2)
			So(done.FinishedAt, ShouldNotBeNil)
		})

		Convey("An unknown job is not found", func() {
			_, err := svc.ImportJob(ctx, "nope")
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestService_Idempotency(t *testing.T) {
	ctx := context.Background()

	Convey("Given a started service", t, func() {
		svc := service.New()
		So(svc.Start(ctx), ShouldBeNil)
		Reset(svc.Stop)

		Convey("A key is claimed once until released", func() {
			claim, err := svc.SeenAndRecord(ctx, "k1")
			So(err, ShouldBeNil)
			So(claim.Seen, ShouldBeFalse)

			claim, err = svc.SeenAndRecord(ctx, "k1")
			So(err, ShouldBeNil)
			So(claim.Seen, ShouldBeTrue)
			So(claim.InFlight, ShouldBeTrue)

			svc.Unrecord(ctx, "k1")
			claim, err = svc.SeenAndRecord(ctx, "k1")
			So(err, ShouldBeNil)
			So(claim.Seen, ShouldBeFalse)
		})
	})
}
