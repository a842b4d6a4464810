package seeder_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/adapters/http/api"
	app "github.com/Thiri06/Contact-Info-Capture-Agent/internal/app"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/seeder"
)

func TestRun(t *testing.T) {
	ctx := context.Background()

	Convey("Given a running intake service", t, func() {
		svc := app.New(app.WithWorkerCount(1))
		So(svc.Start(ctx), ShouldBeNil)
		srv := httptest.NewServer(api.NewServer(svc, svc).Routes())
		Reset(func() {
			srv.Close()
			svc.Stop()
		})

		cfg := seeder.DefaultConfig()
		cfg.BaseURL = srv.URL
		cfg.Count = 20
		cfg.Workers = 2
		cfg.Seed = 11
		cfg.CaptureRatio = 0
		cfg.ReplayRatio = 0.1
		cfg.Timeout = 5 * time.Second

		Convey("Every submission is accounted for and replays are recognized", func() {
			stats, err := seeder.Run(ctx, &cfg)
			So(err, ShouldBeNil)
			So(stats.Generated, ShouldEqual, 20)
			So(stats.Submitted, ShouldEqual, 22)
			So(stats.Failed, ShouldEqual, 0)
			So(stats.Rejected, ShouldEqual, 0)
			So(stats.Replayed, ShouldEqual, 2)
			So(stats.Committed+stats.Queued, ShouldEqual, 20)
			So(stats.Queued, ShouldBeGreaterThanOrEqualTo, stats.Duplicates)
			So(stats.PendingReviews, ShouldEqual, stats.Queued)
		})

		Convey("An unreachable service fails the health check", func() {
			cfg.BaseURL = "http://127.0.0.1:1"
			_, err := seeder.Run(ctx, &cfg)
			So(err, ShouldNotBeNil)
		})
	})
}
