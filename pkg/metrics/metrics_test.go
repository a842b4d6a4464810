package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestManagerCreation(t *testing.T) {
	Convey("Given a dedicated registry", t, func() {
		registry := prometheus.NewRegistry()

		Convey("When creating a manager with custom options", func() {
			m := NewManager(
				WithNamespace("test"),
				WithSubsystem("intake"),
				WithHistogramBuckets([]float64{1, 10}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then its collectors are registered under the namespace", func() {
				m.intakeTotal.WithLabelValues("MANUAL", "committed").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				names := make(map[string]bool, len(families))
				for _, f := range families {
					names[f.GetName()] = true
				}
				So(names["test_intake_intake_total"], ShouldBeTrue)
				So(testutil.ToFloat64(m.intakeTotal.WithLabelValues("MANUAL", "committed")), ShouldEqual, 1)
			})
		})
	})
}

func TestGlobalHelpers(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording intake and review outcomes", func() {
			before := testutil.ToFloat64(globalManager.reviewQueued.WithLabelValues("DUPLICATE"))
			RecordReviewQueued("DUPLICATE")
			RecordIntake("OCR", "queued")
			UpdatePendingReviews("DUPLICATE", 4)
			UpdateQueueCapacity(10)

			Convey("Then the collectors move", func() {
				So(testutil.ToFloat64(globalManager.reviewQueued.WithLabelValues("DUPLICATE")), ShouldEqual, before+1)
				So(testutil.ToFloat64(globalManager.pendingReviews.WithLabelValues("DUPLICATE")), ShouldEqual, 4)
				So(testutil.ToFloat64(globalManager.queueCapacity), ShouldEqual, 10)
			})
		})

		Convey("Then the custom registry gathers without error", func() {
			_, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
		})
	})
}
