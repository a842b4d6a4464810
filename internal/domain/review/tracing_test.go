package review_test

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/adapters/repository"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/intake"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/model"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/ports"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/review"
)

func itemID(s sdktrace.ReadOnlySpan) string {
	for _, kv := range s.Attributes() {
		if kv.Key == attribute.Key("review.item_id") {
			return kv.Value.AsString()
		}
	}
	return ""
}

func TestManagerSpans(t *testing.T) {
	ctx := context.Background()

	Convey("Given a duplicate and a manager recording its spans", t, func() {
		store := repository.NewMemoryStore(ctx)
		Reset(func() { _ = store.Close() })
		p := intake.New(store)
		_, err := p.Submit(ctx, attendee("Ana", "ana@example.com", "", ""), "")
		So(err, ShouldBeNil)
		queued, err := p.Submit(ctx, attendee("Ana", "ana@example.com", "", "Acme"), "")
		So(err, ShouldBeNil)
		id := queued.ReviewItem.ID

		rec := tracetest.NewSpanRecorder()
		tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
		Reset(func() { _ = tp.Shutdown(ctx) })

		Convey("A merge is recorded on a review.merge span", func() {
			m := review.NewManager(store, review.WithTracerProvider(tp))
			_, err := m.Merge(ctx, id, "staff")
			So(err, ShouldBeNil)

			spans := rec.Ended()
			So(len(spans), ShouldEqual, 1)
			So(spans[0].Name(), ShouldEqual, "review.merge")
			So(itemID(spans[0]), ShouldEqual, id)
			So(spans[0].Status().Code, ShouldEqual, codes.Unset)
		})

		Convey("A merge the store fails is marked as an error", func() {
			broken := &racingStore{Store: store, commit: func(context.Context, ports.Tx) error {
				return model.Unavailable("lock", errors.New("lock wait timeout"))
			}}
			m := review.NewManager(broken, review.WithTracerProvider(tp))
			_, err := m.Merge(ctx, id, "staff")
			So(errors.Is(err, model.ErrStoreUnavailable), ShouldBeTrue)

			spans := rec.Ended()
			So(len(spans), ShouldEqual, 1)
			So(spans[0].Name(), ShouldEqual, "review.merge")
			So(itemID(spans[0]), ShouldEqual, id)
			So(spans[0].Status().Code, ShouldEqual, codes.Error)
			So(spans[0].Status().Description, ShouldContainSubstring, "lock wait timeout")
		})

		Convey("A stale resolution is not an error span", func() {
			m := review.NewManager(store, review.WithTracerProvider(tp))
			_, err := m.Reject(ctx, id, "staff")
			So(err, ShouldBeNil)
			_, err = m.Merge(ctx, id, "staff")
			So(errors.Is(err, model.ErrStaleResolution), ShouldBeTrue)

			spans := rec.Ended()
			So(len(spans), ShouldEqual, 2)
			So(spans[1].Name(), ShouldEqual, "review.merge")
			So(spans[1].Status().Code, ShouldEqual, codes.Unset)
		})
	})
}
