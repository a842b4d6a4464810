package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/adapters/mq/events"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/adapters/repository"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/model"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/ports"
)

type capture struct {
	mu     sync.Mutex
	got    []model.DomainEvent
	failOn string
}

func (c *capture) Publish(_ context.Context, ev model.DomainEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ev.ID == c.failOn {
		return errors.New("broker down")
	}
	c.got = append(c.got, ev)
	return nil
}

func (c *capture) ids() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.got))
	for _, ev := range c.got {
		out = append(out, ev.ID)
	}
	return out
}

type fakeConn struct{ msgs []*nats.Msg }

func (f *fakeConn) PublishMsg(m *nats.Msg) error {
	f.msgs = append(f.msgs, m)
	return nil
}

func appendEvents(ctx context.Context, store ports.Store, ids ...string) {
	err := store.RunInTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		for _, id := range ids {
			ev, err := model.NewEvent(id, model.EventReviewQueued, "item-"+id, time.Now().UTC(), model.ReviewQueuedPayload{})
			if err != nil {
				return err
			}
			if err := tx.AppendEvent(ctx, ev); err != nil {
				return err
			}
		}
		return nil
	})
	So(err, ShouldBeNil)
}

func TestRelay(t *testing.T) {
	ctx := context.Background()

	Convey("Given an outbox with three events", t, func() {
		store := repository.NewMemoryStore(ctx)
		Reset(func() { _ = store.Close() })
		appendEvents(ctx, store, "e1", "e2", "e3")

		Convey("Flush publishes them in order and empties the outbox", func() {
			pub := &capture{}
			relay := events.NewRelay(store, pub, events.WithBatchSize(2))
			n, err := relay.Flush(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 3)
			So(pub.ids(), ShouldResemble, []string{"e1", "e2", "e3"})

			left, err := store.PendingEvents(ctx, 10)
			So(err, ShouldBeNil)
			So(left, ShouldBeEmpty)
		})

		Convey("A failed publish stops at that event and retries it later", func() {
			pub := &capture{failOn: "e2"}
			relay := events.NewRelay(store, pub)
			n, err := relay.Flush(ctx)
			So(err, ShouldNotBeNil)
			So(n, ShouldEqual, 1)

			left, _ := store.PendingEvents(ctx, 10)
			So(len(left), ShouldEqual, 2)
			So(left[0].ID, ShouldEqual, "e2")

			pub.failOn = ""
			n, err = relay.Flush(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 2)
			So(pub.ids(), ShouldResemble, []string{"e1", "e2", "e3"})
		})

		Convey("The background loop delivers and Stop flushes the rest", func() {
			pub := &capture{}
			relay := events.NewRelay(store, pub, events.WithPollInterval(5*time.Millisecond))
			relay.Start(ctx)
			appendEvents(ctx, store, "e4")
			relay.Stop(ctx)
			So(pub.ids(), ShouldResemble, []string{"e1", "e2", "e3", "e4"})
		})
	})
}

func TestNATSPublisher(t *testing.T) {
	Convey("NATSPublisher sends JSON with a dedupe header", t, func() {
		conn := &fakeConn{}
		pub := events.NewNATSPublisher(conn, "")
		ev, err := model.NewEvent("e1", model.EventRecordCommitted, "r1", time.Now().UTC(), model.RecordCommittedPayload{})
		So(err, ShouldBeNil)

		So(pub.Publish(context.Background(), ev), ShouldBeNil)
		So(len(conn.msgs), ShouldEqual, 1)
		msg := conn.msgs[0]
		So(msg.Subject, ShouldEqual, "attendees.RecordCommitted")
		So(msg.Header.Get(nats.MsgIdHdr), ShouldEqual, "e1")

		var decoded model.DomainEvent
		So(json.Unmarshal(msg.Data, &decoded), ShouldBeNil)
		So(decoded.AggregateID, ShouldEqual, "r1")

		Convey("A cancelled context publishes nothing", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			So(pub.Publish(ctx, ev), ShouldNotBeNil)
			So(len(conn.msgs), ShouldEqual, 1)
		})
	})

	Convey("LogPublisher never fails", t, func() {
		So(events.NewLogPublisher(nil).Publish(context.Background(), model.DomainEvent{ID: "x"}), ShouldBeNil)
	})
}
