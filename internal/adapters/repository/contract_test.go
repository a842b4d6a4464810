package repository_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/adapters/repository"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/model"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/ports"
)

var errBoom = errors.New("boom")

func record(id, email, phone string, at time.Time) model.AttendeeRecord {
	return model.AttendeeRecord{
		ID:          id,
		FullName:    "Person " + id,
		Email:       email,
		PhoneNumber: phone,
		Source:      model.SourceManual,
		Timestamp:   at,
	}
}

func pending(id string, cand model.AttendeeRecord, issue model.IssueType, at time.Time) model.ReviewItem {
	return model.ReviewItem{
		ID:        id,
		Candidate: cand,
		IssueType: issue,
		CreatedAt: at,
		Status:    model.StatusPending,
	}
}

func event(id string, at time.Time) model.DomainEvent {
	ev, err := model.NewEvent(id, model.EventRecordCommitted, "agg-"+id, at, map[string]string{"id": id})
	if err != nil {
		panic(err)
	}
	return ev
}

// storeContract exercises the behavior every ports.Store must share.
func storeContract(t *testing.T, open func(t *testing.T) ports.Store) {
	t.Helper()
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	Convey("Given an empty store", t, func() {
		s := open(t)
		Reset(func() { _ = s.Close() })

		Convey("A committed record is readable with all its fields", func() {
			rec := record("r1", "ana@example.com", "+15550001", t0)
			rec.Source = model.SourceOCR
			rec.FieldConfidence = map[model.Field]float64{model.FieldEmail: 88.5}
			rec.MergedFrom = []string{"r0"}
			err := s.RunInTx(ctx, func(ctx context.Context, tx ports.Tx) error {
				return tx.InsertRecord(ctx, rec)
			})
			So(err, ShouldBeNil)

			got, err := s.GetRecord(ctx, "r1")
			So(err, ShouldBeNil)
			So(got.Email, ShouldEqual, "ana@example.com")
			So(got.Source, ShouldEqual, model.SourceOCR)
			So(got.FieldConfidence[model.FieldEmail], ShouldEqual, 88.5)
			So(got.MergedFrom, ShouldResemble, []string{"r0"})
			So(got.Timestamp.Equal(t0), ShouldBeTrue)
			So(got.Active(), ShouldBeTrue)
		})

		Convey("A missing record is ErrNotFound", func() {
			_, err := s.GetRecord(ctx, "nope")
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})

		Convey("A failed transaction leaves nothing behind", func() {
			err := s.RunInTx(ctx, func(ctx context.Context, tx ports.Tx) error {
				if err := tx.InsertRecord(ctx, record("r1", "ana@example.com", "", t0)); err != nil {
					return err
				}
				if err := tx.AppendEvent(ctx, event("e1", t0)); err != nil {
					return err
				}
				return errBoom
			})
			So(errors.Is(err, errBoom), ShouldBeTrue)

			_, err = s.GetRecord(ctx, "r1")
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			evs, err := s.PendingEvents(ctx, 10)
			So(err, ShouldBeNil)
			So(evs, ShouldBeEmpty)
		})

		Convey("Lookups see writes staged earlier in the same transaction", func() {
			err := s.RunInTx(ctx, func(ctx context.Context, tx ports.Tx) error {
				if err := tx.InsertRecord(ctx, record("r1", "ana@example.com", "+15550001", t0)); err != nil {
					return err
				}
				byEmail, err := tx.FindByEmail(ctx, "ana@example.com")
				if err != nil {
					return err
				}
				byPhone, err := tx.FindByPhone(ctx, "+15550001")
				if err != nil {
					return err
				}
				if len(byEmail) != 1 || len(byPhone) != 1 {
					return fmt.Errorf("got %d by email, %d by phone", len(byEmail), len(byPhone))
				}
				return nil
			})
			So(err, ShouldBeNil)
		})

		Convey("A second active non-override record with the same email is rejected", func() {
			So(s.RunInTx(ctx, func(ctx context.Context, tx ports.Tx) error {
				return tx.InsertRecord(ctx, record("r1", "ana@example.com", "", t0))
			}), ShouldBeNil)

			err := s.RunInTx(ctx, func(ctx context.Context, tx ports.Tx) error {
				return tx.InsertRecord(ctx, record("r2", "ana@example.com", "", t0))
			})
			So(errors.Is(err, model.ErrAlreadyExists), ShouldBeTrue)

			Convey("But an override record may share it", func() {
				override := record("r3", "ana@example.com", "", t0)
				override.DuplicateOverride = true
				So(s.RunInTx(ctx, func(ctx context.Context, tx ports.Tx) error {
					return tx.InsertRecord(ctx, override)
				}), ShouldBeNil)

				active, err := s.ListActive(ctx)
				So(err, ShouldBeNil)
				So(len(active), ShouldEqual, 2)
			})
		})

		Convey("Retiring a record hides it from lookups and exports", func() {
			So(s.RunInTx(ctx, func(ctx context.Context, tx ports.Tx) error {
				return tx.InsertRecord(ctx, record("r1", "ana@example.com", "+15550001", t0))
			}), ShouldBeNil)

			merged := record("r2", "ana@example.com", "+15550001", t0.Add(time.Minute))
			merged.MergedFrom = []string{"r1"}
			So(s.RunInTx(ctx, func(ctx context.Context, tx ports.Tx) error {
				if err := tx.RetireRecord(ctx, "r1", "r2", t0.Add(time.Minute)); err != nil {
					return err
				}
				return tx.InsertRecord(ctx, merged)
			}), ShouldBeNil)

			old, err := s.GetRecord(ctx, "r1")
			So(err, ShouldBeNil)
			So(old.SupersededBy, ShouldEqual, "r2")
			So(old.SupersededAt, ShouldNotBeNil)

			active, err := s.ListActive(ctx)
			So(err, ShouldBeNil)
			So(len(active), ShouldEqual, 1)
			So(active[0].ID, ShouldEqual, "r2")

			Convey("And retiring it again is ErrSuperseded", func() {
				err := s.RunInTx(ctx, func(ctx context.Context, tx ports.Tx) error {
					return tx.RetireRecord(ctx, "r1", "r2", t0)
				})
				So(errors.Is(err, model.ErrSuperseded), ShouldBeTrue)
			})
		})

		Convey("Review items resolve exactly once", func() {
			cand := record("", "ben@example.com", "", t0)
			cand.FieldConfidence = map[model.Field]float64{model.FieldFullName: 30}
			item := pending("i1", cand, model.IssueLowConfidence, t0)
			item.LowFields = []model.Field{model.FieldFullName}
			So(s.RunInTx(ctx, func(ctx context.Context, tx ports.Tx) error {
				return tx.InsertReview(ctx, item)
			}), ShouldBeNil)

			got, err := s.GetReview(ctx, "i1")
			So(err, ShouldBeNil)
			So(got.Status, ShouldEqual, model.StatusPending)
			So(got.LowFields, ShouldResemble, []model.Field{model.FieldFullName})
			So(got.Candidate.FieldConfidence[model.FieldFullName], ShouldEqual, 30)

			res := model.Resolution{Status: model.StatusRejected, ResolvedBy: "staff-1", ResolvedAt: t0.Add(time.Hour)}
			So(s.RunInTx(ctx, func(ctx context.Context, tx ports.Tx) error {
				return tx.ResolveReview(ctx, "i1", res)
			}), ShouldBeNil)

			err = s.RunInTx(ctx, func(ctx context.Context, tx ports.Tx) error {
				return tx.ResolveReview(ctx, "i1", model.Resolution{Status: model.StatusApproved, ResolvedAt: t0})
			})
			var stale *model.StaleResolutionError
			So(errors.As(err, &stale), ShouldBeTrue)
			So(stale.Status, ShouldEqual, model.StatusRejected)

			got, err = s.GetReview(ctx, "i1")
			So(err, ShouldBeNil)
			So(got.Status, ShouldEqual, model.StatusRejected)
			So(got.ResolvedBy, ShouldEqual, "staff-1")
		})

		Convey("Review listings filter and count by status and issue", func() {
			So(s.RunInTx(ctx, func(ctx context.Context, tx ports.Tx) error {
				for i, issue := range []model.IssueType{model.IssueDuplicate, model.IssueLowConfidence, model.IssueDuplicate} {
					id := fmt.Sprintf("i%d", i+1)
					if err := tx.InsertReview(ctx, pending(id, record("", "", "", t0), issue, t0.Add(time.Duration(i)*time.Second))); err != nil {
						return err
					}
				}
				return nil
			}), ShouldBeNil)

			dups, err := s.ListReviews(ctx, model.ReviewFilter{IssueType: model.IssueDuplicate})
			So(err, ShouldBeNil)
			So(len(dups), ShouldEqual, 2)
			So(dups[0].ID, ShouldEqual, "i1")

			limited, err := s.ListReviews(ctx, model.ReviewFilter{Status: model.StatusPending, Limit: 1})
			So(err, ShouldBeNil)
			So(len(limited), ShouldEqual, 1)

			counts, err := s.CountReviews(ctx, model.StatusPending)
			So(err, ShouldBeNil)
			So(counts[model.IssueDuplicate], ShouldEqual, 2)
			So(counts[model.IssueLowConfidence], ShouldEqual, 1)
		})

		Convey("The outbox returns events in order until dispatched", func() {
			So(s.RunInTx(ctx, func(ctx context.Context, tx ports.Tx) error {
				for i := 1; i <= 3; i++ {
					if err := tx.AppendEvent(ctx, event(fmt.Sprintf("e%d", i), t0)); err != nil {
						return err
					}
				}
				return nil
			}), ShouldBeNil)

			evs, err := s.PendingEvents(ctx, 2)
			So(err, ShouldBeNil)
			So(len(evs), ShouldEqual, 2)
			So(evs[0].ID, ShouldEqual, "e1")
			So(evs[1].ID, ShouldEqual, "e2")

			So(s.MarkDispatched(ctx, "e1", "e2"), ShouldBeNil)
			evs, err = s.PendingEvents(ctx, 10)
			So(err, ShouldBeNil)
			So(len(evs), ShouldEqual, 1)
			So(evs[0].ID, ShouldEqual, "e3")

			var payload map[string]string
			So(evs[0].Decode(&payload), ShouldBeNil)
			So(payload["id"], ShouldEqual, "e3")
		})

		Convey("Concurrent transactions on the same email commit only one record", func() {
			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				commits int
			)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					err := s.RunInTx(ctx, func(ctx context.Context, tx ports.Tx) error {
						if err := tx.LockKey(ctx, "email:race@example.com"); err != nil {
							return err
						}
						existing, err := tx.FindByEmail(ctx, "race@example.com")
						if err != nil {
							return err
						}
						if len(existing) > 0 {
							return nil
						}
						if err := tx.InsertRecord(ctx, record(fmt.Sprintf("race-%d", i), "race@example.com", "", t0)); err != nil {
							return err
						}
						mu.Lock()
						commits++
						mu.Unlock()
						return nil
					})
					if err != nil && !errors.Is(err, model.ErrAlreadyExists) {
						t.Errorf("unexpected error: %v", err)
					}
				}(i)
			}
			wg.Wait()

			active, err := s.ListActive(ctx)
			So(err, ShouldBeNil)
			So(len(active), ShouldEqual, 1)
			So(commits, ShouldBeGreaterThanOrEqualTo, 1)
		})
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, func(t *testing.T) ports.Store {
		return repository.NewMemoryStore(context.Background())
	})
}

func TestSQLiteStore(t *testing.T) {
	n := 0
	storeContract(t, func(t *testing.T) ports.Store {
		n++
		path := filepath.Join(t.TempDir(), fmt.Sprintf("intake-%d.db", n))
		s, err := repository.NewSQLiteStore(context.Background(), path)
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		return s
	})
}

func TestOpen(t *testing.T) {
	Convey("Open selects a store by driver name", t, func() {
		ctx := context.Background()

		s, err := repository.Open(ctx, repository.DriverMemory, "")
		So(err, ShouldBeNil)
		So(s.Close(), ShouldBeNil)

		_, err = repository.Open(ctx, "cassandra", "")
		So(errors.Is(err, repository.ErrUnknownDriver), ShouldBeTrue)

		_, err = repository.Open(ctx, repository.DriverPostgres, "")
		So(errors.Is(err, repository.ErrMissingDSN), ShouldBeTrue)
	})
}
