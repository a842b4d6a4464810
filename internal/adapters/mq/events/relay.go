package events

import (
	"context"
	"sync"
	"time"

	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/ports"
	"github.com/Thiri06/Contact-Info-Capture-Agent/pkg/logger"
	"github.com/Thiri06/Contact-Info-Capture-Agent/pkg/metrics"
)

const (
	defaultPollInterval = 500 * time.Millisecond
	defaultBatchSize    = 100
)

// Relay polls the outbox and publishes pending events in order. An event is
// marked dispatched only after Publish succeeds, so delivery is at least once.
type Relay struct {
	outbox    ports.Outbox
	publisher Publisher
	interval  time.Duration
	batch     int
	logger    logger.Logger

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// RelayOption configures a Relay.
type RelayOption func(*Relay)

// WithPollInterval sets how often the outbox is polled.
func WithPollInterval(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithBatchSize caps the events read per poll.
func WithBatchSize(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.batch = n
		}
	}
}

// WithRelayLogger sets a custom logger.
func WithRelayLogger(l logger.Logger) RelayOption {
	return func(r *Relay) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRelay builds a relay from outbox to publisher.
func NewRelay(outbox ports.Outbox, publisher Publisher, opts ...RelayOption) *Relay {
	r := &Relay{
		outbox:    outbox,
		publisher: publisher,
		interval:  defaultPollInterval,
		batch:     defaultBatchSize,
		stopChan:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.Get().Named("relay")
	}
	return r
}

// Start launches the polling loop.
func (r *Relay) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopChan:
				return
			case <-ticker.C:
				if _, err := r.Flush(ctx); err != nil {
					r.logger.Warn(ctx, "outbox flush failed", logger.Error(err))
				}
			}
		}
	}()
}

// Stop ends the loop and makes one last delivery attempt.
func (r *Relay) Stop(ctx context.Context) {
	r.stopOnce.Do(func() { close(r.stopChan) })
	r.wg.Wait()
	if _, err := r.Flush(ctx); err != nil {
		r.logger.Warn(ctx, "final outbox flush failed", logger.Error(err))
	}
}

// Flush publishes pending events until the outbox is empty or a publish
// fails. It returns the number of events delivered.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	delivered := 0
	for {
		evs, err := r.outbox.PendingEvents(ctx, r.batch)
		if err != nil {
			return delivered, err
		}
		if len(evs) == 0 {
			return delivered, nil
		}

		ids := make([]string, 0, len(evs))
		var pubErr error
		for _, ev := range evs {
			if err := r.publisher.Publish(ctx, ev); err != nil {
				metrics.RecordEventPublishError(string(ev.Type))
				pubErr = err
				break
			}
			metrics.RecordEventPublished(string(ev.Type))
			ids = append(ids, ev.ID)
		}

		if len(ids) > 0 {
			if err := r.outbox.MarkDispatched(ctx, ids...); err != nil {
				return delivered, err
			}
			delivered += len(ids)
		}
		if pubErr != nil {
			return delivered, pubErr
		}
		if len(evs) < r.batch {
			return delivered, nil
		}
	}
}
