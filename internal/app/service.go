// Package service composes the intake engine: store, intake pipeline,
// review manager, batch imports, idempotency and event relay. It implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/adapters/mq/events"
	jobqueue "github.com/Thiri06/Contact-Info-Capture-Agent/internal/adapters/mq/queue"
	workerpool "github.com/Thiri06/Contact-Info-Capture-Agent/internal/adapters/mq/worker"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/adapters/repository"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/batch"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/dedupe"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/intake"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/model"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/ports"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/review"
	"github.com/Thiri06/Contact-Info-Capture-Agent/pkg/logger"
	"github.com/Thiri06/Contact-Info-Capture-Agent/pkg/metrics"
)

const stopTimeout = 30 * time.Second

// Service implements the API dependencies for the intake engine.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     ports.Store
	pipeline  *intake.Pipeline
	reviews   *review.Manager
	importer  *batch.Validator
	deduper   dedupe.Deduper
	jobQueue  *jobqueue.InMemoryQueue
	pool      *workerpool.Pool
	jobs      *jobRegistry
	relay     *events.Relay
	publisher events.Publisher

	// Configuration
	workerCount   int
	queueSize     int
	dedupeSize    int
	dedupeTTL     time.Duration
	jobRetention  int
	relayInterval time.Duration
	now           func() time.Time

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the record store. The service closes it on Stop.
// An in-memory store is used when none is given.
func WithStore(store ports.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithDeduper sets the idempotency key store.
func WithDeduper(d dedupe.Deduper) Option {
	return func(s *Service) {
		if d != nil {
			s.deduper = d
		}
	}
}

// WithPublisher sets where outbox events are delivered.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithWorkerCount sets the number of import workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets how many import jobs may wait at once.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the in-memory idempotency cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithIdempotencyTTL sets how long the in-memory deduper remembers a key.
func WithIdempotencyTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.dedupeTTL = ttl
		}
	}
}

// WithJobRetention caps how many finished import jobs stay queryable.
func WithJobRetention(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.jobRetention = n
		}
	}
}

// WithRelayInterval sets how often the outbox is polled.
func WithRelayInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.relayInterval = d
		}
	}
}

// WithClock replaces the time source for every component.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:   runtime.NumCPU(),
		queueSize:     64,
		dedupeSize:    50000,
		dedupeTTL:     24 * time.Hour,
		jobRetention:  1000,
		relayInterval: 500 * time.Millisecond,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger.Info(ctx, "starting intake service...")

	if s.store == nil {
		s.store = repository.NewMemoryStore(ctx)
		s.logger.Info(ctx, "using in-memory store")
	}
	if s.deduper == nil {
		s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize), dedupe.WithTTL(s.dedupeTTL))
	}
	if s.publisher == nil {
		s.publisher = events.NewLogPublisher(s.logger.Named("events"))
	}

	s.pipeline = intake.New(s.store, intake.WithClock(s.now), intake.WithLogger(s.logger.Named("intake")))
	s.reviews = review.NewManager(s.store, review.WithClock(s.now), review.WithLogger(s.logger.Named("review")))
	s.importer = batch.New(s.pipeline, batch.WithClock(s.now), batch.WithLogger(s.logger.Named("batch")))

	s.jobs = newJobRegistry(s.jobRetention, s.now)
	s.jobQueue = jobqueue.NewInMemoryQueue(jobqueue.WithCapacity(s.queueSize))
	// Workers outlive the request that queued the job; they stop when the
	// queue is closed and drained.
	s.pool = workerpool.NewPool(s.workerCount, s.jobQueue, s.importer, s.jobs)
	s.pool.Start(context.WithoutCancel(ctx))

	s.relay = events.NewRelay(s.store, s.publisher,
		events.WithPollInterval(s.relayInterval),
		events.WithRelayLogger(s.logger.Named("relay")),
	)
	s.relay.Start(context.WithoutCancel(ctx))

	s.started = true
	s.logger.Info(ctx, "intake service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
	)
	return nil
}

// Stop drains queued imports, flushes the outbox and closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	s.logger.Info(ctx, "stopping intake service...")

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "import workers did not drain", logger.Error(err))
	}
	s.relay.Stop(ctx)
	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "closing store failed", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "intake service stopped")
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
	}
	if !s.started {
		return stats
	}

	ctx := context.Background()
	queueLen := s.jobQueue.Len(ctx)
	stats["queueLength"] = queueLen
	stats["importJobs"] = s.jobs.counts()

	if active, err := s.store.ListActive(ctx); err == nil {
		stats["activeRecords"] = len(active)
		metrics.UpdateActiveRecords(len(active))
	}
	if pending, err := s.store.CountReviews(ctx, model.StatusPending); err == nil {
		total := 0
		byIssue := make(map[string]int, len(pending))
		for issue, n := range pending {
			byIssue[string(issue)] = n
			total += n
		}
		stats["pendingReviews"] = total
		stats["pendingByIssue"] = byIssue
	}
	if d, ok := s.deduper.(interface{ Size() int64 }); ok {
		stats["idempotencyKeys"] = d.Size()
	}
	return stats
}

// running returns the started components or ErrNotStarted.
func (s *Service) running() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}
