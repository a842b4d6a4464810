package seeder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Thiri06/Contact-Info-Capture-Agent/pkg/logger"
)

// Run generates submissions, sends them concurrently, replays a share of
// them with their original keys and reports what the service did.
func Run(ctx context.Context, cfg *Config) (Stats, error) {
	log := logger.Get().Named("seeder")
	start := time.Now()
	var stats Stats

	log.Info(ctx, "starting attendee seeding",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("count", cfg.Count),
		logger.Int("workers", cfg.Workers),
		logger.Float64("duplicateRatio", cfg.DuplicateRatio),
	)

	client := NewClient(cfg.BaseURL, cfg.StaffID, cfg.Timeout)
	if err := client.Health(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	subs := NewGenerator(cfg.Seed).Generate(cfg)
	stats.Generated = len(subs)
	for _, s := range subs {
		if s.Duplicate {
			stats.Duplicates++
		}
		if s.Kind == KindCapture {
			stats.Captures++
		}
	}

	// Duplicates must land after the attendee they repeat, so the first
	// occurrences go out before the rest.
	var firsts, repeats []Submission
	for _, s := range subs {
		if s.Duplicate {
			repeats = append(repeats, s)
		} else {
			firsts = append(firsts, s)
		}
	}
	submit(ctx, client, cfg.Workers, firsts, &stats)
	submit(ctx, client, cfg.Workers, repeats, &stats)

	if n := int(float64(len(subs)) * cfg.ReplayRatio); n > 0 {
		submit(ctx, client, cfg.Workers, subs[:n], &stats)
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	pending, err := client.PendingReviews(ctx)
	if err != nil {
		log.Warn(ctx, "could not count pending reviews", logger.Error(err))
	}
	stats.PendingReviews = pending
	stats.Duration = time.Since(start)

	log.Info(ctx, "seeding finished",
		logger.Int("submitted", stats.Submitted),
		logger.Int("committed", stats.Committed),
		logger.Int("queued", stats.Queued),
		logger.Int("rejected", stats.Rejected),
		logger.Int("replayed", stats.Replayed),
		logger.Int("failed", stats.Failed),
		logger.Duration("elapsed", stats.Duration),
	)
	return stats, nil
}

// submit fans subs out over a worker pool and folds results into stats.
func submit(ctx context.Context, client *Client, workers int, subs []Submission, stats *Stats) {
	if workers < 1 {
		workers = 1
	}
	jobs := make(chan Submission, workers*2)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range jobs {
				r := client.Submit(ctx, s)
				mu.Lock()
				stats.add(r)
				mu.Unlock()
			}
		}()
	}

send:
	for _, s := range subs {
		select {
		case <-ctx.Done():
			break send
		case jobs <- s:
		}
	}
	close(jobs)
	wg.Wait()
}
