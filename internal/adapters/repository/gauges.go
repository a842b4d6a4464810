package repository

import (
	"context"
	"sync"
	"time"

	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/model"
	"github.com/Thiri06/Contact-Info-Capture-Agent/pkg/logger"
	"github.com/Thiri06/Contact-Info-Capture-Agent/pkg/metrics"
)

// gaugeCounts is what the periodic updater publishes.
type gaugeCounts struct {
	active  int
	pending map[model.IssueType]int
	backlog int
}

type gaugeSource interface {
	gaugeCounts(ctx context.Context) (gaugeCounts, error)
}

// gaugeLoop refreshes store gauges on a ticker until stopped.
type gaugeLoop struct {
	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

func (g *gaugeLoop) start(ctx context.Context, interval time.Duration, src gaugeSource, log logger.Logger) {
	g.stopChan = make(chan struct{})
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-g.stopChan:
				return
			case <-ticker.C:
				counts, err := src.gaugeCounts(ctx)
				if err != nil {
					log.Debug(ctx, "store gauges not refreshed", logger.Error(err))
					continue
				}
				publishGauges(counts)
			}
		}
	}()
}

func (g *gaugeLoop) stop() {
	if g.stopChan == nil {
		return
	}
	g.stopOnce.Do(func() { close(g.stopChan) })
	g.wg.Wait()
}

func publishGauges(c gaugeCounts) {
	metrics.UpdateActiveRecords(c.active)
	for _, issue := range []model.IssueType{model.IssueLowConfidence, model.IssueDuplicate, model.IssueUncertainMatch} {
		metrics.UpdatePendingReviews(string(issue), c.pending[issue])
	}
	metrics.UpdateOutboxBacklog(c.backlog)
}
