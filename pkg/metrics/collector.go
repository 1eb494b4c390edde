package metrics

import (
	"context"
	"time"

	"github.com/taleweave/fable/pkg/types"
)

const (
	collectInterval = 15 * time.Second
	collectTimeout  = 5 * time.Second
)

// StatsSource supplies task counts by status plus a "total" entry.
type StatsSource interface {
	Statistics(ctx context.Context) (map[string]int64, error)
}

// WorkerSource lists workers that currently hold a live heartbeat.
type WorkerSource interface {
	List(ctx context.Context) ([]types.WorkerInfo, error)
}

// Collector periodically samples task and worker state into gauges
type Collector struct {
	stats   StatsSource
	workers WorkerSource
	stopCh  chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(stats StatsSource, workers WorkerSource) *Collector {
	return &Collector{
		stats:   stats,
		workers: workers,
		stopCh:  make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(collectInterval)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), collectTimeout)
	defer cancel()

	c.collectTaskMetrics(ctx)
	c.collectWorkerMetrics(ctx)
}

func (c *Collector) collectTaskMetrics(ctx context.Context) {
	stats, err := c.stats.Statistics(ctx)
	if err != nil {
		return
	}

	for status, count := range stats {
		if status == "total" {
			continue
		}
		TasksTotal.WithLabelValues(status).Set(float64(count))
	}
}

func (c *Collector) collectWorkerMetrics(ctx context.Context) {
	workers, err := c.workers.List(ctx)
	if err != nil {
		return
	}

	WorkersActive.Set(float64(len(workers)))
}
