package janitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/taleweave/fable/pkg/config"
	"github.com/taleweave/fable/pkg/dispatch"
	"github.com/taleweave/fable/pkg/log"
	"github.com/taleweave/fable/pkg/metrics"
	"github.com/taleweave/fable/pkg/repository"
	"github.com/taleweave/fable/pkg/results"
	"github.com/taleweave/fable/pkg/uploads"
)

// Janitor reclaims storage left behind by finished work: expired
// terminal task records with their fast-tier result blobs, consumer
// group entries of long-dead workers, and stale upload files.
//
// One deployment runs exactly one logical janitor, co-located with the
// API process. It fires on a fixed interval and opportunistically from
// the task-create path through MaybeRun.
type Janitor struct {
	cfg     *config.Config
	repo    *repository.TaskRepository
	results *results.ResultStore
	disp    *dispatch.Dispatcher
	uploads *uploads.Manager
	logger  zerolog.Logger

	lastRun  atomic.Int64 // unix nanoseconds of the last cycle start
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a janitor. uploads may be nil for deployments without an
// upload directory.
func New(cfg *config.Config, repo *repository.TaskRepository, res *results.ResultStore, disp *dispatch.Dispatcher, up *uploads.Manager) *Janitor {
	return &Janitor{
		cfg:     cfg,
		repo:    repo,
		results: res,
		disp:    disp,
		uploads: up,
		logger:  log.WithComponent("janitor"),
		stopCh:  make(chan struct{}),
	}
}

// Start begins the periodic collection loop.
func (j *Janitor) Start() {
	go j.run()
}

// Stop ends the loop. A cycle already underway finishes.
func (j *Janitor) Stop() {
	j.stopOnce.Do(func() { close(j.stopCh) })
}

func (j *Janitor) run() {
	ticker := time.NewTicker(j.cfg.GCCycle())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.Collect(context.Background())
		case <-j.stopCh:
			return
		}
	}
}

// MaybeRun runs a cycle when at least one interval has passed since the
// last one. CreateTask calls this on every request; the atomic guard
// picks a single winner per interval and everyone else returns
// immediately.
func (j *Janitor) MaybeRun(ctx context.Context) {
	last := j.lastRun.Load()
	now := time.Now().UnixNano()
	if now-last < int64(j.cfg.GCCycle()) {
		return
	}
	if !j.lastRun.CompareAndSwap(last, now) {
		return
	}
	j.collect(ctx)
}

// Collect runs one cycle unconditionally and resets the interval guard.
func (j *Janitor) Collect(ctx context.Context) {
	j.lastRun.Store(time.Now().UnixNano())
	j.collect(ctx)
}

func (j *Janitor) collect(ctx context.Context) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.GCCycleDuration)
		metrics.GCCycles.Inc()
	}()

	tasks := j.collectTasks(ctx)
	consumers := j.collectConsumers(ctx)
	files := j.sweepUploads()

	j.logger.Info().
		Int("tasks", tasks).
		Int("consumers", consumers).
		Int("upload_files", files).
		Dur("took", timer.Duration()).
		Msg("Collection cycle finished")
}

// collectTasks deletes terminal tasks whose last update is older than
// the retention window, along with their fast-tier result blobs. The
// durable result exports stay on disk for offline audit.
func (j *Janitor) collectTasks(ctx context.Context) int {
	tasks, err := j.repo.List(ctx, "", 0)
	if err != nil {
		j.logger.Error().Err(err).Msg("Failed to list tasks")
		return 0
	}

	cutoff := time.Now().UTC().Add(-j.cfg.RetentionWindow())
	removed := 0
	for _, task := range tasks {
		if !task.Status.Terminal() || !task.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := j.repo.Delete(ctx, task.TaskID); err != nil {
			j.logger.Error().Err(err).Str("task_id", task.TaskID).Msg("Failed to delete expired task")
			continue
		}
		if err := j.results.Delete(ctx, task.TaskID); err != nil {
			j.logger.Error().Err(err).Str("task_id", task.TaskID).Msg("Failed to delete result blob")
		}
		removed++
	}

	if removed > 0 {
		j.logger.Info().Int("count", removed).Msg("Removed expired tasks")
	}
	return removed
}

// collectConsumers drops group consumers idle past the threshold. Their
// pending entries have long been claimable by orphan sweeps.
func (j *Janitor) collectConsumers(ctx context.Context) int {
	removed, err := j.disp.DeadConsumers(ctx, j.cfg.ConsumerIdleThreshold())
	if err != nil {
		j.logger.Error().Err(err).Msg("Failed to remove dead consumers")
		return 0
	}
	return removed
}

func (j *Janitor) sweepUploads() int {
	if j.uploads == nil {
		return 0
	}
	removed, err := j.uploads.Sweep(j.cfg.RetentionWindow())
	if err != nil {
		j.logger.Error().Err(err).Msg("Failed to sweep upload directory")
		return 0
	}
	return removed
}
