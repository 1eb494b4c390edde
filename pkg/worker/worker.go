package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/taleweave/fable/pkg/config"
	"github.com/taleweave/fable/pkg/dispatch"
	"github.com/taleweave/fable/pkg/engine"
	"github.com/taleweave/fable/pkg/log"
	"github.com/taleweave/fable/pkg/metrics"
	"github.com/taleweave/fable/pkg/pipeline"
	"github.com/taleweave/fable/pkg/repository"
	"github.com/taleweave/fable/pkg/results"
	"github.com/taleweave/fable/pkg/store"
	"github.com/taleweave/fable/pkg/types"
)

// terminalWriteTimeout bounds the status write and acknowledgement that
// close out a task. These run on fresh contexts so a task that blew its
// own deadline can still be marked FAILED.
const terminalWriteTimeout = 10 * time.Second

// Runner executes the translation pipeline for one task. Implemented by
// pipeline.Runner; tests substitute scripted fakes.
type Runner interface {
	Run(ctx context.Context, task *types.Task, cancelled pipeline.Probe) (types.PackedResults, error)
}

// Worker is a long-running process that heartbeats, claims tasks from
// the dispatcher and executes pipelines on a bounded pool. It drains
// in-flight work on shutdown and deregisters itself.
type Worker struct {
	id       string
	cfg      *config.Config
	store    store.Store
	repo     *repository.TaskRepository
	disp     *dispatch.Dispatcher
	results  *results.ResultStore
	runner   Runner
	engines  *engine.Bundle
	registry *Registry
	pool     *Pool
	logger   zerolog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once

	lastBeat  time.Time
	completed atomic.Int64
	failed    atomic.Int64

	// gateDelay is how long the loop parks when the health gate fails.
	gateDelay time.Duration
}

// New creates a worker with a generated id.
func New(cfg *config.Config, st store.Store, repo *repository.TaskRepository, disp *dispatch.Dispatcher, res *results.ResultStore, runner Runner, engines *engine.Bundle) *Worker {
	id := fmt.Sprintf("worker-%s", uuid.NewString()[:8])
	return &Worker{
		id:        id,
		cfg:       cfg,
		store:     st,
		repo:      repo,
		disp:      disp,
		results:   res,
		runner:    runner,
		engines:   engines,
		registry:  NewRegistry(st),
		pool:      NewPool(cfg.WorkerMaxThreads),
		logger:    log.WithWorkerID(id),
		stopCh:    make(chan struct{}),
		gateDelay: 10 * time.Second,
	}
}

// ID returns the worker's consumer name.
func (w *Worker) ID() string {
	return w.id
}

// Run executes the main loop until Stop is called: heartbeat, health
// gate, orphan sweep, claim, execute. It returns after in-flight tasks
// have drained and the worker has deregistered.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().
		Int("pool_size", w.cfg.WorkerMaxThreads).
		Int("batch_size", w.cfg.WorkerBatchSize).
		Msg("Worker started")

	for w.running() {
		w.heartbeat(ctx, types.WorkerStateActive)

		if !w.healthy(ctx) {
			w.pause(w.gateDelay)
			continue
		}

		orphans, err := w.disp.ClaimOrphaned(ctx, w.id)
		if err != nil {
			w.logger.Error().Err(err).Msg("Orphan sweep failed")
		}
		claims, err := w.disp.ClaimPending(ctx, w.id, w.cfg.WorkerBatchSize)
		if err != nil {
			w.logger.Error().Err(err).Msg("Claim failed")
		}

		for _, claim := range append(orphans, claims...) {
			if !w.running() {
				// Shutting down: leave the claim for the orphan sweep
				// of another worker.
				break
			}
			claim := claim
			w.pool.Submit(func() { w.execute(ctx, claim) })
		}
		w.pool.Wait()
	}

	w.pool.Wait()
	w.heartbeat(ctx, types.WorkerStateStopping)
	if err := w.registry.Deregister(context.Background(), w.id); err != nil {
		w.logger.Error().Err(err).Msg("Failed to deregister")
	}
	w.logger.Info().
		Int64("completed", w.completed.Load()).
		Int64("failed", w.failed.Load()).
		Msg("Worker stopped")
	return nil
}

// Stop signals the main loop to finish. Safe to call more than once;
// Run returns once in-flight tasks have drained.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

func (w *Worker) running() bool {
	select {
	case <-w.stopCh:
		return false
	default:
		return true
	}
}

// pause sleeps without delaying shutdown.
func (w *Worker) pause(d time.Duration) {
	select {
	case <-time.After(d):
	case <-w.stopCh:
	}
}

// heartbeat publishes the worker record when the configured cadence has
// elapsed. The stopping beat always goes out so observers can see the
// drain before the record disappears.
func (w *Worker) heartbeat(ctx context.Context, state types.WorkerState) {
	now := time.Now().UTC()
	if state == types.WorkerStateActive && !w.lastBeat.IsZero() && now.Sub(w.lastBeat) < w.cfg.HeartbeatInterval() {
		return
	}
	w.lastBeat = now

	err := w.registry.Heartbeat(ctx, types.WorkerInfo{
		WorkerID:       w.id,
		Status:         state,
		LastHeartbeat:  now,
		ActiveTasks:    w.pool.InFlight(),
		CompletedTasks: int(w.completed.Load()),
		FailedTasks:    int(w.failed.Load()),
	})
	if err != nil {
		w.logger.Error().Err(err).Msg("Heartbeat failed")
	}
}

// healthy gates claiming: the store must answer, the engines must be
// reachable and memory must be under the configured limit. A worker
// that fails the gate keeps heartbeating but refuses new work.
func (w *Worker) healthy(ctx context.Context) bool {
	if err := w.store.Ping(ctx); err != nil {
		w.logger.Warn().Err(err).Msg("Store unreachable, refusing claims")
		return false
	}
	if err := w.engines.Health(ctx); err != nil {
		w.logger.Warn().Err(err).Msg("Engine unhealthy, refusing claims")
		return false
	}

	sample, err := w.engines.Metrics.Sample()
	if err != nil {
		// Resource sampling is advisory; do not stall work over it.
		w.logger.Warn().Err(err).Msg("Resource sampling failed")
		return true
	}
	if sample.MemoryPercent >= float64(w.cfg.WorkerMemoryLimit) {
		w.logger.Warn().
			Float64("memory_percent", sample.MemoryPercent).
			Int("limit", w.cfg.WorkerMemoryLimit).
			Msg("Memory above limit, refusing claims")
		return false
	}
	return true
}

// execute runs one claimed task to a terminal state. The stream entry
// is always acknowledged on the way out: failures stay queryable and
// are requeued only by an explicit retry.
func (w *Worker) execute(ctx context.Context, claim dispatch.Claim) {
	taskID := claim.Task.TaskID
	logger := w.logger.With().Str("task_id", taskID).Logger()
	timer := metrics.NewTimer()

	defer w.acknowledge(claim.EntryID, logger)

	if err := w.repo.UpdateStatus(ctx, taskID, types.TaskStatusProcessing,
		repository.WithWorker(w.id),
		repository.WithProgress(types.ProgressStarted),
	); err != nil {
		// Typically a cancel that landed between claim and start.
		logger.Warn().Err(err).Msg("Task not startable, dropping claim")
		return
	}

	taskCtx, cancel := context.WithTimeout(ctx, w.cfg.TaskDeadline())
	defer cancel()

	packed, err := w.runner.Run(taskCtx, claim.Task, w.probe(taskID))
	if errors.Is(err, pipeline.ErrCancelled) {
		logger.Info().Msg("Task cancelled during pipeline")
		return
	}
	if err != nil {
		w.fail(taskID, err, logger)
		return
	}

	if err := w.repo.UpdateStatus(ctx, taskID, types.TaskStatusProcessing,
		repository.WithProgress(types.ProgressPipelined),
	); err != nil {
		logger.Warn().Err(err).Msg("Task no longer processing, dropping result")
		return
	}
	if w.cancelled(ctx, taskID) {
		logger.Info().Msg("Task cancelled before result write")
		return
	}

	if err := w.results.Store(ctx, taskID, packed); err != nil {
		w.fail(taskID, err, logger)
		return
	}

	writeCtx, cancelWrite := context.WithTimeout(context.Background(), terminalWriteTimeout)
	defer cancelWrite()
	if err := w.repo.UpdateStatus(writeCtx, taskID, types.TaskStatusCompleted,
		repository.WithProgress(types.ProgressDone),
	); err != nil {
		// A cancel that raced the result write wins; invariant over
		// throughput.
		logger.Warn().Err(err).Msg("Could not complete task")
		return
	}

	w.completed.Add(1)
	metrics.TasksCompleted.Inc()
	timer.ObserveDuration(metrics.TaskDuration)
	logger.Info().Dur("took", timer.Duration()).Msg("Completed task")
}

// fail marks a task FAILED with the cause. Runs on a fresh context so
// a blown task deadline cannot also block the failure write.
func (w *Worker) fail(taskID string, cause error, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), terminalWriteTimeout)
	defer cancel()

	if err := w.repo.UpdateStatus(ctx, taskID, types.TaskStatusFailed,
		repository.WithError(cause.Error()),
	); err != nil {
		logger.Error().Err(err).Msg("Failed to record task failure")
	}

	w.failed.Add(1)
	metrics.TasksFailed.Inc()
	logger.Error().Err(cause).Msg("Task failed")
}

func (w *Worker) acknowledge(entryID string, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), terminalWriteTimeout)
	defer cancel()
	if err := w.disp.Acknowledge(ctx, entryID); err != nil {
		logger.Error().Err(err).Msg("Failed to acknowledge entry")
	}
}

// probe gives the pipeline a cancellation check between stages. A
// status read failure reports "keep going": cancellation is cooperative
// and the next check will see it.
func (w *Worker) probe(taskID string) pipeline.Probe {
	return func(ctx context.Context) bool {
		return w.cancelled(ctx, taskID)
	}
}

func (w *Worker) cancelled(ctx context.Context, taskID string) bool {
	task, err := w.repo.Get(ctx, taskID)
	if err != nil {
		return false
	}
	return task.Status == types.TaskStatusCancelled
}
