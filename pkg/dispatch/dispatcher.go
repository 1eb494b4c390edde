package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/taleweave/fable/pkg/config"
	"github.com/taleweave/fable/pkg/log"
	"github.com/taleweave/fable/pkg/metrics"
	"github.com/taleweave/fable/pkg/repository"
	"github.com/taleweave/fable/pkg/store"
	"github.com/taleweave/fable/pkg/types"
)

// Stream and group names shared by every process in a deployment.
const (
	Stream = "translation_tasks"
	Group  = "translation_workers"
)

// claimBlock bounds how long ClaimPending waits when the stream is empty.
const claimBlock = time.Second

// orphanScanCount bounds one pending-range page during an orphan sweep.
const orphanScanCount = 100

// ErrUnsupportedLanguage is returned by CreateTask for language codes
// outside the configured set.
var ErrUnsupportedLanguage = errors.New("dispatch: unsupported language")

// Claim pairs a delivered stream entry with its task. The entry ID is
// what Acknowledge needs once the task reaches a terminal status.
type Claim struct {
	EntryID string
	Task    *types.Task
}

// CreateRequest carries the inputs for a new translation task.
type CreateRequest struct {
	SourceLanguage  string
	TargetLanguages []string
	AudioFiles      []string
	TextData        map[string]string
}

// Dispatcher moves tasks through the queue. It appends entries to the
// task stream, hands them to workers through the consumer group, and
// owns claim, acknowledge, retry and cancel around the repository.
type Dispatcher struct {
	store    store.Store
	repo     *repository.TaskRepository
	cfg      *config.Config
	logger   zerolog.Logger
	onCreate func(context.Context)
}

// New creates a dispatcher and ensures the stream and group exist.
func New(ctx context.Context, st store.Store, repo *repository.TaskRepository, cfg *config.Config) (*Dispatcher, error) {
	if err := st.EnsureGroup(ctx, Stream, Group); err != nil {
		return nil, fmt.Errorf("failed to ensure consumer group: %w", err)
	}
	return &Dispatcher{
		store:  st,
		repo:   repo,
		cfg:    cfg,
		logger: log.WithComponent("dispatch"),
	}, nil
}

// OnCreate registers a hook invoked after every successful CreateTask.
// The janitor uses this as its opportunistic trigger.
func (d *Dispatcher) OnCreate(fn func(context.Context)) {
	d.onCreate = fn
}

// CreateTask validates the request, persists a PENDING record and
// announces it on the task stream.
func (d *Dispatcher) CreateTask(ctx context.Context, req CreateRequest) (*types.Task, error) {
	if !d.cfg.LanguageSupported(req.SourceLanguage) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, req.SourceLanguage)
	}
	for _, lang := range req.TargetLanguages {
		if !d.cfg.LanguageSupported(lang) {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, lang)
		}
	}

	now := time.Now().UTC()
	task := &types.Task{
		TaskID:          uuid.New().String(),
		Status:          types.TaskStatusPending,
		SourceLanguage:  req.SourceLanguage,
		TargetLanguages: req.TargetLanguages,
		AudioFiles:      req.AudioFiles,
		TextData:        req.TextData,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := d.repo.Create(ctx, task); err != nil {
		return nil, err
	}

	if err := d.append(ctx, task.TaskID, map[string]string{
		"task_id":   task.TaskID,
		"status":    string(types.TaskStatusPending),
		"timestamp": now.Format(time.RFC3339Nano),
	}); err != nil {
		// The record without a stream entry would never be dispatched.
		if delErr := d.repo.Delete(ctx, task.TaskID); delErr != nil {
			d.logger.Error().Err(delErr).Str("task_id", task.TaskID).
				Msg("Failed to remove record after enqueue failure")
		}
		return nil, err
	}

	metrics.TasksCreated.Inc()
	d.logger.Info().
		Str("task_id", task.TaskID).
		Str("source_language", req.SourceLanguage).
		Strs("target_languages", req.TargetLanguages).
		Int("audio_files", len(req.AudioFiles)).
		Msg("Created task")

	if d.onCreate != nil {
		d.onCreate(ctx)
	}
	return task, nil
}

// append adds one entry to the task stream, retrying once on error.
func (d *Dispatcher) append(ctx context.Context, taskID string, values map[string]string) error {
	_, err := d.store.StreamAdd(ctx, Stream, values)
	if err == nil {
		return nil
	}
	d.logger.Warn().Err(err).Str("task_id", taskID).Msg("Stream append failed, retrying")
	if _, err = d.store.StreamAdd(ctx, Stream, values); err != nil {
		return fmt.Errorf("failed to enqueue task %s: %w", taskID, err)
	}
	return nil
}

// ClaimPending reads up to count new entries for workerID and moves their
// tasks to PROCESSING. Entries whose task is missing or no longer PENDING
// are acknowledged and dropped so they cannot poison the group.
func (d *Dispatcher) ClaimPending(ctx context.Context, workerID string, count int) ([]Claim, error) {
	entries, err := d.store.ReadGroup(ctx, Stream, Group, workerID, int64(count), claimBlock)
	if errors.Is(err, store.ErrNoEntries) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read task stream: %w", err)
	}

	var claims []Claim
	for _, entry := range entries {
		taskID := entry.Values["task_id"]
		task, err := d.repo.Get(ctx, taskID)
		if errors.Is(err, repository.ErrNotFound) {
			d.discard(ctx, entry.ID, taskID, "task record missing")
			continue
		}
		if err != nil {
			return claims, fmt.Errorf("failed to load task %s: %w", taskID, err)
		}
		if task.Status != types.TaskStatusPending {
			d.discard(ctx, entry.ID, taskID, "task is not pending")
			continue
		}

		if err := d.repo.UpdateStatus(ctx, taskID, types.TaskStatusProcessing,
			repository.WithWorker(workerID),
			repository.WithProgress(types.ProgressClaimed),
		); err != nil {
			return claims, fmt.Errorf("failed to mark task %s processing: %w", taskID, err)
		}
		task.Status = types.TaskStatusProcessing
		task.AssignedWorker = workerID
		task.Progress = types.ProgressClaimed
		claims = append(claims, Claim{EntryID: entry.ID, Task: task})
	}
	return claims, nil
}

// ClaimOrphaned transfers entries whose holder has been silent past the
// worker timeout to workerID. Tasks still marked PROCESSING are requeued
// to PENDING without touching their retry count; the claimed pairs are
// returned so the caller can run them.
func (d *Dispatcher) ClaimOrphaned(ctx context.Context, workerID string) ([]Claim, error) {
	pending, err := d.store.PendingRange(ctx, Stream, Group, orphanScanCount)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect pending entries: %w", err)
	}

	timeout := d.cfg.WorkerIdleTimeout()
	var claims []Claim
	for _, p := range pending {
		if p.Idle <= timeout {
			continue
		}
		entries, err := d.store.Claim(ctx, Stream, Group, workerID, timeout, p.ID)
		if err != nil {
			return claims, fmt.Errorf("failed to claim entry %s: %w", p.ID, err)
		}
		for _, entry := range entries {
			if claim, ok := d.adopt(ctx, workerID, entry); ok {
				claims = append(claims, claim)
			}
		}
	}
	return claims, nil
}

// adopt decides what to do with one entry claimed by idle time.
func (d *Dispatcher) adopt(ctx context.Context, workerID string, entry store.StreamEntry) (Claim, bool) {
	taskID := entry.Values["task_id"]
	task, err := d.repo.Get(ctx, taskID)
	if errors.Is(err, repository.ErrNotFound) {
		d.discard(ctx, entry.ID, taskID, "orphaned entry has no task record")
		return Claim{}, false
	}
	if err != nil {
		// Leave the entry pending; a later sweep picks it up again.
		d.logger.Error().Err(err).Str("task_id", taskID).Msg("Failed to load orphaned task")
		return Claim{}, false
	}

	switch task.Status {
	case types.TaskStatusProcessing:
		// The holder went silent mid-run. Requeue without burning a retry.
		if err := d.repo.UpdateStatus(ctx, taskID, types.TaskStatusPending,
			repository.WithProgress(0),
		); err != nil {
			d.logger.Error().Err(err).Str("task_id", taskID).Msg("Failed to requeue orphaned task")
			return Claim{}, false
		}
		task.Status = types.TaskStatusPending
		task.Progress = 0
		metrics.TasksReclaimed.Inc()
		d.logger.Info().
			Str("task_id", taskID).
			Str("worker_id", workerID).
			Msg("Reclaimed orphaned task")
		return Claim{EntryID: entry.ID, Task: task}, true

	case types.TaskStatusPending:
		// A previous claimer died between reclaim and start.
		return Claim{EntryID: entry.ID, Task: task}, true

	default:
		// The holder finished the task but died before acknowledging.
		d.discard(ctx, entry.ID, taskID, fmt.Sprintf("task already %s", task.Status))
		return Claim{}, false
	}
}

// Acknowledge marks a stream entry done. Safe to call more than once.
func (d *Dispatcher) Acknowledge(ctx context.Context, entryID string) error {
	if err := d.store.Ack(ctx, Stream, Group, entryID); err != nil {
		return fmt.Errorf("failed to acknowledge entry %s: %w", entryID, err)
	}
	return nil
}

// Retry requeues a failed task and announces it on the stream. Only
// FAILED tasks under the retry limit are accepted; the repository
// enforces both.
func (d *Dispatcher) Retry(ctx context.Context, taskID string) (*types.Task, error) {
	task, err := d.repo.RetryFailed(ctx, taskID, d.cfg.TaskRetryLimit)
	if err != nil {
		return nil, err
	}

	if err := d.append(ctx, taskID, map[string]string{
		"task_id":     taskID,
		"status":      string(types.TaskStatusPending),
		"retry_count": strconv.Itoa(task.RetryCount),
		"timestamp":   time.Now().UTC().Format(time.RFC3339Nano),
	}); err != nil {
		return nil, err
	}

	metrics.TasksRetried.Inc()
	d.logger.Info().
		Str("task_id", taskID).
		Int("attempt", task.RetryCount).
		Msg("Retried task")
	return task, nil
}

// Cancel moves a task to CANCELLED. Running pipelines are not preempted;
// workers observe the status between stages and abort. Cancelling an
// already-cancelled task is a no-op, other terminal states are rejected.
func (d *Dispatcher) Cancel(ctx context.Context, taskID string) error {
	task, err := d.repo.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status == types.TaskStatusCancelled {
		return nil
	}
	if err := d.repo.UpdateStatus(ctx, taskID, types.TaskStatusCancelled); err != nil {
		return err
	}
	metrics.TasksCancelled.Inc()
	d.logger.Info().Str("task_id", taskID).Msg("Cancelled task")
	return nil
}

// DeadConsumers removes group consumers idle past the threshold. Their
// pending entries have been claimable by orphan sweeps for far longer
// than that, so nothing of value is dropped with them.
func (d *Dispatcher) DeadConsumers(ctx context.Context, idleThreshold time.Duration) (int, error) {
	consumers, err := d.store.Consumers(ctx, Stream, Group)
	if err != nil {
		return 0, fmt.Errorf("failed to list consumers: %w", err)
	}

	removed := 0
	for _, c := range consumers {
		if c.Idle <= idleThreshold {
			continue
		}
		if err := d.store.DeleteConsumer(ctx, Stream, Group, c.Name); err != nil {
			return removed, fmt.Errorf("failed to remove consumer %s: %w", c.Name, err)
		}
		d.logger.Info().
			Str("consumer", c.Name).
			Dur("idle", c.Idle).
			Msg("Removed dead consumer")
		removed++
	}
	return removed, nil
}

// discard acknowledges a stream entry that cannot become work. Under
// at-least-once delivery this is the only way a bad entry leaves the
// group.
func (d *Dispatcher) discard(ctx context.Context, entryID, taskID, reason string) {
	if err := d.store.Ack(ctx, Stream, Group, entryID); err != nil {
		d.logger.Error().Err(err).Str("entry_id", entryID).Msg("Failed to discard stream entry")
		return
	}
	d.logger.Warn().
		Str("entry_id", entryID).
		Str("task_id", taskID).
		Str("reason", reason).
		Msg("Discarded stream entry")
}
