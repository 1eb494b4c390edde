package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/taleweave/fable/pkg/log"
	"github.com/taleweave/fable/pkg/store"
	"github.com/taleweave/fable/pkg/types"
)

const (
	taskKeyPrefix  = "task:"
	storyKeyPrefix = "story:"
)

var (
	// ErrNotFound is returned when a task or story does not exist. Records
	// that fail decoding are reported as not found after a warning log.
	ErrNotFound = errors.New("repository: not found")

	// ErrTaskExists is returned by Create on a task id collision.
	ErrTaskExists = errors.New("repository: task already exists")

	// ErrInvalidTransition is returned when a status change is not allowed
	// by the task state machine.
	ErrInvalidTransition = errors.New("repository: invalid status transition")

	// ErrNotFailed is returned when retrying a task that is not FAILED.
	ErrNotFailed = errors.New("repository: task is not failed")

	// ErrRetryLimit is returned when a task has used up its retry budget.
	ErrRetryLimit = errors.New("repository: retry limit reached")
)

// transitions is the legal task state machine. FAILED has no row here:
// the only way out of FAILED is RetryFailed. Same-state entries allow
// field refreshes (progress updates while processing).
var transitions = map[types.TaskStatus]map[types.TaskStatus]bool{
	types.TaskStatusPending: {
		types.TaskStatusPending:    true,
		types.TaskStatusProcessing: true,
		types.TaskStatusCancelled:  true,
	},
	types.TaskStatusProcessing: {
		types.TaskStatusProcessing: true,
		types.TaskStatusCompleted:  true,
		types.TaskStatusFailed:     true,
		types.TaskStatusCancelled:  true,
		types.TaskStatusPending:    true, // orphan reclaim requeues without burning a retry
	},
}

// Option adjusts optional fields alongside a status change.
type Option func(*statusUpdate)

type statusUpdate struct {
	assignedWorker *string
	errorMessage   *string
	progress       *float64
}

// WithWorker records the worker a task is assigned to.
func WithWorker(workerID string) Option {
	return func(u *statusUpdate) { u.assignedWorker = &workerID }
}

// WithError records a failure message on the task.
func WithError(message string) Option {
	return func(u *statusUpdate) { u.errorMessage = &message }
}

// WithProgress moves the advisory progress marker.
func WithProgress(progress float64) Option {
	return func(u *statusUpdate) { u.progress = &progress }
}

// TaskRepository provides typed access to task and story records stored
// as hashes. It owns the encoding contract and the status state machine.
type TaskRepository struct {
	store  store.Store
	logger zerolog.Logger
}

// NewTaskRepository creates a repository over the given store.
func NewTaskRepository(st store.Store) *TaskRepository {
	return &TaskRepository{
		store:  st,
		logger: log.WithComponent("repository"),
	}
}

// Create persists a new task record. The task id must be unused.
func (r *TaskRepository) Create(ctx context.Context, task *types.Task) error {
	key := taskKeyPrefix + task.TaskID

	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to check task %s: %w", task.TaskID, err)
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrTaskExists, task.TaskID)
	}

	fields, err := encodeTask(task)
	if err != nil {
		return fmt.Errorf("failed to encode task %s: %w", task.TaskID, err)
	}
	if err := r.store.HSet(ctx, key, fields); err != nil {
		return fmt.Errorf("failed to store task %s: %w", task.TaskID, err)
	}

	r.logger.Info().
		Str("task_id", task.TaskID).
		Int("audio_files", len(task.AudioFiles)).
		Msg("Created task")
	return nil
}

// Get returns a task by id. Malformed records read as not found.
func (r *TaskRepository) Get(ctx context.Context, taskID string) (*types.Task, error) {
	fields, err := r.store.HGetAll(ctx, taskKeyPrefix+taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to read task %s: %w", taskID, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: task %s", ErrNotFound, taskID)
	}

	task, err := decodeTask(fields)
	if err != nil {
		r.logger.Warn().
			Str("task_id", taskID).
			Err(err).
			Msg("Skipping malformed task record")
		return nil, fmt.Errorf("%w: task %s", ErrNotFound, taskID)
	}
	return task, nil
}

// UpdateStatus moves a task through the state machine and applies field
// updates. updated_at is always bumped. Progress is clamped to [0,1] and
// never decreases within a processing episode.
func (r *TaskRepository) UpdateStatus(ctx context.Context, taskID string, status types.TaskStatus, opts ...Option) error {
	task, err := r.Get(ctx, taskID)
	if err != nil {
		return err
	}

	allowed := transitions[task.Status]
	if !allowed[status] {
		return fmt.Errorf("%w: %s -> %s (task %s)", ErrInvalidTransition, task.Status, status, taskID)
	}

	var update statusUpdate
	for _, opt := range opts {
		opt(&update)
	}

	if update.assignedWorker != nil && *update.assignedWorker != "" {
		task.AssignedWorker = *update.assignedWorker
	}
	if update.errorMessage != nil && *update.errorMessage != "" {
		task.ErrorMessage = *update.errorMessage
	}
	if update.progress != nil {
		p := clampProgress(*update.progress)
		if status == types.TaskStatusProcessing && task.Status == types.TaskStatusProcessing && p < task.Progress {
			p = task.Progress
		}
		task.Progress = p
	}

	task.Status = status
	task.UpdatedAt = time.Now().UTC()

	if err := r.put(ctx, task); err != nil {
		return err
	}

	r.logger.Info().
		Str("task_id", taskID).
		Str("status", string(status)).
		Msg("Updated task status")
	return nil
}

// RetryFailed requeues a FAILED task: status back to PENDING, retry count
// incremented, error and progress cleared. limit bounds the retry budget.
// Returns the updated task so the caller can re-announce it.
func (r *TaskRepository) RetryFailed(ctx context.Context, taskID string, limit int) (*types.Task, error) {
	task, err := r.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if task.Status != types.TaskStatusFailed {
		return nil, fmt.Errorf("%w: task %s is %s", ErrNotFailed, taskID, task.Status)
	}
	if task.RetryCount >= limit {
		return nil, fmt.Errorf("%w: task %s used %d of %d attempts", ErrRetryLimit, taskID, task.RetryCount, limit)
	}

	task.RetryCount++
	task.Status = types.TaskStatusPending
	task.ErrorMessage = ""
	task.Progress = 0
	task.UpdatedAt = time.Now().UTC()

	if err := r.put(ctx, task); err != nil {
		return nil, err
	}

	r.logger.Info().
		Str("task_id", taskID).
		Int("attempt", task.RetryCount).
		Msg("Requeued failed task")
	return task, nil
}

// Delete removes a task record. Deleting a missing task is not an error.
func (r *TaskRepository) Delete(ctx context.Context, taskID string) error {
	if err := r.store.Delete(ctx, taskKeyPrefix+taskID); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", taskID, err)
	}
	return nil
}

// List returns tasks, optionally filtered by status, newest first, up to
// limit. Malformed records are skipped with a warning.
func (r *TaskRepository) List(ctx context.Context, status types.TaskStatus, limit int) ([]*types.Task, error) {
	keys, err := r.store.Scan(ctx, taskKeyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("failed to scan tasks: %w", err)
	}

	var tasks []*types.Task
	for _, key := range keys {
		fields, err := r.store.HGetAll(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", key, err)
		}
		if len(fields) == 0 {
			continue // deleted between scan and read
		}

		task, err := decodeTask(fields)
		if err != nil {
			r.logger.Warn().
				Str("key", key).
				Err(err).
				Msg("Skipping malformed task record")
			continue
		}
		if status != "" && task.Status != status {
			continue
		}
		tasks = append(tasks, task)
	}

	sortTasksNewestFirst(tasks)
	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks, nil
}

// Statistics counts tasks by status plus a "total" entry.
func (r *TaskRepository) Statistics(ctx context.Context) (map[string]int64, error) {
	stats := map[string]int64{
		string(types.TaskStatusPending):    0,
		string(types.TaskStatusProcessing): 0,
		string(types.TaskStatusCompleted):  0,
		string(types.TaskStatusFailed):     0,
		string(types.TaskStatusCancelled):  0,
		string(types.TaskStatusRetry):      0,
		"total":                            0,
	}

	keys, err := r.store.Scan(ctx, taskKeyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("failed to scan tasks: %w", err)
	}

	for _, key := range keys {
		status, err := r.store.HGet(ctx, key, "status")
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("failed to read %s: %w", key, err)
		}
		if !types.TaskStatus(status).Valid() {
			continue
		}
		stats[status]++
		stats["total"]++
	}
	return stats, nil
}

// AssociateStory binds a user-facing story name to a task. Re-associating
// an existing name overwrites it (last writer wins).
func (r *TaskRepository) AssociateStory(ctx context.Context, name string, meta types.StoryMeta) error {
	languages, err := json.Marshal(meta.Languages)
	if err != nil {
		return fmt.Errorf("failed to encode story %s: %w", name, err)
	}

	fields := map[string]string{
		"task_id":       meta.TaskID,
		"title":         meta.Title,
		"languages":     string(languages),
		"segment_count": strconv.Itoa(meta.SegmentCount),
	}
	if err := r.store.HSet(ctx, storyKeyPrefix+name, fields); err != nil {
		return fmt.Errorf("failed to store story %s: %w", name, err)
	}

	r.logger.Info().
		Str("story", name).
		Str("task_id", meta.TaskID).
		Msg("Associated story with task")
	return nil
}

// GetStory returns the story record for a name.
func (r *TaskRepository) GetStory(ctx context.Context, name string) (*types.StoryMeta, error) {
	fields, err := r.store.HGetAll(ctx, storyKeyPrefix+name)
	if err != nil {
		return nil, fmt.Errorf("failed to read story %s: %w", name, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: story %s", ErrNotFound, name)
	}

	meta := &types.StoryMeta{
		TaskID: fields["task_id"],
		Title:  fields["title"],
	}
	if raw := fields["languages"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &meta.Languages); err != nil {
			return nil, fmt.Errorf("failed to decode story %s languages: %w", name, err)
		}
	}
	if raw := fields["segment_count"]; raw != "" {
		count, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode story %s segment count: %w", name, err)
		}
		meta.SegmentCount = count
	}
	return meta, nil
}

func (r *TaskRepository) put(ctx context.Context, task *types.Task) error {
	fields, err := encodeTask(task)
	if err != nil {
		return fmt.Errorf("failed to encode task %s: %w", task.TaskID, err)
	}
	if err := r.store.HSet(ctx, taskKeyPrefix+task.TaskID, fields); err != nil {
		return fmt.Errorf("failed to store task %s: %w", task.TaskID, err)
	}
	return nil
}

func clampProgress(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

func sortTasksNewestFirst(tasks []*types.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
}
