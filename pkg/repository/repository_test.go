package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taleweave/fable/pkg/store"
	"github.com/taleweave/fable/pkg/types"
)

func newTestRepo(t *testing.T) (*TaskRepository, store.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	st, err := store.NewRedisStore(mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewTaskRepository(st), st
}

func sampleTask(id string) *types.Task {
	return &types.Task{
		TaskID:          id,
		Status:          types.TaskStatusPending,
		SourceLanguage:  "en",
		TargetLanguages: []string{"zh", "ja"},
		AudioFiles:      []string{"uploads/segment_001.mp3", "uploads/segment_002.mp3"},
		TextData:        map[string]string{"segment_001": "Once upon a time"},
		CreatedAt:       time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
		UpdatedAt:       time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	task := sampleTask("task-1")
	require.NoError(t, repo.Create(ctx, task))

	got, err := repo.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, task, got)
}

func TestCreateCollision(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, sampleTask("task-1")))
	err := repo.Create(ctx, sampleTask("task-1"))
	assert.ErrorIs(t, err, ErrTaskExists)
}

func TestGetMissing(t *testing.T) {
	repo, _ := newTestRepo(t)

	_, err := repo.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetMalformedReadsAsMissing(t *testing.T) {
	repo, st := newTestRepo(t)
	ctx := context.Background()

	// A record with an unknown status fails decoding.
	require.NoError(t, st.HSet(ctx, "task:bad", map[string]string{
		"task_id": "bad",
		"status":  "exploded",
	}))

	_, err := repo.Get(ctx, "bad")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    types.TaskStatus
		to      types.TaskStatus
		wantErr bool
	}{
		{"claim", types.TaskStatusPending, types.TaskStatusProcessing, false},
		{"cancel pending", types.TaskStatusPending, types.TaskStatusCancelled, false},
		{"complete", types.TaskStatusProcessing, types.TaskStatusCompleted, false},
		{"fail", types.TaskStatusProcessing, types.TaskStatusFailed, false},
		{"cancel processing", types.TaskStatusProcessing, types.TaskStatusCancelled, false},
		{"reclaim requeue", types.TaskStatusProcessing, types.TaskStatusPending, false},
		{"progress refresh", types.TaskStatusProcessing, types.TaskStatusProcessing, false},
		{"skip processing", types.TaskStatusPending, types.TaskStatusCompleted, true},
		{"revive completed", types.TaskStatusCompleted, types.TaskStatusPending, true},
		{"revive cancelled", types.TaskStatusCancelled, types.TaskStatusPending, true},
		{"fail a pending task", types.TaskStatusPending, types.TaskStatusFailed, true},
		{"retry bypasses update", types.TaskStatusFailed, types.TaskStatusPending, true},
		{"complete a failed task", types.TaskStatusFailed, types.TaskStatusCompleted, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, st := newTestRepo(t)
			ctx := context.Background()

			task := sampleTask("task-1")
			task.Status = tt.from
			fields, err := encodeTask(task)
			require.NoError(t, err)
			require.NoError(t, st.HSet(ctx, "task:task-1", fields))

			err = repo.UpdateStatus(ctx, "task-1", tt.to)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			} else {
				assert.NoError(t, err)
				got, err := repo.Get(ctx, "task-1")
				require.NoError(t, err)
				assert.Equal(t, tt.to, got.Status)
			}
		})
	}
}

func TestUpdateStatusFields(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	task := sampleTask("task-1")
	require.NoError(t, repo.Create(ctx, task))

	err := repo.UpdateStatus(ctx, "task-1", types.TaskStatusProcessing,
		WithWorker("worker-abc123"),
		WithProgress(types.ProgressClaimed))
	require.NoError(t, err)

	got, err := repo.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusProcessing, got.Status)
	assert.Equal(t, "worker-abc123", got.AssignedWorker)
	assert.Equal(t, types.ProgressClaimed, got.Progress)
	assert.True(t, got.UpdatedAt.After(task.UpdatedAt), "updated_at must be bumped")

	err = repo.UpdateStatus(ctx, "task-1", types.TaskStatusFailed,
		WithError("engine unavailable"))
	require.NoError(t, err)

	got, err = repo.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusFailed, got.Status)
	assert.Equal(t, "engine unavailable", got.ErrorMessage)
	// The assigned worker is kept for audit.
	assert.Equal(t, "worker-abc123", got.AssignedWorker)
}

func TestProgressClampAndMonotonic(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, sampleTask("task-1")))
	require.NoError(t, repo.UpdateStatus(ctx, "task-1", types.TaskStatusProcessing,
		WithProgress(0.5)))

	// A stale lower progress does not move the marker back.
	require.NoError(t, repo.UpdateStatus(ctx, "task-1", types.TaskStatusProcessing,
		WithProgress(0.3)))
	got, err := repo.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, 0.5, got.Progress)

	// Values outside [0,1] clamp.
	require.NoError(t, repo.UpdateStatus(ctx, "task-1", types.TaskStatusProcessing,
		WithProgress(1.5)))
	got, err = repo.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Progress)

	// The requeue reset is the one allowed decrease.
	require.NoError(t, repo.UpdateStatus(ctx, "task-1", types.TaskStatusPending,
		WithProgress(0)))
	got, err = repo.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.Progress)
}

func TestRetryFailed(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, sampleTask("task-1")))
	require.NoError(t, repo.UpdateStatus(ctx, "task-1", types.TaskStatusProcessing))
	require.NoError(t, repo.UpdateStatus(ctx, "task-1", types.TaskStatusFailed,
		WithError("engine unavailable")))

	task, err := repo.RetryFailed(ctx, "task-1", 3)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusPending, task.Status)
	assert.Equal(t, 1, task.RetryCount)
	assert.Empty(t, task.ErrorMessage)
	assert.Equal(t, 0.0, task.Progress)

	// Not failed anymore.
	_, err = repo.RetryFailed(ctx, "task-1", 3)
	assert.ErrorIs(t, err, ErrNotFailed)
}

func TestRetryFailedLimit(t *testing.T) {
	repo, st := newTestRepo(t)
	ctx := context.Background()

	task := sampleTask("task-1")
	task.Status = types.TaskStatusFailed
	task.RetryCount = 3
	fields, err := encodeTask(task)
	require.NoError(t, err)
	require.NoError(t, st.HSet(ctx, "task:task-1", fields))

	_, err = repo.RetryFailed(ctx, "task-1", 3)
	assert.ErrorIs(t, err, ErrRetryLimit)
}

func TestDelete(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, sampleTask("task-1")))
	require.NoError(t, repo.Delete(ctx, "task-1"))

	_, err := repo.Get(ctx, "task-1")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing task is a no-op.
	assert.NoError(t, repo.Delete(ctx, "task-1"))
}

func TestList(t *testing.T) {
	repo, st := newTestRepo(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	for i, status := range []types.TaskStatus{
		types.TaskStatusPending,
		types.TaskStatusCompleted,
		types.TaskStatusPending,
		types.TaskStatusFailed,
	} {
		task := sampleTask(taskID(i))
		task.Status = status
		task.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		task.UpdatedAt = task.CreatedAt
		fields, err := encodeTask(task)
		require.NoError(t, err)
		require.NoError(t, st.HSet(ctx, "task:"+task.TaskID, fields))
	}

	// A malformed record must not take the listing down.
	require.NoError(t, st.HSet(ctx, "task:junk", map[string]string{"task_id": "junk", "status": "???"}))

	all, err := repo.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	// Newest first.
	assert.Equal(t, taskID(3), all[0].TaskID)
	assert.Equal(t, taskID(0), all[3].TaskID)

	pending, err := repo.List(ctx, types.TaskStatusPending, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	limited, err := repo.List(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, taskID(3), limited[0].TaskID)
	assert.Equal(t, taskID(2), limited[1].TaskID)
}

func taskID(i int) string {
	return "task-" + string(rune('a'+i))
}

func TestStatistics(t *testing.T) {
	repo, st := newTestRepo(t)
	ctx := context.Background()

	statuses := []types.TaskStatus{
		types.TaskStatusPending,
		types.TaskStatusPending,
		types.TaskStatusProcessing,
		types.TaskStatusCompleted,
		types.TaskStatusFailed,
	}
	for i, status := range statuses {
		task := sampleTask(taskID(i))
		task.Status = status
		fields, err := encodeTask(task)
		require.NoError(t, err)
		require.NoError(t, st.HSet(ctx, "task:"+task.TaskID, fields))
	}

	stats, err := repo.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats["pending"])
	assert.Equal(t, int64(1), stats["processing"])
	assert.Equal(t, int64(1), stats["completed"])
	assert.Equal(t, int64(1), stats["failed"])
	assert.Equal(t, int64(0), stats["cancelled"])
	assert.Equal(t, int64(5), stats["total"])
}

func TestStories(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	meta := types.StoryMeta{
		TaskID:       "task-1",
		Title:        "The Paper Crane",
		Languages:    []string{"en", "zh", "ja"},
		SegmentCount: 12,
	}
	require.NoError(t, repo.AssociateStory(ctx, "paper-crane", meta))

	got, err := repo.GetStory(ctx, "paper-crane")
	require.NoError(t, err)
	assert.Equal(t, &meta, got)

	// Re-association overwrites: last writer wins.
	meta2 := meta
	meta2.TaskID = "task-2"
	require.NoError(t, repo.AssociateStory(ctx, "paper-crane", meta2))

	got, err = repo.GetStory(ctx, "paper-crane")
	require.NoError(t, err)
	assert.Equal(t, "task-2", got.TaskID)

	_, err = repo.GetStory(ctx, "unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}
