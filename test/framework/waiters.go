package framework

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taleweave/fable/pkg/client"
	"github.com/taleweave/fable/pkg/dispatch"
	"github.com/taleweave/fable/pkg/types"
)

// Waiter polls a condition with a timeout.
type Waiter struct {
	timeout  time.Duration
	interval time.Duration
}

func NewWaiter(timeout, interval time.Duration) *Waiter {
	return &Waiter{timeout: timeout, interval: interval}
}

// DefaultWaiter suits in-process stacks: claims happen within a worker
// loop iteration, so seconds suffice.
func DefaultWaiter() *Waiter {
	return NewWaiter(15*time.Second, 50*time.Millisecond)
}

// WaitFor polls condition until it holds or the timeout elapses.
func (w *Waiter) WaitFor(ctx context.Context, condition func() bool, description string) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	if condition() {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for: %s (timeout: %v)", description, w.timeout)
		case <-ticker.C:
			if condition() {
				return nil
			}
		}
	}
}

// WaitForStatus blocks until the task reaches the wanted status and
// returns its final record.
func (s *Stack) WaitForStatus(t *testing.T, taskID string, want types.TaskStatus) *client.TaskStatus {
	t.Helper()
	var last *client.TaskStatus
	err := DefaultWaiter().WaitFor(context.Background(), func() bool {
		status, err := s.Client.Task(taskID)
		if err != nil {
			return false
		}
		last = status
		return status.Status == want
	}, fmt.Sprintf("task %s to reach %s", taskID, want))
	require.NoError(t, err, "last seen: %+v", last)
	return last
}

// WaitForAcknowledged blocks until the queue holds no pending entry
// for any consumer, meaning every claimed task has been acknowledged.
func (s *Stack) WaitForAcknowledged(t *testing.T) {
	t.Helper()
	err := DefaultWaiter().WaitFor(context.Background(), func() bool {
		pending, err := s.Store.PendingRange(context.Background(), dispatch.Stream, dispatch.Group, 100)
		return err == nil && len(pending) == 0
	}, "queue to have no pending entries")
	require.NoError(t, err)
}

// WaitForWorkers blocks until the heartbeat scan reports n workers.
func (s *Stack) WaitForWorkers(t *testing.T, n int) {
	t.Helper()
	err := DefaultWaiter().WaitFor(context.Background(), func() bool {
		workers, err := s.Client.Workers()
		return err == nil && len(workers) == n
	}, fmt.Sprintf("%d live workers", n))
	require.NoError(t, err)
}
