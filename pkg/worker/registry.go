package worker

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/taleweave/fable/pkg/log"
	"github.com/taleweave/fable/pkg/store"
	"github.com/taleweave/fable/pkg/types"
)

const (
	workerKeyPrefix = "worker:"
	sentinelSuffix  = ":heartbeat"

	// sentinelTTL bounds how long a worker stays visible after it goes
	// silent. A crashed worker disappears from listings once it expires.
	sentinelTTL = 60 * time.Second
)

// Registry reads and writes worker heartbeat records. Each worker owns
// a hash under worker:{id} plus a TTL sentinel that distinguishes live
// workers from dead ones.
type Registry struct {
	store  store.Store
	logger zerolog.Logger
}

// NewRegistry creates a registry over the given store.
func NewRegistry(st store.Store) *Registry {
	return &Registry{
		store:  st,
		logger: log.WithComponent("registry"),
	}
}

// Heartbeat publishes the worker record and refreshes its liveness
// sentinel.
func (r *Registry) Heartbeat(ctx context.Context, info types.WorkerInfo) error {
	key := workerKeyPrefix + info.WorkerID
	fields := map[string]string{
		"worker_id":       info.WorkerID,
		"status":          string(info.Status),
		"last_heartbeat":  info.LastHeartbeat.UTC().Format(time.RFC3339Nano),
		"active_tasks":    strconv.Itoa(info.ActiveTasks),
		"completed_tasks": strconv.Itoa(info.CompletedTasks),
		"failed_tasks":    strconv.Itoa(info.FailedTasks),
	}
	if err := r.store.HSet(ctx, key, fields); err != nil {
		return fmt.Errorf("failed to write heartbeat for %s: %w", info.WorkerID, err)
	}
	if err := r.store.Set(ctx, key+sentinelSuffix, info.LastHeartbeat.UTC().Format(time.RFC3339Nano), sentinelTTL); err != nil {
		return fmt.Errorf("failed to refresh sentinel for %s: %w", info.WorkerID, err)
	}
	return nil
}

// Deregister removes the worker record and its sentinel.
func (r *Registry) Deregister(ctx context.Context, workerID string) error {
	key := workerKeyPrefix + workerID
	if err := r.store.Delete(ctx, key, key+sentinelSuffix); err != nil {
		return fmt.Errorf("failed to deregister %s: %w", workerID, err)
	}
	return nil
}

// List returns the workers whose sentinel is still alive, so crashed
// processes age out within the sentinel TTL. Malformed records are
// skipped with a warning.
func (r *Registry) List(ctx context.Context) ([]types.WorkerInfo, error) {
	keys, err := r.store.Scan(ctx, workerKeyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("failed to scan workers: %w", err)
	}

	var workers []types.WorkerInfo
	for _, key := range keys {
		if strings.HasSuffix(key, sentinelSuffix) {
			continue
		}
		alive, err := r.store.Exists(ctx, key+sentinelSuffix)
		if err != nil {
			return nil, fmt.Errorf("failed to check sentinel for %s: %w", key, err)
		}
		if !alive {
			continue
		}

		fields, err := r.store.HGetAll(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", key, err)
		}
		if len(fields) == 0 {
			continue
		}

		info, err := decodeWorker(fields)
		if err != nil {
			r.logger.Warn().Str("key", key).Err(err).Msg("Skipping malformed worker record")
			continue
		}
		workers = append(workers, info)
	}
	return workers, nil
}

func decodeWorker(fields map[string]string) (types.WorkerInfo, error) {
	info := types.WorkerInfo{
		WorkerID: fields["worker_id"],
		Status:   types.WorkerState(fields["status"]),
	}
	if info.WorkerID == "" {
		return info, fmt.Errorf("missing worker_id")
	}

	if raw := fields["last_heartbeat"]; raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return info, fmt.Errorf("last_heartbeat: %w", err)
		}
		info.LastHeartbeat = ts
	}

	for field, dst := range map[string]*int{
		"active_tasks":    &info.ActiveTasks,
		"completed_tasks": &info.CompletedTasks,
		"failed_tasks":    &info.FailedTasks,
	} {
		raw := fields[field]
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return info, fmt.Errorf("%s: %w", field, err)
		}
		*dst = n
	}
	return info, nil
}
