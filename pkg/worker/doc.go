// Package worker implements the long-running process that executes
// translation tasks claimed from the dispatch stream.
//
// # Loop
//
// Each Worker runs one loop until stopped:
//
//	heartbeat ──► health gate ──► orphan sweep ──► claim batch ──► execute
//
// The heartbeat publishes a worker:{id} record plus a TTL sentinel so
// operators and the control API can list live workers; a crashed
// worker ages out of listings when its sentinel expires. The health
// gate refuses new claims while the store is unreachable, an engine
// backend is down, or host memory is above the configured limit; a
// gated worker keeps heartbeating so it is visible while it waits.
//
// Claimed tasks run on a bounded pool (WORKER_MAX_THREADS slots). Each
// execution drives the task to a terminal status and always
// acknowledges the stream entry on the way out, including after a
// failure: failed tasks stay queryable and re-enter the queue only
// through an explicit retry.
//
// # Cancellation
//
// Cancellation is cooperative. The worker hands the pipeline a probe
// that re-reads the task status between stages; when the probe reports
// CANCELLED the pipeline unwinds with pipeline.ErrCancelled and the
// worker acknowledges the entry without touching the record.
//
// # Shutdown
//
// Stop lets in-flight tasks drain, publishes a final "stopping"
// heartbeat and removes the worker's keys. Unclaimed entries stay in
// the stream; entries claimed but unfinished become reclaimable by the
// orphan sweeps of surviving workers once their idle time passes the
// worker timeout.
//
// # See Also
//
//   - pkg/dispatch for claim, acknowledge and orphan-sweep semantics
//   - pkg/pipeline for the stage sequence a task runs through
//   - pkg/repository for the status transitions executed here
package worker
