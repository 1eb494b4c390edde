// Package janitor reclaims storage on a schedule: terminal task
// records past their retention window (with their fast-tier result
// blobs), consumer-group entries of workers that died long ago, and
// stale files in the upload directory.
//
// Exactly one logical janitor runs per deployment, co-located with the
// API process. Two triggers drive it: a ticker at the configured GC
// interval, and MaybeRun, invoked opportunistically on every task
// create, which runs a cycle at most once per interval through an
// atomic timestamp guard. Cycles are idempotent, so the two triggers
// never need to coordinate beyond that guard.
//
// Durable result exports are deliberately left on disk; only the
// fast-tier blob is dropped with the task record.
package janitor
