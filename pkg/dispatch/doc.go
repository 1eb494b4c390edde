// Package dispatch routes tasks between the API and the worker pool
// through a single stream consumed by one consumer group.
//
// # Architecture
//
//	CreateTask ──► translation_tasks ──► translation_workers group
//	                    (stream)                   │
//	                                      ClaimPending (new entries)
//	                                      ClaimOrphaned (idle entries)
//	                                               │
//	                                          Acknowledge
//
// Every entry is delivered to exactly one consumer and stays pending
// until acknowledged. A worker that dies mid-task leaves its entry
// pending; once the entry's idle time passes the worker timeout, any
// live worker's orphan sweep claims it and requeues the task. Retry
// counts are reserved for real failures, a reclaim never burns one.
//
// # Poison entries
//
// Entries whose task record is missing, or whose task has moved on
// (cancelled before claim, completed by a worker that died before its
// acknowledgement), are acknowledged and dropped where they are found.
// Without this the group would redeliver them forever.
//
// # Usage
//
//	d, err := dispatch.New(ctx, st, repo, cfg)
//	if err != nil { ... }
//	task, err := d.CreateTask(ctx, dispatch.CreateRequest{
//		SourceLanguage:  "en",
//		TargetLanguages: []string{"ja"},
//		AudioFiles:      files,
//	})
//
// Workers drive the other side:
//
//	claims, _ := d.ClaimOrphaned(ctx, workerID)
//	more, _ := d.ClaimPending(ctx, workerID, batch)
//	// run each claim, then d.Acknowledge(ctx, claim.EntryID)
//
// # See Also
//
//   - pkg/repository for the status state machine the dispatcher obeys
//   - pkg/worker for the loop that calls the claim operations
//   - pkg/janitor for DeadConsumers housekeeping
package dispatch
