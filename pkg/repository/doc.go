/*
Package repository provides typed CRUD over task and story records.

The repository owns two things the rest of the system must never reimplement:
the hash encoding contract for records stored in Redis, and the task status
state machine. Callers work with types.Task values; the repository handles
round-tripping them through schemaless hashes.

# Architecture

	┌────────────────── TASK REPOSITORY ──────────────────┐
	│                                                       │
	│  ┌─────────────────────────────────────┐             │
	│  │          Encoding Contract           │             │
	│  │  scalars     → plain strings         │             │
	│  │  collections → canonical JSON        │             │
	│  │  timestamps  → RFC 3339 UTC          │             │
	│  │  statuses    → lowercase wire values │             │
	│  │  unknown fields ignored on read      │             │
	│  └─────────────────────────────────────┘             │
	│                                                       │
	│  ┌─────────────────────────────────────┐             │
	│  │          State Machine               │             │
	│  │                                      │             │
	│  │  PENDING ──► PROCESSING ──► COMPLETED│             │
	│  │     │    ◄──────┘│                   │             │
	│  │     │  (reclaim) ├──► FAILED         │             │
	│  │     │            │      │ (retry)    │             │
	│  │     ▼            ▼      ▼            │             │
	│  │  CANCELLED ◄─────┘   PENDING         │             │
	│  └─────────────────────────────────────┘             │
	└───────────────────────────────────────────────────────┘

# Core Components

TaskRepository:
  - Create/Get/UpdateStatus/Delete/List/Statistics over task:{id} hashes
  - AssociateStory/GetStory over story:{name} hashes
  - UpdateStatus enforces the transition table; illegal moves return
    ErrInvalidTransition
  - RetryFailed is the only door out of FAILED: it checks the retry budget,
    bumps the attempt counter, and clears error and progress
  - Orphan requeue (PROCESSING back to PENDING) does not burn a retry

Corruption policy:
  - A record that fails decoding reads as not found on Get and is skipped
    with a warning on List; a bad record never takes listings down

Progress policy:
  - Clamped to [0,1]
  - Never decreases within a processing episode; the explicit reset to
    PENDING is the one place it goes back to zero

# Usage

	repo := repository.NewTaskRepository(st)

	err := repo.Create(ctx, task)
	err = repo.UpdateStatus(ctx, id, types.TaskStatusProcessing,
		repository.WithWorker(workerID),
		repository.WithProgress(types.ProgressClaimed))

	tasks, err := repo.List(ctx, types.TaskStatusFailed, 100)
	stats, err := repo.Statistics(ctx)

# See Also

  - pkg/types for the record shapes and status enumeration
  - pkg/dispatch for the operations that drive status changes
  - pkg/janitor for retention cleanup built on List/Delete
*/
package repository
