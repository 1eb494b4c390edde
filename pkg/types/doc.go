/*
Package types defines the core data structures used throughout Fable.

This package contains the fundamental types of the translation pipeline's
domain model: tasks, task statuses, packed results, worker heartbeat records,
and story index entries. All other packages depend on it for state
management, API payloads, and dispatch logic.

# Core Types

Task lifecycle:
  - Task: A translation job with its inputs, audit fields, and progress
  - TaskStatus: Typed status enum (pending, processing, completed, failed,
    cancelled, retry)

Results:
  - PackedResults: language -> file id -> per-source outputs
  - FileResult: TEXT / AUDIO / TRANSLATION slots for one file in one language
  - Transcript, TranscriptSegment: structured speech-to-text output

Workers:
  - WorkerInfo: heartbeat record maintained while a worker is alive
  - WorkerState: active or stopping

Lookup:
  - StoryMeta: user-facing story name -> task mapping
  - ResultSource: TEXT, AUDIO, or TRANSLATION selector

# State Machine

Tasks follow a fixed state machine:

	create            claim               success
	  ∅ ──► pending ──► processing ──────► completed
	          ▲  │           │
	    retry │  │ cancel    │ failure
	          │  ▼           ▼
	          │ cancelled   failed ──retry──► pending
	          └──────────────────────────────────┘

Valid transitions:
  - pending → processing (worker claims the stream entry)
  - processing → completed (pipeline succeeded, results stored)
  - processing → failed (pipeline error; entry acknowledged regardless)
  - processing → pending (orphan reclaim; retry count unchanged)
  - failed → pending (explicit retry; retry count incremented)
  - pending | processing → cancelled (cooperative cancellation)

completed, failed, and cancelled are terminal; failed exits only through
an explicit retry. The transition table is enforced by pkg/repository.

# Design Patterns

Enumeration pattern: all enums are typed string constants so that wire
values stay stable across the store and the HTTP API:

	type TaskStatus string
	const TaskStatusPending TaskStatus = "pending"

Optional fields in FileResult use pointers: a nil slot is absent from the
encoded JSON, while a pointer to the empty string encodes as "".

Progress milestones (ProgressClaimed, ProgressStarted, ProgressPipelined,
ProgressDone) are advisory waypoints; callers must not depend on their
granularity.

# Thread Safety

Types here carry no locks. They are safe for concurrent reads; mutations
must be synchronized by the owning component (the repository serializes
task writes through the store).

# See Also

  - pkg/repository for task persistence and transition enforcement
  - pkg/dispatch for the stream-based lifecycle operations
  - pkg/results for packed result storage
*/
package types
