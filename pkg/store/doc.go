/*
Package store provides Redis-backed persistence and stream delivery for the
task system.

The store package wraps the Redis commands the rest of the system needs
behind a small Store interface: plain keys for heartbeat sentinels and result
blobs, hashes for task and worker records, SCAN for keyspace walks, and
stream consumer groups for at-least-once task delivery.

# Architecture

	┌───────────────────── REDIS STORE ─────────────────────┐
	│                                                         │
	│  ┌───────────────────────────────────────┐             │
	│  │            Key/Value + Hash            │             │
	│  │  task:{id}        task record (hash)   │             │
	│  │  results:{id}     packed results (str) │             │
	│  │  worker:{id}      worker record (hash) │             │
	│  │  worker:{id}:heartbeat  TTL sentinel   │             │
	│  │  story:{name}     story index (hash)   │             │
	│  └───────────────────────────────────────┘             │
	│                                                         │
	│  ┌───────────────────────────────────────┐             │
	│  │          Stream + Consumer Group       │             │
	│  │  translation_tasks   work entries      │             │
	│  │  translation_workers consumer group    │             │
	│  │  XADD / XREADGROUP / XACK / XCLAIM     │             │
	│  │  XPENDING / XINFO CONSUMERS            │             │
	│  └───────────────────────────────────────┘             │
	└─────────────────────────────────────────────────────────┘

# Core Components

Store:
  - Interface over connection, key, hash, scan, and stream operations
  - Everything takes a context for cancellation and deadlines

RedisStore:
  - go-redis backed implementation
  - Constructor pings the server so misconfiguration fails at startup
  - SCAN cursor loops instead of KEYS (never blocks the server)
  - BUSYGROUP tolerated in EnsureGroup (idempotent group creation)

Delivery semantics:
  - ReadGroup returns only never-delivered entries (the ">" cursor)
  - Unacknowledged entries stay in the pending list with an idle clock
  - Claim moves entries between consumers once idle exceeds a minimum
  - Ack removes entries from the pending list; it is the commit point

# Usage

	st, err := store.NewRedisStore("localhost:6379", "", 0)
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	// Deliver work through the group.
	_ = st.EnsureGroup(ctx, "translation_tasks", "translation_workers")
	id, _ := st.StreamAdd(ctx, "translation_tasks", map[string]string{"task_id": taskID})
	entries, err := st.ReadGroup(ctx, "translation_tasks", "translation_workers", "worker-1", 1, time.Second)
	if errors.Is(err, store.ErrNoEntries) {
		// nothing to do this cycle
	}
	_ = st.Ack(ctx, "translation_tasks", "translation_workers", id)

# Design Patterns

Sentinel Errors:
  - ErrNotFound for missing keys and hash fields
  - ErrNoEntries for blocked reads that time out
  - Callers branch with errors.Is instead of string matching

Error Wrapping:
  - All failures wrapped with the key or stream: fmt.Errorf("...: %w", err)

# See Also

  - pkg/repository for the task record encoding stored in hashes
  - pkg/dispatch for the claim/ack protocol built on the group operations
  - pkg/janitor for consumer cleanup via Consumers/DeleteConsumer
*/
package store
