package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a key or hash field does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrNoEntries is returned by ReadGroup when the blocking window
	// elapses without any new stream entries.
	ErrNoEntries = errors.New("store: no entries")
)

// StreamEntry is a single entry read from a stream.
type StreamEntry struct {
	ID     string
	Values map[string]string
}

// PendingEntry describes a delivered-but-unacknowledged stream entry.
type PendingEntry struct {
	ID         string
	Consumer   string
	Idle       time.Duration
	DeliverCnt int64
}

// ConsumerInfo describes a consumer registered in a group.
type ConsumerInfo struct {
	Name    string
	Pending int64
	Idle    time.Duration
}

// Store defines the key/value and stream operations the task system needs.
// This is implemented by Redis-backed storage.
type Store interface {
	// Connection
	Ping(ctx context.Context) error
	Close() error

	// Keys
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)

	// Hashes
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGet(ctx context.Context, key, field string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// Key discovery
	Scan(ctx context.Context, pattern string) ([]string, error)

	// Streams and consumer groups
	StreamAdd(ctx context.Context, stream string, values map[string]string) (string, error)
	EnsureGroup(ctx context.Context, stream, group string) error
	ReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]StreamEntry, error)
	Ack(ctx context.Context, stream, group string, ids ...string) error
	Claim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, ids ...string) ([]StreamEntry, error)
	PendingRange(ctx context.Context, stream, group string, count int64) ([]PendingEntry, error)
	Consumers(ctx context.Context, stream, group string) ([]ConsumerInfo, error)
	DeleteConsumer(ctx context.Context, stream, group, consumer string) error
}
