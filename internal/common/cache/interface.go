package cache

import (
	"context"
	"time"
)

// Cache is the key-value surface shared stores are built on.
type Cache interface {
	BasicOps
	ZSetOps
	PipelineOps

	// Ping verifies the connection is alive
	Ping(ctx context.Context) error

	Close() error
}

// BasicOps defines string key operations
type BasicOps interface {
	// Get returns "" with a nil error when key does not exist
	Get(ctx context.Context, key string) (string, error)

	// Set stores value. A zero ttl means no expiry
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// SetNX sets value only if key is absent and reports whether it did
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)

	Del(ctx context.Context, keys ...string) error

	// Exists returns how many of keys exist
	Exists(ctx context.Context, keys ...string) (int64, error)

	Expire(ctx context.Context, key string, ttl time.Duration) error

	// TTL returns -1 for keys without expiry and -2 for missing keys
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Incr increments the integer at key by 1
	Incr(ctx context.Context, key string) (int64, error)
}

// ZSetOps defines sorted set operations
type ZSetOps interface {
	ZAdd(ctx context.Context, key string, members ...ZMember) error

	ZRem(ctx context.Context, key string, members ...string) error

	// ZRange returns members by index range in ascending score order
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	ZCard(ctx context.Context, key string) (int64, error)
}

// PipelineOps batches writes into one transaction
type PipelineOps interface {
	Pipeline(ctx context.Context, fn func(pipe Pipeliner) error) error
}

// Pipeliner queues commands inside Pipeline
type Pipeliner interface {
	Set(key string, value interface{}, ttl time.Duration) error
	Del(keys ...string) error
	Expire(key string, ttl time.Duration) error
	ZAdd(key string, members ...ZMember) error
}

// ZMember is a sorted set member with its score
type ZMember struct {
	Score  float64
	Member string
}
