package cache

import (
	"context"
	"time"
)

// Cache defines the unified interface for cache operations.
// This abstraction allows switching between different cache implementations
// (Redis, local memory) without changing business logic.
type Cache interface {
	BasicOps
	HashOps
	ZSetOps
	LockOps

	// Ping verifies the cache connection is alive
	Ping(ctx context.Context) error

	// Close closes the cache connection
	Close() error
}

// BasicOps defines basic key-value operations
type BasicOps interface {
	// Get retrieves the value for the given key
	// Returns empty string and nil error if key doesn't exist
	Get(ctx context.Context, key string) (string, error)

	// Set stores a key-value pair with optional expiration
	// ttl = 0 means no expiration
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Del deletes one or more keys
	Del(ctx context.Context, keys ...string) error

	// Exists checks how many of the given keys exist
	Exists(ctx context.Context, keys ...string) (int64, error)

	// Incr increments the integer value of key, creating it at 1
	Incr(ctx context.Context, key string) (int64, error)

	// Expire sets a timeout on key
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// HashOps defines hash operations
type HashOps interface {
	// HSet sets a field in a hash
	HSet(ctx context.Context, key, field string, value interface{}) error

	// HGet retrieves a field from a hash
	// Returns empty string and nil error if the field doesn't exist
	HGet(ctx context.Context, key, field string) (string, error)

	// HGetAll retrieves all fields and values from a hash
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// HDel deletes one or more fields from a hash
	HDel(ctx context.Context, key string, fields ...string) error
}

// ZSetOps defines sorted set operations
type ZSetOps interface {
	// ZAdd adds one or more members with scores to a sorted set
	ZAdd(ctx context.Context, key string, members ...ZMember) error

	// ZRem removes one or more members from a sorted set and returns how many were removed
	ZRem(ctx context.Context, key string, members ...string) (int64, error)

	// ZRangeByScore returns members whose score is within [min, max], ascending
	ZRangeByScore(ctx context.Context, key string, min, max float64, limit int64) ([]ZMember, error)
}

// LockOps defines distributed lock operations
type LockOps interface {
	// TryLock attempts to acquire a distributed lock
	// Returns true if lock was acquired, false otherwise
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Unlock releases a distributed lock
	Unlock(ctx context.Context, key string) error
}

// ZMember represents a member in a sorted set with its score
type ZMember struct {
	Score  float64
	Member string
}
