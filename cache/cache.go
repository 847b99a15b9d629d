package cache

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps backend failures (connection refused, timeouts, protocol errors).
var ErrUnavailable = errors.New("cache backend unavailable")

// Repository is the key-value abstraction sessions and tombstones are stored in.
//
// A ttl of zero means the entry does not expire.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete is idempotent: deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Scan returns every key matching a glob pattern (*, ?, [..], \ escapes).
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Locker acquires short-lived exclusive leases on keys.
type Locker interface {
	// Acquire returns ok=false when another holder owns key. The returned release
	// func is safe to call more than once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}
