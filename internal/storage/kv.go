package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a key does not exist or has expired.
	ErrNotFound = errors.New("key not found")

	// ErrUnavailable wraps infrastructure failures (connection refused,
	// timeout). Callers treat it as transient.
	ErrUnavailable = errors.New("store unavailable")
)

// KV abstracts the shared key-value store the governance components
// coordinate through. Implementations must make IncrBy and PushTrim atomic
// across processes.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error

	// SetNX sets the key only if it does not exist. Returns true if the
	// value was written.
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)

	// IncrBy atomically increments the integer at key and returns the new value.
	IncrBy(ctx context.Context, key string, n int64) (int64, error)

	Expire(ctx context.Context, key string, ttl time.Duration) error

	// TTL returns the remaining lifetime of key, or ErrNotFound if it does
	// not exist.
	TTL(ctx context.Context, key string) (time.Duration, error)

	Del(ctx context.Context, key string) error

	// PushTrim appends value to the tail of the list at key, drops entries
	// from the head so at most max remain, and refreshes the list TTL.
	PushTrim(ctx context.Context, key string, value string, max int64, ttl time.Duration) error

	// ListRange returns list entries by index, negative indexes counting
	// from the tail. A missing key yields an empty slice.
	ListRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	Ping(ctx context.Context) error
}
