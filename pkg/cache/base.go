// Package cache provides the volatile cache tier for entry payloads.
//
// The tier is a thin client over two backends: an optional external backend
// (Redis) and an always-present in-process fallback. When the external
// backend fails, operations transparently retry against the fallback and the
// tier reports itself degraded until the backend answers a health probe
// again. Cached values are opaque byte slices; callers own serialization.
package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrMiss is returned when a key is not present in a backend.
	ErrMiss = errors.New("cache miss")

	// ErrUnavailable is returned when no backend can serve an operation.
	ErrUnavailable = errors.New("cache unavailable")
)

// Backend is a single cache store.
//
// Implementations must treat an absent key as ErrMiss, not as a failure.
// Any other error means the backend could not serve the operation.
type Backend interface {
	// Set stores a value under key. A non-positive ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get returns the value stored under key, or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Drops returns the number of writes rejected or entries evicted
	// under capacity pressure.
	Drops() int64

	// Name identifies the backend in logs and stats.
	Name() string

	// Close releases backend resources.
	Close() error
}
