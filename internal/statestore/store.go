// Package statestore provides the atomic shared-state abstraction used by
// the circuit breaker, bulkhead, rate limiter, and token budget so that
// multiple gateway replicas observe a consistent view. A Redis-backed
// implementation is the production path; an in-memory implementation
// backs both tests and the degraded mode every caller must fall back to
// when Redis is unreachable.
package statestore

import (
	"context"
	"time"
)

// Store is the minimal atomic primitive set the routing core needs.
// Implementations must make every method safe for concurrent use.
type Store interface {
	// Get returns the string value at key, or ok=false if absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set unconditionally stores value at key with optional ttl (0 = no expiry).
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Incr atomically increments the integer at key by delta (creating it
	// at 0 first if absent) and returns the new value.
	Incr(ctx context.Context, key string, delta int64) (int64, error)

	// Decr atomically decrements the integer at key by delta and returns
	// the new value. Implementations must never let the stored value go
	// below 0 for counters used as bulkhead/rate-limit state.
	Decr(ctx context.Context, key string, delta int64) (int64, error)

	// CompareAndSwap atomically sets key to newVal only if its current
	// value equals oldVal (oldVal="" also matches an absent key), and
	// reports whether the swap happened.
	CompareAndSwap(ctx context.Context, key, oldVal, newVal string) (bool, error)

	// SetNX sets key to value only if it is currently absent, with the
	// given ttl, and reports whether the set happened.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Delete removes key, if present.
	Delete(ctx context.Context, key string) error

	// Healthy reports whether the store is currently reachable. Callers
	// use this to decide whether to degrade to a local fallback.
	Healthy(ctx context.Context) bool
}
