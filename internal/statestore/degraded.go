package statestore

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Degraded wraps a primary Store (normally Redis) with a local Memory
// fallback. Every call first tries primary; on error it falls through to
// the in-memory store and logs a warning exactly once per outage, per
// the requirement that circuit-breaker, bulkhead, and rate-limit state
// degrade to local tracking rather than fail the request.
type Degraded struct {
	primary  Store
	fallback Store
	logger   *slog.Logger
	degraded atomic.Bool
}

// NewDegraded builds a Store that prefers primary and falls back to an
// internal Memory store on primary failure.
func NewDegraded(primary Store, logger *slog.Logger) *Degraded {
	if logger == nil {
		logger = slog.Default()
	}
	return &Degraded{primary: primary, fallback: NewMemory(), logger: logger}
}

func (d *Degraded) noteFailure(op string, err error) {
	if d.degraded.CompareAndSwap(false, true) {
		d.logger.Warn("shared state store unavailable, degrading to local state",
			"op", op, "error", err)
	}
}

func (d *Degraded) noteRecovery() {
	d.degraded.Store(false)
}

// IsDegraded reports whether the store is currently operating against
// its local fallback rather than the shared primary.
func (d *Degraded) IsDegraded() bool { return d.degraded.Load() }

func (d *Degraded) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := d.primary.Get(ctx, key)
	if err != nil {
		d.noteFailure("get", err)
		return d.fallback.Get(ctx, key)
	}
	d.noteRecovery()
	return v, ok, nil
}

func (d *Degraded) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := d.primary.Set(ctx, key, value, ttl); err != nil {
		d.noteFailure("set", err)
		return d.fallback.Set(ctx, key, value, ttl)
	}
	d.noteRecovery()
	return nil
}

func (d *Degraded) Incr(ctx context.Context, key string, delta int64) (int64, error) {
	v, err := d.primary.Incr(ctx, key, delta)
	if err != nil {
		d.noteFailure("incr", err)
		return d.fallback.Incr(ctx, key, delta)
	}
	d.noteRecovery()
	return v, nil
}

func (d *Degraded) Decr(ctx context.Context, key string, delta int64) (int64, error) {
	v, err := d.primary.Decr(ctx, key, delta)
	if err != nil {
		d.noteFailure("decr", err)
		return d.fallback.Decr(ctx, key, delta)
	}
	d.noteRecovery()
	return v, nil
}

func (d *Degraded) CompareAndSwap(ctx context.Context, key, oldVal, newVal string) (bool, error) {
	ok, err := d.primary.CompareAndSwap(ctx, key, oldVal, newVal)
	if err != nil {
		d.noteFailure("cas", err)
		return d.fallback.CompareAndSwap(ctx, key, oldVal, newVal)
	}
	d.noteRecovery()
	return ok, nil
}

func (d *Degraded) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := d.primary.SetNX(ctx, key, value, ttl)
	if err != nil {
		d.noteFailure("setnx", err)
		return d.fallback.SetNX(ctx, key, value, ttl)
	}
	d.noteRecovery()
	return ok, nil
}

func (d *Degraded) Delete(ctx context.Context, key string) error {
	if err := d.primary.Delete(ctx, key); err != nil {
		d.noteFailure("delete", err)
		return d.fallback.Delete(ctx, key)
	}
	d.noteRecovery()
	return nil
}

func (d *Degraded) Healthy(ctx context.Context) bool {
	return d.primary.Healthy(ctx)
}
