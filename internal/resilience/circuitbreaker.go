// Package resilience provides high-availability patterns for the LLM
// gateway: a circuit breaker and a bulkhead, composed as guards around
// each provider adapter call.
package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	gwerrors "github.com/arcrelay/gateway/pkg/errors"
	"github.com/arcrelay/gateway/internal/statestore"
)

// CircuitState represents the current state of a circuit breaker.
type CircuitState string

const (
	StateClosed   CircuitState = "closed"
	StateOpen     CircuitState = "open"
	StateHalfOpen CircuitState = "half-open"
)

// CircuitBreakerConfig contains configuration for a circuit breaker.
type CircuitBreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	SuccessThreshold int
}

// DefaultCircuitBreakerConfig returns the spec's default thresholds.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		SuccessThreshold: 3,
	}
}

// CircuitBreaker is a per-provider state machine backed by a shared
// Store so that multiple gateway replicas observe consistent state. It
// never transitions open->closed without passing through half-open.
type CircuitBreaker struct {
	name   string
	store  statestore.Store
	config CircuitBreakerConfig
	logger *slog.Logger
}

// NewCircuitBreaker creates a circuit breaker for one provider, backed
// by store (normally a *statestore.Degraded wrapping Redis).
func NewCircuitBreaker(name string, store statestore.Store, cfg CircuitBreakerConfig, logger *slog.Logger) *CircuitBreaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &CircuitBreaker{name: name, store: store, config: cfg, logger: logger}
}

func (cb *CircuitBreaker) state(ctx context.Context) CircuitState {
	val, ok, err := cb.store.Get(ctx, statestore.CircuitStateKey(cb.name))
	if err != nil || !ok {
		return StateClosed
	}
	return CircuitState(val)
}

// Allow checks whether a call should proceed, transitioning open to
// half-open once the recovery timeout has elapsed since the last
// recorded failure. Returns a *gwerrors.GatewayError of kind
// CircuitOpen when the call must be rejected.
func (cb *CircuitBreaker) Allow(ctx context.Context) error {
	switch cb.state(ctx) {
	case StateClosed, StateHalfOpen:
		return nil
	case StateOpen:
		if cb.recoveryElapsed(ctx) {
			_, _ = cb.store.CompareAndSwap(ctx, statestore.CircuitStateKey(cb.name), string(StateOpen), string(StateHalfOpen))
			return nil
		}
		return gwerrors.New(gwerrors.KindCircuitOpen, cb.name, "circuit breaker is open")
	default:
		return nil
	}
}

func (cb *CircuitBreaker) recoveryElapsed(ctx context.Context) bool {
	val, ok, err := cb.store.Get(ctx, statestore.CircuitLastFailKey(cb.name))
	if err != nil || !ok {
		return false
	}
	lastFailUnix, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return false
	}
	return time.Since(time.Unix(0, int64(lastFailUnix*float64(time.Second)))) >= cb.config.RecoveryTimeout
}

// RecordSuccess records a successful call. In half-open, it counts
// toward SuccessThreshold before closing; in closed it simply resets
// the failure counter.
func (cb *CircuitBreaker) RecordSuccess(ctx context.Context) {
	switch cb.state(ctx) {
	case StateHalfOpen:
		successes, err := cb.store.Incr(ctx, statestore.CircuitSuccessesKey(cb.name), 1)
		if err != nil {
			return
		}
		if successes >= int64(cb.config.SuccessThreshold) {
			cb.closeCircuit(ctx)
		}
	default:
		_ = cb.store.Delete(ctx, statestore.CircuitFailuresKey(cb.name))
	}
}

func (cb *CircuitBreaker) closeCircuit(ctx context.Context) {
	_ = cb.store.Set(ctx, statestore.CircuitStateKey(cb.name), string(StateClosed), 0)
	_ = cb.store.Delete(ctx, statestore.CircuitFailuresKey(cb.name))
	_ = cb.store.Delete(ctx, statestore.CircuitSuccessesKey(cb.name))
}

// RecordFailure records a failed call, opening the circuit once
// FailureThreshold consecutive failures accumulate in closed state, or
// immediately on any failure while half-open.
func (cb *CircuitBreaker) RecordFailure(ctx context.Context) {
	now := float64(time.Now().UnixNano()) / float64(time.Second)

	switch cb.state(ctx) {
	case StateHalfOpen:
		cb.openCircuit(ctx, now)
	default:
		failures, err := cb.store.Incr(ctx, statestore.CircuitFailuresKey(cb.name), 1)
		if err != nil {
			return
		}
		_ = cb.store.Set(ctx, statestore.CircuitLastFailKey(cb.name), fmt.Sprintf("%v", now), 0)
		if failures >= int64(cb.config.FailureThreshold) {
			_ = cb.store.Set(ctx, statestore.CircuitStateKey(cb.name), string(StateOpen), 0)
		}
	}
}

func (cb *CircuitBreaker) openCircuit(ctx context.Context, failedAt float64) {
	_ = cb.store.Set(ctx, statestore.CircuitStateKey(cb.name), string(StateOpen), 0)
	_ = cb.store.Set(ctx, statestore.CircuitLastFailKey(cb.name), fmt.Sprintf("%v", failedAt), 0)
	_ = cb.store.Delete(ctx, statestore.CircuitSuccessesKey(cb.name))
}

// State returns the current circuit state, for status reporting.
func (cb *CircuitBreaker) State(ctx context.Context) CircuitState {
	return cb.state(ctx)
}

// Name returns the circuit breaker's provider name.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Reset forces the circuit back to closed, for admin use.
func (cb *CircuitBreaker) Reset(ctx context.Context) {
	cb.closeCircuit(ctx)
}
