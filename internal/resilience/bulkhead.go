package resilience

import (
	"context"
	"log/slog"
	"strconv"

	gwerrors "github.com/arcrelay/gateway/pkg/errors"
	"github.com/arcrelay/gateway/internal/statestore"
)

// DefaultBulkheadMax is the default per-provider concurrency ceiling.
const DefaultBulkheadMax = 10

// Bulkhead is a per-provider concurrency limiter backed by a shared
// atomic counter. Entry never waits: if the configured max would be
// exceeded, TryEnter fails immediately with BulkheadFull. Every
// successful TryEnter must be paired with exactly one Exit on every
// code path, including cancellation and panics.
type Bulkhead struct {
	name   string
	store  statestore.Store
	max    int
	logger *slog.Logger
}

// NewBulkhead creates a bulkhead for one provider with the given max
// concurrency, backed by store (normally a *statestore.Degraded).
func NewBulkhead(name string, store statestore.Store, max int, logger *slog.Logger) *Bulkhead {
	if max <= 0 {
		max = DefaultBulkheadMax
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bulkhead{name: name, store: store, max: max, logger: logger}
}

// TryEnter atomically increments the in-flight counter if doing so
// would not exceed max, returning a BulkheadFull error otherwise. It
// never blocks.
func (b *Bulkhead) TryEnter(ctx context.Context) error {
	key := statestore.BulkheadCounterKey(b.name)

	next, err := b.store.Incr(ctx, key, 1)
	if err != nil {
		return gwerrors.Wrap(gwerrors.KindInternal, b.name, "bulkhead counter unavailable", err)
	}
	if next > int64(b.max) {
		_, _ = b.store.Decr(ctx, key, 1)
		return gwerrors.New(gwerrors.KindBulkheadFull, b.name, "bulkhead at capacity")
	}
	return nil
}

// Exit releases one in-flight slot. Callers must call this exactly once
// for every successful TryEnter, on every exit path.
func (b *Bulkhead) Exit(ctx context.Context) {
	_, _ = b.store.Decr(ctx, statestore.BulkheadCounterKey(b.name), 1)
}

// Current returns the current in-flight count, for status reporting.
func (b *Bulkhead) Current(ctx context.Context) int64 {
	val, ok, err := b.store.Get(ctx, statestore.BulkheadCounterKey(b.name))
	if err != nil || !ok {
		return 0
	}
	n, _ := strconv.ParseInt(val, 10, 64)
	return n
}

// Max returns the configured concurrency ceiling.
func (b *Bulkhead) Max() int { return b.max }
