package resilience

import (
	"context"
	"sync"
	"testing"

	"github.com/arcrelay/gateway/internal/statestore"
)

func TestBulkhead_RejectsBeyondMax(t *testing.T) {
	ctx := context.Background()
	b := NewBulkhead("p1", statestore.NewMemory(), 2, nil)

	if err := b.TryEnter(ctx); err != nil {
		t.Fatalf("first entry should succeed: %v", err)
	}
	if err := b.TryEnter(ctx); err != nil {
		t.Fatalf("second entry should succeed: %v", err)
	}
	if err := b.TryEnter(ctx); err == nil {
		t.Fatal("third entry should fail, bulkhead is full")
	}
	if b.Current(ctx) != 2 {
		t.Fatalf("expected current=2 after rejected entry, got %d", b.Current(ctx))
	}
}

func TestBulkhead_ExitFreesSlot(t *testing.T) {
	ctx := context.Background()
	b := NewBulkhead("p1", statestore.NewMemory(), 1, nil)

	if err := b.TryEnter(ctx); err != nil {
		t.Fatal(err)
	}
	b.Exit(ctx)
	if err := b.TryEnter(ctx); err != nil {
		t.Fatalf("entry after exit should succeed: %v", err)
	}
}

func TestBulkhead_NeverNegativeUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	b := NewBulkhead("p1", statestore.NewMemory(), 5, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := b.TryEnter(ctx); err == nil {
				b.Exit(ctx)
			}
		}()
	}
	wg.Wait()

	if c := b.Current(ctx); c < 0 {
		t.Fatalf("bulkhead counter went negative: %d", c)
	}
}
