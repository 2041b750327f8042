package sequence

import (
	"context"
	"sort"
	"sync"
	"testing"
)

func TestAllocateStartsAtOnePerYear(t *testing.T) {
	alloc := NewAllocator(NewMemoryStore(), "ATT")
	ctx := context.Background()

	n, err := alloc.Allocate(ctx, 2026)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if got := alloc.FormatNumber(2026, n); got != "ATT-2026-00001" {
		t.Fatalf("expected ATT-2026-00001, got %s", got)
	}

	n, err = alloc.Allocate(ctx, 2026)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if got := alloc.FormatNumber(2026, n); got != "ATT-2026-00002" {
		t.Fatalf("expected ATT-2026-00002, got %s", got)
	}

	// A new year resets the counter.
	n, err = alloc.Allocate(ctx, 2027)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if got := alloc.FormatNumber(2027, n); got != "ATT-2027-00001" {
		t.Fatalf("expected ATT-2027-00001, got %s", got)
	}
}

func TestAllocateConcurrentCallersGetDistinctContiguousNumbers(t *testing.T) {
	alloc := NewAllocator(NewMemoryStore(), "ATT")
	ctx := context.Background()

	const workers = 128
	results := make([]int, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n, err := alloc.Allocate(ctx, 2026)
			if err != nil {
				t.Errorf("allocate %d: %v", i, err)
				return
			}
			results[i] = n
		}(i)
	}
	wg.Wait()

	sort.Ints(results)
	for i, n := range results {
		if n != i+1 {
			t.Fatalf("expected contiguous sequence starting at 1, position %d holds %d", i, n)
		}
	}
}

func TestAllocateRejectsImplausibleYear(t *testing.T) {
	alloc := NewAllocator(NewMemoryStore(), "ATT")
	if _, err := alloc.Allocate(context.Background(), 99); err == nil {
		t.Fatalf("expected out-of-range year error")
	}
}
