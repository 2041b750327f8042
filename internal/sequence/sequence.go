package sequence

import (
	"context"
	"errors"
	"fmt"
)

// ErrStorageUnavailable occurs when the counter backend cannot be reached.
// Callers must surface it rather than fabricate a number.
var ErrStorageUnavailable = errors.New("sequence storage unavailable")

// Counter is the per-year allocation state. Exactly one row exists per year.
type Counter struct {
	Year    int
	Counter int
}

// Store defines the contract implemented by counter backends (e.g. Postgres).
// Next reserves and returns the next value for the year; the read of the
// current value and the write of the incremented value are one atomic unit.
type Store interface {
	Next(ctx context.Context, year int) (int, error)
	Current(ctx context.Context, year int) (int, error)
}

// Allocator issues unique, monotonically increasing per-year numbers.
type Allocator struct {
	store  Store
	prefix string
}

// NewAllocator builds an allocator over the provided store.
func NewAllocator(store Store, prefix string) *Allocator {
	if prefix == "" {
		prefix = "ATT"
	}
	return &Allocator{store: store, prefix: prefix}
}

// Allocate reserves the next number for the given year. The first allocation
// of a new year returns 1.
func (a *Allocator) Allocate(ctx context.Context, year int) (int, error) {
	if year < 1900 || year > 9999 {
		return 0, fmt.Errorf("year %d out of range", year)
	}
	n, err := a.store.Next(ctx, year)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// FormatNumber renders an allocated value as the printed certificate number,
// e.g. "ATT-2026-00001".
func (a *Allocator) FormatNumber(year, n int) string {
	return fmt.Sprintf("%s-%04d-%05d", a.prefix, year, n)
}
