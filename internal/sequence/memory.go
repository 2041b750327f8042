package sequence

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu       sync.Mutex
	counters map[int]int
}

// NewMemoryStore creates a concurrency-safe in-memory counter store. Used in
// development mode and by unit tests.
func NewMemoryStore() Store {
	return &memoryStore{counters: make(map[int]int)}
}

func (s *memoryStore) Next(_ context.Context, year int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[year]++
	return s.counters[year], nil
}

func (s *memoryStore) Current(_ context.Context, year int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[year], nil
}
