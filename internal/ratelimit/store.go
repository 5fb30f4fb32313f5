package ratelimit

import (
	"context"
	"sync"
	"time"
)

// WindowStore keeps request timestamps per key for a sliding window.
type WindowStore interface {
	// Reserve records a request at now if fewer than limit requests fall in
	// the window ending at now. When the budget is spent it returns the
	// instant the oldest request leaves the window.
	Reserve(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (bool, time.Time, error)
	// Count reports how many requests fall in the window ending at now.
	Count(ctx context.Context, key string, now time.Time, window time.Duration) (int, error)
}

// MemoryStore is a WindowStore for a single process.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string][]time.Time
}

var _ WindowStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]time.Time)}
}

func (s *MemoryStore) Reserve(_ context.Context, key string, now time.Time, window time.Duration, limit int) (bool, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := s.prune(key, now, window)
	if len(live) < limit {
		s.entries[key] = append(live, now)
		return true, time.Time{}, nil
	}
	return false, live[0].Add(window), nil
}

func (s *MemoryStore) Count(_ context.Context, key string, now time.Time, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prune(key, now, window)), nil
}

// prune drops timestamps at or before now-window; callers hold mu.
func (s *MemoryStore) prune(key string, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	times := s.entries[key]
	idx := 0
	for idx < len(times) && !times[idx].After(cutoff) {
		idx++
	}
	live := times[idx:]
	if len(live) == 0 {
		delete(s.entries, key)
		return nil
	}
	s.entries[key] = live
	return live
}
