package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"MarketScanner/internal/domain"
	"MarketScanner/internal/logging"
)

type recordingStore struct {
	Discard
	mu      sync.Mutex
	entries []domain.LogEntry
	entered chan struct{}
	gate    chan struct{}
	fail    error
}

func (s *recordingStore) PersistLogEntry(_ context.Context, entry domain.LogEntry) error {
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return s.fail
}

func (s *recordingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func TestAsyncStoreDrainsOnClose(t *testing.T) {
	t.Parallel()

	next := &recordingStore{}
	store := NewAsync(next, 16, logging.Discard())
	for i := range 10 {
		if err := store.PersistLogEntry(context.Background(), domain.LogEntry{SessionID: "s", Sequence: uint64(i + 1)}); err != nil {
			t.Fatalf("persist: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := next.count(); got != 10 {
		t.Fatalf("expected 10 writes, got %d", got)
	}
	for i, e := range next.entries {
		if e.Sequence != uint64(i+1) {
			t.Fatalf("writes out of order at %d: %d", i, e.Sequence)
		}
	}
}

func TestAsyncStoreDropsWhenQueueFull(t *testing.T) {
	t.Parallel()

	next := &recordingStore{entered: make(chan struct{}, 4), gate: make(chan struct{})}
	store := NewAsync(next, 1, logging.Discard())

	_ = store.PersistLogEntry(context.Background(), domain.LogEntry{Sequence: 1})
	<-next.entered // worker is now blocked inside the first write

	_ = store.PersistLogEntry(context.Background(), domain.LogEntry{Sequence: 2})
	if err := store.PersistLogEntry(context.Background(), domain.LogEntry{Sequence: 3}); err != nil {
		t.Fatalf("dropped write must not fail the caller: %v", err)
	}

	close(next.gate)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := next.count(); got != 2 {
		t.Fatalf("expected 2 writes with the third dropped, got %d", got)
	}
}

func TestAsyncStoreSwallowsFailuresAndIgnoresWritesAfterClose(t *testing.T) {
	t.Parallel()

	next := &recordingStore{fail: errors.New("db down")}
	store := NewAsync(next, 4, logging.Discard())
	_ = store.PersistLogEntry(context.Background(), domain.LogEntry{Sequence: 1})

	if err := store.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := store.Close(context.Background()); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := store.PersistLogEntry(context.Background(), domain.LogEntry{Sequence: 2}); err != nil {
		t.Fatalf("persist after close: %v", err)
	}
	if got := next.count(); got != 1 {
		t.Fatalf("expected 1 write, got %d", got)
	}
}
