package storage

import (
	"context"
	"log/slog"
	"sync"

	"MarketScanner/internal/domain"
	"MarketScanner/internal/ports"
)

const DefaultQueueSize = 256

type op struct {
	name string
	run  func(ctx context.Context) error
}

// AsyncStore queues writes for a single background worker so callers never
// wait on the database. When the queue is full the write is dropped and logged.
type AsyncStore struct {
	next   ports.Store
	queue  chan op
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

var _ ports.Store = (*AsyncStore)(nil)

// NewAsync starts the worker. Close must be called to drain it.
func NewAsync(next ports.Store, size int, logger *slog.Logger) *AsyncStore {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &AsyncStore{
		next:   next,
		queue:  make(chan op, size),
		logger: logger.With("component", "store"),
		done:   make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *AsyncStore) loop() {
	defer close(s.done)
	ctx := context.Background()
	for o := range s.queue {
		if err := o.run(ctx); err != nil {
			s.logger.Warn("persist failed", "op", o.name, "error", err)
		}
	}
}

func (s *AsyncStore) enqueue(name string, run func(ctx context.Context) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.logger.Warn("persist after close dropped", "op", name)
		return nil
	}
	select {
	case s.queue <- op{name: name, run: run}:
	default:
		s.logger.Warn("persist queue full, write dropped", "op", name)
	}
	return nil
}

// Close stops accepting writes and waits for queued ones until ctx expires.
func (s *AsyncStore) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *AsyncStore) PersistArticle(_ context.Context, sessionID string, candidate domain.Candidate, body string) error {
	return s.enqueue("article", func(ctx context.Context) error {
		return s.next.PersistArticle(ctx, sessionID, candidate, body)
	})
}

func (s *AsyncStore) PersistAnalysis(_ context.Context, sessionID string, article domain.ClassifiedArticle) error {
	return s.enqueue("analysis", func(ctx context.Context) error {
		return s.next.PersistAnalysis(ctx, sessionID, article)
	})
}

func (s *AsyncStore) PersistPosition(_ context.Context, sessionID string, position domain.Position) error {
	position = position.Clone()
	return s.enqueue("position", func(ctx context.Context) error {
		return s.next.PersistPosition(ctx, sessionID, position)
	})
}

func (s *AsyncStore) PersistLogEntry(_ context.Context, entry domain.LogEntry) error {
	return s.enqueue("log_entry", func(ctx context.Context) error {
		return s.next.PersistLogEntry(ctx, entry)
	})
}

func (s *AsyncStore) PersistMarketSummary(_ context.Context, summary domain.MarketSummary) error {
	summary.Bullets = append([]string(nil), summary.Bullets...)
	return s.enqueue("market_summary", func(ctx context.Context) error {
		return s.next.PersistMarketSummary(ctx, summary)
	})
}

// Discard is a Store that drops every write; used when no database is configured.
type Discard struct{}

var _ ports.Store = Discard{}

func (Discard) PersistArticle(context.Context, string, domain.Candidate, string) error { return nil }
func (Discard) PersistAnalysis(context.Context, string, domain.ClassifiedArticle) error {
	return nil
}
func (Discard) PersistPosition(context.Context, string, domain.Position) error { return nil }
func (Discard) PersistLogEntry(context.Context, domain.LogEntry) error         { return nil }
func (Discard) PersistMarketSummary(context.Context, domain.MarketSummary) error {
	return nil
}
