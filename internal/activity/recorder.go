// Package activity keeps the append-only audit trail of every session and
// mirrors it to durable sinks.
package activity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"MarketScanner/internal/clock"
	"MarketScanner/internal/domain"
)

// Sink durably stores entries. Failures are logged by the recorder.
type Sink interface {
	Write(ctx context.Context, entry domain.LogEntry) error
}

// Recorder is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	trails map[string][]domain.LogEntry
	seq    map[string]uint64

	sinks  []Sink
	clock  clock.Clock
	logger *slog.Logger
}

func New(clk clock.Clock, logger *slog.Logger, sinks ...Sink) *Recorder {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		trails: make(map[string][]domain.LogEntry),
		seq:    make(map[string]uint64),
		sinks:  sinks,
		clock:  clk,
		logger: logger,
	}
}

// Record appends entry to its session trail, assigning the next sequence
// number, then forwards it to every sink.
func (r *Recorder) Record(ctx context.Context, entry domain.LogEntry) domain.LogEntry {
	if entry.At.IsZero() {
		entry.At = r.clock.Now()
	}
	if entry.Level == "" {
		entry.Level = domain.LevelInfo
	}
	if entry.Detail != nil {
		detail := make(map[string]string, len(entry.Detail))
		for k, v := range entry.Detail {
			detail[k] = v
		}
		entry.Detail = detail
	}

	r.mu.Lock()
	r.seq[entry.SessionID]++
	entry.Sequence = r.seq[entry.SessionID]
	r.trails[entry.SessionID] = append(r.trails[entry.SessionID], entry)
	r.mu.Unlock()

	for _, sink := range r.sinks {
		if err := sink.Write(ctx, entry); err != nil {
			r.logger.Warn("activity sink failed", "session", entry.SessionID, "action", entry.Action, "error", err)
		}
	}
	return entry
}

// OnEvent records a progress event.
func (r *Recorder) OnEvent(ctx context.Context, ev domain.ProgressEvent) {
	level := domain.LevelInfo
	switch ev.Stage {
	case domain.StateFailed:
		level = domain.LevelError
	case domain.StateCancelled:
		level = domain.LevelWarn
	}
	r.Record(ctx, domain.LogEntry{
		SessionID: ev.SessionID,
		Stage:     ev.Stage,
		Level:     level,
		Action:    "progress",
		Message:   ev.Message,
		Detail: map[string]string{
			"event_sequence": fmt.Sprint(ev.Sequence),
			"progress":       fmt.Sprint(ev.Progress),
		},
		At: ev.At,
	})
}

// Entries returns a copy of a session's trail in sequence order.
func (r *Recorder) Entries(sessionID string) []domain.LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	trail := r.trails[sessionID]
	out := make([]domain.LogEntry, len(trail))
	copy(out, trail)
	return out
}

// Forget drops the in-memory trail of an expired session.
func (r *Recorder) Forget(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.trails, sessionID)
	delete(r.seq, sessionID)
}
