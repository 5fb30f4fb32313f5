package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"MarketScanner/internal/domain"
	"MarketScanner/internal/ports"
)

// StoreSink forwards entries to the durable store.
type StoreSink struct {
	store ports.Store
}

func NewStoreSink(store ports.Store) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Write(ctx context.Context, entry domain.LogEntry) error {
	return s.store.PersistLogEntry(ctx, entry)
}

// JSONLSink appends entries to <dir>/<session>.jsonl, one JSON object per line.
type JSONLSink struct {
	dir string
	mu  sync.Mutex
}

func NewJSONLSink(dir string) *JSONLSink {
	return &JSONLSink{dir: dir}
}

// Path is the trail file of a session.
func (s *JSONLSink) Path(sessionID string) string {
	return filepath.Join(s.dir, filepath.Base(sessionID)+".jsonl")
}

func (s *JSONLSink) Write(_ context.Context, entry domain.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendJSONL(s.Path(entry.SessionID), entry)
}

func appendJSONL(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal jsonl record: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create jsonl dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open jsonl: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append jsonl: %w", err)
	}
	return nil
}
