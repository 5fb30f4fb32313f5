// Package broadcast fans session progress events out to any number of
// subscribers, replaying a bounded history to late joiners.
package broadcast

import (
	"errors"
	"log/slog"
	"sync"

	"MarketScanner/internal/domain"
)

const (
	DefaultHistory = 50
	DefaultBuffer  = 64
)

// ErrSlowSubscriber is reported by a subscription dropped for falling behind.
var ErrSlowSubscriber = errors.New("subscriber too slow")

type topic struct {
	history []domain.ProgressEvent
	subs    map[*Subscription]struct{}
	closed  bool
}

// Broadcaster is a registry of per-session topics.
type Broadcaster struct {
	mu      sync.Mutex
	topics  map[string]*topic
	history int
	buffer  int
	logger  *slog.Logger
}

func New(history, buffer int, logger *slog.Logger) *Broadcaster {
	if history <= 0 {
		history = DefaultHistory
	}
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		topics:  make(map[string]*topic),
		history: history,
		buffer:  buffer,
		logger:  logger,
	}
}

// Subscription receives one session's events in sequence order.
type Subscription struct {
	sessionID string
	owner     *Broadcaster
	ch        chan domain.ProgressEvent

	mu     sync.Mutex
	closed bool
	err    error
}

// Events is closed when the session ends, the subscriber is dropped, or
// Close is called.
func (s *Subscription) Events() <-chan domain.ProgressEvent {
	return s.ch
}

// Err is ErrSlowSubscriber when the stream was cut for falling behind.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close unsubscribes.
func (s *Subscription) Close() {
	s.owner.remove(s)
	s.finish(nil)
}

func (s *Subscription) deliver(ev domain.ProgressEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- ev:
		return true
	default:
		s.closed = true
		s.err = ErrSlowSubscriber
		close(s.ch)
		return false
	}
}

func (s *Subscription) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.ch)
}

func (b *Broadcaster) topicLocked(sessionID string) *topic {
	t, ok := b.topics[sessionID]
	if !ok {
		t = &topic{subs: make(map[*Subscription]struct{})}
		b.topics[sessionID] = t
	}
	return t
}

// Subscribe replays the retained history and then streams live events. On a
// finished session the channel closes right after the history.
func (b *Broadcaster) Subscribe(sessionID string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topicLocked(sessionID)
	sub := &Subscription{
		sessionID: sessionID,
		owner:     b,
		ch:        make(chan domain.ProgressEvent, len(t.history)+b.buffer),
	}
	for _, ev := range t.history {
		sub.ch <- ev
	}
	if t.closed {
		sub.closed = true
		close(sub.ch)
		return sub
	}
	t.subs[sub] = struct{}{}
	return sub
}

// Publish never blocks: a subscriber whose buffer is full is dropped.
func (b *Broadcaster) Publish(ev domain.ProgressEvent) {
	b.mu.Lock()
	t := b.topicLocked(ev.SessionID)
	if t.closed {
		b.mu.Unlock()
		return
	}
	t.history = append(t.history, ev)
	if over := len(t.history) - b.history; over > 0 {
		t.history = append([]domain.ProgressEvent(nil), t.history[over:]...)
	}
	subs := make([]*Subscription, 0, len(t.subs))
	for s := range t.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		if !s.deliver(ev) {
			b.remove(s)
			b.logger.Warn("dropped slow subscriber", "session", ev.SessionID, "sequence", ev.Sequence)
		}
	}
}

// Close ends every live stream of a session; history stays for replay.
func (b *Broadcaster) Close(sessionID string) {
	b.mu.Lock()
	t := b.topicLocked(sessionID)
	t.closed = true
	subs := t.subs
	t.subs = make(map[*Subscription]struct{})
	b.mu.Unlock()

	for s := range subs {
		s.finish(nil)
	}
}

// Forget drops a session's history and streams.
func (b *Broadcaster) Forget(sessionID string) {
	b.mu.Lock()
	t, ok := b.topics[sessionID]
	delete(b.topics, sessionID)
	b.mu.Unlock()

	if !ok {
		return
	}
	for s := range t.subs {
		s.finish(nil)
	}
}

// History returns a copy of the retained events.
func (b *Broadcaster) History(sessionID string) []domain.ProgressEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[sessionID]
	if !ok {
		return nil
	}
	return append([]domain.ProgressEvent(nil), t.history...)
}

func (b *Broadcaster) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.topics[s.sessionID]; ok {
		delete(t.subs, s)
	}
}
