package scheduler

import (
	"context"
	"sync"
	"time"

	"MarketScanner/internal/clock"
	"MarketScanner/internal/ports"
)

// IntervalScheduler fires a job every interval, aligned to the clock it is given.
type IntervalScheduler struct {
	interval   time.Duration
	location   *time.Location
	clk        clock.Clock
	runOnStart bool

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

var _ ports.Scheduler = (*IntervalScheduler)(nil)

// NewIntervalScheduler builds a scheduler; trigger times are reported in loc.
func NewIntervalScheduler(interval time.Duration, loc *time.Location, clk clock.Clock, runOnStart bool) *IntervalScheduler {
	if loc == nil {
		loc = time.UTC
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &IntervalScheduler{interval: interval, location: loc, clk: clk, runOnStart: runOnStart}
}

// Start begins ticking. Calling it twice without Stop is a no-op.
func (s *IntervalScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil || s.interval <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return nil
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	s.stop, s.done = stop, done

	go func() {
		defer close(done)
		if s.runOnStart {
			job(s.clk.Now().In(s.location))
		}
		for {
			select {
			case t := <-s.clk.After(s.interval):
				job(t.In(s.location))
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
	}()

	return nil
}

// Stop halts the ticking goroutine and waits for a running job to return.
func (s *IntervalScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
