package retry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingClock struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (c *recordingClock) Now() time.Time { return time.Unix(0, 0) }

func (c *recordingClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.delays = append(c.delays, d)
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- time.Unix(0, 0)
	return ch
}

func TestDelaySchedule(t *testing.T) {
	t.Parallel()

	p := Default()
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 16 * time.Second}
	for i, w := range want {
		if got := p.Delay(i+1, nil); got != w {
			t.Fatalf("delay after failure %d = %v, want %v", i+1, got, w)
		}
	}
}

func TestDelayJitterBounded(t *testing.T) {
	t.Parallel()

	p := Default()
	if got := p.Delay(1, func() float64 { return 1 }); got != 1200*time.Millisecond {
		t.Fatalf("max jitter = %v, want 1.2s", got)
	}
	if got := p.Delay(5, func() float64 { return 0.5 }); got != 16*time.Second+1600*time.Millisecond {
		t.Fatalf("capped jitter = %v", got)
	}
}

func TestDoSucceedsAfterFewerThanMaxFailures(t *testing.T) {
	t.Parallel()

	for k := 0; k < Default().MaxAttempts; k++ {
		clk := &recordingClock{}
		r := New(Default(), clk).WithRand(func() float64 { return 0 })

		calls := 0
		attempts, err := r.Do(context.Background(), nil, func(int) error {
			calls++
			if calls <= k {
				return errors.New("flaky")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("k=%d: expected success, got %v", k, err)
		}
		if attempts != k+1 || calls != k+1 {
			t.Fatalf("k=%d: attempts=%d calls=%d", k, attempts, calls)
		}
		if len(clk.delays) != k {
			t.Fatalf("k=%d: expected %d waits, got %d", k, k, len(clk.delays))
		}
	}
}

func TestDoStopsAtMaxAttempts(t *testing.T) {
	t.Parallel()

	clk := &recordingClock{}
	r := New(Default(), clk).WithRand(func() float64 { return 0 })
	boom := errors.New("down")

	calls := 0
	attempts, err := r.Do(context.Background(), nil, func(int) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected last error, got %v", err)
	}
	if attempts != 4 || calls != 4 {
		t.Fatalf("attempts=%d calls=%d, want 4", attempts, calls)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(clk.delays) != len(want) {
		t.Fatalf("unexpected waits %v", clk.delays)
	}
	for i := range want {
		if clk.delays[i] != want[i] {
			t.Fatalf("wait %d = %v, want %v", i, clk.delays[i], want[i])
		}
	}
}

func TestDoDoesNotRetryPermanentErrors(t *testing.T) {
	t.Parallel()

	permanent := errors.New("403")
	r := New(Default(), &recordingClock{})
	calls := 0
	attempts, err := r.Do(context.Background(), func(err error) bool { return !errors.Is(err, permanent) }, func(int) error {
		calls++
		return permanent
	})
	if attempts != 1 || calls != 1 || !errors.Is(err, permanent) {
		t.Fatalf("attempts=%d calls=%d err=%v", attempts, calls, err)
	}
}

func TestDoHonoursCancelledContextBetweenAttempts(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancelCause(context.Background())
	stop := errors.New("stop")
	cancel(stop)

	r := New(Default(), blockingClock{})
	attempts, err := r.Do(ctx, nil, func(int) error { return errors.New("fail") })
	if attempts != 1 || !errors.Is(err, stop) {
		t.Fatalf("attempts=%d err=%v", attempts, err)
	}
}

type blockingClock struct{}

func (blockingClock) Now() time.Time                       { return time.Unix(0, 0) }
func (blockingClock) After(time.Duration) <-chan time.Time { return make(chan time.Time) }
