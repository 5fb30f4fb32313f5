// Package retry implements the exponential backoff shared by fetches and
// model calls: 1s, 2s, 4s... capped, plus proportional jitter.
package retry

import (
	"context"
	"math/rand/v2"
	"time"

	"MarketScanner/internal/clock"
)

// Policy describes how many attempts are made and how long to wait between them.
type Policy struct {
	MaxAttempts int
	Base        time.Duration
	Max         time.Duration
	Jitter      float64
}

// Default is one call plus three retries, 1s doubling to at most 16s, 20% jitter.
func Default() Policy {
	return Policy{
		MaxAttempts: 4,
		Base:        time.Second,
		Max:         16 * time.Second,
		Jitter:      0.2,
	}
}

// Delay is the wait after the given (1-based) failed attempt, before jitter
// when rnd is nil.
func (p Policy) Delay(failed int, rnd func() float64) time.Duration {
	if failed < 1 {
		failed = 1
	}
	d := p.Base
	for i := 1; i < failed; i++ {
		d *= 2
		if p.Max > 0 && d >= p.Max {
			d = p.Max
			break
		}
	}
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	if p.Jitter > 0 && rnd != nil {
		d += time.Duration(float64(d) * p.Jitter * rnd())
	}
	return d
}

// Retrier executes functions under a Policy using an injected clock.
type Retrier struct {
	policy Policy
	clock  clock.Clock
	rand   func() float64
}

// New builds a retrier; a nil clock means the wall clock.
func New(policy Policy, clk clock.Clock) *Retrier {
	if clk == nil {
		clk = clock.Real()
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	return &Retrier{policy: policy, clock: clk, rand: rand.Float64}
}

// WithRand swaps the jitter source, mostly for tests.
func (r *Retrier) WithRand(rnd func() float64) *Retrier {
	cp := *r
	cp.rand = rnd
	return &cp
}

// Policy exposes the configured policy.
func (r *Retrier) Policy() Policy {
	return r.policy
}

// Do calls fn until it succeeds, returns an error retryable rejects, or the
// attempts are used up. It returns the number of attempts made and the last
// error. A cancelled ctx interrupts the backoff wait, never fn itself.
func (r *Retrier) Do(ctx context.Context, retryable func(error) bool, fn func(attempt int) error) (int, error) {
	var err error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		err = fn(attempt)
		if err == nil {
			return attempt, nil
		}
		if retryable != nil && !retryable(err) {
			return attempt, err
		}
		if attempt == r.policy.MaxAttempts {
			return attempt, err
		}

		select {
		case <-ctx.Done():
			return attempt, context.Cause(ctx)
		case <-r.clock.After(r.policy.Delay(attempt, r.rand)):
		}
	}
	return r.policy.MaxAttempts, err
}
