// Package ratelimit enforces per-domain request budgets over a sliding window.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"MarketScanner/internal/clock"
)

// Budget is the number of requests allowed per window for one domain.
type Budget struct {
	Limit  int
	Window time.Duration
}

// DefaultBudget is 10 requests per rolling minute.
func DefaultBudget() Budget {
	return Budget{Limit: 10, Window: time.Minute}
}

// Limiter blocks callers until their domain has budget left. A request is
// counted when it is admitted, before it is sent.
type Limiter struct {
	store     WindowStore
	clock     clock.Clock
	def       Budget
	overrides map[string]Budget
	logger    *slog.Logger
}

// NewLimiter wires a limiter. Overrides are keyed by lower-case host name.
func NewLimiter(store WindowStore, clk clock.Clock, def Budget, overrides map[string]Budget, logger *slog.Logger) *Limiter {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if def.Limit <= 0 || def.Window <= 0 {
		def = DefaultBudget()
	}
	normalized := make(map[string]Budget, len(overrides))
	for host, b := range overrides {
		normalized[strings.ToLower(host)] = b
	}
	return &Limiter{
		store:     store,
		clock:     clk,
		def:       def,
		overrides: normalized,
		logger:    logger,
	}
}

// BudgetFor returns the effective budget for a domain.
func (l *Limiter) BudgetFor(domain string) Budget {
	if b, ok := l.overrides[strings.ToLower(domain)]; ok && b.Limit > 0 && b.Window > 0 {
		return b
	}
	return l.def
}

// Wait returns once a request to domain has been admitted, or when ctx ends.
func (l *Limiter) Wait(ctx context.Context, domain string) error {
	domain = strings.ToLower(domain)
	budget := l.BudgetFor(domain)
	for {
		now := l.clock.Now()
		ok, retryAt, err := l.store.Reserve(ctx, domain, now, budget.Window, budget.Limit)
		if err != nil {
			return fmt.Errorf("rate limit %s: %w", domain, err)
		}
		if ok {
			return nil
		}

		wait := retryAt.Sub(now)
		if wait <= 0 {
			wait = time.Millisecond
		}
		l.logger.Debug("rate limit reached", "domain", domain, "wait", wait)

		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-l.clock.After(wait):
		}
	}
}

// InFlight reports the requests currently counted against domain.
func (l *Limiter) InFlight(ctx context.Context, domain string) (int, error) {
	domain = strings.ToLower(domain)
	return l.store.Count(ctx, domain, l.clock.Now(), l.BudgetFor(domain).Window)
}
