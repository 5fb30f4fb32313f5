// Package fetcher performs every outbound request for headlines and article
// bodies under the per-domain rate limit, crawl policy and retry policy.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"MarketScanner/internal/domain"
	"MarketScanner/internal/ports"
	"MarketScanner/internal/ratelimit"
	"MarketScanner/internal/retry"
)

// DefaultMaxPages caps how far a single source is paginated per session.
const DefaultMaxPages = 5

// Dedupe remembers URLs already yielded within one session.
type Dedupe struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewDedupe() *Dedupe {
	return &Dedupe{seen: make(map[string]struct{})}
}

// Add reports whether url was new.
func (d *Dedupe) Add(rawURL string) bool {
	key := strings.TrimSuffix(strings.TrimSpace(rawURL), "/")
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[key]; ok {
		return false
	}
	d.seen[key] = struct{}{}
	return true
}

// Fetcher is shared by all sessions so domain budgets are process-wide.
type Fetcher struct {
	limiter  *ratelimit.Limiter
	retrier  *retry.Retrier
	policy   *CrawlPolicy
	maxPages int
	logger   *slog.Logger
}

func New(limiter *ratelimit.Limiter, retrier *retry.Retrier, policy *CrawlPolicy, maxPages int, logger *slog.Logger) *Fetcher {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		limiter:  limiter,
		retrier:  retrier,
		policy:   policy,
		maxPages: maxPages,
		logger:   logger,
	}
}

// FetchHeadlines lazily walks a source page by page. It stops after a page
// reporting no more results, at the page cap, or on the first error, which is
// yielded as the final element.
func (f *Fetcher) FetchHeadlines(ctx context.Context, conn ports.SourceConnector, dedupe *Dedupe) iter.Seq2[domain.Candidate, error] {
	return func(yield func(domain.Candidate, error) bool) {
		for page := 0; page < f.maxPages; page++ {
			if ctx.Err() != nil {
				yield(domain.Candidate{}, context.Cause(ctx))
				return
			}

			pageURL, err := conn.PageURL(page)
			if err != nil {
				yield(domain.Candidate{}, fmt.Errorf("source %s page %d: %w", conn.Name(), page, err))
				return
			}

			var result ports.HeadlinePage
			err = f.do(ctx, conn.Name(), pageURL, func(callCtx context.Context) error {
				var listErr error
				result, listErr = conn.ListHeadlines(callCtx, page)
				return listErr
			})
			if err != nil {
				yield(domain.Candidate{}, err)
				return
			}

			for _, c := range result.Candidates {
				if c.URL == "" || (dedupe != nil && !dedupe.Add(c.URL)) {
					continue
				}
				if c.Source == "" {
					c.Source = conn.Name()
				}
				if !yield(c, nil) {
					return
				}
			}

			if !result.More {
				return
			}
		}
	}
}

// FetchBody retrieves the article text behind a candidate.
func (f *Fetcher) FetchBody(ctx context.Context, conn ports.SourceConnector, candidate domain.Candidate) (string, error) {
	var body string
	err := f.do(ctx, conn.Name(), candidate.URL, func(callCtx context.Context) error {
		text, err := conn.FetchBody(callCtx, candidate)
		if err != nil {
			return err
		}
		if strings.TrimSpace(text) == "" {
			return ErrEmptyBody
		}
		body = text
		return nil
	})
	if err != nil {
		return "", err
	}
	return body, nil
}

// do runs one logical request: policy check, then attempts each gated by the
// rate limiter. Waits observe ctx; the request itself runs detached from
// cancellation so an in-flight call is never torn down.
func (f *Fetcher) do(ctx context.Context, source, rawURL string, call func(context.Context) error) error {
	if err := f.policy.Check(ctx, source, rawURL); err != nil {
		return err
	}

	host := hostOf(rawURL)
	callCtx := context.WithoutCancel(ctx)
	retryable := func(err error) bool {
		return ctx.Err() == nil && domain.Retryable(err)
	}

	attempts, err := f.retrier.Do(ctx, retryable, func(attempt int) error {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx, host); err != nil {
				return err
			}
		}
		err := call(callCtx)
		if err != nil && attempt < f.retrier.Policy().MaxAttempts && domain.Retryable(err) {
			f.logger.Debug("fetch attempt failed", "url", rawURL, "attempt", attempt, "error", err)
		}
		return err
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}

	var policy *domain.PolicyViolationError
	if errors.As(err, &policy) {
		return err
	}
	return &domain.FetchFailedError{URL: rawURL, Attempts: attempts, Err: err}
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(parsed.Hostname())
}
