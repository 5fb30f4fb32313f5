package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"MarketScanner/internal/clock"
	"MarketScanner/internal/domain"
)

// RobotsTTL bounds how long a fetched robots.txt is trusted.
const RobotsTTL = time.Hour

// CrawlPolicy decides whether a URL may be requested for a source.
type CrawlPolicy struct {
	disallow map[string][]string
	robots   *RobotsChecker
}

// NewCrawlPolicy combines static per-source disallow prefixes with an
// optional robots.txt checker (nil disables robots.txt).
func NewCrawlPolicy(disallow map[string][]string, robots *RobotsChecker) *CrawlPolicy {
	rules := make(map[string][]string, len(disallow))
	for source, prefixes := range disallow {
		rules[source] = append([]string(nil), prefixes...)
	}
	return &CrawlPolicy{disallow: rules, robots: robots}
}

// Check returns a *domain.PolicyViolationError when rawURL is off limits.
func (p *CrawlPolicy) Check(ctx context.Context, source, rawURL string) error {
	if p == nil {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return &domain.PolicyViolationError{Source: source, URL: rawURL, Rule: "unparseable url"}
	}

	for _, prefix := range p.disallow[source] {
		if matchesPrefix(parsed, rawURL, prefix) {
			return &domain.PolicyViolationError{Source: source, URL: rawURL, Rule: "disallow " + prefix}
		}
	}

	if p.robots != nil && !p.robots.Allowed(ctx, parsed) {
		return &domain.PolicyViolationError{Source: source, URL: rawURL, Rule: "robots.txt"}
	}
	return nil
}

func matchesPrefix(parsed *url.URL, rawURL, prefix string) bool {
	if strings.Contains(prefix, "://") {
		return strings.HasPrefix(rawURL, prefix)
	}
	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	return strings.HasPrefix(path, prefix)
}

// RobotsChecker fetches and caches robots.txt per host. Its requests are not
// counted against the domain budget.
type RobotsChecker struct {
	client *http.Client
	agent  string
	clock  clock.Clock
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]robotsEntry
}

type robotsEntry struct {
	data    *robotstxt.RobotsData
	expires time.Time
}

func NewRobotsChecker(client *http.Client, agent string, clk clock.Clock, logger *slog.Logger) *RobotsChecker {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RobotsChecker{
		client: client,
		agent:  agent,
		clock:  clk,
		logger: logger,
		cache:  make(map[string]robotsEntry),
	}
}

// Allowed fails open when robots.txt cannot be retrieved. Failed lookups are
// not cached, so the next request tries again.
func (r *RobotsChecker) Allowed(ctx context.Context, target *url.URL) bool {
	base := target.Scheme + "://" + target.Host
	now := r.clock.Now()

	r.mu.Lock()
	entry, ok := r.cache[base]
	r.mu.Unlock()

	if !ok || !now.Before(entry.expires) {
		data, err := r.load(context.WithoutCancel(ctx), base)
		if err != nil {
			r.logger.Warn("robots.txt unavailable", "host", target.Host, "error", err)
			return true
		}
		entry = robotsEntry{data: data, expires: now.Add(RobotsTTL)}
		r.mu.Lock()
		r.cache[base] = entry
		r.mu.Unlock()
	}
	data := entry.data

	path := target.EscapedPath()
	if path == "" {
		path = "/"
	}
	if target.RawQuery != "" {
		path += "?" + target.RawQuery
	}
	return data.TestAgent(path, r.agent)
}

func (r *RobotsChecker) load(ctx context.Context, base string) (*robotstxt.RobotsData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/robots.txt", nil)
	if err != nil {
		return nil, fmt.Errorf("build robots request: %w", err)
	}
	req.Header.Set("User-Agent", r.agent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request robots.txt: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("request robots.txt: %w", &domain.StatusError{Code: resp.StatusCode, Status: resp.Status})
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return nil, fmt.Errorf("read robots.txt: %w", err)
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}
	return data, nil
}
