package ports

import (
	"context"
	"time"

	"MarketScanner/internal/domain"
)

// HeadlinePage is one page of candidates returned by a source.
type HeadlinePage struct {
	Candidates []domain.Candidate
	More       bool
}

// SourceConnector hides source-specific parsing behind one capability.
type SourceConnector interface {
	Name() string
	// PageURL is the address ListHeadlines will request for the page; the
	// fetcher uses it for rate limiting and crawl-policy checks.
	PageURL(page int) (string, error)
	ListHeadlines(ctx context.Context, page int) (HeadlinePage, error)
	FetchBody(ctx context.Context, candidate domain.Candidate) (string, error)
}

// CompletionRequest is a single structured prompt for a hosted model.
type CompletionRequest struct {
	Model     string
	System    string
	Prompt    string
	MaxTokens int
}

// CompletionClient talks to a hosted language model. Throttling and server
// failures surface as *domain.StatusError or domain.Transient errors.
type CompletionClient interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Store persists pipeline artifacts for durability and audit.
type Store interface {
	PersistArticle(ctx context.Context, sessionID string, candidate domain.Candidate, body string) error
	PersistAnalysis(ctx context.Context, sessionID string, article domain.ClassifiedArticle) error
	PersistPosition(ctx context.Context, sessionID string, position domain.Position) error
	PersistLogEntry(ctx context.Context, entry domain.LogEntry) error
	PersistMarketSummary(ctx context.Context, summary domain.MarketSummary) error
}

// Notifier streams completed-session digests to chat or other channels.
type Notifier interface {
	PublishSession(ctx context.Context, summary domain.MarketSummary, positions []domain.Position) error
}

// Scheduler controls when sessions are started automatically.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
