package parser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	finnhub "github.com/Finnhub-Stock-API/finnhub-go/v2"

	"MarketScanner/internal/domain"
	"MarketScanner/internal/ports"
)

const finnhubNewsURL = "https://finnhub.io/api/v1/news"

// FinnhubConnector lists market news from the Finnhub API.
//
// Options: category (general, forex, crypto, merger).
type FinnhubConnector struct {
	settings Settings
	api      *finnhub.DefaultApiService
	category string
	reader   articleReader

	mu        sync.Mutex
	summaries map[string]string
}

var _ ports.SourceConnector = (*FinnhubConnector)(nil)

func NewFinnhubConnector(s Settings) (*FinnhubConnector, error) {
	if s.APIKey == "" {
		return nil, fmt.Errorf("finnhub source %s: api key is required", s.Name)
	}
	cfg := finnhub.NewConfiguration()
	cfg.AddDefaultHeader("X-Finnhub-Token", s.APIKey)
	if s.Client != nil {
		cfg.HTTPClient = s.Client
	}
	return &FinnhubConnector{
		settings:  s,
		api:       finnhub.NewAPIClient(cfg).DefaultApi,
		category:  s.option("category", "general"),
		reader:    s.reader(),
		summaries: make(map[string]string),
	}, nil
}

func (f *FinnhubConnector) Name() string {
	return f.settings.Name
}

func (f *FinnhubConnector) PageURL(page int) (string, error) {
	if page != 0 {
		return "", fmt.Errorf("finnhub source %s has a single page", f.settings.Name)
	}
	return finnhubNewsURL + "?category=" + f.category, nil
}

func (f *FinnhubConnector) ListHeadlines(ctx context.Context, page int) (ports.HeadlinePage, error) {
	if _, err := f.PageURL(page); err != nil {
		return ports.HeadlinePage{}, err
	}

	news, resp, err := f.api.MarketNews(ctx).Category(f.category).Execute()
	if err != nil {
		if resp != nil && resp.StatusCode != 0 {
			return ports.HeadlinePage{}, &domain.StatusError{Code: resp.StatusCode, Status: resp.Status}
		}
		return ports.HeadlinePage{}, fmt.Errorf("finnhub market news: %w", err)
	}

	candidates := f.toCandidates(news, time.Now().UTC())
	return ports.HeadlinePage{Candidates: candidates}, nil
}

func (f *FinnhubConnector) toCandidates(news []finnhub.MarketNews, now time.Time) []domain.Candidate {
	f.mu.Lock()
	defer f.mu.Unlock()

	candidates := make([]domain.Candidate, 0, len(news))
	for _, item := range news {
		if item.Url == nil || item.Headline == nil {
			continue
		}
		c := domain.Candidate{
			Source:    f.settings.Name,
			URL:       strings.TrimSpace(*item.Url),
			Title:     strings.TrimSpace(*item.Headline),
			FetchedAt: now,
		}
		if item.Related != nil && *item.Related != "" {
			c.Ticker = domain.NormalizeTicker(strings.Split(*item.Related, ",")[0])
		}
		if c.URL == "" || c.Title == "" {
			continue
		}
		if item.Summary != nil {
			f.summaries[c.URL] = strings.TrimSpace(*item.Summary)
		}
		candidates = append(candidates, c)
	}
	return candidates
}

// FetchBody reads the linked article, falling back to the API summary when
// the page cannot be parsed. Retryable failures are returned as-is.
func (f *FinnhubConnector) FetchBody(ctx context.Context, candidate domain.Candidate) (string, error) {
	body, err := f.reader.read(ctx, candidate.URL)
	if err == nil {
		return body, nil
	}

	var status *domain.StatusError
	if errors.As(err, &status) && status.Retryable() {
		return "", err
	}

	f.mu.Lock()
	summary := f.summaries[candidate.URL]
	f.mu.Unlock()
	if summary == "" {
		return "", err
	}
	return summary, nil
}
