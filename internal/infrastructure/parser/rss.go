package parser

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"MarketScanner/internal/domain"
	"MarketScanner/internal/ports"
)

type rssFeed struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	PubDate     string `xml:"pubDate"`
	Description string `xml:"description"`
	Source      struct {
		Text string `xml:",chardata"`
	} `xml:"source"`
}

// RSSConnector reads a single RSS feed, such as a Google News search.
//
// Options: ticker (assigned to every headline) and limit.
type RSSConnector struct {
	settings Settings
	ticker   string
	limit    int
	reader   articleReader
}

var _ ports.SourceConnector = (*RSSConnector)(nil)

func NewRSSConnector(s Settings) (*RSSConnector, error) {
	if s.URL == "" {
		return nil, fmt.Errorf("rss source %s: url is required", s.Name)
	}
	if s.Client == nil {
		s.Client = &http.Client{Timeout: 20 * time.Second}
	}
	if s.UserAgent == "" {
		s.UserAgent = defaultUserAgent
	}
	return &RSSConnector{
		settings: s,
		ticker:   domain.NormalizeTicker(s.option("ticker", "")),
		limit:    s.intOption("limit", 50),
		reader:   s.reader(),
	}, nil
}

func (r *RSSConnector) Name() string {
	return r.settings.Name
}

// PageURL only knows page zero; feeds are not paginated.
func (r *RSSConnector) PageURL(page int) (string, error) {
	if page != 0 {
		return "", fmt.Errorf("rss source %s has a single page", r.settings.Name)
	}
	return r.settings.URL, nil
}

func (r *RSSConnector) ListHeadlines(ctx context.Context, page int) (ports.HeadlinePage, error) {
	feedURL, err := r.PageURL(page)
	if err != nil {
		return ports.HeadlinePage{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return ports.HeadlinePage{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", r.settings.UserAgent)

	resp, err := r.settings.Client.Do(req)
	if err != nil {
		return ports.HeadlinePage{}, fmt.Errorf("request feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ports.HeadlinePage{}, &domain.StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ports.HeadlinePage{}, fmt.Errorf("read feed: %w", err)
	}

	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return ports.HeadlinePage{}, fmt.Errorf("parse feed: %w", err)
	}

	now := time.Now().UTC()
	candidates := make([]domain.Candidate, 0, len(feed.Channel.Items))
	for _, item := range feed.Channel.Items {
		if r.limit > 0 && len(candidates) >= r.limit {
			break
		}
		link := strings.TrimSpace(item.Link)
		title := cleanTitle(item.Title)
		if link == "" || title == "" {
			continue
		}
		candidates = append(candidates, domain.Candidate{
			Source:    r.settings.Name,
			URL:       link,
			Ticker:    r.ticker,
			Title:     title,
			FetchedAt: now,
		})
	}

	return ports.HeadlinePage{Candidates: candidates}, nil
}

func (r *RSSConnector) FetchBody(ctx context.Context, candidate domain.Candidate) (string, error) {
	return r.reader.read(ctx, candidate.URL)
}

// cleanTitle drops the " - Publisher" suffix news aggregators append.
func cleanTitle(title string) string {
	title = strings.TrimSpace(title)
	if idx := strings.LastIndex(title, " - "); idx > 0 {
		return strings.TrimSpace(title[:idx])
	}
	return title
}
