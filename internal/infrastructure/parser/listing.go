package parser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"MarketScanner/internal/domain"
	"MarketScanner/internal/ports"
)

// ListingConnector crawls a paginated HTML headline listing.
//
// Options: item, title, link, ticker (CSS selectors), pageParam, pageStart
// and pageSize.
type ListingConnector struct {
	settings  Settings
	item      string
	title     string
	link      string
	ticker    string
	pageParam string
	pageStart int
	pageSize  int
	reader    articleReader
}

var _ ports.SourceConnector = (*ListingConnector)(nil)

func NewListingConnector(s Settings) (*ListingConnector, error) {
	if s.URL == "" {
		return nil, fmt.Errorf("listing source %s: url is required", s.Name)
	}
	if _, err := url.Parse(s.URL); err != nil {
		return nil, fmt.Errorf("listing source %s: %w", s.Name, err)
	}
	if s.Client == nil {
		s.Client = &http.Client{Timeout: 20 * time.Second}
	}
	if s.UserAgent == "" {
		s.UserAgent = defaultUserAgent
	}
	return &ListingConnector{
		settings:  s,
		item:      s.option("item", "article"),
		title:     s.option("title", "h2, h3"),
		link:      s.option("link", "a[href]"),
		ticker:    s.option("ticker", ""),
		pageParam: s.option("pageParam", "page"),
		pageStart: s.intOption("pageStart", 1),
		pageSize:  s.intOption("pageSize", 20),
		reader:    s.reader(),
	}, nil
}

func (l *ListingConnector) Name() string {
	return l.settings.Name
}

func (l *ListingConnector) PageURL(page int) (string, error) {
	return buildPageURL(l.settings.URL, l.pageParam, l.pageStart+page)
}

// ListHeadlines visits one listing page. A page with fewer entries than
// pageSize is treated as the last one.
func (l *ListingConnector) ListHeadlines(ctx context.Context, page int) (ports.HeadlinePage, error) {
	pageURL, err := l.PageURL(page)
	if err != nil {
		return ports.HeadlinePage{}, err
	}
	if err := ctx.Err(); err != nil {
		return ports.HeadlinePage{}, err
	}

	collector := colly.NewCollector(
		colly.UserAgent(l.settings.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetClient(l.settings.Client)

	var (
		collected []domain.Candidate
		processed int
		visitErr  error
	)
	collector.OnHTML(l.item, func(e *colly.HTMLElement) {
		processed++
		if c, ok := l.parseEntry(e); ok {
			collected = append(collected, c)
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			visitErr = &domain.StatusError{Code: r.StatusCode, Status: fmt.Sprintf("%d %s", r.StatusCode, http.StatusText(r.StatusCode))}
			return
		}
		visitErr = domain.Transient(fmt.Errorf("request listing: %w", err))
	})

	if err := collector.Visit(pageURL); err != nil && visitErr == nil {
		visitErr = fmt.Errorf("visit %s: %w", pageURL, err)
	}
	collector.Wait()
	if visitErr != nil {
		var status *domain.StatusError
		if errors.As(visitErr, &status) {
			return ports.HeadlinePage{}, visitErr
		}
		return ports.HeadlinePage{}, fmt.Errorf("source %s: %w", l.settings.Name, visitErr)
	}

	return ports.HeadlinePage{
		Candidates: collected,
		More:       processed > 0 && processed >= l.pageSize,
	}, nil
}

func (l *ListingConnector) FetchBody(ctx context.Context, candidate domain.Candidate) (string, error) {
	return l.reader.read(ctx, candidate.URL)
}

func (l *ListingConnector) parseEntry(e *colly.HTMLElement) (domain.Candidate, bool) {
	link := e.DOM.Find(l.link).First()
	if e.DOM.Is(l.link) {
		link = e.DOM
	}
	href, ok := link.Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return domain.Candidate{}, false
	}
	href = e.Request.AbsoluteURL(strings.TrimSpace(href))
	if href == "" {
		return domain.Candidate{}, false
	}

	title := strings.Join(strings.Fields(e.DOM.Find(l.title).First().Text()), " ")
	if title == "" {
		title = strings.Join(strings.Fields(link.Text()), " ")
	}
	if title == "" {
		return domain.Candidate{}, false
	}

	var ticker string
	if l.ticker != "" {
		ticker = strings.TrimSpace(e.DOM.Find(l.ticker).First().Text())
	}
	if ticker == "" {
		ticker, _ = e.DOM.Attr("data-ticker")
	}

	return domain.Candidate{
		Source:    l.settings.Name,
		URL:       href,
		Ticker:    domain.NormalizeTicker(ticker),
		Title:     title,
		FetchedAt: time.Now().UTC(),
	}, true
}

func buildPageURL(base, param string, value int) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid listing url %s: %w", base, err)
	}

	query := parsed.Query()
	query.Set(param, strconv.Itoa(value))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
