package parser

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"MarketScanner/internal/domain"
	"MarketScanner/internal/textutil"
)

const (
	defaultUserAgent = "MarketScanner/1.0"
	defaultMaxChars  = 6000
	minParagraphLen  = 50
	minBodyLen       = 100
)

// bodySelectors are tried in order until enough article text is collected.
var bodySelectors = []string{
	"article p",
	".article-body p",
	".story-body p",
	"[itemprop='articleBody'] p",
	"main p",
}

// articleReader downloads article pages and extracts their readable text.
type articleReader struct {
	client   *http.Client
	agent    string
	maxChars int
}

func newArticleReader(client *http.Client, agent string, maxChars int) articleReader {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if agent == "" {
		agent = defaultUserAgent
	}
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	return articleReader{client: client, agent: agent, maxChars: maxChars}
}

func (r articleReader) read(ctx context.Context, pageURL string) (string, error) {
	doc, err := r.fetchDocument(ctx, pageURL)
	if err != nil {
		return "", err
	}
	text := ExtractArticleText(doc, r.maxChars)
	if len(text) < minBodyLen {
		return "", fmt.Errorf("extract %s: insufficient content", pageURL)
	}
	return text, nil
}

func (r articleReader) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", r.agent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &domain.StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

// ExtractArticleText joins the substantial paragraphs of the first selector
// that yields a real article, truncated to maxChars.
func ExtractArticleText(doc *goquery.Document, maxChars int) string {
	best := ""
	for _, selector := range bodySelectors {
		var content strings.Builder
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			text := strings.Join(strings.Fields(s.Text()), " ")
			if len(text) > minParagraphLen {
				content.WriteString(text)
				content.WriteString(" ")
			}
		})
		if text := strings.TrimSpace(content.String()); len(text) > len(best) {
			best = text
		}
		if len(best) > 500 {
			break
		}
	}

	if maxChars > 0 && len(best) > maxChars {
		best = textutil.Truncate(best, maxChars)
	}
	return best
}
