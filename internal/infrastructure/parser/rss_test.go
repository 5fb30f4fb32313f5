package parser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const feed = `<?xml version="1.0"?>
<rss><channel>
<item><title>Nvidia surges on AI demand - Reuters</title><link>https://example.com/nvda</link><source>Reuters</source></item>
<item><title>Oil slips - Bloomberg</title><link>https://example.com/oil</link></item>
<item><title></title><link>https://example.com/empty</link></item>
</channel></rss>`

const articleHTML = `<html><body><article>
<p>Shares of the chipmaker jumped after the company raised its full-year guidance well above analyst expectations.</p>
<p>Management cited record data-center demand and expanding margins as the main drivers for the stronger outlook.</p>
<p>short</p>
</article></body></html>`

func TestRSSConnector(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/feed") {
			_, _ = w.Write([]byte(feed))
			return
		}
		_, _ = w.Write([]byte(articleHTML))
	}))
	defer server.Close()

	conn, err := NewRSSConnector(Settings{
		Name:    "gnews",
		URL:     server.URL + "/feed",
		Client:  server.Client(),
		Options: map[string]string{"ticker": "nvda"},
	})
	if err != nil {
		t.Fatalf("new connector: %v", err)
	}

	page, err := conn.ListHeadlines(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListHeadlines: %v", err)
	}
	if page.More || len(page.Candidates) != 2 {
		t.Fatalf("unexpected page: %+v", page)
	}
	if c := page.Candidates[0]; c.Title != "Nvidia surges on AI demand" || c.Ticker != "NVDA" || c.Source != "gnews" {
		t.Fatalf("unexpected candidate: %+v", c)
	}

	if _, err := conn.PageURL(1); err == nil {
		t.Fatalf("feeds have a single page")
	}

	body, err := conn.FetchBody(context.Background(), page.Candidates[0])
	if err != nil {
		t.Fatalf("FetchBody: %v", err)
	}
	if !strings.Contains(body, "raised its full-year guidance") || strings.Contains(body, "short") {
		t.Fatalf("unexpected body: %q", body)
	}
}
