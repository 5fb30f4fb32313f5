package parser

import (
	"testing"
	"time"

	finnhub "github.com/Finnhub-Stock-API/finnhub-go/v2"
)

func strPtr(s string) *string { return &s }

func TestFinnhubToCandidates(t *testing.T) {
	t.Parallel()

	conn, err := NewFinnhubConnector(Settings{Name: "finnhub", APIKey: "key"})
	if err != nil {
		t.Fatalf("new connector: %v", err)
	}

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	got := conn.toCandidates([]finnhub.MarketNews{
		{Headline: strPtr("Tesla recalls vehicles"), Url: strPtr("https://example.com/tsla"), Related: strPtr("TSLA,F"), Summary: strPtr("Recall summary")},
		{Headline: strPtr("No url")},
		{Headline: strPtr("Macro wrap"), Url: strPtr("https://example.com/macro")},
	}, now)

	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].Ticker != "TSLA" || got[0].Source != "finnhub" || !got[0].FetchedAt.Equal(now) {
		t.Fatalf("unexpected candidate: %+v", got[0])
	}
	if got[1].Ticker != "" {
		t.Fatalf("unrelated news should have no ticker: %+v", got[1])
	}
	if conn.summaries["https://example.com/tsla"] != "Recall summary" {
		t.Fatalf("summary not cached")
	}

	if _, err := NewFinnhubConnector(Settings{Name: "finnhub"}); err == nil {
		t.Fatalf("missing api key should fail")
	}
}
