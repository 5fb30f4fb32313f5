package parser

import (
	"testing"

	"MarketScanner/internal/config"
	"MarketScanner/internal/logging"
)

func TestBuildRegistrySkipsBrokenSources(t *testing.T) {
	t.Parallel()

	sources := []config.SourceConfig{
		{Name: "feed", Kind: "rss", URL: "https://example.com/rss"},
		{Name: "wire", Kind: "listing", URL: "https://example.com/list", Disallow: []string{"/premium"}},
		{Name: "nokey", Kind: "finnhub"},
		{Name: "odd", Kind: "gopher"},
	}
	reg := BuildRegistry(sources, config.FetcherConfig{}, nil, logging.Discard())

	names := reg.Names()
	if len(names) != 2 || names[0] != "feed" || names[1] != "wire" {
		t.Fatalf("names = %v", names)
	}

	rules := DisallowRules(sources)
	if len(rules) != 1 || rules["wire"][0] != "/premium" {
		t.Fatalf("rules = %v", rules)
	}
}
