package parser

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"MarketScanner/internal/config"
	"MarketScanner/internal/ports"
	"MarketScanner/internal/scanner"
)

// Source kinds understood by NewConnector.
const (
	KindRSS     = "rss"
	KindListing = "listing"
	KindFinnhub = "finnhub"
)

// NewConnector builds the connector for one configured source.
func NewConnector(src config.SourceConfig, fetch config.FetcherConfig, client *http.Client) (ports.SourceConnector, error) {
	s := Settings{
		Name:         src.Name,
		URL:          src.URL,
		APIKey:       src.APIKey,
		Options:      src.Options,
		UserAgent:    fetch.UserAgent,
		MaxBodyChars: fetch.MaxBodyChars,
		Client:       client,
	}
	switch strings.ToLower(src.Kind) {
	case KindRSS, "":
		return NewRSSConnector(s)
	case KindListing:
		return NewListingConnector(s)
	case KindFinnhub:
		return NewFinnhubConnector(s)
	default:
		return nil, fmt.Errorf("source %s: unknown kind %q", src.Name, src.Kind)
	}
}

// BuildRegistry registers a connector for every configured source. Sources
// that cannot be built are logged and skipped.
func BuildRegistry(sources []config.SourceConfig, fetch config.FetcherConfig, client *http.Client, logger *slog.Logger) *scanner.Registry {
	reg := scanner.NewRegistry()
	for _, src := range sources {
		conn, err := NewConnector(src, fetch, client)
		if err != nil {
			logger.Warn("skip source", "source", src.Name, "error", err)
			continue
		}
		logger.Debug("registered source", "source", src.Name, "kind", src.Kind)
		reg.Register(conn)
	}
	return reg
}

// DisallowRules collects static crawl-policy prefixes keyed by source name.
func DisallowRules(sources []config.SourceConfig) map[string][]string {
	rules := make(map[string][]string)
	for _, src := range sources {
		if len(src.Disallow) > 0 {
			rules[src.Name] = append([]string(nil), src.Disallow...)
		}
	}
	return rules
}
