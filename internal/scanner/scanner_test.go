package scanner

import (
	"context"
	"testing"

	"MarketScanner/internal/domain"
	"MarketScanner/internal/ports"
)

type stubConnector struct{ name string }

func (s stubConnector) Name() string                  { return s.name }
func (s stubConnector) PageURL(int) (string, error)   { return "https://example.com", nil }
func (s stubConnector) ListHeadlines(context.Context, int) (ports.HeadlinePage, error) {
	return ports.HeadlinePage{}, nil
}
func (s stubConnector) FetchBody(context.Context, domain.Candidate) (string, error) {
	return "", nil
}

func TestRegistryResolve(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register(stubConnector{name: "b"})
	reg.Register(stubConnector{name: "a"})

	if _, err := reg.Resolve("a"); err != nil {
		t.Fatalf("resolve a: %v", err)
	}
	if _, err := reg.Resolve("missing"); err == nil {
		t.Fatalf("expected error for unknown source")
	}
	if !reg.Has("b") || reg.Has("c") {
		t.Fatalf("Has mismatch")
	}
	if names := reg.Names(); len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("names = %v", names)
	}
}
