package ml

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"MarketScanner/internal/domain"
	"MarketScanner/internal/ports"
)

func TestClientComplete(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/complete" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing auth header")
		}
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if payload["model"] != "local-7b" {
			t.Errorf("unexpected model %v", payload["model"])
		}
		_, _ = w.Write([]byte(`{"content":"{\"relevant\":[]}"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret", "local-7b", 0)
	out, err := client.Complete(context.Background(), ports.CompletionRequest{Prompt: "p"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != `{"relevant":[]}` {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestClientStatusErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "", "m", 0).Complete(context.Background(), ports.CompletionRequest{Prompt: "p"})
	var status *domain.StatusError
	if !errors.As(err, &status) || status.Code != http.StatusServiceUnavailable || !domain.Retryable(err) {
		t.Fatalf("expected retryable 503, got %v", err)
	}
}
