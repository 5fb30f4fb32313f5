package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreExpiresAtWindowEdge(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()
	t0 := time.Unix(100, 0)

	if ok, _, _ := s.Reserve(ctx, "k", t0, time.Minute, 1); !ok {
		t.Fatalf("first reserve rejected")
	}
	ok, retryAt, _ := s.Reserve(ctx, "k", t0.Add(59*time.Second), time.Minute, 1)
	if ok || !retryAt.Equal(t0.Add(time.Minute)) {
		t.Fatalf("ok=%v retryAt=%v", ok, retryAt)
	}
	if ok, _, _ := s.Reserve(ctx, "k", t0.Add(time.Minute), time.Minute, 1); !ok {
		t.Fatalf("reserve at window edge rejected")
	}
	if n, _ := s.Count(ctx, "k", t0.Add(2*time.Minute), time.Minute); n != 0 {
		t.Fatalf("count = %d, want 0", n)
	}
}
