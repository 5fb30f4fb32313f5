package clock

import (
	"testing"
	"time"
)

func TestFakeAdvanceFiresDueTimers(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)

	short := f.After(time.Second)
	long := f.After(time.Minute)
	if f.Waiters() != 2 {
		t.Fatalf("expected 2 waiters, got %d", f.Waiters())
	}

	f.Advance(2 * time.Second)
	select {
	case at := <-short:
		if !at.Equal(start.Add(2 * time.Second)) {
			t.Fatalf("unexpected fire time %v", at)
		}
	default:
		t.Fatalf("short timer did not fire")
	}
	select {
	case <-long:
		t.Fatalf("long timer fired early")
	default:
	}

	f.Advance(time.Minute)
	<-long
	if f.Waiters() != 0 {
		t.Fatalf("expected no waiters, got %d", f.Waiters())
	}
}

func TestFakeAfterNonPositiveFiresImmediately(t *testing.T) {
	t.Parallel()

	f := NewFake(time.Unix(0, 0))
	select {
	case <-f.After(0):
	default:
		t.Fatalf("zero duration should fire immediately")
	}
}
