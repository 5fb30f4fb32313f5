package domain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestRetryable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient", Transient(errors.New("x")), true},
		{"429", &StatusError{Code: 429}, true},
		{"500", fmt.Errorf("wrap: %w", &StatusError{Code: 500}), true},
		{"404", &StatusError{Code: 404}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"policy", &PolicyViolationError{}, false},
		{"plain", errors.New("bad html"), false},
	}
	for _, tc := range cases {
		if got := Retryable(tc.err); got != tc.want {
			t.Fatalf("%s: Retryable = %v, want %v", tc.name, got, tc.want)
		}
	}
}
