package domain

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
)

// Retryable reports whether an outbound call error is worth another
// attempt: timeouts, connection resets, throttling and server errors.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}

	var status *StatusError
	if errors.As(err, &status) {
		return status.Retryable()
	}

	var policy *PolicyViolationError
	if errors.As(err, &policy) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
