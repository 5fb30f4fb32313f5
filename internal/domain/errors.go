package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfiguration rejects a session before any work starts.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrSessionNotFound is returned for unknown or expired session ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrTransient marks failures worth retrying (timeouts, throttling, 5xx).
	ErrTransient = errors.New("transient failure")
	// ErrCancelled is the cancellation cause of a session context.
	ErrCancelled = errors.New("session cancelled")
)

// ErrorKind is the stable classification observers see instead of raw errors.
type ErrorKind string

const (
	KindConfiguration ErrorKind = "configuration"
	KindTransientIO   ErrorKind = "transient_io"
	KindSchema        ErrorKind = "schema"
	KindPolicy        ErrorKind = "policy"
	KindSessionFatal  ErrorKind = "session_fatal"
	KindCancelled     ErrorKind = "cancelled"
)

// SessionError is the terminal error recorded on a failed session.
type SessionError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

type transientError struct {
	err error
}

func (e transientError) Error() string { return e.err.Error() }
func (e transientError) Unwrap() []error {
	return []error{ErrTransient, e.err}
}

// Transient wraps err so that errors.Is(err, ErrTransient) holds.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return transientError{err: err}
}

// StatusError reports a non-success HTTP status from a source or service.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("unexpected status %s", e.Status)
	}
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.Code == 429 || e.Code >= 500
}

// FetchFailedError is returned once a single fetch has exhausted its retries.
type FetchFailedError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchFailedError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchFailedError) Unwrap() error { return e.Err }

// PolicyViolationError means the source's crawl policy forbids the URL.
type PolicyViolationError struct {
	Source string
	URL    string
	Rule   string
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("source %s: crawl policy disallows %s (%s)", e.Source, e.URL, e.Rule)
}

// Classify maps an arbitrary pipeline error to its stable kind.
func Classify(err error) ErrorKind {
	var (
		policy *PolicyViolationError
		fetch  *FetchFailedError
		sess   *SessionError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &sess):
		return sess.Kind
	case errors.Is(err, ErrInvalidConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrCancelled):
		return KindCancelled
	case errors.As(err, &policy):
		return KindPolicy
	case errors.As(err, &fetch), errors.Is(err, ErrTransient):
		return KindTransientIO
	default:
		return KindSessionFatal
	}
}
