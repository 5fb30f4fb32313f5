// Package llmcall issues structured model calls: transport retries with
// backoff, JSON extraction, and one corrective re-ask on a malformed answer.
package llmcall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"MarketScanner/internal/domain"
	"MarketScanner/internal/ports"
	"MarketScanner/internal/retry"
	"MarketScanner/internal/textutil"
)

// CallFailure is returned when the transport kept failing.
type CallFailure struct {
	Attempts int
	Err      error
}

func (e *CallFailure) Error() string {
	return fmt.Sprintf("model call failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *CallFailure) Unwrap() error { return e.Err }

// SchemaViolation is returned when the answer stayed unusable after the re-ask.
type SchemaViolation struct {
	Raw string
	Err error
}

func (e *SchemaViolation) Error() string {
	return fmt.Sprintf("model answer violates schema: %v", e.Err)
}

func (e *SchemaViolation) Unwrap() error { return e.Err }

// Caller wraps a completion client with the shared retry policy.
type Caller struct {
	client  ports.CompletionClient
	retrier *retry.Retrier
	logger  *slog.Logger
}

func New(client ports.CompletionClient, retrier *retry.Retrier, logger *slog.Logger) *Caller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Caller{client: client, retrier: retrier, logger: logger}
}

// Call performs one logical request. The request itself is detached from
// ctx cancellation; only backoff waits observe it.
func (c *Caller) Call(ctx context.Context, req ports.CompletionRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", context.Cause(ctx)
	}

	callCtx := context.WithoutCancel(ctx)
	retryable := func(err error) bool {
		return ctx.Err() == nil && domain.Retryable(err)
	}

	var out string
	attempts, err := c.retrier.Do(ctx, retryable, func(attempt int) error {
		text, err := c.client.Complete(callCtx, req)
		if err != nil {
			c.logger.Debug("model call failed", "attempt", attempt, "error", err)
			return err
		}
		out = text
		return nil
	})
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return "", context.Cause(ctx)
	}
	return "", &CallFailure{Attempts: attempts, Err: err}
}

// Decode calls the model and unmarshals its JSON answer into T. validate may
// reject a well-formed but semantically wrong answer. One corrective re-ask
// is made before a *SchemaViolation is returned.
func Decode[T any](ctx context.Context, c *Caller, req ports.CompletionRequest, validate func(*T) error) (T, error) {
	var zero T

	raw, err := c.Call(ctx, req)
	if err != nil {
		return zero, err
	}
	out, parseErr := parse(raw, validate)
	if parseErr == nil {
		return out, nil
	}

	c.logger.Debug("malformed model answer, re-asking", "error", parseErr)
	if err := ctx.Err(); err != nil {
		return zero, context.Cause(ctx)
	}

	retryReq := req
	retryReq.Prompt = correctivePrompt(req.Prompt, raw, parseErr)
	raw, err = c.Call(ctx, retryReq)
	if err != nil {
		return zero, err
	}
	out, parseErr = parse(raw, validate)
	if parseErr != nil {
		return zero, &SchemaViolation{Raw: raw, Err: parseErr}
	}
	return out, nil
}

func parse[T any](raw string, validate func(*T) error) (T, error) {
	var out T
	content := CleanJSON(raw)
	if content == "" {
		return out, errors.New("empty answer")
	}
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return out, fmt.Errorf("decode answer: %w", err)
	}
	if validate != nil {
		if err := validate(&out); err != nil {
			return out, err
		}
	}
	return out, nil
}

func correctivePrompt(original, raw string, cause error) string {
	var b strings.Builder
	b.WriteString(original)
	b.WriteString("\n\nYour previous answer could not be used (")
	b.WriteString(cause.Error())
	b.WriteString(").\nPrevious answer:\n")
	b.WriteString(textutil.Truncate(raw, 2000))
	b.WriteString("\n\nRespond again with a single JSON object that follows the schema above exactly. No prose, no code fences.")
	return b.String()
}

// CleanJSON strips code fences and surrounding prose from a model answer.
func CleanJSON(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		content = content[start : end+1]
	}
	return content
}
