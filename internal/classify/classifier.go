// Package classify scores article bodies with a language model and runs the
// calls through a process-wide bounded worker pool.
package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"MarketScanner/internal/domain"
	"MarketScanner/internal/llmcall"
	"MarketScanner/internal/ports"
	"MarketScanner/internal/textutil"
)

const systemPrompt = `You are a sell-side equity analyst. Read one news article and judge its
likely impact on the stock it concerns.

Answer with JSON only, no other text:
{
  "ticker": "primary ticker symbol the article is about, or empty",
  "sentiment": number from -1 (very bearish) to 1 (very bullish),
  "confidence": number from 0 to 1,
  "catalysts": [{"tag": "short lower-case label, e.g. earnings beat", "impact": "positive|negative|neutral"}],
  "reasoning": "one or two sentences"
}`

const maxPromptBody = 6000

// Request is one article to classify.
type Request struct {
	Candidate domain.Candidate
	Body      string
	Model     string
}

// Classifier turns one article into an Outcome.
type Classifier interface {
	Classify(ctx context.Context, req Request) Outcome
}

// LLMClassifier classifies through a model with retries and one re-ask.
type LLMClassifier struct {
	caller    *llmcall.Caller
	maxTokens int
}

var _ Classifier = (*LLMClassifier)(nil)

func NewLLMClassifier(caller *llmcall.Caller, maxTokens int) *LLMClassifier {
	return &LLMClassifier{caller: caller, maxTokens: maxTokens}
}

type catalystAnswer struct {
	Tag    string `json:"tag"`
	Impact string `json:"impact"`
}

type answer struct {
	Ticker     string           `json:"ticker"`
	Sentiment  *float64         `json:"sentiment"`
	Confidence *float64         `json:"confidence"`
	Catalysts  []catalystAnswer `json:"catalysts"`
	Reasoning  string           `json:"reasoning"`
}

func validate(a *answer) error {
	switch {
	case a.Sentiment == nil:
		return errors.New("sentiment missing")
	case *a.Sentiment < -1 || *a.Sentiment > 1:
		return fmt.Errorf("sentiment %v outside [-1,1]", *a.Sentiment)
	case a.Confidence == nil:
		return errors.New("confidence missing")
	case *a.Confidence < 0 || *a.Confidence > 1:
		return fmt.Errorf("confidence %v outside [0,1]", *a.Confidence)
	}
	for _, c := range a.Catalysts {
		if _, err := domain.ParseImpact(c.Impact); err != nil {
			return err
		}
	}
	return nil
}

func (c *LLMClassifier) Classify(ctx context.Context, req Request) Outcome {
	completion := ports.CompletionRequest{
		Model:     req.Model,
		System:    systemPrompt,
		Prompt:    buildPrompt(req),
		MaxTokens: c.maxTokens,
	}

	ans, err := llmcall.Decode(ctx, c.caller, completion, validate)
	if err != nil {
		var violation *llmcall.SchemaViolation
		if errors.As(err, &violation) {
			return SchemaError{Candidate: req.Candidate, Raw: violation.Raw, Err: violation.Err}
		}
		var failure *llmcall.CallFailure
		if errors.As(err, &failure) {
			return TransportError{Candidate: req.Candidate, Attempts: failure.Attempts, Err: failure.Err}
		}
		return TransportError{Candidate: req.Candidate, Err: err}
	}

	candidate := req.Candidate
	if candidate.Ticker == "" {
		candidate.Ticker = ans.Ticker
	}

	catalysts := make([]domain.Catalyst, 0, len(ans.Catalysts))
	for _, cat := range ans.Catalysts {
		impact, _ := domain.ParseImpact(cat.Impact)
		catalysts = append(catalysts, domain.Catalyst{Tag: cat.Tag, Impact: impact})
	}

	article, err := domain.NewClassifiedArticle(candidate, req.Body, *ans.Sentiment, *ans.Confidence, catalysts, ans.Reasoning)
	if err != nil {
		return SchemaError{Candidate: req.Candidate, Err: err}
	}
	return Parsed{Article: article}
}

func buildPrompt(req Request) string {
	body := textutil.Truncate(req.Body, maxPromptBody)
	var b strings.Builder
	fmt.Fprintf(&b, "Source: %s\nURL: %s\nHeadline: %s\n", req.Candidate.Source, req.Candidate.URL, req.Candidate.Title)
	if req.Candidate.Ticker != "" {
		fmt.Fprintf(&b, "Ticker: %s\n", req.Candidate.Ticker)
	}
	b.WriteString("\nArticle:\n")
	b.WriteString(body)
	return b.String()
}
