// Package filter selects the market-moving headlines of a session with a
// single model call and resolves the ticker each one concerns.
package filter

import (
	"context"
	"fmt"
	"strings"

	"MarketScanner/internal/domain"
	"MarketScanner/internal/llmcall"
	"MarketScanner/internal/ports"
)

const systemPrompt = `You screen financial news headlines for a trading desk.
Keep only headlines that could move the price of a specific listed company.
Drop macro commentary, listicles, opinion pieces and duplicates.

Answer with JSON only, no other text:
{"relevant": [{"index": <headline number>, "ticker": "<primary ticker symbol>"}]}`

// Filter runs the relevance screen.
type Filter struct {
	caller    *llmcall.Caller
	maxTokens int
}

func New(caller *llmcall.Caller, maxTokens int) *Filter {
	return &Filter{caller: caller, maxTokens: maxTokens}
}

type pick struct {
	Index  *int   `json:"index"`
	Ticker string `json:"ticker"`
}

type answer struct {
	Relevant []pick `json:"relevant"`
}

// Select returns the relevant candidates in their original order, each
// carrying a resolved ticker when the model supplied one. A failed call is
// returned as an error; an empty selection is not an error.
func (f *Filter) Select(ctx context.Context, model string, candidates []domain.Candidate) ([]domain.Candidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	validate := func(a *answer) error {
		if a.Relevant == nil {
			return fmt.Errorf("relevant list missing")
		}
		for _, p := range a.Relevant {
			if p.Index == nil {
				return fmt.Errorf("entry without index")
			}
			if *p.Index < 0 || *p.Index >= len(candidates) {
				return fmt.Errorf("index %d out of range", *p.Index)
			}
		}
		return nil
	}

	ans, err := llmcall.Decode(ctx, f.caller, ports.CompletionRequest{
		Model:     model,
		System:    systemPrompt,
		Prompt:    buildPrompt(candidates),
		MaxTokens: f.maxTokens,
	}, validate)
	if err != nil {
		return nil, fmt.Errorf("filter headlines: %w", err)
	}

	tickers := make(map[int]string, len(ans.Relevant))
	for _, p := range ans.Relevant {
		if _, dup := tickers[*p.Index]; dup {
			continue
		}
		tickers[*p.Index] = domain.NormalizeTicker(p.Ticker)
	}

	survivors := make([]domain.Candidate, 0, len(tickers))
	for i, c := range candidates {
		ticker, ok := tickers[i]
		if !ok {
			continue
		}
		if ticker != "" {
			c.Ticker = ticker
		}
		survivors = append(survivors, c)
	}
	return survivors, nil
}

func buildPrompt(candidates []domain.Candidate) string {
	var b strings.Builder
	b.WriteString("Headlines:\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %s", i, c.Title)
		if c.Ticker != "" {
			fmt.Fprintf(&b, " [%s]", c.Ticker)
		}
		fmt.Fprintf(&b, " (%s)\n", c.Source)
	}
	return b.String()
}
