// Package report writes the market summary that closes a completed session.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"MarketScanner/internal/clock"
	"MarketScanner/internal/domain"
	"MarketScanner/internal/llmcall"
	"MarketScanner/internal/ports"
)

const systemPrompt = `You are a financial news editor. Given trading positions derived from
today's news and the headlines behind them, write an executive summary.

Rules for the paragraph:
- Single paragraph, concise and neutral
- Summarize the overall market mood

Rules for bullets:
- 3 to 5 bullet points
- Each bullet covers a distinct position or theme
- Include tickers and numbers where relevant
- One sentence per bullet

Output as JSON only, no other text:
{
  "paragraph": "executive summary paragraph",
  "bullets": ["key point 1", "key point 2", "key point 3"]
}`

const fallbackModel = "deterministic"

// Generator builds market summaries. A nil caller always uses the
// deterministic summary.
type Generator struct {
	caller    *llmcall.Caller
	maxTokens int
	clock     clock.Clock
	logger    *slog.Logger
}

func New(caller *llmcall.Caller, maxTokens int, clk clock.Clock, logger *slog.Logger) *Generator {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{caller: caller, maxTokens: maxTokens, clock: clk, logger: logger}
}

type answer struct {
	Paragraph string   `json:"paragraph"`
	Bullets   []string `json:"bullets"`
}

// Generate never fails: any model problem yields the deterministic summary.
func (g *Generator) Generate(ctx context.Context, sessionID, model string, positions []domain.Position, articles []domain.ClassifiedArticle) domain.MarketSummary {
	summary := domain.MarketSummary{
		SessionID:     sessionID,
		PositionCount: len(positions),
		ArticleCount:  len(articles),
		CreatedAt:     g.clock.Now(),
	}

	if g.caller != nil && len(positions) > 0 {
		ans, err := llmcall.Decode(ctx, g.caller, ports.CompletionRequest{
			Model:     model,
			System:    systemPrompt,
			Prompt:    buildPrompt(positions, articles),
			MaxTokens: g.maxTokens,
		}, func(a *answer) error {
			if strings.TrimSpace(a.Paragraph) == "" {
				return errors.New("paragraph missing")
			}
			return nil
		})
		if err == nil {
			summary.Paragraph = strings.TrimSpace(ans.Paragraph)
			summary.Bullets = cleanBullets(ans.Bullets)
			summary.ModelUsed = model
			return summary
		}
		g.logger.Warn("market summary fell back", "session", sessionID, "error", err)
	}

	summary.Paragraph, summary.Bullets = Fallback(positions, len(articles))
	summary.ModelUsed = fallbackModel
	return summary
}

// Fallback describes the positions without a model.
func Fallback(positions []domain.Position, articleCount int) (string, []string) {
	if len(positions) == 0 {
		return fmt.Sprintf("No actionable positions emerged from %d classified article(s).", articleCount), nil
	}

	var long, short int
	for _, p := range positions {
		switch p.Tier {
		case domain.TierBuy, domain.TierStrongBuy:
			long++
		default:
			short++
		}
	}
	mood := "mixed"
	switch {
	case long > 0 && short == 0:
		mood = "bullish"
	case short > 0 && long == 0:
		mood = "bearish"
	}

	paragraph := fmt.Sprintf("Market tone is %s: %d long and %d short position(s) derived from %d classified article(s), led by %s (%s).",
		mood, long, short, articleCount, positions[0].Ticker, positions[0].Tier)

	bullets := make([]string, 0, min(len(positions), 5))
	for _, p := range positions[:min(len(positions), 5)] {
		bullets = append(bullets, fmt.Sprintf("%s %s: sentiment %+.2f, confidence %.2f across %d article(s).",
			p.Ticker, p.Tier, p.Sentiment, p.Confidence, len(p.Articles)))
	}
	return paragraph, bullets
}

func buildPrompt(positions []domain.Position, articles []domain.ClassifiedArticle) string {
	var b strings.Builder
	b.WriteString("Positions:\n")
	for _, p := range positions {
		fmt.Fprintf(&b, "- %s %s sentiment=%+.2f confidence=%.2f: %s\n", p.Ticker, p.Tier, p.Sentiment, p.Confidence, p.Reasoning)
	}
	b.WriteString("\nHeadlines:\n")
	for i, a := range articles {
		if i == 30 {
			break
		}
		fmt.Fprintf(&b, "- [%s] %s\n", a.Ticker, a.Title)
	}
	return b.String()
}

func cleanBullets(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
