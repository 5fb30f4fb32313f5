package domain

import (
	"fmt"
	"strings"
	"time"
)

// Candidate is a scraped headline stub, not yet validated or classified.
type Candidate struct {
	Source    string    `json:"source"`
	URL       string    `json:"url"`
	Ticker    string    `json:"ticker,omitempty"`
	Title     string    `json:"title"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Impact is the market direction a catalyst points to within one article.
type Impact string

const (
	ImpactPositive Impact = "positive"
	ImpactNegative Impact = "negative"
	ImpactNeutral  Impact = "neutral"
)

// ParseImpact normalises free-form impact labels returned by the model.
func ParseImpact(raw string) (Impact, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "positive", "bullish", "+":
		return ImpactPositive, nil
	case "negative", "bearish", "-":
		return ImpactNegative, nil
	case "neutral", "mixed", "":
		return ImpactNeutral, nil
	default:
		return "", fmt.Errorf("unknown catalyst impact %q", raw)
	}
}

// Catalyst is a typed reason for a move, with article-scoped impact.
type Catalyst struct {
	Tag    string `json:"tag"`
	Impact Impact `json:"impact"`
}

// ClassifiedArticle is a fully fetched, model-scored article.
type ClassifiedArticle struct {
	Candidate
	Body       string     `json:"body"`
	Sentiment  float64    `json:"sentiment"`
	Confidence float64    `json:"confidence"`
	Catalysts  []Catalyst `json:"catalysts"`
	Reasoning  string     `json:"reasoning"`
}

// NewClassifiedArticle validates score bounds and takes a private copy of catalysts.
func NewClassifiedArticle(c Candidate, body string, sentiment, confidence float64, catalysts []Catalyst, reasoning string) (ClassifiedArticle, error) {
	if sentiment < -1 || sentiment > 1 {
		return ClassifiedArticle{}, fmt.Errorf("sentiment %v outside [-1,1]", sentiment)
	}
	if confidence < 0 || confidence > 1 {
		return ClassifiedArticle{}, fmt.Errorf("confidence %v outside [0,1]", confidence)
	}
	cleaned := make([]Catalyst, 0, len(catalysts))
	for _, cat := range catalysts {
		tag := strings.ToLower(strings.TrimSpace(cat.Tag))
		if tag == "" {
			continue
		}
		cleaned = append(cleaned, Catalyst{Tag: tag, Impact: cat.Impact})
	}
	c.Ticker = NormalizeTicker(c.Ticker)
	return ClassifiedArticle{
		Candidate:  c,
		Body:       body,
		Sentiment:  sentiment,
		Confidence: confidence,
		Catalysts:  cleaned,
		Reasoning:  strings.TrimSpace(reasoning),
	}, nil
}

// NormalizeTicker upper-cases and strips exchange prefixes like "NASDAQ:".
func NormalizeTicker(raw string) string {
	t := strings.ToUpper(strings.TrimSpace(raw))
	if idx := strings.LastIndex(t, ":"); idx >= 0 {
		t = t[idx+1:]
	}
	return strings.TrimPrefix(t, "$")
}
