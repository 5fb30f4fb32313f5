// Package aggregate folds classified articles into per-ticker positions.
// It is pure: the same articles in any order give the same positions.
package aggregate

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"MarketScanner/internal/domain"
)

const (
	strongThreshold = 0.7
	weakThreshold   = 0.4
)

type group struct {
	ticker   string
	articles []domain.ClassifiedArticle
}

// Aggregate returns at most maxPositions positions ranked by
// |sentiment| x confidence, ties broken by ticker.
func Aggregate(articles []domain.ClassifiedArticle, maxPositions int, minConfidence float64) []domain.Position {
	groups := make(map[string]*group)
	for _, a := range articles {
		ticker := domain.NormalizeTicker(a.Ticker)
		if ticker == "" {
			continue
		}
		g, ok := groups[ticker]
		if !ok {
			g = &group{ticker: ticker}
			groups[ticker] = g
		}
		g.articles = append(g.articles, a)
	}

	positions := make([]domain.Position, 0, len(groups))
	for _, g := range groups {
		if p, ok := fold(g, minConfidence); ok {
			positions = append(positions, p)
		}
	}

	sort.Slice(positions, func(i, j int) bool {
		si, sj := score(positions[i]), score(positions[j])
		if si != sj {
			return si > sj
		}
		return positions[i].Ticker < positions[j].Ticker
	})

	if maxPositions >= 0 && len(positions) > maxPositions {
		positions = positions[:maxPositions]
	}
	return positions
}

func score(p domain.Position) float64 {
	return math.Abs(p.Sentiment) * p.Confidence
}

func fold(g *group, minConfidence float64) (domain.Position, bool) {
	sort.Slice(g.articles, func(i, j int) bool {
		if g.articles[i].URL != g.articles[j].URL {
			return g.articles[i].URL < g.articles[j].URL
		}
		return g.articles[i].Title < g.articles[j].Title
	})

	var sentimentSum, confidenceSum float64
	positive := map[string]struct{}{}
	negative := map[string]struct{}{}
	refs := make([]domain.ArticleRef, 0, len(g.articles))
	for _, a := range g.articles {
		sentimentSum += a.Sentiment
		confidenceSum += a.Confidence
		for _, c := range a.Catalysts {
			tag := strings.ToLower(strings.TrimSpace(c.Tag))
			if tag == "" {
				continue
			}
			switch c.Impact {
			case domain.ImpactPositive:
				positive[tag] = struct{}{}
			case domain.ImpactNegative:
				negative[tag] = struct{}{}
			}
		}
		refs = append(refs, domain.ArticleRef{
			URL:        a.URL,
			Title:      a.Title,
			Sentiment:  a.Sentiment,
			Confidence: a.Confidence,
		})
	}

	n := float64(len(g.articles))
	sentiment := sentimentSum / n
	confidence := confidenceSum / n

	tier, ok := tierFor(sentiment, len(positive), len(negative))
	if !ok || confidence < minConfidence {
		return domain.Position{}, false
	}

	return domain.Position{
		Ticker:     g.ticker,
		Tier:       tier,
		Confidence: confidence,
		Sentiment:  sentiment,
		Articles:   refs,
		Reasoning:  reasoning(len(g.articles), sentiment, confidence, tier, positive, negative),
	}, true
}

// tierFor evaluates the strong tier before the weak one in each direction;
// anything else is an implicit hold.
func tierFor(sentiment float64, positive, negative int) (domain.Tier, bool) {
	switch {
	case sentiment > strongThreshold && positive >= 2:
		return domain.TierStrongBuy, true
	case sentiment > weakThreshold && positive >= 1:
		return domain.TierBuy, true
	case sentiment < -strongThreshold && negative >= 2:
		return domain.TierStrongShort, true
	case sentiment < -weakThreshold && negative >= 1:
		return domain.TierShort, true
	default:
		return "", false
	}
}

func reasoning(n int, sentiment, confidence float64, tier domain.Tier, positive, negative map[string]struct{}) string {
	tags := positive
	direction := "positive"
	if tier == domain.TierShort || tier == domain.TierStrongShort {
		tags = negative
		direction = "negative"
	}
	return fmt.Sprintf("%s from %d article(s): mean sentiment %+.2f, mean confidence %.2f; %s catalysts: %s",
		tier, n, sentiment, confidence, direction, strings.Join(sortedKeys(tags), ", "))
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
