package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"MarketScanner/internal/aggregate"
	"MarketScanner/internal/classify"
	"MarketScanner/internal/domain"
	"MarketScanner/internal/fetcher"
)

// Progress plan per stage.
const (
	progressScrapeStart   = 5
	progressScrapeEnd     = 25
	progressFiltering     = 30
	progressEnrichStart   = 35
	progressEnrichEnd     = 55
	progressClassifyStart = 60
	progressClassifyEnd   = 85
	progressAggregating   = 90
)

func fatal(format string, args ...any) error {
	return &domain.SessionError{Kind: domain.KindSessionFatal, Message: fmt.Sprintf(format, args...)}
}

func stepProgress(start, end, done, total int) int {
	if total <= 0 {
		return end
	}
	return start + (end-start)*done/total
}

// run drives one session through every stage and settles its terminal state.
func (c *Coordinator) run(ctx context.Context, e *entry) {
	err := c.pipeline(ctx, e)
	switch {
	case err == nil:
	case ctx.Err() != nil || errors.Is(err, domain.ErrCancelled):
		c.cancelled(ctx, e)
	default:
		c.fail(ctx, e, err)
	}
}

func (c *Coordinator) pipeline(ctx context.Context, e *entry) error {
	cfg := e.session.Config
	id := e.session.ID

	candidates, err := c.scrape(ctx, e, cfg)
	if err != nil {
		return err
	}

	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	c.emit(ctx, e, domain.StateFiltering, progressFiltering,
		fmt.Sprintf("filtering %d headline(s)", len(candidates)), nil)
	relevant, err := c.deps.Filter.Select(ctx, cfg.Model, candidates)
	if err != nil {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		return fatal("relevance filter failed: %v", err)
	}
	if len(relevant) == 0 {
		return fatal("no relevant headlines among %d candidate(s)", len(candidates))
	}
	c.record(ctx, id, domain.StateFiltering, domain.LevelInfo, "filter_selected",
		fmt.Sprintf("%d of %d headline(s) relevant", len(relevant), len(candidates)),
		map[string]string{"selected": strconv.Itoa(len(relevant)), "candidates": strconv.Itoa(len(candidates))})

	reqs, err := c.enrich(ctx, e, cfg, relevant)
	if err != nil {
		return err
	}

	articles, err := c.classifyArticles(ctx, e, reqs)
	if err != nil {
		return err
	}

	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	c.emit(ctx, e, domain.StateAggregating, progressAggregating,
		fmt.Sprintf("aggregating %d classified article(s)", len(articles)), nil)
	positions := aggregate.Aggregate(articles, cfg.MaxPositions, cfg.MinConfidence)

	summary := c.summarize(ctx, id, cfg.Model, positions, articles)
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	// Positions become durable only once the session can no longer be cancelled.
	for _, p := range positions {
		c.persist(ctx, "position", func(ctx context.Context) error { return c.deps.Store.PersistPosition(ctx, id, p) })
	}
	c.persist(ctx, "market_summary", func(ctx context.Context) error { return c.deps.Store.PersistMarketSummary(ctx, summary) })

	c.complete(ctx, e, positions, summary)
	return nil
}

// scrape lists headlines from every configured source. A failing source is
// recorded and skipped; the session fails only when none produced anything.
func (c *Coordinator) scrape(ctx context.Context, e *entry, cfg domain.SessionConfig) ([]domain.Candidate, error) {
	id := e.session.ID
	c.emit(ctx, e, domain.StateScraping, progressScrapeStart,
		fmt.Sprintf("scraping %d source(s)", len(cfg.Sources)), nil)

	dedupe := fetcher.NewDedupe()
	var (
		candidates []domain.Candidate
		failed     int
	)
	for i, name := range cfg.Sources {
		if ctx.Err() != nil {
			return nil, context.Cause(ctx)
		}
		conn, err := c.deps.Sources.Resolve(name)
		if err != nil {
			failed++
			c.record(ctx, id, domain.StateScraping, domain.LevelWarn, "source_failed", err.Error(),
				map[string]string{"source": name, "kind": string(domain.Classify(err))})
			continue
		}

		var (
			found   int
			listErr error
		)
		for cand, err := range c.deps.Fetcher.FetchHeadlines(ctx, conn, dedupe) {
			if err != nil {
				listErr = err
				break
			}
			candidates = append(candidates, cand)
			found++
		}
		if ctx.Err() != nil {
			return nil, context.Cause(ctx)
		}
		if listErr != nil {
			level := domain.LevelWarn
			if found == 0 {
				failed++
				level = domain.LevelError
			}
			c.record(ctx, id, domain.StateScraping, level, "source_failed", listErr.Error(),
				map[string]string{"source": name, "kind": string(domain.Classify(listErr)), "headlines": strconv.Itoa(found)})
		}

		c.emit(ctx, e, domain.StateScraping, stepProgress(progressScrapeStart, progressScrapeEnd, i+1, len(cfg.Sources)),
			fmt.Sprintf("source %s: %d headline(s)", name, found),
			map[string]any{"source": name, "headlines": found})
	}

	if failed == len(cfg.Sources) {
		return nil, fatal("all %d source(s) failed", failed)
	}
	return candidates, nil
}

// enrich fetches article bodies for the relevant candidates. Bodies that
// cannot be fetched are skipped; the session fails only when none arrive.
func (c *Coordinator) enrich(ctx context.Context, e *entry, cfg domain.SessionConfig, relevant []domain.Candidate) ([]classify.Request, error) {
	id := e.session.ID
	if ctx.Err() != nil {
		return nil, context.Cause(ctx)
	}
	c.emit(ctx, e, domain.StateEnriching, progressEnrichStart,
		fmt.Sprintf("fetching %d article body(ies)", len(relevant)), nil)

	reqs := make([]classify.Request, 0, len(relevant))
	for i, cand := range relevant {
		if ctx.Err() != nil {
			return nil, context.Cause(ctx)
		}
		body, err := c.fetchBody(ctx, cand)
		if err != nil {
			if ctx.Err() != nil {
				return nil, context.Cause(ctx)
			}
			c.record(ctx, id, domain.StateEnriching, domain.LevelWarn, "body_failed", err.Error(),
				map[string]string{"url": cand.URL, "kind": string(domain.Classify(err))})
		} else {
			reqs = append(reqs, classify.Request{Candidate: cand, Body: body, Model: cfg.Model})
			c.persist(ctx, "article", func(ctx context.Context) error { return c.deps.Store.PersistArticle(ctx, id, cand, body) })
		}
		c.emit(ctx, e, domain.StateEnriching, stepProgress(progressEnrichStart, progressEnrichEnd, i+1, len(relevant)),
			fmt.Sprintf("fetched %d of %d article body(ies)", len(reqs), len(relevant)), nil)
	}

	if len(reqs) == 0 {
		return nil, fatal("no article body could be fetched for %d relevant headline(s)", len(relevant))
	}
	return reqs, nil
}

func (c *Coordinator) fetchBody(ctx context.Context, cand domain.Candidate) (string, error) {
	conn, err := c.deps.Sources.Resolve(cand.Source)
	if err != nil {
		return "", err
	}
	return c.deps.Fetcher.FetchBody(ctx, conn, cand)
}

// classifyArticles runs the batch through the shared pool. Per-article failures are
// recorded and excluded; results keep request order for deterministic folding.
func (c *Coordinator) classifyArticles(ctx context.Context, e *entry, reqs []classify.Request) ([]domain.ClassifiedArticle, error) {
	id := e.session.ID
	if ctx.Err() != nil {
		return nil, context.Cause(ctx)
	}
	c.emit(ctx, e, domain.StateClassifying, progressClassifyStart,
		fmt.Sprintf("classifying %d article(s)", len(reqs)), nil)

	results := make([]*domain.ClassifiedArticle, len(reqs))
	done := 0
	err := c.deps.Pool.Run(ctx, reqs, func(i int, outcome classify.Outcome) {
		done++
		switch out := outcome.(type) {
		case classify.Parsed:
			article := out.Article
			results[i] = &article
			c.persist(ctx, "analysis", func(ctx context.Context) error { return c.deps.Store.PersistAnalysis(ctx, id, article) })
			c.record(ctx, id, domain.StateClassifying, domain.LevelInfo, "article_classified", article.Title,
				map[string]string{
					"url":        article.URL,
					"ticker":     article.Ticker,
					"sentiment":  strconv.FormatFloat(article.Sentiment, 'f', 2, 64),
					"confidence": strconv.FormatFloat(article.Confidence, 'f', 2, 64),
				})
		case classify.SchemaError:
			c.record(ctx, id, domain.StateClassifying, domain.LevelWarn, "classification_failed", out.Err.Error(),
				map[string]string{"url": out.Candidate.URL, "kind": string(domain.KindSchema)})
		case classify.TransportError:
			c.record(ctx, id, domain.StateClassifying, domain.LevelWarn, "classification_failed", out.Err.Error(),
				map[string]string{"url": out.Candidate.URL, "kind": string(domain.KindTransientIO), "attempts": strconv.Itoa(out.Attempts)})
		}
		c.emit(ctx, e, domain.StateClassifying, stepProgress(progressClassifyStart, progressClassifyEnd, done, len(reqs)),
			fmt.Sprintf("classified %d of %d article(s)", done, len(reqs)), nil)
	})
	if err != nil {
		return nil, err
	}

	articles := make([]domain.ClassifiedArticle, 0, len(reqs))
	for _, a := range results {
		if a != nil {
			articles = append(articles, *a)
		}
	}
	return articles, nil
}

func (c *Coordinator) summarize(ctx context.Context, id, model string, positions []domain.Position, articles []domain.ClassifiedArticle) domain.MarketSummary {
	if c.deps.Reporter == nil {
		return domain.MarketSummary{
			SessionID:     id,
			PositionCount: len(positions),
			ArticleCount:  len(articles),
			CreatedAt:     c.clock.Now(),
		}
	}
	return c.deps.Reporter.Generate(ctx, id, model, positions, articles)
}

// persist hands a write to the store; failures are logged and never fail a session.
func (c *Coordinator) persist(ctx context.Context, what string, write func(context.Context) error) {
	if c.deps.Store == nil {
		return
	}
	if err := write(context.WithoutCancel(ctx)); err != nil {
		c.logger.Warn("persist failed", "what", what, "error", err)
	}
}
