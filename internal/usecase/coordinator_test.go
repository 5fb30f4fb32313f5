package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"MarketScanner/internal/activity"
	"MarketScanner/internal/broadcast"
	"MarketScanner/internal/classify"
	"MarketScanner/internal/clock"
	"MarketScanner/internal/domain"
	"MarketScanner/internal/fetcher"
	"MarketScanner/internal/logging"
	"MarketScanner/internal/ports"
	"MarketScanner/internal/ratelimit"
	"MarketScanner/internal/report"
	"MarketScanner/internal/retry"
	"MarketScanner/internal/scanner"
)

var epoch = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

type instantClock struct{}

func (instantClock) Now() time.Time { return epoch }
func (instantClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- epoch
	return ch
}

type stubSource struct {
	name      string
	headlines []domain.Candidate
	bodies    map[string]string
	listErr   error
	gate      chan struct{}
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) PageURL(page int) (string, error) {
	return fmt.Sprintf("https://%s.test/news?page=%d", s.name, page), nil
}

func (s *stubSource) ListHeadlines(context.Context, int) (ports.HeadlinePage, error) {
	if s.gate != nil {
		<-s.gate
	}
	if s.listErr != nil {
		return ports.HeadlinePage{}, s.listErr
	}
	return ports.HeadlinePage{Candidates: s.headlines}, nil
}

func (s *stubSource) FetchBody(_ context.Context, c domain.Candidate) (string, error) {
	body, ok := s.bodies[c.URL]
	if !ok {
		return "", &domain.StatusError{Code: 404}
	}
	return body, nil
}

// tickerFilter keeps candidates whose title maps to a ticker.
type tickerFilter struct {
	tickers map[string]string
	err     error
}

func (f tickerFilter) Select(_ context.Context, _ string, candidates []domain.Candidate) ([]domain.Candidate, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Candidate
	for _, c := range candidates {
		if ticker, ok := f.tickers[c.Title]; ok {
			c.Ticker = ticker
			out = append(out, c)
		}
	}
	return out, nil
}

type verdict struct {
	sentiment  float64
	confidence float64
	catalysts  []domain.Catalyst
}

type scriptedClassifier struct {
	verdicts map[string]verdict
	entered  chan struct{}
	release  chan struct{}
}

func (s *scriptedClassifier) Classify(_ context.Context, req classify.Request) classify.Outcome {
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.release != nil {
		<-s.release
	}
	v, ok := s.verdicts[req.Candidate.URL]
	if !ok {
		return classify.SchemaError{Candidate: req.Candidate, Err: errors.New("no verdict")}
	}
	article, err := domain.NewClassifiedArticle(req.Candidate, req.Body, v.sentiment, v.confidence, v.catalysts, "scripted")
	if err != nil {
		return classify.SchemaError{Candidate: req.Candidate, Err: err}
	}
	return classify.Parsed{Article: article}
}

type memoryStore struct {
	mu        sync.Mutex
	articles  int
	analyses  int
	positions []domain.Position
	summaries int
	logs      int
}

func (m *memoryStore) PersistArticle(context.Context, string, domain.Candidate, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.articles++
	return nil
}

func (m *memoryStore) PersistAnalysis(context.Context, string, domain.ClassifiedArticle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analyses++
	return nil
}

func (m *memoryStore) PersistPosition(_ context.Context, _ string, p domain.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions = append(m.positions, p)
	return nil
}

func (m *memoryStore) PersistLogEntry(context.Context, domain.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs++
	return nil
}

func (m *memoryStore) PersistMarketSummary(context.Context, domain.MarketSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries++
	return errors.New("summary table locked")
}

type chanNotifier struct {
	got chan []domain.Position
}

func (n chanNotifier) PublishSession(_ context.Context, _ domain.MarketSummary, positions []domain.Position) error {
	n.got <- positions
	return nil
}

type harness struct {
	coord      *Coordinator
	store      *memoryStore
	classifier *scriptedClassifier
}

func newTestFetcher(policy *fetcher.CrawlPolicy) *fetcher.Fetcher {
	logger := logging.Discard()
	fast := instantClock{}
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), fast, ratelimit.Budget{Limit: 1000, Window: time.Minute}, nil, logger)
	return fetcher.New(limiter, retry.New(retry.Default(), fast), policy, 1, logger)
}

func newHarness(t *testing.T, sources []*stubSource, filter RelevanceFilter, classifier *scriptedClassifier, mutate func(*Deps)) *harness {
	t.Helper()
	logger := logging.Discard()

	registry := scanner.NewRegistry()
	for _, src := range sources {
		registry.Register(src)
	}
	fetch := newTestFetcher(nil)

	sessionClock := clock.NewFake(epoch)
	store := &memoryStore{}
	deps := Deps{
		Sources:      registry,
		Fetcher:      fetch,
		Filter:       filter,
		Pool:         classify.NewPool(5, classifier),
		Reporter:     report.New(nil, 0, sessionClock, logger),
		Broadcaster:  broadcast.New(100, 100, logger),
		Recorder:     activity.New(sessionClock, logger, activity.NewStoreSink(store)),
		Store:        store,
		Clock:        sessionClock,
		Logger:       logger,
		DefaultModel: "test-model",
	}
	if mutate != nil {
		mutate(&deps)
	}
	coord := NewCoordinator(deps)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = coord.Close(ctx)
	})
	return &harness{coord: coord, store: store, classifier: classifier}
}

func abcSource() *stubSource {
	cand := func(t string) domain.Candidate {
		return domain.Candidate{URL: "https://wire.test/" + t, Title: t + " headline"}
	}
	return &stubSource{
		name:      "wire",
		headlines: []domain.Candidate{cand("a"), cand("b"), cand("c")},
		bodies: map[string]string{
			"https://wire.test/a": "body a",
			"https://wire.test/b": "body b",
			"https://wire.test/c": "body c",
		},
	}
}

func abcFilter() tickerFilter {
	return tickerFilter{tickers: map[string]string{"a headline": "A", "b headline": "B", "c headline": "C"}}
}

func abcClassifier() *scriptedClassifier {
	pos := func(tag string) domain.Catalyst { return domain.Catalyst{Tag: tag, Impact: domain.ImpactPositive} }
	neg := func(tag string) domain.Catalyst { return domain.Catalyst{Tag: tag, Impact: domain.ImpactNegative} }
	return &scriptedClassifier{verdicts: map[string]verdict{
		"https://wire.test/a": {sentiment: 0.8, confidence: 0.9, catalysts: []domain.Catalyst{pos("earnings"), pos("guidance")}},
		"https://wire.test/b": {sentiment: 0.5, confidence: 0.5, catalysts: []domain.Catalyst{pos("product")}},
		"https://wire.test/c": {sentiment: -0.9, confidence: 0.95, catalysts: []domain.Catalyst{neg("fraud"), neg("lawsuit")}},
	}}
}

func abcConfig() domain.SessionConfig {
	return domain.SessionConfig{MaxPositions: 2, MinConfidence: 0.6, Sources: []string{"wire"}}
}

func waitDone(t *testing.T, c *Coordinator, id string) domain.Session {
	t.Helper()
	done, err := c.Done(id)
	if err != nil {
		t.Fatalf("done: %v", err)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("session %s did not finish", id)
	}
	s, err := c.State(id)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	return s
}

func events(t *testing.T, c *Coordinator, id string) []domain.ProgressEvent {
	t.Helper()
	sub, err := c.Subscribe(id)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	var out []domain.ProgressEvent
	for ev := range sub.Events() {
		out = append(out, ev)
	}
	return out
}

func TestEndToEndSelectsStrongPositions(t *testing.T) {
	t.Parallel()

	notified := chanNotifier{got: make(chan []domain.Position, 1)}
	h := newHarness(t, []*stubSource{abcSource()}, abcFilter(), abcClassifier(), func(d *Deps) { d.Notifier = notified })

	handle, err := h.coord.Start(abcConfig())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	s := waitDone(t, h.coord, handle.ID)

	if s.State != domain.StateCompleted {
		t.Fatalf("expected completed, got %s (%+v)", s.State, s.Error)
	}
	if s.Config.Model != "test-model" {
		t.Fatalf("default model not applied: %q", s.Config.Model)
	}
	if len(s.Positions) != 2 {
		t.Fatalf("expected 2 positions, got %+v", s.Positions)
	}
	tiers := map[string]domain.Tier{}
	for _, p := range s.Positions {
		tiers[p.Ticker] = p.Tier
	}
	if tiers["A"] != domain.TierStrongBuy || tiers["C"] != domain.TierStrongShort {
		t.Fatalf("unexpected tiers %v", tiers)
	}
	if _, ok := tiers["B"]; ok {
		t.Fatalf("B is below the confidence threshold and must be excluded")
	}
	if s.Progress != 100 || s.CompletedAt == nil {
		t.Fatalf("completed session must report progress 100 and a completion time: %+v", s)
	}
	if s.Summary == nil || s.Summary.PositionCount != 2 || s.Summary.ArticleCount != 3 {
		t.Fatalf("unexpected summary %+v", s.Summary)
	}

	h.store.mu.Lock()
	if h.store.articles != 3 || h.store.analyses != 3 || len(h.store.positions) != 2 || h.store.summaries != 1 {
		t.Fatalf("unexpected persisted counts %+v", h.store)
	}
	if h.store.logs == 0 {
		t.Fatalf("activity must reach the store sink")
	}
	h.store.mu.Unlock()

	select {
	case got := <-notified.got:
		if len(got) != 2 {
			t.Fatalf("notifier got %d positions", len(got))
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("notifier was not called")
	}
}

func TestEventsAreOrderedAndProgressNeverDecreases(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []*stubSource{abcSource()}, abcFilter(), abcClassifier(), nil)
	handle, err := h.coord.Start(abcConfig())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, h.coord, handle.ID)

	evs := events(t, h.coord, handle.ID)
	if len(evs) < 8 {
		t.Fatalf("expected an event per stage, got %d", len(evs))
	}
	if evs[0].Stage != domain.StatePending || evs[0].Progress != 0 {
		t.Fatalf("first event must be pending at 0, got %+v", evs[0])
	}
	last := evs[len(evs)-1]
	if last.Stage != domain.StateCompleted || last.Progress != 100 {
		t.Fatalf("last event must be completed at 100, got %+v", last)
	}
	if _, ok := last.Payload.([]domain.Position); !ok {
		t.Fatalf("completed event must carry positions, got %T", last.Payload)
	}

	seen := map[domain.Stage]bool{}
	for i, ev := range evs {
		seen[ev.Stage] = true
		if ev.SessionID != handle.ID {
			t.Fatalf("foreign event %+v", ev)
		}
		if i == 0 {
			continue
		}
		if ev.Sequence <= evs[i-1].Sequence {
			t.Fatalf("sequence not increasing at %d: %d after %d", i, ev.Sequence, evs[i-1].Sequence)
		}
		if ev.Progress < evs[i-1].Progress {
			t.Fatalf("progress decreased at %d: %d after %d", i, ev.Progress, evs[i-1].Progress)
		}
	}
	for _, stage := range []domain.Stage{domain.StateScraping, domain.StateFiltering, domain.StateEnriching, domain.StateClassifying, domain.StateAggregating} {
		if !seen[stage] {
			t.Fatalf("missing %s event", stage)
		}
	}

	trail, err := h.coord.Activity(handle.ID)
	if err != nil {
		t.Fatalf("activity: %v", err)
	}
	if len(trail) <= len(evs) {
		t.Fatalf("activity must include every event plus pipeline actions, got %d entries for %d events", len(trail), len(evs))
	}
}

func TestStartReturnsBeforeScraping(t *testing.T) {
	t.Parallel()

	src := abcSource()
	src.gate = make(chan struct{})
	h := newHarness(t, []*stubSource{src}, abcFilter(), abcClassifier(), nil)

	handle, err := h.coord.Start(abcConfig())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if handle.State != domain.StatePending || handle.ID == "" {
		t.Fatalf("unexpected handle %+v", handle)
	}
	s, err := h.coord.State(handle.ID)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if s.State.Terminal() {
		t.Fatalf("session finished while its source was still blocked: %s", s.State)
	}

	close(src.gate)
	if s := waitDone(t, h.coord, handle.ID); s.State != domain.StateCompleted {
		t.Fatalf("expected completed, got %s", s.State)
	}
}

func TestCancelDuringClassification(t *testing.T) {
	t.Parallel()

	classifier := abcClassifier()
	classifier.entered = make(chan struct{}, 3)
	classifier.release = make(chan struct{})
	h := newHarness(t, []*stubSource{abcSource()}, abcFilter(), classifier, nil)

	handle, err := h.coord.Start(abcConfig())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case <-classifier.entered:
	case <-time.After(5 * time.Second):
		t.Fatalf("classification never started")
	}

	if err := h.coord.Cancel(handle.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := h.coord.Cancel(handle.ID); err != nil {
		t.Fatalf("second cancel must be a no-op: %v", err)
	}
	close(classifier.release)

	s := waitDone(t, h.coord, handle.ID)
	if s.State != domain.StateCancelled {
		t.Fatalf("expected cancelled, got %s", s.State)
	}
	if len(s.Positions) != 0 {
		t.Fatalf("cancelled session must not carry positions: %+v", s.Positions)
	}

	evs := events(t, h.coord, handle.ID)
	if last := evs[len(evs)-1]; last.Stage != domain.StateCancelled {
		t.Fatalf("final event must be cancelled, got %s", last.Stage)
	}
	for _, ev := range evs {
		if ev.Stage == domain.StateAggregating || ev.Stage == domain.StateCompleted {
			t.Fatalf("no stage after classification may run once cancelled: %+v", ev)
		}
	}

	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	if len(h.store.positions) != 0 {
		t.Fatalf("cancelled session persisted positions: %+v", h.store.positions)
	}

	if err := h.coord.Cancel(handle.ID); err != nil {
		t.Fatalf("cancel after terminal must be a no-op: %v", err)
	}
}

type blockingReporter struct {
	entered chan struct{}
	release chan struct{}
}

func (r blockingReporter) Generate(_ context.Context, sessionID, model string, positions []domain.Position, articles []domain.ClassifiedArticle) domain.MarketSummary {
	r.entered <- struct{}{}
	<-r.release
	return domain.MarketSummary{SessionID: sessionID, ModelUsed: model, PositionCount: len(positions), ArticleCount: len(articles)}
}

func TestCancelDuringSummaryPersistsNothing(t *testing.T) {
	t.Parallel()

	reporter := blockingReporter{entered: make(chan struct{}, 1), release: make(chan struct{})}
	h := newHarness(t, []*stubSource{abcSource()}, abcFilter(), abcClassifier(), func(d *Deps) { d.Reporter = reporter })

	handle, err := h.coord.Start(abcConfig())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case <-reporter.entered:
	case <-time.After(5 * time.Second):
		t.Fatalf("summary never started")
	}
	if err := h.coord.Cancel(handle.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	close(reporter.release)

	s := waitDone(t, h.coord, handle.ID)
	if s.State != domain.StateCancelled {
		t.Fatalf("expected cancelled, got %s", s.State)
	}
	if len(s.Positions) != 0 || s.Summary != nil {
		t.Fatalf("cancelled session must not carry results: %+v", s)
	}

	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	if len(h.store.positions) != 0 || h.store.summaries != 0 {
		t.Fatalf("cancelled session persisted results: positions=%d summaries=%d", len(h.store.positions), h.store.summaries)
	}
}

func TestPolicyViolationFailsOnlyThatSource(t *testing.T) {
	t.Parallel()

	blocked := &stubSource{
		name:      "blocked",
		headlines: []domain.Candidate{{URL: "https://blocked.test/x", Title: "x headline"}},
	}
	policy := fetcher.NewCrawlPolicy(map[string][]string{"blocked": {"/"}}, nil)
	h := newHarness(t, []*stubSource{blocked, abcSource()}, abcFilter(), abcClassifier(), func(d *Deps) {
		d.Fetcher = newTestFetcher(policy)
	})

	cfg := abcConfig()
	cfg.Sources = []string{"blocked", "wire"}
	handle, err := h.coord.Start(cfg)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	s := waitDone(t, h.coord, handle.ID)

	if s.State != domain.StateCompleted {
		t.Fatalf("expected completed, got %s (%+v)", s.State, s.Error)
	}
	tickers := map[string]bool{}
	for _, p := range s.Positions {
		tickers[p.Ticker] = true
	}
	if len(s.Positions) != 2 || !tickers["A"] || !tickers["C"] {
		t.Fatalf("unexpected positions %+v", s.Positions)
	}

	entries, err := h.coord.Activity(handle.ID)
	if err != nil {
		t.Fatalf("activity: %v", err)
	}
	var sourceFailed bool
	for _, e := range entries {
		if e.Action == "source_failed" {
			if e.Detail["source"] != "blocked" || e.Detail["kind"] != string(domain.KindPolicy) {
				t.Fatalf("unexpected source failure entry %+v", e)
			}
			sourceFailed = true
		}
	}
	if !sourceFailed {
		t.Fatalf("blocked source not recorded as failed")
	}
}

func TestFailedBodyDropsOnlyThatArticle(t *testing.T) {
	t.Parallel()

	src := abcSource()
	delete(src.bodies, "https://wire.test/b")
	h := newHarness(t, []*stubSource{src}, abcFilter(), abcClassifier(), nil)

	handle, err := h.coord.Start(abcConfig())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	s := waitDone(t, h.coord, handle.ID)

	if s.State != domain.StateCompleted {
		t.Fatalf("expected completed, got %s (%+v)", s.State, s.Error)
	}
	if s.Summary == nil || s.Summary.ArticleCount != 2 {
		t.Fatalf("expected two classified articles, got %+v", s.Summary)
	}

	h.store.mu.Lock()
	if h.store.articles != 2 || h.store.analyses != 2 {
		t.Fatalf("expected two articles and analyses persisted, got %d/%d", h.store.articles, h.store.analyses)
	}
	h.store.mu.Unlock()

	entries, err := h.coord.Activity(handle.ID)
	if err != nil {
		t.Fatalf("activity: %v", err)
	}
	var bodyFailed int
	for _, e := range entries {
		if e.Action == "body_failed" {
			bodyFailed++
			if e.Detail["url"] != "https://wire.test/b" {
				t.Fatalf("unexpected body failure entry %+v", e)
			}
		}
	}
	if bodyFailed != 1 {
		t.Fatalf("expected one body_failed entry, got %d", bodyFailed)
	}
}

func TestSessionFatalConditions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		source func() *stubSource
		filter tickerFilter
	}{
		{
			name: "all sources failed",
			source: func() *stubSource {
				s := abcSource()
				s.listErr = &domain.StatusError{Code: 403}
				return s
			},
			filter: abcFilter(),
		},
		{
			name:   "filter call failed",
			source: abcSource,
			filter: tickerFilter{err: errors.New("model unreachable")},
		},
		{
			name:   "nothing relevant",
			source: abcSource,
			filter: tickerFilter{tickers: map[string]string{}},
		},
		{
			name: "no bodies",
			source: func() *stubSource {
				s := abcSource()
				s.bodies = nil
				return s
			},
			filter: abcFilter(),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, []*stubSource{tc.source()}, tc.filter, abcClassifier(), nil)
			handle, err := h.coord.Start(abcConfig())
			if err != nil {
				t.Fatalf("start: %v", err)
			}
			s := waitDone(t, h.coord, handle.ID)
			if s.State != domain.StateFailed {
				t.Fatalf("expected failed, got %s", s.State)
			}
			if s.Error == nil || s.Error.Kind != domain.KindSessionFatal {
				t.Fatalf("expected session_fatal error, got %+v", s.Error)
			}
			evs := events(t, h.coord, handle.ID)
			if last := evs[len(evs)-1]; last.Stage != domain.StateFailed {
				t.Fatalf("final event must be failed, got %s", last.Stage)
			}
		})
	}
}

func TestStartRejectsInvalidConfiguration(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []*stubSource{abcSource()}, abcFilter(), abcClassifier(), nil)

	bad := []domain.SessionConfig{
		{MaxPositions: 0, MinConfidence: 0.6, Sources: []string{"wire"}},
		{MaxPositions: 51, MinConfidence: 0.6, Sources: []string{"wire"}},
		{MaxPositions: 2, MinConfidence: 0, Sources: []string{"wire"}},
		{MaxPositions: 2, MinConfidence: 0.6},
		{MaxPositions: 2, MinConfidence: 0.6, Sources: []string{"unknown"}},
	}
	for _, cfg := range bad {
		if _, err := h.coord.Start(cfg); !errors.Is(err, domain.ErrInvalidConfiguration) {
			t.Fatalf("expected invalid configuration for %+v, got %v", cfg, err)
		}
	}
}

func TestUnknownSessionLookups(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []*stubSource{abcSource()}, abcFilter(), abcClassifier(), nil)
	if _, err := h.coord.State("missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("state: %v", err)
	}
	if err := h.coord.Cancel("missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := h.coord.Subscribe("missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := h.coord.Activity("missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("activity: %v", err)
	}
}

func TestSweepExpiresFinishedSessions(t *testing.T) {
	t.Parallel()

	var sessionClock *clock.Fake
	h := newHarness(t, []*stubSource{abcSource()}, abcFilter(), abcClassifier(), func(d *Deps) {
		d.Retention = time.Hour
		sessionClock = d.Clock.(*clock.Fake)
	})

	handle, err := h.coord.Start(abcConfig())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, h.coord, handle.ID)

	h.coord.Sweep()
	if _, err := h.coord.State(handle.ID); err != nil {
		t.Fatalf("session must survive until retention elapses: %v", err)
	}

	sessionClock.Advance(2 * time.Hour)
	h.coord.Sweep()
	if _, err := h.coord.State(handle.ID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected expired session, got %v", err)
	}
}

func TestStartAfterCloseFails(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []*stubSource{abcSource()}, abcFilter(), abcClassifier(), nil)
	if err := h.coord.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := h.coord.Start(abcConfig()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
