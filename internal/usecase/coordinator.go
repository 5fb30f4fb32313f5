package usecase

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"MarketScanner/internal/activity"
	"MarketScanner/internal/broadcast"
	"MarketScanner/internal/classify"
	"MarketScanner/internal/clock"
	"MarketScanner/internal/domain"
	"MarketScanner/internal/fetcher"
	"MarketScanner/internal/ports"
)

// ErrClosed is returned by Start once the coordinator is shutting down.
var ErrClosed = errors.New("coordinator closed")

// SourceResolver maps configured source names to connectors.
type SourceResolver interface {
	Resolve(name string) (ports.SourceConnector, error)
	Has(name string) bool
}

// HeadlineFetcher performs rate-limited, policy-checked source requests.
type HeadlineFetcher interface {
	FetchHeadlines(ctx context.Context, conn ports.SourceConnector, dedupe *fetcher.Dedupe) iter.Seq2[domain.Candidate, error]
	FetchBody(ctx context.Context, conn ports.SourceConnector, candidate domain.Candidate) (string, error)
}

// RelevanceFilter narrows headlines down to tradeable ones.
type RelevanceFilter interface {
	Select(ctx context.Context, model string, candidates []domain.Candidate) ([]domain.Candidate, error)
}

// ClassificationPool classifies a batch of articles concurrently.
type ClassificationPool interface {
	Run(ctx context.Context, reqs []classify.Request, onResult func(int, classify.Outcome)) error
}

// SummaryWriter produces the closing document of a session.
type SummaryWriter interface {
	Generate(ctx context.Context, sessionID, model string, positions []domain.Position, articles []domain.ClassifiedArticle) domain.MarketSummary
}

// Deps wires the pipeline stages and observers into the coordinator.
type Deps struct {
	Sources     SourceResolver
	Fetcher     HeadlineFetcher
	Filter      RelevanceFilter
	Pool        ClassificationPool
	Reporter    SummaryWriter
	Broadcaster *broadcast.Broadcaster
	Recorder    *activity.Recorder
	Store       ports.Store
	Notifier    ports.Notifier
	Clock       clock.Clock
	Logger      *slog.Logger
	// DefaultModel fills SessionConfig.Model when a caller leaves it empty.
	DefaultModel string
	// Retention is how long finished sessions stay queryable; zero keeps them forever.
	Retention time.Duration
}

type entry struct {
	mu      sync.Mutex
	session domain.Session
	seq     uint64
	cancel  context.CancelCauseFunc
	done    chan struct{}
}

func (e *entry) snapshot() domain.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Clone()
}

// Coordinator owns session lifecycles: it allocates sessions, runs each
// pipeline on its own goroutine and fans progress out to observers.
type Coordinator struct {
	deps   Deps
	clock  clock.Clock
	logger *slog.Logger

	baseCtx    context.Context
	baseCancel context.CancelCauseFunc

	mu       sync.RWMutex
	sessions map[string]*entry
	closed   bool

	wg        sync.WaitGroup
	stopSweep chan struct{}
	sweepDone chan struct{}
}

// NewCoordinator builds a coordinator and starts the retention sweeper.
func NewCoordinator(deps Deps) *Coordinator {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Broadcaster == nil {
		deps.Broadcaster = broadcast.New(0, 0, deps.Logger)
	}
	if deps.Recorder == nil {
		deps.Recorder = activity.New(deps.Clock, deps.Logger)
	}

	baseCtx, baseCancel := context.WithCancelCause(context.Background())
	c := &Coordinator{
		deps:       deps,
		clock:      deps.Clock,
		logger:     deps.Logger.With("component", "coordinator"),
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
		sessions:   make(map[string]*entry),
		stopSweep:  make(chan struct{}),
		sweepDone:  make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Start validates cfg, registers a pending session and launches its pipeline.
// It returns before any scraping happens.
func (c *Coordinator) Start(cfg domain.SessionConfig) (domain.SessionHandle, error) {
	cfg = cfg.Clone()
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = c.deps.DefaultModel
	}
	if err := cfg.Validate(); err != nil {
		return domain.SessionHandle{}, err
	}
	if cfg.Model == "" {
		return domain.SessionHandle{}, fmt.Errorf("%w: model is required", domain.ErrInvalidConfiguration)
	}
	for _, name := range cfg.Sources {
		if c.deps.Sources == nil || !c.deps.Sources.Has(name) {
			return domain.SessionHandle{}, fmt.Errorf("%w: unknown source %q", domain.ErrInvalidConfiguration, name)
		}
	}

	ctx, cancel := context.WithCancelCause(c.baseCtx)
	e := &entry{
		session: domain.Session{
			ID:        uuid.NewString(),
			State:     domain.StatePending,
			Config:    cfg,
			CreatedAt: c.clock.Now(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel(ErrClosed)
		return domain.SessionHandle{}, ErrClosed
	}
	c.sessions[e.session.ID] = e
	c.wg.Add(1)
	c.mu.Unlock()

	c.emit(ctx, e, domain.StatePending, 0, "session created", nil)
	c.logger.Info("session started", "session", e.session.ID, "sources", strings.Join(cfg.Sources, ","))

	go func() {
		defer c.wg.Done()
		c.run(ctx, e)
	}()

	return domain.SessionHandle{ID: e.session.ID, State: domain.StatePending, CreatedAt: e.session.CreatedAt}, nil
}

// Cancel asks a running session to stop. It is idempotent and a no-op for
// sessions that already finished.
func (c *Coordinator) Cancel(id string) error {
	e, err := c.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	terminal := e.session.State.Terminal()
	e.mu.Unlock()
	if !terminal {
		e.cancel(domain.ErrCancelled)
	}
	return nil
}

// State returns a snapshot of the session.
func (c *Coordinator) State(id string) (domain.Session, error) {
	e, err := c.lookup(id)
	if err != nil {
		return domain.Session{}, err
	}
	return e.snapshot(), nil
}

// Subscribe streams the session's progress events, replaying retained history.
func (c *Coordinator) Subscribe(id string) (*broadcast.Subscription, error) {
	if _, err := c.lookup(id); err != nil {
		return nil, err
	}
	return c.deps.Broadcaster.Subscribe(id), nil
}

// Activity returns the session's audit trail.
func (c *Coordinator) Activity(id string) ([]domain.LogEntry, error) {
	if _, err := c.lookup(id); err != nil {
		return nil, err
	}
	return c.deps.Recorder.Entries(id), nil
}

// Done is closed once the session reaches a terminal state.
func (c *Coordinator) Done(id string) (<-chan struct{}, error) {
	e, err := c.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.done, nil
}

// Close cancels running sessions and waits for them to finish or ctx to expire.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.stopSweep)
	c.baseCancel(domain.ErrCancelled)

	finished := make(chan struct{})
	go func() {
		c.wg.Wait()
		<-c.sweepDone
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("close coordinator: %w", ctx.Err())
	}
}

// Sweep drops sessions that finished more than the retention period ago.
func (c *Coordinator) Sweep() int {
	if c.deps.Retention <= 0 {
		return 0
	}
	cutoff := c.clock.Now().Add(-c.deps.Retention)

	var expired []string
	c.mu.Lock()
	for id, e := range c.sessions {
		e.mu.Lock()
		done := e.session.CompletedAt
		e.mu.Unlock()
		if done != nil && !done.After(cutoff) {
			expired = append(expired, id)
			delete(c.sessions, id)
		}
	}
	c.mu.Unlock()

	for _, id := range expired {
		c.deps.Broadcaster.Forget(id)
		c.deps.Recorder.Forget(id)
	}
	if len(expired) > 0 {
		c.logger.Debug("expired sessions", "count", len(expired))
	}
	return len(expired)
}

func (c *Coordinator) sweepLoop() {
	defer close(c.sweepDone)
	if c.deps.Retention <= 0 {
		<-c.stopSweep
		return
	}
	interval := max(c.deps.Retention/4, time.Second)
	for {
		select {
		case <-c.clock.After(interval):
			c.Sweep()
		case <-c.stopSweep:
			return
		}
	}
}

func (c *Coordinator) lookup(id string) (*entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	return e, nil
}

// emit moves the session to stage (if it differs from the current state),
// raises progress and publishes the next event in sequence.
func (c *Coordinator) emit(ctx context.Context, e *entry, stage domain.Stage, progress int, message string, payload any) bool {
	e.mu.Lock()
	if stage != e.session.State {
		if err := domain.ValidateTransition(e.session.State, stage); err != nil {
			e.mu.Unlock()
			c.logger.Error("rejected transition", "session", e.session.ID, "error", err)
			return false
		}
		e.session.State = stage
	}
	if progress > e.session.Progress {
		e.session.Progress = progress
	}
	e.seq++
	ev := domain.ProgressEvent{
		SessionID: e.session.ID,
		Sequence:  e.seq,
		Stage:     stage,
		Progress:  e.session.Progress,
		Message:   message,
		Payload:   payload,
		At:        c.clock.Now(),
	}
	c.deps.Broadcaster.Publish(ev)
	e.mu.Unlock()

	c.deps.Recorder.OnEvent(context.WithoutCancel(ctx), ev)
	return true
}

// record appends a non-progress entry to the session's audit trail.
func (c *Coordinator) record(ctx context.Context, id string, stage domain.Stage, level domain.LogLevel, action, message string, detail map[string]string) {
	c.deps.Recorder.Record(context.WithoutCancel(ctx), domain.LogEntry{
		SessionID: id,
		Stage:     stage,
		Level:     level,
		Action:    action,
		Message:   message,
		Detail:    detail,
	})
}

func (c *Coordinator) complete(ctx context.Context, e *entry, positions []domain.Position, summary domain.MarketSummary) {
	now := c.clock.Now()
	e.mu.Lock()
	e.session.Positions = positions
	e.session.Summary = &summary
	e.session.CompletedAt = &now
	e.mu.Unlock()

	payload := make([]domain.Position, len(positions))
	for i, p := range positions {
		payload[i] = p.Clone()
	}
	c.emit(ctx, e, domain.StateCompleted, 100, fmt.Sprintf("completed with %d position(s)", len(positions)), payload)
	c.finish(e)
	c.notify(e.session.ID, summary, positions)
}

func (c *Coordinator) fail(ctx context.Context, e *entry, err error) {
	var sessErr *domain.SessionError
	if !errors.As(err, &sessErr) {
		sessErr = &domain.SessionError{Kind: domain.Classify(err), Message: err.Error()}
	}

	now := c.clock.Now()
	e.mu.Lock()
	e.session.Error = sessErr
	e.session.Positions = nil
	e.session.CompletedAt = &now
	id := e.session.ID
	e.mu.Unlock()

	c.logger.Warn("session failed", "session", id, "kind", sessErr.Kind, "error", sessErr.Message)
	c.emit(ctx, e, domain.StateFailed, 0, sessErr.Message, *sessErr)
	c.finish(e)
}

func (c *Coordinator) cancelled(ctx context.Context, e *entry) {
	now := c.clock.Now()
	e.mu.Lock()
	e.session.Positions = nil
	e.session.Summary = nil
	e.session.CompletedAt = &now
	id := e.session.ID
	e.mu.Unlock()

	c.logger.Info("session cancelled", "session", id)
	c.emit(ctx, e, domain.StateCancelled, 0, "session cancelled", nil)
	c.finish(e)
}

func (c *Coordinator) finish(e *entry) {
	c.deps.Broadcaster.Close(e.session.ID)
	e.cancel(nil)
	close(e.done)
}

func (c *Coordinator) notify(id string, summary domain.MarketSummary, positions []domain.Position) {
	if c.deps.Notifier == nil {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.deps.Notifier.PublishSession(ctx, summary, positions); err != nil {
			c.logger.Warn("notify session failed", "session", id, "error", err)
		}
	}()
}
