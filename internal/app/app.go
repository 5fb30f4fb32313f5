package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"MarketScanner/internal/activity"
	"MarketScanner/internal/broadcast"
	"MarketScanner/internal/classify"
	"MarketScanner/internal/clock"
	"MarketScanner/internal/config"
	"MarketScanner/internal/domain"
	"MarketScanner/internal/fetcher"
	"MarketScanner/internal/filter"
	"MarketScanner/internal/httpapi"
	"MarketScanner/internal/infrastructure/llm"
	"MarketScanner/internal/infrastructure/ml"
	"MarketScanner/internal/infrastructure/parser"
	"MarketScanner/internal/infrastructure/scheduler"
	"MarketScanner/internal/infrastructure/storage"
	"MarketScanner/internal/infrastructure/telegram"
	"MarketScanner/internal/llmcall"
	"MarketScanner/internal/logging"
	"MarketScanner/internal/ports"
	"MarketScanner/internal/ratelimit"
	"MarketScanner/internal/report"
	"MarketScanner/internal/retry"
	"MarketScanner/internal/usecase"
)

const shutdownTimeout = 15 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg         config.Config
	logger      *slog.Logger
	coordinator *usecase.Coordinator
	scheduler   *usecase.Scheduler
	server      *http.Server
	closers     []func(context.Context) error
}

// New builds every adapter and the session coordinator. Nothing is started
// until Run.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	a := &Application{cfg: cfg, logger: baseLogger}
	clk := clock.Real()

	windows, err := a.windowStore(ctx)
	if err != nil {
		return nil, err
	}
	limiter := ratelimit.NewLimiter(windows, clk, budget(cfg.Fetcher.RateLimit, ratelimit.DefaultBudget()),
		domainBudgets(cfg.Fetcher.Domains), baseLogger.With("component", "ratelimit"))

	httpClient := &http.Client{Timeout: cfg.Fetcher.Timeout}
	var robots *fetcher.RobotsChecker
	if cfg.Fetcher.RespectRobots {
		robots = fetcher.NewRobotsChecker(httpClient, cfg.Fetcher.UserAgent, clk, baseLogger.With("component", "robots"))
	}
	policy := fetcher.NewCrawlPolicy(parser.DisallowRules(cfg.Sources), robots)
	fetch := fetcher.New(limiter, retry.New(retryPolicy(cfg.Fetcher.Retry), clk), policy, cfg.Fetcher.MaxPages,
		baseLogger.With("component", "fetcher"))
	registry := parser.BuildRegistry(cfg.Sources, cfg.Fetcher, httpClient, baseLogger.With("component", "sources"))

	completion, err := completionClient(cfg)
	if err != nil {
		return nil, err
	}
	caller := llmcall.New(completion, retry.New(retryPolicy(cfg.Classifier.Retry), clk), baseLogger.With("component", "llm"))

	store, err := a.store(ctx)
	if err != nil {
		return nil, err
	}
	sinks := []activity.Sink{}
	if _, ok := store.(storage.Discard); !ok {
		sinks = append(sinks, activity.NewStoreSink(store))
	}
	if dir := cfg.Sessions.ActivityDir; dir != "" {
		sinks = append(sinks, activity.NewJSONLSink(dir))
	}

	defaults := sessionDefaults(cfg, registry.Has)
	a.coordinator = usecase.NewCoordinator(usecase.Deps{
		Sources:      registry,
		Fetcher:      fetch,
		Filter:       filter.New(caller, cfg.LLM.MaxTokens),
		Pool:         classify.NewPool(cfg.Classifier.Workers, classify.NewLLMClassifier(caller, cfg.LLM.MaxTokens)),
		Reporter:     report.New(caller, cfg.LLM.MaxTokens, clk, baseLogger.With("component", "report")),
		Broadcaster:  broadcast.New(cfg.Sessions.HistorySize, cfg.Sessions.SubscriberBuffer, baseLogger.With("component", "broadcast")),
		Recorder:     activity.New(clk, baseLogger.With("component", "activity"), sinks...),
		Store:        store,
		Notifier:     a.notifier(),
		Clock:        clk,
		Logger:       baseLogger,
		DefaultModel: cfg.LLM.Model,
		Retention:    cfg.Sessions.Retention,
	})

	if cfg.Scheduler.Enabled {
		driver := scheduler.NewIntervalScheduler(cfg.Scheduler.Interval, cfg.Scheduler.Location(), clk, false)
		a.scheduler = usecase.NewScheduler(driver, a.coordinator, defaults, baseLogger)
	}

	if !strings.EqualFold(cfg.Logging.Level, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := httpapi.NewSessionHandler(a.coordinator, defaults, baseLogger.With("component", "http"))
	a.server = &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httpapi.NewRouter(handler, cfg.HTTP.AllowedOrigins, baseLogger.With("component", "http")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	baseLogger.Info("application ready",
		"sources", strings.Join(registry.Names(), ","),
		"llm_provider", cfg.LLM.Provider,
		"model", cfg.LLM.Model,
		"workers", cfg.Classifier.Workers,
	)
	return a, nil
}

// Coordinator exposes the session coordinator.
func (a *Application) Coordinator() *usecase.Coordinator {
	return a.coordinator
}

// Run serves the HTTP API and the scheduler until ctx is cancelled, then
// shuts everything down in reverse order.
func (a *Application) Run(ctx context.Context) error {
	if a.scheduler != nil {
		if err := a.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			runErr = fmt.Errorf("serve http: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return errors.Join(runErr, a.shutdown(shutdownCtx))
}

func (a *Application) shutdown(ctx context.Context) error {
	var errs []error
	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown http: %w", err))
	}
	if a.scheduler != nil {
		if err := a.scheduler.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
		}
	}
	if err := a.coordinator.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.logger.Info("application stopped")
	return errors.Join(errs...)
}

func (a *Application) windowStore(ctx context.Context) (ratelimit.WindowStore, error) {
	if a.cfg.Redis.URL == "" {
		return ratelimit.NewMemoryStore(), nil
	}
	opts, err := redis.ParseURL(a.cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		a.logger.Warn("redis unavailable, using in-process rate limit windows", "error", err)
		return ratelimit.NewMemoryStore(), nil
	}
	a.closers = append(a.closers, func(context.Context) error { return client.Close() })
	return ratelimit.NewRedisStore(client, a.cfg.Redis.KeyPrefix), nil
}

func (a *Application) store(ctx context.Context) (ports.Store, error) {
	if a.cfg.Database.DSN == "" {
		return storage.Discard{}, nil
	}
	sqlStore, err := storage.Open(ctx, a.cfg.Database.Driver, a.cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	async := storage.NewAsync(sqlStore, a.cfg.Sessions.PersistQueue, a.logger)
	a.closers = append(a.closers,
		func(context.Context) error { return sqlStore.Close() },
		async.Close,
	)
	return async, nil
}

func (a *Application) notifier() ports.Notifier {
	tg := a.cfg.Notifications.Telegram
	if tg.BotToken == "" || tg.ChatID == "" {
		return nil
	}
	n, err := telegram.NewNotifier(tg.BotToken, tg.ChatID, "", nil)
	if err != nil {
		a.logger.Warn("telegram notifier disabled", "error", err)
		return nil
	}
	return n
}

func completionClient(cfg config.Config) (ports.CompletionClient, error) {
	switch strings.ToLower(cfg.LLM.Provider) {
	case "", "openai":
		return llm.NewOpenAIClient(cfg.LLM.OpenAIKey, cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.MaxTokens, cfg.LLM.Timeout), nil
	case "anthropic":
		return llm.NewAnthropicClient(cfg.LLM.AnthropicKey, cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.MaxTokens, cfg.LLM.Timeout), nil
	case "http":
		if cfg.ML.InferenceURL == "" {
			return nil, fmt.Errorf("%w: llm provider http needs ml.inferenceUrl", domain.ErrInvalidConfiguration)
		}
		return ml.NewClient(cfg.ML.InferenceURL, cfg.ML.APIKey, cfg.LLM.Model, cfg.LLM.Timeout), nil
	default:
		return nil, fmt.Errorf("%w: unknown llm provider %q", domain.ErrInvalidConfiguration, cfg.LLM.Provider)
	}
}

func retryPolicy(rc config.RetryConfig) retry.Policy {
	p := retry.Default()
	if rc.MaxAttempts > 0 {
		p.MaxAttempts = rc.MaxAttempts
	}
	if rc.Base > 0 {
		p.Base = rc.Base
	}
	if rc.Max > 0 {
		p.Max = rc.Max
	}
	if rc.Jitter >= 0 {
		p.Jitter = rc.Jitter
	}
	return p
}

func budget(rc config.RateLimitConfig, fallback ratelimit.Budget) ratelimit.Budget {
	if rc.Limit <= 0 || rc.Window <= 0 {
		return fallback
	}
	return ratelimit.Budget{Limit: rc.Limit, Window: rc.Window}
}

func domainBudgets(domains map[string]config.RateLimitConfig) map[string]ratelimit.Budget {
	out := make(map[string]ratelimit.Budget, len(domains))
	for host, rc := range domains {
		if rc.Limit > 0 && rc.Window > 0 {
			out[strings.ToLower(host)] = ratelimit.Budget{Limit: rc.Limit, Window: rc.Window}
		}
	}
	return out
}

// sessionDefaults builds the config used by the scheduler and by requests
// that omit fields. Only registered sources are kept.
func sessionDefaults(cfg config.Config, registered func(string) bool) domain.SessionConfig {
	d := cfg.Sessions.Defaults
	out := domain.SessionConfig{
		MaxPositions:  d.MaxPositions,
		MinConfidence: d.MinConfidence,
		Model:         d.Model,
	}
	if out.Model == "" {
		out.Model = cfg.LLM.Model
	}
	names := d.Sources
	if len(names) == 0 {
		names = cfg.SourceNames()
	}
	for _, name := range names {
		if registered(name) {
			out.Sources = append(out.Sources, name)
		}
	}
	return out
}
