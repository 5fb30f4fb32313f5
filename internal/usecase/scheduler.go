package usecase

import (
	"context"
	"log/slog"
	"time"

	"MarketScanner/internal/domain"
	"MarketScanner/internal/ports"
)

// SessionStarter is the part of the coordinator the scheduler needs.
type SessionStarter interface {
	Start(cfg domain.SessionConfig) (domain.SessionHandle, error)
}

// Scheduler wires the periodic driver to session starts.
type Scheduler struct {
	driver   ports.Scheduler
	starter  SessionStarter
	defaults domain.SessionConfig
	logger   *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring sessions.
func NewScheduler(driver ports.Scheduler, starter SessionStarter, defaults domain.SessionConfig, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		driver:   driver,
		starter:  starter,
		defaults: defaults.Clone(),
		logger:   logger.With("component", "scheduler"),
	}
}

// Start registers the session job with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.starter == nil {
		return nil
	}

	job := func(trigger time.Time) {
		handle, err := s.starter.Start(s.defaults.Clone())
		if err != nil {
			s.logger.Error("scheduled session not started", "trigger", trigger, "error", err)
			return
		}
		s.logger.Info("scheduled session started", "trigger", trigger, "session", handle.ID)
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
