// Package app provides the application bootstrap and runtime orchestration.
//
// The App type wires together all dependencies and exposes methods to run
// different operational modes:
//
//   - Serve mode: cron-driven pipeline runs and retry sweeps, plus the
//     health/metrics/operator HTTP server
//   - Detect mode: one pipeline pass over all active tenants, then exit
//   - Sweep mode: one downstream retry sweep, then exit
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/leadscan/leadscan/internal/pipeline"
	"github.com/leadscan/leadscan/internal/platform/config"
	"github.com/leadscan/leadscan/internal/platform/observability"
	"github.com/leadscan/leadscan/internal/scheduler"
	db "github.com/leadscan/leadscan/internal/storage"
)

// App holds the application dependencies and provides methods to run
// different modes.
type App struct {
	cfg      *config.Config
	database *db.DB
	logger   *zerolog.Logger

	sched *scheduler.Scheduler
}

// New creates a new App instance with the given dependencies.
func New(cfg *config.Config, database *db.DB, logger *zerolog.Logger) *App {
	orchestrator := pipeline.New(cfg, database, logger)
	forwarder := scheduler.NewLogForwarder(logger)
	sched := scheduler.New(cfg, scheduler.NewDBStore(database), orchestrator, forwarder, logger)

	return &App{
		cfg:      cfg,
		database: database,
		logger:   logger,
		sched:    sched,
	}
}

// StartHealthServer starts the health check, metrics, and operator server.
// It blocks until the context is cancelled.
func (a *App) StartHealthServer(ctx context.Context) error {
	srv := observability.NewServerWithOperator(a.database, a.cfg.HealthPort, a.operatorHandler(), a.logger)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("health server start: %w", err)
	}

	return nil
}

// RunServe runs the scheduler until the context is cancelled.
func (a *App) RunServe(ctx context.Context) error {
	a.logger.Info().Msg("Starting serve mode")

	if err := a.sched.Start(ctx); err != nil {
		return fmt.Errorf("scheduler start: %w", err)
	}

	<-ctx.Done()

	a.sched.Stop()
	a.logger.Info().Msg("scheduler stopped")

	return ctx.Err()
}

// RunDetect runs one pipeline pass over all active tenants and exits.
func (a *App) RunDetect(ctx context.Context) error {
	a.logger.Info().Msg("Starting detect mode")

	if err := a.sched.RunAll(ctx); err != nil {
		return fmt.Errorf("detect run: %w", err)
	}

	return nil
}

// RunSweep runs one downstream retry sweep and exits.
func (a *App) RunSweep(ctx context.Context) error {
	a.logger.Info().Msg("Starting sweep mode")

	a.sched.Sweep(ctx)

	return nil
}
