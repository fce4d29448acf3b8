// Package scheduler drives periodic pipeline runs and the downstream retry
// sweep on cron schedules, guarded so concurrent processes never run the
// same tenant twice.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/leadscan/leadscan/internal/core/domain"
	apperrors "github.com/leadscan/leadscan/internal/core/errors"
	"github.com/leadscan/leadscan/internal/platform/config"
	"github.com/leadscan/leadscan/internal/platform/observability"
)

// sweepBatchLimit bounds one retry sweep so a backlog drains gradually.
const sweepBatchLimit = 500

// Guard is a held per-tenant run lock.
type Guard interface {
	Release(ctx context.Context) error
}

// Store is the persistence surface the scheduler needs.
type Store interface {
	ListActiveTenants(ctx context.Context) ([]domain.Tenant, error)
	GetTenant(ctx context.Context, tenantID string) (domain.Tenant, error)
	AcquireRunGuard(ctx context.Context, tenantID string) (Guard, error)
	ListPendingLeads(ctx context.Context, grace time.Duration, limit int) ([]domain.DetectedLead, error)
	SetDownstreamState(ctx context.Context, leadID string, state domain.DownstreamState) error
}

// Runner executes one pipeline run; the pipeline orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, tenant domain.Tenant) (*domain.RunLog, error)
}

// Scheduler owns the cron loop.
type Scheduler struct {
	cfg       *config.Config
	store     Store
	runner    Runner
	forwarder Forwarder
	logger    *zerolog.Logger
	cron      *cron.Cron
}

// New creates a scheduler. Cron expressions evaluate in UTC regardless of
// the host timezone.
func New(cfg *config.Config, store Store, runner Runner, forwarder Forwarder, logger *zerolog.Logger) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		store:     store,
		runner:    runner,
		forwarder: forwarder,
		logger:    logger,
		cron:      cron.New(cron.WithLocation(time.UTC)),
	}
}

// Start registers the cron jobs and begins the loop.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.cfg.PipelineCron, func() {
		if err := s.RunAll(ctx); err != nil {
			s.logger.Error().Err(err).Msg("scheduled pipeline tick failed")
		}
	}); err != nil {
		return fmt.Errorf("register pipeline cron %q: %w", s.cfg.PipelineCron, err)
	}

	if _, err := s.cron.AddFunc(s.cfg.RetryCron, func() {
		s.Sweep(ctx)
	}); err != nil {
		return fmt.Errorf("register retry cron %q: %w", s.cfg.RetryCron, err)
	}

	s.cron.Start()
	s.logger.Info().
		Str("pipeline_cron", s.cfg.PipelineCron).
		Str("retry_cron", s.cfg.RetryCron).
		Msg("scheduler started")

	return nil
}

// Stop halts the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunAll runs the pipeline for every active tenant, at most
// MaxConcurrentTenants at a time. Per-tenant failures are logged and do not
// stop the others; the returned error covers only the tenant listing.
func (s *Scheduler) RunAll(ctx context.Context) error {
	tenants, err := s.store.ListActiveTenants(ctx)
	if err != nil {
		return fmt.Errorf("list active tenants: %w", err)
	}

	eg := &errgroup.Group{}
	eg.SetLimit(s.cfg.MaxConcurrentTenants)

	for _, tenant := range tenants {
		eg.Go(func() error {
			s.runTenant(ctx, tenant)

			return nil
		})
	}

	_ = eg.Wait() //nolint:errcheck // workers log their own failures

	return nil
}

// RunTenant runs the pipeline for a single tenant, for operator triggers.
func (s *Scheduler) RunTenant(ctx context.Context, tenantID string) error {
	tenant, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("load tenant: %w", err)
	}

	if !tenant.Active {
		return fmt.Errorf("tenant %s: %w", tenantID, apperrors.ErrNotFound)
	}

	s.runTenant(ctx, tenant)

	return nil
}

// runTenant takes the tenant's run guard and executes one run. A held guard
// means another process is already on it: skip, never queue, since the next
// tick covers the same window anyway.
func (s *Scheduler) runTenant(ctx context.Context, tenant domain.Tenant) {
	guardCtx := ctx

	if s.cfg.GuardAcquireTimeout > 0 {
		var cancel context.CancelFunc

		guardCtx, cancel = context.WithTimeout(ctx, s.cfg.GuardAcquireTimeout)
		defer cancel()
	}

	guard, err := s.store.AcquireRunGuard(guardCtx, tenant.ID)
	if err != nil {
		if errors.Is(err, apperrors.ErrRunGuardHeld) {
			observability.RunsSkippedGuard.WithLabelValues(tenant.ID).Inc()
			s.logger.Info().
				Str("tenant_id", tenant.ID).
				Msg("run already in progress elsewhere, skipping")

			return
		}

		s.logger.Error().Err(err).
			Str("tenant_id", tenant.ID).
			Msg("failed to acquire run guard")

		return
	}

	defer func() {
		if err := guard.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn().Err(err).
				Str("tenant_id", tenant.ID).
				Msg("failed to release run guard")
		}
	}()

	if _, err := s.runner.Run(ctx, tenant); err != nil {
		s.logger.Error().Err(err).
			Str("tenant_id", tenant.ID).
			Msg("pipeline run failed")
	}
}

// Sweep re-hands pending leads past the grace period to the downstream
// forwarder and records the outcome per lead. Tenants may set a minimum
// confidence for delivery; leads below it are held back here rather than
// at classification, so they stay visible in storage.
func (s *Scheduler) Sweep(ctx context.Context) {
	leads, err := s.store.ListPendingLeads(ctx, s.cfg.RetryGrace, sweepBatchLimit)
	if err != nil {
		s.logger.Error().Err(err).Msg("retry sweep: listing pending leads failed")

		return
	}

	if len(leads) == 0 {
		return
	}

	s.logger.Info().Int("pending", len(leads)).Msg("retry sweep started")

	thresholds := map[string]int{}

	for _, lead := range leads {
		if ctx.Err() != nil {
			return
		}

		state := domain.DownstreamDelivered

		if lead.Confidence < s.deliveryThreshold(ctx, thresholds, lead.TenantID) {
			state = domain.DownstreamFailed

			s.logger.Warn().
				Str("lead_id", lead.ID).
				Str("tenant_id", lead.TenantID).
				Int("confidence", lead.Confidence).
				Msg("lead below tenant delivery threshold, withheld")
		} else if err := s.forwarder.Forward(ctx, lead); err != nil {
			state = domain.DownstreamFailed

			s.logger.Warn().Err(err).
				Str("lead_id", lead.ID).
				Str("tenant_id", lead.TenantID).
				Msg("downstream forward failed")
		}

		observability.RetrySweepHandled.WithLabelValues(string(state)).Inc()

		if err := s.store.SetDownstreamState(ctx, lead.ID, state); err != nil {
			s.logger.Error().Err(err).
				Str("lead_id", lead.ID).
				Msg("failed to update downstream state")
		}
	}
}

// deliveryThreshold resolves a tenant's minimum delivery confidence, caching
// lookups for the duration of one sweep. A failed lookup yields zero: leads
// still go out rather than stall on a transient tenant read.
func (s *Scheduler) deliveryThreshold(ctx context.Context, cache map[string]int, tenantID string) int {
	if threshold, ok := cache[tenantID]; ok {
		return threshold
	}

	threshold := 0

	tenant, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("tenant_id", tenantID).
			Msg("tenant lookup failed during sweep, delivering unfiltered")
	} else {
		threshold = tenant.DownstreamMinConfidence
	}

	cache[tenantID] = threshold

	return threshold
}
