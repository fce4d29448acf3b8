// Package pipeline orchestrates one lead detection run for one tenant:
// fetch, pre-filter, budget planning, two-stage classification, dedup, and
// persistence, finalized by a run log.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/leadscan/leadscan/internal/core/domain"
	apperrors "github.com/leadscan/leadscan/internal/core/errors"
	"github.com/leadscan/leadscan/internal/core/llm"
	"github.com/leadscan/leadscan/internal/platform/config"
	"github.com/leadscan/leadscan/internal/platform/observability"
	"github.com/leadscan/leadscan/internal/process/budget"
	"github.com/leadscan/leadscan/internal/process/dedup"
	"github.com/leadscan/leadscan/internal/process/planner"
	"github.com/leadscan/leadscan/internal/process/prefilter"
	db "github.com/leadscan/leadscan/internal/storage"
)

// Store is the persistence surface one run needs.
type Store interface {
	FetchRecent(ctx context.Context, window time.Duration, opts db.FetchOptions) ([]domain.Message, error)
	InsertLead(ctx context.Context, lead *domain.DetectedLead, dedupWindow time.Duration) error
	HasRecentLead(ctx context.Context, tenantID, senderKey string, window time.Duration) (bool, error)
	InsertRunLog(ctx context.Context, rl *domain.RunLog) error
	AppendUsage(ctx context.Context, rec *domain.UsageRecord) error
	MonthlySpend(ctx context.Context, tenantID string) (decimal.Decimal, error)
}

// Orchestrator runs the detection pipeline. One instance serves all tenants;
// per-run state lives on the stack of Run.
type Orchestrator struct {
	cfg    *config.Config
	store  Store
	logger *zerolog.Logger
}

// New creates an orchestrator.
func New(cfg *config.Config, store Store, logger *zerolog.Logger) *Orchestrator {
	return &Orchestrator{cfg: cfg, store: store, logger: logger}
}

// Run executes one detection run for the tenant and persists its run log.
// The run log is written even when the run is cut short by the timeout or a
// cancellation; only the run log write itself can fail the call.
func (o *Orchestrator) Run(ctx context.Context, tenant domain.Tenant) (*domain.RunLog, error) {
	runID := uuid.NewString()
	started := time.Now().UTC()

	logger := o.logger.With().Str("tenant_id", tenant.ID).Str("run_id", runID).Logger()

	runCtx := ctx

	if o.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc

		runCtx, cancel = context.WithTimeout(ctx, o.cfg.RunTimeout)
		defer cancel()
	}

	stats := newRunStats(o.cfg.RunErrorsCap)

	o.execute(runCtx, tenant, runID, &logger, stats)

	// Usage records are appended synchronously by the workers, so once
	// execute returns the ledger has drained and the totals are final.
	rl := stats.runLog(runID, tenant.ID, started)

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		rl.Errors = append(rl.Errors, "run timed out")
		observability.RunsTotal.WithLabelValues(tenant.ID, "timeout").Inc()
	case runCtx.Err() != nil:
		rl.Errors = append(rl.Errors, "run cancelled")
		observability.RunsTotal.WithLabelValues(tenant.ID, "cancelled").Inc()
	case len(rl.Errors) > 0:
		observability.RunsTotal.WithLabelValues(tenant.ID, "partial").Inc()
	default:
		observability.RunsTotal.WithLabelValues(tenant.ID, "ok").Inc()
	}

	observability.RunDurationSeconds.Observe(rl.FinishedAt.Sub(rl.StartedAt).Seconds())

	// The run context may be dead; the log still has to land.
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := o.store.InsertRunLog(logCtx, rl); err != nil {
		return rl, fmt.Errorf("persist run log: %w", err)
	}

	logger.Info().
		Int("fetched", rl.Fetched).
		Int("prefiltered", rl.Prefiltered).
		Int("classified", rl.Classified).
		Int("leads", rl.Leads).
		Int("deduplicated", rl.Deduplicated).
		Int("budget_skipped", rl.BudgetSkipped).
		Int("failed", rl.Failed).
		Str("cost_usd", rl.CostUSD.String()).
		Msg("run finished")

	return rl, nil
}

func (o *Orchestrator) execute(ctx context.Context, tenant domain.Tenant, runID string, logger *zerolog.Logger, stats *runStats) {
	// A tenant without credentials or criteria cannot classify anything;
	// the run is skipped before any fetch or spend.
	if tenant.APICredentials == "" || tenant.CriteriaText == "" {
		stats.addError(fmt.Errorf("tenant %s is missing credentials or criteria: %w", tenant.ID, apperrors.ErrInvalidConfig))

		return
	}

	messages, err := o.store.FetchRecent(ctx, o.cfg.FetchWindow, db.FetchOptions{
		PageSize:    o.cfg.FetchPageSize,
		SafetyLimit: o.cfg.FetchSafetyLimit,
	})
	if err != nil {
		stats.addError(fmt.Errorf("fetch messages: %w", err))

		return
	}

	stats.setFetched(len(messages))
	observability.MessagesFetched.WithLabelValues(tenant.ID).Add(float64(len(messages)))

	filter := prefilter.New(tenant.CriteriaText)
	passed := make([]domain.Message, 0, len(messages))

	for _, m := range messages {
		ok, reason := filter.Check(m)
		if !ok {
			stats.drop(reason)

			continue
		}

		passed = append(passed, m)
	}

	stats.setPrefiltered(len(passed))

	if len(passed) == 0 {
		return
	}

	// A zero cap means the tenant was created without one; the process
	// default applies. Tenants that must not spend are deactivated instead.
	if tenant.MonthlyBudgetCap.IsZero() {
		if defaultCap, err := decimal.NewFromString(o.cfg.DefaultMonthlyCapUSD); err == nil {
			tenant.MonthlyBudgetCap = defaultCap
		}
	}

	ledger := budget.NewLedger(o.store, logger)

	remaining, err := ledger.Remaining(ctx, tenant)
	if err != nil {
		stats.addError(fmt.Errorf("budget check: %w", err))

		return
	}

	plan := planner.Build(len(passed), remaining, o.perMessageEstimate(), o.cfg.BatchSize)

	if plan.ToSkip > 0 {
		logger.Warn().
			Int("to_skip", plan.ToSkip).
			Str("remaining_usd", remaining.String()).
			Bool("exhausted", plan.Exhausted).
			Msg("budget limits this run")

		stats.addBudgetSkipped(plan.ToSkip)
	}

	if plan.Exhausted {
		stats.addError(apperrors.ErrBudgetExhausted)
	}

	if plan.ToProcess == 0 {
		return
	}

	if tenant.SmartMinConfidence <= 0 {
		tenant.SmartMinConfidence = o.cfg.SmartMinConfidence
	}

	caller := llm.NewCaller(o.cfg, tenant.APICredentials, logger)
	classifier := llm.NewClassifier(caller, o.cfg.LLMModel, tenant.ID, runID, ledger, logger)
	verifier := llm.NewVerifier(caller, o.cfg.LLMVerifierModel, tenant, runID, ledger, logger)
	deduper := dedup.New(o.store, o.cfg.DedupWindow, logger)

	o.processBatches(ctx, tenant, passed[:plan.ToProcess], plan.BatchSize, classifier, verifier, deduper, logger, stats)

	stats.setCost(ledger.RunSpend())

	// A lost cost record breaks the accounting guarantee; the run log has to
	// say so in the strongest terms available.
	if dropped := ledger.DroppedRecords(); dropped > 0 {
		stats.addError(fmt.Errorf("%d usage records failed to persist: %w", dropped, apperrors.ErrFatal))
	}
}

func (o *Orchestrator) processBatches(
	ctx context.Context,
	tenant domain.Tenant,
	messages []domain.Message,
	batchSize int,
	classifier *llm.Classifier,
	verifier *llm.Verifier,
	deduper *dedup.Deduper,
	logger *zerolog.Logger,
	stats *runStats,
) {
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(o.cfg.WorkerConcurrency)

	for start := 0; start < len(messages); start += batchSize {
		batch := messages[start:min(start+batchSize, len(messages))]

		eg.Go(func() error {
			if egCtx.Err() != nil {
				stats.addFailed(len(batch))

				return nil //nolint:nilerr // remaining batches are counted, not aborted
			}

			verdicts := classifier.ClassifyBatch(egCtx, tenant.CriteriaText, batch)

			// Calls in flight at cancellation complete and get billed, but
			// their verdicts are discarded.
			if egCtx.Err() != nil {
				stats.addFailed(len(batch))

				return nil
			}

			for i, verdict := range verdicts {
				o.handleVerdict(egCtx, tenant, batch[i], verdict, verifier, deduper, logger, stats)
			}

			return nil
		})
	}

	// Workers never return errors; Wait is for draining.
	_ = eg.Wait() //nolint:errcheck
}

func (o *Orchestrator) handleVerdict(
	ctx context.Context,
	tenant domain.Tenant,
	m domain.Message,
	verdict domain.Verdict,
	verifier *llm.Verifier,
	deduper *dedup.Deduper,
	logger *zerolog.Logger,
	stats *runStats,
) {
	switch v := verdict.(type) {
	case domain.Failed:
		stats.addFailed(1)
		stats.addError(fmt.Errorf("message %s: %w", m.ID, v.Err))
		observability.PipelineProcessed.WithLabelValues(tenant.ID, "failed").Inc()

		return
	case domain.NoMatch:
		// A negative is still a completed classification.
		stats.addClassified(1)
		stats.drop(domain.RejectStage1)
		observability.PipelineProcessed.WithLabelValues(tenant.ID, "rejected").Inc()

		return
	case domain.Match:
		stats.addClassified(1)

		if v.Confidence < o.cfg.AcceptMinConfidence {
			stats.drop(domain.RejectStage1)

			return
		}

		candidate := domain.LeadCandidate{Message: m, Verdict: v}

		if verifier.ShouldVerify(candidate) {
			adjusted, survived := verifier.Verify(ctx, tenant.CriteriaText, candidate)
			if !survived {
				stats.drop(domain.RejectStage2)

				return
			}

			candidate.Verdict = adjusted

			if candidate.Verdict.Confidence < o.cfg.AcceptMinConfidence {
				stats.drop(domain.RejectStage2)

				return
			}
		}

		stats.addVerified(1)

		o.persist(ctx, tenant, candidate, deduper, logger, stats)
	}
}

func (o *Orchestrator) persist(
	ctx context.Context,
	tenant domain.Tenant,
	c domain.LeadCandidate,
	deduper *dedup.Deduper,
	logger *zerolog.Logger,
	stats *runStats,
) {
	fingerprint := prefilter.Fingerprint(c.Message.Text)
	senderKey := domain.SenderKey(c.Message, fingerprint)

	if deduper.IsDuplicate(ctx, tenant.ID, senderKey) {
		stats.drop(domain.RejectDuplicate)

		return
	}

	lead := &domain.DetectedLead{
		ID:              uuid.NewString(),
		TenantID:        tenant.ID,
		MessageID:       c.Message.ID,
		Confidence:      c.Verdict.Confidence,
		Rationale:       c.Verdict.Rationale,
		MatchedCriteria: c.Verdict.MatchedCriteria,
		Fingerprint:     fingerprint,
		SenderKey:       senderKey,
		DetectedAt:      time.Now().UTC(),
		DownstreamState: domain.DownstreamPending,
	}

	if err := o.store.InsertLead(ctx, lead, deduper.Window()); err != nil {
		if errors.Is(err, apperrors.ErrWriterConflict) {
			// Lost the race to a concurrent run; same outcome as dedup.
			stats.drop(domain.RejectWriterConflict)

			return
		}

		stats.addFailed(1)
		stats.addError(fmt.Errorf("persist lead for message %s: %w", c.Message.ID, err))

		return
	}

	stats.addLead()
	observability.LeadsPersisted.WithLabelValues(tenant.ID).Inc()
	observability.PipelineProcessed.WithLabelValues(tenant.ID, "lead").Inc()

	logger.Info().
		Str("message_id", c.Message.ID).
		Str("sender_key", senderKey).
		Int("confidence", c.Verdict.Confidence).
		Msg("lead detected")
}

func (o *Orchestrator) perMessageEstimate() decimal.Decimal {
	est, err := decimal.NewFromString(o.cfg.PerMessageCostUSD)
	if err != nil {
		return decimal.RequireFromString("0.01")
	}

	return est
}
