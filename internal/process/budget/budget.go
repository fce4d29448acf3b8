// Package budget tracks per-tenant LLM spend against a monthly cap.
//
// The ledger is append-only: recording usage never rejects, even past the
// cap, so accounting stays truthful. Enforcement happens before spend, via
// Remaining and the run planner.
package budget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/leadscan/leadscan/internal/core/domain"
	"github.com/leadscan/leadscan/internal/platform/observability"
)

// Store is the persistence surface the ledger needs.
type Store interface {
	AppendUsage(ctx context.Context, rec *domain.UsageRecord) error
	MonthlySpend(ctx context.Context, tenantID string) (decimal.Decimal, error)
}

// Ledger enforces a tenant's monthly budget and accumulates the run's spend.
type Ledger struct {
	store  Store
	logger *zerolog.Logger

	mu       sync.Mutex
	runSpend decimal.Decimal
	dropped  int
}

// NewLedger creates a ledger backed by the given store.
func NewLedger(store Store, logger *zerolog.Logger) *Ledger {
	return &Ledger{store: store, logger: logger}
}

// Remaining returns the tenant's unspent budget for the current UTC calendar
// month. Usage rows are persisted as they happen, so mid-run checks see the
// run's own spend.
func (l *Ledger) Remaining(ctx context.Context, tenant domain.Tenant) (decimal.Decimal, error) {
	spent, err := l.store.MonthlySpend(ctx, tenant.ID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("remaining budget: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	remaining := tenant.MonthlyBudgetCap.Sub(spent)

	observability.BudgetRemaining.WithLabelValues(tenant.ID).
		Set(remaining.InexactFloat64())

	return remaining, nil
}

// CanAfford reports whether the tenant's remaining budget covers an
// estimated cost. A remainder exactly equal to the estimate still affords it.
func (l *Ledger) CanAfford(ctx context.Context, tenant domain.Tenant, estimate decimal.Decimal) (bool, error) {
	remaining, err := l.Remaining(ctx, tenant)
	if err != nil {
		return false, err
	}

	return remaining.GreaterThanOrEqual(estimate), nil
}

// Record appends one usage entry. A failed write is logged and counted but
// never propagated: losing an accounting row must not fail the pipeline.
func (l *Ledger) Record(ctx context.Context, rec *domain.UsageRecord) {
	if rec.At.IsZero() {
		rec.At = time.Now().UTC()
	}

	l.mu.Lock()
	l.runSpend = l.runSpend.Add(rec.CostUSD)
	l.mu.Unlock()

	observability.LLMCostMillicents.WithLabelValues(rec.TenantID, rec.Model).
		Add(rec.CostUSD.Mul(decimal.NewFromInt(100000)).InexactFloat64())

	if err := l.store.AppendUsage(ctx, rec); err != nil {
		l.mu.Lock()
		l.dropped++
		l.mu.Unlock()

		l.logger.Error().Err(err).
			Str("tenant_id", rec.TenantID).
			Str("model", rec.Model).
			Str("cost_usd", rec.CostUSD.String()).
			Msg("failed to persist usage record")
	}
}

// RunSpend returns the total cost recorded through this ledger instance.
func (l *Ledger) RunSpend() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.runSpend
}

// DroppedRecords returns how many usage rows failed to persist.
func (l *Ledger) DroppedRecords() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.dropped
}
