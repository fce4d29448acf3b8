package db

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/leadscan/leadscan/internal/core/domain"
)

// AppendUsage records a single LLM call for budget accounting. Callers treat
// failures here as log-and-continue: losing a usage row must never fail a run.
func (db *DB) AppendUsage(ctx context.Context, rec *domain.UsageRecord) error {
	_, err := db.q.Exec(ctx, `
		INSERT INTO llm_usage
			(id, tenant_id, run_id, model, stage, prompt_tokens, completion_tokens, cost_usd, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, toUUID(newID()), toUUID(rec.TenantID), toUUID(rec.RunID), rec.Model, rec.Stage,
		safeIntToInt32(rec.PromptTokens), safeIntToInt32(rec.CompletionTokens),
		rec.CostUSD.String(), toTimestamptz(rec.At))
	if err != nil {
		return fmt.Errorf("append usage: %w", err)
	}

	return nil
}

// MonthlySpend sums the tenant's recorded cost for the current UTC calendar
// month. Months roll over at midnight UTC on the 1st regardless of tenant
// locale.
func (db *DB) MonthlySpend(ctx context.Context, tenantID string) (decimal.Decimal, error) {
	var raw string

	err := db.q.QueryRow(ctx, `
		SELECT COALESCE(SUM(cost_usd), 0)::text
		FROM llm_usage
		WHERE tenant_id = $1
		  AND at >= date_trunc('month', now() AT TIME ZONE 'UTC')
	`, toUUID(tenantID)).Scan(&raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("monthly spend: %w", err)
	}

	spend, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse monthly spend %q: %w", raw, err)
	}

	return spend, nil
}
