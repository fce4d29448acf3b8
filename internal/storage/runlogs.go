package db

import (
	"context"
	"fmt"

	"github.com/leadscan/leadscan/internal/core/domain"
)

// InsertRunLog persists the summary of a finished pipeline run.
func (db *DB) InsertRunLog(ctx context.Context, rl *domain.RunLog) error {
	_, err := db.q.Exec(ctx, `
		INSERT INTO run_logs
			(id, tenant_id, started_at, finished_at, fetched, prefiltered,
			 classified, verified, verified_rejected, leads, deduplicated,
			 budget_skipped, failed, cost_usd, errors)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, toUUID(rl.ID), toUUID(rl.TenantID),
		toTimestamptz(rl.StartedAt), toTimestamptz(rl.FinishedAt),
		safeIntToInt32(rl.Fetched), safeIntToInt32(rl.Prefiltered),
		safeIntToInt32(rl.Classified), safeIntToInt32(rl.Verified),
		safeIntToInt32(rl.VerifiedRejected),
		safeIntToInt32(rl.Leads), safeIntToInt32(rl.Deduplicated),
		safeIntToInt32(rl.BudgetSkipped), safeIntToInt32(rl.Failed),
		rl.CostUSD.String(), rl.Errors)
	if err != nil {
		return fmt.Errorf("insert run log: %w", err)
	}

	return nil
}

// LastRunLogs returns the most recent runs for a tenant, newest first.
func (db *DB) LastRunLogs(ctx context.Context, tenantID string, limit int) ([]domain.RunLog, error) {
	rows, err := db.q.Query(ctx, `
		SELECT id::text, tenant_id::text, started_at, finished_at, fetched,
		       prefiltered, classified, verified, verified_rejected, leads,
		       deduplicated, budget_skipped, failed, cost_usd::text, errors
		FROM run_logs
		WHERE tenant_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, toUUID(tenantID), safeIntToInt32(limit))
	if err != nil {
		return nil, fmt.Errorf("list run logs: %w", err)
	}
	defer rows.Close()

	var logs []domain.RunLog

	for rows.Next() {
		var (
			rl      domain.RunLog
			rawCost string
		)

		if err := rows.Scan(&rl.ID, &rl.TenantID, &rl.StartedAt, &rl.FinishedAt,
			&rl.Fetched, &rl.Prefiltered, &rl.Classified, &rl.Verified,
			&rl.VerifiedRejected, &rl.Leads, &rl.Deduplicated, &rl.BudgetSkipped,
			&rl.Failed, &rawCost, &rl.Errors); err != nil {
			return nil, fmt.Errorf("scan run log row: %w", err)
		}

		if rl.CostUSD, err = parseDecimal(rawCost); err != nil {
			return nil, fmt.Errorf("run log cost: %w", err)
		}

		logs = append(logs, rl)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate run log rows: %w", rows.Err())
	}

	return logs, nil
}
