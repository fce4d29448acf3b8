package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/leadscan/leadscan/internal/core/domain"
	apperrors "github.com/leadscan/leadscan/internal/core/errors"
)

const tenantColumns = `id::text, criteria_text, api_credentials, monthly_budget_cap::text, active,
	       verification_policy, smart_min_confidence, downstream_min_confidence`

// ListActiveTenants returns a snapshot of every active tenant.
func (db *DB) ListActiveTenants(ctx context.Context) ([]domain.Tenant, error) {
	rows, err := db.q.Query(ctx, `
		SELECT `+tenantColumns+`
		FROM tenants
		WHERE active
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list active tenants: %w", err)
	}
	defer rows.Close()

	var tenants []domain.Tenant

	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}

		tenants = append(tenants, t)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate tenant rows: %w", rows.Err())
	}

	return tenants, nil
}

// GetTenant returns one tenant snapshot by id.
func (db *DB) GetTenant(ctx context.Context, tenantID string) (domain.Tenant, error) {
	rows, err := db.q.Query(ctx, `
		SELECT `+tenantColumns+`
		FROM tenants
		WHERE id = $1
	`, toUUID(tenantID))
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("get tenant: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return domain.Tenant{}, fmt.Errorf("get tenant: %w", rows.Err())
		}

		return domain.Tenant{}, fmt.Errorf("get tenant %s: %w", tenantID, apperrors.ErrNotFound)
	}

	return scanTenant(rows)
}

func scanTenant(row pgx.Row) (domain.Tenant, error) {
	var (
		t      domain.Tenant
		capStr string
		policy string
	)

	if err := row.Scan(&t.ID, &t.CriteriaText, &t.APICredentials, &capStr, &t.Active,
		&policy, &t.SmartMinConfidence, &t.DownstreamMinConfidence); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Tenant{}, fmt.Errorf("tenant: %w", apperrors.ErrNotFound)
		}

		return domain.Tenant{}, fmt.Errorf("scan tenant row: %w", err)
	}

	budgetCap, err := decimal.NewFromString(capStr)
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("parse tenant budget cap %q: %w", capStr, err)
	}

	t.MonthlyBudgetCap = budgetCap
	t.VerificationPolicy = domain.VerificationPolicy(policy)

	return t, nil
}
