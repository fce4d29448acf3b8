package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/leadscan/leadscan/internal/core/domain"
	apperrors "github.com/leadscan/leadscan/internal/core/errors"
)

// pgUniqueViolation is the Postgres error code for unique constraint violations.
const pgUniqueViolation = "23505"

// InsertLead persists a detected lead with downstream_state = pending.
// The dedup bucket column backs the uniqueness constraint on
// (tenant_id, sender_key, dedup_bucket); a violation is returned as
// ErrWriterConflict so callers can reclassify it as a dedup.
func (db *DB) InsertLead(ctx context.Context, lead *domain.DetectedLead, dedupWindow time.Duration) error {
	bucket := dedupBucket(lead.DetectedAt, dedupWindow)

	_, err := db.q.Exec(ctx, `
		INSERT INTO detected_leads
			(id, tenant_id, message_id, confidence, rationale, matched_criteria,
			 fingerprint, sender_key, detected_at, downstream_state, dedup_bucket)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'pending', $10)
	`, toUUID(lead.ID), toUUID(lead.TenantID), toUUID(lead.MessageID),
		safeIntToInt32(lead.Confidence), toText(lead.Rationale), lead.MatchedCriteria,
		lead.Fingerprint, lead.SenderKey, toTimestamptz(lead.DetectedAt), bucket)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("insert lead: %w", apperrors.ErrWriterConflict)
		}

		return fmt.Errorf("insert lead: %w", err)
	}

	return nil
}

// HasRecentLead reports whether a lead with the given sender key exists for
// the tenant inside the rolling dedup window.
func (db *DB) HasRecentLead(ctx context.Context, tenantID, senderKey string, window time.Duration) (bool, error) {
	since := time.Now().UTC().Add(-window)

	var exists bool

	err := db.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM detected_leads
			WHERE tenant_id = $1 AND sender_key = $2 AND detected_at > $3
		)
	`, toUUID(tenantID), senderKey, toTimestamptz(since)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check recent lead: %w", err)
	}

	return exists, nil
}

// ListPendingLeads returns leads still awaiting downstream delivery whose
// detection time is older than the grace period.
func (db *DB) ListPendingLeads(ctx context.Context, grace time.Duration, limit int) ([]domain.DetectedLead, error) {
	cutoff := time.Now().UTC().Add(-grace)

	rows, err := db.q.Query(ctx, `
		SELECT id::text, tenant_id::text, message_id::text, confidence, rationale,
		       matched_criteria, fingerprint, sender_key, detected_at, downstream_state
		FROM detected_leads
		WHERE downstream_state = 'pending' AND detected_at < $1
		ORDER BY detected_at
		LIMIT $2
	`, toTimestamptz(cutoff), safeIntToInt32(limit))
	if err != nil {
		return nil, fmt.Errorf("list pending leads: %w", err)
	}
	defer rows.Close()

	var leads []domain.DetectedLead

	for rows.Next() {
		var (
			lead  domain.DetectedLead
			state string
		)

		if err := rows.Scan(&lead.ID, &lead.TenantID, &lead.MessageID, &lead.Confidence,
			&lead.Rationale, &lead.MatchedCriteria, &lead.Fingerprint, &lead.SenderKey,
			&lead.DetectedAt, &state); err != nil {
			return nil, fmt.Errorf("scan pending lead row: %w", err)
		}

		lead.DownstreamState = domain.DownstreamState(state)
		leads = append(leads, lead)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate pending lead rows: %w", rows.Err())
	}

	return leads, nil
}

// SetDownstreamState updates the delivery state of a lead.
func (db *DB) SetDownstreamState(ctx context.Context, leadID string, state domain.DownstreamState) error {
	if _, err := db.q.Exec(ctx, `
		UPDATE detected_leads SET downstream_state = $2 WHERE id = $1
	`, toUUID(leadID), string(state)); err != nil {
		return fmt.Errorf("set downstream state: %w", err)
	}

	return nil
}

// dedupBucket maps a detection time to its window bucket number.
func dedupBucket(at time.Time, window time.Duration) int64 {
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}

	return at.UTC().Unix() / int64(window.Seconds())
}
