package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadscan/leadscan/internal/core/domain"
	apperrors "github.com/leadscan/leadscan/internal/core/errors"
)

func newMockDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)

	t.Cleanup(mock.Close)

	logger := zerolog.Nop()

	return NewFromQuerier(mock, &logger), mock
}

// anyArgs returns n wildcard matchers; pgxmock matches argument counts
// strictly, so every expectation must declare the arity of the call.
func anyArgs(n int) []interface{} {
	args := make([]interface{}, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}

	return args
}

func sampleLead() *domain.DetectedLead {
	return &domain.DetectedLead{
		ID:         "0d2f2de1-9c40-4d06-9f7a-6f61cb1f3f59",
		TenantID:   "9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d",
		MessageID:  "16fd2706-8baf-433b-82eb-8c7fada847da",
		Confidence: 85,
		Rationale:  "asks for a landing page quote",
		MatchedCriteria: []string{
			"website development",
		},
		Fingerprint: "abc123",
		SenderKey:   "@prospect",
		DetectedAt:  time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestInsertLead(t *testing.T) {
	database, mock := newMockDB(t)

	mock.ExpectExec("INSERT INTO detected_leads").
		WithArgs(anyArgs(10)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := database.InsertLead(context.Background(), sampleLead(), 7*24*time.Hour)
	require.NoError(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertLeadUniqueViolation(t *testing.T) {
	database, mock := newMockDB(t)

	mock.ExpectExec("INSERT INTO detected_leads").
		WithArgs(anyArgs(10)...).
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation})

	err := database.InsertLead(context.Background(), sampleLead(), 7*24*time.Hour)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrWriterConflict))
}

func TestDedupBucket(t *testing.T) {
	window := 7 * 24 * time.Hour

	base := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	// Same window, same bucket.
	assert.Equal(t, dedupBucket(base, window), dedupBucket(base.Add(time.Hour), window))

	// A full window later lands in a different bucket.
	assert.NotEqual(t, dedupBucket(base, window), dedupBucket(base.Add(window), window))

	// Non-positive windows fall back to the 7-day default.
	assert.Equal(t, dedupBucket(base, window), dedupBucket(base, 0))
}

func TestHasRecentLead(t *testing.T) {
	database, mock := newMockDB(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(anyArgs(3)...).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	found, err := database.HasRecentLead(context.Background(),
		"9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d", "@prospect", 7*24*time.Hour)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestSetDownstreamState(t *testing.T) {
	database, mock := newMockDB(t)

	mock.ExpectExec("UPDATE detected_leads SET downstream_state").
		WithArgs(anyArgs(2)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := database.SetDownstreamState(context.Background(),
		"0d2f2de1-9c40-4d06-9f7a-6f61cb1f3f59", domain.DownstreamDelivered)
	require.NoError(t, err)
}

func TestMonthlySpend(t *testing.T) {
	database, mock := newMockDB(t)

	mock.ExpectQuery("SELECT COALESCE").
		WithArgs(anyArgs(1)...).
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow("3.1400"))

	spend, err := database.MonthlySpend(context.Background(),
		"9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d")
	require.NoError(t, err)
	assert.Equal(t, "3.14", spend.String())
}
