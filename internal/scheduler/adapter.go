package scheduler

import (
	"context"

	db "github.com/leadscan/leadscan/internal/storage"
)

// dbStore adapts *db.DB to the Store interface: the concrete RunGuard type
// needs lifting into the Guard interface.
type dbStore struct {
	*db.DB
}

// NewDBStore wraps the database for use as the scheduler's store.
func NewDBStore(database *db.DB) Store {
	return &dbStore{DB: database}
}

func (s *dbStore) AcquireRunGuard(ctx context.Context, tenantID string) (Guard, error) {
	guard, err := s.DB.AcquireRunGuard(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	return guard, nil
}
