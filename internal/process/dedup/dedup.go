// Package dedup suppresses repeat leads from the same sender inside a
// rolling window.
package dedup

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Store is the lookup surface the deduper needs.
type Store interface {
	HasRecentLead(ctx context.Context, tenantID, senderKey string, window time.Duration) (bool, error)
}

// Deduper checks candidates against already-persisted leads.
type Deduper struct {
	store  Store
	window time.Duration
	logger *zerolog.Logger
}

// New creates a deduper with the given rolling window.
func New(store Store, window time.Duration, logger *zerolog.Logger) *Deduper {
	return &Deduper{store: store, window: window, logger: logger}
}

// Window returns the rolling dedup window.
func (d *Deduper) Window() time.Duration {
	return d.window
}

// IsDuplicate reports whether a lead with the given sender key was already
// persisted inside the window. Lookup failures fail open: the candidate
// proceeds and the writer's uniqueness constraint is the backstop, since a
// lost lead costs more than a duplicate.
func (d *Deduper) IsDuplicate(ctx context.Context, tenantID, senderKey string) bool {
	if senderKey == "" {
		return false
	}

	found, err := d.store.HasRecentLead(ctx, tenantID, senderKey, d.window)
	if err != nil {
		d.logger.Warn().Err(err).
			Str("tenant_id", tenantID).
			Str("sender_key", senderKey).
			Msg("dedup lookup failed, letting candidate through")

		return false
	}

	return found
}
