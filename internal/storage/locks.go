package db

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/leadscan/leadscan/internal/core/errors"
)

// runGuardKeyspace separates pipeline run guards from other advisory locks
// (migrations use key 1000).
const runGuardKeyspace = int32(2001)

// RunGuard holds a session-level advisory lock for one tenant's pipeline run.
// The lock lives on a dedicated pooled connection so it survives for the whole
// run and is released together with the connection.
type RunGuard struct {
	conn *pgxpool.Conn
	key  int32
}

// AcquireRunGuard attempts to take the per-tenant run lock without waiting.
// It returns ErrRunGuardHeld when another process already holds it; the caller
// must skip the run rather than queue behind it.
func (db *DB) AcquireRunGuard(ctx context.Context, tenantID string) (*RunGuard, error) {
	if db.pool == nil {
		return nil, fmt.Errorf("acquire run guard: no connection pool")
	}

	conn, err := db.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire run guard connection: %w", err)
	}

	key := tenantLockKey(tenantID)

	var acquired bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1, $2)`,
		runGuardKeyspace, key).Scan(&acquired); err != nil {
		conn.Release()

		return nil, fmt.Errorf("try advisory lock: %w", err)
	}

	if !acquired {
		conn.Release()

		return nil, apperrors.ErrRunGuardHeld
	}

	return &RunGuard{conn: conn, key: key}, nil
}

// Release unlocks the run guard and returns its connection to the pool.
// Safe to call once; the unlock error is returned for logging but the
// connection is always released.
func (g *RunGuard) Release(ctx context.Context) error {
	if g == nil || g.conn == nil {
		return nil
	}

	defer func() {
		g.conn.Release()
		g.conn = nil
	}()

	if _, err := g.conn.Exec(ctx, `SELECT pg_advisory_unlock($1, $2)`,
		runGuardKeyspace, g.key); err != nil {
		return fmt.Errorf("advisory unlock: %w", err)
	}

	return nil
}

// tenantLockKey folds a tenant id into the 32-bit advisory lock key space.
func tenantLockKey(tenantID string) int32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(tenantID))

	return int32(h.Sum32()) //nolint:gosec // intentional wraparound into the signed key space
}
