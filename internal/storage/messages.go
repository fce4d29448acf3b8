package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/leadscan/leadscan/internal/core/domain"
	"github.com/leadscan/leadscan/internal/platform/worker"
)

// Message source adapter defaults.
const (
	DefaultFetchPageSize    = 1000
	DefaultFetchSafetyLimit = 100000
)

// FetchOptions bounds a FetchRecent call.
type FetchOptions struct {
	// PageSize bounds one upstream query; defaults to DefaultFetchPageSize.
	PageSize int
	// HardLimit caps the total result. Zero means paginate until the window
	// is exhausted or SafetyLimit is reached.
	HardLimit int
	// SafetyLimit is the absolute ceiling; defaults to DefaultFetchSafetyLimit.
	SafetyLimit int
}

// FetchRecent returns messages whose posted_at falls inside the window,
// newest first, ties broken by id descending. Pagination uses a half-open
// keyset cursor so results stay deterministic under concurrent inserts.
// Transient query errors are retried with exponential backoff; a definitive
// failure is returned to the caller with no partial result.
func (db *DB) FetchRecent(ctx context.Context, window time.Duration, opts FetchOptions) ([]domain.Message, error) {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultFetchPageSize
	}

	safetyLimit := opts.SafetyLimit
	if safetyLimit <= 0 {
		safetyLimit = DefaultFetchSafetyLimit
	}

	limit := safetyLimit
	if opts.HardLimit > 0 && opts.HardLimit < limit {
		limit = opts.HardLimit
	}

	threshold := time.Now().UTC().Add(-window)

	var (
		out       []domain.Message
		cursorAt  time.Time
		cursorID  string
		truncated bool
	)

	for len(out) < limit {
		want := pageSize
		if remaining := limit - len(out); remaining < want {
			want = remaining
		}

		var page []domain.Message

		err := worker.Retry(ctx, worker.DefaultRetryConfig(), nil, func(ctx context.Context) error {
			var pageErr error
			page, pageErr = db.fetchMessagePage(ctx, threshold, cursorAt, cursorID, want)

			return pageErr
		})
		if err != nil {
			return nil, fmt.Errorf("fetch recent messages: %w", err)
		}

		out = append(out, page...)

		if len(page) < want {
			break
		}

		last := page[len(page)-1]
		cursorAt, cursorID = last.PostedAt, last.ID

		if len(out) >= safetyLimit && opts.HardLimit == 0 {
			truncated = true

			break
		}
	}

	if truncated {
		db.logger.Warn().
			Int("fetched", len(out)).
			Int("safety_limit", safetyLimit).
			Msg("message fetch truncated at safety ceiling")
	}

	return out, nil
}

func (db *DB) fetchMessagePage(ctx context.Context, threshold, cursorAt time.Time, cursorID string, limit int) ([]domain.Message, error) {
	const (
		firstPageSQL = `
			SELECT id::text, text, author_handle, author_bio, chat_name, posted_at
			FROM messages
			WHERE posted_at >= $1
			ORDER BY posted_at DESC, id DESC
			LIMIT $2`
		nextPageSQL = `
			SELECT id::text, text, author_handle, author_bio, chat_name, posted_at
			FROM messages
			WHERE posted_at >= $1
			  AND (posted_at < $2 OR (posted_at = $2 AND id < $3))
			ORDER BY posted_at DESC, id DESC
			LIMIT $4`
	)

	var (
		rows pgx.Rows
		err  error
	)

	if cursorID == "" {
		rows, err = db.q.Query(ctx, firstPageSQL, toTimestamptz(threshold), safeIntToInt32(limit))
	} else {
		rows, err = db.q.Query(ctx, nextPageSQL, toTimestamptz(threshold), toTimestamptz(cursorAt), toUUID(cursorID), safeIntToInt32(limit))
	}

	if err != nil {
		return nil, fmt.Errorf("query message page: %w", err)
	}
	defer rows.Close()

	var page []domain.Message

	for rows.Next() {
		var (
			m                       domain.Message
			text, handle, bio, chat pgtype.Text
		)

		if err := rows.Scan(&m.ID, &text, &handle, &bio, &chat, &m.PostedAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}

		m.Text = fromText(text)
		m.AuthorHandle = fromText(handle)
		m.AuthorBio = fromText(bio)
		m.ChatName = fromText(chat)

		page = append(page, m)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate message rows: %w", rows.Err())
	}

	return page, nil
}
