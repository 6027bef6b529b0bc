// Package repo provides Postgres and ClickHouse access for the catalog
package repo

import (
	"database/sql"
	"time"

	"context"

	"dex/internal/modkit/repokit"
	"dex/internal/services/catalog/domain"

	"github.com/google/uuid"
)

type (
	// PG is a Postgres binder for domain.CatalogRepo
	PG      struct{}
	queries struct{ q repokit.Queryer }
)

// NewPG returns a Postgres binder for domain.CatalogRepo
func NewPG() repokit.Binder[domain.CatalogRepo] { return PG{} }

// Bind implements repokit.Binder
func (PG) Bind(q repokit.Queryer) domain.CatalogRepo { return &queries{q: q} }

// ClaimEligible selects and flips eligible rows to processing in one statement
func (r *queries) ClaimEligible(ctx context.Context, maxRetries, limit int) ([]domain.Repository, error) {
	const q = `
		WITH claimed AS (
			SELECT id FROM repositories
			WHERE state = 0
			  AND error_count < $1
			  AND (indexed_on IS NULL OR indexed_on < now())
			ORDER BY activity_rating DESC, indexed_on ASC NULLS FIRST
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE repositories r SET state = 1
		FROM claimed c
		WHERE r.id = c.id
		RETURNING r.id, r.url, r.state, r.error_count, r.comment, r.activity_rating,
		          r.indexed_on, r.index_duration, r.on_report
	`
	rows, err := r.q.Query(ctx, q, maxRetries, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Repository
	for rows.Next() {
		rep, err := scanRepository(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

// MarkComplete records a successful index run
func (r *queries) MarkComplete(ctx context.Context, repoID string, indexedOn time.Time, duration time.Duration) error {
	_, err := r.q.Exec(ctx, `
		UPDATE repositories
		SET state = 2, indexed_on = $2, index_duration = $3, comment = ''
		WHERE id = $1
	`, repoID, indexedOn.UTC(), duration.String())
	return err
}

// MarkFailedRetryable records a per-repo failure that counts against the retry budget
func (r *queries) MarkFailedRetryable(ctx context.Context, repoID, comment string) error {
	_, err := r.q.Exec(ctx, `
		UPDATE repositories
		SET state = 0, error_count = error_count + 1, comment = $2
		WHERE id = $1
	`, repoID, comment)
	return err
}

// ResetForSession resets every repository at session boot
func (r *queries) ResetForSession(ctx context.Context) (int, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE repositories SET state = 0, error_count = 0, comment = ''
	`)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// CountAll returns the total repository count
func (r *queries) CountAll(ctx context.Context) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `SELECT count(*) FROM repositories`).Scan(&n)
	return n, err
}

// InsertSession inserts a new session row and returns its id
func (r *queries) InsertSession(ctx context.Context, total int) (string, error) {
	id := uuid.NewString()
	_, err := r.q.Exec(ctx, `
		INSERT INTO sessions (id, start_time, total, feed, errors)
		VALUES ($1, now(), $2, 0, 0)
	`, id, total)
	return id, err
}

// IncrementFeed advances a session's feed counter
func (r *queries) IncrementFeed(ctx context.Context, sessionID string, n int) error {
	_, err := r.q.Exec(ctx, `UPDATE sessions SET feed = feed + $2 WHERE id = $1`, sessionID, n)
	return err
}

// IncrementErrors advances a session's errors counter
func (r *queries) IncrementErrors(ctx context.Context, sessionID string, n int) error {
	_, err := r.q.Exec(ctx, `UPDATE sessions SET errors = errors + $2 WHERE id = $1`, sessionID, n)
	return err
}

// FinishSession stamps a session's finish_time
func (r *queries) FinishSession(ctx context.Context, sessionID string) error {
	_, err := r.q.Exec(ctx, `UPDATE sessions SET finish_time = now() WHERE id = $1`, sessionID)
	return err
}

// ReportFailures stamps on_report for every repo at the retry ceiling
func (r *queries) ReportFailures(ctx context.Context, maxRetries int) ([]domain.Repository, error) {
	const q = `
		UPDATE repositories
		SET on_report = true
		WHERE error_count >= $1 AND on_report = false
		RETURNING id, url, state, error_count, comment, activity_rating,
		          indexed_on, index_duration, on_report
	`
	rows, err := r.q.Query(ctx, q, maxRetries)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Repository
	for rows.Next() {
		rep, err := scanRepository(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

func scanRepository(rows repokit.Rows) (domain.Repository, error) {
	var rep domain.Repository
	var indexedOn sql.NullTime
	if err := rows.Scan(
		&rep.ID, &rep.URL, &rep.State, &rep.ErrorCount, &rep.Comment, &rep.ActivityRating,
		&indexedOn, &rep.IndexDuration, &rep.OnReport,
	); err != nil {
		return domain.Repository{}, err
	}
	if indexedOn.Valid {
		t := indexedOn.Time
		rep.IndexedOn = &t
	}
	return rep, nil
}
