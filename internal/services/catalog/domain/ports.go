package domain

import (
	"context"
	"time"

	"dex/internal/core/metric"
)

// CatalogRepo is the Postgres-backed repository/session bookkeeping port
// (C1). Claim-before-publish lives here: ClaimEligible both selects and
// flips rows to processing in one statement, so the caller's transaction
// commits the claim before any message reaches the queue.
type CatalogRepo interface {
	// ClaimEligible selects up to limit eligible rows (state=waiting,
	// error_count<maxRetries, indexed_on null or due), ordered by
	// activity_rating desc then indexed_on asc, flips them to processing,
	// and returns the claimed rows.
	ClaimEligible(ctx context.Context, maxRetries, limit int) ([]Repository, error)

	// MarkComplete records a successful index run
	MarkComplete(ctx context.Context, repoID string, indexedOn time.Time, duration time.Duration) error

	// MarkFailedRetryable records a per-repo failure that counts against
	// the retry budget: error_count += 1, state := waiting, comment := msg
	MarkFailedRetryable(ctx context.Context, repoID, comment string) error

	// ResetForSession resets every repository to {state: waiting,
	// error_count: 0, comment: ""} at session boot, returns the row count
	ResetForSession(ctx context.Context) (int, error)

	// CountAll returns the total repository count
	CountAll(ctx context.Context) (int, error)

	// InsertSession inserts a new session row and returns its id
	InsertSession(ctx context.Context, total int) (string, error)

	// IncrementFeed advances a session's feed counter
	IncrementFeed(ctx context.Context, sessionID string, n int) error

	// IncrementErrors advances a session's errors counter
	IncrementErrors(ctx context.Context, sessionID string, n int) error

	// FinishSession stamps a session's finish_time
	FinishSession(ctx context.Context, sessionID string) error

	// ReportFailures stamps on_report:=true for every repo whose
	// error_count has reached maxRetries, and returns those rows
	ReportFailures(ctx context.Context, maxRetries int) ([]Repository, error)
}

// MetricsRepo is the ClickHouse-backed metric/contributor store (C5
// persistence). Writes replace a repo's prior rows wholesale, making
// re-indexing idempotent (spec.md §4.2 step 4).
type MetricsRepo interface {
	ReplaceMetrics(ctx context.Context, repoID string, metrics []metric.Metric) error
	ReplaceContributors(ctx context.Context, repoID string, contributors map[string]metric.ContributorStat) error
}
