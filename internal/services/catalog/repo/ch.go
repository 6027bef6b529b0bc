package repo

import (
	"context"

	"dex/internal/core/metric"
	"dex/internal/platform/store"
	"dex/internal/services/catalog/domain"
)

// CH is a ClickHouse-backed domain.MetricsRepo. Unlike the Postgres side,
// there is one CH handle per process (no per-transaction binder), matching
// how platform/store hands out a single store.Clickhouse seam.
type CH struct {
	db store.Clickhouse
}

// NewCH wraps a store.Clickhouse seam as a domain.MetricsRepo
func NewCH(db store.Clickhouse) domain.MetricsRepo { return &CH{db: db} }

// ReplaceMetrics deletes a repo's prior metric rows and inserts the new set
// in one pass, making re-indexing idempotent (spec.md §4.2 step 4).
func (c *CH) ReplaceMetrics(ctx context.Context, repoID string, metrics []metric.Metric) error {
	if err := c.db.Exec(ctx, `ALTER TABLE metrics DELETE WHERE repo_id = ?`, repoID); err != nil {
		return err
	}
	if len(metrics) == 0 {
		return nil
	}
	rows := make([][]any, len(metrics))
	for i, m := range metrics {
		rows[i] = []any{m.RepoID, m.AnchorCommitID, m.Additions, m.Deletions, m.CommitCount, m.Activity, m.Timestamp}
	}
	return c.db.Insert(ctx, "metrics", rows)
}

// ReplaceContributors deletes a repo's prior contributor rows and inserts
// the new aggregate
func (c *CH) ReplaceContributors(ctx context.Context, repoID string, contributors map[string]metric.ContributorStat) error {
	if err := c.db.Exec(ctx, `ALTER TABLE contributors DELETE WHERE repo_id = ?`, repoID); err != nil {
		return err
	}
	if len(contributors) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(contributors))
	for _, stat := range contributors {
		rows = append(rows, []any{repoID, stat.Email, stat.Name, stat.Count})
	}
	return c.db.Insert(ctx, "contributors", rows)
}
