// Package feeder implements the Feeder (C9): selects eligible repositories,
// claims them, publishes jobs to the work queue, and advances session
// counters. Grounded on the teacher's backfill service claim-then-act
// shape (service.go's nextHour/runHourWithRetry Tx pattern).
package feeder

import (
	"context"
	"time"

	"dex/internal/core/mqueue"
	"dex/internal/modkit/repokit"
	"dex/internal/platform/logger"
	catalogdomain "dex/internal/services/catalog/domain"
)

// Config holds the Feeder's tunables
type Config struct {
	SessionID  string
	MaxRetries int
	FeedSize   int
	Debounce   time.Duration
}

// Feeder selects, claims, and publishes eligible repositories
type Feeder struct {
	DB      repokit.TxRunner
	Catalog repokit.Binder[catalogdomain.CatalogRepo]
	Queue   *mqueue.Queue
	Cfg     Config

	lastFeed time.Time

	// StopFeeding is set once an empty eligible batch is observed; the
	// Controller reads it to decide when to start winding down.
	StopFeeding bool
}

// New builds a Feeder
func New(db repokit.TxRunner, catalog repokit.Binder[catalogdomain.CatalogRepo], q *mqueue.Queue, cfg Config) *Feeder {
	if cfg.FeedSize <= 0 {
		cfg.FeedSize = 100
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 10 * time.Second
	}
	return &Feeder{DB: db, Catalog: catalog, Queue: q, Cfg: cfg}
}

// Feed runs one feed cycle (spec.md §4.4). It returns the number of
// repositories claimed and published; a debounced call returns (0, nil)
// without touching the database or the queue.
func (f *Feeder) Feed(ctx context.Context) (int, error) {
	if !f.lastFeed.IsZero() && time.Since(f.lastFeed) < f.Cfg.Debounce {
		return 0, nil
	}
	f.lastFeed = time.Now()

	var claimed []catalogdomain.Repository
	err := f.DB.Tx(ctx, func(q repokit.Queryer) error {
		rows, err := f.Catalog.Bind(q).ClaimEligible(ctx, f.Cfg.MaxRetries, f.Cfg.FeedSize)
		if err != nil {
			return err
		}
		claimed = rows
		return nil
	})
	if err != nil {
		return 0, err
	}

	if len(claimed) == 0 {
		f.StopFeeding = true
		logger.Get().Info().Str("session_id", f.Cfg.SessionID).Msg("feeder: no eligible repositories, stopping feed")
		return 0, nil
	}

	for _, repo := range claimed {
		if err := f.Queue.Publish(ctx, mqueue.Job{RepoID: repo.ID, URL: repo.URL}); err != nil {
			return 0, err
		}
	}

	if err := f.DB.Tx(ctx, func(q repokit.Queryer) error {
		return f.Catalog.Bind(q).IncrementFeed(ctx, f.Cfg.SessionID, len(claimed))
	}); err != nil {
		return len(claimed), err
	}

	logger.Get().Info().Str("session_id", f.Cfg.SessionID).Int("count", len(claimed)).Msg("feeder: fed batch")
	return len(claimed), nil
}
