// Package worker is the OS-process worker (C8): one process per worker id,
// its own connections to the queue and the indexer's dependencies, strict
// prefetch=1 consumption, and a consume loop shaped exactly like
// other_examples/deepanshu-rawat6-go-polyglot-persistence's worker.go
// (select on ctx.Done() vs. a delivery channel, ack/nack at the edges).
package worker

import (
	"context"
	"strconv"

	"dex/internal/core/mqueue"
	perr "dex/internal/platform/errors"
	"dex/internal/platform/logger"
	"dex/internal/services/indexer"
)

// Indexer is the subset of indexer.Indexer the worker drives, kept narrow
// so tests can substitute a fake.
type Indexer interface {
	Index(ctx context.Context, repoID, url string) error
}

// Worker consumes jobs from one queue and drives the indexer for each
type Worker struct {
	ID      int
	Queue   *mqueue.Queue
	Indexer Indexer
}

// New builds a Worker bound to a queue and an indexer
func New(id int, q *mqueue.Queue, ix *indexer.Indexer) *Worker {
	return &Worker{ID: id, Queue: q, Indexer: ix}
}

// Run consumes until ctx is cancelled or the queue's channel closes. It
// never blocks the Controller — the queue and the indexer are this
// process's own connections, isolated from every other worker.
func (w *Worker) Run(ctx context.Context) error {
	log := logger.Get().With().Int("worker_id", w.ID).Logger()

	deliveries, err := w.Queue.Consume(ctx, consumerTag(w.ID))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("worker: shutting down")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				log.Info().Msg("worker: delivery channel closed")
				return nil
			}
			w.process(ctx, d, &log)
		}
	}
}

func (w *Worker) process(ctx context.Context, d mqueue.Delivery, log *logger.Logger) {
	err := w.Indexer.Index(ctx, d.Job.RepoID, d.Job.URL)
	switch {
	case err == nil:
		// success already recorded by the indexer
	case perr.IsExternalSystemFailure(err):
		log.Error().Err(err).Str("repo_id", d.Job.RepoID).Msg("worker: external system failure, repo state unchanged")
	case perr.IsPerRepoFailure(err):
		log.Warn().Err(err).Str("repo_id", d.Job.RepoID).Msg("worker: per-repo failure recorded")
	default:
		log.Warn().Err(err).Str("repo_id", d.Job.RepoID).Msg("worker: transient failure, repo state unchanged")
	}

	if ackErr := d.Ack(); ackErr != nil {
		log.Error().Err(ackErr).Str("repo_id", d.Job.RepoID).Msg("worker: ack failed")
	}
}

func consumerTag(id int) string {
	return "dex-worker-" + strconv.Itoa(id)
}
