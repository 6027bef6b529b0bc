// Package orchestrator implements the Session Orchestrator (C11): the
// boot-and-shepherd sequence from spec.md §4.7. It prepares the workspace,
// probes every dependency with fail-fast BootFailure, opens a session,
// spawns the worker pool as OS processes, drives the Controller loop, and
// finalizes by reporting exhausted repositories.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"dex/internal/core/mqueue"
	"dex/internal/core/searchsink"
	"dex/internal/modkit/repokit"
	perr "dex/internal/platform/errors"
	"dex/internal/platform/logger"
	catalogdomain "dex/internal/services/catalog/domain"
	"dex/internal/services/controller"
	"dex/internal/services/feeder"
)

// Config holds every tunable the Orchestrator needs at boot, sourced from
// the DEX_* environment prefix (SPEC_FULL.md §1.3).
type Config struct {
	Workers             int
	MaxRetries          int
	FeedSize            int
	SmoothingConstant   float64
	MaxSleepSeconds     float64
	WorkDir             string
	WorkerCoolingPeriod time.Duration
	BootCoolingPeriod   time.Duration
	DebounceInterval    time.Duration

	// WorkerArgs are the extra os.Args a spawned worker process receives
	// beyond "-worker-id=N" (e.g. flags re-forwarded from the parent).
	WorkerArgs []string
}

// Orchestrator owns boot, the run loop, and finalize
type Orchestrator struct {
	Cfg Config

	DB      repokit.TxRunner
	Catalog repokit.Binder[catalogdomain.CatalogRepo]
	Queue   *mqueue.Queue
	Broker  *mqueue.Broker
	Sink    *searchsink.Sink

	procs []*os.Process
}

// New builds an Orchestrator over already-open dependency handles. Queue,
// Broker, and Sink are separate connections from the ones workers open for
// themselves (spec.md §4.3: each worker opens its own).
func New(cfg Config, db repokit.TxRunner, catalog repokit.Binder[catalogdomain.CatalogRepo], q *mqueue.Queue, broker *mqueue.Broker, sink *searchsink.Sink) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BootCoolingPeriod <= 0 {
		cfg.BootCoolingPeriod = 2 * time.Second
	}
	if cfg.WorkerCoolingPeriod <= 0 {
		cfg.WorkerCoolingPeriod = 250 * time.Millisecond
	}
	return &Orchestrator{Cfg: cfg, DB: db, Catalog: catalog, Queue: q, Broker: broker, Sink: sink}
}

// Run executes the full boot -> session -> finalize sequence (spec.md
// §4.7). A non-nil error here is always a BootFailure; per-repo and
// infrastructural failures during the run never surface past this call.
func (o *Orchestrator) Run(ctx context.Context) error {
	log := logger.Get()

	if err := o.prepareWorkspace(); err != nil {
		return perr.BootFailure(err, "orchestrator: prepare workspace")
	}

	log.Info().Dur("cooloff", o.Cfg.BootCoolingPeriod).Msg("orchestrator: cooling off after connect")
	if err := sleepCtx(ctx, o.Cfg.BootCoolingPeriod); err != nil {
		return perr.BootFailure(err, "orchestrator: boot cool-off interrupted")
	}

	if err := o.probeDependencies(ctx); err != nil {
		return err
	}

	sessionID, err := o.openSession(ctx)
	if err != nil {
		return perr.BootFailure(err, "orchestrator: open session")
	}
	log.Info().Str("session_id", sessionID).Msg("orchestrator: session opened")

	if err := o.Queue.Purge(ctx); err != nil {
		return perr.BootFailure(err, "orchestrator: purge queue")
	}

	if err := o.spawnWorkers(); err != nil {
		return perr.BootFailure(err, "orchestrator: spawn workers")
	}
	defer o.terminateWorkers()

	f := feeder.New(o.DB, o.Catalog, o.Queue, feeder.Config{
		SessionID:  sessionID,
		MaxRetries: o.Cfg.MaxRetries,
		FeedSize:   o.Cfg.FeedSize,
		Debounce:   o.Cfg.DebounceInterval,
	})
	ctl := controller.New(f, o.Broker, controller.Config{
		FeedSize:        o.Cfg.FeedSize,
		SmoothingConst:  o.Cfg.SmoothingConstant,
		MaxSleepSeconds: o.Cfg.MaxSleepSeconds,
	})
	if err := ctl.Run(ctx); err != nil {
		log.Error().Err(err).Msg("orchestrator: controller loop ended with error")
	}

	o.waitForWorkspaceEmpty(ctx)

	if err := o.reportFailures(ctx, sessionID); err != nil {
		log.Error().Err(err).Msg("orchestrator: report_failures failed")
	}

	if err := o.finishSession(ctx, sessionID); err != nil {
		log.Error().Err(err).Msg("orchestrator: finish session failed")
	}

	log.Info().Str("session_id", sessionID).Msg("orchestrator: session complete")
	return nil
}

// prepareWorkspace removes and recreates the working-directory root
// (spec.md §4.7 step 1)
func (o *Orchestrator) prepareWorkspace() error {
	if err := os.RemoveAll(o.Cfg.WorkDir); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.MkdirAll(o.Cfg.WorkDir, 0o755)
}

// probeDependencies pings C1, C2, C3 (spec.md §4.7 steps 2 and 4). Any
// failure is a BootFailure; the session never starts partially wired.
func (o *Orchestrator) probeDependencies(ctx context.Context) error {
	if err := o.DB.QueryRow(ctx, `SELECT 1`).Scan(new(int)); err != nil {
		return perr.BootFailure(err, "orchestrator: probe catalog store")
	}
	if err := o.Queue.Ping(ctx); err != nil {
		return perr.BootFailure(err, "orchestrator: probe work queue")
	}
	if err := o.Sink.Ping(ctx); err != nil {
		return perr.BootFailure(err, "orchestrator: probe result sink")
	}
	return nil
}

// openSession resets every repository and inserts a fresh session row
// (spec.md §4.7 step 5)
func (o *Orchestrator) openSession(ctx context.Context) (string, error) {
	var sessionID string
	err := o.DB.Tx(ctx, func(q repokit.Queryer) error {
		repo := o.Catalog.Bind(q)
		if _, err := repo.ResetForSession(ctx); err != nil {
			return err
		}
		total, err := repo.CountAll(ctx)
		if err != nil {
			return err
		}
		id, err := repo.InsertSession(ctx, total)
		if err != nil {
			return err
		}
		sessionID = id
		return nil
	})
	return sessionID, err
}

// spawnWorkers starts Cfg.Workers OS processes re-executing the current
// binary with a hidden -worker-id flag, each separated by a cool-off
// interval so they do not storm C2/C3's connection pools at once (spec.md
// §4.7 step 7)
func (o *Orchestrator) spawnWorkers() error {
	log := logger.Get()
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("orchestrator: resolve self: %w", err)
	}

	for id := 1; id <= o.Cfg.Workers; id++ {
		args := append([]string{fmt.Sprintf("-worker-id=%d", id)}, o.Cfg.WorkerArgs...)
		cmd := exec.Command(self, args...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("orchestrator: spawn worker %d: %w", id, err)
		}
		o.procs = append(o.procs, cmd.Process)
		log.Info().Int("worker_id", id).Int("pid", cmd.Process.Pid).Msg("orchestrator: worker spawned")

		if id < o.Cfg.Workers {
			time.Sleep(o.Cfg.WorkerCoolingPeriod)
		}
	}
	return nil
}

// terminateWorkers kills every spawned worker process. Workers are
// daemons owned entirely by the Orchestrator's lifetime (spec.md §4.3).
func (o *Orchestrator) terminateWorkers() {
	log := logger.Get()
	for _, p := range o.procs {
		if err := p.Kill(); err != nil {
			log.Warn().Err(err).Int("pid", p.Pid).Msg("orchestrator: kill worker failed")
		}
		_, _ = p.Wait()
	}
}

// waitForWorkspaceEmpty blocks until the working-directory root has no
// entries, bounded by a final cool-off (spec.md §4.7 step 9)
func (o *Orchestrator) waitForWorkspaceEmpty(ctx context.Context) {
	deadline := time.Now().Add(o.Cfg.BootCoolingPeriod * 10)
	for time.Now().Before(deadline) {
		entries, err := os.ReadDir(o.Cfg.WorkDir)
		if err != nil || len(entries) == 0 {
			return
		}
		if sleepCtx(ctx, 200*time.Millisecond) != nil {
			return
		}
	}
	logger.Get().Warn().Str("workdir", o.Cfg.WorkDir).Msg("orchestrator: workspace not empty after wind-down window")
}

// reportFailures stamps on_report for every repo at the retry ceiling,
// advances the session's errors counter by that count, and logs each one
// with its last comment (spec.md §4.7 step 9, §7)
func (o *Orchestrator) reportFailures(ctx context.Context, sessionID string) error {
	var reported []catalogdomain.Repository
	err := o.DB.Tx(ctx, func(q repokit.Queryer) error {
		repo := o.Catalog.Bind(q)
		rows, err := repo.ReportFailures(ctx, o.Cfg.MaxRetries)
		if err != nil {
			return err
		}
		reported = rows
		if len(rows) == 0 {
			return nil
		}
		return repo.IncrementErrors(ctx, sessionID, len(rows))
	})
	if err != nil {
		return err
	}
	log := logger.Get()
	for _, r := range reported {
		log.Warn().Str("repo_id", r.ID).Str("url", r.URL).Str("comment", r.Comment).Msg("orchestrator: repository on report")
	}
	return nil
}

func (o *Orchestrator) finishSession(ctx context.Context, sessionID string) error {
	return o.DB.Tx(ctx, func(q repokit.Queryer) error {
		return o.Catalog.Bind(q).FinishSession(ctx, sessionID)
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
