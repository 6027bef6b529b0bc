// Package indexer implements the per-repository transaction (C7): clone,
// extract language statistics and readme/license/changelog text, sample
// commit-history metrics, assemble a Result Document, and emit it — with a
// scoped working directory and the §4.2 failure policy.
package indexer

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"dex/internal/core/cloc"
	"dex/internal/core/langstats"
	"dex/internal/core/metric"
	"dex/internal/core/metricsampler"
	"dex/internal/core/readmetext"
	"dex/internal/core/resultdoc"
	"dex/internal/core/searchsink"
	"dex/internal/core/vcs"
	"dex/internal/modkit/repokit"
	perr "dex/internal/platform/errors"
	"dex/internal/platform/logger"
	catalogdomain "dex/internal/services/catalog/domain"
	"dex/internal/services/indexer/guardrails"
	"dex/internal/services/indexer/workdir"
)

// Indexer runs one repository through clone -> analyze -> emit -> mark.
// One Indexer is held per worker process; WorkerID scopes its working
// directories so concurrent workers never collide (spec.md §5).
type Indexer struct {
	WorkDir  string
	WorkerID int
	ClocPath string
	Resolution time.Duration
	Timeouts guardrails.Timeouts

	DB      repokit.TxRunner
	Catalog repokit.Binder[catalogdomain.CatalogRepo]
	Metrics catalogdomain.MetricsRepo
	Sink    *searchsink.Sink
}

// Index runs the full per-repository transaction for one job. The returned
// error, when non-nil, is already classified via perr.CodeOf so the Worker
// can decide whether to log only or escalate; per-repo failures have
// already been recorded against the catalog by the time Index returns.
func (ix *Indexer) Index(ctx context.Context, repoID, url string) error {
	repoCtx, cancel := guardrails.WithRepo(ctx, ix.Timeouts)
	defer cancel()

	start := time.Now()
	repoName := repoNameFromURL(url)
	log := logger.Get().With().Str("repo_id", repoID).Str("repo", repoName).Int("worker_id", ix.WorkerID).Logger()

	guard, err := workdir.Acquire(ix.WorkDir, repoName, ix.WorkerID)
	if err != nil {
		return perr.TransientIO(err, "acquire working directory")
	}
	defer func() {
		if rerr := guard.Release(); rerr != nil {
			log.Warn().Err(rerr).Msg("indexer: release working directory")
		}
	}()

	repo, err := ix.clone(repoCtx, url, guard.Path)
	if err != nil {
		return ix.failRetryable(repoCtx, repoID, err, &log)
	}
	defer repo.Close()

	stats, err := ix.languageStats(repoCtx, guard.Path)
	if err != nil {
		if perr.IsPerRepoFailure(err) {
			return ix.failRetryable(repoCtx, repoID, err, &log)
		}
		log.Warn().Err(err).Msg("indexer: transient failure, repo state unchanged")
		return err
	}

	text := resultdoc.Text{
		Readme:    ix.readText(guard.Path, "README", true),
		License:   ix.readText(guard.Path, "LICENSE", false),
		Changelog: ix.readText(guard.Path, "CHANGELOG", true),
	}

	metricsCtx, mcancel := guardrails.ForMetrics(repoCtx, ix.Timeouts)
	commits, werr := repo.Walk(metricsCtx)
	var metrics []metric.Metric
	var contributors map[string]metric.ContributorStat
	if werr == nil {
		ms, serr := metricsampler.Sample(metricsCtx, repo, repoID, ix.Resolution)
		if serr == nil {
			metrics = ms
			contributors = metricsampler.Contributors(commits)
		} else {
			werr = serr
		}
	}
	mcancel()
	if werr != nil {
		log.Warn().Err(werr).Msg("indexer: metric sampling failed, continuing with empty metrics")
	}

	doc := resultdoc.Build(repoName, url, stats, text, contributors, time.Now().UTC())

	dbCtx, dcancel := guardrails.ForDB(repoCtx, ix.Timeouts)
	defer dcancel()

	if err := ix.Metrics.ReplaceMetrics(dbCtx, repoID, metrics); err != nil {
		return perr.ExternalSystemFailure(err, "replace metrics")
	}
	if err := ix.Metrics.ReplaceContributors(dbCtx, repoID, contributors); err != nil {
		return perr.ExternalSystemFailure(err, "replace contributors")
	}
	if err := ix.Sink.Put(dbCtx, repoID, doc); err != nil {
		return perr.ExternalSystemFailure(err, "write result document")
	}

	elapsed := time.Since(start)
	if err := ix.DB.Tx(dbCtx, func(q repokit.Queryer) error {
		return ix.Catalog.Bind(q).MarkComplete(dbCtx, repoID, time.Now().UTC(), elapsed)
	}); err != nil {
		return perr.ExternalSystemFailure(err, "mark repository complete")
	}

	log.Info().Dur("elapsed", elapsed).Msg("indexer: completed")
	return nil
}

func (ix *Indexer) clone(ctx context.Context, url, path string) (*vcs.Repo, error) {
	cloneCtx, cancel := guardrails.ForClone(ctx, ix.Timeouts)
	defer cancel()
	repo, err := vcs.Clone(cloneCtx, url, path)
	if err != nil {
		return nil, perr.CloneFailure(err, "clone failed")
	}
	return repo, nil
}

func (ix *Indexer) languageStats(ctx context.Context, path string) (langstats.Stats, error) {
	statsCtx, cancel := guardrails.ForStats(ctx, ix.Timeouts)
	defer cancel()
	langs, err := cloc.Run(statsCtx, ix.ClocPath, path)
	if err != nil {
		return langstats.Stats{}, err // already a DependencyFailure/StatisticsUnavailable/TransientIO
	}
	return langstats.Build(langs), nil
}

// failRetryable records a per-repo failure against the catalog and returns
// the classified error so the worker can ack and log (spec.md §4.2's first
// three failure kinds)
func (ix *Indexer) failRetryable(ctx context.Context, repoID string, cause error, log *logger.Logger) error {
	dbCtx, cancel := guardrails.ForDB(ctx, ix.Timeouts)
	defer cancel()
	if err := ix.DB.Tx(dbCtx, func(q repokit.Queryer) error {
		return ix.Catalog.Bind(q).MarkFailedRetryable(dbCtx, repoID, cause.Error())
	}); err != nil {
		log.Error().Err(err).Msg("indexer: failed to record retryable failure")
	}
	log.Warn().Err(cause).Msg("indexer: per-repo failure")
	return cause
}

// readText searches case-insensitively for a top-level file starting with
// prefix; normalize controls whether readmetext.Normalize is applied
// (licenses are stored raw per SPEC_FULL §3.2)
func (ix *Indexer) readText(dir, prefix string, normalize bool) string {
	name, ok := findTopLevel(dir, prefix)
	if !ok {
		return ""
	}
	raw, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	if !normalize {
		return strings.TrimSpace(string(raw))
	}
	return readmetext.New().Normalize(string(raw))
}

// findTopLevel returns the first top-level directory entry whose name
// starts with prefix, case-insensitively
func findTopLevel(dir, prefix string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	upper := strings.ToUpper(prefix)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(strings.ToUpper(e.Name()), upper) {
			return e.Name(), true
		}
	}
	return "", false
}

// repoNameFromURL derives a filesystem-safe repo name from a clone URL,
// e.g. "https://example.com/org/repo.git" -> "repo"
func repoNameFromURL(url string) string {
	name := path.Base(strings.TrimSuffix(url, "/"))
	name = strings.TrimSuffix(name, ".git")
	if name == "" || name == "." || name == "/" {
		return fmt.Sprintf("repo-%d", time.Now().UnixNano())
	}
	return name
}
