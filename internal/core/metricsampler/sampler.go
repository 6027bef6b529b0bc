// Package metricsampler buckets a repository's commit history into
// fixed-width time sectors and scores each sector's activity (spec.md
// §4.1, C5). It also extracts per-contributor commit counts as a second
// pass over the same commit list (spec.md §4.1's named-but-unhomed
// contributor extraction, promoted to a concrete algorithm here).
package metricsampler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"dex/internal/core/metric"
	"dex/internal/core/sector"
	"dex/internal/core/vcs"
)

// Repo is the subset of vcs.Repo the sampler needs, kept narrow so tests
// can fake it without a real clone
type Repo interface {
	Walk(ctx context.Context) ([]vcs.Commit, error)
	Diff(ctx context.Context, newer, older vcs.Commit) (vcs.Patch, error)
}

// Sample walks HEAD, buckets commits into resolution-wide sectors, and
// returns one Metric per non-empty sector, newest-first.
func Sample(ctx context.Context, repo Repo, repoID string, resolution time.Duration) ([]metric.Metric, error) {
	if resolution <= 0 {
		resolution = sector.DefaultResolution
	}

	commits, err := repo.Walk(ctx)
	if err != nil {
		return nil, err
	}
	if len(commits) == 0 {
		return nil, nil
	}

	// sort descending by commit_time (step 1)
	sort.Slice(commits, func(i, j int) bool { return commits[i].Time > commits[j].Time })

	anchor := time.Unix(commits[0].Time, 0).UTC()
	gen := sector.NewGenerator(anchor, resolution)

	var metrics []metric.Metric
	var bucket []vcs.Commit
	cur := gen.Current()

	flush := func() error {
		if len(bucket) == 0 {
			return nil
		}
		m, err := score(ctx, repo, repoID, bucket)
		if err != nil {
			return err
		}
		metrics = append(metrics, m)
		return nil
	}

	for _, c := range commits {
		t := time.Unix(c.Time, 0).UTC()
		if !cur.Contains(t) {
			// close current sector, open a fresh one anchored at this
			// commit's time and reprocess the commit there (step 3)
			if err := flush(); err != nil {
				return nil, err
			}
			bucket = nil
			gen = sector.NewGenerator(t, resolution)
			cur = gen.Current()
		}
		bucket = append(bucket, c)
	}
	if err := flush(); err != nil {
		return nil, err
	}

	return metrics, nil
}

// score computes one Metric from a sector's commits (descending order
// inside the sector, c0 newest .. c_{k-1} oldest), per spec.md §4.1 step 5
func score(ctx context.Context, repo Repo, repoID string, bucket []vcs.Commit) (metric.Metric, error) {
	k := len(bucket)
	newest := bucket[0]
	oldest := bucket[k-1]

	var additions, deletions int
	if k > 0 {
		patch, err := repo.Diff(ctx, newest, oldest)
		if err != nil {
			// diff failure yields zeros, sector is still emitted (step 6)
			additions, deletions = 0, 0
		} else {
			additions, deletions = patch.Additions, patch.Deletions
		}
	}

	// activity = 1/k + additions + deletions, integer division preserved
	// exactly as the reference implementation computes it (spec.md §9 Open
	// Questions): this evaluates to 1 when k==1 and 0 for k>1.
	activity := 1/k + additions + deletions

	return metric.Metric{
		RepoID:         repoID,
		AnchorCommitID: newest.ID,
		Additions:      additions,
		Deletions:      deletions,
		CommitCount:    k,
		Activity:       activity,
		Timestamp:      time.Unix(oldest.Time, 0).UTC(),
	}, nil
}

// Contributors aggregates (email -> {name, count}) over the full commit
// list, independent of sector bucketing
func Contributors(commits []vcs.Commit) map[string]metric.ContributorStat {
	out := make(map[string]metric.ContributorStat, len(commits))
	for _, c := range commits {
		email := c.Email
		if email == "" {
			email = fmt.Sprintf("unknown:%s", c.ID)
		}
		cur := out[email]
		cur.Email = email
		if cur.Name == "" {
			cur.Name = c.AuthorName
		}
		cur.Count++
		out[email] = cur
	}
	return out
}
