// Package vcs wraps go-git with the four operations the indexing pipeline
// needs: Clone, Init (local open), Walk (commits reachable from HEAD), and
// Diff between two commits. It is the pure-Go stand-in for the libgit2
// binding the reference implementation uses, so dex carries no cgo
// dependency.
package vcs

import (
	"context"
	"fmt"
	"io"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Repo wraps an open go-git repository
type Repo struct {
	repo *git.Repository
}

// Commit is the subset of object.Commit fields callers need
type Commit struct {
	ID         string
	Time       int64 // unix seconds, committer time
	AuthorName string
	Email      string

	commit *object.Commit
}

// Patch is the additions/deletions sum of a diff between two commits
type Patch struct {
	Additions int
	Deletions int
}

// Clone clones url into path and returns an open Repo handle
func Clone(ctx context.Context, url, path string) (*Repo, error) {
	r, err := git.PlainCloneContext(ctx, path, false, &git.CloneOptions{
		URL:   url,
		Depth: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("vcs: clone %s: %w", url, err)
	}
	return &Repo{repo: r}, nil
}

// Init opens an already-materialized repository at path without cloning
// (used by tests and by re-indexing a working copy left from a prior run)
func Init(path string) (*Repo, error) {
	r, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("vcs: open %s: %w", path, err)
	}
	return &Repo{repo: r}, nil
}

// Walk returns the commits reachable from HEAD in go-git's
// LogOrderCommitterTime order (newest committer time first), not in
// topological order; the sampler only needs a descending-time ordering,
// which it re-sorts explicitly anyway
func (r *Repo) Walk(ctx context.Context) ([]Commit, error) {
	head, err := r.repo.Head()
	if err != nil {
		// an empty repository (no commits) has no HEAD; treat as zero commits
		if err == plumbing.ErrReferenceNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("vcs: head: %w", err)
	}

	iter, err := r.repo.Log(&git.LogOptions{From: head.Hash(), Order: git.LogOrderCommitterTime})
	if err != nil {
		return nil, fmt.Errorf("vcs: log: %w", err)
	}
	defer iter.Close()

	var out []Commit
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, err := iter.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("vcs: log iter: %w", err)
		}
		out = append(out, Commit{
			ID:         c.Hash.String(),
			Time:       c.Committer.When.Unix(),
			AuthorName: c.Author.Name,
			Email:      c.Author.Email,
			commit:     c,
		})
	}
	return out, nil
}

// Diff sums additions/deletions across the patch between two commit ids.
// newer is the commit closer to HEAD (c0), older is further back (c_{k-1}).
// A missing/unreachable commit id is reported as an error; callers treat
// that as a zeroed Patch per spec §4.1 step 6.
func (r *Repo) Diff(ctx context.Context, newer, older Commit) (Patch, error) {
	if newer.commit == nil || older.commit == nil {
		return Patch{}, fmt.Errorf("vcs: diff: commit object not resolved")
	}
	if newer.ID == older.ID {
		return Patch{}, nil
	}

	patch, err := older.commit.PatchContext(ctx, newer.commit)
	if err != nil {
		return Patch{}, fmt.Errorf("vcs: diff %s..%s: %w", older.ID, newer.ID, err)
	}

	var p Patch
	for _, fs := range patch.Stats() {
		p.Additions += fs.Addition
		p.Deletions += fs.Deletion
	}
	return p, nil
}

// Close releases resources held by the repo (go-git holds none beyond the
// in-process object cache; kept for symmetry with the scoped workdir guard)
func (r *Repo) Close() error { return nil }

// Resolve looks up a commit by id and returns it as a Commit, for callers
// that only have a bare hash string (e.g. an anchor_commit_id) rather than
// a Commit produced by Walk.
func (r *Repo) Resolve(id string) (Commit, error) {
	h := plumbing.NewHash(id)
	c, err := r.repo.CommitObject(h)
	if err != nil {
		return Commit{}, fmt.Errorf("vcs: resolve %s: %w", id, err)
	}
	return Commit{ID: c.Hash.String(), Time: c.Committer.When.Unix(), AuthorName: c.Author.Name, Email: c.Author.Email, commit: c}, nil
}
