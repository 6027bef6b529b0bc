// Package guardrails holds cross cutting timeout helpers for the indexer
package guardrails

import (
	"context"
	"time"
)

// Timeouts is an optional budget bundle for one repository's indexing pass.
// Zero values mean no extra timeout at that phase
type Timeouts struct {
	// Repo is the overall time budget for indexing one repository
	Repo time.Duration

	// Clone caps the VCS clone step
	Clone time.Duration

	// Stats caps the external line-counter invocation
	Stats time.Duration

	// Metrics caps the commit walk and sector sampling step
	Metrics time.Duration

	// DB caps catalog/metric store writes
	DB time.Duration
}

// WithRepo returns a context limited by the given repo budget without extending any parent deadline
func WithRepo(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.Repo)
}

// ForClone returns a sub context for the clone phase
func ForClone(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.Clone)
}

// ForStats returns a sub context for the language-statistics phase
func ForStats(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.Stats)
}

// ForMetrics returns a sub context for the metric-sampling phase
func ForMetrics(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.Metrics)
}

// ForDB returns a sub context for the db phase
func ForDB(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.DB)
}

// Remaining returns the time until the deadline on ctx or zero when none is set or already expired
func Remaining(ctx context.Context) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		d := time.Until(dl)
		if d > 0 {
			return d
		}
	}
	return 0
}

// withChildTimeout chooses the tighter of the requested duration and any parent remainder.
// Never extends the parent deadline. When d is zero it returns a simple cancelable child
// inheriting the parent deadline
func withChildTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	if rem := Remaining(parent); rem > 0 && rem < d {
		return context.WithTimeout(parent, rem)
	}
	return context.WithTimeout(parent, d)
}
