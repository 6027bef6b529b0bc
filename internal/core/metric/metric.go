// Package metric holds the per-(repository, time sector) activity record
package metric

import "time"

// Metric is one sector's worth of commit activity for a repository
type Metric struct {
	RepoID         string
	AnchorCommitID string
	Additions      int
	Deletions      int
	CommitCount    int
	Activity       int
	Timestamp      time.Time
}

// ContributorStat aggregates one author's commit count across a repository
type ContributorStat struct {
	Name  string
	Email string
	Count int
}
