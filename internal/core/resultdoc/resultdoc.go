// Package resultdoc assembles the Result Document written to the search
// sink (spec.md §3, §4.6, C6). Build is a pure function — no I/O.
package resultdoc

import (
	"sort"
	"time"

	"dex/internal/core/langstats"
	"dex/internal/core/metric"
)

// Languages mirrors the Result Document's repository.languages shape
type Languages struct {
	Common    langstats.Lang   `json:"common"`
	Secondary []langstats.Lang `json:"secondary"`
}

// Repository is the repository.* subtree of the Result Document
type Repository struct {
	Name         string                   `json:"name"`
	URL          string                   `json:"url"`
	Languages    Languages                `json:"languages"`
	Contributors []metric.ContributorStat `json:"contributors,omitempty"`
}

// Text is the text.* subtree: readme, license, changelog. All three are
// optional — a missing file is not an error and leaves the field empty.
type Text struct {
	Readme    string `json:"readme,omitempty"`
	License   string `json:"license,omitempty"`
	Changelog string `json:"changelog,omitempty"`
}

// Document is the full Result Document, keyed by repo id in the sink
type Document struct {
	Repository Repository `json:"repository"`
	Text       Text       `json:"text"`
	Processed  time.Time  `json:"processed"`
}

// TopNContributors bounds how many contributors ride along in the document;
// the full set is still persisted to the metric store's contributors table.
const TopNContributors = 20

// Build assembles a Document from language stats, readme/license/changelog
// text, and the contributor aggregate. now is passed in rather than taken
// from time.Now() so callers control the stamped Processed instant.
func Build(name, url string, stats langstats.Stats, text Text, contributors map[string]metric.ContributorStat, now time.Time) Document {
	return Document{
		Repository: Repository{
			Name: name,
			URL:  url,
			Languages: Languages{
				Common:    stats.Common,
				Secondary: stats.Secondary,
			},
			Contributors: topContributors(contributors, TopNContributors),
		},
		Text:      text,
		Processed: now,
	}
}

// topContributors returns the top-N contributors by commit count,
// descending, for embedding in the document (the full set lives in the
// metric store regardless of N)
func topContributors(m map[string]metric.ContributorStat, n int) []metric.ContributorStat {
	if len(m) == 0 {
		return nil
	}
	out := make([]metric.ContributorStat, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
