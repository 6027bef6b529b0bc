// Package langstats aggregates a cloc language breakdown into the Result
// Document's common/secondary language shape (spec.md §4.2 step 2, §4.6)
package langstats

import (
	"sort"

	"dex/internal/core/cloc"
)

// Lang is one language's share of a repository, percentage as a [0,1] ratio
type Lang struct {
	Language   string
	Files      int
	Lines      int
	Comments   int
	Blank      int
	Total      int
	Percentage float64
}

// Stats is the common/secondary split the Result Document embeds
type Stats struct {
	Common    Lang
	Secondary []Lang
}

// Build picks the language with maximal code share as Common and sorts the
// rest descending by code into Secondary. An empty input (no languages)
// returns a zero Stats — callers should already have failed with
// StatisticsUnavailable before reaching here in that case.
func Build(langs []cloc.Language) Stats {
	if len(langs) == 0 {
		return Stats{}
	}

	totalCode := 0
	for _, l := range langs {
		totalCode += l.Code
	}

	sorted := make([]cloc.Language, len(langs))
	copy(sorted, langs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Code > sorted[j].Code })

	toLang := func(l cloc.Language) Lang {
		total := l.Code + l.Comments + l.Blank
		var pct float64
		if totalCode > 0 {
			pct = float64(l.Code) / float64(totalCode)
		}
		return Lang{
			Language:   l.Name,
			Files:      l.Files,
			Lines:      l.Code,
			Comments:   l.Comments,
			Blank:      l.Blank,
			Total:      total,
			Percentage: pct,
		}
	}

	common := toLang(sorted[0])
	secondary := make([]Lang, 0, len(sorted)-1)
	for _, l := range sorted[1:] {
		secondary = append(secondary, toLang(l))
	}

	return Stats{Common: common, Secondary: secondary}
}
