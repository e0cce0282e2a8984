package domain

import (
	"sort"
	"time"
)

// DumpRecord is one line of an hourly pageview dump.
type DumpRecord struct {
	Domain       string
	PageTitle    string
	ViewCount    int64
	ResponseSize int64
}

// FilteredRecord is a dump line that matched a tracked company, tagged with the run hour.
type FilteredRecord struct {
	Company       string
	PageTitle     string
	Domain        string
	ViewCount     int64
	ExecutionTime time.Time
}

// PageviewRow is the persisted form of a FilteredRecord.
type PageviewRow struct {
	ID            int64
	Company       string
	PageTitle     string
	ViewCount     int64
	Domain        string
	ExecutionTime time.Time
	CreatedAt     time.Time
}

// ArtifactResult describes the file a stage produced or found already in place.
type ArtifactResult struct {
	Path    string
	Bytes   int64
	Skipped bool
	Reason  string
}

// SkipReasonPresent is reported when a stage finds its output already on disk.
const SkipReasonPresent = "already present"

// FilterStats tallies one pass over an uncompressed dump.
type FilterStats struct {
	Lines     int64
	Matched   int64
	Malformed int64
}

// FilterResult is the outcome of the filter stage.
type FilterResult struct {
	Path    string
	Records []FilteredRecord
	Stats   FilterStats
}

// LoadResult is the outcome of the upsert stage.
type LoadResult struct {
	Records      int
	RowsAffected int64
}

// Report is the ranked view of one hour.
type Report struct {
	Hour    time.Time
	Ranking []PageviewRow
}

// Highest returns the top ranked row.
func (r Report) Highest() (PageviewRow, bool) {
	if len(r.Ranking) == 0 {
		return PageviewRow{}, false
	}
	return r.Ranking[0], true
}

// Rank orders rows by view count descending, ties broken by company ascending.
// The input slice is not modified.
func Rank(rows []PageviewRow) []PageviewRow {
	ranked := make([]PageviewRow, len(rows))
	copy(ranked, rows)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].ViewCount != ranked[j].ViewCount {
			return ranked[i].ViewCount > ranked[j].ViewCount
		}
		return ranked[i].Company < ranked[j].Company
	})
	return ranked
}
