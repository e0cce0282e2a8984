package ports

import (
	"context"
	"time"

	"PageviewsETL/internal/domain"
)

// DumpFetcher downloads the compressed dump for one hour.
type DumpFetcher interface {
	Fetch(ctx context.Context, hour time.Time, dst string) (domain.ArtifactResult, error)
}

// Extractor turns a compressed artifact into its uncompressed sibling.
type Extractor interface {
	Extract(ctx context.Context, src, dst string) (domain.ArtifactResult, error)
}

// PageviewRepository persists filtered records and answers the ranking query.
// Ranking returns rows ordered by domain.Rank, or an error wrapping
// domain.ErrNoData when nothing is stored for the hour; it never returns an
// empty slice with a nil error.
type PageviewRepository interface {
	EnsureSchema(ctx context.Context) error
	Upsert(ctx context.Context, hour time.Time, records []domain.FilteredRecord) (int64, error)
	Ranking(ctx context.Context, hour time.Time) ([]domain.PageviewRow, error)
}

// DumpIndex lists the hours Wikimedia has already published.
type DumpIndex interface {
	PublishedHours(ctx context.Context, month time.Time) ([]time.Time, error)
}

// StageRecorder observes stage outcomes (metrics, audit).
type StageRecorder interface {
	ObserveStage(stage string, elapsed time.Duration, err error)
	ObserveFilter(stats domain.FilterStats)
	ObserveLoad(rows int64)
}

// RecordFilter reduces an uncompressed dump to tracked-company records and
// hands them to the loader through an intermediate artifact.
type RecordFilter interface {
	FilterFile(ctx context.Context, src, dst string, hour time.Time) (domain.FilterResult, error)
	ReadFiltered(path string) ([]domain.FilteredRecord, error)
}
