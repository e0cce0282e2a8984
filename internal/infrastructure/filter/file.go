package filter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"PageviewsETL/internal/domain"
	"PageviewsETL/internal/ports"
)

// FileFilter runs a Matcher over a dump file and writes the CSV artifact.
type FileFilter struct {
	matcher *Matcher
	logger  *slog.Logger
}

var _ ports.RecordFilter = (*FileFilter)(nil)

// NewFileFilter wraps matcher. A nil matcher still reads artifacts but
// refuses to filter.
func NewFileFilter(matcher *Matcher, logger *slog.Logger) *FileFilter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &FileFilter{matcher: matcher, logger: logger}
}

// FilterFile always rescans src, so a corrected company directory takes
// effect on the next run. dst is replaced atomically.
func (f *FileFilter) FilterFile(ctx context.Context, src, dst string, hour time.Time) (domain.FilterResult, error) {
	if f.matcher == nil {
		return domain.FilterResult{}, fmt.Errorf("%w: company directory not loaded", domain.ErrConfig)
	}

	in, err := os.Open(src)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.FilterResult{}, fmt.Errorf("%w: extracted dump %s not found (decompress stage not run?)", domain.ErrIO, src)
	}
	if err != nil {
		return domain.FilterResult{}, fmt.Errorf("%w: open %s: %v", domain.ErrIO, src, err)
	}
	defer in.Close()

	out, err := NewCSVWriter(dst)
	if err != nil {
		return domain.FilterResult{}, err
	}

	f.logger.Info("filtering dump", "src", src, "companies", f.matcher.dir.Len())

	var records []domain.FilteredRecord
	stats, err := f.matcher.Scan(ctx, in, hour, func(rec domain.FilteredRecord) error {
		records = append(records, rec)
		return out.Write(rec)
	})
	if err != nil {
		out.Abort()
		return domain.FilterResult{Stats: stats}, err
	}
	if err := out.Commit(); err != nil {
		return domain.FilterResult{Stats: stats}, err
	}

	f.logger.Info("filtering complete",
		"lines", stats.Lines, "matched", stats.Matched, "malformed", stats.Malformed, "path", dst)
	return domain.FilterResult{Path: dst, Records: records, Stats: stats}, nil
}

// ReadFiltered loads an artifact written by FilterFile.
func (f *FileFilter) ReadFiltered(path string) ([]domain.FilteredRecord, error) {
	return ReadArtifact(path)
}
