package filter

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"PageviewsETL/internal/directory"
	"PageviewsETL/internal/domain"
)

const (
	maxLineSize   = 1024 * 1024
	progressEvery = 1_000_000
)

// ParseLine splits "domain page_title view_count response_size".
func ParseLine(line string) (domain.DumpRecord, error) {
	fields := strings.Split(line, " ")
	if len(fields) != 4 {
		return domain.DumpRecord{}, fmt.Errorf("%w: want 4 fields, got %d", domain.ErrMalformedRecord, len(fields))
	}
	if fields[0] == "" || fields[1] == "" {
		return domain.DumpRecord{}, fmt.Errorf("%w: empty domain or title", domain.ErrMalformedRecord)
	}

	views, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil || views < 0 {
		return domain.DumpRecord{}, fmt.Errorf("%w: view count %q", domain.ErrMalformedRecord, fields[2])
	}
	size, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return domain.DumpRecord{}, fmt.Errorf("%w: response size %q", domain.ErrMalformedRecord, fields[3])
	}

	return domain.DumpRecord{
		Domain:       fields[0],
		PageTitle:    fields[1],
		ViewCount:    views,
		ResponseSize: size,
	}, nil
}

// Matcher selects dump records belonging to tracked companies.
type Matcher struct {
	dir     *directory.Directory
	domains map[string]struct{}
	logger  *slog.Logger
}

// NewMatcher builds a matcher over dir. An empty domains list keeps every domain.
func NewMatcher(dir *directory.Directory, domains []string, logger *slog.Logger) *Matcher {
	m := &Matcher{dir: dir, logger: logger}
	if len(domains) > 0 {
		m.domains = make(map[string]struct{}, len(domains))
		for _, d := range domains {
			m.domains[d] = struct{}{}
		}
	}
	if m.logger == nil {
		m.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return m
}

// Match returns the company tracking rec's page title.
func (m *Matcher) Match(rec domain.DumpRecord) (string, bool) {
	if m.domains != nil {
		if _, ok := m.domains[rec.Domain]; !ok {
			return "", false
		}
	}
	return m.dir.Lookup(rec.PageTitle)
}

// Scan streams r line by line and calls emit for every match, in input order.
// Malformed lines are tallied and skipped. An emit error stops the scan.
func (m *Matcher) Scan(ctx context.Context, r io.Reader, hour time.Time, emit func(domain.FilteredRecord) error) (domain.FilterStats, error) {
	hour = domain.TargetHour(hour)

	var stats domain.FilterStats
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		stats.Lines++

		if stats.Lines%progressEvery == 0 {
			m.logger.Info("filter progress", "lines", stats.Lines, "matched", stats.Matched, "malformed", stats.Malformed)
			if err := ctx.Err(); err != nil {
				return stats, err
			}
		}

		rec, err := ParseLine(line)
		if err != nil {
			stats.Malformed++
			continue
		}

		company, ok := m.Match(rec)
		if !ok {
			continue
		}

		stats.Matched++
		if err := emit(domain.FilteredRecord{
			Company:       company,
			PageTitle:     rec.PageTitle,
			Domain:        rec.Domain,
			ViewCount:     rec.ViewCount,
			ExecutionTime: hour,
		}); err != nil {
			return stats, err
		}
	}

	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("%w: read dump after %d lines: %v", domain.ErrIO, stats.Lines, err)
	}
	return stats, nil
}
