// Package artifact owns the on-disk layout of per-hour pipeline files and the
// write-to-temp-then-rename discipline every stage uses.
package artifact

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"PageviewsETL/internal/domain"
)

// Layout derives every artifact path from the target hour, so runs for
// different hours never touch the same files.
type Layout struct {
	RawDir       string
	ProcessedDir string
}

// DumpName is the published file name for an hour, e.g. pageviews-20251217-160000.gz.
func DumpName(hour time.Time) string {
	return "pageviews-" + domain.HourStamp(hour) + ".gz"
}

// CompressedPath is where the fetcher stores the raw dump.
func (l Layout) CompressedPath(hour time.Time) string {
	return filepath.Join(l.RawDir, DumpName(hour))
}

// ExtractedPath is the uncompressed sibling of the raw dump.
func (l Layout) ExtractedPath(hour time.Time) string {
	return filepath.Join(l.ProcessedDir, "pageviews-"+domain.HourStamp(hour))
}

// FilteredPath is the intermediate CSV handed from the filter to the loader.
func (l Layout) FilteredPath(hour time.Time) string {
	return filepath.Join(l.ProcessedDir, "filtered_pageviews-"+domain.HourStamp(hour)+".csv")
}

// Present reports whether path exists as a non-empty regular file, and its size.
func Present(path string) (bool, int64, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("%w: stat %s: %v", domain.ErrIO, path, err)
	}
	if !info.Mode().IsRegular() {
		return false, 0, fmt.Errorf("%w: %s is not a regular file", domain.ErrIO, path)
	}
	return info.Size() > 0, info.Size(), nil
}

// Pending is a temp file that becomes visible at its final path only on Commit.
type Pending struct {
	*os.File
	final string
	done  bool
}

// Create opens a temp file next to final, creating the parent directory.
func Create(final string) (*Pending, error) {
	dir := filepath.Dir(final)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create dir %s: %v", domain.ErrIO, dir, err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(final)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("%w: create temp for %s: %v", domain.ErrIO, final, err)
	}
	return &Pending{File: f, final: final}, nil
}

// Commit flushes, closes and renames the temp file onto the final path.
func (p *Pending) Commit() error {
	if p.done {
		return nil
	}
	p.done = true
	tmp := p.File.Name()
	if err := p.File.Sync(); err != nil {
		_ = p.File.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: sync %s: %v", domain.ErrIO, tmp, err)
	}
	if err := p.File.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: close %s: %v", domain.ErrIO, tmp, err)
	}
	if err := os.Rename(tmp, p.final); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: rename %s: %v", domain.ErrIO, p.final, err)
	}
	return nil
}

// Abort drops the temp file. It is a no-op after Commit.
func (p *Pending) Abort() {
	if p.done {
		return
	}
	p.done = true
	_ = p.File.Close()
	_ = os.Remove(p.File.Name())
}

// WriteError marks failures of the wrapped writer as local IO errors, so a
// copy loop can tell a bad disk from a bad source.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string { return "write: " + e.Err.Error() }
func (e *WriteError) Unwrap() error { return e.Err }

// TagWriter wraps w so its errors come back as *WriteError.
func TagWriter(w io.Writer) *TaggedWriter {
	return &TaggedWriter{w: w}
}

// TaggedWriter is the writer returned by TagWriter.
type TaggedWriter struct {
	w io.Writer
}

func (t *TaggedWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil {
		return n, &WriteError{Err: err}
	}
	return n, nil
}
