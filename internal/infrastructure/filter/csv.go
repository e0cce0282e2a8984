package filter

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"time"

	"PageviewsETL/internal/artifact"
	"PageviewsETL/internal/domain"
)

var csvHeader = []string{"company", "page_title", "view_count", "domain", "execution_date"}

const csvTimeLayout = "2006-01-02T15:04:05Z"

// CSVWriter writes filtered records to an artifact that appears atomically.
type CSVWriter struct {
	pending *artifact.Pending
	w       *csv.Writer
}

// NewCSVWriter opens a pending artifact at path and writes the header.
func NewCSVWriter(path string) (*CSVWriter, error) {
	pending, err := artifact.Create(path)
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(pending)
	if err := w.Write(csvHeader); err != nil {
		pending.Abort()
		return nil, fmt.Errorf("%w: write header %s: %v", domain.ErrIO, path, err)
	}
	return &CSVWriter{pending: pending, w: w}, nil
}

// Write appends one record.
func (c *CSVWriter) Write(rec domain.FilteredRecord) error {
	err := c.w.Write([]string{
		rec.Company,
		rec.PageTitle,
		strconv.FormatInt(rec.ViewCount, 10),
		rec.Domain,
		rec.ExecutionTime.UTC().Format(csvTimeLayout),
	})
	if err != nil {
		return fmt.Errorf("%w: write record: %v", domain.ErrIO, err)
	}
	return nil
}

// Commit flushes and publishes the artifact.
func (c *CSVWriter) Commit() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		c.pending.Abort()
		return fmt.Errorf("%w: flush csv: %v", domain.ErrIO, err)
	}
	return c.pending.Commit()
}

// Abort discards the artifact.
func (c *CSVWriter) Abort() {
	c.pending.Abort()
}

// ReadArtifact loads the records written by CSVWriter.
func ReadArtifact(path string) ([]domain.FilteredRecord, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: filtered artifact %s not found (filter stage not run?)", domain.ErrIO, path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", domain.ErrIO, path, err)
	}
	defer f.Close()

	records, err := DecodeCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// DecodeCSV parses the artifact format from r.
func DecodeCSV(r io.Reader) ([]domain.FilteredRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(csvHeader)
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: artifact has no header", domain.ErrIO)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", domain.ErrIO, err)
	}
	for i, name := range csvHeader {
		if header[i] != name {
			return nil, fmt.Errorf("%w: unexpected column %q at %d", domain.ErrIO, header[i], i)
		}
	}

	var records []domain.FilteredRecord
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read record: %v", domain.ErrIO, err)
		}

		views, err := strconv.ParseInt(row[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: view count %q: %v", domain.ErrIO, row[2], err)
		}
		at, err := time.Parse(csvTimeLayout, row[4])
		if err != nil {
			return nil, fmt.Errorf("%w: execution date %q: %v", domain.ErrIO, row[4], err)
		}

		records = append(records, domain.FilteredRecord{
			Company:       row[0],
			PageTitle:     row[1],
			ViewCount:     views,
			Domain:        row[3],
			ExecutionTime: at.UTC(),
		})
	}
	return records, nil
}
