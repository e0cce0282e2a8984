package storage

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"

	"PageviewsETL/internal/domain"
	"PageviewsETL/internal/ports"
)

// DefaultBatchSize caps the rows of one multi-row INSERT.
const DefaultBatchSize = 500

var upsertColumns = []string{"company", "page_title", "view_count", "domain", "execution_date"}

// SQLRepository persists pageviews into a SQL table with one row per company and hour.
type SQLRepository struct {
	db        *sql.DB
	dialect   Dialect
	batchSize int
	logger    *slog.Logger
}

var _ ports.PageviewRepository = (*SQLRepository)(nil)

// NewSQLRepository wires a sql.DB implementation.
func NewSQLRepository(db *sql.DB, dialect Dialect, batchSize int, logger *slog.Logger) *SQLRepository {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &SQLRepository{db: db, dialect: dialect, batchSize: batchSize, logger: logger}
}

// EnsureSchema creates the table and its indexes when missing.
func (r *SQLRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range r.dialect.Schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: create schema: %w", domain.ErrStorage, describe(err))
		}
	}
	r.logger.Debug("schema ready", "table", TableName, "dialect", r.dialect.Name)
	return nil
}

// Upsert writes records for hour in a single transaction. Records sharing a
// company keep the last one seen. Zero records is a no-op.
func (r *SQLRepository) Upsert(ctx context.Context, hour time.Time, records []domain.FilteredRecord) (int64, error) {
	hour = domain.TargetHour(hour)
	for _, rec := range records {
		if !domain.TargetHour(rec.ExecutionTime).Equal(hour) {
			return 0, fmt.Errorf("%w: record for %s tagged %s in load of %s",
				domain.ErrConfig, rec.Company, rec.ExecutionTime.UTC().Format(time.RFC3339), hour.Format(time.RFC3339))
		}
	}

	rows := Dedupe(records)
	if len(rows) == 0 {
		r.logger.Warn("no records to load", "hour", hour)
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %w", domain.ErrStorage, describe(err))
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var affected int64
	for start := 0; start < len(rows); start += r.batchSize {
		end := min(start+r.batchSize, len(rows))

		query, args, err := r.upsertStatement(hour, rows[start:end])
		if err != nil {
			return 0, fmt.Errorf("%w: build upsert: %v", domain.ErrStorage, err)
		}

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("%w: upsert rows %d-%d: %w", domain.ErrStorage, start, end, describe(err))
		}
		if n, err := res.RowsAffected(); err == nil {
			affected += n
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit: %w", domain.ErrStorage, describe(err))
	}
	committed = true

	r.logger.Info("upsert committed", "hour", hour, "records", len(rows), "rows_affected", affected)
	return affected, nil
}

func (r *SQLRepository) upsertStatement(hour time.Time, rows []domain.FilteredRecord) (string, []interface{}, error) {
	q := sq.Insert(TableName).
		Columns(upsertColumns...).
		PlaceholderFormat(r.dialect.Placeholder)
	for _, rec := range rows {
		q = q.Values(rec.Company, rec.PageTitle, rec.ViewCount, rec.Domain, hour)
	}
	return q.Suffix(r.dialect.UpsertSuffix).ToSql()
}

// Ranking returns every row for hour ordered by view count, ties by company.
func (r *SQLRepository) Ranking(ctx context.Context, hour time.Time) ([]domain.PageviewRow, error) {
	hour = domain.TargetHour(hour)

	query, args, err := sq.Select("id", "company", "page_title", "view_count", "domain", "execution_date", "created_at").
		From(TableName).
		Where(sq.Eq{"execution_date": hour}).
		OrderBy("view_count DESC", "company ASC").
		PlaceholderFormat(r.dialect.Placeholder).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: build ranking: %v", domain.ErrStorage, err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query ranking: %w", domain.ErrStorage, describe(err))
	}

	var result []domain.PageviewRow
	for rows.Next() {
		var (
			row       domain.PageviewRow
			createdAt sql.NullTime
		)
		if err := rows.Scan(&row.ID, &row.Company, &row.PageTitle, &row.ViewCount, &row.Domain, &row.ExecutionTime, &createdAt); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("%w: scan ranking row: %w", domain.ErrStorage, err)
		}
		row.ExecutionTime = row.ExecutionTime.UTC()
		if createdAt.Valid {
			row.CreatedAt = createdAt.Time.UTC()
		}
		result = append(result, row)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("%w: rows iteration: %w", domain.ErrStorage, describe(rowsErr))
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("%w: close rows: %w", domain.ErrStorage, closeErr)
	}

	if len(result) == 0 {
		return nil, fmt.Errorf("%w: no pageviews stored for %s", domain.ErrNoData, hour.Format("2006-01-02 15:00 UTC"))
	}

	return domain.Rank(result), nil
}

// Dedupe keeps one record per company, the last in input order, while
// preserving the position of each company's first appearance.
func Dedupe(records []domain.FilteredRecord) []domain.FilteredRecord {
	index := make(map[string]int, len(records))
	out := make([]domain.FilteredRecord, 0, len(records))
	for _, rec := range records {
		if i, ok := index[rec.Company]; ok {
			out[i] = rec
			continue
		}
		index[rec.Company] = len(out)
		out = append(out, rec)
	}
	return out
}
