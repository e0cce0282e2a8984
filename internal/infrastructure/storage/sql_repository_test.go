package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PageviewsETL/internal/domain"
)

var testHour = time.Date(2025, time.December, 1, 12, 0, 0, 0, time.UTC)

const (
	postgresUpsert = `INSERT INTO wikipedia_pageviews \(company,page_title,view_count,domain,execution_date\) VALUES .* ON CONFLICT \(company, execution_date\) DO UPDATE SET view_count = EXCLUDED.view_count`
	rankingQuery   = `FROM wikipedia_pageviews WHERE execution_date = \$1 ORDER BY view_count DESC, company ASC`
)

func newRepo(t *testing.T, dialectName string, batchSize int) (*SQLRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	dialect, err := LookupDialect(dialectName)
	require.NoError(t, err)
	return NewSQLRepository(db, dialect, batchSize, nil), mock
}

func record(company, title, dom string, views int64) domain.FilteredRecord {
	return domain.FilteredRecord{Company: company, PageTitle: title, Domain: dom, ViewCount: views, ExecutionTime: testHour}
}

func TestEnsureSchemaPostgres(t *testing.T) {
	t.Parallel()

	repo, mock := newRepo(t, "postgres", 0)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS wikipedia_pageviews .* UNIQUE \(company, execution_date\)`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	for _, idx := range []string{"idx_pageviews_company", "idx_pageviews_execution_date", "idx_pageviews_view_count"} {
		mock.ExpectExec(`CREATE INDEX IF NOT EXISTS ` + idx).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, repo.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSingleStatementInOneTransaction(t *testing.T) {
	t.Parallel()

	repo, mock := newRepo(t, "postgres", 0)
	mock.ExpectBegin()
	mock.ExpectExec(postgresUpsert).
		WithArgs(
			"Amazon", "Amazon_(company)", int64(1200), "en", sqlmock.AnyArg(),
			"Apple", "Apple_Inc.", int64(800), "en", sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	n, err := repo.Upsert(context.Background(), testHour, []domain.FilteredRecord{
		record("Amazon", "Amazon_(company)", "en", 1200),
		record("Apple", "Apple_Inc.", "en", 800),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertDeduplicatesKeepingLastRecord(t *testing.T) {
	t.Parallel()

	repo, mock := newRepo(t, "postgres", 0)
	mock.ExpectBegin()
	mock.ExpectExec(postgresUpsert).
		WithArgs(
			"Amazon", "Amazon_(company)", int64(300), "en.m", sqlmock.AnyArg(),
			"Apple", "Apple_Inc.", int64(5), "en", sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	_, err := repo.Upsert(context.Background(), testHour, []domain.FilteredRecord{
		record("Amazon", "Amazon_(company)", "en", 100),
		record("Apple", "Apple_Inc.", "en", 5),
		record("Amazon", "Amazon_(company)", "en.m", 300),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBatches(t *testing.T) {
	t.Parallel()

	repo, mock := newRepo(t, "postgres", 2)
	mock.ExpectBegin()
	mock.ExpectExec(postgresUpsert).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(postgresUpsert).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := repo.Upsert(context.Background(), testHour, []domain.FilteredRecord{
		record("A", "A_page", "en", 1),
		record("B", "B_page", "en", 2),
		record("C", "C_page", "en", 3),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertZeroRecordsIsNoop(t *testing.T) {
	t.Parallel()

	repo, mock := newRepo(t, "postgres", 0)

	n, err := repo.Upsert(context.Background(), testHour, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	repo, mock := newRepo(t, "postgres", 1)
	mock.ExpectBegin()
	mock.ExpectExec(postgresUpsert).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(postgresUpsert).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := repo.Upsert(context.Background(), testHour, []domain.FilteredRecord{
		record("A", "A_page", "en", 1),
		record("B", "B_page", "en", 2),
	})
	require.ErrorIs(t, err, domain.ErrStorage)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertKeepsCancellationInChain(t *testing.T) {
	t.Parallel()

	repo, mock := newRepo(t, "postgres", 1)
	mock.ExpectBegin()
	mock.ExpectExec(postgresUpsert).WillReturnError(context.Canceled)
	mock.ExpectRollback()

	_, err := repo.Upsert(context.Background(), testHour, []domain.FilteredRecord{record("A", "A_page", "en", 1)})
	require.ErrorIs(t, err, domain.ErrStorage)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.KindCanceled, domain.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBeginDeadlineIsCanceled(t *testing.T) {
	t.Parallel()

	repo, mock := newRepo(t, "postgres", 0)
	mock.ExpectBegin().WillReturnError(context.DeadlineExceeded)

	_, err := repo.Upsert(context.Background(), testHour, []domain.FilteredRecord{record("A", "A_page", "en", 1)})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, domain.KindCanceled, domain.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDescribeKeepsDriverError(t *testing.T) {
	t.Parallel()

	pqErr := &pq.Error{Code: "23505", Message: "duplicate key value"}
	err := describe(pqErr)
	assert.Contains(t, err.Error(), "unique_violation")

	var got *pq.Error
	require.True(t, errors.As(err, &got))
}

func TestUpsertRejectsRecordsFromAnotherHour(t *testing.T) {
	t.Parallel()

	repo, mock := newRepo(t, "postgres", 0)
	stray := record("A", "A_page", "en", 1)
	stray.ExecutionTime = testHour.Add(time.Hour)

	_, err := repo.Upsert(context.Background(), testHour, []domain.FilteredRecord{stray})
	require.ErrorIs(t, err, domain.ErrConfig)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertMySQL(t *testing.T) {
	t.Parallel()

	repo, mock := newRepo(t, "mysql", 0)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("VALUES (?,?,?,?,?) AS new ON DUPLICATE KEY UPDATE view_count = new.view_count")).
		WithArgs("Apple", "Apple_Inc.", int64(9), "en", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	_, err := repo.Upsert(context.Background(), testHour, []domain.FilteredRecord{record("Apple", "Apple_Inc.", "en", 9)})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRanking(t *testing.T) {
	t.Parallel()

	repo, mock := newRepo(t, "postgres", 0)
	columns := []string{"id", "company", "page_title", "view_count", "domain", "execution_date", "created_at"}
	mock.ExpectQuery(rankingQuery).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(int64(2), "B", "B_page", int64(100), "en", testHour, testHour).
			AddRow(int64(1), "A", "A_page", int64(100), "en", testHour, testHour).
			AddRow(int64(3), "C", "C_page", int64(50), "en", testHour, nil))

	rows, err := repo.Ranking(context.Background(), testHour)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "A", rows[0].Company)
	assert.Equal(t, "B", rows[1].Company)
	assert.Equal(t, "C", rows[2].Company)
	assert.True(t, rows[2].CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRankingNoData(t *testing.T) {
	t.Parallel()

	repo, mock := newRepo(t, "postgres", 0)
	mock.ExpectQuery(rankingQuery).
		WillReturnRows(sqlmock.NewRows([]string{"id", "company", "page_title", "view_count", "domain", "execution_date", "created_at"}))

	_, err := repo.Ranking(context.Background(), testHour)
	require.ErrorIs(t, err, domain.ErrNoData)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDedupe(t *testing.T) {
	t.Parallel()

	got := Dedupe([]domain.FilteredRecord{
		record("Apple", "Apple_Inc.", "en", 1),
		record("Amazon", "Amazon_(company)", "en", 2),
		record("Apple", "Apple_Inc.", "de", 3),
	})
	require.Len(t, got, 2)
	assert.Equal(t, "Apple", got[0].Company)
	assert.Equal(t, "de", got[0].Domain)
	assert.Equal(t, "Amazon", got[1].Company)
}

func TestLookupDialect(t *testing.T) {
	t.Parallel()

	_, err := LookupDialect("sqlite")
	require.Error(t, err)
	assert.Equal(t, []string{"mysql", "postgres"}, DialectNames())
}

func TestNormalizeMySQLDSN(t *testing.T) {
	t.Parallel()

	dsn, err := normalizeMySQLDSN("etl:secret@tcp(db:3306)/analytics")
	require.NoError(t, err)
	assert.Contains(t, dsn, "parseTime=true")
}
