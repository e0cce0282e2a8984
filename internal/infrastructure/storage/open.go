package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"PageviewsETL/internal/config"
	"PageviewsETL/internal/domain"
)

// Open connects to the configured database and verifies the connection.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, Dialect, error) {
	dialect, err := LookupDialect(cfg.Driver)
	if err != nil {
		return nil, Dialect{}, fmt.Errorf("%w: %v", domain.ErrConfig, err)
	}

	dsn := cfg.DSN
	if dialect.Name == "mysql" {
		dsn, err = normalizeMySQLDSN(dsn)
		if err != nil {
			return nil, Dialect{}, err
		}
	}

	db, err := sql.Open(dialect.DriverName, dsn)
	if err != nil {
		return nil, Dialect{}, fmt.Errorf("%w: open %s: %w", domain.ErrStorage, dialect.Name, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, Dialect{}, fmt.Errorf("%w: ping %s: %w", domain.ErrStorage, dialect.Name, describe(err))
	}

	return db, dialect, nil
}

// normalizeMySQLDSN forces DATETIME columns to scan as UTC time.Time.
func normalizeMySQLDSN(dsn string) (string, error) {
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("%w: mysql dsn: %v", domain.ErrConfig, err)
	}
	parsed.ParseTime = true
	parsed.Loc = time.UTC
	return parsed.FormatDSN(), nil
}

// describe keeps err in the chain and adds the SQLSTATE name for Postgres.
// MySQL errors already carry their number in Error().
func describe(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("%w (sqlstate %s %s)", err, pqErr.Code, pqErr.Code.Name())
	}
	return err
}
