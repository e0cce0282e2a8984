package storage

import (
	"fmt"
	"sort"

	sq "github.com/Masterminds/squirrel"
)

// TableName is the persisted pageview table.
const TableName = "wikipedia_pageviews"

// Dialect captures what differs between the supported SQL engines.
type Dialect struct {
	Name         string
	DriverName   string
	Placeholder  sq.PlaceholderFormat
	Schema       []string
	UpsertSuffix string
}

var dialects = map[string]Dialect{
	"postgres": {
		Name:        "postgres",
		DriverName:  "postgres",
		Placeholder: sq.Dollar,
		Schema: []string{
			`CREATE TABLE IF NOT EXISTS ` + TableName + ` (
    id SERIAL PRIMARY KEY,
    company VARCHAR(100) NOT NULL,
    page_title VARCHAR(255) NOT NULL,
    view_count BIGINT NOT NULL,
    domain VARCHAR(100) NOT NULL,
    execution_date TIMESTAMP NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (company, execution_date)
)`,
			`CREATE INDEX IF NOT EXISTS idx_pageviews_company ON ` + TableName + ` (company)`,
			`CREATE INDEX IF NOT EXISTS idx_pageviews_execution_date ON ` + TableName + ` (execution_date)`,
			`CREATE INDEX IF NOT EXISTS idx_pageviews_view_count ON ` + TableName + ` (view_count)`,
		},
		UpsertSuffix: `ON CONFLICT (company, execution_date) DO UPDATE SET
    view_count = EXCLUDED.view_count,
    page_title = EXCLUDED.page_title,
    domain = EXCLUDED.domain`,
	},
	"mysql": {
		Name:        "mysql",
		DriverName:  "mysql",
		Placeholder: sq.Question,
		Schema: []string{
			`CREATE TABLE IF NOT EXISTS ` + TableName + ` (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    company VARCHAR(100) NOT NULL,
    page_title VARCHAR(255) NOT NULL,
    view_count BIGINT NOT NULL,
    domain VARCHAR(100) NOT NULL,
    execution_date DATETIME NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE KEY uq_pageviews_company_hour (company, execution_date),
    KEY idx_pageviews_company (company),
    KEY idx_pageviews_execution_date (execution_date),
    KEY idx_pageviews_view_count (view_count)
) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin`,
		},
		// Row alias form; needs MySQL 8.0.19 or newer.
		UpsertSuffix: `AS new ON DUPLICATE KEY UPDATE
    view_count = new.view_count,
    page_title = new.page_title,
    domain = new.domain`,
	},
}

// LookupDialect resolves a dialect by name or returns an error if it is absent.
func LookupDialect(name string) (Dialect, error) {
	if d, ok := dialects[name]; ok {
		return d, nil
	}
	return Dialect{}, fmt.Errorf("dialect %s is not registered (have %v)", name, DialectNames())
}

// DialectNames lists registered dialects.
func DialectNames() []string {
	names := make([]string, 0, len(dialects))
	for name := range dialects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
