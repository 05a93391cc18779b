// Package postgres provides PostgreSQL implementations of the adapter
// contracts, backed by database/sql with the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/sagakit/sagakit/adapters"
)

// Sentinel errors for the postgres adapters.
// These are aliases to the adapters package errors for compatibility
// with errors.Is().
var (
	ErrSagaNotFound        = adapters.ErrSagaNotFound
	ErrConcurrencyConflict = adapters.ErrConcurrencyConflict
	ErrTimeoutNotFound     = adapters.ErrTimeoutNotFound
)

// Open opens a PostgreSQL connection pool using the pgx stdlib driver.
func Open(connStr string) (*sql.DB, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("sagakit/postgres: failed to open database: %w", err)
	}
	return db, nil
}

// Migrate initializes all sagakit tables on the given connection.
func Migrate(ctx context.Context, db *sql.DB) error {
	if err := NewSagaStore(db).Initialize(ctx); err != nil {
		return err
	}
	return NewTimeoutStore(db).Initialize(ctx)
}

// identifierPattern matches safe PostgreSQL identifiers.
var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// validateIdentifier ensures a schema or table name cannot be used for
// SQL injection through the non-parameterized parts of a query.
func validateIdentifier(name, kind string) error {
	if name == "" {
		return fmt.Errorf("sagakit/postgres: %s name cannot be empty", kind)
	}
	if len(name) > 63 {
		return fmt.Errorf("sagakit/postgres: %s name exceeds 63 characters", kind)
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("sagakit/postgres: %s name contains invalid characters", kind)
	}
	return nil
}

// quoteIdentifier quotes a PostgreSQL identifier.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteQualifiedTable returns the quoted schema-qualified table name.
func quoteQualifiedTable(schema, table string) string {
	return quoteIdentifier(schema) + "." + quoteIdentifier(table)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
