package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sagakit/sagakit/adapters"
)

// Ensure interface compliance at compile time
var _ adapters.Store = (*SagaStore)(nil)

// SagaStore provides a PostgreSQL implementation of adapters.Store.
type SagaStore struct {
	db     *sql.DB
	schema string
	table  string
}

// SagaStoreOption configures a SagaStore.
type SagaStoreOption func(*SagaStore)

// WithSagaSchema sets the PostgreSQL schema for the saga table.
func WithSagaSchema(schema string) SagaStoreOption {
	return func(s *SagaStore) {
		s.schema = schema
	}
}

// WithSagaTable sets the table name for saga state records.
func WithSagaTable(table string) SagaStoreOption {
	return func(s *SagaStore) {
		s.table = table
	}
}

// NewSagaStore creates a new PostgreSQL SagaStore.
func NewSagaStore(db *sql.DB, opts ...SagaStoreOption) *SagaStore {
	s := &SagaStore{
		db:     db,
		schema: "public",
		table:  "sagakit_sagas",
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// fullTableName returns the fully qualified and quoted table name.
func (s *SagaStore) fullTableName() string {
	return quoteQualifiedTable(s.schema, s.table)
}

// Initialize creates the saga table if it doesn't exist.
func (s *SagaStore) Initialize(ctx context.Context) error {
	// Validate schema and table names to prevent SQL injection
	if err := validateIdentifier(s.schema, "schema"); err != nil {
		return err
	}
	if err := validateIdentifier(s.table, "table"); err != nil {
		return err
	}

	tableQ := s.fullTableName()
	query := `
		CREATE TABLE IF NOT EXISTS ` + tableQ + ` (
			saga_type VARCHAR(255) NOT NULL,
			saga_id VARCHAR(255) NOT NULL,
			completed BOOLEAN NOT NULL DEFAULT FALSE,
			data BYTEA,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			version BIGINT NOT NULL DEFAULT 1,
			PRIMARY KEY (saga_type, saga_id)
		);

		CREATE INDEX IF NOT EXISTS ` + quoteIdentifier("idx_"+s.table+"_completed") + ` ON ` + tableQ + ` (saga_type) WHERE NOT completed;
	`

	_, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("sagakit/postgres/saga: failed to create table: %w", err)
	}

	return nil
}

// Save persists a state record with optimistic concurrency control.
//
// Version semantics:
//   - Version 0: Creates a new record. Uses INSERT.
//   - Version > 0: Updates an existing record. Uses UPDATE with a
//     version check. If the version doesn't match, returns
//     ErrConcurrencyConflict.
//
// After a successful save, record.Version reflects the new version.
func (s *SagaStore) Save(ctx context.Context, record *adapters.StateRecord) error {
	if record == nil {
		return adapters.ErrNilState
	}
	if record.SagaType == "" {
		return adapters.ErrEmptySagaType
	}
	if record.SagaID == "" {
		return adapters.ErrEmptySagaID
	}

	if record.Version == 0 {
		return s.insert(ctx, record)
	}
	return s.update(ctx, record)
}

func (s *SagaStore) insert(ctx context.Context, record *adapters.StateRecord) error {
	tableQ := s.fullTableName()
	query := `
		INSERT INTO ` + tableQ + ` (saga_type, saga_id, completed, data, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, NOW(), NOW(), 1)
		ON CONFLICT (saga_type, saga_id) DO NOTHING
		RETURNING version, created_at, updated_at
	`

	var (
		version              int64
		createdAt, updatedAt time.Time
	)
	err := s.db.QueryRowContext(ctx, query,
		record.SagaType,
		record.SagaID,
		record.Completed,
		record.Data,
	).Scan(&version, &createdAt, &updatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Row already exists while the caller expected a fresh saga.
			return &adapters.ConcurrencyError{
				SagaID:          record.SagaID,
				ExpectedVersion: 0,
				ActualVersion:   s.currentVersion(ctx, record.SagaType, record.SagaID),
			}
		}
		return fmt.Errorf("sagakit/postgres/saga: failed to insert saga: %w", err)
	}

	record.Version = version
	record.CreatedAt = createdAt
	record.UpdatedAt = updatedAt
	return nil
}

func (s *SagaStore) update(ctx context.Context, record *adapters.StateRecord) error {
	tableQ := s.fullTableName()
	query := `
		UPDATE ` + tableQ + `
		SET completed = $3, data = $4, updated_at = NOW(), version = version + 1
		WHERE saga_type = $1 AND saga_id = $2 AND version = $5
		RETURNING version, created_at, updated_at
	`

	var (
		version              int64
		createdAt, updatedAt time.Time
	)
	err := s.db.QueryRowContext(ctx, query,
		record.SagaType,
		record.SagaID,
		record.Completed,
		record.Data,
		record.Version,
	).Scan(&version, &createdAt, &updatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			actual := s.currentVersion(ctx, record.SagaType, record.SagaID)
			if actual == 0 {
				return &adapters.SagaNotFoundError{SagaType: record.SagaType, SagaID: record.SagaID}
			}
			return &adapters.ConcurrencyError{
				SagaID:          record.SagaID,
				ExpectedVersion: record.Version,
				ActualVersion:   actual,
			}
		}
		return fmt.Errorf("sagakit/postgres/saga: failed to update saga: %w", err)
	}

	record.Version = version
	record.CreatedAt = createdAt
	record.UpdatedAt = updatedAt
	return nil
}

// currentVersion reads the stored version for conflict reporting.
// Returns 0 when the row does not exist or cannot be read.
func (s *SagaStore) currentVersion(ctx context.Context, sagaType, sagaID string) int64 {
	query := `SELECT version FROM ` + s.fullTableName() + ` WHERE saga_type = $1 AND saga_id = $2`

	var version int64
	if err := s.db.QueryRowContext(ctx, query, sagaType, sagaID).Scan(&version); err != nil {
		return 0
	}
	return version
}

// Load retrieves the state record for a saga instance.
func (s *SagaStore) Load(ctx context.Context, sagaType, sagaID string) (*adapters.StateRecord, error) {
	if sagaType == "" {
		return nil, adapters.ErrEmptySagaType
	}
	if sagaID == "" {
		return nil, adapters.ErrEmptySagaID
	}

	tableQ := s.fullTableName()
	query := `
		SELECT saga_type, saga_id, completed, data, created_at, updated_at, version
		FROM ` + tableQ + `
		WHERE saga_type = $1 AND saga_id = $2
	`

	var record adapters.StateRecord
	err := s.db.QueryRowContext(ctx, query, sagaType, sagaID).Scan(
		&record.SagaType,
		&record.SagaID,
		&record.Completed,
		&record.Data,
		&record.CreatedAt,
		&record.UpdatedAt,
		&record.Version,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &adapters.SagaNotFoundError{SagaType: sagaType, SagaID: sagaID}
		}
		return nil, fmt.Errorf("sagakit/postgres/saga: failed to load saga: %w", err)
	}

	return &record, nil
}
