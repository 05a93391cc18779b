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
var _ adapters.TimeoutStore = (*TimeoutStore)(nil)

// TimeoutStore provides a PostgreSQL implementation of
// adapters.TimeoutStore.
type TimeoutStore struct {
	db     *sql.DB
	schema string
	table  string
}

// TimeoutStoreOption configures a TimeoutStore.
type TimeoutStoreOption func(*TimeoutStore)

// WithTimeoutSchema sets the PostgreSQL schema for the timeout table.
func WithTimeoutSchema(schema string) TimeoutStoreOption {
	return func(s *TimeoutStore) {
		s.schema = schema
	}
}

// WithTimeoutTable sets the table name for timeout records.
func WithTimeoutTable(table string) TimeoutStoreOption {
	return func(s *TimeoutStore) {
		s.table = table
	}
}

// NewTimeoutStore creates a new PostgreSQL TimeoutStore.
func NewTimeoutStore(db *sql.DB, opts ...TimeoutStoreOption) *TimeoutStore {
	s := &TimeoutStore{
		db:     db,
		schema: "public",
		table:  "sagakit_timeouts",
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// fullTableName returns the fully qualified and quoted table name.
func (s *TimeoutStore) fullTableName() string {
	return quoteQualifiedTable(s.schema, s.table)
}

// Initialize creates the timeout table if it doesn't exist.
func (s *TimeoutStore) Initialize(ctx context.Context) error {
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
			timeout_id VARCHAR(255) PRIMARY KEY,
			saga_id VARCHAR(255) NOT NULL,
			saga_type VARCHAR(255) NOT NULL,
			timeout_type VARCHAR(255) NOT NULL,
			data BYTEA,
			due_at TIMESTAMPTZ NOT NULL,
			scheduled_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			delivered BOOLEAN NOT NULL DEFAULT FALSE,
			delivered_at TIMESTAMPTZ
		);

		CREATE INDEX IF NOT EXISTS ` + quoteIdentifier("idx_"+s.table+"_due") + ` ON ` + tableQ + ` (due_at) WHERE NOT delivered;
		CREATE INDEX IF NOT EXISTS ` + quoteIdentifier("idx_"+s.table+"_saga_id") + ` ON ` + tableQ + ` (saga_id) WHERE NOT delivered;
	`

	_, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("sagakit/postgres/timeout: failed to create table: %w", err)
	}

	return nil
}

// Schedule persists a timeout. Scheduling an id that already exists
// overwrites the prior entry.
func (s *TimeoutStore) Schedule(ctx context.Context, timeout *adapters.Timeout) error {
	if timeout == nil {
		return adapters.ErrNilTimeout
	}
	if timeout.TimeoutID == "" {
		return adapters.ErrEmptyTimeoutID
	}
	if timeout.SagaID == "" {
		return adapters.ErrEmptySagaID
	}

	tableQ := s.fullTableName()
	query := `
		INSERT INTO ` + tableQ + ` (timeout_id, saga_id, saga_type, timeout_type, data, due_at, scheduled_at, delivered, delivered_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()), $8, $9)
		ON CONFLICT (timeout_id) DO UPDATE SET
			saga_id = EXCLUDED.saga_id,
			saga_type = EXCLUDED.saga_type,
			timeout_type = EXCLUDED.timeout_type,
			data = EXCLUDED.data,
			due_at = EXCLUDED.due_at,
			scheduled_at = EXCLUDED.scheduled_at,
			delivered = EXCLUDED.delivered,
			delivered_at = EXCLUDED.delivered_at
	`

	var scheduledAt *time.Time
	if !timeout.ScheduledAt.IsZero() {
		t := timeout.ScheduledAt
		scheduledAt = &t
	}

	_, err := s.db.ExecContext(ctx, query,
		timeout.TimeoutID,
		timeout.SagaID,
		timeout.SagaType,
		timeout.TimeoutType,
		timeout.Data,
		timeout.DueAt,
		nullTime(scheduledAt),
		timeout.Delivered,
		nullTime(timeout.DeliveredAt),
	)
	if err != nil {
		return fmt.Errorf("sagakit/postgres/timeout: failed to schedule timeout: %w", err)
	}

	return nil
}

// Cancel removes a pending timeout belonging to the saga. Cancelling an
// unknown or already-delivered timeout is not an error.
func (s *TimeoutStore) Cancel(ctx context.Context, sagaID, timeoutID string) error {
	if sagaID == "" {
		return adapters.ErrEmptySagaID
	}
	if timeoutID == "" {
		return adapters.ErrEmptyTimeoutID
	}

	query := `DELETE FROM ` + s.fullTableName() + ` WHERE timeout_id = $1 AND saga_id = $2 AND NOT delivered`

	if _, err := s.db.ExecContext(ctx, query, timeoutID, sagaID); err != nil {
		return fmt.Errorf("sagakit/postgres/timeout: failed to cancel timeout: %w", err)
	}
	return nil
}

// CancelAll removes every pending timeout belonging to the saga.
func (s *TimeoutStore) CancelAll(ctx context.Context, sagaID string) error {
	if sagaID == "" {
		return adapters.ErrEmptySagaID
	}

	query := `DELETE FROM ` + s.fullTableName() + ` WHERE saga_id = $1 AND NOT delivered`

	if _, err := s.db.ExecContext(ctx, query, sagaID); err != nil {
		return fmt.Errorf("sagakit/postgres/timeout: failed to cancel timeouts: %w", err)
	}
	return nil
}

// Due returns up to limit undelivered timeouts with due_at at or before
// asOf, ordered by due time. A limit of zero or less means no limit.
func (s *TimeoutStore) Due(ctx context.Context, asOf time.Time, limit int) ([]*adapters.Timeout, error) {
	tableQ := s.fullTableName()
	query := `
		SELECT timeout_id, saga_id, saga_type, timeout_type, data, due_at, scheduled_at, delivered, delivered_at
		FROM ` + tableQ + `
		WHERE NOT delivered AND due_at <= $1
		ORDER BY due_at ASC, timeout_id ASC
	`

	args := []interface{}{asOf}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sagakit/postgres/timeout: failed to query due timeouts: %w", err)
	}
	defer rows.Close()

	var due []*adapters.Timeout
	for rows.Next() {
		var (
			timeout     adapters.Timeout
			deliveredAt sql.NullTime
		)
		if err := rows.Scan(
			&timeout.TimeoutID,
			&timeout.SagaID,
			&timeout.SagaType,
			&timeout.TimeoutType,
			&timeout.Data,
			&timeout.DueAt,
			&timeout.ScheduledAt,
			&timeout.Delivered,
			&deliveredAt,
		); err != nil {
			return nil, fmt.Errorf("sagakit/postgres/timeout: failed to scan timeout: %w", err)
		}
		if deliveredAt.Valid {
			t := deliveredAt.Time
			timeout.DeliveredAt = &t
		}
		due = append(due, &timeout)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sagakit/postgres/timeout: failed to read due timeouts: %w", err)
	}

	return due, nil
}

// MarkDelivered flags a timeout as delivered so it is never returned by
// Due again. Marking an already-delivered timeout is a no-op; marking an
// unknown id returns a TimeoutNotFoundError.
func (s *TimeoutStore) MarkDelivered(ctx context.Context, timeoutID string) error {
	if timeoutID == "" {
		return adapters.ErrEmptyTimeoutID
	}

	query := `UPDATE ` + s.fullTableName() + ` SET delivered = TRUE, delivered_at = NOW() WHERE timeout_id = $1 AND NOT delivered`

	res, err := s.db.ExecContext(ctx, query, timeoutID)
	if err != nil {
		return fmt.Errorf("sagakit/postgres/timeout: failed to mark timeout delivered: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sagakit/postgres/timeout: failed to read rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var delivered bool
	err = s.db.QueryRowContext(ctx, `SELECT delivered FROM `+s.fullTableName()+` WHERE timeout_id = $1`, timeoutID).Scan(&delivered)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &adapters.TimeoutNotFoundError{TimeoutID: timeoutID}
		}
		return fmt.Errorf("sagakit/postgres/timeout: failed to check timeout: %w", err)
	}
	return nil
}
