// Package adapters defines the storage contracts consumed by the sagakit
// orchestration core: saga state persistence and durable timeout scheduling.
// The core treats implementations as opaque, externally provided singletons;
// an in-memory reference implementation lives in adapters/memory and a
// PostgreSQL implementation in adapters/postgres.
package adapters

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors shared by all store implementations.
// Use errors.Is() to check for these errors.
var (
	// ErrSagaNotFound indicates no state exists for the requested saga.
	ErrSagaNotFound = errors.New("sagakit: saga not found")

	// ErrNilState indicates a nil state record was passed to Save.
	ErrNilState = errors.New("sagakit: nil state record")

	// ErrEmptySagaID indicates an empty saga ID was provided.
	ErrEmptySagaID = errors.New("sagakit: empty saga id")

	// ErrEmptySagaType indicates an empty saga type was provided.
	ErrEmptySagaType = errors.New("sagakit: empty saga type")

	// ErrConcurrencyConflict indicates an optimistic concurrency violation
	// on a saga state save.
	ErrConcurrencyConflict = errors.New("sagakit: concurrency conflict")

	// ErrNilTimeout indicates a nil timeout was passed to Schedule.
	ErrNilTimeout = errors.New("sagakit: nil timeout")

	// ErrEmptyTimeoutID indicates an empty timeout ID was provided.
	ErrEmptyTimeoutID = errors.New("sagakit: empty timeout id")

	// ErrTimeoutNotFound indicates the requested timeout does not exist.
	ErrTimeoutNotFound = errors.New("sagakit: timeout not found")
)

// SagaNotFoundError provides detailed information about a missing saga.
type SagaNotFoundError struct {
	SagaType string
	SagaID   string
}

// Error returns the error message.
func (e *SagaNotFoundError) Error() string {
	if e.SagaType != "" {
		return fmt.Sprintf("sagakit: saga %q of type %q not found", e.SagaID, e.SagaType)
	}
	return fmt.Sprintf("sagakit: saga %q not found", e.SagaID)
}

// Is reports whether this error matches the target error.
func (e *SagaNotFoundError) Is(target error) bool {
	return target == ErrSagaNotFound
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *SagaNotFoundError) Unwrap() error {
	return ErrSagaNotFound
}

// ConcurrencyError provides detailed information about a stale state save.
type ConcurrencyError struct {
	SagaID          string
	ExpectedVersion int64
	ActualVersion   int64
}

// Error returns the error message.
func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("sagakit: concurrency conflict for saga %q: expected version %d, actual version %d",
		e.SagaID, e.ExpectedVersion, e.ActualVersion)
}

// Is reports whether this error matches the target error.
func (e *ConcurrencyError) Is(target error) bool {
	return target == ErrConcurrencyConflict
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *ConcurrencyError) Unwrap() error {
	return ErrConcurrencyConflict
}

// TimeoutNotFoundError provides detailed information about a missing timeout.
type TimeoutNotFoundError struct {
	TimeoutID string
}

// Error returns the error message.
func (e *TimeoutNotFoundError) Error() string {
	return fmt.Sprintf("sagakit: timeout %q not found", e.TimeoutID)
}

// Is reports whether this error matches the target error.
func (e *TimeoutNotFoundError) Is(target error) bool {
	return target == ErrTimeoutNotFound
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *TimeoutNotFoundError) Unwrap() error {
	return ErrTimeoutNotFound
}

// StateRecord is the persisted envelope for one saga instance's state.
// Data holds the serialized saga-specific state; the envelope mirrors the
// correlation id, type, and completion flag so stores can index them.
type StateRecord struct {
	// SagaID is the correlation id of the saga instance.
	SagaID string

	// SagaType is the registered type name of the saga.
	SagaType string

	// Completed mirrors the state's completion flag.
	Completed bool

	// Data is the serialized saga state.
	Data []byte

	// CreatedAt is when the record was first saved.
	CreatedAt time.Time

	// UpdatedAt is when the record was last saved.
	UpdatedAt time.Time

	// Version supports optimistic concurrency control. A record loaded at
	// version N must still be at version N when saved, or the save fails
	// with ErrConcurrencyConflict. Zero means "new record".
	Version int64
}

// Clone returns a deep copy of the record.
func (r *StateRecord) Clone() *StateRecord {
	if r == nil {
		return nil
	}
	copied := *r
	if r.Data != nil {
		copied.Data = make([]byte, len(r.Data))
		copy(copied.Data, r.Data)
	}
	return &copied
}

// Timeout is a durable "wake me up at time T" record. Once due it is
// redelivered as an ordinary dispatched message and marked delivered;
// a delivered timeout is never redelivered.
type Timeout struct {
	// TimeoutID uniquely identifies this timeout.
	TimeoutID string

	// SagaID is the correlation id of the requesting saga.
	SagaID string

	// SagaType is the type name of the requesting saga.
	SagaType string

	// TimeoutType is the qualified name of the payload's message type.
	TimeoutType string

	// Data is the serialized payload, or nil for an empty-signal timeout.
	Data []byte

	// DueAt is when the timeout becomes deliverable.
	DueAt time.Time

	// ScheduledAt is when the timeout was requested.
	ScheduledAt time.Time

	// Delivered marks the timeout as done; set by MarkDelivered.
	Delivered bool

	// DeliveredAt is when the timeout was marked delivered.
	DeliveredAt *time.Time
}

// Clone returns a deep copy of the timeout.
func (t *Timeout) Clone() *Timeout {
	if t == nil {
		return nil
	}
	copied := *t
	if t.Data != nil {
		copied.Data = make([]byte, len(t.Data))
		copy(copied.Data, t.Data)
	}
	if t.DeliveredAt != nil {
		at := *t.DeliveredAt
		copied.DeliveredAt = &at
	}
	return &copied
}

// Store persists saga state records keyed by (saga type, saga id).
// At most one record exists per key. Implementations are expected to
// serialize writes per key via the record version.
type Store interface {
	// Load retrieves the state record for a saga instance.
	// Returns an error matching ErrSagaNotFound if none exists.
	Load(ctx context.Context, sagaType, sagaID string) (*StateRecord, error)

	// Save persists a state record. A nil record fails with ErrNilState.
	// A version mismatch fails with an error matching ErrConcurrencyConflict.
	// On success the record's Version is advanced.
	Save(ctx context.Context, record *StateRecord) error
}

// TimeoutStore persists timeout requests and answers due-timeout queries
// for the delivery service.
type TimeoutStore interface {
	// Schedule persists a pending timeout.
	Schedule(ctx context.Context, timeout *Timeout) error

	// Cancel removes the pending timeout (sagaID, timeoutID). Cancelling
	// an unknown, already delivered, or differently owned timeout is a
	// no-op.
	Cancel(ctx context.Context, sagaID, timeoutID string) error

	// CancelAll removes every pending timeout for the saga. Cancelling a
	// saga with no pending timeouts is a no-op.
	CancelAll(ctx context.Context, sagaID string) error

	// Due returns pending timeouts with DueAt <= asOf, ordered by DueAt,
	// at most limit of them (limit <= 0 means no bound).
	Due(ctx context.Context, asOf time.Time, limit int) ([]*Timeout, error)

	// MarkDelivered marks a timeout as delivered. Marking an already
	// delivered timeout is a no-op; an unknown id fails with an error
	// matching ErrTimeoutNotFound.
	MarkDelivered(ctx context.Context, timeoutID string) error
}
