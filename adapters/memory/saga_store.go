// Package memory provides in-memory implementations of the adapter
// contracts. These are primarily intended for testing and development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/sagakit/sagakit/adapters"
)

// Ensure interface compliance at compile time
var _ adapters.Store = (*SagaStore)(nil)

// SagaStore provides an in-memory implementation of adapters.Store.
type SagaStore struct {
	mu      sync.RWMutex
	records map[string]*adapters.StateRecord
}

// NewSagaStore creates a new in-memory SagaStore.
func NewSagaStore() *SagaStore {
	return &SagaStore{
		records: make(map[string]*adapters.StateRecord),
	}
}

func recordKey(sagaType, sagaID string) string {
	return sagaType + "/" + sagaID
}

// Load retrieves the state record for a saga instance.
func (s *SagaStore) Load(ctx context.Context, sagaType, sagaID string) (*adapters.StateRecord, error) {
	if sagaType == "" {
		return nil, adapters.ErrEmptySagaType
	}
	if sagaID == "" {
		return nil, adapters.ErrEmptySagaID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	record, ok := s.records[recordKey(sagaType, sagaID)]
	if !ok {
		return nil, &adapters.SagaNotFoundError{SagaType: sagaType, SagaID: sagaID}
	}
	return record.Clone(), nil
}

// Save persists a state record.
// Uses optimistic concurrency control based on the Version field: the
// record's Version must match the stored version (or be zero for an
// insert). On success the stored version is bumped and written back to
// the caller's record.
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

	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	key := recordKey(record.SagaType, record.SagaID)
	existing, exists := s.records[key]

	if exists && record.Version != existing.Version {
		return &adapters.ConcurrencyError{
			SagaID:          record.SagaID,
			ExpectedVersion: record.Version,
			ActualVersion:   existing.Version,
		}
	}
	if !exists && record.Version > 0 {
		return &adapters.SagaNotFoundError{SagaType: record.SagaType, SagaID: record.SagaID}
	}

	now := time.Now().UTC()
	saved := record.Clone()
	saved.UpdatedAt = now
	saved.Version = record.Version + 1
	if exists {
		saved.CreatedAt = existing.CreatedAt
	} else {
		saved.CreatedAt = now
	}

	s.records[key] = saved

	record.Version = saved.Version
	record.CreatedAt = saved.CreatedAt
	record.UpdatedAt = saved.UpdatedAt

	return nil
}

// Len returns the number of stored saga records.
func (s *SagaStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
