package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sagakit/sagakit/adapters"
)

// Ensure interface compliance at compile time
var _ adapters.TimeoutStore = (*TimeoutStore)(nil)

// TimeoutStore provides an in-memory implementation of
// adapters.TimeoutStore.
type TimeoutStore struct {
	mu       sync.RWMutex
	timeouts map[string]*adapters.Timeout
}

// NewTimeoutStore creates a new in-memory TimeoutStore.
func NewTimeoutStore() *TimeoutStore {
	return &TimeoutStore{
		timeouts: make(map[string]*adapters.Timeout),
	}
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

	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	saved := timeout.Clone()
	if saved.ScheduledAt.IsZero() {
		saved.ScheduledAt = time.Now().UTC()
	}
	s.timeouts[timeout.TimeoutID] = saved

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

	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	timeout, ok := s.timeouts[timeoutID]
	if !ok || timeout.SagaID != sagaID || timeout.Delivered {
		return nil
	}
	delete(s.timeouts, timeoutID)

	return nil
}

// CancelAll removes every pending timeout belonging to the saga.
func (s *TimeoutStore) CancelAll(ctx context.Context, sagaID string) error {
	if sagaID == "" {
		return adapters.ErrEmptySagaID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	for id, timeout := range s.timeouts {
		if timeout.SagaID == sagaID && !timeout.Delivered {
			delete(s.timeouts, id)
		}
	}

	return nil
}

// Due returns up to limit undelivered timeouts with DueAt at or before
// asOf, ordered by DueAt ascending. A limit of zero or less means no
// limit.
func (s *TimeoutStore) Due(ctx context.Context, asOf time.Time, limit int) ([]*adapters.Timeout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var due []*adapters.Timeout
	for _, timeout := range s.timeouts {
		if !timeout.Delivered && !timeout.DueAt.After(asOf) {
			due = append(due, timeout.Clone())
		}
	}

	sort.Slice(due, func(i, j int) bool {
		if due[i].DueAt.Equal(due[j].DueAt) {
			return due[i].TimeoutID < due[j].TimeoutID
		}
		return due[i].DueAt.Before(due[j].DueAt)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
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

	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	timeout, ok := s.timeouts[timeoutID]
	if !ok {
		return &adapters.TimeoutNotFoundError{TimeoutID: timeoutID}
	}
	if timeout.Delivered {
		return nil
	}

	now := time.Now().UTC()
	timeout.Delivered = true
	timeout.DeliveredAt = &now

	return nil
}

// Pending returns the number of undelivered timeouts for the saga.
func (s *TimeoutStore) Pending(sagaID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, timeout := range s.timeouts {
		if timeout.SagaID == sagaID && !timeout.Delivered {
			count++
		}
	}
	return count
}
