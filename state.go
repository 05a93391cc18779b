package sagakit

import "github.com/google/uuid"

// State is the contract satisfied by persisted saga state types.
// Embed StateBase (with a pointer receiver saga state) to implement it.
type State interface {
	// GetSagaID returns the correlation id of the owning saga instance.
	GetSagaID() uuid.UUID

	// SetSagaID sets the correlation id.
	SetSagaID(id uuid.UUID)

	// IsCompleted returns true once the saga has finished.
	IsCompleted() bool

	// SetCompleted sets the completion flag.
	SetCompleted(completed bool)
}

// StateBase provides the persisted fields every saga state carries: the
// correlation id and the completion flag. Embed this struct in your state
// types and add saga-specific fields alongside it.
type StateBase struct {
	// SagaID is the correlation id of the saga instance.
	SagaID uuid.UUID `json:"sagaId"`

	// Completed is true once the saga has finished. State is never
	// written again after completion; retention is a store concern.
	Completed bool `json:"completed"`
}

// GetSagaID returns the correlation id.
func (s *StateBase) GetSagaID() uuid.UUID {
	return s.SagaID
}

// SetSagaID sets the correlation id.
func (s *StateBase) SetSagaID(id uuid.UUID) {
	s.SagaID = id
}

// IsCompleted returns true once the saga has finished.
func (s *StateBase) IsCompleted() bool {
	return s.Completed
}

// SetCompleted sets the completion flag.
func (s *StateBase) SetCompleted(completed bool) {
	s.Completed = completed
}
