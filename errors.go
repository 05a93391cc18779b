package sagakit

import (
	"errors"
	"fmt"

	"github.com/sagakit/sagakit/adapters"
)

// Sentinel errors for common error conditions.
// Use errors.Is() to check for these errors.
// Store-level errors are aliases to the adapters package for compatibility.
var (
	// ErrSagaNotFound indicates no state exists for the requested saga.
	ErrSagaNotFound = adapters.ErrSagaNotFound

	// ErrConcurrencyConflict indicates an optimistic concurrency violation.
	ErrConcurrencyConflict = adapters.ErrConcurrencyConflict

	// ErrTimeoutNotFound indicates the requested timeout does not exist.
	ErrTimeoutNotFound = adapters.ErrTimeoutNotFound

	// ErrNilContext indicates a nil context was passed to an entry point.
	ErrNilContext = errors.New("sagakit: nil context")

	// ErrNilEvent indicates a nil event was passed to an entry point.
	ErrNilEvent = errors.New("sagakit: nil event")

	// ErrNilMessage indicates a nil message was passed to a dispatcher.
	ErrNilMessage = errors.New("sagakit: nil message")

	// ErrNilConfigure indicates a nil configure function was passed to
	// Register.
	ErrNilConfigure = errors.New("sagakit: nil configure function")

	// ErrInvalidSagaID indicates an event's saga id could not be parsed.
	ErrInvalidSagaID = errors.New("sagakit: invalid saga id")

	// ErrTimeoutStoreNotConfigured indicates a timeout operation was
	// attempted on a saga with no timeout store attached. A saga that
	// never receives one cannot schedule timers.
	ErrTimeoutStoreNotConfigured = errors.New("sagakit: timeout store not configured")

	// ErrDispatcherRequired indicates an operation that dispatches
	// messages was invoked without a configured dispatcher.
	ErrDispatcherRequired = errors.New("sagakit: dispatcher is required")

	// ErrEmptyTimeoutID indicates a blank timeout id was passed to
	// CancelTimeout.
	ErrEmptyTimeoutID = errors.New("sagakit: empty timeout id")

	// ErrHandlerNotFound indicates no handler is registered for a message
	// type.
	ErrHandlerNotFound = errors.New("sagakit: handler not found")

	// ErrBusClosed indicates the dispatch bus has been closed.
	ErrBusClosed = errors.New("sagakit: bus closed")

	// ErrDeliveryRunning indicates the timeout delivery service is
	// already running.
	ErrDeliveryRunning = errors.New("sagakit: timeout delivery service already running")

	// ErrNotDispatchable indicates a resolved timeout type does not
	// satisfy the Message contract.
	ErrNotDispatchable = errors.New("sagakit: type is not dispatchable")
)

// HandlerNotFoundError provides detailed information about a missing handler.
type HandlerNotFoundError struct {
	MessageType string
}

// Error returns the error message.
func (e *HandlerNotFoundError) Error() string {
	return fmt.Sprintf("sagakit: no handler registered for message type %q", e.MessageType)
}

// Is reports whether this error matches the target error.
func (e *HandlerNotFoundError) Is(target error) bool {
	return target == ErrHandlerNotFound
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *HandlerNotFoundError) Unwrap() error {
	return ErrHandlerNotFound
}

// NewHandlerNotFoundError creates a new HandlerNotFoundError.
func NewHandlerNotFoundError(messageType string) *HandlerNotFoundError {
	return &HandlerNotFoundError{MessageType: messageType}
}

// RegistrationError indicates an invalid saga registration.
type RegistrationError struct {
	SagaType string
	Reason   string
}

// Error returns the error message.
func (e *RegistrationError) Error() string {
	if e.SagaType == "" {
		return fmt.Sprintf("sagakit: invalid saga registration: %s", e.Reason)
	}
	return fmt.Sprintf("sagakit: invalid registration for saga %q: %s", e.SagaType, e.Reason)
}
