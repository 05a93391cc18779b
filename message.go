package sagakit

import "context"

// Message is the dispatchable contract: anything the surrounding dispatch
// substrate can route to a handler.
type Message interface {
	// MessageType returns the type identifier for this message
	// (e.g., "OrderCreated").
	MessageType() string
}

// Event is a message that can start or continue a saga. SagaID must parse
// as a UUID; StepID optionally identifies the step the event answers.
type Event interface {
	Message

	// SagaID returns the correlation id of the saga this event targets.
	SagaID() string

	// StepID returns the optional step identifier, or empty.
	StepID() string
}

// EventBase provides the correlation fields of Event.
// Embed this struct in your event types.
type EventBase struct {
	// CorrelationID is the saga correlation id.
	CorrelationID string `json:"sagaId"`

	// Step identifies the saga step this event answers, if any.
	Step string `json:"stepId,omitempty"`
}

// SagaID returns the saga correlation id.
func (e EventBase) SagaID() string {
	return e.CorrelationID
}

// StepID returns the step identifier.
func (e EventBase) StepID() string {
	return e.Step
}

// SetSagaID stamps the saga correlation id. Timeout delivery uses this to
// correlate synthesized payloads that were scheduled without data.
func (e *EventBase) SetSagaID(id string) {
	e.CorrelationID = id
}

// Metadata keys stamped on outgoing saga messages so correlated responses
// can be routed back.
const (
	// MetaSagaID carries the saga correlation id.
	MetaSagaID = "saga.id"

	// MetaSagaType carries the concrete saga type name.
	MetaSagaType = "saga.type"

	// MetaTimeoutID carries the timeout id on redelivered timeouts.
	MetaTimeoutID = "saga.timeout.id"
)

// Metadata contains contextual key-value pairs attached to a dispatch.
type Metadata map[string]string

// Clone returns a copy of the metadata.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	copied := make(Metadata, len(m))
	for k, v := range m {
		copied[k] = v
	}
	return copied
}

// Get returns the value for a key, or empty string if not present.
func (m Metadata) Get(key string) string {
	if m == nil {
		return ""
	}
	return m[key]
}

// Result represents the outcome of a dispatch.
type Result struct {
	// Success indicates whether the message was handled successfully.
	Success bool

	// Data contains any handler-provided result data.
	Data any

	// Error contains the handler error if the dispatch failed.
	Error error
}

// NewSuccessResult creates a successful Result.
func NewSuccessResult(data any) Result {
	return Result{Success: true, Data: data}
}

// NewErrorResult creates a failed Result.
func NewErrorResult(err error) Result {
	return Result{Success: false, Error: err}
}

// IsSuccess returns true if the dispatch succeeded.
func (r Result) IsSuccess() bool {
	return r.Success && r.Error == nil
}

// IsError returns true if the dispatch carries an error.
func (r Result) IsError() bool {
	return r.Error != nil
}

// Dispatcher is the substrate the orchestration core rides on for outgoing
// saga commands/events and for timeout redelivery. Delivery is assumed
// at-least-once; idempotent handling is the handlers' concern.
type Dispatcher interface {
	// Dispatch routes a message with its metadata and returns the result.
	Dispatch(ctx context.Context, msg Message, meta Metadata) (Result, error)
}
