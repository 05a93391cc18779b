package sagakit

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sagakit/sagakit/adapters"
)

// Saga is implemented by every concrete saga. A saga decides which event
// instances it can process and how it mutates its own state in response;
// the lifecycle base never inspects event payloads itself.
type Saga interface {
	// HandlesEvent reports whether this instance can process the event.
	// Registration and HandlesEvent may disagree; the stricter one wins.
	HandlesEvent(event Event) bool

	// Handle processes the event, mutating the saga's state.
	Handle(ctx context.Context, event Event) error
}

// Deps bundles the collaborators injected into every saga instance:
// the dispatcher for outgoing messages, a logger, the serializer for
// timeout payloads, and an optional timeout store. Saga factories receive
// a Deps alongside the state; anything else a saga needs is closed over
// by its factory.
type Deps struct {
	// Dispatcher routes outgoing commands and events.
	Dispatcher Dispatcher

	// Logger receives saga lifecycle logging. Defaults to a no-op.
	Logger Logger

	// Serializer encodes timeout payloads and saga state.
	// Defaults to JSON.
	Serializer Serializer

	// Timeouts is the optional timeout store. A saga without one cannot
	// schedule timers; timeout operations fail with
	// ErrTimeoutStoreNotConfigured.
	Timeouts adapters.TimeoutStore
}

// normalized returns a copy of the deps with nil collaborators replaced by
// defaults. The dispatcher is left as-is; its absence is a configuration
// error surfaced at the call sites that need it.
func (d Deps) normalized() Deps {
	if d.Logger == nil {
		d.Logger = &noopLogger{}
	}
	if d.Serializer == nil {
		d.Serializer = NewJSONSerializer()
	}
	return d
}

// Base provides the lifecycle behavior mixed into every concrete saga:
// identity and completion from its state, outgoing dispatch tagged with
// saga correlation metadata, and timeout requests/cancellations through
// the optional timeout store. Embed it in your saga types.
type Base[TState State] struct {
	// State is the mutable saga state. Mutate it inside Handle; the
	// coordinator persists it after a handled event.
	State TState

	sagaType string
	deps     Deps
}

// NewBase creates the lifecycle base for a concrete saga.
func NewBase[TState State](sagaType string, state TState, deps Deps) Base[TState] {
	return Base[TState]{
		State:    state,
		sagaType: sagaType,
		deps:     deps.normalized(),
	}
}

// ID returns the saga's correlation id.
func (b *Base[TState]) ID() uuid.UUID {
	return b.State.GetSagaID()
}

// SagaType returns the saga's registered type name.
func (b *Base[TState]) SagaType() string {
	return b.sagaType
}

// IsCompleted returns true once the saga has finished.
func (b *Base[TState]) IsCompleted() bool {
	return b.State.IsCompleted()
}

// MarkCompleted sets the completion flag without touching timeouts.
// Use Complete to also cancel pending timeouts.
func (b *Base[TState]) MarkCompleted() {
	b.State.SetCompleted(true)
}

// Complete marks the saga completed and cancels all of its pending
// timeouts. The cancellation is awaited, not fire-and-forget; the saga is
// completed even if cancellation fails. No-op on timeouts when no timeout
// store is attached.
func (b *Base[TState]) Complete(ctx context.Context) error {
	b.State.SetCompleted(true)

	if b.deps.Timeouts == nil {
		return nil
	}
	if err := b.deps.Timeouts.CancelAll(ctx, b.ID().String()); err != nil {
		return fmt.Errorf("sagakit: failed to cancel timeouts for saga %q: %w", b.ID(), err)
	}
	return nil
}

// RequestTimeout schedules a durable timeout due after delay. The payload
// supplies the timeout's message type and is serialized as its data; pass
// a typed nil pointer to schedule an empty-signal timeout of that type
// (a default instance is synthesized at delivery). Returns the generated
// timeout id.
//
// Fails with ErrTimeoutStoreNotConfigured when no timeout store is
// attached; this is a hard constraint, not a silent no-op.
func (b *Base[TState]) RequestTimeout(ctx context.Context, delay time.Duration, payload any) (string, error) {
	if b.deps.Timeouts == nil {
		return "", ErrTimeoutStoreNotConfigured
	}
	if payload == nil {
		return "", fmt.Errorf("sagakit: timeout payload must carry a type; use a typed nil pointer for an empty timeout")
	}

	var data []byte
	if !isTypedNil(payload) {
		var err error
		data, err = b.deps.Serializer.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("sagakit: failed to serialize timeout payload: %w", err)
		}
	}

	now := time.Now().UTC()
	timeout := &adapters.Timeout{
		TimeoutID:   uuid.NewString(),
		SagaID:      b.ID().String(),
		SagaType:    b.sagaType,
		TimeoutType: QualifiedName(payload),
		Data:        data,
		DueAt:       now.Add(delay),
		ScheduledAt: now,
	}

	if err := b.deps.Timeouts.Schedule(ctx, timeout); err != nil {
		return "", fmt.Errorf("sagakit: failed to schedule timeout: %w", err)
	}

	b.deps.Logger.Debug("Timeout requested",
		"sagaId", timeout.SagaID,
		"sagaType", b.sagaType,
		"timeoutId", timeout.TimeoutID,
		"timeoutType", timeout.TimeoutType,
		"dueAt", timeout.DueAt)

	return timeout.TimeoutID, nil
}

// CancelTimeout cancels a previously requested timeout by id.
// Fails with ErrTimeoutStoreNotConfigured when no timeout store is
// attached and with ErrEmptyTimeoutID on a blank id.
func (b *Base[TState]) CancelTimeout(ctx context.Context, timeoutID string) error {
	if b.deps.Timeouts == nil {
		return ErrTimeoutStoreNotConfigured
	}
	if strings.TrimSpace(timeoutID) == "" {
		return ErrEmptyTimeoutID
	}
	return b.deps.Timeouts.Cancel(ctx, b.ID().String(), timeoutID)
}

// SendCommand dispatches a command through the injected dispatcher,
// stamping the metadata with this saga's id and type so correlated
// responses can be routed back. The dispatch result is returned
// unmodified.
func (b *Base[TState]) SendCommand(ctx context.Context, cmd Message) (Result, error) {
	return b.dispatch(ctx, cmd, "command")
}

// PublishEvent dispatches an event through the injected dispatcher with
// the same saga correlation metadata as SendCommand.
func (b *Base[TState]) PublishEvent(ctx context.Context, event Message) (Result, error) {
	return b.dispatch(ctx, event, "event")
}

func (b *Base[TState]) dispatch(ctx context.Context, msg Message, kind string) (Result, error) {
	if b.deps.Dispatcher == nil {
		return Result{}, ErrDispatcherRequired
	}
	if msg == nil {
		return Result{}, ErrNilMessage
	}

	meta := Metadata{
		MetaSagaID:   b.ID().String(),
		MetaSagaType: b.sagaType,
	}

	result, err := b.deps.Dispatcher.Dispatch(ctx, msg, meta)
	b.deps.Logger.Debug("Saga dispatched message",
		"sagaId", b.ID(),
		"sagaType", b.sagaType,
		"kind", kind,
		"messageType", msg.MessageType(),
		"success", err == nil && result.IsSuccess())

	return result, err
}

// isTypedNil reports whether the payload is a nil pointer of a concrete
// type, the marker for an empty-signal timeout.
func isTypedNil(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Ptr && rv.IsNil()
}
