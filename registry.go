package sagakit

import (
	"context"
	"reflect"
	"sync"

	"github.com/google/uuid"
)

// Registration describes one saga type: its name, factories for state and
// saga construction, and the fluent event-type configuration.
//
// NewState builds a fresh state for a start event; New constructs the saga
// instance from its state plus the injected Deps (dispatcher, logger,
// serializer, optional timeout store). Any further dependency a concrete
// saga needs is closed over by New, which keeps construction DI-aware
// without a container.
type Registration[TState State] struct {
	// SagaType is the unique type name of the saga (e.g., "OrderSaga").
	SagaType string

	// NewState returns a fresh state carrying the given correlation id.
	NewState func(id uuid.UUID) TState

	// New constructs a saga instance around the given state.
	New func(state TState, deps Deps) Saga

	// Configure declares the start and handled event types via
	// Info.StartsWith / Info.Handles.
	Configure func(info *Info)
}

func (r Registration[TState]) validate() error {
	if r.SagaType == "" {
		return &RegistrationError{Reason: "saga type name is required"}
	}
	if r.NewState == nil {
		return &RegistrationError{SagaType: r.SagaType, Reason: "NewState factory is required"}
	}
	if r.New == nil {
		return &RegistrationError{SagaType: r.SagaType, Reason: "New factory is required"}
	}
	if r.Configure == nil {
		return ErrNilConfigure
	}
	return nil
}

// invokeFunc is the type-erased entry captured at registration time.
// It closes over the concrete state type, so the event hot path never
// reflects into generic methods.
type invokeFunc func(ctx context.Context, rt *runtime, sagaID uuid.UUID, event Event, mode loadMode) error

// registration pairs a saga's Info with its captured invoke closure.
type registration struct {
	info   *Info
	invoke invokeFunc
}

// Registry is the process-wide table mapping event types to registered
// sagas. It is populated at startup, possibly from concurrent module
// initializers, and read on every inbound event thereafter; both maps are
// lock-free on the read path. Re-registering an event type overwrites the
// prior mapping (last write wins) without disturbing concurrent readers.
type Registry struct {
	byEvent sync.Map // reflect.Type -> *registration
	bySaga  sync.Map // string -> *Info
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a saga type to the registry: it builds the Info for the
// registration, runs Configure against it, then inserts one entry per
// declared event type (start and continuation events map to the same
// saga). Registration captures a type-erased invoke closure over the
// concrete state type, so coordinator dispatch needs no reflection.
func Register[TState State](r *Registry, reg Registration[TState]) error {
	if err := reg.validate(); err != nil {
		return err
	}

	stateType := reflect.TypeOf(reg.NewState(uuid.Nil))
	if stateType != nil && stateType.Kind() == reflect.Ptr {
		stateType = stateType.Elem()
	}

	info := newInfo(reg.SagaType, stateType)
	reg.Configure(info)

	entry := &registration{
		info:   info,
		invoke: func(ctx context.Context, rt *runtime, sagaID uuid.UUID, event Event, mode loadMode) error {
			return runSaga(ctx, rt, reg, info.SagaType, sagaID, event, mode)
		},
	}

	for _, eventType := range info.HandledEvents() {
		r.byEvent.Store(eventType, entry)
	}
	r.bySaga.Store(reg.SagaType, info)

	return nil
}

// SagaTypeForEvent returns the saga type name registered for the event
// type, or false if the event type is not saga-relevant.
func (r *Registry) SagaTypeForEvent(eventType reflect.Type) (string, bool) {
	entry, ok := r.lookup(eventType)
	if !ok {
		return "", false
	}
	return entry.info.SagaType, true
}

// InfoFor returns the Info registered under the saga type name, for
// inspection and testing.
func (r *Registry) InfoFor(sagaType string) (*Info, bool) {
	v, ok := r.bySaga.Load(sagaType)
	if !ok {
		return nil, false
	}
	return v.(*Info), true
}

func (r *Registry) lookup(eventType reflect.Type) (*registration, bool) {
	v, ok := r.byEvent.Load(eventType)
	if !ok {
		return nil, false
	}
	return v.(*registration), true
}
