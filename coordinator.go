package sagakit

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/sagakit/sagakit/adapters"
)

// runtime bundles the persistence and dependency surface shared by the
// Coordinator and the Manager.
type runtime struct {
	store adapters.Store
	deps  Deps
}

// loadMode selects how saga state is resolved before handling an event.
type loadMode int

const (
	// loadFresh constructs new state without touching the store. Used for
	// start events.
	loadFresh loadMode = iota

	// loadExisting loads persisted state; an unknown saga id is dropped
	// silently, since continuation events routinely race saga creation
	// or arrive after completion cleanup.
	loadExisting

	// loadOrCreate loads persisted state and falls back to fresh state
	// when none exists. Used by the Manager's direct-drive path.
	loadOrCreate
)

// runSaga is the shared lifecycle pipeline: resolve state per mode,
// construct the saga instance, give it a final veto via HandlesEvent,
// run the handler, then persist the mutated state under optimistic
// version control.
func runSaga[TState State](ctx context.Context, rt *runtime, reg Registration[TState], sagaType string, sagaID uuid.UUID, event Event, mode loadMode) error {
	var (
		state   TState
		version int64
		existed bool
	)

	switch mode {
	case loadFresh:
		state = reg.NewState(sagaID)
		state.SetSagaID(sagaID)
	default:
		record, err := rt.store.Load(ctx, sagaType, sagaID.String())
		switch {
		case errors.Is(err, adapters.ErrSagaNotFound):
			if mode == loadExisting {
				rt.deps.Logger.Debug("dropping event for unknown saga",
					"sagaType", sagaType,
					"sagaId", sagaID.String(),
					"eventType", event.MessageType())
				return nil
			}
			state = reg.NewState(sagaID)
			state.SetSagaID(sagaID)
		case err != nil:
			return fmt.Errorf("sagakit: failed to load state for saga %s/%s: %w", sagaType, sagaID, err)
		default:
			state = reg.NewState(sagaID)
			if err := rt.deps.Serializer.Unmarshal(record.Data, state); err != nil {
				return fmt.Errorf("sagakit: failed to deserialize state for saga %s/%s: %w", sagaType, sagaID, err)
			}
			state.SetSagaID(sagaID)
			version = record.Version
			existed = true
		}
	}

	saga := reg.New(state, rt.deps)
	if saga == nil {
		return fmt.Errorf("sagakit: saga factory for %q returned nil", sagaType)
	}

	if !saga.HandlesEvent(event) {
		rt.deps.Logger.Debug("saga declined event",
			"sagaType", sagaType,
			"sagaId", sagaID.String(),
			"eventType", event.MessageType())
		return nil
	}

	if err := saga.Handle(ctx, event); err != nil {
		return fmt.Errorf("sagakit: saga %s/%s failed handling %q: %w", sagaType, sagaID, event.MessageType(), err)
	}

	data, err := rt.deps.Serializer.Marshal(state)
	if err != nil {
		return fmt.Errorf("sagakit: failed to serialize state for saga %s/%s: %w", sagaType, sagaID, err)
	}

	record := &adapters.StateRecord{
		SagaID:    sagaID.String(),
		SagaType:  sagaType,
		Completed: state.IsCompleted(),
		Data:      data,
		Version:   version,
	}
	if err := rt.store.Save(ctx, record); err != nil {
		return fmt.Errorf("sagakit: failed to save state for saga %s/%s: %w", sagaType, sagaID, err)
	}

	rt.deps.Logger.Debug("saga state saved",
		"sagaType", sagaType,
		"sagaId", sagaID.String(),
		"completed", state.IsCompleted(),
		"existed", existed)
	return nil
}

// Coordinator routes incoming events to registered sagas. It resolves the
// owning saga type from the event's concrete Go type, decides between
// starting a new saga instance and continuing an existing one, and runs
// the shared lifecycle pipeline.
//
// Events whose type is not registered with any saga are ignored; a bus
// typically carries many messages that are not saga-relevant.
type Coordinator struct {
	registry *Registry
	runtime
}

// NewCoordinator builds a Coordinator over the given registry and state
// store. Missing optional deps (logger, serializer) are filled with
// no-op and JSON defaults.
func NewCoordinator(registry *Registry, store adapters.Store, deps Deps) *Coordinator {
	return &Coordinator{
		registry: registry,
		runtime: runtime{
			store: store,
			deps:  deps.normalized(),
		},
	}
}

// Recognizes reports whether the event's type is registered with any saga.
func (c *Coordinator) Recognizes(event Event) bool {
	if event == nil {
		return false
	}
	_, ok := c.registry.lookup(messageType(event))
	return ok
}

// ProcessEvent routes one event through the saga lifecycle. The event's
// concrete type selects the saga; Info decides whether it is a start
// event (fresh state) or a continuation (loaded state, unknown ids
// dropped). Handler and persistence errors propagate to the caller so
// the transport can retry or dead-letter the message.
func (c *Coordinator) ProcessEvent(ctx context.Context, event Event) error {
	if ctx == nil {
		return ErrNilContext
	}
	if event == nil {
		return ErrNilEvent
	}

	eventType := messageType(event)
	entry, ok := c.registry.lookup(eventType)
	if !ok {
		return nil
	}

	sagaID, err := uuid.Parse(event.SagaID())
	if err != nil {
		return fmt.Errorf("sagakit: event %q carries saga id %q: %w", event.MessageType(), event.SagaID(), ErrInvalidSagaID)
	}

	mode := loadExisting
	if entry.info.IsStartEvent(eventType) {
		mode = loadFresh
	}
	return entry.invoke(ctx, &c.runtime, sagaID, event, mode)
}

// Manager drives a single known saga type directly, bypassing registry
// routing. It exists for callers that already know which saga an event
// belongs to, such as timeout delivery and tests.
type Manager struct {
	runtime
}

// NewManager builds a Manager over the given state store.
func NewManager(store adapters.Store, deps Deps) *Manager {
	return &Manager{
		runtime: runtime{
			store: store,
			deps:  deps.normalized(),
		},
	}
}

// HandleEvent loads (or creates) the identified saga instance and hands
// it the event. The saga is constructed with its full dependency set; a
// missing dispatcher is a configuration error and fails fast rather
// than surfacing later inside a handler.
func HandleEvent[TState State](ctx context.Context, m *Manager, reg Registration[TState], sagaID uuid.UUID, event Event) error {
	if ctx == nil {
		return ErrNilContext
	}
	if event == nil {
		return ErrNilEvent
	}
	if err := reg.validate(); err != nil {
		return err
	}
	if m.deps.Dispatcher == nil {
		return ErrDispatcherRequired
	}
	if sagaID == uuid.Nil {
		return fmt.Errorf("sagakit: %w: saga id must not be nil", ErrInvalidSagaID)
	}
	return runSaga(ctx, &m.runtime, reg, reg.SagaType, sagaID, event, loadOrCreate)
}
