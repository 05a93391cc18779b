// Package sagakit provides saga orchestration primitives for Go
// applications: long-running, event-driven processes with durable state
// and durable timeouts.
//
// A saga correlates a stream of events by saga id, mutates its own state
// in response, and dispatches commands and events of its own. State is
// persisted through a pluggable Store after every handled event; timers
// survive restarts through a pluggable TimeoutStore and are redelivered
// as ordinary messages by the TimeoutDeliveryService.
//
// # Quick Start
//
// Define the saga's state and events:
//
//	type OrderState struct {
//	    sagakit.StateBase
//	    Status string `json:"status"`
//	}
//
//	type OrderCreated struct {
//	    sagakit.EventBase
//	    OrderID string `json:"orderId"`
//	}
//
//	func (OrderCreated) MessageType() string { return "OrderCreated" }
//
// Define the saga around its state:
//
//	type OrderSaga struct {
//	    sagakit.Base[*OrderState]
//	}
//
//	func (s *OrderSaga) HandlesEvent(event sagakit.Event) bool { return true }
//
//	func (s *OrderSaga) Handle(ctx context.Context, event sagakit.Event) error {
//	    switch e := event.(type) {
//	    case *OrderCreated:
//	        s.State.Status = "created"
//	        _, err := s.PublishEvent(ctx, &PaymentRequested{...})
//	        return err
//	    }
//	    return nil
//	}
//
// Wire everything with the orchestration facade and register the saga:
//
//	app := sagakit.New(
//	    sagakit.WithStore(memory.NewSagaStore()),
//	    sagakit.WithTimeoutStore(memory.NewTimeoutStore()),
//	)
//
//	err := sagakit.Register(app.Registry, sagakit.Registration[*OrderState]{
//	    SagaType: "OrderSaga",
//	    NewState: func(id uuid.UUID) *OrderState {
//	        return &OrderState{StateBase: sagakit.StateBase{SagaID: id}}
//	    },
//	    New: func(state *OrderState, deps sagakit.Deps) sagakit.Saga {
//	        return &OrderSaga{Base: sagakit.NewBase("OrderSaga", state, deps)}
//	    },
//	    Configure: func(info *sagakit.Info) {
//	        info.StartsWith(&OrderCreated{}).Handles(&PaymentReceived{})
//	    },
//	})
//
// Inbound events then flow through the bus; start events create saga
// instances and continuations load them:
//
//	result, err := app.Bus.Dispatch(ctx, &OrderCreated{...}, nil)
//
// # Durable Timeouts
//
// Inside a handler, request a timer that survives restarts:
//
//	timeoutID, err := s.RequestTimeout(ctx, 48*time.Hour, &ShipmentOverdue{...})
//
// Start the delivery service so due timeouts come back as messages:
//
//	app.Delivery.Start(ctx)
//	defer app.Delivery.Stop(ctx)
//
// Completing a saga cancels all of its pending timeouts:
//
//	s.Complete(ctx)
package sagakit

import (
	"github.com/sagakit/sagakit/adapters"
	"github.com/sagakit/sagakit/adapters/memory"
)

// Version returns the library version string.
func Version() string {
	return "0.1.0"
}

// Logger is the logging interface used throughout the library.
// It matches the log/slog method set, so a slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// noopLogger is a no-op logger implementation.
type noopLogger struct{}

func (l *noopLogger) Debug(msg string, args ...interface{}) {}
func (l *noopLogger) Info(msg string, args ...interface{})  {}
func (l *noopLogger) Warn(msg string, args ...interface{})  {}
func (l *noopLogger) Error(msg string, args ...interface{}) {}

// Orchestration wires the library's pieces into a working whole: a
// registry, a coordinator riding a bus, and a timeout delivery service
// feeding timeouts back onto the same bus. Every part is replaceable
// through options; anything not provided gets an in-memory or no-op
// default suitable for development and tests.
type Orchestration struct {
	// Registry maps event types to registered sagas.
	Registry *Registry

	// Bus is the in-process dispatch substrate. Nil when a custom
	// dispatcher was supplied instead.
	Bus *Bus

	// Dispatcher is the outgoing message substrate handed to sagas and
	// the delivery service. Defaults to Bus.
	Dispatcher Dispatcher

	// Coordinator routes inbound events to sagas.
	Coordinator *Coordinator

	// Manager drives a single saga type directly, bypassing the registry.
	Manager *Manager

	// Delivery polls for due timeouts and dispatches them.
	Delivery *TimeoutDeliveryService

	// Types resolves stored timeout type names to payload types.
	Types *TypeRegistry

	store        adapters.Store
	timeoutStore adapters.TimeoutStore
	serializer   Serializer
	logger       Logger
	deliveryOpts []DeliveryOption
}

// OrchestrationOption configures an Orchestration.
type OrchestrationOption func(*Orchestration)

// WithStore sets the saga state store. Defaults to in-memory.
func WithStore(store adapters.Store) OrchestrationOption {
	return func(o *Orchestration) {
		if store != nil {
			o.store = store
		}
	}
}

// WithTimeoutStore sets the timeout store. Defaults to in-memory.
func WithTimeoutStore(store adapters.TimeoutStore) OrchestrationOption {
	return func(o *Orchestration) {
		if store != nil {
			o.timeoutStore = store
		}
	}
}

// WithBus sets a pre-configured bus. Its middleware is kept; the saga
// stage is appended during wiring.
func WithBus(bus *Bus) OrchestrationOption {
	return func(o *Orchestration) {
		if bus != nil {
			o.Bus = bus
		}
	}
}

// WithDispatcher routes saga output and timeout delivery through an
// external dispatcher instead of the in-process bus.
func WithDispatcher(dispatcher Dispatcher) OrchestrationOption {
	return func(o *Orchestration) {
		if dispatcher != nil {
			o.Dispatcher = dispatcher
		}
	}
}

// WithSerializer sets the serializer for saga state and timeout
// payloads. Defaults to JSON.
func WithSerializer(serializer Serializer) OrchestrationOption {
	return func(o *Orchestration) {
		if serializer != nil {
			o.serializer = serializer
		}
	}
}

// WithLogger sets the logger. Defaults to a no-op.
func WithLogger(logger Logger) OrchestrationOption {
	return func(o *Orchestration) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTypes registers example values with the orchestration's type
// registry so timeout payload types resolve at delivery time.
func WithTypes(examples ...any) OrchestrationOption {
	return func(o *Orchestration) {
		o.Types.Register(examples...)
	}
}

// WithDeliveryOptions forwards options to the timeout delivery service.
func WithDeliveryOptions(opts ...DeliveryOption) OrchestrationOption {
	return func(o *Orchestration) {
		o.deliveryOpts = append(o.deliveryOpts, opts...)
	}
}

// New builds a fully wired Orchestration. Defaults fill only the gaps:
// in-memory stores, a fresh bus with the saga stage appended, JSON
// serialization, and no-op logging.
func New(opts ...OrchestrationOption) *Orchestration {
	o := &Orchestration{
		Registry: NewRegistry(),
		Types:    NewTypeRegistry(),
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.store == nil {
		o.store = memory.NewSagaStore()
	}
	if o.timeoutStore == nil {
		o.timeoutStore = memory.NewTimeoutStore()
	}
	if o.serializer == nil {
		o.serializer = NewJSONSerializer()
	}
	if o.logger == nil {
		o.logger = &noopLogger{}
	}
	if o.Dispatcher == nil {
		if o.Bus == nil {
			o.Bus = NewBus()
		}
		o.Dispatcher = o.Bus
	}

	deps := Deps{
		Dispatcher: o.Dispatcher,
		Logger:     o.logger,
		Serializer: o.serializer,
		Timeouts:   o.timeoutStore,
	}
	o.Coordinator = NewCoordinator(o.Registry, o.store, deps)
	o.Manager = NewManager(o.store, deps)

	if o.Bus != nil {
		o.Bus.Use(SagaStage(o.Coordinator, o.logger))
	}

	deliveryOpts := append([]DeliveryOption{
		WithDeliverySerializer(o.serializer),
		WithDeliveryLogger(o.logger),
	}, o.deliveryOpts...)
	o.Delivery = NewTimeoutDeliveryService(o.timeoutStore, o.Dispatcher, o.Types, deliveryOpts...)

	return o
}

// Store returns the configured saga state store.
func (o *Orchestration) Store() adapters.Store {
	return o.store
}

// TimeoutStore returns the configured timeout store.
func (o *Orchestration) TimeoutStore() adapters.TimeoutStore {
	return o.timeoutStore
}
