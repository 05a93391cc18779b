package sagakit

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// ====================================================================
// Test Doubles
// ====================================================================

// recordingDispatcher captures dispatched messages for assertions.
type recordingDispatcher struct {
	mu       sync.Mutex
	messages []Message
	metas    []Metadata
	err      error
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{}
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, msg Message, meta Metadata) (Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.messages = append(d.messages, msg)
	d.metas = append(d.metas, meta.Clone())
	if d.err != nil {
		return NewErrorResult(d.err), d.err
	}
	return NewSuccessResult(nil), nil
}

func (d *recordingDispatcher) failWith(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

func (d *recordingDispatcher) messageTypes() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	types := make([]string, len(d.messages))
	for i, msg := range d.messages {
		types[i] = msg.MessageType()
	}
	return types
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.messages)
}

// ====================================================================
// Order Saga Fixture
// ====================================================================

type orderState struct {
	StateBase
	Status  string   `json:"status"`
	Handled []string `json:"handled,omitempty"`
}

type orderCreated struct {
	EventBase
	OrderID string `json:"orderId"`
}

func (orderCreated) MessageType() string { return "OrderCreated" }

type paymentReceived struct {
	EventBase
	Amount int `json:"amount"`
}

func (paymentReceived) MessageType() string { return "PaymentReceived" }

type orderCancelled struct {
	EventBase
}

func (orderCancelled) MessageType() string { return "OrderCancelled" }

type shipOrder struct {
	OrderID string `json:"orderId"`
}

func (shipOrder) MessageType() string { return "ShipOrder" }

// paymentOverdue is used as a timeout payload in delivery tests.
type paymentOverdue struct {
	EventBase
	Value string `json:"value,omitempty"`
}

func (paymentOverdue) MessageType() string { return "PaymentOverdue" }

// unrelatedEvent is never registered with any saga.
type unrelatedEvent struct {
	EventBase
}

func (unrelatedEvent) MessageType() string { return "UnrelatedEvent" }

type orderSaga struct {
	Base[*orderState]

	declineAll bool
	handleErr  error
}

func (s *orderSaga) HandlesEvent(event Event) bool {
	return !s.declineAll
}

func (s *orderSaga) Handle(ctx context.Context, event Event) error {
	if s.handleErr != nil {
		return s.handleErr
	}

	s.State.Handled = append(s.State.Handled, event.MessageType())

	switch event.(type) {
	case *orderCreated:
		s.State.Status = "created"
		if _, err := s.SendCommand(ctx, &shipOrder{OrderID: s.ID().String()}); err != nil {
			return err
		}
	case *paymentReceived:
		s.State.Status = "paid"
		return s.Complete(ctx)
	case *orderCancelled:
		s.State.Status = "cancelled"
		return s.Complete(ctx)
	}
	return nil
}

type sagaTweaks struct {
	declineAll bool
	handleErr  error
}

func orderRegistration(tweaks sagaTweaks) Registration[*orderState] {
	return Registration[*orderState]{
		SagaType: "OrderSaga",
		NewState: func(id uuid.UUID) *orderState {
			return &orderState{StateBase: StateBase{SagaID: id}}
		},
		New: func(state *orderState, deps Deps) Saga {
			return &orderSaga{
				Base:       NewBase("OrderSaga", state, deps),
				declineAll: tweaks.declineAll,
				handleErr:  tweaks.handleErr,
			}
		},
		Configure: func(info *Info) {
			info.StartsWith(&orderCreated{}).
				Handles(&paymentReceived{}).
				Handles(&orderCancelled{})
		},
	}
}

func startEvent(id uuid.UUID) *orderCreated {
	return &orderCreated{
		EventBase: EventBase{CorrelationID: id.String()},
		OrderID:   "order-1",
	}
}

func paymentEvent(id uuid.UUID) *paymentReceived {
	return &paymentReceived{
		EventBase: EventBase{CorrelationID: id.String()},
		Amount:    100,
	}
}
