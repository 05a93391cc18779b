package sagas

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagakit/sagakit"
)

// ====================================================================
// Shipment Saga Fixture
// ====================================================================

type shipmentState struct {
	sagakit.StateBase
	Stage string `json:"stage"`
}

type shipmentRequested struct {
	sagakit.EventBase
}

func (shipmentRequested) MessageType() string { return "ShipmentRequested" }

type shipmentDelivered struct {
	sagakit.EventBase
}

func (shipmentDelivered) MessageType() string { return "ShipmentDelivered" }

type notifyCustomer struct{}

func (notifyCustomer) MessageType() string { return "NotifyCustomer" }

type shipmentSaga struct {
	sagakit.Base[*shipmentState]
}

func (s *shipmentSaga) HandlesEvent(event sagakit.Event) bool { return true }

func (s *shipmentSaga) Handle(ctx context.Context, event sagakit.Event) error {
	switch event.(type) {
	case *shipmentRequested:
		s.State.Stage = "in_transit"
		if _, err := s.RequestTimeout(ctx, 24*time.Hour, (*shipmentDelivered)(nil)); err != nil {
			return err
		}
		_, err := s.SendCommand(ctx, notifyCustomer{})
		return err
	case *shipmentDelivered:
		s.State.Stage = "delivered"
		return s.Complete(ctx)
	}
	return nil
}

func shipmentRegistration() sagakit.Registration[*shipmentState] {
	return sagakit.Registration[*shipmentState]{
		SagaType: "ShipmentSaga",
		NewState: func(id uuid.UUID) *shipmentState {
			return &shipmentState{StateBase: sagakit.StateBase{SagaID: id}}
		},
		New: func(state *shipmentState, deps sagakit.Deps) sagakit.Saga {
			return &shipmentSaga{Base: sagakit.NewBase("ShipmentSaga", state, deps)}
		},
		Configure: func(info *sagakit.Info) {
			info.StartsWith(&shipmentRequested{}).Handles(&shipmentDelivered{})
		},
	}
}

func startShipment(id uuid.UUID) *shipmentRequested {
	return &shipmentRequested{EventBase: sagakit.EventBase{CorrelationID: id.String()}}
}

func deliverShipment(id uuid.UUID) *shipmentDelivered {
	return &shipmentDelivered{EventBase: sagakit.EventBase{CorrelationID: id.String()}}
}

// ====================================================================
// Tests
// ====================================================================

func TestRecordingDispatcher(t *testing.T) {
	ctx := context.Background()
	d := NewRecordingDispatcher()

	result, err := d.Dispatch(ctx, notifyCustomer{}, sagakit.Metadata{"k": "v"})
	require.NoError(t, err)
	assert.True(t, result.IsSuccess())

	require.Equal(t, 1, d.Len())
	assert.Equal(t, []string{"NotifyCustomer"}, d.MessageTypes())
	assert.Equal(t, "v", d.Dispatches()[0].Metadata.Get("k"))

	d.FailWith(assert.AnError)
	_, err = d.Dispatch(ctx, notifyCustomer{}, nil)
	require.ErrorIs(t, err, assert.AnError)

	d.Reset()
	assert.Zero(t, d.Len())
}

func TestFixture_HappyPath(t *testing.T) {
	f := NewFixture(t)
	RegisterSaga(f, shipmentRegistration())

	sagaID := uuid.New()
	f.GivenEvents(startShipment(sagaID)).
		ThenNoError().
		ThenDispatched("NotifyCustomer").
		ThenNotCompleted("ShipmentSaga", sagaID).
		ThenPendingTimeouts(sagaID, 1)

	state := &shipmentState{}
	f.LoadState("ShipmentSaga", sagaID, state)
	assert.Equal(t, "in_transit", state.Stage)

	f.GivenEvents(deliverShipment(sagaID)).
		ThenNoError().
		ThenCompleted("ShipmentSaga", sagaID).
		ThenPendingTimeouts(sagaID, 0)
}

func TestFixture_UnknownContinuationLeavesNoState(t *testing.T) {
	f := NewFixture(t)
	RegisterSaga(f, shipmentRegistration())

	sagaID := uuid.New()
	f.GivenEvents(deliverShipment(sagaID)).
		ThenNoError().
		ThenNoDispatch().
		ThenNoState("ShipmentSaga", sagaID)
}

func TestFixture_ThenError(t *testing.T) {
	f := NewFixture(t)
	RegisterSaga(f, shipmentRegistration())

	bad := &shipmentRequested{EventBase: sagakit.EventBase{CorrelationID: "not-a-uuid"}}
	f.GivenEvents(bad).ThenError(sagakit.ErrInvalidSagaID)
}

func TestFixture_Accessors(t *testing.T) {
	f := NewFixture(t)

	assert.NotNil(t, f.Dispatcher())
	assert.NotNil(t, f.TimeoutStore())
	assert.NotNil(t, f.Orchestration())
	assert.Nil(t, f.Orchestration().Bus)
}
