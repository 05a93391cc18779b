package sagakit

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateBase(t *testing.T) {
	id := uuid.New()
	state := &orderState{}

	state.SetSagaID(id)
	assert.Equal(t, id, state.GetSagaID())

	assert.False(t, state.IsCompleted())
	state.SetCompleted(true)
	assert.True(t, state.IsCompleted())

	// StateBase with a pointer receiver satisfies the contract.
	var _ State = state
}

func TestStateBase_JSON(t *testing.T) {
	id := uuid.New()
	original := &orderState{
		StateBase: StateBase{SagaID: id, Completed: true},
		Status:    "paid",
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	decoded := &orderState{}
	require.NoError(t, json.Unmarshal(data, decoded))
	assert.Equal(t, id, decoded.SagaID)
	assert.True(t, decoded.Completed)
	assert.Equal(t, "paid", decoded.Status)
}
