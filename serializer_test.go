package sagakit

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQualifiedName(t *testing.T) {
	assert.Equal(t, "github.com/sagakit/sagakit.orderCreated", QualifiedName(orderCreated{}))
	assert.Equal(t, "github.com/sagakit/sagakit.orderCreated", QualifiedName(&orderCreated{}))
	assert.Equal(t, "github.com/sagakit/sagakit.orderCreated", QualifiedName((*orderCreated)(nil)))
	assert.Equal(t, "", QualifiedName(nil))
}

func TestTypeRegistry(t *testing.T) {
	t.Run("resolves by qualified and simple name", func(t *testing.T) {
		r := NewTypeRegistry()
		r.Register(&orderCreated{}, paymentReceived{})

		resolved, ok := r.Resolve("github.com/sagakit/sagakit.orderCreated")
		require.True(t, ok)
		assert.Equal(t, reflect.TypeOf(orderCreated{}), resolved)

		resolved, ok = r.Resolve("paymentReceived")
		require.True(t, ok)
		assert.Equal(t, reflect.TypeOf(paymentReceived{}), resolved)

		resolved, ok = r.Resolve("other/module.paymentReceived")
		require.True(t, ok, "simple-name fallback tolerates module path drift")
		assert.Equal(t, reflect.TypeOf(paymentReceived{}), resolved)
	})

	t.Run("unknown names do not resolve", func(t *testing.T) {
		r := NewTypeRegistry()
		_, ok := r.Resolve("github.com/sagakit/sagakit.orderCreated")
		assert.False(t, ok)
	})

	t.Run("new returns a fresh pointer instance", func(t *testing.T) {
		r := NewTypeRegistry()
		r.Register(&orderCreated{})

		instance, ok := r.New("github.com/sagakit/sagakit.orderCreated")
		require.True(t, ok)

		event, ok := instance.(*orderCreated)
		require.True(t, ok)
		assert.Empty(t, event.OrderID)
	})

	t.Run("registered types lists qualified names", func(t *testing.T) {
		r := NewTypeRegistry()
		r.Register(&orderCreated{}, &paymentReceived{})

		names := r.RegisteredTypes()
		assert.Len(t, names, 2)
		assert.Contains(t, names, "github.com/sagakit/sagakit.orderCreated")
	})

	t.Run("nil examples are ignored", func(t *testing.T) {
		r := NewTypeRegistry()
		r.Register(nil)
		assert.Empty(t, r.RegisteredTypes())
	})
}

func TestJSONSerializer(t *testing.T) {
	s := NewJSONSerializer()

	original := &orderState{Status: "created", Handled: []string{"OrderCreated"}}
	data, err := s.Marshal(original)
	require.NoError(t, err)

	decoded := &orderState{}
	require.NoError(t, s.Unmarshal(data, decoded))
	assert.Equal(t, original.Status, decoded.Status)
	assert.Equal(t, original.Handled, decoded.Handled)

	require.Error(t, s.Unmarshal([]byte("{broken"), decoded))
}
