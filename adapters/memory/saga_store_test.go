package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagakit/sagakit/adapters"
)

func newRecord(sagaType, sagaID string) *adapters.StateRecord {
	return &adapters.StateRecord{
		SagaID:   sagaID,
		SagaType: sagaType,
		Data:     []byte(`{"status":"created"}`),
	}
}

func TestSagaStore_Save(t *testing.T) {
	ctx := context.Background()

	t.Run("insert assigns version one and timestamps", func(t *testing.T) {
		store := NewSagaStore()
		record := newRecord("OrderSaga", "saga-1")

		require.NoError(t, store.Save(ctx, record))

		assert.Equal(t, int64(1), record.Version)
		assert.False(t, record.CreatedAt.IsZero())
		assert.False(t, record.UpdatedAt.IsZero())
		assert.Equal(t, 1, store.Len())
	})

	t.Run("update bumps the version and preserves creation time", func(t *testing.T) {
		store := NewSagaStore()
		record := newRecord("OrderSaga", "saga-1")
		require.NoError(t, store.Save(ctx, record))
		created := record.CreatedAt

		record.Data = []byte(`{"status":"paid"}`)
		require.NoError(t, store.Save(ctx, record))

		assert.Equal(t, int64(2), record.Version)
		assert.Equal(t, created, record.CreatedAt)
	})

	t.Run("stale version fails with a concurrency conflict", func(t *testing.T) {
		store := NewSagaStore()
		require.NoError(t, store.Save(ctx, newRecord("OrderSaga", "saga-1")))

		stale := newRecord("OrderSaga", "saga-1")
		stale.Version = 0

		err := store.Save(ctx, stale)
		require.ErrorIs(t, err, adapters.ErrConcurrencyConflict)

		var conflict *adapters.ConcurrencyError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, int64(0), conflict.ExpectedVersion)
		assert.Equal(t, int64(1), conflict.ActualVersion)
	})

	t.Run("positive version without a row fails with not found", func(t *testing.T) {
		store := NewSagaStore()
		record := newRecord("OrderSaga", "saga-1")
		record.Version = 3

		require.ErrorIs(t, store.Save(ctx, record), adapters.ErrSagaNotFound)
	})

	t.Run("validates its input", func(t *testing.T) {
		store := NewSagaStore()

		require.ErrorIs(t, store.Save(ctx, nil), adapters.ErrNilState)
		require.ErrorIs(t, store.Save(ctx, newRecord("", "saga-1")), adapters.ErrEmptySagaType)
		require.ErrorIs(t, store.Save(ctx, newRecord("OrderSaga", "")), adapters.ErrEmptySagaID)
	})
}

func TestSagaStore_Load(t *testing.T) {
	ctx := context.Background()

	t.Run("returns a copy of the stored record", func(t *testing.T) {
		store := NewSagaStore()
		require.NoError(t, store.Save(ctx, newRecord("OrderSaga", "saga-1")))

		loaded, err := store.Load(ctx, "OrderSaga", "saga-1")
		require.NoError(t, err)

		// Mutating the copy must not leak into the store.
		loaded.Data[0] = 'X'
		again, err := store.Load(ctx, "OrderSaga", "saga-1")
		require.NoError(t, err)
		assert.Equal(t, byte('{'), again.Data[0])
	})

	t.Run("unknown saga fails with not found", func(t *testing.T) {
		store := NewSagaStore()

		_, err := store.Load(ctx, "OrderSaga", "missing")
		require.ErrorIs(t, err, adapters.ErrSagaNotFound)

		var notFound *adapters.SagaNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "missing", notFound.SagaID)
	})

	t.Run("saga types are isolated", func(t *testing.T) {
		store := NewSagaStore()
		require.NoError(t, store.Save(ctx, newRecord("OrderSaga", "saga-1")))

		_, err := store.Load(ctx, "PaymentSaga", "saga-1")
		require.ErrorIs(t, err, adapters.ErrSagaNotFound)
	})

	t.Run("validates its input", func(t *testing.T) {
		store := NewSagaStore()

		_, err := store.Load(ctx, "", "saga-1")
		require.ErrorIs(t, err, adapters.ErrEmptySagaType)

		_, err = store.Load(ctx, "OrderSaga", "")
		require.ErrorIs(t, err, adapters.ErrEmptySagaID)
	})

	t.Run("honors cancelled contexts", func(t *testing.T) {
		store := NewSagaStore()
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := store.Load(cancelled, "OrderSaga", "saga-1")
		require.ErrorIs(t, err, context.Canceled)
	})
}
