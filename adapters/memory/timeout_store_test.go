package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagakit/sagakit/adapters"
)

func newTimeout(timeoutID, sagaID string, dueAt time.Time) *adapters.Timeout {
	return &adapters.Timeout{
		TimeoutID:   timeoutID,
		SagaID:      sagaID,
		SagaType:    "OrderSaga",
		TimeoutType: "PaymentOverdue",
		DueAt:       dueAt,
	}
}

func TestTimeoutStore_Schedule(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("persists a timeout and defaults the scheduled time", func(t *testing.T) {
		store := NewTimeoutStore()
		require.NoError(t, store.Schedule(ctx, newTimeout("t-1", "saga-1", now)))

		due, err := store.Due(ctx, now, 0)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.False(t, due[0].ScheduledAt.IsZero())
	})

	t.Run("rescheduling the same id overwrites", func(t *testing.T) {
		store := NewTimeoutStore()
		require.NoError(t, store.Schedule(ctx, newTimeout("t-1", "saga-1", now)))
		require.NoError(t, store.Schedule(ctx, newTimeout("t-1", "saga-1", now.Add(time.Hour))))

		due, err := store.Due(ctx, now, 0)
		require.NoError(t, err)
		assert.Empty(t, due)
		assert.Equal(t, 1, store.Pending("saga-1"))
	})

	t.Run("validates its input", func(t *testing.T) {
		store := NewTimeoutStore()

		require.ErrorIs(t, store.Schedule(ctx, nil), adapters.ErrNilTimeout)
		require.ErrorIs(t, store.Schedule(ctx, newTimeout("", "saga-1", now)), adapters.ErrEmptyTimeoutID)
		require.ErrorIs(t, store.Schedule(ctx, newTimeout("t-1", "", now)), adapters.ErrEmptySagaID)
	})
}

func TestTimeoutStore_Due(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("returns only due undelivered timeouts ordered by due time", func(t *testing.T) {
		store := NewTimeoutStore()
		require.NoError(t, store.Schedule(ctx, newTimeout("t-later", "saga-1", now.Add(-time.Minute))))
		require.NoError(t, store.Schedule(ctx, newTimeout("t-early", "saga-1", now.Add(-time.Hour))))
		require.NoError(t, store.Schedule(ctx, newTimeout("t-future", "saga-1", now.Add(time.Hour))))

		due, err := store.Due(ctx, now, 0)
		require.NoError(t, err)
		require.Len(t, due, 2)
		assert.Equal(t, "t-early", due[0].TimeoutID)
		assert.Equal(t, "t-later", due[1].TimeoutID)
	})

	t.Run("ties on due time break by timeout id", func(t *testing.T) {
		store := NewTimeoutStore()
		dueAt := now.Add(-time.Minute)
		require.NoError(t, store.Schedule(ctx, newTimeout("t-b", "saga-1", dueAt)))
		require.NoError(t, store.Schedule(ctx, newTimeout("t-a", "saga-1", dueAt)))

		due, err := store.Due(ctx, now, 0)
		require.NoError(t, err)
		require.Len(t, due, 2)
		assert.Equal(t, "t-a", due[0].TimeoutID)
	})

	t.Run("limit caps the batch", func(t *testing.T) {
		store := NewTimeoutStore()
		for i := 0; i < 5; i++ {
			id := fmt.Sprintf("t-%d", i)
			require.NoError(t, store.Schedule(ctx, newTimeout(id, "saga-1", now.Add(-time.Minute))))
		}

		due, err := store.Due(ctx, now, 2)
		require.NoError(t, err)
		assert.Len(t, due, 2)
	})

	t.Run("returned timeouts are copies", func(t *testing.T) {
		store := NewTimeoutStore()
		require.NoError(t, store.Schedule(ctx, newTimeout("t-1", "saga-1", now.Add(-time.Minute))))

		due, err := store.Due(ctx, now, 0)
		require.NoError(t, err)
		due[0].SagaID = "mutated"

		again, err := store.Due(ctx, now, 0)
		require.NoError(t, err)
		assert.Equal(t, "saga-1", again[0].SagaID)
	})
}

func TestTimeoutStore_MarkDelivered(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("delivered timeouts stop appearing as due", func(t *testing.T) {
		store := NewTimeoutStore()
		require.NoError(t, store.Schedule(ctx, newTimeout("t-1", "saga-1", now.Add(-time.Minute))))

		require.NoError(t, store.MarkDelivered(ctx, "t-1"))

		due, err := store.Due(ctx, now, 0)
		require.NoError(t, err)
		assert.Empty(t, due)
		assert.Zero(t, store.Pending("saga-1"))
	})

	t.Run("marking twice is idempotent", func(t *testing.T) {
		store := NewTimeoutStore()
		require.NoError(t, store.Schedule(ctx, newTimeout("t-1", "saga-1", now)))

		require.NoError(t, store.MarkDelivered(ctx, "t-1"))
		require.NoError(t, store.MarkDelivered(ctx, "t-1"))
	})

	t.Run("unknown id fails with not found", func(t *testing.T) {
		store := NewTimeoutStore()

		err := store.MarkDelivered(ctx, "missing")
		require.ErrorIs(t, err, adapters.ErrTimeoutNotFound)

		var notFound *adapters.TimeoutNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "missing", notFound.TimeoutID)
	})

	t.Run("rejects a blank id", func(t *testing.T) {
		store := NewTimeoutStore()
		require.ErrorIs(t, store.MarkDelivered(ctx, ""), adapters.ErrEmptyTimeoutID)
	})
}

func TestTimeoutStore_Cancel(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("removes the pending timeout", func(t *testing.T) {
		store := NewTimeoutStore()
		require.NoError(t, store.Schedule(ctx, newTimeout("t-1", "saga-1", now)))

		require.NoError(t, store.Cancel(ctx, "saga-1", "t-1"))
		assert.Zero(t, store.Pending("saga-1"))
	})

	t.Run("ignores timeouts owned by another saga", func(t *testing.T) {
		store := NewTimeoutStore()
		require.NoError(t, store.Schedule(ctx, newTimeout("t-1", "saga-1", now)))

		require.NoError(t, store.Cancel(ctx, "saga-2", "t-1"))
		assert.Equal(t, 1, store.Pending("saga-1"))
	})

	t.Run("cancelling a delivered timeout is a no-op", func(t *testing.T) {
		store := NewTimeoutStore()
		require.NoError(t, store.Schedule(ctx, newTimeout("t-1", "saga-1", now.Add(-time.Minute))))
		require.NoError(t, store.MarkDelivered(ctx, "t-1"))

		require.NoError(t, store.Cancel(ctx, "saga-1", "t-1"))

		// The delivered row survives for audit purposes.
		require.NoError(t, store.MarkDelivered(ctx, "t-1"))
	})

	t.Run("unknown id is not an error", func(t *testing.T) {
		store := NewTimeoutStore()
		require.NoError(t, store.Cancel(ctx, "saga-1", "missing"))
	})
}

func TestTimeoutStore_CancelAll(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	store := NewTimeoutStore()
	require.NoError(t, store.Schedule(ctx, newTimeout("t-1", "saga-1", now)))
	require.NoError(t, store.Schedule(ctx, newTimeout("t-2", "saga-1", now)))
	require.NoError(t, store.Schedule(ctx, newTimeout("t-3", "saga-2", now)))

	require.NoError(t, store.CancelAll(ctx, "saga-1"))

	assert.Zero(t, store.Pending("saga-1"))
	assert.Equal(t, 1, store.Pending("saga-2"))
}
