package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagakit/sagakit/adapters"
)

// setupTestTimeoutStore creates a TimeoutStore over a unique test table.
func setupTestTimeoutStore(t *testing.T) (*TimeoutStore, func()) {
	t.Helper()

	db := setupTestDB(t)

	tableName := "sagakit_timeouts_test_" + time.Now().Format("20060102150405")
	store := NewTimeoutStore(db, WithTimeoutTable(tableName))

	if err := store.Initialize(context.Background()); err != nil {
		db.Close()
		t.Fatalf("Failed to initialize timeout store: %v", err)
	}

	cleanup := func() {
		db.Exec("DROP TABLE IF EXISTS " + quoteQualifiedTable("public", tableName))
		db.Close()
	}

	return store, cleanup
}

func testTimeout(timeoutID, sagaID string, dueAt time.Time) *adapters.Timeout {
	return &adapters.Timeout{
		TimeoutID:   timeoutID,
		SagaID:      sagaID,
		SagaType:    "OrderSaga",
		TimeoutType: "PaymentOverdue",
		Data:        []byte(`{"value":"v1"}`),
		DueAt:       dueAt,
	}
}

// ====================================================================
// Option Tests
// ====================================================================

func TestNewTimeoutStore_Options(t *testing.T) {
	store := NewTimeoutStore(nil)
	assert.Equal(t, "public", store.schema)
	assert.Equal(t, "sagakit_timeouts", store.table)

	store = NewTimeoutStore(nil, WithTimeoutSchema("orders"), WithTimeoutTable("order_timeouts"))
	assert.Equal(t, `"orders"."order_timeouts"`, store.fullTableName())
}

func TestTimeoutStore_Initialize_RejectsBadIdentifiers(t *testing.T) {
	store := NewTimeoutStore(nil, WithTimeoutTable("timeouts; --"))
	require.Error(t, store.Initialize(context.Background()))
}

// ====================================================================
// Integration Tests (require PostgreSQL)
// ====================================================================

func TestTimeoutStore_ScheduleAndDue(t *testing.T) {
	store, cleanup := setupTestTimeoutStore(t)
	defer cleanup()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Schedule(ctx, testTimeout("t-early", "saga-1", now.Add(-time.Hour))))
	require.NoError(t, store.Schedule(ctx, testTimeout("t-later", "saga-1", now.Add(-time.Minute))))
	require.NoError(t, store.Schedule(ctx, testTimeout("t-future", "saga-1", now.Add(time.Hour))))

	due, err := store.Due(ctx, now, 0)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "t-early", due[0].TimeoutID)
	assert.Equal(t, "t-later", due[1].TimeoutID)
	assert.Equal(t, []byte(`{"value":"v1"}`), due[0].Data)
	assert.False(t, due[0].ScheduledAt.IsZero())

	due, err = store.Due(ctx, now, 1)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "t-early", due[0].TimeoutID)
}

func TestTimeoutStore_Schedule_Overwrites(t *testing.T) {
	store, cleanup := setupTestTimeoutStore(t)
	defer cleanup()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Schedule(ctx, testTimeout("t-1", "saga-1", now.Add(-time.Minute))))

	rescheduled := testTimeout("t-1", "saga-1", now.Add(time.Hour))
	require.NoError(t, store.Schedule(ctx, rescheduled))

	due, err := store.Due(ctx, now, 0)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestTimeoutStore_MarkDelivered(t *testing.T) {
	store, cleanup := setupTestTimeoutStore(t)
	defer cleanup()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Schedule(ctx, testTimeout("t-1", "saga-1", now.Add(-time.Minute))))
	require.NoError(t, store.MarkDelivered(ctx, "t-1"))

	due, err := store.Due(ctx, now, 0)
	require.NoError(t, err)
	assert.Empty(t, due)

	// Idempotent on an already-delivered timeout.
	require.NoError(t, store.MarkDelivered(ctx, "t-1"))

	err = store.MarkDelivered(ctx, "missing")
	require.ErrorIs(t, err, adapters.ErrTimeoutNotFound)
}

func TestTimeoutStore_Cancel(t *testing.T) {
	store, cleanup := setupTestTimeoutStore(t)
	defer cleanup()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Schedule(ctx, testTimeout("t-1", "saga-1", now.Add(-time.Minute))))
	require.NoError(t, store.Schedule(ctx, testTimeout("t-2", "saga-1", now.Add(-time.Minute))))
	require.NoError(t, store.Schedule(ctx, testTimeout("t-3", "saga-2", now.Add(-time.Minute))))

	// Cancelling with the wrong saga id leaves the timeout in place.
	require.NoError(t, store.Cancel(ctx, "saga-2", "t-1"))
	due, err := store.Due(ctx, now, 0)
	require.NoError(t, err)
	assert.Len(t, due, 3)

	require.NoError(t, store.Cancel(ctx, "saga-1", "t-1"))
	due, err = store.Due(ctx, now, 0)
	require.NoError(t, err)
	assert.Len(t, due, 2)

	require.NoError(t, store.CancelAll(ctx, "saga-1"))
	due, err = store.Due(ctx, now, 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "t-3", due[0].TimeoutID)

	// Unknown ids are not an error.
	require.NoError(t, store.Cancel(ctx, "saga-1", "missing"))
}
