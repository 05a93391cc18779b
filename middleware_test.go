package sagakit

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagakit/sagakit/adapters/memory"
)

func newSagaStageBus(t *testing.T, tweaks sagaTweaks) (*Bus, *memory.SagaStore) {
	t.Helper()

	store := memory.NewSagaStore()
	registry := NewRegistry()
	require.NoError(t, Register(registry, orderRegistration(tweaks)))

	bus := NewBus()
	coordinator := NewCoordinator(registry, store, Deps{Dispatcher: bus})
	bus.Use(SagaStage(coordinator, nil))
	return bus, store
}

func TestSagaStage(t *testing.T) {
	ctx := context.Background()

	t.Run("saga-only events dispatch successfully", func(t *testing.T) {
		bus, store := newSagaStageBus(t, sagaTweaks{})
		// ShipOrder is dispatched by the saga itself during handling.
		bus.RegisterFunc("ShipOrder", func(ctx context.Context, msg Message, meta Metadata) (Result, error) {
			return NewSuccessResult(nil), nil
		})

		sagaID := uuid.New()
		result, err := bus.Dispatch(ctx, startEvent(sagaID), nil)
		require.NoError(t, err)
		assert.True(t, result.IsSuccess())

		record, err := store.Load(ctx, "OrderSaga", sagaID.String())
		require.NoError(t, err)
		assert.False(t, record.Completed)
	})

	t.Run("direct handler and saga both observe the event", func(t *testing.T) {
		bus, store := newSagaStageBus(t, sagaTweaks{})
		bus.RegisterFunc("ShipOrder", func(ctx context.Context, msg Message, meta Metadata) (Result, error) {
			return NewSuccessResult(nil), nil
		})

		handled := 0
		bus.RegisterFunc("OrderCreated", func(ctx context.Context, msg Message, meta Metadata) (Result, error) {
			handled++
			return NewSuccessResult(nil), nil
		})

		sagaID := uuid.New()
		_, err := bus.Dispatch(ctx, startEvent(sagaID), nil)
		require.NoError(t, err)

		assert.Equal(t, 1, handled)
		_, err = store.Load(ctx, "OrderSaga", sagaID.String())
		require.NoError(t, err)
	})

	t.Run("events not recognized by any saga keep the handler error", func(t *testing.T) {
		bus, _ := newSagaStageBus(t, sagaTweaks{})

		event := &unrelatedEvent{EventBase: EventBase{CorrelationID: uuid.NewString()}}
		_, err := bus.Dispatch(ctx, event, nil)
		require.ErrorIs(t, err, ErrHandlerNotFound)
	})

	t.Run("non-event messages pass through untouched", func(t *testing.T) {
		bus, store := newSagaStageBus(t, sagaTweaks{})
		bus.RegisterFunc("ShipOrder", func(ctx context.Context, msg Message, meta Metadata) (Result, error) {
			return NewSuccessResult(nil), nil
		})

		_, err := bus.Dispatch(ctx, &shipOrder{}, nil)
		require.NoError(t, err)
		assert.Zero(t, store.Len())
	})

	t.Run("saga processing errors never replace the handler result", func(t *testing.T) {
		store := memory.NewSagaStore()
		registry := NewRegistry()
		require.NoError(t, Register(registry, orderRegistration(sagaTweaks{handleErr: assert.AnError})))

		logged := &collectingLogger{}
		bus := NewBus()
		coordinator := NewCoordinator(registry, store, Deps{Dispatcher: bus})
		bus.Use(SagaStage(coordinator, logged))

		bus.RegisterFunc("OrderCreated", func(ctx context.Context, msg Message, meta Metadata) (Result, error) {
			return NewSuccessResult("handled"), nil
		})

		result, err := bus.Dispatch(ctx, startEvent(uuid.New()), nil)
		require.NoError(t, err)
		assert.True(t, result.IsSuccess())
		assert.Equal(t, "handled", result.Data)
		assert.NotEmpty(t, logged.errs)
	})

	t.Run("saga-only dispatch succeeds even when the saga fails", func(t *testing.T) {
		bus, store := newSagaStageBus(t, sagaTweaks{handleErr: assert.AnError})

		result, err := bus.Dispatch(ctx, startEvent(uuid.New()), nil)
		require.NoError(t, err)
		assert.True(t, result.IsSuccess())
		assert.Zero(t, store.Len())
	})
}

func TestLoggingMiddleware(t *testing.T) {
	logged := &collectingLogger{}
	bus := NewBus(WithMiddleware(NewLoggingMiddleware(logged).Middleware()))
	bus.RegisterFunc("ShipOrder", func(ctx context.Context, msg Message, meta Metadata) (Result, error) {
		return NewSuccessResult(nil), nil
	})

	_, err := bus.Dispatch(context.Background(), &shipOrder{}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, logged.infos)
}

// collectingLogger records log calls for assertions.
type collectingLogger struct {
	debugs []string
	infos  []string
	warns  []string
	errs   []string
}

func (l *collectingLogger) Debug(msg string, args ...interface{}) { l.debugs = append(l.debugs, msg) }
func (l *collectingLogger) Info(msg string, args ...interface{})  { l.infos = append(l.infos, msg) }
func (l *collectingLogger) Warn(msg string, args ...interface{})  { l.warns = append(l.warns, msg) }
func (l *collectingLogger) Error(msg string, args ...interface{}) { l.errs = append(l.errs, msg) }
