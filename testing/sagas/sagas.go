// Package sagas provides testing utilities for saga development. It
// includes a recording dispatcher and a BDD-style fixture for driving
// sagas through the full coordinator pipeline against in-memory stores.
package sagas

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/sagakit/sagakit"
	"github.com/sagakit/sagakit/adapters/memory"
)

// TB is an alias for testing.TB to enable easier mocking in tests.
type TB = testing.TB

// Dispatch captures one recorded dispatch.
type Dispatch struct {
	Message  sagakit.Message
	Metadata sagakit.Metadata
}

// RecordingDispatcher records every dispatched message for assertions.
// It reports success unless FailWith has set an error.
type RecordingDispatcher struct {
	mu         sync.Mutex
	dispatches []Dispatch
	err        error
}

// NewRecordingDispatcher creates an empty RecordingDispatcher.
func NewRecordingDispatcher() *RecordingDispatcher {
	return &RecordingDispatcher{}
}

// Dispatch records the message and returns the configured outcome.
func (d *RecordingDispatcher) Dispatch(ctx context.Context, msg sagakit.Message, meta sagakit.Metadata) (sagakit.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dispatches = append(d.dispatches, Dispatch{Message: msg, Metadata: meta.Clone()})
	if d.err != nil {
		return sagakit.NewErrorResult(d.err), d.err
	}
	return sagakit.NewSuccessResult(nil), nil
}

// FailWith makes subsequent dispatches fail with the given error.
// Pass nil to restore success.
func (d *RecordingDispatcher) FailWith(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// Dispatches returns a copy of all recorded dispatches.
func (d *RecordingDispatcher) Dispatches() []Dispatch {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Dispatch, len(d.dispatches))
	copy(out, d.dispatches)
	return out
}

// MessageTypes returns the recorded message types in dispatch order.
func (d *RecordingDispatcher) MessageTypes() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	types := make([]string, len(d.dispatches))
	for i, rec := range d.dispatches {
		types[i] = rec.Message.MessageType()
	}
	return types
}

// Len returns the number of recorded dispatches.
func (d *RecordingDispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dispatches)
}

// Reset clears all recorded dispatches.
func (d *RecordingDispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dispatches = nil
}

var _ sagakit.Dispatcher = (*RecordingDispatcher)(nil)

// Fixture provides BDD-style testing for sagas. Events flow through a
// real coordinator into in-memory stores; outgoing messages land in a
// RecordingDispatcher.
type Fixture struct {
	t          TB
	ctx        context.Context
	app        *sagakit.Orchestration
	dispatcher *RecordingDispatcher
	store      *memory.SagaStore
	timeouts   *memory.TimeoutStore
	err        error
}

// NewFixture creates a saga test fixture over fresh in-memory stores.
func NewFixture(t TB) *Fixture {
	t.Helper()

	dispatcher := NewRecordingDispatcher()
	store := memory.NewSagaStore()
	timeouts := memory.NewTimeoutStore()

	app := sagakit.New(
		sagakit.WithStore(store),
		sagakit.WithTimeoutStore(timeouts),
		sagakit.WithDispatcher(dispatcher),
	)

	return &Fixture{
		t:          t,
		ctx:        context.Background(),
		app:        app,
		dispatcher: dispatcher,
		store:      store,
		timeouts:   timeouts,
	}
}

// RegisterSaga adds a saga registration to the fixture's registry.
func RegisterSaga[TState sagakit.State](f *Fixture, reg sagakit.Registration[TState]) {
	f.t.Helper()
	if err := sagakit.Register(f.app.Registry, reg); err != nil {
		f.t.Fatalf("Failed to register saga: %v", err)
	}
}

// WithContext sets a custom context for event processing.
func (f *Fixture) WithContext(ctx context.Context) *Fixture {
	f.ctx = ctx
	return f
}

// Dispatcher returns the recording dispatcher.
func (f *Fixture) Dispatcher() *RecordingDispatcher {
	return f.dispatcher
}

// TimeoutStore returns the in-memory timeout store.
func (f *Fixture) TimeoutStore() *memory.TimeoutStore {
	return f.timeouts
}

// Orchestration returns the wired orchestration.
func (f *Fixture) Orchestration() *sagakit.Orchestration {
	return f.app
}

// GivenEvents processes events through the coordinator. Processing
// stops at the first error; inspect it with ThenError.
func (f *Fixture) GivenEvents(events ...sagakit.Event) *Fixture {
	f.t.Helper()

	for _, event := range events {
		if err := f.app.Coordinator.ProcessEvent(f.ctx, event); err != nil {
			f.err = err
			return f
		}
	}
	return f
}

// ThenDispatched asserts the message types dispatched so far, in order.
func (f *Fixture) ThenDispatched(expected ...string) *Fixture {
	f.t.Helper()

	if f.err != nil {
		f.t.Fatalf("Event processing returned error: %v", f.err)
	}

	actual := f.dispatcher.MessageTypes()
	if len(actual) != len(expected) {
		f.t.Fatalf("Expected %d dispatched messages, got %d.\nExpected: %v\nActual: %v",
			len(expected), len(actual), expected, actual)
	}
	for i, exp := range expected {
		if actual[i] != exp {
			f.t.Errorf("Dispatch %d mismatch: expected %q, got %q", i, exp, actual[i])
		}
	}
	return f
}

// ThenNoDispatch asserts that no messages were dispatched.
func (f *Fixture) ThenNoDispatch() *Fixture {
	f.t.Helper()

	if f.err != nil {
		f.t.Fatalf("Event processing returned error: %v", f.err)
	}
	if n := f.dispatcher.Len(); n > 0 {
		f.t.Errorf("Expected no dispatched messages, got %d: %v", n, f.dispatcher.MessageTypes())
	}
	return f
}

// ThenError asserts that event processing failed with the given error.
func (f *Fixture) ThenError(target error) *Fixture {
	f.t.Helper()

	if f.err == nil {
		f.t.Fatal("Expected error but event processing succeeded")
	}
	if target != nil && !errors.Is(f.err, target) {
		f.t.Errorf("Expected error %v, got %v", target, f.err)
	}
	return f
}

// ThenNoError asserts that event processing succeeded.
func (f *Fixture) ThenNoError() *Fixture {
	f.t.Helper()

	if f.err != nil {
		f.t.Fatalf("Expected success, got error: %v", f.err)
	}
	return f
}

// ThenCompleted asserts the persisted saga state is marked completed.
func (f *Fixture) ThenCompleted(sagaType string, sagaID uuid.UUID) *Fixture {
	f.t.Helper()

	record, err := f.store.Load(f.ctx, sagaType, sagaID.String())
	if err != nil {
		f.t.Fatalf("Failed to load saga %s/%s: %v", sagaType, sagaID, err)
	}
	if !record.Completed {
		f.t.Errorf("Expected saga %s/%s to be completed", sagaType, sagaID)
	}
	return f
}

// ThenNotCompleted asserts the persisted saga state is not completed.
func (f *Fixture) ThenNotCompleted(sagaType string, sagaID uuid.UUID) *Fixture {
	f.t.Helper()

	record, err := f.store.Load(f.ctx, sagaType, sagaID.String())
	if err != nil {
		f.t.Fatalf("Failed to load saga %s/%s: %v", sagaType, sagaID, err)
	}
	if record.Completed {
		f.t.Errorf("Expected saga %s/%s to not be completed", sagaType, sagaID)
	}
	return f
}

// ThenNoState asserts that no state was persisted for the saga.
func (f *Fixture) ThenNoState(sagaType string, sagaID uuid.UUID) *Fixture {
	f.t.Helper()

	if _, err := f.store.Load(f.ctx, sagaType, sagaID.String()); !errors.Is(err, sagakit.ErrSagaNotFound) {
		f.t.Errorf("Expected no state for saga %s/%s, got err=%v", sagaType, sagaID, err)
	}
	return f
}

// LoadState deserializes the persisted saga state into the given value.
func (f *Fixture) LoadState(sagaType string, sagaID uuid.UUID, into any) *Fixture {
	f.t.Helper()

	record, err := f.store.Load(f.ctx, sagaType, sagaID.String())
	if err != nil {
		f.t.Fatalf("Failed to load saga %s/%s: %v", sagaType, sagaID, err)
	}
	if err := sagakit.NewJSONSerializer().Unmarshal(record.Data, into); err != nil {
		f.t.Fatalf("Failed to deserialize state for saga %s/%s: %v", sagaType, sagaID, err)
	}
	return f
}

// ThenPendingTimeouts asserts the number of undelivered timeouts for
// the saga.
func (f *Fixture) ThenPendingTimeouts(sagaID uuid.UUID, expected int) *Fixture {
	f.t.Helper()

	if actual := f.timeouts.Pending(sagaID.String()); actual != expected {
		f.t.Errorf("Expected %d pending timeouts for saga %s, got %d", expected, sagaID, actual)
	}
	return f
}
