package sagakit

import (
	"reflect"

	mapset "github.com/deckarep/golang-set/v2"
)

// Info is the metadata record binding one saga type to its state type and
// to the event types that start or continue it. It is built once during
// registration via the fluent StartsWith/Handles calls and is immutable
// afterwards by convention.
type Info struct {
	// SagaType is the registered type name of the saga.
	SagaType string

	// StateType is the Go type of the saga's state.
	StateType reflect.Type

	starts  mapset.Set[reflect.Type]
	handles mapset.Set[reflect.Type]
}

func newInfo(sagaType string, stateType reflect.Type) *Info {
	return &Info{
		SagaType:  sagaType,
		StateType: stateType,
		starts:    mapset.NewSet[reflect.Type](),
		handles:   mapset.NewSet[reflect.Type](),
	}
}

// StartsWith declares that the example's event type may create a new saga
// instance. Start events are always handled events as well.
// Returns the Info for chaining.
func (i *Info) StartsWith(example Event) *Info {
	t := messageType(example)
	i.starts.Add(t)
	i.handles.Add(t)
	return i
}

// Handles declares that the example's event type continues an existing
// saga instance. Returns the Info for chaining.
func (i *Info) Handles(example Event) *Info {
	i.handles.Add(messageType(example))
	return i
}

// IsStartEvent reports whether the event type may start a new saga.
func (i *Info) IsStartEvent(t reflect.Type) bool {
	return i.starts.Contains(t)
}

// HandlesEvent reports whether the event type is handled by this saga.
func (i *Info) HandlesEvent(t reflect.Type) bool {
	return i.handles.Contains(t)
}

// StartEvents returns the event types that may start a new saga.
func (i *Info) StartEvents() []reflect.Type {
	return i.starts.ToSlice()
}

// HandledEvents returns the deduplicated union of start and continuation
// event types.
func (i *Info) HandledEvents() []reflect.Type {
	return i.handles.ToSlice()
}

// messageType returns the value type of a message, dereferencing pointers
// so that &OrderCreated{} and OrderCreated{} register and route the same.
func messageType(v any) reflect.Type {
	t := reflect.TypeOf(v)
	if t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}
