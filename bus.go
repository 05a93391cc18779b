package sagakit

import (
	"context"
	"sync"
	"sync/atomic"
)

// HandlerFunc handles one message type.
type HandlerFunc func(ctx context.Context, msg Message, meta Metadata) (Result, error)

// Bus is the in-process dispatch substrate. It routes messages to their
// registered handlers through a configurable middleware pipeline and
// satisfies the Dispatcher contract, so sagas and the timeout delivery
// service can ride on it directly.
type Bus struct {
	handlers   map[string]HandlerFunc
	middleware []Middleware
	closed     atomic.Bool
	mu         sync.RWMutex
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithMiddleware adds middleware to the bus.
func WithMiddleware(middleware ...Middleware) BusOption {
	return func(b *Bus) {
		b.middleware = append(b.middleware, middleware...)
	}
}

// NewBus creates a new Bus with the given options.
func NewBus(opts ...BusOption) *Bus {
	bus := &Bus{
		handlers:   make(map[string]HandlerFunc),
		middleware: make([]Middleware, 0),
	}

	for _, opt := range opts {
		opt(bus)
	}

	return bus
}

// RegisterFunc registers a handler function for a message type. A later
// registration for the same type replaces the earlier one.
func (b *Bus) RegisterFunc(messageType string, fn HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[messageType] = fn
}

// Use adds middleware to the bus.
// Middleware is executed in the order it was added.
func (b *Bus) Use(middleware ...Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, middleware...)
}

// Dispatch sends a message through the middleware pipeline. The pipeline
// always runs, even when no handler is registered for the message type;
// the terminal stage then fails with a HandlerNotFoundError. That keeps
// stages like SagaStage observing every dispatched message, including
// events whose only consumer is a saga.
func (b *Bus) Dispatch(ctx context.Context, msg Message, meta Metadata) (Result, error) {
	if b.closed.Load() {
		return NewErrorResult(ErrBusClosed), ErrBusClosed
	}

	if msg == nil {
		return NewErrorResult(ErrNilMessage), ErrNilMessage
	}

	b.mu.RLock()
	handler := b.handlers[msg.MessageType()]
	middleware := make([]Middleware, len(b.middleware))
	copy(middleware, b.middleware)
	b.mu.RUnlock()

	final := func(ctx context.Context, msg Message, meta Metadata) (Result, error) {
		if handler == nil {
			err := NewHandlerNotFoundError(msg.MessageType())
			return NewErrorResult(err), err
		}
		return handler(ctx, msg, meta)
	}

	// Apply middleware in reverse order so they execute in the order
	// they were added.
	chain := HandlerFunc(final)
	for i := len(middleware) - 1; i >= 0; i-- {
		chain = middleware[i](chain)
	}

	return chain(ctx, msg, meta)
}

// HasHandler returns true if a handler is registered for the message type.
func (b *Bus) HasHandler(messageType string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.handlers[messageType]
	return ok
}

// HandlerCount returns the number of registered handlers.
func (b *Bus) HandlerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}

// MiddlewareCount returns the number of registered middleware.
func (b *Bus) MiddlewareCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.middleware)
}

// Close closes the bus, preventing further dispatch operations.
func (b *Bus) Close() error {
	b.closed.Store(true)
	return nil
}

// IsClosed returns true if the bus has been closed.
func (b *Bus) IsClosed() bool {
	return b.closed.Load()
}

var _ Dispatcher = (*Bus)(nil)
