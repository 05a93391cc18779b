package sagakit

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"
)

// Middleware wraps a handler function with additional functionality.
type Middleware func(next HandlerFunc) HandlerFunc

// ChainMiddleware creates a single middleware from multiple middleware.
func ChainMiddleware(middleware ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middleware) - 1; i >= 0; i-- {
			next = middleware[i](next)
		}
		return next
	}
}

// SagaStage returns middleware that feeds dispatched events through the
// coordinator after the rest of the pipeline runs. It is the bridge
// between the bus and the saga layer: every event whose type is
// registered with a saga is routed, whether or not a direct handler
// also consumed it.
//
// When the only consumer of an event is a saga, the terminal stage's
// HandlerNotFoundError is swallowed and the dispatch reports success.
// Saga-side failures are logged, never surfaced: the handler's own
// result passes through unchanged.
func SagaStage(coordinator *Coordinator, logger Logger) Middleware {
	if logger == nil {
		logger = &noopLogger{}
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, msg Message, meta Metadata) (Result, error) {
			result, err := next(ctx, msg, meta)

			event, ok := msg.(Event)
			if !ok || !coordinator.Recognizes(event) {
				return result, err
			}

			if perr := coordinator.ProcessEvent(ctx, event); perr != nil {
				logger.Error("Saga processing failed",
					"eventType", event.MessageType(),
					"sagaId", event.SagaID(),
					"error", perr)
			}

			if err != nil && errors.Is(err, ErrHandlerNotFound) {
				return NewSuccessResult(nil), nil
			}
			return result, err
		}
	}
}

// RecoveryMiddleware recovers from panics in handlers and returns them
// as errors.
func RecoveryMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, msg Message, meta Metadata) (result Result, err error) {
			defer func() {
				if r := recover(); r != nil {
					stack := string(debug.Stack())
					err = fmt.Errorf("sagakit: panic handling %q: %v\n%s", msg.MessageType(), r, stack)
					result = NewErrorResult(err)
				}
			}()
			return next(ctx, msg, meta)
		}
	}
}

// LoggingMiddleware logs message dispatch.
type LoggingMiddleware struct {
	logger Logger
}

// NewLoggingMiddleware creates a new LoggingMiddleware.
func NewLoggingMiddleware(logger Logger) *LoggingMiddleware {
	return &LoggingMiddleware{logger: logger}
}

// Middleware returns the middleware function.
func (m *LoggingMiddleware) Middleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, msg Message, meta Metadata) (Result, error) {
			start := time.Now()

			m.logger.Info("Dispatching message",
				"type", msg.MessageType(),
			)

			result, err := next(ctx, msg, meta)

			duration := time.Since(start)

			if err != nil {
				m.logger.Error("Dispatch failed",
					"type", msg.MessageType(),
					"duration", duration,
					"error", err,
				)
			} else if result.IsError() {
				m.logger.Warn("Dispatch returned error result",
					"type", msg.MessageType(),
					"duration", duration,
					"error", result.Error,
				)
			} else {
				m.logger.Info("Dispatch completed",
					"type", msg.MessageType(),
					"duration", duration,
				)
			}

			return result, err
		}
	}
}

// TimeoutMiddleware adds a deadline to message handling.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, msg Message, meta Metadata) (Result, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, msg, meta)
		}
	}
}
