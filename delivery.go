package sagakit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sagakit/sagakit/adapters"
)

// Poison reasons reported to DeliveryMetrics.RecordPoisoned.
const (
	PoisonUnresolvableType = "unresolvable_type"
	PoisonUndeserializable = "undeserializable_payload"
	PoisonNotDispatchable  = "not_dispatchable"
)

// DeliveryMetrics collects timeout delivery statistics.
type DeliveryMetrics interface {
	RecordDelivered(timeoutType string)
	RecordPoisoned(timeoutType, reason string)
	RecordRetried(timeoutType string)
	RecordCycleDuration(d time.Duration)
}

type noopDeliveryMetrics struct{}

func (noopDeliveryMetrics) RecordDelivered(string)          {}
func (noopDeliveryMetrics) RecordPoisoned(string, string)   {}
func (noopDeliveryMetrics) RecordRetried(string)            {}
func (noopDeliveryMetrics) RecordCycleDuration(time.Duration) {}

// DeliveryOption configures a TimeoutDeliveryService.
type DeliveryOption func(*TimeoutDeliveryService)

// WithPollInterval sets how often the service polls for due timeouts.
func WithPollInterval(d time.Duration) DeliveryOption {
	return func(s *TimeoutDeliveryService) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithBatchSize caps how many due timeouts one poll cycle delivers.
func WithBatchSize(n int) DeliveryOption {
	return func(s *TimeoutDeliveryService) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithDeliverySerializer sets the serializer used to decode timeout payloads.
func WithDeliverySerializer(serializer Serializer) DeliveryOption {
	return func(s *TimeoutDeliveryService) {
		if serializer != nil {
			s.serializer = serializer
		}
	}
}

// WithDeliveryLogger sets the logger for the service.
func WithDeliveryLogger(logger Logger) DeliveryOption {
	return func(s *TimeoutDeliveryService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDeliveryMetrics sets the metrics collector for the service.
func WithDeliveryMetrics(metrics DeliveryMetrics) DeliveryOption {
	return func(s *TimeoutDeliveryService) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// TimeoutDeliveryService polls the timeout store for due, undelivered
// timeouts and dispatches their payloads back onto the bus. A timeout
// becomes an ordinary message once delivered; sagas observe it through
// the same routing path as any other event.
//
// Delivery is at-least-once: a timeout is only marked delivered after a
// successful dispatch, so a crash between dispatch and mark can replay
// it. Timeouts that can never be dispatched (unknown payload type,
// corrupt payload, payload that is not a message) are marked delivered
// anyway so one bad row cannot wedge the poll loop.
type TimeoutDeliveryService struct {
	timeouts   adapters.TimeoutStore
	dispatcher Dispatcher
	types      *TypeRegistry
	serializer Serializer
	logger     Logger
	metrics    DeliveryMetrics

	batchSize    int
	pollInterval time.Duration

	now func() time.Time

	running  atomic.Bool
	stopping atomic.Bool
	wg       sync.WaitGroup
	stopCh   chan struct{}
}

// NewTimeoutDeliveryService creates a delivery service over the given
// timeout store and dispatcher. The type registry resolves stored
// timeout type names back to concrete payload types.
func NewTimeoutDeliveryService(timeouts adapters.TimeoutStore, dispatcher Dispatcher, types *TypeRegistry, opts ...DeliveryOption) *TimeoutDeliveryService {
	s := &TimeoutDeliveryService{
		timeouts:     timeouts,
		dispatcher:   dispatcher,
		types:        types,
		serializer:   NewJSONSerializer(),
		logger:       &noopLogger{},
		metrics:      noopDeliveryMetrics{},
		batchSize:    100,
		pollInterval: time.Second,
		now:          time.Now,
		stopCh:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start begins the background polling loop.
func (s *TimeoutDeliveryService) Start(ctx context.Context) error {
	if s.timeouts == nil {
		return ErrTimeoutStoreNotConfigured
	}
	if s.dispatcher == nil {
		return ErrDispatcherRequired
	}
	if s.running.Load() {
		return ErrDeliveryRunning
	}

	s.running.Store(true)
	s.stopping.Store(false)
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go s.pollLoop(ctx)

	s.logger.Info("Timeout delivery service started",
		"pollInterval", s.pollInterval.String(),
		"batchSize", s.batchSize)
	return nil
}

// Stop gracefully stops the service, draining the in-flight cycle.
func (s *TimeoutDeliveryService) Stop(ctx context.Context) error {
	if !s.running.Load() {
		return nil
	}

	s.stopping.Store(true)
	close(s.stopCh)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.running.Store(false)
		s.logger.Info("Timeout delivery service stopped")
		return nil
	case <-ctx.Done():
		s.running.Store(false)
		return ctx.Err()
	}
}

// IsRunning returns true if the service is running.
func (s *TimeoutDeliveryService) IsRunning() bool {
	return s.running.Load()
}

func (s *TimeoutDeliveryService) pollLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.deliverDue(ctx); err != nil {
				if s.stopping.Load() {
					return
				}
				s.logger.Error("Timeout delivery cycle failed", "error", err)
			}
		}
	}
}

// deliverDue runs one poll cycle: fetch up to batchSize due timeouts and
// deliver them in due order. Overflow beyond the batch stays pending for
// the next cycle.
func (s *TimeoutDeliveryService) deliverDue(ctx context.Context) error {
	start := s.now()

	due, err := s.timeouts.Due(ctx, start.UTC(), s.batchSize)
	if err != nil {
		return fmt.Errorf("failed to fetch due timeouts: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	for _, timeout := range due {
		select {
		case <-s.stopCh:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		s.deliverOne(ctx, timeout)
	}

	s.metrics.RecordCycleDuration(time.Since(start))
	return nil
}

// deliverOne dispatches a single timeout payload. Permanently broken
// timeouts are marked delivered so they stop recurring; transient
// dispatch failures leave the row pending for the next cycle.
func (s *TimeoutDeliveryService) deliverOne(ctx context.Context, timeout *adapters.Timeout) {
	msg, reason := s.decodePayload(timeout)
	if msg == nil {
		s.logger.Warn("Discarding undeliverable timeout",
			"timeoutId", timeout.TimeoutID,
			"timeoutType", timeout.TimeoutType,
			"sagaId", timeout.SagaID,
			"reason", reason)
		s.metrics.RecordPoisoned(timeout.TimeoutType, reason)
		s.markDelivered(ctx, timeout)
		return
	}

	meta := Metadata{
		MetaSagaID:    timeout.SagaID,
		MetaSagaType:  timeout.SagaType,
		MetaTimeoutID: timeout.TimeoutID,
	}

	result, err := s.dispatcher.Dispatch(ctx, msg, meta)
	if err == nil && !result.IsSuccess() {
		err = result.Error
		if err == nil {
			err = fmt.Errorf("sagakit: dispatch of %q reported failure", msg.MessageType())
		}
	}
	if err != nil {
		s.logger.Warn("Timeout dispatch failed, will retry",
			"timeoutId", timeout.TimeoutID,
			"timeoutType", timeout.TimeoutType,
			"sagaId", timeout.SagaID,
			"error", err)
		s.metrics.RecordRetried(timeout.TimeoutType)
		return
	}

	s.metrics.RecordDelivered(timeout.TimeoutType)
	s.markDelivered(ctx, timeout)
}

// decodePayload reconstructs the timeout's payload message. An empty
// payload yields a zero-valued instance of the timeout type, stamped
// with the saga's correlation id.
func (s *TimeoutDeliveryService) decodePayload(timeout *adapters.Timeout) (Message, string) {
	instance, ok := s.types.New(timeout.TimeoutType)
	if !ok {
		return nil, PoisonUnresolvableType
	}

	if len(timeout.Data) > 0 {
		if err := s.serializer.Unmarshal(timeout.Data, instance); err != nil {
			return nil, PoisonUndeserializable
		}
	}

	msg, ok := instance.(Message)
	if !ok {
		return nil, PoisonNotDispatchable
	}

	if ev, ok := msg.(Event); ok && ev.SagaID() == "" {
		if c, ok := msg.(interface{ SetSagaID(string) }); ok {
			c.SetSagaID(timeout.SagaID)
		}
	}
	return msg, ""
}

func (s *TimeoutDeliveryService) markDelivered(ctx context.Context, timeout *adapters.Timeout) {
	if err := s.timeouts.MarkDelivered(ctx, timeout.TimeoutID); err != nil {
		s.logger.Error("Failed to mark timeout as delivered",
			"timeoutId", timeout.TimeoutID,
			"error", err)
	}
}
