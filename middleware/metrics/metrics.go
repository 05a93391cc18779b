// Package metrics provides Prometheus metrics integration for sagakit.
//
// This package enables observability for message dispatch and timeout
// delivery.
//
// Basic usage:
//
//	m := metrics.New(metrics.WithMetricsServiceName("orders"))
//	m.MustRegister()
//
//	bus := sagakit.NewBus(sagakit.WithMiddleware(m.DispatchMiddleware()))
//
//	delivery := sagakit.NewTimeoutDeliveryService(store, bus, types,
//	    sagakit.WithDeliveryMetrics(m))
//
// The metrics collected include:
//   - Message dispatch counts and durations
//   - Timeout delivery, retry, and poison counts
//   - Error counts by type
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sagakit/sagakit"
)

// Default metric labels.
const (
	LabelMessageType = "message_type"
	LabelTimeoutType = "timeout_type"
	LabelStatus      = "status"
	LabelReason      = "reason"
	LabelErrorType   = "error_type"
	LabelService     = "service"
)

// Status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Ensure interface compliance at compile time
var _ sagakit.DeliveryMetrics = (*Metrics)(nil)

// Metrics holds all Prometheus metrics for sagakit.
type Metrics struct {
	namespace   string
	subsystem   string
	serviceName string

	// Dispatch metrics
	messagesTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	messagesInFlight *prometheus.GaugeVec

	// Timeout delivery metrics
	timeoutsDeliveredTotal *prometheus.CounterVec
	timeoutsPoisonedTotal  *prometheus.CounterVec
	timeoutsRetriedTotal   *prometheus.CounterVec
	deliveryCycleDuration  *prometheus.HistogramVec

	// Error metrics
	errorsTotal *prometheus.CounterVec
}

// MetricsOption configures Metrics.
type MetricsOption func(*Metrics)

// WithNamespace sets the Prometheus namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(m *Metrics) {
		m.namespace = namespace
	}
}

// WithSubsystem sets the Prometheus subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(m *Metrics) {
		m.subsystem = subsystem
	}
}

// WithMetricsServiceName sets the service name label.
func WithMetricsServiceName(name string) MetricsOption {
	return func(m *Metrics) {
		m.serviceName = name
	}
}

// New creates a new Metrics instance with default settings.
func New(opts ...MetricsOption) *Metrics {
	m := &Metrics{
		namespace:   "sagakit",
		subsystem:   "",
		serviceName: "unknown",
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initMetrics()
	return m
}

// initMetrics initializes all Prometheus metrics.
func (m *Metrics) initMetrics() {
	m.messagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "messages_total",
			Help:      "Total number of messages dispatched.",
		},
		[]string{LabelService, LabelMessageType, LabelStatus},
	)

	m.dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "dispatch_duration_seconds",
			Help:      "Duration of message dispatch in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelService, LabelMessageType},
	)

	m.messagesInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "messages_in_flight",
			Help:      "Number of messages currently being dispatched.",
		},
		[]string{LabelService, LabelMessageType},
	)

	m.timeoutsDeliveredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "timeouts_delivered_total",
			Help:      "Total number of timeouts delivered.",
		},
		[]string{LabelService, LabelTimeoutType},
	)

	m.timeoutsPoisonedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "timeouts_poisoned_total",
			Help:      "Total number of undeliverable timeouts discarded.",
		},
		[]string{LabelService, LabelTimeoutType, LabelReason},
	)

	m.timeoutsRetriedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "timeouts_retried_total",
			Help:      "Total number of timeout deliveries left pending for retry.",
		},
		[]string{LabelService, LabelTimeoutType},
	)

	m.deliveryCycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "delivery_cycle_duration_seconds",
			Help:      "Duration of timeout delivery poll cycles in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelService},
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_total",
			Help:      "Total number of errors by type.",
		},
		[]string{LabelService, LabelErrorType},
	)
}

// Collectors returns all Prometheus collectors for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.messagesTotal,
		m.dispatchDuration,
		m.messagesInFlight,
		m.timeoutsDeliveredTotal,
		m.timeoutsPoisonedTotal,
		m.timeoutsRetriedTotal,
		m.deliveryCycleDuration,
		m.errorsTotal,
	}
}

// MustRegister registers all collectors with the default registry.
// Panics if registration fails.
func (m *Metrics) MustRegister() {
	prometheus.MustRegister(m.Collectors()...)
}

// Register registers all collectors with the given registry.
func (m *Metrics) Register(registry prometheus.Registerer) error {
	for _, collector := range m.Collectors() {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

// DispatchMiddleware returns middleware that records dispatch metrics.
func (m *Metrics) DispatchMiddleware() sagakit.Middleware {
	return func(next sagakit.HandlerFunc) sagakit.HandlerFunc {
		return func(ctx context.Context, msg sagakit.Message, meta sagakit.Metadata) (sagakit.Result, error) {
			msgType := msg.MessageType()

			m.messagesInFlight.WithLabelValues(m.serviceName, msgType).Inc()
			defer m.messagesInFlight.WithLabelValues(m.serviceName, msgType).Dec()

			start := time.Now()
			result, err := next(ctx, msg, meta)
			duration := time.Since(start)

			m.dispatchDuration.WithLabelValues(m.serviceName, msgType).Observe(duration.Seconds())

			status := StatusSuccess
			if err != nil || result.IsError() {
				status = StatusError
				m.recordError(err, result)
			}
			m.messagesTotal.WithLabelValues(m.serviceName, msgType, status).Inc()

			return result, err
		}
	}
}

// RecordDelivered implements sagakit.DeliveryMetrics.
func (m *Metrics) RecordDelivered(timeoutType string) {
	m.timeoutsDeliveredTotal.WithLabelValues(m.serviceName, timeoutType).Inc()
}

// RecordPoisoned implements sagakit.DeliveryMetrics.
func (m *Metrics) RecordPoisoned(timeoutType, reason string) {
	m.timeoutsPoisonedTotal.WithLabelValues(m.serviceName, timeoutType, reason).Inc()
}

// RecordRetried implements sagakit.DeliveryMetrics.
func (m *Metrics) RecordRetried(timeoutType string) {
	m.timeoutsRetriedTotal.WithLabelValues(m.serviceName, timeoutType).Inc()
}

// RecordCycleDuration implements sagakit.DeliveryMetrics.
func (m *Metrics) RecordCycleDuration(d time.Duration) {
	m.deliveryCycleDuration.WithLabelValues(m.serviceName).Observe(d.Seconds())
}

// RecordError records an error metric with an explicit type label.
func (m *Metrics) RecordError(errorType string) {
	m.errorsTotal.WithLabelValues(m.serviceName, errorType).Inc()
}

// recordError records an error metric from a dispatch outcome.
func (m *Metrics) recordError(err error, result sagakit.Result) {
	errorType := "unknown"
	if err != nil {
		errorType = errorTypeName(err)
	} else if result.Error != nil {
		errorType = errorTypeName(result.Error)
	}
	m.errorsTotal.WithLabelValues(m.serviceName, errorType).Inc()
}

// errorTypeName extracts the error type name based on sentinel errors.
func errorTypeName(err error) string {
	if err == nil {
		return "none"
	}

	switch {
	case errors.Is(err, sagakit.ErrConcurrencyConflict):
		return "concurrency_conflict"
	case errors.Is(err, sagakit.ErrSagaNotFound):
		return "saga_not_found"
	case errors.Is(err, sagakit.ErrHandlerNotFound):
		return "handler_not_found"
	case errors.Is(err, sagakit.ErrInvalidSagaID):
		return "invalid_saga_id"
	case errors.Is(err, sagakit.ErrBusClosed):
		return "bus_closed"
	case errors.Is(err, sagakit.ErrTimeoutNotFound):
		return "timeout_not_found"
	default:
		return "unknown"
	}
}

// MessagesTotal exposes the messages counter for tests.
func (m *Metrics) MessagesTotal() *prometheus.CounterVec {
	return m.messagesTotal
}

// TimeoutsDeliveredTotal exposes the delivered counter for tests.
func (m *Metrics) TimeoutsDeliveredTotal() *prometheus.CounterVec {
	return m.timeoutsDeliveredTotal
}

// TimeoutsPoisonedTotal exposes the poisoned counter for tests.
func (m *Metrics) TimeoutsPoisonedTotal() *prometheus.CounterVec {
	return m.timeoutsPoisonedTotal
}
