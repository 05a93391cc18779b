// Package kafka provides a Kafka-backed sagakit.Dispatcher.
// It publishes saga messages to Kafka topics using
// github.com/segmentio/kafka-go.
package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/sagakit/sagakit"
)

// HeaderMessageType is the Kafka header carrying the message type name.
const HeaderMessageType = "sagakit.message.type"

// Ensure interface compliance at compile time
var _ sagakit.Dispatcher = (*Dispatcher)(nil)

// Dispatcher publishes saga messages to Kafka. Messages are serialized
// with the configured serializer, keyed by saga id for per-saga
// partition ordering, and stamped with their metadata as headers.
type Dispatcher struct {
	brokers      []string
	topic        string
	topicByType  map[string]string
	balancer     kafkago.Balancer
	batchTimeout time.Duration
	serializer   sagakit.Serializer

	mu      sync.RWMutex
	writers map[string]*kafkago.Writer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithBrokers sets the Kafka broker addresses.
func WithBrokers(brokers ...string) Option {
	return func(d *Dispatcher) {
		d.brokers = brokers
	}
}

// WithTopic sets the default topic for all messages.
func WithTopic(topic string) Option {
	return func(d *Dispatcher) {
		d.topic = topic
	}
}

// WithTopicFor routes one message type to a dedicated topic.
func WithTopicFor(messageType, topic string) Option {
	return func(d *Dispatcher) {
		d.topicByType[messageType] = topic
	}
}

// WithBalancer sets the message balancer (partitioner).
func WithBalancer(balancer kafkago.Balancer) Option {
	return func(d *Dispatcher) {
		d.balancer = balancer
	}
}

// WithBatchTimeout sets the batch timeout for the writers.
func WithBatchTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		d.batchTimeout = t
	}
}

// WithSerializer sets the payload serializer. Defaults to JSON.
func WithSerializer(serializer sagakit.Serializer) Option {
	return func(d *Dispatcher) {
		if serializer != nil {
			d.serializer = serializer
		}
	}
}

// New creates a new Kafka Dispatcher.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		brokers:      []string{"localhost:9092"},
		topic:        "sagakit.messages",
		topicByType:  make(map[string]string),
		balancer:     &kafkago.LeastBytes{},
		batchTimeout: 10 * time.Millisecond,
		serializer:   sagakit.NewJSONSerializer(),
		writers:      make(map[string]*kafkago.Writer),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Dispatch serializes the message and writes it to its topic.
func (d *Dispatcher) Dispatch(ctx context.Context, msg sagakit.Message, meta sagakit.Metadata) (sagakit.Result, error) {
	if msg == nil {
		return sagakit.NewErrorResult(sagakit.ErrNilMessage), sagakit.ErrNilMessage
	}

	payload, err := d.serializer.Marshal(msg)
	if err != nil {
		err = fmt.Errorf("kafka: failed to serialize %q: %w", msg.MessageType(), err)
		return sagakit.NewErrorResult(err), err
	}

	kafkaMsg := kafkago.Message{
		Key:   []byte(messageKey(msg, meta)),
		Value: payload,
		Headers: []kafkago.Header{
			{Key: HeaderMessageType, Value: []byte(msg.MessageType())},
		},
	}
	for k, v := range meta {
		kafkaMsg.Headers = append(kafkaMsg.Headers, kafkago.Header{
			Key:   k,
			Value: []byte(v),
		})
	}

	topic := d.topicFor(msg.MessageType())
	if err := d.getWriter(topic).WriteMessages(ctx, kafkaMsg); err != nil {
		err = fmt.Errorf("kafka: failed to write %q to topic %s: %w", msg.MessageType(), topic, err)
		return sagakit.NewErrorResult(err), err
	}

	return sagakit.NewSuccessResult(nil), nil
}

// Close closes all Kafka writers.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for topic, w := range d.writers {
		if err := w.Close(); err != nil {
			return err
		}
		delete(d.writers, topic)
	}
	return nil
}

// messageKey picks the partition key: the saga id when present, the
// message type otherwise.
func messageKey(msg sagakit.Message, meta sagakit.Metadata) string {
	if id := meta.Get(sagakit.MetaSagaID); id != "" {
		return id
	}
	if event, ok := msg.(sagakit.Event); ok && event.SagaID() != "" {
		return event.SagaID()
	}
	return msg.MessageType()
}

func (d *Dispatcher) topicFor(messageType string) string {
	if topic, ok := d.topicByType[messageType]; ok {
		return topic
	}
	return d.topic
}

// getWriter returns or creates a Kafka writer for the given topic.
func (d *Dispatcher) getWriter(topic string) *kafkago.Writer {
	d.mu.RLock()
	if w, ok := d.writers[topic]; ok {
		d.mu.RUnlock()
		return w
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	// Double-check after acquiring write lock
	if w, ok := d.writers[topic]; ok {
		return w
	}

	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(d.brokers...),
		Topic:                  topic,
		Balancer:               d.balancer,
		BatchTimeout:           d.batchTimeout,
		AllowAutoTopicCreation: true,
	}
	d.writers[topic] = w
	return w
}
