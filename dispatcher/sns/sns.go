// Package sns provides an AWS SNS-backed sagakit.Dispatcher.
// It publishes saga messages to SNS topics.
package sns

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/sagakit/sagakit"
)

// AttrMessageType is the SNS message attribute carrying the message
// type name.
const AttrMessageType = "sagakit.message.type"

// SNSClient defines the subset of the SNS API used by the dispatcher.
type SNSClient interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Ensure interface compliance at compile time
var _ sagakit.Dispatcher = (*Dispatcher)(nil)

// Dispatcher publishes saga messages to an AWS SNS topic. Messages are
// serialized with the configured serializer and their metadata becomes
// SNS message attributes. For FIFO topics the saga id is used as the
// message group id, preserving per-saga ordering.
type Dispatcher struct {
	client     SNSClient
	topicARN   string
	serializer sagakit.Serializer
	fifo       bool
}

// Option configures an SNS Dispatcher.
type Option func(*Dispatcher)

// WithSNSClient sets the SNS client.
func WithSNSClient(client SNSClient) Option {
	return func(d *Dispatcher) {
		d.client = client
	}
}

// WithTopicARN sets the target topic ARN.
func WithTopicARN(arn string) Option {
	return func(d *Dispatcher) {
		d.topicARN = arn
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

// WithFIFO enables FIFO topic semantics: the saga id becomes the
// message group id.
func WithFIFO() Option {
	return func(d *Dispatcher) {
		d.fifo = true
	}
}

// New creates a new SNS Dispatcher.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		serializer: sagakit.NewJSONSerializer(),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Dispatch serializes the message and publishes it to the topic.
func (d *Dispatcher) Dispatch(ctx context.Context, msg sagakit.Message, meta sagakit.Metadata) (sagakit.Result, error) {
	if msg == nil {
		return sagakit.NewErrorResult(sagakit.ErrNilMessage), sagakit.ErrNilMessage
	}
	if d.client == nil {
		err := fmt.Errorf("sns: client not configured")
		return sagakit.NewErrorResult(err), err
	}
	if d.topicARN == "" {
		err := fmt.Errorf("sns: topic ARN not configured")
		return sagakit.NewErrorResult(err), err
	}

	payload, err := d.serializer.Marshal(msg)
	if err != nil {
		err = fmt.Errorf("sns: failed to serialize %q: %w", msg.MessageType(), err)
		return sagakit.NewErrorResult(err), err
	}

	input := &sns.PublishInput{
		TopicArn: &d.topicARN,
		Message:  stringPtr(string(payload)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			AttrMessageType: {
				DataType:    stringPtr("String"),
				StringValue: stringPtr(msg.MessageType()),
			},
		},
	}
	for k, v := range meta {
		input.MessageAttributes[k] = types.MessageAttributeValue{
			DataType:    stringPtr("String"),
			StringValue: stringPtr(v),
		}
	}

	if d.fifo {
		if groupID := messageGroupID(msg, meta); groupID != "" {
			input.MessageGroupId = &groupID
		}
	}

	if _, err := d.client.Publish(ctx, input); err != nil {
		err = fmt.Errorf("sns: failed to publish %q to %s: %w", msg.MessageType(), d.topicARN, err)
		return sagakit.NewErrorResult(err), err
	}

	return sagakit.NewSuccessResult(nil), nil
}

// messageGroupID picks the FIFO group: the saga id when present, the
// message type otherwise.
func messageGroupID(msg sagakit.Message, meta sagakit.Metadata) string {
	if id := meta.Get(sagakit.MetaSagaID); id != "" {
		return id
	}
	if event, ok := msg.(sagakit.Event); ok && event.SagaID() != "" {
		return event.SagaID()
	}
	return msg.MessageType()
}

func stringPtr(s string) *string {
	return &s
}
