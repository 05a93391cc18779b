// Package protobuf provides a Protocol Buffers serializer for sagakit.
//
// Only values that implement proto.Message can be serialized with this
// serializer. It suits deployments whose timeout payloads and saga
// events are already protobuf-defined; for plain Go structs use the
// JSON or MessagePack serializers.
package protobuf

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/proto"

	"github.com/sagakit/sagakit"
)

var (
	// ErrNilValue indicates an attempt to serialize a nil value.
	ErrNilValue = errors.New("sagakit/protobuf: cannot serialize nil value")

	// ErrEmptyData indicates an attempt to deserialize empty data.
	ErrEmptyData = errors.New("sagakit/protobuf: cannot deserialize empty data")

	// ErrNotProtoMessage indicates the value does not implement
	// proto.Message.
	ErrNotProtoMessage = errors.New("sagakit/protobuf: value must implement proto.Message")
)

// Ensure interface compliance at compile time
var _ sagakit.Serializer = (*Serializer)(nil)

// Serializer is a Protocol Buffers implementation of sagakit.Serializer.
type Serializer struct {
	marshal   proto.MarshalOptions
	unmarshal proto.UnmarshalOptions
}

// NewSerializer creates a new Protocol Buffers Serializer.
func NewSerializer() *Serializer {
	return &Serializer{
		marshal:   proto.MarshalOptions{Deterministic: true},
		unmarshal: proto.UnmarshalOptions{DiscardUnknown: true},
	}
}

// Marshal converts a proto.Message to bytes.
func (s *Serializer) Marshal(v any) ([]byte, error) {
	if v == nil {
		return nil, ErrNilValue
	}

	msg, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrNotProtoMessage, v)
	}

	data, err := s.marshal.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("sagakit/protobuf: failed to marshal %T: %w", v, err)
	}
	return data, nil
}

// Unmarshal converts bytes back into the given proto.Message.
func (s *Serializer) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return ErrEmptyData
	}

	msg, ok := v.(proto.Message)
	if !ok {
		return fmt.Errorf("%w: got %T", ErrNotProtoMessage, v)
	}

	if err := s.unmarshal.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("sagakit/protobuf: failed to unmarshal into %T: %w", v, err)
	}
	return nil
}
