// Package msgpack provides a MessagePack serializer for sagakit.
//
// MessagePack is a binary serialization format that produces smaller
// payloads than JSON while maintaining similar flexibility. It is useful
// for sagas with large state or high-throughput timeout scheduling.
//
// Basic usage:
//
//	app := sagakit.New(
//	    sagakit.WithSerializer(msgpack.NewSerializer()),
//	)
package msgpack

import (
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/sagakit/sagakit"
)

// Ensure interface compliance at compile time
var _ sagakit.Serializer = (*Serializer)(nil)

// Serializer is a MessagePack implementation of sagakit.Serializer.
type Serializer struct{}

// NewSerializer creates a new MessagePack Serializer.
func NewSerializer() *Serializer {
	return &Serializer{}
}

// Marshal converts a value to MessagePack bytes.
func (s *Serializer) Marshal(v any) ([]byte, error) {
	if v == nil {
		return nil, &SerializationError{
			TypeName:  "nil",
			Operation: "marshal",
			Err:       fmt.Errorf("value cannot be nil"),
		}
	}

	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, &SerializationError{
			TypeName:  typeName(v),
			Operation: "marshal",
			Err:       err,
		}
	}
	return data, nil
}

// Unmarshal converts MessagePack bytes back into the given value.
func (s *Serializer) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return &SerializationError{
			TypeName:  typeName(v),
			Operation: "unmarshal",
			Err:       fmt.Errorf("data cannot be empty"),
		}
	}

	if err := msgpack.Unmarshal(data, v); err != nil {
		return &SerializationError{
			TypeName:  typeName(v),
			Operation: "unmarshal",
			Err:       err,
		}
	}
	return nil
}

func typeName(v any) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return "nil"
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// SerializationError represents a serialization or deserialization error.
type SerializationError struct {
	TypeName  string
	Operation string // "marshal" or "unmarshal"
	Err       error
}

// Error implements the error interface.
func (e *SerializationError) Error() string {
	return fmt.Sprintf("sagakit/msgpack: failed to %s %s: %v", e.Operation, e.TypeName, e.Err)
}

// Unwrap returns the underlying error.
func (e *SerializationError) Unwrap() error {
	return e.Err
}
