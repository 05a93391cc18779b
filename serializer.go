package sagakit

import (
	"encoding/json"
	"reflect"
	"sync"
)

// Serializer handles saga state and timeout payload serialization.
type Serializer interface {
	// Marshal converts a value to bytes.
	Marshal(v any) ([]byte, error)

	// Unmarshal decodes bytes into the given value.
	Unmarshal(data []byte, v any) error
}

// JSONSerializer is the default Serializer implementation using JSON
// encoding.
type JSONSerializer struct{}

// NewJSONSerializer creates a new JSONSerializer.
func NewJSONSerializer() *JSONSerializer {
	return &JSONSerializer{}
}

// Marshal converts a value to JSON bytes.
func (s *JSONSerializer) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal decodes JSON bytes into the given value.
func (s *JSONSerializer) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// QualifiedName returns the package-qualified type name of a value
// (e.g., "github.com/acme/billing.PaymentDeadline"), dereferencing
// pointers. This is the name recorded as a timeout's TimeoutType.
func QualifiedName(v any) string {
	t := messageType(v)
	if t == nil {
		return ""
	}
	return qualifiedTypeName(t)
}

func qualifiedTypeName(t reflect.Type) string {
	if t.PkgPath() == "" {
		return t.Name()
	}
	return t.PkgPath() + "." + t.Name()
}

// TypeRegistry maps message type names to Go types. The timeout delivery
// service uses it to reconstruct a due timeout's payload from its recorded
// type name. Lookups match the package-qualified name first and fall back
// to the simple name, which tolerates module-path drift between schedule
// time and delivery time. On simple-name collisions the last registration
// wins.
type TypeRegistry struct {
	mu          sync.RWMutex
	byQualified map[string]reflect.Type
	bySimple    map[string]reflect.Type
}

// NewTypeRegistry creates a new empty TypeRegistry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		byQualified: make(map[string]reflect.Type),
		bySimple:    make(map[string]reflect.Type),
	}
}

// Register adds each example's type under its qualified and simple names.
// Examples may be values or pointers of the message type.
func (r *TypeRegistry) Register(examples ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, example := range examples {
		t := messageType(example)
		if t == nil {
			continue
		}
		r.byQualified[qualifiedTypeName(t)] = t
		r.bySimple[t.Name()] = t
	}
}

// Resolve returns the Go type for the given name, trying the qualified
// name first and the simple name second.
func (r *TypeRegistry) Resolve(name string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if t, ok := r.byQualified[name]; ok {
		return t, true
	}
	if t, ok := r.bySimple[simpleName(name)]; ok {
		return t, true
	}
	return nil, false
}

// New returns a pointer to a fresh zero value of the named type.
func (r *TypeRegistry) New(name string) (any, bool) {
	t, ok := r.Resolve(name)
	if !ok {
		return nil, false
	}
	return reflect.New(t).Interface(), true
}

// RegisteredTypes returns all registered qualified type names.
func (r *TypeRegistry) RegisteredTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byQualified))
	for name := range r.byQualified {
		names = append(names, name)
	}
	return names
}

// simpleName strips the package path from a qualified type name.
func simpleName(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[i+1:]
		}
	}
	return name
}
