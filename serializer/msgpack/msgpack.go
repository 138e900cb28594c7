// Package msgpack provides MessagePack encoding for dugout.
//
// Codec encodes aggregate snapshots and action histories, which are stored
// as opaque blobs by the snapshot adapters. Serializer is an alternative to
// the default JSON event serializer for the event log:
//
//	store := dugout.New(adapter, dugout.WithSerializer(msgpack.NewSerializer(game.EventTypes()...)))
package msgpack

import (
	"bytes"
	"fmt"
	"reflect"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec marshals arbitrary state structs with MessagePack.
// Fields are keyed by their `msgpack` tag, falling back to the `json` tag.
type Codec struct{}

// NewCodec returns a Codec.
func NewCodec() Codec {
	return Codec{}
}

// Marshal encodes v.
func (Codec) Marshal(v interface{}) ([]byte, error) {
	enc := msgpack.GetEncoder()
	defer msgpack.PutEncoder(enc)

	var buf bytes.Buffer
	enc.Reset(&buf)
	enc.SetCustomStructTag("json")
	enc.SetOmitEmpty(true)
	if err := enc.Encode(v); err != nil {
		return nil, &SerializationError{Type: typeName(v), Operation: "marshal", Err: err}
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes data into v, which must be a pointer.
func (Codec) Unmarshal(data []byte, v interface{}) error {
	if len(data) == 0 {
		return &SerializationError{Type: typeName(v), Operation: "unmarshal", Err: fmt.Errorf("data cannot be empty")}
	}
	dec := msgpack.GetDecoder()
	defer msgpack.PutDecoder(dec)

	dec.Reset(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	if err := dec.Decode(v); err != nil {
		return &SerializationError{Type: typeName(v), Operation: "unmarshal", Err: err}
	}
	return nil
}

// Serializer is a MessagePack event serializer with a type registry keyed by
// event type name.
type Serializer struct {
	mu       sync.RWMutex
	registry map[string]reflect.Type
	codec    Codec
}

// NewSerializer creates a Serializer and registers the given event examples
// under their struct names.
func NewSerializer(examples ...interface{}) *Serializer {
	s := &Serializer{registry: make(map[string]reflect.Type)}
	s.RegisterAll(examples...)
	return s
}

// Register maps eventType to the Go type of example.
func (s *Serializer) Register(eventType string, example interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry[eventType] = elemType(example)
}

// RegisterAll registers examples using their struct names.
func (s *Serializer) RegisterAll(examples ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ex := range examples {
		t := elemType(ex)
		s.registry[t.Name()] = t
	}
}

// Lookup returns the Go type registered for eventType.
func (s *Serializer) Lookup(eventType string) (reflect.Type, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.registry[eventType]
	return t, ok
}

// Count returns the number of registered event types.
func (s *Serializer) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.registry)
}

// Serialize encodes an event.
func (s *Serializer) Serialize(event interface{}) ([]byte, error) {
	if event == nil {
		return nil, &SerializationError{Type: "nil", Operation: "serialize", Err: fmt.Errorf("event cannot be nil")}
	}
	return s.codec.Marshal(event)
}

// Deserialize decodes an event. Unregistered types decode to map[string]interface{}.
func (s *Serializer) Deserialize(data []byte, eventType string) (interface{}, error) {
	t, ok := s.Lookup(eventType)
	if !ok {
		var m map[string]interface{}
		if err := s.codec.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	}
	ptr := reflect.New(t)
	if err := s.codec.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, err
	}
	return ptr.Elem().Interface(), nil
}

// SerializationError reports a failed encode or decode.
type SerializationError struct {
	Type      string
	Operation string
	Err       error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("dugout/msgpack: failed to %s %s: %v", e.Operation, e.Type, e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

func elemType(v interface{}) reflect.Type {
	t := reflect.TypeOf(v)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

func typeName(v interface{}) string {
	if v == nil {
		return "nil"
	}
	return elemType(v).String()
}
