package dugout

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
)

// Serializer handles event payload encoding for the event log.
type Serializer interface {
	Serialize(event interface{}) ([]byte, error)

	// Deserialize decodes data into the Go type registered for eventType.
	Deserialize(data []byte, eventType string) (interface{}, error)
}

// EventRegistrar is implemented by serializers that keep a type registry.
type EventRegistrar interface {
	RegisterAll(examples ...interface{})
}

// EventRegistry maps event type names to Go types.
type EventRegistry struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

// NewEventRegistry creates a new empty EventRegistry.
func NewEventRegistry() *EventRegistry {
	return &EventRegistry{types: make(map[string]reflect.Type)}
}

// Register maps eventType to the Go type of example.
func (r *EventRegistry) Register(eventType string, example interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[eventType] = valueType(example)
}

// RegisterAll registers examples under their struct names.
func (r *EventRegistry) RegisterAll(examples ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, example := range examples {
		t := valueType(example)
		r.types[t.Name()] = t
	}
}

// Lookup returns the Go type for the given event type name.
func (r *EventRegistry) Lookup(eventType string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[eventType]
	return t, ok
}

// Count returns the number of registered event types.
func (r *EventRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.types)
}

// JSONSerializer is the default event serializer.
type JSONSerializer struct {
	registry *EventRegistry
}

// NewJSONSerializer creates a JSONSerializer with an empty registry.
// Retraction is always registered.
func NewJSONSerializer() *JSONSerializer {
	s := &JSONSerializer{registry: NewEventRegistry()}
	s.registry.RegisterAll(Retraction{})
	return s
}

// Register adds an event type to the serializer's registry.
func (s *JSONSerializer) Register(eventType string, example interface{}) {
	s.registry.Register(eventType, example)
}

// RegisterAll registers events under their struct names.
func (s *JSONSerializer) RegisterAll(examples ...interface{}) {
	s.registry.RegisterAll(examples...)
}

// Registry returns the underlying EventRegistry.
func (s *JSONSerializer) Registry() *EventRegistry {
	return s.registry
}

// Serialize converts an event to JSON.
func (s *JSONSerializer) Serialize(event interface{}) ([]byte, error) {
	if event == nil {
		return nil, NewSerializationError("nil", "serialize", fmt.Errorf("event cannot be nil"))
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, NewSerializationError(GetEventType(event), "serialize", err)
	}
	return data, nil
}

// Deserialize converts JSON back to an event. Unregistered types decode to
// map[string]interface{}.
func (s *JSONSerializer) Deserialize(data []byte, eventType string) (interface{}, error) {
	if len(data) == 0 {
		return nil, NewSerializationError(eventType, "deserialize", fmt.Errorf("data cannot be empty"))
	}

	t, ok := s.registry.Lookup(eventType)
	if !ok {
		var result map[string]interface{}
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, NewSerializationError(eventType, "deserialize", err)
		}
		return result, nil
	}

	ptr := reflect.New(t)
	if err := json.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, NewSerializationError(eventType, "deserialize", err)
	}
	return ptr.Elem().Interface(), nil
}

// GetEventType returns the struct name of event.
func GetEventType(event interface{}) string {
	if event == nil {
		return ""
	}
	return valueType(event).Name()
}

// SerializeEvent serializes an event into EventData.
func SerializeEvent(serializer Serializer, event interface{}, metadata Metadata) (EventData, error) {
	eventType := GetEventType(event)
	if eventType == "" {
		return EventData{}, NewSerializationError("", "serialize", fmt.Errorf("cannot determine event type"))
	}

	data, err := serializer.Serialize(event)
	if err != nil {
		return EventData{}, err
	}
	return EventData{Type: eventType, Data: data, Metadata: metadata}, nil
}

// DeserializeEvent converts a StoredEvent into an Event.
func DeserializeEvent(serializer Serializer, stored StoredEvent) (Event, error) {
	data, err := serializer.Deserialize(stored.Data, stored.Type)
	if err != nil {
		return Event{}, err
	}
	return EventFromStored(stored, data), nil
}

func valueType(v interface{}) reflect.Type {
	t := reflect.TypeOf(v)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}
