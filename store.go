package dugout

import (
	"context"
	"fmt"

	"github.com/AshkanYarmoradi/go-dugout/adapters"
)

// EventStore is the append-only event log. Streams are keyed by aggregate
// kind and id; there is no operation that edits or removes a stored event.
type EventStore struct {
	adapter    adapters.EventStoreAdapter
	serializer Serializer
	logger     Logger
}

// Logger defines the structured logging contract used across dugout.
// args are alternating keys and values.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...interface{}) {}
func (noopLogger) Info(msg string, args ...interface{})  {}
func (noopLogger) Warn(msg string, args ...interface{})  {}
func (noopLogger) Error(msg string, args ...interface{}) {}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger {
	return noopLogger{}
}

// Option configures an EventStore.
type Option func(*EventStore)

// WithSerializer sets a custom serializer.
func WithSerializer(s Serializer) Option {
	return func(es *EventStore) {
		es.serializer = s
	}
}

// WithLogger sets a custom logger.
func WithLogger(l Logger) Option {
	return func(es *EventStore) {
		es.logger = l
	}
}

// New creates a new EventStore with the given adapter and options.
func New(adapter adapters.EventStoreAdapter, opts ...Option) *EventStore {
	es := &EventStore{
		adapter:    adapter,
		serializer: NewJSONSerializer(),
		logger:     noopLogger{},
	}
	for _, opt := range opts {
		opt(es)
	}
	return es
}

// Serializer returns the event store's serializer.
func (s *EventStore) Serializer() Serializer {
	return s.serializer
}

// Adapter returns the underlying adapter.
func (s *EventStore) Adapter() adapters.EventStoreAdapter {
	return s.adapter
}

// RegisterEvents registers event types with the serializer, when it keeps a
// registry.
func (s *EventStore) RegisterEvents(events ...interface{}) {
	if r, ok := s.serializer.(EventRegistrar); ok {
		r.RegisterAll(events...)
	}
}

// AppendOption configures an append operation.
type AppendOption func(*appendConfig)

type appendConfig struct {
	metadata        Metadata
	expectedVersion int64
}

// ExpectVersion sets the expected stream version for optimistic concurrency.
func ExpectVersion(v int64) AppendOption {
	return func(c *appendConfig) {
		c.expectedVersion = v
	}
}

// WithAppendMetadata sets metadata for all events in the append operation.
func WithAppendMetadata(m Metadata) AppendOption {
	return func(c *appendConfig) {
		c.metadata = m
	}
}

// Append stores events to the specified stream.
func (s *EventStore) Append(ctx context.Context, streamID string, events []interface{}, opts ...AppendOption) error {
	_, err := s.append(ctx, streamID, events, opts)
	return err
}

// AppendFor stores a batch of events produced by one aggregate. The stream
// is derived from aggregateKind and aggregateID. Unless ExpectVersion is
// given, the append is unconditional: the snapshot repository is where
// concurrent modification is detected.
func (s *EventStore) AppendFor(ctx context.Context, aggregateID, aggregateKind string, events []interface{}, opts ...AppendOption) ([]StoredEvent, error) {
	if aggregateID == "" || aggregateKind == "" {
		return nil, ErrEmptyStreamID
	}
	return s.append(ctx, BuildStreamID(aggregateKind, aggregateID), events, opts)
}

func (s *EventStore) append(ctx context.Context, streamID string, events []interface{}, opts []AppendOption) ([]StoredEvent, error) {
	if streamID == "" {
		return nil, ErrEmptyStreamID
	}
	if len(events) == 0 {
		return nil, ErrNoEvents
	}

	config := &appendConfig{expectedVersion: AnyVersion}
	for _, opt := range opts {
		opt(config)
	}
	metadata := metadataFromContext(ctx, config.metadata)

	records := make([]adapters.EventRecord, len(events))
	for i, event := range events {
		eventData, err := SerializeEvent(s.serializer, event, metadata)
		if err != nil {
			return nil, fmt.Errorf("dugout: failed to serialize event %d: %w", i, err)
		}
		records[i] = adapters.EventRecord{
			Type:     eventData.Type,
			Data:     eventData.Data,
			Metadata: eventData.Metadata,
		}
	}

	stored, err := s.adapter.Append(ctx, streamID, records, config.expectedVersion)
	if err != nil {
		s.logger.Error("Event append failed", "stream", streamID, "events", len(records), "error", err)
		return nil, err
	}
	s.logger.Debug("Events appended", "stream", streamID, "events", len(stored))
	return stored, nil
}

// metadataFromContext fills correlation and causation ids set by the command
// bus middleware when the caller did not set them explicitly.
func metadataFromContext(ctx context.Context, m Metadata) Metadata {
	if m.CorrelationID == "" {
		m.CorrelationID = CorrelationIDFromContext(ctx)
	}
	if m.CausationID == "" {
		m.CausationID = CausationIDFromContext(ctx)
	}
	return m
}

// Load retrieves all events from a stream.
func (s *EventStore) Load(ctx context.Context, streamID string) ([]Event, error) {
	return s.LoadFrom(ctx, streamID, 0)
}

// LoadFrom retrieves events with a version greater than fromVersion.
func (s *EventStore) LoadFrom(ctx context.Context, streamID string, fromVersion int64) ([]Event, error) {
	stored, err := s.LoadRaw(ctx, streamID, fromVersion)
	if err != nil {
		return nil, err
	}

	events := make([]Event, len(stored))
	for i, se := range stored {
		event, err := DeserializeEvent(s.serializer, se)
		if err != nil {
			return nil, fmt.Errorf("dugout: failed to deserialize event %d: %w", i, err)
		}
		events[i] = event
	}
	return events, nil
}

// LoadRaw retrieves events without deserializing their payloads.
func (s *EventStore) LoadRaw(ctx context.Context, streamID string, fromVersion int64) ([]StoredEvent, error) {
	if streamID == "" {
		return nil, ErrEmptyStreamID
	}
	return s.adapter.Load(ctx, streamID, fromVersion)
}

// LoadAggregate rebuilds agg by replaying its stream. Events covered by a
// Retraction are skipped, as is the Retraction itself. The aggregate's
// version is set to the number of events applied.
func (s *EventStore) LoadAggregate(ctx context.Context, agg Aggregate) error {
	if agg == nil {
		return ErrNilAggregate
	}

	events, err := s.Load(ctx, BuildStreamID(agg.AggregateType(), agg.AggregateID()))
	if err != nil {
		return err
	}

	var retractions []Retraction
	for _, e := range events {
		if r, ok := e.Data.(Retraction); ok {
			retractions = append(retractions, r)
		}
	}

	var applied int64
	for _, e := range events {
		if _, ok := e.Data.(Retraction); ok || retracted(retractions, e.Version) {
			continue
		}
		if err := agg.ApplyEvent(e.Data); err != nil {
			return fmt.Errorf("dugout: failed to apply event %d: %w", e.Version, err)
		}
		applied++
	}

	if setter, ok := agg.(VersionSetter); ok {
		setter.SetVersion(applied)
	}
	return nil
}

func retracted(retractions []Retraction, version int64) bool {
	for _, r := range retractions {
		if r.Covers(version) {
			return true
		}
	}
	return false
}

// GetStreamInfo returns metadata about a stream.
func (s *EventStore) GetStreamInfo(ctx context.Context, streamID string) (*StreamInfo, error) {
	if streamID == "" {
		return nil, ErrEmptyStreamID
	}
	return s.adapter.GetStreamInfo(ctx, streamID)
}

// GetLastPosition returns the global position of the last stored event.
func (s *EventStore) GetLastPosition(ctx context.Context) (uint64, error) {
	return s.adapter.GetLastPosition(ctx)
}

// Initialize sets up the required storage schema.
func (s *EventStore) Initialize(ctx context.Context) error {
	return s.adapter.Initialize(ctx)
}

// Close releases resources held by the event store.
func (s *EventStore) Close() error {
	return s.adapter.Close()
}
