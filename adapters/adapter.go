// Package adapters provides the storage contracts that back the dugout
// event log, aggregate snapshots and command idempotency.
package adapters

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for adapter implementations.
// Adapters should return these (or errors that match via errors.Is)
// so that callers can classify failures without knowing the backend.
var (
	// ErrConcurrencyConflict is returned when an optimistic version check fails.
	ErrConcurrencyConflict = errors.New("dugout: concurrency conflict")

	// ErrStreamNotFound is returned when a stream or snapshot does not exist.
	ErrStreamNotFound = errors.New("dugout: stream not found")

	// ErrEmptyStreamID is returned when an empty stream ID is provided.
	ErrEmptyStreamID = errors.New("dugout: stream ID is required")

	// ErrNoEvents is returned when attempting to append zero events.
	ErrNoEvents = errors.New("dugout: no events to append")

	// ErrInvalidVersion is returned when an invalid version is specified.
	ErrInvalidVersion = errors.New("dugout: invalid version")

	// ErrAdapterClosed is returned when operations are attempted on a closed adapter.
	ErrAdapterClosed = errors.New("dugout: adapter is closed")
)

// Metadata contains event context for tracing and audit trails.
type Metadata struct {
	// CorrelationID links the events written by one action.
	CorrelationID string `json:"correlationId,omitempty"`

	// CausationID identifies the command or action that caused the event.
	CausationID string `json:"causationId,omitempty"`

	// UserID identifies the operator who recorded the action.
	UserID string `json:"userId,omitempty"`

	// Custom holds any additional metadata.
	Custom map[string]string `json:"custom,omitempty"`
}

// StoredEvent represents a persisted event with its storage metadata.
type StoredEvent struct {
	ID             string
	StreamID       string
	Type           string
	Data           []byte
	Metadata       Metadata
	Version        int64 // 1-based position within the stream
	GlobalPosition uint64
	Timestamp      time.Time
}

// StreamInfo contains metadata about an event stream.
type StreamInfo struct {
	StreamID   string
	Category   string
	Version    int64
	EventCount int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// EventRecord represents an event to be appended to a stream.
type EventRecord struct {
	Type     string
	Data     []byte
	Metadata Metadata
}

// EventStoreAdapter is the append-only event log contract.
// There is deliberately no delete or update operation: corrections are
// expressed as new events.
type EventStoreAdapter interface {
	// Append stores events to the specified stream.
	// expectedVersion specifies the expected current version of the stream:
	//   - AnyVersion (-1): Skip version check
	//   - NoStream (0): Stream must not exist
	//   - StreamExists (-2): Stream must exist
	//   - Any positive number: Stream must be at this exact version
	Append(ctx context.Context, streamID string, events []EventRecord, expectedVersion int64) ([]StoredEvent, error)

	// Load retrieves events from a stream with a version greater than fromVersion.
	Load(ctx context.Context, streamID string, fromVersion int64) ([]StoredEvent, error)

	// GetStreamInfo returns metadata about a stream.
	// Returns ErrStreamNotFound if the stream does not exist.
	GetStreamInfo(ctx context.Context, streamID string) (*StreamInfo, error)

	// GetLastPosition returns the global position of the last stored event.
	GetLastPosition(ctx context.Context) (uint64, error)

	// Initialize sets up the required storage schema.
	Initialize(ctx context.Context) error

	// Close releases any resources held by the adapter.
	Close() error
}

// SnapshotAdapter stores the current state of an aggregate, keyed by stream ID.
//
// SaveSnapshot performs an optimistic version check against the stored
// record using the same expectedVersion rules as EventStoreAdapter.Append,
// where the "current version" is the version of the stored snapshot.
type SnapshotAdapter interface {
	SaveSnapshot(ctx context.Context, streamID string, expectedVersion, version int64, data []byte) error

	// LoadSnapshot returns nil, nil when no snapshot exists.
	LoadSnapshot(ctx context.Context, streamID string) (*SnapshotRecord, error)

	DeleteSnapshot(ctx context.Context, streamID string) error
}

// SnapshotRecord represents a stored aggregate snapshot.
type SnapshotRecord struct {
	StreamID  string
	Version   int64
	Data      []byte
	UpdatedAt time.Time
}

// Store combines an event log and snapshot storage, which is what every
// backend shipped with dugout provides.
type Store interface {
	EventStoreAdapter
	SnapshotAdapter
}

// HealthChecker provides health check capabilities.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Migrator provides schema migration capabilities.
type Migrator interface {
	Migrate(ctx context.Context) error
	Version(ctx context.Context) (int, error)
}

// IdempotencyStore tracks processed commands to prevent duplicate processing.
type IdempotencyStore interface {
	// Exists checks if a key has been processed and not expired.
	Exists(ctx context.Context, key string) (bool, error)

	// Store records a processed command.
	Store(ctx context.Context, record *IdempotencyRecord) error

	// Get retrieves a record by key. Returns nil, nil when absent.
	Get(ctx context.Context, key string) (*IdempotencyRecord, error)

	// Delete removes a record.
	Delete(ctx context.Context, key string) error

	// Cleanup removes records older than the given duration.
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyRecord stores information about a processed command.
type IdempotencyRecord struct {
	Key         string
	CommandType string
	AggregateID string
	Version     int64
	Response    []byte
	Success     bool
	Error       string
	ProcessedAt time.Time
	ExpiresAt   time.Time
}

// IsExpired returns true if the record has expired.
func (r *IdempotencyRecord) IsExpired() bool {
	return time.Now().After(r.ExpiresAt)
}
