package dugout

import (
	"time"

	"github.com/AshkanYarmoradi/go-dugout/adapters"
)

// Version constants for optimistic concurrency control.
const (
	// AnyVersion skips version checking.
	AnyVersion = adapters.AnyVersion

	// NoStream requires the stream or snapshot to not exist yet.
	NoStream = adapters.NoStream

	// StreamExists requires the stream or snapshot to exist.
	StreamExists = adapters.StreamExists
)

type (
	// Metadata carries correlation and causation ids with stored events.
	Metadata = adapters.Metadata

	// StoredEvent is a persisted event with its storage metadata.
	StoredEvent = adapters.StoredEvent

	// StreamInfo contains metadata about an event stream.
	StreamInfo = adapters.StreamInfo
)

// EventData represents a serialized event ready to be stored.
type EventData struct {
	Type     string
	Data     []byte
	Metadata Metadata
}

// Event represents a deserialized event with its payload as a Go value.
type Event struct {
	ID             string
	StreamID       string
	Type           string
	Data           interface{}
	Metadata       Metadata
	Version        int64
	GlobalPosition uint64
	Timestamp      time.Time
}

// EventFromStored creates an Event from a StoredEvent with deserialized data.
func EventFromStored(stored StoredEvent, data interface{}) Event {
	return Event{
		ID:             stored.ID,
		StreamID:       stored.StreamID,
		Type:           stored.Type,
		Data:           data,
		Metadata:       stored.Metadata,
		Version:        stored.Version,
		GlobalPosition: stored.GlobalPosition,
		Timestamp:      stored.Timestamp,
	}
}

// Retraction cancels a batch of events in the same stream. It is appended
// when a transaction that already stored the batch is rolled back; the
// retracted events stay in the log and are skipped on replay.
type Retraction struct {
	Transaction string   `json:"transaction"`
	FromVersion int64    `json:"fromVersion"`
	ToVersion   int64    `json:"toVersion"`
	EventTypes  []string `json:"eventTypes"`
	Reason      string   `json:"reason,omitempty"`
}

// Covers reports whether the stream version v falls in the retracted range.
func (r Retraction) Covers(v int64) bool {
	return v >= r.FromVersion && v <= r.ToVersion
}
