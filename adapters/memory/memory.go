// Package memory provides an in-memory event log and snapshot store.
// It is intended for tests, demos and the CLI's throwaway sessions.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/AshkanYarmoradi/go-dugout/adapters"
	"github.com/google/uuid"
)

var (
	_ adapters.Store         = (*MemoryAdapter)(nil)
	_ adapters.HealthChecker = (*MemoryAdapter)(nil)
)

// MemoryAdapter keeps every stream and snapshot in process memory.
// It is safe for concurrent use.
type MemoryAdapter struct {
	mu             sync.RWMutex
	streams        map[string]*streamData
	globalPosition uint64
	snapshots      map[string]*adapters.SnapshotRecord
	closed         bool
	now            func() time.Time
}

type streamData struct {
	info   adapters.StreamInfo
	events []adapters.StoredEvent
}

// Option configures a MemoryAdapter.
type Option func(*MemoryAdapter)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *MemoryAdapter) {
		a.now = now
	}
}

// NewAdapter creates a new in-memory adapter.
func NewAdapter(opts ...Option) *MemoryAdapter {
	a := &MemoryAdapter{
		streams:   make(map[string]*streamData),
		snapshots: make(map[string]*adapters.SnapshotRecord),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Initialize is a no-op for the memory adapter.
func (a *MemoryAdapter) Initialize(ctx context.Context) error {
	return nil
}

// Append stores events to the specified stream.
func (a *MemoryAdapter) Append(ctx context.Context, streamID string, events []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, adapters.ErrAdapterClosed
	}
	if streamID == "" {
		return nil, adapters.ErrEmptyStreamID
	}
	if len(events) == 0 {
		return nil, adapters.ErrNoEvents
	}

	stream, exists := a.streams[streamID]
	var current int64
	if exists {
		current = stream.info.Version
	}
	if err := adapters.CheckVersion(streamID, expectedVersion, current, exists); err != nil {
		return nil, err
	}

	now := a.now()
	if !exists {
		stream = &streamData{
			info: adapters.StreamInfo{
				StreamID:  streamID,
				Category:  adapters.ExtractCategory(streamID),
				CreatedAt: now,
			},
		}
		a.streams[streamID] = stream
	}

	stored := make([]adapters.StoredEvent, len(events))
	for i, ev := range events {
		a.globalPosition++
		current++
		stored[i] = adapters.StoredEvent{
			ID:             uuid.NewString(),
			StreamID:       streamID,
			Type:           ev.Type,
			Data:           append([]byte(nil), ev.Data...),
			Metadata:       ev.Metadata,
			Version:        current,
			GlobalPosition: a.globalPosition,
			Timestamp:      now,
		}
	}
	stream.events = append(stream.events, stored...)
	stream.info.Version = current
	stream.info.EventCount = int64(len(stream.events))
	stream.info.UpdatedAt = now

	return stored, nil
}

// Load retrieves events from a stream with a version greater than fromVersion.
// A missing stream yields an empty slice.
func (a *MemoryAdapter) Load(ctx context.Context, streamID string, fromVersion int64) ([]adapters.StoredEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return nil, adapters.ErrAdapterClosed
	}
	if streamID == "" {
		return nil, adapters.ErrEmptyStreamID
	}

	stream, ok := a.streams[streamID]
	if !ok {
		return []adapters.StoredEvent{}, nil
	}
	out := make([]adapters.StoredEvent, 0, len(stream.events))
	for _, ev := range stream.events {
		if ev.Version > fromVersion {
			out = append(out, ev)
		}
	}
	return out, nil
}

// GetStreamInfo returns metadata about a stream.
func (a *MemoryAdapter) GetStreamInfo(ctx context.Context, streamID string) (*adapters.StreamInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return nil, adapters.ErrAdapterClosed
	}
	stream, ok := a.streams[streamID]
	if !ok {
		return nil, adapters.NewStreamNotFoundError(streamID)
	}
	info := stream.info
	return &info, nil
}

// GetLastPosition returns the global position of the last stored event.
func (a *MemoryAdapter) GetLastPosition(ctx context.Context) (uint64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return 0, adapters.ErrAdapterClosed
	}
	return a.globalPosition, nil
}

// SaveSnapshot stores the snapshot after checking expectedVersion against the
// currently stored snapshot version.
func (a *MemoryAdapter) SaveSnapshot(ctx context.Context, streamID string, expectedVersion, version int64, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return adapters.ErrAdapterClosed
	}
	if streamID == "" {
		return adapters.ErrEmptyStreamID
	}

	existing, exists := a.snapshots[streamID]
	var current int64
	if exists {
		current = existing.Version
	}
	if err := adapters.CheckVersion(streamID, expectedVersion, current, exists); err != nil {
		return err
	}

	a.snapshots[streamID] = &adapters.SnapshotRecord{
		StreamID:  streamID,
		Version:   version,
		Data:      append([]byte(nil), data...),
		UpdatedAt: a.now(),
	}
	return nil
}

// LoadSnapshot returns nil, nil when no snapshot exists.
func (a *MemoryAdapter) LoadSnapshot(ctx context.Context, streamID string) (*adapters.SnapshotRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return nil, adapters.ErrAdapterClosed
	}
	rec, ok := a.snapshots[streamID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	cp.Data = append([]byte(nil), rec.Data...)
	return &cp, nil
}

// DeleteSnapshot removes a snapshot. Deleting a missing snapshot is not an error.
func (a *MemoryAdapter) DeleteSnapshot(ctx context.Context, streamID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return adapters.ErrAdapterClosed
	}
	delete(a.snapshots, streamID)
	return nil
}

// Ping reports whether the adapter is open.
func (a *MemoryAdapter) Ping(ctx context.Context) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return adapters.ErrAdapterClosed
	}
	return nil
}

// Close marks the adapter closed. Further calls fail with ErrAdapterClosed.
func (a *MemoryAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

// Reset clears all data. Useful between test cases.
func (a *MemoryAdapter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.streams = make(map[string]*streamData)
	a.snapshots = make(map[string]*adapters.SnapshotRecord)
	a.globalPosition = 0
}

// EventCount returns the total number of stored events.
func (a *MemoryAdapter) EventCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return int(a.globalPosition)
}

// StreamIDs returns every stream ID in sorted order.
func (a *MemoryAdapter) StreamIDs() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ids := make([]string, 0, len(a.streams))
	for id := range a.streams {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SnapshotCount returns the number of stored snapshots.
func (a *MemoryAdapter) SnapshotCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.snapshots)
}
