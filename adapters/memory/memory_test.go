package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AshkanYarmoradi/go-dugout/adapters"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func records(types ...string) []adapters.EventRecord {
	out := make([]adapters.EventRecord, len(types))
	for i, t := range types {
		out[i] = adapters.EventRecord{Type: t, Data: []byte(`{}`)}
	}
	return out
}

func TestMemoryAdapter_Append(t *testing.T) {
	ctx := context.Background()

	t.Run("append to new stream", func(t *testing.T) {
		adapter := NewAdapter()

		stored, err := adapter.Append(ctx, "MatchState-m1", records("MatchCreated"), adapters.NoStream)

		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.Equal(t, "MatchState-m1", stored[0].StreamID)
		assert.Equal(t, "MatchCreated", stored[0].Type)
		assert.Equal(t, int64(1), stored[0].Version)
		assert.Equal(t, uint64(1), stored[0].GlobalPosition)
		assert.NotEmpty(t, stored[0].ID)
	})

	t.Run("versions are sequential across appends", func(t *testing.T) {
		adapter := NewAdapter()

		_, err := adapter.Append(ctx, "MatchState-m1", records("MatchCreated", "MatchStarted"), adapters.AnyVersion)
		require.NoError(t, err)
		stored, err := adapter.Append(ctx, "MatchState-m1", records("RunsScored"), adapters.AnyVersion)
		require.NoError(t, err)

		assert.Equal(t, int64(3), stored[0].Version)
		assert.Equal(t, 3, adapter.EventCount())
	})

	t.Run("concurrency conflict on wrong version", func(t *testing.T) {
		adapter := NewAdapter()
		_, err := adapter.Append(ctx, "MatchState-m1", records("MatchCreated"), adapters.NoStream)
		require.NoError(t, err)

		_, err = adapter.Append(ctx, "MatchState-m1", records("RunsScored"), 5)

		assert.True(t, errors.Is(err, adapters.ErrConcurrencyConflict))
		var concErr *adapters.ConcurrencyError
		require.True(t, errors.As(err, &concErr))
		assert.Equal(t, int64(5), concErr.ExpectedVersion)
		assert.Equal(t, int64(1), concErr.ActualVersion)
	})

	t.Run("StreamExists on missing stream", func(t *testing.T) {
		adapter := NewAdapter()

		_, err := adapter.Append(ctx, "MatchState-m1", records("RunsScored"), adapters.StreamExists)

		assert.True(t, errors.Is(err, adapters.ErrStreamNotFound))
	})

	t.Run("rejects empty input", func(t *testing.T) {
		adapter := NewAdapter()

		_, err := adapter.Append(ctx, "", records("X"), adapters.AnyVersion)
		assert.ErrorIs(t, err, adapters.ErrEmptyStreamID)

		_, err = adapter.Append(ctx, "MatchState-m1", nil, adapters.AnyVersion)
		assert.ErrorIs(t, err, adapters.ErrNoEvents)
	})

	t.Run("closed adapter", func(t *testing.T) {
		adapter := NewAdapter()
		require.NoError(t, adapter.Close())

		_, err := adapter.Append(ctx, "MatchState-m1", records("X"), adapters.AnyVersion)

		assert.ErrorIs(t, err, adapters.ErrAdapterClosed)
	})
}

func TestMemoryAdapter_Load(t *testing.T) {
	ctx := context.Background()
	adapter := NewAdapter()
	_, err := adapter.Append(ctx, "InningState-i1", records("InningStateCreated", "AtBatRecorded", "AtBatRecorded"), adapters.NoStream)
	require.NoError(t, err)

	all, err := adapter.Load(ctx, "InningState-i1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	tail, err := adapter.Load(ctx, "InningState-i1", 2)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, int64(3), tail[0].Version)

	missing, err := adapter.Load(ctx, "InningState-none", 0)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestMemoryAdapter_GetStreamInfo(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2026, 4, 1, 18, 0, 0, 0, time.UTC)
	adapter := NewAdapter(WithClock(func() time.Time { return fixed }))
	_, err := adapter.Append(ctx, "RosterLineup-l1", records("LineupCreated", "PlayerSubstituted"), adapters.NoStream)
	require.NoError(t, err)

	info, err := adapter.GetStreamInfo(ctx, "RosterLineup-l1")
	require.NoError(t, err)
	assert.Equal(t, "RosterLineup", info.Category)
	assert.Equal(t, int64(2), info.Version)
	assert.Equal(t, int64(2), info.EventCount)
	assert.Equal(t, fixed, info.CreatedAt)

	_, err = adapter.GetStreamInfo(ctx, "RosterLineup-none")
	assert.ErrorIs(t, err, adapters.ErrStreamNotFound)

	pos, err := adapter.GetLastPosition(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), pos)
	assert.Equal(t, []string{"RosterLineup-l1"}, adapter.StreamIDs())
}

func TestMemoryAdapter_Snapshots(t *testing.T) {
	ctx := context.Background()

	t.Run("create, update and load", func(t *testing.T) {
		adapter := NewAdapter()

		require.NoError(t, adapter.SaveSnapshot(ctx, "MatchState-m1", adapters.NoStream, 2, []byte("v2")))
		require.NoError(t, adapter.SaveSnapshot(ctx, "MatchState-m1", 2, 3, []byte("v3")))

		rec, err := adapter.LoadSnapshot(ctx, "MatchState-m1")
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, int64(3), rec.Version)
		assert.Equal(t, []byte("v3"), rec.Data)
	})

	t.Run("stale expected version conflicts", func(t *testing.T) {
		adapter := NewAdapter()
		require.NoError(t, adapter.SaveSnapshot(ctx, "MatchState-m1", adapters.NoStream, 2, []byte("v2")))

		err := adapter.SaveSnapshot(ctx, "MatchState-m1", 1, 2, []byte("stale"))

		assert.ErrorIs(t, err, adapters.ErrConcurrencyConflict)
		assert.ErrorIs(t, adapter.SaveSnapshot(ctx, "MatchState-m1", adapters.NoStream, 1, nil), adapters.ErrConcurrencyConflict)
	})

	t.Run("load missing returns nil", func(t *testing.T) {
		adapter := NewAdapter()

		rec, err := adapter.LoadSnapshot(ctx, "MatchState-none")

		require.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("delete", func(t *testing.T) {
		adapter := NewAdapter()
		require.NoError(t, adapter.SaveSnapshot(ctx, "MatchState-m1", adapters.NoStream, 1, []byte("x")))

		require.NoError(t, adapter.DeleteSnapshot(ctx, "MatchState-m1"))
		require.NoError(t, adapter.DeleteSnapshot(ctx, "MatchState-m1"))

		assert.Equal(t, 0, adapter.SnapshotCount())
	})

	t.Run("loaded data is a copy", func(t *testing.T) {
		adapter := NewAdapter()
		require.NoError(t, adapter.SaveSnapshot(ctx, "MatchState-m1", adapters.NoStream, 1, []byte("abc")))

		rec, err := adapter.LoadSnapshot(ctx, "MatchState-m1")
		require.NoError(t, err)
		rec.Data[0] = 'z'

		again, err := adapter.LoadSnapshot(ctx, "MatchState-m1")
		require.NoError(t, err)
		assert.Equal(t, []byte("abc"), again.Data)
	})
}

func TestMemoryAdapter_Reset(t *testing.T) {
	ctx := context.Background()
	adapter := NewAdapter()
	_, err := adapter.Append(ctx, "MatchState-m1", records("MatchCreated"), adapters.NoStream)
	require.NoError(t, err)
	require.NoError(t, adapter.SaveSnapshot(ctx, "MatchState-m1", adapters.NoStream, 1, []byte("x")))

	adapter.Reset()

	assert.Equal(t, 0, adapter.EventCount())
	assert.Equal(t, 0, adapter.SnapshotCount())
	assert.NoError(t, adapter.Ping(ctx))
}
