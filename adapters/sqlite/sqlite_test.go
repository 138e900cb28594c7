package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/AshkanYarmoradi/go-dugout/adapters"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "dugout.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)

	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	v, err := s.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestStore_Append(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	stored, err := s.Append(ctx, "MatchState-m1", []adapters.EventRecord{
		{Type: "MatchCreated", Data: []byte(`{"matchId":"m1"}`), Metadata: adapters.Metadata{CorrelationID: "corr"}},
		{Type: "MatchStarted", Data: []byte(`{}`)},
	}, adapters.NoStream)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, int64(1), stored[0].Version)
	assert.Equal(t, int64(2), stored[1].Version)
	assert.Less(t, stored[0].GlobalPosition, stored[1].GlobalPosition)

	_, err = s.Append(ctx, "MatchState-m1", []adapters.EventRecord{{Type: "X", Data: []byte(`{}`)}}, adapters.NoStream)
	assert.ErrorIs(t, err, adapters.ErrConcurrencyConflict)

	_, err = s.Append(ctx, "MatchState-m1", []adapters.EventRecord{{Type: "RunsScored", Data: []byte(`{}`)}}, 2)
	require.NoError(t, err)

	loaded, err := s.Load(ctx, "MatchState-m1", 1)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "MatchStarted", loaded[0].Type)

	all, err := s.Load(ctx, "MatchState-m1", 0)
	require.NoError(t, err)
	assert.Equal(t, "corr", all[0].Metadata.CorrelationID)

	info, err := s.GetStreamInfo(ctx, "MatchState-m1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), info.Version)
	assert.Equal(t, int64(3), info.EventCount)
	assert.Equal(t, "MatchState", info.Category)

	_, err = s.GetStreamInfo(ctx, "MatchState-missing")
	assert.ErrorIs(t, err, adapters.ErrStreamNotFound)

	pos, err := s.GetLastPosition(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), pos)
}

func TestStore_Snapshots(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	rec, err := s.LoadSnapshot(ctx, "RosterLineup-l1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	require.NoError(t, s.SaveSnapshot(ctx, "RosterLineup-l1", adapters.NoStream, 1, []byte{1}))
	require.NoError(t, s.SaveSnapshot(ctx, "RosterLineup-l1", 1, 2, []byte{2}))
	assert.ErrorIs(t, s.SaveSnapshot(ctx, "RosterLineup-l1", 1, 3, []byte{3}), adapters.ErrConcurrencyConflict)

	rec, err = s.LoadSnapshot(ctx, "RosterLineup-l1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(2), rec.Version)
	assert.Equal(t, []byte{2}, rec.Data)

	require.NoError(t, s.DeleteSnapshot(ctx, "RosterLineup-l1"))
	rec, err = s.LoadSnapshot(ctx, "RosterLineup-l1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestIdempotencyStore_SQLite(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	store := NewIdempotencyStore(s)

	now := time.Now()
	require.NoError(t, store.Store(ctx, &adapters.IdempotencyRecord{
		Key: "RecordAtBat:k1", CommandType: "RecordAtBat", AggregateID: "m1", Version: 2,
		Success: true, ProcessedAt: now, ExpiresAt: now.Add(time.Hour),
	}))
	require.NoError(t, store.Store(ctx, &adapters.IdempotencyRecord{
		Key: "RecordAtBat:old", CommandType: "RecordAtBat", ProcessedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}))

	ok, err := store.Exists(ctx, "RecordAtBat:k1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(ctx, "RecordAtBat:old")
	require.NoError(t, err)
	assert.False(t, ok, "expired records are invisible")

	rec, err := store.Get(ctx, "RecordAtBat:k1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "m1", rec.AggregateID)
	assert.Equal(t, int64(2), rec.Version)
	assert.True(t, rec.Success)
	assert.WithinDuration(t, now, rec.ProcessedAt, time.Millisecond)

	n, err := store.Cleanup(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, store.Delete(ctx, "RecordAtBat:k1"))
	rec, err = store.Get(ctx, "RecordAtBat:k1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}
