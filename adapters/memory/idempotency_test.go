package memory

import (
	"context"
	"testing"
	"time"

	"github.com/AshkanYarmoradi/go-dugout/adapters"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecord(key string, ttl time.Duration) *adapters.IdempotencyRecord {
	now := time.Now()
	return &adapters.IdempotencyRecord{
		Key:         key,
		CommandType: "RecordAtBat",
		AggregateID: "m1",
		Success:     true,
		ProcessedAt: now,
		ExpiresAt:   now.Add(ttl),
	}
}

func TestIdempotencyStore(t *testing.T) {
	ctx := context.Background()

	t.Run("store, exists and get", func(t *testing.T) {
		s := NewIdempotencyStore()
		defer s.Close()

		require.NoError(t, s.Store(ctx, newRecord("k1", time.Hour)))

		ok, err := s.Exists(ctx, "k1")
		require.NoError(t, err)
		assert.True(t, ok)

		rec, err := s.Get(ctx, "k1")
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, "RecordAtBat", rec.CommandType)
	})

	t.Run("expired records are invisible", func(t *testing.T) {
		s := NewIdempotencyStore()
		defer s.Close()
		require.NoError(t, s.Store(ctx, newRecord("k1", -time.Second)))

		ok, _ := s.Exists(ctx, "k1")
		rec, _ := s.Get(ctx, "k1")

		assert.False(t, ok)
		assert.Nil(t, rec)
	})

	t.Run("get returns a copy", func(t *testing.T) {
		s := NewIdempotencyStore()
		defer s.Close()
		require.NoError(t, s.Store(ctx, newRecord("k1", time.Hour)))

		rec, _ := s.Get(ctx, "k1")
		rec.AggregateID = "changed"

		again, _ := s.Get(ctx, "k1")
		assert.Equal(t, "m1", again.AggregateID)
	})

	t.Run("delete and cleanup", func(t *testing.T) {
		s := NewIdempotencyStore()
		defer s.Close()
		require.NoError(t, s.Store(ctx, newRecord("keep", time.Hour)))
		require.NoError(t, s.Store(ctx, newRecord("expired", -time.Minute)))
		require.NoError(t, s.Store(ctx, newRecord("gone", time.Hour)))

		require.NoError(t, s.Delete(ctx, "gone"))
		removed, err := s.Cleanup(ctx, time.Hour)

		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)
		assert.Equal(t, 1, s.Len())
	})

	t.Run("rejects empty key", func(t *testing.T) {
		s := NewIdempotencyStore()
		defer s.Close()

		assert.Error(t, s.Store(ctx, &adapters.IdempotencyRecord{}))
	})

	t.Run("close is idempotent", func(t *testing.T) {
		s := NewIdempotencyStore(WithCleanupInterval(time.Millisecond), WithMaxAge(time.Minute))

		assert.NoError(t, s.Close())
		assert.NoError(t, s.Close())
	})
}
