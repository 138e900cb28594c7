package adapters

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelErrors(t *testing.T) {
	all := []error{
		ErrConcurrencyConflict, ErrStreamNotFound, ErrEmptyStreamID,
		ErrNoEvents, ErrInvalidVersion, ErrAdapterClosed,
	}
	for i, err := range all {
		assert.Contains(t, err.Error(), "dugout:")
		for j, other := range all {
			if i != j {
				assert.False(t, errors.Is(err, other), "%v should not match %v", err, other)
			}
		}
	}
}

func TestExtractCategory(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"MatchState-m1", "MatchState"},
		{"RosterLineup-6f1c-44aa", "RosterLineup"},
		{"NoHyphen", "NoHyphen"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractCategory(tt.in))
		})
	}
}

func TestCheckVersion(t *testing.T) {
	tests := []struct {
		name     string
		expected int64
		current  int64
		exists   bool
		wantErr  error
	}{
		{"any version on missing", AnyVersion, 0, false, nil},
		{"any version on existing", AnyVersion, 7, true, nil},
		{"no stream on missing", NoStream, 0, false, nil},
		{"no stream on existing", NoStream, 3, true, ErrConcurrencyConflict},
		{"stream exists on existing", StreamExists, 3, true, nil},
		{"stream exists on missing", StreamExists, 0, false, ErrStreamNotFound},
		{"exact match", 4, 4, true, nil},
		{"stale", 3, 4, true, ErrConcurrencyConflict},
		{"invalid negative", -9, 0, false, ErrInvalidVersion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckVersion("MatchState-m1", tt.expected, tt.current, tt.exists)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestConcurrencyError(t *testing.T) {
	err := NewConcurrencyError("InningState-i1", 2, 5)

	assert.ErrorIs(t, err, ErrConcurrencyConflict)
	assert.Contains(t, err.Error(), `"InningState-i1"`)
	assert.Contains(t, err.Error(), "expected version 2, got 5")

	var target *ConcurrencyError
	require.True(t, errors.As(error(err), &target))
	assert.Equal(t, int64(5), target.ActualVersion)
}

func TestCopyIdempotencyRecord(t *testing.T) {
	assert.Nil(t, CopyIdempotencyRecord(nil))

	orig := &IdempotencyRecord{
		Key:       "k",
		Response:  []byte("abc"),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	cp := CopyIdempotencyRecord(orig)
	cp.Response[0] = 'z'
	cp.Key = "other"

	assert.Equal(t, "k", orig.Key)
	assert.Equal(t, []byte("abc"), orig.Response)
	assert.False(t, cp.IsExpired())
}
