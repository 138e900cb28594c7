package msgpack

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runsScored struct {
	MatchID string `json:"matchId"`
	Side    string `json:"side"`
	Runs    int    `json:"runs"`
}

type slotState struct {
	Order    int      `json:"order"`
	PlayerID string   `json:"playerId"`
	History  []string `json:"history,omitempty"`
}

type lineupState struct {
	MatchID     string      `json:"matchId"`
	Placeholder bool        `json:"placeholder"`
	Slots       []slotState `json:"slots"`
	Bases       [3]string   `json:"bases"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

func TestCodec_RoundTripsState(t *testing.T) {
	c := NewCodec()
	in := lineupState{
		MatchID: "m1",
		Slots: []slotState{
			{Order: 1, PlayerID: "p1", History: []string{"p9"}},
			{Order: 2, PlayerID: "p2"},
		},
		Bases:     [3]string{"", "p4", ""},
		UpdatedAt: time.Date(2026, 5, 2, 19, 5, 0, 0, time.UTC),
	}

	data, err := c.Marshal(&in)
	require.NoError(t, err)

	var out lineupState
	require.NoError(t, c.Unmarshal(data, &out))
	assert.Equal(t, in.MatchID, out.MatchID)
	assert.Equal(t, in.Slots, out.Slots)
	assert.Equal(t, in.Bases, out.Bases)
	assert.True(t, in.UpdatedAt.Equal(out.UpdatedAt))
	assert.False(t, out.Placeholder)
}

func TestCodec_Errors(t *testing.T) {
	c := NewCodec()

	err := c.Unmarshal(nil, &lineupState{})
	var serErr *SerializationError
	require.ErrorAs(t, err, &serErr)
	assert.Equal(t, "unmarshal", serErr.Operation)

	err = c.Unmarshal([]byte{0xc1}, &lineupState{})
	assert.Error(t, err)
}

func TestSerializer(t *testing.T) {
	s := NewSerializer(runsScored{})
	assert.Equal(t, 1, s.Count())

	data, err := s.Serialize(runsScored{MatchID: "m1", Side: "away", Runs: 2})
	require.NoError(t, err)

	got, err := s.Deserialize(data, "runsScored")
	require.NoError(t, err)
	assert.Equal(t, runsScored{MatchID: "m1", Side: "away", Runs: 2}, got)

	t.Run("unregistered decodes to map", func(t *testing.T) {
		got, err := s.Deserialize(data, "Unknown")
		require.NoError(t, err)
		m, ok := got.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "m1", m["matchId"])
	})

	t.Run("nil event", func(t *testing.T) {
		_, err := s.Serialize(nil)
		assert.Error(t, err)
	})

	t.Run("explicit register", func(t *testing.T) {
		s.Register("Runs", &runsScored{})
		_, ok := s.Lookup("Runs")
		assert.True(t, ok)
	})
}
