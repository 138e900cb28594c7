package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Level: "info", Output: &buf})
	require.NoError(t, err)

	l.Debug("hidden")
	l.With("matchId", "m1").Info("Match initialized", "events", 5)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "INFO", rec["level"])
	assert.Equal(t, "Match initialized", rec["msg"])
	assert.Equal(t, "m1", rec["matchId"])
	assert.Equal(t, float64(5), rec["events"])
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Level: "debug", Format: "console", Output: &buf})
	require.NoError(t, err)

	l.Debug("Starting transaction", "transaction", "record-at-bat")
	assert.Contains(t, buf.String(), "Starting transaction")
	assert.Contains(t, buf.String(), "record-at-bat")
}

func TestNew_Errors(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	assert.Error(t, err)
	_, err = New(Options{Format: "xml"})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]string{"": "info", "DEBUG": "debug", "warning": "warn", "error": "error"} {
		lvl, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, lvl.String())
	}
}

func TestWrap(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := Wrap(zap.New(core))

	l.Warn("Compensation rejected", "matchId", "m1")
	l.Error("Action failed", "matchId", "m1", "transaction", "undo AT_BAT")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
	assert.Equal(t, "m1", entries[0].ContextMap()["matchId"])
	assert.Equal(t, "undo AT_BAT", entries[1].ContextMap()["transaction"])
	assert.NoError(t, l.Sync())
}
