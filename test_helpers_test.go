package dugout

import (
	"context"
	"errors"
	"sync"

	"github.com/AshkanYarmoradi/go-dugout/adapters"
)

type logEntry struct {
	level string
	msg   string
	args  []interface{}
}

// testLogger records every log call.
type testLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func newTestLogger() *testLogger {
	return &testLogger{}
}

func (l *testLogger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *testLogger) Debug(msg string, args ...interface{}) { l.log("debug", msg, args) }
func (l *testLogger) Info(msg string, args ...interface{})  { l.log("info", msg, args) }
func (l *testLogger) Warn(msg string, args ...interface{})  { l.log("warn", msg, args) }
func (l *testLogger) Error(msg string, args ...interface{}) { l.log("error", msg, args) }

func (l *testLogger) find(msg string) (logEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.msg == msg {
			return e, true
		}
	}
	return logEntry{}, false
}

// field returns the value logged under key.
func (e logEntry) field(key string) interface{} {
	for i := 0; i+1 < len(e.args); i += 2 {
		if e.args[i] == key {
			return e.args[i+1]
		}
	}
	return nil
}

// tally is a minimal snapshot aggregate used across the package tests.
type tally struct {
	AggregateBase
	state tallyState
}

type tallyState struct {
	Runs  int      `json:"runs"`
	Notes []string `json:"notes,omitempty"`
}

type RunAdded struct {
	Runs int `json:"runs"`
}

type NoteAdded struct {
	Note string `json:"note"`
}

func newTally(id string) *tally {
	return &tally{AggregateBase: NewAggregateBase(id, "Tally")}
}

func (t *tally) Add(n int) {
	e := RunAdded{Runs: n}
	t.Apply(e)
	_ = t.ApplyEvent(e)
}

func (t *tally) Note(s string) {
	e := NoteAdded{Note: s}
	t.Apply(e)
	_ = t.ApplyEvent(e)
}

func (t *tally) ApplyEvent(event interface{}) error {
	switch e := event.(type) {
	case RunAdded:
		t.state.Runs += e.Runs
	case NoteAdded:
		t.state.Notes = append(t.state.Notes, e.Note)
	default:
		return errors.New("unknown event")
	}
	return nil
}

func (t *tally) SnapshotData() interface{} {
	return &t.state
}

// flakySnapshots fails SaveSnapshot for the configured stream.
type flakySnapshots struct {
	adapters.SnapshotAdapter
	failStream string
}

func (f *flakySnapshots) SaveSnapshot(ctx context.Context, streamID string, expected, version int64, data []byte) error {
	if streamID == f.failStream {
		return errors.New("disk full")
	}
	return f.SnapshotAdapter.SaveSnapshot(ctx, streamID, expected, version, data)
}
