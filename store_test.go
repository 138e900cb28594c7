package dugout

import (
	"context"
	"testing"

	"github.com/AshkanYarmoradi/go-dugout/adapters/memory"
	"github.com/AshkanYarmoradi/go-dugout/serializer/msgpack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() (*EventStore, *memory.MemoryAdapter) {
	adapter := memory.NewAdapter()
	store := New(adapter)
	store.RegisterEvents(RunAdded{}, NoteAdded{})
	return store, adapter
}

func TestEventStore_AppendFor(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore()

	stored, err := store.AppendFor(ctx, "t1", "Tally", []interface{}{RunAdded{Runs: 1}, NoteAdded{Note: "x"}})
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "Tally-t1", stored[0].StreamID)
	assert.Equal(t, "RunAdded", stored[0].Type)
	assert.Equal(t, int64(2), stored[1].Version)

	// Appends are unconditional by default.
	_, err = store.AppendFor(ctx, "t1", "Tally", []interface{}{RunAdded{Runs: 2}})
	require.NoError(t, err)

	events, err := store.Load(ctx, "Tally-t1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, RunAdded{Runs: 1}, events[0].Data)
	assert.Equal(t, NoteAdded{Note: "x"}, events[1].Data)

	_, err = store.AppendFor(ctx, "", "Tally", []interface{}{RunAdded{}})
	assert.ErrorIs(t, err, ErrEmptyStreamID)
	_, err = store.AppendFor(ctx, "t1", "Tally", nil)
	assert.ErrorIs(t, err, ErrNoEvents)
}

func TestEventStore_ExpectVersion(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore()

	require.NoError(t, store.Append(ctx, "Tally-t1", []interface{}{RunAdded{Runs: 1}}, ExpectVersion(NoStream)))
	err := store.Append(ctx, "Tally-t1", []interface{}{RunAdded{Runs: 1}}, ExpectVersion(NoStream))
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
}

func TestEventStore_MetadataFromContext(t *testing.T) {
	store, _ := newTestStore()
	ctx := WithCausationID(WithCorrelationID(context.Background(), "corr-1"), "cmd-1")

	_, err := store.AppendFor(ctx, "t1", "Tally", []interface{}{RunAdded{Runs: 1}})
	require.NoError(t, err)
	_, err = store.AppendFor(ctx, "t1", "Tally", []interface{}{RunAdded{Runs: 1}},
		WithAppendMetadata(Metadata{CorrelationID: "explicit"}))
	require.NoError(t, err)

	raw, err := store.LoadRaw(context.Background(), "Tally-t1", 0)
	require.NoError(t, err)
	assert.Equal(t, "corr-1", raw[0].Metadata.CorrelationID)
	assert.Equal(t, "cmd-1", raw[0].Metadata.CausationID)
	assert.Equal(t, "explicit", raw[1].Metadata.CorrelationID)
}

func TestEventStore_LoadAggregateSkipsRetractions(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore()

	_, err := store.AppendFor(ctx, "t1", "Tally", []interface{}{RunAdded{Runs: 1}})
	require.NoError(t, err)
	_, err = store.AppendFor(ctx, "t1", "Tally", []interface{}{RunAdded{Runs: 5}, NoteAdded{Note: "void"}})
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, "Tally-t1", []interface{}{Retraction{FromVersion: 2, ToVersion: 3}}))
	_, err = store.AppendFor(ctx, "t1", "Tally", []interface{}{RunAdded{Runs: 2}})
	require.NoError(t, err)

	agg := newTally("t1")
	require.NoError(t, store.LoadAggregate(ctx, agg))
	assert.Equal(t, 3, agg.state.Runs)
	assert.Empty(t, agg.state.Notes)
	assert.Equal(t, int64(2), agg.Version())

	assert.ErrorIs(t, store.LoadAggregate(ctx, nil), ErrNilAggregate)
}

func TestEventStore_MsgpackSerializer(t *testing.T) {
	ctx := context.Background()
	store := New(memory.NewAdapter(), WithSerializer(msgpack.NewSerializer()))
	store.RegisterEvents(RunAdded{}, Retraction{})

	_, err := store.AppendFor(ctx, "t1", "Tally", []interface{}{RunAdded{Runs: 4}})
	require.NoError(t, err)

	events, err := store.Load(ctx, "Tally-t1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, RunAdded{Runs: 4}, events[0].Data)
}

func TestEventStore_StreamInfo(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore()

	_, err := store.GetStreamInfo(ctx, "Tally-none")
	assert.ErrorIs(t, err, ErrStreamNotFound)
	_, err = store.GetStreamInfo(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyStreamID)

	_, err = store.AppendFor(ctx, "t1", "Tally", []interface{}{RunAdded{Runs: 1}})
	require.NoError(t, err)

	info, err := store.GetStreamInfo(ctx, "Tally-t1")
	require.NoError(t, err)
	assert.Equal(t, "Tally", info.Category)
	assert.Equal(t, int64(1), info.Version)

	pos, err := store.GetLastPosition(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), pos)
}
