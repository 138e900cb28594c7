package dugout

import (
	"context"
	"errors"
	"testing"

	"github.com/AshkanYarmoradi/go-dugout/adapters"
	"github.com/AshkanYarmoradi/go-dugout/adapters/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndAppendOperations_CommitTogether(t *testing.T) {
	ctx := context.Background()
	adapter := memory.NewAdapter()
	store := New(adapter)
	store.RegisterEvents(RunAdded{})
	repo := NewAggregateRepository(adapter, "Tally", newTally)

	agg := newTally("t1")
	agg.Add(3)

	result := NewCoordinator().Run(ctx, "create", []Operation{
		SaveOperation(repo, agg),
		AppendOperation(store, agg),
	}, TxContext{"matchId": "t1"})
	require.True(t, result.Success, result.Errors)
	assert.Equal(t, "save Tally-t1", result.Results[0].Data)
	assert.Equal(t, 1, result.Results[1].Data)

	replayed := newTally("t1")
	require.NoError(t, store.LoadAggregate(ctx, replayed))
	loaded, err := repo.FindByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, loaded.state, replayed.state)
	assert.Equal(t, loaded.Version(), replayed.Version())
}

func TestSaveAndAppendOperations_RollBack(t *testing.T) {
	ctx := context.Background()
	adapter := memory.NewAdapter()
	store := New(adapter)
	store.RegisterEvents(RunAdded{})

	tallies := NewAggregateRepository(adapter, "Tally", newTally)
	flaky := NewAggregateRepository(&flakySnapshots{SnapshotAdapter: adapter, failStream: "Other-o1"}, "Other", newTally)

	seed := newTally("t1")
	seed.Add(1)
	require.NoError(t, tallies.Save(ctx, seed))
	_, err := store.AppendFor(ctx, "t1", "Tally", seed.UncommittedEvents())
	require.NoError(t, err)

	agg, err := tallies.FindByID(ctx, "t1")
	require.NoError(t, err)
	agg.Add(4)
	other := newTally("o1")
	other.Add(1)

	result := NewCoordinator().Run(ctx, "two-aggregates", []Operation{
		SaveOperation(tallies, agg),
		AppendOperation(store, agg),
		SaveOperation(flaky, other),
	}, nil)

	require.False(t, result.Success)
	assert.True(t, result.RollbackApplied)
	var pe *PersistenceError
	require.ErrorAs(t, result.Cause, &pe)
	assert.Equal(t, PersistenceAggregateSave, pe.Kind)
	assert.Equal(t, "failed to save state", pe.Message())
	assert.Contains(t, result.Errors[0], "Transaction exception at operation 2")

	restored, err := tallies.FindByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, restored.state.Runs)
	assert.Equal(t, int64(1), restored.Version())

	events, err := store.Load(ctx, "Tally-t1")
	require.NoError(t, err)
	require.Len(t, events, 3, "the retracted batch stays in the log")
	retraction, ok := events[2].Data.(Retraction)
	require.True(t, ok)
	assert.Equal(t, "two-aggregates", retraction.Transaction)
	assert.Equal(t, int64(2), retraction.FromVersion)
	assert.Equal(t, []string{"RunAdded"}, retraction.EventTypes)

	replayed := newTally("t1")
	require.NoError(t, store.LoadAggregate(ctx, replayed))
	assert.Equal(t, 1, replayed.state.Runs)
}

type failingEventLog struct {
	*memory.MemoryAdapter
}

func (failingEventLog) Append(context.Context, string, []adapters.EventRecord, int64) ([]StoredEvent, error) {
	return nil, errors.New("connection reset")
}

func TestAppendOperation_ClassifiesFailure(t *testing.T) {
	store := New(failingEventLog{memory.NewAdapter()})
	agg := newTally("t1")
	agg.Add(1)

	result := NewCoordinator().Run(context.Background(), "append", []Operation{AppendOperation(store, agg)}, nil)
	require.False(t, result.Success)

	var pe *PersistenceError
	require.ErrorAs(t, result.Cause, &pe)
	assert.Equal(t, PersistenceEventLog, pe.Kind)
	assert.Equal(t, "failed to store events", pe.Message())
	assert.ErrorIs(t, result.Cause, ErrPersistenceFailed)
	assert.Contains(t, pe.Error(), "connection reset")
}

func TestAppendOperation_NothingToAppend(t *testing.T) {
	store := New(memory.NewAdapter())
	result := NewCoordinator().Run(context.Background(), "noop", []Operation{AppendOperation(store, newTally("t1"))}, nil)
	require.True(t, result.Success)
	assert.Equal(t, 0, result.Results[0].Data)
}
