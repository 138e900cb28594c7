package dugout

import (
	"context"

	"github.com/AshkanYarmoradi/go-dugout/adapters"
)

// SaveOperation returns a transaction step that saves agg through repo.
// Its compensation restores whatever was stored before the save, or deletes
// the record if there was none. Failures are *PersistenceError of kind
// PersistenceAggregateSave.
func SaveOperation[A Aggregate](repo *AggregateRepository[A], agg A) Operation {
	id := agg.AggregateID()
	streamID := repo.streamID(id)
	var prev *adapters.SnapshotRecord

	return Operation{
		Name: "save " + streamID,
		Run: func(ctx context.Context) (OperationResult, error) {
			rec, err := repo.Checkpoint(ctx, id)
			if err != nil {
				return OperationResult{}, NewPersistenceError(PersistenceAggregateSave, streamID, err)
			}
			if err := repo.Save(ctx, agg); err != nil {
				return OperationResult{}, NewPersistenceError(PersistenceAggregateSave, streamID, err)
			}
			prev = rec
			return Succeeded(streamID), nil
		},
		Compensate: func(ctx context.Context) error {
			return repo.Restore(ctx, id, prev)
		},
	}
}

// AppendOperation returns a transaction step that appends agg's uncommitted
// events to the event log. The log is append-only, so its compensation
// appends a Retraction covering the stored batch. Failures are
// *PersistenceError of kind PersistenceEventLog.
func AppendOperation(store *EventStore, agg Aggregate) Operation {
	streamID := BuildStreamID(agg.AggregateType(), agg.AggregateID())
	var stored []StoredEvent

	return Operation{
		Name: "append " + streamID,
		Run: func(ctx context.Context) (OperationResult, error) {
			events := agg.UncommittedEvents()
			if len(events) == 0 {
				return Succeeded(0), nil
			}
			out, err := store.AppendFor(ctx, agg.AggregateID(), agg.AggregateType(), events)
			if err != nil {
				return OperationResult{}, NewPersistenceError(PersistenceEventLog, streamID, err)
			}
			stored = out
			return Succeeded(len(out)), nil
		},
		Compensate: func(ctx context.Context) error {
			if len(stored) == 0 {
				return nil
			}
			types := make([]string, len(stored))
			for i, e := range stored {
				types[i] = e.Type
			}
			return store.Append(ctx, streamID, []interface{}{Retraction{
				Transaction: TransactionNameFromContext(ctx),
				FromVersion: stored[0].Version,
				ToVersion:   stored[len(stored)-1].Version,
				EventTypes:  types,
				Reason:      "transaction rolled back",
			}})
		},
	}
}
