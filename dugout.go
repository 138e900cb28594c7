// Package dugout records live play-by-play for a match using event-sourced
// aggregates and keeps several aggregates consistent without a shared
// transactional store.
//
// The root package holds the primitives the scorebook is built from:
//
//   - Aggregate and AggregateBase: entities that buffer the events their
//     mutations produce.
//   - AggregateRepository: one per aggregate kind, persisting the current
//     state as a version-checked snapshot.
//   - EventStore: the append-only event log, keyed by aggregate id and kind.
//   - Coordinator: runs an ordered list of operations as one unit and rolls
//     back the already-succeeded prefix when a later step fails.
//   - CommandBus with middleware, for callers that drive the scorebook with
//     commands.
//
// A typical setup with the in-memory adapter:
//
//	adapter := memory.NewAdapter()
//	events := dugout.New(adapter)
//	events.RegisterEvents(game.EventTypes()...)
//	matches := dugout.NewAggregateRepository(adapter, game.MatchStateKind, game.NewMatchState)
//
// Saving snapshots and appending events are separate steps. Callers combine
// them in a Coordinator transaction where each step supplies its own
// compensation:
//
//	result := coordinator.Run(ctx, "record-at-bat", []dugout.Operation{
//	    dugout.SaveOperation(matches, match),
//	    dugout.AppendOperation(events, match),
//	}, dugout.TxContext{"matchId": id})
package dugout

// Version returns the library version string.
func Version() string {
	return "0.3.0"
}

// BuildStreamID creates the "{Kind}-{ID}" stream ID used by both the event
// log and the snapshot store.
func BuildStreamID(aggregateKind, aggregateID string) string {
	return aggregateKind + "-" + aggregateID
}
