package dugout

// Aggregate defines the interface for event-sourced aggregates.
// Mutating methods on a concrete aggregate update its state and buffer the
// event they produce with AggregateBase.Apply.
type Aggregate interface {
	// AggregateID returns the unique identifier for this aggregate instance.
	AggregateID() string

	// AggregateType returns the aggregate kind (e.g., "MatchState").
	AggregateType() string

	// Version returns the number of events reflected by the persisted state.
	Version() int64

	// ApplyEvent folds a stored event into the aggregate's state. It is used
	// when rebuilding an aggregate from the event log.
	ApplyEvent(event interface{}) error

	// UncommittedEvents returns events produced since the aggregate was loaded.
	UncommittedEvents() []interface{}

	// ClearUncommittedEvents drops the buffered events after persistence.
	ClearUncommittedEvents()
}

// Snapshotter is implemented by aggregates that are stored as snapshots.
// SnapshotData returns a pointer to the aggregate's state struct; repositories
// marshal it on save and decode into it on load.
type Snapshotter interface {
	SnapshotData() interface{}
}

// VersionSetter allows repositories to update an aggregate's version.
type VersionSetter interface {
	SetVersion(v int64)
}

// AggregateBase provides the bookkeeping half of Aggregate.
// Embed it in aggregate types.
type AggregateBase struct {
	id                string
	aggregateType     string
	version           int64
	uncommittedEvents []interface{}
}

// NewAggregateBase creates a new AggregateBase with the given ID and kind.
func NewAggregateBase(id, aggregateType string) AggregateBase {
	return AggregateBase{
		id:            id,
		aggregateType: aggregateType,
	}
}

// AggregateID returns the aggregate's unique identifier.
func (a *AggregateBase) AggregateID() string {
	return a.id
}

// AggregateType returns the aggregate kind.
func (a *AggregateBase) AggregateType() string {
	return a.aggregateType
}

// Version returns the current version of the aggregate.
func (a *AggregateBase) Version() int64 {
	return a.version
}

// SetVersion sets the aggregate version.
func (a *AggregateBase) SetVersion(v int64) {
	a.version = v
}

// UncommittedEvents returns events that haven't been persisted yet.
func (a *AggregateBase) UncommittedEvents() []interface{} {
	return a.uncommittedEvents
}

// ClearUncommittedEvents removes all uncommitted events.
func (a *AggregateBase) ClearUncommittedEvents() {
	a.uncommittedEvents = nil
}

// Apply buffers an event as uncommitted. The caller is responsible for
// updating state.
func (a *AggregateBase) Apply(event interface{}) {
	a.uncommittedEvents = append(a.uncommittedEvents, event)
}

// HasUncommittedEvents returns true if there are events waiting to be persisted.
func (a *AggregateBase) HasUncommittedEvents() bool {
	return len(a.uncommittedEvents) > 0
}

// StreamID returns the "{Kind}-{ID}" stream for this aggregate.
func (a *AggregateBase) StreamID() string {
	return BuildStreamID(a.aggregateType, a.id)
}

// MarkCommitted advances the aggregate's version past its uncommitted events
// and clears them. Call it once every persistence step for the aggregate has
// succeeded.
func MarkCommitted(agg Aggregate) {
	if setter, ok := agg.(VersionSetter); ok {
		setter.SetVersion(agg.Version() + int64(len(agg.UncommittedEvents())))
	}
	agg.ClearUncommittedEvents()
}
