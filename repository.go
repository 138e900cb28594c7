package dugout

import (
	"context"
	"fmt"

	"github.com/AshkanYarmoradi/go-dugout/adapters"
	"github.com/AshkanYarmoradi/go-dugout/serializer/msgpack"
)

// Codec encodes aggregate state for the snapshot store.
type Codec interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
}

// RepositoryOption configures an AggregateRepository.
type RepositoryOption func(*repositoryOptions)

type repositoryOptions struct {
	codec  Codec
	logger Logger
}

// WithCodec replaces the default MessagePack codec.
func WithCodec(c Codec) RepositoryOption {
	return func(o *repositoryOptions) {
		o.codec = c
	}
}

// WithRepositoryLogger sets the repository logger.
func WithRepositoryLogger(l Logger) RepositoryOption {
	return func(o *repositoryOptions) {
		o.logger = l
	}
}

// AggregateRepository persists the current state of one aggregate kind as a
// snapshot. Saves are version checked, so two callers that loaded the same
// version cannot both commit.
type AggregateRepository[A Aggregate] struct {
	snapshots adapters.SnapshotAdapter
	kind      string
	factory   func(id string) A
	codec     Codec
	logger    Logger
}

// NewAggregateRepository creates a repository for aggregates of the given kind.
// factory must return an empty aggregate with its id and kind set.
func NewAggregateRepository[A Aggregate](snapshots adapters.SnapshotAdapter, kind string, factory func(id string) A, opts ...RepositoryOption) *AggregateRepository[A] {
	o := repositoryOptions{codec: msgpack.NewCodec(), logger: noopLogger{}}
	for _, opt := range opts {
		opt(&o)
	}
	return &AggregateRepository[A]{
		snapshots: snapshots,
		kind:      kind,
		factory:   factory,
		codec:     o.codec,
		logger:    o.logger,
	}
}

// Kind returns the aggregate kind this repository stores.
func (r *AggregateRepository[A]) Kind() string {
	return r.kind
}

func (r *AggregateRepository[A]) streamID(id string) string {
	return BuildStreamID(r.kind, id)
}

// Exists reports whether state is stored for id. Storage failures are
// returned as a *PersistenceError of kind PersistenceAggregateLoad.
func (r *AggregateRepository[A]) Exists(ctx context.Context, id string) (bool, error) {
	rec, err := r.load(ctx, id)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

func (r *AggregateRepository[A]) load(ctx context.Context, id string) (*adapters.SnapshotRecord, error) {
	streamID := r.streamID(id)
	rec, err := r.snapshots.LoadSnapshot(ctx, streamID)
	if err != nil {
		r.logger.Error("Aggregate load failed", "stream", streamID, "error", err)
		return nil, NewPersistenceError(PersistenceAggregateLoad, streamID, err)
	}
	return rec, nil
}

// Save stores the aggregate's state. The stored version must equal
// agg.Version(); the new version counts the uncommitted events. The
// aggregate itself is not modified; see MarkCommitted.
func (r *AggregateRepository[A]) Save(ctx context.Context, agg A) error {
	s, ok := any(agg).(Snapshotter)
	if !ok {
		return ErrNotSnapshotter
	}

	pending := int64(len(agg.UncommittedEvents()))
	if pending == 0 && agg.Version() > 0 {
		return nil
	}

	data, err := r.codec.Marshal(s.SnapshotData())
	if err != nil {
		return fmt.Errorf("dugout: failed to encode %s state: %w", r.kind, err)
	}

	streamID := r.streamID(agg.AggregateID())
	expected := agg.Version()
	if err := r.snapshots.SaveSnapshot(ctx, streamID, expected, expected+pending, data); err != nil {
		r.logger.Error("Aggregate save failed", "stream", streamID, "expectedVersion", expected, "error", err)
		return err
	}
	r.logger.Debug("Aggregate saved", "stream", streamID, "version", expected+pending)
	return nil
}

// FindByID loads the aggregate stored for id. It returns a *NotFoundError
// (matching ErrNotFound) when nothing is stored, and a *PersistenceError of
// kind PersistenceAggregateLoad when the state cannot be read.
func (r *AggregateRepository[A]) FindByID(ctx context.Context, id string) (A, error) {
	var zero A

	rec, err := r.load(ctx, id)
	if err != nil {
		return zero, err
	}
	if rec == nil {
		return zero, &NotFoundError{Kind: r.kind, ID: id}
	}

	agg := r.factory(id)
	s, ok := any(agg).(Snapshotter)
	if !ok {
		return zero, ErrNotSnapshotter
	}
	if err := r.codec.Unmarshal(rec.Data, s.SnapshotData()); err != nil {
		return zero, NewPersistenceError(PersistenceAggregateLoad, rec.StreamID,
			fmt.Errorf("decode %s state: %w", r.kind, err))
	}
	if setter, ok := any(agg).(VersionSetter); ok {
		setter.SetVersion(rec.Version)
	}
	return agg, nil
}

// Checkpoint returns the stored record for id, or nil when absent. Pass it
// to Restore to undo a later Save.
func (r *AggregateRepository[A]) Checkpoint(ctx context.Context, id string) (*adapters.SnapshotRecord, error) {
	return r.snapshots.LoadSnapshot(ctx, r.streamID(id))
}

// Restore puts back a record returned by Checkpoint. A nil record deletes
// whatever is stored for id.
func (r *AggregateRepository[A]) Restore(ctx context.Context, id string, rec *adapters.SnapshotRecord) error {
	if rec == nil {
		return r.Delete(ctx, id)
	}
	return r.snapshots.SaveSnapshot(ctx, r.streamID(id), AnyVersion, rec.Version, rec.Data)
}

// Delete removes the stored state for id. It exists for compensation only.
func (r *AggregateRepository[A]) Delete(ctx context.Context, id string) error {
	return r.snapshots.DeleteSnapshot(ctx, r.streamID(id))
}
