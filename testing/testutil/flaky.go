package testutil

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/AshkanYarmoradi/go-dugout/adapters"
)

// ErrInjected is the default error returned by an injected failure.
var ErrInjected = errors.New("testutil: injected failure")

// Op names an adapter call that can be made to fail.
type Op string

const (
	OpAppend         Op = "append"
	OpLoad           Op = "load"
	OpSaveSnapshot   Op = "save_snapshot"
	OpLoadSnapshot   Op = "load_snapshot"
	OpDeleteSnapshot Op = "delete_snapshot"
)

type failure struct {
	op     Op
	prefix string
	skip   int
	times  int
	err    error
}

// FlakyStore wraps an adapters.Store and fails selected calls. Failures
// match on the operation and a stream id prefix, so
// FailNext(OpSaveSnapshot, "InningState-", nil) fails the next inning save.
type FlakyStore struct {
	adapters.Store

	mu       sync.Mutex
	failures []*failure
	calls    map[Op][]string
}

// NewFlakyStore wraps inner.
func NewFlakyStore(inner adapters.Store) *FlakyStore {
	return &FlakyStore{Store: inner, calls: make(map[Op][]string)}
}

// FailNext fails the next call of op on a stream starting with prefix.
// A nil err means ErrInjected.
func (f *FlakyStore) FailNext(op Op, prefix string, err error) *FlakyStore {
	return f.FailAfter(op, prefix, 0, err)
}

// FailAfter lets skip matching calls through, then fails the next one.
func (f *FlakyStore) FailAfter(op Op, prefix string, skip int, err error) *FlakyStore {
	if err == nil {
		err = ErrInjected
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, &failure{op: op, prefix: prefix, skip: skip, times: 1, err: err})
	return f
}

// FailAlways fails every matching call until Heal is called.
func (f *FlakyStore) FailAlways(op Op, prefix string, err error) *FlakyStore {
	if err == nil {
		err = ErrInjected
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, &failure{op: op, prefix: prefix, times: -1, err: err})
	return f
}

// Heal removes all pending failures.
func (f *FlakyStore) Heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = nil
}

// Calls returns the stream ids op was called with, in order.
func (f *FlakyStore) Calls(op Op) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls[op]...)
}

func (f *FlakyStore) check(op Op, streamID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op] = append(f.calls[op], streamID)
	for i, fl := range f.failures {
		if fl.op != op || !strings.HasPrefix(streamID, fl.prefix) {
			continue
		}
		if fl.skip > 0 {
			fl.skip--
			continue
		}
		if fl.times > 0 {
			fl.times--
			if fl.times == 0 {
				f.failures = append(f.failures[:i], f.failures[i+1:]...)
			}
		}
		return fl.err
	}
	return nil
}

// Append implements adapters.EventStoreAdapter.
func (f *FlakyStore) Append(ctx context.Context, streamID string, events []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	if err := f.check(OpAppend, streamID); err != nil {
		return nil, err
	}
	return f.Store.Append(ctx, streamID, events, expectedVersion)
}

// Load implements adapters.EventStoreAdapter.
func (f *FlakyStore) Load(ctx context.Context, streamID string, fromVersion int64) ([]adapters.StoredEvent, error) {
	if err := f.check(OpLoad, streamID); err != nil {
		return nil, err
	}
	return f.Store.Load(ctx, streamID, fromVersion)
}

// SaveSnapshot implements adapters.SnapshotAdapter.
func (f *FlakyStore) SaveSnapshot(ctx context.Context, streamID string, expectedVersion, version int64, data []byte) error {
	if err := f.check(OpSaveSnapshot, streamID); err != nil {
		return err
	}
	return f.Store.SaveSnapshot(ctx, streamID, expectedVersion, version, data)
}

// LoadSnapshot implements adapters.SnapshotAdapter.
func (f *FlakyStore) LoadSnapshot(ctx context.Context, streamID string) (*adapters.SnapshotRecord, error) {
	if err := f.check(OpLoadSnapshot, streamID); err != nil {
		return nil, err
	}
	return f.Store.LoadSnapshot(ctx, streamID)
}

// DeleteSnapshot implements adapters.SnapshotAdapter.
func (f *FlakyStore) DeleteSnapshot(ctx context.Context, streamID string) error {
	if err := f.check(OpDeleteSnapshot, streamID); err != nil {
		return err
	}
	return f.Store.DeleteSnapshot(ctx, streamID)
}

var _ adapters.Store = (*FlakyStore)(nil)
