package memory

import (
	"context"
	"sync"
	"time"

	"github.com/AshkanYarmoradi/go-dugout/adapters"
)

var _ adapters.IdempotencyStore = (*IdempotencyStore)(nil)

// IdempotencyStore is an in-memory adapters.IdempotencyStore.
// Records do not survive a restart.
type IdempotencyStore struct {
	mu      sync.RWMutex
	records map[string]*adapters.IdempotencyRecord

	cleanupInterval time.Duration
	maxAge          time.Duration
	stop            chan struct{}
	closeOnce       sync.Once
}

// IdempotencyStoreOption configures an IdempotencyStore.
type IdempotencyStoreOption func(*IdempotencyStore)

// WithCleanupInterval enables periodic removal of old records. Zero disables it.
func WithCleanupInterval(interval time.Duration) IdempotencyStoreOption {
	return func(s *IdempotencyStore) {
		s.cleanupInterval = interval
	}
}

// WithMaxAge sets the age after which the periodic cleanup drops a record.
func WithMaxAge(maxAge time.Duration) IdempotencyStoreOption {
	return func(s *IdempotencyStore) {
		s.maxAge = maxAge
	}
}

// NewIdempotencyStore creates a new in-memory IdempotencyStore.
func NewIdempotencyStore(opts ...IdempotencyStoreOption) *IdempotencyStore {
	s := &IdempotencyStore{
		records: make(map[string]*adapters.IdempotencyRecord),
		maxAge:  24 * time.Hour,
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cleanupInterval > 0 {
		go s.cleanupLoop()
	}
	return s
}

func (s *IdempotencyStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_, _ = s.Cleanup(context.Background(), s.maxAge)
		case <-s.stop:
			return
		}
	}
}

// Close stops the cleanup goroutine. Safe to call more than once.
func (s *IdempotencyStore) Close() error {
	s.closeOnce.Do(func() { close(s.stop) })
	return nil
}

// Exists reports whether an unexpired record exists for key.
func (s *IdempotencyStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	return ok && !rec.IsExpired(), nil
}

// Store saves a copy of record, replacing any previous record with the same key.
func (s *IdempotencyStore) Store(ctx context.Context, record *adapters.IdempotencyRecord) error {
	if record == nil || record.Key == "" {
		return adapters.ErrEmptyStreamID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.Key] = adapters.CopyIdempotencyRecord(record)
	return nil
}

// Get returns a copy of the record, or nil when absent or expired.
func (s *IdempotencyStore) Get(ctx context.Context, key string) (*adapters.IdempotencyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	if !ok || rec.IsExpired() {
		return nil, nil
	}
	return adapters.CopyIdempotencyRecord(rec), nil
}

// Delete removes a record.
func (s *IdempotencyStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

// Cleanup removes records processed before now-olderThan, plus expired ones.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var removed int64
	for key, rec := range s.records {
		if rec.ProcessedAt.Before(cutoff) || rec.IsExpired() {
			delete(s.records, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored records, including expired ones.
func (s *IdempotencyStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
