package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/AshkanYarmoradi/go-dugout/adapters"
)

var _ adapters.IdempotencyStore = (*IdempotencyStore)(nil)

// IdempotencyStore keeps processed command keys in the same file as the
// event log, so a key passed to one CLI invocation is honored by the next.
type IdempotencyStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewIdempotencyStore creates a store sharing s's handle. The table is
// created by the store's migrations.
func NewIdempotencyStore(s *Store) *IdempotencyStore {
	return &IdempotencyStore{db: s.sqlDB, now: s.now}
}

// Exists checks if an unexpired record with the given key exists.
func (s *IdempotencyStore) Exists(ctx context.Context, key string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM idempotency WHERE key = ? AND expires_at > ?`,
		key, toMillis(s.now())).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("dugout/sqlite/idempotency: failed to check existence: %w", err)
	}
	return n > 0, nil
}

// Store upserts a record.
func (s *IdempotencyStore) Store(ctx context.Context, record *adapters.IdempotencyRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO idempotency (
			key, command_type, aggregate_id, version, response, error, success, processed_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			command_type = excluded.command_type,
			aggregate_id = excluded.aggregate_id,
			version = excluded.version,
			response = excluded.response,
			error = excluded.error,
			success = excluded.success,
			processed_at = excluded.processed_at,
			expires_at = excluded.expires_at`,
		record.Key, record.CommandType, record.AggregateID, record.Version, record.Response,
		record.Error, record.Success, toMillis(record.ProcessedAt), toMillis(record.ExpiresAt))
	if err != nil {
		return fmt.Errorf("dugout/sqlite/idempotency: failed to store record: %w", err)
	}
	return nil
}

// Get returns nil, nil when the record is absent or expired.
func (s *IdempotencyStore) Get(ctx context.Context, key string) (*adapters.IdempotencyRecord, error) {
	var (
		rec                  adapters.IdempotencyRecord
		processed, expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT key, command_type, aggregate_id, version, response, error, success, processed_at, expires_at
		FROM idempotency
		WHERE key = ? AND expires_at > ?`, key, toMillis(s.now())).Scan(
		&rec.Key, &rec.CommandType, &rec.AggregateID, &rec.Version, &rec.Response,
		&rec.Error, &rec.Success, &processed, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dugout/sqlite/idempotency: failed to get record: %w", err)
	}
	rec.ProcessedAt = fromMillis(processed)
	rec.ExpiresAt = fromMillis(expiresAt)
	return &rec, nil
}

// Delete removes a record by key.
func (s *IdempotencyStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM idempotency WHERE key = ?`, key); err != nil {
		return fmt.Errorf("dugout/sqlite/idempotency: failed to delete record: %w", err)
	}
	return nil
}

// Cleanup removes records older than the given duration, plus expired ones.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM idempotency WHERE processed_at < ? OR expires_at < ?`,
		toMillis(now.Add(-olderThan)), toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("dugout/sqlite/idempotency: failed to cleanup records: %w", err)
	}
	return res.RowsAffected()
}
