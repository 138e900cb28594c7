package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/AshkanYarmoradi/go-dugout/adapters"
	"github.com/lib/pq"
)

var _ adapters.IdempotencyStore = (*IdempotencyStore)(nil)

// IdempotencyStore keeps processed command keys in PostgreSQL so caller
// retries through the HTTP API survive restarts.
type IdempotencyStore struct {
	db     *sql.DB
	schema string
	table  string
}

// NewIdempotencyStore creates a store that shares the adapter's pool and schema.
func NewIdempotencyStore(adapter *PostgresAdapter) *IdempotencyStore {
	return &IdempotencyStore{db: adapter.db, schema: adapter.schema, table: "idempotency"}
}

func (s *IdempotencyStore) fullTableName() string {
	return pq.QuoteIdentifier(s.schema) + "." + pq.QuoteIdentifier(s.table)
}

// Initialize creates the idempotency table if it doesn't exist.
func (s *IdempotencyStore) Initialize(ctx context.Context) error {
	tbl := s.fullTableName()
	stmts := []string{
		`CREATE SCHEMA IF NOT EXISTS ` + pq.QuoteIdentifier(s.schema),
		`CREATE TABLE IF NOT EXISTS ` + tbl + ` (
			key          VARCHAR(255) PRIMARY KEY,
			command_type VARCHAR(255) NOT NULL,
			aggregate_id VARCHAR(255) NOT NULL DEFAULT '',
			version      BIGINT NOT NULL DEFAULT 0,
			response     BYTEA,
			error        TEXT NOT NULL DEFAULT '',
			success      BOOLEAN NOT NULL DEFAULT false,
			processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			expires_at   TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("dugout/postgres/idempotency: failed to create table: %w", err)
		}
	}
	return nil
}

// Exists checks if an unexpired record with the given key exists.
func (s *IdempotencyStore) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM `+s.fullTableName()+` WHERE key = $1 AND expires_at > NOW())`,
		key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("dugout/postgres/idempotency: failed to check existence: %w", err)
	}
	return exists, nil
}

// Store upserts a record.
func (s *IdempotencyStore) Store(ctx context.Context, record *adapters.IdempotencyRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO `+s.fullTableName()+` (
			key, command_type, aggregate_id, version, response, error, success, processed_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (key) DO UPDATE SET
			command_type = EXCLUDED.command_type,
			aggregate_id = EXCLUDED.aggregate_id,
			version = EXCLUDED.version,
			response = EXCLUDED.response,
			error = EXCLUDED.error,
			success = EXCLUDED.success,
			processed_at = EXCLUDED.processed_at,
			expires_at = EXCLUDED.expires_at`,
		record.Key, record.CommandType, record.AggregateID, record.Version, record.Response,
		record.Error, record.Success, record.ProcessedAt, record.ExpiresAt)
	if err != nil {
		return fmt.Errorf("dugout/postgres/idempotency: failed to store record: %w", err)
	}
	return nil
}

// Get returns nil, nil when the record is absent or expired.
func (s *IdempotencyStore) Get(ctx context.Context, key string) (*adapters.IdempotencyRecord, error) {
	var rec adapters.IdempotencyRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT key, command_type, aggregate_id, version, response, error, success, processed_at, expires_at
		FROM `+s.fullTableName()+`
		WHERE key = $1 AND expires_at > NOW()`, key).Scan(
		&rec.Key, &rec.CommandType, &rec.AggregateID, &rec.Version, &rec.Response,
		&rec.Error, &rec.Success, &rec.ProcessedAt, &rec.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dugout/postgres/idempotency: failed to get record: %w", err)
	}
	return &rec, nil
}

// Delete removes a record by key.
func (s *IdempotencyStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM `+s.fullTableName()+` WHERE key = $1`, key); err != nil {
		return fmt.Errorf("dugout/postgres/idempotency: failed to delete record: %w", err)
	}
	return nil
}

// Cleanup removes records older than the given duration, plus expired ones.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM `+s.fullTableName()+` WHERE processed_at < $1 OR expires_at < NOW()`,
		time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("dugout/postgres/idempotency: failed to cleanup records: %w", err)
	}
	return res.RowsAffected()
}
