// Package postgres provides a PostgreSQL event log and snapshot store.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/AshkanYarmoradi/go-dugout/adapters"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
)

var (
	_ adapters.Store         = (*PostgresAdapter)(nil)
	_ adapters.HealthChecker = (*PostgresAdapter)(nil)
	_ adapters.Migrator      = (*PostgresAdapter)(nil)
)

// DefaultSchema is the schema used when none is configured.
const DefaultSchema = "dugout"

// schemaVersion is bumped whenever Migrate gains a new statement.
const schemaVersion = 1

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PostgresAdapter stores events and snapshots in PostgreSQL via the pgx
// database/sql driver.
type PostgresAdapter struct {
	db     *sql.DB
	schema string
	closed bool
}

// Option configures a PostgresAdapter.
type Option func(*PostgresAdapter)

// WithSchema sets the database schema name.
func WithSchema(schema string) Option {
	return func(a *PostgresAdapter) {
		a.schema = schema
	}
}

// WithMaxConnections sets the maximum number of open connections.
func WithMaxConnections(n int) Option {
	return func(a *PostgresAdapter) {
		a.db.SetMaxOpenConns(n)
	}
}

// WithConnectionMaxLifetime sets the maximum connection lifetime.
func WithConnectionMaxLifetime(d time.Duration) Option {
	return func(a *PostgresAdapter) {
		a.db.SetConnMaxLifetime(d)
	}
}

// NewAdapter opens a connection pool for connStr.
func NewAdapter(connStr string, opts ...Option) (*PostgresAdapter, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("dugout/postgres: failed to open database: %w", err)
	}
	a, err := newAdapter(db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

// NewAdapterWithDB wraps an existing connection pool.
func NewAdapterWithDB(db *sql.DB, opts ...Option) (*PostgresAdapter, error) {
	return newAdapter(db, opts...)
}

func newAdapter(db *sql.DB, opts ...Option) (*PostgresAdapter, error) {
	a := &PostgresAdapter{db: db, schema: DefaultSchema}
	for _, opt := range opts {
		opt(a)
	}
	if !identifierPattern.MatchString(a.schema) || len(a.schema) > 63 {
		return nil, fmt.Errorf("dugout/postgres: invalid schema name %q", a.schema)
	}
	return a, nil
}

// table returns the quoted, schema-qualified name of a table.
func (a *PostgresAdapter) table(name string) string {
	return pq.QuoteIdentifier(a.schema) + "." + pq.QuoteIdentifier(name)
}

// Initialize creates the schema and tables.
func (a *PostgresAdapter) Initialize(ctx context.Context) error {
	return a.Migrate(ctx)
}

// Migrate creates the schema, stream, event and snapshot tables when missing.
func (a *PostgresAdapter) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE SCHEMA IF NOT EXISTS ` + pq.QuoteIdentifier(a.schema),
		`CREATE TABLE IF NOT EXISTS ` + a.table("streams") + ` (
			stream_id   VARCHAR(500) PRIMARY KEY,
			category    VARCHAR(250) NOT NULL,
			version     BIGINT NOT NULL DEFAULT 0,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS ` + a.table("events") + ` (
			global_position BIGSERIAL PRIMARY KEY,
			stream_id       VARCHAR(500) NOT NULL,
			version         BIGINT NOT NULL,
			event_id        UUID NOT NULL DEFAULT gen_random_uuid(),
			event_type      VARCHAR(500) NOT NULL,
			data            BYTEA NOT NULL,
			metadata        JSONB,
			timestamp       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(stream_id, version)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_type ON ` + a.table("events") + `(event_type)`,
		`CREATE TABLE IF NOT EXISTS ` + a.table("snapshots") + ` (
			stream_id   VARCHAR(500) PRIMARY KEY,
			version     BIGINT NOT NULL,
			data        BYTEA NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("dugout/postgres: migration failed: %w", err)
		}
	}
	return nil
}

// Version returns the applied schema version, or 0 when the events table is missing.
func (a *PostgresAdapter) Version(ctx context.Context) (int, error) {
	var exists bool
	err := a.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = 'events'
		)`, a.schema).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("dugout/postgres: failed to read schema version: %w", err)
	}
	if !exists {
		return 0, nil
	}
	return schemaVersion, nil
}

// Append stores events inside one database transaction, locking the stream row.
func (a *PostgresAdapter) Append(ctx context.Context, streamID string, events []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	if a.closed {
		return nil, adapters.ErrAdapterClosed
	}
	if streamID == "" {
		return nil, adapters.ErrEmptyStreamID
	}
	if len(events) == 0 {
		return nil, adapters.ErrNoEvents
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("dugout/postgres: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current int64
	exists := true
	err = tx.QueryRowContext(ctx,
		`SELECT version FROM `+a.table("streams")+` WHERE stream_id = $1 FOR UPDATE`,
		streamID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		exists = false
	} else if err != nil {
		return nil, fmt.Errorf("dugout/postgres: failed to read stream version: %w", err)
	}

	if err := adapters.CheckVersion(streamID, expectedVersion, current, exists); err != nil {
		return nil, err
	}

	if !exists {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO `+a.table("streams")+` (stream_id, category, version) VALUES ($1, $2, 0)`,
			streamID, adapters.ExtractCategory(streamID))
		if err != nil {
			return nil, fmt.Errorf("dugout/postgres: failed to create stream: %w", err)
		}
	}

	insert := `INSERT INTO ` + a.table("events") + ` (stream_id, version, event_type, data, metadata)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING global_position, event_id, timestamp`

	stored := make([]adapters.StoredEvent, len(events))
	for i, ev := range events {
		current++
		meta, err := json.Marshal(ev.Metadata)
		if err != nil {
			return nil, fmt.Errorf("dugout/postgres: failed to marshal metadata: %w", err)
		}
		out := adapters.StoredEvent{
			StreamID: streamID,
			Type:     ev.Type,
			Data:     ev.Data,
			Metadata: ev.Metadata,
			Version:  current,
		}
		err = tx.QueryRowContext(ctx, insert, streamID, current, ev.Type, ev.Data, meta).
			Scan(&out.GlobalPosition, &out.ID, &out.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("dugout/postgres: failed to insert event: %w", err)
		}
		stored[i] = out
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE `+a.table("streams")+` SET version = $1, updated_at = NOW() WHERE stream_id = $2`,
		current, streamID)
	if err != nil {
		return nil, fmt.Errorf("dugout/postgres: failed to update stream version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("dugout/postgres: failed to commit: %w", err)
	}
	return stored, nil
}

// Load retrieves events from a stream with a version greater than fromVersion.
func (a *PostgresAdapter) Load(ctx context.Context, streamID string, fromVersion int64) ([]adapters.StoredEvent, error) {
	if a.closed {
		return nil, adapters.ErrAdapterClosed
	}
	if streamID == "" {
		return nil, adapters.ErrEmptyStreamID
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT global_position, event_id, stream_id, version, event_type, data, metadata, timestamp
		FROM `+a.table("events")+`
		WHERE stream_id = $1 AND version > $2
		ORDER BY version`, streamID, fromVersion)
	if err != nil {
		return nil, fmt.Errorf("dugout/postgres: failed to load events: %w", err)
	}
	defer rows.Close()

	events := make([]adapters.StoredEvent, 0)
	for rows.Next() {
		var ev adapters.StoredEvent
		var meta []byte
		if err := rows.Scan(&ev.GlobalPosition, &ev.ID, &ev.StreamID, &ev.Version,
			&ev.Type, &ev.Data, &meta, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("dugout/postgres: failed to scan event: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &ev.Metadata); err != nil {
				return nil, fmt.Errorf("dugout/postgres: failed to unmarshal metadata: %w", err)
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dugout/postgres: error iterating events: %w", err)
	}
	return events, nil
}

// GetStreamInfo returns metadata about a stream.
func (a *PostgresAdapter) GetStreamInfo(ctx context.Context, streamID string) (*adapters.StreamInfo, error) {
	if a.closed {
		return nil, adapters.ErrAdapterClosed
	}

	var info adapters.StreamInfo
	err := a.db.QueryRowContext(ctx, `
		SELECT s.stream_id, s.category, s.version, s.created_at, s.updated_at,
			(SELECT COUNT(*) FROM `+a.table("events")+` e WHERE e.stream_id = s.stream_id)
		FROM `+a.table("streams")+` s
		WHERE s.stream_id = $1`, streamID).
		Scan(&info.StreamID, &info.Category, &info.Version, &info.CreatedAt, &info.UpdatedAt, &info.EventCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, adapters.NewStreamNotFoundError(streamID)
	}
	if err != nil {
		return nil, fmt.Errorf("dugout/postgres: failed to get stream info: %w", err)
	}
	return &info, nil
}

// GetLastPosition returns the global position of the last stored event.
func (a *PostgresAdapter) GetLastPosition(ctx context.Context) (uint64, error) {
	if a.closed {
		return 0, adapters.ErrAdapterClosed
	}
	var pos sql.NullInt64
	if err := a.db.QueryRowContext(ctx, `SELECT MAX(global_position) FROM `+a.table("events")).Scan(&pos); err != nil {
		return 0, fmt.Errorf("dugout/postgres: failed to get last position: %w", err)
	}
	if !pos.Valid {
		return 0, nil
	}
	return uint64(pos.Int64), nil
}

// SaveSnapshot upserts a snapshot after a locked version check.
func (a *PostgresAdapter) SaveSnapshot(ctx context.Context, streamID string, expectedVersion, version int64, data []byte) error {
	if a.closed {
		return adapters.ErrAdapterClosed
	}
	if streamID == "" {
		return adapters.ErrEmptyStreamID
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("dugout/postgres: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current int64
	exists := true
	err = tx.QueryRowContext(ctx,
		`SELECT version FROM `+a.table("snapshots")+` WHERE stream_id = $1 FOR UPDATE`,
		streamID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		exists = false
	} else if err != nil {
		return fmt.Errorf("dugout/postgres: failed to read snapshot version: %w", err)
	}
	if err := adapters.CheckVersion(streamID, expectedVersion, current, exists); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO `+a.table("snapshots")+` (stream_id, version, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (stream_id) DO UPDATE SET
			version = EXCLUDED.version,
			data = EXCLUDED.data,
			updated_at = NOW()`, streamID, version, data)
	if err != nil {
		return fmt.Errorf("dugout/postgres: failed to save snapshot: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("dugout/postgres: failed to commit snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns nil, nil when no snapshot exists.
func (a *PostgresAdapter) LoadSnapshot(ctx context.Context, streamID string) (*adapters.SnapshotRecord, error) {
	if a.closed {
		return nil, adapters.ErrAdapterClosed
	}
	var rec adapters.SnapshotRecord
	err := a.db.QueryRowContext(ctx,
		`SELECT stream_id, version, data, updated_at FROM `+a.table("snapshots")+` WHERE stream_id = $1`,
		streamID).Scan(&rec.StreamID, &rec.Version, &rec.Data, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dugout/postgres: failed to load snapshot: %w", err)
	}
	return &rec, nil
}

// DeleteSnapshot removes the snapshot for the given stream.
func (a *PostgresAdapter) DeleteSnapshot(ctx context.Context, streamID string) error {
	if a.closed {
		return adapters.ErrAdapterClosed
	}
	if _, err := a.db.ExecContext(ctx,
		`DELETE FROM `+a.table("snapshots")+` WHERE stream_id = $1`, streamID); err != nil {
		return fmt.Errorf("dugout/postgres: failed to delete snapshot: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (a *PostgresAdapter) Ping(ctx context.Context) error {
	if a.closed {
		return adapters.ErrAdapterClosed
	}
	return a.db.PingContext(ctx)
}

// Close releases the connection pool.
func (a *PostgresAdapter) Close() error {
	a.closed = true
	return a.db.Close()
}

// DB returns the underlying connection pool.
func (a *PostgresAdapter) DB() *sql.DB {
	return a.db
}

// Schema returns the schema name.
func (a *PostgresAdapter) Schema() string {
	return a.schema
}
