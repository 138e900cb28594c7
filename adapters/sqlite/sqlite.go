// Package sqlite provides an embedded event log and snapshot store backed by
// the pure-Go modernc.org/sqlite driver. It is the default store for the CLI.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/AshkanYarmoradi/go-dugout/adapters"
	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

var (
	_ adapters.Store         = (*Store)(nil)
	_ adapters.HealthChecker = (*Store)(nil)
	_ adapters.Migrator      = (*Store)(nil)
)

const schemaVersion = 1

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS streams (
		stream_id  TEXT PRIMARY KEY,
		category   TEXT NOT NULL,
		version    INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		global_position INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id        TEXT NOT NULL UNIQUE,
		stream_id       TEXT NOT NULL,
		version         INTEGER NOT NULL,
		event_type      TEXT NOT NULL,
		data            BLOB NOT NULL,
		metadata        TEXT,
		timestamp       INTEGER NOT NULL,
		UNIQUE(stream_id, version)
	)`,
	`CREATE TABLE IF NOT EXISTS snapshots (
		stream_id  TEXT PRIMARY KEY,
		version    INTEGER NOT NULL,
		data       BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS idempotency (
		key          TEXT PRIMARY KEY,
		command_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL DEFAULT '',
		version      INTEGER NOT NULL DEFAULT 0,
		response     BLOB,
		error        TEXT NOT NULL DEFAULT '',
		success      INTEGER NOT NULL DEFAULT 0,
		processed_at INTEGER NOT NULL,
		expires_at   INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`,
}

// Store persists events and snapshots in a single SQLite file.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// Open opens (creating if needed) the database at path and applies migrations.
// Use ":memory:" for a private in-memory database.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("dugout/sqlite: storage path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("dugout/sqlite: open: %w", err)
	}
	// One writer at a time; this also keeps ":memory:" on a single connection.
	db.SetMaxOpenConns(1)

	s := &Store{sqlDB: db, now: time.Now}
	if err := s.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Initialize applies migrations.
func (s *Store) Initialize(ctx context.Context) error {
	return s.Migrate(ctx)
}

// Migrate creates the tables when missing and records the schema version.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.sqlDB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("dugout/sqlite: run migrations: %w", err)
		}
	}
	var n int
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_version`).Scan(&n); err != nil {
		return fmt.Errorf("dugout/sqlite: read schema version: %w", err)
	}
	if n == 0 {
		if _, err := s.sqlDB.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, schemaVersion); err != nil {
			return fmt.Errorf("dugout/sqlite: write schema version: %w", err)
		}
	}
	return nil
}

// Version returns the recorded schema version.
func (s *Store) Version(ctx context.Context) (int, error) {
	var v int
	err := s.sqlDB.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("dugout/sqlite: read schema version: %w", err)
	}
	return v, nil
}

// Append stores events in one transaction.
func (s *Store) Append(ctx context.Context, streamID string, events []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if streamID == "" {
		return nil, adapters.ErrEmptyStreamID
	}
	if len(events) == 0 {
		return nil, adapters.ErrNoEvents
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("dugout/sqlite: begin tx: %w", err)
	}
	defer tx.Rollback()

	var current int64
	exists := true
	err = tx.QueryRowContext(ctx, `SELECT version FROM streams WHERE stream_id = ?`, streamID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		exists = false
	} else if err != nil {
		return nil, fmt.Errorf("dugout/sqlite: read stream version: %w", err)
	}
	if err := adapters.CheckVersion(streamID, expectedVersion, current, exists); err != nil {
		return nil, err
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	if !exists {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO streams (stream_id, category, version, created_at, updated_at) VALUES (?, ?, 0, ?, ?)`,
			streamID, adapters.ExtractCategory(streamID), toMillis(now), toMillis(now))
		if err != nil {
			if isUniqueViolation(err) {
				return nil, adapters.NewConcurrencyError(streamID, expectedVersion, current)
			}
			return nil, fmt.Errorf("dugout/sqlite: create stream: %w", err)
		}
	}

	stored := make([]adapters.StoredEvent, len(events))
	for i, ev := range events {
		current++
		meta, err := json.Marshal(ev.Metadata)
		if err != nil {
			return nil, fmt.Errorf("dugout/sqlite: marshal metadata: %w", err)
		}
		id := uuid.NewString()
		res, err := tx.ExecContext(ctx,
			`INSERT INTO events (event_id, stream_id, version, event_type, data, metadata, timestamp)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, streamID, current, ev.Type, ev.Data, string(meta), toMillis(now))
		if err != nil {
			if isUniqueViolation(err) {
				return nil, adapters.NewConcurrencyError(streamID, expectedVersion, current-1)
			}
			return nil, fmt.Errorf("dugout/sqlite: insert event: %w", err)
		}
		pos, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("dugout/sqlite: read position: %w", err)
		}
		stored[i] = adapters.StoredEvent{
			ID:             id,
			StreamID:       streamID,
			Type:           ev.Type,
			Data:           ev.Data,
			Metadata:       ev.Metadata,
			Version:        current,
			GlobalPosition: uint64(pos),
			Timestamp:      now,
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE streams SET version = ?, updated_at = ? WHERE stream_id = ?`,
		current, toMillis(now), streamID); err != nil {
		return nil, fmt.Errorf("dugout/sqlite: update stream: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("dugout/sqlite: commit: %w", err)
	}
	return stored, nil
}

// Load retrieves events from a stream with a version greater than fromVersion.
func (s *Store) Load(ctx context.Context, streamID string, fromVersion int64) ([]adapters.StoredEvent, error) {
	if streamID == "" {
		return nil, adapters.ErrEmptyStreamID
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT global_position, event_id, stream_id, version, event_type, data, metadata, timestamp
		 FROM events WHERE stream_id = ? AND version > ? ORDER BY version`, streamID, fromVersion)
	if err != nil {
		return nil, fmt.Errorf("dugout/sqlite: load events: %w", err)
	}
	defer rows.Close()

	events := make([]adapters.StoredEvent, 0)
	for rows.Next() {
		var (
			ev   adapters.StoredEvent
			pos  int64
			meta sql.NullString
			ts   int64
		)
		if err := rows.Scan(&pos, &ev.ID, &ev.StreamID, &ev.Version, &ev.Type, &ev.Data, &meta, &ts); err != nil {
			return nil, fmt.Errorf("dugout/sqlite: scan event: %w", err)
		}
		ev.GlobalPosition = uint64(pos)
		ev.Timestamp = fromMillis(ts)
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &ev.Metadata); err != nil {
				return nil, fmt.Errorf("dugout/sqlite: unmarshal metadata: %w", err)
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// GetStreamInfo returns metadata about a stream.
func (s *Store) GetStreamInfo(ctx context.Context, streamID string) (*adapters.StreamInfo, error) {
	var (
		info             adapters.StreamInfo
		created, updated int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT s.stream_id, s.category, s.version, s.created_at, s.updated_at,
		        (SELECT COUNT(*) FROM events e WHERE e.stream_id = s.stream_id)
		 FROM streams s WHERE s.stream_id = ?`, streamID).
		Scan(&info.StreamID, &info.Category, &info.Version, &created, &updated, &info.EventCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, adapters.NewStreamNotFoundError(streamID)
	}
	if err != nil {
		return nil, fmt.Errorf("dugout/sqlite: stream info: %w", err)
	}
	info.CreatedAt = fromMillis(created)
	info.UpdatedAt = fromMillis(updated)
	return &info, nil
}

// GetLastPosition returns the global position of the last stored event.
func (s *Store) GetLastPosition(ctx context.Context) (uint64, error) {
	var pos sql.NullInt64
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT MAX(global_position) FROM events`).Scan(&pos); err != nil {
		return 0, fmt.Errorf("dugout/sqlite: last position: %w", err)
	}
	if !pos.Valid {
		return 0, nil
	}
	return uint64(pos.Int64), nil
}

// SaveSnapshot stores a snapshot after checking expectedVersion.
func (s *Store) SaveSnapshot(ctx context.Context, streamID string, expectedVersion, version int64, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if streamID == "" {
		return adapters.ErrEmptyStreamID
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("dugout/sqlite: begin tx: %w", err)
	}
	defer tx.Rollback()

	var current int64
	exists := true
	err = tx.QueryRowContext(ctx, `SELECT version FROM snapshots WHERE stream_id = ?`, streamID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		exists = false
	} else if err != nil {
		return fmt.Errorf("dugout/sqlite: read snapshot version: %w", err)
	}
	if err := adapters.CheckVersion(streamID, expectedVersion, current, exists); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (stream_id, version, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(stream_id) DO UPDATE SET version = excluded.version, data = excluded.data, updated_at = excluded.updated_at`,
		streamID, version, data, toMillis(s.now())); err != nil {
		return fmt.Errorf("dugout/sqlite: save snapshot: %w", err)
	}
	return tx.Commit()
}

// LoadSnapshot returns nil, nil when no snapshot exists.
func (s *Store) LoadSnapshot(ctx context.Context, streamID string) (*adapters.SnapshotRecord, error) {
	var (
		rec     adapters.SnapshotRecord
		updated int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT stream_id, version, data, updated_at FROM snapshots WHERE stream_id = ?`, streamID).
		Scan(&rec.StreamID, &rec.Version, &rec.Data, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dugout/sqlite: load snapshot: %w", err)
	}
	rec.UpdatedAt = fromMillis(updated)
	return &rec, nil
}

// DeleteSnapshot removes the snapshot for a stream.
func (s *Store) DeleteSnapshot(ctx context.Context, streamID string) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM snapshots WHERE stream_id = ?`, streamID); err != nil {
		return fmt.Errorf("dugout/sqlite: delete snapshot: %w", err)
	}
	return nil
}

// Ping checks that the database handle is usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
