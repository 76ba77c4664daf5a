// Package store provides the local durable store backing the offline
// layer: one SQLite database with three collections (cached_reads,
// pending_writes, queued_files). The store is the sole mutator of those
// collections; every other component goes through it.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	apperrors "github.com/opsly/offline/internal/errors"
	"github.com/opsly/offline/internal/metrics"
)

// SchemaVersion is the current schema version, tracked via
// PRAGMA user_version.
const SchemaVersion = 1

// DBFileName is the database file created under the data directory.
const DBFileName = "offline.db"

// Store wraps the SQLite database with offline-layer configuration.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the offline database under dataDir.
// Opening is idempotent; the engine serializes schema upgrades, so
// concurrent opens are safe. A platform that denies storage access
// surfaces as STORE_UNAVAILABLE and callers operate without persistence.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStoreUnavailable, "create data directory", err)
	}

	dbPath := filepath.Join(dataDir, DBFileName)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStoreUnavailable, "open database", err)
	}

	// SQLite supports a single writer; serialize all access.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		// Incremental vacuum lets eviction return pages to the OS so
		// quota measurement reflects deletes.
		"PRAGMA auto_vacuum=INCREMENTAL;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, apperrors.Wrap(apperrors.ErrStoreUnavailable, "configure database", err)
		}
	}

	s := &Store{db: db, path: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return apperrors.Wrap(apperrors.ErrStoreUnavailable, "read schema version", err)
	}
	if version >= SchemaVersion {
		return nil
	}

	schema := `
	CREATE TABLE IF NOT EXISTS cached_reads (
		key       TEXT PRIMARY KEY,
		value     BLOB NOT NULL,
		module    TEXT NOT NULL,
		cached_at INTEGER NOT NULL,
		ttl_ms    INTEGER NOT NULL CHECK(ttl_ms > 0),
		priority  INTEGER NOT NULL DEFAULT 1
	);
	CREATE INDEX IF NOT EXISTS idx_cached_reads_evict ON cached_reads(priority, cached_at);

	CREATE TABLE IF NOT EXISTS pending_writes (
		id        TEXT PRIMARY KEY,
		operation TEXT NOT NULL,
		endpoint  TEXT NOT NULL,
		payload   BLOB NOT NULL,
		module    TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		status    TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending','syncing','failed','rejected')),
		error     TEXT NOT NULL DEFAULT '',
		retries   INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_pending_writes_order ON pending_writes(timestamp);
	CREATE INDEX IF NOT EXISTS idx_pending_writes_status ON pending_writes(status);

	CREATE TABLE IF NOT EXISTS queued_files (
		id         TEXT PRIMARY KEY,
		write_id   TEXT NOT NULL,
		blob       BLOB NOT NULL,
		filename   TEXT NOT NULL,
		mime_type  TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_queued_files_write ON queued_files(write_id);
	`

	tx, err := s.db.Begin()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStoreUnavailable, "begin migration", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(schema); err != nil {
		return apperrors.Wrap(apperrors.ErrStoreUnavailable, "create schema", err)
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion)); err != nil {
		return apperrors.Wrap(apperrors.ErrStoreUnavailable, "set schema version", err)
	}
	return tx.Commit()
}

// =====================================================
// Storage accounting
// =====================================================

// UsageBytes returns the live database size: allocated pages minus
// freelist pages. Deletes followed by ReclaimSpace shrink this figure.
func (s *Store) UsageBytes(ctx context.Context) (int64, error) {
	var pageCount, freelist, pageSize int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err != nil {
		return 0, fmt.Errorf("page_count: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "PRAGMA freelist_count").Scan(&freelist); err != nil {
		return 0, fmt.Errorf("freelist_count: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0, fmt.Errorf("page_size: %w", err)
	}
	return (pageCount - freelist) * pageSize, nil
}

// ReclaimSpace returns freelist pages to the OS after bulk deletes.
func (s *Store) ReclaimSpace(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA incremental_vacuum"); err != nil {
		return fmt.Errorf("incremental_vacuum: %w", err)
	}
	return nil
}

// Counts returns row counts for the three collections.
func (s *Store) Counts(ctx context.Context) (cachedReads, pendingWrites, queuedFiles int, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM cached_reads),
		       (SELECT COUNT(*) FROM pending_writes),
		       (SELECT COUNT(*) FROM queued_files)`)
	if err = row.Scan(&cachedReads, &pendingWrites, &queuedFiles); err != nil {
		return 0, 0, 0, fmt.Errorf("count collections: %w", err)
	}
	return cachedReads, pendingWrites, queuedFiles, nil
}

// ClearAll empties all three collections. Intended for sign-out and tests.
func (s *Store) ClearAll(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear: %w", err)
	}
	defer tx.Rollback()
	for _, table := range []string{"cached_reads", "pending_writes", "queued_files"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	metrics.SetPendingWrites(0)
	return nil
}
