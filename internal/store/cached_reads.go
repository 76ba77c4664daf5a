package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/opsly/offline/internal/errors"
	"github.com/opsly/offline/internal/models"
)

// PutCachedRead upserts a cached read by key.
func (s *Store) PutCachedRead(ctx context.Context, entry *models.CachedRead) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cached_reads (key, value, module, cached_at, ttl_ms, priority)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			module = excluded.module,
			cached_at = excluded.cached_at,
			ttl_ms = excluded.ttl_ms,
			priority = excluded.priority`,
		entry.Key, []byte(entry.Value), entry.Module, entry.CachedAt, entry.TTLMs, entry.Priority)
	if err != nil {
		return fmt.Errorf("put cached read %q: %w", entry.Key, err)
	}
	return nil
}

// GetCachedRead returns the entry for key, or NOT_FOUND.
func (s *Store) GetCachedRead(ctx context.Context, key string) (*models.CachedRead, error) {
	var entry models.CachedRead
	var value []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT key, value, module, cached_at, ttl_ms, priority
		FROM cached_reads WHERE key = ?`, key).
		Scan(&entry.Key, &value, &entry.Module, &entry.CachedAt, &entry.TTLMs, &entry.Priority)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.New(apperrors.ErrNotFound, "cached read not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get cached read %q: %w", key, err)
	}
	entry.Value = value
	return &entry, nil
}

// DeleteCachedRead removes the entry for key. Missing keys are a no-op.
func (s *Store) DeleteCachedRead(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM cached_reads WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete cached read %q: %w", key, err)
	}
	return nil
}

// DeleteCachedReads removes a batch of entries by key.
func (s *Store) DeleteCachedReads(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM cached_reads WHERE key IN ("+placeholders+")", args...); err != nil {
		return fmt.Errorf("delete cached reads: %w", err)
	}
	return nil
}

// ClearCachedReads empties the cached_reads collection.
func (s *Store) ClearCachedReads(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM cached_reads"); err != nil {
		return fmt.Errorf("clear cached reads: %w", err)
	}
	return nil
}

// DeleteExpiredCachedReads removes entries whose TTL elapsed before now
// (unix millis) and reports how many were deleted.
func (s *Store) DeleteExpiredCachedReads(ctx context.Context, nowMs int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM cached_reads WHERE cached_at + ttl_ms < ?", nowMs)
	if err != nil {
		return 0, fmt.Errorf("delete expired cached reads: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired rows affected: %w", err)
	}
	return n, nil
}

// EvictionCandidates returns up to limit cache keys at or below
// maxPriority, lowest priority first, oldest first within a priority.
func (s *Store) EvictionCandidates(ctx context.Context, maxPriority models.CachePriority, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key FROM cached_reads
		WHERE priority <= ?
		ORDER BY priority ASC, cached_at ASC
		LIMIT ?`, maxPriority, limit)
	if err != nil {
		return nil, fmt.Errorf("eviction candidates: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan eviction candidate: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// ListCachedReads returns all entries, value included, newest first.
func (s *Store) ListCachedReads(ctx context.Context) ([]*models.CachedRead, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value, module, cached_at, ttl_ms, priority
		FROM cached_reads ORDER BY cached_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list cached reads: %w", err)
	}
	defer rows.Close()

	var entries []*models.CachedRead
	for rows.Next() {
		var entry models.CachedRead
		var value []byte
		if err := rows.Scan(&entry.Key, &value, &entry.Module, &entry.CachedAt, &entry.TTLMs, &entry.Priority); err != nil {
			return nil, fmt.Errorf("scan cached read: %w", err)
		}
		entry.Value = value
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}
