package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/opsly/offline/internal/errors"
	"github.com/opsly/offline/internal/metrics"
	"github.com/opsly/offline/internal/models"
)

const pendingWriteColumns = "id, operation, endpoint, payload, module, timestamp, status, error, retries"

func scanPendingWrite(row interface{ Scan(...any) error }) (*models.PendingWrite, error) {
	var w models.PendingWrite
	var payload []byte
	err := row.Scan(&w.ID, &w.Operation, &w.Endpoint, &payload, &w.Module,
		&w.Timestamp, &w.Status, &w.Error, &w.Retries)
	if err != nil {
		return nil, err
	}
	w.Payload = payload
	return &w, nil
}

// InsertPendingWrite records a new queued write.
func (s *Store) InsertPendingWrite(ctx context.Context, w *models.PendingWrite) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_writes (`+pendingWriteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.Operation, w.Endpoint, []byte(w.Payload), w.Module,
		w.Timestamp, w.Status, w.Error, w.Retries)
	if err != nil {
		return fmt.Errorf("insert pending write: %w", err)
	}
	metrics.PendingWritesInc()
	return nil
}

// GetPendingWrite returns the write with the given id, or NOT_FOUND.
func (s *Store) GetPendingWrite(ctx context.Context, id string) (*models.PendingWrite, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+pendingWriteColumns+" FROM pending_writes WHERE id = ?", id)
	w, err := scanPendingWrite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.New(apperrors.ErrNotFound, "pending write not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get pending write %s: %w", id, err)
	}
	return w, nil
}

// ListWritesByStatus returns writes in any of the given statuses,
// oldest first.
func (s *Store) ListWritesByStatus(ctx context.Context, statuses ...models.WriteStatus) ([]*models.PendingWrite, error) {
	if len(statuses) == 0 {
		return s.ListAllWrites(ctx)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}
	return s.listWrites(ctx,
		"SELECT "+pendingWriteColumns+" FROM pending_writes WHERE status IN ("+placeholders+") ORDER BY timestamp ASC, rowid ASC", args...)
}

// ListAllWrites returns every queued write, oldest first.
func (s *Store) ListAllWrites(ctx context.Context) ([]*models.PendingWrite, error) {
	return s.listWrites(ctx,
		"SELECT "+pendingWriteColumns+" FROM pending_writes ORDER BY timestamp ASC, rowid ASC")
}

func (s *Store) listWrites(ctx context.Context, query string, args ...any) ([]*models.PendingWrite, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pending writes: %w", err)
	}
	defer rows.Close()

	var writes []*models.PendingWrite
	for rows.Next() {
		w, err := scanPendingWrite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending write: %w", err)
		}
		writes = append(writes, w)
	}
	return writes, rows.Err()
}

// MarkSyncing transitions a write from pending to syncing. Returns
// NOT_FOUND if the write no longer exists or is not pending, so two
// drain loops cannot pick up the same write.
func (s *Store) MarkSyncing(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE pending_writes SET status = ? WHERE id = ? AND status = ?",
		models.WriteStatusSyncing, id, models.WriteStatusPending)
	if err != nil {
		return fmt.Errorf("mark syncing %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark syncing rows affected: %w", err)
	}
	if n == 0 {
		return apperrors.New(apperrors.ErrNotFound, "write is not pending")
	}
	return nil
}

// MarkFailed records a failed sync attempt: status becomes failed, the
// error message is stored, and the attempt count is incremented.
func (s *Store) MarkFailed(ctx context.Context, id string, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE pending_writes SET status = ?, error = ?, retries = retries + 1 WHERE id = ?",
		models.WriteStatusFailed, errMsg, id)
	if err != nil {
		return fmt.Errorf("mark failed %s: %w", id, err)
	}
	return nil
}

// MarkRejected records a terminal server rejection (conflict, deleted
// target or revoked permission): status rejected, error set, attempt
// count untouched since no amount of retrying changes the outcome.
// Rejected writes wait for a conflict resolution or a discard; they are
// never picked up by ReadmitFailed.
func (s *Store) MarkRejected(ctx context.Context, id string, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE pending_writes SET status = ?, error = ? WHERE id = ?",
		models.WriteStatusRejected, errMsg, id)
	if err != nil {
		return fmt.Errorf("mark rejected %s: %w", id, err)
	}
	return nil
}

// UpdatePayload replaces a write's payload. Used when the user resolves
// a version conflict with a merged value.
func (s *Store) UpdatePayload(ctx context.Context, id string, payload []byte) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE pending_writes SET payload = ? WHERE id = ?", payload, id)
	if err != nil {
		return fmt.Errorf("update payload %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update payload rows affected: %w", err)
	}
	if n == 0 {
		return apperrors.New(apperrors.ErrNotFound, "pending write not found")
	}
	return nil
}

// ResetToPending re-admits a write to the next sync pass: status back to
// pending, error cleared. The retry count is deliberately kept so callers
// can cap lifetime retries.
func (s *Store) ResetToPending(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE pending_writes SET status = ?, error = '' WHERE id = ?",
		models.WriteStatusPending, id)
	if err != nil {
		return fmt.Errorf("reset to pending %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reset rows affected: %w", err)
	}
	if n == 0 {
		return apperrors.New(apperrors.ErrNotFound, "pending write not found")
	}
	return nil
}

// ReadmitFailed moves failed writes with fewer than maxRetries attempts
// back to pending. Used on an offline-to-online transition for automatic
// re-attempts; writes past the budget wait for a manual retry. Rejected
// writes are terminal and stay put.
func (s *Store) ReadmitFailed(ctx context.Context, maxRetries int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE pending_writes SET status = ?, error = '' WHERE status = ? AND retries < ?",
		models.WriteStatusPending, models.WriteStatusFailed, maxRetries)
	if err != nil {
		return 0, fmt.Errorf("readmit failed writes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("readmit rows affected: %w", err)
	}
	return n, nil
}

// DeleteWriteAndFiles removes a write together with every queued file
// that references it, in one transaction. Deleting an id that is already
// gone is a no-op; the returned bool reports whether a row was removed.
func (s *Store) DeleteWriteAndFiles(ctx context.Context, id string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM queued_files WHERE write_id = ?", id); err != nil {
		return false, fmt.Errorf("delete queued files for %s: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM pending_writes WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete pending write %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete: %w", err)
	}
	if n > 0 {
		metrics.PendingWritesDec()
	}
	return n > 0, nil
}
