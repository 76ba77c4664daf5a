package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	apperrors "github.com/opsly/offline/internal/errors"
	"github.com/opsly/offline/internal/models"
)

// InsertQueuedFile stores a binary attachment out-of-line from its write.
func (s *Store) InsertQueuedFile(ctx context.Context, f *models.QueuedFile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO queued_files (id, write_id, blob, filename, mime_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		f.ID, f.WriteID, f.Blob, f.Filename, f.MimeType, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert queued file: %w", err)
	}
	return nil
}

// GetQueuedFile returns the file with the given id, blob included.
func (s *Store) GetQueuedFile(ctx context.Context, id string) (*models.QueuedFile, error) {
	var f models.QueuedFile
	err := s.db.QueryRowContext(ctx, `
		SELECT id, write_id, blob, filename, mime_type, created_at
		FROM queued_files WHERE id = ?`, id).
		Scan(&f.ID, &f.WriteID, &f.Blob, &f.Filename, &f.MimeType, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.New(apperrors.ErrNotFound, "queued file not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get queued file %s: %w", id, err)
	}
	return &f, nil
}

// FilesForWrite returns every attachment referencing the given write,
// oldest first, blobs included. Called only when the write is about to
// be synced so blob data stays out of queue enumeration.
func (s *Store) FilesForWrite(ctx context.Context, writeID string) ([]*models.QueuedFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, write_id, blob, filename, mime_type, created_at
		FROM queued_files WHERE write_id = ? ORDER BY created_at ASC`, writeID)
	if err != nil {
		return nil, fmt.Errorf("files for write %s: %w", writeID, err)
	}
	defer rows.Close()

	var files []*models.QueuedFile
	for rows.Next() {
		var f models.QueuedFile
		if err := rows.Scan(&f.ID, &f.WriteID, &f.Blob, &f.Filename, &f.MimeType, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan queued file: %w", err)
		}
		files = append(files, &f)
	}
	return files, rows.Err()
}
