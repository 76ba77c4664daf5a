// Package files provides the file queue: binary payloads (photos)
// attached to a pending write but stored out-of-line so the write's
// JSON payload stays small.
package files

import (
	"context"
	"time"

	apperrors "github.com/opsly/offline/internal/errors"
	"github.com/opsly/offline/internal/logging"
	"github.com/opsly/offline/internal/models"
	"github.com/opsly/offline/internal/quota"
	"github.com/opsly/offline/internal/store"
	"github.com/opsly/offline/internal/uuid"
)

// Queue is the public file-queue surface. Queued files share the
// pending write's eviction exemption and are deleted with it.
type Queue struct {
	store   *store.Store
	monitor *quota.Monitor
	evictor *quota.Evictor
	now     func() time.Time
}

// New creates a file Queue.
func New(st *store.Store, monitor *quota.Monitor, evictor *quota.Evictor) *Queue {
	return &Queue{store: st, monitor: monitor, evictor: evictor, now: time.Now}
}

// QueueFile attaches a binary payload to an existing pending write and
// returns the file id. Under storage pressure it first evicts cached
// reads; if the store is still critically full the file is refused with
// QUOTA_EXCEEDED rather than admitted into an unbounded store — the
// caller treats that as a soft failure.
func (q *Queue) QueueFile(ctx context.Context, writeID string, blob []byte, filename, mimeType string) (string, error) {
	if err := uuid.Validate(writeID); err != nil {
		return "", apperrors.Wrap(apperrors.ErrInvalid, "write id", err)
	}
	if len(blob) == 0 {
		return "", apperrors.New(apperrors.ErrInvalid, "file blob must not be empty")
	}

	// The reference back to the write is not a hard foreign key, but
	// attaching to a write that no longer exists is always a bug.
	if _, err := q.store.GetPendingWrite(ctx, writeID); err != nil {
		return "", err
	}

	pressure, err := q.monitor.CheckPressure(ctx)
	if err != nil {
		logging.Warn("storage pressure check failed, queueing file anyway", logging.Fields{
			"write_id": writeID, "error": err.Error(),
		})
	} else if pressure != models.PressureNormal {
		if err := q.evictor.Evict(ctx); err != nil && !apperrors.Is(err, apperrors.ErrQuotaExceeded) {
			return "", err
		}
		// Re-check: files never evict other writes or files, so a store
		// that is still critical refuses new blobs.
		if p, err := q.monitor.CheckPressure(ctx); err == nil && p == models.PressureCritical {
			return "", apperrors.New(apperrors.ErrQuotaExceeded, "storage critically full; file not queued")
		}
	}

	f := &models.QueuedFile{
		ID:        uuid.New(),
		WriteID:   writeID,
		Blob:      blob,
		Filename:  filename,
		MimeType:  mimeType,
		CreatedAt: q.now().UnixMilli(),
	}
	if err := q.store.InsertQueuedFile(ctx, f); err != nil {
		return "", apperrors.Wrap(apperrors.ErrQuotaExceeded, "store rejected file", err)
	}

	logging.Info("file queued", logging.Fields{
		"file_id":  f.ID,
		"write_id": writeID,
		"filename": filename,
		"bytes":    len(blob),
	})
	return f.ID, nil
}
