// Package queue provides the durable write queue: mutating operations
// recorded while offline (or speculatively) and drained by the sync
// engine in enqueue order.
package queue

import (
	"context"
	"time"

	apperrors "github.com/opsly/offline/internal/errors"
	"github.com/opsly/offline/internal/logging"
	"github.com/opsly/offline/internal/metrics"
	"github.com/opsly/offline/internal/models"
	"github.com/opsly/offline/internal/store"
	"github.com/opsly/offline/internal/uuid"
)

// Queue is the public write-queue surface. All writes live in the
// durable store; the queue holds no state of its own.
type Queue struct {
	store *store.Store
	now   func() time.Time
}

// New creates a Queue over the given store.
func New(st *store.Store) *Queue {
	return &Queue{store: st, now: time.Now}
}

// QueueWrite durably records a mutating operation and returns its id.
// This always succeeds regardless of connectivity (subject only to the
// store being available at all); it is the one path by which a mutating
// user action is recorded while offline.
func (q *Queue) QueueWrite(ctx context.Context, operation, endpoint string, payload any, module string) (string, error) {
	if operation == "" {
		return "", apperrors.New(apperrors.ErrInvalid, "operation must not be empty")
	}
	if endpoint == "" {
		return "", apperrors.New(apperrors.ErrInvalid, "endpoint must not be empty")
	}

	raw, err := models.MarshalPayload(payload)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrInvalid, "write payload", err)
	}

	w := &models.PendingWrite{
		ID:        uuid.New(),
		Operation: operation,
		Endpoint:  endpoint,
		Payload:   raw,
		Module:    module,
		Timestamp: q.now().UnixMilli(),
		Status:    models.WriteStatusPending,
	}
	if err := q.store.InsertPendingWrite(ctx, w); err != nil {
		return "", err
	}

	metrics.WriteQueued(module)
	logging.Info("write queued", logging.Fields{
		"write_id":  w.ID,
		"operation": operation,
		"module":    module,
	})
	return w.ID, nil
}

// ListPendingWrites returns every queued write, oldest first.
func (q *Queue) ListPendingWrites(ctx context.Context) ([]*models.PendingWrite, error) {
	return q.store.ListAllWrites(ctx)
}

// GetFailedWrites returns writes that will not sync without user
// action, oldest first: transient failures and terminal rejections.
func (q *Queue) GetFailedWrites(ctx context.Context) ([]*models.PendingWrite, error) {
	return q.store.ListWritesByStatus(ctx, models.WriteStatusFailed, models.WriteStatusRejected)
}

// PendingCount returns the number of writes awaiting sync, for the
// UI's persistent offline indicator.
func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	_, writes, _, err := q.store.Counts(ctx)
	return writes, err
}

// RetryWrite re-admits a write to the next sync pass: status back to
// pending, error cleared. Retries are kept so lifetime attempts stay
// visible and cappable. A rejected write cannot be retried: the server
// already gave a terminal answer, so re-sending would repeat the same
// rejection. Rejected writes go through conflict resolution or discard.
func (q *Queue) RetryWrite(ctx context.Context, id string) error {
	if err := uuid.Validate(id); err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "write id", err)
	}
	w, err := q.store.GetPendingWrite(ctx, id)
	if err != nil {
		return err
	}
	if w.Status == models.WriteStatusRejected {
		return apperrors.New(apperrors.ErrSyncRejected,
			"write was rejected by the server; resolve the conflict or discard it")
	}
	return q.store.ResetToPending(ctx, id)
}

// DiscardWrite irreversibly deletes a write and any queued files that
// reference it. Discard is idempotent: a missing id is a no-op, not an
// error. A write that is currently syncing cannot be discarded; callers
// retry once the drain attempt resolves.
func (q *Queue) DiscardWrite(ctx context.Context, id string) error {
	if err := uuid.Validate(id); err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "write id", err)
	}

	w, err := q.store.GetPendingWrite(ctx, id)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		return err
	}
	if w.Status == models.WriteStatusSyncing {
		return apperrors.New(apperrors.ErrInvalid, "write is syncing; discard after the sync attempt resolves")
	}

	deleted, err := q.store.DeleteWriteAndFiles(ctx, id)
	if err != nil {
		return err
	}
	if deleted {
		logging.Info("write discarded", logging.Fields{
			"write_id":  id,
			"operation": w.Operation,
			"module":    w.Module,
		})
	}
	return nil
}
