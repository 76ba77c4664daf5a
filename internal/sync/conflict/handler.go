// Package conflict classifies and resolves sync-time disagreements
// between locally queued writes and current server state. A conflict is
// an expected outcome of concurrent multi-device editing, not a bug.
package conflict

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	apperrors "github.com/opsly/offline/internal/errors"
	"github.com/opsly/offline/internal/logging"
	"github.com/opsly/offline/internal/metrics"
	"github.com/opsly/offline/internal/models"
	"github.com/opsly/offline/internal/store"
)

// Notifier surfaces non-blocking user notifications, the toast
// equivalent. Blocking decisions are never pushed through it; those
// wait in the open-conflict registry for an explicit resolution call.
type Notifier interface {
	Notify(message string)
}

// LogNotifier is the default Notifier: it writes to the structured log.
type LogNotifier struct{}

func (LogNotifier) Notify(message string) {
	logging.Info("user notification", logging.Fields{"message": message})
}

// Resolution is the user's choice for a version conflict.
type Resolution string

const (
	ResolutionKeepMine   Resolution = "keep-mine"
	ResolutionKeepTheirs Resolution = "keep-theirs"
	ResolutionMerge      Resolution = "merge"
)

// Handler applies the per-kind conflict policy.
type Handler struct {
	store    *store.Store
	notifier Notifier

	mu   sync.Mutex
	open map[string]*models.Conflict // by write id, awaiting user decision
}

// NewHandler creates a Handler. A nil notifier falls back to LogNotifier.
func NewHandler(st *store.Store, notifier Notifier) *Handler {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Handler{
		store:    st,
		notifier: notifier,
		open:     make(map[string]*models.Conflict),
	}
}

// Handle consumes one conflict.
//
//   - duplicate: the server already reflects the intended outcome, so the
//     local write is discarded and the user told non-blockingly. Handling
//     the same conflict twice is a no-op: the second discard finds
//     nothing to delete.
//   - version: never auto-resolved. The write stays queryable (rejected,
//     with the conflict recorded) until ResolveVersion is called, because
//     silently overwriting a count risks incorrect inventory data.
//   - deleted, unauthorized: dead ends. The write cannot be replayed;
//     only discard is offered.
func (h *Handler) Handle(ctx context.Context, c *models.Conflict) error {
	metrics.Conflict(string(c.Type))
	logging.Warn("sync conflict", logging.Fields{
		"write_id":  c.WriteID,
		"kind":      c.Type,
		"operation": c.Operation,
	})

	switch c.Type {
	case models.ConflictDuplicate:
		deleted, err := h.store.DeleteWriteAndFiles(ctx, c.WriteID)
		if err != nil {
			return err
		}
		if deleted {
			h.notifier.Notify(fmt.Sprintf("%s was already completed on another device", c.Operation))
		}
		return nil

	case models.ConflictVersion:
		if err := h.store.MarkRejected(ctx, c.WriteID, "version conflict: "+c.Details.Message); err != nil {
			return err
		}
		h.mu.Lock()
		h.open[c.WriteID] = c
		h.mu.Unlock()
		return nil

	case models.ConflictDeleted:
		if err := h.store.MarkRejected(ctx, c.WriteID, "target no longer exists on the server"); err != nil {
			return err
		}
		h.register(c)
		h.notifier.Notify(fmt.Sprintf("%s could not sync: the item was deleted", c.Operation))
		return nil

	case models.ConflictUnauthorized:
		if err := h.store.MarkRejected(ctx, c.WriteID, "permission revoked before sync"); err != nil {
			return err
		}
		h.register(c)
		h.notifier.Notify(fmt.Sprintf("%s could not sync: you no longer have permission", c.Operation))
		return nil

	default:
		return apperrors.New(apperrors.ErrInvalid, "unknown conflict type "+string(c.Type))
	}
}

func (h *Handler) register(c *models.Conflict) {
	h.mu.Lock()
	h.open[c.WriteID] = c
	h.mu.Unlock()
}

// Open returns conflicts awaiting a user decision, including dead-end
// conflicts whose only offer is discard.
func (h *Handler) Open() []*models.Conflict {
	h.mu.Lock()
	defer h.mu.Unlock()
	conflicts := make([]*models.Conflict, 0, len(h.open))
	for _, c := range h.open {
		conflicts = append(conflicts, c)
	}
	return conflicts
}

// ResolveVersion applies the user's choice for an open version conflict.
//
//   - keep-mine: the write is re-admitted to the next sync pass.
//   - keep-theirs: the local write is discarded; server state stands.
//   - merge: the payload is replaced with merged before re-admission.
func (h *Handler) ResolveVersion(ctx context.Context, writeID string, choice Resolution, merged json.RawMessage) error {
	h.mu.Lock()
	c, ok := h.open[writeID]
	h.mu.Unlock()
	if !ok {
		return apperrors.New(apperrors.ErrNotFound, "no open conflict for write")
	}
	if c.Type != models.ConflictVersion {
		return apperrors.New(apperrors.ErrInvalid, "conflict is not a version conflict; only discard is offered")
	}

	switch choice {
	case ResolutionKeepMine:
		if err := h.store.ResetToPending(ctx, writeID); err != nil {
			return err
		}
	case ResolutionKeepTheirs:
		if _, err := h.store.DeleteWriteAndFiles(ctx, writeID); err != nil {
			return err
		}
		h.notifier.Notify("kept the other device's value")
	case ResolutionMerge:
		if len(merged) == 0 || !json.Valid(merged) {
			return apperrors.New(apperrors.ErrInvalid, "merge requires a valid merged payload")
		}
		if err := h.store.UpdatePayload(ctx, writeID, merged); err != nil {
			return err
		}
		if err := h.store.ResetToPending(ctx, writeID); err != nil {
			return err
		}
	default:
		return apperrors.New(apperrors.ErrInvalid, "unknown resolution "+string(choice))
	}

	h.Forget(writeID)
	logging.Info("version conflict resolved", logging.Fields{
		"write_id":   writeID,
		"resolution": choice,
	})
	return nil
}

// Forget drops a write from the open registry. Called after resolution
// and after an external discard of the write.
func (h *Handler) Forget(writeID string) {
	h.mu.Lock()
	delete(h.open, writeID)
	h.mu.Unlock()
}
