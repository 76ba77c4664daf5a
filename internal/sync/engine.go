// Package sync drains the write queue against the server when
// connectivity is available.
package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/opsly/offline/internal/config"
	apperrors "github.com/opsly/offline/internal/errors"
	"github.com/opsly/offline/internal/logging"
	"github.com/opsly/offline/internal/metrics"
	"github.com/opsly/offline/internal/models"
	"github.com/opsly/offline/internal/store"
	"github.com/opsly/offline/internal/sync/conflict"
)

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Attempted int
	Synced    int
	Conflicts int
	Failed    int
}

// Engine drains pending writes strictly oldest-first. Writes are
// processed sequentially, never in parallel: FIFO order is what keeps a
// clock-in syncing before the later clock-out for the same shift, and
// keeps two mutations of one backend record from racing each other.
type Engine struct {
	store       *store.Store
	handler     *conflict.Handler
	appCtx      config.AppContext
	baseURL     string
	client      *http.Client
	retryBudget int

	mu       sync.Mutex
	draining bool
}

// NewEngine creates an Engine. baseURL prefixes every write's endpoint.
func NewEngine(st *store.Store, handler *conflict.Handler, appCtx config.AppContext,
	baseURL string, timeout time.Duration, retryBudget int) *Engine {
	return &Engine{
		store:       st,
		handler:     handler,
		appCtx:      appCtx,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		client:      &http.Client{Timeout: timeout},
		retryBudget: retryBudget,
	}
}

// OnOnline is the connectivity monitor's transition hook: failed writes
// still inside the retry budget are re-admitted, then a drain runs.
func (e *Engine) OnOnline(ctx context.Context) {
	readmitted, err := e.store.ReadmitFailed(ctx, e.retryBudget)
	if err != nil {
		logging.Error("readmit failed writes", err, nil)
	} else if readmitted > 0 {
		logging.Info("re-admitted failed writes for automatic retry", logging.Fields{
			"count": readmitted,
		})
	}
	if _, err := e.Drain(ctx); err != nil {
		logging.Error("drain after online transition", err, nil)
	}
}

// Drain performs one sequential pass over all pending writes. Only one
// drain runs at a time; a concurrent call returns immediately with an
// empty result. Per-write failures are contained so one bad write never
// blocks the rest of the queue.
func (e *Engine) Drain(ctx context.Context) (*DrainResult, error) {
	e.mu.Lock()
	if e.draining {
		e.mu.Unlock()
		return &DrainResult{}, nil
	}
	e.draining = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.draining = false
		e.mu.Unlock()
	}()

	writes, err := e.store.ListWritesByStatus(ctx, models.WriteStatusPending)
	if err != nil {
		return nil, err
	}
	if len(writes) == 0 {
		return &DrainResult{}, nil
	}

	logging.Info("drain pass started", logging.Fields{"pending": len(writes)})
	result := &DrainResult{}

	for _, w := range writes {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Attempted++
		e.syncOne(ctx, w, result)
	}

	logging.Info("drain pass finished", logging.Fields{
		"attempted": result.Attempted,
		"synced":    result.Synced,
		"conflicts": result.Conflicts,
		"failed":    result.Failed,
	})
	return result, nil
}

// syncOne pushes a single write through its state machine:
// pending -> syncing -> deleted on success, failed otherwise.
func (e *Engine) syncOne(ctx context.Context, w *models.PendingWrite, result *DrainResult) {
	if err := e.store.MarkSyncing(ctx, w.ID); err != nil {
		// Raced with a discard or another transition; skip.
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return
		}
		logging.Error("mark syncing", err, logging.Fields{"write_id": w.ID})
		result.Failed++
		return
	}

	files, err := e.store.FilesForWrite(ctx, w.ID)
	if err != nil {
		e.failTransient(ctx, w, err, result)
		return
	}

	outcome := e.send(ctx, w, files)
	switch {
	case outcome.err != nil:
		e.failTransient(ctx, w, outcome.err, result)

	case outcome.conflict != nil:
		result.Conflicts++
		if err := e.handler.Handle(ctx, outcome.conflict); err != nil {
			logging.Error("conflict handling", err, logging.Fields{"write_id": w.ID})
		}

	default:
		// A discard racing the response is guarded by the existence
		// check inside the delete; a second delete is a no-op.
		if _, err := e.store.DeleteWriteAndFiles(ctx, w.ID); err != nil {
			logging.Error("delete synced write", err, logging.Fields{"write_id": w.ID})
			return
		}
		result.Synced++
		metrics.WriteSynced()
		logging.Info("write synced", logging.Fields{
			"write_id":  w.ID,
			"operation": w.Operation,
			"module":    w.Module,
		})
	}
}

func (e *Engine) failTransient(ctx context.Context, w *models.PendingWrite, cause error, result *DrainResult) {
	result.Failed++
	metrics.WriteFailed()
	if err := e.store.MarkFailed(ctx, w.ID, cause.Error()); err != nil {
		logging.Error("mark failed", err, logging.Fields{"write_id": w.ID})
		return
	}
	logging.Warn("write sync failed", logging.Fields{
		"write_id":  w.ID,
		"operation": w.Operation,
		"retries":   w.Retries + 1,
		"error":     cause.Error(),
	})
}

// sendOutcome is the tri-state result of one network attempt.
type sendOutcome struct {
	err      error            // transient failure; retryable
	conflict *models.Conflict // recognized rejection; routed to the handler
}

// conflictBody is the structured 409 error body the server returns.
type conflictBody struct {
	Conflict   string          `json:"conflict"`
	YourValue  json.RawMessage `json:"your_value"`
	TheirValue json.RawMessage `json:"their_value"`
	UpdatedBy  string          `json:"updated_by"`
	UpdatedAt  int64           `json:"updated_at"`
	Message    string          `json:"message"`
}

// send performs the network call for one write, resolving queued file
// blobs into a multipart request when present.
func (e *Engine) send(ctx context.Context, w *models.PendingWrite, files []*models.QueuedFile) sendOutcome {
	req, err := e.buildRequest(ctx, w, files)
	if err != nil {
		return sendOutcome{err: err}
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return sendOutcome{err: apperrors.Wrap(apperrors.ErrSyncTransient, "network", err)}
	}
	defer resp.Body.Close()

	return e.classify(w, resp)
}

func (e *Engine) buildRequest(ctx context.Context, w *models.PendingWrite, files []*models.QueuedFile) (*http.Request, error) {
	url := e.baseURL + w.Endpoint

	var req *http.Request
	var err error
	if len(files) == 0 {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(w.Payload))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
	} else {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		if err := mw.WriteField("payload", string(w.Payload)); err != nil {
			return nil, fmt.Errorf("multipart payload: %w", err)
		}
		for _, f := range files {
			part, err := mw.CreateFormFile("photo", f.Filename)
			if err != nil {
				return nil, fmt.Errorf("multipart file part: %w", err)
			}
			if _, err := part.Write(f.Blob); err != nil {
				return nil, fmt.Errorf("multipart file body: %w", err)
			}
		}
		if err := mw.Close(); err != nil {
			return nil, fmt.Errorf("multipart close: %w", err)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
	}

	// The write id doubles as the idempotency key: a retried request the
	// server already applied comes back as a duplicate conflict.
	req.Header.Set("X-Opsly-Write-Id", w.ID)
	req.Header.Set("X-Opsly-Operation", w.Operation)
	req.Header.Set("X-Opsly-Company", e.appCtx.CompanyID)
	req.Header.Set("X-Opsly-Site", e.appCtx.SiteID)
	req.Header.Set("X-Opsly-User", e.appCtx.UserID)
	req.Header.Set("X-Opsly-Device", e.appCtx.DeviceID)
	return req, nil
}

// classify maps the server response onto success, conflict, or
// transient failure.
func (e *Engine) classify(w *models.PendingWrite, resp *http.Response) sendOutcome {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return sendOutcome{}
	}

	now := time.Now().UnixMilli()
	switch resp.StatusCode {
	case http.StatusConflict:
		var body conflictBody
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		kind := models.ConflictVersion // unparseable 409s need a human; never auto-discard
		details := models.ConflictDetails{Message: "server reported a conflict"}
		if err := json.Unmarshal(data, &body); err == nil && body.Conflict != "" {
			if body.Conflict == "duplicate" {
				kind = models.ConflictDuplicate
			}
			details = models.ConflictDetails{
				YourValue:  body.YourValue,
				TheirValue: body.TheirValue,
				UpdatedBy:  body.UpdatedBy,
				UpdatedAt:  body.UpdatedAt,
				Message:    body.Message,
			}
		}
		return sendOutcome{conflict: &models.Conflict{
			WriteID:    w.ID,
			Type:       kind,
			Operation:  w.Operation,
			Details:    details,
			DetectedAt: now,
		}}

	case http.StatusNotFound, http.StatusGone:
		return sendOutcome{conflict: &models.Conflict{
			WriteID:    w.ID,
			Type:       models.ConflictDeleted,
			Operation:  w.Operation,
			Details:    models.ConflictDetails{Message: "target entity no longer exists"},
			DetectedAt: now,
		}}

	case http.StatusUnauthorized, http.StatusForbidden:
		return sendOutcome{conflict: &models.Conflict{
			WriteID:    w.ID,
			Type:       models.ConflictUnauthorized,
			Operation:  w.Operation,
			Details:    models.ConflictDetails{Message: "permission revoked"},
			DetectedAt: now,
		}}

	default:
		// 5xx and remaining 4xx: retryable until the budget runs out,
		// then held as failed for a manual decision.
		return sendOutcome{err: apperrors.New(apperrors.ErrSyncTransient,
			fmt.Sprintf("server returned %d", resp.StatusCode))}
	}
}
