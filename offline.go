// Package offline is the offline-first client data layer for the Opsly
// suite: a durable local store that caches server reads, queues writes
// made while disconnected, tracks the device storage quota, and
// reconciles queued writes against the server when connectivity
// returns.
//
// All state flows through four public surfaces: QueueWrite, CacheRead,
// GetCachedRead and QueueFile. Everything else (quota, eviction,
// connectivity, sync, conflicts) happens behind them.
package offline

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/opsly/offline/internal/cache"
	"github.com/opsly/offline/internal/config"
	"github.com/opsly/offline/internal/connectivity"
	apperrors "github.com/opsly/offline/internal/errors"
	"github.com/opsly/offline/internal/files"
	"github.com/opsly/offline/internal/logging"
	"github.com/opsly/offline/internal/models"
	"github.com/opsly/offline/internal/queue"
	"github.com/opsly/offline/internal/quota"
	"github.com/opsly/offline/internal/store"
	syncengine "github.com/opsly/offline/internal/sync"
	"github.com/opsly/offline/internal/sync/conflict"
)

// Client is the application-facing handle on the offline layer. It is
// constructed with an explicit configuration (including the AppContext
// scoping every sync request); there are no ambient globals.
type Client struct {
	cfg *config.Config

	store     *store.Store // nil when the platform denied storage
	monitor   *quota.Monitor
	evictor   *quota.Evictor
	cache     *cache.Cache
	writes    *queue.Queue
	fileQueue *files.Queue
	conn      *connectivity.Monitor
	engine    *syncengine.Engine
	conflicts *conflict.Handler
}

// New builds a Client. When the platform denies durable storage the
// client still comes up, degraded: reads miss, caching is skipped, and
// write APIs return STORE_UNAVAILABLE instead of crashing the caller.
func New(cfg *config.Config, notifier conflict.Notifier) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "configuration", err)
	}
	logging.Init(os.Stdout, cfg.Log.Level, cfg.Log.Format)

	c := &Client{cfg: cfg}

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		logging.Error("durable store unavailable, operating without persistence", err, nil)
		return c, nil
	}

	c.store = st
	c.monitor = quota.NewMonitor(st, cfg.Storage.QuotaBytes,
		cfg.Storage.WarningPercent, cfg.Storage.CriticalPercent)
	c.evictor = quota.NewEvictor(st, c.monitor, cfg.Storage.MaxEvictionPasses)
	c.cache = cache.New(st, c.monitor, c.evictor,
		cfg.Storage.CriticalKeyPrefixes, cfg.Storage.LowPriorityModules)
	c.writes = queue.New(st)
	c.fileQueue = files.New(st, c.monitor, c.evictor)
	c.conflicts = conflict.NewHandler(st, notifier)
	c.engine = syncengine.NewEngine(st, c.conflicts, cfg.Context,
		cfg.Sync.BaseURL, cfg.Sync.RequestTimeout, cfg.Sync.RetryBudget)

	healthURL := ""
	if cfg.Sync.BaseURL != "" {
		healthURL = cfg.Sync.BaseURL + "/health"
	}
	c.conn = connectivity.New(cfg.Sync.PushEndpoint, healthURL, cfg.Sync.PollInterval)
	c.conn.OnTransition(func(online bool) {
		if online {
			c.engine.OnOnline(context.Background())
		}
	})

	return c, nil
}

// Persistent reports whether the durable store is available. False
// means the platform denied storage and the layer is running degraded.
func (c *Client) Persistent() bool {
	return c.store != nil
}

// Start begins connectivity monitoring and, through it, sync draining.
func (c *Client) Start(ctx context.Context) {
	if c.conn != nil {
		c.conn.Start(ctx)
	}
}

// Stop shuts down monitoring. Queued state stays durable for the next
// session.
func (c *Client) Stop() {
	if c.conn != nil {
		c.conn.Stop()
	}
}

// Close stops monitoring and closes the store.
func (c *Client) Close() error {
	c.Stop()
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}

// =====================================================
// Write queue
// =====================================================

// QueueWrite durably records a mutating operation for later sync and
// returns its write id.
func (c *Client) QueueWrite(ctx context.Context, operation, endpoint string, payload any, module string) (string, error) {
	if c.store == nil {
		return "", apperrors.New(apperrors.ErrStoreUnavailable, "write not persisted")
	}
	return c.writes.QueueWrite(ctx, operation, endpoint, payload, module)
}

// ListPendingWrites enumerates all queued writes, oldest first.
func (c *Client) ListPendingWrites(ctx context.Context) ([]*models.PendingWrite, error) {
	if c.store == nil {
		return nil, nil
	}
	return c.writes.ListPendingWrites(ctx)
}

// GetFailedWrites enumerates writes awaiting manual retry or discard.
func (c *Client) GetFailedWrites(ctx context.Context) ([]*models.PendingWrite, error) {
	if c.store == nil {
		return nil, nil
	}
	return c.writes.GetFailedWrites(ctx)
}

// RetryWrite re-admits a failed write to the next sync pass.
func (c *Client) RetryWrite(ctx context.Context, id string) error {
	if c.store == nil {
		return apperrors.New(apperrors.ErrStoreUnavailable, "no persisted writes")
	}
	return c.writes.RetryWrite(ctx, id)
}

// DiscardWrite irreversibly abandons a queued write and its files.
func (c *Client) DiscardWrite(ctx context.Context, id string) error {
	if c.store == nil {
		return apperrors.New(apperrors.ErrStoreUnavailable, "no persisted writes")
	}
	if err := c.writes.DiscardWrite(ctx, id); err != nil {
		return err
	}
	c.conflicts.Forget(id)
	return nil
}

// PendingCount returns the number of writes awaiting sync, for the
// persistent UI indicator shown while offline or while writes remain.
func (c *Client) PendingCount(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}
	return c.writes.PendingCount(ctx)
}

// =====================================================
// Read cache
// =====================================================

// CacheRead stores a server read result under key with a TTL. Caching
// is best-effort: storage failures are logged and swallowed.
func (c *Client) CacheRead(ctx context.Context, key string, value any, module string, ttl time.Duration) error {
	if c.store == nil {
		return nil
	}
	return c.cache.CacheRead(ctx, key, value, module, ttl)
}

// GetCachedRead returns the cached value for key, or absent once the
// TTL has elapsed.
func (c *Client) GetCachedRead(ctx context.Context, key string) (json.RawMessage, bool) {
	if c.store == nil {
		return nil, false
	}
	return c.cache.GetCachedRead(ctx, key)
}

// ClearCache empties the read cache only; writes and files survive.
func (c *Client) ClearCache(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	return c.cache.Clear(ctx)
}

// =====================================================
// File queue
// =====================================================

// QueueFile attaches a binary payload (a photo) to a pending write,
// stored out-of-line from the write's JSON payload.
func (c *Client) QueueFile(ctx context.Context, writeID string, blob []byte, filename, mimeType string) (string, error) {
	if c.store == nil {
		return "", apperrors.New(apperrors.ErrStoreUnavailable, "file not persisted")
	}
	return c.fileQueue.QueueFile(ctx, writeID, blob, filename, mimeType)
}

// =====================================================
// Sync and conflicts
// =====================================================

// Drain runs one sync pass immediately, independent of the
// connectivity monitor's schedule.
func (c *Client) Drain(ctx context.Context) (*syncengine.DrainResult, error) {
	if c.store == nil {
		return nil, apperrors.New(apperrors.ErrStoreUnavailable, "nothing to drain")
	}
	return c.engine.Drain(ctx)
}

// Online returns the connectivity monitor's current signal.
func (c *Client) Online() bool {
	if c.conn == nil {
		return false
	}
	return c.conn.Online()
}

// Suspend pauses connectivity probing while the app is not visible.
func (c *Client) Suspend() {
	if c.conn != nil {
		c.conn.Suspend()
	}
}

// Resume restarts probing when visibility returns.
func (c *Client) Resume() {
	if c.conn != nil {
		c.conn.Resume()
	}
}

// OpenConflicts lists conflicts awaiting a user decision.
func (c *Client) OpenConflicts() []*models.Conflict {
	if c.conflicts == nil {
		return nil
	}
	return c.conflicts.Open()
}

// ResolveVersionConflict applies the user's choice for a version
// conflict: keep-mine, keep-theirs, or merge with a merged payload.
func (c *Client) ResolveVersionConflict(ctx context.Context, writeID string, choice conflict.Resolution, merged json.RawMessage) error {
	if c.store == nil {
		return apperrors.New(apperrors.ErrStoreUnavailable, "no persisted writes")
	}
	return c.conflicts.ResolveVersion(ctx, writeID, choice, merged)
}

// =====================================================
// Storage
// =====================================================

// StorageStats reports usage against the quota budget and collection
// counts.
func (c *Client) StorageStats(ctx context.Context) (*models.StorageStats, error) {
	if c.store == nil {
		return nil, apperrors.New(apperrors.ErrStoreUnavailable, "no storage stats")
	}
	return c.monitor.StorageStats(ctx)
}

// ClearAll empties every collection. Intended for sign-out.
func (c *Client) ClearAll(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	return c.store.ClearAll(ctx)
}
