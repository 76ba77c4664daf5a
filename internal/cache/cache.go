// Package cache provides the durable read cache: server read results
// stored with a TTL and a module tag. Caching is best-effort; callers
// must tolerate absent entries.
package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	apperrors "github.com/opsly/offline/internal/errors"
	"github.com/opsly/offline/internal/logging"
	"github.com/opsly/offline/internal/metrics"
	"github.com/opsly/offline/internal/models"
	"github.com/opsly/offline/internal/quota"
	"github.com/opsly/offline/internal/store"
)

// Cache stores and retrieves cached server reads.
type Cache struct {
	store   *store.Store
	monitor *quota.Monitor
	evictor *quota.Evictor

	criticalKeyPrefixes []string
	lowPriorityModules  map[string]bool

	now func() time.Time
}

// New creates a Cache. criticalKeyPrefixes mark keys that must survive
// eviction before expiry; lowPriorityModules are evicted first.
func New(st *store.Store, monitor *quota.Monitor, evictor *quota.Evictor,
	criticalKeyPrefixes []string, lowPriorityModules []string) *Cache {

	low := make(map[string]bool, len(lowPriorityModules))
	for _, m := range lowPriorityModules {
		low[m] = true
	}
	return &Cache{
		store:               st,
		monitor:             monitor,
		evictor:             evictor,
		criticalKeyPrefixes: criticalKeyPrefixes,
		lowPriorityModules:  low,
		now:                 time.Now,
	}
}

// CacheRead upserts a read result under key. Before insertion it checks
// storage pressure and runs eviction at warning or worse. Storage
// failures are soft: logged, never propagated, since callers already
// tolerate absent caching. Only invalid input is returned as an error.
func (c *Cache) CacheRead(ctx context.Context, key string, value any, module string, ttl time.Duration) error {
	if key == "" {
		return apperrors.New(apperrors.ErrInvalid, "cache key must not be empty")
	}
	if ttl <= 0 {
		return apperrors.New(apperrors.ErrInvalid, "cache ttl must be positive")
	}

	raw, err := models.MarshalPayload(value)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "cache value", err)
	}

	pressure, err := c.monitor.CheckPressure(ctx)
	if err != nil {
		logging.Warn("storage pressure check failed, caching anyway", logging.Fields{
			"key": key, "error": err.Error(),
		})
	} else if pressure != models.PressureNormal {
		if err := c.evictor.Evict(ctx); err != nil {
			if apperrors.Is(err, apperrors.ErrQuotaExceeded) {
				logging.Warn("cache skipped: quota exhausted", logging.Fields{
					"key": key, "module": module,
				})
				return nil
			}
			logging.Error("eviction failed", err, logging.Fields{"key": key})
			return nil
		}
	}

	entry := &models.CachedRead{
		Key:      key,
		Value:    raw,
		Module:   module,
		CachedAt: c.now().UnixMilli(),
		TTLMs:    ttl.Milliseconds(),
		Priority: c.priorityFor(key, module),
	}
	if err := c.store.PutCachedRead(ctx, entry); err != nil {
		logging.Error("cache write failed", err, logging.Fields{"key": key, "module": module})
	}
	return nil
}

// GetCachedRead returns the cached value for key, or absent. Logical TTL
// expiry is enforced here even when the row has not been physically
// deleted yet; physical reclamation piggybacks on the eviction pass.
func (c *Cache) GetCachedRead(ctx context.Context, key string) (json.RawMessage, bool) {
	entry, err := c.store.GetCachedRead(ctx, key)
	if err != nil {
		if !apperrors.Is(err, apperrors.ErrNotFound) {
			logging.Error("cache read failed", err, logging.Fields{"key": key})
		}
		metrics.CacheMiss()
		return nil, false
	}
	if entry.Expired(c.now()) {
		metrics.CacheMiss()
		return nil, false
	}
	metrics.CacheHit()
	return entry.Value, true
}

// Clear empties the read cache. Writes and files are untouched.
func (c *Cache) Clear(ctx context.Context) error {
	return c.store.ClearCachedReads(ctx)
}

// priorityFor derives the eviction priority for an entry. Critical keys
// (current-shift attendance, current profile) outrank everything; low
// priority modules go first under pressure.
func (c *Cache) priorityFor(key, module string) models.CachePriority {
	for _, prefix := range c.criticalKeyPrefixes {
		if strings.HasPrefix(key, prefix) {
			return models.PriorityCritical
		}
	}
	if c.lowPriorityModules[module] {
		return models.PriorityLow
	}
	return models.PriorityNormal
}
