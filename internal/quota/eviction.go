package quota

import (
	"context"
	"time"

	apperrors "github.com/opsly/offline/internal/errors"
	"github.com/opsly/offline/internal/logging"
	"github.com/opsly/offline/internal/metrics"
	"github.com/opsly/offline/internal/models"
	"github.com/opsly/offline/internal/store"
)

// evictBatchSize bounds how many cache keys one pass removes before
// re-measuring usage.
const evictBatchSize = 32

// Evictor removes cached reads under storage pressure. It only ever
// touches the cached_reads collection: if pressure cannot be relieved
// without touching pending writes or queued files, it stops and surfaces
// QUOTA_EXCEEDED instead of violating that invariant.
type Evictor struct {
	store     *store.Store
	monitor   *Monitor
	maxPasses int
	now       func() time.Time
}

// NewEvictor creates an Evictor. maxPasses bounds the eviction loop so a
// pathological quota state cannot spin.
func NewEvictor(st *store.Store, monitor *Monitor, maxPasses int) *Evictor {
	if maxPasses < 1 {
		maxPasses = 1
	}
	return &Evictor{
		store:     st,
		monitor:   monitor,
		maxPasses: maxPasses,
		now:       time.Now,
	}
}

// Evict removes cached reads until usage drops below the warning
// threshold or the pass budget is exhausted. Policy order: expired
// entries first, then lowest-priority modules, then oldest entries
// within equal priority. Critical entries are removed only once nothing
// else is left to give back.
func (e *Evictor) Evict(ctx context.Context) error {
	// Expired entries go first regardless of priority; their logical
	// expiry has already happened at the read boundary.
	expired, err := e.store.DeleteExpiredCachedReads(ctx, e.now().UnixMilli())
	if err != nil {
		return err
	}
	if expired > 0 {
		metrics.Evicted(int(expired))
		logging.Debug("evicted expired cache entries", logging.Fields{"count": expired})
	}

	removed := int64(expired)
	for pass := 0; pass < e.maxPasses; pass++ {
		if err := e.store.ReclaimSpace(ctx); err != nil {
			return err
		}
		usage, err := e.store.UsageBytes(ctx)
		if err != nil {
			return err
		}
		if e.monitor.belowWarning(usage) {
			if removed > 0 {
				logging.Info("storage pressure relieved", logging.Fields{
					"evicted": removed,
					"usage":   usage,
				})
			}
			return nil
		}

		// Unexpired critical entries are spared while any lower band
		// remains; a final critical pass is still preferable to failing
		// the caller's insert outright.
		maxPriority := models.PriorityNormal
		if pass == e.maxPasses-1 {
			maxPriority = models.PriorityCritical
		}
		keys, err := e.store.EvictionCandidates(ctx, maxPriority, evictBatchSize)
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			// Only pending writes and queued files remain. They are
			// exempt, so pressure cannot be relieved here.
			break
		}
		if err := e.store.DeleteCachedReads(ctx, keys); err != nil {
			return err
		}
		removed += int64(len(keys))
		metrics.Evicted(len(keys))
	}

	if err := e.store.ReclaimSpace(ctx); err != nil {
		return err
	}
	usage, err := e.store.UsageBytes(ctx)
	if err != nil {
		return err
	}
	if e.monitor.belowWarning(usage) {
		return nil
	}
	logging.Warn("eviction could not relieve storage pressure", logging.Fields{
		"evicted": removed,
		"usage":   usage,
		"quota":   e.monitor.QuotaBytes(),
	})
	return apperrors.New(apperrors.ErrQuotaExceeded,
		"storage pressure persists after eviction; pending writes and queued files are exempt")
}
