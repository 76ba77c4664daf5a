// Package metrics provides Prometheus metrics for the offline layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	writesQueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsly_offline_writes_queued_total",
			Help: "Total writes enqueued, by module",
		},
		[]string{"module"},
	)

	writesSynced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opsly_offline_writes_synced_total",
			Help: "Total writes acknowledged by the server",
		},
	)

	writesFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opsly_offline_writes_failed_total",
			Help: "Total transient sync failures",
		},
	)

	conflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsly_offline_conflicts_total",
			Help: "Total sync conflicts, by kind",
		},
		[]string{"kind"},
	)

	cacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opsly_offline_cache_hits_total",
			Help: "Total cached-read hits",
		},
	)

	cacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opsly_offline_cache_misses_total",
			Help: "Total cached-read misses (absent or expired)",
		},
	)

	evictedEntries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opsly_offline_cache_evicted_total",
			Help: "Total cached reads removed under storage pressure",
		},
	)

	pendingWrites = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "opsly_offline_pending_writes",
			Help: "Writes currently awaiting sync",
		},
	)

	storageUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "opsly_offline_storage_usage_bytes",
			Help: "Live bytes used by the local store",
		},
	)
)

func WriteQueued(module string) { writesQueued.WithLabelValues(module).Inc() }
func WriteSynced()              { writesSynced.Inc() }
func WriteFailed()              { writesFailed.Inc() }
func Conflict(kind string)      { conflictsTotal.WithLabelValues(kind).Inc() }
func CacheHit()                 { cacheHits.Inc() }
func CacheMiss()                { cacheMisses.Inc() }
func Evicted(n int)             { evictedEntries.Add(float64(n)) }

// The pending-writes gauge is maintained at the store's insert and
// delete chokepoints; StorageStats re-sets it as an absolute snapshot.
func PendingWritesInc() { pendingWrites.Inc() }
func PendingWritesDec() { pendingWrites.Dec() }

func SetPendingWrites(n int)      { pendingWrites.Set(float64(n)) }
func SetStorageUsage(bytes int64) { storageUsage.Set(float64(bytes)) }
