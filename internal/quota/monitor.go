// Package quota tracks local storage usage against the device budget and
// relieves pressure by evicting cached reads. Pending writes and queued
// files are never eviction candidates.
package quota

import (
	"context"
	"fmt"

	"github.com/opsly/offline/internal/metrics"
	"github.com/opsly/offline/internal/models"
	"github.com/opsly/offline/internal/store"
)

// Monitor classifies storage pressure. Classification only: eviction is
// triggered by callers (the read cache's write path) when the band is
// warning or worse, never by a background daemon.
type Monitor struct {
	store           *store.Store
	quotaBytes      int64
	warningPercent  float64
	criticalPercent float64
}

// NewMonitor creates a Monitor with the given budget. quotaBytes should
// be the platform-reported quota where one exists and a conservative
// fallback where not (config.DefaultQuotaBytes, the 50MB mobile ceiling).
func NewMonitor(st *store.Store, quotaBytes int64, warningPercent, criticalPercent float64) *Monitor {
	return &Monitor{
		store:           st,
		quotaBytes:      quotaBytes,
		warningPercent:  warningPercent,
		criticalPercent: criticalPercent,
	}
}

// QuotaBytes returns the configured budget.
func (m *Monitor) QuotaBytes() int64 {
	return m.quotaBytes
}

// StorageStats returns a snapshot of usage, quota and collection counts.
func (m *Monitor) StorageStats(ctx context.Context) (*models.StorageStats, error) {
	usage, err := m.store.UsageBytes(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage usage: %w", err)
	}
	cached, writes, files, err := m.store.Counts(ctx)
	if err != nil {
		return nil, err
	}

	stats := &models.StorageStats{
		Usage:              usage,
		Quota:              m.quotaBytes,
		UsagePercent:       float64(usage) / float64(m.quotaBytes) * 100,
		Pressure:           m.Classify(usage),
		CachedReadsCount:   cached,
		PendingWritesCount: writes,
		QueuedFilesCount:   files,
	}
	metrics.SetStorageUsage(usage)
	metrics.SetPendingWrites(writes)
	return stats, nil
}

// CheckPressure classifies the current usage band.
func (m *Monitor) CheckPressure(ctx context.Context) (models.Pressure, error) {
	usage, err := m.store.UsageBytes(ctx)
	if err != nil {
		return models.PressureNormal, fmt.Errorf("storage usage: %w", err)
	}
	return m.Classify(usage), nil
}

// Classify maps a usage figure onto a pressure band.
func (m *Monitor) Classify(usage int64) models.Pressure {
	percent := float64(usage) / float64(m.quotaBytes) * 100
	switch {
	case percent >= m.criticalPercent:
		return models.PressureCritical
	case percent >= m.warningPercent:
		return models.PressureWarning
	default:
		return models.PressureNormal
	}
}

// belowWarning reports whether usage has dropped out of the warning band.
func (m *Monitor) belowWarning(usage int64) bool {
	return float64(usage)/float64(m.quotaBytes)*100 < m.warningPercent
}
