package models

// Pressure classifies current storage usage against the quota budget.
type Pressure string

const (
	PressureNormal   Pressure = "normal"
	PressureWarning  Pressure = "warning"  // usage >= 50% of quota
	PressureCritical Pressure = "critical" // usage >= 80% of quota
)

// StorageStats is a point-in-time snapshot of local storage usage.
type StorageStats struct {
	Usage              int64    `json:"usage"` // bytes
	Quota              int64    `json:"quota"` // bytes
	UsagePercent       float64  `json:"usage_percent"`
	Pressure           Pressure `json:"pressure"`
	CachedReadsCount   int      `json:"cached_reads_count"`
	PendingWritesCount int      `json:"pending_writes_count"`
	QueuedFilesCount   int      `json:"queued_files_count"`
}
