// Package models provides data model definitions for the offline layer.
package models

import (
	"encoding/json"
	"time"
)

// Module tags group cached reads and pending writes by product area.
// Used for grouping, reporting and eviction priority, never for dispatch.
const (
	ModuleTeamly  = "teamly"
	ModuleCheckly = "checkly"
	ModuleStockly = "stockly"
	ModuleAssetly = "assetly"
	ModuleMsgly   = "msgly"
	ModuleGeneral = "general"
	ModuleTesting = "testing"
)

// CachePriority ranks a cached read for eviction ordering.
// Higher values survive longer under storage pressure.
type CachePriority int

const (
	PriorityLow      CachePriority = 0
	PriorityNormal   CachePriority = 1
	PriorityCritical CachePriority = 2
)

// CachedRead is a durably stored snapshot of a server read,
// valid until cached_at + ttl_ms.
type CachedRead struct {
	Key      string          `db:"key" json:"key"`
	Value    json.RawMessage `db:"value" json:"value"`
	Module   string          `db:"module" json:"module"`
	CachedAt int64           `db:"cached_at" json:"cached_at"` // unix millis
	TTLMs    int64           `db:"ttl_ms" json:"ttl_ms"`
	Priority CachePriority   `db:"priority" json:"priority"`
}

// TableName returns the table name for CachedRead.
func (CachedRead) TableName() string {
	return "cached_reads"
}

// ExpiresAt returns the logical expiry instant in unix millis.
func (c *CachedRead) ExpiresAt() int64 {
	return c.CachedAt + c.TTLMs
}

// Expired reports whether the entry is past its TTL at the given instant.
func (c *CachedRead) Expired(now time.Time) bool {
	return now.UnixMilli() > c.ExpiresAt()
}
