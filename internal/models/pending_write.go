package models

import (
	"encoding/json"
	"time"
)

// WriteStatus tracks a pending write through the sync lifecycle.
type WriteStatus string

const (
	WriteStatusPending WriteStatus = "pending"
	WriteStatusSyncing WriteStatus = "syncing"
	// Failed marks a transient sync failure; the write is eligible for
	// automatic re-admission on the next online transition.
	WriteStatusFailed WriteStatus = "failed"
	// Rejected marks a terminal server rejection (conflict, deleted
	// target, revoked permission). Rejected writes are never re-sent
	// automatically; they wait for a conflict resolution or a discard.
	WriteStatusRejected WriteStatus = "rejected"
)

// Known operation tags. The set is open: unknown operations carry an
// opaque payload and sync the same way.
const (
	OpClockIn        = "clock_in"
	OpClockOut       = "clock_out"
	OpCompleteTask   = "complete_task"
	OpLogTemperature = "log_temperature"
	OpStockCount     = "stock_count"
)

// PendingWrite is a durably queued mutating operation awaiting server
// acknowledgement. It is never evicted under storage pressure; it is
// removed only by a successful sync or an explicit user discard.
type PendingWrite struct {
	ID        string          `db:"id" json:"id"`
	Operation string          `db:"operation" json:"operation"`
	Endpoint  string          `db:"endpoint" json:"endpoint"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	Module    string          `db:"module" json:"module"`
	Timestamp int64           `db:"timestamp" json:"timestamp"` // unix millis, sync ordering key
	Status    WriteStatus     `db:"status" json:"status"`
	Error     string          `db:"error" json:"error,omitempty"`
	Retries   int             `db:"retries" json:"retries"`
}

// TableName returns the table name for PendingWrite.
func (PendingWrite) TableName() string {
	return "pending_writes"
}

// Time returns the enqueue timestamp as time.Time.
func (w *PendingWrite) Time() time.Time {
	return time.UnixMilli(w.Timestamp)
}
