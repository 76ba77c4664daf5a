package models

import (
	"encoding/json"
	"time"
)

// ConflictType classifies a sync-time disagreement between a locally
// queued write and current server state.
type ConflictType string

const (
	// ConflictVersion: a quantitative value was updated by someone else
	// with a newer timestamp. Requires an explicit user choice.
	ConflictVersion ConflictType = "version"
	// ConflictDuplicate: the same logical action was already completed by
	// another actor or device. Auto-resolved by discarding the local write.
	ConflictDuplicate ConflictType = "duplicate"
	// ConflictDeleted: the target entity no longer exists server-side.
	ConflictDeleted ConflictType = "deleted"
	// ConflictUnauthorized: the actor's permission was revoked between
	// enqueue and sync. Non-retryable.
	ConflictUnauthorized ConflictType = "unauthorized"
)

// ConflictDetails carries kind-specific context for user presentation.
type ConflictDetails struct {
	YourValue  json.RawMessage `json:"your_value,omitempty"`
	TheirValue json.RawMessage `json:"their_value,omitempty"`
	UpdatedBy  string          `json:"updated_by,omitempty"`
	UpdatedAt  int64           `json:"updated_at,omitempty"` // unix millis
	Message    string          `json:"message,omitempty"`
}

// Conflict is transient: constructed by the sync engine from a rejected
// response, consumed once by the conflict handler, then discarded. Its
// resolution outcome persists as a PendingWrite state change or deletion.
type Conflict struct {
	WriteID    string          `json:"write_id"`
	Type       ConflictType    `json:"type"`
	Operation  string          `json:"operation"`
	Details    ConflictDetails `json:"details"`
	DetectedAt int64           `json:"detected_at"` // unix millis
}

// DetectedAtTime returns DetectedAt as time.Time.
func (c *Conflict) DetectedAtTime() time.Time {
	return time.UnixMilli(c.DetectedAt)
}

// Retryable reports whether replaying the write could ever succeed.
func (c *Conflict) Retryable() bool {
	return c.Type == ConflictVersion
}
