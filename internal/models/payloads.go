package models

import (
	"encoding/json"
	"fmt"
)

// Typed payloads for the known operations. queueing accepts anything
// JSON-serializable; these give compile-time shape to the common cases
// while unknown operations fall back to raw JSON.

// ClockInPayload records a shift start.
type ClockInPayload struct {
	SiteID      string `json:"siteId"`
	ClockInTime string `json:"clockInTime"` // RFC 3339
}

// ClockOutPayload records a shift end.
type ClockOutPayload struct {
	SiteID       string `json:"siteId"`
	ShiftID      string `json:"shiftId,omitempty"`
	ClockOutTime string `json:"clockOutTime"` // RFC 3339
}

// CompleteTaskPayload marks a checklist task done.
type CompleteTaskPayload struct {
	TaskID      string   `json:"taskId"`
	CompletedAt string   `json:"completedAt"` // RFC 3339
	Note        string   `json:"note,omitempty"`
	PhotoIDs    []string `json:"photoIds,omitempty"` // QueuedFile ids
}

// LogTemperaturePayload records an appliance temperature reading.
type LogTemperaturePayload struct {
	ApplianceID string  `json:"applianceId"`
	Celsius     float64 `json:"celsius"`
	RecordedAt  string  `json:"recordedAt"` // RFC 3339
}

// StockCountPayload records an inventory count.
type StockCountPayload struct {
	ItemID    string  `json:"itemId"`
	Count     float64 `json:"count"`
	CountedAt string  `json:"countedAt"` // RFC 3339
}

// MarshalPayload serializes a payload value to the raw JSON stored on a
// PendingWrite. A json.RawMessage passes through untouched.
func MarshalPayload(v any) (json.RawMessage, error) {
	switch p := v.(type) {
	case nil:
		return json.RawMessage("null"), nil
	case json.RawMessage:
		if !json.Valid(p) {
			return nil, fmt.Errorf("payload is not valid JSON")
		}
		return p, nil
	case []byte:
		if !json.Valid(p) {
			return nil, fmt.Errorf("payload is not valid JSON")
		}
		return json.RawMessage(p), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		return data, nil
	}
}

// DecodePayload unmarshals a write's raw payload into the typed struct
// for its operation tag. Unknown operations return the raw JSON.
func DecodePayload(operation string, raw json.RawMessage) (any, error) {
	var v any
	switch operation {
	case OpClockIn:
		v = &ClockInPayload{}
	case OpClockOut:
		v = &ClockOutPayload{}
	case OpCompleteTask:
		v = &CompleteTaskPayload{}
	case OpLogTemperature:
		v = &LogTemperaturePayload{}
	case OpStockCount:
		v = &StockCountPayload{}
	default:
		return raw, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", operation, err)
	}
	return v, nil
}
