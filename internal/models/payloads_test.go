package models

import (
	"encoding/json"
	"testing"
	"time"
)

// TestMarshalPayload tests the accepted payload forms.
func TestMarshalPayload(t *testing.T) {
	raw, err := MarshalPayload(ClockInPayload{SiteID: "s1", ClockInTime: "2026-09-01T08:00:00Z"})
	if err != nil {
		t.Fatalf("MarshalPayload struct failed: %v", err)
	}
	if string(raw) != `{"siteId":"s1","clockInTime":"2026-09-01T08:00:00Z"}` {
		t.Errorf("Unexpected marshaled payload: %s", raw)
	}

	passthrough := json.RawMessage(`{"a":1}`)
	raw, err = MarshalPayload(passthrough)
	if err != nil {
		t.Fatalf("MarshalPayload raw failed: %v", err)
	}
	if string(raw) != `{"a":1}` {
		t.Errorf("Expected raw passthrough, got %s", raw)
	}

	raw, err = MarshalPayload(nil)
	if err != nil {
		t.Fatalf("MarshalPayload nil failed: %v", err)
	}
	if string(raw) != "null" {
		t.Errorf("Expected null for nil payload, got %s", raw)
	}

	if _, err := MarshalPayload(json.RawMessage(`{oops`)); err == nil {
		t.Error("Expected error for invalid raw JSON")
	}
	if _, err := MarshalPayload(make(chan int)); err == nil {
		t.Error("Expected error for unserializable value")
	}
}

// TestDecodePayload tests typed decoding per operation tag.
func TestDecodePayload(t *testing.T) {
	v, err := DecodePayload(OpStockCount, json.RawMessage(`{"itemId":"i1","count":12.5,"countedAt":"2026-09-01T10:00:00Z"}`))
	if err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	sc, ok := v.(*StockCountPayload)
	if !ok {
		t.Fatalf("Expected *StockCountPayload, got %T", v)
	}
	if sc.ItemID != "i1" || sc.Count != 12.5 {
		t.Errorf("Unexpected decoded payload: %+v", sc)
	}

	// Unknown operations stay raw.
	raw := json.RawMessage(`{"custom":true}`)
	v, err = DecodePayload("custom_op", raw)
	if err != nil {
		t.Fatalf("DecodePayload unknown op failed: %v", err)
	}
	if string(v.(json.RawMessage)) != `{"custom":true}` {
		t.Errorf("Expected raw passthrough for unknown op, got %v", v)
	}

	if _, err := DecodePayload(OpClockIn, json.RawMessage(`[1,2]`)); err == nil {
		t.Error("Expected error decoding mismatched shape")
	}
}

// TestCachedReadExpiry tests the TTL boundary.
func TestCachedReadExpiry(t *testing.T) {
	entry := &CachedRead{CachedAt: 1000, TTLMs: 500}

	if entry.ExpiresAt() != 1500 {
		t.Errorf("Expected expiry at 1500, got %d", entry.ExpiresAt())
	}
	if entry.Expired(time.UnixMilli(1500)) {
		t.Error("Expected entry fresh at the expiry instant")
	}
	if !entry.Expired(time.UnixMilli(1501)) {
		t.Error("Expected entry expired past the instant")
	}
}

// TestConflictRetryable tests that only version conflicts are retryable.
func TestConflictRetryable(t *testing.T) {
	cases := map[ConflictType]bool{
		ConflictVersion:      true,
		ConflictDuplicate:    false,
		ConflictDeleted:      false,
		ConflictUnauthorized: false,
	}
	for kind, want := range cases {
		c := &Conflict{Type: kind}
		if c.Retryable() != want {
			t.Errorf("%s: expected retryable=%v", kind, want)
		}
	}
}
