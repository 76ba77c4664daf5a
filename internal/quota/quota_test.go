package quota

import (
	"context"
	"testing"
	"time"

	apperrors "github.com/opsly/offline/internal/errors"
	"github.com/opsly/offline/internal/models"
	"github.com/opsly/offline/internal/store"
	"github.com/opsly/offline/internal/uuid"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestClassifyBands tests the pressure thresholds.
func TestClassifyBands(t *testing.T) {
	m := NewMonitor(nil, 100, 50, 80)

	cases := []struct {
		usage int64
		want  models.Pressure
	}{
		{0, models.PressureNormal},
		{49, models.PressureNormal},
		{50, models.PressureWarning},
		{79, models.PressureWarning},
		{80, models.PressureCritical},
		{100, models.PressureCritical},
		{150, models.PressureCritical},
	}
	for _, tc := range cases {
		if got := m.Classify(tc.usage); got != tc.want {
			t.Errorf("Classify(%d): expected %s, got %s", tc.usage, tc.want, got)
		}
	}
}

// TestStorageStats tests the snapshot contents.
func TestStorageStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	m := NewMonitor(s, 100*1024*1024, 50, 80)

	w := &models.PendingWrite{
		ID: uuid.New(), Operation: models.OpStockCount, Endpoint: "/stock/counts",
		Payload: []byte(`{}`), Module: models.ModuleStockly, Timestamp: 1000,
		Status: models.WriteStatusPending,
	}
	if err := s.InsertPendingWrite(ctx, w); err != nil {
		t.Fatalf("InsertPendingWrite failed: %v", err)
	}

	stats, err := m.StorageStats(ctx)
	if err != nil {
		t.Fatalf("StorageStats failed: %v", err)
	}
	if stats.Usage <= 0 {
		t.Errorf("Expected positive usage, got %d", stats.Usage)
	}
	if stats.Quota != 100*1024*1024 {
		t.Errorf("Expected quota passthrough, got %d", stats.Quota)
	}
	if stats.PendingWritesCount != 1 {
		t.Errorf("Expected 1 pending write, got %d", stats.PendingWritesCount)
	}
	if stats.Pressure != models.PressureNormal {
		t.Errorf("Expected normal pressure, got %s", stats.Pressure)
	}
}

// TestEvictNoPressure tests that eviction is a no-op below the warning
// threshold.
func TestEvictNoPressure(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	m := NewMonitor(s, 100*1024*1024, 50, 80)
	e := NewEvictor(s, m, 3)

	entry := &models.CachedRead{
		Key: "keep-me", Value: []byte(`1`), Module: models.ModuleGeneral,
		CachedAt: time.Now().UnixMilli(), TTLMs: int64(time.Hour / time.Millisecond),
		Priority: models.PriorityNormal,
	}
	if err := s.PutCachedRead(ctx, entry); err != nil {
		t.Fatalf("PutCachedRead failed: %v", err)
	}

	if err := e.Evict(ctx); err != nil {
		t.Fatalf("Evict failed: %v", err)
	}
	if _, err := s.GetCachedRead(ctx, "keep-me"); err != nil {
		t.Errorf("Expected entry kept without pressure, got %v", err)
	}
}

// TestEvictRemovesCachedReads tests that pressure drains the cache,
// lowest priority first, and relieves the store.
func TestEvictRemovesCachedReads(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Cache enough bulk that a tiny quota is overrun.
	big := make([]byte, 128*1024)
	for i := range big {
		big[i] = 'x'
	}
	value := []byte(`"` + string(big) + `"`)
	for _, key := range []string{"bulk-1", "bulk-2", "bulk-3", "bulk-4"} {
		entry := &models.CachedRead{
			Key: key, Value: value, Module: models.ModuleMsgly,
			CachedAt: time.Now().UnixMilli(), TTLMs: int64(time.Hour / time.Millisecond),
			Priority: models.PriorityLow,
		}
		if err := s.PutCachedRead(ctx, entry); err != nil {
			t.Fatalf("PutCachedRead failed: %v", err)
		}
	}

	usage, err := s.UsageBytes(ctx)
	if err != nil {
		t.Fatalf("UsageBytes failed: %v", err)
	}
	m := NewMonitor(s, usage/2, 50, 80) // currently at 200% of quota
	e := NewEvictor(s, m, 3)

	if err := e.Evict(ctx); err != nil {
		t.Fatalf("Evict failed: %v", err)
	}
	after, err := s.UsageBytes(ctx)
	if err != nil {
		t.Fatalf("UsageBytes failed: %v", err)
	}
	if !m.belowWarning(after) {
		t.Errorf("Expected usage below warning after eviction, got %d of %d", after, m.QuotaBytes())
	}
}

// TestEvictExpiredFirst tests that expired entries are removed before
// any unexpired one regardless of priority.
func TestEvictExpiredFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	expired := &models.CachedRead{
		Key: "expired-critical", Value: []byte(`1`), Module: models.ModuleTeamly,
		CachedAt: 1, TTLMs: 1, Priority: models.PriorityCritical,
	}
	if err := s.PutCachedRead(ctx, expired); err != nil {
		t.Fatalf("PutCachedRead failed: %v", err)
	}

	m := NewMonitor(s, 100*1024*1024, 50, 80)
	e := NewEvictor(s, m, 3)
	if err := e.Evict(ctx); err != nil {
		t.Fatalf("Evict failed: %v", err)
	}

	_, err := s.GetCachedRead(ctx, "expired-critical")
	if !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Expected expired entry removed, got %v", err)
	}
}

// TestEvictNeverTouchesWritesOrFiles tests the eviction exemption: when
// pressure comes from pending writes and queued files alone, eviction
// surfaces QUOTA_EXCEEDED instead of removing them.
func TestEvictNeverTouchesWritesOrFiles(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	w := &models.PendingWrite{
		ID: uuid.New(), Operation: models.OpCompleteTask, Endpoint: "/tasks/done",
		Payload: []byte(`{}`), Module: models.ModuleCheckly, Timestamp: 1000,
		Status: models.WriteStatusPending,
	}
	if err := s.InsertPendingWrite(ctx, w); err != nil {
		t.Fatalf("InsertPendingWrite failed: %v", err)
	}
	blob := make([]byte, 128*1024)
	f := &models.QueuedFile{
		ID: uuid.New(), WriteID: w.ID, Blob: blob,
		Filename: "done.jpg", MimeType: "image/jpeg", CreatedAt: 1000,
	}
	if err := s.InsertQueuedFile(ctx, f); err != nil {
		t.Fatalf("InsertQueuedFile failed: %v", err)
	}

	usage, err := s.UsageBytes(ctx)
	if err != nil {
		t.Fatalf("UsageBytes failed: %v", err)
	}
	m := NewMonitor(s, usage/2, 50, 80)
	e := NewEvictor(s, m, 3)

	err = e.Evict(ctx)
	if !apperrors.Is(err, apperrors.ErrQuotaExceeded) {
		t.Fatalf("Expected QUOTA_EXCEEDED, got %v", err)
	}

	if _, err := s.GetPendingWrite(ctx, w.ID); err != nil {
		t.Errorf("Expected pending write untouched, got %v", err)
	}
	if _, err := s.GetQueuedFile(ctx, f.ID); err != nil {
		t.Errorf("Expected queued file untouched, got %v", err)
	}
}

// TestEvictSparesCriticalUntilLastPass tests that critical entries
// outlive normal ones under pressure.
func TestEvictSparesCriticalUntilLastPass(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	big := make([]byte, 128*1024)
	for i := range big {
		big[i] = 'x'
	}
	value := []byte(`"` + string(big) + `"`)
	critical := &models.CachedRead{
		Key: "attendance:current-shift:u1", Value: []byte(`{"shift":"s1"}`),
		Module: models.ModuleTeamly, CachedAt: time.Now().UnixMilli(),
		TTLMs: int64(time.Hour / time.Millisecond), Priority: models.PriorityCritical,
	}
	if err := s.PutCachedRead(ctx, critical); err != nil {
		t.Fatalf("PutCachedRead failed: %v", err)
	}
	for _, key := range []string{"bulk-1", "bulk-2", "bulk-3"} {
		entry := &models.CachedRead{
			Key: key, Value: value, Module: models.ModuleMsgly,
			CachedAt: time.Now().UnixMilli(), TTLMs: int64(time.Hour / time.Millisecond),
			Priority: models.PriorityLow,
		}
		if err := s.PutCachedRead(ctx, entry); err != nil {
			t.Fatalf("PutCachedRead failed: %v", err)
		}
	}

	usage, err := s.UsageBytes(ctx)
	if err != nil {
		t.Fatalf("UsageBytes failed: %v", err)
	}
	m := NewMonitor(s, usage/2, 50, 80)
	e := NewEvictor(s, m, 3)

	if err := e.Evict(ctx); err != nil {
		t.Fatalf("Evict failed: %v", err)
	}
	// The low-priority bulk was more than enough to relieve pressure, so
	// the critical entry must have survived.
	if _, err := s.GetCachedRead(ctx, "attendance:current-shift:u1"); err != nil {
		t.Errorf("Expected critical entry to survive, got %v", err)
	}
}
