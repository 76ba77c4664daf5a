package cache

import (
	"context"
	"testing"
	"time"

	apperrors "github.com/opsly/offline/internal/errors"
	"github.com/opsly/offline/internal/models"
	"github.com/opsly/offline/internal/quota"
	"github.com/opsly/offline/internal/store"
)

func newTestCache(t *testing.T) (*Cache, *store.Store) {
	t.Helper()
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	m := quota.NewMonitor(s, 100*1024*1024, 50, 80)
	e := quota.NewEvictor(s, m, 3)
	c := New(s, m, e,
		[]string{"attendance:current-shift", "profile:current"},
		[]string{models.ModuleMsgly, models.ModuleAssetly})
	return c, s
}

// TestCacheReadRoundtrip tests store and retrieve of a read result.
func TestCacheReadRoundtrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	type rota struct {
		Shifts []string `json:"shifts"`
	}
	err := c.CacheRead(ctx, "teamly:rota:week-34", rota{Shifts: []string{"s1", "s2"}},
		models.ModuleTeamly, time.Hour)
	if err != nil {
		t.Fatalf("CacheRead failed: %v", err)
	}

	value, ok := c.GetCachedRead(ctx, "teamly:rota:week-34")
	if !ok {
		t.Fatal("Expected cache hit")
	}
	if string(value) != `{"shifts":["s1","s2"]}` {
		t.Errorf("Unexpected cached value: %s", value)
	}
}

// TestCacheReadReplaces tests that re-caching a key replaces the entry.
func TestCacheReadReplaces(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	if err := c.CacheRead(ctx, "k", 1, models.ModuleGeneral, time.Hour); err != nil {
		t.Fatalf("CacheRead failed: %v", err)
	}
	if err := c.CacheRead(ctx, "k", 2, models.ModuleGeneral, time.Hour); err != nil {
		t.Fatalf("second CacheRead failed: %v", err)
	}

	value, ok := c.GetCachedRead(ctx, "k")
	if !ok {
		t.Fatal("Expected cache hit")
	}
	if string(value) != "2" {
		t.Errorf("Expected replaced value 2, got %s", value)
	}
}

// TestCacheReadValidation tests the invalid-input paths.
func TestCacheReadValidation(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	if err := c.CacheRead(ctx, "", 1, models.ModuleGeneral, time.Hour); !apperrors.Is(err, apperrors.ErrInvalid) {
		t.Errorf("Expected INVALID_INPUT for empty key, got %v", err)
	}
	if err := c.CacheRead(ctx, "k", 1, models.ModuleGeneral, 0); !apperrors.Is(err, apperrors.ErrInvalid) {
		t.Errorf("Expected INVALID_INPUT for zero ttl, got %v", err)
	}
	if err := c.CacheRead(ctx, "k", make(chan int), models.ModuleGeneral, time.Hour); !apperrors.Is(err, apperrors.ErrInvalid) {
		t.Errorf("Expected INVALID_INPUT for unserializable value, got %v", err)
	}
}

// TestGetCachedReadMiss tests that an unknown key is an absent result,
// not an error.
func TestGetCachedReadMiss(t *testing.T) {
	c, _ := newTestCache(t)

	value, ok := c.GetCachedRead(context.Background(), "never-cached")
	if ok {
		t.Error("Expected cache miss")
	}
	if value != nil {
		t.Errorf("Expected nil value on miss, got %s", value)
	}
}

// TestTTLExpiry tests that an entry past its TTL reads as absent even
// before physical deletion.
func TestTTLExpiry(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	base := time.Now()
	c.now = func() time.Time { return base }
	if err := c.CacheRead(ctx, "checkly:tasks", []string{"t1"}, models.ModuleCheckly, time.Minute); err != nil {
		t.Fatalf("CacheRead failed: %v", err)
	}

	if _, ok := c.GetCachedRead(ctx, "checkly:tasks"); !ok {
		t.Fatal("Expected hit within TTL")
	}

	c.now = func() time.Time { return base.Add(59 * time.Second) }
	if _, ok := c.GetCachedRead(ctx, "checkly:tasks"); !ok {
		t.Error("Expected hit just inside TTL")
	}

	c.now = func() time.Time { return base.Add(61 * time.Second) }
	if _, ok := c.GetCachedRead(ctx, "checkly:tasks"); ok {
		t.Error("Expected miss past TTL")
	}
}

// TestPriorityAssignment tests key- and module-derived priorities.
func TestPriorityAssignment(t *testing.T) {
	c, s := newTestCache(t)
	ctx := context.Background()

	cases := []struct {
		key    string
		module string
		want   models.CachePriority
	}{
		{"attendance:current-shift:u1", models.ModuleTeamly, models.PriorityCritical},
		{"profile:current", models.ModuleGeneral, models.PriorityCritical},
		{"msgly:inbox", models.ModuleMsgly, models.PriorityLow},
		{"stockly:items", models.ModuleStockly, models.PriorityNormal},
	}
	for _, tc := range cases {
		if err := c.CacheRead(ctx, tc.key, 1, tc.module, time.Hour); err != nil {
			t.Fatalf("CacheRead(%s) failed: %v", tc.key, err)
		}
		entry, err := s.GetCachedRead(ctx, tc.key)
		if err != nil {
			t.Fatalf("GetCachedRead(%s) failed: %v", tc.key, err)
		}
		if entry.Priority != tc.want {
			t.Errorf("%s: expected priority %d, got %d", tc.key, tc.want, entry.Priority)
		}
	}
}

// TestClearLeavesWrites tests that clearing the cache never touches the
// write queue.
func TestClearLeavesWrites(t *testing.T) {
	c, s := newTestCache(t)
	ctx := context.Background()

	if err := c.CacheRead(ctx, "k", 1, models.ModuleGeneral, time.Hour); err != nil {
		t.Fatalf("CacheRead failed: %v", err)
	}
	w := &models.PendingWrite{
		ID: "0b54ce2c-f0d5-4ea5-9fc5-6ae5c08df123", Operation: models.OpClockIn,
		Endpoint: "/attendance/clock-in", Payload: []byte(`{}`),
		Module: models.ModuleTeamly, Timestamp: 1000, Status: models.WriteStatusPending,
	}
	if err := s.InsertPendingWrite(ctx, w); err != nil {
		t.Fatalf("InsertPendingWrite failed: %v", err)
	}

	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, ok := c.GetCachedRead(ctx, "k"); ok {
		t.Error("Expected cache empty after clear")
	}
	if _, err := s.GetPendingWrite(ctx, w.ID); err != nil {
		t.Errorf("Expected pending write to survive cache clear, got %v", err)
	}
}
