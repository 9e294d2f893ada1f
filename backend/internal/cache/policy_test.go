package cache

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
)

func testSubCache(t *testing.T, fetch SubscriptionFetch) *SubscriptionStatusCache {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewSubscriptionStatusCache(rdb, fetch)
}

func TestSubscriptionCache_ReadThrough(t *testing.T) {
	var calls int32
	c := testSubCache(t, func(ctx context.Context, userID string) (string, bool, error) {
		atomic.AddInt32(&calls, 1)
		return "active", true, nil
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		status, err := c.Status(ctx, "u-1")
		if err != nil {
			t.Fatalf("Status error: %v", err)
		}
		if status != "active" {
			t.Fatalf("status = %q, want %q", status, "active")
		}
	}
	// 命中缓存后不再回源
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("fetch calls = %d, want 1", got)
	}
}

func TestSubscriptionCache_EmptyMarkerStopsPenetration(t *testing.T) {
	var calls int32
	c := testSubCache(t, func(ctx context.Context, userID string) (string, bool, error) {
		atomic.AddInt32(&calls, 1)
		return "", false, nil
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		status, err := c.Status(ctx, "nobody")
		if err != nil {
			t.Fatalf("Status error: %v", err)
		}
		if status != "" {
			t.Fatalf("status = %q, want empty", status)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("fetch calls = %d, want 1 (empty marker should absorb misses)", got)
	}
}

func TestSubscriptionCache_Invalidate(t *testing.T) {
	var calls int32
	c := testSubCache(t, func(ctx context.Context, userID string) (string, bool, error) {
		atomic.AddInt32(&calls, 1)
		return "active", true, nil
	})
	ctx := context.Background()

	if _, err := c.Status(ctx, "u-1"); err != nil {
		t.Fatalf("Status error: %v", err)
	}
	if err := c.Invalidate(ctx, "u-1"); err != nil {
		t.Fatalf("Invalidate error: %v", err)
	}
	if _, err := c.Status(ctx, "u-1"); err != nil {
		t.Fatalf("Status error: %v", err)
	}

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("fetch calls = %d, want 2 after invalidate", got)
	}
}
