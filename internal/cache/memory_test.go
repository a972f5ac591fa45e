package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCacheGetSetRoundTrip(t *testing.T) {
	mc, err := NewMemoryCache(1 << 20)
	if err != nil {
		t.Fatalf("NewMemoryCache: %v", err)
	}
	ctx := context.Background()

	if err := mc.Set(ctx, "a", []byte("hello"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := mc.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}
}

func TestMemoryCacheMissReturnsErrCacheMiss(t *testing.T) {
	mc, _ := NewMemoryCache(1 << 20)
	_, err := mc.Get(context.Background(), "missing")
	if err != ErrCacheMiss {
		t.Fatalf("err = %v, want ErrCacheMiss", err)
	}
}

func TestMemoryCacheExpiredEntryIsMiss(t *testing.T) {
	mc, _ := NewMemoryCache(1 << 20)
	ctx := context.Background()
	_ = mc.Set(ctx, "a", []byte("v"), -time.Second)

	_, err := mc.Get(ctx, "a")
	if err != ErrCacheMiss {
		t.Fatalf("err = %v, want ErrCacheMiss for expired entry", err)
	}
}

func TestMemoryCacheEvictsOldestWhenOverByteBudget(t *testing.T) {
	// Budget for roughly 2.5 entries of 10 bytes each.
	mc, err := NewMemoryCache(25)
	if err != nil {
		t.Fatalf("NewMemoryCache: %v", err)
	}
	ctx := context.Background()
	val := make([]byte, 10)

	_ = mc.Set(ctx, "a", val, time.Minute)
	_ = mc.Set(ctx, "b", val, time.Minute)
	_ = mc.Set(ctx, "c", val, time.Minute)

	if mc.curBytes > mc.maxBytes {
		t.Fatalf("curBytes %d exceeds maxBytes %d after eviction", mc.curBytes, mc.maxBytes)
	}

	if _, err := mc.Get(ctx, "a"); err != ErrCacheMiss {
		t.Fatalf("expected oldest entry %q to have been evicted, got err=%v", "a", err)
	}
	if _, err := mc.Get(ctx, "c"); err != nil {
		t.Fatalf("expected most recent entry %q to survive, got err=%v", "c", err)
	}
}

func TestMemoryCacheClearWildcard(t *testing.T) {
	mc, _ := NewMemoryCache(1 << 20)
	ctx := context.Background()
	_ = mc.Set(ctx, "img:1", []byte("x"), time.Minute)
	_ = mc.Set(ctx, "img:2", []byte("x"), time.Minute)
	_ = mc.Set(ctx, "list:1", []byte("x"), time.Minute)

	if err := mc.Clear(ctx, "img:*"); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	if _, err := mc.Get(ctx, "img:1"); err != ErrCacheMiss {
		t.Fatalf("img:1 should have been cleared")
	}
	if _, err := mc.Get(ctx, "list:1"); err != nil {
		t.Fatalf("list:1 should have survived Clear, got err=%v", err)
	}
}
