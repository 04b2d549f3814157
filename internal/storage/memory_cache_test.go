package storage

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCacheSetGet(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	value, ok, err := c.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if string(value) != "v" {
		t.Fatalf("unexpected value: %s", value)
	}
}

func TestMemoryCacheExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	_ = c.Set(ctx, "k", []byte("v"), time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	_, ok, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatal("expected expired entry to miss")
	}
}

func TestMemoryCacheZeroTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	_ = c.Set(ctx, "k", []byte("v"), 0)

	_, ok, err := c.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("expected zero-ttl entry to stay cached, ok=%v err=%v", ok, err)
	}
}

func TestMemoryCacheSweepRemovesExpiredOnly(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	_ = c.Set(ctx, "expired", []byte("v"), time.Millisecond)
	_ = c.Set(ctx, "fresh", []byte("v"), time.Hour)
	time.Sleep(5 * time.Millisecond)

	removed := c.Sweep()
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, ok, _ := c.Get(ctx, "fresh"); !ok {
		t.Fatal("expected fresh entry to survive sweep")
	}
}
