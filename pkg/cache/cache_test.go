package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute, 10)

	val, hit := c.GetCache(ctx, "any-key")
	if hit {
		t.Error("Expected cache miss, got hit")
	}
	if val != nil {
		t.Error("Expected nil value, got bytes")
	}

	if err := c.SetCache(ctx, "any-key", []byte("data")); err != nil {
		t.Errorf("Set returned error: %v", err)
	}
	val, hit = c.GetCache(ctx, "any-key")
	if !hit || string(val) != "data" {
		t.Errorf("Expected hit with 'data', got %q (hit=%v)", val, hit)
	}
}

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemory(time.Minute, 10)
	c.now = func() time.Time { return now }

	_ = c.SetCache(ctx, "k", []byte("v"))
	now = now.Add(59 * time.Second)
	if _, hit := c.GetCache(ctx, "k"); !hit {
		t.Error("Expected hit before expiry")
	}
	now = now.Add(2 * time.Second)
	if _, hit := c.GetCache(ctx, "k"); hit {
		t.Error("Expected miss after expiry")
	}
	if c.Len() != 0 {
		t.Errorf("Expected expired entry to be removed, len=%d", c.Len())
	}
}

func TestMemory_SizeBound(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemory(time.Hour, 2)
	c.now = func() time.Time { return now }

	_ = c.SetCache(ctx, "a", []byte("1"))
	now = now.Add(time.Second)
	_ = c.SetCache(ctx, "b", []byte("2"))
	now = now.Add(time.Second)
	_ = c.SetCache(ctx, "c", []byte("3"))

	if c.Len() != 2 {
		t.Fatalf("Expected 2 entries, got %d", c.Len())
	}
	if _, hit := c.GetCache(ctx, "a"); hit {
		t.Error("Expected oldest entry to be evicted")
	}
	if _, hit := c.GetCache(ctx, "c"); !hit {
		t.Error("Expected newest entry to be present")
	}
}
