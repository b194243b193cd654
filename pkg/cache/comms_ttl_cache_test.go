package cache

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestSetGet(t *testing.T) {
	c := New(nil, DefaultConfig())
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "k1", []byte("v1"))

	got, ok := c.Get(ctx, "k1")
	if !ok || string(got) != "v1" {
		t.Errorf("Get = (%q, %v), want (v1, true)", got, ok)
	}

	if _, ok := c.Get(ctx, "missing"); ok {
		t.Error("Get on missing key should report false")
	}
}

func TestTTLExpiry(t *testing.T) {
	c := New(nil, Config{MaxEntries: 10, TTL: 30 * time.Millisecond, SweepInterval: time.Hour})
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "k1", []byte("v1"))
	time.Sleep(50 * time.Millisecond)

	if _, ok := c.Get(ctx, "k1"); ok {
		t.Error("expired entry should not be served")
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	c := New(nil, Config{MaxEntries: 100, TTL: 20 * time.Millisecond, SweepInterval: 30 * time.Millisecond})
	defer c.Close()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		c.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"))
	}

	time.Sleep(120 * time.Millisecond)

	if got := c.Len(); got != 0 {
		t.Errorf("Len after sweep = %d, want 0", got)
	}
}

func TestCapacityEviction(t *testing.T) {
	c := New(nil, Config{MaxEntries: 3, TTL: time.Minute, SweepInterval: time.Hour})
	defer c.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		c.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"))
	}

	if got := c.Len(); got > 3 {
		t.Errorf("Len = %d, want <= 3", got)
	}
	// Newest entries survive.
	if _, ok := c.Get(ctx, "k4"); !ok {
		t.Error("most recent entry should survive eviction")
	}
}

func TestDelete(t *testing.T) {
	c := New(nil, DefaultConfig())
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "k1", []byte("v1"))
	c.Delete(ctx, "k1")

	if _, ok := c.Get(ctx, "k1"); ok {
		t.Error("deleted entry should not be served")
	}
}

func TestDeleteThenResetSurvivesEviction(t *testing.T) {
	c := New(nil, Config{MaxEntries: 2, TTL: time.Minute, SweepInterval: time.Hour})
	defer c.Close()
	ctx := context.Background()

	// Delete must release the key's order slot: a re-set key is the newest
	// insertion, so filling the cache evicts the other entry first.
	c.Set(ctx, "k1", []byte("v1"))
	c.Delete(ctx, "k1")
	c.Set(ctx, "k2", []byte("v2"))
	c.Set(ctx, "k1", []byte("v1-again"))
	c.Set(ctx, "k3", []byte("v3"))

	if got, ok := c.Get(ctx, "k1"); !ok || string(got) != "v1-again" {
		t.Errorf("Get(k1) = (%q, %v), want (v1-again, true)", got, ok)
	}
	if _, ok := c.Get(ctx, "k2"); ok {
		t.Error("k2 was the oldest entry and should have been evicted")
	}
}
