package memory

import (
	"context"
	"testing"
	"time"
)

func TestKVStore_SetAndGet(t *testing.T) {
	store := NewKVStore()
	ctx := context.Background()

	if err := store.Set(ctx, "k1", "v1", 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, ok, err := store.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok || got != "v1" {
		t.Errorf("Get mismatch: got (%q, %v), want (v1, true)", got, ok)
	}
}

func TestKVStore_MissingKey(t *testing.T) {
	store := NewKVStore()

	_, ok, err := store.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok {
		t.Error("Expected missing key to be absent")
	}
}

func TestKVStore_TTLExpiry(t *testing.T) {
	now := time.Unix(0, 0)
	store := NewKVStoreWithClock(func() time.Time { return now })
	ctx := context.Background()

	if err := store.Set(ctx, "k1", "v1", 10*time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	now = now.Add(9 * time.Second)
	if _, ok, _ := store.Get(ctx, "k1"); !ok {
		t.Error("Key expired before its TTL")
	}

	now = now.Add(2 * time.Second)
	if _, ok, _ := store.Get(ctx, "k1"); ok {
		t.Error("Key survived past its TTL")
	}
}

func TestKVStore_IncrCreatesAndCounts(t *testing.T) {
	store := NewKVStore()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, err := store.Incr(ctx, "counter", time.Minute)
		if err != nil {
			t.Fatalf("Incr failed: %v", err)
		}
		if n != want {
			t.Errorf("Incr returned %d, want %d", n, want)
		}
	}
}

func TestKVStore_IncrResetsExpiredCounter(t *testing.T) {
	now := time.Unix(0, 0)
	store := NewKVStoreWithClock(func() time.Time { return now })
	ctx := context.Background()

	if _, err := store.Incr(ctx, "counter", 10*time.Second); err != nil {
		t.Fatalf("Incr failed: %v", err)
	}
	if n, _ := store.Incr(ctx, "counter", 10*time.Second); n != 2 {
		t.Errorf("Second Incr returned %d, want 2", n)
	}

	now = now.Add(11 * time.Second)
	n, err := store.Incr(ctx, "counter", 10*time.Second)
	if err != nil {
		t.Fatalf("Incr after expiry failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Incr after expiry returned %d, want 1 (fresh window)", n)
	}
}
