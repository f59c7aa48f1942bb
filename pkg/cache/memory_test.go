package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fakeClock(start time.Time) (*time.Time, func() time.Time) {
	cur := start
	return &cur, func() time.Time { return cur }
}

func TestMemoryCache_SetGet(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	if err := mc.Set(ctx, "quote:738561", map[string]float64{"close": 420.5}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got map[string]float64
	if err := mc.Get(ctx, "quote:738561", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got["close"] != 420.5 {
		t.Errorf("got %v", got)
	}
}

func TestMemoryCache_TTLExpiry(t *testing.T) {
	now, clock := fakeClock(time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC))
	mc := NewMemoryCache(WithClock(clock))
	defer mc.Close()
	ctx := context.Background()

	if err := mc.Set(ctx, "k", "v", 5*time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	var s string
	if err := mc.Get(ctx, "k", &s); err != nil || s != "v" {
		t.Fatalf("get before expiry: %v %q", err, s)
	}

	*now = now.Add(5*time.Minute + time.Second)
	if err := mc.Get(ctx, "k", &s); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("get after expiry: want ErrCacheMiss, got %v", err)
	}
}

func TestMemoryCache_ZeroTTLNeverExpires(t *testing.T) {
	now, clock := fakeClock(time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC))
	mc := NewMemoryCache(WithClock(clock))
	defer mc.Close()
	ctx := context.Background()

	_ = mc.Set(ctx, "k", "v", 0)
	*now = now.Add(240 * time.Hour)
	var s string
	if err := mc.Get(ctx, "k", &s); err != nil {
		t.Errorf("zero-ttl entry expired: %v", err)
	}
}

func TestMemoryCache_ExpiredGetKeepsRacingFreshSet(t *testing.T) {
	ctx := context.Background()
	cur := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)
	var mc *MemoryCache
	armed := false
	// The clock fires a fresh Set the first time Get consults it after
	// expiry, landing between Get's read and its lazy delete.
	clock := func() time.Time {
		if armed {
			armed = false
			_ = mc.Set(ctx, "k", "fresh", 0)
		}
		return cur
	}
	mc = NewMemoryCache(WithClock(clock), WithCleanupInterval(time.Hour))
	defer mc.Close()

	if err := mc.Set(ctx, "k", "stale", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	cur = cur.Add(2 * time.Minute)

	armed = true
	var s string
	if err := mc.Get(ctx, "k", &s); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("get at expiry: want ErrCacheMiss, got %v", err)
	}
	if err := mc.Get(ctx, "k", &s); err != nil || s != "fresh" {
		t.Errorf("fresh set discarded by lazy expiry: err=%v s=%q", err, s)
	}
}

func TestMemoryCache_Miss(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	var s string
	if err := mc.Get(context.Background(), "absent", &s); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("want ErrCacheMiss, got %v", err)
	}
}

func TestMemoryCache_TryLock(t *testing.T) {
	now, clock := fakeClock(time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC))
	mc := NewMemoryCache(WithClock(clock))
	defer mc.Close()
	ctx := context.Background()

	ok, err := mc.TryLock(ctx, "lock:scan", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first lock: ok=%v err=%v", ok, err)
	}
	ok, _ = mc.TryLock(ctx, "lock:scan", time.Minute)
	if ok {
		t.Error("second lock should be refused while held")
	}

	*now = now.Add(2 * time.Minute)
	ok, _ = mc.TryLock(ctx, "lock:scan", time.Minute)
	if !ok {
		t.Error("lock should be acquirable after expiry")
	}
}

func TestKey(t *testing.T) {
	if got := Key("series", "738561", "5minute"); got != "series:738561:5minute" {
		t.Errorf("Key = %q", got)
	}
}
