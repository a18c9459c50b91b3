package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryCache_SetGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := NewMemoryCache(MemoryConfig{})

	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("Get on empty cache: err = %v, want ErrMiss", err)
	}
	if err := c.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := c.Get(ctx, "k")
	if err != nil || got != "v" {
		t.Fatalf("Get = %q, %v; want v, nil", got, err)
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache(MemoryConfig{})
	c.now = func() time.Time { return now }

	_ = c.Set(ctx, "k", "v", time.Minute)
	now = now.Add(61 * time.Second)

	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected expired entry to miss, got %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after expired Get", c.Len())
	}
}

func TestMemoryCache_Purge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache(MemoryConfig{})
	c.now = func() time.Time { return now }

	_ = c.Set(ctx, "short", "v", time.Second)
	_ = c.Set(ctx, "long", "v", time.Hour)
	now = now.Add(time.Minute)

	n, err := c.Purge(ctx)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if n != 1 || c.Len() != 1 {
		t.Fatalf("Purge removed %d (len %d), want 1 (len 1)", n, c.Len())
	}
}

func TestMemoryCache_EvictsOldestWhenFull(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := NewMemoryCache(MemoryConfig{MaxEntries: 2})

	_ = c.Set(ctx, "a", "1", time.Hour)
	_ = c.Set(ctx, "b", "2", time.Hour)
	_ = c.Set(ctx, "c", "3", time.Hour)

	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	if _, err := c.Get(ctx, "a"); !errors.Is(err, ErrMiss) {
		t.Fatal("expected oldest entry to be evicted")
	}
	if v, _ := c.Get(ctx, "c"); v != "3" {
		t.Fatalf("newest entry missing, got %q", v)
	}
}

func TestMemoryCache_Clear(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := NewMemoryCache(MemoryConfig{})
	_ = c.Set(ctx, "a", "1", 0)
	_ = c.Clear(ctx)
	if c.Len() != 0 {
		t.Fatalf("Len() = %d after Clear", c.Len())
	}
}

func TestMemoryCache_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := NewMemoryCache(MemoryConfig{MaxEntries: 50})

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := range 100 {
				key := fmt.Sprintf("k-%d-%d", i, j%10)
				_ = c.Set(ctx, key, "v", time.Minute)
				_, _ = c.Get(ctx, key)
			}
		}(i)
	}
	wg.Wait()

	if c.Len() > 50 {
		t.Fatalf("Len() = %d exceeds MaxEntries", c.Len())
	}
}

func TestNop_AlwaysMisses(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var c Cache = Nop{}
	_ = c.Set(ctx, "k", "v", time.Minute)
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("Nop.Get err = %v, want ErrMiss", err)
	}
}
