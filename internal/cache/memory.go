package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Defaults for MemoryConfig.
const (
	DefaultTTL        = 30 * time.Minute
	DefaultMaxEntries = 1000
)

// MemoryConfig configures a MemoryCache.
type MemoryConfig struct {
	// DefaultTTL applies when Set is called with ttl <= 0.
	DefaultTTL time.Duration `yaml:"ttl"`

	// MaxEntries bounds the cache size. When full, expired entries are
	// dropped first, then the oldest insertion.
	MaxEntries int `yaml:"max_entries"`
}

func (c MemoryConfig) withDefaults() MemoryConfig {
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = DefaultTTL
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = DefaultMaxEntries
	}
	return c
}

type entry struct {
	value   string
	expires time.Time
	seq     uint64
}

// MemoryCache is a bounded, mutex-guarded TTL cache.
// All methods are safe for concurrent use.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]entry
	seq     uint64
	config  MemoryConfig
	now     func() time.Time
}

// NewMemoryCache creates an empty cache. Zero-value config fields get defaults.
func NewMemoryCache(cfg MemoryConfig) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]entry),
		config:  cfg.withDefaults(),
		now:     time.Now,
	}
}

// Compile-time interface checks.
var (
	_ Cache         = (*MemoryCache)(nil)
	_ Sizer         = (*MemoryCache)(nil)
	_ Purger        = (*MemoryCache)(nil)
	_ PrefixClearer = (*MemoryCache)(nil)
	_ PrefixSizer   = (*MemoryCache)(nil)
)

// Get returns the live value for key, or ErrMiss.
func (c *MemoryCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return "", ErrMiss
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return "", ErrMiss
	}
	return e.value, nil
}

// Set stores value under key for ttl (DefaultTTL when ttl <= 0).
func (c *MemoryCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.config.MaxEntries {
		c.evictLocked(now)
	}

	c.seq++
	c.entries[key] = entry{value: value, expires: now.Add(ttl), seq: c.seq}
	return nil
}

// Clear removes every entry.
func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
	return nil
}

// ClearPrefix removes every entry whose key starts with prefix.
func (c *MemoryCache) ClearPrefix(_ context.Context, prefix string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			n++
		}
	}
	return n, nil
}

// LenPrefix counts stored entries whose key starts with prefix.
func (c *MemoryCache) LenPrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, including not-yet-purged expired ones.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge removes expired entries and returns how many were dropped.
func (c *MemoryCache) Purge(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.purgeLocked(c.now()), nil
}

func (c *MemoryCache) purgeLocked(now time.Time) int {
	n := 0
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// evictLocked makes room for one entry.
func (c *MemoryCache) evictLocked(now time.Time) {
	if c.purgeLocked(now) > 0 {
		return
	}
	var (
		oldestKey string
		oldestSeq uint64
		found     bool
	)
	for k, e := range c.entries {
		if !found || e.seq < oldestSeq {
			oldestKey, oldestSeq, found = k, e.seq, true
		}
	}
	if found {
		delete(c.entries, oldestKey)
	}
}
