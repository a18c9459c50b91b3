// Package cache defines the key/value cache contract used by the context
// optimizer and the cross-conversation dedup index, with a bounded in-memory
// TTL implementation.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Cache is a string key/value store with per-entry TTL.
// Callers must treat every error from Get as a miss.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Clear(ctx context.Context) error
}

// Sizer is implemented by caches that can report their entry count.
type Sizer interface {
	Len() int
}

// Purger is implemented by caches that can drop expired entries on demand.
type Purger interface {
	Purge(ctx context.Context) (int, error)
}

// Nop is a Cache that stores nothing. Every Get misses.
type Nop struct{}

// Compile-time interface check.
var _ Cache = Nop{}

// Get always misses.
func (Nop) Get(context.Context, string) (string, error) { return "", ErrMiss }

// Set discards the value.
func (Nop) Set(context.Context, string, string, time.Duration) error { return nil }

// Clear is a no-op.
func (Nop) Clear(context.Context) error { return nil }

// ClearPrefix is a no-op.
func (Nop) ClearPrefix(context.Context, string) (int, error) { return 0, nil }
