package cache

import (
	"context"
	"errors"
	"time"
)

// ErrPrefixUnsupported is returned by Prefixed.Clear when the underlying
// cache cannot delete by prefix.
var ErrPrefixUnsupported = errors.New("cache: prefix clear unsupported")

// PrefixClearer is implemented by caches that can drop every key starting
// with a prefix.
type PrefixClearer interface {
	ClearPrefix(ctx context.Context, prefix string) (int, error)
}

// PrefixSizer is implemented by caches that can count the keys starting
// with a prefix.
type PrefixSizer interface {
	LenPrefix(prefix string) int
}

// Prefixed is a view of a shared Cache whose keys all start with one prefix.
// Clear and Len only see the view's own keys.
type Prefixed struct {
	base   Cache
	prefix string
}

// WithPrefix returns a view of c that namespaces every key under prefix.
func WithPrefix(c Cache, prefix string) *Prefixed {
	return &Prefixed{base: c, prefix: prefix}
}

// Compile-time interface checks.
var (
	_ Cache  = (*Prefixed)(nil)
	_ Sizer  = (*Prefixed)(nil)
	_ Purger = (*Prefixed)(nil)
)

// Get reads key from the view.
func (p *Prefixed) Get(ctx context.Context, key string) (string, error) {
	return p.base.Get(ctx, p.prefix+key)
}

// Set writes key into the view.
func (p *Prefixed) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return p.base.Set(ctx, p.prefix+key, value, ttl)
}

// Clear removes the view's keys and leaves the rest of the shared cache alone.
func (p *Prefixed) Clear(ctx context.Context) error {
	pc, ok := p.base.(PrefixClearer)
	if !ok {
		return ErrPrefixUnsupported
	}
	_, err := pc.ClearPrefix(ctx, p.prefix)
	return err
}

// Len counts the view's keys. It reports zero when the underlying cache
// cannot count by prefix.
func (p *Prefixed) Len() int {
	if s, ok := p.base.(PrefixSizer); ok {
		return s.LenPrefix(p.prefix)
	}
	return 0
}

// Purge drops expired entries of the whole shared cache.
func (p *Prefixed) Purge(ctx context.Context) (int, error) {
	if pg, ok := p.base.(Purger); ok {
		return pg.Purge(ctx)
	}
	return 0, nil
}
