package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Realm-101/unbuilt-advisor/internal/cache"
)

// Cache is a cache.Cache stored in the cache_entries table. Entries survive
// restarts; expired rows are ignored on read and dropped by Purge.
type Cache struct {
	db  *sql.DB
	now func() time.Time
}

// Get implements cache.Cache.
func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := c.db.QueryRowContext(ctx,
		"SELECT value FROM cache_entries WHERE key = ? AND expires_at > ?",
		key, c.now().UnixNano(),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", cache.ErrMiss
	}
	if err != nil {
		return "", fmt.Errorf("sqlite: cache get: %w", err)
	}
	return value, nil
}

// Set implements cache.Cache. A ttl <= 0 uses cache.DefaultTTL.
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, c.now().Add(ttl).UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: cache set: %w", err)
	}
	return nil
}

// Clear implements cache.Cache.
func (c *Cache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, "DELETE FROM cache_entries"); err != nil {
		return fmt.Errorf("sqlite: cache clear: %w", err)
	}
	return nil
}

// ClearPrefix implements cache.PrefixClearer.
func (c *Cache) ClearPrefix(ctx context.Context, prefix string) (int, error) {
	res, err := c.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE substr(key, 1, length(?)) = ?", prefix, prefix)
	if err != nil {
		return 0, fmt.Errorf("sqlite: cache clear prefix: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: cache clear prefix: %w", err)
	}
	return int(n), nil
}

// LenPrefix implements cache.PrefixSizer. Failures report zero.
func (c *Cache) LenPrefix(prefix string) int {
	var n int
	err := c.db.QueryRowContext(context.Background(),
		"SELECT count(*) FROM cache_entries WHERE substr(key, 1, length(?)) = ?", prefix, prefix,
	).Scan(&n)
	if err != nil {
		return 0
	}
	return n
}

// Purge implements cache.Purger.
func (c *Cache) Purge(ctx context.Context) (int, error) {
	res, err := c.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE expires_at <= ?", c.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("sqlite: cache purge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: cache purge: %w", err)
	}
	return int(n), nil
}

// Len implements cache.Sizer. Failures report zero.
func (c *Cache) Len() int {
	var n int
	if err := c.db.QueryRowContext(context.Background(), "SELECT count(*) FROM cache_entries").Scan(&n); err != nil {
		return 0
	}
	return n
}
