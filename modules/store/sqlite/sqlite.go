// Package sqlite persists conversation messages, analysis snapshots and
// cached context renderings in a single SQLite database. It uses
// modernc.org/sqlite (pure Go, no CGO) in WAL mode.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration

	"github.com/Realm-101/unbuilt-advisor/internal/cache"
	"github.com/Realm-101/unbuilt-advisor/internal/conversation"
)

// Compile-time interface guards.
var (
	_ conversation.MessageStore     = (*Store)(nil)
	_ conversation.AnalysisProvider = (*Store)(nil)
	_ cache.Cache                   = (*Cache)(nil)
	_ cache.Purger                  = (*Cache)(nil)
	_ cache.Sizer                   = (*Cache)(nil)
	_ cache.PrefixClearer           = (*Cache)(nil)
	_ cache.PrefixSizer             = (*Cache)(nil)
)

// Store is a MessageStore and AnalysisProvider backed by SQLite.
// It is safe for concurrent use.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
	cache  *Cache
}

// Open opens (creating if needed) the database at cfg.Path and migrates
// its schema.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", cfg.Path, err)
	}

	// SQLite handles one writer at a time; limit pool to 1 connection
	// so PRAGMAs apply consistently.
	db.SetMaxOpenConns(1)

	if cfg.walEnabled() {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: enable WAL: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: set busy_timeout: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db, logger: logger, now: time.Now}
	s.cache = &Cache{db: db, now: s.clock}

	logger.Info("sqlite store opened", "path", cfg.Path, "wal", cfg.walEnabled())
	return s, nil
}

func (s *Store) clock() time.Time { return s.now() }

// Cache returns the database-backed cache sharing this store's connection.
func (s *Store) Cache() *Cache { return s.cache }

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping failed: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.logger.Info("sqlite store closing")
	return s.db.Close()
}
