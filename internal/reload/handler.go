package reload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"sync"

	"github.com/Realm-101/unbuilt-advisor/internal/config"
	"github.com/Realm-101/unbuilt-advisor/internal/security"
)

// Reloader is implemented by components that accept a new configuration
// while running.
type Reloader interface {
	Reload(ctx context.Context, cfg *config.Config) error
}

// ReloaderFunc adapts a function to Reloader.
type ReloaderFunc func(ctx context.Context, cfg *config.Config) error

// Reload calls f.
func (f ReloaderFunc) Reload(ctx context.Context, cfg *config.Config) error {
	return f(ctx, cfg)
}

// Handler loads, validates and applies configuration changes. Only the log
// and rate_limit sections take effect live; changes elsewhere are reported
// as needing a restart.
type Handler struct {
	logger    *slog.Logger
	reloaders []Reloader

	mu      sync.Mutex
	current *config.Config
}

// NewHandler creates a handler. current is the configuration the process
// started with.
func NewHandler(current *config.Config, logger *slog.Logger, reloaders ...Reloader) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, reloaders: reloaders, current: current}
}

// Current returns the last applied configuration.
func (h *Handler) Current() *config.Config {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// HandleReload reads and validates the file at path, then applies it. An
// invalid file leaves the running configuration untouched.
func (h *Handler) HandleReload(ctx context.Context, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return h.Apply(ctx, cfg)
}

// Apply hands an already validated cfg to every reloader.
func (h *Handler) Apply(ctx context.Context, cfg *config.Config) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before reload: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.current != nil && needsRestart(h.current, cfg) {
		h.logger.Warn("configuration changes outside log and rate_limit need a restart to apply")
	}

	var errs []error
	for _, r := range h.reloaders {
		if err := r.Reload(ctx, cfg); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("reloading: %w", err)
	}

	h.current = cfg
	h.logger.Info("configuration reloaded")
	return nil
}

// Run applies the file at path whenever the watcher reports a change or a
// signal arrives, until ctx is done. Either channel may be nil.
func (h *Handler) Run(ctx context.Context, path string, events <-chan Event, signals <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				events = nil
				continue
			}
		case _, ok := <-signals:
			if !ok {
				signals = nil
				continue
			}
		}
		if err := h.HandleReload(ctx, path); err != nil {
			h.logger.Error("configuration reload failed", "path", path, "error", err)
		}
	}
}

func needsRestart(old, next *config.Config) bool {
	a, b := *old, *next
	a.Log, b.Log = config.LogConfig{}, config.LogConfig{}
	a.RateLimit, b.RateLimit = security.RateLimitConfig{}, security.RateLimitConfig{}
	return !reflect.DeepEqual(a, b)
}
