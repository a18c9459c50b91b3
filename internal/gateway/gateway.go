// Package gateway exposes the advisor engine over HTTP: health, Prometheus
// metrics, a status snapshot and the /v1 JSON API. It binds to loopback by
// default.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Realm-101/unbuilt-advisor/internal/cache"
	ctxengine "github.com/Realm-101/unbuilt-advisor/internal/context"
	"github.com/Realm-101/unbuilt-advisor/internal/conversation"
	"github.com/Realm-101/unbuilt-advisor/internal/dedup"
	"github.com/Realm-101/unbuilt-advisor/internal/engine"
	"github.com/Realm-101/unbuilt-advisor/internal/metrics"
	"github.com/Realm-101/unbuilt-advisor/internal/quality"
	"github.com/Realm-101/unbuilt-advisor/internal/questions"
	"github.com/Realm-101/unbuilt-advisor/internal/security"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services the gateway serves. Engine is optional: without
// it POST /v1/turn is not mounted. Cache, Pinger, Events and Metrics are
// optional too.
type Deps struct {
	Context   *ctxengine.Manager
	Analyses  conversation.AnalysisProvider
	Store     conversation.MessageStore
	Input     *security.InputValidator
	Quality   *quality.Validator
	Dedup     *dedup.Service
	Limiter   *security.ConversationRateLimiter
	Questions *questions.Generator

	Engine  *engine.Engine
	Cache   cache.Cache
	Pinger  Pinger
	Events  security.SecurityLogger
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Gateway is the HTTP front of the advisor.
type Gateway struct {
	config    Config
	deps      Deps
	logger    *slog.Logger
	startedAt time.Time

	mu     sync.Mutex
	server *http.Server
	addr   net.Addr
}

// New validates deps and applies config defaults.
func New(cfg Config, deps Deps) (*Gateway, error) {
	var errs []error
	required := []struct {
		name string
		nil  bool
	}{
		{"context manager", deps.Context == nil},
		{"analyses", deps.Analyses == nil},
		{"store", deps.Store == nil},
		{"input validator", deps.Input == nil},
		{"quality validator", deps.Quality == nil},
		{"dedup service", deps.Dedup == nil},
		{"rate limiter", deps.Limiter == nil},
		{"question generator", deps.Questions == nil},
	}
	for _, r := range required {
		if r.nil {
			errs = append(errs, fmt.Errorf("gateway: missing %s", r.name))
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	cfg.defaults()
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Events == nil {
		deps.Events = security.NopSecurityLogger{}
	}
	return &Gateway{
		config:    cfg,
		deps:      deps,
		logger:    deps.Logger,
		startedAt: time.Now(),
	}, nil
}

// Handler returns the routed handler without starting a server.
func (g *Gateway) Handler() http.Handler {
	return g.buildRouter()
}

// Start listens on the configured address and serves in the background.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen failed: %w", err)
	}

	g.startedAt = time.Now()
	g.addr = ln.Addr()
	g.server = &http.Server{
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	go func() {
		g.logger.Info("gateway listening", "addr", g.addr.String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (g *Gateway) Addr() net.Addr {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addr
}

// Stop shuts the server down gracefully within the configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	g.mu.Lock()
	srv := g.server
	g.mu.Unlock()
	if srv == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return srv.Shutdown(shutdownCtx)
}
