package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Realm-101/unbuilt-advisor/internal/cache"
	"github.com/Realm-101/unbuilt-advisor/internal/config"
	ctxengine "github.com/Realm-101/unbuilt-advisor/internal/context"
	"github.com/Realm-101/unbuilt-advisor/internal/conversation"
	"github.com/Realm-101/unbuilt-advisor/internal/cron"
	"github.com/Realm-101/unbuilt-advisor/internal/dedup"
	"github.com/Realm-101/unbuilt-advisor/internal/engine"
	"github.com/Realm-101/unbuilt-advisor/internal/gateway"
	"github.com/Realm-101/unbuilt-advisor/internal/metrics"
	"github.com/Realm-101/unbuilt-advisor/internal/quality"
	"github.com/Realm-101/unbuilt-advisor/internal/reload"
	"github.com/Realm-101/unbuilt-advisor/internal/questions"
	"github.com/Realm-101/unbuilt-advisor/internal/security"
	"github.com/Realm-101/unbuilt-advisor/modules/completer/openai"
	"github.com/Realm-101/unbuilt-advisor/modules/store/sqlite"
)

// analysisWriter is implemented by stores that accept analysis snapshots.
type analysisWriter interface {
	PutAnalysis(ctx context.Context, a conversation.Analysis) error
}

// Key namespaces inside the shared cache.
const (
	contextCachePrefix = "ctx:"
	dedupCachePrefix   = "dedup:"
)

// app owns every long-lived component of a serving process.
type app struct {
	config    *config.Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
	store     conversation.MessageStore
	analyses  conversation.AnalysisProvider
	cache     cache.Cache
	audit     *security.AuditLogger
	limiter   *security.ConversationRateLimiter
	gateway   *gateway.Gateway
	scheduler *cron.Scheduler
	closers   []func() error
}

// newApp wires the components described by cfg. Nothing is started.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{config: cfg, logger: logger, metrics: metrics.New(nil)}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	var pinger gateway.Pinger
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		st, err := sqlite.Open(ctx, sqlite.Config{Path: cfg.Storage.Path}, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, st.Close)
		a.store, a.analyses, a.cache, pinger = st, st, st.Cache(), st
	default:
		a.store = conversation.NewInMemoryMessageStore()
		a.analyses = conversation.NewInMemoryAnalysisProvider()
		a.cache = cache.NewMemoryCache(cfg.Cache)
	}

	if err := a.openAudit(); err != nil {
		return nil, err
	}

	input, err := security.NewInputValidator(cfg.Input, a.audit)
	if err != nil {
		return nil, err
	}
	est := ctxengine.NewCharEstimator(cfg.Context.CharsPerToken)
	opt := ctxengine.NewContextOptimizer(est, cache.WithPrefix(a.cache, contextCachePrefix), cfg.Context, logger)
	manager := ctxengine.NewManager(est, opt, cfg.Context, logger)
	limiter := security.NewConversationRateLimiter(cfg.RateLimit)
	a.limiter = limiter
	validator := quality.NewValidator(cfg.Quality)
	dd := dedup.NewService(cfg.Dedup, cache.WithPrefix(a.cache, dedupCachePrefix), logger)
	gen := questions.NewGenerator(cfg.Questions)

	deps := gateway.Deps{
		Context:   manager,
		Analyses:  a.analyses,
		Store:     a.store,
		Input:     input,
		Quality:   validator,
		Dedup:     dd,
		Limiter:   limiter,
		Questions: gen,
		Cache:     a.cache,
		Pinger:    pinger,
		Events:    a.audit,
		Metrics:   a.metrics,
		Logger:    logger,
	}

	if cfg.Completer.Enabled() {
		completer, err := openai.New(cfg.Completer, &http.Client{})
		if err != nil {
			return nil, err
		}
		deps.Engine, err = engine.New(cfg.Engine, engine.Deps{
			Store:     a.store,
			Analyses:  a.analyses,
			Completer: completer,
			Context:   manager,
			Input:     input,
			Limiter:   limiter,
			Quality:   validator,
			Dedup:     dd,
			Questions: gen,
			Events:    a.audit,
			Metrics:   a.metrics,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("turn engine enabled", "model", completer.Model())
	}

	a.gateway, err = gateway.New(cfg.Server, deps)
	if err != nil {
		return nil, err
	}

	a.scheduler = cron.NewScheduler(logger, a.metrics)
	jobs := []struct {
		schedule string
		job      cron.Job
	}{
		{cfg.Jobs.CachePurge, &cron.CachePurgeJob{Cache: a.cache, Index: dd, Metrics: a.metrics, Logger: logger, ScheduleExpr: cfg.Jobs.CachePurge}},
		{cfg.Jobs.RateLimitSweep, &cron.RateLimitSweepJob{Limiter: limiter, Logger: logger, ScheduleExpr: cfg.Jobs.RateLimitSweep}},
		{cfg.Jobs.StatsReport, &cron.StatsReportJob{Source: dd, Logger: logger, ScheduleExpr: cfg.Jobs.StatsReport}},
	}
	for _, j := range jobs {
		if j.schedule == config.JobDisabled {
			continue
		}
		if err := a.scheduler.RegisterJob(j.job); err != nil {
			return nil, err
		}
	}

	ok = true
	return a, nil
}

// openAudit starts the security event logger. Events always reach the
// process log; with audit.path set they are also appended as JSONL.
func (a *app) openAudit() error {
	cfg := security.AuditLoggerConfig{
		Redactor:  security.NewRedactor(),
		QueueSize: a.config.Audit.QueueSize,
		Logger:    a.logger,
		OnEvent: func(e security.AuditEvent) {
			a.logger.Warn("security event",
				"type", e.Type,
				"category", e.Category,
				"success", e.Success,
			)
		},
	}
	if path := a.config.Audit.Path; path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("audit: open %s: %w", path, err)
		}
		a.closers = append(a.closers, f.Close)
		cfg.Writer = f
	}
	a.audit = security.NewAuditLogger(cfg)
	return nil
}

// loadAnalyses reads a JSON array of analyses and stores each one.
func (a *app) loadAnalyses(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("analyses: %w", err)
	}
	defer f.Close()
	return importAnalyses(ctx, f, a.analyses)
}

func importAnalyses(ctx context.Context, r io.Reader, dst conversation.AnalysisProvider) (int, error) {
	var raws []json.RawMessage
	if err := json.NewDecoder(r).Decode(&raws); err != nil {
		return 0, fmt.Errorf("analyses: %w", err)
	}

	for i, raw := range raws {
		an, err := conversation.DecodeAnalysis(raw)
		if err != nil {
			return i, fmt.Errorf("analyses[%d]: %w", i, err)
		}
		switch w := dst.(type) {
		case analysisWriter:
			if err := w.PutAnalysis(ctx, an); err != nil {
				return i, fmt.Errorf("analyses[%d]: %w", i, err)
			}
		case *conversation.InMemoryAnalysisProvider:
			w.Put(an)
		default:
			return i, errors.New("analyses: store is read-only")
		}
	}
	return len(raws), nil
}

// watchConfig reapplies the file at path when its content changes or the
// process receives SIGHUP. Rate limits always follow; extra reloaders get
// the new config too. The returned func stops watching.
func (a *app) watchConfig(ctx context.Context, path string, extra ...reload.Reloader) func() {
	reloaders := append([]reload.Reloader{
		reload.ReloaderFunc(func(_ context.Context, cfg *config.Config) error {
			a.limiter.Reconfigure(cfg.RateLimit)
			return nil
		}),
	}, extra...)
	h := reload.NewHandler(a.config, a.logger, reloaders...)

	w := reload.NewWatcher(reload.WatcherConfig{ConfigPath: path})
	w.Start(ctx)

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Run(ctx, path, w.Events(), hup)
	}()

	return func() {
		cancel()
		<-done
		signal.Stop(hup)
		w.Stop()
	}
}

// Run serves until ctx is done, then shuts everything down.
func (a *app) Run(ctx context.Context) error {
	if err := a.gateway.Start(ctx); err != nil {
		return err
	}
	if err := a.scheduler.Start(); err != nil {
		_ = a.gateway.Stop(context.Background())
		return err
	}

	<-ctx.Done()
	a.logger.Info("shutting down")

	stopCtx := context.Background()
	return errors.Join(a.gateway.Stop(stopCtx), a.scheduler.Stop(stopCtx))
}

// Close releases storage and flushes the audit log. Safe to call once.
func (a *app) Close() {
	if a.audit != nil {
		a.audit.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
