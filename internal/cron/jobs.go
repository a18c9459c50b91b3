package cron

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Realm-101/unbuilt-advisor/internal/cache"
	"github.com/Realm-101/unbuilt-advisor/internal/dedup"
	"github.com/Realm-101/unbuilt-advisor/internal/metrics"
)

// Job names.
const (
	JobCachePurge     = "cache_purge"
	JobRateLimitSweep = "ratelimit_sweep"
	JobStatsReport    = "stats_report"
)

const (
	defaultCachePurgeSchedule = "*/5 * * * *"
	defaultSweepSchedule      = "*/15 * * * *"
	defaultStatsSchedule      = "0 * * * *"
)

// IndexPurger drops expired entries from the cross-conversation index.
type IndexPurger interface {
	PurgeIndex() int
}

// Sweeper drops expired rate-limiter state.
type Sweeper interface {
	Sweep() int
}

// StatsSource reports deduplication statistics.
type StatsSource interface {
	Stats() dedup.Stats
}

// CachePurgeJob drops expired entries from the shared cache and the
// duplicate index, then reports the cache size.
type CachePurgeJob struct {
	Cache        cache.Cache
	Index        IndexPurger // optional
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/5 * * * *"
}

// Compile-time interface check.
var _ Job = (*CachePurgeJob)(nil)

// Name implements Job.
func (j *CachePurgeJob) Name() string { return JobCachePurge }

// Schedule implements Job.
func (j *CachePurgeJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return defaultCachePurgeSchedule
}

// Run purges expired entries. Caches that cannot purge are left alone.
func (j *CachePurgeJob) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("cron: cache purge cancelled: %w", ctx.Err())
	}

	purged := 0
	if p, ok := j.Cache.(cache.Purger); ok {
		n, err := p.Purge(ctx)
		if err != nil {
			return fmt.Errorf("cron: purging cache: %w", err)
		}
		purged = n
	}
	indexed := 0
	if j.Index != nil {
		indexed = j.Index.PurgeIndex()
	}
	if s, ok := j.Cache.(cache.Sizer); ok {
		j.Metrics.SetCacheEntries(s.Len())
	}

	if purged+indexed > 0 {
		j.Logger.Info("cron: purged expired cache entries", "cache", purged, "index", indexed)
	}
	return nil
}

// RateLimitSweepJob forgets expired daily counters and idle conversations.
type RateLimitSweepJob struct {
	Limiter      Sweeper
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/15 * * * *"
}

// Compile-time interface check.
var _ Job = (*RateLimitSweepJob)(nil)

// Name implements Job.
func (j *RateLimitSweepJob) Name() string { return JobRateLimitSweep }

// Schedule implements Job.
func (j *RateLimitSweepJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return defaultSweepSchedule
}

// Run sweeps the limiter.
func (j *RateLimitSweepJob) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("cron: rate-limit sweep cancelled: %w", ctx.Err())
	}
	if n := j.Limiter.Sweep(); n > 0 {
		j.Logger.Info("cron: swept rate-limit state", "count", n)
	}
	return nil
}

// StatsReportJob logs the deduplication counters.
type StatsReportJob struct {
	Source       StatsSource
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "0 * * * *"
}

// Compile-time interface check.
var _ Job = (*StatsReportJob)(nil)

// Name implements Job.
func (j *StatsReportJob) Name() string { return JobStatsReport }

// Schedule implements Job.
func (j *StatsReportJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return defaultStatsSchedule
}

// Run logs a stats snapshot.
func (j *StatsReportJob) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("cron: stats report cancelled: %w", ctx.Err())
	}
	st := j.Source.Stats()
	j.Logger.Info("cron: dedup stats",
		"total", st.TotalQueries,
		"hits", st.CacheHits,
		"misses", st.CacheMisses,
		"hit_rate", st.HitRate,
		"estimated_savings", st.EstimatedSavings,
	)
	return nil
}
