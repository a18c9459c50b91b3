package ctxengine

import (
	"context"
	"log/slog"
	"slices"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/Realm-101/unbuilt-advisor/internal/cache"
	"github.com/Realm-101/unbuilt-advisor/internal/conversation"
)

// CacheStats reports analysis-context cache usage.
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Size   int   `json:"size"`
}

// ContextOptimizer trims analysis data and built windows to fit a budget,
// and caches rendered analysis contexts.
type ContextOptimizer struct {
	estimator TokenEstimator
	cache     cache.Cache
	config    ContextConfig
	logger    *slog.Logger
	fills     singleflight.Group
	hits      atomic.Int64
	misses    atomic.Int64
}

// NewContextOptimizer creates an optimizer. A nil cache disables caching;
// results are identical either way.
func NewContextOptimizer(estimator TokenEstimator, c cache.Cache, cfg ContextConfig, logger *slog.Logger) *ContextOptimizer {
	if c == nil {
		c = cache.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ContextOptimizer{
		estimator: estimator,
		cache:     c,
		config:    cfg.withDefaults(),
		logger:    logger,
	}
}

// OptimizeAnalysisData returns a copy of a whose TopGaps holds only the topN
// highest-scoring gaps. Ties keep their original order.
func (o *ContextOptimizer) OptimizeAnalysisData(a conversation.Analysis, topN int) conversation.Analysis {
	out := a.Clone()
	slices.SortStableFunc(out.TopGaps, func(x, y conversation.Gap) int {
		switch {
		case x.Score > y.Score:
			return -1
		case x.Score < y.Score:
			return 1
		default:
			return 0
		}
	})
	if topN < 0 {
		topN = 0
	}
	if len(out.TopGaps) > topN {
		out.TopGaps = out.TopGaps[:topN]
	}
	return out
}

// OptimizeContextWindow trims a window exceeding maxTokens, in order:
// conversation history, then analysis context down to its first line, then
// (last resort) the query, which is truncated but never dropped. The system
// prompt is never touched. Degraded is set when the result still does not fit.
func (o *ContextOptimizer) OptimizeContextWindow(w ContextWindow, maxTokens int) ContextWindow {
	w.TotalTokens = o.total(w)
	if w.TotalTokens <= maxTokens {
		return w
	}

	est := o.estimator.Estimate
	historyBudget := max(maxTokens-est(w.SystemPrompt)-est(w.CurrentQuery)-est(w.AnalysisContext), 0)
	w.ConversationHistory = fitHistory(o.estimator, w.ConversationHistory, historyBudget)
	if w.TotalTokens = o.total(w); w.TotalTokens <= maxTokens {
		return w
	}

	analysisBudget := max(maxTokens-est(w.SystemPrompt)-est(w.CurrentQuery)-est(w.ConversationHistory), 0)
	w.AnalysisContext = fitAnalysis(o.estimator, w.AnalysisContext, analysisBudget)
	if w.TotalTokens = o.total(w); w.TotalTokens <= maxTokens {
		return w
	}

	queryBudget := maxTokens - est(w.SystemPrompt) - est(w.ConversationHistory) - est(w.AnalysisContext)
	maxChars := int(float64(queryBudget)*o.config.CharsPerToken) - len(queryEllipsis)
	w.CurrentQuery = truncateQuery(w.CurrentQuery, maxChars)
	w.TotalTokens = o.total(w)
	if w.TotalTokens > maxTokens {
		w.Degraded = true
		o.logger.Warn("context window exceeds budget after trimming",
			"total_tokens", w.TotalTokens,
			"max_tokens", maxTokens,
		)
	}
	return w
}

// CachedAnalysisContext returns the cached rendering stored under key.
// Cache errors count as misses.
func (o *ContextOptimizer) CachedAnalysisContext(ctx context.Context, key string) (string, bool) {
	v, err := o.cache.Get(ctx, key)
	if err != nil {
		o.misses.Add(1)
		return "", false
	}
	o.hits.Add(1)
	return v, true
}

// CacheAnalysisContext stores a fully rendered analysis context. Write
// failures are logged and otherwise ignored.
func (o *ContextOptimizer) CacheAnalysisContext(ctx context.Context, key, text string) {
	if err := o.cache.Set(ctx, key, text, o.config.CacheTTL); err != nil {
		o.logger.Debug("analysis context cache write failed", "key", key, "error", err)
	}
}

// analysisContext returns the cached value for key when useCache is set,
// otherwise renders it. Concurrent renders of the same key are collapsed,
// and the cache is written only with a complete value while ctx is live.
func (o *ContextOptimizer) analysisContext(ctx context.Context, key string, useCache bool, render func() string) string {
	if key == "" {
		return render()
	}
	if useCache {
		if v, ok := o.CachedAnalysisContext(ctx, key); ok {
			return v
		}
	}
	v, _, _ := o.fills.Do(key, func() (any, error) {
		text := render()
		if ctx.Err() == nil {
			o.CacheAnalysisContext(ctx, key, text)
		}
		return text, nil
	})
	return v.(string)
}

// ClearCache drops every cached analysis context and resets the counters.
func (o *ContextOptimizer) ClearCache(ctx context.Context) {
	if err := o.cache.Clear(ctx); err != nil {
		o.logger.Debug("analysis context cache clear failed", "error", err)
	}
	o.hits.Store(0)
	o.misses.Store(0)
}

// CacheStats returns hit/miss counters and the cache size when known.
func (o *ContextOptimizer) CacheStats() CacheStats {
	stats := CacheStats{Hits: o.hits.Load(), Misses: o.misses.Load()}
	if s, ok := o.cache.(cache.Sizer); ok {
		stats.Size = s.Len()
	}
	return stats
}

func (o *ContextOptimizer) total(w ContextWindow) int {
	return EstimateSegments(o.estimator, []string{w.SystemPrompt, w.AnalysisContext, w.ConversationHistory, w.CurrentQuery})
}
