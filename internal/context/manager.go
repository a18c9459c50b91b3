package ctxengine

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/Realm-101/unbuilt-advisor/internal/conversation"
)

// ContextWindow is the bounded payload handed to the model call. It is
// built fresh for every turn.
type ContextWindow struct {
	SystemPrompt        string `json:"system_prompt"`
	AnalysisContext     string `json:"analysis_context"`
	ConversationHistory string `json:"conversation_history"`
	CurrentQuery        string `json:"current_query"`

	// TotalTokens is the estimated sum of the four segments.
	TotalTokens int `json:"total_tokens"`

	// Degraded is true when the window still exceeds the requested budget
	// after every trimming step.
	Degraded bool `json:"degraded,omitempty"`
}

// BuildOptions tunes a single BuildContext call.
type BuildOptions struct {
	// UseCache reuses a cached analysis rendering when one exists.
	UseCache bool
}

// Manager composes token estimation, history summarization and context
// optimization into a single bounded context window.
type Manager struct {
	estimator  TokenEstimator
	summarizer *HistorySummarizer
	optimizer  *ContextOptimizer
	config     ContextConfig
	logger     *slog.Logger
}

// NewManager creates a Manager. The optimizer owns the analysis cache.
func NewManager(estimator TokenEstimator, optimizer *ContextOptimizer, cfg ContextConfig, logger *slog.Logger) *Manager {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		estimator:  estimator,
		summarizer: NewHistorySummarizer(nil, cfg, logger),
		optimizer:  optimizer,
		config:     cfg,
		logger:     logger,
	}
}

// SetSummarizer attaches a model-backed summarizer for long histories.
func (m *Manager) SetSummarizer(s Summarizer) {
	m.summarizer = NewHistorySummarizer(s, m.config, m.logger)
}

// BuildContext assembles the context window for one turn.
//
// The build process:
//  1. Split maxTokens into a TokenBudget
//  2. Place the fixed system prompt
//  3. Render (or reuse) the analysis context within its budget
//  4. Render history, summarized when long, trimmed oldest-first
//  5. Truncate an oversized query
//  6. Estimate the total
//  7. Trim further when still over budget; a window that cannot fit is
//     returned best-effort with Degraded set
//
// The only errors are structural (invalid analysis or message role) and
// ctx cancellation; both are reported before any cache write.
func (m *Manager) BuildContext(
	ctx context.Context,
	analysis conversation.Analysis,
	messages []conversation.Message,
	query string,
	maxTokens int,
	opts BuildOptions,
) (ContextWindow, error) {
	if err := conversation.ValidateAnalysis(analysis); err != nil {
		return ContextWindow{}, err
	}
	if err := conversation.ValidateMessages(messages); err != nil {
		return ContextWindow{}, err
	}
	if maxTokens <= 0 {
		maxTokens = m.config.MaxContextTokens
	}
	budget := NewTokenBudget(maxTokens)

	history, err := m.conversationHistory(ctx, messages, budget.ConversationHistory)
	if err != nil {
		return ContextWindow{}, err
	}

	w := ContextWindow{
		SystemPrompt:        m.config.SystemPrompt,
		AnalysisContext:     m.analysisContext(ctx, analysis, budget.AnalysisContext, opts),
		ConversationHistory: history,
		CurrentQuery:        truncateQuery(query, m.queryChars(budget.CurrentQuery)),
	}
	w.TotalTokens = m.total(w)

	if w.TotalTokens > maxTokens {
		w = m.optimizer.OptimizeContextWindow(w, maxTokens)
	}

	m.logger.Debug("context window built",
		"total_tokens", w.TotalTokens,
		"max_tokens", maxTokens,
		"messages", len(messages),
		"degraded", w.Degraded,
	)
	return w, nil
}

func (m *Manager) analysisContext(ctx context.Context, a conversation.Analysis, budget int, opts BuildOptions) string {
	render := func() string {
		optimized := m.optimizer.OptimizeAnalysisData(a, m.config.TopGaps)
		text := strings.Join(renderAnalysis(optimized, m.config.MaxCompetitors), "\n")
		return fitAnalysis(m.estimator, text, budget)
	}
	return m.optimizer.analysisContext(ctx, analysisCacheKey(a, budget), opts.UseCache, render)
}

// analysisCacheKey keys a rendering by analysis ID, content fingerprint and
// budget, so an edited analysis or a different budget never reuses a stale
// rendering.
func analysisCacheKey(a conversation.Analysis, budget int) string {
	fp, err := conversation.Fingerprint(a)
	if err != nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("analysis:")
	b.WriteString(a.ID)
	b.WriteString(":")
	b.WriteString(fp[:16])
	b.WriteString(":")
	b.WriteString(strconv.Itoa(budget))
	return b.String()
}

func (m *Manager) conversationHistory(ctx context.Context, messages []conversation.Message, budget int) (string, error) {
	var text string
	if m.summarizer.NeedsSummarization(len(messages)) {
		s, err := m.summarizer.Summarize(ctx, messages)
		if err != nil {
			return "", err
		}
		text = FormatForContext(s)
	} else {
		text = strings.Join(messageLines(messages), "\n")
	}
	return fitHistory(m.estimator, text, budget), nil
}

// queryChars converts a token budget into the character cap applied to the
// query, leaving room for the ellipsis marker.
func (m *Manager) queryChars(tokens int) int {
	return int(float64(tokens)*m.config.CharsPerToken) - len(queryEllipsis)
}

// EstimateTokens estimates the token count of text.
func (m *Manager) EstimateTokens(text string) int {
	return m.estimator.Estimate(text)
}

// ValidateBudget reports whether w fits within maxTokens.
func (m *Manager) ValidateBudget(w ContextWindow, maxTokens int) bool {
	return w.TotalTokens <= maxTokens
}

// TokenBudget returns the per-segment allocation for maxTokens.
func (m *Manager) TokenBudget(maxTokens int) TokenBudget {
	if maxTokens <= 0 {
		maxTokens = m.config.MaxContextTokens
	}
	return NewTokenBudget(maxTokens)
}

// TokenBreakdown returns per-segment token counts for w.
func (m *Manager) TokenBreakdown(w ContextWindow) map[string]int {
	return Breakdown(m.estimator, map[string]string{
		SegmentSystemPrompt:        w.SystemPrompt,
		SegmentAnalysisContext:     w.AnalysisContext,
		SegmentConversationHistory: w.ConversationHistory,
		SegmentCurrentQuery:        w.CurrentQuery,
	})
}

// ClearCache drops cached analysis renderings.
func (m *Manager) ClearCache(ctx context.Context) {
	m.optimizer.ClearCache(ctx)
}

// Optimizer returns the optimizer used by m.
func (m *Manager) Optimizer() *ContextOptimizer {
	return m.optimizer
}

func (m *Manager) total(w ContextWindow) int {
	return EstimateSegments(m.estimator, []string{w.SystemPrompt, w.AnalysisContext, w.ConversationHistory, w.CurrentQuery})
}
