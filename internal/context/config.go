// Package ctxengine builds the bounded context window handed to the advisory
// model: token estimation and budgeting, history summarization, analysis
// rendering with caching, and priority-ordered trimming.
package ctxengine

import "time"

// DefaultSystemPrompt is the identity string placed at the top of every
// context window.
const DefaultSystemPrompt = "You are an AI advisor for the Unbuilt platform. " +
	"You help founders interpret gap analyses, validate markets and plan next steps. " +
	"Be specific, cite the analysis where possible and qualify uncertain numbers."

// ContextConfig holds the tuning knobs for the context engine.
type ContextConfig struct {
	// MaxContextTokens is the default total budget when a caller passes 0.
	MaxContextTokens int `yaml:"max_tokens"`

	// CharsPerToken is the estimator ratio (~4 for English).
	CharsPerToken float64 `yaml:"chars_per_token"`

	// SummarizeThreshold triggers history summarization once the message
	// count exceeds it.
	SummarizeThreshold int `yaml:"summarize_threshold"`

	// RetainRecent is the number of most-recent messages kept verbatim
	// after summarization.
	RetainRecent int `yaml:"retain_recent"`

	// MaxSummaryTopics caps the topics listed by the extractive summary.
	MaxSummaryTopics int `yaml:"max_summary_topics"`

	// TopGaps is the number of highest-scoring gaps rendered into the
	// analysis context.
	TopGaps int `yaml:"top_gaps"`

	// MaxCompetitors caps the competitors rendered into the analysis context.
	MaxCompetitors int `yaml:"max_competitors"`

	// CacheTTL is how long a rendered analysis context stays cached.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// SystemPrompt overrides DefaultSystemPrompt.
	SystemPrompt string `yaml:"system_prompt"`
}

// withDefaults returns a copy of cfg with zero-valued fields replaced by
// sensible defaults.
func (cfg ContextConfig) withDefaults() ContextConfig {
	if cfg.MaxContextTokens <= 0 {
		cfg.MaxContextTokens = DefaultMaxTokens
	}
	if cfg.CharsPerToken <= 0 {
		cfg.CharsPerToken = 4.0
	}
	if cfg.SummarizeThreshold <= 0 {
		cfg.SummarizeThreshold = 10
	}
	if cfg.RetainRecent <= 0 {
		cfg.RetainRecent = 5
	}
	if cfg.MaxSummaryTopics <= 0 {
		cfg.MaxSummaryTopics = 6
	}
	if cfg.TopGaps <= 0 {
		cfg.TopGaps = 3
	}
	if cfg.MaxCompetitors <= 0 {
		cfg.MaxCompetitors = 3
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Minute
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	return cfg
}
