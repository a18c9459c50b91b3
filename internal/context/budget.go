package ctxengine

import (
	"math"
	"strings"
	"unicode/utf8"
)

// DefaultMaxTokens is the total budget used when none is requested.
const DefaultMaxTokens = 8000

// Segment names used by token breakdowns.
const (
	SegmentSystemPrompt        = "systemPrompt"
	SegmentAnalysisContext     = "analysisContext"
	SegmentConversationHistory = "conversationHistory"
	SegmentCurrentQuery        = "currentQuery"
)

// TokenEstimator estimates the token count of a string.
type TokenEstimator interface {
	Estimate(text string) int
}

// CharEstimator estimates tokens using a simple characters-per-token ratio.
// A ratio of ~4 works well for English; ~3 for French or other Latin languages.
type CharEstimator struct {
	CharsPerToken float64
}

// NewCharEstimator creates a CharEstimator with the given ratio.
// If charsPerToken is <= 0, defaults to 4.0 (English approximation).
func NewCharEstimator(charsPerToken float64) *CharEstimator {
	if charsPerToken <= 0 {
		charsPerToken = 4.0
	}
	return &CharEstimator{CharsPerToken: charsPerToken}
}

// Estimate returns the estimated token count for text. Empty and
// whitespace-only text costs nothing; otherwise the rune count is divided
// by the ratio and rounded up.
func (e *CharEstimator) Estimate(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	ratio := e.CharsPerToken
	if ratio <= 0 {
		ratio = 4.0
	}
	return int(math.Ceil(float64(utf8.RuneCountInString(text)) / ratio))
}

// EstimateSegments returns the sum of the per-segment estimates.
func EstimateSegments(estimator TokenEstimator, segments []string) int {
	total := 0
	for _, s := range segments {
		total += estimator.Estimate(s)
	}
	return total
}

// Breakdown returns per-segment token counts. It is diagnostic only.
func Breakdown(estimator TokenEstimator, segments map[string]string) map[string]int {
	out := make(map[string]int, len(segments))
	for name, s := range segments {
		out[name] = estimator.Estimate(s)
	}
	return out
}

// TokenBudget is the per-segment allocation of a total token budget.
// The parts always sum exactly to the total.
type TokenBudget struct {
	SystemPrompt        int `json:"system_prompt"`
	AnalysisContext     int `json:"analysis_context"`
	ConversationHistory int `json:"conversation_history"`
	CurrentQuery        int `json:"current_query"`
	ResponseBuffer      int `json:"response_buffer"`
}

// Total returns the sum of all parts.
func (b TokenBudget) Total() int {
	return b.SystemPrompt + b.AnalysisContext + b.ConversationHistory + b.CurrentQuery + b.ResponseBuffer
}

// Input returns the tokens available for the four context segments.
func (b TokenBudget) Input() int {
	return b.Total() - b.ResponseBuffer
}

// NewTokenBudget scales the default input proportions (200/2000/1500/500 of
// 8000) to maxTokens. Every part is floored and everything left, including
// the rounding remainder, goes to the response buffer. A non-positive
// maxTokens uses DefaultMaxTokens.
func NewTokenBudget(maxTokens int) TokenBudget {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	b := TokenBudget{
		SystemPrompt:        maxTokens / 40,     // 2.5%
		AnalysisContext:     maxTokens / 4,      // 25%
		ConversationHistory: maxTokens * 3 / 16, // 18.75%
		CurrentQuery:        maxTokens / 16,     // 6.25%
	}
	b.ResponseBuffer = maxTokens - b.SystemPrompt - b.AnalysisContext - b.ConversationHistory - b.CurrentQuery
	return b
}
