package ctxengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/Realm-101/unbuilt-advisor/internal/conversation"
)

// ErrSummarizationFailed wraps failures of an attached Summarizer. The
// HistorySummarizer falls back to its extractive summary when it sees one.
var ErrSummarizationFailed = errors.New("ctxengine: summarization failed")

// summaryPrefix opens every summary block so trimming can recognize it.
const summaryPrefix = "Conversation summary: "

const maxTopicRunes = 80

// Summarizer produces a condensed summary of a conversation segment.
// The concrete implementation will typically call the advisory model.
type Summarizer interface {
	Summarize(ctx context.Context, messages []conversation.Message) (string, error)
}

// Summarized is a compressed history: a synopsis of the older messages and
// the verbatim tail.
type Summarized struct {
	Summary string
	Recent  []conversation.Message
}

// HistorySummarizer compresses long conversation histories into a summary
// plus the most recent messages.
type HistorySummarizer struct {
	summarizer Summarizer
	config     ContextConfig
	logger     *slog.Logger
}

// NewHistorySummarizer creates a HistorySummarizer. A nil summarizer uses
// the extractive summary only.
func NewHistorySummarizer(summarizer Summarizer, cfg ContextConfig, logger *slog.Logger) *HistorySummarizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistorySummarizer{
		summarizer: summarizer,
		config:     cfg.withDefaults(),
		logger:     logger,
	}
}

// NeedsSummarization reports whether a history of count messages exceeds
// the summarization threshold.
func (h *HistorySummarizer) NeedsSummarization(count int) bool {
	return count > h.config.SummarizeThreshold
}

// Summarize keeps the RetainRecent most recent messages verbatim and
// condenses the rest. Histories no longer than RetainRecent are returned
// unchanged with an empty summary. The only error is ctx's.
func (h *HistorySummarizer) Summarize(ctx context.Context, messages []conversation.Message) (Summarized, error) {
	if err := ctx.Err(); err != nil {
		return Summarized{}, err
	}

	retain := h.config.RetainRecent
	if len(messages) <= retain {
		recent := make([]conversation.Message, len(messages))
		copy(recent, messages)
		return Summarized{Recent: recent}, nil
	}

	old := messages[:len(messages)-retain]
	recent := make([]conversation.Message, retain)
	copy(recent, messages[len(messages)-retain:])

	rawLen := rawLength(old)
	summary := ""
	if h.summarizer != nil {
		s, err := h.summarizer.Summarize(ctx, old)
		switch {
		case err != nil && ctx.Err() != nil:
			return Summarized{}, ctx.Err()
		case err != nil:
			h.logger.Warn("history summarizer failed, using extractive summary",
				"error", fmt.Errorf("%w: %w", ErrSummarizationFailed, err),
			)
		case utf8.RuneCountInString(s) < rawLen && strings.TrimSpace(s) != "":
			summary = summaryPrefix + strings.TrimSpace(s)
		}
	}
	if summary == "" {
		summary = h.extractive(old)
	}

	// The summary must always be shorter than what it replaces.
	if utf8.RuneCountInString(summary) >= rawLen {
		summary = truncateRunes(summary, rawLen/2)
	}

	return Summarized{Summary: summary, Recent: recent}, nil
}

// extractive lists the topics raised by the most recent older user messages.
func (h *HistorySummarizer) extractive(old []conversation.Message) string {
	var topics []string
	for i := len(old) - 1; i >= 0 && len(topics) < h.config.MaxSummaryTopics; i-- {
		if old[i].Role != conversation.RoleUser {
			continue
		}
		if topic := firstSentence(old[i].Content); topic != "" {
			topics = append(topics, topic)
		}
	}

	var b strings.Builder
	b.WriteString(summaryPrefix)
	fmt.Fprintf(&b, "%d earlier messages.", len(old))
	if len(topics) > 0 {
		b.WriteString(" Topics already discussed: ")
		for i := len(topics) - 1; i >= 0; i-- {
			b.WriteString(topics[i])
			if i > 0 {
				b.WriteString("; ")
			}
		}
		b.WriteString(".")
	}
	return b.String()
}

// FormatForContext renders the summary, a blank line, then one
// "Role: content" line per retained message.
func FormatForContext(s Summarized) string {
	lines := messageLines(s.Recent)
	if s.Summary == "" {
		return strings.Join(lines, "\n")
	}
	if len(lines) == 0 {
		return s.Summary
	}
	return s.Summary + "\n\n" + strings.Join(lines, "\n")
}

func messageLines(msgs []conversation.Message) []string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		content := strings.Join(strings.Fields(m.Content), " ")
		lines = append(lines, m.Role.Label()+": "+content)
	}
	return lines
}

func rawLength(msgs []conversation.Message) int {
	n := 0
	for _, m := range msgs {
		n += utf8.RuneCountInString(m.Content)
	}
	return n
}

func firstSentence(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if i := strings.IndexAny(s, ".?!"); i >= 0 {
		s = s[:i]
	}
	return truncateRunes(s, maxTopicRunes)
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
