package ctxengine_test

import (
	"fmt"
	"strings"
	"testing"

	ctxengine "github.com/Realm-101/unbuilt-advisor/internal/context"
	"github.com/Realm-101/unbuilt-advisor/internal/conversation"
	"github.com/Realm-101/unbuilt-advisor/internal/conversation/conversationtest"
)

func newOptimizer() *ctxengine.ContextOptimizer {
	return ctxengine.NewContextOptimizer(ctxengine.NewCharEstimator(4), nil, ctxengine.ContextConfig{}, nil)
}

func TestOptimizeAnalysisData(t *testing.T) {
	t.Parallel()

	a := conversationtest.Analysis()
	got := newOptimizer().OptimizeAnalysisData(a, 2)

	if len(got.TopGaps) != 2 {
		t.Fatalf("len(TopGaps) = %d, want 2", len(got.TopGaps))
	}
	if got.TopGaps[0].Score != 91 || got.TopGaps[1].Score != 82 {
		t.Fatalf("TopGaps not sorted by score: %+v", got.TopGaps)
	}
	if a.TopGaps[0].Score != 82 || len(a.TopGaps) != 4 {
		t.Fatal("OptimizeAnalysisData mutated its input")
	}
}

func TestOptimizeAnalysisData_StableTiesAndZero(t *testing.T) {
	t.Parallel()

	a := conversation.Analysis{TopGaps: []conversation.Gap{
		{Title: "first", Score: 5},
		{Title: "second", Score: 5},
		{Title: "third", Score: 9},
	}}
	got := newOptimizer().OptimizeAnalysisData(a, 3)
	titles := []string{got.TopGaps[0].Title, got.TopGaps[1].Title, got.TopGaps[2].Title}
	if strings.Join(titles, ",") != "third,first,second" {
		t.Fatalf("order = %v", titles)
	}

	if got := newOptimizer().OptimizeAnalysisData(a, 0); len(got.TopGaps) != 0 {
		t.Fatalf("topN 0 kept %d gaps", len(got.TopGaps))
	}
}

func historyLines(n int) string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("User: message %02d %s", i, strings.Repeat("x", 20))
	}
	return strings.Join(lines, "\n")
}

func TestOptimizeContextWindow_TrimsHistoryFirst(t *testing.T) {
	t.Parallel()

	analysis := "Innovation score: 50/100. Feasibility: high.\nCompetitors: A; B"
	w := ctxengine.ContextWindow{
		SystemPrompt:        "sys",
		AnalysisContext:     analysis,
		ConversationHistory: historyLines(10),
		CurrentQuery:        "q?",
	}
	got := newOptimizer().OptimizeContextWindow(w, 60)

	if got.AnalysisContext != analysis {
		t.Errorf("analysis trimmed before history was exhausted: %q", got.AnalysisContext)
	}
	if strings.Contains(got.ConversationHistory, "message 00") {
		t.Error("oldest history line survived")
	}
	if !strings.HasSuffix(got.ConversationHistory, "message 09 "+strings.Repeat("x", 20)) {
		t.Errorf("newest history line dropped: %q", got.ConversationHistory)
	}
	if got.TotalTokens > 60 || got.Degraded {
		t.Fatalf("TotalTokens = %d, Degraded = %v", got.TotalTokens, got.Degraded)
	}
}

func TestOptimizeContextWindow_KeepsSummaryBlock(t *testing.T) {
	t.Parallel()

	summary := "Conversation summary: 12 earlier messages."
	w := ctxengine.ContextWindow{
		SystemPrompt:        "sys",
		ConversationHistory: summary + "\n\n" + historyLines(10),
		CurrentQuery:        "q?",
	}
	got := newOptimizer().OptimizeContextWindow(w, 40)

	if !strings.HasPrefix(got.ConversationHistory, summary) {
		t.Fatalf("summary block dropped: %q", got.ConversationHistory)
	}
	if got.TotalTokens > 40 {
		t.Fatalf("TotalTokens = %d", got.TotalTokens)
	}
}

func TestOptimizeContextWindow_TrimsAnalysisToFirstLine(t *testing.T) {
	t.Parallel()

	first := "Innovation score: 50/100. Feasibility: high."
	var b strings.Builder
	b.WriteString(first)
	for range 5 {
		b.WriteString("\n" + strings.Repeat("y", 40))
	}
	w := ctxengine.ContextWindow{
		SystemPrompt:    "sys",
		AnalysisContext: b.String(),
		CurrentQuery:    "q?",
	}
	got := newOptimizer().OptimizeContextWindow(w, 20)

	if got.AnalysisContext != first {
		t.Fatalf("AnalysisContext = %q, want first line only", got.AnalysisContext)
	}
	if got.TotalTokens > 20 || got.Degraded {
		t.Fatalf("TotalTokens = %d, Degraded = %v", got.TotalTokens, got.Degraded)
	}
}

func TestOptimizeContextWindow_FitsUnchanged(t *testing.T) {
	t.Parallel()

	w := ctxengine.ContextWindow{SystemPrompt: "sys", ConversationHistory: "User: hi", CurrentQuery: "q"}
	got := newOptimizer().OptimizeContextWindow(w, 100)
	w.TotalTokens = got.TotalTokens
	if got != w {
		t.Fatalf("window changed although it fits: %+v", got)
	}
}
