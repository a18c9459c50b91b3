package conversation_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Realm-101/unbuilt-advisor/internal/conversation"
	"github.com/Realm-101/unbuilt-advisor/internal/conversation/conversationtest"
)

func TestParseTier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want conversation.Tier
	}{
		{"free", conversation.TierFree},
		{"PRO", conversation.TierPro},
		{" Enterprise ", conversation.TierEnterprise},
		{"platinum", conversation.TierFree},
		{"", conversation.TierFree},
	}
	for _, tt := range tests {
		if got := conversation.ParseTier(tt.in); got != tt.want {
			t.Errorf("ParseTier(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMaxSeverity(t *testing.T) {
	t.Parallel()

	if got := conversation.MaxSeverity(conversation.SeverityLow, conversation.SeverityHigh); got != conversation.SeverityHigh {
		t.Errorf("MaxSeverity(low, high) = %q", got)
	}
	if got := conversation.MaxSeverity(conversation.SeverityMedium, conversation.SeverityNone); got != conversation.SeverityMedium {
		t.Errorf("MaxSeverity(medium, none) = %q", got)
	}
}

func TestAnalysis_CloneIsDeep(t *testing.T) {
	t.Parallel()

	a := conversationtest.Analysis()
	c := a.Clone()
	c.TopGaps[0].Title = "changed"
	c.ActionPlan.Phases[0].Name = "changed"

	if a.TopGaps[0].Title == "changed" || a.ActionPlan.Phases[0].Name == "changed" {
		t.Fatal("Clone shares memory with the original")
	}
}

func TestDecodeAnalysis_Valid(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"id":"a1","innovation_score":70,"feasibility_rating":"high",
		"top_gaps":[{"title":"Gap","score":12.5}],"competitors":[{"name":"X"}],
		"action_plan":{"phases":[{"name":"Start"}]}}`)

	a, err := conversation.DecodeAnalysis(raw)
	if err != nil {
		t.Fatalf("DecodeAnalysis: %v", err)
	}
	if a.ID != "a1" || a.InnovationScore != 70 || len(a.TopGaps) != 1 {
		t.Errorf("unexpected analysis: %+v", a)
	}
}

func TestDecodeAnalysis_Invalid(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"score out of range":  `{"innovation_score":140,"feasibility_rating":"high"}`,
		"unknown feasibility": `{"innovation_score":10,"feasibility_rating":"maybe"}`,
		"missing fields":      `{"id":"x"}`,
		"gap without title":   `{"innovation_score":10,"feasibility_rating":"low","top_gaps":[{"score":1}]}`,
		"not json":            `{`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := conversation.DecodeAnalysis([]byte(raw))
			if !errors.Is(err, conversation.ErrStructural) {
				t.Fatalf("err = %v, want ErrStructural", err)
			}
		})
	}
}

func TestValidateMessages(t *testing.T) {
	t.Parallel()

	if err := conversation.ValidateMessages(conversationtest.Messages(4)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad := []conversation.Message{{Role: "system", Content: "x"}}
	if err := conversation.ValidateMessages(bad); !errors.Is(err, conversation.ErrStructural) {
		t.Fatalf("err = %v, want ErrStructural", err)
	}
}

func TestFingerprint_StableAndSensitive(t *testing.T) {
	t.Parallel()

	a := conversationtest.Analysis()
	f1, err := conversation.Fingerprint(a)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	f2, _ := conversation.Fingerprint(a.Clone())
	if f1 != f2 {
		t.Fatal("fingerprint differs for equal analyses")
	}

	b := a.Clone()
	b.InnovationScore++
	f3, _ := conversation.Fingerprint(b)
	if f1 == f3 {
		t.Fatal("fingerprint did not change with content")
	}
}

func TestInMemoryMessageStore_AppendOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := conversation.NewInMemoryMessageStore()

	for _, content := range []string{"first", "second", "third"} {
		msg, err := store.Append(ctx, conversation.Message{ConversationID: "c1", Role: conversation.RoleUser, Content: content})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		if msg.ID == "" || msg.CreatedAt.IsZero() {
			t.Fatalf("Append did not fill ID/CreatedAt: %+v", msg)
		}
	}

	msgs, err := store.GetMessages(ctx, "c1")
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 3 || msgs[0].Content != "first" || msgs[2].Content != "third" {
		t.Fatalf("unexpected order: %+v", msgs)
	}

	empty, _ := store.GetMessages(ctx, "unknown")
	if len(empty) != 0 {
		t.Fatalf("expected empty history, got %d", len(empty))
	}
}

func TestInMemoryMessageStore_AppendBatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := conversation.NewInMemoryMessageStore()

	got, err := store.AppendBatch(ctx, conversationtest.Exchange("How big is the market?", "Roughly 2B."))
	if err != nil {
		t.Fatalf("AppendBatch: %v", err)
	}
	if len(got) != 2 || got[0].ID == "" || got[1].CreatedAt.IsZero() {
		t.Fatalf("AppendBatch did not fill ID/CreatedAt: %+v", got)
	}

	msgs, _ := store.GetMessages(ctx, "conv-1")
	if len(msgs) != 2 || msgs[0].Role != conversation.RoleUser || msgs[1].Role != conversation.RoleAssistant {
		t.Fatalf("unexpected history: %+v", msgs)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := store.AppendBatch(cancelled, conversationtest.Exchange("q", "a")); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if msgs, _ := store.GetMessages(ctx, "conv-1"); len(msgs) != 2 {
		t.Fatalf("cancelled batch stored messages: %d", len(msgs))
	}
}

func TestInMemoryAnalysisProvider(t *testing.T) {
	t.Parallel()

	p := conversation.NewInMemoryAnalysisProvider(conversationtest.Analysis())
	a, err := p.GetAnalysis(context.Background(), "analysis-1")
	if err != nil {
		t.Fatalf("GetAnalysis: %v", err)
	}
	a.TopGaps[0].Title = "mutated"

	again, _ := p.GetAnalysis(context.Background(), "analysis-1")
	if again.TopGaps[0].Title == "mutated" {
		t.Fatal("provider returned shared memory")
	}

	if _, err := p.GetAnalysis(context.Background(), "missing"); !errors.Is(err, conversation.ErrAnalysisNotFound) {
		t.Fatalf("err = %v, want ErrAnalysisNotFound", err)
	}
}
