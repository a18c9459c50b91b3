package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Realm-101/unbuilt-advisor/internal/cache"
	"github.com/Realm-101/unbuilt-advisor/internal/conversation"
	"github.com/Realm-101/unbuilt-advisor/internal/conversation/conversationtest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(context.Background(), Config{Path: filepath.Join(t.TempDir(), "test.db")}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// --- MessageStore ---

func TestAppendAndGetMessages(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	for _, m := range conversationtest.Exchange("How big is the market?", "Roughly 2B, likely growing.") {
		if _, err := s.Append(ctx, m); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if _, err := s.Append(ctx, conversation.Message{ConversationID: "other", Role: conversation.RoleUser, Content: "x"}); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetMessages(ctx, "conv-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Role != conversation.RoleUser || got[0].Content != "How big is the market?" {
		t.Errorf("got[0] = %+v", got[0])
	}
	if got[1].Role != conversation.RoleAssistant {
		t.Errorf("got[1].Role = %q, want assistant", got[1].Role)
	}
	if got[0].ID == "" || got[0].CreatedAt.IsZero() {
		t.Errorf("id/created_at not filled: %+v", got[0])
	}
}

func TestAppendBatch_RollsBackOnFailure(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.Append(ctx, conversation.Message{ID: "taken", ConversationID: "c", Role: conversation.RoleUser, Content: "earlier"})
	if err != nil {
		t.Fatal(err)
	}

	batch := []conversation.Message{
		{ConversationID: "c", Role: conversation.RoleUser, Content: "new question"},
		{ID: first.ID, ConversationID: "c", Role: conversation.RoleAssistant, Content: "answer"},
	}
	if _, err := s.AppendBatch(ctx, batch); err == nil {
		t.Fatal("expected duplicate id to fail the batch")
	}

	got, err := s.GetMessages(ctx, "c")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Content != "earlier" {
		t.Fatalf("partial batch persisted: %+v", got)
	}

	stored, err := s.AppendBatch(ctx, conversationtest.Exchange("q", "a"))
	if err != nil {
		t.Fatalf("append batch: %v", err)
	}
	if stored[0].ID == "" || stored[1].CreatedAt.IsZero() {
		t.Errorf("batch not filled: %+v", stored)
	}
	if got, _ := s.GetMessages(ctx, "conv-1"); len(got) != 2 || got[1].Role != conversation.RoleAssistant {
		t.Errorf("batch history = %+v", got)
	}
}

func TestAppend_FillsIDAndTimestamp(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	fixed := time.Date(2026, 3, 1, 9, 30, 0, 123, time.UTC)
	s.now = func() time.Time { return fixed }

	msg, err := s.Append(context.Background(), conversation.Message{ConversationID: "c", Role: conversation.RoleUser, Content: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if msg.ID == "" {
		t.Error("ID not assigned")
	}
	if !msg.CreatedAt.Equal(fixed) {
		t.Errorf("CreatedAt = %v, want %v", msg.CreatedAt, fixed)
	}

	got, _ := s.GetMessages(context.Background(), "c")
	if !got[0].CreatedAt.Equal(fixed) {
		t.Errorf("stored CreatedAt = %v, want %v", got[0].CreatedAt, fixed)
	}
}

func TestAppend_DuplicateID(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	m := conversation.Message{ID: "dup", ConversationID: "c", Role: conversation.RoleUser, Content: "a"}
	if _, err := s.Append(ctx, m); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Append(ctx, m); err == nil {
		t.Error("expected error for duplicate message id")
	}
}

func TestGetMessages_Unknown(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	got, err := s.GetMessages(context.Background(), "nope")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("got %v, want empty non-nil slice", got)
	}
}

func TestAppend_ConcurrentKeepsOrderUnique(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for i := range n {
		wg.Go(func() {
			_, err := s.Append(ctx, conversation.Message{
				ConversationID: "c",
				Role:           conversation.RoleUser,
				Content:        fmt.Sprintf("m%d", i),
			})
			if err != nil {
				t.Errorf("append %d: %v", i, err)
			}
		})
	}
	wg.Wait()

	got, _ := s.GetMessages(ctx, "c")
	if len(got) != n {
		t.Errorf("len = %d, want %d", len(got), n)
	}
}

func TestDeleteConversation(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	for _, m := range conversationtest.Messages(4) {
		if _, err := s.Append(ctx, m); err != nil {
			t.Fatal(err)
		}
	}
	n, err := s.DeleteConversation(ctx, "conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("deleted = %d, want 4", n)
	}
	got, _ := s.GetMessages(ctx, "conv-1")
	if len(got) != 0 {
		t.Errorf("remaining = %d, want 0", len(got))
	}
}

// --- AnalysisProvider ---

func TestPutAndGetAnalysis(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	a := conversationtest.Analysis()

	if err := s.PutAnalysis(ctx, a); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.GetAnalysis(ctx, a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	want, _ := conversation.Fingerprint(a)
	have, _ := conversation.Fingerprint(got)
	if want != have {
		t.Errorf("round-tripped analysis differs:\n got %+v\nwant %+v", got, a)
	}

	a.InnovationScore = 12
	if err := s.PutAnalysis(ctx, a); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got, _ = s.GetAnalysis(ctx, a.ID)
	if got.InnovationScore != 12 {
		t.Errorf("score = %d after replace, want 12", got.InnovationScore)
	}
}

func TestGetAnalysis_NotFound(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, err := s.GetAnalysis(context.Background(), "missing")
	if !errors.Is(err, conversation.ErrAnalysisNotFound) {
		t.Errorf("err = %v, want ErrAnalysisNotFound", err)
	}
}

func TestPutAnalysis_Invalid(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	a := conversationtest.Analysis()
	a.InnovationScore = 140
	if err := s.PutAnalysis(context.Background(), a); !errors.Is(err, conversation.ErrStructural) {
		t.Errorf("err = %v, want ErrStructural", err)
	}

	a = conversationtest.Analysis()
	a.ID = ""
	if err := s.PutAnalysis(context.Background(), a); !errors.Is(err, conversation.ErrStructural) {
		t.Errorf("err = %v, want ErrStructural for empty id", err)
	}
}

// --- Cache ---

func TestCache_SetGetExpire(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	c := s.Cache()

	if _, err := c.Get(ctx, "k"); !errors.Is(err, cache.ErrMiss) {
		t.Fatalf("empty get err = %v, want ErrMiss", err)
	}
	if err := c.Set(ctx, "k", "v1", time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := c.Set(ctx, "k", "v2", time.Minute); err != nil {
		t.Fatal(err)
	}
	if v, err := c.Get(ctx, "k"); err != nil || v != "v2" {
		t.Fatalf("get = %q, %v; want v2", v, err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := c.Get(ctx, "k"); !errors.Is(err, cache.ErrMiss) {
		t.Errorf("expired get err = %v, want ErrMiss", err)
	}
	if c.Len() != 1 {
		t.Errorf("len before purge = %d, want 1", c.Len())
	}
	n, err := c.Purge(ctx)
	if err != nil || n != 1 {
		t.Errorf("purge = %d, %v; want 1", n, err)
	}
	if c.Len() != 0 {
		t.Errorf("len after purge = %d, want 0", c.Len())
	}
}

func TestCache_Clear(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	c := s.Cache()

	_ = c.Set(ctx, "a", "1", 0)
	_ = c.Set(ctx, "b", "2", 0)
	if err := c.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 0 {
		t.Errorf("len = %d, want 0", c.Len())
	}
}

func TestCache_ClearPrefix(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	c := s.Cache()

	_ = c.Set(ctx, "ctx:a", "1", 0)
	_ = c.Set(ctx, "dedup:a", "2", 0)
	_ = c.Set(ctx, "dedup:b", "3", 0)

	if got := c.LenPrefix("dedup:"); got != 2 {
		t.Errorf("LenPrefix = %d, want 2", got)
	}
	n, err := c.ClearPrefix(ctx, "ctx:")
	if err != nil || n != 1 {
		t.Fatalf("ClearPrefix = %d, %v; want 1, nil", n, err)
	}
	if c.Len() != 2 {
		t.Errorf("len = %d, want 2", c.Len())
	}
	if v, err := cache.WithPrefix(c, "dedup:").Get(ctx, "b"); err != nil || v != "3" {
		t.Errorf("dedup entry = %q, %v", v, err)
	}
}

// --- Open ---

func TestOpen_CreatesDirectoryAndReopens(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "dir", "advisor.db")
	ctx := context.Background()

	s, err := Open(ctx, Config{Path: path}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.Append(ctx, conversation.Message{ConversationID: "c", Role: conversation.RoleUser, Content: "persisted"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	s, err = Open(ctx, Config{Path: path}, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = s.Close() }()
	got, _ := s.GetMessages(ctx, "c")
	if len(got) != 1 || got[0].Content != "persisted" {
		t.Errorf("after reopen got %+v", got)
	}
}

func TestOpen_InvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing path", Config{}},
		{"negative busy timeout", Config{Path: "x.db", BusyTimeout: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Open(context.Background(), tt.cfg, nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}
