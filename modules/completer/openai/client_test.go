package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	ctxengine "github.com/Realm-101/unbuilt-advisor/internal/context"
)

func newTestCompleter(t *testing.T, handler http.Handler) *Completer {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{APIKey: "sk-test", Model: "gpt-4o-mini", BaseURL: srv.URL + "/"}, srv.Client())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func window() ctxengine.ContextWindow {
	return ctxengine.ContextWindow{
		SystemPrompt:        "You are an advisor.",
		AnalysisContext:     "Innovation score: 78/100.",
		ConversationHistory: "User: hi\nAssistant: hello",
		CurrentQuery:        "How big is the market?",
	}
}

func TestComplete_Success(t *testing.T) {
	t.Parallel()

	c := newTestCompleter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Error("missing authorization header")
		}

		body, _ := io.ReadAll(r.Body)
		var req chatRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("invalid request body: %v", err)
		}
		if req.Model != "gpt-4o-mini" || req.MaxTokens != 1024 {
			t.Errorf("request = %+v", req)
		}
		want := []chatMessage{
			{Role: "system", Content: "You are an advisor.\n\nInnovation score: 78/100."},
			{Role: "system", Content: "Conversation so far:\nUser: hi\nAssistant: hello"},
			{Role: "user", Content: "How big is the market?"},
		}
		if len(req.Messages) != len(want) {
			t.Fatalf("messages = %+v", req.Messages)
		}
		for i := range want {
			if req.Messages[i] != want[i] {
				t.Errorf("message %d = %+v, want %+v", i, req.Messages[i], want[i])
			}
		}

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Roughly $4B."}}]}`))
	}))

	got, err := c.Complete(context.Background(), window())
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "Roughly $4B." {
		t.Errorf("response = %q", got)
	}
}

func TestComplete_NoHistory(t *testing.T) {
	t.Parallel()

	w := window()
	w.ConversationHistory = ""
	if msgs := toMessages(w); len(msgs) != 2 || msgs[1].Role != "user" {
		t.Fatalf("messages = %+v", msgs)
	}
}

func TestComplete_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"rate limit", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, ErrRateLimit},
		{"auth", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, ErrAuth},
		{"context length", http.StatusBadRequest, `{"error":{"message":"too long","code":"context_length_exceeded"}}`, ErrContextLength},
		{"server", http.StatusBadGateway, `upstream`, ErrUnavailable},
		{"empty", http.StatusOK, `{"choices":[]}`, ErrEmptyResponse},
	}
	for _, tt := range tests {
		c := newTestCompleter(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.status)
			_, _ = w.Write([]byte(tt.body))
		}))
		if _, err := c.Complete(context.Background(), window()); !errors.Is(err, tt.want) {
			t.Errorf("%s: err = %v, want %v", tt.name, err, tt.want)
		}
	}
}

func TestComplete_Cancelled(t *testing.T) {
	t.Parallel()

	c := newTestCompleter(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"late"}}]}`))
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Complete(ctx, window()); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Timeout: "soon"}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"api_key", "model", "timeout"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error does not mention %s: %v", want, err)
		}
	}
	if (Config{}).Enabled() {
		t.Error("empty config reported as enabled")
	}
}

