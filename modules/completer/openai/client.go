// Package openai completes context windows through an OpenAI-compatible
// Chat Completions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	ctxengine "github.com/Realm-101/unbuilt-advisor/internal/context"
	"github.com/Realm-101/unbuilt-advisor/internal/engine"
)

// maxResponseSize is the maximum response body size (10 MB).
const maxResponseSize = 10 * 1024 * 1024

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Completer sends context windows to a chat-completions endpoint.
type Completer struct {
	config Config
	client *http.Client
}

// Compile-time interface guard.
var _ engine.Completer = (*Completer)(nil)

// New validates cfg and creates a Completer. A nil client gets one with the
// configured timeout.
func New(cfg Config, client *http.Client) (*Completer, error) {
	cfg.defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.parsedTimeout()}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Completer{config: cfg, client: client}, nil
}

// Model returns the configured model identifier.
func (c *Completer) Model() string { return c.config.Model }

// toMessages lays a window out as chat messages: the system prompt with the
// analysis context, the rendered history, then the query.
func toMessages(w ctxengine.ContextWindow) []chatMessage {
	system := w.SystemPrompt
	if w.AnalysisContext != "" {
		system += "\n\n" + w.AnalysisContext
	}
	msgs := []chatMessage{{Role: "system", Content: system}}
	if w.ConversationHistory != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: "Conversation so far:\n" + w.ConversationHistory})
	}
	return append(msgs, chatMessage{Role: "user", Content: w.CurrentQuery})
}

// Complete implements engine.Completer.
func (c *Completer) Complete(ctx context.Context, w ctxengine.ContextWindow) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.config.Model,
		Messages:    toMessages(w),
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("completer.openai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("completer.openai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", mapConnectionError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("completer.openai: read response: %w", err)
	}
	if err := mapHTTPError(resp.StatusCode, raw); err != nil {
		return "", err
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return "", fmt.Errorf("completer.openai: unmarshal response: %w", err)
	}
	if len(cr.Choices) == 0 || strings.TrimSpace(cr.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return cr.Choices[0].Message.Content, nil
}
