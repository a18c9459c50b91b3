// Package enginetest provides test doubles for the engine package.
package enginetest

import (
	"context"
	"sync"

	ctxengine "github.com/Realm-101/unbuilt-advisor/internal/context"
	"github.com/Realm-101/unbuilt-advisor/internal/engine"
)

// MockCompleter is a configurable engine.Completer. CompleteFunc controls
// the response; when it is nil, Response is returned. Every window passed
// to Complete is recorded. Safe for concurrent use.
type MockCompleter struct {
	CompleteFunc func(ctx context.Context, window ctxengine.ContextWindow) (string, error)
	Response     string

	mu      sync.Mutex
	windows []ctxengine.ContextWindow
}

// Interface guard.
var _ engine.Completer = (*MockCompleter)(nil)

// Complete implements engine.Completer.
func (m *MockCompleter) Complete(ctx context.Context, window ctxengine.ContextWindow) (string, error) {
	m.mu.Lock()
	m.windows = append(m.windows, window)
	m.mu.Unlock()
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, window)
	}
	return m.Response, nil
}

// Calls returns how many times Complete was called.
func (m *MockCompleter) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}

// Windows returns the windows passed to Complete, in call order.
func (m *MockCompleter) Windows() []ctxengine.ContextWindow {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ctxengine.ContextWindow(nil), m.windows...)
}
