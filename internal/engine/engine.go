// Package engine runs a conversation turn end to end: rate limiting, input
// screening, duplicate detection, context building, the model call, response
// screening, persistence and follow-up suggestions.
package engine

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	ctxengine "github.com/Realm-101/unbuilt-advisor/internal/context"
	"github.com/Realm-101/unbuilt-advisor/internal/conversation"
	"github.com/Realm-101/unbuilt-advisor/internal/dedup"
	"github.com/Realm-101/unbuilt-advisor/internal/metrics"
	"github.com/Realm-101/unbuilt-advisor/internal/quality"
	"github.com/Realm-101/unbuilt-advisor/internal/questions"
	"github.com/Realm-101/unbuilt-advisor/internal/security"
)

const tracerName = "github.com/Realm-101/unbuilt-advisor/internal/engine"

// Completer produces a model response for a built context window.
// Implementations must honor ctx cancellation.
type Completer interface {
	Complete(ctx context.Context, window ctxengine.ContextWindow) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, window ctxengine.ContextWindow) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, window ctxengine.ContextWindow) (string, error) {
	return f(ctx, window)
}

// Config holds turn-level settings.
type Config struct {
	// MaxTokens is the context budget per turn; 0 uses the context default.
	MaxTokens int `yaml:"max_tokens"`

	// DisableAnalysisCache bypasses the rendered-analysis cache.
	DisableAnalysisCache bool `yaml:"disable_analysis_cache"`

	// CrossConversation enables the cross-conversation duplicate index.
	CrossConversation bool `yaml:"cross_conversation"`
}

// Deps are the collaborators of an Engine. Store, Analyses, Completer and
// Context are required; the rest fall back to defaults.
type Deps struct {
	Store     conversation.MessageStore
	Analyses  conversation.AnalysisProvider
	Completer Completer
	Context   *ctxengine.Manager

	Input     *security.InputValidator
	Limiter   *security.ConversationRateLimiter
	Quality   *quality.Validator
	Dedup     *dedup.Service
	Questions *questions.Generator
	Events    security.SecurityLogger
	Metrics   *metrics.Metrics
	Tracer    trace.Tracer
	Logger    *slog.Logger
}

// Engine orchestrates conversation turns. It is safe for concurrent use.
type Engine struct {
	config Config
	deps   Deps
}

// ErrMissingDependency is returned by New when a required collaborator is nil.
var ErrMissingDependency = errors.New("engine: missing dependency")

// New validates deps and fills optional collaborators with defaults.
func New(cfg Config, deps Deps) (*Engine, error) {
	var errs []error
	if deps.Store == nil {
		errs = append(errs, errors.New("store"))
	}
	if deps.Analyses == nil {
		errs = append(errs, errors.New("analyses"))
	}
	if deps.Completer == nil {
		errs = append(errs, errors.New("completer"))
	}
	if deps.Context == nil {
		errs = append(errs, errors.New("context manager"))
	}
	if len(errs) > 0 {
		return nil, errors.Join(append([]error{ErrMissingDependency}, errs...)...)
	}

	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Events == nil {
		deps.Events = security.NopSecurityLogger{}
	}
	if deps.Input == nil {
		v, err := security.NewInputValidator(security.InputValidatorConfig{}, deps.Events)
		if err != nil {
			return nil, err
		}
		deps.Input = v
	}
	if deps.Limiter == nil {
		deps.Limiter = security.NewConversationRateLimiter(security.RateLimitConfig{})
	}
	if deps.Quality == nil {
		deps.Quality = quality.NewValidator(quality.Config{})
	}
	if deps.Dedup == nil {
		deps.Dedup = dedup.NewService(dedup.Config{}, nil, deps.Logger)
	}
	if deps.Questions == nil {
		deps.Questions = questions.NewGenerator(questions.Config{})
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(tracerName)
	}
	return &Engine{config: cfg, deps: deps}, nil
}
