package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	ctxengine "github.com/Realm-101/unbuilt-advisor/internal/context"
	"github.com/Realm-101/unbuilt-advisor/internal/conversation"
	"github.com/Realm-101/unbuilt-advisor/internal/dedup"
	"github.com/Realm-101/unbuilt-advisor/internal/quality"
	"github.com/Realm-101/unbuilt-advisor/internal/questions"
	"github.com/Realm-101/unbuilt-advisor/internal/security"
)

// Outcome classifies how a turn ended.
type Outcome string

// Turn outcomes.
const (
	OutcomeAnswered         Outcome = "answered"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeCached           Outcome = "cached"
	OutcomeRateLimited      Outcome = "rate_limited"
	OutcomeRejectedInput    Outcome = "rejected_input"
	OutcomeRejectedResponse Outcome = "rejected_response"
)

// ReasonResponseRejected is reported when a model response fails the
// quality checks.
const ReasonResponseRejected = "The generated answer did not pass our quality checks. Please rephrase your question."

// TurnRequest is one user question.
type TurnRequest struct {
	UserID         string            `json:"user_id"`
	ConversationID string            `json:"conversation_id"`
	AnalysisID     string            `json:"analysis_id"`
	Query          string            `json:"query"`
	Tier           conversation.Tier `json:"tier"`
	IPAddress      string            `json:"-"`
	UserAgent      string            `json:"-"`
}

// TurnResult reports a finished turn. Denials are reported here with a
// Reason, never as errors.
type TurnResult struct {
	Outcome   Outcome                  `json:"outcome"`
	Response  string                   `json:"response,omitempty"`
	Reason    string                   `json:"reason,omitempty"`
	RateLimit security.RateLimitStatus `json:"rate_limit"`

	Input         *security.ValidationResult       `json:"input,omitempty"`
	Match         *dedup.Match                     `json:"match,omitempty"`
	Quality       *quality.Result                  `json:"quality,omitempty"`
	Relevance     *quality.Relevance               `json:"relevance,omitempty"`
	Hallucination *quality.HallucinationAssessment `json:"hallucination,omitempty"`
	ContextTokens int                              `json:"context_tokens,omitempty"`
	FollowUps     []questions.Question             `json:"follow_ups,omitempty"`
	Messages      []conversation.Message           `json:"messages,omitempty"`
}

// HandleTurn runs one question through the full pipeline. Errors are
// returned only when a collaborator fails or ctx ends; in that case nothing
// is written to the cache or the store.
func (e *Engine) HandleTurn(ctx context.Context, req TurnRequest) (res TurnResult, err error) {
	start := time.Now()
	tier := conversation.ParseTier(string(req.Tier))

	ctx, span := e.deps.Tracer.Start(ctx, "Engine.HandleTurn",
		trace.WithAttributes(
			attribute.String("conversation_id", req.ConversationID),
			attribute.String("analysis_id", req.AnalysisID),
			attribute.String("tier", string(tier)),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			e.deps.Metrics.RecordTurn("error", time.Since(start))
		} else {
			span.SetAttributes(attribute.String("outcome", string(res.Outcome)))
			e.deps.Metrics.RecordTurn(string(res.Outcome), time.Since(start))
		}
		span.End()
	}()

	status, release := e.deps.Limiter.Acquire(req.UserID, req.ConversationID, tier)
	defer release()
	if !status.Allowed {
		e.deps.Events.LogSecurityEvent(security.EventRateLimit, status.Limit, false, map[string]string{
			"user_id":         req.UserID,
			"conversation_id": req.ConversationID,
			"tier":            string(tier),
		})
		e.deps.Metrics.RecordRateLimitDenial(status.Limit)
		return TurnResult{Outcome: OutcomeRateLimited, Reason: status.Reason, RateLimit: status}, nil
	}
	res.RateLimit = status

	input := e.validateInput(ctx, req, tier)
	if !input.Valid {
		e.deps.Metrics.RecordInputRejection(rejectionLabel(input))
		res.Outcome, res.Reason, res.Input = OutcomeRejectedInput, input.Reason, &input
		return res, nil
	}
	query := input.Sanitized

	history, err := e.deps.Store.GetMessages(ctx, req.ConversationID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("engine: load history: %w", err)
	}

	if dup := e.findDuplicate(ctx, req, query, history); dup.Similar {
		match := dup.Match
		res.Outcome, res.Response, res.Match = OutcomeDuplicate, match.CachedResponse, &match
		if dup.Source == sourceIndex {
			res.Outcome = OutcomeCached
		}
		return e.finish(ctx, req, query, history, res)
	}

	analysis, err := e.deps.Analyses.GetAnalysis(ctx, req.AnalysisID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("engine: load analysis %q: %w", req.AnalysisID, err)
	}

	window, err := e.deps.Context.BuildContext(ctx, analysis, history, query, e.config.MaxTokens,
		ctxengine.BuildOptions{UseCache: !e.config.DisableAnalysisCache})
	if err != nil {
		return TurnResult{}, fmt.Errorf("engine: build context: %w", err)
	}
	e.deps.Metrics.RecordContext(window.TotalTokens, window.Degraded)
	res.ContextTokens = window.TotalTokens

	response, err := e.complete(ctx, window)
	if err != nil {
		return TurnResult{}, err
	}

	response, verdict := e.screenResponse(ctx, req, response)
	res.Quality = &verdict
	if !verdict.Valid {
		res.Outcome, res.Reason = OutcomeRejectedResponse, ReasonResponseRejected
		return res, nil
	}

	relevance := e.deps.Quality.CheckRelevance(response, query)
	hallucination := e.deps.Quality.DetectHallucination(response)
	res.Relevance, res.Hallucination = &relevance, &hallucination
	res.Outcome, res.Response = OutcomeAnswered, response

	if e.config.CrossConversation {
		e.deps.Dedup.CacheQueryResponse(ctx, query, response, req.ConversationID)
	}
	return e.finishWith(ctx, req, query, history, analysis, res)
}

func (e *Engine) validateInput(ctx context.Context, req TurnRequest, tier conversation.Tier) security.ValidationResult {
	_, span := e.deps.Tracer.Start(ctx, "Engine.validateInput")
	defer span.End()

	v := e.deps.Input.ValidateUserInput(req.Query, tier, security.RequestInfo{
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		IPAddress:      req.IPAddress,
		UserAgent:      req.UserAgent,
	})
	span.SetAttributes(attribute.Bool("valid", v.Valid))
	if v.Pattern != "" {
		span.SetAttributes(attribute.String("pattern", v.Pattern))
	}
	return v
}

func rejectionLabel(v security.ValidationResult) string {
	switch {
	case v.Pattern != "":
		return v.Pattern
	case v.Reason == security.ReasonEmpty:
		return "empty"
	default:
		return "policy"
	}
}

const (
	sourceHistory = "history"
	sourceIndex   = "index"
)

type duplicate struct {
	dedup.Match
	Source string
}

// findDuplicate checks the conversation's recent history, then (when
// enabled) the cross-conversation index.
func (e *Engine) findDuplicate(ctx context.Context, req TurnRequest, query string, history []conversation.Message) duplicate {
	ctx, span := e.deps.Tracer.Start(ctx, "Engine.findDuplicate")
	defer span.End()

	m := e.deps.Dedup.FindSimilarQuery(query, history, 0)
	e.deps.Metrics.RecordDedupLookup(sourceHistory, m.Similar)
	if m.Similar {
		span.SetAttributes(attribute.String("source", sourceHistory), attribute.Float64("similarity", m.Similarity))
		return duplicate{Match: m, Source: sourceHistory}
	}
	if !e.config.CrossConversation {
		return duplicate{}
	}

	m = e.deps.Dedup.CheckCachedSimilarQuery(ctx, query, req.ConversationID, 0)
	e.deps.Metrics.RecordDedupLookup(sourceIndex, m.Similar)
	if m.Similar {
		span.SetAttributes(attribute.String("source", sourceIndex), attribute.Float64("similarity", m.Similarity))
		return duplicate{Match: m, Source: sourceIndex}
	}
	return duplicate{}
}

func (e *Engine) complete(ctx context.Context, window ctxengine.ContextWindow) (string, error) {
	ctx, span := e.deps.Tracer.Start(ctx, "Engine.complete",
		trace.WithAttributes(attribute.Int("context_tokens", window.TotalTokens)),
	)
	defer span.End()

	response, err := e.deps.Completer.Complete(ctx, window)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("engine: complete: %w", err)
	}
	return response, nil
}

// screenResponse validates response, appending disclaimers when they are
// the only thing missing.
func (e *Engine) screenResponse(ctx context.Context, req TurnRequest, response string) (string, quality.Result) {
	_, span := e.deps.Tracer.Start(ctx, "Engine.screenResponse")
	defer span.End()

	verdict := e.deps.Quality.ValidateResponse(response)
	if !verdict.Valid && verdict.Curable() {
		response = e.deps.Quality.AddDisclaimers(response)
		verdict = e.deps.Quality.ValidateResponse(response)
		span.AddEvent("disclaimers_added")
	}
	for _, is := range verdict.Issues {
		e.deps.Metrics.RecordResponseIssue(is.Rule)
	}
	span.SetAttributes(attribute.Bool("valid", verdict.Valid), attribute.Int("issues", len(verdict.Issues)))

	if !verdict.Valid {
		category := ""
		for _, is := range verdict.Issues {
			if is.Blocking {
				category = is.Category
				break
			}
		}
		e.deps.Events.LogSecurityEvent(security.EventResponseBlocked, category, false, map[string]string{
			"user_id":         req.UserID,
			"conversation_id": req.ConversationID,
			"severity":        string(verdict.Severity),
		})
	}
	return response, verdict
}

// finish loads the analysis for a turn answered without a model call.
func (e *Engine) finish(ctx context.Context, req TurnRequest, query string, history []conversation.Message, res TurnResult) (TurnResult, error) {
	analysis, err := e.deps.Analyses.GetAnalysis(ctx, req.AnalysisID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("engine: load analysis %q: %w", req.AnalysisID, err)
	}
	return e.finishWith(ctx, req, query, history, analysis, res)
}

// finishWith stores the exchange and suggests follow-up questions.
func (e *Engine) finishWith(
	ctx context.Context,
	req TurnRequest,
	query string,
	history []conversation.Message,
	analysis conversation.Analysis,
	res TurnResult,
) (TurnResult, error) {
	if err := ctx.Err(); err != nil {
		return TurnResult{}, err
	}

	ctx, span := e.deps.Tracer.Start(ctx, "Engine.storeExchange")
	defer span.End()

	now := time.Now().UTC()
	exchange := []conversation.Message{
		{ID: uuid.NewString(), ConversationID: req.ConversationID, Role: conversation.RoleUser, Content: query, CreatedAt: now},
		{ID: uuid.NewString(), ConversationID: req.ConversationID, Role: conversation.RoleAssistant, Content: res.Response, CreatedAt: now},
	}
	stored, err := e.deps.Store.AppendBatch(ctx, exchange)
	if err != nil {
		span.RecordError(err)
		return TurnResult{}, fmt.Errorf("engine: append exchange: %w", err)
	}
	exchange = stored
	res.Messages = exchange

	full := append(append([]conversation.Message(nil), history...), exchange...)
	res.FollowUps = e.deps.Questions.GenerateFollowUp(analysis, full)

	e.deps.Logger.Debug("turn handled",
		"conversation_id", req.ConversationID,
		"outcome", res.Outcome,
		"context_tokens", res.ContextTokens,
	)
	return res, nil
}
