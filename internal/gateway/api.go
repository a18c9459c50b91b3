package gateway

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	ctxengine "github.com/Realm-101/unbuilt-advisor/internal/context"
	"github.com/Realm-101/unbuilt-advisor/internal/conversation"
	"github.com/Realm-101/unbuilt-advisor/internal/engine"
	"github.com/Realm-101/unbuilt-advisor/internal/quality"
	"github.com/Realm-101/unbuilt-advisor/internal/questions"
	"github.com/Realm-101/unbuilt-advisor/internal/security"
)

// ContextRequest is the body of POST /v1/context.
type ContextRequest struct {
	AnalysisID     string `json:"analysis_id"`
	ConversationID string `json:"conversation_id"`
	Query          string `json:"query"`
	MaxTokens      int    `json:"max_tokens"`
	UseCache       *bool  `json:"use_cache"`
}

// ContextResponse is the body returned by POST /v1/context.
type ContextResponse struct {
	ctxengine.ContextWindow
	Breakdown map[string]int `json:"breakdown"`
}

func (g *Gateway) handleBuildContext() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ContextRequest
		if err := decode(r, &req); err != nil {
			writeError(w, statusOrBadRequest(err), err.Error())
			return
		}
		if req.AnalysisID == "" {
			writeError(w, http.StatusBadRequest, "analysis_id is required")
			return
		}

		a, err := g.deps.Analyses.GetAnalysis(r.Context(), req.AnalysisID)
		if err != nil {
			g.writeFailure(w, r, err)
			return
		}
		msgs, err := g.history(r, req.ConversationID)
		if err != nil {
			g.writeFailure(w, r, err)
			return
		}

		opts := ctxengine.BuildOptions{UseCache: req.UseCache == nil || *req.UseCache}
		win, err := g.deps.Context.BuildContext(r.Context(), a, msgs, req.Query, req.MaxTokens, opts)
		if err != nil {
			g.writeFailure(w, r, err)
			return
		}
		g.deps.Metrics.RecordContext(win.TotalTokens, win.Degraded)
		writeJSON(w, http.StatusOK, ContextResponse{ContextWindow: win, Breakdown: g.deps.Context.TokenBreakdown(win)})
	}
}

// InputRequest is the body of POST /v1/validate/input.
type InputRequest struct {
	Text           string `json:"text"`
	Tier           string `json:"tier"`
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
}

func (g *Gateway) handleValidateInput() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req InputRequest
		if err := decode(r, &req); err != nil {
			writeError(w, statusOrBadRequest(err), err.Error())
			return
		}
		res := g.deps.Input.ValidateUserInput(req.Text, conversation.ParseTier(req.Tier), security.RequestInfo{
			UserID:         req.UserID,
			ConversationID: req.ConversationID,
			IPAddress:      r.RemoteAddr,
			UserAgent:      r.UserAgent(),
		})
		writeJSON(w, http.StatusOK, res)
	}
}

// ResponseRequest is the body of POST /v1/validate/response.
type ResponseRequest struct {
	Response string `json:"response"`
	Query    string `json:"query"`
}

// ResponseReport is the body returned by POST /v1/validate/response.
// Relevance is only computed when a query is supplied.
type ResponseReport struct {
	quality.Result
	WithDisclaimers string                          `json:"with_disclaimers,omitempty"`
	Relevance       *quality.Relevance              `json:"relevance,omitempty"`
	Hallucination   quality.HallucinationAssessment `json:"hallucination"`
}

func (g *Gateway) handleValidateResponse() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ResponseRequest
		if err := decode(r, &req); err != nil {
			writeError(w, statusOrBadRequest(err), err.Error())
			return
		}

		v := g.deps.Quality
		rep := ResponseReport{
			Result:        v.ValidateResponse(req.Response),
			Hallucination: v.DetectHallucination(req.Response),
		}
		if rep.Curable() {
			rep.WithDisclaimers = v.AddDisclaimers(req.Response)
		}
		if strings.TrimSpace(req.Query) != "" {
			rel := v.CheckRelevance(req.Response, req.Query)
			rep.Relevance = &rel
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

func (g *Gateway) handleValidateStructure() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, statusOrBadRequest(err), err.Error())
			return
		}
		res := security.ValidateMessageStructure(raw)
		status := http.StatusOK
		if !res.Valid {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, res)
	}
}

// SimilarRequest is the body of POST /v1/similar. A zero threshold uses the
// configured default.
type SimilarRequest struct {
	ConversationID    string  `json:"conversation_id"`
	Query             string  `json:"query"`
	Threshold         float64 `json:"threshold"`
	CrossConversation bool    `json:"cross_conversation"`
}

func (g *Gateway) handleSimilar() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SimilarRequest
		if err := decode(r, &req); err != nil {
			writeError(w, statusOrBadRequest(err), err.Error())
			return
		}
		if req.Threshold < 0 || req.Threshold > 1 {
			writeError(w, http.StatusBadRequest, "threshold must be within [0, 1]")
			return
		}
		msgs, err := g.history(r, req.ConversationID)
		if err != nil {
			g.writeFailure(w, r, err)
			return
		}

		match := g.deps.Dedup.FindSimilarQuery(req.Query, msgs, req.Threshold)
		g.deps.Metrics.RecordDedupLookup("history", match.Similar)
		if !match.Similar && req.CrossConversation {
			match = g.deps.Dedup.CheckCachedSimilarQuery(r.Context(), req.Query, req.ConversationID, req.Threshold)
			g.deps.Metrics.RecordDedupLookup("index", match.Similar)
		}
		writeJSON(w, http.StatusOK, match)
	}
}

// QuestionsRequest is the body of the /v1/questions endpoints.
type QuestionsRequest struct {
	AnalysisID     string `json:"analysis_id"`
	ConversationID string `json:"conversation_id"`
}

func (g *Gateway) handleInitialQuestions() http.HandlerFunc {
	return g.questions(func(a conversation.Analysis, _ []conversation.Message) []questions.Question {
		return g.deps.Questions.GenerateInitial(a)
	})
}

func (g *Gateway) handleFollowUpQuestions() http.HandlerFunc {
	return g.questions(g.deps.Questions.GenerateFollowUp)
}

func (g *Gateway) questions(gen func(conversation.Analysis, []conversation.Message) []questions.Question) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req QuestionsRequest
		if err := decode(r, &req); err != nil {
			writeError(w, statusOrBadRequest(err), err.Error())
			return
		}
		a, err := g.deps.Analyses.GetAnalysis(r.Context(), req.AnalysisID)
		if err != nil {
			g.writeFailure(w, r, err)
			return
		}
		msgs, err := g.history(r, req.ConversationID)
		if err != nil {
			g.writeFailure(w, r, err)
			return
		}
		qs := gen(a, msgs)
		if qs == nil {
			qs = []questions.Question{}
		}
		writeJSON(w, http.StatusOK, qs)
	}
}

// RateLimitResponse is the body returned by GET /v1/ratelimit/{userID}.
type RateLimitResponse struct {
	security.RateLimitStatus
	Tier               conversation.Tier   `json:"tier"`
	Limits             security.TierLimits `json:"limits"`
	RemainingQuestions int                 `json:"remaining_questions_today"`
}

func (g *Gateway) handleRateLimit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		tier := conversation.ParseTier(r.URL.Query().Get("tier"))
		conv := r.URL.Query().Get("conversation_id")

		l := g.deps.Limiter
		writeJSON(w, http.StatusOK, RateLimitResponse{
			RateLimitStatus:    l.Check(userID, conv, tier),
			Tier:               tier,
			Limits:             l.Config().Limits(tier),
			RemainingQuestions: l.GetRemainingQuestions(userID, tier),
		})
	}
}

func (g *Gateway) handleDedupStats() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, g.deps.Dedup.Stats())
	}
}

func (g *Gateway) handleResetDedupStats() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		g.deps.Dedup.ResetStats()
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleClearCache drops every cached analysis rendering and cached response,
// and empties the duplicate index.
func (g *Gateway) handleClearCache() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g.deps.Context.ClearCache(r.Context())
		g.deps.Dedup.ClearIndex()
		if g.deps.Cache != nil {
			if err := g.deps.Cache.Clear(r.Context()); err != nil {
				g.writeFailure(w, r, err)
				return
			}
		}
		g.logger.Info("gateway: caches cleared", "request_id", r.Header.Get(requestIDHeader))
		w.WriteHeader(http.StatusNoContent)
	}
}

func (g *Gateway) handleTurn() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req engine.TurnRequest
		if err := decode(r, &req); err != nil {
			writeError(w, statusOrBadRequest(err), err.Error())
			return
		}
		if req.ConversationID == "" || req.AnalysisID == "" {
			writeError(w, http.StatusBadRequest, "conversation_id and analysis_id are required")
			return
		}
		req.IPAddress = r.RemoteAddr
		req.UserAgent = r.UserAgent()

		res, err := g.deps.Engine.HandleTurn(r.Context(), req)
		if err != nil {
			g.writeFailure(w, r, err)
			return
		}
		status := http.StatusOK
		if res.Outcome == engine.OutcomeRateLimited {
			status = http.StatusTooManyRequests
		}
		writeJSON(w, status, res)
	}
}

// history loads a conversation; an empty id yields no messages.
func (g *Gateway) history(r *http.Request, conversationID string) ([]conversation.Message, error) {
	if conversationID == "" {
		return nil, nil
	}
	return g.deps.Store.GetMessages(r.Context(), conversationID)
}

// statusOrBadRequest distinguishes oversized bodies from malformed ones.
func statusOrBadRequest(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}
