package gateway

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(g.instrument)

	// Public: no auth required.
	r.Get("/health", g.handleHealth())
	r.Method(http.MethodGet, "/metrics", g.deps.Metrics.Handler())

	r.Group(func(r chi.Router) {
		if g.config.Auth.IsConfigured() {
			r.Use(authMiddleware(g.config.Auth, g.deps.Events))
		}
		r.Get("/status", g.handleStatus())

		r.Route("/v1", func(r chi.Router) {
			r.Use(limitBody(g.config.MaxBodyBytes))

			r.Post("/context", g.handleBuildContext())
			r.Post("/validate/input", g.handleValidateInput())
			r.Post("/validate/response", g.handleValidateResponse())
			r.Post("/validate/structure", g.handleValidateStructure())
			r.Post("/similar", g.handleSimilar())
			r.Post("/questions/initial", g.handleInitialQuestions())
			r.Post("/questions/followup", g.handleFollowUpQuestions())
			r.Get("/ratelimit/{userID}", g.handleRateLimit())
			r.Get("/dedup/stats", g.handleDedupStats())
			r.Delete("/dedup/stats", g.handleResetDedupStats())
			r.Delete("/cache", g.handleClearCache())

			if g.deps.Engine != nil {
				r.Post("/turn", g.handleTurn())
			}
		})
	})

	return r
}

const requestIDHeader = "X-Request-ID"

// requestID echoes the caller's request ID or assigns a new one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// limitBody caps request bodies at n bytes.
func limitBody(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, n)
			next.ServeHTTP(w, r)
		})
	}
}

// instrument records request counts and latency per route pattern.
func (g *Gateway) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := g.deps.Metrics
		if m != nil {
			m.HTTPInFlight.Inc()
			defer m.HTTPInFlight.Dec()
		}

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RecordHTTPRequest(route, status, time.Since(start))
		g.logger.Debug("http request",
			"method", r.Method,
			"route", route,
			"status", status,
			"duration", time.Since(start),
			"request_id", r.Header.Get(requestIDHeader),
		)
	})
}
