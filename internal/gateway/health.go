package gateway

import (
	"context"
	"net/http"
	"time"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status  string `json:"status"` // "ok" or "degraded"
	Storage string `json:"storage,omitempty"`
}

// handleHealth returns 200 when the backing store answers, 503 otherwise.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Status: "ok"}

		if g.deps.Pinger != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			resp.Storage = "ok"
			if err := g.deps.Pinger.Ping(ctx); err != nil {
				g.logger.Warn("gateway: storage ping failed", "error", err)
				resp.Status, resp.Storage = "degraded", "unreachable"
			}
		}

		status := http.StatusOK
		if resp.Status == "degraded" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}
