package gateway

import (
	"net/http"
	"time"

	"github.com/Realm-101/unbuilt-advisor/internal/cache"
	"github.com/Realm-101/unbuilt-advisor/internal/dedup"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime       string      `json:"uptime"`
	StartedAt    string      `json:"started_at"`
	TurnsEnabled bool        `json:"turns_enabled"`
	CacheEntries *int        `json:"cache_entries,omitempty"`
	IndexEntries int         `json:"dedup_index_entries"`
	Dedup        dedup.Stats `json:"dedup"`
}

// handleStatus reports uptime and the state of the shared caches.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			Uptime:       time.Since(g.startedAt).Truncate(time.Second).String(),
			StartedAt:    g.startedAt.UTC().Format(time.RFC3339),
			TurnsEnabled: g.deps.Engine != nil,
			IndexEntries: g.deps.Dedup.IndexLen(),
			Dedup:        g.deps.Dedup.Stats(),
		}
		if s, ok := g.deps.Cache.(cache.Sizer); ok {
			n := s.Len()
			resp.CacheEntries = &n
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
