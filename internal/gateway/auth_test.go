package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware(t *testing.T) {
	t.Parallel()

	cfg := AuthConfig{BearerToken: "secret-token", BasicUser: "admin", BasicPass: "pw"}

	tests := []struct {
		name    string
		setup   func(*http.Request)
		want    int
		success bool
	}{
		{"missing header", func(*http.Request) {}, http.StatusUnauthorized, false},
		{"valid bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer secret-token") }, http.StatusOK, true},
		{"wrong bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized, false},
		{"valid basic", func(r *http.Request) { r.SetBasicAuth("admin", "pw") }, http.StatusOK, true},
		{"wrong basic", func(r *http.Request) { r.SetBasicAuth("admin", "bad") }, http.StatusUnauthorized, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ts := newTestServer(t, nil)
			h := authMiddleware(cfg, ts.events)(okHandler())
			req := httptest.NewRequest(http.MethodGet, "/status", nil)
			tt.setup(req)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
			events := ts.events.Events()
			if len(events) != 1 || events[0].Success != tt.success {
				t.Errorf("events = %+v, want one with success=%v", events, tt.success)
			}
		})
	}
}

func TestRouter_AuthProtectsV1(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, func(c *Config, _ *Deps) { c.Auth.BearerToken = "tok" })

	if rr := ts.do(t, http.MethodGet, "/v1/dedup/stats", nil); rr.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated /v1: code = %d, want 401", rr.Code)
	}
	if rr := ts.do(t, http.MethodGet, "/health", nil); rr.Code != http.StatusOK {
		t.Errorf("/health should stay public: code = %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/dedup/stats", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("authenticated /v1: code = %d, want 200", rr.Code)
	}
}
