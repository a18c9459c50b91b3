package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/Realm-101/unbuilt-advisor/internal/security"
)

// Security event types emitted by the gateway.
const (
	EventAuthFailure = "auth_failure"
	EventAuthSuccess = "auth_success"
)

// authMiddleware returns a chi-compatible middleware that validates Bearer token
// or Basic auth credentials using constant-time comparison. Every attempt is
// reported to events.
func authMiddleware(cfg AuthConfig, events security.SecurityLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" {
				emitAuthEvent(events, false, r, "missing authorization header")
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			if cfg.BearerToken != "" {
				if after, ok := strings.CutPrefix(auth, "Bearer "); ok && constantTimeEqual(after, cfg.BearerToken) {
					emitAuthEvent(events, true, r, "bearer")
					next.ServeHTTP(w, r)
					return
				}
			}

			if cfg.BasicUser != "" && cfg.BasicPass != "" {
				user, pass, ok := r.BasicAuth()
				if ok && constantTimeEqual(user, cfg.BasicUser) && constantTimeEqual(pass, cfg.BasicPass) {
					emitAuthEvent(events, true, r, "basic")
					next.ServeHTTP(w, r)
					return
				}
			}

			emitAuthEvent(events, false, r, "invalid credentials")
			writeError(w, http.StatusUnauthorized, "unauthorized")
		})
	}
}

func emitAuthEvent(events security.SecurityLogger, success bool, r *http.Request, detail string) {
	eventType := EventAuthFailure
	if success {
		eventType = EventAuthSuccess
	}
	events.LogSecurityEvent(eventType, "auth", success, map[string]string{
		"detail":      detail,
		"remote_addr": r.RemoteAddr,
		"method":      r.Method,
		"path":        r.URL.Path,
	})
}

// constantTimeEqual compares two strings in constant time.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
