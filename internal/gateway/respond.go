package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Realm-101/unbuilt-advisor/internal/conversation"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decode reads a single JSON object from the request body into v.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if dec.More() {
		return errors.New("invalid request body: trailing data")
	}
	return nil
}

// statusFor maps collaborator errors onto HTTP status codes.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, conversation.ErrAnalysisNotFound):
		return http.StatusNotFound
	case errors.Is(err, conversation.ErrStructural):
		return http.StatusBadRequest
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// writeFailure logs server-side failures and hides their detail from clients.
func (g *Gateway) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status < http.StatusInternalServerError {
		writeError(w, status, err.Error())
		return
	}
	g.logger.Error("gateway: request failed",
		"path", r.URL.Path,
		"request_id", r.Header.Get(requestIDHeader),
		"error", err,
	)
	writeError(w, status, "internal error")
}
