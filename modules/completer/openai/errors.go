package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Sentinel errors returned by Complete, wrapped with the upstream message.
var (
	ErrRateLimit     = errors.New("completer.openai: rate limited")
	ErrAuth          = errors.New("completer.openai: authentication failed")
	ErrContextLength = errors.New("completer.openai: context length exceeded")
	ErrUnavailable   = errors.New("completer.openai: upstream unavailable")
	ErrEmptyResponse = errors.New("completer.openai: empty response")
)

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// mapHTTPError maps an HTTP status code and response body to a sentinel
// error. Returns nil for 2xx status codes.
func mapHTTPError(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var msg string
	var apiErr apiError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Message
	} else {
		msg = string(body)
	}

	switch {
	case statusCode == 429:
		return fmt.Errorf("%w: %s", ErrRateLimit, msg)
	case statusCode == 401 || statusCode == 403:
		return fmt.Errorf("%w: %s", ErrAuth, msg)
	case statusCode == 400 && strings.Contains(strings.ToLower(msg+apiErr.Error.Code), "context_length"):
		return fmt.Errorf("%w: %s", ErrContextLength, msg)
	case statusCode >= 500:
		return fmt.Errorf("%w: %s", ErrUnavailable, msg)
	default:
		return fmt.Errorf("completer.openai: HTTP %d: %s", statusCode, msg)
	}
}

// mapConnectionError maps network-level errors to ErrUnavailable.
// Context errors pass through unchanged.
func mapConnectionError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return fmt.Errorf("completer.openai: %w", err)
}
