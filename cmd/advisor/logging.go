package main

import (
	"io"
	"log/slog"
	"strings"

	"github.com/Realm-101/unbuilt-advisor/internal/config"
	"github.com/Realm-101/unbuilt-advisor/internal/security"
)

// newLogger builds the process logger. Conversation text and secrets are
// redacted before any handler sees them. When level is non-nil it is set
// from cfg and controls the logger, so it can be changed later.
func newLogger(cfg config.LogConfig, w io.Writer, level *slog.LevelVar) *slog.Logger {
	if level == nil {
		level = new(slog.LevelVar)
	}
	level.Set(parseLevel(cfg.Level))
	opts := &slog.HandlerOptions{Level: level}

	var inner slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		inner = slog.NewJSONHandler(w, opts)
	} else {
		inner = slog.NewTextHandler(w, opts)
	}
	return slog.New(security.NewRedactingHandler(inner, security.NewRedactor()))
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
