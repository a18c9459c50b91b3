package security

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"unicode/utf8"
)

// DefaultContentKeys are log attribute keys that carry conversation text.
var DefaultContentKeys = []string{"content", "query", "response", "text", "sanitized"}

// RedactingHandler wraps a slog.Handler so that no conversation text or
// personal data reaches log output. Attributes named by a content key are
// replaced by their length; every other string value is passed through the
// Redactor.
type RedactingHandler struct {
	inner       slog.Handler
	redactor    *Redactor
	contentKeys []string
}

// Compile-time check.
var _ slog.Handler = (*RedactingHandler)(nil)

// NewRedactingHandler wraps inner. With no contentKeys, DefaultContentKeys
// is used.
func NewRedactingHandler(inner slog.Handler, redactor *Redactor, contentKeys ...string) *RedactingHandler {
	if len(contentKeys) == 0 {
		contentKeys = DefaultContentKeys
	}
	return &RedactingHandler{inner: inner, redactor: redactor, contentKeys: contentKeys}
}

// Enabled delegates to the inner handler.
func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle rebuilds the record with redacted message and attributes.
func (h *RedactingHandler) Handle(ctx context.Context, record slog.Record) error {
	out := slog.NewRecord(record.Time, record.Level, h.redactor.Redact(record.Message), record.PC)
	record.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.redactAttr(a))
		return true
	})
	return h.inner.Handle(ctx, out)
}

// WithAttrs redacts attrs once and folds them into the inner handler.
func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = h.redactAttr(a)
	}
	return &RedactingHandler{inner: h.inner.WithAttrs(redacted), redactor: h.redactor, contentKeys: h.contentKeys}
}

// WithGroup delegates to the inner handler.
func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{inner: h.inner.WithGroup(name), redactor: h.redactor, contentKeys: h.contentKeys}
}

func (h *RedactingHandler) redactAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()

	if slices.Contains(h.contentKeys, a.Key) && a.Value.Kind() != slog.KindGroup {
		a.Value = slog.StringValue(fmt.Sprintf("[%d chars]", utf8.RuneCountInString(a.Value.String())))
		return a
	}

	switch a.Value.Kind() {
	case slog.KindString:
		a.Value = slog.StringValue(h.redactor.Redact(a.Value.String()))
	case slog.KindGroup:
		attrs := a.Value.Group()
		redacted := make([]slog.Attr, len(attrs))
		for i, ga := range attrs {
			redacted[i] = h.redactAttr(ga)
		}
		a.Value = slog.GroupValue(redacted...)
	case slog.KindAny:
		// Errors and other values may embed user text.
		if s := a.Value.String(); h.redactor.Redact(s) != s {
			a.Value = slog.StringValue(h.redactor.Redact(s))
		}
	}
	return a
}
