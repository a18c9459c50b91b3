package security

import (
	"regexp"
	"strings"
	"sync"
)

// RedactPlaceholder replaces redacted values.
const RedactPlaceholder = "***REDACTED***"

// Redactor masks personal data and secrets in free text. It is applied to
// security event details and log attributes, which may quote user input.
// All methods are safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	literals []string
}

// NewRedactor creates a Redactor loaded with DefaultPatterns.
func NewRedactor() *Redactor {
	return &Redactor{patterns: DefaultPatterns()}
}

// AddPattern appends a pattern.
func (r *Redactor) AddPattern(pattern *regexp.Regexp) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, pattern)
}

// AddLiteral registers a value, such as a configured API token, that is
// redacted wherever it appears. Empty strings are ignored.
func (r *Redactor) AddLiteral(secret string) {
	if secret == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = append(r.literals, secret)
}

// Redact replaces every pattern match and literal in s.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	patterns := r.patterns
	literals := r.literals
	r.mu.RUnlock()

	for _, lit := range literals {
		s = strings.ReplaceAll(s, lit, RedactPlaceholder)
	}
	for _, p := range patterns {
		s = p.ReplaceAllString(s, RedactPlaceholder)
	}
	return s
}

// DefaultPatterns returns patterns for email addresses, payment card
// numbers, phone numbers and common API key formats.
func DefaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		// Email addresses.
		regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`),
		// Card-like numbers: 13 to 19 digits, optionally grouped.
		regexp.MustCompile(`\b(?:\d[ \-]?){12,18}\d\b`),
		// International phone numbers.
		regexp.MustCompile(`\+\d{1,3}[ \-]?\(?\d{1,4}\)?(?:[ \-]?\d{2,4}){2,4}`),
		// OpenAI / Anthropic style keys.
		regexp.MustCompile(`sk-(ant-)?[A-Za-z0-9\-_]{20,}`),
		// GitHub tokens.
		regexp.MustCompile(`(ghp_|gho_|ghs_|github_pat_)[A-Za-z0-9_]{20,}`),
		// AWS access key IDs.
		regexp.MustCompile(`AKIA[A-Z0-9]{16}`),
		// Bearer tokens.
		regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-._~+/]{16,}=*`),
	}
}
