package security

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/Realm-101/unbuilt-advisor/internal/conversation"
)

// Security event types emitted by the input validator.
const (
	EventMaliciousInput  = "malicious_input"
	EventPromptInjection = "prompt_injection"
)

// ReasonEmpty is the rejection reason for blank input.
const ReasonEmpty = "Message cannot be empty"

// TierLengths holds per-tier input length limits, in characters.
type TierLengths struct {
	Free       int `yaml:"free"`
	Pro        int `yaml:"pro"`
	Enterprise int `yaml:"enterprise"`
}

// For returns the limit for tier. Unknown tiers get the free limit.
func (l TierLengths) For(tier conversation.Tier) int {
	switch tier {
	case conversation.TierPro:
		return l.Pro
	case conversation.TierEnterprise:
		return l.Enterprise
	default:
		return l.Free
	}
}

// InputValidatorConfig configures an InputValidator.
type InputValidatorConfig struct {
	MaxLength TierLengths `yaml:"max_length"`

	// RejectRepetition rejects input flagged by DetectExcessiveRepetition.
	RejectRepetition bool `yaml:"reject_repetition"`

	// RepeatedCharRun is the run of identical characters considered excessive.
	RepeatedCharRun int `yaml:"repeated_char_run"`

	// RepeatedWordCount is how often a word may appear before it is excessive.
	RepeatedWordCount int `yaml:"repeated_word_count"`

	// MinRepeatedWordLen ignores shorter words when counting repetitions.
	MinRepeatedWordLen int `yaml:"min_repeated_word_len"`

	// CustomPatterns extend the built-in registries. Patterns in the
	// prompt_injection category join the injection registry; all others
	// join the malicious registry.
	CustomPatterns []PatternConfig `yaml:"custom_patterns"`
}

func (c InputValidatorConfig) withDefaults() InputValidatorConfig {
	if c.MaxLength.Free <= 0 {
		c.MaxLength.Free = 500
	}
	if c.MaxLength.Pro <= 0 {
		c.MaxLength.Pro = 1000
	}
	if c.MaxLength.Enterprise <= 0 {
		c.MaxLength.Enterprise = 2000
	}
	if c.RepeatedCharRun <= 0 {
		c.RepeatedCharRun = 10
	}
	if c.RepeatedWordCount <= 0 {
		c.RepeatedWordCount = 5
	}
	if c.MinRepeatedWordLen <= 0 {
		c.MinRepeatedWordLen = 4
	}
	return c
}

// RequestInfo identifies the caller of a validation, for security events.
type RequestInfo struct {
	UserID         string `json:"user_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	IPAddress      string `json:"ip_address,omitempty"`
	UserAgent      string `json:"user_agent,omitempty"`
}

// ValidationResult is the outcome of validating user input. Reason is
// always set when Valid is false.
type ValidationResult struct {
	Valid     bool                  `json:"valid"`
	Sanitized string                `json:"sanitized,omitempty"`
	Reason    string                `json:"reason,omitempty"`
	Severity  conversation.Severity `json:"severity,omitempty"`
	Pattern   string                `json:"pattern,omitempty"`
}

// InputValidator screens user messages before they reach the model.
// It holds no mutable state and is safe for concurrent use.
type InputValidator struct {
	config    InputValidatorConfig
	malicious *PatternRegistry
	injection *PatternRegistry
	events    SecurityLogger
}

// NewInputValidator builds a validator with the default pattern tables plus
// any custom patterns from cfg. A nil events logger discards events.
func NewInputValidator(cfg InputValidatorConfig, events SecurityLogger) (*InputValidator, error) {
	cfg = cfg.withDefaults()
	if events == nil {
		events = NopSecurityLogger{}
	}

	v := &InputValidator{
		config:    cfg,
		malicious: NewPatternRegistry(DefaultMaliciousPatterns()...),
		injection: NewPatternRegistry(DefaultPromptInjectionPatterns()...),
		events:    events,
	}
	for _, pc := range cfg.CustomPatterns {
		if pc.Category == CategoryPromptInjection {
			p, err := pc.Compile(conversation.SeverityMedium)
			if err != nil {
				return nil, err
			}
			v.injection.Add(p)
			continue
		}
		p, err := pc.Compile(conversation.SeverityHigh)
		if err != nil {
			return nil, err
		}
		v.malicious.Add(p)
	}
	return v, nil
}

// MaliciousPatterns returns the malicious-pattern registry.
func (v *InputValidator) MaliciousPatterns() *PatternRegistry { return v.malicious }

// InjectionPatterns returns the prompt-injection registry.
func (v *InputValidator) InjectionPatterns() *PatternRegistry { return v.injection }

// ValidateUserInput checks text against the tier's length limit and the
// pattern registries. Pattern matches emit a security event.
func (v *InputValidator) ValidateUserInput(text string, tier conversation.Tier, info RequestInfo) ValidationResult {
	if strings.TrimSpace(text) == "" {
		return ValidationResult{Reason: ReasonEmpty, Severity: conversation.SeverityLow}
	}

	tier = conversation.ParseTier(string(tier))
	if limit := v.config.MaxLength.For(tier); utf8.RuneCountInString(text) > limit {
		return ValidationResult{
			Sanitized: string([]rune(text)[:limit]),
			Reason:    fmt.Sprintf("Message exceeds the %d character limit for the %s tier", limit, tier),
			Severity:  conversation.SeverityLow,
		}
	}

	cleaned := Sanitize(text)

	if p, ok := v.malicious.Match(text); ok {
		v.report(EventMaliciousInput, p, info)
		return ValidationResult{
			Sanitized: cleaned,
			Reason:    "Message contains potentially malicious content",
			Severity:  p.Severity,
			Pattern:   p.Name,
		}
	}

	if p, ok := v.injection.Match(text); ok {
		v.report(EventPromptInjection, p, info)
		return ValidationResult{
			Sanitized: cleaned,
			Reason:    "Message attempts to override the assistant's instructions",
			Severity:  p.Severity,
			Pattern:   p.Name,
		}
	}

	if v.config.RejectRepetition && v.DetectExcessiveRepetition(text) {
		return ValidationResult{
			Sanitized: cleaned,
			Reason:    "Message contains excessive repetition",
			Severity:  conversation.SeverityLow,
		}
	}

	if strings.TrimSpace(cleaned) == "" {
		return ValidationResult{Reason: ReasonEmpty, Severity: conversation.SeverityLow}
	}

	return ValidationResult{Valid: true, Sanitized: cleaned}
}

func (v *InputValidator) report(eventType string, p Pattern, info RequestInfo) {
	v.events.LogSecurityEvent(eventType, p.Category, false, map[string]string{
		"user_id":         info.UserID,
		"conversation_id": info.ConversationID,
		"ip_address":      info.IPAddress,
		"user_agent":      info.UserAgent,
		"pattern":         p.Name,
	})
}

// DetectExcessiveRepetition reports a run of identical non-space characters
// of at least RepeatedCharRun, or a word of at least MinRepeatedWordLen
// characters appearing RepeatedWordCount times or more.
func (v *InputValidator) DetectExcessiveRepetition(text string) bool {
	run, prev := 0, rune(-1)
	for _, r := range text {
		if r == prev && !unicode.IsSpace(r) {
			run++
		} else {
			run = 1
		}
		prev = r
		if run >= v.config.RepeatedCharRun {
			return true
		}
	}

	counts := make(map[string]int)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsNumber(r) })
		if utf8.RuneCountInString(w) < v.config.MinRepeatedWordLen {
			continue
		}
		counts[w]++
		if counts[w] >= v.config.RepeatedWordCount {
			return true
		}
	}
	return false
}

var (
	blankLineRun = regexp.MustCompile(`\n[ \t]*\n(?:[ \t]*\n)+`)
	spaceRun     = regexp.MustCompile(`[ \t]+`)
)

// Sanitize strips HTML markup, collapses runs of blank lines to a single
// blank line and runs of spaces to one space.
func Sanitize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = stripTags(text)
	text = spaceRun.ReplaceAllString(text, " ")
	text = blankLineRun.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// stripTags keeps only the text content of markup. Script and style bodies
// are dropped along with their tags.
func stripTags(text string) string {
	if !strings.ContainsRune(text, '<') {
		return text
	}
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(text))
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.StartTagToken:
			if name, _ := z.TagName(); isRawTextTag(name) {
				skip++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); isRawTextTag(name) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func isRawTextTag(name []byte) bool {
	s := string(name)
	return s == "script" || s == "style"
}

var displayEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
	"/", "&#x2F;",
)

// SanitizeForDisplay HTML-escapes & < > " ' and / for safe rendering.
func SanitizeForDisplay(text string) string {
	return displayEscaper.Replace(text)
}
