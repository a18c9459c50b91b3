package quality

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Realm-101/unbuilt-advisor/internal/conversation"
)

// Config holds the response-quality thresholds.
type Config struct {
	// MinLength and MaxLength bound a structurally valid response, in runes.
	MinLength int `yaml:"min_length"`
	MaxLength int `yaml:"max_length"`

	// RelevanceThreshold is the minimum query-word overlap for a response
	// to count as relevant.
	RelevanceThreshold float64 `yaml:"relevance_threshold"`

	// HallucinationIndicators is how many distinct indicator kinds must
	// co-occur before a response is flagged as a likely hallucination.
	HallucinationIndicators int `yaml:"hallucination_indicators"`

	// ConfidenceMinLength and ConfidenceMinClaims tune the missing
	// confidence-qualifier flag.
	ConfidenceMinLength int `yaml:"confidence_min_length"`
	ConfidenceMinClaims int `yaml:"confidence_min_claims"`
}

func (c Config) withDefaults() Config {
	if c.MinLength <= 0 {
		c.MinLength = 10
	}
	if c.MaxLength <= 0 {
		c.MaxLength = 5000
	}
	if c.RelevanceThreshold <= 0 {
		c.RelevanceThreshold = 0.2
	}
	if c.HallucinationIndicators <= 0 {
		c.HallucinationIndicators = 2
	}
	if c.ConfidenceMinLength <= 0 {
		c.ConfidenceMinLength = 200
	}
	if c.ConfidenceMinClaims <= 0 {
		c.ConfidenceMinClaims = 2
	}
	return c
}

// Issue is a single finding about a response.
type Issue struct {
	Rule     string                `json:"rule"`
	Category string                `json:"category"`
	Message  string                `json:"message"`
	Severity conversation.Severity `json:"severity"`
	Blocking bool                  `json:"blocking"`

	// Curable is set when appending the rule's disclaimer resolves the issue.
	Curable bool `json:"curable,omitempty"`
}

// Result is the outcome of a response validation. Severity is the highest
// severity among Issues.
type Result struct {
	Valid    bool                  `json:"valid"`
	Issues   []Issue               `json:"issues,omitempty"`
	Severity conversation.Severity `json:"severity,omitempty"`
}

// Has reports whether an issue from the named rule was raised.
func (r Result) Has(rule string) bool {
	for _, is := range r.Issues {
		if is.Rule == rule {
			return true
		}
	}
	return false
}

// Curable reports whether r is invalid only because of missing disclaimers.
func (r Result) Curable() bool {
	if r.Valid {
		return false
	}
	for _, is := range r.Issues {
		if is.Blocking && !is.Curable {
			return false
		}
	}
	return true
}

func (r *Result) add(is Issue) {
	r.Issues = append(r.Issues, is)
	r.Severity = conversation.MaxSeverity(r.Severity, is.Severity)
	if is.Blocking {
		r.Valid = false
	}
}

// Validator checks model responses against an ordered rule table.
// It holds no mutable state and is safe for concurrent use.
type Validator struct {
	config Config
	rules  []Rule
}

// NewValidator creates a validator using DefaultRules plus extra rules,
// which are evaluated after the defaults.
func NewValidator(cfg Config, extra ...Rule) *Validator {
	cfg = cfg.withDefaults()
	return &Validator{
		config: cfg,
		rules:  append(DefaultRules(cfg), extra...),
	}
}

// Rules returns the rule table in evaluation order.
func (v *Validator) Rules() []Rule {
	return append([]Rule(nil), v.rules...)
}

// ValidateResponse runs the structural checks and then every rule.
// Structurally invalid responses skip the content rules.
func (v *Validator) ValidateResponse(response string) Result {
	res := v.ValidateResponseStructure(response)
	if !res.Valid {
		return res
	}
	n := utf8.RuneCountInString(response)
	for _, rule := range v.rules {
		if rule.fires(response, n) {
			res.add(Issue{
				Rule:     rule.Name,
				Category: rule.Category,
				Message:  rule.Message,
				Severity: rule.Severity,
				Blocking: rule.Blocking,
				Curable:  rule.Disclaimer != nil,
			})
		}
	}
	return res
}

// ValidateResponseStructure checks only emptiness and length bounds.
func (v *Validator) ValidateResponseStructure(response string) Result {
	res := Result{Valid: true}
	trimmed := strings.TrimSpace(response)
	n := utf8.RuneCountInString(trimmed)
	switch {
	case n == 0:
		res.add(structural("empty_response", "Response is empty"))
	case n < v.config.MinLength:
		res.add(structural("response_too_short", fmt.Sprintf("Response is shorter than %d characters", v.config.MinLength)))
	case n > v.config.MaxLength:
		res.add(structural("response_too_long", fmt.Sprintf("Response is longer than %d characters", v.config.MaxLength)))
	}
	return res
}

func structural(rule, msg string) Issue {
	return Issue{
		Rule:     rule,
		Category: CategoryStructure,
		Message:  msg,
		Severity: conversation.SeverityMedium,
		Blocking: true,
	}
}

// AddDisclaimers appends the disclaimer of every rule whose trigger
// language is present and whose disclaimer is missing. Calling it again
// on its own output changes nothing.
func (v *Validator) AddDisclaimers(response string) string {
	out := response
	for _, rule := range v.rules {
		d := rule.Disclaimer
		if d == nil || !rule.Matcher.MatchString(response) || d.Present(out) {
			continue
		}
		out = strings.TrimRight(out, " \n\t") + "\n\n" + d.Text
	}
	return out
}
