package security

import (
	"fmt"
	"regexp"

	"github.com/Realm-101/unbuilt-advisor/internal/conversation"
)

// Pattern categories.
const (
	CategorySQLInjection    = "sql_injection"
	CategoryXSS             = "xss"
	CategoryPathTraversal   = "path_traversal"
	CategoryPromptInjection = "prompt_injection"
)

// Pattern is a named signature checked against user input.
type Pattern struct {
	Name     string
	Category string
	Matcher  *regexp.Regexp
	Severity conversation.Severity
}

// PatternConfig describes an additional pattern loaded from configuration.
type PatternConfig struct {
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
	Regex    string `yaml:"regex"`
	Severity string `yaml:"severity"`
}

// Compile turns c into a Pattern. An empty severity defaults to def.
func (c PatternConfig) Compile(def conversation.Severity) (Pattern, error) {
	if c.Name == "" {
		return Pattern{}, fmt.Errorf("security: pattern name is required")
	}
	re, err := regexp.Compile(c.Regex)
	if err != nil {
		return Pattern{}, fmt.Errorf("security: pattern %q: %w", c.Name, err)
	}
	sev := conversation.Severity(c.Severity)
	if sev == conversation.SeverityNone {
		sev = def
	}
	return Pattern{Name: c.Name, Category: c.Category, Matcher: re, Severity: sev}, nil
}

// PatternRegistry is an ordered list of patterns. The first match wins, so
// the order is part of the registry's behavior.
type PatternRegistry struct {
	patterns []Pattern
}

// NewPatternRegistry creates a registry holding patterns in order.
func NewPatternRegistry(patterns ...Pattern) *PatternRegistry {
	return &PatternRegistry{patterns: append([]Pattern(nil), patterns...)}
}

// Add appends p to the end of the registry.
func (r *PatternRegistry) Add(p Pattern) {
	r.patterns = append(r.patterns, p)
}

// Match returns the first pattern matching text.
func (r *PatternRegistry) Match(text string) (Pattern, bool) {
	for _, p := range r.patterns {
		if p.Matcher.MatchString(text) {
			return p, true
		}
	}
	return Pattern{}, false
}

// Names lists pattern names in evaluation order.
func (r *PatternRegistry) Names() []string {
	names := make([]string, len(r.patterns))
	for i, p := range r.patterns {
		names[i] = p.Name
	}
	return names
}

// Len returns the number of patterns.
func (r *PatternRegistry) Len() int {
	return len(r.patterns)
}

func high(name, category, expr string) Pattern {
	return Pattern{Name: name, Category: category, Matcher: regexp.MustCompile(expr), Severity: conversation.SeverityHigh}
}

func medium(name, expr string) Pattern {
	return Pattern{Name: name, Category: CategoryPromptInjection, Matcher: regexp.MustCompile(expr), Severity: conversation.SeverityMedium}
}

// sqlDDL needs a table identifier followed by a statement end, a comment or
// a DDL keyword, so phrases like "drop table stakes features" pass.
const sqlDDL = `(?i)\b(drop|truncate|alter)\s+table\s+(if\s+exists\s+)?[\w"\[\].` + "`" + `]+\s*(;|--|$|\b(add|drop|column|rename|cascade)\b)`

// DefaultMaliciousPatterns returns SQL injection, script injection and path
// traversal signatures.
func DefaultMaliciousPatterns() []Pattern {
	return []Pattern{
		high("sql_union_select", CategorySQLInjection, `(?i)\bunion\s+(all\s+)?select\b`),
		high("sql_ddl", CategorySQLInjection, sqlDDL),
		high("sql_dml", CategorySQLInjection, `(?i)\b(delete\s+from\s+\w+\s+where\b|insert\s+into\s+\w+\s*(\(|values\b))`),
		high("sql_tautology", CategorySQLInjection, `(?i)['"]\s*(or|and)\s+['"]?\w+['"]?\s*=\s*['"]?\w+`),
		high("sql_comment_terminator", CategorySQLInjection, `['";]\s*--`),
		high("sql_stored_procedure", CategorySQLInjection, `(?i)\bexec(ute)?\s+(xp|sp)_\w+`),
		high("script_tag", CategoryXSS, `(?i)<\s*script\b`),
		high("event_handler", CategoryXSS, `(?i)<[^>]*\bon[a-z]+\s*=`),
		high("javascript_uri", CategoryXSS, `(?i)javascript\s*:`),
		high("embedded_frame", CategoryXSS, `(?i)<\s*(iframe|object|embed)\b`),
		high("path_traversal", CategoryPathTraversal, `\.\.[/\\]`),
		high("encoded_path_traversal", CategoryPathTraversal, `(?i)%2e%2e(%2f|%5c|/|\\)`),
	}
}

// DefaultPromptInjectionPatterns returns instruction-override, identity
// override, jailbreak and roleplay signatures. Professional uses of words
// like "act" or "pretend" do not match.
func DefaultPromptInjectionPatterns() []Pattern {
	return []Pattern{
		medium("ignore_previous_instructions", `(?i)\b(ignore|disregard|forget|override)\s+(all\s+)?(of\s+)?(the\s+|your\s+)?(previous|prior|above|earlier|preceding)\s+(instructions|prompts?|rules|directions|context)`),
		medium("identity_override", `(?i)\byou\s+are\s+(now\s+(a|an|the|my|called|in\s+\w+\s+mode)\b|no\s+longer\s+(an?\s+)?(ai|assistant|bound|restricted)\b)`),
		medium("system_prompt_injection", `(?i)(\bnew\s+system\s+(prompt|instructions)\b|^\s*system\s*:|\[\s*system\s*\])`),
		medium("reveal_system_prompt", `(?i)\b(reveal|show|print|repeat|output)\s+(me\s+)?(your|the)\s+(system\s+prompt|initial\s+prompt|hidden\s+instructions|instructions\s+above)`),
		medium("jailbreak", `(?i)\b(jail\s*break(ing)?|DAN\s+mode|do\s+anything\s+now)\b`),
		medium("mode_override", `(?i)\b(enable|activate|enter|switch\s+to)\s+(developer|god|admin|sudo|unrestricted|unfiltered|uncensored)\s+mode\b`),
		medium("roleplay_override", `(?i)\b(act|behave|respond)\s+as\s+(if\s+you\s+(are|were|have)\s+(an?\s+)?(unrestricted|unfiltered|uncensored|no\s+(rules|restrictions|limits))|an?\s+(unrestricted|unfiltered|uncensored|evil|jailbroken)\b)`),
		medium("pretend_override", `(?i)\bpretend\s+(that\s+)?(you\s+(are|have)\s+no\s+(rules|restrictions|guidelines)|to\s+be\s+(an?\s+)?(unrestricted|unfiltered|different\s+ai|another\s+ai))`),
		medium("roleplay_persona", `(?i)\brole-?play\s+as\s+(an?\s+)?(ai|assistant|model|chatbot)\s+(without|with\s+no)\b`),
	}
}
