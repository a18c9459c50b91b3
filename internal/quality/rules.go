// Package quality screens model responses before they reach a user:
// policy rules with disclaimer exemptions, relevance to the question, and
// heuristic hallucination indicators.
package quality

import (
	"regexp"

	"github.com/Realm-101/unbuilt-advisor/internal/conversation"
)

// Rule categories.
const (
	CategoryStructure     = "structure"
	CategoryInappropriate = "inappropriate"
	CategoryMedical       = "medical"
	CategoryFinancial     = "financial"
	CategoryLegal         = "legal"
	CategoryMisleading    = "misleading"
	CategoryConfidence    = "confidence"
)

// Disclaimer exempts a response from a rule when every Required pattern
// matches. Text is what AddDisclaimers appends when it is missing.
type Disclaimer struct {
	Required []*regexp.Regexp
	Text     string
}

// Present reports whether s already carries the disclaimer.
func (d *Disclaimer) Present(s string) bool {
	for _, re := range d.Required {
		if !re.MatchString(s) {
			return false
		}
	}
	return true
}

// Rule is one content check. A rule fires when Matcher matches at least
// MinMatches times in a response longer than MinLength runes, unless Unless
// matches or the Disclaimer is present. Blocking rules invalidate the
// response; the others only flag it.
type Rule struct {
	Name       string
	Category   string
	Message    string
	Matcher    *regexp.Regexp
	MinMatches int
	MinLength  int
	Unless     *regexp.Regexp
	Disclaimer *Disclaimer
	Severity   conversation.Severity
	Blocking   bool
}

// fires reports whether r applies to response, which has n runes.
func (r Rule) fires(response string, n int) bool {
	if n <= r.MinLength {
		return false
	}
	need := max(r.MinMatches, 1)
	if need == 1 {
		if !r.Matcher.MatchString(response) {
			return false
		}
	} else if len(r.Matcher.FindAllStringIndex(response, need)) < need {
		return false
	}
	if r.Unless != nil && r.Unless.MatchString(response) {
		return false
	}
	if r.Disclaimer != nil && r.Disclaimer.Present(response) {
		return false
	}
	return true
}

// Disclaimer texts appended by AddDisclaimers.
const (
	FinancialDisclaimer = "This is not financial advice. Please consult a qualified financial advisor before making investment decisions."
	LegalDisclaimer     = "This is not legal advice. Please consult a qualified attorney about your specific situation."
)

// DefaultRules returns the built-in rule table. cfg supplies the thresholds
// of the confidence rule.
func DefaultRules(cfg Config) []Rule {
	cfg = cfg.withDefaults()
	return []Rule{
		{
			Name:     "inappropriate_content",
			Category: CategoryInappropriate,
			Message:  "Response contains hateful or violent content",
			Matcher: regexp.MustCompile(`(?i)\b(kill|murder|attack|hurt)\s+(them|him|her|people|anyone|your\s+competitors?)\b` +
				`|\b(racial|ethnic)\s+slurs?\b|\bhate\s+(speech|groups?)\b|\b(inferior|subhuman)\s+(races?|people)\b` +
				`|\b(bomb|weapon|explosive)s?[\s-]+(making|instructions|recipes?)\b|\bviolence\s+against\b|\bethnic\s+cleansing\b`),
			Severity: conversation.SeverityHigh,
			Blocking: true,
		},
		{
			Name:     "medical_advice",
			Category: CategoryMedical,
			Message:  "Response gives medical advice",
			Matcher: regexp.MustCompile(`(?i)\b(you\s+(should|must|need\s+to)\s+(start\s+|stop\s+)?tak(e|ing)\s+(\d+\s*mg\b|(your\s+|this\s+|the\s+|some\s+)?(medications?|medicines?|pills?|tablets?|supplements?|antibiotics?|ibuprofen|aspirin|painkillers?|antidepressants?|vitamins?|doses?)\b)` +
				`|(recommended\s+)?dosage\s+(of|is)|\d+\s*mg\b|your\s+(diagnosis|symptoms|medical\s+condition)\b` +
				`|diagnosed?\s+(you|with)\b|treatment\s+for\s+your\b|prescribe\s+(you|yourself)\b|take\s+(this|the|your)\s+medication\b)`),
			Severity: conversation.SeverityHigh,
			Blocking: true,
		},
		{
			Name:     "financial_advice",
			Category: CategoryFinancial,
			Message:  "Response gives financial advice without a disclaimer",
			Matcher: regexp.MustCompile(`(?i)\b(roi|return\s+on\s+investment|(guaranteed|expected|projected)\s+returns?` +
				`|invest(ing)?\s+(your\s+)?(savings|money|capital|retirement)|you\s+should\s+(buy|sell|invest)` +
				`|(buy|sell|buying|selling)\s+(stocks?|shares|equities)|stock\s+(market|picks?|tips?)` +
				`|(investment|stock|financial)\s+portfolio|equity\s+stake|\d+(\.\d+)?\s*%\s+(returns?|yield|annual\s+return))\b`),
			Disclaimer: &Disclaimer{
				Required: []*regexp.Regexp{
					regexp.MustCompile(`(?i)\bnot\s+(financial|investment)\s+advice\b`),
					regexp.MustCompile(`(?i)\bconsult\s+(with\s+)?(a|an|your)\s+(qualified\s+|licensed\s+|certified\s+)?(financial\s+(advisor|adviser|professional|planner)|accountant)\b`),
				},
				Text: FinancialDisclaimer,
			},
			Severity: conversation.SeverityMedium,
			Blocking: true,
		},
		{
			Name:     "legal_advice",
			Category: CategoryLegal,
			Message:  "Response gives legal advice without a disclaimer",
			Matcher: regexp.MustCompile(`(?i)\b(regulations?|regulatory\s+compliance|contracts?|patents?|trademarks?` +
				`|liabilit(y|ies)|lawsuits?|legally|intellectual\s+property|gdpr|hipaa|terms\s+of\s+service)\b`),
			Disclaimer: &Disclaimer{
				Required: []*regexp.Regexp{
					regexp.MustCompile(`(?i)\bnot\s+legal\s+advice\b`),
					regexp.MustCompile(`(?i)\bconsult\s+(with\s+)?(a|an|your)\s+(qualified\s+|licensed\s+)?(attorney|lawyer|legal\s+professional)\b`),
				},
				Text: LegalDisclaimer,
			},
			Severity: conversation.SeverityMedium,
			Blocking: true,
		},
		{
			Name:     "absolute_claims",
			Category: CategoryMisleading,
			Message:  "Response makes absolute claims that may mislead",
			Matcher: regexp.MustCompile(`(?i)(\b100\s*%\s*(guaranteed|certain|sure|success(ful)?)\b|\bguaranteed\s+(to\s+)?(succeed|success|profit|win)\b` +
				`|\bnever\s+fails?\b|\bcan(not|'t)\s+fail\b|\bno\s+risk\b|\brisk[\s-]free\b|\bzero\s+risk\b|\balways\s+works?\b)`),
			Severity: conversation.SeverityMedium,
		},
		{
			Name:       "missing_confidence",
			Category:   CategoryConfidence,
			Message:    "Response makes several specific numeric claims without qualifying language",
			Matcher:    regexp.MustCompile(`(?i)(\$\s?\d[\d,.]*\s*(k|m|b|million|billion|thousand)?\b|\b\d[\d,.]*\s*(%|percent\b|million\b|billion\b|thousand\b|x\b|users\b|customers\b))`),
			MinMatches: cfg.ConfidenceMinClaims,
			MinLength:  cfg.ConfidenceMinLength,
			Unless: regexp.MustCompile(`(?i)\b(approximately|around|roughly|estimated?|estimates?|likely|may|might|could` +
				`|based\s+on|according\s+to|suggests?|projected|potentially|up\s+to)\b`),
			Severity: conversation.SeverityLow,
		},
	}
}
