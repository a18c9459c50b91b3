package quality

import (
	"regexp"
)

// Hallucination indicator kinds.
const (
	IndicatorUnattributedDate      = "unattributed_date"
	IndicatorUnattributedStatistic = "unattributed_statistic"
	IndicatorNamedRole             = "named_role"
)

// HallucinationAssessment lists the distinct indicator kinds found in a
// response. Likely is set only when enough kinds co-occur.
type HallucinationAssessment struct {
	Likely     bool     `json:"likely"`
	Indicators []string `json:"indicators,omitempty"`
}

var (
	sentenceBreak = regexp.MustCompile(`[.!?]+(\s+|$)|\n+`)

	attribution = regexp.MustCompile(`(?i)\b(according\s+to|based\s+on|source[sd]?|reported\s+by|cited|as\s+per|per\s+the|data\s+from|stud(y|ies)|survey|report(s|ed)?|research)\b`)
	qualifier   = regexp.MustCompile(`(?i)\b(for\s+example|for\s+instance|such\s+as|e\.g|hypothetical(ly)?|imagine|typically|someone\s+like|a\s+person\s+like)\b`)

	specificDate = regexp.MustCompile(`\b(January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2}(st|nd|rd|th)?,?\s+\d{4}\b` +
		`|\b\d{4}-\d{2}-\d{2}\b|\b\d{1,2}/\d{1,2}/\d{4}\b`)
	preciseStatistic = regexp.MustCompile(`\b\d+\.\d+\s*(%|percent\b)|\$\s?\d[\d,]*\.\d+\s*(million|billion|[MB])?\b|\b\d{1,3}(,\d{3})+\.\d+\b`)
	namedRole        = regexp.MustCompile(`\b[A-Z][a-z]+\s+[A-Z][a-z]+,\s+(the\s+)?(CEO|CTO|CFO|COO|CMO|founder|co-founder|president|director|head|VP)\b` +
		`|\b(CEO|CTO|CFO|COO|CMO|founder|co-founder|president)\s+[A-Z][a-z]+\s+[A-Z][a-z]+\b`)
)

// DetectHallucination looks, sentence by sentence, for specific dates and
// precise statistics without attribution and for named people in roles
// without an illustrative qualifier. A single kind never trips the flag.
func (v *Validator) DetectHallucination(response string) HallucinationAssessment {
	found := make(map[string]bool)
	for _, s := range sentenceBreak.Split(response, -1) {
		if s == "" {
			continue
		}
		attributed := attribution.MatchString(s)
		if !attributed && specificDate.MatchString(s) {
			found[IndicatorUnattributedDate] = true
		}
		if !attributed && preciseStatistic.MatchString(s) {
			found[IndicatorUnattributedStatistic] = true
		}
		if namedRole.MatchString(s) && !qualifier.MatchString(s) {
			found[IndicatorNamedRole] = true
		}
	}

	var out HallucinationAssessment
	for _, kind := range []string{IndicatorUnattributedDate, IndicatorUnattributedStatistic, IndicatorNamedRole} {
		if found[kind] {
			out.Indicators = append(out.Indicators, kind)
		}
	}
	out.Likely = len(out.Indicators) >= v.config.HallucinationIndicators
	return out
}
