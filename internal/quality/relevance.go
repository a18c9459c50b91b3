package quality

import (
	"strings"
	"unicode"
)

// Relevance is the lexical relevance of a response to a query.
type Relevance struct {
	Relevant   bool    `json:"relevant"`
	Confidence float64 `json:"confidence"`
}

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`about after again also and any are because been before being both but
		can could did does doing each few for from had has have here how into its just let like make many
		may might more most much must not now only other our out over same shall should some such than that
		the their them then there these they this those too under very was were what when where which while
		who why will with would you your`) {
		stopWords[w] = struct{}{}
	}
}

// significantWords returns the lowercased words of s that are at least
// three letters long and not stop words. A trailing plural "s" is dropped
// from longer words so "markets" and "market" match.
func significantWords(s string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		if len([]rune(w)) < 3 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		if len(w) > 4 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") {
			w = w[:len(w)-1]
		}
		words[w] = struct{}{}
	}
	return words
}

// CheckRelevance measures the share of the query's significant words that
// appear in the response. A query without significant words yields a zero
// result.
func (v *Validator) CheckRelevance(response, query string) Relevance {
	q := significantWords(query)
	if len(q) == 0 {
		return Relevance{}
	}
	r := significantWords(response)
	shared := 0
	for w := range q {
		if _, ok := r[w]; ok {
			shared++
		}
	}
	conf := float64(shared) / float64(len(q))
	return Relevance{
		Relevant:   conf >= v.config.RelevanceThreshold,
		Confidence: conf,
	}
}
