// Package dedup detects repeated questions, both within a conversation's
// recent history and across conversations through a TTL similarity index.
package dedup

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// minWordRunes is the shortest word that takes part in similarity.
const minWordRunes = 3

// apostrophes are removed before splitting so "don't" stays one word.
var apostrophes = strings.NewReplacer("'", "", "\u2019", "", "\u02bc", "")

// Words returns the set of significant words in s: NFKC-normalized,
// lowercased, apostrophes removed, split on anything that is not a letter
// or digit, with words shorter than three runes removed.
func Words(s string) map[string]struct{} {
	s = apostrophes.Replace(strings.ToLower(norm.NFKC.String(s)))
	words := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		if utf8.RuneCountInString(w) >= minWordRunes {
			words[w] = struct{}{}
		}
	}
	return words
}

// CalculateSimilarity returns the Jaccard similarity of the word sets of a
// and b, in [0, 1]. Two texts without significant words score 0.
func CalculateSimilarity(a, b string) float64 {
	return jaccard(Words(a), Words(b))
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	shared := 0
	for w := range a {
		if _, ok := b[w]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(a)+len(b)-shared)
}
