package compare

import (
	"strings"
	"unicode"

	"github.com/agext/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// normalizeSpace applies NFKC, collapses every run of whitespace to a single
// space, and trims. Case is preserved.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(s)), " ")
}

// fold case-folds s for case-insensitive comparison. A Caser is stateful, so
// one is built per call.
func fold(s string) string {
	return cases.Fold().String(s)
}

// normalizeText is normalizeSpace followed by case folding.
func normalizeText(s string) string {
	return fold(normalizeSpace(s))
}

// digitsOnly drops every rune that is not a decimal digit.
func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// similarity returns the normalized Levenshtein similarity of two already
// normalized strings in [0,1]. Single-rune strings have no fractional
// similarity and compare by strict equality.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	if len([]rune(a)) == 1 || len([]rune(b)) == 1 {
		return 0
	}
	return levenshtein.Similarity(a, b, nil)
}

// Similarity is the exported form of the fuzzy score over raw strings.
func Similarity(a, b string) float64 {
	return similarity(normalizeText(a), normalizeText(b))
}

// wordSet splits s into lowercased words with surrounding punctuation removed.
func wordSet(s string) map[string]bool {
	words := strings.Fields(s)
	set := make(map[string]bool, len(words))
	for _, w := range words {
		w = strings.TrimFunc(w, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		if w != "" {
			set[w] = true
		}
	}
	return set
}

// tokenOverlap computes Jaccard similarity on word sets.
func tokenOverlap(a, b string) float64 {
	wordsA := wordSet(a)
	wordsB := wordSet(b)

	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	intersection := 0
	for w := range wordsA {
		if wordsB[w] {
			intersection++
		}
	}

	union := len(wordsA)
	for w := range wordsB {
		if !wordsA[w] {
			union++
		}
	}

	return float64(intersection) / float64(union)
}

// containsEither reports whether either non-empty string contains the other.
func containsEither(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}
