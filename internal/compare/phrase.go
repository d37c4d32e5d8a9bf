package compare

import (
	"sort"
	"strings"
	"unicode"
)

// QualifyingPhrases is the closed list of legally recognized qualifying
// phrases that may precede the bottler or producer name and address.
var QualifyingPhrases = []string{
	"Bottled by",
	"Distilled by",
	"Distilled and Bottled by",
	"Produced by",
	"Produced and Bottled by",
	"Blended by",
	"Blended and Bottled by",
	"Made by",
	"Made and Bottled by",
	"Brewed by",
	"Brewed and Bottled by",
	"Brewed and Canned by",
	"Canned by",
	"Cellared and Bottled by",
	"Vinted and Bottled by",
	"Grown, Produced and Bottled by",
	"Estate Bottled",
	"Imported by",
	"Rectified by",
	"Prepared by",
	"Manufactured by",
	"Aged and Bottled by",
	"Packed by",
}

// phraseIndex maps the canonical form of each phrase to its display form.
// phrasesByLength holds canonical forms longest first so that scanning
// extracted text claims "produced and bottled by" before "bottled by".
var (
	phraseIndex     map[string]string
	phrasesByLength []string
)

func init() {
	phraseIndex = make(map[string]string, len(QualifyingPhrases))
	for _, p := range QualifyingPhrases {
		c := canonicalPhrase(p)
		phraseIndex[c] = p
		phrasesByLength = append(phrasesByLength, c)
	}
	sort.SliceStable(phrasesByLength, func(i, j int) bool {
		return len(phrasesByLength[i]) > len(phrasesByLength[j])
	})
}

// canonicalPhrase folds case, reads "&" as "and", and turns punctuation into
// word breaks.
func canonicalPhrase(s string) string {
	s = strings.ReplaceAll(normalizeText(s), "&", " and ")
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// RecognizedPhrase returns the display form of s if it is a recognized
// qualifying phrase.
func RecognizedPhrase(s string) (string, bool) {
	p, ok := phraseIndex[canonicalPhrase(s)]
	return p, ok
}

// findPhrases returns the canonical recognized phrases present in text on
// word boundaries. Longer phrases consume their span first, so a shorter
// phrase is only reported where it stands on its own.
func findPhrases(text string) []string {
	remaining := " " + canonicalPhrase(text) + " "
	var found []string
	for _, p := range phrasesByLength {
		needle := " " + p + " "
		if !strings.Contains(remaining, needle) {
			continue
		}
		found = append(found, p)
		remaining = strings.ReplaceAll(remaining, needle, " | ")
	}
	return found
}
