// Package compare decides, per regulated label field, whether a value read
// off a label image matches the value declared on the application.
//
// Compare is pure and total: every input yields a verdict, malformed numeric
// strings degrade to fuzzy text comparison, and a missing or blank extracted
// value is reported as not found rather than as an error.
package compare

import (
	"fmt"
	"math"
	"strings"

	"github.com/sells-group/label-review/internal/model"
)

// Thresholds and tolerances.
const (
	FuzzyMatchThreshold     = 0.8
	AlcoholTolerancePoints  = 0.5
	VolumeRelativeTolerance = 0.01
	TokenOverlapThreshold   = 0.5

	// maxMismatchConfidence keeps a mismatch from reporting the confidence
	// band reserved for matches.
	maxMismatchConfidence = 79
	knownPhraseMismatch   = 90
	epsilon               = 1e-9
)

var strategyTable = map[model.FieldName]model.MatchStrategy{
	model.FieldHealthWarning:       model.StrategyExact,
	model.FieldVintageYear:         model.StrategyExact,
	model.FieldBrandName:           model.StrategyFuzzy,
	model.FieldFancifulName:        model.StrategyFuzzy,
	model.FieldClassType:           model.StrategyFuzzy,
	model.FieldAppellationOfOrigin: model.StrategyFuzzy,
	model.FieldGrapeVarietal:       model.StrategyFuzzy,
	model.FieldAlcoholContent:      model.StrategyNormalizedNumeric,
	model.FieldNetContents:         model.StrategyNormalizedNumeric,
	model.FieldAgeStatement:        model.StrategyNormalizedNumeric,
	model.FieldCountryOfOrigin:     model.StrategyContains,
	model.FieldQualifyingPhrase:    model.StrategyEnumeratedPhrase,
}

// StrategyFor returns the default strategy for a field. Unknown fields use
// fuzzy matching.
func StrategyFor(field model.FieldName) model.MatchStrategy {
	if s, ok := strategyTable[field]; ok {
		return s
	}
	return model.StrategyFuzzy
}

// Compare runs a single field comparison. An override that is not a defined
// strategy is ignored.
func Compare(in model.ComparisonInput) model.FieldVerdict {
	if in.ExtractedValue == nil || strings.TrimSpace(*in.ExtractedValue) == "" {
		return model.FieldVerdict{
			FieldName:  in.FieldName,
			Status:     model.VerdictNotFound,
			Confidence: 0,
			Rationale:  fmt.Sprintf("%s: not found on label", in.FieldName),
		}
	}

	strategy := StrategyFor(in.FieldName)
	if in.MatchTypeOverride != nil && in.MatchTypeOverride.Valid() {
		strategy = *in.MatchTypeOverride
	}

	expected, extracted := in.ExpectedValue, *in.ExtractedValue
	switch strategy {
	case model.StrategyExact:
		return compareExact(in.FieldName, expected, extracted)
	case model.StrategyNormalizedNumeric:
		return compareNumeric(in.FieldName, expected, extracted)
	case model.StrategyContains:
		return compareContains(in.FieldName, expected, extracted)
	case model.StrategyEnumeratedPhrase:
		return comparePhrase(in.FieldName, expected, extracted)
	default:
		return compareFuzzy(in.FieldName, expected, extracted)
	}
}

// CompareValues compares with the field's default strategy. An empty
// extracted string is treated as absent.
func CompareValues(field model.FieldName, expected, extracted string) model.FieldVerdict {
	return Compare(model.ComparisonInput{
		FieldName:      field,
		ExpectedValue:  expected,
		ExtractedValue: &extracted,
	})
}

func match(field model.FieldName, confidence int, format string, args ...any) model.FieldVerdict {
	return newVerdict(field, model.VerdictMatch, confidence, format, args...)
}

func mismatch(field model.FieldName, confidence int, format string, args ...any) model.FieldVerdict {
	return newVerdict(field, model.VerdictMismatch, confidence, format, args...)
}

func newVerdict(field model.FieldName, status model.VerdictStatus, confidence int, format string, args ...any) model.FieldVerdict {
	return model.FieldVerdict{
		FieldName:  field,
		Status:     status,
		Confidence: clamp(confidence, 0, 100),
		Rationale:  string(field) + ": " + fmt.Sprintf(format, args...),
	}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func percent(v float64) int {
	return int(math.Round(v * 100))
}

func compareExact(field model.FieldName, expected, extracted string) model.FieldVerdict {
	a, b := normalizeSpace(expected), normalizeSpace(extracted)
	if field == model.FieldVintageYear {
		if da, db := digitsOnly(a), digitsOnly(b); da != "" && db != "" {
			a, b = da, db
		}
	}

	if a == b {
		return match(field, 100, "exact match with declared value")
	}
	fa, fb := fold(a), fold(b)
	if fa == fb {
		return match(field, 95, "matches declared value except for letter case")
	}

	sim := similarity(fa, fb)
	conf := min(int(math.Floor(sim*100)), 99)
	return mismatch(field, conf, "extracted text differs from declared value (similarity %.2f)", sim)
}

func compareFuzzy(field model.FieldName, expected, extracted string) model.FieldVerdict {
	a, b := normalizeText(expected), normalizeText(extracted)
	if a == b {
		return match(field, 100, "matches declared value")
	}
	if a == "" {
		return mismatch(field, 0, "no declared value to compare against %q", extracted)
	}
	if len([]rune(a)) == 1 || len([]rune(b)) == 1 {
		return mismatch(field, 0, "single-character values %q and %q differ", expected, extracted)
	}

	sim := similarity(a, b)
	if containsEither(a, b) {
		return match(field, max(percent(sim), 80), "one value contains the other (similarity %.2f)", sim)
	}
	if sim >= FuzzyMatchThreshold {
		return match(field, max(percent(sim), 80), "similar to declared value (similarity %.2f)", sim)
	}
	return mismatch(field, percent(sim), "%q does not resemble declared %q (similarity %.2f)", extracted, expected, sim)
}

func compareContains(field model.FieldName, expected, extracted string) model.FieldVerdict {
	a, b := normalizeText(expected), normalizeText(extracted)
	if containsEither(a, b) {
		return match(field, 95, "%q and declared %q overlap as text", extracted, expected)
	}
	overlap := tokenOverlap(a, b)
	if overlap >= TokenOverlapThreshold {
		return match(field, 95, "%q shares %.0f%% of words with declared %q", extracted, overlap*100, expected)
	}
	return mismatch(field, min(percent(overlap), maxMismatchConfidence), "%q does not contain declared %q", extracted, expected)
}

func comparePhrase(field model.FieldName, expected, extracted string) model.FieldVerdict {
	want := canonicalPhrase(expected)
	display, ok := phraseIndex[want]
	if !ok {
		return fallback(compareFuzzy(field, expected, extracted), "declared value is not a recognized qualifying phrase")
	}

	found := findPhrases(extracted)
	for _, p := range found {
		if p == want {
			return match(field, 95, "label reads recognized phrase %q", display)
		}
	}
	if len(found) > 0 {
		return mismatch(field, knownPhraseMismatch, "label reads %q, a different recognized phrase than declared %q", phraseIndex[found[0]], display)
	}

	sim := similarity(normalizeText(expected), normalizeText(extracted))
	return mismatch(field, min(percent(sim), maxMismatchConfidence), "no recognized qualifying phrase in %q", extracted)
}

// fallback annotates a fuzzy verdict produced in place of another strategy.
func fallback(v model.FieldVerdict, reason string) model.FieldVerdict {
	v.Rationale = fmt.Sprintf("%s (%s, compared as text)", v.Rationale, reason)
	return v
}
