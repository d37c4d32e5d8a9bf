package compare

import (
	"math"

	"github.com/sells-group/label-review/internal/model"
)

func compareNumeric(field model.FieldName, expected, extracted string) model.FieldVerdict {
	switch field {
	case model.FieldAlcoholContent:
		a, okA := ParseAlcohol(expected)
		b, okB := ParseAlcohol(extracted)
		if !okA || !okB {
			return fallback(compareFuzzy(field, expected, extracted), "alcohol content not parseable")
		}
		return judgeAlcohol(field, a, b)

	case model.FieldNetContents:
		a, okA := ParseVolume(expected)
		b, okB := ParseVolume(extracted)
		if !okA || !okB {
			return fallback(compareFuzzy(field, expected, extracted), "net contents not parseable")
		}
		return judgeVolume(field, a, b)

	case model.FieldAgeStatement:
		a, okA := ParseAge(expected)
		b, okB := ParseAge(extracted)
		if !okA || !okB {
			return fallback(compareFuzzy(field, expected, extracted), "age statement not parseable")
		}
		if a == b {
			return match(field, 100, "aged %d years as declared", a)
		}
		return mismatch(field, closeness(float64(a), float64(b)), "label states %d years, declared %d years", b, a)

	default:
		a, okA := parseFirstNumber(expected)
		b, okB := parseFirstNumber(extracted)
		if !okA || !okB {
			return fallback(compareFuzzy(field, expected, extracted), "no number found")
		}
		if math.Abs(a-b) < epsilon {
			return match(field, 100, "numeric value %s equals declared value", formatNumber(b))
		}
		return mismatch(field, closeness(a, b), "numeric value %s differs from declared %s", formatNumber(b), formatNumber(a))
	}
}

func judgeAlcohol(field model.FieldName, declared, label float64) model.FieldVerdict {
	diff := math.Abs(declared - label)
	switch {
	case diff < epsilon:
		return match(field, 100, "%s%% ABV equals declared %s%% ABV", formatNumber(label), formatNumber(declared))
	case diff <= AlcoholTolerancePoints+epsilon:
		return match(field, 95, "%s%% ABV is within %.1f points of declared %s%% ABV", formatNumber(label), AlcoholTolerancePoints, formatNumber(declared))
	default:
		return mismatch(field, closeness(declared, label), "%s%% ABV differs from declared %s%% ABV by %.2f points", formatNumber(label), formatNumber(declared), diff)
	}
}

func judgeVolume(field model.FieldName, declared, label float64) model.FieldVerdict {
	if math.Round(declared) == math.Round(label) {
		return match(field, 100, "%.0f mL equals declared %.0f mL", label, declared)
	}
	diff := math.Abs(declared - label)
	rel := diff / math.Max(declared, label)
	if rel <= VolumeRelativeTolerance+epsilon {
		return match(field, 95, "%.2f mL is within 1%% of declared %.2f mL", label, declared)
	}
	return mismatch(field, closeness(declared, label), "%.2f mL differs from declared %.2f mL", label, declared)
}

// closeness scores two non-negative quantities by their ratio, capped below
// the match band.
func closeness(a, b float64) int {
	lo, hi := math.Min(a, b), math.Max(a, b)
	if hi <= 0 || lo < 0 {
		return 0
	}
	return min(percent(lo/hi), maxMismatchConfidence)
}
