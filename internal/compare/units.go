package compare

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Conversion factors to milliliters.
const (
	MLPerFluidOunce = 29.5735
	MLPerGallon     = 3785.41
	MLPerQuart      = 946.353
	MLPerPint       = 473.176
	MLPerCentiliter = 10.0
	MLPerLiter      = 1000.0
)

var (
	decimalCommaRe   = regexp.MustCompile(`(\d),(\d{1,2})\b`)
	thousandsCommaRe = regexp.MustCompile(`(\d),(\d{3})\b`)

	percentRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)
	abvRe     = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:abv|alc)`)
	proofRe   = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*°?\s*proof`)

	volumeRe = regexp.MustCompile(`(?i)(\d*\.?\d+)\s*(millilit(?:er|re)s?|ml|centilit(?:er|re)s?|cl|lit(?:er|re)s?|l|fluid\s+ounces?|fl\.?\s*oz|ounces?|oz|gallons?|gal|quarts?|qt|pints?|pt)\b`)

	ageRe = regexp.MustCompile(`(?i)(\d+)\s*(?:-\s*)?(?:years?|yrs?)\b`)

	numberRe = regexp.MustCompile(`\d*\.?\d+`)
)

// ParseAlcohol reads an alcohol content statement and returns percent ABV.
// Accepts "45% Alc./Vol.", "45% ABV", "12.5%", "13.5 ABV" and proof
// notation such as "90 Proof" (ABV = proof / 2).
func ParseAlcohol(s string) (float64, bool) {
	s = decimalCommaRe.ReplaceAllString(s, "$1.$2")
	if m := percentRe.FindStringSubmatch(s); m != nil {
		return parseFloat(m[1])
	}
	if m := abvRe.FindStringSubmatch(s); m != nil {
		return parseFloat(m[1])
	}
	if m := proofRe.FindStringSubmatch(s); m != nil {
		proof, ok := parseFloat(m[1])
		if !ok {
			return 0, false
		}
		return proof / 2, true
	}
	return 0, false
}

// ParseVolume reads a net contents statement and returns milliliters. The
// first quantity with a recognized unit wins, so "750 mL (25.4 fl oz)"
// parses as 750. A comma followed by one or two digits is a decimal comma
// ("1,5 L"); followed by three it separates thousands ("1,000 mL").
func ParseVolume(s string) (float64, bool) {
	s = normalizeCommas(s)
	m := volumeRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	qty, ok := parseFloat(m[1])
	if !ok {
		return 0, false
	}
	unit := strings.ToLower(m[2])
	switch {
	case unit == "ml" || strings.HasPrefix(unit, "millilit"):
		return qty, true
	case unit == "cl" || strings.HasPrefix(unit, "centilit"):
		return qty * MLPerCentiliter, true
	case unit == "l" || strings.HasPrefix(unit, "lit"):
		return qty * MLPerLiter, true
	case strings.HasPrefix(unit, "gal"):
		return qty * MLPerGallon, true
	case unit == "qt" || strings.HasPrefix(unit, "quart"):
		return qty * MLPerQuart, true
	case unit == "pt" || strings.HasPrefix(unit, "pint"):
		return qty * MLPerPint, true
	default:
		// fl oz, fluid ounces, oz, ounces
		return qty * MLPerFluidOunce, true
	}
}

// ParseAge reads an age statement ("Aged 12 Years", "12 Year Old") and
// returns the number of years.
func ParseAge(s string) (int, bool) {
	m := ageRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseFirstNumber returns the first decimal number in s.
func parseFirstNumber(s string) (float64, bool) {
	s = normalizeCommas(s)
	m := numberRe.FindString(s)
	if m == "" {
		return 0, false
	}
	return parseFloat(m)
}

func normalizeCommas(s string) string {
	s = decimalCommaRe.ReplaceAllString(s, "$1.$2")
	return thousandsCommaRe.ReplaceAllString(s, "$1$2")
}

func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
