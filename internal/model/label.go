package model

import "sort"

// FieldName identifies a regulated label field.
type FieldName string

const (
	FieldBrandName           FieldName = "brand_name"
	FieldFancifulName        FieldName = "fanciful_name"
	FieldClassType           FieldName = "class_type"
	FieldAlcoholContent      FieldName = "alcohol_content"
	FieldNetContents         FieldName = "net_contents"
	FieldHealthWarning       FieldName = "health_warning"
	FieldQualifyingPhrase    FieldName = "qualifying_phrase"
	FieldCountryOfOrigin     FieldName = "country_of_origin"
	FieldAgeStatement        FieldName = "age_statement"
	FieldVintageYear         FieldName = "vintage_year"
	FieldAppellationOfOrigin FieldName = "appellation_of_origin"
	FieldGrapeVarietal       FieldName = "grape_varietal"
)

// KnownFields lists every recognized field in canonical display order.
var KnownFields = []FieldName{
	FieldBrandName,
	FieldFancifulName,
	FieldClassType,
	FieldAlcoholContent,
	FieldNetContents,
	FieldHealthWarning,
	FieldQualifyingPhrase,
	FieldCountryOfOrigin,
	FieldAgeStatement,
	FieldVintageYear,
	FieldAppellationOfOrigin,
	FieldGrapeVarietal,
}

var fieldOrder = func() map[FieldName]int {
	m := make(map[FieldName]int, len(KnownFields))
	for i, f := range KnownFields {
		m[f] = i
	}
	return m
}()

// Known reports whether f is one of the recognized label fields. Anything
// else is treated as an unknown field by the comparator and adjudicator.
func (f FieldName) Known() bool {
	_, ok := fieldOrder[f]
	return ok
}

// SortFields orders field names canonically: known fields first in
// KnownFields order, then unknown fields alphabetically.
func SortFields(fields []FieldName) {
	sort.SliceStable(fields, func(i, j int) bool {
		return FieldLess(fields[i], fields[j])
	})
}

// FieldLess reports whether a sorts before b in canonical field order.
func FieldLess(a, b FieldName) bool {
	oa, aKnown := fieldOrder[a]
	ob, bKnown := fieldOrder[b]
	switch {
	case aKnown && bKnown:
		return oa < ob
	case aKnown != bKnown:
		return aKnown
	default:
		return a < b
	}
}

// MatchStrategy selects how an extracted value is compared to the declared one.
type MatchStrategy string

const (
	StrategyExact             MatchStrategy = "exact"
	StrategyFuzzy             MatchStrategy = "fuzzy"
	StrategyNormalizedNumeric MatchStrategy = "normalized_numeric"
	StrategyContains          MatchStrategy = "contains"
	StrategyEnumeratedPhrase  MatchStrategy = "enumerated_phrase"
)

// Valid reports whether s is a defined strategy.
func (s MatchStrategy) Valid() bool {
	switch s {
	case StrategyExact, StrategyFuzzy, StrategyNormalizedNumeric, StrategyContains, StrategyEnumeratedPhrase:
		return true
	}
	return false
}

// VerdictStatus is the outcome of comparing a single field.
type VerdictStatus string

const (
	VerdictMatch    VerdictStatus = "match"
	VerdictMismatch VerdictStatus = "mismatch"
	VerdictNotFound VerdictStatus = "not_found"
)

// FieldVerdict is the comparator's result for one field.
type FieldVerdict struct {
	FieldName  FieldName     `json:"field_name" yaml:"field_name"`
	Status     VerdictStatus `json:"status" yaml:"status"`
	Confidence int           `json:"confidence" yaml:"confidence"` // 0-100
	Rationale  string        `json:"rationale" yaml:"rationale"`
}

// ComparisonInput is a single comparator request. A nil ExtractedValue means
// extraction never produced the field.
type ComparisonInput struct {
	FieldName         FieldName      `json:"field_name" yaml:"field_name"`
	ExpectedValue     string         `json:"expected_value" yaml:"expected_value"`
	ExtractedValue    *string        `json:"extracted_value" yaml:"extracted_value"`
	MatchTypeOverride *MatchStrategy `json:"match_type_override,omitempty" yaml:"match_type_override,omitempty"`
}

// BeverageCategory is the declared product category of an application.
type BeverageCategory string

const (
	CategoryDistilledSpirits BeverageCategory = "distilled_spirits"
	CategoryWine             BeverageCategory = "wine"
	CategoryMaltBeverage     BeverageCategory = "malt_beverage"
)

// Valid reports whether c is a defined category.
func (c BeverageCategory) Valid() bool {
	switch c {
	case CategoryDistilledSpirits, CategoryWine, CategoryMaltBeverage:
		return true
	}
	return false
}

// Disposition is the overall outcome of adjudicating an application.
type Disposition string

const (
	DispositionApproved              Disposition = "approved"
	DispositionConditionallyApproved Disposition = "conditionally_approved"
	DispositionNeedsCorrection       Disposition = "needs_correction"
	DispositionRejected              Disposition = "rejected"
)

// Adjudication pairs a disposition with its correction window. A zero
// CorrectionWindowDays means no window applies.
type Adjudication struct {
	Disposition          Disposition `json:"disposition"`
	CorrectionWindowDays int         `json:"correction_window_days,omitempty"`
}

// HasCorrectionWindow reports whether the applicant gets a window to fix the label.
func (a Adjudication) HasCorrectionWindow() bool {
	return a.CorrectionWindowDays > 0
}
