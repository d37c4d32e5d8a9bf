package adjudicate

import (
	"math"
	"slices"

	"github.com/sells-group/label-review/internal/model"
)

// Severity is the policy bucket governing how a field failure affects the
// overall disposition.
type Severity string

const (
	SeverityRejection Severity = "rejection_triggering"
	SeverityMinor     Severity = "minor_discrepancy"
	SeverityStandard  Severity = "standard"
)

// Correction windows, in days.
const (
	ConditionalWindowDays = 7
	CorrectionWindowDays  = 30
)

var severityTable = map[model.FieldName]Severity{
	model.FieldHealthWarning:       SeverityRejection,
	model.FieldBrandName:           SeverityMinor,
	model.FieldFancifulName:        SeverityMinor,
	model.FieldAppellationOfOrigin: SeverityMinor,
	model.FieldGrapeVarietal:       SeverityMinor,
}

// SeverityOf classifies a field. Fields not listed, including unknown ones,
// are standard.
func SeverityOf(field model.FieldName) Severity {
	if s, ok := severityTable[field]; ok {
		return s
	}
	return SeverityStandard
}

// CategoryPolicy holds the per-category label rules. A nil LegalVolumesML
// means any container size is allowed.
type CategoryPolicy struct {
	Mandatory      []model.FieldName
	Optional       []model.FieldName
	LegalVolumesML []float64
}

var categoryPolicies = map[model.BeverageCategory]CategoryPolicy{
	model.CategoryDistilledSpirits: {
		Mandatory: []model.FieldName{
			model.FieldBrandName,
			model.FieldClassType,
			model.FieldAlcoholContent,
			model.FieldNetContents,
			model.FieldHealthWarning,
			model.FieldQualifyingPhrase,
		},
		Optional: []model.FieldName{
			model.FieldFancifulName,
			model.FieldAgeStatement,
			model.FieldCountryOfOrigin,
		},
		LegalVolumesML: []float64{
			50, 100, 187, 200, 250, 331, 350, 355, 375, 475, 500, 570, 700, 710, 720,
			750, 900, 945, 1000, 1500, 1750, 1800, 2000, 3000, 3750,
		},
	},
	model.CategoryWine: {
		Mandatory: []model.FieldName{
			model.FieldBrandName,
			model.FieldClassType,
			model.FieldAlcoholContent,
			model.FieldNetContents,
			model.FieldHealthWarning,
			model.FieldQualifyingPhrase,
		},
		Optional: []model.FieldName{
			model.FieldFancifulName,
			model.FieldAppellationOfOrigin,
			model.FieldGrapeVarietal,
			model.FieldVintageYear,
			model.FieldCountryOfOrigin,
		},
		LegalVolumesML: []float64{
			50, 100, 180, 187, 200, 250, 300, 330, 360, 375, 473, 500, 550, 568, 600,
			620, 700, 720, 750, 1000, 1500, 1800, 2250, 3000,
		},
	},
	model.CategoryMaltBeverage: {
		Mandatory: []model.FieldName{
			model.FieldBrandName,
			model.FieldClassType,
			model.FieldNetContents,
			model.FieldHealthWarning,
			model.FieldQualifyingPhrase,
		},
		Optional: []model.FieldName{
			model.FieldFancifulName,
			model.FieldAlcoholContent,
			model.FieldCountryOfOrigin,
		},
	},
}

// PolicyFor returns the rules for a category. An unknown category gets the
// zero policy: nothing mandatory and no volume restriction.
func PolicyFor(category model.BeverageCategory) CategoryPolicy {
	return categoryPolicies[category]
}

// IsMandatory reports whether the category requires the field.
func (p CategoryPolicy) IsMandatory(field model.FieldName) bool {
	return slices.Contains(p.Mandatory, field)
}

// IsOptional reports whether the category lists the field as optional.
func (p CategoryPolicy) IsOptional(field model.FieldName) bool {
	return slices.Contains(p.Optional, field)
}

// Restricted reports whether the category has a closed set of container sizes.
func (p CategoryPolicy) Restricted() bool {
	return p.LegalVolumesML != nil
}

// LegalVolume reports whether a container size is allowed for the category.
func (p CategoryPolicy) LegalVolume(ml float64) bool {
	if !p.Restricted() {
		return true
	}
	for _, v := range p.LegalVolumesML {
		if math.Abs(v-ml) < 0.01 {
			return true
		}
	}
	return false
}
