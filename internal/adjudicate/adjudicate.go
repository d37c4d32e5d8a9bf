// Package adjudicate rolls per-field comparison verdicts up into a single
// application disposition with an optional correction window.
//
// Everything here is a pure function of its arguments. Re-adjudicating after
// a re-analysis recomputes from scratch; deciding whether an existing
// deadline should be reset is left to the caller.
package adjudicate

import (
	"math"

	"github.com/sells-group/label-review/internal/model"
)

// Effect is what a single verdict contributes to the rollup.
type Effect string

const (
	EffectNone        Effect = "none"
	EffectMinor       Effect = "minor"
	EffectSubstantive Effect = "substantive"
	EffectReject      Effect = "reject"
)

// Finding records how one verdict was classified.
type Finding struct {
	FieldName model.FieldName     `json:"field_name"`
	Status    model.VerdictStatus `json:"status"`
	Severity  Severity            `json:"severity"`
	Mandatory bool                `json:"mandatory"`
	Effect    Effect              `json:"effect"`
}

// Assessment is an Adjudication together with the reasoning behind it.
type Assessment struct {
	model.Adjudication
	IllegalContainer bool      `json:"illegal_container"`
	Findings         []Finding `json:"findings,omitempty"`
}

// Classify decides the effect of one verdict under a category policy.
func Classify(v model.FieldVerdict, policy CategoryPolicy) Effect {
	mandatory := policy.IsMandatory(v.FieldName)
	severity := SeverityOf(v.FieldName)

	switch v.Status {
	case model.VerdictMatch:
		return EffectNone
	case model.VerdictNotFound:
		// Optional fields may legitimately be absent.
		if !mandatory {
			return EffectNone
		}
		switch severity {
		case SeverityRejection:
			return EffectReject
		case SeverityMinor:
			return EffectMinor
		default:
			return EffectSubstantive
		}
	default:
		// Mismatch, or any status that calls for correction.
		switch severity {
		case SeverityRejection:
			return EffectReject
		case SeverityMinor:
			return EffectMinor
		default:
			if mandatory {
				return EffectSubstantive
			}
			return EffectMinor
		}
	}
}

// Rollup applies the fixed precedence reject > substantive > minor > none.
func Rollup(effects []Effect) model.Adjudication {
	var reject, substantive, minor bool
	for _, e := range effects {
		switch e {
		case EffectReject:
			reject = true
		case EffectSubstantive:
			substantive = true
		case EffectMinor:
			minor = true
		}
	}

	switch {
	case reject:
		return model.Adjudication{Disposition: model.DispositionRejected}
	case substantive:
		return model.Adjudication{Disposition: model.DispositionNeedsCorrection, CorrectionWindowDays: CorrectionWindowDays}
	case minor:
		return model.Adjudication{Disposition: model.DispositionConditionallyApproved, CorrectionWindowDays: ConditionalWindowDays}
	default:
		return model.Adjudication{Disposition: model.DispositionApproved}
	}
}

// Assess adjudicates and keeps the per-field findings. An illegal container
// size rejects immediately without looking at the verdicts.
func Assess(verdicts []model.FieldVerdict, category model.BeverageCategory, containerSizeML float64) Assessment {
	policy := PolicyFor(category)
	if !policy.LegalVolume(containerSizeML) {
		return Assessment{
			Adjudication:     model.Adjudication{Disposition: model.DispositionRejected},
			IllegalContainer: true,
		}
	}

	findings := make([]Finding, 0, len(verdicts))
	effects := make([]Effect, 0, len(verdicts))
	for _, v := range verdicts {
		effect := Classify(v, policy)
		effects = append(effects, effect)
		findings = append(findings, Finding{
			FieldName: v.FieldName,
			Status:    v.Status,
			Severity:  SeverityOf(v.FieldName),
			Mandatory: policy.IsMandatory(v.FieldName),
			Effect:    effect,
		})
	}

	return Assessment{
		Adjudication: Rollup(effects),
		Findings:     findings,
	}
}

// Adjudicate computes the overall disposition for an application.
func Adjudicate(verdicts []model.FieldVerdict, category model.BeverageCategory, containerSizeML float64) model.Adjudication {
	return Assess(verdicts, category, containerSizeML).Adjudication
}

// AggregateConfidence is the mean verdict confidence rounded to the nearest
// integer, or 0 when there are no verdicts.
func AggregateConfidence(verdicts []model.FieldVerdict) int {
	if len(verdicts) == 0 {
		return 0
	}
	sum := 0
	for _, v := range verdicts {
		sum += v.Confidence
	}
	return int(math.Round(float64(sum) / float64(len(verdicts))))
}
