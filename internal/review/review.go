// Package review runs the comparator and adjudicator over one application's
// declared values and its label extraction, and persists the outcome.
package review

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/label-review/internal/adjudicate"
	"github.com/sells-group/label-review/internal/compare"
	"github.com/sells-group/label-review/internal/config"
	"github.com/sells-group/label-review/internal/model"
	"github.com/sells-group/label-review/internal/resilience"
	"github.com/sells-group/label-review/internal/store"
)

// Request pairs an application with the fields extracted from its label.
type Request struct {
	Application model.Application      `json:"application" yaml:"application"`
	Extraction  []model.ExtractedField `json:"extraction" yaml:"extraction"`
}

// Evaluation is the unpersisted outcome of reviewing one application.
type Evaluation struct {
	Verdicts   []model.FieldVerdict  `json:"verdicts"`
	Assessment adjudicate.Assessment `json:"assessment"`
	Confidence int                   `json:"confidence"`
}

// ValidateApplication rejects applications the adjudicator cannot judge
// meaningfully.
func ValidateApplication(app model.Application) error {
	if app.ID == "" {
		return eris.New("review: application id is required")
	}
	if !app.Category.Valid() {
		return eris.Errorf("review: unknown category %q", app.Category)
	}
	if app.ContainerSizeML <= 0 {
		return eris.Errorf("review: container size must be > 0, got %v", app.ContainerSizeML)
	}
	return nil
}

// BuildInputs pairs every declared field with its extracted value. Fields
// are ordered canonically; when several extraction records name the same
// field the most confident one wins, earliest first on ties.
func BuildInputs(app model.Application, extraction []model.ExtractedField) []model.ComparisonInput {
	best := make(map[model.FieldName]model.ExtractedField, len(extraction))
	for _, ef := range extraction {
		if cur, ok := best[ef.FieldName]; !ok || ef.Confidence > cur.Confidence {
			best[ef.FieldName] = ef
		}
	}

	fields := make([]model.FieldName, 0, len(app.DeclaredValues))
	for f := range app.DeclaredValues {
		fields = append(fields, f)
	}
	model.SortFields(fields)

	inputs := make([]model.ComparisonInput, 0, len(fields))
	for _, f := range fields {
		in := model.ComparisonInput{
			FieldName:     f,
			ExpectedValue: app.DeclaredValues[f],
		}
		if ef, ok := best[f]; ok {
			value := ef.Value
			in.ExtractedValue = &value
		}
		inputs = append(inputs, in)
	}
	return inputs
}

// UndeclaredMandatory returns a NotFound verdict for every field the
// category requires that the application does not declare.
func UndeclaredMandatory(app model.Application) []model.FieldVerdict {
	var out []model.FieldVerdict
	for _, f := range adjudicate.PolicyFor(app.Category).Mandatory {
		if _, ok := app.DeclaredValues[f]; ok {
			continue
		}
		out = append(out, model.FieldVerdict{
			FieldName:  f,
			Status:     model.VerdictNotFound,
			Confidence: 0,
			Rationale:  fmt.Sprintf("%s: mandatory field not declared on the application", f),
		})
	}
	return out
}

// Evaluate compares and adjudicates without touching storage. Mandatory
// fields missing from the application count as not found.
func Evaluate(app model.Application, extraction []model.ExtractedField) Evaluation {
	inputs := BuildInputs(app, extraction)
	verdicts := make([]model.FieldVerdict, 0, len(inputs))
	for _, in := range inputs {
		verdicts = append(verdicts, compare.Compare(in))
	}
	verdicts = append(verdicts, UndeclaredMandatory(app)...)
	sort.SliceStable(verdicts, func(i, j int) bool {
		return model.FieldLess(verdicts[i].FieldName, verdicts[j].FieldName)
	})

	return Evaluation{
		Verdicts:   verdicts,
		Assessment: adjudicate.Assess(verdicts, app.Category, app.ContainerSizeML),
		Confidence: adjudicate.AggregateConfidence(verdicts),
	}
}

// Service reviews applications and records each result.
type Service struct {
	store         store.Store
	resetDeadline bool
	retry         resilience.RetryConfig
	now           func() time.Time
}

// NewService creates a Service backed by st. Result writes that fail
// transiently are retried up to cfg.SaveAttempts times.
func NewService(st store.Store, cfg config.ReviewConfig) *Service {
	retry := resilience.DefaultRetryConfig()
	if cfg.SaveAttempts > 0 {
		retry.MaxAttempts = cfg.SaveAttempts
	}
	retry.OnRetry = resilience.RetryLogger("save_result")

	return &Service{
		store:         st,
		resetDeadline: cfg.ResetDeadlineOnReanalysis,
		retry:         retry,
		now:           time.Now,
	}
}

// Review evaluates req and stores the result, superseding any earlier
// result for the same application.
//
// A re-analysis that lands on the same disposition keeps the previous
// deadline while it is still in the future, so resubmitting does not extend
// the applicant's correction window. Set review.reset_deadline_on_reanalysis
// to always start a fresh window.
func (s *Service) Review(ctx context.Context, req Request) (*model.ValidationResult, error) {
	app := req.Application
	if err := ValidateApplication(app); err != nil {
		return nil, err
	}

	eval := Evaluate(app, req.Extraction)
	now := s.now().UTC()

	result := &model.ValidationResult{
		ApplicationID:        app.ID,
		Category:             app.Category,
		ContainerSizeML:      app.ContainerSizeML,
		Verdicts:             eval.Verdicts,
		Disposition:          eval.Assessment.Disposition,
		CorrectionWindowDays: eval.Assessment.CorrectionWindowDays,
		Confidence:           eval.Confidence,
		CreatedAt:            now,
	}

	if eval.Assessment.HasCorrectionWindow() {
		deadline := now.AddDate(0, 0, eval.Assessment.CorrectionWindowDays)
		result.Deadline = &deadline

		if !s.resetDeadline {
			prev, err := s.store.LatestResult(ctx, app.ID)
			if err != nil {
				return nil, eris.Wrapf(err, "review: load previous result for %s", app.ID)
			}
			if prev != nil && prev.Disposition == result.Disposition &&
				prev.Deadline != nil && prev.Deadline.After(now) {
				kept := *prev.Deadline
				result.Deadline = &kept
			}
		}
	}

	err := resilience.Do(ctx, s.retry, func(ctx context.Context) error {
		return s.store.SaveResult(ctx, result)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "review: save result for %s", app.ID)
	}

	zap.L().Info("review complete",
		zap.String("application_id", app.ID),
		zap.String("category", string(app.Category)),
		zap.String("disposition", string(result.Disposition)),
		zap.Int("confidence", result.Confidence),
		zap.Bool("illegal_container", eval.Assessment.IllegalContainer),
	)
	return result, nil
}
