package review

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/label-review/internal/config"
	"github.com/sells-group/label-review/internal/model"
	"github.com/sells-group/label-review/internal/store"
)

// memStore is an in-memory store.Store for review tests.
type memStore struct {
	mu        sync.Mutex
	results   []model.ValidationResult
	saveErr   error
	failSaves int // fail this many saves with saveErr, then succeed; 0 = always fail
	saveCalls int
}

func (m *memStore) SaveResult(_ context.Context, r *model.ValidationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	if m.saveErr != nil && (m.failSaves == 0 || m.saveCalls <= m.failSaves) {
		return m.saveErr
	}
	for i := range m.results {
		if m.results[i].ApplicationID == r.ApplicationID {
			m.results[i].Superseded = true
		}
	}
	if r.ID == "" {
		r.ID = r.ApplicationID + "-" + r.CreatedAt.Format(time.RFC3339Nano)
	}
	m.results = append(m.results, *r)
	return nil
}

func (m *memStore) LatestResult(_ context.Context, applicationID string) (*model.ValidationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.results) - 1; i >= 0; i-- {
		if m.results[i].ApplicationID == applicationID {
			r := m.results[i]
			return &r, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListResults(_ context.Context, filter store.ResultFilter) ([]model.ValidationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ValidationResult
	for i := len(m.results) - 1; i >= 0; i-- {
		r := m.results[i]
		if filter.ApplicationID != "" && r.ApplicationID != filter.ApplicationID {
			continue
		}
		if filter.ExcludeSuperseded && r.Superseded {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *memStore) Migrate(context.Context) error { return nil }
func (m *memStore) Close() error                  { return nil }

// fixedClock returns a Service clock that can be advanced by the test.
type fixedClock struct{ t time.Time }

func (c *fixedClock) now() time.Time { return c.t }

func newTestService(t *testing.T, cfg config.ReviewConfig) (*Service, *memStore, *fixedClock) {
	t.Helper()
	st := &memStore{}
	clock := &fixedClock{t: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)}
	svc := NewService(st, cfg)
	svc.now = clock.now
	svc.retry.InitialBackoff = time.Millisecond
	svc.retry.MaxBackoff = time.Millisecond
	return svc, st, clock
}

func spiritsApplication() model.Application {
	return model.Application{
		ID:              "app-1",
		Category:        model.CategoryDistilledSpirits,
		ContainerSizeML: 750,
		DeclaredValues: map[model.FieldName]string{
			model.FieldBrandName:        "Old Tom Distillery",
			model.FieldClassType:        "Kentucky Straight Bourbon Whiskey",
			model.FieldAlcoholContent:   "45% Alc./Vol.",
			model.FieldNetContents:      "750 mL",
			model.FieldQualifyingPhrase: "Distilled and Bottled by",
			model.FieldHealthWarning:    "GOVERNMENT WARNING: (1) According to the Surgeon General, women should not drink alcoholic beverages during pregnancy because of the risk of birth defects.",
		},
	}
}

func extractionFor(app model.Application) []model.ExtractedField {
	var out []model.ExtractedField
	for f, v := range app.DeclaredValues {
		out = append(out, model.ExtractedField{FieldName: f, Value: v, Confidence: 90})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FieldName < out[j].FieldName })
	return out
}

func withExtracted(extraction []model.ExtractedField, field model.FieldName, value string) []model.ExtractedField {
	out := make([]model.ExtractedField, 0, len(extraction))
	for _, ef := range extraction {
		if ef.FieldName == field {
			ef.Value = value
		}
		out = append(out, ef)
	}
	return out
}

func withoutExtracted(extraction []model.ExtractedField, field model.FieldName) []model.ExtractedField {
	var out []model.ExtractedField
	for _, ef := range extraction {
		if ef.FieldName != field {
			out = append(out, ef)
		}
	}
	return out
}

func TestValidateApplication(t *testing.T) {
	valid := spiritsApplication()
	assert.NoError(t, ValidateApplication(valid))

	tests := []struct {
		name   string
		mutate func(*model.Application)
		want   string
	}{
		{"missing id", func(a *model.Application) { a.ID = "" }, "application id is required"},
		{"unknown category", func(a *model.Application) { a.Category = "cider" }, "unknown category"},
		{"zero container", func(a *model.Application) { a.ContainerSizeML = 0 }, "container size must be > 0"},
		{"negative container", func(a *model.Application) { a.ContainerSizeML = -750 }, "container size must be > 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := spiritsApplication()
			tt.mutate(&app)
			err := ValidateApplication(app)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBuildInputs_OrderAndBestExtraction(t *testing.T) {
	app := model.Application{
		ID:              "app-1",
		Category:        model.CategoryWine,
		ContainerSizeML: 750,
		DeclaredValues: map[model.FieldName]string{
			"sulfite_declaration":  "Contains Sulfites",
			model.FieldNetContents: "750 mL",
			model.FieldBrandName:   "Chateau Test",
		},
	}
	extraction := []model.ExtractedField{
		{FieldName: model.FieldBrandName, Value: "Chateau Tost", Confidence: 60},
		{FieldName: model.FieldBrandName, Value: "Chateau Test", Confidence: 95},
		{FieldName: model.FieldBrandName, Value: "Chateau Tast", Confidence: 95},
		{FieldName: model.FieldGrapeVarietal, Value: "Merlot", Confidence: 99},
	}

	inputs := BuildInputs(app, extraction)
	require.Len(t, inputs, 3)

	assert.Equal(t, model.FieldBrandName, inputs[0].FieldName)
	require.NotNil(t, inputs[0].ExtractedValue)
	assert.Equal(t, "Chateau Test", *inputs[0].ExtractedValue)

	assert.Equal(t, model.FieldNetContents, inputs[1].FieldName)
	assert.Nil(t, inputs[1].ExtractedValue)

	assert.Equal(t, model.FieldName("sulfite_declaration"), inputs[2].FieldName)
	assert.Nil(t, inputs[2].ExtractedValue)
}

func TestEvaluate_AllMatchApproved(t *testing.T) {
	app := spiritsApplication()
	eval := Evaluate(app, extractionFor(app))

	require.Len(t, eval.Verdicts, len(app.DeclaredValues))
	for _, v := range eval.Verdicts {
		assert.Equal(t, model.VerdictMatch, v.Status, v.FieldName)
	}
	assert.Equal(t, model.DispositionApproved, eval.Assessment.Disposition)
	assert.Equal(t, 100, eval.Confidence)
}

func TestEvaluate_MissingHealthWarningRejects(t *testing.T) {
	app := spiritsApplication()
	eval := Evaluate(app, withoutExtracted(extractionFor(app), model.FieldHealthWarning))
	assert.Equal(t, model.DispositionRejected, eval.Assessment.Disposition)
	assert.False(t, eval.Assessment.HasCorrectionWindow())
}

func TestEvaluate_UndeclaredHealthWarningRejects(t *testing.T) {
	app := spiritsApplication()
	delete(app.DeclaredValues, model.FieldHealthWarning)

	// Even with the warning printed on the label, the application never
	// declared it.
	eval := Evaluate(app, extractionFor(spiritsApplication()))
	assert.Equal(t, model.DispositionRejected, eval.Assessment.Disposition)

	require.Len(t, eval.Verdicts, len(app.DeclaredValues)+1)
	var warning *model.FieldVerdict
	for i := range eval.Verdicts {
		if eval.Verdicts[i].FieldName == model.FieldHealthWarning {
			warning = &eval.Verdicts[i]
		}
	}
	require.NotNil(t, warning)
	assert.Equal(t, model.VerdictNotFound, warning.Status)
	assert.Contains(t, warning.Rationale, "not declared")
}

func TestEvaluate_UndeclaredMandatoryFieldsInCanonicalOrder(t *testing.T) {
	app := model.Application{
		ID:              "app-2",
		Category:        model.CategoryWine,
		ContainerSizeML: 750,
		DeclaredValues:  map[model.FieldName]string{model.FieldBrandName: "Chateau Test"},
	}
	eval := Evaluate(app, []model.ExtractedField{{FieldName: model.FieldBrandName, Value: "Chateau Test", Confidence: 90}})

	var names []model.FieldName
	for _, v := range eval.Verdicts {
		names = append(names, v.FieldName)
	}
	assert.Equal(t, []model.FieldName{
		model.FieldBrandName,
		model.FieldClassType,
		model.FieldAlcoholContent,
		model.FieldNetContents,
		model.FieldHealthWarning,
		model.FieldQualifyingPhrase,
	}, names)
	assert.Equal(t, model.DispositionRejected, eval.Assessment.Disposition)
}

func TestUndeclaredMandatory_UnknownCategory(t *testing.T) {
	app := spiritsApplication()
	app.Category = "cider"
	assert.Empty(t, UndeclaredMandatory(app))
}

func TestEvaluate_IllegalContainerRejects(t *testing.T) {
	app := spiritsApplication()
	app.ContainerSizeML = 999
	eval := Evaluate(app, extractionFor(app))
	assert.Equal(t, model.DispositionRejected, eval.Assessment.Disposition)
	assert.True(t, eval.Assessment.IllegalContainer)
	// Verdicts are still reported for the reviewer.
	assert.Len(t, eval.Verdicts, len(app.DeclaredValues))
}

func TestReview_PersistsWithDeadline(t *testing.T) {
	svc, st, clock := newTestService(t, config.ReviewConfig{})
	app := spiritsApplication()
	extraction := withExtracted(extractionFor(app), model.FieldClassType, "Vodka")

	result, err := svc.Review(context.Background(), Request{Application: app, Extraction: extraction})
	require.NoError(t, err)

	assert.Equal(t, model.DispositionNeedsCorrection, result.Disposition)
	assert.Equal(t, 30, result.CorrectionWindowDays)
	require.NotNil(t, result.Deadline)
	assert.Equal(t, clock.t.AddDate(0, 0, 30), *result.Deadline)
	assert.Equal(t, clock.t, result.CreatedAt)

	latest, err := st.LatestResult(context.Background(), app.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, result.ID, latest.ID)
}

func TestReview_ApprovedHasNoDeadline(t *testing.T) {
	svc, _, _ := newTestService(t, config.ReviewConfig{})
	app := spiritsApplication()

	result, err := svc.Review(context.Background(), Request{Application: app, Extraction: extractionFor(app)})
	require.NoError(t, err)
	assert.Equal(t, model.DispositionApproved, result.Disposition)
	assert.Nil(t, result.Deadline)
}

func TestReview_ReanalysisKeepsDeadline(t *testing.T) {
	svc, st, clock := newTestService(t, config.ReviewConfig{})
	app := spiritsApplication()
	req := Request{Application: app, Extraction: withExtracted(extractionFor(app), model.FieldClassType, "Vodka")}

	first, err := svc.Review(context.Background(), req)
	require.NoError(t, err)

	clock.t = clock.t.AddDate(0, 0, 10)
	second, err := svc.Review(context.Background(), req)
	require.NoError(t, err)

	require.NotNil(t, second.Deadline)
	assert.Equal(t, *first.Deadline, *second.Deadline)

	history, err := st.ListResults(context.Background(), store.ResultFilter{ApplicationID: app.ID})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.False(t, history[0].Superseded)
	assert.True(t, history[1].Superseded)
}

func TestReview_ReanalysisResetsDeadlineWhenConfigured(t *testing.T) {
	svc, _, clock := newTestService(t, config.ReviewConfig{ResetDeadlineOnReanalysis: true})
	app := spiritsApplication()
	req := Request{Application: app, Extraction: withExtracted(extractionFor(app), model.FieldClassType, "Vodka")}

	first, err := svc.Review(context.Background(), req)
	require.NoError(t, err)

	clock.t = clock.t.AddDate(0, 0, 10)
	second, err := svc.Review(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Deadline.AddDate(0, 0, 10), *second.Deadline)
}

func TestReview_DispositionChangeStartsNewWindow(t *testing.T) {
	svc, _, clock := newTestService(t, config.ReviewConfig{})
	app := spiritsApplication()
	extraction := extractionFor(app)

	_, err := svc.Review(context.Background(), Request{Application: app, Extraction: withExtracted(extraction, model.FieldClassType, "Vodka")})
	require.NoError(t, err)

	clock.t = clock.t.AddDate(0, 0, 3)
	// brand name is minor: conditionally approved with a 7-day window
	second, err := svc.Review(context.Background(), Request{Application: app, Extraction: withExtracted(extraction, model.FieldBrandName, "Completely Different")})
	require.NoError(t, err)

	assert.Equal(t, model.DispositionConditionallyApproved, second.Disposition)
	assert.Equal(t, clock.t.AddDate(0, 0, 7), *second.Deadline)
}

func TestReview_ExpiredDeadlineIsNotKept(t *testing.T) {
	svc, _, clock := newTestService(t, config.ReviewConfig{})
	app := spiritsApplication()
	req := Request{Application: app, Extraction: withExtracted(extractionFor(app), model.FieldClassType, "Vodka")}

	_, err := svc.Review(context.Background(), req)
	require.NoError(t, err)

	clock.t = clock.t.AddDate(0, 0, 45)
	second, err := svc.Review(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, clock.t.AddDate(0, 0, 30), *second.Deadline)
}

func TestReview_InvalidApplication(t *testing.T) {
	svc, st, _ := newTestService(t, config.ReviewConfig{})
	app := spiritsApplication()
	app.ID = ""

	_, err := svc.Review(context.Background(), Request{Application: app})
	require.Error(t, err)
	assert.Empty(t, st.results)
}

func TestReview_SaveError(t *testing.T) {
	svc, st, _ := newTestService(t, config.ReviewConfig{})
	st.saveErr = errors.New("disk I/O error")
	app := spiritsApplication()

	_, err := svc.Review(context.Background(), Request{Application: app, Extraction: extractionFor(app)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "review: save result for app-1")
	assert.Equal(t, 1, st.saveCalls)
}

func TestReview_RetriesLockedDatabase(t *testing.T) {
	svc, st, _ := newTestService(t, config.ReviewConfig{SaveAttempts: 3})
	st.saveErr = errors.New("database is locked (5) (SQLITE_BUSY)")
	st.failSaves = 2
	app := spiritsApplication()

	result, err := svc.Review(context.Background(), Request{Application: app, Extraction: extractionFor(app)})
	require.NoError(t, err)
	assert.Equal(t, 3, st.saveCalls)
	assert.Len(t, st.results, 1)
	assert.Equal(t, result.ID, st.results[0].ID)
}

func TestReview_GivesUpAfterSaveAttempts(t *testing.T) {
	svc, st, _ := newTestService(t, config.ReviewConfig{SaveAttempts: 2})
	st.saveErr = errors.New("database is locked")
	app := spiritsApplication()

	_, err := svc.Review(context.Background(), Request{Application: app, Extraction: extractionFor(app)})
	require.Error(t, err)
	assert.Equal(t, 2, st.saveCalls)
}

func TestReviewBatch(t *testing.T) {
	svc, st, _ := newTestService(t, config.ReviewConfig{})

	var reqs []Request
	for _, id := range []string{"a", "b", "", "d"} {
		app := spiritsApplication()
		app.ID = id
		reqs = append(reqs, Request{Application: app, Extraction: extractionFor(app)})
	}

	outcomes, err := svc.ReviewBatch(context.Background(), reqs, 2)
	require.NoError(t, err)
	require.Len(t, outcomes, 4)

	for i, o := range outcomes {
		assert.Equal(t, reqs[i].Application.ID, o.ApplicationID)
	}
	assert.NoError(t, outcomes[0].Err)
	assert.Equal(t, model.DispositionApproved, outcomes[0].Result.Disposition)
	assert.Error(t, outcomes[2].Err)
	assert.Nil(t, outcomes[2].Result)
	assert.Len(t, st.results, 3)
}

func TestReviewBatch_Empty(t *testing.T) {
	svc, _, _ := newTestService(t, config.ReviewConfig{})
	outcomes, err := svc.ReviewBatch(context.Background(), nil, 5)
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}

func TestReviewBatch_CancelledContext(t *testing.T) {
	svc, st, _ := newTestService(t, config.ReviewConfig{})
	app := spiritsApplication()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes, err := svc.ReviewBatch(ctx, []Request{{Application: app, Extraction: extractionFor(app)}}, 1)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.ErrorIs(t, outcomes[0].Err, context.Canceled)
	assert.Empty(t, st.results)
}
