package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/label-review/internal/config"
	"github.com/sells-group/label-review/internal/model"
	"github.com/sells-group/label-review/internal/monitoring"
	"github.com/sells-group/label-review/internal/review"
	"github.com/sells-group/label-review/internal/store"
)

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		Port:           8080,
		RateLimit:      1000,
		RateBurst:      1000,
		AllowedOrigins: []string{"*"},
	}
}

// newTestServer creates a server backed by a temporary SQLite store.
func newTestServer(t *testing.T, cfg config.ServerConfig) *Server {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	return New(cfg, st, review.NewService(st, config.ReviewConfig{}))
}

func do(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.Error
}

const wineHealthWarning = "GOVERNMENT WARNING: (1) According to the Surgeon General, women should not drink alcoholic beverages during pregnancy because of the risk of birth defects."

func wineRequest(id string) review.Request {
	return review.Request{
		Application: model.Application{
			ID:              id,
			Category:        model.CategoryWine,
			ContainerSizeML: 750,
			DeclaredValues: map[model.FieldName]string{
				model.FieldBrandName:        "Chateau Test",
				model.FieldClassType:        "Red Wine",
				model.FieldNetContents:      "750 mL",
				model.FieldAlcoholContent:   "13.5% Alc./Vol.",
				model.FieldHealthWarning:    wineHealthWarning,
				model.FieldQualifyingPhrase: "Produced and Bottled by",
			},
		},
		Extraction: []model.ExtractedField{
			{FieldName: model.FieldBrandName, Value: "Chateau Test", Confidence: 95},
			{FieldName: model.FieldClassType, Value: "Red Wine", Confidence: 90},
			{FieldName: model.FieldNetContents, Value: "750 mL", Confidence: 97},
			{FieldName: model.FieldAlcoholContent, Value: "13.5% Alc./Vol.", Confidence: 93},
			{FieldName: model.FieldHealthWarning, Value: wineHealthWarning, Confidence: 92},
			{FieldName: model.FieldQualifyingPhrase, Value: "Produced and Bottled by", Confidence: 91},
		},
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, testServerConfig())
	rr := do(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get("Content-Type"))
}

func TestCompareEndpoint(t *testing.T) {
	srv := newTestServer(t, testServerConfig())

	t.Run("Match", func(t *testing.T) {
		rr := do(t, srv, http.MethodPost, "/v1/compare", `{"field_name":"alcohol_content","expected_value":"45% ABV","extracted_value":"90 Proof"}`)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var v model.FieldVerdict
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v))
		assert.Equal(t, model.FieldAlcoholContent, v.FieldName)
		assert.Equal(t, model.VerdictMatch, v.Status)
		assert.Equal(t, 100, v.Confidence)
	})

	t.Run("NullExtractedValue", func(t *testing.T) {
		rr := do(t, srv, http.MethodPost, "/v1/compare", `{"field_name":"brand_name","expected_value":"Acme","extracted_value":null}`)
		require.Equal(t, http.StatusOK, rr.Code)

		var v model.FieldVerdict
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v))
		assert.Equal(t, model.VerdictNotFound, v.Status)
		assert.Equal(t, 0, v.Confidence)
	})

	t.Run("MissingFieldName", func(t *testing.T) {
		rr := do(t, srv, http.MethodPost, "/v1/compare", `{"expected_value":"Acme"}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "field_name is required", decodeError(t, rr))
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		rr := do(t, srv, http.MethodPost, "/v1/compare", `{`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestAdjudicateEndpoint(t *testing.T) {
	srv := newTestServer(t, testServerConfig())

	body := AdjudicateRequest{
		Category:        model.CategoryWine,
		ContainerSizeML: 750,
		Verdicts: []model.FieldVerdict{
			{FieldName: model.FieldBrandName, Status: model.VerdictMatch, Confidence: 100},
			{FieldName: model.FieldClassType, Status: model.VerdictMismatch, Confidence: 40},
		},
	}
	rr := do(t, srv, http.MethodPost, "/v1/adjudicate", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp struct {
		Disposition          model.Disposition `json:"disposition"`
		CorrectionWindowDays int               `json:"correction_window_days"`
		IllegalContainer     bool              `json:"illegal_container"`
		Confidence           int               `json:"confidence"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, model.DispositionNeedsCorrection, resp.Disposition)
	assert.Equal(t, 30, resp.CorrectionWindowDays)
	assert.False(t, resp.IllegalContainer)
	assert.Equal(t, 70, resp.Confidence)
}

func TestAdjudicateEndpoint_UnknownCategory(t *testing.T) {
	srv := newTestServer(t, testServerConfig())

	body := AdjudicateRequest{
		Category:        "beer",
		ContainerSizeML: 999,
		Verdicts: []model.FieldVerdict{
			{FieldName: model.FieldHealthWarning, Status: model.VerdictNotFound},
			{FieldName: model.FieldClassType, Status: model.VerdictNotFound},
		},
	}
	rr := do(t, srv, http.MethodPost, "/v1/adjudicate", body)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeError(t, rr), `unknown category "beer"`)
}

func TestReviewAndResults(t *testing.T) {
	srv := newTestServer(t, testServerConfig())

	rr := do(t, srv, http.MethodGet, "/v1/applications/app-1/results/latest", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, srv, http.MethodPost, "/v1/applications/app-1/review", wineRequest("app-1"))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var created model.ValidationResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, model.DispositionApproved, created.Disposition)
	assert.Len(t, created.Verdicts, 6)

	// re-analysis with a bad class type
	req := wineRequest("")
	req.Extraction[1].Value = "Sparkling Cider"
	rr = do(t, srv, http.MethodPost, "/v1/applications/app-1/review", req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = do(t, srv, http.MethodGet, "/v1/applications/app-1/results/latest", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var latest model.ValidationResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &latest))
	assert.Equal(t, model.DispositionNeedsCorrection, latest.Disposition)
	assert.NotNil(t, latest.Deadline)

	rr = do(t, srv, http.MethodGet, "/v1/applications/app-1/results", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var history []model.ValidationResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &history))
	require.Len(t, history, 2)
	assert.Equal(t, latest.ID, history[0].ID)
	assert.True(t, history[1].Superseded)

	rr = do(t, srv, http.MethodGet, "/v1/applications/app-1/results?current=true", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &history))
	assert.Len(t, history, 1)

	rr = do(t, srv, http.MethodGet, "/v1/applications/other/results", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestStatsEndpoint(t *testing.T) {
	srv := newTestServer(t, testServerConfig())

	rr := do(t, srv, http.MethodGet, "/v1/stats", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var empty monitoring.Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &empty))
	assert.Equal(t, 0, empty.Total)
	assert.Equal(t, 24, empty.LookbackHours)

	rr = do(t, srv, http.MethodPost, "/v1/applications/app-1/review", wineRequest("app-1"))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	bad := wineRequest("app-2")
	bad.Extraction[1].Value = "Sparkling Cider"
	rr = do(t, srv, http.MethodPost, "/v1/applications/app-2/review", bad)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = do(t, srv, http.MethodGet, "/v1/stats?lookback_hours=1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var snap monitoring.Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.Equal(t, 2, snap.Total)
	assert.Equal(t, 1, snap.Approved)
	assert.Equal(t, 1, snap.NeedsCorrection)
	assert.Zero(t, snap.OverdueCorrections)
	assert.Equal(t, 1, snap.LookbackHours)

	rr = do(t, srv, http.MethodGet, "/v1/stats?lookback_hours=soon", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, srv, http.MethodGet, "/v1/stats?lookback_hours=9223372036854775807", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeError(t, rr), "at most")

	rr = do(t, srv, http.MethodGet, fmt.Sprintf("/v1/stats?lookback_hours=%d", monitoring.MaxLookbackHours), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var wide monitoring.Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &wide))
	assert.Equal(t, 2, wide.Total)
}

func TestReviewValidation(t *testing.T) {
	srv := newTestServer(t, testServerConfig())

	rr := do(t, srv, http.MethodPost, "/v1/applications/app-1/review", wineRequest("app-2"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "application.id does not match path", decodeError(t, rr))

	req := wineRequest("app-1")
	req.Application.Category = "cider"
	rr = do(t, srv, http.MethodPost, "/v1/applications/app-1/review", req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeError(t, rr), "unknown category")

	rr = do(t, srv, http.MethodPost, "/v1/applications/app-1/review", `not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListResults_BadPagination(t *testing.T) {
	srv := newTestServer(t, testServerConfig())

	rr := do(t, srv, http.MethodGet, "/v1/applications/app-1/results?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, srv, http.MethodGet, "/v1/applications/app-1/results?offset=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testServerConfig()
	cfg.RateLimit = 0.001
	cfg.RateBurst = 1
	srv := newTestServer(t, cfg)

	body := `{"field_name":"brand_name","expected_value":"Acme","extracted_value":"Acme"}`
	rr := do(t, srv, http.MethodPost, "/v1/compare", body)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, srv, http.MethodPost, "/v1/compare", body)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "rate limit exceeded", decodeError(t, rr))

	// health is not rate limited
	rr = do(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, testServerConfig())

	req := httptest.NewRequest(http.MethodOptions, "/v1/compare", nil)
	req.Header.Set("Origin", "https://reviewer.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}
