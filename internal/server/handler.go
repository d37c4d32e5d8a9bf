package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/label-review/internal/adjudicate"
	"github.com/sells-group/label-review/internal/compare"
	"github.com/sells-group/label-review/internal/model"
	"github.com/sells-group/label-review/internal/monitoring"
	"github.com/sells-group/label-review/internal/review"
	"github.com/sells-group/label-review/internal/store"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	store   store.Store
	review  *review.Service
	metrics *monitoring.Collector
}

// NewHandler creates a new API handler.
func NewHandler(st store.Store, svc *review.Service) *Handler {
	return &Handler{store: st, review: svc, metrics: monitoring.NewCollector(st)}
}

const defaultStatsLookbackHours = 24

// AdjudicateRequest is the request body for POST /v1/adjudicate.
type AdjudicateRequest struct {
	Verdicts        []model.FieldVerdict   `json:"verdicts"`
	Category        model.BeverageCategory `json:"category"`
	ContainerSizeML float64                `json:"container_size_ml"`
}

// AdjudicateResponse is the response for POST /v1/adjudicate.
type AdjudicateResponse struct {
	adjudicate.Assessment
	Confidence int `json:"confidence"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Compare handles POST /v1/compare.
func (h *Handler) Compare(w http.ResponseWriter, r *http.Request) {
	var in model.ComparisonInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if in.FieldName == "" {
		writeError(w, http.StatusBadRequest, "field_name is required")
		return
	}

	writeJSON(w, http.StatusOK, compare.Compare(in))
}

// Adjudicate handles POST /v1/adjudicate.
func (h *Handler) Adjudicate(w http.ResponseWriter, r *http.Request) {
	var req AdjudicateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if !req.Category.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown category %q", req.Category))
		return
	}

	writeJSON(w, http.StatusOK, AdjudicateResponse{
		Assessment: adjudicate.Assess(req.Verdicts, req.Category, req.ContainerSizeML),
		Confidence: adjudicate.AggregateConfidence(req.Verdicts),
	})
}

// Review handles POST /v1/applications/{id}/review.
func (h *Handler) Review(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req review.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if req.Application.ID == "" {
		req.Application.ID = id
	}
	if req.Application.ID != id {
		writeError(w, http.StatusBadRequest, "application.id does not match path")
		return
	}
	if err := review.ValidateApplication(req.Application); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.review.Review(r.Context(), req)
	if err != nil {
		zap.L().Error("review failed", zap.String("application_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to store result")
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// ListResults handles GET /v1/applications/{id}/results.
func (h *Handler) ListResults(w http.ResponseWriter, r *http.Request) {
	filter := store.ResultFilter{ApplicationID: chi.URLParam(r, "id")}

	q := r.URL.Query()
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}
	filter.ExcludeSuperseded = q.Get("current") == "true"

	results, err := h.store.ListResults(r.Context(), filter)
	if err != nil {
		zap.L().Error("list results failed", zap.String("application_id", filter.ApplicationID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list results")
		return
	}
	if results == nil {
		results = []model.ValidationResult{}
	}

	writeJSON(w, http.StatusOK, results)
}

// LatestResult handles GET /v1/applications/{id}/results/latest.
func (h *Handler) LatestResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	result, err := h.store.LatestResult(r.Context(), id)
	if err != nil {
		zap.L().Error("latest result failed", zap.String("application_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load result")
		return
	}
	if result == nil {
		writeError(w, http.StatusNotFound, "no results for application")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Stats handles GET /v1/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	lookback := defaultStatsLookbackHours
	if v := r.URL.Query().Get("lookback_hours"); v != "" {
		n, err := intParam(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "lookback_hours must be a non-negative integer")
			return
		}
		if n > monitoring.MaxLookbackHours {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("lookback_hours must be at most %d", monitoring.MaxLookbackHours))
			return
		}
		lookback = n
	}

	snap, err := h.metrics.Collect(r.Context(), lookback)
	if err != nil {
		zap.L().Error("collect stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to collect stats")
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
