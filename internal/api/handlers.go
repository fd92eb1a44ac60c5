package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/savegress/spendcast/internal/anomaly"
	"github.com/savegress/spendcast/internal/forecast"
	"github.com/savegress/spendcast/internal/history"
	"github.com/savegress/spendcast/internal/insights"
	"github.com/savegress/spendcast/internal/prediction"
	"github.com/savegress/spendcast/internal/trend"
	"github.com/savegress/spendcast/pkg/models"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	prediction *prediction.Engine
	anomaly    *anomaly.Detector
	trend      *trend.Engine
	forecast   *forecast.Engine
	insights   *insights.Aggregator
}

// NewHandlers creates new handlers
func NewHandlers(p *prediction.Engine, a *anomaly.Detector, t *trend.Engine, f *forecast.Engine, ins *insights.Aggregator) *Handlers {
	return &Handlers{
		prediction: p,
		anomaly:    a,
		trend:      t,
		forecast:   f,
		insights:   ins,
	}
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "spendcast",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// PredictSpending produces a per-day spending prediction
func (h *Handlers) PredictSpending(w http.ResponseWriter, r *http.Request) {
	query, ok := decodeQuery(w, r)
	if !ok {
		return
	}

	result, err := h.prediction.Predict(r.Context(), query)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respond(w, http.StatusOK, result)
}

// DetectAnomalies runs anomaly detection over the query window
func (h *Handlers) DetectAnomalies(w http.ResponseWriter, r *http.Request) {
	query, ok := decodeQuery(w, r)
	if !ok {
		return
	}

	result, err := h.anomaly.Detect(r.Context(), query)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respond(w, http.StatusOK, result)
}

// AnalyzeTrends produces overall, category and calendar trend analysis
func (h *Handlers) AnalyzeTrends(w http.ResponseWriter, r *http.Request) {
	query, ok := decodeQuery(w, r)
	if !ok {
		return
	}

	result, err := h.trend.Analyze(r.Context(), query)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respond(w, http.StatusOK, result)
}

// GenerateForecast produces the financial forecast with scenarios
func (h *Handlers) GenerateForecast(w http.ResponseWriter, r *http.Request) {
	query, ok := decodeQuery(w, r)
	if !ok {
		return
	}

	result, err := h.forecast.Forecast(r.Context(), query)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respond(w, http.StatusOK, result)
}

// PredictCashFlow produces the daily-average cash-flow projection
func (h *Handlers) PredictCashFlow(w http.ResponseWriter, r *http.Request) {
	query, ok := decodeQuery(w, r)
	if !ok {
		return
	}

	result, err := h.forecast.PredictCashFlow(r.Context(), query)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respond(w, http.StatusOK, result)
}

// GetInsights runs all engines and returns the aggregated report
func (h *Handlers) GetInsights(w http.ResponseWriter, r *http.Request) {
	query, ok := decodeQuery(w, r)
	if !ok {
		return
	}

	result, err := h.insights.Generate(r.Context(), query)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respond(w, http.StatusOK, result)
}

// TrainModel registers a model descriptor for the user
func (h *Handlers) TrainModel(w http.ResponseWriter, r *http.Request) {
	query, ok := decodeQuery(w, r)
	if !ok {
		return
	}

	descriptor, err := h.prediction.TrainModel(r.Context(), query)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respond(w, http.StatusCreated, descriptor)
}

// GetModel returns a previously registered model descriptor
func (h *Handlers) GetModel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	descriptor, ok := h.prediction.GetModel(id)
	if !ok {
		respondError(w, http.StatusNotFound, "Model not found")
		return
	}

	respond(w, http.StatusOK, descriptor)
}

// decodeQuery parses and validates the common query body. On failure it
// writes the error response and returns ok=false.
func decodeQuery(w http.ResponseWriter, r *http.Request) (models.PredictiveQuery, bool) {
	var query models.PredictiveQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return query, false
	}
	if query.UserID == "" {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return query, false
	}
	if query.StartDate.IsZero() || query.EndDate.IsZero() {
		respondError(w, http.StatusBadRequest, "start_date and end_date are required")
		return query, false
	}
	if !query.StartDate.Before(query.EndDate) {
		respondError(w, http.StatusBadRequest, "start_date must be before end_date")
		return query, false
	}
	return query, true
}

func respondEngineError(w http.ResponseWriter, err error) {
	if history.IsInsufficientData(err) {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}

// Helper functions

func respond(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respond(w, status, map[string]string{"error": message})
}
