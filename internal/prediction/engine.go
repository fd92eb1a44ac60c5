// Package prediction projects future daily spending from a user's
// expense history, selecting among linear regression, exponential
// smoothing, seasonal decomposition and a hybrid blend.
package prediction

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/savegress/spendcast/internal/config"
	"github.com/savegress/spendcast/internal/history"
	"github.com/savegress/spendcast/internal/stats"
	"github.com/savegress/spendcast/pkg/models"
)

const (
	factorTrendWeight    = 0.7
	factorSeasonalWeight = 0.3
)

// Engine is the spending-prediction engine. All computation is a pure
// function of freshly loaded history; the only state is the trained-model
// descriptor registry backing the train stub.
type Engine struct {
	loader *history.Loader
	cfg    config.PredictionConfig
	log    zerolog.Logger

	modelsMu sync.RWMutex
	models   map[string]models.ModelDescriptor
}

// NewEngine creates a spending-prediction engine.
func NewEngine(loader *history.Loader, cfg config.PredictionConfig, log zerolog.Logger) *Engine {
	return &Engine{
		loader: loader,
		cfg:    cfg,
		log:    log,
		models: make(map[string]models.ModelDescriptor),
	}
}

// Predict projects daily spending over [query.StartDate, query.EndDate)
// from the lookback window before StartDate. Fails with an
// insufficient-data error when fewer than the configured minimum days of
// history exist.
func (e *Engine) Predict(ctx context.Context, query models.PredictiveQuery) (*models.SpendingPrediction, error) {
	buckets, err := e.loader.DailyExpenses(ctx, query, query.StartDate, e.cfg.LookbackDays, e.cfg.MinHistoryDays)
	if err != nil {
		return nil, err
	}

	values := history.Amounts(buckets)
	horizon := horizonDays(query.StartDate, query.EndDate)

	methodology := query.Algorithm
	if methodology == "" {
		methodology = e.selectAlgorithm(values)
	}

	var (
		predictions []models.DailyPrediction
		confidence  float64
	)
	switch methodology {
	case models.AlgorithmLinearRegression:
		predictions, confidence = e.predictLinearRegression(values, query.StartDate, horizon)
	case models.AlgorithmTimeSeries, models.AlgorithmExponentialSmoothing:
		methodology = models.AlgorithmTimeSeries
		predictions, confidence = e.predictExponentialSmoothing(values, query.StartDate, horizon)
	case models.AlgorithmSeasonalDecomposition:
		predictions, confidence = e.predictSeasonal(values, query.StartDate, horizon)
	default:
		methodology = models.AlgorithmHybrid
		predictions, confidence = e.predictHybrid(values, query.StartDate, horizon)
	}

	var total float64
	for _, p := range predictions {
		total += p.PredictedAmount
	}
	averageDaily := 0.0
	if len(predictions) > 0 {
		averageDaily = total / float64(len(predictions))
	}

	result := &models.SpendingPrediction{
		UserID:         query.UserID,
		Predictions:    predictions,
		TotalPredicted: stats.Round2(total),
		AverageDaily:   stats.Round2(averageDaily),
		Confidence:     confidenceBucket(confidence),
		Methodology:    methodology,
		RiskFactors:    riskFactors(values),
		HistoricalDays: len(buckets),
		GeneratedAt:    time.Now().UTC(),
	}

	e.log.Debug().
		Str("user_id", query.UserID).
		Str("methodology", string(methodology)).
		Int("historical_days", len(buckets)).
		Int("horizon_days", horizon).
		Msg("spending prediction generated")

	return result, nil
}

// selectAlgorithm chooses the projection method: short histories always
// use linear regression; otherwise seasonality and trend are tested
// independently. The 0.8 seasonality gate here is stricter than the 0.3
// gate used by trend/forecast on purpose.
func (e *Engine) selectAlgorithm(values []float64) models.Algorithm {
	if len(values) < e.cfg.SelectionMinPoints {
		return models.AlgorithmLinearRegression
	}

	seasonal := stats.DetectSeasonality(values, 7, e.cfg.SeasonalityThreshold)
	trending := stats.DetectTrend(values, e.cfg.TrendThreshold)

	switch {
	case seasonal && trending:
		return models.AlgorithmSeasonalDecomposition
	case trending:
		return models.AlgorithmTimeSeries
	case seasonal:
		return models.AlgorithmSeasonalDecomposition
	default:
		return models.AlgorithmHybrid
	}
}

func (e *Engine) predictLinearRegression(values []float64, start time.Time, horizon int) ([]models.DailyPrediction, float64) {
	fit := stats.LinearRegression(values)
	confidence := stats.Clamp01(fit.RSquared)
	n := len(values)

	predictions := make([]models.DailyPrediction, 0, horizon)
	for i := 0; i < horizon; i++ {
		amount := fit.Slope*float64(n+i) + fit.Intercept
		predictions = append(predictions, models.DailyPrediction{
			Date:            start.AddDate(0, 0, i).Format("2006-01-02"),
			PredictedAmount: clampAmount(amount),
			Confidence:      confidence,
			Factors: []models.PredictionFactor{
				{Factor: "historical_trend", Impact: stats.Round2(fit.Slope), Weight: factorTrendWeight},
				{Factor: "baseline_level", Impact: stats.Round2(fit.Intercept), Weight: factorSeasonalWeight},
			},
		})
	}
	return predictions, confidence
}

func (e *Engine) predictExponentialSmoothing(values []float64, start time.Time, horizon int) ([]models.DailyPrediction, float64) {
	smoothed := stats.ExponentialSmoothing(values, e.cfg.SmoothingAlpha)
	level := smoothed[len(smoothed)-1]
	confidence := stats.Clamp01(1 - stats.CoefficientOfVariation(values))

	predictions := make([]models.DailyPrediction, 0, horizon)
	for i := 0; i < horizon; i++ {
		predictions = append(predictions, models.DailyPrediction{
			Date:            start.AddDate(0, 0, i).Format("2006-01-02"),
			PredictedAmount: clampAmount(level),
			Confidence:      confidence,
			Factors: []models.PredictionFactor{
				{Factor: "recent_behavior", Impact: stats.Round2(level), Weight: factorTrendWeight},
				{Factor: "smoothing_alpha", Impact: e.cfg.SmoothingAlpha, Weight: factorSeasonalWeight},
			},
		})
	}
	return predictions, confidence
}

func (e *Engine) predictSeasonal(values []float64, start time.Time, horizon int) ([]models.DailyPrediction, float64) {
	trend := stats.TrendComponent(values, 7)
	seasonal := stats.SeasonalComponent(values, 7)
	level := trend[len(trend)-1]

	fit := stats.LinearRegression(values)
	confidence := stats.Clamp01((stats.Clamp01(fit.RSquared) + stats.Clamp01(1-stats.CoefficientOfVariation(values))) / 2)

	predictions := make([]models.DailyPrediction, 0, horizon)
	for i := 0; i < horizon; i++ {
		phase := (len(values) + i) % len(seasonal)
		amount := level * seasonal[phase]
		predictions = append(predictions, models.DailyPrediction{
			Date:            start.AddDate(0, 0, i).Format("2006-01-02"),
			PredictedAmount: clampAmount(amount),
			Confidence:      confidence,
			Factors: []models.PredictionFactor{
				{Factor: "historical_trend", Impact: stats.Round2(level), Weight: factorTrendWeight},
				{Factor: "seasonal_adjustment", Impact: stats.Round2(seasonal[phase]), Weight: factorSeasonalWeight},
			},
		})
	}
	return predictions, confidence
}

// predictHybrid blends the regression and smoothing projections with
// fixed weights; confidence blends the same way.
func (e *Engine) predictHybrid(values []float64, start time.Time, horizon int) ([]models.DailyPrediction, float64) {
	wReg := e.cfg.HybridRegressionWeight
	wSmooth := 1 - wReg

	regPreds, regConf := e.predictLinearRegression(values, start, horizon)
	smoothPreds, smoothConf := e.predictExponentialSmoothing(values, start, horizon)
	confidence := stats.Clamp01(wReg*regConf + wSmooth*smoothConf)

	predictions := make([]models.DailyPrediction, 0, horizon)
	for i := 0; i < horizon; i++ {
		amount := wReg*regPreds[i].PredictedAmount + wSmooth*smoothPreds[i].PredictedAmount
		predictions = append(predictions, models.DailyPrediction{
			Date:            regPreds[i].Date,
			PredictedAmount: clampAmount(amount),
			Confidence:      confidence,
			Factors: []models.PredictionFactor{
				{Factor: "regression_model", Impact: regPreds[i].PredictedAmount, Weight: wReg},
				{Factor: "smoothing_model", Impact: smoothPreds[i].PredictedAmount, Weight: wSmooth},
			},
		})
	}
	return predictions, confidence
}

// TrainModel records a model descriptor. No actual fitting happens:
// every prediction recomputes from scratch against fresh history.
func (e *Engine) TrainModel(ctx context.Context, query models.PredictiveQuery) (*models.ModelDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	modelType := query.ModelType
	if modelType == "" {
		modelType = models.ModelTypeSpendingPrediction
	}
	algorithm := query.Algorithm
	if algorithm == "" {
		algorithm = models.AlgorithmHybrid
	}

	descriptor := models.ModelDescriptor{
		ID:        uuid.New().String(),
		UserID:    query.UserID,
		ModelType: modelType,
		Algorithm: algorithm,
		Status:    "ready",
		TrainedAt: time.Now().UTC(),
	}

	e.modelsMu.Lock()
	e.models[descriptor.ID] = descriptor
	e.modelsMu.Unlock()

	e.log.Info().
		Str("model_id", descriptor.ID).
		Str("model_type", string(modelType)).
		Msg("model descriptor recorded")

	return &descriptor, nil
}

// GetModel returns a recorded model descriptor.
func (e *Engine) GetModel(id string) (models.ModelDescriptor, bool) {
	e.modelsMu.RLock()
	defer e.modelsMu.RUnlock()
	descriptor, ok := e.models[id]
	return descriptor, ok
}

// riskFactors appends advisory text when the trailing 7-day average
// differs from the preceding 7-day average by more than 20%, or when the
// coefficient of variation exceeds 0.5. Advisory only: the numeric
// prediction is not adjusted.
func riskFactors(values []float64) []string {
	var factors []string

	if len(values) >= 14 {
		trailing := stats.Mean(values[len(values)-7:])
		preceding := stats.Mean(values[len(values)-14 : len(values)-7])
		if preceding > 0 && math.Abs(trailing-preceding)/preceding > 0.2 {
			factors = append(factors, "recent 7-day spending differs from the prior week by more than 20%")
		}
	}
	if stats.CoefficientOfVariation(values) > 0.5 {
		factors = append(factors, "spending is highly volatile (coefficient of variation above 0.5)")
	}

	return factors
}

func confidenceBucket(confidence float64) models.ConfidenceBucket {
	switch {
	case confidence > 0.7:
		return models.ConfidenceHigh
	case confidence > 0.4:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

// clampAmount applies the spending-context invariant: never negative,
// always rounded to 2 decimal places.
func clampAmount(amount float64) float64 {
	return stats.Round2(math.Max(0, amount))
}

func horizonDays(start, end time.Time) int {
	days := int(end.Sub(start).Hours() / 24)
	if days < 1 {
		days = 1
	}
	return days
}
