// Package forecast projects income, expenses, net worth and cash flow
// over a future window, with optimistic/realistic/pessimistic scenarios
// derived from fixed multipliers on the base projection.
package forecast

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/savegress/spendcast/internal/config"
	"github.com/savegress/spendcast/internal/history"
	"github.com/savegress/spendcast/internal/stats"
	"github.com/savegress/spendcast/pkg/models"
)

// Fixed scenario multipliers. Probabilities always sum to 1.0.
const (
	optimisticIncomeFactor   = 1.2
	optimisticExpenseFactor  = 0.9
	pessimisticIncomeFactor  = 0.9
	pessimisticExpenseFactor = 1.2

	optimisticProbability  = 0.2
	realisticProbability   = 0.6
	pessimisticProbability = 0.2

	consistencyRiskThreshold = 0.8
	cashFlowScenarioSwing    = 0.2

	daysPerMonth = 30.0
)

// Engine is the financial-forecasting engine.
type Engine struct {
	loader *history.Loader
	cfg    config.ForecastConfig
	log    zerolog.Logger
}

// NewEngine creates a forecasting engine.
func NewEngine(loader *history.Loader, cfg config.ForecastConfig, log zerolog.Logger) *Engine {
	return &Engine{loader: loader, cfg: cfg, log: log}
}

// Forecast projects income and expenses over [query.StartDate,
// query.EndDate) by linearly scaling historical monthly averages. Fails
// with an insufficient-data error below the configured minimum days.
func (e *Engine) Forecast(ctx context.Context, query models.PredictiveQuery) (*models.Forecast, error) {
	from := query.StartDate.AddDate(0, 0, -e.cfg.LookbackDays)
	txns, err := e.loader.Transactions(ctx, query, from, query.StartDate,
		models.TransactionTypeIncome, models.TransactionTypeExpense)
	if err != nil {
		return nil, err
	}

	buckets := history.BucketByDay(txns)
	if len(buckets) < e.cfg.MinHistoryDays {
		return nil, &history.InsufficientDataError{Required: e.cfg.MinHistoryDays, Have: len(buckets)}
	}

	historyMonths := historySpanMonths(txns, query.StartDate)
	forecastMonths := float64(horizonDays(query.StartDate, query.EndDate)) / daysPerMonth

	var incomeTotal, expenseTotal float64
	var expenseTxns []models.Transaction
	for _, txn := range txns {
		switch txn.Type {
		case models.TransactionTypeIncome:
			incomeTotal += txn.Amount.InexactFloat64()
		case models.TransactionTypeExpense:
			expenseTotal += txn.Amount.InexactFloat64()
			expenseTxns = append(expenseTxns, txn)
		}
	}

	monthlyIncome := incomeTotal / historyMonths
	monthlyExpenses := expenseTotal / historyMonths

	projectedIncome := monthlyIncome * forecastMonths
	projectedExpenses := monthlyExpenses * forecastMonths
	projectedNetWorth := projectedIncome - projectedExpenses
	projectedSavings := projectedNetWorth * e.cfg.SavingsRate

	incomeConsistency := consistency(monthlyTotals(txns, models.TransactionTypeIncome))
	expenseConsistency := consistency(monthlyTotals(txns, models.TransactionTypeExpense))
	confidence := stats.Clamp01((incomeConsistency + expenseConsistency) / 2)

	result := &models.Forecast{
		UserID:            query.UserID,
		StartDate:         query.StartDate,
		EndDate:           query.EndDate,
		ProjectedIncome:   stats.Round2(projectedIncome),
		ProjectedExpenses: stats.Round2(projectedExpenses),
		ProjectedNetWorth: stats.Round2(projectedNetWorth),
		ProjectedSavings:  stats.Round2(projectedSavings),
		Scenarios:         buildScenarios(projectedIncome, projectedExpenses, e.cfg.SavingsRate),
		CategoryForecasts: categoryForecasts(expenseTxns, historyMonths, forecastMonths),
		Confidence:        confidence,
		GeneratedAt:       time.Now().UTC(),
	}

	if incomeConsistency < consistencyRiskThreshold {
		result.RiskFactors = append(result.RiskFactors, "income is inconsistent month to month")
	}
	if expenseConsistency < consistencyRiskThreshold {
		result.RiskFactors = append(result.RiskFactors, "expenses are inconsistent month to month")
	}
	expenseDaily := history.Amounts(history.BucketByDay(expenseTxns))
	if stats.DetectSeasonality(expenseDaily, 7, e.cfg.SeasonalityThreshold) {
		result.RiskFactors = append(result.RiskFactors, "expenses show a seasonal pattern; flat scaling may misestimate individual months")
	}

	e.log.Debug().
		Str("user_id", query.UserID).
		Float64("projected_income", result.ProjectedIncome).
		Float64("projected_expenses", result.ProjectedExpenses).
		Float64("confidence", confidence).
		Msg("financial forecast generated")

	return result, nil
}

// PredictCashFlow projects daily-average inflow and outflow forward over
// the requested horizon. The reported methodology keeps the historical
// exponential_smoothing label even though the projection itself is a
// flat daily-average extrapolation; callers depend on the label.
func (e *Engine) PredictCashFlow(ctx context.Context, query models.PredictiveQuery) (*models.CashFlowPrediction, error) {
	from := query.StartDate.AddDate(0, 0, -e.cfg.CashFlowLookbackDays)
	txns, err := e.loader.Transactions(ctx, query, from, query.StartDate,
		models.TransactionTypeIncome, models.TransactionTypeExpense)
	if err != nil {
		return nil, err
	}

	netFlow := history.BucketNetFlowByDay(txns)
	if len(netFlow) < e.cfg.CashFlowMinDays {
		return nil, &history.InsufficientDataError{Required: e.cfg.CashFlowMinDays, Have: len(netFlow)}
	}

	var incomeTotal, expenseTotal float64
	for _, txn := range txns {
		switch txn.Type {
		case models.TransactionTypeIncome:
			incomeTotal += txn.Amount.InexactFloat64()
		case models.TransactionTypeExpense:
			expenseTotal += txn.Amount.InexactFloat64()
		}
	}

	lookback := float64(e.cfg.CashFlowLookbackDays)
	dailyInflow := incomeTotal / lookback
	dailyOutflow := expenseTotal / lookback
	dailyNet := dailyInflow - dailyOutflow

	horizon := horizonDays(query.StartDate, query.EndDate)
	projectedBalance := dailyNet * float64(horizon)

	result := &models.CashFlowPrediction{
		UserID:           query.UserID,
		HorizonDays:      horizon,
		DailyInflow:      stats.Round2(dailyInflow),
		DailyOutflow:     stats.Round2(dailyOutflow),
		DailyNetFlow:     stats.Round2(dailyNet),
		ProjectedBalance: stats.Round2(projectedBalance),
		Scenarios: []models.CashFlowScenario{
			{Name: "optimistic", EndingBalance: stats.Round2(projectedBalance * (1 + cashFlowScenarioSwing)), Probability: optimisticProbability},
			{Name: "realistic", EndingBalance: stats.Round2(projectedBalance), Probability: realisticProbability},
			{Name: "pessimistic", EndingBalance: stats.Round2(projectedBalance * (1 - cashFlowScenarioSwing)), Probability: pessimisticProbability},
		},
		Methodology: models.CashFlowMethodology{
			Algorithm:    models.AlgorithmExponentialSmoothing,
			Alpha:        e.cfg.SmoothingAlpha,
			LookbackDays: e.cfg.CashFlowLookbackDays,
		},
		GeneratedAt: time.Now().UTC(),
	}

	e.log.Debug().
		Str("user_id", query.UserID).
		Int("horizon_days", horizon).
		Float64("projected_balance", result.ProjectedBalance).
		Msg("cash-flow prediction generated")

	return result, nil
}

func buildScenarios(income, expenses, savingsRate float64) []models.Scenario {
	scenario := func(name string, incomeFactor, expenseFactor, probability float64) models.Scenario {
		scaledIncome := income * incomeFactor
		scaledExpenses := expenses * expenseFactor
		net := scaledIncome - scaledExpenses
		return models.Scenario{
			Name:              name,
			ProjectedIncome:   stats.Round2(scaledIncome),
			ProjectedExpenses: stats.Round2(scaledExpenses),
			ProjectedNetWorth: stats.Round2(net),
			ProjectedSavings:  stats.Round2(net * savingsRate),
			Probability:       probability,
		}
	}
	return []models.Scenario{
		scenario("optimistic", optimisticIncomeFactor, optimisticExpenseFactor, optimisticProbability),
		scenario("realistic", 1, 1, realisticProbability),
		scenario("pessimistic", pessimisticIncomeFactor, pessimisticExpenseFactor, pessimisticProbability),
	}
}

func categoryForecasts(expenseTxns []models.Transaction, historyMonths, forecastMonths float64) []models.CategoryForecast {
	groups := history.GroupByCategory(expenseTxns)

	var catIDs []string
	for catID := range groups {
		catIDs = append(catIDs, catID)
	}
	sort.Strings(catIDs)

	var forecasts []models.CategoryForecast
	for _, catID := range catIDs {
		group := groups[catID]
		var total float64
		for _, txn := range group {
			total += txn.Amount.InexactFloat64()
		}
		monthly := total / historyMonths

		name := group[0].CategoryName
		if name == "" {
			name = catID
		}
		forecasts = append(forecasts, models.CategoryForecast{
			CategoryID:      catID,
			CategoryName:    name,
			MonthlyAverage:  stats.Round2(monthly),
			ProjectedAmount: stats.Round2(monthly * forecastMonths),
		})
	}
	return forecasts
}

// consistency is the inverse volatility proxy: max(0, 1 - cv).
func consistency(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	cv := stats.CoefficientOfVariation(values)
	if cv > 1 {
		return 0
	}
	return 1 - cv
}

// monthlyTotals groups transactions of one type into calendar-month
// totals, ordered chronologically.
func monthlyTotals(txns []models.Transaction, txnType models.TransactionType) []float64 {
	sums := make(map[string]float64)
	var keys []string
	for _, txn := range txns {
		if txn.Type != txnType {
			continue
		}
		key := txn.Date.Format("2006-01")
		if _, ok := sums[key]; !ok {
			keys = append(keys, key)
		}
		sums[key] += txn.Amount.InexactFloat64()
	}
	sort.Strings(keys)

	totals := make([]float64, 0, len(keys))
	for _, key := range keys {
		totals = append(totals, sums[key])
	}
	return totals
}

// historySpanMonths measures the observed history span in months, with
// a floor of one month to keep the monthly averages sane on short spans.
func historySpanMonths(txns []models.Transaction, reference time.Time) float64 {
	if len(txns) == 0 {
		return 1
	}
	spanDays := reference.Sub(txns[0].Date).Hours() / 24
	months := spanDays / daysPerMonth
	if months < 1 {
		return 1
	}
	return months
}

func horizonDays(start, end time.Time) int {
	days := int(end.Sub(start).Hours() / 24)
	if days < 1 {
		days = 1
	}
	return days
}
