package forecast

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/savegress/spendcast/internal/config"
	"github.com/savegress/spendcast/internal/history"
	"github.com/savegress/spendcast/internal/store"
	"github.com/savegress/spendcast/pkg/models"
)

func testConfig() config.ForecastConfig {
	return config.ForecastConfig{
		LookbackDays:         365,
		MinHistoryDays:       30,
		CashFlowLookbackDays: 90,
		CashFlowMinDays:      30,
		SmoothingAlpha:       0.3,
		SeasonalityThreshold: 0.3,
		SavingsRate:          0.2,
	}
}

func newTestEngine(s *store.MemoryStore) *Engine {
	return NewEngine(history.NewLoader(s), testConfig(), zerolog.Nop())
}

// seedSteadyFinances adds 90 days of 50/day expenses ending the day
// before start, plus three 3000 income deposits across those months.
func seedSteadyFinances(s *store.MemoryStore, userID string, start time.Time) {
	for i := 0; i < 90; i++ {
		s.AddTransactions(models.Transaction{
			ID:         fmt.Sprintf("exp-%d", i),
			UserID:     userID,
			Type:       models.TransactionTypeExpense,
			Amount:     decimal.NewFromFloat(50),
			CategoryID: "general",
			Date:       start.AddDate(0, 0, -90+i),
		})
	}
	for i, offset := range []int{-80, -50, -20} {
		s.AddTransactions(models.Transaction{
			ID:     fmt.Sprintf("sal-%d", i),
			UserID: userID,
			Type:   models.TransactionTypeIncome,
			Amount: decimal.NewFromFloat(3000),
			Date:   start.AddDate(0, 0, offset),
		})
	}
}

func TestForecast_InsufficientHistory(t *testing.T) {
	s := store.NewMemoryStore()
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		s.AddTransactions(models.Transaction{
			ID:     fmt.Sprintf("exp-%d", i),
			UserID: "u1",
			Type:   models.TransactionTypeExpense,
			Amount: decimal.NewFromFloat(50),
			Date:   start.AddDate(0, 0, -10+i),
		})
	}
	engine := newTestEngine(s)

	_, err := engine.Forecast(context.Background(), models.PredictiveQuery{
		UserID:    "u1",
		StartDate: start,
		EndDate:   start.AddDate(0, 0, 30),
	})
	if err == nil {
		t.Fatal("expected insufficient-data error")
	}
	if !history.IsInsufficientData(err) {
		t.Errorf("expected insufficient-data classification, got %v", err)
	}
}

func TestForecast_SteadyFinances(t *testing.T) {
	s := store.NewMemoryStore()
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	seedSteadyFinances(s, "u1", start)
	engine := newTestEngine(s)

	result, err := engine.Forecast(context.Background(), models.PredictiveQuery{
		UserID:    "u1",
		StartDate: start,
		EndDate:   start.AddDate(0, 0, 30),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 3 months of history: 9000 income, 4500 expenses. One forecast month.
	if math.Abs(result.ProjectedIncome-3000) > 0.01 {
		t.Errorf("expected projected income 3000, got %f", result.ProjectedIncome)
	}
	if math.Abs(result.ProjectedExpenses-1500) > 0.01 {
		t.Errorf("expected projected expenses 1500, got %f", result.ProjectedExpenses)
	}
	if math.Abs(result.ProjectedNetWorth-1500) > 0.01 {
		t.Errorf("expected projected net worth 1500, got %f", result.ProjectedNetWorth)
	}
	if math.Abs(result.ProjectedSavings-300) > 0.01 {
		t.Errorf("expected projected savings 300, got %f", result.ProjectedSavings)
	}
	if result.Confidence < 0.9 {
		t.Errorf("expected high confidence for steady finances, got %f", result.Confidence)
	}
	if len(result.RiskFactors) != 0 {
		t.Errorf("expected no risk factors, got %v", result.RiskFactors)
	}

	if len(result.CategoryForecasts) != 1 {
		t.Fatalf("expected 1 category forecast, got %d", len(result.CategoryForecasts))
	}
	cf := result.CategoryForecasts[0]
	if cf.CategoryID != "general" {
		t.Errorf("expected general category, got %s", cf.CategoryID)
	}
	if math.Abs(cf.MonthlyAverage-1500) > 0.01 {
		t.Errorf("expected monthly average 1500, got %f", cf.MonthlyAverage)
	}
	if math.Abs(cf.ProjectedAmount-1500) > 0.01 {
		t.Errorf("expected projected amount 1500, got %f", cf.ProjectedAmount)
	}
}

func TestForecast_ScenarioProbabilitiesSumToOne(t *testing.T) {
	s := store.NewMemoryStore()
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	seedSteadyFinances(s, "u1", start)
	engine := newTestEngine(s)

	result, err := engine.Forecast(context.Background(), models.PredictiveQuery{
		UserID:    "u1",
		StartDate: start,
		EndDate:   start.AddDate(0, 0, 30),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Scenarios) != 3 {
		t.Fatalf("expected 3 scenarios, got %d", len(result.Scenarios))
	}
	var sum float64
	names := map[string]models.Scenario{}
	for _, sc := range result.Scenarios {
		sum += sc.Probability
		names[sc.Name] = sc
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("expected probabilities to sum to 1, got %f", sum)
	}

	optimistic, ok := names["optimistic"]
	if !ok {
		t.Fatal("missing optimistic scenario")
	}
	if math.Abs(optimistic.ProjectedIncome-3600) > 0.01 {
		t.Errorf("expected optimistic income 3600, got %f", optimistic.ProjectedIncome)
	}
	if math.Abs(optimistic.ProjectedExpenses-1350) > 0.01 {
		t.Errorf("expected optimistic expenses 1350, got %f", optimistic.ProjectedExpenses)
	}

	realistic := names["realistic"]
	if math.Abs(realistic.ProjectedIncome-result.ProjectedIncome) > 0.01 {
		t.Errorf("expected realistic scenario to match the base projection")
	}
	if realistic.Probability != 0.6 {
		t.Errorf("expected realistic probability 0.6, got %f", realistic.Probability)
	}

	pessimistic := names["pessimistic"]
	if pessimistic.ProjectedNetWorth >= realistic.ProjectedNetWorth {
		t.Error("pessimistic net worth must undercut realistic")
	}
}

func TestForecast_InconsistentIncomeRiskFactor(t *testing.T) {
	s := store.NewMemoryStore()
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 90; i++ {
		s.AddTransactions(models.Transaction{
			ID:         fmt.Sprintf("exp-%d", i),
			UserID:     "u1",
			Type:       models.TransactionTypeExpense,
			Amount:     decimal.NewFromFloat(50),
			CategoryID: "general",
			Date:       start.AddDate(0, 0, -90+i),
		})
	}
	// Income swings hard between months.
	incomes := []float64{3000, 500, 3000}
	for i, offset := range []int{-80, -50, -20} {
		s.AddTransactions(models.Transaction{
			ID:     fmt.Sprintf("sal-%d", i),
			UserID: "u1",
			Type:   models.TransactionTypeIncome,
			Amount: decimal.NewFromFloat(incomes[i]),
			Date:   start.AddDate(0, 0, offset),
		})
	}
	engine := newTestEngine(s)

	result, err := engine.Forecast(context.Background(), models.PredictiveQuery{
		UserID:    "u1",
		StartDate: start,
		EndDate:   start.AddDate(0, 0, 30),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.RiskFactors) == 0 {
		t.Error("expected an income-inconsistency risk factor")
	}
}

func TestPredictCashFlow(t *testing.T) {
	s := store.NewMemoryStore()
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	seedSteadyFinances(s, "u1", start)
	engine := newTestEngine(s)

	result, err := engine.PredictCashFlow(context.Background(), models.PredictiveQuery{
		UserID:    "u1",
		StartDate: start,
		EndDate:   start.AddDate(0, 0, 30),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 9000 in and 4500 out over a 90-day lookback.
	if math.Abs(result.DailyInflow-100) > 0.01 {
		t.Errorf("expected daily inflow 100, got %f", result.DailyInflow)
	}
	if math.Abs(result.DailyOutflow-50) > 0.01 {
		t.Errorf("expected daily outflow 50, got %f", result.DailyOutflow)
	}
	if math.Abs(result.DailyNetFlow-50) > 0.01 {
		t.Errorf("expected daily net flow 50, got %f", result.DailyNetFlow)
	}
	if result.HorizonDays != 30 {
		t.Errorf("expected 30-day horizon, got %d", result.HorizonDays)
	}
	if math.Abs(result.ProjectedBalance-1500) > 0.01 {
		t.Errorf("expected projected balance 1500, got %f", result.ProjectedBalance)
	}

	if len(result.Scenarios) != 3 {
		t.Fatalf("expected 3 scenarios, got %d", len(result.Scenarios))
	}
	var sum float64
	for _, sc := range result.Scenarios {
		sum += sc.Probability
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("expected probabilities to sum to 1, got %f", sum)
	}

	if result.Methodology.Algorithm != models.AlgorithmExponentialSmoothing {
		t.Errorf("expected exponential_smoothing label, got %s", result.Methodology.Algorithm)
	}
	if result.Methodology.Alpha != 0.3 {
		t.Errorf("expected alpha 0.3, got %f", result.Methodology.Alpha)
	}
	if result.Methodology.LookbackDays != 90 {
		t.Errorf("expected 90-day lookback, got %d", result.Methodology.LookbackDays)
	}
}

func TestPredictCashFlow_InsufficientHistory(t *testing.T) {
	s := store.NewMemoryStore()
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		s.AddTransactions(models.Transaction{
			ID:     fmt.Sprintf("exp-%d", i),
			UserID: "u1",
			Type:   models.TransactionTypeExpense,
			Amount: decimal.NewFromFloat(50),
			Date:   start.AddDate(0, 0, -5+i),
		})
	}
	engine := newTestEngine(s)

	_, err := engine.PredictCashFlow(context.Background(), models.PredictiveQuery{
		UserID:    "u1",
		StartDate: start,
		EndDate:   start.AddDate(0, 0, 30),
	})
	if err == nil {
		t.Fatal("expected insufficient-data error")
	}
	if !history.IsInsufficientData(err) {
		t.Errorf("expected insufficient-data classification, got %v", err)
	}
}

func TestMonthlyTotals(t *testing.T) {
	txns := []models.Transaction{
		{Type: models.TransactionTypeIncome, Amount: decimal.NewFromFloat(1000), Date: time.Date(2026, 6, 5, 0, 0, 0, 0, time.UTC)},
		{Type: models.TransactionTypeIncome, Amount: decimal.NewFromFloat(500), Date: time.Date(2026, 6, 20, 0, 0, 0, 0, time.UTC)},
		{Type: models.TransactionTypeIncome, Amount: decimal.NewFromFloat(2000), Date: time.Date(2026, 7, 5, 0, 0, 0, 0, time.UTC)},
		{Type: models.TransactionTypeExpense, Amount: decimal.NewFromFloat(999), Date: time.Date(2026, 7, 6, 0, 0, 0, 0, time.UTC)},
	}

	totals := monthlyTotals(txns, models.TransactionTypeIncome)

	if len(totals) != 2 {
		t.Fatalf("expected 2 months, got %d", len(totals))
	}
	if totals[0] != 1500 || totals[1] != 2000 {
		t.Errorf("unexpected totals: %v", totals)
	}
}

func TestConsistency(t *testing.T) {
	if got := consistency([]float64{100, 100, 100}); got != 1 {
		t.Errorf("expected 1 for constant series, got %f", got)
	}
	if got := consistency(nil); got != 0 {
		t.Errorf("expected 0 for empty series, got %f", got)
	}
	// A heavily skewed series pushes cv above 1 and floors at 0.
	if got := consistency([]float64{1, 1, 1, 1000}); got != 0 {
		t.Errorf("expected floor 0, got %f", got)
	}
}

func TestHorizonDays(t *testing.T) {
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	if got := horizonDays(start, start.AddDate(0, 0, 14)); got != 14 {
		t.Errorf("expected 14, got %d", got)
	}
	if got := horizonDays(start, start.Add(6*time.Hour)); got != 1 {
		t.Errorf("expected clamp to 1, got %d", got)
	}
}
