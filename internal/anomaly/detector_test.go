package anomaly

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

func testConfig() config.AnomalyConfig {
	return config.AnomalyConfig{
		BaselineDays:         90,
		MinCategoryHistory:   5,
		CategoryDeviationPct: 50,
		SpikeMinRun:          3,
		TimingMinSamples:     3,
	}
}

func newTestDetector(s *store.MemoryStore) *Detector {
	return NewDetector(history.NewLoader(s), testConfig(), zerolog.Nop())
}

func expenseAt(id, userID, categoryID string, amount float64, date time.Time) models.Transaction {
	return models.Transaction{
		ID:         id,
		UserID:     userID,
		Type:       models.TransactionTypeExpense,
		Amount:     decimal.NewFromFloat(amount),
		CategoryID: categoryID,
		Date:       date,
	}
}

func findByType(anomalies []models.Anomaly, anomalyType models.AnomalyType) []models.Anomaly {
	var out []models.Anomaly
	for _, a := range anomalies {
		if a.Type == anomalyType {
			out = append(out, a)
		}
	}
	return out
}

func TestDetect_EmptyHistory(t *testing.T) {
	s := store.NewMemoryStore()
	detector := newTestDetector(s)
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	report, err := detector.Detect(context.Background(), models.PredictiveQuery{
		UserID:    "u1",
		StartDate: start,
		EndDate:   start.AddDate(0, 0, 30),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Anomalies) != 0 {
		t.Errorf("expected no anomalies, got %d", len(report.Anomalies))
	}
	if report.Summary.TotalAnomalies != 0 {
		t.Errorf("expected empty summary, got %+v", report.Summary)
	}
	if report.Summary.AverageConfidence != 0 {
		t.Errorf("expected zero average confidence, got %f", report.Summary.AverageConfidence)
	}
}

func TestDetect_ExtremeAmountIsCritical(t *testing.T) {
	s := store.NewMemoryStore()
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	// 30 routine purchases plus one extreme outlier, each at noon on its
	// own day so no timing slot accumulates a skewed sample.
	for i := 0; i < 30; i++ {
		s.AddTransactions(expenseAt(
			fmt.Sprintf("routine-%d", i), "u1", "general", 100,
			start.AddDate(0, 0, i).Add(12*time.Hour),
		))
	}
	s.AddTransactions(expenseAt("big", "u1", "general", 10000, start.AddDate(0, 0, 30).Add(12*time.Hour)))

	detector := newTestDetector(s)
	report, err := detector.Detect(context.Background(), models.PredictiveQuery{
		UserID:    "u1",
		StartDate: start,
		EndDate:   start.AddDate(0, 0, 40),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	amountAnoms := findByType(report.Anomalies, models.AnomalyTypeAmount)
	if len(amountAnoms) != 1 {
		t.Fatalf("expected exactly 1 amount anomaly, got %d", len(amountAnoms))
	}
	anomaly := amountAnoms[0]
	if anomaly.TransactionID != "big" {
		t.Errorf("expected the outlier transaction flagged, got %s", anomaly.TransactionID)
	}
	if anomaly.Severity != models.SeverityCritical {
		t.Errorf("expected critical severity, got %s", anomaly.Severity)
	}
	if anomaly.Confidence != 0.95 {
		t.Errorf("expected confidence capped at 0.95, got %f", anomaly.Confidence)
	}
	if anomaly.Data.ActualValue != 10000 {
		t.Errorf("expected actual value 10000, got %f", anomaly.Data.ActualValue)
	}

	// Critical anomalies sort ahead of everything else.
	if report.Anomalies[0].Severity != models.SeverityCritical {
		t.Errorf("expected critical anomaly first, got %s", report.Anomalies[0].Severity)
	}
	if report.Summary.BySeverity[models.SeverityCritical] != 1 {
		t.Errorf("expected 1 critical in summary, got %d", report.Summary.BySeverity[models.SeverityCritical])
	}
}

func TestDetect_SpendingSpike(t *testing.T) {
	s := store.NewMemoryStore()
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	// 20 routine days then 3 consecutive elevated purchases.
	for i := 0; i < 20; i++ {
		s.AddTransactions(expenseAt(
			fmt.Sprintf("routine-%d", i), "u1", "general", 100,
			start.AddDate(0, 0, i).Add(12*time.Hour),
		))
	}
	spikes := []float64{600, 650, 700}
	for i, amount := range spikes {
		s.AddTransactions(expenseAt(
			fmt.Sprintf("spike-%d", i), "u1", "general", amount,
			start.AddDate(0, 0, 20+i).Add(12*time.Hour),
		))
	}

	detector := newTestDetector(s)
	report, err := detector.Detect(context.Background(), models.PredictiveQuery{
		UserID:    "u1",
		StartDate: start,
		EndDate:   start.AddDate(0, 0, 30),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spikeAnoms := findByType(report.Anomalies, models.AnomalyTypeSpike)
	if len(spikeAnoms) != 1 {
		t.Fatalf("expected exactly 1 spending spike, got %d", len(spikeAnoms))
	}
	spike := spikeAnoms[0]
	if spike.Severity != models.SeverityMedium {
		t.Errorf("expected medium severity for a 3-run, got %s", spike.Severity)
	}
	if spike.Confidence != 0.6 {
		t.Errorf("expected base confidence 0.6, got %f", spike.Confidence)
	}
	if spike.Data.ActualValue != 1950 {
		t.Errorf("expected run total 1950, got %f", spike.Data.ActualValue)
	}
	if spike.Data.Deviation <= 0 {
		t.Errorf("expected positive deviation, got %f", spike.Data.Deviation)
	}
}

func TestDetect_CategoryDeviation(t *testing.T) {
	s := store.NewMemoryStore()
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	// Baseline: 6 dining purchases at 100 before the window.
	for i := 0; i < 6; i++ {
		s.AddTransactions(expenseAt(
			fmt.Sprintf("base-%d", i), "u1", "dining", 100,
			start.AddDate(0, 0, -40+i*5),
		))
	}
	// Window: 3 dining purchases at 300, a 200% deviation.
	for i := 0; i < 3; i++ {
		s.AddTransactions(models.Transaction{
			ID:           fmt.Sprintf("win-%d", i),
			UserID:       "u1",
			Type:         models.TransactionTypeExpense,
			Amount:       decimal.NewFromFloat(300),
			CategoryID:   "dining",
			CategoryName: "Dining",
			Date:         start.AddDate(0, 0, i*2).Add(18 * time.Hour),
		})
	}

	detector := newTestDetector(s)
	report, err := detector.Detect(context.Background(), models.PredictiveQuery{
		UserID:    "u1",
		StartDate: start,
		EndDate:   start.AddDate(0, 0, 10),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	catAnoms := findByType(report.Anomalies, models.AnomalyTypeCategory)
	if len(catAnoms) != 1 {
		t.Fatalf("expected exactly 1 category anomaly, got %d", len(catAnoms))
	}
	anomaly := catAnoms[0]
	if anomaly.Severity != models.SeverityHigh {
		t.Errorf("expected high severity above 100%% deviation, got %s", anomaly.Severity)
	}
	if anomaly.Confidence != 0.9 {
		t.Errorf("expected confidence capped at 0.9, got %f", anomaly.Confidence)
	}
	if anomaly.Data.ExpectedValue != 100 {
		t.Errorf("expected baseline average 100, got %f", anomaly.Data.ExpectedValue)
	}
	if anomaly.Data.ActualValue != 300 {
		t.Errorf("expected window average 300, got %f", anomaly.Data.ActualValue)
	}
	if anomaly.Data.DeviationPercentage != 200 {
		t.Errorf("expected 200%% deviation, got %f", anomaly.Data.DeviationPercentage)
	}
}

func TestDetect_CategorySkippedWithThinBaseline(t *testing.T) {
	s := store.NewMemoryStore()
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	// Only 3 baseline purchases: below the minimum history requirement.
	for i := 0; i < 3; i++ {
		s.AddTransactions(expenseAt(
			fmt.Sprintf("base-%d", i), "u1", "dining", 100,
			start.AddDate(0, 0, -30+i*5),
		))
	}
	s.AddTransactions(expenseAt("win-0", "u1", "dining", 500, start))

	detector := newTestDetector(s)
	report, err := detector.Detect(context.Background(), models.PredictiveQuery{
		UserID:    "u1",
		StartDate: start,
		EndDate:   start.AddDate(0, 0, 10),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := findByType(report.Anomalies, models.AnomalyTypeCategory); len(got) != 0 {
		t.Errorf("expected thin-baseline category skipped, got %d anomalies", len(got))
	}
}

func TestDetect_TimingAnomaly(t *testing.T) {
	s := store.NewMemoryStore()
	start := time.Date(2026, 7, 6, 0, 0, 0, 0, time.UTC) // a Monday

	// Six Mondays at 14:00: five routine, one large.
	amounts := []float64{100, 100, 100, 100, 100, 1000}
	for i, amount := range amounts {
		s.AddTransactions(expenseAt(
			fmt.Sprintf("mon-%d", i), "u1", "general", amount,
			start.AddDate(0, 0, i*7).Add(14*time.Hour),
		))
	}

	detector := newTestDetector(s)
	report, err := detector.Detect(context.Background(), models.PredictiveQuery{
		UserID:    "u1",
		StartDate: start,
		EndDate:   start.AddDate(0, 0, 42),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	timingAnoms := findByType(report.Anomalies, models.AnomalyTypeTiming)
	if len(timingAnoms) != 1 {
		t.Fatalf("expected exactly 1 timing anomaly, got %d", len(timingAnoms))
	}
	anomaly := timingAnoms[0]
	if anomaly.TransactionID != "mon-5" {
		t.Errorf("expected the large Monday purchase flagged, got %s", anomaly.TransactionID)
	}
	if anomaly.Severity != models.SeverityMedium {
		t.Errorf("expected medium severity, got %s", anomaly.Severity)
	}
}

func TestSummarize(t *testing.T) {
	anomalies := []models.Anomaly{
		{Severity: models.SeverityCritical, Confidence: 0.9},
		{Severity: models.SeverityMedium, Confidence: 0.5},
		{Severity: models.SeverityMedium, Confidence: 0.7},
	}
	summary := summarize(anomalies)

	if summary.TotalAnomalies != 3 {
		t.Errorf("expected 3 total, got %d", summary.TotalAnomalies)
	}
	if summary.BySeverity[models.SeverityCritical] != 1 || summary.BySeverity[models.SeverityMedium] != 2 {
		t.Errorf("unexpected severity counts: %v", summary.BySeverity)
	}
	if math.Abs(summary.AverageConfidence-0.7) > 1e-9 {
		t.Errorf("expected average confidence 0.7, got %f", summary.AverageConfidence)
	}
}

func TestSeverityRank(t *testing.T) {
	if severityRank(models.SeverityCritical) <= severityRank(models.SeverityHigh) {
		t.Error("critical must outrank high")
	}
	if severityRank(models.SeverityHigh) <= severityRank(models.SeverityMedium) {
		t.Error("high must outrank medium")
	}
	if severityRank(models.SeverityMedium) <= severityRank(models.SeverityLow) {
		t.Error("medium must outrank low")
	}
}

// seedTwinSlotOutliers builds two (Monday 09:00, Monday 10:00) time
// slots of five 100s and one 400 each, six weeks starting 2026-07-06.
// The two timing outliers tie exactly on severity and confidence.
func seedTwinSlotOutliers(s *store.MemoryStore) (start, end time.Time) {
	monday := time.Date(2026, 7, 6, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		amount := 100.0
		if i == 5 {
			amount = 400
		}
		s.AddTransactions(
			expenseAt(fmt.Sprintf("m09-%d", i), "u1", "misc", amount,
				monday.AddDate(0, 0, 7*i).Add(9*time.Hour)),
			expenseAt(fmt.Sprintf("m10-%d", i), "u1", "misc", amount,
				monday.AddDate(0, 0, 7*i).Add(10*time.Hour)),
		)
	}
	return time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
}

func TestDetect_OrderingIsStableAcrossRuns(t *testing.T) {
	s := store.NewMemoryStore()
	start, end := seedTwinSlotOutliers(s)
	detector := newTestDetector(s)
	query := models.PredictiveQuery{UserID: "u1", StartDate: start, EndDate: end}

	type entry struct {
		anomalyType   models.AnomalyType
		transactionID string
	}
	want := []entry{
		{models.AnomalyTypeAmount, "m09-5"},
		{models.AnomalyTypeTiming, "m09-5"},
		{models.AnomalyTypeAmount, "m10-5"},
		{models.AnomalyTypeTiming, "m10-5"},
	}

	for run := 0; run < 5; run++ {
		report, err := detector.Detect(context.Background(), query)
		if err != nil {
			t.Fatalf("run %d: unexpected error: %v", run, err)
		}
		if len(report.Anomalies) != len(want) {
			t.Fatalf("run %d: expected %d anomalies, got %d", run, len(want), len(report.Anomalies))
		}
		for i, a := range report.Anomalies {
			if a.Type != want[i].anomalyType || a.TransactionID != want[i].transactionID {
				t.Errorf("run %d: position %d is (%s, %s), want (%s, %s)",
					run, i, a.Type, a.TransactionID, want[i].anomalyType, want[i].transactionID)
			}
		}
	}
}

func TestDetect_ConfidenceThreshold(t *testing.T) {
	s := store.NewMemoryStore()
	start, end := seedTwinSlotOutliers(s)
	detector := newTestDetector(s)
	query := models.PredictiveQuery{
		UserID:              "u1",
		StartDate:           start,
		EndDate:             end,
		ConfidenceThreshold: 0.5,
	}

	// Every detected anomaly here has confidence ~0.447.
	report, err := detector.Detect(context.Background(), query)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Anomalies) != 0 {
		t.Errorf("expected all anomalies filtered, got %v", report.Anomalies)
	}
	if report.Summary.TotalAnomalies != 0 {
		t.Errorf("summary must reflect the filtered set, got %+v", report.Summary)
	}

	query.ConfidenceThreshold = 0.4
	report, err = detector.Detect(context.Background(), query)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Anomalies) != 4 {
		t.Errorf("expected 4 anomalies above the threshold, got %d", len(report.Anomalies))
	}
}
