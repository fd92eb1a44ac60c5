// Package anomaly flags transactions, categories and time windows that
// deviate statistically from a user's historical norms. Four independent
// detectors run per call; their results are concatenated and ranked.
// Anomalies are a per-call report, never persisted.
package anomaly

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/savegress/spendcast/internal/config"
	"github.com/savegress/spendcast/internal/history"
	"github.com/savegress/spendcast/internal/stats"
	"github.com/savegress/spendcast/pkg/models"
)

// Per-transaction z-score severity thresholds. The medium threshold is
// intentionally low: the product favors recall over precision here.
const (
	zCritical = 4.0
	zHigh     = 3.0
	zMedium   = 1.0

	timingZThreshold = 2.0
	timingZHigh      = 3.0

	spikeSigma    = 1.5
	iqrFenceK     = 1.5
	iqrConfidence = 0.6
)

// Detector is the anomaly-detection engine.
type Detector struct {
	loader *history.Loader
	cfg    config.AnomalyConfig
	log    zerolog.Logger
}

// NewDetector creates an anomaly detector.
func NewDetector(loader *history.Loader, cfg config.AnomalyConfig, log zerolog.Logger) *Detector {
	return &Detector{loader: loader, cfg: cfg, log: log}
}

// Detect runs all four detectors over the query window's expense
// transactions. Empty or near-empty input degrades to an empty report;
// there is no minimum history requirement. Repeated calls over
// identical data return identical reports up to the generated anomaly
// IDs and DetectedAt timestamps.
func (d *Detector) Detect(ctx context.Context, query models.PredictiveQuery) (*models.AnomalyReport, error) {
	txns, err := d.loader.Transactions(ctx, query, query.StartDate, query.EndDate, models.TransactionTypeExpense)
	if err != nil {
		return nil, err
	}

	baselineFrom := query.StartDate.AddDate(0, 0, -d.cfg.BaselineDays)
	baseline, err := d.loader.Transactions(ctx, query, baselineFrom, query.StartDate, models.TransactionTypeExpense)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var anomalies []models.Anomaly
	anomalies = append(anomalies, d.detectAmountAnomalies(txns, now)...)
	anomalies = append(anomalies, d.detectTimingAnomalies(txns, now)...)
	anomalies = append(anomalies, d.detectCategoryAnomalies(txns, baseline, now)...)
	anomalies = append(anomalies, d.detectSpendingSpikes(txns, now)...)

	if query.ConfidenceThreshold > 0 {
		kept := anomalies[:0]
		for _, a := range anomalies {
			if a.Confidence >= query.ConfidenceThreshold {
				kept = append(kept, a)
			}
		}
		anomalies = kept
	}

	sort.SliceStable(anomalies, func(i, j int) bool {
		if anomalies[i].Severity != anomalies[j].Severity {
			return severityRank(anomalies[i].Severity) > severityRank(anomalies[j].Severity)
		}
		if anomalies[i].Confidence != anomalies[j].Confidence {
			return anomalies[i].Confidence > anomalies[j].Confidence
		}
		return anomalies[i].TransactionID < anomalies[j].TransactionID
	})

	report := &models.AnomalyReport{
		UserID:    query.UserID,
		Anomalies: anomalies,
		Summary:   summarize(anomalies),
	}

	d.log.Debug().
		Str("user_id", query.UserID).
		Int("transactions", len(txns)).
		Int("anomalies", len(anomalies)).
		Msg("anomaly detection completed")

	return report, nil
}

// detectAmountAnomalies flags per-transaction z-score outliers against
// the window's own mean and standard deviation, then an IQR-fence pass
// catches additional low-severity outliers the z-score missed.
func (d *Detector) detectAmountAnomalies(txns []models.Transaction, now time.Time) []models.Anomaly {
	if len(txns) < 2 {
		return nil
	}

	amounts := make([]float64, len(txns))
	for i, txn := range txns {
		amounts[i] = txn.Amount.InexactFloat64()
	}
	mean := stats.Mean(amounts)
	stdDev := stats.StdDev(amounts)

	var anomalies []models.Anomaly
	flagged := make(map[string]bool)

	if stdDev > 0 {
		for i, txn := range txns {
			z := (amounts[i] - mean) / stdDev
			absZ := math.Abs(z)
			if absZ <= zMedium {
				continue
			}

			severity := models.SeverityMedium
			if absZ > zCritical {
				severity = models.SeverityCritical
			} else if absZ > zHigh {
				severity = models.SeverityHigh
			}

			flagged[txn.ID] = true
			anomalies = append(anomalies, models.Anomaly{
				ID:            uuid.New().String(),
				TransactionID: txn.ID,
				Type:          models.AnomalyTypeAmount,
				Severity:      severity,
				Confidence:    math.Min(0.95, absZ/5),
				Data:          deviationData(mean, amounts[i]),
				Explanation: fmt.Sprintf("transaction of %.2f is %.1f standard deviations from the window mean of %.2f",
					amounts[i], absZ, mean),
				Recommendations: []string{
					"Review this transaction for accuracy",
					"Verify the merchant and category assignment",
				},
				DetectedAt: now,
			})
		}
	}

	// IQR fence pass for outliers z-score did not catch
	sorted := stats.Sorted(amounts)
	q1 := stats.Percentile(sorted, 25)
	q3 := stats.Percentile(sorted, 75)
	iqr := q3 - q1
	lowerFence := q1 - iqrFenceK*iqr
	upperFence := q3 + iqrFenceK*iqr

	for i, txn := range txns {
		if flagged[txn.ID] {
			continue
		}
		if amounts[i] < lowerFence || amounts[i] > upperFence {
			anomalies = append(anomalies, models.Anomaly{
				ID:            uuid.New().String(),
				TransactionID: txn.ID,
				Type:          models.AnomalyTypeAmount,
				Severity:      models.SeverityLow,
				Confidence:    iqrConfidence,
				Data:          deviationData(mean, amounts[i]),
				Explanation: fmt.Sprintf("transaction of %.2f falls outside the interquartile fences [%.2f, %.2f]",
					amounts[i], lowerFence, upperFence),
				Recommendations: []string{"Review this transaction for accuracy"},
				DetectedAt:      now,
			})
		}
	}

	return anomalies
}

// detectTimingAnomalies groups transactions by (weekday, hour) and flags
// spend that is unusual for that specific time slot, not globally.
func (d *Detector) detectTimingAnomalies(txns []models.Transaction, now time.Time) []models.Anomaly {
	type slot struct {
		weekday time.Weekday
		hour    int
	}
	buckets := make(map[slot][]models.Transaction)
	for _, txn := range txns {
		key := slot{weekday: txn.Date.Weekday(), hour: txn.Date.Hour()}
		buckets[key] = append(buckets[key], txn)
	}

	keys := make([]slot, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].weekday != keys[j].weekday {
			return keys[i].weekday < keys[j].weekday
		}
		return keys[i].hour < keys[j].hour
	})

	var anomalies []models.Anomaly
	for _, key := range keys {
		group := buckets[key]
		if len(group) < d.cfg.TimingMinSamples {
			continue
		}
		amounts := make([]float64, len(group))
		for i, txn := range group {
			amounts[i] = txn.Amount.InexactFloat64()
		}
		mean := stats.Mean(amounts)
		stdDev := stats.StdDev(amounts)
		if stdDev == 0 {
			continue
		}

		for i, txn := range group {
			z := math.Abs(amounts[i]-mean) / stdDev
			if z <= timingZThreshold {
				continue
			}
			severity := models.SeverityMedium
			if z > timingZHigh {
				severity = models.SeverityHigh
			}
			anomalies = append(anomalies, models.Anomaly{
				ID:            uuid.New().String(),
				TransactionID: txn.ID,
				Type:          models.AnomalyTypeTiming,
				Severity:      severity,
				Confidence:    math.Min(0.95, z/5),
				Data:          deviationData(mean, amounts[i]),
				Explanation: fmt.Sprintf("spend of %.2f is unusual for %s %02d:00 (slot average %.2f)",
					amounts[i], key.weekday, key.hour, mean),
				Recommendations: []string{"Check whether this purchase time matches your habits"},
				DetectedAt:      now,
			})
		}
	}

	return anomalies
}

// detectCategoryAnomalies compares the window's per-transaction category
// average against a trailing historical per-category average. Categories
// with thin history are skipped.
func (d *Detector) detectCategoryAnomalies(txns, baseline []models.Transaction, now time.Time) []models.Anomaly {
	windowGroups := history.GroupByCategory(txns)
	baselineGroups := history.GroupByCategory(baseline)

	var catIDs []string
	for catID := range windowGroups {
		catIDs = append(catIDs, catID)
	}
	sort.Strings(catIDs)

	var anomalies []models.Anomaly
	for _, catID := range catIDs {
		window := windowGroups[catID]
		hist := baselineGroups[catID]
		if len(hist) < d.cfg.MinCategoryHistory {
			continue
		}

		var windowTotal, histTotal float64
		for _, txn := range window {
			windowTotal += txn.Amount.InexactFloat64()
		}
		for _, txn := range hist {
			histTotal += txn.Amount.InexactFloat64()
		}
		windowAvg := windowTotal / float64(len(window))
		histAvg := histTotal / float64(len(hist))
		if histAvg == 0 {
			continue
		}

		deviationPct := math.Abs(windowAvg-histAvg) / histAvg * 100
		if deviationPct <= d.cfg.CategoryDeviationPct {
			continue
		}

		severity := models.SeverityMedium
		if deviationPct > 100 {
			severity = models.SeverityHigh
		}

		name := window[0].CategoryName
		if name == "" {
			name = catID
		}
		anomalies = append(anomalies, models.Anomaly{
			ID:         uuid.New().String(),
			Type:       models.AnomalyTypeCategory,
			Severity:   severity,
			Confidence: math.Min(0.9, deviationPct/200),
			Data: models.AnomalyData{
				ExpectedValue:       stats.Round2(histAvg),
				ActualValue:         stats.Round2(windowAvg),
				Deviation:           stats.Round2(windowAvg - histAvg),
				DeviationPercentage: stats.Round2(deviationPct),
			},
			Explanation: fmt.Sprintf("average spend in %s deviates %.0f%% from its %d-day baseline",
				name, deviationPct, d.cfg.BaselineDays),
			Recommendations: []string{
				fmt.Sprintf("Review recent %s purchases", name),
				"Consider setting a category budget",
			},
			DetectedAt: now,
		})
	}

	return anomalies
}

// detectSpendingSpikes scans chronologically for runs of consecutive
// transactions each exceeding mean + 1.5 stddev. A whole run is reported
// as one anomaly; severity escalates with run length.
func (d *Detector) detectSpendingSpikes(txns []models.Transaction, now time.Time) []models.Anomaly {
	if len(txns) < d.cfg.SpikeMinRun {
		return nil
	}

	amounts := make([]float64, len(txns))
	for i, txn := range txns {
		amounts[i] = txn.Amount.InexactFloat64()
	}
	mean := stats.Mean(amounts)
	threshold := mean + spikeSigma*stats.StdDev(amounts)

	var anomalies []models.Anomaly
	runStart := -1
	flush := func(end int) {
		runLen := end - runStart
		if runStart < 0 || runLen < d.cfg.SpikeMinRun {
			runStart = -1
			return
		}

		severity := models.SeverityMedium
		switch {
		case runLen >= 5:
			severity = models.SeverityCritical
		case runLen >= 4:
			severity = models.SeverityHigh
		}

		var runTotal float64
		for i := runStart; i < end; i++ {
			runTotal += amounts[i]
		}
		expected := mean * float64(runLen)

		anomalies = append(anomalies, models.Anomaly{
			ID:         uuid.New().String(),
			Type:       models.AnomalyTypeSpike,
			Severity:   severity,
			Confidence: math.Min(0.95, 0.6+0.1*float64(runLen-d.cfg.SpikeMinRun)),
			Data: models.AnomalyData{
				ExpectedValue:       stats.Round2(expected),
				ActualValue:         stats.Round2(runTotal),
				Deviation:           stats.Round2(runTotal - expected),
				DeviationPercentage: stats.Round2(pctDeviation(expected, runTotal)),
			},
			Explanation: fmt.Sprintf("%d consecutive transactions between %s and %s each exceeded the elevated-spend threshold of %.2f",
				runLen, txns[runStart].Date.Format("2006-01-02"), txns[end-1].Date.Format("2006-01-02"), threshold),
			Recommendations: []string{
				"Review this burst of elevated spending",
				"Check for duplicate or fraudulent charges",
			},
			DetectedAt: now,
		})
		runStart = -1
	}

	for i := range amounts {
		if amounts[i] > threshold {
			if runStart < 0 {
				runStart = i
			}
			continue
		}
		flush(i)
	}
	flush(len(amounts))

	return anomalies
}

func deviationData(expected, actual float64) models.AnomalyData {
	return models.AnomalyData{
		ExpectedValue:       stats.Round2(expected),
		ActualValue:         stats.Round2(actual),
		Deviation:           stats.Round2(actual - expected),
		DeviationPercentage: stats.Round2(pctDeviation(expected, actual)),
	}
}

func pctDeviation(expected, actual float64) float64 {
	if expected == 0 {
		return 0
	}
	return math.Abs(actual-expected) / math.Abs(expected) * 100
}

func severityRank(s models.AnomalySeverity) int {
	switch s {
	case models.SeverityCritical:
		return 3
	case models.SeverityHigh:
		return 2
	case models.SeverityMedium:
		return 1
	default:
		return 0
	}
}

func summarize(anomalies []models.Anomaly) models.AnomalySummary {
	summary := models.AnomalySummary{
		TotalAnomalies: len(anomalies),
		BySeverity:     make(map[models.AnomalySeverity]int),
	}
	var confidenceSum float64
	for _, a := range anomalies {
		summary.BySeverity[a.Severity]++
		confidenceSum += a.Confidence
	}
	if len(anomalies) > 0 {
		summary.AverageConfidence = confidenceSum / float64(len(anomalies))
	}
	return summary
}
