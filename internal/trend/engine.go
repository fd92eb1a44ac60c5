// Package trend computes directional spending trends and calendar
// pattern summaries at the aggregate and per-category level.
package trend

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/savegress/spendcast/internal/config"
	"github.com/savegress/spendcast/internal/history"
	"github.com/savegress/spendcast/internal/stats"
	"github.com/savegress/spendcast/pkg/models"
)

const (
	volatilityCV        = 0.5
	seasonalStrengthMin = 0.2
	strengthStrongR2    = 0.7
	strengthModerateR2  = 0.4
)

// Engine is the trend-analysis engine.
type Engine struct {
	loader *history.Loader
	cfg    config.TrendConfig
	log    zerolog.Logger
}

// NewEngine creates a trend-analysis engine.
func NewEngine(loader *history.Loader, cfg config.TrendConfig, log zerolog.Logger) *Engine {
	return &Engine{loader: loader, cfg: cfg, log: log}
}

// Analyze fits the overall and per-category trends over the lookback
// window ending at query.EndDate. Fails with an insufficient-data error
// below the configured minimum days of history.
func (e *Engine) Analyze(ctx context.Context, query models.PredictiveQuery) (*models.TrendAnalysis, error) {
	from := query.EndDate.AddDate(0, 0, -e.cfg.LookbackDays)
	txns, err := e.loader.Transactions(ctx, query, from, query.EndDate, models.TransactionTypeExpense)
	if err != nil {
		return nil, err
	}

	buckets := history.BucketByDay(txns)
	if len(buckets) < e.cfg.MinHistoryDays {
		return nil, &history.InsufficientDataError{Required: e.cfg.MinHistoryDays, Have: len(buckets)}
	}

	values := history.Amounts(buckets)
	overall := fitTrend(values, e.cfg.TrendThreshold)

	analysis := &models.TrendAnalysis{
		UserID:          query.UserID,
		OverallTrend:    overall,
		CategoryTrends:  e.categoryTrends(txns),
		WeeklyPatterns:  weeklyPatterns(buckets),
		MonthlyPatterns: monthlyPatterns(buckets),
		AnalyzedDays:    len(buckets),
		GeneratedAt:     time.Now().UTC(),
	}
	analysis.Insights = e.buildInsights(analysis, values)

	e.log.Debug().
		Str("user_id", query.UserID).
		Str("direction", string(overall.Direction)).
		Str("strength", string(overall.Strength)).
		Int("analyzed_days", len(buckets)).
		Msg("trend analysis completed")

	return analysis, nil
}

// fitTrend runs one OLS fit and classifies direction from the slope
// normalized by the mean, and strength from the fit's R².
func fitTrend(values []float64, threshold float64) models.Trend {
	fit := stats.LinearRegression(values)
	mean := stats.Mean(values)
	cv := stats.CoefficientOfVariation(values)

	direction := models.TrendStable
	switch {
	case cv > volatilityCV:
		direction = models.TrendVolatile
	case mean != 0 && fit.Slope/mean > threshold:
		direction = models.TrendIncreasing
	case mean != 0 && fit.Slope/mean < -threshold:
		direction = models.TrendDecreasing
	}

	strength := models.TrendWeak
	switch {
	case fit.RSquared > strengthStrongR2:
		strength = models.TrendStrong
	case fit.RSquared > strengthModerateR2:
		strength = models.TrendModerate
	}

	return models.Trend{
		Direction:  direction,
		Strength:   strength,
		Slope:      fit.Slope,
		RSquared:   fit.RSquared,
		Confidence: stats.Clamp01(fit.RSquared),
	}
}

func (e *Engine) categoryTrends(txns []models.Transaction) []models.CategoryTrend {
	groups := history.GroupByCategory(txns)

	var catIDs []string
	for catID := range groups {
		catIDs = append(catIDs, catID)
	}
	sort.Strings(catIDs)

	var trends []models.CategoryTrend
	for _, catID := range catIDs {
		group := groups[catID]
		buckets := history.BucketByDay(group)
		if len(buckets) < 2 {
			continue
		}
		values := history.Amounts(buckets)
		fitted := fitTrend(values, e.cfg.TrendThreshold)

		var total float64
		for _, txn := range group {
			total += txn.Amount.InexactFloat64()
		}

		name := group[0].CategoryName
		if name == "" {
			name = catID
		}

		// One-step-ahead projection from the last observed day
		next := fitted.Slope + values[len(values)-1]
		if next < 0 {
			next = 0
		}

		trends = append(trends, models.CategoryTrend{
			CategoryID:           catID,
			CategoryName:         name,
			Trend:                fitted,
			Seasonal:             seasonalPattern(group),
			NextPeriodPrediction: stats.Round2(next),
			TotalSpent:           stats.Round2(total),
		})
	}

	return trends
}

// seasonalPattern summarizes calendar-month seasonality: peak and low
// months by average spend, with strength measured as the coefficient of
// variation of the monthly averages.
func seasonalPattern(txns []models.Transaction) models.SeasonalPattern {
	sums := make(map[time.Month]float64)
	counts := make(map[time.Month]int)
	for _, txn := range txns {
		month := txn.Date.Month()
		sums[month] += txn.Amount.InexactFloat64()
		counts[month]++
	}
	if len(sums) == 0 {
		return models.SeasonalPattern{}
	}

	var averages []float64
	var peak, low time.Month
	var peakAvg, lowAvg float64
	first := true
	for month := time.January; month <= time.December; month++ {
		count, ok := counts[month]
		if !ok {
			continue
		}
		avg := sums[month] / float64(count)
		averages = append(averages, avg)
		if first || avg > peakAvg {
			peak, peakAvg = month, avg
		}
		if first || avg < lowAvg {
			low, lowAvg = month, avg
		}
		first = false
	}

	strength := stats.CoefficientOfVariation(averages)
	return models.SeasonalPattern{
		HasSeasonality: strength > seasonalStrengthMin,
		PeakMonth:      peak.String(),
		LowMonth:       low.String(),
		Strength:       stats.Round2(strength),
	}
}

// weeklyPatterns is a plain group-by-weekday average table, not modeled.
func weeklyPatterns(buckets []models.DailyBucket) []models.PatternEntry {
	sums := make(map[time.Weekday]float64)
	counts := make(map[time.Weekday]int)
	for _, bucket := range buckets {
		date, err := time.Parse("2006-01-02", bucket.Date)
		if err != nil {
			continue
		}
		day := date.Weekday()
		sums[day] += bucket.Amount
		counts[day]++
	}

	var entries []models.PatternEntry
	for day := time.Sunday; day <= time.Saturday; day++ {
		count := counts[day]
		if count == 0 {
			continue
		}
		entries = append(entries, models.PatternEntry{
			Label:   day.String(),
			Average: stats.Round2(sums[day] / float64(count)),
			Total:   stats.Round2(sums[day]),
			Count:   count,
		})
	}
	return entries
}

// monthlyPatterns is a plain group-by-month average table, not modeled.
func monthlyPatterns(buckets []models.DailyBucket) []models.PatternEntry {
	sums := make(map[time.Month]float64)
	counts := make(map[time.Month]int)
	for _, bucket := range buckets {
		date, err := time.Parse("2006-01-02", bucket.Date)
		if err != nil {
			continue
		}
		month := date.Month()
		sums[month] += bucket.Amount
		counts[month]++
	}

	var entries []models.PatternEntry
	for month := time.January; month <= time.December; month++ {
		count := counts[month]
		if count == 0 {
			continue
		}
		entries = append(entries, models.PatternEntry{
			Label:   month.String(),
			Average: stats.Round2(sums[month] / float64(count)),
			Total:   stats.Round2(sums[month]),
			Count:   count,
		})
	}
	return entries
}

// buildInsights is rule-based: the overall trend, strongly increasing
// categories and detected seasonality each independently append a canned
// observation.
func (e *Engine) buildInsights(analysis *models.TrendAnalysis, values []float64) []models.TrendInsight {
	var insights []models.TrendInsight

	overall := analysis.OverallTrend
	if overall.Direction == models.TrendIncreasing && overall.Strength == models.TrendStrong {
		insights = append(insights, models.TrendInsight{
			Title:       "Spending is rising steadily",
			Description: "Your overall spending shows a strong increasing trend over the analyzed period.",
			Recommendations: []string{
				"Review your largest categories for cuts",
				"Set monthly spending limits",
			},
		})
	}

	var rising []string
	for _, ct := range analysis.CategoryTrends {
		if ct.Trend.Direction == models.TrendIncreasing && ct.Trend.Strength == models.TrendStrong {
			rising = append(rising, ct.CategoryName)
		}
	}
	if len(rising) > 0 {
		insights = append(insights, models.TrendInsight{
			Title:       "Categories with rising spend",
			Description: fmt.Sprintf("Spending is rising strongly in: %s.", joinNames(rising)),
			Recommendations: []string{
				"Set budgets for these categories",
			},
		})
	}

	if stats.DetectSeasonality(values, 7, e.cfg.SeasonalityThreshold) {
		insights = append(insights, models.TrendInsight{
			Title:       "Weekly spending rhythm detected",
			Description: "Your spending follows a repeating weekly pattern.",
			Recommendations: []string{
				"Plan larger purchases outside your peak days",
			},
		})
	}

	return insights
}

func joinNames(names []string) string {
	out := ""
	for i, name := range names {
		if i > 0 {
			out += ", "
		}
		out += name
	}
	return out
}
