// Package insights fans out to the prediction, anomaly, trend and
// forecast engines and condenses their reports into a single
// prioritized feed of insights, risks and opportunities.
package insights

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/savegress/spendcast/internal/anomaly"
	"github.com/savegress/spendcast/internal/forecast"
	"github.com/savegress/spendcast/internal/prediction"
	"github.com/savegress/spendcast/internal/stats"
	"github.com/savegress/spendcast/internal/trend"
	"github.com/savegress/spendcast/pkg/models"
)

const (
	savingsPotentialRate = 0.1

	ttlCritical = 24 * time.Hour
	ttlHigh     = 3 * 24 * time.Hour
	ttlMedium   = 7 * 24 * time.Hour
	ttlLow      = 14 * 24 * time.Hour
)

// Aggregator runs all four engines concurrently and merges their
// output. Any engine failure fails the whole report.
type Aggregator struct {
	prediction *prediction.Engine
	anomaly    *anomaly.Detector
	trend      *trend.Engine
	forecast   *forecast.Engine
	log        zerolog.Logger
}

// NewAggregator creates an insight aggregator over the four engines.
func NewAggregator(p *prediction.Engine, a *anomaly.Detector, t *trend.Engine, f *forecast.Engine, log zerolog.Logger) *Aggregator {
	return &Aggregator{prediction: p, anomaly: a, trend: t, forecast: f, log: log}
}

// Generate runs the engines in parallel and builds the combined report.
// Repeated calls over identical data return identical reports up to the
// generated insight IDs and the CreatedAt/ExpiresAt timestamps.
func (ag *Aggregator) Generate(ctx context.Context, query models.PredictiveQuery) (*models.InsightReport, error) {
	var (
		spending  *models.SpendingPrediction
		anomalies *models.AnomalyReport
		trends    *models.TrendAnalysis
		fin       *models.Forecast
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		spending, err = ag.prediction.Predict(gctx, query)
		if err != nil {
			return fmt.Errorf("spending prediction: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		anomalies, err = ag.anomaly.Detect(gctx, query)
		if err != nil {
			return fmt.Errorf("anomaly detection: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		trends, err = ag.trend.Analyze(gctx, query)
		if err != nil {
			return fmt.Errorf("trend analysis: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		fin, err = ag.forecast.Forecast(gctx, query)
		if err != nil {
			return fmt.Errorf("financial forecast: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	flatTrends := []models.Trend{trends.OverallTrend}
	for _, ct := range trends.CategoryTrends {
		flatTrends = append(flatTrends, ct.Trend)
	}

	now := time.Now().UTC()
	report := &models.InsightReport{
		UserID:      query.UserID,
		Trends:      flatTrends,
		GeneratedAt: now,
	}

	report.Insights = append(report.Insights, ag.spendingInsights(spending, now)...)
	report.Insights = append(report.Insights, ag.anomalyInsights(anomalies, now)...)
	report.Insights = append(report.Insights, ag.trendInsights(trends, now)...)
	report.Insights = append(report.Insights, ag.forecastInsights(fin, now)...)
	if report.Insights == nil {
		report.Insights = []models.Insight{}
	}

	report.Risks = collectRisks(anomalies, fin)
	report.Opportunities = collectOpportunities(spending, fin)

	ag.log.Debug().
		Str("user_id", query.UserID).
		Int("insights", len(report.Insights)).
		Int("risks", len(report.Risks)).
		Int("opportunities", len(report.Opportunities)).
		Msg("insight report generated")

	return report, nil
}

func (ag *Aggregator) spendingInsights(p *models.SpendingPrediction, now time.Time) []models.Insight {
	if p == nil || len(p.Predictions) == 0 {
		return nil
	}
	priority := models.PriorityLow
	if p.Confidence == models.ConfidenceHigh {
		priority = models.PriorityMedium
	}
	insight := newInsight(priority, now,
		"Predicted spending for the upcoming period",
		fmt.Sprintf("Expected total spending of %.2f over the next %d days (%.2f per day on average).",
			p.TotalPredicted, len(p.Predictions), p.AverageDaily))
	if len(p.RiskFactors) > 0 {
		insight.Recommendations = append(insight.Recommendations,
			"Review the flagged risk factors before relying on this projection.")
	}
	return []models.Insight{insight}
}

func (ag *Aggregator) anomalyInsights(r *models.AnomalyReport, now time.Time) []models.Insight {
	if r == nil || r.Summary.TotalAnomalies == 0 {
		return nil
	}
	priority := models.PriorityMedium
	if r.Summary.BySeverity[models.SeverityCritical] > 0 {
		priority = models.PriorityCritical
	} else if r.Summary.BySeverity[models.SeverityHigh] > 0 {
		priority = models.PriorityHigh
	}
	insight := newInsight(priority, now,
		"Unusual activity detected",
		fmt.Sprintf("%d anomalies found in the analyzed window (average confidence %.2f).",
			r.Summary.TotalAnomalies, r.Summary.AverageConfidence))
	insight.Recommendations = append(insight.Recommendations,
		"Review the flagged transactions and confirm they are expected.")
	return []models.Insight{insight}
}

func (ag *Aggregator) trendInsights(t *models.TrendAnalysis, now time.Time) []models.Insight {
	if t == nil {
		return nil
	}
	var out []models.Insight
	if t.OverallTrend.Direction == models.TrendIncreasing && t.OverallTrend.Strength == models.TrendStrong {
		insight := newInsight(models.PriorityHigh, now,
			"Spending is trending upward",
			"Overall spending shows a strong increasing trend over the analyzed period.")
		insight.Recommendations = append(insight.Recommendations,
			"Compare recent months against your budget to find the drivers.")
		out = append(out, insight)
	}
	if t.OverallTrend.Direction == models.TrendVolatile {
		out = append(out, newInsight(models.PriorityMedium, now,
			"Spending is volatile",
			"Day-to-day spending varies widely, which reduces forecast reliability."))
	}
	return out
}

func (ag *Aggregator) forecastInsights(f *models.Forecast, now time.Time) []models.Insight {
	if f == nil {
		return nil
	}
	if f.ProjectedNetWorth < 0 {
		insight := newInsight(models.PriorityCritical, now,
			"Projected expenses exceed projected income",
			fmt.Sprintf("At current rates your net position changes by %.2f over the forecast window.",
				f.ProjectedNetWorth))
		insight.Recommendations = append(insight.Recommendations,
			"Reduce discretionary spending or increase income to avoid drawing down savings.")
		return []models.Insight{insight}
	}
	return []models.Insight{newInsight(models.PriorityLow, now,
		"Positive financial outlook",
		fmt.Sprintf("Projected savings of %.2f over the forecast window.", f.ProjectedSavings))}
}

func collectRisks(r *models.AnomalyReport, f *models.Forecast) []models.Risk {
	var risks []models.Risk
	if r != nil {
		for _, a := range r.Anomalies {
			if a.Severity != models.SeverityCritical && a.Severity != models.SeverityHigh {
				continue
			}
			risks = append(risks, models.Risk{
				Source:      "anomaly",
				Severity:    string(a.Severity),
				Description: a.Explanation,
			})
		}
	}
	if f != nil {
		if f.ProjectedNetWorth < 0 {
			risks = append(risks, models.Risk{
				Source:      "forecast",
				Severity:    string(models.SeverityHigh),
				Description: "projected expenses exceed projected income over the forecast window",
			})
		}
		for _, factor := range f.RiskFactors {
			risks = append(risks, models.Risk{
				Source:      "forecast",
				Severity:    string(models.SeverityMedium),
				Description: factor,
			})
		}
	}
	return risks
}

func collectOpportunities(p *models.SpendingPrediction, f *models.Forecast) []models.Opportunity {
	var opps []models.Opportunity
	if p != nil && p.TotalPredicted > 0 {
		opps = append(opps, models.Opportunity{
			Type:            "savings_potential",
			Description:     "trimming predicted spending by ten percent frees this amount",
			EstimatedAmount: stats.Round2(p.TotalPredicted * savingsPotentialRate),
		})
	}
	if f != nil && f.ProjectedSavings > 0 {
		opps = append(opps, models.Opportunity{
			Type:            "budget_optimization",
			Description:     "projected savings available to allocate toward goals",
			EstimatedAmount: f.ProjectedSavings,
		})
	}
	return opps
}

func newInsight(priority models.InsightPriority, now time.Time, title, description string) models.Insight {
	return models.Insight{
		ID:          uuid.New().String(),
		Priority:    priority,
		Title:       title,
		Description: description,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttlFor(priority)),
	}
}

func ttlFor(priority models.InsightPriority) time.Duration {
	switch priority {
	case models.PriorityCritical:
		return ttlCritical
	case models.PriorityHigh:
		return ttlHigh
	case models.PriorityMedium:
		return ttlMedium
	default:
		return ttlLow
	}
}
