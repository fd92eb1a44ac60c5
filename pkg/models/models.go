package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType represents the type of financial transaction
type TransactionType string

const (
	TransactionTypeIncome     TransactionType = "income"
	TransactionTypeExpense    TransactionType = "expense"
	TransactionTypeTransfer   TransactionType = "transfer"
	TransactionTypeAdjustment TransactionType = "adjustment"
)

// Transaction is a read-only projection of a persisted transaction.
// Instances are immutable once loaded; groupings by day or category are
// derived views, never in-place mutations.
type Transaction struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	Type         TransactionType `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	CategoryID   string          `json:"category_id"`
	CategoryName string          `json:"category_name"`
	AccountID    string          `json:"account_id,omitempty"`
	Description  string          `json:"description,omitempty"`
	Date         time.Time       `json:"date"`
	IsRecurring  bool            `json:"is_recurring,omitempty"`
	IsDeleted    bool            `json:"-"`
}

// Category represents a transaction category
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DailyBucket aggregates all transactions of one calendar day. Only days
// with at least one transaction are emitted; missing days are implicitly
// zero and the series is NOT densified (see package history).
type DailyBucket struct {
	Date   string  `json:"date"` // YYYY-MM-DD
	Amount float64 `json:"amount"`
	Count  int     `json:"count"`
}

// ModelType represents a predictive model family
type ModelType string

const (
	ModelTypeSpendingPrediction ModelType = "spending_prediction"
	ModelTypeAnomalyDetection   ModelType = "anomaly_detection"
	ModelTypeTrendAnalysis      ModelType = "trend_analysis"
	ModelTypeCashFlowPrediction ModelType = "cash_flow_prediction"
)

// Algorithm identifies the statistical procedure behind a report
type Algorithm string

const (
	AlgorithmLinearRegression      Algorithm = "linear_regression"
	AlgorithmExponentialSmoothing  Algorithm = "exponential_smoothing"
	AlgorithmSeasonalDecomposition Algorithm = "seasonal_decomposition"
	AlgorithmTimeSeries            Algorithm = "time_series"
	AlgorithmHybrid                Algorithm = "hybrid"
)

// PredictiveQuery is the common input contract for all engines.
// StartDate < EndDate is enforced by the caller, not re-checked inside
// the engines. Categories and Accounts scope the history every engine
// loads; TransactionTypes narrows within the types an engine analyzes;
// recurring transactions are excluded unless IncludeRecurring is set.
// ConfidenceThreshold applies to anomaly detection, the one engine
// whose results carry per-item confidence; report-level confidences
// elsewhere are never filtered.
type PredictiveQuery struct {
	UserID              string            `json:"user_id"`
	StartDate           time.Time         `json:"start_date"`
	EndDate             time.Time         `json:"end_date"`
	Categories          []string          `json:"categories,omitempty"`
	TransactionTypes    []TransactionType `json:"transaction_types,omitempty"`
	Accounts            []string          `json:"accounts,omitempty"`
	IncludeRecurring    bool              `json:"include_recurring,omitempty"`
	ConfidenceThreshold float64           `json:"confidence_threshold,omitempty"`
	ModelType           ModelType         `json:"model_type,omitempty"`
	Algorithm           Algorithm         `json:"algorithm,omitempty"`
}

// ConfidenceBucket is a coarse confidence classification
type ConfidenceBucket string

const (
	ConfidenceHigh   ConfidenceBucket = "high"
	ConfidenceMedium ConfidenceBucket = "medium"
	ConfidenceLow    ConfidenceBucket = "low"
)

// PredictionFactor attributes part of a prediction to a named driver.
// Weights are fixed explainability constants, not fitted.
type PredictionFactor struct {
	Factor string  `json:"factor"`
	Impact float64 `json:"impact"`
	Weight float64 `json:"weight"`
}

// DailyPrediction is one projected day of spending
type DailyPrediction struct {
	Date            string             `json:"date"` // YYYY-MM-DD
	PredictedAmount float64            `json:"predicted_amount"`
	Confidence      float64            `json:"confidence"`
	Factors         []PredictionFactor `json:"factors"`
}

// SpendingPrediction is the spending-prediction report
type SpendingPrediction struct {
	UserID         string            `json:"user_id"`
	Predictions    []DailyPrediction `json:"predictions"`
	TotalPredicted float64           `json:"total_predicted"`
	AverageDaily   float64           `json:"average_daily"`
	Confidence     ConfidenceBucket  `json:"confidence"`
	Methodology    Algorithm         `json:"methodology"`
	RiskFactors    []string          `json:"risk_factors,omitempty"`
	HistoricalDays int               `json:"historical_days"`
	GeneratedAt    time.Time         `json:"generated_at"`
}

// AnomalyType classifies a detected anomaly
type AnomalyType string

const (
	AnomalyTypeAmount   AnomalyType = "unusual_amount"
	AnomalyTypeTiming   AnomalyType = "unusual_timing"
	AnomalyTypeCategory AnomalyType = "category_deviation"
	AnomalyTypeSpike    AnomalyType = "spending_spike"
)

// AnomalySeverity represents the severity of an anomaly
type AnomalySeverity string

const (
	SeverityLow      AnomalySeverity = "low"
	SeverityMedium   AnomalySeverity = "medium"
	SeverityHigh     AnomalySeverity = "high"
	SeverityCritical AnomalySeverity = "critical"
)

// AnomalyData carries the numeric evidence behind an anomaly
type AnomalyData struct {
	ExpectedValue       float64 `json:"expected_value"`
	ActualValue         float64 `json:"actual_value"`
	Deviation           float64 `json:"deviation"`
	DeviationPercentage float64 `json:"deviation_percentage"`
}

// Anomaly is a single detected deviation. Anomalies are computed fresh
// per call and never persisted; they are a report, not state.
type Anomaly struct {
	ID              string          `json:"id"`
	TransactionID   string          `json:"transaction_id,omitempty"`
	Type            AnomalyType     `json:"type"`
	Severity        AnomalySeverity `json:"severity"`
	Confidence      float64         `json:"confidence"`
	Data            AnomalyData     `json:"data"`
	Explanation     string          `json:"explanation"`
	Recommendations []string        `json:"recommendations,omitempty"`
	DetectedAt      time.Time       `json:"detected_at"`
}

// AnomalySummary aggregates an anomaly report
type AnomalySummary struct {
	TotalAnomalies    int                     `json:"total_anomalies"`
	BySeverity        map[AnomalySeverity]int `json:"by_severity"`
	AverageConfidence float64                 `json:"average_confidence"`
}

// AnomalyReport is the anomaly-detection report
type AnomalyReport struct {
	UserID    string         `json:"user_id"`
	Anomalies []Anomaly      `json:"anomalies"`
	Summary   AnomalySummary `json:"summary"`
}

// TrendDirection classifies the direction of a spending trend
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
	TrendVolatile   TrendDirection = "volatile"
)

// TrendStrength classifies how well the fit explains the series
type TrendStrength string

const (
	TrendWeak     TrendStrength = "weak"
	TrendModerate TrendStrength = "moderate"
	TrendStrong   TrendStrength = "strong"
)

// Trend is one fitted directional trend
type Trend struct {
	Direction  TrendDirection `json:"direction"`
	Strength   TrendStrength  `json:"strength"`
	Slope      float64        `json:"slope"`
	RSquared   float64        `json:"r_squared"`
	Confidence float64        `json:"confidence"`
}

// SeasonalPattern summarizes calendar seasonality of a series
type SeasonalPattern struct {
	HasSeasonality bool    `json:"has_seasonality"`
	PeakMonth      string  `json:"peak_month,omitempty"`
	LowMonth       string  `json:"low_month,omitempty"`
	Strength       float64 `json:"strength"`
}

// CategoryTrend is a per-category trend record
type CategoryTrend struct {
	CategoryID           string          `json:"category_id"`
	CategoryName         string          `json:"category_name"`
	Trend                Trend           `json:"trend"`
	Seasonal             SeasonalPattern `json:"seasonal"`
	NextPeriodPrediction float64         `json:"next_period_prediction"`
	TotalSpent           float64         `json:"total_spent"`
}

// PatternEntry is one row of a group-by pattern table
type PatternEntry struct {
	Label   string  `json:"label"`
	Average float64 `json:"average"`
	Total   float64 `json:"total"`
	Count   int     `json:"count"`
}

// TrendInsight is a rule-derived human-readable observation
type TrendInsight struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// TrendAnalysis is the trend-analysis report
type TrendAnalysis struct {
	UserID          string          `json:"user_id"`
	OverallTrend    Trend           `json:"overall_trend"`
	CategoryTrends  []CategoryTrend `json:"category_trends"`
	WeeklyPatterns  []PatternEntry  `json:"weekly_patterns"`
	MonthlyPatterns []PatternEntry  `json:"monthly_patterns"`
	Insights        []TrendInsight  `json:"insights,omitempty"`
	AnalyzedDays    int             `json:"analyzed_days"`
	GeneratedAt     time.Time       `json:"generated_at"`
}

// Scenario is one canned forecast scenario
type Scenario struct {
	Name              string  `json:"name"` // optimistic, realistic, pessimistic
	ProjectedIncome   float64 `json:"projected_income"`
	ProjectedExpenses float64 `json:"projected_expenses"`
	ProjectedNetWorth float64 `json:"projected_net_worth"`
	ProjectedSavings  float64 `json:"projected_savings"`
	Probability       float64 `json:"probability"`
}

// CategoryForecast scales one category's historical monthly average
type CategoryForecast struct {
	CategoryID      string  `json:"category_id"`
	CategoryName    string  `json:"category_name"`
	MonthlyAverage  float64 `json:"monthly_average"`
	ProjectedAmount float64 `json:"projected_amount"`
}

// Forecast is the financial-forecast report
type Forecast struct {
	UserID            string             `json:"user_id"`
	StartDate         time.Time          `json:"start_date"`
	EndDate           time.Time          `json:"end_date"`
	ProjectedIncome   float64            `json:"projected_income"`
	ProjectedExpenses float64            `json:"projected_expenses"`
	ProjectedNetWorth float64            `json:"projected_net_worth"`
	ProjectedSavings  float64            `json:"projected_savings"`
	Scenarios         []Scenario         `json:"scenarios"`
	CategoryForecasts []CategoryForecast `json:"category_forecasts,omitempty"`
	Confidence        float64            `json:"confidence"`
	RiskFactors       []string           `json:"risk_factors,omitempty"`
	GeneratedAt       time.Time          `json:"generated_at"`
}

// CashFlowScenario is one projected ending-balance scenario
type CashFlowScenario struct {
	Name          string  `json:"name"`
	EndingBalance float64 `json:"ending_balance"`
	Probability   float64 `json:"probability"`
}

// CashFlowMethodology reports how a cash-flow prediction was computed
type CashFlowMethodology struct {
	Algorithm    Algorithm `json:"algorithm"`
	Alpha        float64   `json:"alpha"`
	LookbackDays int       `json:"lookback_days"`
}

// CashFlowPrediction is the cash-flow forecast report
type CashFlowPrediction struct {
	UserID           string              `json:"user_id"`
	HorizonDays      int                 `json:"horizon_days"`
	DailyInflow      float64             `json:"daily_inflow"`
	DailyOutflow     float64             `json:"daily_outflow"`
	DailyNetFlow     float64             `json:"daily_net_flow"`
	ProjectedBalance float64             `json:"projected_balance"`
	Scenarios        []CashFlowScenario  `json:"scenarios"`
	Methodology      CashFlowMethodology `json:"methodology"`
	GeneratedAt      time.Time           `json:"generated_at"`
}

// InsightPriority ranks an insight in the aggregated feed
type InsightPriority string

const (
	PriorityCritical InsightPriority = "critical"
	PriorityHigh     InsightPriority = "high"
	PriorityMedium   InsightPriority = "medium"
	PriorityLow      InsightPriority = "low"
)

// Insight is one entry of the aggregated insight feed
type Insight struct {
	ID              string          `json:"id"`
	Priority        InsightPriority `json:"priority"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Recommendations []string        `json:"recommendations,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	ExpiresAt       time.Time       `json:"expires_at"`
}

// Risk is an anomaly- or forecast-derived risk entry
type Risk struct {
	Source      string `json:"source"` // anomaly, forecast
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// Opportunity is a savings or optimization opportunity
type Opportunity struct {
	Type            string  `json:"type"` // savings_potential, budget_optimization
	Description     string  `json:"description"`
	EstimatedAmount float64 `json:"estimated_amount"`
}

// InsightReport is the aggregated output of all four engines
type InsightReport struct {
	UserID        string        `json:"user_id"`
	Insights      []Insight     `json:"insights"`
	Trends        []Trend       `json:"trends,omitempty"`
	Risks         []Risk        `json:"risks,omitempty"`
	Opportunities []Opportunity `json:"opportunities,omitempty"`
	GeneratedAt   time.Time     `json:"generated_at"`
}

// ModelDescriptor records a trained-model registration. Training is a
// stub: the descriptor is stored, no fitting happens.
type ModelDescriptor struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ModelType ModelType `json:"model_type"`
	Algorithm Algorithm `json:"algorithm"`
	Status    string    `json:"status"`
	TrainedAt time.Time `json:"trained_at"`
}
