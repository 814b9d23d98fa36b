package types

import "time"

// RegressionStatus tells whether a comparison against a baseline took place.
type RegressionStatus string

const (
	RegressionNoBaseline RegressionStatus = "no_baseline"
	RegressionCompared   RegressionStatus = "compared"
)

// Trend is the overall direction of change against the baseline.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDegrading Trend = "degrading"
)

// ComparisonStatus classifies a single metric comparison.
type ComparisonStatus string

const (
	ComparisonRegression  ComparisonStatus = "regression"
	ComparisonImprovement ComparisonStatus = "improvement"
	ComparisonUnchanged   ComparisonStatus = "unchanged"
)

// MetricComparison compares one metric of one scenario with its baseline value.
type MetricComparison struct {
	Scenario      string  `json:"scenario"`
	Metric        string  `json:"metric"`
	Baseline      float64 `json:"baseline"`
	Current       float64 `json:"current"`
	PercentChange float64 `json:"percentChange"`
	// Degradation is the percent change signed so that positive means worse.
	Degradation float64          `json:"degradation"`
	Status      ComparisonStatus `json:"status"`
}

// RegressionAnalysis is the outcome of comparing a run against its baseline.
type RegressionAnalysis struct {
	Status            RegressionStatus   `json:"status"`
	Trend             Trend              `json:"trend,omitempty"`
	// AverageChange is the mean degradation over directional metrics, positive means worse.
	AverageChange     float64            `json:"averageChange"`
	BaselineCreatedAt *time.Time         `json:"baselineCreatedAt,omitempty"`
	Regressions       []MetricComparison `json:"regressions"`
	Improvements      []MetricComparison `json:"improvements"`
	Comparisons       []MetricComparison `json:"comparisons,omitempty"`
}

// HasRegressions reports whether any regression was detected.
func (a *RegressionAnalysis) HasRegressions() bool {
	return a != nil && len(a.Regressions) > 0
}
