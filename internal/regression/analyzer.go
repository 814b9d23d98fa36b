package regression

import (
	"math"
	"sort"

	"yqhp/bench-engine/internal/config"
	"yqhp/bench-engine/pkg/types"
)

// Direction 指标的好坏方向
type Direction int

const (
	// Neutral 仅记录，不参与回归判定
	Neutral Direction = iota
	LowerIsBetter
	HigherIsBetter
)

var directions = map[string]Direction{
	types.MetricAvgResponseTime: LowerIsBetter,
	types.MetricP50ResponseTime: LowerIsBetter,
	types.MetricP90ResponseTime: LowerIsBetter,
	types.MetricP95ResponseTime: LowerIsBetter,
	types.MetricP99ResponseTime: LowerIsBetter,
	types.MetricMaxResponseTime: LowerIsBetter,
	types.MetricErrorRate:       LowerIsBetter,
	types.MetricFailedRequests:  LowerIsBetter,
	types.MetricEvictions:       LowerIsBetter,
	types.MetricPoolTimeouts:    LowerIsBetter,
	types.MetricPoolWaitAvg:     LowerIsBetter,
	types.MetricHeapGrowthMB:    LowerIsBetter,
	types.MetricHeapSlopeMBMin:  LowerIsBetter,
	types.MetricHeapPeakMB:      LowerIsBetter,
	types.MetricGCCount:         LowerIsBetter,

	types.MetricThroughput:     HigherIsBetter,
	types.MetricAvailability:   HigherIsBetter,
	types.MetricHitRatio:       HigherIsBetter,
	types.MetricStabilityScore: HigherIsBetter,
	types.MetricBreakingUsers:  HigherIsBetter,
	types.MetricMaxUsers:       HigherIsBetter,
	types.MetricScalingEff:     HigherIsBetter,
	types.MetricPerformance:    HigherIsBetter,
}

// fractionMetrics 以 0–1 比例上报的指标，显著性下限按百分点换算。
var fractionMetrics = map[string]bool{
	types.MetricHitRatio:   true,
	types.MetricScalingEff: true,
}

// DirectionOf 返回指标方向，未知指标为 Neutral。
func DirectionOf(metric string) Direction {
	return directions[metric]
}

// Options 判定阈值，百分比单位。
type Options struct {
	DegradationThreshold float64
	ImprovementThreshold float64
	// MinSignificance 是绝对差值下限，低于它的变化视为噪声。
	// 0–1 比例指标按百分点计算，即下限为 MinSignificance/100
	MinSignificance float64
	TrendBand       float64
}

// OptionsFromConfig 从配置构造 Options。
func OptionsFromConfig(c config.RegressionConfig) Options {
	return Options{
		DegradationThreshold: c.DegradationThreshold,
		ImprovementThreshold: c.ImprovementThreshold,
		MinSignificance:      c.MinSignificance,
		TrendBand:            c.TrendBand,
	}
}

// Analyzer 回归分析器，无状态，可并发使用。
type Analyzer struct {
	opts Options
}

// NewAnalyzer 创建分析器，非正阈值回落到 15%。
func NewAnalyzer(opts Options) *Analyzer {
	if opts.DegradationThreshold <= 0 {
		opts.DegradationThreshold = 15
	}
	if opts.ImprovementThreshold <= 0 {
		opts.ImprovementThreshold = opts.DegradationThreshold
	}
	if opts.MinSignificance < 0 {
		opts.MinSignificance = 0
	}
	if opts.TrendBand < 0 {
		opts.TrendBand = 0
	}
	return &Analyzer{opts: opts}
}

// Analyze 对比 current 与 baseline。baseline 为 nil 时返回 no_baseline。
func (a *Analyzer) Analyze(current map[string]*types.ScenarioResult, baseline *Baseline) *types.RegressionAnalysis {
	analysis := &types.RegressionAnalysis{
		Regressions:  []types.MetricComparison{},
		Improvements: []types.MetricComparison{},
	}
	if baseline == nil {
		analysis.Status = types.RegressionNoBaseline
		return analysis
	}
	analysis.Status = types.RegressionCompared
	created := baseline.CreatedAt
	analysis.BaselineCreatedAt = &created

	names := make([]string, 0, len(current))
	for name := range current {
		names = append(names, name)
	}
	sort.Strings(names)

	var sum float64
	var directional int
	for _, name := range names {
		result := current[name]
		base, ok := baseline.Scenarios[name]
		if result == nil || !ok || !result.Success {
			continue
		}
		metrics := make([]string, 0, len(result.Metrics))
		for m := range result.Metrics {
			if _, ok := base.Metrics[m]; ok {
				metrics = append(metrics, m)
			}
		}
		sort.Strings(metrics)

		for _, m := range metrics {
			c := a.Compare(name, m, base.Metrics[m], result.Metrics[m])
			analysis.Comparisons = append(analysis.Comparisons, c)
			switch c.Status {
			case types.ComparisonRegression:
				analysis.Regressions = append(analysis.Regressions, c)
			case types.ComparisonImprovement:
				analysis.Improvements = append(analysis.Improvements, c)
			}
			if DirectionOf(m) != Neutral {
				sum += c.Degradation
				directional++
			}
		}
	}

	if directional > 0 {
		analysis.AverageChange = sum / float64(directional)
	}
	switch {
	case analysis.AverageChange > a.opts.TrendBand:
		analysis.Trend = types.TrendDegrading
	case analysis.AverageChange < -a.opts.TrendBand:
		analysis.Trend = types.TrendImproving
	default:
		analysis.Trend = types.TrendStable
	}
	return analysis
}

// Compare 比较单个指标。
func (a *Analyzer) Compare(scenario, metric string, baseline, current float64) types.MetricComparison {
	c := types.MetricComparison{
		Scenario:      scenario,
		Metric:        metric,
		Baseline:      baseline,
		Current:       current,
		PercentChange: PercentChange(baseline, current),
		Status:        types.ComparisonUnchanged,
	}
	switch DirectionOf(metric) {
	case LowerIsBetter:
		c.Degradation = c.PercentChange
	case HigherIsBetter:
		c.Degradation = -c.PercentChange
	default:
		return c
	}

	if math.Abs(current-baseline) < a.significanceFloor(metric) {
		return c
	}
	switch {
	case c.Degradation > a.opts.DegradationThreshold:
		c.Status = types.ComparisonRegression
	case -c.Degradation > a.opts.ImprovementThreshold:
		c.Status = types.ComparisonImprovement
	}
	return c
}

func (a *Analyzer) significanceFloor(metric string) float64 {
	if fractionMetrics[metric] {
		return a.opts.MinSignificance / 100
	}
	return a.opts.MinSignificance
}

// PercentChange 计算相对变化百分比。基线为 0 时按 ±100% 处理。
func PercentChange(baseline, current float64) float64 {
	if baseline == 0 {
		switch {
		case current > 0:
			return 100
		case current < 0:
			return -100
		default:
			return 0
		}
	}
	return (current - baseline) / math.Abs(baseline) * 100
}
