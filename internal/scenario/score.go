package scenario

import (
	"math"

	"yqhp/bench-engine/internal/config"
	"yqhp/bench-engine/pkg/types"
)

// 评分权重，缺失的项按剩余权重重新归一化
const (
	weightHitRatio     = 0.30
	weightResponseTime = 0.30
	weightThroughput   = 0.25
	weightErrorRate    = 0.15
)

// Score 根据期望值计算 0-100 的场景得分。
// 没有任何期望值时按错误率和稳定性打分。
func Score(m map[string]float64, exp config.ExpectedMetrics, stability *types.Stability) float64 {
	var total, weights float64
	add := func(weight, component float64) {
		total += weight * component
		weights += weight
	}

	if v, ok := m[types.MetricHitRatio]; ok && exp.HitRatio > 0 {
		add(weightHitRatio, ratioAtLeast(v, exp.HitRatio))
	}
	switch {
	case exp.AvgResponseTimeMs > 0:
		if v, ok := m[types.MetricAvgResponseTime]; ok {
			add(weightResponseTime, ratioAtMost(v, exp.AvgResponseTimeMs))
		}
	case exp.P95ResponseTimeMs > 0:
		if v, ok := m[types.MetricP95ResponseTime]; ok {
			add(weightResponseTime, ratioAtMost(v, exp.P95ResponseTimeMs))
		}
	}
	if v, ok := m[types.MetricThroughput]; ok && exp.ThroughputRPS > 0 {
		add(weightThroughput, ratioAtLeast(v, exp.ThroughputRPS))
	}
	if v, ok := m[types.MetricErrorRate]; ok && exp.ErrorRate > 0 {
		add(weightErrorRate, ratioAtMost(v, exp.ErrorRate))
	}

	if weights > 0 {
		return clampScore(total / weights * 100)
	}
	return fallbackScore(m, stability)
}

// fallbackScore 每 1% 错误率扣 10 分，不稳定时按稳定性得分折算。
func fallbackScore(m map[string]float64, stability *types.Stability) float64 {
	if m[types.MetricTotalRequests] == 0 {
		return 0
	}
	score := 100 - m[types.MetricErrorRate]*10
	if stability != nil && stability.Samples > 1 {
		score *= 0.7 + 0.3*stability.Score/100
	}
	return clampScore(score)
}

// ratioAtLeast 越大越好的指标：达到期望为 1。
func ratioAtLeast(actual, expected float64) float64 {
	if actual >= expected {
		return 1
	}
	return math.Max(0, actual/expected)
}

// ratioAtMost 越小越好的指标：不超过期望为 1。
func ratioAtMost(actual, expected float64) float64 {
	if actual <= expected {
		return 1
	}
	return expected / actual
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Round(math.Min(100, math.Max(0, v))*100) / 100
}
