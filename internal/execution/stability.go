package execution

import (
	"math"

	"yqhp/bench-engine/internal/metrics"
	"yqhp/bench-engine/pkg/types"
)

const (
	// DefaultLatencyCVThreshold 平均延迟变异系数阈值
	DefaultLatencyCVThreshold = 0.3
	// DefaultThroughputCVThreshold 吞吐量变异系数阈值
	DefaultThroughputCVThreshold = 0.2
)

// AnalyzeStability 根据持续阶段的快照计算稳定性。
// 两个变异系数都低于阈值时视为稳定；空快照不参与计算。
// 得分中延迟和吞吐量各占 50 分，变异系数达到阈值两倍时该项为 0。
func AnalyzeStability(snapshots []types.MetricSnapshot, latencyThreshold, throughputThreshold float64) *types.Stability {
	if latencyThreshold <= 0 {
		latencyThreshold = DefaultLatencyCVThreshold
	}
	if throughputThreshold <= 0 {
		throughputThreshold = DefaultThroughputCVThreshold
	}

	latencies := make([]float64, 0, len(snapshots))
	throughputs := make([]float64, 0, len(snapshots))
	for _, s := range snapshots {
		if s.IsEmpty() {
			continue
		}
		latencies = append(latencies, s.AvgLatency)
		throughputs = append(throughputs, s.RPS)
	}

	st := &types.Stability{Samples: len(latencies)}
	if st.Samples == 0 {
		return st
	}
	st.LatencyCV = metrics.CoefficientOfVariation(latencies)
	st.ThroughputCV = metrics.CoefficientOfVariation(throughputs)
	st.LatencyStable = st.LatencyCV < latencyThreshold
	st.ThroughputStable = st.ThroughputCV < throughputThreshold
	st.Stable = st.LatencyStable && st.ThroughputStable
	st.Score = component(st.LatencyCV, latencyThreshold) + component(st.ThroughputCV, throughputThreshold)
	return st
}

func component(cv, threshold float64) float64 {
	return 50 * math.Max(0, 1-cv/(2*threshold))
}
