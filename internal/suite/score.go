package suite

import (
	"math"

	"yqhp/bench-engine/pkg/types"
)

// CategoryWeights 各场景类型在总分中的权重
var CategoryWeights = map[types.ScenarioType]float64{
	types.ScenarioLoad:        25,
	types.ScenarioStress:      20,
	types.ScenarioMemory:      15,
	types.ScenarioDatabase:    15,
	types.ScenarioCache:       10,
	types.ScenarioScalability: 10,
	types.ScenarioAPI:         5,
}

// ComputeScore 按类型求平均分，再按权重加权。只有出现的类型参与归一化。
func ComputeScore(results map[string]*types.ScenarioResult) types.PerformanceScore {
	sums := make(map[types.ScenarioType]float64)
	counts := make(map[types.ScenarioType]int)
	for _, r := range results {
		if r == nil {
			continue
		}
		sums[r.Type] += r.PerformanceScore
		counts[r.Type]++
	}

	score := types.PerformanceScore{
		Categories: make(map[string]float64, len(counts)),
		Weights:    make(map[string]float64, len(counts)),
	}
	var total, weights float64
	for typ, n := range counts {
		avg := sums[typ] / float64(n)
		w := CategoryWeights[typ]
		score.Categories[string(typ)] = round2(avg)
		score.Weights[string(typ)] = w
		total += w * avg
		weights += w
	}
	if weights > 0 {
		score.Overall = round2(total / weights)
	}
	score.Grade = types.GradeFor(score.Overall)
	return score
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
