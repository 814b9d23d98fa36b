// Package regression 将一次运行的指标与历史基线对比，识别回归与改进。
package regression

import (
	"maps"
	"time"

	"yqhp/bench-engine/pkg/types"
)

// BaselineVersion 当前基线文件格式版本
const BaselineVersion = 1

// Baseline 一次运行的指标快照，按场景名索引。
type Baseline struct {
	Version     int                         `json:"version"`
	CreatedAt   time.Time                   `json:"createdAt"`
	Suite       string                      `json:"suite"`
	RunID       string                      `json:"runId"`
	Environment string                      `json:"environment,omitempty"`
	Scenarios   map[string]ScenarioBaseline `json:"scenarios"`
}

// ScenarioBaseline 单个场景的基线指标
type ScenarioBaseline struct {
	Type    types.ScenarioType `json:"type"`
	Metrics map[string]float64 `json:"metrics"`
}

// NewBaseline 由套件结果生成基线，失败的场景不进入基线。
func NewBaseline(result *types.SuiteResult) *Baseline {
	b := &Baseline{
		Version:     BaselineVersion,
		CreatedAt:   result.SuiteInfo.End,
		Suite:       result.SuiteInfo.Name,
		RunID:       result.SuiteInfo.RunID,
		Environment: result.SuiteInfo.Environment,
		Scenarios:   make(map[string]ScenarioBaseline, len(result.TestResults)),
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	for name, r := range result.TestResults {
		if r == nil || !r.Success {
			continue
		}
		b.Scenarios[name] = ScenarioBaseline{Type: r.Type, Metrics: maps.Clone(r.Metrics)}
	}
	return b
}

// Merge 用 next 中的场景覆盖 b，保留 next 未运行的场景。
func (b *Baseline) Merge(next *Baseline) *Baseline {
	if b == nil {
		return next
	}
	merged := *next
	merged.Scenarios = maps.Clone(b.Scenarios)
	if merged.Scenarios == nil {
		merged.Scenarios = make(map[string]ScenarioBaseline, len(next.Scenarios))
	}
	maps.Copy(merged.Scenarios, next.Scenarios)
	return &merged
}
