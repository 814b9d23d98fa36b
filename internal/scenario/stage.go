package scenario

import (
	"context"
	"slices"
	"sync"
	"time"

	"yqhp/bench-engine/internal/execution"
	"yqhp/bench-engine/pkg/types"
)

// Stage 场景进度阶段，封闭枚举。无法识别的名称映射为 StageUnknown。
type Stage int

const (
	StageUnknown Stage = iota
	StageSetup
	StageWarmup
	StageRampUp
	StageSustain
	StageRampDown
	StageLevels
	StageAnalysis
	StageComplete
)

var stageNames = [...]string{
	StageUnknown:  "unknown",
	StageSetup:    "setup",
	StageWarmup:   "warmup",
	StageRampUp:   "ramp_up",
	StageSustain:  "sustain",
	StageRampDown: "ramp_down",
	StageLevels:   "levels",
	StageAnalysis: "analysis",
	StageComplete: "complete",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return stageNames[StageUnknown]
	}
	return stageNames[s]
}

// ParseStage 解析阶段名称。
func ParseStage(name string) Stage {
	for i, n := range stageNames {
		if n == name {
			return Stage(i)
		}
	}
	return StageUnknown
}

// StageForPhase 将控制器阶段映射为场景阶段。
func StageForPhase(p execution.Phase) Stage {
	switch p {
	case execution.PhaseRampingUp:
		return StageRampUp
	case execution.PhaseSustained:
		return StageSustain
	case execution.PhaseRampingDown:
		return StageRampDown
	case execution.PhaseCompleted:
		return StageAnalysis
	default:
		return StageUnknown
	}
}

// StagesFor 返回场景类型依次经过的阶段。
func StagesFor(t types.ScenarioType) []Stage {
	switch t {
	case types.ScenarioCache:
		return []Stage{StageSetup, StageWarmup, StageRampUp, StageSustain, StageRampDown, StageAnalysis, StageComplete}
	case types.ScenarioScalability:
		return []Stage{StageSetup, StageLevels, StageAnalysis, StageComplete}
	default:
		return []Stage{StageSetup, StageRampUp, StageSustain, StageRampDown, StageAnalysis, StageComplete}
	}
}

// Progress 返回阶段在场景中的完成百分比，不属于该场景的阶段为 0。
func Progress(t types.ScenarioType, s Stage) float64 {
	stages := StagesFor(t)
	idx := slices.Index(stages, s)
	if idx < 0 || len(stages) < 2 {
		return 0
	}
	return float64(idx) / float64(len(stages)-1) * 100
}

// tracker 记录阶段耗时并推送阶段事件。
type tracker struct {
	env      *Env
	ctx      context.Context
	scenario string
	typ      types.ScenarioType

	mu      sync.Mutex
	current Stage
	timings []types.StageTiming
}

func newTracker(ctx context.Context, env *Env, scenario string, typ types.ScenarioType) *tracker {
	return &tracker{env: env, ctx: ctx, scenario: scenario, typ: typ, current: StageUnknown}
}

// enter 结束当前阶段并进入 s，同一阶段重复进入只更新消息。
func (t *tracker) enter(s Stage, message string) {
	now := time.Now()
	t.mu.Lock()
	if s != t.current || len(t.timings) == 0 {
		if n := len(t.timings); n > 0 {
			t.timings[n-1].End = now
		}
		t.timings = append(t.timings, types.StageTiming{Stage: s.String(), Start: now})
		t.current = s
	}
	t.mu.Unlock()

	if t.env != nil {
		_ = t.env.Events.Stage(t.ctx, t.scenario, types.StageProgress{
			Stage:   s.String(),
			Percent: Progress(t.typ, s),
			Message: message,
		})
	}
}

func (t *tracker) finish() []types.StageTiming {
	t.enter(StageComplete, "")
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.timings)
	t.timings[n-1].End = t.timings[n-1].Start
	return slices.Clone(t.timings)
}
