package scenario

import (
	"context"

	"yqhp/bench-engine/internal/config"
	"yqhp/bench-engine/internal/target"
	"yqhp/bench-engine/internal/worker"
	"yqhp/bench-engine/pkg/types"
)

// LoadEngine 在目标用户数下持续加压，考察稳态表现。
type LoadEngine struct{}

func (LoadEngine) Type() types.ScenarioType { return types.ScenarioLoad }

func (LoadEngine) Run(ctx context.Context, sc *config.ScenarioConfig, env *Env) (*types.ScenarioResult, error) {
	run := phasedRun{
		phases:   phaseConfig(sc, sc.Users),
		steps:    defaultSteps(sc),
		criteria: criteriaFor(sc),
	}
	return runStandard(ctx, sc, env, run, func(res *types.ScenarioResult, out *phasedOutcome) {
		if bp := out.BreakingPoint; bp != nil {
			res.AddIssue(types.SeverityWarning, "breaking_point",
				"degradation criterion "+bp.TriggeringMetric+" violated before reaching the target load")
			res.Metrics[types.MetricBreakingUsers] = float64(bp.UserCount)
		}
	})
}

// defaultSteps 通用目标的工作负载：HTTP 目标请求根路径，其余目标执行空操作。
func defaultSteps(sc *config.ScenarioConfig) []worker.Step {
	if sc.Target == config.TargetHTTP {
		return []worker.Step{{Name: "GET /", Weight: 1, Build: worker.Static(target.HTTPRequest{Method: "GET", Path: "/"})}}
	}
	return []worker.Step{{Name: "request", Weight: 1, Build: worker.Static(target.Noop{})}}
}
