package scenario

import (
	"context"
	"errors"
	"fmt"

	"yqhp/bench-engine/internal/config"
	"yqhp/bench-engine/pkg/types"
)

// StressEngine 逐步加压直到触发拐点或达到上限用户数。
type StressEngine struct{}

func (StressEngine) Type() types.ScenarioType { return types.ScenarioStress }

func (StressEngine) Run(ctx context.Context, sc *config.ScenarioConfig, env *Env) (*types.ScenarioResult, error) {
	criteria := criteriaFor(sc)
	if !criteria.Enabled() {
		return nil, setupError(sc.Name, errors.New("stress scenario needs at least one breaking point criterion"))
	}
	run := phasedRun{
		phases:   phaseConfig(sc, sc.Users),
		steps:    defaultSteps(sc),
		criteria: criteria,
	}
	return runStandard(ctx, sc, env, run, func(res *types.ScenarioResult, out *phasedOutcome) {
		res.Metrics[types.MetricMaxUsers] = float64(maxSustainableUsers(out, sc.Users))
		bp := out.BreakingPoint
		if bp == nil {
			res.AddIssue(types.SeverityInfo, "breaking_point",
				fmt.Sprintf("no breaking point up to %d users", sc.Users))
			return
		}
		res.Metrics[types.MetricBreakingUsers] = float64(bp.UserCount)
		res.AddIssue(types.SeverityInfo, "breaking_point", fmt.Sprintf(
			"breaking point at %d users: %s %.2f exceeds %.2f",
			bp.UserCount, bp.TriggeringMetric, bp.ActualValue, bp.Threshold))
	})
}

// maxSustainableUsers 拐点用户数之下最大的 ramp 步用户数；未触发拐点时为目标用户数。
func maxSustainableUsers(out *phasedOutcome, target int) int {
	bp := out.BreakingPoint
	if bp == nil {
		return max(out.Report.PeakWorkers, target)
	}
	best := 0
	for _, s := range out.Report.RampUp {
		if s.Workers < bp.UserCount {
			best = max(best, s.Workers)
		}
	}
	return best
}
