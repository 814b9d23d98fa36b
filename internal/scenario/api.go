package scenario

import (
	"context"

	"yqhp/bench-engine/internal/config"
	"yqhp/bench-engine/internal/target"
	"yqhp/bench-engine/internal/worker"
	"yqhp/bench-engine/pkg/types"
)

// APIEngine 按权重（或顺序）访问一组 HTTP 接口，可限制请求速率。
type APIEngine struct{}

func (APIEngine) Type() types.ScenarioType { return types.ScenarioAPI }

func (APIEngine) Run(ctx context.Context, sc *config.ScenarioConfig, env *Env) (*types.ScenarioResult, error) {
	steps := endpointSteps(sc.API.Endpoints)
	if len(steps) == 0 {
		steps = defaultSteps(sc)
	}
	run := phasedRun{
		phases:     phaseConfig(sc, sc.Users),
		steps:      steps,
		sequential: sc.API.Sequential,
		criteria:   criteriaFor(sc),
	}
	return runStandard(ctx, sc, env, run, func(res *types.ScenarioResult, out *phasedOutcome) {
		if n := out.Summary.ErrorsByKind["assertion"]; n > 0 {
			res.AddIssue(types.SeverityWarning, "assertion", "response assertions failed for some requests")
		}
	})
}

func endpointSteps(endpoints []config.EndpointConfig) []worker.Step {
	steps := make([]worker.Step, 0, len(endpoints))
	for _, e := range endpoints {
		req := target.HTTPRequest{
			Method:       e.Method,
			Path:         e.Path,
			Headers:      e.Headers,
			ExpectStatus: e.ExpectStatus,
			JSONPath:     e.JSONPath,
		}
		if e.Body != "" {
			req.Body = []byte(e.Body)
		}
		steps = append(steps, worker.Step{Name: e.Name, Weight: e.Weight, Build: worker.Static(req)})
	}
	return steps
}
