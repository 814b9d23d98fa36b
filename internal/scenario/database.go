package scenario

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"yqhp/bench-engine/internal/config"
	"yqhp/bench-engine/internal/pool"
	"yqhp/bench-engine/internal/target"
	"yqhp/bench-engine/internal/worker"
	"yqhp/bench-engine/pkg/types"
)

// DatabaseEngine 通过有界连接池执行读写混合查询。
type DatabaseEngine struct{}

func (DatabaseEngine) Type() types.ScenarioType { return types.ScenarioDatabase }

func (DatabaseEngine) Run(ctx context.Context, sc *config.ScenarioConfig, env *Env) (*types.ScenarioResult, error) {
	p := sc.Database
	collector := env.collector()

	conns, err := pool.New[int](p.PoolSize,
		func(_ context.Context, id int) (int, error) { return id, nil },
		pool.WithUtilizationObserver[int](func(u float64) {
			collector.SetPoolUtilization(sc.Name, u)
		}),
	)
	if err != nil {
		return nil, setupError(sc.Name, fmt.Errorf("创建连接池失败: %w", err))
	}
	defer conns.Close()

	keys := newKeyGenerator(config.DistributionUniform, p.KeySpace, 0, 0, 0)
	steps := []worker.Step{
		{
			Name:          "read",
			Weight:        p.ReadRatio,
			NeedsResource: true,
			Build: func(rng *rand.Rand, _, _ int) target.Operation {
				return target.DBQuery{SQL: p.ReadQuery, Args: []any{keys(rng) + 1}}
			},
		},
		{
			Name:          "write",
			Weight:        1 - p.ReadRatio,
			NeedsResource: true,
			Build: func(rng *rand.Rand, _, _ int) target.Operation {
				return target.DBQuery{SQL: p.WriteQuery, Args: []any{keys(rng) + 1}, Write: true}
			},
		},
	}
	run := phasedRun{
		phases:         phaseConfig(sc, sc.Users),
		steps:          steps,
		gate:           worker.PoolGate(conns),
		acquireTimeout: p.AcquireTimeout,
		criteria:       criteriaFor(sc),
	}
	return runStandard(ctx, sc, env, run, func(res *types.ScenarioResult, _ *phasedOutcome) {
		st := conns.Stats()
		res.Metrics[types.MetricPoolUtilization] = st.PeakUtilization * 100
		res.Metrics[types.MetricPoolTimeouts] = float64(st.Timeouts)
		res.Metrics[types.MetricPoolWaitAvg] = float64(st.AverageWait()) / float64(time.Millisecond)
		if st.PeakUtilization >= 1 {
			res.AddIssue(types.SeverityInfo, "pool_saturation", fmt.Sprintf(
				"connection pool of %d was fully utilised, %d acquires timed out", st.Capacity, st.Timeouts))
		}
	})
}
