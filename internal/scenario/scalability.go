package scenario

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"yqhp/bench-engine/internal/config"
	"yqhp/bench-engine/internal/metrics"
	"yqhp/bench-engine/pkg/types"
)

// ScalabilityEngine 依次在多个用户级别下运行，比较吞吐量随用户数的增长。
type ScalabilityEngine struct{}

func (ScalabilityEngine) Type() types.ScenarioType { return types.ScenarioScalability }

// LevelResult 一个用户级别的测量结果。
type LevelResult struct {
	Users      int
	Throughput float64
	AvgLatency float64
	ErrorRate  float64
	// Efficiency 相对第一个级别的线性扩展比例，1 表示线性
	Efficiency float64
}

func (ScalabilityEngine) Run(ctx context.Context, sc *config.ScenarioConfig, env *Env) (*types.ScenarioResult, error) {
	start := time.Now()
	tr := newTracker(ctx, env, sc.Name, sc.Type)
	tr.enter(StageSetup, "opening target")

	b, err := env.bind(ctx, sc)
	if err != nil {
		return nil, setupError(sc.Name, err)
	}
	defer b.Close()

	p := sc.Scalability
	steps := defaultSteps(sc)
	criteria := criteriaFor(sc)

	var (
		levels []LevelResult
		last   *phasedOutcome
		series []types.MetricSnapshot
	)
	for i, users := range p.Levels {
		if ctx.Err() != nil {
			break
		}
		tr.enter(StageLevels, fmt.Sprintf("level %d/%d: %d users", i+1, len(p.Levels), users))

		phases := phaseConfig(sc, users)
		phases.RampSteps = 1
		phases.SustainDuration = p.LevelDuration
		phases.RampDownSteps = 1
		out, err := runPhased(ctx, env, sc, b.tgt, tr, phasedRun{phases: phases, steps: steps, criteria: criteria})
		if err != nil {
			return nil, setupError(sc.Name, err)
		}
		last = out
		series = append(series, out.Report.TimeSeries()...)
		levels = append(levels, measureLevel(users, out))
		if out.Aborted != nil || out.BreakingPoint != nil {
			break
		}
	}

	tr.enter(StageAnalysis, "")
	res := newResult(sc, start)
	if last == nil {
		res.AddIssue(types.SeverityCritical, "aborted", fmt.Sprintf("no level completed: %v", ctx.Err()))
		return finalize(env, sc, res, tr), nil
	}
	applyOutcome(res, last)
	res.TimeSeries = series

	scalingEfficiency(levels)
	for _, l := range levels {
		res.Metrics["throughput_rps_at_"+strconv.Itoa(l.Users)] = l.Throughput
	}
	final := levels[len(levels)-1]
	res.Metrics[types.MetricScalingEff] = final.Efficiency
	res.Metrics[types.MetricMaxUsers] = float64(final.Users)

	if bp := last.BreakingPoint; bp != nil {
		res.Metrics[types.MetricBreakingUsers] = float64(bp.UserCount)
		res.AddIssue(types.SeverityWarning, "breaking_point", fmt.Sprintf(
			"level %d users violated %s, remaining levels skipped", final.Users, bp.TriggeringMetric))
	}
	if len(levels) > 1 && final.Efficiency < p.MinEfficiency {
		res.AddIssue(types.SeverityWarning, "scalability", fmt.Sprintf(
			"scaling efficiency %.2f at %d users is below %.2f", final.Efficiency, final.Users, p.MinEfficiency))
	}
	return finalize(env, sc, res, tr), nil
}

// measureLevel 优先使用持续阶段的快照均值，没有持续阶段时退回整体汇总。
func measureLevel(users int, out *phasedOutcome) LevelResult {
	l := LevelResult{Users: users}
	var rps, lat []float64
	var failures, count int64
	for _, s := range out.Report.Sustained {
		if s.IsEmpty() {
			continue
		}
		rps = append(rps, s.RPS)
		lat = append(lat, s.AvgLatency)
		failures += s.Failures
		count += s.Count
	}
	if len(rps) == 0 {
		l.Throughput = out.Summary.RPS
		l.AvgLatency = out.Summary.AvgLatency
		l.ErrorRate = out.Summary.ErrorRate
		return l
	}
	l.Throughput = metrics.Mean(rps)
	l.AvgLatency = metrics.Mean(lat)
	l.ErrorRate = float64(failures) / float64(count) * 100
	return l
}

// scalingEfficiency 计算每个级别相对第一个级别的扩展效率。
func scalingEfficiency(levels []LevelResult) {
	if len(levels) == 0 {
		return
	}
	base := levels[0]
	for i := range levels {
		l := &levels[i]
		if base.Throughput <= 0 || base.Users <= 0 || l.Users <= 0 {
			continue
		}
		l.Efficiency = (l.Throughput / base.Throughput) / (float64(l.Users) / float64(base.Users))
	}
}
