package scenario

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"yqhp/bench-engine/internal/config"
	"yqhp/bench-engine/internal/execution"
	"yqhp/bench-engine/internal/metrics"
	"yqhp/bench-engine/internal/target"
	"yqhp/bench-engine/internal/worker"
	"yqhp/bench-engine/pkg/types"
)

// phasedRun 一次 ramp-up / sustain / ramp-down 运行的参数。
type phasedRun struct {
	phases         execution.Config
	steps          []worker.Step
	sequential     bool
	gate           worker.Gate
	acquireTimeout time.Duration
	criteria       execution.Criteria
	// trackPhases 为 false 时阶段切换不推送阶段事件
	trackPhases bool
	observers   []execution.SnapshotObserver
}

// phasedOutcome 运行结束后的记录。
type phasedOutcome struct {
	Report        *execution.Report
	Summary       types.RunSummary
	BreakingPoint *types.BreakingPoint
	// Aborted 非空表示运行被 ctx 中断
	Aborted error
}

// phaseConfig 从场景配置构造阶段控制器配置。
func phaseConfig(sc *config.ScenarioConfig, users int) execution.Config {
	return execution.Config{
		TargetWorkers:        users,
		RampSteps:            sc.RampSteps,
		StepDuration:         sc.StepDuration,
		SustainDuration:      sc.SustainDuration,
		SampleInterval:       sc.SampleInterval,
		RampDownSteps:        sc.RampDownSteps,
		RampDownStepDuration: sc.RampDownStepDuration,
	}
}

func criteriaFor(sc *config.ScenarioConfig) execution.Criteria {
	bp := sc.BreakingPoint
	return execution.Criteria{
		MaxResponseTimeMs:      bp.MaxResponseTimeMs,
		ResponseTimeMetric:     bp.ResponseTimeMetric,
		MaxErrorRate:           bp.MaxErrorRate,
		MinSuccessfulRequests:  bp.MinSuccessfulRequests,
		MaxConsecutiveFailures: bp.MaxConsecutiveFailures,
	}
}

// runPhased 组装聚合器、worker 池、阶段控制器和拐点检测器并运行到结束。
// 返回的错误只表示组件无法创建。
func runPhased(ctx context.Context, env *Env, sc *config.ScenarioConfig, tgt target.Target, tr *tracker, run phasedRun) (*phasedOutcome, error) {
	log := env.logger(sc.Name)
	collector := env.collector()

	var workers *worker.Pool
	agg := metrics.NewAggregator(
		metrics.WithObserver(collector.ForScenario(sc.Name)),
		metrics.WithWorkerGauge(func() int {
			if workers == nil {
				return 0
			}
			return workers.Active()
		}),
	)

	var limiter *rate.Limiter
	if sc.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(sc.RateLimit), 1)
	}

	wp, err := worker.New(ctx, worker.Config{
		Scenario:         sc.Name,
		Target:           tgt,
		Steps:            run.steps,
		Sequential:       run.sequential,
		ThinkTime:        sc.ThinkTime,
		ThinkJitter:      sc.ThinkJitter,
		OperationTimeout: sc.OperationTimeout,
		AcquireTimeout:   run.acquireTimeout,
		Gate:             run.gate,
		Limiter:          limiter,
		Recorder:         agg,
		Seed:             sc.Seed,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 worker 池失败: %w", err)
	}
	workers = wp

	var ctrl *execution.Controller
	detector := execution.NewDetector(run.criteria, func(reason string) {
		log.Warn("breaking point reached", zap.String("reason", reason))
		ctrl.Trip(reason)
	})

	live := execution.SnapshotFunc(func(phase execution.Phase, _ int, snap types.MetricSnapshot) {
		_ = env.Events.Metrics(ctx, sc.Name, snap)
		collector.ObserveSnapshot(sc.Name, snap)
		if phase == execution.PhaseSustained && !snap.IsEmpty() && env.Alerts != nil {
			env.Alerts.CheckThresholds(ctx, sc.Name, snap.Values())
		}
	})

	opts := []execution.Option{
		execution.WithObserver(live),
		execution.WithLogger(log.Named("phase")),
	}
	if run.criteria.Enabled() {
		opts = append(opts, execution.WithObserver(detector))
	}
	for _, o := range run.observers {
		opts = append(opts, execution.WithObserver(o))
	}
	if run.trackPhases && tr != nil {
		opts = append(opts, execution.WithPhaseListener(func(_, to execution.Phase) {
			if s := StageForPhase(to); s == StageRampUp || s == StageSustain || s == StageRampDown {
				tr.enter(s, to.String())
			}
		}))
	}

	ctrl, err = execution.NewController(run.phases, wp, agg, opts...)
	if err != nil {
		return nil, fmt.Errorf("创建阶段控制器失败: %w", err)
	}

	report, runErr := ctrl.Run(ctx)
	if report == nil {
		return nil, runErr
	}
	collector.SetActiveWorkers(sc.Name, 0)

	out := &phasedOutcome{
		Report:        report,
		Summary:       agg.Summary(),
		BreakingPoint: detector.BreakingPoint(),
		Aborted:       runErr,
	}
	log.Debug("phased run finished",
		zap.Int64("samples", out.Summary.Count),
		zap.Int("peak_workers", report.PeakWorkers),
		zap.Bool("tripped", report.Tripped))
	return out, nil
}

func (e *Env) collector() *metrics.Collector {
	if e == nil {
		return nil
	}
	return e.Collector
}

func newResult(sc *config.ScenarioConfig, start time.Time) *types.ScenarioResult {
	return &types.ScenarioResult{
		Scenario: sc.Name,
		Type:     sc.Type,
		Start:    start,
		Metrics:  make(map[string]float64),
	}
}

// applyOutcome 将运行记录写入结果的指标和问题列表。
func applyOutcome(res *types.ScenarioResult, out *phasedOutcome) {
	sum := out.Summary
	res.Summary = &sum
	res.TimeSeries = out.Report.TimeSeries()
	res.Stability = out.Report.Stability
	res.BreakingPoint = out.BreakingPoint

	m := res.Metrics
	m[types.MetricTotalRequests] = float64(sum.Count)
	m[types.MetricFailedRequests] = float64(sum.Failures)
	m[types.MetricAvgResponseTime] = sum.AvgLatency
	m[types.MetricP50ResponseTime] = sum.P50
	m[types.MetricP90ResponseTime] = sum.P90
	m[types.MetricP95ResponseTime] = sum.P95
	m[types.MetricP99ResponseTime] = sum.P99
	m[types.MetricMaxResponseTime] = sum.MaxLatency
	m[types.MetricThroughput] = sum.RPS
	m[types.MetricErrorRate] = sum.ErrorRate
	m[types.MetricAvailability] = 100 - sum.ErrorRate
	m[types.MetricActiveWorkers] = float64(out.Report.PeakWorkers)
	if res.Stability != nil && res.Stability.Samples > 0 {
		m[types.MetricStabilityScore] = res.Stability.Score
	}

	if sum.Count == 0 {
		res.AddIssue(types.SeverityCritical, "no_samples", "scenario produced no samples")
	}
	if out.Aborted != nil {
		res.AddIssue(types.SeverityCritical, "aborted", fmt.Sprintf("run interrupted: %v", out.Aborted))
	}
	if st := res.Stability; st != nil && st.Samples > 1 && !st.Stable {
		res.AddIssue(types.SeverityWarning, "stability", fmt.Sprintf(
			"sustained phase unstable: latency cv %.2f, throughput cv %.2f", st.LatencyCV, st.ThroughputCV))
	}
	if kinds := sum.ErrorsByKind; kinds["resource_timeout"] > 0 {
		res.AddIssue(types.SeverityWarning, "resource_exhaustion", fmt.Sprintf(
			"%d operations timed out waiting for a pooled resource", kinds["resource_timeout"]))
	}
}

// checkExpected 对比期望值，未达标的指标记为警告。
func checkExpected(res *types.ScenarioResult, exp config.ExpectedMetrics) {
	m := res.Metrics
	above := func(metric string, limit float64) {
		if v, ok := m[metric]; ok && limit > 0 && v > limit {
			res.AddIssue(types.SeverityWarning, "expectation", fmt.Sprintf("%s %.2f exceeds expected %.2f", metric, v, limit))
		}
	}
	below := func(metric string, limit float64) {
		if v, ok := m[metric]; ok && limit > 0 && v < limit {
			res.AddIssue(types.SeverityWarning, "expectation", fmt.Sprintf("%s %.2f below expected %.2f", metric, v, limit))
		}
	}
	above(types.MetricAvgResponseTime, exp.AvgResponseTimeMs)
	above(types.MetricP95ResponseTime, exp.P95ResponseTimeMs)
	above(types.MetricErrorRate, exp.ErrorRate)
	below(types.MetricThroughput, exp.ThroughputRPS)
	below(types.MetricHitRatio, exp.HitRatio)
}

// finalize 计算得分、成功标记和阶段耗时。
func finalize(env *Env, sc *config.ScenarioConfig, res *types.ScenarioResult, tr *tracker) *types.ScenarioResult {
	checkExpected(res, sc.Expected)
	res.PerformanceScore = Score(res.Metrics, sc.Expected, res.Stability)
	res.Metrics[types.MetricPerformance] = res.PerformanceScore
	res.Success = !res.HasCritical()
	res.Stages = tr.finish()
	res.End = time.Now()
	res.Duration = res.End.Sub(res.Start)
	env.collector().SetScenarioScore(sc.Name, sc.Type, res.PerformanceScore)
	env.logger(sc.Name).Info("scenario finished",
		zap.Bool("success", res.Success),
		zap.Float64("score", res.PerformanceScore),
		zap.Int("issues", len(res.Issues)))
	return res
}

// runStandard 是 load、stress 和 api 场景共用的执行流程。
func runStandard(ctx context.Context, sc *config.ScenarioConfig, env *Env, run phasedRun, after func(*types.ScenarioResult, *phasedOutcome)) (*types.ScenarioResult, error) {
	start := time.Now()
	tr := newTracker(ctx, env, sc.Name, sc.Type)
	tr.enter(StageSetup, "opening target")

	b, err := env.bind(ctx, sc)
	if err != nil {
		return nil, setupError(sc.Name, err)
	}
	defer b.Close()

	run.trackPhases = true
	out, err := runPhased(ctx, env, sc, b.tgt, tr, run)
	if err != nil {
		return nil, setupError(sc.Name, err)
	}

	tr.enter(StageAnalysis, "")
	res := newResult(sc, start)
	applyOutcome(res, out)
	if after != nil {
		after(res, out)
	}
	return finalize(env, sc, res, tr), nil
}
