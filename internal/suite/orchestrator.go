// Package suite 按依赖顺序调度场景，汇总得分、回归分析、告警与建议，生成最终报告。
package suite

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"yqhp/bench-engine/internal/alert"
	"yqhp/bench-engine/internal/config"
	"yqhp/bench-engine/internal/events"
	"yqhp/bench-engine/internal/metrics"
	"yqhp/bench-engine/internal/regression"
	"yqhp/bench-engine/internal/scenario"
	"yqhp/bench-engine/pkg/types"
)

// Scenario statuses published on the event stream.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Option 配置 Orchestrator
type Option func(*Orchestrator)

// WithRegistry 替换场景引擎注册表。
func WithRegistry(r *scenario.Registry) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.registry = r
		}
	}
}

// WithTargets 替换目标工厂，默认按配置中的 targets 构造。
func WithTargets(f scenario.TargetFactory) Option {
	return func(o *Orchestrator) {
		if f != nil {
			o.targets = f
		}
	}
}

// WithEvents 设置进度事件流。
func WithEvents(s *events.Stream) Option {
	return func(o *Orchestrator) {
		o.events = s
	}
}

// WithCollector 设置 Prometheus 指标收集器。
func WithCollector(c *metrics.Collector) Option {
	return func(o *Orchestrator) {
		o.collector = c
	}
}

// WithStore 替换基线存储，默认使用 regression.baseline_path 指向的文件。
func WithStore(s regression.Store) Option {
	return func(o *Orchestrator) {
		o.store = s
	}
}

// WithForceBaselineUpdate 忽略更新策略，总是写入基线。
func WithForceBaselineUpdate() Option {
	return func(o *Orchestrator) {
		o.forceUpdate = true
	}
}

// WithLogger 设置日志器。
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// Orchestrator 套件编排器。持有配置的深拷贝，运行期间配置不可变。
type Orchestrator struct {
	cfg         *config.BenchmarkConfig
	registry    *scenario.Registry
	targets     scenario.TargetFactory
	events      *events.Stream
	collector   *metrics.Collector
	store       regression.Store
	forceUpdate bool
	logger      *zap.Logger

	alerts   *alert.Manager
	analyzer *regression.Analyzer

	mu     sync.RWMutex
	latest *types.SuiteResult
}

// New 校验配置并创建编排器。配置错误是致命的，此时不会运行任何场景。
func New(cfg *config.BenchmarkConfig, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		return nil, errors.New("suite: nil config")
	}
	clone, err := cfg.Clone()
	if err != nil {
		return nil, fmt.Errorf("复制配置失败: %w", err)
	}
	clone.ApplyDefaults()
	if err := config.NewValidator().Validate(clone); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:      clone,
		registry: scenario.DefaultRegistry(),
		targets:  scenario.ConfigTargets{Config: clone.Targets},
		logger:   zap.NewNop(),
		analyzer: regression.NewAnalyzer(regression.OptionsFromConfig(clone.Regression)),
	}
	if clone.Regression.BaselinePath != "" {
		o.store = regression.NewFileStore(clone.Regression.BaselinePath)
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.Named("suite")

	o.alerts = alert.NewManager(
		alert.RulesFromConfig(clone.Thresholds, clone.Alerts.Rules),
		alert.WithCooldown(clone.Alerts.Cooldown),
		alert.WithAckGrace(clone.Alerts.WarningAckGrace),
		alert.WithPublisher(o.events),
		alert.WithCounter(o.collector),
		alert.WithLogger(o.logger),
	)
	return o, nil
}

// Config 返回编排器使用的配置副本。
func (o *Orchestrator) Config() *config.BenchmarkConfig {
	return o.cfg
}

// Alerts 返回告警管理器。
func (o *Orchestrator) Alerts() *alert.Manager {
	return o.alerts
}

// Latest 返回最近一次完成的套件结果，尚未运行时为 nil。
func (o *Orchestrator) Latest() *types.SuiteResult {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.latest
}

// Run 执行整个套件，返回的结果总是非空。场景失败记录在结果中；
// ctx 在套件结束前被取消或超时时，同时返回 ctx 的错误。
func (o *Orchestrator) Run(ctx context.Context) (*types.SuiteResult, error) {
	if d := o.cfg.Scheduling.SuiteTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	runID := uuid.NewString()
	start := time.Now()
	log := o.logger.With(zap.String("run_id", runID), zap.String("suite", o.cfg.Suite.Name))

	baseline := o.loadBaseline(log)
	plan := ResolveOrder(o.cfg.Scenarios)
	if len(plan.Unresolved) > 0 {
		log.Warn("circular dependencies, falling back to declared order", zap.Strings("scenarios", plan.Unresolved))
	}
	log.Info("suite started",
		zap.String("mode", o.cfg.Scheduling.Mode),
		zap.Strings("order", plan.Order))

	byName := make(map[string]config.ScenarioConfig, len(plan.Order))
	for _, sc := range o.cfg.EnabledScenarios() {
		byName[sc.Name] = sc
		_ = o.events.Scenario(ctx, sc.Name, types.ScenarioStatus{Status: StatusPending})
	}

	var results map[string]*types.ScenarioResult
	if o.cfg.Scheduling.Mode == config.ModeParallel {
		results = o.runParallel(ctx, plan, byName)
	} else {
		results = o.runSequential(ctx, plan, byName)
	}

	result := &types.SuiteResult{
		SuiteInfo: types.SuiteInfo{
			RunID:       runID,
			Name:        o.cfg.Suite.Name,
			Version:     o.cfg.Suite.Version,
			Environment: o.cfg.Suite.Environment,
			Mode:        o.cfg.Scheduling.Mode,
			Start:       start,
			Order:       plan.Order,
		},
		TestResults: results,
	}
	result.OverallResults = summarize(results)
	result.PerformanceScore = ComputeScore(results)
	result.RegressionAnalysis = o.analyzer.Analyze(results, baseline)

	// 运行期告警之外，再用每个场景的最终指标评估一次
	for _, name := range plan.Order {
		if r := results[name]; r != nil && r.Metrics[types.MetricTotalRequests] > 0 {
			o.alerts.CheckThresholds(ctx, name, r.Metrics)
		}
	}
	result.Alerts = o.alerts.Alerts()
	result.Recommendations = Recommend(result, o.cfg)

	end := time.Now()
	result.SuiteInfo.End = end
	result.SuiteInfo.Duration = end.Sub(start)

	o.updateBaseline(log, baseline, result)

	o.mu.Lock()
	o.latest = result
	o.mu.Unlock()

	log.Info("suite finished",
		zap.Bool("success", result.OverallResults.Success),
		zap.Float64("score", result.PerformanceScore.Overall),
		zap.String("grade", string(result.PerformanceScore.Grade)),
		zap.Int("regressions", len(result.RegressionAnalysis.Regressions)),
		zap.Duration("duration", result.SuiteInfo.Duration))
	return result, ctx.Err()
}

func (o *Orchestrator) runSequential(ctx context.Context, plan Plan, byName map[string]config.ScenarioConfig) map[string]*types.ScenarioResult {
	results := make(map[string]*types.ScenarioResult, len(plan.Order))
	for _, name := range plan.Order {
		results[name] = o.runScenario(ctx, byName[name])
	}
	return results
}

// runParallel 按计划顺序启动场景，每个场景先等待其前置场景结束。
// 单个场景失败不会取消其他场景。
func (o *Orchestrator) runParallel(ctx context.Context, plan Plan, byName map[string]config.ScenarioConfig) map[string]*types.ScenarioResult {
	done := make(map[string]chan struct{}, len(plan.Order))
	for _, name := range plan.Order {
		done[name] = make(chan struct{})
	}

	var (
		mu      sync.Mutex
		results = make(map[string]*types.ScenarioResult, len(plan.Order))
	)
	var g errgroup.Group
	if n := o.cfg.Scheduling.MaxParallel; n > 0 {
		g.SetLimit(n)
	}
	for _, name := range plan.Order {
		sc := byName[name]
		wait := plan.Wait[name]
		g.Go(func() error {
			defer close(done[sc.Name])
			for _, dep := range wait {
				<-done[dep]
			}
			r := o.runScenario(ctx, sc)
			mu.Lock()
			results[sc.Name] = r
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// runScenario 运行单个场景，任何错误或 panic 都转换为失败结果。
func (o *Orchestrator) runScenario(ctx context.Context, sc config.ScenarioConfig) (res *types.ScenarioResult) {
	start := time.Now()
	log := o.logger.With(zap.String("scenario", sc.Name), zap.String("type", string(sc.Type)))

	defer func() {
		if r := recover(); r != nil {
			log.Error("scenario panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			res = types.NewFailedResult(sc.Name, sc.Type, start, "panic", fmt.Errorf("panic: %v", r))
		}
		o.publishOutcome(ctx, res)
	}()

	engine, err := o.registry.Get(sc.Type)
	if err != nil {
		return types.NewFailedResult(sc.Name, sc.Type, start, "engine", err)
	}
	if err := ctx.Err(); err != nil {
		return types.NewFailedResult(sc.Name, sc.Type, start, "canceled", err)
	}

	timeout := sc.Timeout
	if timeout <= 0 {
		timeout = o.cfg.Scheduling.ScenarioTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	_ = o.events.Scenario(ctx, sc.Name, types.ScenarioStatus{Status: StatusRunning})
	log.Info("scenario started", zap.Int("users", sc.Users))

	env := &scenario.Env{
		Targets:   o.targets,
		Alerts:    o.alerts,
		Events:    o.events,
		Collector: o.collector,
		Logger:    o.logger,
	}
	res, err = engine.Run(ctx, &sc, env)
	if err != nil {
		category := "execution"
		var setup *scenario.SetupError
		if errors.As(err, &setup) {
			category = "setup"
		}
		log.Error("scenario failed", zap.Error(err))
		return types.NewFailedResult(sc.Name, sc.Type, start, category, err)
	}
	if res == nil {
		return types.NewFailedResult(sc.Name, sc.Type, start, "execution", errors.New("engine returned no result"))
	}
	return res
}

func (o *Orchestrator) publishOutcome(ctx context.Context, res *types.ScenarioResult) {
	if res == nil {
		return
	}
	status := types.ScenarioStatus{Status: StatusCompleted, Score: res.PerformanceScore}
	if !res.Success {
		status.Status = StatusFailed
		for _, issue := range res.Issues {
			if issue.Severity == types.SeverityCritical {
				status.Error = issue.Message
				break
			}
		}
	}
	// 场景超时后 ctx 可能已结束，状态事件仍需送达
	_ = o.events.Scenario(context.WithoutCancel(ctx), res.Scenario, status)
}

func (o *Orchestrator) loadBaseline(log *zap.Logger) *regression.Baseline {
	if o.store == nil {
		return nil
	}
	b, err := o.store.Load()
	switch {
	case errors.Is(err, regression.ErrNoBaseline):
		log.Info("no baseline found, regression analysis skipped")
		return nil
	case err != nil:
		log.Warn("baseline unreadable, regression analysis skipped", zap.Error(err))
		return nil
	}
	return b
}

func (o *Orchestrator) updateBaseline(log *zap.Logger, previous *regression.Baseline, result *types.SuiteResult) {
	if o.store == nil {
		return
	}
	if !o.forceUpdate && !regression.ShouldUpdate(o.cfg.Regression.UpdatePolicy, result) {
		return
	}
	next := previous.Merge(regression.NewBaseline(result))
	if err := o.store.Save(next); err != nil {
		log.Error("baseline update failed", zap.Error(err))
		return
	}
	log.Info("baseline updated", zap.Int("scenarios", len(next.Scenarios)))
}

func summarize(results map[string]*types.ScenarioResult) types.OverallResults {
	o := types.OverallResults{Success: true, ScenariosRun: len(results)}
	for _, r := range results {
		if r.Success {
			o.ScenariosPassed++
		} else {
			o.ScenariosFailed++
			o.Success = false
		}
		if r.Summary != nil {
			o.TotalRequests += r.Summary.Count
			o.FailedRequests += r.Summary.Failures
		}
		for _, issue := range r.Issues {
			if issue.Severity == types.SeverityCritical {
				o.CriticalIssues++
			}
		}
	}
	if o.TotalRequests > 0 {
		o.ErrorRate = round2(float64(o.FailedRequests) / float64(o.TotalRequests) * 100)
	}
	return o
}
