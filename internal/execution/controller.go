package execution

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"yqhp/bench-engine/pkg/types"
)

const (
	// DefaultRampSteps 默认 ramp 步数
	DefaultRampSteps = 10
	// DefaultSampleInterval 持续阶段默认采样间隔
	DefaultSampleInterval = 5 * time.Second
)

// WorkerGroup 是控制器驱动的 worker 集合。
type WorkerGroup interface {
	Spawn(n int) int
	Stop(n int) int
	StopAll()
	Active() int
}

// Snapshotter 提供窗口指标快照。
type Snapshotter interface {
	Snapshot(window time.Duration) types.MetricSnapshot
}

// SnapshotObserver 在每次采样后被调用。
type SnapshotObserver interface {
	OnSnapshot(phase Phase, step int, snap types.MetricSnapshot)
}

// SnapshotFunc 将函数适配为 SnapshotObserver。
type SnapshotFunc func(phase Phase, step int, snap types.MetricSnapshot)

// OnSnapshot 调用函数本身。
func (f SnapshotFunc) OnSnapshot(phase Phase, step int, snap types.MetricSnapshot) {
	f(phase, step, snap)
}

// Config 阶段控制器配置。
type Config struct {
	TargetWorkers         int
	RampSteps             int
	StepDuration          time.Duration
	SustainDuration       time.Duration
	SampleInterval        time.Duration
	RampDownSteps         int
	RampDownStepDuration  time.Duration
	LatencyCVThreshold    float64
	ThroughputCVThreshold float64
}

func (c *Config) applyDefaults() {
	if c.RampSteps == 0 {
		c.RampSteps = DefaultRampSteps
	}
	if c.SampleInterval <= 0 {
		c.SampleInterval = DefaultSampleInterval
	}
	if c.RampDownSteps <= 0 {
		c.RampDownSteps = c.RampSteps
	}
	if c.RampDownStepDuration <= 0 {
		c.RampDownStepDuration = c.StepDuration
	}
	if c.LatencyCVThreshold <= 0 {
		c.LatencyCVThreshold = DefaultLatencyCVThreshold
	}
	if c.ThroughputCVThreshold <= 0 {
		c.ThroughputCVThreshold = DefaultThroughputCVThreshold
	}
}

// StepSnapshot ramp 过程中某一步的采样结果。
type StepSnapshot struct {
	Step     int                  `json:"step"`
	Workers  int                  `json:"workers"`
	Snapshot types.MetricSnapshot `json:"snapshot"`
}

// Report 一次完整阶段运行的记录。
type Report struct {
	Start       time.Time              `json:"start"`
	End         time.Time              `json:"end"`
	RampUp      []StepSnapshot         `json:"rampUp"`
	Sustained   []types.MetricSnapshot `json:"sustained"`
	RampDown    []StepSnapshot         `json:"rampDown"`
	Stability   *types.Stability       `json:"stability,omitempty"`
	PeakWorkers int                    `json:"peakWorkers"`
	Tripped     bool                   `json:"tripped"`
	TripReason  string                 `json:"tripReason,omitempty"`
	Aborted     bool                   `json:"aborted"`
	Transitions []Transition           `json:"transitions"`
}

// TimeSeries 按时间顺序返回全部快照。
func (r *Report) TimeSeries() []types.MetricSnapshot {
	series := make([]types.MetricSnapshot, 0, len(r.RampUp)+len(r.Sustained)+len(r.RampDown))
	for _, s := range r.RampUp {
		series = append(series, s.Snapshot)
	}
	series = append(series, r.Sustained...)
	for _, s := range r.RampDown {
		series = append(series, s.Snapshot)
	}
	return series
}

// Option 配置控制器。
type Option func(*Controller)

// WithObserver 添加快照观察者。
func WithObserver(o SnapshotObserver) Option {
	return func(c *Controller) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

// WithPhaseListener 在每次阶段切换后调用 fn。
func WithPhaseListener(fn func(from, to Phase)) Option {
	return func(c *Controller) {
		c.onPhase = fn
	}
}

// WithLogger 设置日志器。
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// Controller 阶段控制器。
type Controller struct {
	cfg       Config
	workers   WorkerGroup
	metrics   Snapshotter
	observers []SnapshotObserver
	onPhase   func(from, to Phase)
	logger    *zap.Logger

	mu          sync.RWMutex
	phase       Phase
	transitions []Transition
	started     bool

	tripOnce   sync.Once
	tripped    chan struct{}
	tripReason string
}

// NewController 创建阶段控制器。
func NewController(cfg Config, workers WorkerGroup, metrics Snapshotter, opts ...Option) (*Controller, error) {
	if workers == nil {
		return nil, ErrNilWorkers
	}
	if metrics == nil {
		return nil, ErrNilMetrics
	}
	if cfg.TargetWorkers <= 0 {
		return nil, ErrInvalidTarget
	}
	if cfg.RampSteps < 0 || cfg.RampDownSteps < 0 {
		return nil, ErrInvalidSteps
	}
	cfg.applyDefaults()

	c := &Controller{
		cfg:     cfg,
		workers: workers,
		metrics: metrics,
		logger:  zap.NewNop(),
		tripped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Trip 请求提前结束加压阶段并进入 ramp-down。只有第一次调用生效。
func (c *Controller) Trip(reason string) {
	c.tripOnce.Do(func() {
		c.mu.Lock()
		c.tripReason = reason
		c.mu.Unlock()
		close(c.tripped)
	})
}

// Phase 返回当前阶段。
func (c *Controller) Phase() Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase
}

// Run 执行完整的阶段序列，阻塞直到完成。
// ctx 被取消时立即停止所有 worker，阶段为 Aborted 并返回 ctx 的错误。
func (c *Controller) Run(ctx context.Context) (*Report, error) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	c.started = true
	c.mu.Unlock()

	report := &Report{Start: time.Now()}
	finish := func(phase Phase) {
		c.workers.StopAll()
		c.transition(phase)
		report.End = time.Now()
		c.mu.RLock()
		report.Transitions = append([]Transition(nil), c.transitions...)
		report.TripReason = c.tripReason
		c.mu.RUnlock()
		report.Tripped = c.isTripped()
	}

	c.rampUp(ctx, report)
	if ctx.Err() == nil && !c.isTripped() {
		c.sustain(ctx, report)
	}
	if ctx.Err() != nil {
		report.Aborted = true
		finish(PhaseAborted)
		return report, ctx.Err()
	}

	c.rampDown(ctx, report)
	if ctx.Err() != nil {
		report.Aborted = true
		finish(PhaseAborted)
		return report, ctx.Err()
	}
	finish(PhaseCompleted)
	return report, nil
}

func (c *Controller) rampUp(ctx context.Context, report *Report) {
	c.transition(PhaseRampingUp)
	schedule := RampSchedule(c.cfg.TargetWorkers, c.cfg.RampSteps)

	for i, want := range schedule {
		step := i + 1
		if delta := want - c.workers.Active(); delta > 0 {
			c.workers.Spawn(delta)
		}
		active := c.workers.Active()
		if active > report.PeakWorkers {
			report.PeakWorkers = active
		}
		c.logger.Debug("ramp step", zap.Int("step", step), zap.Int("workers", active))

		if !c.wait(ctx, c.cfg.StepDuration, true) && ctx.Err() != nil {
			return
		}
		snap := c.snapshot(c.cfg.StepDuration)
		report.RampUp = append(report.RampUp, StepSnapshot{Step: step, Workers: active, Snapshot: snap})
		c.notify(PhaseRampingUp, step, snap)

		if c.isTripped() {
			return
		}
	}
}

func (c *Controller) sustain(ctx context.Context, report *Report) {
	if c.cfg.SustainDuration <= 0 {
		return
	}
	c.transition(PhaseSustained)

	deadline := time.Now().Add(c.cfg.SustainDuration)
	for i := 1; ; i++ {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		interval := min(c.cfg.SampleInterval, remaining)
		completed := c.wait(ctx, interval, true)
		if ctx.Err() != nil {
			return
		}
		snap := c.snapshot(interval)
		report.Sustained = append(report.Sustained, snap)
		c.notify(PhaseSustained, i, snap)
		if !completed || c.isTripped() {
			break
		}
	}
	report.Stability = AnalyzeStability(report.Sustained, c.cfg.LatencyCVThreshold, c.cfg.ThroughputCVThreshold)
}

func (c *Controller) rampDown(ctx context.Context, report *Report) {
	c.transition(PhaseRampingDown)

	active := c.workers.Active()
	if active == 0 {
		return
	}
	steps := min(c.cfg.RampDownSteps, active)
	perStep := (active + steps - 1) / steps

	for step := 1; c.workers.Active() > 0; step++ {
		remaining := c.workers.Stop(min(perStep, c.workers.Active()))
		snap := c.snapshot(c.cfg.RampDownStepDuration)
		report.RampDown = append(report.RampDown, StepSnapshot{Step: step, Workers: remaining, Snapshot: snap})
		c.notify(PhaseRampingDown, step, snap)
		if remaining == 0 {
			return
		}
		if !c.wait(ctx, c.cfg.RampDownStepDuration, false) {
			return
		}
	}
}

// wait 等待 d。返回 false 表示被 ctx 取消或（interruptible 时）被 Trip 打断。
func (c *Controller) wait(ctx context.Context, d time.Duration, interruptible bool) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	tripped := c.tripped
	if !interruptible {
		tripped = nil
	}
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	case <-tripped:
		return false
	}
}

func (c *Controller) snapshot(window time.Duration) types.MetricSnapshot {
	if window <= 0 {
		window = time.Second
	}
	snap := c.metrics.Snapshot(window)
	snap.ActiveWorkers = c.workers.Active()
	return snap
}

func (c *Controller) notify(phase Phase, step int, snap types.MetricSnapshot) {
	for _, o := range c.observers {
		o.OnSnapshot(phase, step, snap)
	}
}

func (c *Controller) transition(to Phase) {
	c.mu.Lock()
	from := c.phase
	if from == to {
		c.mu.Unlock()
		return
	}
	c.phase = to
	c.transitions = append(c.transitions, Transition{From: from, To: to, At: time.Now()})
	c.mu.Unlock()

	c.logger.Info("phase transition", zap.Stringer("from", from), zap.Stringer("to", to))
	if c.onPhase != nil {
		c.onPhase(from, to)
	}
}

func (c *Controller) isTripped() bool {
	select {
	case <-c.tripped:
		return true
	default:
		return false
	}
}
