package scenario

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"yqhp/bench-engine/internal/config"
	"yqhp/bench-engine/internal/events"
	"yqhp/bench-engine/internal/metrics"
	"yqhp/bench-engine/pkg/types"
)

var (
	ErrNilEngine       = errors.New("scenario: nil engine")
	ErrEngineExists    = errors.New("scenario: engine already registered")
	ErrEngineNotFound  = errors.New("scenario: engine not found")
	ErrUnsupportedType = errors.New("scenario: unsupported target for scenario type")
)

// SetupError 场景在启动 worker 之前失败。
type SetupError struct {
	Scenario string
	Err      error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("scenario %s setup failed: %v", e.Scenario, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

func setupError(name string, err error) error {
	return &SetupError{Scenario: name, Err: err}
}

// Engine 一种场景类型的执行引擎。
// Run 只在场景无法启动时返回错误，运行期问题记录在结果的 Issues 中。
type Engine interface {
	Type() types.ScenarioType
	Run(ctx context.Context, cfg *config.ScenarioConfig, env *Env) (*types.ScenarioResult, error)
}

// ThresholdChecker 在持续阶段评估实时指标，alert.Manager 满足该接口。
type ThresholdChecker interface {
	CheckThresholds(ctx context.Context, scope string, metrics map[string]float64) []types.Alert
}

// Env 引擎运行所需的共享依赖，除 Targets 外均可为空。
type Env struct {
	Targets   TargetFactory
	Alerts    ThresholdChecker
	Events    *events.Stream
	Collector *metrics.Collector
	Logger    *zap.Logger
}

func (e *Env) logger(name string) *zap.Logger {
	if e == nil || e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger.Named("scenario").With(zap.String("scenario", name))
}

func (e *Env) publishStatus(ctx context.Context, name string, status types.ScenarioStatus) {
	if e == nil {
		return
	}
	_ = e.Events.Scenario(ctx, name, status)
}

// Registry 按场景类型索引引擎。
type Registry struct {
	mu      sync.RWMutex
	engines map[types.ScenarioType]Engine
}

// NewRegistry 创建空注册表。
func NewRegistry() *Registry {
	return &Registry{engines: make(map[types.ScenarioType]Engine)}
}

// DefaultRegistry 返回注册了全部内置引擎的新注册表。
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(LoadEngine{})
	r.MustRegister(StressEngine{})
	r.MustRegister(CacheEngine{})
	r.MustRegister(DatabaseEngine{})
	r.MustRegister(APIEngine{})
	r.MustRegister(MemoryEngine{})
	r.MustRegister(ScalabilityEngine{})
	return r
}

// Register 注册引擎，同类型重复注册返回错误。
func (r *Registry) Register(e Engine) error {
	if e == nil {
		return ErrNilEngine
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.engines[e.Type()]; exists {
		return fmt.Errorf("%w: %s", ErrEngineExists, e.Type())
	}
	r.engines[e.Type()] = e
	return nil
}

// MustRegister 注册失败时 panic。
func (r *Registry) MustRegister(e Engine) {
	if err := r.Register(e); err != nil {
		panic(err)
	}
}

// Replace 注册或覆盖引擎，测试中用于替换内置实现。
func (r *Registry) Replace(e Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[e.Type()] = e
}

// Get 按类型查找引擎。
func (r *Registry) Get(t types.ScenarioType) (Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEngineNotFound, t)
	}
	return e, nil
}

// Types 返回已注册类型，按名称排序。
func (r *Registry) Types() []types.ScenarioType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.ScenarioType, 0, len(r.engines))
	for t := range r.engines {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
