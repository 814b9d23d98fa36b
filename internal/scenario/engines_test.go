package scenario

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/bench-engine/internal/config"
	"yqhp/bench-engine/internal/events"
	"yqhp/bench-engine/internal/metrics"
	"yqhp/bench-engine/internal/target"
	"yqhp/bench-engine/pkg/types"
)

func newTestStream(t *testing.T) *events.Stream {
	t.Helper()
	s := events.NewStream(4096)
	t.Cleanup(s.Close)
	return s
}

func drain(s *events.Stream) []types.Event {
	var out []types.Event
	for {
		select {
		case ev := <-s.C():
			out = append(out, ev)
		default:
			return out
		}
	}
}

// fastScenario 返回经过默认值填充、各阶段缩短到毫秒级的场景配置。
func fastScenario(t *testing.T, typ types.ScenarioType) *config.ScenarioConfig {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Scenarios = []config.ScenarioConfig{{
		Type:                 typ,
		Users:                4,
		RampSteps:            2,
		StepDuration:         30 * time.Millisecond,
		SustainDuration:      120 * time.Millisecond,
		SampleInterval:       30 * time.Millisecond,
		RampDownSteps:        2,
		RampDownStepDuration: 10 * time.Millisecond,
		OperationTimeout:     time.Second,
		Seed:                 7,
	}}
	cfg.ApplyDefaults()
	return &cfg.Scenarios[0]
}

// sleepTarget 每个操作耗时 d，失败由 fail 决定。
func sleepTarget(d time.Duration, fail func() bool) target.Target {
	return target.Func(func(ctx context.Context, op target.Operation) target.Result {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return target.Fail("timeout", ctx.Err())
		}
		if fail != nil && fail() {
			return target.Fail("server_error", nil)
		}
		return target.OK()
	})
}

func fixedTargets(tgt target.Target) TargetFactory {
	return TargetFactoryFunc(func(context.Context, *config.ScenarioConfig) (target.Target, error) {
		return tgt, nil
	})
}

type recordingChecker struct {
	mu     sync.Mutex
	scopes []string
}

func (r *recordingChecker) CheckThresholds(_ context.Context, scope string, _ map[string]float64) []types.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scopes = append(r.scopes, scope)
	return nil
}

func (r *recordingChecker) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.scopes)
}

func resultStageNames(res *types.ScenarioResult) []string {
	names := make([]string, 0, len(res.Stages))
	for _, s := range res.Stages {
		names = append(names, s.Stage)
	}
	return names
}

func TestLoadEngine(t *testing.T) {
	stream := newTestStream(t)
	checker := &recordingChecker{}
	env := &Env{
		Targets:   fixedTargets(sleepTarget(2*time.Millisecond, nil)),
		Alerts:    checker,
		Events:    stream,
		Collector: metrics.NewCollector(),
	}
	sc := fastScenario(t, types.ScenarioLoad)
	sc.Expected = config.ExpectedMetrics{ErrorRate: 1}

	res, err := LoadEngine{}.Run(context.Background(), sc, env)
	require.NoError(t, err)

	assert.True(t, res.Success, "issues: %v", res.Issues)
	assert.Equal(t, types.ScenarioLoad, res.Type)
	assert.Positive(t, res.Metrics[types.MetricTotalRequests])
	assert.Zero(t, res.Metrics[types.MetricErrorRate])
	assert.Equal(t, 100.0, res.Metrics[types.MetricAvailability])
	assert.Equal(t, 4.0, res.Metrics[types.MetricActiveWorkers])
	assert.Equal(t, 100.0, res.PerformanceScore)
	assert.NotEmpty(t, res.TimeSeries)
	require.NotNil(t, res.Summary)
	assert.Nil(t, res.BreakingPoint)
	assert.Equal(t, []string{"setup", "ramp_up", "sustain", "ramp_down", "analysis", "complete"}, resultStageNames(res))
	assert.True(t, res.End.After(res.Start))
	assert.Positive(t, checker.calls(), "sustained snapshots are checked against thresholds")

	kinds := map[types.EventType]int{}
	for _, ev := range drain(stream) {
		kinds[ev.Type]++
		assert.Equal(t, sc.Name, ev.Scenario)
	}
	assert.Positive(t, kinds[types.EventMetrics])
	assert.Positive(t, kinds[types.EventStage])
}

func TestLoadEngineFailingTarget(t *testing.T) {
	env := &Env{Targets: fixedTargets(sleepTarget(time.Millisecond, func() bool { return true }))}
	sc := fastScenario(t, types.ScenarioLoad)

	res, err := LoadEngine{}.Run(context.Background(), sc, env)
	require.NoError(t, err)
	assert.Equal(t, 100.0, res.Metrics[types.MetricErrorRate])
	assert.Zero(t, res.PerformanceScore)
	assert.Equal(t, float64(0), res.Metrics[types.MetricAvailability])
}

func TestLoadEngineCancelled(t *testing.T) {
	env := &Env{Targets: fixedTargets(sleepTarget(time.Millisecond, nil))}
	sc := fastScenario(t, types.ScenarioLoad)
	sc.SustainDuration = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	res, err := LoadEngine{}.Run(ctx, sc, env)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.True(t, res.HasCritical())
}

func TestStressEngineFindsBreakingPoint(t *testing.T) {
	var inflight atomic.Int32
	overload := target.Func(func(ctx context.Context, _ target.Operation) target.Result {
		n := inflight.Add(1)
		defer inflight.Add(-1)
		time.Sleep(3 * time.Millisecond)
		if n > 2 {
			return target.Fail("overloaded", nil)
		}
		return target.OK()
	})

	sc := fastScenario(t, types.ScenarioStress)
	sc.Users = 8
	sc.RampSteps = 4
	sc.BreakingPoint = config.BreakingPointConfig{MaxErrorRate: 5, ResponseTimeMetric: "avg"}

	res, err := StressEngine{}.Run(context.Background(), sc, &Env{Targets: fixedTargets(overload)})
	require.NoError(t, err)
	require.NotNil(t, res.BreakingPoint)
	assert.Equal(t, types.MetricErrorRate, res.BreakingPoint.TriggeringMetric)
	assert.Greater(t, res.BreakingPoint.UserCount, 2)
	assert.GreaterOrEqual(t, res.Metrics[types.MetricMaxUsers], 2.0)
	assert.Less(t, res.Metrics[types.MetricMaxUsers], float64(res.BreakingPoint.UserCount))
	assert.True(t, res.Success, "a breaking point is a finding, not a failure")
}

func TestStressEngineWithoutBreakingPoint(t *testing.T) {
	sc := fastScenario(t, types.ScenarioStress)
	env := &Env{Targets: fixedTargets(sleepTarget(time.Millisecond, nil))}

	res, err := StressEngine{}.Run(context.Background(), sc, env)
	require.NoError(t, err)
	assert.Nil(t, res.BreakingPoint)
	assert.Equal(t, float64(sc.Users), res.Metrics[types.MetricMaxUsers])
}

func TestCacheEngine(t *testing.T) {
	sc := fastScenario(t, types.ScenarioCache)
	sc.Cache.KeySpace = 200
	sc.Cache.Capacity = 50
	sc.Cache.Distribution = config.DistributionUniform
	sc.Cache.Warmup = 50

	env := &Env{Targets: ConfigTargets{}, Events: newTestStream(t)}
	res, err := CacheEngine{}.Run(context.Background(), sc, env)
	require.NoError(t, err)

	ratio, ok := res.Metrics[types.MetricHitRatio]
	require.True(t, ok)
	assert.Greater(t, ratio, 0.0)
	assert.Less(t, ratio, 1.0)
	assert.Positive(t, res.Metrics[types.MetricEvictions], "key space exceeds capacity")
	assert.Contains(t, resultStageNames(res), "warmup")
}

func TestCacheEngineHotKeysHitMore(t *testing.T) {
	run := func(distribution string) float64 {
		sc := fastScenario(t, types.ScenarioCache)
		sc.Cache.KeySpace = 1000
		sc.Cache.Capacity = 100
		sc.Cache.Distribution = distribution
		sc.Cache.HotspotKeys = 0.05
		sc.Cache.HotspotTraffic = 0.95
		res, err := CacheEngine{}.Run(context.Background(), sc, &Env{Targets: ConfigTargets{}})
		require.NoError(t, err)
		return res.Metrics[types.MetricHitRatio]
	}
	assert.Greater(t, run(config.DistributionHotspot), run(config.DistributionUniform))
}

func TestDatabaseEngineUsesPool(t *testing.T) {
	sc := fastScenario(t, types.ScenarioDatabase)
	sc.Users = 6
	sc.Database.PoolSize = 2
	sc.Database.ReadLatency = 2 * time.Millisecond
	sc.Database.WriteLatency = 2 * time.Millisecond
	sc.Database.AcquireTimeout = time.Second

	res, err := DatabaseEngine{}.Run(context.Background(), sc, &Env{Targets: ConfigTargets{}})
	require.NoError(t, err)
	assert.True(t, res.Success, "issues: %v", res.Issues)
	assert.Equal(t, 100.0, res.Metrics[types.MetricPoolUtilization])
	assert.Contains(t, res.Metrics, types.MetricPoolTimeouts)
	assert.Positive(t, res.Metrics[types.MetricPoolWaitAvg])
}

func TestDatabaseEngineAcquireTimeouts(t *testing.T) {
	sc := fastScenario(t, types.ScenarioDatabase)
	sc.Users = 6
	sc.Database.PoolSize = 1
	sc.Database.WriteLatency = 20 * time.Millisecond
	sc.Database.ReadLatency = 20 * time.Millisecond
	sc.Database.AcquireTimeout = time.Millisecond

	res, err := DatabaseEngine{}.Run(context.Background(), sc, &Env{Targets: ConfigTargets{}})
	require.NoError(t, err)
	assert.Positive(t, res.Metrics[types.MetricPoolTimeouts])
	require.NotNil(t, res.Summary)
	assert.Positive(t, res.Summary.ErrorsByKind["resource_timeout"])
}

func TestAPIEngine(t *testing.T) {
	var hits sync.Map
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n, _ := hits.LoadOrStore(r.URL.Path, new(atomic.Int64))
		n.(*atomic.Int64).Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"items":[1,2]}`))
	}))
	defer srv.Close()

	sc := fastScenario(t, types.ScenarioAPI)
	sc.API.Endpoints = []config.EndpointConfig{
		{Name: "list", Method: "GET", Path: "/items", Weight: 3, JSONPath: "$.items"},
		{Name: "health", Method: "GET", Path: "/health", Weight: 1, ExpectStatus: 200},
	}
	env := &Env{Targets: ConfigTargets{Config: config.TargetsConfig{
		HTTP: config.HTTPTargetConfig{BaseURL: srv.URL, Timeout: time.Second},
	}}}

	res, err := APIEngine{}.Run(context.Background(), sc, env)
	require.NoError(t, err)
	assert.True(t, res.Success, "issues: %v", res.Issues)
	assert.Zero(t, res.Metrics[types.MetricErrorRate])

	count := func(path string) int64 {
		n, ok := hits.Load(path)
		if !ok {
			return 0
		}
		return n.(*atomic.Int64).Load()
	}
	assert.Greater(t, count("/items"), count("/health"))
}

func TestAPIEngineRateLimit(t *testing.T) {
	var calls atomic.Int64
	tgt := target.Func(func(context.Context, target.Operation) target.Result {
		calls.Add(1)
		return target.OK()
	})
	sc := fastScenario(t, types.ScenarioAPI)
	sc.RateLimit = 50

	start := time.Now()
	_, err := APIEngine{}.Run(context.Background(), sc, &Env{Targets: fixedTargets(tgt)})
	require.NoError(t, err)
	elapsed := time.Since(start).Seconds()
	assert.LessOrEqual(t, float64(calls.Load()), 50*elapsed+2)
}

func TestMemoryEngine(t *testing.T) {
	sc := fastScenario(t, types.ScenarioMemory)
	sc.Memory.AllocationSize = 32 * 1024
	sc.Memory.RetainRatio = 1
	sc.Memory.MaxRetained = 512
	sc.Memory.SampleInterval = 10 * time.Millisecond

	res, err := MemoryEngine{}.Run(context.Background(), sc, &Env{Targets: ConfigTargets{}})
	require.NoError(t, err)
	assert.Positive(t, res.Metrics[types.MetricHeapPeakMB])
	assert.Contains(t, res.Metrics, types.MetricHeapSlopeMBMin)
	assert.Contains(t, res.Metrics, types.MetricGCCount)
	assert.Contains(t, res.Metrics, types.MetricHeapGrowthMB)
}

func TestScalabilityEngine(t *testing.T) {
	sc := fastScenario(t, types.ScenarioScalability)
	sc.Scalability.Levels = []int{1, 2, 4}
	sc.Scalability.LevelDuration = 90 * time.Millisecond
	sc.Scalability.MinEfficiency = 0.1
	sc.SampleInterval = 30 * time.Millisecond

	res, err := ScalabilityEngine{}.Run(context.Background(), sc, &Env{Targets: fixedTargets(sleepTarget(2*time.Millisecond, nil))})
	require.NoError(t, err)
	assert.True(t, res.Success, "issues: %v", res.Issues)
	assert.Positive(t, res.Metrics["throughput_rps_at_1"])
	assert.Greater(t, res.Metrics["throughput_rps_at_4"], res.Metrics["throughput_rps_at_1"])
	assert.Positive(t, res.Metrics[types.MetricScalingEff])
	assert.Equal(t, 4.0, res.Metrics[types.MetricMaxUsers])
	assert.Equal(t, []string{"setup", "levels", "analysis", "complete"}, resultStageNames(res))
}
