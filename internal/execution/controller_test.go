package execution

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/bench-engine/pkg/types"
)

// fakeWorkers records every worker count change.
type fakeWorkers struct {
	mu      sync.Mutex
	active  int
	history []int
}

func (f *fakeWorkers) Spawn(n int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active += n
	f.history = append(f.history, f.active)
	return f.active
}

func (f *fakeWorkers) Stop(n int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active -= min(n, f.active)
	f.history = append(f.history, f.active)
	return f.active
}

func (f *fakeWorkers) StopAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active != 0 {
		f.active = 0
		f.history = append(f.history, 0)
	}
}

func (f *fakeWorkers) Active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *fakeWorkers) counts() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.history...)
}

// fakeMetrics degrades once the worker count reaches degradeAt.
type fakeMetrics struct {
	workers   *fakeWorkers
	degradeAt int
}

func (m *fakeMetrics) Snapshot(window time.Duration) types.MetricSnapshot {
	snap := types.MetricSnapshot{Timestamp: time.Now(), Count: 100, Successes: 100, AvgLatency: 20, RPS: 500}
	if m.degradeAt > 0 && m.workers.Active() >= m.degradeAt {
		snap.Failures = 50
		snap.Successes = 50
		snap.ErrorRate = 50
	}
	return snap
}

func TestRampSchedule(t *testing.T) {
	assert.Equal(t, []int{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}, RampSchedule(100, 10))
	assert.Equal(t, []int{3, 6, 9, 12, 15, 18, 21, 24, 25}, RampSchedule(25, 10))
	assert.Equal(t, []int{1, 2, 3}, RampSchedule(3, 10))
	assert.Equal(t, []int{7}, RampSchedule(7, 0))
	assert.Nil(t, RampSchedule(0, 10))
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "ramping_up", PhaseRampingUp.String())
	assert.Equal(t, "unknown", Phase(42).String())

	p, ok := ParsePhase("sustained")
	assert.True(t, ok)
	assert.Equal(t, PhaseSustained, p)

	_, ok = ParsePhase("warmup")
	assert.False(t, ok)
	assert.True(t, PhaseAborted.Terminal())
}

func TestNewController_Validation(t *testing.T) {
	w := &fakeWorkers{}
	m := &fakeMetrics{workers: w}

	_, err := NewController(Config{TargetWorkers: 1}, nil, m)
	assert.ErrorIs(t, err, ErrNilWorkers)
	_, err = NewController(Config{TargetWorkers: 1}, w, nil)
	assert.ErrorIs(t, err, ErrNilMetrics)
	_, err = NewController(Config{}, w, m)
	assert.ErrorIs(t, err, ErrInvalidTarget)
	_, err = NewController(Config{TargetWorkers: 1, RampSteps: -1}, w, m)
	assert.ErrorIs(t, err, ErrInvalidSteps)
}

func TestController_Run_FullLifecycle(t *testing.T) {
	w := &fakeWorkers{}
	var phases []Phase
	c, err := NewController(Config{
		TargetWorkers:   100,
		RampSteps:       10,
		StepDuration:    time.Millisecond,
		SustainDuration: 20 * time.Millisecond,
		SampleInterval:  5 * time.Millisecond,
	}, w, &fakeMetrics{workers: w}, WithPhaseListener(func(_, to Phase) {
		phases = append(phases, to)
	}))
	require.NoError(t, err)

	report, err := c.Run(context.Background())
	require.NoError(t, err)

	counts := w.counts()
	assert.Equal(t, []int{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}, counts[:10])
	assert.Equal(t, 0, counts[len(counts)-1])
	for i := 11; i < len(counts); i++ {
		assert.LessOrEqual(t, counts[i], counts[i-1], "ramp-down never increases workers")
	}

	assert.Equal(t, []Phase{PhaseRampingUp, PhaseSustained, PhaseRampingDown, PhaseCompleted}, phases)
	assert.Equal(t, PhaseCompleted, c.Phase())
	assert.Len(t, report.RampUp, 10)
	assert.NotEmpty(t, report.Sustained)
	assert.Len(t, report.RampDown, 10)
	assert.Equal(t, 100, report.PeakWorkers)
	require.NotNil(t, report.Stability)
	assert.True(t, report.Stability.Stable)
	assert.Equal(t, 100.0, report.Stability.Score)
	assert.False(t, report.Tripped)
	assert.Len(t, report.TimeSeries(), len(report.RampUp)+len(report.Sustained)+len(report.RampDown))

	_, err = c.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestController_BreakingPointForcesRampDown(t *testing.T) {
	w := &fakeWorkers{}
	var c *Controller
	detector := NewDetector(Criteria{MaxErrorRate: 10}, func(reason string) { c.Trip(reason) })

	var observed []int
	c, err := NewController(Config{
		TargetWorkers:   100,
		RampSteps:       10,
		StepDuration:    time.Millisecond,
		SustainDuration: time.Second,
	}, w, &fakeMetrics{workers: w, degradeAt: 60},
		WithObserver(detector),
		WithObserver(SnapshotFunc(func(phase Phase, step int, snap types.MetricSnapshot) {
			if phase == PhaseRampingUp {
				observed = append(observed, snap.ActiveWorkers)
			}
		})),
	)
	require.NoError(t, err)

	report, err := c.Run(context.Background())
	require.NoError(t, err)

	bp := detector.BreakingPoint()
	require.NotNil(t, bp)
	assert.Equal(t, 6, bp.Step)
	assert.Equal(t, 60, bp.UserCount)
	assert.Equal(t, types.MetricErrorRate, bp.TriggeringMetric)

	assert.Equal(t, []int{10, 20, 30, 40, 50, 60}, observed, "no ramp step after the breaking point")
	assert.Empty(t, report.Sustained, "sustained phase is skipped")
	assert.True(t, report.Tripped)
	assert.Contains(t, report.TripReason, "60 workers")
	assert.NotEmpty(t, report.RampDown)
	assert.Equal(t, PhaseCompleted, c.Phase())
	assert.Zero(t, w.Active())
}

func TestController_ExternalCancelAborts(t *testing.T) {
	w := &fakeWorkers{}
	c, err := NewController(Config{
		TargetWorkers: 10,
		RampSteps:     2,
		StepDuration:  time.Hour,
	}, w, &fakeMetrics{workers: w})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	report, err := c.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, report.Aborted)
	assert.Equal(t, PhaseAborted, c.Phase())
	assert.Zero(t, w.Active())
}

func TestAnalyzeStability(t *testing.T) {
	steady := []types.MetricSnapshot{
		{Count: 1, AvgLatency: 10, RPS: 100},
		{Count: 1, AvgLatency: 10, RPS: 100},
		{},
	}
	st := AnalyzeStability(steady, 0, 0)
	assert.Equal(t, 2, st.Samples)
	assert.True(t, st.Stable)
	assert.Equal(t, 100.0, st.Score)

	noisy := []types.MetricSnapshot{
		{Count: 1, AvgLatency: 10, RPS: 100},
		{Count: 1, AvgLatency: 30, RPS: 100},
	}
	st = AnalyzeStability(noisy, 0.3, 0.2)
	assert.InDelta(t, 0.5, st.LatencyCV, 1e-9)
	assert.False(t, st.LatencyStable)
	assert.True(t, st.ThroughputStable)
	assert.False(t, st.Stable)
	assert.InDelta(t, 50+50*(1-0.5/0.6), st.Score, 1e-9)

	assert.Zero(t, AnalyzeStability(nil, 0, 0).Samples)
}
