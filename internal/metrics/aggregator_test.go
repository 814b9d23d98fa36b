package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/bench-engine/pkg/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestPercentile_NearestRank(t *testing.T) {
	values := []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}

	assert.Equal(t, 50.0, Percentile(values, 50))
	assert.Equal(t, 100.0, Percentile(values, 95))
	assert.Equal(t, 100.0, Percentile(values, 99))
	assert.Equal(t, 10.0, Percentile(values, 0))
	assert.Equal(t, 100.0, Percentile(values, 100))
	assert.Equal(t, 0.0, Percentile(nil, 50))
}

func TestPercentile_DoesNotMutateInput(t *testing.T) {
	values := []float64{3, 1, 2}
	Percentile(values, 50)
	assert.Equal(t, []float64{3, 1, 2}, values)
}

func TestAggregator_SnapshotWindow(t *testing.T) {
	clock := newFakeClock()
	agg := NewAggregator(WithClock(clock.Now))
	clock.Advance(10 * time.Second)

	base := clock.Now()
	// 8 successes and 2 failures within the last 10 seconds
	for i := 0; i < 10; i++ {
		agg.Record(types.Sample{
			Timestamp: base.Add(-time.Duration(i) * time.Second),
			LatencyMs: float64((i + 1) * 10),
			Success:   i < 8,
			ErrorKind: "timeout",
		})
	}
	// outside the window
	agg.Record(types.Sample{Timestamp: base.Add(-20 * time.Second), LatencyMs: 1000, Success: false})

	snap := agg.Snapshot(10 * time.Second)
	assert.Equal(t, int64(10), snap.Count)
	assert.Equal(t, int64(8), snap.Successes)
	assert.Equal(t, int64(2), snap.Failures)
	assert.InDelta(t, 20.0, snap.ErrorRate, 1e-9)
	assert.InDelta(t, 0.8, snap.RPS, 1e-9)
	assert.Equal(t, 10.0, snap.MinLatency)
	assert.Equal(t, 100.0, snap.MaxLatency)
	assert.Equal(t, 55.0, snap.AvgLatency)
	assert.Equal(t, 50.0, snap.P50)
	assert.Equal(t, 100.0, snap.P99)
}

func TestAggregator_EmptyWindowIsZero(t *testing.T) {
	agg := NewAggregator()
	snap := agg.Snapshot(time.Second)

	assert.True(t, snap.IsEmpty())
	assert.Zero(t, snap.RPS)
	assert.Zero(t, snap.ErrorRate)
	assert.Zero(t, snap.P99)
}

func TestAggregator_FailureStreak(t *testing.T) {
	base := time.Now()
	samples := []types.Sample{
		{Timestamp: base, Success: true, LatencyMs: 1},
		{Timestamp: base.Add(3 * time.Millisecond), Success: false, LatencyMs: 1},
		{Timestamp: base.Add(1 * time.Millisecond), Success: false, LatencyMs: 1},
		{Timestamp: base.Add(2 * time.Millisecond), Success: false, LatencyMs: 1},
	}
	snap := Compute(samples, time.Second)
	assert.Equal(t, 3, snap.FailureStreak)
}

func TestAggregator_ConcurrentRecord(t *testing.T) {
	agg := NewAggregator()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				agg.Record(types.Sample{LatencyMs: 5, Success: i%10 != 0, WorkerID: id})
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, int64(4000), agg.Count())
	sum := agg.Summary()
	assert.Equal(t, int64(3600), sum.Successes)
	assert.Equal(t, int64(400), sum.Failures)
	assert.InDelta(t, 10.0, sum.ErrorRate, 1e-9)
	assert.InDelta(t, 5.0, sum.P50, 0.01)
	assert.Equal(t, int64(400), sum.ErrorsByKind["unknown"])
}

func TestAggregator_WorkerGaugeAndObserver(t *testing.T) {
	obs := &countingObserver{}
	agg := NewAggregator(WithWorkerGauge(func() int { return 7 }), WithObserver(obs))
	agg.Record(types.Sample{LatencyMs: 1, Success: true})

	snap := agg.Snapshot(time.Minute)
	assert.Equal(t, 7, snap.ActiveWorkers)
	assert.Equal(t, 1, obs.n)
}

func TestAggregator_PruneKeepsSummary(t *testing.T) {
	clock := newFakeClock()
	agg := NewAggregator(WithClock(clock.Now), WithRetention(time.Second))
	for i := 0; i < pruneEvery; i++ {
		agg.Record(types.Sample{Timestamp: clock.Now(), LatencyMs: 2, Success: true})
	}
	clock.Advance(5 * time.Second)
	for i := 0; i < pruneEvery; i++ {
		agg.Record(types.Sample{Timestamp: clock.Now(), LatencyMs: 2, Success: true})
	}

	agg.mu.Lock()
	retained := len(agg.samples)
	agg.mu.Unlock()
	require.Less(t, retained, 2*pruneEvery)
	assert.Equal(t, int64(2*pruneEvery), agg.Summary().Count)
}

func TestAggregator_Reset(t *testing.T) {
	agg := NewAggregator()
	agg.Record(types.Sample{LatencyMs: 1, Success: false, ErrorKind: "x"})
	agg.Reset()

	assert.Zero(t, agg.Count())
	assert.Empty(t, agg.Summary().ErrorsByKind)
}

func TestCoefficientOfVariation(t *testing.T) {
	assert.Zero(t, CoefficientOfVariation([]float64{5}))
	assert.Zero(t, CoefficientOfVariation([]float64{4, 4, 4}))
	assert.Zero(t, CoefficientOfVariation([]float64{0, 0}))
	assert.InDelta(t, 0.5, CoefficientOfVariation([]float64{1, 3}), 1e-9)
}

type countingObserver struct {
	mu sync.Mutex
	n  int
}

func (o *countingObserver) Observe(types.Sample) {
	o.mu.Lock()
	o.n++
	o.mu.Unlock()
}
