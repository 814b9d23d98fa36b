package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"yqhp/bench-engine/pkg/types"
)

const (
	// DefaultRetention is how long raw samples are kept for windowed snapshots.
	DefaultRetention = 2 * time.Minute

	// histogram bounds in microseconds: 1us .. 10min, 3 significant figures
	histMin     = 1
	histMax     = int64(10 * time.Minute / time.Microsecond)
	histSigFigs = 3

	pruneEvery = 1024
)

// Observer receives every recorded sample outside the aggregator lock.
type Observer interface {
	Observe(sample types.Sample)
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithRetention sets the raw sample retention horizon.
func WithRetention(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.retention = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// WithObserver attaches an observer called for each recorded sample.
func WithObserver(o Observer) Option {
	return func(a *Aggregator) {
		if o != nil {
			a.observers = append(a.observers, o)
		}
	}
}

// WithWorkerGauge supplies the active worker count stamped onto snapshots.
func WithWorkerGauge(fn func() int) Option {
	return func(a *Aggregator) {
		a.workers = fn
	}
}

// Aggregator 收集 Sample 并按滑动窗口计算指标快照。
type Aggregator struct {
	mu        sync.Mutex
	samples   []types.Sample
	hist      *hdrhistogram.Histogram
	start     time.Time
	last      time.Time
	retention time.Duration
	recorded  int

	count     int64
	successes int64
	failures  int64
	bytes     int64
	errKinds  map[string]int64

	now       func() time.Time
	workers   func() int
	observers []Observer
}

// NewAggregator 创建指标聚合器。
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		samples:   make([]types.Sample, 0, 1024),
		hist:      hdrhistogram.New(histMin, histMax, histSigFigs),
		retention: DefaultRetention,
		errKinds:  make(map[string]int64),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.start = a.now()
	return a
}

// Record 记录一个样本。并发安全。
func (a *Aggregator) Record(s types.Sample) {
	if s.Timestamp.IsZero() {
		s.Timestamp = a.now()
	}

	a.mu.Lock()
	a.samples = append(a.samples, s)
	a.count++
	if s.Success {
		a.successes++
	} else {
		a.failures++
		kind := s.ErrorKind
		if kind == "" {
			kind = "unknown"
		}
		a.errKinds[kind]++
	}
	a.bytes += s.Bytes
	if s.Timestamp.After(a.last) {
		a.last = s.Timestamp
	}
	_ = a.hist.RecordValue(latencyMicros(s.LatencyMs))
	a.recorded++
	if a.recorded%pruneEvery == 0 {
		a.pruneLocked(a.now())
	}
	a.mu.Unlock()

	for _, o := range a.observers {
		o.Observe(s)
	}
}

// Snapshot 计算最近 window 时间内的指标快照。
func (a *Aggregator) Snapshot(window time.Duration) types.MetricSnapshot {
	return a.SnapshotAt(a.now(), window)
}

// SnapshotAt 计算 (now-window, now] 区间内的指标快照。
func (a *Aggregator) SnapshotAt(now time.Time, window time.Duration) types.MetricSnapshot {
	cutoff := now.Add(-window)

	a.mu.Lock()
	inWindow := make([]types.Sample, 0, 256)
	for _, s := range a.samples {
		if s.Timestamp.After(cutoff) && !s.Timestamp.After(now) {
			inWindow = append(inWindow, s)
		}
	}
	elapsed := now.Sub(a.start)
	a.mu.Unlock()

	effective := window
	if elapsed < effective {
		effective = elapsed
	}
	if effective < time.Millisecond {
		effective = time.Millisecond
	}

	snap := Compute(inWindow, effective)
	snap.Timestamp = now
	snap.Window = window
	if a.workers != nil {
		snap.ActiveWorkers = a.workers()
	}
	return snap
}

// Compute 由一组样本计算快照，window 用于吞吐量计算。
// 结果只依赖输入样本，与记录顺序无关。
func Compute(samples []types.Sample, window time.Duration) types.MetricSnapshot {
	snap := types.MetricSnapshot{Window: window}
	if len(samples) == 0 {
		return snap
	}

	ordered := make([]types.Sample, len(samples))
	copy(ordered, samples)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	latencies := make([]float64, 0, len(ordered))
	var sum float64
	for _, s := range ordered {
		snap.Count++
		if s.Success {
			snap.Successes++
		} else {
			snap.Failures++
		}
		snap.Bytes += s.Bytes
		latencies = append(latencies, s.LatencyMs)
		sum += s.LatencyMs
	}
	for i := len(ordered) - 1; i >= 0 && !ordered[i].Success; i-- {
		snap.FailureStreak++
	}

	sort.Float64s(latencies)
	snap.MinLatency = latencies[0]
	snap.MaxLatency = latencies[len(latencies)-1]
	snap.AvgLatency = sum / float64(len(latencies))
	snap.P50 = percentileSorted(latencies, 50)
	snap.P90 = percentileSorted(latencies, 90)
	snap.P95 = percentileSorted(latencies, 95)
	snap.P99 = percentileSorted(latencies, 99)
	snap.ErrorRate = float64(snap.Failures) / float64(snap.Count) * 100
	if window > 0 {
		snap.RPS = float64(snap.Successes) / window.Seconds()
	}
	return snap
}

// Summary 返回整个运行期间的汇总统计。
func (a *Aggregator) Summary() types.RunSummary {
	a.mu.Lock()
	defer a.mu.Unlock()

	end := a.last
	if end.IsZero() || end.Before(a.start) {
		end = a.now()
	}
	sum := types.RunSummary{
		Start:        a.start,
		End:          end,
		Count:        a.count,
		Successes:    a.successes,
		Failures:     a.failures,
		Bytes:        a.bytes,
		ErrorsByKind: make(map[string]int64, len(a.errKinds)),
	}
	for k, v := range a.errKinds {
		sum.ErrorsByKind[k] = v
	}
	if a.count == 0 {
		return sum
	}

	sum.ErrorRate = float64(a.failures) / float64(a.count) * 100
	if elapsed := end.Sub(a.start).Seconds(); elapsed > 0 {
		sum.RPS = float64(a.successes) / elapsed
	}
	sum.MinLatency = microsToMs(a.hist.Min())
	sum.MaxLatency = microsToMs(a.hist.Max())
	sum.AvgLatency = a.hist.Mean() / 1000
	sum.StdDev = a.hist.StdDev() / 1000
	sum.P50 = microsToMs(a.hist.ValueAtQuantile(50))
	sum.P90 = microsToMs(a.hist.ValueAtQuantile(90))
	sum.P95 = microsToMs(a.hist.ValueAtQuantile(95))
	sum.P99 = microsToMs(a.hist.ValueAtQuantile(99))
	return sum
}

// Count 返回已记录的样本总数。
func (a *Aggregator) Count() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// Reset 清空全部样本和统计，重新计时。
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.samples = a.samples[:0]
	a.hist.Reset()
	a.count, a.successes, a.failures, a.bytes = 0, 0, 0, 0
	a.errKinds = make(map[string]int64)
	a.start = a.now()
	a.last = time.Time{}
}

func (a *Aggregator) pruneLocked(now time.Time) {
	cutoff := now.Add(-a.retention)
	keep := a.samples[:0]
	for _, s := range a.samples {
		if s.Timestamp.After(cutoff) {
			keep = append(keep, s)
		}
	}
	// drop references held by the tail of the old backing array
	for i := len(keep); i < len(a.samples); i++ {
		a.samples[i] = types.Sample{}
	}
	a.samples = keep
}

func latencyMicros(ms float64) int64 {
	v := int64(ms * 1000)
	if v < histMin {
		return histMin
	}
	if v > histMax {
		return histMax
	}
	return v
}

func microsToMs(v int64) float64 {
	return float64(v) / 1000
}
