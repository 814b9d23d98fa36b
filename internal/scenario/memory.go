package scenario

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime"
	"sync"
	"time"

	"yqhp/bench-engine/internal/config"
	"yqhp/bench-engine/internal/target"
	"yqhp/bench-engine/internal/worker"
	"yqhp/bench-engine/pkg/types"
)

const bytesPerMB = 1024 * 1024

// MemoryEngine 施加分配负载并采样堆内存，用最小二乘斜率判断泄漏。
type MemoryEngine struct{}

func (MemoryEngine) Type() types.ScenarioType { return types.ScenarioMemory }

func (MemoryEngine) Run(ctx context.Context, sc *config.ScenarioConfig, env *Env) (*types.ScenarioResult, error) {
	start := time.Now()
	tr := newTracker(ctx, env, sc.Name, sc.Type)
	tr.enter(StageSetup, "preparing allocator")

	b, err := env.bind(ctx, sc)
	if err != nil {
		return nil, setupError(sc.Name, err)
	}
	defer b.Close()
	if alloc, ok := b.raw.(*target.Allocator); ok {
		defer alloc.Release()
	}

	p := sc.Memory
	steps := []worker.Step{{
		Name:   "allocate",
		Weight: 1,
		Build: func(rng *rand.Rand, _, _ int) target.Operation {
			return target.Allocate{Bytes: p.AllocationSize, Retain: rng.Float64() < p.RetainRatio}
		},
	}}

	sampler := startHeapSampler(p.SampleInterval)
	out, err := runPhased(ctx, env, sc, b.tgt, tr, phasedRun{
		phases:      phaseConfig(sc, sc.Users),
		steps:       steps,
		criteria:    criteriaFor(sc),
		trackPhases: true,
	})
	profile := sampler.Stop()
	if err != nil {
		return nil, setupError(sc.Name, err)
	}

	tr.enter(StageAnalysis, "")
	res := newResult(sc, start)
	applyOutcome(res, out)
	res.Metrics[types.MetricHeapGrowthMB] = profile.GrowthMB()
	res.Metrics[types.MetricHeapPeakMB] = profile.PeakMB
	res.Metrics[types.MetricHeapSlopeMBMin] = profile.SlopeMBPerMin()
	res.Metrics[types.MetricGCCount] = float64(profile.GCCount)

	if slope := profile.SlopeMBPerMin(); len(profile.Samples) >= 3 && slope > p.LeakThresholdMBPerMin {
		res.AddIssue(types.SeverityWarning, "memory_leak", fmt.Sprintf(
			"heap grows %.2f MB/min, above %.2f MB/min", slope, p.LeakThresholdMBPerMin))
	}
	return finalize(env, sc, res, tr), nil
}

// heapSample 一次堆采样，At 为相对采样开始的时间。
type heapSample struct {
	At     time.Duration
	HeapMB float64
}

// heapProfile 采样结束后的汇总。
type heapProfile struct {
	Samples []heapSample
	PeakMB  float64
	GCCount uint32
}

// GrowthMB 最后一次与第一次采样的差值。
func (p heapProfile) GrowthMB() float64 {
	if len(p.Samples) < 2 {
		return 0
	}
	return p.Samples[len(p.Samples)-1].HeapMB - p.Samples[0].HeapMB
}

// SlopeMBPerMin 堆大小对时间的最小二乘斜率。
func (p heapProfile) SlopeMBPerMin() float64 {
	n := float64(len(p.Samples))
	if n < 2 {
		return 0
	}
	var sx, sy, sxx, sxy float64
	for _, s := range p.Samples {
		x := s.At.Minutes()
		sx += x
		sy += s.HeapMB
		sxx += x * x
		sxy += x * s.HeapMB
	}
	denom := n*sxx - sx*sx
	if denom == 0 {
		return 0
	}
	return (n*sxy - sx*sy) / denom
}

type heapSampler struct {
	interval time.Duration
	start    time.Time
	gcStart  uint32
	stop     chan struct{}
	done     chan struct{}

	mu      sync.Mutex
	profile heapProfile
	gcLast  uint32
}

func startHeapSampler(interval time.Duration) *heapSampler {
	if interval <= 0 {
		interval = time.Second
	}
	s := &heapSampler{
		interval: interval,
		start:    time.Now(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s.gcStart = ms.NumGC
	s.record(&ms)
	go s.loop()
	return s
}

func (s *heapSampler) loop() {
	defer close(s.done)
	t := time.NewTicker(s.interval)
	defer t.Stop()
	var ms runtime.MemStats
	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			runtime.ReadMemStats(&ms)
			s.record(&ms)
		}
	}
}

func (s *heapSampler) record(ms *runtime.MemStats) {
	heap := float64(ms.HeapAlloc) / bytesPerMB
	s.mu.Lock()
	s.profile.Samples = append(s.profile.Samples, heapSample{At: time.Since(s.start), HeapMB: heap})
	s.profile.PeakMB = max(s.profile.PeakMB, heap)
	s.gcLast = ms.NumGC
	s.mu.Unlock()
}

// Stop 停止采样并补采最后一个点。
func (s *heapSampler) Stop() heapProfile {
	close(s.stop)
	<-s.done
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s.record(&ms)

	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.profile
	p.Samples = append([]heapSample(nil), s.profile.Samples...)
	p.GCCount = s.gcLast - s.gcStart
	return p
}
