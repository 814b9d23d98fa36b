package execution

import (
	"fmt"
	"sync"
	"time"

	"yqhp/bench-engine/pkg/types"
)

// Criteria 拐点判定条件，零值表示不启用该条件。
type Criteria struct {
	// MaxResponseTimeMs 响应时间上限
	MaxResponseTimeMs float64
	// ResponseTimeMetric 取值 avg、p95 或 p99，默认 avg
	ResponseTimeMetric string
	// MaxErrorRate 错误率上限（0-100）
	MaxErrorRate float64
	// MinSuccessfulRequests 每个采样窗口最少成功请求数
	MinSuccessfulRequests int64
	// MaxConsecutiveFailures 连续失败上限
	MaxConsecutiveFailures int
}

// Enabled 是否启用了任一条件。
func (c Criteria) Enabled() bool {
	return c.MaxResponseTimeMs > 0 || c.MaxErrorRate > 0 || c.MinSuccessfulRequests > 0 || c.MaxConsecutiveFailures > 0
}

// Detector 拐点检测器。最多触发一次，触发时调用 trip。
type Detector struct {
	criteria Criteria
	trip     func(reason string)
	now      func() time.Time

	mu sync.Mutex
	bp *types.BreakingPoint
}

// NewDetector 创建拐点检测器，trip 可以为 nil。
func NewDetector(criteria Criteria, trip func(reason string)) *Detector {
	return &Detector{criteria: criteria, trip: trip, now: time.Now}
}

// OnSnapshot 实现 SnapshotObserver，只在 ramp-up 和持续阶段检测。
func (d *Detector) OnSnapshot(phase Phase, step int, snap types.MetricSnapshot) {
	if phase != PhaseRampingUp && phase != PhaseSustained {
		return
	}
	d.Evaluate(step, snap)
}

// Evaluate 检测快照，首次违反条件时记录拐点并返回 true。之后的快照都被忽略。
func (d *Detector) Evaluate(step int, snap types.MetricSnapshot) (*types.BreakingPoint, bool) {
	d.mu.Lock()
	if d.bp != nil {
		d.mu.Unlock()
		return nil, false
	}
	metric, threshold, actual, violated := d.check(snap)
	if !violated {
		d.mu.Unlock()
		return nil, false
	}
	ts := snap.Timestamp
	if ts.IsZero() {
		ts = d.now()
	}
	bp := &types.BreakingPoint{
		Step:             step,
		UserCount:        snap.ActiveWorkers,
		Timestamp:        ts,
		TriggeringMetric: metric,
		Threshold:        threshold,
		ActualValue:      actual,
		Snapshot:         snap,
	}
	d.bp = bp
	d.mu.Unlock()

	if d.trip != nil {
		d.trip(fmt.Sprintf("breaking point at %d workers: %s %.2f exceeds %.2f", bp.UserCount, metric, actual, threshold))
	}
	return bp, true
}

// BreakingPoint 返回记录的拐点，未触发时为 nil。
func (d *Detector) BreakingPoint() *types.BreakingPoint {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bp == nil {
		return nil
	}
	bp := *d.bp
	return &bp
}

func (d *Detector) check(snap types.MetricSnapshot) (metric string, threshold, actual float64, violated bool) {
	c := d.criteria
	if !snap.IsEmpty() {
		if c.MaxErrorRate > 0 && snap.ErrorRate > c.MaxErrorRate {
			return types.MetricErrorRate, c.MaxErrorRate, snap.ErrorRate, true
		}
		if c.MaxResponseTimeMs > 0 {
			name, value := responseTime(c.ResponseTimeMetric, snap)
			if value > c.MaxResponseTimeMs {
				return name, c.MaxResponseTimeMs, value, true
			}
		}
		if c.MaxConsecutiveFailures > 0 && snap.FailureStreak > c.MaxConsecutiveFailures {
			return "consecutive_failures", float64(c.MaxConsecutiveFailures), float64(snap.FailureStreak), true
		}
	}
	if c.MinSuccessfulRequests > 0 && snap.Successes < c.MinSuccessfulRequests {
		return "successful_requests", float64(c.MinSuccessfulRequests), float64(snap.Successes), true
	}
	return "", 0, 0, false
}

func responseTime(metric string, snap types.MetricSnapshot) (string, float64) {
	switch metric {
	case "p95":
		return types.MetricP95ResponseTime, snap.P95
	case "p99":
		return types.MetricP99ResponseTime, snap.P99
	default:
		return types.MetricAvgResponseTime, snap.AvgLatency
	}
}
