package types

import "time"

// Sample is a single completed operation. Samples are immutable once recorded.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	LatencyMs float64   `json:"latencyMs"`
	Success   bool      `json:"success"`
	ErrorKind string    `json:"errorKind,omitempty"`
	Bytes     int64     `json:"bytes,omitempty"`
	WorkerID  int       `json:"workerId"`
	Scenario  string    `json:"scenario,omitempty"`
}

// MetricSnapshot is a point-in-time aggregate over a sliding window of samples.
type MetricSnapshot struct {
	Timestamp     time.Time     `json:"timestamp"`
	Window        time.Duration `json:"window"`
	ActiveWorkers int           `json:"activeWorkers"`
	Count         int64         `json:"count"`
	Successes     int64         `json:"successes"`
	Failures      int64         `json:"failures"`
	RPS           float64       `json:"rps"`
	AvgLatency    float64       `json:"avgLatencyMs"`
	MinLatency    float64       `json:"minLatencyMs"`
	MaxLatency    float64       `json:"maxLatencyMs"`
	P50           float64       `json:"p50Ms"`
	P90           float64       `json:"p90Ms"`
	P95           float64       `json:"p95Ms"`
	P99           float64       `json:"p99Ms"`
	// ErrorRate is on a 0-100 scale.
	ErrorRate float64 `json:"errorRate"`
	// FailureStreak is the number of trailing failed samples in the window.
	FailureStreak int   `json:"failureStreak"`
	Bytes         int64 `json:"bytes"`
}

// IsEmpty reports whether the snapshot covers no samples.
func (s MetricSnapshot) IsEmpty() bool {
	return s.Count == 0
}

// Values flattens the snapshot into named metrics, the shape alert rules evaluate.
func (s MetricSnapshot) Values() map[string]float64 {
	return map[string]float64{
		MetricAvgResponseTime: s.AvgLatency,
		MetricP50ResponseTime: s.P50,
		MetricP90ResponseTime: s.P90,
		MetricP95ResponseTime: s.P95,
		MetricP99ResponseTime: s.P99,
		MetricMaxResponseTime: s.MaxLatency,
		MetricThroughput:      s.RPS,
		MetricErrorRate:       s.ErrorRate,
		MetricAvailability:    availability(s.Count, s.Failures),
		MetricActiveWorkers:   float64(s.ActiveWorkers),
	}
}

// RunSummary aggregates an entire scenario run.
type RunSummary struct {
	Start        time.Time        `json:"start"`
	End          time.Time        `json:"end"`
	Count        int64            `json:"count"`
	Successes    int64            `json:"successes"`
	Failures     int64            `json:"failures"`
	Bytes        int64            `json:"bytes"`
	RPS          float64          `json:"rps"`
	ErrorRate    float64          `json:"errorRate"`
	MinLatency   float64          `json:"minLatencyMs"`
	MaxLatency   float64          `json:"maxLatencyMs"`
	AvgLatency   float64          `json:"avgLatencyMs"`
	StdDev       float64          `json:"stdDevMs"`
	P50          float64          `json:"p50Ms"`
	P90          float64          `json:"p90Ms"`
	P95          float64          `json:"p95Ms"`
	P99          float64          `json:"p99Ms"`
	ErrorsByKind map[string]int64 `json:"errorsByKind,omitempty"`
}

// Metric names shared by scenario results, alert rules and regression analysis.
const (
	MetricAvgResponseTime = "avg_response_time_ms"
	MetricP50ResponseTime = "p50_response_time_ms"
	MetricP90ResponseTime = "p90_response_time_ms"
	MetricP95ResponseTime = "p95_response_time_ms"
	MetricP99ResponseTime = "p99_response_time_ms"
	MetricMaxResponseTime = "max_response_time_ms"
	MetricThroughput      = "throughput_rps"
	MetricErrorRate       = "error_rate"
	MetricAvailability    = "availability"
	MetricActiveWorkers   = "active_workers"
	MetricTotalRequests   = "total_requests"
	MetricFailedRequests  = "failed_requests"
	MetricHitRatio        = "hit_ratio"
	MetricEvictions       = "evictions"
	MetricPoolUtilization = "pool_utilization_peak"
	MetricPoolTimeouts    = "pool_acquire_timeouts"
	MetricPoolWaitAvg     = "pool_wait_avg_ms"
	MetricStabilityScore  = "stability_score"
	MetricBreakingUsers   = "breaking_point_users"
	MetricMaxUsers        = "max_users"
	MetricHeapGrowthMB    = "heap_growth_mb"
	MetricHeapSlopeMBMin  = "heap_slope_mb_per_min"
	MetricHeapPeakMB      = "heap_peak_mb"
	MetricGCCount         = "gc_count"
	MetricScalingEff      = "scaling_efficiency"
	MetricPerformance     = "performance_score"
)

func availability(count, failures int64) float64 {
	if count == 0 {
		return 100
	}
	return float64(count-failures) / float64(count) * 100
}
