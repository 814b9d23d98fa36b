package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"yqhp/bench-engine/pkg/types"
)

const namespace = "bench"

// Collector 将基准运行的实时指标暴露给 Prometheus。
type Collector struct {
	registry        *prometheus.Registry
	operations      *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	activeWorkers   *prometheus.GaugeVec
	poolUtilization *prometheus.GaugeVec
	snapshotRPS     *prometheus.GaugeVec
	snapshotErrors  *prometheus.GaugeVec
	alerts          *prometheus.CounterVec
	scenarioScore   *prometheus.GaugeVec
}

// NewCollector 创建使用独立 registry 的收集器。
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Operations executed by benchmark workers.",
		}, []string{"scenario", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_latency_seconds",
			Help:      "Latency of benchmark operations.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
		}, []string{"scenario"}),
		activeWorkers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_workers",
			Help:      "Workers currently generating load.",
		}, []string{"scenario"}),
		poolUtilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_utilization_ratio",
			Help:      "Outstanding resource handles divided by pool capacity.",
		}, []string{"scenario"}),
		snapshotRPS: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "throughput_rps",
			Help:      "Successful operations per second in the latest snapshot window.",
		}, []string{"scenario"}),
		snapshotErrors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "error_rate_percent",
			Help:      "Error rate in the latest snapshot window.",
		}, []string{"scenario"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alerts raised by threshold rules.",
		}, []string{"severity", "metric"}),
		scenarioScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scenario_score",
			Help:      "Performance score of the last completed scenario run.",
		}, []string{"scenario", "type"}),
	}
	c.registry.MustRegister(
		c.operations, c.latency, c.activeWorkers, c.poolUtilization,
		c.snapshotRPS, c.snapshotErrors, c.alerts, c.scenarioScore,
	)
	return c
}

// Registry 返回底层 registry，用于 /metrics 暴露。
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ForScenario 返回绑定到某个场景的样本观察者。
func (c *Collector) ForScenario(scenario string) Observer {
	if c == nil {
		return nil
	}
	return &scenarioObserver{
		ok:      c.operations.WithLabelValues(scenario, "success"),
		failed:  c.operations.WithLabelValues(scenario, "failure"),
		latency: c.latency.WithLabelValues(scenario),
	}
}

// SetActiveWorkers 更新活跃 worker 数。
func (c *Collector) SetActiveWorkers(scenario string, n int) {
	if c == nil {
		return
	}
	c.activeWorkers.WithLabelValues(scenario).Set(float64(n))
}

// SetPoolUtilization 更新资源池利用率。
func (c *Collector) SetPoolUtilization(scenario string, ratio float64) {
	if c == nil {
		return
	}
	c.poolUtilization.WithLabelValues(scenario).Set(ratio)
}

// ObserveSnapshot 更新窗口级别的吞吐量和错误率。
func (c *Collector) ObserveSnapshot(scenario string, snap types.MetricSnapshot) {
	if c == nil {
		return
	}
	c.snapshotRPS.WithLabelValues(scenario).Set(snap.RPS)
	c.snapshotErrors.WithLabelValues(scenario).Set(snap.ErrorRate)
	c.activeWorkers.WithLabelValues(scenario).Set(float64(snap.ActiveWorkers))
}

// IncAlert 记录一次告警。
func (c *Collector) IncAlert(alert types.Alert) {
	if c == nil {
		return
	}
	c.alerts.WithLabelValues(string(alert.Severity), alert.Metric).Inc()
}

// SetScenarioScore 记录场景得分。
func (c *Collector) SetScenarioScore(scenario string, typ types.ScenarioType, score float64) {
	if c == nil {
		return
	}
	c.scenarioScore.WithLabelValues(scenario, string(typ)).Set(score)
}

type scenarioObserver struct {
	ok      prometheus.Counter
	failed  prometheus.Counter
	latency prometheus.Observer
}

func (o *scenarioObserver) Observe(s types.Sample) {
	if s.Success {
		o.ok.Inc()
	} else {
		o.failed.Inc()
	}
	o.latency.Observe(s.LatencyMs / 1000)
}
