// Package config 定义基准套件配置、加载与校验。
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"yqhp/bench-engine/pkg/logger"
	"yqhp/bench-engine/pkg/types"
)

// BenchmarkConfig 是一次套件运行的完整配置，加载后不再修改。
type BenchmarkConfig struct {
	Suite      SuiteConfig      `yaml:"suite"`
	Targets    TargetsConfig    `yaml:"targets"`
	Scenarios  []ScenarioConfig `yaml:"scenarios"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
	Limits     ResourceLimits   `yaml:"resource_limits"`
	Scheduling SchedulingConfig `yaml:"scheduling"`
	Regression RegressionConfig `yaml:"regression"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	Events     EventsConfig     `yaml:"events"`
	Server     ServerConfig     `yaml:"server"`
	Output     OutputConfig     `yaml:"output"`
	Logging    logger.Config    `yaml:"logging"`
}

// SuiteConfig 套件标识
type SuiteConfig struct {
	Name        string `yaml:"name" env:"BENCH_SUITE_NAME"`
	Version     string `yaml:"version" env:"BENCH_SUITE_VERSION"`
	Environment string `yaml:"environment" env:"BENCH_ENVIRONMENT"`
}

// TargetsConfig 被测系统连接配置，留空表示不启用。
type TargetsConfig struct {
	HTTP     HTTPTargetConfig     `yaml:"http"`
	Redis    RedisTargetConfig    `yaml:"redis"`
	Database DatabaseTargetConfig `yaml:"database"`
}

// HTTPTargetConfig HTTP 目标
type HTTPTargetConfig struct {
	BaseURL         string            `yaml:"base_url" env:"BENCH_HTTP_BASE_URL"`
	Timeout         time.Duration     `yaml:"timeout" env:"BENCH_HTTP_TIMEOUT"`
	MaxConnsPerHost int               `yaml:"max_conns_per_host"`
	Headers         map[string]string `yaml:"headers"`
}

// RedisTargetConfig Redis 目标
type RedisTargetConfig struct {
	Addr      string `yaml:"addr" env:"BENCH_REDIS_ADDR"`
	Password  string `yaml:"password" env:"BENCH_REDIS_PASSWORD"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"pool_size"`
	KeyPrefix string `yaml:"key_prefix"`
}

// DatabaseTargetConfig 数据库目标
type DatabaseTargetConfig struct {
	Driver       string `yaml:"driver" env:"BENCH_DATABASE_DRIVER"`
	DSN          string `yaml:"dsn" env:"BENCH_DATABASE_DSN"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// Target kinds a scenario can bind to.
const (
	TargetHTTP      = "http"
	TargetMemory    = "memory"
	TargetRedis     = "redis"
	TargetDatabase  = "database"
	TargetSimulated = "simulated"
)

// ScenarioConfig 单个场景配置
type ScenarioConfig struct {
	Name      string             `yaml:"name"`
	Type      types.ScenarioType `yaml:"type"`
	Skip      bool               `yaml:"skip"`
	DependsOn []string           `yaml:"depends_on"`
	// Target 选择被测对象，留空时按场景类型决定
	Target string `yaml:"target"`

	Users                int           `yaml:"users"`
	RampSteps            int           `yaml:"ramp_steps"`
	StepDuration         time.Duration `yaml:"step_duration"`
	SustainDuration      time.Duration `yaml:"sustain_duration"`
	SampleInterval       time.Duration `yaml:"sample_interval"`
	RampDownSteps        int           `yaml:"ramp_down_steps"`
	RampDownStepDuration time.Duration `yaml:"ramp_down_step_duration"`
	ThinkTime            time.Duration `yaml:"think_time"`
	ThinkJitter          time.Duration `yaml:"think_jitter"`
	OperationTimeout     time.Duration `yaml:"operation_timeout"`
	Timeout              time.Duration `yaml:"timeout"`
	RateLimit            float64       `yaml:"rate_limit"`
	Seed                 uint64        `yaml:"seed"`

	Expected      ExpectedMetrics     `yaml:"expected"`
	BreakingPoint BreakingPointConfig `yaml:"breaking_point"`
	Latency       LatencyConfig       `yaml:"latency"`

	Cache       CacheParams       `yaml:"cache"`
	Database    DatabaseParams    `yaml:"database"`
	API         APIParams         `yaml:"api"`
	Memory      MemoryParams      `yaml:"memory"`
	Scalability ScalabilityParams `yaml:"scalability"`
}

// ExpectedMetrics 场景评分的期望值，零值表示不参与评分。
type ExpectedMetrics struct {
	AvgResponseTimeMs float64 `yaml:"avg_response_time_ms"`
	P95ResponseTimeMs float64 `yaml:"p95_response_time_ms"`
	ThroughputRPS     float64 `yaml:"throughput_rps"`
	ErrorRate         float64 `yaml:"error_rate"`
	HitRatio          float64 `yaml:"hit_ratio"`
}

// BreakingPointConfig 拐点判定条件
type BreakingPointConfig struct {
	MaxResponseTimeMs      float64 `yaml:"max_response_time_ms"`
	ResponseTimeMetric     string  `yaml:"response_time_metric"`
	MaxErrorRate           float64 `yaml:"max_error_rate"`
	MinSuccessfulRequests  int64   `yaml:"min_successful_requests"`
	MaxConsecutiveFailures int     `yaml:"max_consecutive_failures"`
}

// LatencyConfig 模拟目标的延迟注入
type LatencyConfig struct {
	Base      time.Duration `yaml:"base"`
	Jitter    time.Duration `yaml:"jitter"`
	ErrorRate float64       `yaml:"error_rate"`
	// Concurrency 模拟服务的并发上限，超出部分排队
	Concurrency  int           `yaml:"concurrency"`
	QueueTimeout time.Duration `yaml:"queue_timeout"`
}

// IsZero 是否未配置任何延迟参数。
func (l LatencyConfig) IsZero() bool {
	return l == LatencyConfig{}
}

// Key distributions for cache workloads.
const (
	DistributionUniform = "uniform"
	DistributionZipf    = "zipf"
	DistributionHotspot = "hotspot"
)

// CacheParams 缓存场景参数
type CacheParams struct {
	KeySpace       int           `yaml:"key_space"`
	Capacity       int           `yaml:"capacity"`
	Distribution   string        `yaml:"distribution"`
	ZipfS          float64       `yaml:"zipf_s"`
	HotspotKeys    float64       `yaml:"hotspot_keys"`
	HotspotTraffic float64       `yaml:"hotspot_traffic"`
	ReadRatio      float64       `yaml:"read_ratio"`
	ValueSize      int           `yaml:"value_size"`
	TTL            time.Duration `yaml:"ttl"`
	Warmup         int           `yaml:"warmup"`
}

// DatabaseParams 数据库场景参数
type DatabaseParams struct {
	PoolSize       int           `yaml:"pool_size"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
	ReadRatio      float64       `yaml:"read_ratio"`
	KeySpace       int           `yaml:"key_space"`
	ReadQuery      string        `yaml:"read_query"`
	WriteQuery     string        `yaml:"write_query"`
	ReadLatency    time.Duration `yaml:"read_latency"`
	WriteLatency   time.Duration `yaml:"write_latency"`
}

// EndpointConfig API 场景中的一个接口
type EndpointConfig struct {
	Name         string            `yaml:"name"`
	Method       string            `yaml:"method"`
	Path         string            `yaml:"path"`
	Weight       float64           `yaml:"weight"`
	Body         string            `yaml:"body"`
	Headers      map[string]string `yaml:"headers"`
	ExpectStatus int               `yaml:"expect_status"`
	JSONPath     string            `yaml:"json_path"`
}

// APIParams API 场景参数
type APIParams struct {
	Endpoints  []EndpointConfig `yaml:"endpoints"`
	Sequential bool             `yaml:"sequential"`
}

// MemoryParams 内存场景参数
type MemoryParams struct {
	AllocationSize        int           `yaml:"allocation_size"`
	RetainRatio           float64       `yaml:"retain_ratio"`
	MaxRetained           int           `yaml:"max_retained"`
	SampleInterval        time.Duration `yaml:"sample_interval"`
	LeakThresholdMBPerMin float64       `yaml:"leak_threshold_mb_per_min"`
}

// ScalabilityParams 扩展性场景参数
type ScalabilityParams struct {
	Levels        []int         `yaml:"levels"`
	LevelDuration time.Duration `yaml:"level_duration"`
	MinEfficiency float64       `yaml:"min_efficiency"`
}

// ThresholdsConfig 告警阈值
type ThresholdsConfig struct {
	ResponseTime       TierConfig `yaml:"response_time_ms"`
	ErrorRate          TierConfig `yaml:"error_rate"`
	AvailabilityTarget float64    `yaml:"availability_target"`
	MinThroughput      float64    `yaml:"min_throughput"`
}

// TierConfig 警告/严重两级阈值，零值表示不启用。
type TierConfig struct {
	Warning  float64 `yaml:"warning"`
	Critical float64 `yaml:"critical"`
}

// ResourceLimits 资源上限
type ResourceLimits struct {
	MaxWorkers     int `yaml:"max_workers" env:"BENCH_MAX_WORKERS"`
	MaxConnections int `yaml:"max_connections"`
	MaxMemoryMB    int `yaml:"max_memory_mb"`
}

// Scheduling modes.
const (
	ModeParallel   = "parallel"
	ModeSequential = "sequential"
)

// SchedulingConfig 调度策略
type SchedulingConfig struct {
	Mode            string        `yaml:"mode" env:"BENCH_SCHEDULING_MODE"`
	ScenarioTimeout time.Duration `yaml:"scenario_timeout" env:"BENCH_SCENARIO_TIMEOUT"`
	SuiteTimeout    time.Duration `yaml:"suite_timeout" env:"BENCH_SUITE_TIMEOUT"`
	MaxParallel     int           `yaml:"max_parallel"`
}

// Baseline update policies.
const (
	UpdateNever        = "never"
	UpdateOnSuccess    = "on_success"
	UpdateNoRegression = "no_regression"
)

// RegressionConfig 回归分析配置
type RegressionConfig struct {
	BaselinePath         string  `yaml:"baseline_path" env:"BENCH_BASELINE_PATH"`
	DegradationThreshold float64 `yaml:"degradation_threshold"`
	ImprovementThreshold float64 `yaml:"improvement_threshold"`
	MinSignificance      float64 `yaml:"min_significance"`
	TrendBand            float64 `yaml:"trend_band"`
	UpdatePolicy         string  `yaml:"update_policy" env:"BENCH_BASELINE_UPDATE"`
}

// AlertRuleConfig 自定义告警规则
type AlertRuleConfig struct {
	Metric    string         `yaml:"metric"`
	Operator  string         `yaml:"operator"`
	Threshold float64        `yaml:"threshold"`
	Severity  types.Severity `yaml:"severity"`
	Scenario  string         `yaml:"scenario"`
}

// AlertsConfig 告警配置
type AlertsConfig struct {
	Cooldown        time.Duration     `yaml:"cooldown"`
	WarningAckGrace time.Duration     `yaml:"warning_ack_grace"`
	Rules           []AlertRuleConfig `yaml:"rules"`
}

// EventsConfig 事件流配置
type EventsConfig struct {
	Buffer int `yaml:"buffer"`
}

// ServerConfig 实时进度服务配置
type ServerConfig struct {
	Enabled bool   `yaml:"enabled" env:"BENCH_SERVER_ENABLED"`
	Address string `yaml:"address" env:"BENCH_SERVER_ADDRESS"`
}

// OutputConfig 结果输出配置
type OutputConfig struct {
	JSONPath string `yaml:"json_path" env:"BENCH_OUTPUT_JSON"`
	Console  bool   `yaml:"console"`
}

// DefaultConfig 返回带默认值的配置。
func DefaultConfig() *BenchmarkConfig {
	return &BenchmarkConfig{
		Suite: SuiteConfig{
			Name:        "benchmark",
			Environment: "local",
		},
		Thresholds: ThresholdsConfig{
			ResponseTime:       TierConfig{Warning: 500, Critical: 2000},
			ErrorRate:          TierConfig{Warning: 1, Critical: 5},
			AvailabilityTarget: 99,
		},
		Scheduling: SchedulingConfig{
			Mode:            ModeSequential,
			ScenarioTimeout: 30 * time.Minute,
		},
		Regression: RegressionConfig{
			DegradationThreshold: 15,
			ImprovementThreshold: 15,
			MinSignificance:      0.5,
			TrendBand:            5,
			UpdatePolicy:         UpdateNoRegression,
		},
		Alerts: AlertsConfig{
			Cooldown:        5 * time.Minute,
			WarningAckGrace: 2 * time.Minute,
		},
		Events: EventsConfig{Buffer: 256},
		Server: ServerConfig{Address: ":8090"},
		Output: OutputConfig{Console: true},
		Logging: *logger.DefaultConfig(),
	}
}

// ApplyDefaults 为每个场景补齐默认值。重复调用结果不变。
func (c *BenchmarkConfig) ApplyDefaults() {
	for i := range c.Scenarios {
		c.Scenarios[i].applyDefaults()
	}
}

func (s *ScenarioConfig) applyDefaults() {
	if s.Name == "" {
		s.Name = string(s.Type)
	}
	if s.Target == "" {
		s.Target = defaultTarget(s.Type)
	}
	if s.RampSteps == 0 {
		s.RampSteps = 10
	}
	if s.StepDuration == 0 {
		s.StepDuration = 5 * time.Second
	}
	if s.SampleInterval == 0 {
		s.SampleInterval = 5 * time.Second
	}
	if s.OperationTimeout == 0 {
		s.OperationTimeout = 30 * time.Second
	}
	if s.BreakingPoint.ResponseTimeMetric == "" {
		s.BreakingPoint.ResponseTimeMetric = "avg"
	}

	switch s.Type {
	case types.ScenarioLoad:
		if s.SustainDuration == 0 {
			s.SustainDuration = 30 * time.Second
		}
	case types.ScenarioStress:
		bp := &s.BreakingPoint
		if bp.MaxErrorRate == 0 && bp.MaxResponseTimeMs == 0 && bp.MinSuccessfulRequests == 0 && bp.MaxConsecutiveFailures == 0 {
			bp.MaxErrorRate = 5
			bp.MaxResponseTimeMs = 2000
		}
	case types.ScenarioCache:
		c := &s.Cache
		if c.KeySpace == 0 {
			c.KeySpace = 10000
		}
		if c.Capacity == 0 {
			c.Capacity = c.KeySpace / 2
		}
		if c.Distribution == "" {
			c.Distribution = DistributionZipf
		}
		if c.ZipfS == 0 {
			c.ZipfS = 1.1
		}
		if c.HotspotKeys == 0 {
			c.HotspotKeys = 0.2
		}
		if c.HotspotTraffic == 0 {
			c.HotspotTraffic = 0.8
		}
		if c.ReadRatio == 0 {
			c.ReadRatio = 0.8
		}
		if c.ValueSize == 0 {
			c.ValueSize = 256
		}
		if s.SustainDuration == 0 {
			s.SustainDuration = 30 * time.Second
		}
	case types.ScenarioDatabase:
		d := &s.Database
		if d.PoolSize == 0 {
			d.PoolSize = 10
		}
		if d.AcquireTimeout == 0 {
			d.AcquireTimeout = 5 * time.Second
		}
		if d.ReadRatio == 0 {
			d.ReadRatio = 0.7
		}
		if d.KeySpace == 0 {
			d.KeySpace = 1000
		}
		if d.ReadQuery == "" {
			d.ReadQuery = "SELECT id, payload FROM bench_items WHERE id = $1"
		}
		if d.WriteQuery == "" {
			d.WriteQuery = "UPDATE bench_items SET hits = hits + 1 WHERE id = $1"
		}
		if s.SustainDuration == 0 {
			s.SustainDuration = 30 * time.Second
		}
	case types.ScenarioAPI:
		for j := range s.API.Endpoints {
			ep := &s.API.Endpoints[j]
			if ep.Method == "" {
				ep.Method = "GET"
			}
			if ep.Weight == 0 {
				ep.Weight = 1
			}
			if ep.Name == "" {
				ep.Name = ep.Method + " " + ep.Path
			}
		}
		if s.SustainDuration == 0 {
			s.SustainDuration = 30 * time.Second
		}
	case types.ScenarioMemory:
		m := &s.Memory
		if m.AllocationSize == 0 {
			m.AllocationSize = 64 * 1024
		}
		if m.SampleInterval == 0 {
			m.SampleInterval = time.Second
		}
		if m.LeakThresholdMBPerMin == 0 {
			m.LeakThresholdMBPerMin = 10
		}
		if s.SustainDuration == 0 {
			s.SustainDuration = 30 * time.Second
		}
	case types.ScenarioScalability:
		sc := &s.Scalability
		if len(sc.Levels) == 0 && s.Users > 0 {
			sc.Levels = []int{max(1, s.Users/4), max(1, s.Users/2), s.Users}
		}
		if sc.LevelDuration == 0 {
			sc.LevelDuration = 10 * time.Second
		}
		if sc.MinEfficiency == 0 {
			sc.MinEfficiency = 0.7
		}
	}
}

func defaultTarget(t types.ScenarioType) string {
	switch t {
	case types.ScenarioAPI:
		return TargetHTTP
	case types.ScenarioCache:
		return TargetMemory
	case types.ScenarioMemory:
		return TargetMemory
	default:
		return TargetSimulated
	}
}

// EnabledScenarios 返回未跳过的场景，保持声明顺序。
func (c *BenchmarkConfig) EnabledScenarios() []ScenarioConfig {
	out := make([]ScenarioConfig, 0, len(c.Scenarios))
	for _, s := range c.Scenarios {
		if !s.Skip {
			out = append(out, s)
		}
	}
	return out
}

// Serialize 序列化为 YAML。
func (c *BenchmarkConfig) Serialize() ([]byte, error) {
	return yaml.Marshal(c)
}

// ParseConfig 在默认值之上解析 YAML。
func ParseConfig(data []byte) (*BenchmarkConfig, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	return cfg, nil
}

// Clone 深拷贝配置。
func (c *BenchmarkConfig) Clone() (*BenchmarkConfig, error) {
	data, err := c.Serialize()
	if err != nil {
		return nil, fmt.Errorf("序列化配置失败: %w", err)
	}
	clone := &BenchmarkConfig{}
	if err := yaml.Unmarshal(data, clone); err != nil {
		return nil, fmt.Errorf("复制配置失败: %w", err)
	}
	return clone, nil
}
