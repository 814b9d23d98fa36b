package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"yqhp/bench-engine/pkg/types"
)

// ErrInvalidConfig 所有校验错误都满足 errors.Is(err, ErrInvalidConfig)。
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError 单条校验错误
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors 校验错误集合
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for i := range e {
		msgs = append(msgs, e[i].Error())
	}
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Is 使 errors.Is(err, ErrInvalidConfig) 成立。
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidConfig
}

// HasErrors 是否存在错误
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Fields 返回出错字段，测试和日志使用。
func (e ValidationErrors) Fields() []string {
	out := make([]string, 0, len(e))
	for i := range e {
		out = append(out, e[i].Field)
	}
	return out
}

// Validator 配置语义校验
type Validator struct {
	errors ValidationErrors
}

// NewValidator 创建校验器。
func NewValidator() *Validator {
	return &Validator{errors: make(ValidationErrors, 0)}
}

func (v *Validator) addError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

// Validate 校验整个配置，场景默认值需已补齐。
func (v *Validator) Validate(cfg *BenchmarkConfig) error {
	v.errors = make(ValidationErrors, 0)

	if strings.TrimSpace(cfg.Suite.Name) == "" {
		v.addError("suite.name", "name is required")
	}
	v.validateScenarios(cfg)
	v.validateThresholds(&cfg.Thresholds)
	v.validateScheduling(&cfg.Scheduling)
	v.validateRegression(&cfg.Regression)
	v.validateAlerts(&cfg.Alerts)
	v.validateServer(&cfg.Server)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) validateScenarios(cfg *BenchmarkConfig) {
	enabled := cfg.EnabledScenarios()
	if len(enabled) == 0 {
		v.addError("scenarios", "at least one enabled scenario is required")
		return
	}

	names := make(map[string]bool, len(cfg.Scenarios))
	for i := range cfg.Scenarios {
		s := &cfg.Scenarios[i]
		if s.Name != "" && names[s.Name] {
			v.addError(fmt.Sprintf("scenarios[%d].name", i), fmt.Sprintf("duplicate scenario name %q", s.Name))
		}
		names[s.Name] = true
	}

	for i := range cfg.Scenarios {
		s := &cfg.Scenarios[i]
		if s.Skip {
			continue
		}
		v.validateScenario(cfg, fmt.Sprintf("scenarios[%s]", s.Name), s, names)
	}
}

func (v *Validator) validateScenario(cfg *BenchmarkConfig, field string, s *ScenarioConfig, names map[string]bool) {
	if s.Name == "" {
		v.addError(field+".name", "name is required")
	}
	if !s.Type.IsValid() {
		v.addError(field+".type", fmt.Sprintf("unknown scenario type %q", s.Type))
		return
	}

	for _, dep := range s.DependsOn {
		switch {
		case dep == s.Name:
			v.addError(field+".depends_on", "scenario cannot depend on itself")
		case !names[dep]:
			v.addError(field+".depends_on", fmt.Sprintf("unknown dependency %q", dep))
		}
	}

	if s.Type == types.ScenarioScalability {
		if len(s.Scalability.Levels) == 0 {
			v.addError(field+".scalability.levels", "levels or users is required")
		}
		for _, lvl := range s.Scalability.Levels {
			if lvl <= 0 {
				v.addError(field+".scalability.levels", "levels must be positive")
				break
			}
		}
	} else if s.Users <= 0 {
		v.addError(field+".users", "users must be positive")
	}

	if limit := cfg.Limits.MaxWorkers; limit > 0 {
		if s.Users > limit {
			v.addError(field+".users", fmt.Sprintf("users %d exceeds resource_limits.max_workers %d", s.Users, limit))
		}
		for _, lvl := range s.Scalability.Levels {
			if lvl > limit {
				v.addError(field+".scalability.levels", fmt.Sprintf("level %d exceeds resource_limits.max_workers %d", lvl, limit))
				break
			}
		}
	}

	if s.RampSteps <= 0 {
		v.addError(field+".ramp_steps", "ramp_steps must be positive")
	}
	if s.StepDuration <= 0 {
		v.addError(field+".step_duration", "step_duration must be positive")
	}
	if s.SampleInterval <= 0 {
		v.addError(field+".sample_interval", "sample_interval must be positive")
	}
	if s.SustainDuration < 0 || s.ThinkTime < 0 || s.OperationTimeout < 0 {
		v.addError(field, "durations must not be negative")
	}
	if s.RampDownSteps > 0 && s.RampDownStepDuration <= 0 {
		v.addError(field+".ramp_down_step_duration", "required when ramp_down_steps is set")
	}
	if s.RateLimit < 0 {
		v.addError(field+".rate_limit", "rate_limit must not be negative")
	}
	if s.Latency.ErrorRate < 0 || s.Latency.ErrorRate > 1 {
		v.addError(field+".latency.error_rate", "error_rate must be between 0 and 1")
	}

	bp := s.BreakingPoint
	switch bp.ResponseTimeMetric {
	case "avg", "p95", "p99":
	default:
		v.addError(field+".breaking_point.response_time_metric", fmt.Sprintf("unknown metric %q, expected avg, p95 or p99", bp.ResponseTimeMetric))
	}
	if bp.MaxErrorRate < 0 || bp.MaxErrorRate > 100 {
		v.addError(field+".breaking_point.max_error_rate", "max_error_rate must be between 0 and 100")
	}
	if bp.MaxResponseTimeMs < 0 || bp.MinSuccessfulRequests < 0 || bp.MaxConsecutiveFailures < 0 {
		v.addError(field+".breaking_point", "criteria must not be negative")
	}

	v.validateTarget(cfg, field, s)

	switch s.Type {
	case types.ScenarioCache:
		c := s.Cache
		switch c.Distribution {
		case DistributionUniform, DistributionZipf, DistributionHotspot:
		default:
			v.addError(field+".cache.distribution", fmt.Sprintf("unknown distribution %q", c.Distribution))
		}
		if c.Distribution == DistributionZipf && c.ZipfS <= 1 {
			v.addError(field+".cache.zipf_s", "zipf_s must be greater than 1")
		}
		if c.KeySpace <= 0 {
			v.addError(field+".cache.key_space", "key_space must be positive")
		}
		if c.ReadRatio < 0 || c.ReadRatio > 1 {
			v.addError(field+".cache.read_ratio", "read_ratio must be between 0 and 1")
		}
		if c.HotspotKeys <= 0 || c.HotspotKeys > 1 || c.HotspotTraffic < 0 || c.HotspotTraffic > 1 {
			v.addError(field+".cache.hotspot", "hotspot_keys and hotspot_traffic must be fractions")
		}
		if c.Warmup > c.KeySpace {
			v.addError(field+".cache.warmup", "warmup exceeds key_space")
		}
	case types.ScenarioDatabase:
		d := s.Database
		if d.PoolSize <= 0 {
			v.addError(field+".database.pool_size", "pool_size must be positive")
		}
		if limit := cfg.Limits.MaxConnections; limit > 0 && d.PoolSize > limit {
			v.addError(field+".database.pool_size", fmt.Sprintf("pool_size %d exceeds resource_limits.max_connections %d", d.PoolSize, limit))
		}
		if d.ReadRatio < 0 || d.ReadRatio > 1 {
			v.addError(field+".database.read_ratio", "read_ratio must be between 0 and 1")
		}
	case types.ScenarioAPI:
		if len(s.API.Endpoints) == 0 {
			v.addError(field+".api.endpoints", "at least one endpoint is required")
		}
		for j, ep := range s.API.Endpoints {
			if !strings.HasPrefix(ep.Path, "/") {
				v.addError(fmt.Sprintf("%s.api.endpoints[%d].path", field, j), "path must start with /")
			}
			if ep.Weight < 0 {
				v.addError(fmt.Sprintf("%s.api.endpoints[%d].weight", field, j), "weight must not be negative")
			}
		}
	case types.ScenarioMemory:
		m := s.Memory
		if m.AllocationSize <= 0 {
			v.addError(field+".memory.allocation_size", "allocation_size must be positive")
		}
		if m.RetainRatio < 0 || m.RetainRatio > 1 {
			v.addError(field+".memory.retain_ratio", "retain_ratio must be between 0 and 1")
		}
	case types.ScenarioScalability:
		if s.Scalability.LevelDuration <= 0 {
			v.addError(field+".scalability.level_duration", "level_duration must be positive")
		}
		if e := s.Scalability.MinEfficiency; e < 0 || e > 1 {
			v.addError(field+".scalability.min_efficiency", "min_efficiency must be between 0 and 1")
		}
	}
}

func (v *Validator) validateTarget(cfg *BenchmarkConfig, field string, s *ScenarioConfig) {
	switch s.Target {
	case TargetHTTP:
		if cfg.Targets.HTTP.BaseURL == "" {
			v.addError(field+".target", "targets.http.base_url is required")
		}
	case TargetRedis:
		if cfg.Targets.Redis.Addr == "" {
			v.addError(field+".target", "targets.redis.addr is required")
		}
		if s.Type != types.ScenarioCache {
			v.addError(field+".target", "redis target only serves cache scenarios")
		}
	case TargetDatabase:
		if cfg.Targets.Database.DSN == "" || cfg.Targets.Database.Driver == "" {
			v.addError(field+".target", "targets.database.driver and dsn are required")
		}
		switch cfg.Targets.Database.Driver {
		case "", "postgres", "pgx", "mysql":
		default:
			v.addError("targets.database.driver", fmt.Sprintf("unsupported driver %q, expected postgres, pgx or mysql", cfg.Targets.Database.Driver))
		}
		if s.Type != types.ScenarioDatabase {
			v.addError(field+".target", "database target only serves database scenarios")
		}
	case TargetMemory, TargetSimulated:
	default:
		v.addError(field+".target", fmt.Sprintf("unknown target %q", s.Target))
	}
	if s.Type == types.ScenarioAPI && s.Target != TargetHTTP && s.Target != TargetSimulated {
		v.addError(field+".target", "api scenarios require an http or simulated target")
	}
}

func (v *Validator) validateThresholds(t *ThresholdsConfig) {
	checkTier := func(field string, tier TierConfig) {
		if tier.Warning < 0 || tier.Critical < 0 {
			v.addError(field, "thresholds must not be negative")
		}
		if tier.Warning > 0 && tier.Critical > 0 && tier.Warning > tier.Critical {
			v.addError(field, "warning must not exceed critical")
		}
	}
	checkTier("thresholds.response_time_ms", t.ResponseTime)
	checkTier("thresholds.error_rate", t.ErrorRate)
	if t.AvailabilityTarget < 0 || t.AvailabilityTarget > 100 {
		v.addError("thresholds.availability_target", "availability_target must be between 0 and 100")
	}
	if t.MinThroughput < 0 {
		v.addError("thresholds.min_throughput", "min_throughput must not be negative")
	}
}

func (v *Validator) validateScheduling(s *SchedulingConfig) {
	if s.Mode != ModeParallel && s.Mode != ModeSequential {
		v.addError("scheduling.mode", fmt.Sprintf("unknown mode %q, expected parallel or sequential", s.Mode))
	}
	if s.ScenarioTimeout < 0 || s.SuiteTimeout < 0 {
		v.addError("scheduling", "timeouts must not be negative")
	}
	if s.MaxParallel < 0 {
		v.addError("scheduling.max_parallel", "max_parallel must not be negative")
	}
}

func (v *Validator) validateRegression(r *RegressionConfig) {
	if r.DegradationThreshold <= 0 {
		v.addError("regression.degradation_threshold", "degradation_threshold must be positive")
	}
	if r.ImprovementThreshold <= 0 {
		v.addError("regression.improvement_threshold", "improvement_threshold must be positive")
	}
	if r.MinSignificance < 0 || r.TrendBand < 0 {
		v.addError("regression", "min_significance and trend_band must not be negative")
	}
	switch r.UpdatePolicy {
	case UpdateNever, UpdateOnSuccess, UpdateNoRegression:
	default:
		v.addError("regression.update_policy", fmt.Sprintf("unknown update policy %q", r.UpdatePolicy))
	}
}

func (v *Validator) validateAlerts(a *AlertsConfig) {
	if a.Cooldown < 0 || a.WarningAckGrace < 0 {
		v.addError("alerts", "durations must not be negative")
	}
	for i, r := range a.Rules {
		field := fmt.Sprintf("alerts.rules[%d]", i)
		if r.Metric == "" {
			v.addError(field+".metric", "metric is required")
		}
		switch r.Operator {
		case "", ">", ">=", "<", "<=":
		default:
			v.addError(field+".operator", fmt.Sprintf("unknown operator %q", r.Operator))
		}
		switch r.Severity {
		case "", types.SeverityInfo, types.SeverityWarning, types.SeverityCritical:
		default:
			v.addError(field+".severity", fmt.Sprintf("unknown severity %q", r.Severity))
		}
	}
}

func (v *Validator) validateServer(s *ServerConfig) {
	if !s.Enabled {
		return
	}
	if !isValidAddress(s.Address) {
		v.addError("server.address", "invalid address format, expected host:port or :port")
	}
}

func isValidAddress(addr string) bool {
	if addr == "" {
		return false
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil || port == "" {
		return false
	}
	if _, err := net.LookupPort("tcp", port); err != nil {
		return false
	}
	return !strings.ContainsAny(host, " /")
}
