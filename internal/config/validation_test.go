package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/bench-engine/pkg/types"
)

func validConfig() *BenchmarkConfig {
	cfg := DefaultConfig()
	cfg.Scenarios = []ScenarioConfig{
		{Type: types.ScenarioLoad, Users: 10},
		{Name: "db", Type: types.ScenarioDatabase, Users: 5, DependsOn: []string{"load"}},
	}
	cfg.ApplyDefaults()
	return cfg
}

func validationFields(t *testing.T, err error) []string {
	t.Helper()
	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs), "expected ValidationErrors, got %v", err)
	return verrs.Fields()
}

func TestValidateValidConfig(t *testing.T) {
	assert.NoError(t, NewValidator().Validate(validConfig()))
}

func TestValidateScenarioErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*BenchmarkConfig)
		field  string
	}{
		{"no scenarios", func(c *BenchmarkConfig) { c.Scenarios = nil }, "scenarios"},
		{"all skipped", func(c *BenchmarkConfig) {
			c.Scenarios[0].Skip = true
			c.Scenarios[1].Skip = true
		}, "scenarios"},
		{"duplicate name", func(c *BenchmarkConfig) { c.Scenarios[1].Name = "load" }, "scenarios[1].name"},
		{"unknown dependency", func(c *BenchmarkConfig) { c.Scenarios[1].DependsOn = []string{"ghost"} }, "scenarios[db].depends_on"},
		{"self dependency", func(c *BenchmarkConfig) { c.Scenarios[1].DependsOn = []string{"db"} }, "scenarios[db].depends_on"},
		{"zero users", func(c *BenchmarkConfig) { c.Scenarios[0].Users = 0 }, "scenarios[load].users"},
		{"users above limit", func(c *BenchmarkConfig) { c.Limits.MaxWorkers = 8 }, "scenarios[load].users"},
		{"pool above connections", func(c *BenchmarkConfig) { c.Limits.MaxConnections = 4 }, "scenarios[db].database.pool_size"},
		{"bad metric", func(c *BenchmarkConfig) { c.Scenarios[0].BreakingPoint.ResponseTimeMetric = "p42" }, "scenarios[load].breaking_point.response_time_metric"},
		{"error rate over 100", func(c *BenchmarkConfig) { c.Scenarios[0].BreakingPoint.MaxErrorRate = 150 }, "scenarios[load].breaking_point.max_error_rate"},
		{"ramp down without duration", func(c *BenchmarkConfig) { c.Scenarios[0].RampDownSteps = 2 }, "scenarios[load].ramp_down_step_duration"},
		{"http target without url", func(c *BenchmarkConfig) { c.Scenarios[0].Target = TargetHTTP }, "scenarios[load].target"},
		{"redis for load", func(c *BenchmarkConfig) {
			c.Targets.Redis.Addr = "localhost:6379"
			c.Scenarios[0].Target = TargetRedis
		}, "scenarios[load].target"},
		{"unknown target", func(c *BenchmarkConfig) { c.Scenarios[0].Target = "ftp" }, "scenarios[load].target"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := NewValidator().Validate(cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, validationFields(t, err), tt.field)
		})
	}
}

func TestValidateTypeSpecificParams(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scenarios = []ScenarioConfig{
		{Name: "c", Type: types.ScenarioCache, Users: 1, Cache: CacheParams{Distribution: "gauss", ReadRatio: 2}},
		{Name: "a", Type: types.ScenarioAPI, Users: 1, Target: TargetSimulated},
		{Name: "m", Type: types.ScenarioMemory, Users: 1, Memory: MemoryParams{RetainRatio: 3}},
		{Name: "s", Type: types.ScenarioScalability, Scalability: ScalabilityParams{Levels: []int{5, 0}}},
	}
	cfg.ApplyDefaults()

	fields := validationFields(t, NewValidator().Validate(cfg))
	assert.Contains(t, fields, "scenarios[c].cache.distribution")
	assert.Contains(t, fields, "scenarios[c].cache.read_ratio")
	assert.Contains(t, fields, "scenarios[a].api.endpoints")
	assert.Contains(t, fields, "scenarios[m].memory.retain_ratio")
	assert.Contains(t, fields, "scenarios[s].scalability.levels")
}

func TestValidateGlobalSections(t *testing.T) {
	cfg := validConfig()
	cfg.Suite.Name = " "
	cfg.Scheduling.Mode = "random"
	cfg.Thresholds.ResponseTime = TierConfig{Warning: 3000, Critical: 1000}
	cfg.Regression.UpdatePolicy = "always"
	cfg.Regression.DegradationThreshold = 0
	cfg.Alerts.Rules = []AlertRuleConfig{{Metric: "", Operator: "!=", Severity: "fatal"}}
	cfg.Server = ServerConfig{Enabled: true, Address: "nope"}

	fields := validationFields(t, NewValidator().Validate(cfg))
	for _, f := range []string{
		"suite.name",
		"scheduling.mode",
		"thresholds.response_time_ms",
		"regression.update_policy",
		"regression.degradation_threshold",
		"alerts.rules[0].metric",
		"alerts.rules[0].operator",
		"alerts.rules[0].severity",
		"server.address",
	} {
		assert.Contains(t, fields, f)
	}
}

func TestValidateServerAddress(t *testing.T) {
	assert.True(t, isValidAddress(":8090"))
	assert.True(t, isValidAddress("127.0.0.1:8090"))
	assert.True(t, isValidAddress("localhost:http"))
	assert.False(t, isValidAddress("8090"))
	assert.False(t, isValidAddress(""))
}

func TestValidateSkippedScenarioIsIgnored(t *testing.T) {
	cfg := validConfig()
	cfg.Scenarios = append(cfg.Scenarios, ScenarioConfig{Name: "broken", Type: types.ScenarioLoad, Skip: true})
	assert.NoError(t, NewValidator().Validate(cfg))

	cfg.Scenarios[2].Skip = false
	cfg.Scenarios[2].StepDuration = time.Second
	assert.Error(t, NewValidator().Validate(cfg))
}
