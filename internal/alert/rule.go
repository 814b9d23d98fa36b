// Package alert 根据阈值规则产生告警，并按场景和指标在冷却期内去重。
package alert

import (
	"fmt"

	"yqhp/bench-engine/internal/config"
	"yqhp/bench-engine/pkg/types"
)

// Operator 比较运算符
type Operator string

const (
	OpGreater        Operator = ">"
	OpGreaterOrEqual Operator = ">="
	OpLess           Operator = "<"
	OpLessOrEqual    Operator = "<="
)

// Violated 判断 actual 是否越过 threshold。
func (o Operator) Violated(actual, threshold float64) bool {
	switch o {
	case OpGreaterOrEqual:
		return actual >= threshold
	case OpLess:
		return actual < threshold
	case OpLessOrEqual:
		return actual <= threshold
	default:
		return actual > threshold
	}
}

// Rule 单条阈值规则。Scenario 为空时作用于所有场景。
type Rule struct {
	Metric    string
	Operator  Operator
	Threshold float64
	Severity  types.Severity
	Scenario  string
}

func (r Rule) appliesTo(scope string) bool {
	return r.Scenario == "" || r.Scenario == scope
}

func (r Rule) message(scope string, actual float64) string {
	return fmt.Sprintf("%s %s=%.2f violates %s %.2f", scope, r.Metric, actual, r.Operator, r.Threshold)
}

// RulesFromConfig 由阈值配置和显式规则生成规则列表，零阈值不生成规则。
func RulesFromConfig(t config.ThresholdsConfig, extra []config.AlertRuleConfig) []Rule {
	var rules []Rule
	tier := func(metric string, tc config.TierConfig) {
		if tc.Critical > 0 {
			rules = append(rules, Rule{Metric: metric, Operator: OpGreater, Threshold: tc.Critical, Severity: types.SeverityCritical})
		}
		if tc.Warning > 0 {
			rules = append(rules, Rule{Metric: metric, Operator: OpGreater, Threshold: tc.Warning, Severity: types.SeverityWarning})
		}
	}
	tier(types.MetricAvgResponseTime, t.ResponseTime)
	tier(types.MetricErrorRate, t.ErrorRate)

	if t.AvailabilityTarget > 0 {
		rules = append(rules, Rule{Metric: types.MetricAvailability, Operator: OpLess, Threshold: t.AvailabilityTarget, Severity: types.SeverityCritical})
	}
	if t.MinThroughput > 0 {
		rules = append(rules, Rule{Metric: types.MetricThroughput, Operator: OpLess, Threshold: t.MinThroughput, Severity: types.SeverityWarning})
	}

	for _, rc := range extra {
		r := Rule{
			Metric:    rc.Metric,
			Operator:  Operator(rc.Operator),
			Threshold: rc.Threshold,
			Severity:  rc.Severity,
			Scenario:  rc.Scenario,
		}
		if r.Operator == "" {
			r.Operator = OpGreater
		}
		if r.Severity == "" {
			r.Severity = types.SeverityWarning
		}
		rules = append(rules, r)
	}
	return rules
}

func severityRank(s types.Severity) int {
	switch s {
	case types.SeverityCritical:
		return 2
	case types.SeverityWarning:
		return 1
	default:
		return 0
	}
}
