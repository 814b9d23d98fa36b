package suite

import (
	"fmt"
	"sort"
	"strings"

	"github.com/duke-git/lancet/v2/maputil"
	"github.com/duke-git/lancet/v2/slice"

	"yqhp/bench-engine/internal/config"
	"yqhp/bench-engine/pkg/types"
)

// cacheHitRatioFloor 低于该命中率时建议调整缓存
const cacheHitRatioFloor = 0.8

// Recommend 根据场景结果、回归分析和阈值生成建议，按场景名排序，去重。
func Recommend(result *types.SuiteResult, cfg *config.BenchmarkConfig) []string {
	var out []string
	names := maputil.Keys(result.TestResults)
	sort.Strings(names)

	for _, name := range names {
		r := result.TestResults[name]
		if r == nil {
			continue
		}
		out = append(out, scenarioAdvice(name, r, cfg.Thresholds)...)
	}

	if a := result.RegressionAnalysis; a.HasRegressions() {
		metrics := slice.Map(a.Regressions, func(_ int, c types.MetricComparison) string {
			return fmt.Sprintf("%s/%s %+.1f%%", c.Scenario, c.Metric, c.PercentChange)
		})
		out = append(out, fmt.Sprintf("Investigate %d regressions against the baseline: %s",
			len(a.Regressions), strings.Join(metrics, ", ")))
	}

	critical := slice.Filter(result.Alerts, func(_ int, a types.Alert) bool {
		return a.Severity == types.SeverityCritical && a.State == types.AlertActive
	})
	if len(critical) > 0 {
		out = append(out, fmt.Sprintf("Resolve %d critical alerts before the next release", len(critical)))
	}

	if len(out) == 0 {
		out = append(out, "All scenarios met their thresholds; keep the current baseline as reference")
	}
	return slice.Unique(out)
}

func scenarioAdvice(name string, r *types.ScenarioResult, t config.ThresholdsConfig) []string {
	var out []string
	m := r.Metrics

	if !r.Success {
		reason := "unknown error"
		for _, issue := range r.Issues {
			if issue.Severity == types.SeverityCritical {
				reason = issue.Message
				break
			}
		}
		return []string{fmt.Sprintf("Scenario %s failed (%s); fix it before relying on the suite score", name, reason)}
	}

	if limit := t.ErrorRate.Warning; limit > 0 && m[types.MetricErrorRate] > limit {
		out = append(out, fmt.Sprintf("Reduce the error rate of %s (%.2f%%, limit %.2f%%)", name, m[types.MetricErrorRate], limit))
	}
	if limit := t.ResponseTime.Warning; limit > 0 && m[types.MetricP95ResponseTime] > limit {
		out = append(out, fmt.Sprintf("Optimise response time of %s: p95 %.1fms exceeds %.1fms", name, m[types.MetricP95ResponseTime], limit))
	}
	if bp := r.BreakingPoint; bp != nil {
		out = append(out, fmt.Sprintf("%s degrades at %d concurrent users (%s); plan capacity below that level", name, bp.UserCount, bp.TriggeringMetric))
	}
	if ratio, ok := m[types.MetricHitRatio]; ok && ratio < cacheHitRatioFloor {
		out = append(out, fmt.Sprintf("Cache hit ratio of %s is %.0f%%; increase capacity or review the key distribution", name, ratio*100))
	}
	if m[types.MetricPoolTimeouts] > 0 {
		out = append(out, fmt.Sprintf("Increase the connection pool of %s: %.0f acquires timed out", name, m[types.MetricPoolTimeouts]))
	}

	for _, issue := range r.Issues {
		switch issue.Category {
		case "memory_leak":
			out = append(out, fmt.Sprintf("Profile heap usage of %s: %s", name, issue.Message))
		case "scalability":
			out = append(out, fmt.Sprintf("Remove contention in %s: %s", name, issue.Message))
		case "stability":
			out = append(out, fmt.Sprintf("Stabilise %s: %s", name, issue.Message))
		}
	}
	return out
}
