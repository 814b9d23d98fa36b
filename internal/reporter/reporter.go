// Package reporter 输出套件结果：JSON 文档和控制台摘要。
package reporter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"yqhp/bench-engine/pkg/types"
)

// MarshalJSON 以缩进格式序列化套件结果。
func MarshalJSON(result *types.SuiteResult) ([]byte, error) {
	return sonic.ConfigStd.MarshalIndent(result, "", "  ")
}

// WriteJSON 将套件结果写入 path，path 为 "-" 时写到标准输出。
func WriteJSON(path string, result *types.SuiteResult) error {
	data, err := MarshalJSON(result)
	if err != nil {
		return fmt.Errorf("序列化结果失败: %w", err)
	}
	data = append(data, '\n')
	if path == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("创建输出目录失败: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("写入结果失败: %w", err)
	}
	return nil
}

// WriteSummary 输出人类可读的摘要。非终端输出时不带颜色。
func WriteSummary(w io.Writer, result *types.SuiteResult) error {
	info := result.SuiteInfo
	score := result.PerformanceScore
	overall := result.OverallResults

	status := color.GreenString("PASSED")
	if !overall.Success {
		status = color.RedString("FAILED")
	}
	fmt.Fprintf(w, "Suite %s (%s) %s in %s\n", info.Name, info.Environment, status, info.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Score %.2f  Grade %s  Scenarios %d passed / %d failed  Requests %d (%.2f%% errors)\n\n",
		score.Overall, score.Grade, overall.ScenariosPassed, overall.ScenariosFailed, overall.TotalRequests, overall.ErrorRate)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"SCENARIO", "TYPE", "STATUS", "SCORE", "RPS", "AVG ms", "P95 ms", "ERR %", "ISSUES"})
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetColumnSeparator("")
	table.SetCenterSeparator("")
	table.SetRowSeparator("")
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	ok := color.New(color.FgGreen).SprintFunc()
	failed := color.New(color.FgRed, color.Bold).SprintFunc()
	for _, name := range info.Order {
		r := result.TestResults[name]
		if r == nil {
			continue
		}
		state := ok("ok")
		if !r.Success {
			state = failed("failed")
		}
		m := r.Metrics
		table.Append([]string{
			name,
			string(r.Type),
			state,
			fmt.Sprintf("%.1f", r.PerformanceScore),
			fmt.Sprintf("%.1f", m[types.MetricThroughput]),
			fmt.Sprintf("%.2f", m[types.MetricAvgResponseTime]),
			fmt.Sprintf("%.2f", m[types.MetricP95ResponseTime]),
			fmt.Sprintf("%.2f", m[types.MetricErrorRate]),
			fmt.Sprintf("%d", len(r.Issues)),
		})
	}
	table.Render()

	if a := result.RegressionAnalysis; a != nil {
		fmt.Fprintln(w)
		switch a.Status {
		case types.RegressionNoBaseline:
			fmt.Fprintln(w, "Regression: no baseline")
		default:
			fmt.Fprintf(w, "Regression: trend %s, %d regressions, %d improvements\n", a.Trend, len(a.Regressions), len(a.Improvements))
			for _, c := range a.Regressions {
				fmt.Fprintf(w, "  - %s/%s %.2f -> %.2f (%+.1f%%)\n", c.Scenario, c.Metric, c.Baseline, c.Current, c.PercentChange)
			}
		}
	}

	if len(result.Alerts) > 0 {
		fmt.Fprintf(w, "\nAlerts (%s):\n", countBySeverity(result.Alerts))
		for _, a := range result.Alerts {
			fmt.Fprintf(w, "  [%s] %s\n", a.Severity, a.Message)
		}
	}

	if len(result.Recommendations) > 0 {
		fmt.Fprintln(w, "\nRecommendations:")
		for _, rec := range result.Recommendations {
			fmt.Fprintf(w, "  - %s\n", rec)
		}
	}
	return nil
}

func countBySeverity(alerts []types.Alert) string {
	counts := map[types.Severity]int{}
	for _, a := range alerts {
		counts[a.Severity]++
	}
	parts := make([]string, 0, len(counts))
	for sev, n := range counts {
		parts = append(parts, fmt.Sprintf("%d %s", n, sev))
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}
