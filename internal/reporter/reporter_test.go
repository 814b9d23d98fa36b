package reporter

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/bench-engine/pkg/types"
)

func sampleResult() *types.SuiteResult {
	return &types.SuiteResult{
		SuiteInfo: types.SuiteInfo{
			RunID:       "run-1",
			Name:        "checkout",
			Environment: "staging",
			Mode:        "sequential",
			Duration:    1500 * time.Millisecond,
			Order:       []string{"load", "cache"},
		},
		OverallResults: types.OverallResults{Success: false, ScenariosRun: 2, ScenariosPassed: 1, ScenariosFailed: 1, TotalRequests: 1200},
		TestResults: map[string]*types.ScenarioResult{
			"load": {
				Scenario: "load", Type: types.ScenarioLoad, Success: true, PerformanceScore: 92,
				Metrics: map[string]float64{types.MetricThroughput: 120, types.MetricAvgResponseTime: 12.5},
			},
			"cache": {
				Scenario: "cache", Type: types.ScenarioCache, PerformanceScore: 0,
				Metrics: map[string]float64{},
				Issues:  []types.Issue{{Severity: types.SeverityCritical, Category: "setup", Message: "redis unreachable"}},
			},
		},
		RegressionAnalysis: &types.RegressionAnalysis{
			Status: types.RegressionCompared,
			Trend:  types.TrendDegrading,
			Regressions: []types.MetricComparison{{
				Scenario: "load", Metric: types.MetricAvgResponseTime, Baseline: 10, Current: 12.5, PercentChange: 25,
			}},
		},
		PerformanceScore: types.PerformanceScore{Overall: 65.71, Grade: types.GradeD},
		Recommendations:  []string{"Scenario cache failed (redis unreachable); fix it before relying on the suite score"},
		Alerts: []types.Alert{
			{Severity: types.SeverityWarning, Message: "load: avg_response_time_ms 612.00 > 500.00"},
		},
	}
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "result.json")
	require.NoError(t, WriteJSON(path, sampleResult()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, sonic.Unmarshal(data, &doc))
	for _, key := range []string{"suiteInfo", "overallResults", "testResults", "regressionAnalysis", "performanceScore", "recommendations", "alerts"} {
		assert.Contains(t, doc, key)
	}
	assert.Equal(t, "D", doc["performanceScore"].(map[string]any)["grade"])
}

func TestWriteSummary(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, sampleResult()))
	out := buf.String()

	assert.Contains(t, out, "Suite checkout (staging) FAILED in 1.5s")
	assert.Contains(t, out, "Grade D")
	assert.Contains(t, out, "trend degrading, 1 regressions")
	assert.Contains(t, out, "load/avg_response_time_ms 10.00 -> 12.50 (+25.0%)")
	assert.Contains(t, out, "Alerts (1 warning)")
	assert.Contains(t, out, "Recommendations:")
	assert.Regexp(t, `cache\s+cache\s+failed`, out)
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("load  ")), bytes.Index(buf.Bytes(), []byte("cache  ")), "rows follow execution order")
}
