package types

import "time"

// Grade is the letter grade of an overall performance score.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// GradeFor maps a 0-100 score to its letter grade.
func GradeFor(score float64) Grade {
	switch {
	case score >= 90:
		return GradeA
	case score >= 80:
		return GradeB
	case score >= 70:
		return GradeC
	case score >= 60:
		return GradeD
	default:
		return GradeF
	}
}

// SuiteInfo identifies a suite run.
type SuiteInfo struct {
	RunID       string        `json:"runId"`
	Name        string        `json:"name"`
	Version     string        `json:"version,omitempty"`
	Environment string        `json:"environment,omitempty"`
	Mode        string        `json:"mode"`
	Start       time.Time     `json:"start"`
	End         time.Time     `json:"end"`
	Duration    time.Duration `json:"duration"`
	Order       []string      `json:"order"`
}

// OverallResults summarises every scenario of a suite run.
type OverallResults struct {
	Success         bool    `json:"success"`
	ScenariosRun    int     `json:"testsRun"`
	ScenariosPassed int     `json:"testsPassed"`
	ScenariosFailed int     `json:"testsFailed"`
	TotalRequests   int64   `json:"totalRequests"`
	FailedRequests  int64   `json:"failedRequests"`
	ErrorRate       float64 `json:"errorRate"`
	CriticalIssues  int     `json:"criticalIssues"`
}

// PerformanceScore is the weighted suite score and its breakdown.
type PerformanceScore struct {
	Overall    float64            `json:"overall"`
	Grade      Grade              `json:"grade"`
	Categories map[string]float64 `json:"categories"`
	Weights    map[string]float64 `json:"weights"`
}

// SuiteResult is the complete output of a suite run.
type SuiteResult struct {
	SuiteInfo          SuiteInfo                  `json:"suiteInfo"`
	OverallResults     OverallResults             `json:"overallResults"`
	TestResults        map[string]*ScenarioResult `json:"testResults"`
	RegressionAnalysis *RegressionAnalysis        `json:"regressionAnalysis"`
	PerformanceScore   PerformanceScore           `json:"performanceScore"`
	Recommendations    []string                   `json:"recommendations"`
	Alerts             []Alert                    `json:"alerts"`
}
