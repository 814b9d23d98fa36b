package types

import "time"

// ScenarioType identifies the category of a benchmark scenario.
type ScenarioType string

const (
	ScenarioLoad        ScenarioType = "load"
	ScenarioStress      ScenarioType = "stress"
	ScenarioCache       ScenarioType = "cache"
	ScenarioDatabase    ScenarioType = "database"
	ScenarioAPI         ScenarioType = "api"
	ScenarioMemory      ScenarioType = "memory"
	ScenarioScalability ScenarioType = "scalability"
)

// AllScenarioTypes lists every supported scenario type.
func AllScenarioTypes() []ScenarioType {
	return []ScenarioType{
		ScenarioLoad, ScenarioStress, ScenarioCache, ScenarioDatabase,
		ScenarioAPI, ScenarioMemory, ScenarioScalability,
	}
}

// IsValid reports whether t is a known scenario type.
func (t ScenarioType) IsValid() bool {
	for _, known := range AllScenarioTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Severity classifies issues and alerts.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Issue is a problem found while running or analysing a scenario.
type Issue struct {
	Severity Severity `json:"severity"`
	Category string   `json:"category"`
	Message  string   `json:"message"`
}

// BreakingPoint records the first moment a degradation criterion was violated.
type BreakingPoint struct {
	Step             int            `json:"step"`
	UserCount        int            `json:"userCount"`
	Timestamp        time.Time      `json:"timestamp"`
	TriggeringMetric string         `json:"triggeringMetric"`
	Threshold        float64        `json:"threshold"`
	ActualValue      float64        `json:"actualValue"`
	Snapshot         MetricSnapshot `json:"snapshot"`
}

// Stability describes how steady the sustained phase was.
type Stability struct {
	Samples          int     `json:"samples"`
	LatencyCV        float64 `json:"latencyCv"`
	ThroughputCV     float64 `json:"throughputCv"`
	LatencyStable    bool    `json:"latencyStable"`
	ThroughputStable bool    `json:"throughputStable"`
	Stable           bool    `json:"stable"`
	Score            float64 `json:"score"`
}

// StageTiming records when a scenario entered and left one of its stages.
type StageTiming struct {
	Stage string    `json:"stage"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ScenarioResult is the outcome of one scenario run.
type ScenarioResult struct {
	Scenario         string             `json:"scenario"`
	Type             ScenarioType       `json:"type"`
	Start            time.Time          `json:"start"`
	End              time.Time          `json:"end"`
	Duration         time.Duration      `json:"duration"`
	Success          bool               `json:"success"`
	Metrics          map[string]float64 `json:"metrics"`
	PerformanceScore float64            `json:"performanceScore"`
	Issues           []Issue            `json:"issues,omitempty"`
	BreakingPoint    *BreakingPoint     `json:"breakingPoint,omitempty"`
	Stability        *Stability         `json:"stability,omitempty"`
	Summary          *RunSummary        `json:"summary,omitempty"`
	TimeSeries       []MetricSnapshot   `json:"timeSeries,omitempty"`
	Stages           []StageTiming      `json:"stages,omitempty"`
}

// AddIssue appends an issue to the result.
func (r *ScenarioResult) AddIssue(severity Severity, category, message string) {
	r.Issues = append(r.Issues, Issue{Severity: severity, Category: category, Message: message})
}

// HasCritical reports whether any critical issue was recorded.
func (r *ScenarioResult) HasCritical() bool {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// NewFailedResult builds the result of a scenario that could not run.
func NewFailedResult(name string, typ ScenarioType, start time.Time, category string, err error) *ScenarioResult {
	end := time.Now()
	r := &ScenarioResult{
		Scenario: name,
		Type:     typ,
		Start:    start,
		End:      end,
		Duration: end.Sub(start),
		Success:  false,
		Metrics:  map[string]float64{},
	}
	r.AddIssue(SeverityCritical, category, err.Error())
	return r
}
