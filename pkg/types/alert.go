package types

import "time"

// AlertState is the lifecycle state of an alert.
type AlertState string

const (
	AlertActive       AlertState = "active"
	AlertAcknowledged AlertState = "acknowledged"
	AlertResolved     AlertState = "resolved"
)

// Alert is raised when a metric crosses a configured threshold.
type Alert struct {
	ID             string     `json:"id"`
	Severity       Severity   `json:"severity"`
	Metric         string     `json:"metric"`
	Scenario       string     `json:"scenario,omitempty"`
	Threshold      float64    `json:"threshold"`
	ActualValue    float64    `json:"actualValue"`
	Message        string     `json:"message"`
	Timestamp      time.Time  `json:"timestamp"`
	State          AlertState `json:"state"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedAt *time.Time `json:"acknowledgedAt,omitempty"`
	ResolvedAt     *time.Time `json:"resolvedAt,omitempty"`
}
