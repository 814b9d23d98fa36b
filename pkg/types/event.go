package types

import "time"

// EventType is the kind of payload an Event carries.
type EventType string

const (
	EventMetrics  EventType = "metrics"
	EventAlert    EventType = "alert"
	EventStage    EventType = "stage"
	EventScenario EventType = "scenario"
)

// Event is a progress or alert notification published while a suite runs.
type Event struct {
	Type      EventType `json:"type"`
	Scenario  string    `json:"scenario,omitempty"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// StageProgress is the payload of a stage event.
type StageProgress struct {
	Stage   string  `json:"stage"`
	Percent float64 `json:"percent"`
	Message string  `json:"message,omitempty"`
}

// ScenarioStatus is the payload of a scenario event.
type ScenarioStatus struct {
	Status string  `json:"status"`
	Score  float64 `json:"score,omitempty"`
	Error  string  `json:"error,omitempty"`
}
