package models

import "time"

// EventType labels entries in the detection event log.
type EventType string

const (
	EventInfo    EventType = "info"
	EventWarning EventType = "warning"
	EventError   EventType = "error"
)

// DetectionEvent is a structured record of something the engine observed:
// an anomaly verdict, an executed remediation, an observed-only detection
// (anomalous sample with no threshold breach), or an action failure.
type DetectionEvent struct {
	Timestamp time.Time    `json:"timestamp"`
	Type      EventType    `json:"type"`
	Message   string       `json:"message"`
	Score     float64      `json:"score,omitempty"`
	Action    ActionKind   `json:"action,omitempty"`
	Sample    MetricSample `json:"metrics"`
}

// SystemStatus is the summary returned by the status endpoint.
type SystemStatus struct {
	Status             string `json:"status"`
	Monitoring         bool   `json:"monitoring"`
	ModelTrained       bool   `json:"model_trained"`
	AutoRestart        bool   `json:"auto_restart"`
	MaxRestartAttempts int    `json:"max_restart_attempts"`
}
