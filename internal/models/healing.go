package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ActionKind enumerates the remediation responses the healing engine knows.
type ActionKind string

const (
	ActionCPUOptimization         ActionKind = "cpu_optimization"
	ActionMemoryCleanup           ActionKind = "memory_cleanup"
	ActionPerformanceOptimization ActionKind = "performance_optimization"
	ActionErrorRecovery           ActionKind = "error_recovery"
)

// ActionKinds lists every kind in the fixed evaluation order: CPU first,
// then memory, response time, and error rate. Downstream consumers rely on
// this ordering being stable.
var ActionKinds = []ActionKind{
	ActionCPUOptimization,
	ActionMemoryCleanup,
	ActionPerformanceOptimization,
	ActionErrorRecovery,
}

// Valid reports whether k is a known action kind.
func (k ActionKind) Valid() bool {
	for _, known := range ActionKinds {
		if k == known {
			return true
		}
	}
	return false
}

// StatusExecuted is the only status a ledger entry carries today; entries
// are written after the action plan ran, never before.
const StatusExecuted = "executed"

// ActionLogEntry records one executed remediation. Entries are append-only
// and never mutated once written to the ledger.
type ActionLogEntry struct {
	ID            string
	Timestamp     time.Time
	Action        ActionKind
	TriggerMetric string
	TriggerValue  float64
	Steps         []string
	Status        string
}

// MarshalJSON emits the ledger wire shape:
//
//	{"timestamp": ..., "action": ..., "details": {"<trigger metric>": v, "actions": [...]}, "status": "executed"}
func (e ActionLogEntry) MarshalJSON() ([]byte, error) {
	details := map[string]any{
		"actions": e.Steps,
	}
	if e.TriggerMetric != "" {
		details[e.TriggerMetric] = e.TriggerValue
	}
	return json.Marshal(map[string]any{
		"id":        e.ID,
		"timestamp": e.Timestamp.Format(time.RFC3339Nano),
		"action":    e.Action,
		"details":   details,
		"status":    e.Status,
	})
}

// UnmarshalJSON restores an entry from its wire shape. The trigger metric is
// recovered as the single non-"actions" key inside details.
func (e *ActionLogEntry) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        string                     `json:"id"`
		Timestamp string                     `json:"timestamp"`
		Action    ActionKind                 `json:"action"`
		Details   map[string]json.RawMessage `json:"details"`
		Status    string                     `json:"status"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode action log entry: %w", err)
	}

	e.ID = raw.ID
	e.Action = raw.Action
	e.Status = raw.Status
	if raw.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw.Timestamp)
		if err != nil {
			return fmt.Errorf("parse action log timestamp: %w", err)
		}
		e.Timestamp = ts
	}

	for key, val := range raw.Details {
		if key == "actions" {
			if err := json.Unmarshal(val, &e.Steps); err != nil {
				return fmt.Errorf("decode action steps: %w", err)
			}
			continue
		}
		var v float64
		if err := json.Unmarshal(val, &v); err != nil {
			continue
		}
		e.TriggerMetric = key
		e.TriggerValue = v
	}
	return nil
}

// Verdict summarises the outcome of evaluating one sample.
type Verdict struct {
	Timestamp time.Time        `json:"timestamp"`
	Anomaly   bool             `json:"anomaly"`
	Score     float64          `json:"score"`
	Issues    []string         `json:"issues,omitempty"`
	Actions   []ActionLogEntry `json:"actions,omitempty"`
}

// ActionStat aggregates ledger history for one action kind.
type ActionStat struct {
	Action          ActionKind `json:"action"`
	Count           int        `json:"count"`
	LastExecuted    time.Time  `json:"last_executed"`
	AvgTriggerValue float64    `json:"avg_trigger_value"`
}
