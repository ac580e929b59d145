package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Recognized metric field names, in the fixed feature order used by the detector.
const (
	MetricCPUUsage          = "cpu_usage"
	MetricMemoryUsage       = "memory_usage"
	MetricDiskUsage         = "disk_usage"
	MetricNetworkThroughput = "network_throughput"
	MetricResponseTime      = "response_time"
	MetricActiveConnections = "active_connections"
	MetricErrorRate         = "error_rate"
)

// MetricFields lists the recognized fields in canonical order. The detector,
// the scaler, and every persisted vector rely on this order staying fixed.
var MetricFields = []string{
	MetricCPUUsage,
	MetricMemoryUsage,
	MetricDiskUsage,
	MetricNetworkThroughput,
	MetricResponseTime,
	MetricActiveConnections,
	MetricErrorRate,
}

// MetricSample is a single observation of system health. Values holds only
// recognized fields; anything else on the wire is dropped at decode time.
// A recognized field may be absent, in which case the detector imputes the
// training-set mean for it.
type MetricSample struct {
	Timestamp time.Time
	Values    map[string]float64
}

// NewMetricSample returns a sample with an empty value set.
func NewMetricSample(ts time.Time) MetricSample {
	return MetricSample{Timestamp: ts, Values: make(map[string]float64, len(MetricFields))}
}

// Value reports the reading for a recognized field and whether it is present.
func (s MetricSample) Value(field string) (float64, bool) {
	v, ok := s.Values[field]
	return v, ok
}

// Get returns the reading for a field, or zero when absent. Threshold checks
// use this deliberately: an unreported metric can never breach a threshold.
func (s MetricSample) Get(field string) float64 {
	return s.Values[field]
}

// Set records a reading for a recognized field; unrecognized names are ignored.
func (s MetricSample) Set(field string, value float64) {
	for _, known := range MetricFields {
		if field == known {
			s.Values[field] = value
			return
		}
	}
}

// MarshalJSON renders the sample as a flat object with an ISO-8601 timestamp,
// the shape the metric log and the dashboard consume.
func (s MetricSample) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Values)+1)
	out["timestamp"] = s.Timestamp.Format(time.RFC3339Nano)
	for field, value := range s.Values {
		out[field] = value
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a flat sample object, keeping recognized numeric
// fields and silently dropping everything else.
func (s *MetricSample) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode sample: %w", err)
	}

	s.Values = make(map[string]float64, len(MetricFields))
	if tsRaw, ok := raw["timestamp"]; ok {
		var tsStr string
		if err := json.Unmarshal(tsRaw, &tsStr); err != nil {
			return fmt.Errorf("decode sample timestamp: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, tsStr)
		if err != nil {
			ts, err = time.Parse(time.RFC3339, tsStr)
			if err != nil {
				return fmt.Errorf("parse sample timestamp: %w", err)
			}
		}
		s.Timestamp = ts
	}

	for _, field := range MetricFields {
		valRaw, ok := raw[field]
		if !ok {
			continue
		}
		var v float64
		if err := json.Unmarshal(valRaw, &v); err != nil {
			return fmt.Errorf("decode sample field %s: %w", field, err)
		}
		s.Values[field] = v
	}
	return nil
}
