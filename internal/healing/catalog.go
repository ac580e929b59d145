package healing

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/neurocloudstack/neurocloud-heal/internal/models"
)

// errorRateCritical is the error-rate breach threshold in percent. Unlike
// the other thresholds it is not configurable.
const errorRateCritical = 5.0

// Thresholds are the critical levels that map an anomalous sample to
// remediation actions. Loaded once at construction, immutable afterwards.
type Thresholds struct {
	CPUCritical          float64
	MemoryCritical       float64
	ResponseTimeCritical float64
}

// DefaultThresholds returns the documented fallback levels.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CPUCritical:          90,
		MemoryCritical:       85,
		ResponseTimeCritical: 5000,
	}
}

// Rule binds one metric threshold to an action kind and its ordered plan of
// remediation steps. Steps are data, not code: swapping in real hooks means
// swapping the catalog, not the decision logic.
type Rule struct {
	Metric    string
	Threshold float64
	Action    models.ActionKind
	Steps     []string
}

// Breach is a rule whose threshold the sample exceeded, with the observed value.
type Breach struct {
	Rule  Rule
	Value float64
}

// Catalog holds remediation rules in their fixed evaluation order: CPU,
// then memory, then response time, then error rate. Multiple thresholds can
// breach in one sample and consumers rely on this ordering being stable.
type Catalog struct {
	rules      []Rule
	thresholds Thresholds
}

// NewCatalog builds the default catalog for the given thresholds.
func NewCatalog(th Thresholds) *Catalog {
	def := DefaultThresholds()
	if th.CPUCritical <= 0 {
		th.CPUCritical = def.CPUCritical
	}
	if th.MemoryCritical <= 0 {
		th.MemoryCritical = def.MemoryCritical
	}
	if th.ResponseTimeCritical <= 0 {
		th.ResponseTimeCritical = def.ResponseTimeCritical
	}

	return &Catalog{thresholds: th, rules: []Rule{
		{
			Metric:    models.MetricCPUUsage,
			Threshold: th.CPUCritical,
			Action:    models.ActionCPUOptimization,
			Steps: []string{
				"Identified top CPU-consuming processes",
				"Reduced background task priority",
				"Enabled CPU throttling for non-critical services",
				"Distributed load across available cores",
			},
		},
		{
			Metric:    models.MetricMemoryUsage,
			Threshold: th.MemoryCritical,
			Action:    models.ActionMemoryCleanup,
			Steps: []string{
				"Cleared application caches",
				"Released unused memory buffers",
				"Optimized database connection pools",
				"Restarted memory-leaking services",
			},
		},
		{
			Metric:    models.MetricResponseTime,
			Threshold: th.ResponseTimeCritical,
			Action:    models.ActionPerformanceOptimization,
			Steps: []string{
				"Enabled response caching",
				"Optimized database queries",
				"Scaled up worker processes",
				"Activated CDN for static content",
			},
		},
		{
			Metric:    models.MetricErrorRate,
			Threshold: errorRateCritical,
			Action:    models.ActionErrorRecovery,
			Steps: []string{
				"Analyzed error logs for patterns",
				"Restarted failing services",
				"Reset connection pools",
				"Enabled circuit breakers",
			},
		},
	}}
}

// catalogFile is the YAML pack format for overriding action plans.
type catalogFile struct {
	Actions []struct {
		Action models.ActionKind `yaml:"action"`
		Steps  []string          `yaml:"steps"`
	} `yaml:"actions"`
}

// LoadCatalog builds the default catalog and overlays step plans from a YAML
// pack. A missing file is not an error; the defaults stand.
func LoadCatalog(path string, th Thresholds, logger *slog.Logger) (*Catalog, error) {
	catalog := NewCatalog(th)
	if path == "" {
		return catalog, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return catalog, nil
		}
		return nil, fmt.Errorf("read catalog pack: %w", err)
	}

	var pack catalogFile
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("parse catalog pack: %w", err)
	}

	for _, override := range pack.Actions {
		if !override.Action.Valid() || len(override.Steps) == 0 {
			if logger != nil {
				logger.Warn("skipping invalid catalog override", slog.String("action", string(override.Action)))
			}
			continue
		}
		for i := range catalog.rules {
			if catalog.rules[i].Action == override.Action {
				catalog.rules[i].Steps = append([]string(nil), override.Steps...)
			}
		}
	}
	return catalog, nil
}

// Evaluate returns every rule the sample breaches, in catalog order. A field
// the sample does not report can never breach.
func (c *Catalog) Evaluate(sample models.MetricSample) []Breach {
	var breaches []Breach
	for _, rule := range c.rules {
		value, ok := sample.Value(rule.Metric)
		if !ok {
			continue
		}
		if value > rule.Threshold {
			breaches = append(breaches, Breach{Rule: rule, Value: value})
		}
	}
	return breaches
}

// Rules returns a copy of the catalog in evaluation order.
func (c *Catalog) Rules() []Rule {
	return append([]Rule(nil), c.rules...)
}

// Thresholds returns the effective critical levels after defaulting.
func (c *Catalog) Thresholds() Thresholds {
	return c.thresholds
}
