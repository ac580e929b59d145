package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// VerdictNormal labels samples scored inside the learned envelope.
	VerdictNormal = "normal"
	// VerdictAnomaly labels samples flagged by the detector.
	VerdictAnomaly = "anomaly"
	// VerdictError labels samples whose evaluation failed.
	VerdictError = "error"
)

var (
	samplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "neurocloud_heal",
			Name:      "samples_total",
			Help:      "Total number of metric samples evaluated, partitioned by verdict.",
		},
		[]string{"verdict"},
	)

	actionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "neurocloud_heal",
			Name:      "actions_total",
			Help:      "Total number of healing actions executed, partitioned by action kind.",
		},
		[]string{"action"},
	)

	anomalyScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "neurocloud_heal",
			Name:      "anomaly_score",
			Help:      "Detector scores; lower values indicate stronger anomalies.",
			Buckets:   []float64{-0.3, -0.2, -0.15, -0.1, -0.05, 0, 0.05, 0.1, 0.15, 0.2},
		},
	)

	evaluationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "neurocloud_heal",
			Name:      "evaluation_seconds",
			Help:      "Sample evaluation latency in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		},
	)
)

// Register attaches the engine collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		samplesTotal,
		actionsTotal,
		anomalyScore,
		evaluationSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveEvaluation records one scored sample: its verdict, score and latency.
func ObserveEvaluation(duration time.Duration, verdict string, score float64) {
	samplesTotal.WithLabelValues(verdict).Inc()
	if verdict != VerdictError {
		anomalyScore.Observe(score)
	}
	if duration < 0 {
		duration = 0
	}
	evaluationSeconds.Observe(duration.Seconds())
}

// ObserveAction counts one executed healing action.
func ObserveAction(action string) {
	actionsTotal.WithLabelValues(action).Inc()
}
