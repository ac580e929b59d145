package detector

import (
	"github.com/neurocloudstack/neurocloud-heal/internal/models"
)

// featureMeans computes the per-field mean over every sample that reports the
// field. Fields absent from the whole corpus get a zero mean; the scaler then
// treats them as constant.
func featureMeans(samples []models.MetricSample) []float64 {
	means := make([]float64, len(models.MetricFields))
	for i, field := range models.MetricFields {
		sum := 0.0
		n := 0
		for _, sample := range samples {
			if v, ok := sample.Value(field); ok {
				sum += v
				n++
			}
		}
		if n > 0 {
			means[i] = sum / float64(n)
		}
	}
	return means
}

// vectorize projects a sample onto the fixed feature order, imputing the
// supplied training mean for any missing field. Timestamps and unrecognized
// fields never reach the vector, so two samples with identical recognized
// values always produce identical vectors.
func vectorize(sample models.MetricSample, means []float64) []float64 {
	vec := make([]float64, len(models.MetricFields))
	for i, field := range models.MetricFields {
		if v, ok := sample.Value(field); ok {
			vec[i] = v
		} else {
			vec[i] = means[i]
		}
	}
	return vec
}
