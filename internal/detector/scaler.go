package detector

import (
	"fmt"
	"math"
)

// Scaler standardizes feature vectors to zero mean and unit variance using
// statistics fixed at fit time. Fit is called exactly once per training run;
// retraining replaces the state wholesale.
type Scaler struct {
	means  []float64
	stds   []float64
	fitted bool
}

// NewScaler returns an unfitted scaler.
func NewScaler() *Scaler {
	return &Scaler{}
}

// Fit computes per-feature mean and standard deviation over the corpus.
// A feature with zero variance gets a unit scale so transforms of the
// constant value map to zero instead of dividing by zero.
func (s *Scaler) Fit(vectors [][]float64) error {
	if len(vectors) == 0 {
		return fmt.Errorf("fit scaler: %w", ErrInsufficientData)
	}

	width := len(vectors[0])
	s.means = make([]float64, width)
	s.stds = make([]float64, width)

	for _, vec := range vectors {
		for i, v := range vec {
			s.means[i] += v
		}
	}
	n := float64(len(vectors))
	for i := range s.means {
		s.means[i] /= n
	}

	for _, vec := range vectors {
		for i, v := range vec {
			d := v - s.means[i]
			s.stds[i] += d * d
		}
	}
	for i := range s.stds {
		s.stds[i] = math.Sqrt(s.stds[i] / n)
		if s.stds[i] == 0 {
			s.stds[i] = 1
		}
	}

	s.fitted = true
	return nil
}

// Transform standardizes a single vector. It is a pure function of the
// fitted state and its input.
func (s *Scaler) Transform(vec []float64) ([]float64, error) {
	if !s.fitted {
		return nil, ErrNotFitted
	}
	if len(vec) != len(s.means) {
		return nil, fmt.Errorf("transform: vector width %d, scaler width %d", len(vec), len(s.means))
	}

	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = (v - s.means[i]) / s.stds[i]
	}
	return out, nil
}

// Fitted reports whether Fit has run.
func (s *Scaler) Fitted() bool {
	return s.fitted
}
