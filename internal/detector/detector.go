package detector

import (
	"fmt"
	"sort"

	"github.com/neurocloudstack/neurocloud-heal/internal/models"
)

// Config shapes the unsupervised model. Contamination is the fraction of
// training data assumed anomalous; it fixes the decision threshold at fit
// time so verdicts stay stable across scoring calls.
type Config struct {
	NumTrees           int
	SubsampleSize      int
	Contamination      float64
	Seed               int64
	MinTrainingSamples int
}

// DefaultConfig mirrors the production defaults: a 100-tree forest over
// 256-point subsamples, 10% contamination, and a 50-sample training floor.
func DefaultConfig() Config {
	return Config{
		NumTrees:           100,
		SubsampleSize:      256,
		Contamination:      0.1,
		Seed:               42,
		MinTrainingSamples: 50,
	}
}

// Detector scores metric samples against learned normal behaviour. It is
// untrained at construction; Score fails until Fit (or Restore) succeeds.
type Detector struct {
	cfg       Config
	scaler    *Scaler
	forest    *IsolationForest
	means     []float64
	threshold float64
	floor     float64
	trained   bool
}

// Result is the verdict for one sample. Score is monotonic with normality:
// higher means more consistent with the training corpus. Issues lists the
// metrics that look individually problematic, for display only.
type Result struct {
	Anomaly bool
	Score   float64
	Issues  []string
}

// New returns an untrained detector.
func New(cfg Config) *Detector {
	def := DefaultConfig()
	if cfg.NumTrees <= 0 {
		cfg.NumTrees = def.NumTrees
	}
	if cfg.SubsampleSize <= 0 {
		cfg.SubsampleSize = def.SubsampleSize
	}
	if cfg.Contamination <= 0 || cfg.Contamination >= 1 {
		cfg.Contamination = def.Contamination
	}
	if cfg.MinTrainingSamples <= 0 {
		cfg.MinTrainingSamples = def.MinTrainingSamples
	}
	return &Detector{cfg: cfg}
}

// Fit trains the scaler and forest on the corpus and fixes the anomaly
// threshold at the contamination quantile of the training scores.
// Retraining replaces all prior state.
func (d *Detector) Fit(samples []models.MetricSample) error {
	if len(samples) < d.cfg.MinTrainingSamples {
		return fmt.Errorf("train on %d samples, need %d: %w",
			len(samples), d.cfg.MinTrainingSamples, ErrInsufficientData)
	}

	means := featureMeans(samples)
	vectors := make([][]float64, len(samples))
	for i, sample := range samples {
		vectors[i] = vectorize(sample, means)
	}

	scaler := NewScaler()
	if err := scaler.Fit(vectors); err != nil {
		return err
	}

	scaled := make([][]float64, len(vectors))
	for i, vec := range vectors {
		sv, err := scaler.Transform(vec)
		if err != nil {
			return err
		}
		scaled[i] = sv
	}

	forest := NewIsolationForest(d.cfg.NumTrees, d.cfg.SubsampleSize, d.cfg.Seed)
	forest.Fit(scaled)

	scores := make([]float64, len(scaled))
	for i, vec := range scaled {
		scores[i] = -forest.AnomalyScore(vec)
	}
	sort.Float64s(scores)
	idx := int(d.cfg.Contamination * float64(len(scores)))
	if idx >= len(scores) {
		idx = len(scores) - 1
	}

	d.means = means
	d.scaler = scaler
	d.forest = forest
	d.threshold = scores[idx]
	d.floor = scores[0]
	d.trained = true
	return nil
}

// Score evaluates one sample. Missing recognized fields are imputed with the
// training mean; nothing is rejected for being incomplete.
func (d *Detector) Score(sample models.MetricSample) (Result, error) {
	if !d.trained {
		return Result{}, ErrNotTrained
	}

	vec := vectorize(sample, d.means)
	scaled, err := d.scaler.Transform(vec)
	if err != nil {
		return Result{}, err
	}

	// The floor is the lowest score seen while training; a sample at or
	// below it sits outside everything the model has observed.
	score := -d.forest.AnomalyScore(scaled)
	res := Result{
		Anomaly: score < d.threshold || (d.floor < 0 && score <= d.floor),
		Score:   score,
	}
	if res.Anomaly {
		res.Issues = problematicMetrics(sample)
	}
	return res, nil
}

// Trained reports whether the detector can score.
func (d *Detector) Trained() bool {
	return d.trained
}

// problematicMetrics names the individually suspicious readings of an
// anomalous sample. These cut-offs are advisory display hints, looser than
// the critical thresholds that drive remediation.
func problematicMetrics(sample models.MetricSample) []string {
	var issues []string
	if v := sample.Get(models.MetricCPUUsage); v > 85 {
		issues = append(issues, fmt.Sprintf("High CPU: %.1f%%", v))
	}
	if v := sample.Get(models.MetricMemoryUsage); v > 80 {
		issues = append(issues, fmt.Sprintf("High Memory: %.1f%%", v))
	}
	if v := sample.Get(models.MetricResponseTime); v > 1000 {
		issues = append(issues, fmt.Sprintf("Slow Response: %.0fms", v))
	}
	if v := sample.Get(models.MetricErrorRate); v > 5 {
		issues = append(issues, fmt.Sprintf("High Errors: %.1f%%", v))
	}
	return issues
}
