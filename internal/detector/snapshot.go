package detector

import (
	"encoding/json"
	"fmt"

	"github.com/neurocloudstack/neurocloud-heal/internal/models"
)

// snapshot is the persisted form of a trained detector. Restoring it and
// scoring must reproduce bit-identical verdicts to the state at save time,
// so every decision input is captured: schema, imputation means, scaler
// statistics, the full tree ensemble, and the fixed threshold.
type snapshot struct {
	Schema        []string         `json:"feature_columns"`
	Means         []float64        `json:"training_means"`
	ScalerMeans   []float64        `json:"scaler_means"`
	ScalerStds    []float64        `json:"scaler_stds"`
	Forest        *IsolationForest `json:"forest"`
	Threshold     float64          `json:"threshold"`
	Floor         float64          `json:"min_training_score"`
	Contamination float64          `json:"contamination"`
	Trained       bool             `json:"is_trained"`
}

// Snapshot serialises the trained state. An untrained detector has no state
// worth saving and returns ErrNotTrained.
func (d *Detector) Snapshot() ([]byte, error) {
	if !d.trained {
		return nil, ErrNotTrained
	}
	return json.Marshal(snapshot{
		Schema:        models.MetricFields,
		Means:         d.means,
		ScalerMeans:   d.scaler.means,
		ScalerStds:    d.scaler.stds,
		Forest:        d.forest,
		Threshold:     d.threshold,
		Floor:         d.floor,
		Contamination: d.cfg.Contamination,
		Trained:       d.trained,
	})
}

// Restore replaces the detector state with a previously saved snapshot.
// A snapshot taken under a different feature schema is rejected.
func (d *Detector) Restore(blob []byte) error {
	var snap snapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		return fmt.Errorf("decode detector snapshot: %w", err)
	}
	if !snap.Trained || snap.Forest == nil {
		return fmt.Errorf("detector snapshot is untrained")
	}
	if len(snap.Schema) != len(models.MetricFields) {
		return fmt.Errorf("detector snapshot schema width %d, want %d", len(snap.Schema), len(models.MetricFields))
	}
	for i, field := range snap.Schema {
		if field != models.MetricFields[i] {
			return fmt.Errorf("detector snapshot schema mismatch at %d: %s", i, field)
		}
	}

	d.means = snap.Means
	d.scaler = &Scaler{means: snap.ScalerMeans, stds: snap.ScalerStds, fitted: true}
	d.forest = snap.Forest
	d.threshold = snap.Threshold
	d.floor = snap.Floor
	if snap.Contamination > 0 {
		d.cfg.Contamination = snap.Contamination
	}
	d.trained = true
	return nil
}
