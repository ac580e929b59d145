package healing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/neurocloudstack/neurocloud-heal/internal/detector"
	"github.com/neurocloudstack/neurocloud-heal/internal/models"
)

// Orchestrator composes the detector, catalog, cooldown table, and ledger
// into the detect-decide-dispatch-log loop. All mutating operations are
// serialised by one mutex scoped to the instance; there is no process-wide
// state. Exactly one detector and one cooldown table exist per orchestrator.
type Orchestrator struct {
	mu        sync.Mutex
	logger    *slog.Logger
	detector  *detector.Detector
	catalog   *Catalog
	cooldowns *CooldownTable
	ledger    *Ledger
	executor  Executor
	observer  Observer

	lastVerdict models.Verdict
	now         func() time.Time
}

// NewOrchestrator wires the healing loop. Nil logger, executor, or observer
// fall back to safe defaults; the remaining collaborators are required.
func NewOrchestrator(
	logger *slog.Logger,
	det *detector.Detector,
	catalog *Catalog,
	cooldowns *CooldownTable,
	ledger *Ledger,
	executor Executor,
	observer Observer,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if catalog == nil {
		catalog = NewCatalog(DefaultThresholds())
	}
	if cooldowns == nil {
		cooldowns = NewCooldownTable(DefaultCooldown)
	}
	if ledger == nil {
		ledger = NewLedger(DefaultLedgerCapacity)
	}
	if executor == nil {
		executor = NewSimulatedExecutor(logger)
	}
	if observer == nil {
		observer = NewLogObserver(logger)
	}

	return &Orchestrator{
		logger:    logger,
		detector:  det,
		catalog:   catalog,
		cooldowns: cooldowns,
		ledger:    ledger,
		executor:  executor,
		observer:  observer,
		now:       time.Now,
	}
}

// Train fits the detector on the corpus. Failure leaves the previous model,
// the cooldown table, and the ledger untouched.
func (o *Orchestrator) Train(corpus []models.MetricSample) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.detector.Fit(corpus); err != nil {
		return fmt.Errorf("train detector: %w", err)
	}
	o.logger.Info("detector trained", slog.Int("samples", len(corpus)))
	return nil
}

// Trained reports whether the detector can score.
func (o *Orchestrator) Trained() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.detector.Trained()
}

// ProcessSample runs one sample through detect, decide, dispatch, and log.
// The returned verdict carries the ledger entries created for this sample:
// none when the sample is healthy, when no critical threshold is breached,
// or when every breached action is still cooling down. Scoring errors abort
// the whole evaluation without touching cooldown or ledger state.
func (o *Orchestrator) ProcessSample(ctx context.Context, sample models.MetricSample) (models.Verdict, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	res, err := o.detector.Score(sample)
	if err != nil {
		return models.Verdict{}, fmt.Errorf("score sample: %w", err)
	}

	now := o.now()
	verdict := models.Verdict{
		Timestamp: now,
		Anomaly:   res.Anomaly,
		Score:     res.Score,
		Issues:    res.Issues,
	}

	if !res.Anomaly {
		o.lastVerdict = verdict
		return verdict, nil
	}

	breaches := o.catalog.Evaluate(sample)
	if len(breaches) == 0 {
		// The model flagged the sample but nothing is critical enough to act
		// on. Record the detection at low severity and move on.
		o.observer.ObserveEvent(models.DetectionEvent{
			Timestamp: now,
			Type:      models.EventInfo,
			Message:   "Anomaly observed, no threshold breached",
			Score:     res.Score,
			Sample:    sample,
		})
		o.lastVerdict = verdict
		return verdict, nil
	}

	o.observer.ObserveEvent(models.DetectionEvent{
		Timestamp: now,
		Type:      models.EventWarning,
		Message:   "Anomaly detected: " + strings.Join(res.Issues, ", "),
		Score:     res.Score,
		Sample:    sample,
	})

	verdict.Actions = o.dispatch(ctx, breaches, now, sample)
	o.lastVerdict = verdict
	return verdict, nil
}

// dispatch fires each cooldown-eligible breach in catalog order. A failing
// executor isolates to its own action kind: the failure is reported and the
// remaining breaches still run. Failed actions do not enter the ledger and
// do not consume their cooldown.
func (o *Orchestrator) dispatch(ctx context.Context, breaches []Breach, now time.Time, sample models.MetricSample) []models.ActionLogEntry {
	var executed []models.ActionLogEntry
	for _, breach := range breaches {
		kind := breach.Rule.Action
		if !o.cooldowns.MayFire(kind, now) {
			continue
		}

		if err := o.executor.Execute(ctx, kind, breach.Rule.Steps); err != nil {
			o.logger.Error("remediation failed",
				slog.String("action", string(kind)), slog.Any("error", err))
			o.observer.ObserveEvent(models.DetectionEvent{
				Timestamp: now,
				Type:      models.EventError,
				Message:   fmt.Sprintf("Remediation %s failed: %v", kind, err),
				Action:    kind,
				Sample:    sample,
			})
			continue
		}

		entry := models.ActionLogEntry{
			ID:            uuid.NewString(),
			Timestamp:     now,
			Action:        kind,
			TriggerMetric: breach.Rule.Metric,
			TriggerValue:  breach.Value,
			Steps:         append([]string(nil), breach.Rule.Steps...),
			Status:        models.StatusExecuted,
		}
		o.ledger.Append(entry)
		o.cooldowns.Record(kind, now)
		executed = append(executed, entry)

		o.observer.ObserveEvent(models.DetectionEvent{
			Timestamp: now,
			Type:      models.EventWarning,
			Message:   fmt.Sprintf("Healing action executed: %s (%s=%.1f)", kind, breach.Rule.Metric, breach.Value),
			Action:    kind,
			Sample:    sample,
		})
	}
	return executed
}

// History returns the remediation ledger, oldest first, bounded.
func (o *Orchestrator) History() []models.ActionLogEntry {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ledger.Entries()
}

// LastVerdict returns the outcome of the most recent evaluation.
func (o *Orchestrator) LastVerdict() models.Verdict {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastVerdict
}

// SnapshotModel serialises the trained detector for persistence.
func (o *Orchestrator) SnapshotModel() ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.detector.Snapshot()
}

// RestoreModel loads a detector snapshot, bringing the orchestrator straight
// to the trained state without refitting.
func (o *Orchestrator) RestoreModel(blob []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.detector.Restore(blob)
}

// SnapshotLedger serialises the remediation history.
func (o *Orchestrator) SnapshotLedger() ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ledger.Snapshot()
}

// RestoreLedger reloads remediation history from a snapshot.
func (o *Orchestrator) RestoreLedger(blob []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ledger.Restore(blob)
}
