package healing

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/neurocloudstack/neurocloud-heal/internal/detector"
	"github.com/neurocloudstack/neurocloud-heal/internal/models"
)

func trainingCorpus(n int) []models.MetricSample {
	rng := rand.New(rand.NewSource(11))
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	samples := make([]models.MetricSample, 0, n)
	for i := 0; i < n; i++ {
		s := models.NewMetricSample(base.Add(time.Duration(i) * 5 * time.Second))
		s.Set(models.MetricCPUUsage, 40+rng.NormFloat64()*5)
		s.Set(models.MetricMemoryUsage, 50+rng.NormFloat64()*3)
		s.Set(models.MetricDiskUsage, 60+rng.NormFloat64()*2)
		s.Set(models.MetricNetworkThroughput, 100+rng.NormFloat64()*10)
		s.Set(models.MetricResponseTime, 210+rng.NormFloat64()*20)
		s.Set(models.MetricActiveConnections, float64(100+rng.Intn(40)))
		s.Set(models.MetricErrorRate, rng.Float64()*2)
		samples = append(samples, s)
	}
	return samples
}

func criticalSample() models.MetricSample {
	s := models.NewMetricSample(time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC))
	s.Set(models.MetricCPUUsage, 98)
	s.Set(models.MetricMemoryUsage, 92)
	s.Set(models.MetricDiskUsage, 60)
	s.Set(models.MetricNetworkThroughput, 100)
	s.Set(models.MetricResponseTime, 6000)
	s.Set(models.MetricActiveConnections, 120)
	s.Set(models.MetricErrorRate, 1)
	return s
}

func healthySample() models.MetricSample {
	s := models.NewMetricSample(time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC))
	s.Set(models.MetricCPUUsage, 42)
	s.Set(models.MetricMemoryUsage, 51)
	s.Set(models.MetricDiskUsage, 60)
	s.Set(models.MetricNetworkThroughput, 100)
	s.Set(models.MetricResponseTime, 210)
	s.Set(models.MetricActiveConnections, 120)
	s.Set(models.MetricErrorRate, 1)
	return s
}

type recordingObserver struct {
	mu     sync.Mutex
	events []models.DetectionEvent
}

func (r *recordingObserver) ObserveEvent(event models.DetectionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingObserver) byType(t models.EventType) []models.DetectionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.DetectionEvent
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type failingExecutor struct {
	failKind models.ActionKind
}

func (f *failingExecutor) Execute(_ context.Context, kind models.ActionKind, _ []string) error {
	if kind == f.failKind {
		return fmt.Errorf("executor rejected %s", kind)
	}
	return nil
}

func trainedOrchestrator(t *testing.T, executor Executor, observer Observer) *Orchestrator {
	t.Helper()
	det := detector.New(detector.DefaultConfig())
	orch := NewOrchestrator(nil, det, NewCatalog(DefaultThresholds()), NewCooldownTable(5*time.Minute), NewLedger(DefaultLedgerCapacity), executor, observer)
	if err := orch.Train(trainingCorpus(60)); err != nil {
		t.Fatalf("train: %v", err)
	}
	return orch
}

func TestProcessSampleHealthy(t *testing.T) {
	orch := trainedOrchestrator(t, nil, nil)

	verdict, err := orch.ProcessSample(context.Background(), healthySample())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(verdict.Actions) != 0 {
		t.Fatalf("healthy sample produced %d actions", len(verdict.Actions))
	}
	if verdict.Anomaly {
		t.Fatalf("healthy sample marked anomalous: %+v", verdict)
	}
	if v := orch.LastVerdict(); v.Anomaly {
		t.Fatalf("last verdict disagrees with returned verdict: %+v", v)
	}
}

func TestProcessSampleFiresActionsInFixedOrder(t *testing.T) {
	obs := &recordingObserver{}
	orch := trainedOrchestrator(t, nil, obs)

	verdict, err := orch.ProcessSample(context.Background(), criticalSample())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !verdict.Anomaly {
		t.Fatalf("critical sample not flagged anomalous, score %f", verdict.Score)
	}
	actions := verdict.Actions

	want := []models.ActionKind{
		models.ActionCPUOptimization,
		models.ActionMemoryCleanup,
		models.ActionPerformanceOptimization,
	}
	if len(actions) != len(want) {
		t.Fatalf("expected %d actions, got %d: %+v", len(want), len(actions), actions)
	}
	for i, kind := range want {
		if actions[i].Action != kind {
			t.Fatalf("action %d = %s, want %s", i, actions[i].Action, kind)
		}
		if actions[i].Status != models.StatusExecuted {
			t.Fatalf("action %d status = %s", i, actions[i].Status)
		}
		if len(actions[i].Steps) == 0 {
			t.Fatalf("action %d has no steps", i)
		}
	}

	if actions[0].TriggerMetric != models.MetricCPUUsage || actions[0].TriggerValue != 98 {
		t.Fatalf("cpu trigger = %s/%.1f", actions[0].TriggerMetric, actions[0].TriggerValue)
	}

	if len(orch.History()) != 3 {
		t.Fatalf("ledger holds %d entries, want 3", len(orch.History()))
	}
	if len(obs.byType(models.EventWarning)) != 4 { // detection + three actions
		t.Fatalf("expected 4 warning events, got %d", len(obs.byType(models.EventWarning)))
	}
}

func TestCooldownSuppressesRepeat(t *testing.T) {
	orch := trainedOrchestrator(t, nil, nil)

	start := time.Date(2025, 3, 1, 14, 0, 0, 0, time.UTC)
	orch.now = func() time.Time { return start }

	first, err := orch.ProcessSample(context.Background(), criticalSample())
	if err != nil {
		t.Fatalf("first process: %v", err)
	}
	if len(first.Actions) != 3 {
		t.Fatalf("first pass fired %d actions", len(first.Actions))
	}

	orch.now = func() time.Time { return start.Add(time.Minute) }
	second, err := orch.ProcessSample(context.Background(), criticalSample())
	if err != nil {
		t.Fatalf("second process: %v", err)
	}
	if len(second.Actions) != 0 {
		t.Fatalf("cooldown did not suppress: %d actions fired", len(second.Actions))
	}
	if !second.Anomaly {
		t.Fatalf("second sample should still be flagged anomalous")
	}
	if len(orch.History()) != 3 {
		t.Fatalf("ledger grew during cooldown: %d entries", len(orch.History()))
	}
}

func TestCooldownExpiryRefires(t *testing.T) {
	orch := trainedOrchestrator(t, nil, nil)

	start := time.Date(2025, 3, 1, 14, 0, 0, 0, time.UTC)
	orch.now = func() time.Time { return start }
	if _, err := orch.ProcessSample(context.Background(), criticalSample()); err != nil {
		t.Fatalf("first process: %v", err)
	}

	later := start.Add(5*time.Minute + time.Second)
	orch.now = func() time.Time { return later }
	verdict, err := orch.ProcessSample(context.Background(), criticalSample())
	if err != nil {
		t.Fatalf("second process: %v", err)
	}
	if len(verdict.Actions) != 3 {
		t.Fatalf("expected refire after cooldown, got %d actions", len(verdict.Actions))
	}
	for _, entry := range verdict.Actions {
		if !entry.Timestamp.Equal(later) {
			t.Fatalf("entry timestamp %v did not advance", entry.Timestamp)
		}
	}
}

func TestFailingActionIsIsolated(t *testing.T) {
	obs := &recordingObserver{}
	exec := &failingExecutor{failKind: models.ActionCPUOptimization}
	orch := trainedOrchestrator(t, exec, obs)

	verdict, err := orch.ProcessSample(context.Background(), criticalSample())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(verdict.Actions) != 2 {
		t.Fatalf("expected 2 surviving actions, got %d", len(verdict.Actions))
	}
	for _, entry := range verdict.Actions {
		if entry.Action == models.ActionCPUOptimization {
			t.Fatalf("failed action reached the ledger")
		}
	}
	if len(obs.byType(models.EventError)) != 1 {
		t.Fatalf("expected 1 error event, got %d", len(obs.byType(models.EventError)))
	}

	// The failed kind consumed no cooldown, so it may fire once the executor
	// recovers.
	exec.failKind = ""
	again, err := orch.ProcessSample(context.Background(), criticalSample())
	if err != nil {
		t.Fatalf("retry process: %v", err)
	}
	if len(again.Actions) != 1 || again.Actions[0].Action != models.ActionCPUOptimization {
		t.Fatalf("expected cpu_optimization retry, got %+v", again.Actions)
	}
}

func TestAnomalyWithoutBreachIsObservedOnly(t *testing.T) {
	obs := &recordingObserver{}
	orch := trainedOrchestrator(t, nil, obs)

	// Wildly out of distribution, yet below every critical threshold.
	s := models.NewMetricSample(time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC))
	s.Set(models.MetricCPUUsage, 2)
	s.Set(models.MetricMemoryUsage, 5)
	s.Set(models.MetricDiskUsage, 5)
	s.Set(models.MetricNetworkThroughput, 900)
	s.Set(models.MetricResponseTime, 4)
	s.Set(models.MetricActiveConnections, 950)
	s.Set(models.MetricErrorRate, 4.9)

	verdict, err := orch.ProcessSample(context.Background(), s)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(verdict.Actions) != 0 {
		t.Fatalf("observed-only sample fired %d actions", len(verdict.Actions))
	}
	if !verdict.Anomaly {
		t.Fatalf("far-out-of-distribution sample was not flagged")
	}
	if len(obs.byType(models.EventInfo)) != 1 {
		t.Fatalf("expected 1 observed-only event, got %d", len(obs.byType(models.EventInfo)))
	}
	if len(orch.History()) != 0 {
		t.Fatalf("observed-only detection must not touch the ledger")
	}
}

func TestProcessSampleBeforeTraining(t *testing.T) {
	det := detector.New(detector.DefaultConfig())
	orch := NewOrchestrator(nil, det, nil, nil, nil, nil, nil)

	_, err := orch.ProcessSample(context.Background(), criticalSample())
	if !errors.Is(err, detector.ErrNotTrained) {
		t.Fatalf("expected ErrNotTrained, got %v", err)
	}
	if len(orch.History()) != 0 {
		t.Fatalf("failed evaluation must not touch the ledger")
	}
}

func TestTrainPropagatesInsufficientData(t *testing.T) {
	det := detector.New(detector.DefaultConfig())
	orch := NewOrchestrator(nil, det, nil, nil, nil, nil, nil)

	err := orch.Train(trainingCorpus(10))
	if !errors.Is(err, detector.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
	if orch.Trained() {
		t.Fatalf("orchestrator trained after failed fit")
	}
}

func TestStatsAggregation(t *testing.T) {
	orch := trainedOrchestrator(t, nil, nil)

	start := time.Date(2025, 3, 1, 14, 0, 0, 0, time.UTC)
	orch.now = func() time.Time { return start }
	if _, err := orch.ProcessSample(context.Background(), criticalSample()); err != nil {
		t.Fatalf("process: %v", err)
	}

	orch.now = func() time.Time { return start.Add(6 * time.Minute) }
	if _, err := orch.ProcessSample(context.Background(), criticalSample()); err != nil {
		t.Fatalf("process: %v", err)
	}

	stats := orch.Stats()
	if len(stats) != 3 {
		t.Fatalf("expected stats for 3 kinds, got %d", len(stats))
	}
	for _, stat := range stats {
		if stat.Count != 2 {
			t.Fatalf("%s count = %d, want 2", stat.Action, stat.Count)
		}
		if !stat.LastExecuted.Equal(start.Add(6 * time.Minute)) {
			t.Fatalf("%s last executed = %v", stat.Action, stat.LastExecuted)
		}
	}
}

func TestModelSnapshotRoundTripThroughOrchestrator(t *testing.T) {
	orch := trainedOrchestrator(t, nil, nil)
	blob, err := orch.SnapshotModel()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	det := detector.New(detector.DefaultConfig())
	restored := NewOrchestrator(nil, det, nil, NewCooldownTable(5*time.Minute), nil, nil, nil)
	if err := restored.RestoreModel(blob); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !restored.Trained() {
		t.Fatalf("restored orchestrator not trained")
	}

	verdict, err := restored.ProcessSample(context.Background(), criticalSample())
	if err != nil {
		t.Fatalf("process after restore: %v", err)
	}
	if len(verdict.Actions) != 3 {
		t.Fatalf("restored model fired %d actions, want 3", len(verdict.Actions))
	}
}
