package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/neurocloudstack/neurocloud-heal/internal/healing"
	"github.com/neurocloudstack/neurocloud-heal/internal/metrics"
	"github.com/neurocloudstack/neurocloud-heal/internal/models"
	"github.com/neurocloudstack/neurocloud-heal/internal/simulator"
	"github.com/neurocloudstack/neurocloud-heal/internal/utils"
)

// DefaultEventCapacity bounds the retained detection-event log.
const DefaultEventCapacity = 100

// SampleSink receives every evaluated sample, e.g. an InfluxDB writer.
type SampleSink interface {
	Write(sample models.MetricSample) error
}

// StreamUpdate pairs a sample with the verdict it produced; pushed to
// websocket subscribers after every evaluation.
type StreamUpdate struct {
	Sample  models.MetricSample `json:"sample"`
	Verdict models.Verdict      `json:"verdict"`
}

// Options configures a Monitor. Zero values fall back to defaults.
type Options struct {
	Interval      time.Duration
	EventCapacity int
	StartEnabled  bool
	Sink          SampleSink
	Logger        *slog.Logger
}

// Monitor drives the evaluation loop: generate a sample, persist it,
// run it through the orchestrator, and fan results out to subscribers.
// All mutable state lives on the instance.
type Monitor struct {
	logger    *slog.Logger
	orch      *healing.Orchestrator
	generator *simulator.Generator
	history   *simulator.History
	sink      SampleSink
	interval  time.Duration
	tracker   *utils.LatencyTracker
	capacity  int

	mu      sync.RWMutex
	enabled bool
	latest  models.MetricSample
	hasRun  bool
	events  []models.DetectionEvent
	subs    map[chan StreamUpdate]struct{}
}

// New assembles a monitor around the orchestrator and metric source.
func New(orch *healing.Orchestrator, gen *simulator.Generator, history *simulator.History, opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.EventCapacity <= 0 {
		opts.EventCapacity = DefaultEventCapacity
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Monitor{
		logger:    opts.Logger.With(slog.String("component", "monitor")),
		orch:      orch,
		generator: gen,
		history:   history,
		sink:      opts.Sink,
		interval:  opts.Interval,
		tracker:   utils.NewLatencyTracker(512),
		capacity:  opts.EventCapacity,
		enabled:   opts.StartEnabled,
		subs:      make(map[chan StreamUpdate]struct{}),
	}
}

// Run evaluates one generated sample per interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("monitoring loop started", slog.Duration("interval", m.interval))
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitoring loop stopped")
			return
		case <-ticker.C:
			if !m.Enabled() {
				continue
			}
			m.mu.Lock()
			sample := m.generator.Next()
			m.mu.Unlock()
			if _, err := m.Process(ctx, sample); err != nil {
				m.logger.Error("evaluate sample", slog.String("error", err.Error()))
			}
		}
	}
}

// Process persists and evaluates one sample, from the loop or an API
// caller, and broadcasts the outcome.
func (m *Monitor) Process(ctx context.Context, sample models.MetricSample) (models.Verdict, error) {
	if err := m.history.Append(ctx, sample); err != nil {
		// History is best effort; evaluation still proceeds.
		m.logger.Warn("persist sample", slog.String("error", err.Error()))
	}
	if m.sink != nil {
		if err := m.sink.Write(sample); err != nil {
			m.logger.Warn("sink write", slog.String("error", err.Error()))
		}
	}

	start := time.Now()
	verdict, err := m.orch.ProcessSample(ctx, sample)
	elapsed := time.Since(start)
	m.tracker.Observe(elapsed)

	if err != nil {
		metrics.ObserveEvaluation(elapsed, metrics.VerdictError, 0)
		return models.Verdict{}, err
	}

	label := metrics.VerdictNormal
	if verdict.Anomaly {
		label = metrics.VerdictAnomaly
	}
	metrics.ObserveEvaluation(elapsed, label, verdict.Score)
	for _, entry := range verdict.Actions {
		metrics.ObserveAction(string(entry.Action))
	}

	m.mu.Lock()
	m.latest = sample
	m.hasRun = true
	m.mu.Unlock()

	m.broadcast(StreamUpdate{Sample: sample, Verdict: verdict})
	return verdict, nil
}

// InjectAnomaly forces one sample with the chosen metric in its critical
// range and evaluates it immediately.
func (m *Monitor) InjectAnomaly(ctx context.Context, kind simulator.AnomalyKind) (models.MetricSample, models.Verdict, error) {
	m.mu.Lock()
	sample := m.generator.NextAnomalous(kind)
	m.mu.Unlock()

	m.ObserveEvent(models.DetectionEvent{
		Timestamp: time.Now(),
		Type:      models.EventError,
		Message:   "Manual anomaly injected: " + string(kind),
		Sample:    sample,
	})

	verdict, err := m.Process(ctx, sample)
	return sample, verdict, err
}

// Toggle flips the monitoring flag and reports the new state.
func (m *Monitor) Toggle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = !m.enabled
	return m.enabled
}

// Enabled reports whether the loop is evaluating samples.
func (m *Monitor) Enabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// Latest returns the most recently evaluated sample.
func (m *Monitor) Latest() (models.MetricSample, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest, m.hasRun
}

// ObserveEvent implements healing.Observer: detections and action
// outcomes land in the bounded event log served by the API.
func (m *Monitor) ObserveEvent(event models.DetectionEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	if len(m.events) > m.capacity {
		m.events = m.events[len(m.events)-m.capacity:]
	}
}

// Events returns up to n retained events, most recent last. n <= 0
// returns all.
func (m *Monitor) Events(n int) []models.DetectionEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n <= 0 || n > len(m.events) {
		n = len(m.events)
	}
	out := make([]models.DetectionEvent, n)
	copy(out, m.events[len(m.events)-n:])
	return out
}

// EvaluationP95 reports the 95th percentile evaluation latency.
func (m *Monitor) EvaluationP95() time.Duration {
	return m.tracker.Percentile(95)
}

// Subscribe registers a stream consumer. The returned cancel function
// must be called to release the subscription. Slow consumers miss
// updates instead of blocking the loop.
func (m *Monitor) Subscribe() (<-chan StreamUpdate, func()) {
	ch := make(chan StreamUpdate, 8)
	m.mu.Lock()
	m.subs[ch] = struct{}{}
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		if _, ok := m.subs[ch]; ok {
			delete(m.subs, ch)
			close(ch)
		}
		m.mu.Unlock()
	}
	return ch, cancel
}

func (m *Monitor) broadcast(update StreamUpdate) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for ch := range m.subs {
		select {
		case ch <- update:
		default:
		}
	}
}
