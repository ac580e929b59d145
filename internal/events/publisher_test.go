package events

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/neurocloudstack/neurocloud-heal/internal/models"
)

type capturingPublisher struct {
	events []models.DetectionEvent
	err    error
}

func (p *capturingPublisher) Publish(_ context.Context, event models.DetectionEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *capturingPublisher) Close() error { return nil }

func TestObserverForwardsEvents(t *testing.T) {
	pub := &capturingPublisher{}
	obs := NewObserver(pub, slog.Default())

	event := models.DetectionEvent{
		Timestamp: time.Now(),
		Type:      models.EventWarning,
		Message:   "anomaly detected",
		Score:     -0.12,
		Action:    models.ActionCPUOptimization,
	}
	obs.ObserveEvent(event)

	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}
	if pub.events[0].Action != models.ActionCPUOptimization {
		t.Errorf("action = %q", pub.events[0].Action)
	}
}

func TestObserverSwallowsPublishErrors(t *testing.T) {
	pub := &capturingPublisher{err: errors.New("broker down")}
	obs := NewObserver(pub, slog.Default())

	// Must not panic or propagate.
	obs.ObserveEvent(models.DetectionEvent{Type: models.EventInfo, Message: "observed"})
}

func TestNoopPublisher(t *testing.T) {
	var pub NoopPublisher
	if err := pub.Publish(context.Background(), models.DetectionEvent{}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
