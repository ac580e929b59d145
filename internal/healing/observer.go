package healing

import (
	"context"
	"log/slog"

	"github.com/neurocloudstack/neurocloud-heal/internal/models"
)

// Observer receives structured events from the orchestrator: detections,
// executed actions, observed-only anomalies, action failures. The core never
// writes to a console; presentation belongs to whoever observes.
type Observer interface {
	ObserveEvent(event models.DetectionEvent)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(event models.DetectionEvent)

// ObserveEvent implements Observer.
func (f ObserverFunc) ObserveEvent(event models.DetectionEvent) {
	f(event)
}

// MultiObserver fans one event out to several observers.
func MultiObserver(observers ...Observer) Observer {
	return ObserverFunc(func(event models.DetectionEvent) {
		for _, o := range observers {
			if o != nil {
				o.ObserveEvent(event)
			}
		}
	})
}

// NewLogObserver returns an Observer that mirrors events into slog.
func NewLogObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return ObserverFunc(func(event models.DetectionEvent) {
		attrs := []any{
			slog.String("message", event.Message),
			slog.Float64("score", event.Score),
		}
		if event.Action != "" {
			attrs = append(attrs, slog.String("action", string(event.Action)))
		}
		switch event.Type {
		case models.EventError:
			logger.Error("healing event", attrs...)
		case models.EventWarning:
			logger.Warn("healing event", attrs...)
		default:
			logger.Info("healing event", attrs...)
		}
	})
}

// Executor runs the remediation plan for an action kind. The shipped
// executor only simulates; real side effects are a collaborator concern.
type Executor interface {
	Execute(ctx context.Context, kind models.ActionKind, steps []string) error
}

// SimulatedExecutor walks the plan and reports each step at debug level.
type SimulatedExecutor struct {
	logger *slog.Logger
}

// NewSimulatedExecutor returns an executor that performs no side effects.
func NewSimulatedExecutor(logger *slog.Logger) *SimulatedExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &SimulatedExecutor{logger: logger}
}

// Execute implements Executor.
func (e *SimulatedExecutor) Execute(ctx context.Context, kind models.ActionKind, steps []string) error {
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.logger.Debug("remediation step", slog.String("action", string(kind)), slog.String("step", step))
	}
	return nil
}
