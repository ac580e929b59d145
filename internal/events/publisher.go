package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/neurocloudstack/neurocloud-heal/internal/healing"
	"github.com/neurocloudstack/neurocloud-heal/internal/models"
)

// Publisher forwards detection events to an external bus so other
// systems can react to anomalies and healing actions.
type Publisher interface {
	Publish(ctx context.Context, event models.DetectionEvent) error
	Close() error
}

// KafkaPublisher writes detection events to a Kafka topic, keyed by
// action kind so per-action ordering is preserved across partitions.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewKafkaPublisher creates a publisher targeting the given brokers and topic.
func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaPublisher{
		writer: writer,
		logger: logger.With(slog.String("component", "kafka-publisher")),
	}
}

// Publish serialises the event as JSON and writes a single message.
func (p *KafkaPublisher) Publish(ctx context.Context, event models.DetectionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(event.Action),
		Value: payload,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("publish detection event", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error { return p.writer.Close() }

// NewObserver adapts a Publisher into a healing observer. Publishing is
// best effort with a bounded timeout; failures are logged, never
// propagated into the evaluation path.
func NewObserver(p Publisher, logger *slog.Logger) healing.Observer {
	return healing.ObserverFunc(func(event models.DetectionEvent) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.Publish(ctx, event); err != nil {
			logger.Warn("dropping detection event", slog.String("error", err.Error()))
		}
	})
}

// NoopPublisher discards events; used when the bus is disabled.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, models.DetectionEvent) error { return nil }
func (NoopPublisher) Close() error                                         { return nil }
