package repository

import (
	"context"
	"fmt"

	"NiftyScan/internal/domain/models"
	pkgkafka "NiftyScan/pkg/kafka"
	applogger "NiftyScan/pkg/logger"
)

// KafkaNotifier publishes alert transitions to a Kafka topic. Messages are
// keyed by instrument token so consumers see per-instrument ordering.
type KafkaNotifier struct {
	producer *pkgkafka.Producer
	topic    string
	l        *applogger.Logger
}

func NewKafkaNotifier(producer *pkgkafka.Producer, topic string) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, topic: topic}
}

// SetLogger injects a structured logger.
func (n *KafkaNotifier) SetLogger(l *applogger.Logger) { n.l = l }

func (n *KafkaNotifier) NotifyAlert(ctx context.Context, alert *models.AlertRecord) error {
	if err := n.producer.Publish(ctx, n.topic, []byte(alert.Token), alert); err != nil {
		if n.l != nil {
			n.l.Error("kafka notify_alert publish error",
				applogger.String("topic", n.topic),
				applogger.String("token", alert.Token),
				applogger.String("status", string(alert.Status)),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("notify alert: %w", err)
	}
	if n.l != nil {
		n.l.Debug("kafka notify_alert ok",
			applogger.String("topic", n.topic),
			applogger.String("token", alert.Token),
			applogger.String("kind", string(alert.Kind)),
			applogger.String("status", string(alert.Status)),
		)
	}
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.producer.Close()
}
