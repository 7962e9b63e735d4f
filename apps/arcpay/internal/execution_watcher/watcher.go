package execution_watcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"go.uber.org/zap"

	"arcpay/apps/arcpay/internal/events"
)

const readTimeout = 500 * time.Millisecond

// Consumer is the subset of *kafka.Consumer the watcher reads with
type Consumer interface {
	Subscribe(topic string, rebalanceCb kafka.RebalanceCb) error
	ReadMessage(timeout time.Duration) (*kafka.Message, error)
	Close() error
}

// Watcher follows the execution event topic and hands each event to a callback
type Watcher struct {
	logger   *zap.Logger
	consumer Consumer
	topic    string
	owner    string
	handle   func(events.ExecutionEvent) error
}

// NewKafkaConsumer joins groupID and starts from the earliest retained event when the group
// has no committed offset
func NewKafkaConsumer(kafkaBroker, groupID string) (*kafka.Consumer, error) {
	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers": kafkaBroker,
		"group.id":          groupID,
		"auto.offset.reset": "earliest",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}
	return consumer, nil
}

// New creates a Watcher. A non-empty owner limits the events handled to that owner.
func New(consumer Consumer, topic, owner string, handle func(events.ExecutionEvent) error, logger *zap.Logger) *Watcher {
	return &Watcher{
		logger:   logger.With(zap.String("component", "execution_watcher")),
		consumer: consumer,
		topic:    topic,
		owner:    owner,
		handle:   handle,
	}
}

// Run consumes until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.consumer.Subscribe(w.topic, nil); err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", w.topic, err)
	}

	w.logger.Info("Watching execution events", zap.String("topic", w.topic), zap.String("owner", w.owner))

	for ctx.Err() == nil {
		msg, err := w.consumer.ReadMessage(readTimeout)
		if err != nil {
			var kafkaErr kafka.Error
			if errors.As(err, &kafkaErr) && kafkaErr.Code() == kafka.ErrTimedOut {
				continue
			}
			w.logger.Error("Error reading message from Kafka", zap.Error(err))
			continue
		}

		if err := w.processMessage(msg); err != nil {
			w.logger.Error("Error processing message",
				zap.Int32("partition", msg.TopicPartition.Partition),
				zap.String("key", string(msg.Key)),
				zap.Error(err))
		}
	}
	return nil
}

func (w *Watcher) processMessage(msg *kafka.Message) error {
	if w.owner != "" && string(msg.Key) != w.owner {
		return nil
	}

	var event events.ExecutionEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal execution event: %w", err)
	}
	return w.handle(event)
}

func (w *Watcher) Close() error {
	return w.consumer.Close()
}
