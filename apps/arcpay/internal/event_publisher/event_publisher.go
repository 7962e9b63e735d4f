package event_publisher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"go.uber.org/zap"

	"arcpay/apps/arcpay/internal/metrics"
	"arcpay/apps/arcpay/internal/model"
)

const (
	publishInterval = 3 * time.Second
	batchSize       = 100
)

type OutboxStore interface {
	GetUnsentEventsForProcessing(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkEventAsSent(ctx context.Context, id int64) error
	MarkEventAsFailed(ctx context.Context, id int64) error
	ReleaseProcessing(ctx context.Context) (int64, error)
}

// Producer delivers one message and waits for the broker's acknowledgement
type Producer interface {
	Produce(ctx context.Context, key string, value []byte, headers map[string]string) error
	Close()
}

type EventPublisher struct {
	logger   *zap.Logger
	producer Producer
	outbox   OutboxStore
	mu       sync.Mutex // one publishing pass at a time per instance
}

func NewEventPublisher(producer Producer, outbox OutboxStore, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{
		logger:   logger.With(zap.String("component", "event_publisher")),
		producer: producer,
		outbox:   outbox,
	}
}

// Start publishes outbox events until ctx is cancelled. Events claimed by a previous
// process that died mid-batch are released first.
func (ep *EventPublisher) Start(ctx context.Context) {
	if released, err := ep.outbox.ReleaseProcessing(ctx); err != nil {
		ep.logger.Error("Failed to release claimed events", zap.Error(err))
	} else if released > 0 {
		ep.logger.Info("Released claimed events", zap.Int64("count", released))
	}

	ticker := time.NewTicker(publishInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ep.PublishUnsentEvents(ctx); err != nil && ctx.Err() == nil {
				ep.logger.Error("Error publishing events to Kafka", zap.Error(err))
			}
		}
	}
}

// PublishUnsentEvents claims one batch of unsent events and hands each to the producer
func (ep *EventPublisher) PublishUnsentEvents(ctx context.Context) error {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	outboxEvents, err := ep.outbox.GetUnsentEventsForProcessing(ctx, batchSize)
	if err != nil {
		return fmt.Errorf("failed to claim outbox events: %w", err)
	}

	successCount := 0
	for _, event := range outboxEvents {
		logger := ep.logger.With(zap.Int64("event_id", event.ID), zap.String("execution_id", event.ExecutionID), zap.String("event_type", event.EventType))

		headers := map[string]string{
			"event_type":   event.EventType,
			"execution_id": event.ExecutionID,
		}
		if err := ep.producer.Produce(ctx, event.Owner, event.EventBlob, headers); err != nil {
			metrics.OutboxPublished.WithLabelValues("failed").Inc()
			logger.Error("Failed to publish event to Kafka", zap.Error(err))
			// Returns the event to 'unsent' for the next pass
			if markErr := ep.outbox.MarkEventAsFailed(ctx, event.ID); markErr != nil {
				logger.Error("Failed to mark event as failed", zap.Error(markErr))
			}
			continue
		}

		metrics.OutboxPublished.WithLabelValues("sent").Inc()
		if err := ep.outbox.MarkEventAsSent(ctx, event.ID); err != nil {
			// Delivered but still 'processing'; it is released and sent again after a restart
			logger.Error("Failed to mark event as sent", zap.Error(err))
			continue
		}
		successCount++
	}

	if successCount > 0 {
		ep.logger.Info("Published events to Kafka", zap.Int("success_count", successCount), zap.Int("attempted", len(outboxEvents)))
	}
	return nil
}

func (ep *EventPublisher) Close() error {
	if ep.producer != nil {
		ep.producer.Close()
	}
	return nil
}

// KafkaProducer is the Producer backed by a confluent-kafka-go producer
type KafkaProducer struct {
	producer *kafka.Producer
	topic    string
}

func NewKafkaProducer(broker, topic string) (*KafkaProducer, error) {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": broker,
		"acks":              "all",
		"retries":           3,
		"retry.backoff.ms":  100,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return &KafkaProducer{producer: producer, topic: topic}, nil
}

func (k *KafkaProducer) Produce(ctx context.Context, key string, value []byte, headers map[string]string) error {
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &k.topic, Partition: kafka.PartitionAny},
		Key:            []byte(key), // owner as key keeps one owner's events ordered
		Value:          value,
	}
	for name, v := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: name, Value: []byte(v)})
	}

	deliveryChan := make(chan kafka.Event, 1)
	if err := k.producer.Produce(msg, deliveryChan); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case e := <-deliveryChan:
		switch ev := e.(type) {
		case *kafka.Message:
			return ev.TopicPartition.Error
		default:
			return fmt.Errorf("unexpected kafka event type: %T", e)
		}
	}
}

func (k *KafkaProducer) Close() {
	k.producer.Flush(5000)
	k.producer.Close()
}
