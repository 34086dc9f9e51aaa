package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/segmentio/kafka-go"
)

type kafkaPublisher struct {
	writer *kafka.Writer
	topic  string
}

// NewKafkaPublisher creates a publisher writing JSON events to topic. Messages
// are keyed by user id so one user's events stay ordered within a partition.
func NewKafkaPublisher(brokers []string, topic string) (Publisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are not configured")
	}
	if topic == "" {
		topic = TopicLedger
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}
	log.Infof("[Events] Kafka publisher initialized (brokers: %v, topic: %s)", brokers, topic)
	return &kafkaPublisher{writer: writer, topic: topic}, nil
}

func (k *kafkaPublisher) Publish(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		if e.OccurredAt.IsZero() {
			e.OccurredAt = time.Now().UTC()
		}
		value, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("kafka: failed to marshal %s event: %w", e.Type, err)
		}
		msgs = append(msgs, kafka.Message{
			Topic: k.topic,
			Key:   []byte(strconv.FormatUint(uint64(e.UserID), 10)),
			Value: value,
			Time:  e.OccurredAt,
		})
	}

	writeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := k.writer.WriteMessages(writeCtx, msgs...); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("kafka: write timeout: %w", err)
		}
		return fmt.Errorf("kafka: failed to write messages: %w", err)
	}
	return nil
}

func (k *kafkaPublisher) Close() error {
	if err := k.writer.Close(); err != nil {
		return fmt.Errorf("kafka: failed to close writer: %w", err)
	}
	return nil
}

// PublishBestEffort logs instead of returning publish errors.
func PublishBestEffort(ctx context.Context, p Publisher, events ...Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, events...); err != nil {
		log.Warnf("[Events] Failed to publish %d event(s): %v", len(events), err)
	}
}
