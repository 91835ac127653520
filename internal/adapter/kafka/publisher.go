// Package kafka publishes record events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"salesboard/internal/domain"
	"salesboard/internal/log"
)

const writeTimeout = 5 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes one message per record event, keyed by identity so the
// events of one dashboard stay on one partition in order.
type Publisher struct {
	writer messageWriter
	topic  string
	logger *log.Logger
}

var _ domain.EventPublisher = (*Publisher)(nil)

// NewPublisher creates a synchronous publisher for topic.
func NewPublisher(brokers []string, topic string, logger *log.Logger) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka: topic is required")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		Async:                  false,
		AllowAutoTopicCreation: true,
	}
	return newPublisher(w, topic, logger), nil
}

func newPublisher(w messageWriter, topic string, logger *log.Logger) *Publisher {
	if logger == nil {
		logger = log.Nop()
	}
	return &Publisher{writer: w, topic: topic, logger: logger.WithComponent(log.ComponentKafka)}
}

// PublishRecordEvent writes ev as JSON.
func (p *Publisher) PublishRecordEvent(ctx context.Context, ev domain.RecordEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal record event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	msg := kafka.Message{
		Key:     []byte(ev.Identity),
		Value:   body,
		Time:    ev.OccurredAt,
		Headers: []kafka.Header{{Key: "type", Value: []byte(ev.Type)}},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write record event: %w", err)
	}

	p.logger.Debug("published record event", "type", ev.Type, "topic", p.topic, log.FieldRecordID, ev.RecordID)
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
