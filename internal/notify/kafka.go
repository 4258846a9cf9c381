package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafka.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes alerts as JSON to a topic, keyed by instrument so one
// instrument's alerts stay ordered within a partition.
type KafkaPublisher struct {
	writer  messageWriter
	topic   string
	timeout time.Duration
}

// NewKafkaPublisher creates a publisher for the given brokers and topic.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, fmt.Errorf("kafka publisher: brokers and topic are required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaPublisher{writer: w, topic: topic, timeout: 5 * time.Second}, nil
}

// Name returns the sink name.
func (p *KafkaPublisher) Name() string {
	return "kafka"
}

// Publish writes one alert.
func (p *KafkaPublisher) Publish(ctx context.Context, a *Alert) error {
	if a == nil || a.Match == nil {
		return fmt.Errorf("kafka publish: empty alert")
	}
	value, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert %s: %w", a.Match.ID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(a.Match.InstrumentID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "alert_id", Value: []byte(a.Match.ID)},
			{Key: "kind", Value: []byte(a.Match.Kind)},
		},
	})
	if err != nil {
		return fmt.Errorf("write alert %s to %s: %w", a.Match.ID, p.topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

var _ Publisher = (*KafkaPublisher)(nil)
