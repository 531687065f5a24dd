package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"hydro-cloud/internal/observability/metrics"
	"hydro-cloud/internal/readings/application"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes alert events to a topic keyed by unit id.
type KafkaPublisher struct {
	writer messageWriter
	logger *log.Logger
}

// NewKafkaPublisher constructs a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string, logger *log.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka publisher: no brokers")
	}
	if topic == "" {
		return nil, errors.New("kafka publisher: empty topic")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
	}
	return newKafkaPublisher(writer, logger), nil
}

func newKafkaPublisher(writer messageWriter, logger *log.Logger) *KafkaPublisher {
	if logger == nil {
		logger = log.Default()
	}
	return &KafkaPublisher{writer: writer, logger: logger}
}

// Notify implements application.AlertNotifier.
func (p *KafkaPublisher) Notify(ctx context.Context, event application.AlertEvent) {
	if p == nil || p.writer == nil {
		return
	}
	value, err := json.Marshal(event)
	if err != nil {
		p.logger.Printf("kafka publisher: encode: unit %s: %v", event.UnitID, err)
		metrics.ObserveNotification("kafka", metrics.ResultError)
		return
	}
	msg := kafka.Message{
		Key:   []byte(event.UnitID),
		Value: value,
		Time:  event.Timestamp,
	}
	if event.ID != "" {
		msg.Headers = []kafka.Header{{Key: "event_id", Value: []byte(event.ID)}}
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Printf("kafka publisher: write: unit %s: %v", event.UnitID, err)
		metrics.ObserveNotification("kafka", metrics.ResultError)
		return
	}
	metrics.ObserveNotification("kafka", metrics.ResultSuccess)
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
