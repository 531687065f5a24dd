package mqtt

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"hydro-cloud/internal/observability/metrics"
	"hydro-cloud/internal/readings/application"
	readings "hydro-cloud/internal/readings/domain"
	"hydro-cloud/internal/readings/interfaces/payload"
)

// Message outcomes recorded in metrics.
const (
	resultAccepted  = "accepted"
	resultDuplicate = "duplicate"
	resultInvalid   = "invalid"
	resultRejected  = "rejected"
	resultFailed    = "failed"
	resultDropped   = "dropped"
)

// Ingester accepts decoded readings.
type Ingester interface {
	Ingest(ctx context.Context, cmd application.IngestCommand) (readings.Reading, error)
}

type subscriptionClient interface {
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	Unsubscribe(topics ...string) paho.Token
}

// Subscriber feeds sensor readings published on a topic into the ingest path.
type Subscriber struct {
	service Ingester
	topic   string
	qos     byte
	dedup   *Deduper
	logger  *log.Logger

	// mu guards the fields below. Message handlers hold it shared, so Start
	// returns only after in-flight ingests finish.
	mu      sync.RWMutex
	client  subscriptionClient
	ctx     context.Context
	stopped bool
}

// SubscriberOption configures the subscriber.
type SubscriberOption func(*Subscriber)

// WithQoS sets the subscription QoS.
func WithQoS(qos int) SubscriberOption {
	return func(s *Subscriber) {
		if qos >= 0 && qos <= 2 {
			s.qos = byte(qos)
		}
	}
}

// WithDeduper drops payloads already seen within the deduper TTL.
func WithDeduper(d *Deduper) SubscriberOption {
	return func(s *Subscriber) {
		s.dedup = d
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) SubscriberOption {
	return func(s *Subscriber) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSubscriber constructs a subscriber for topic. The client is supplied to Start.
func NewSubscriber(service Ingester, topic string, opts ...SubscriberOption) (*Subscriber, error) {
	if service == nil {
		return nil, errors.New("mqtt subscriber: nil service")
	}
	if topic == "" {
		return nil, errors.New("mqtt subscriber: empty topic")
	}
	s := &Subscriber{
		service: service,
		topic:   topic,
		qos:     1,
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start subscribes through client and blocks until ctx is done. It returns
// after unsubscribing and after every message already handed to the ingest
// path has been processed.
func (s *Subscriber) Start(ctx context.Context, client subscriptionClient) error {
	if client == nil {
		return errors.New("mqtt subscriber: nil client")
	}
	s.mu.Lock()
	s.client = client
	s.ctx = ctx
	s.mu.Unlock()

	if err := s.subscribe(ctx, client); err != nil {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		return err
	}
	<-ctx.Done()

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	if token := client.Unsubscribe(s.topic); !token.WaitTimeout(time.Second) {
		s.logger.Printf("mqtt subscriber: unsubscribe %s: timeout", s.topic)
	} else if err := token.Error(); err != nil {
		s.logger.Printf("mqtt subscriber: unsubscribe %s: %v", s.topic, err)
	}
	return nil
}

// OnConnect restores the subscription after the client reconnects. It is a
// no-op until Start has run and after Start returns.
func (s *Subscriber) OnConnect(_ paho.Client) {
	s.mu.RLock()
	client, ctx, stopped := s.client, s.ctx, s.stopped
	s.mu.RUnlock()
	if client == nil || stopped {
		return
	}
	if err := s.subscribe(ctx, client); err != nil {
		s.logger.Printf("mqtt subscriber: resubscribe: %v", err)
	}
}

func (s *Subscriber) subscribe(ctx context.Context, client subscriptionClient) error {
	token := client.Subscribe(s.topic, s.qos, func(_ paho.Client, msg paho.Message) {
		s.HandleMessage(ctx, msg)
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt subscriber: subscribe %s: %w", s.topic, token.Error())
	}
	s.logger.Printf("mqtt subscriber: subscribed to %s qos=%d", s.topic, s.qos)
	return nil
}

// HandleMessage decodes and ingests one message. Invalid payloads are logged
// and dropped.
func (s *Subscriber) HandleMessage(ctx context.Context, msg paho.Message) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		metrics.IncMQTTMessage(resultDropped)
		return
	}
	if !s.dedup.ShouldProcess(messageID(msg)) {
		metrics.IncMQTTMessage(resultDuplicate)
		return
	}

	cmd, err := payload.DecodeBytes(msg.Payload())
	if err != nil {
		s.logger.Printf("mqtt subscriber: decode %s: %v", msg.Topic(), err)
		metrics.IncMQTTMessage(resultInvalid)
		return
	}
	if topicUnit := UnitFromTopic(msg.Topic()); topicUnit != "" && topicUnit != cmd.UnitID {
		s.logger.Printf("mqtt subscriber: topic %s carries unit %s", msg.Topic(), cmd.UnitID)
		metrics.IncMQTTMessage(resultInvalid)
		return
	}

	if _, err := s.service.Ingest(ctx, cmd); err != nil {
		s.logger.Printf("mqtt subscriber: ingest unit %s: %v", cmd.UnitID, err)
		if readings.IsValidation(err) {
			metrics.IncMQTTMessage(resultRejected)
			return
		}
		metrics.IncMQTTMessage(resultFailed)
		return
	}
	metrics.IncMQTTMessage(resultAccepted)
}

// UnitFromTopic extracts the unit id from units/{unitId}/readings topics.
func UnitFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) == 3 && parts[0] == "units" && parts[2] == "readings" {
		return parts[1]
	}
	return ""
}

func messageID(msg paho.Message) string {
	sum := sha1.New()
	sum.Write([]byte(msg.Topic()))
	sum.Write([]byte{0})
	sum.Write(msg.Payload())
	return hex.EncodeToString(sum.Sum(nil))
}
