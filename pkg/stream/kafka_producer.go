package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
)

// Delivery is the broker's verdict on one routed event. Err is nil when the
// message was acknowledged.
type Delivery struct {
	EventID         string
	RunID           string
	TenantID        string
	SensitiveTypeID string
	Topic           string
	Partition       int32
	Offset          int64
	Err             error
}

// DeliveryHandler observes delivery reports. It runs on the report loop, so
// it must not block.
type DeliveryHandler func(Delivery)

// KafkaOption configures a KafkaStreamer
type KafkaOption func(*KafkaStreamer)

// WithDeliveryHandler registers a handler for delivery reports
func WithDeliveryHandler(fn DeliveryHandler) KafkaOption {
	return func(ks *KafkaStreamer) {
		if fn != nil {
			ks.onDelivery = append(ks.onDelivery, fn)
		}
	}
}

// KafkaStreamer publishes events through sarama's AsyncProducer. Messages are
// keyed by tenant and run id so one document's events land on one partition.
// Every message carries its event's identity as metadata, which comes back
// on the producer's success and error channels as a Delivery.
type KafkaStreamer struct {
	producer   sarama.AsyncProducer
	router     *TopicRouter
	onDelivery []DeliveryHandler

	mu     sync.RWMutex
	closed bool

	failures chan error
	done     chan struct{}
}

var _ Streamer = (*KafkaStreamer)(nil)

// NewKafkaStreamer connects to the configured brokers and starts an async producer
func NewKafkaStreamer(config *StreamerConfig, opts ...KafkaOption) (*KafkaStreamer, error) {
	if config == nil {
		config = DefaultStreamerConfig()
	}
	if len(config.Brokers) == 0 {
		return nil, errors.New("at least one Kafka broker is required")
	}

	sc, err := buildSaramaConfig(config)
	if err != nil {
		return nil, err
	}

	producer, err := sarama.NewAsyncProducer(config.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return NewKafkaStreamerWithProducer(producer, config, opts...), nil
}

// NewKafkaStreamerWithProducer wraps an existing producer, such as a
// sarama/mocks producer. The producer must return successes and errors.
func NewKafkaStreamerWithProducer(producer sarama.AsyncProducer, config *StreamerConfig, opts ...KafkaOption) *KafkaStreamer {
	if config == nil {
		config = DefaultStreamerConfig()
	}

	ks := &KafkaStreamer{
		producer: producer,
		router:   NewTopicRouter(config.Topics, config.HighConfidenceThreshold),
		failures: make(chan error, 100),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ks)
	}

	go ks.reportDeliveries()
	return ks
}

// Stream queues one message per routed topic of every event. It returns once
// the messages are queued; outcomes arrive as delivery reports.
func (ks *KafkaStreamer) Stream(ctx context.Context, events []ClassificationEvent) error {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	if ks.closed {
		return ErrStreamerClosed
	}

	for _, event := range events {
		msgs, err := ks.messages(event)
		if err != nil {
			return err
		}
		for _, msg := range msgs {
			select {
			case ks.producer.Input() <- msg:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// messages encodes event once and addresses a copy to each routed topic
func (ks *KafkaStreamer) messages(event ClassificationEvent) ([]*sarama.ProducerMessage, error) {
	topics := ks.router.Route(event)
	if len(topics) == 0 {
		return nil, nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encoding event %s: %w", event.ID, err)
	}

	key := sarama.StringEncoder(event.TenantID + ":" + event.RunID)
	headers := []sarama.RecordHeader{
		{Key: []byte("sensitive_type_id"), Value: []byte(event.SensitiveTypeID)},
		{Key: []byte("confidence_level"), Value: []byte(fmt.Sprint(event.ConfidenceLevel))},
	}

	msgs := make([]*sarama.ProducerMessage, 0, len(topics))
	for _, topic := range topics {
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic:    topic,
			Key:      key,
			Value:    sarama.ByteEncoder(data),
			Headers:  headers,
			Metadata: Delivery{
				EventID:         event.ID,
				RunID:           event.RunID,
				TenantID:        event.TenantID,
				SensitiveTypeID: event.SensitiveTypeID,
				Topic:           topic,
			},
		})
	}
	return msgs, nil
}

// Close flushes pending messages, waits for their delivery reports and
// closes the producer.
func (ks *KafkaStreamer) Close() error {
	ks.mu.Lock()
	if ks.closed {
		ks.mu.Unlock()
		return nil
	}
	ks.closed = true
	ks.mu.Unlock()

	ks.producer.AsyncClose()
	<-ks.done
	return nil
}

// Errors returns failed deliveries as errors. Failures are dropped when
// nobody reads the channel.
func (ks *KafkaStreamer) Errors() <-chan error {
	return ks.failures
}

// reportDeliveries turns producer successes and errors into delivery reports
// until both channels are closed.
func (ks *KafkaStreamer) reportDeliveries() {
	defer close(ks.done)

	successes := ks.producer.Successes()
	failures := ks.producer.Errors()
	for successes != nil || failures != nil {
		select {
		case msg, ok := <-successes:
			if !ok {
				successes = nil
				continue
			}
			d := deliveryOf(msg)
			d.Partition = msg.Partition
			d.Offset = msg.Offset
			ks.report(d)

		case perr, ok := <-failures:
			if !ok {
				failures = nil
				continue
			}
			if perr == nil {
				continue
			}
			d := deliveryOf(perr.Msg)
			d.Err = perr.Err
			ks.report(d)
		}
	}
}

func (ks *KafkaStreamer) report(d Delivery) {
	for _, fn := range ks.onDelivery {
		fn(d)
	}
	if d.Err == nil {
		return
	}
	select {
	case ks.failures <- fmt.Errorf("delivering %s event %s to %s: %w", d.SensitiveTypeID, d.EventID, d.Topic, d.Err):
	default:
	}
}

// deliveryOf recovers the event identity attached by messages
func deliveryOf(msg *sarama.ProducerMessage) Delivery {
	if msg == nil {
		return Delivery{}
	}
	if d, ok := msg.Metadata.(Delivery); ok {
		return d
	}
	return Delivery{Topic: msg.Topic}
}

var requiredAcks = map[string]sarama.RequiredAcks{
	"none":   sarama.NoResponse,
	"leader": sarama.WaitForLocal,
	"all":    sarama.WaitForAll,
	"":       sarama.WaitForAll,
}

// buildSaramaConfig maps StreamerConfig onto a sarama producer config
func buildSaramaConfig(config *StreamerConfig) (*sarama.Config, error) {
	sc := sarama.NewConfig()
	if config.ClientID != "" {
		sc.ClientID = config.ClientID
	}

	// Delivery reports need both channels
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true

	if config.FlushInterval > 0 {
		sc.Producer.Flush.Frequency = config.FlushInterval
	}
	if config.BatchSize > 0 {
		sc.Producer.Flush.Messages = config.BatchSize
	}

	if config.Compression != "" {
		if err := sc.Producer.Compression.UnmarshalText([]byte(config.Compression)); err != nil {
			return nil, fmt.Errorf("kafka compression: %w", err)
		}
	}

	acks, ok := requiredAcks[config.RequiredAcks]
	if !ok {
		return nil, fmt.Errorf("kafka required_acks %q: want none, leader or all", config.RequiredAcks)
	}
	sc.Producer.RequiredAcks = acks

	if config.MaxRetries > 0 {
		sc.Producer.Retry.Max = config.MaxRetries
	}
	if config.RetryBackoff > 0 {
		sc.Producer.Retry.Backoff = config.RetryBackoff
	}

	return sc, sc.Validate()
}
