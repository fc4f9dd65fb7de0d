package kafka

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/KeyIP-Explorer/internal/config"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyIP-Explorer/pkg/errors"
)

// ErrProducerClosed is returned by Publish after Close.
var ErrProducerClosed = errors.New(errors.CodeConflict, "producer closed")

const producerDialTimeout = 10 * time.Second

// WriterInterface abstracts kafka.Writer for testing.
type WriterInterface interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
	Stats() kafka.WriterStats
}

// Producer publishes event envelopes to Kafka.
type Producer struct {
	writer  WriterInterface
	metrics *prometheus.AppMetrics
	logger  logging.Logger
	closed  atomic.Bool
}

// NewProducer builds a producer from the shared Kafka configuration.
// Zero-valued batching and retry settings fall back to the config defaults,
// so a hand-built KafkaConfig behaves like a loaded one.
func NewProducer(cfg config.KafkaConfig, metrics *prometheus.AppMetrics, logger logging.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New(errors.CodeInvalidParam, "kafka brokers are required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = config.DefaultKafkaBatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = config.DefaultKafkaBatchTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = config.DefaultKafkaMaxAttempts
	}

	writer := &kafka.Writer{
		Addr: kafka.TCP(cfg.Brokers...),
		// Hash on the message key keeps one job's lifecycle on one
		// partition.
		Balancer:     &kafka.Hash{},
		MaxAttempts:  cfg.MaxAttempts,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireAll,
		Transport:    &kafka.Transport{DialTimeout: producerDialTimeout},
	}

	return &Producer{
		writer:  writer,
		metrics: metrics,
		logger:  logger.Named("kafka.producer"),
	}, nil
}

// Publish writes one envelope to the topic, keyed so that messages sharing a
// key share a partition. An empty key leaves partition assignment to the
// balancer.
func (p *Producer) Publish(ctx context.Context, topic, key string, env *EventEnvelope) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	if topic == "" {
		return errors.New(errors.CodeInvalidParam, "topic is required")
	}
	if env == nil {
		return errors.New(errors.CodeInvalidParam, "event envelope is required")
	}

	msg, err := envelopeMessage(topic, key, env)
	if err != nil {
		return err
	}

	err = p.writer.WriteMessages(ctx, msg)
	p.metrics.RecordEventPublished(topic, err)
	if err != nil {
		return errors.Wrap(err, errors.CodeMessagingError, "event publish failed")
	}

	p.logger.Debug("event published",
		logging.String("topic", topic),
		logging.String("event_id", env.EventID),
		logging.String("event_type", env.EventType))
	return nil
}

// Close flushes and closes the writer. Subsequent calls are no-ops.
func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := p.writer.Close(); err != nil {
		return errors.Wrap(err, errors.CodeMessagingError, "producer close failed")
	}
	p.logger.Info("kafka producer closed")
	return nil
}

// envelopeMessage converts an envelope into its wire message. The envelope's
// own fields double as message headers so consumers can route without
// decoding the value.
func envelopeMessage(topic, key string, env *EventEnvelope) (kafka.Message, error) {
	value, err := json.Marshal(env)
	if err != nil {
		return kafka.Message{}, errors.Wrap(err, errors.CodeSerialization, "event envelope encode failed")
	}

	msg := kafka.Message{
		Topic: topic,
		Value: value,
		Time:  env.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(env.EventType)},
			{Key: "source", Value: []byte(env.Source)},
			{Key: "schema_version", Value: []byte(env.SchemaVersion)},
		},
	}
	if key != "" {
		msg.Key = []byte(key)
	}
	if msg.Time.IsZero() {
		msg.Time = time.Now().UTC()
	}
	return msg, nil
}
