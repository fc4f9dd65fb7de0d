package kafka

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/KeyIP-Explorer/internal/config"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyIP-Explorer/pkg/errors"
)

// ErrAlreadyRunning is returned by Start when the consume loop is live.
var ErrAlreadyRunning = errors.New(errors.CodeConflict, "consumer already running")

// Consumer tuning that is not worth a config knob.
const (
	consumerMaxBytes    = 10 << 20
	consumerDialTimeout = 10 * time.Second
	fetchErrorBackoff   = time.Second

	defaultHandlerRetries = 3
	defaultRetryBackoff   = time.Second
	maxRetryBackoff       = 30 * time.Second
)

// ReaderInterface abstracts kafka.Reader for testing.
type ReaderInterface interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
	Stats() kafka.ReaderStats
}

// Message is one consumed record, with headers flattened to a map.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Timestamp time.Time
	Headers   map[string]string
}

// Handler processes one consumed message. A nil return commits the offset;
// an error triggers the retry policy.
type Handler func(ctx context.Context, msg *Message) error

// Consumer runs a consumer-group loop over the subscribed topics, handling
// one message at a time and committing offsets explicitly after each.
type Consumer struct {
	reader  ReaderInterface
	logger  logging.Logger
	metrics *prometheus.AppMetrics

	handlers map[string]Handler
	mu       sync.RWMutex

	maxRetries   int
	retryBackoff time.Duration

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// ConsumerOption adjusts consumer behaviour at construction.
type ConsumerOption func(*Consumer)

// WithRetryPolicy sets how often a failing handler is retried before its
// message is abandoned, and the initial backoff between attempts. The backoff
// doubles per attempt up to a fixed ceiling.
func WithRetryPolicy(maxRetries int, backoff time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if maxRetries >= 0 {
			c.maxRetries = maxRetries
		}
		if backoff > 0 {
			c.retryBackoff = backoff
		}
	}
}

// NewConsumer builds a consumer-group reader over the given topics.
func NewConsumer(cfg config.KafkaConfig, topics []string, metrics *prometheus.AppMetrics, logger logging.Logger, opts ...ConsumerOption) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New(errors.CodeInvalidParam, "kafka brokers are required")
	}
	if cfg.GroupID == "" {
		return nil, errors.New(errors.CodeInvalidParam, "kafka group id is required")
	}
	if len(topics) == 0 {
		return nil, errors.New(errors.CodeInvalidParam, "at least one topic is required")
	}

	startOffset := kafka.FirstOffset
	switch cfg.AutoOffsetReset {
	case "", "earliest":
	case "latest":
		startOffset = kafka.LastOffset
	default:
		return nil, errors.Newf(errors.CodeInvalidParam, "auto offset reset %q is invalid; expected earliest|latest", cfg.AutoOffsetReset)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		GroupTopics: topics,
		MinBytes:    1,
		MaxBytes:    consumerMaxBytes,
		StartOffset: startOffset,
		Dialer: &kafka.Dialer{
			Timeout:   consumerDialTimeout,
			DualStack: true,
		},
	})

	c := &Consumer{
		reader:       reader,
		logger:       logger.Named("kafka.consumer"),
		metrics:      metrics,
		handlers:     make(map[string]Handler),
		maxRetries:   defaultHandlerRetries,
		retryBackoff: defaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Subscribe registers the handler for a topic, replacing any previous one.
// Subscriptions must be in place before Start.
func (c *Consumer) Subscribe(topic string, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = handler
	c.logger.Info("subscribed", logging.String("topic", topic))
}

// Start launches the consume loop. It returns ErrAlreadyRunning if the loop
// is already live.
func (c *Consumer) Start(ctx context.Context) error {
	if c.running.Swap(true) {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	go c.consumeLoop(ctx)

	c.logger.Info("kafka consumer started")
	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("event fetch failed", logging.Err(err))
			time.Sleep(fetchErrorBackoff)
			continue
		}

		c.mu.RLock()
		handler, ok := c.handlers[m.Topic]
		c.mu.RUnlock()

		if !ok {
			// Commit so an unrouted topic cannot wedge the group.
			c.logger.Warn("no handler for topic", logging.String("topic", m.Topic))
			c.commit(ctx, m)
			continue
		}

		start := time.Now()
		err = c.processMessage(ctx, fromKafkaMessage(m), handler)
		c.metrics.RecordEventConsumed(m.Topic, time.Since(start), err)

		if err != nil {
			if ctx.Err() != nil {
				// Shutdown mid-handling: leave the offset uncommitted
				// so the message is redelivered.
				return
			}
			c.logger.Error("event abandoned after retries",
				logging.String("topic", m.Topic),
				logging.Int64("offset", m.Offset),
				logging.Err(err))
		}
		c.commit(ctx, m)
	}
}

// processMessage runs the handler with bounded retries and exponential
// backoff. The last handler error is returned once retries are exhausted.
func (c *Consumer) processMessage(ctx context.Context, msg *Message, handler Handler) error {
	err := handler(ctx, msg)
	if err == nil {
		return nil
	}

	backoff := c.retryBackoff
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		if err = handler(ctx, msg); err == nil {
			return nil
		}

		backoff *= 2
		if backoff > maxRetryBackoff {
			backoff = maxRetryBackoff
		}
	}
	return err
}

func (c *Consumer) commit(ctx context.Context, m kafka.Message) {
	if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		c.logger.Error("offset commit failed",
			logging.String("topic", m.Topic),
			logging.Int64("offset", m.Offset),
			logging.Err(err))
	}
}

// Close stops the loop, waits for the in-flight message, and closes the
// reader. Closing a consumer that never started is a no-op.
func (c *Consumer) Close() error {
	if !c.running.CompareAndSwap(true, false) {
		return nil
	}

	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	if err := c.reader.Close(); err != nil {
		return errors.Wrap(err, errors.CodeMessagingError, "consumer close failed")
	}
	c.logger.Info("kafka consumer closed")
	return nil
}

func fromKafkaMessage(m kafka.Message) *Message {
	msg := &Message{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       m.Key,
		Value:     m.Value,
		Timestamp: m.Time,
		Headers:   make(map[string]string, len(m.Headers)),
	}
	for _, h := range m.Headers {
		msg.Headers[h.Key] = string(h.Value)
	}
	return msg
}
