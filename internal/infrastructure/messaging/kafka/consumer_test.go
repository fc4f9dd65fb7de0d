package kafka

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-Explorer/internal/config"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Explorer/pkg/errors"
)

// mockKafkaReader scripts the reader behaviour through function fields. The
// default fetch blocks until the context is cancelled, like an idle broker.
type mockKafkaReader struct {
	fetchFunc  func(ctx context.Context) (kafka.Message, error)
	commitFunc func(ctx context.Context, msgs ...kafka.Message) error
	closeFunc  func() error
}

func (m *mockKafkaReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if m.fetchFunc != nil {
		return m.fetchFunc(ctx)
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (m *mockKafkaReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	if m.commitFunc != nil {
		return m.commitFunc(ctx, msgs...)
	}
	return nil
}

func (m *mockKafkaReader) Close() error {
	if m.closeFunc != nil {
		return m.closeFunc()
	}
	return nil
}

func (m *mockKafkaReader) Stats() kafka.ReaderStats {
	return kafka.ReaderStats{}
}

func newTestConsumer(reader ReaderInterface) *Consumer {
	return &Consumer{
		reader:       reader,
		logger:       logging.NewNopLogger(),
		handlers:     make(map[string]Handler),
		maxRetries:   2,
		retryBackoff: time.Millisecond,
	}
}

func newTestKafkaConfig() config.KafkaConfig {
	return config.KafkaConfig{
		Brokers: []string{"localhost:9092"},
		GroupID: "kipx-test",
	}
}

func TestNewConsumer_RequiresBrokers(t *testing.T) {
	cfg := newTestKafkaConfig()
	cfg.Brokers = nil
	_, err := NewConsumer(cfg, []string{TopicExportRequested}, nil, logging.NewNopLogger())
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestNewConsumer_RequiresGroupID(t *testing.T) {
	cfg := newTestKafkaConfig()
	cfg.GroupID = ""
	_, err := NewConsumer(cfg, []string{TopicExportRequested}, nil, logging.NewNopLogger())
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestNewConsumer_RequiresTopics(t *testing.T) {
	_, err := NewConsumer(newTestKafkaConfig(), nil, nil, logging.NewNopLogger())
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestNewConsumer_RejectsUnknownOffsetReset(t *testing.T) {
	cfg := newTestKafkaConfig()
	cfg.AutoOffsetReset = "sideways"
	_, err := NewConsumer(cfg, []string{TopicExportRequested}, nil, logging.NewNopLogger())
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestNewConsumer_MapsOffsetReset(t *testing.T) {
	tests := []struct {
		reset string
		want  int64
	}{
		{reset: "", want: kafka.FirstOffset},
		{reset: "earliest", want: kafka.FirstOffset},
		{reset: "latest", want: kafka.LastOffset},
	}
	for _, tc := range tests {
		tc := tc
		t.Run("reset="+tc.reset, func(t *testing.T) {
			cfg := newTestKafkaConfig()
			cfg.AutoOffsetReset = tc.reset

			c, err := NewConsumer(cfg, []string{TopicExportRequested}, nil, logging.NewNopLogger())
			require.NoError(t, err)
			defer c.reader.Close()

			reader, ok := c.reader.(*kafka.Reader)
			require.True(t, ok)
			assert.Equal(t, tc.want, reader.Config().StartOffset)
		})
	}
}

func TestSubscribe_RegistersHandler(t *testing.T) {
	c := newTestConsumer(&mockKafkaReader{})
	c.Subscribe(TopicExportRequested, func(context.Context, *Message) error { return nil })
	assert.Len(t, c.handlers, 1)
}

func TestStart_AlreadyRunning(t *testing.T) {
	c := newTestConsumer(&mockKafkaReader{})
	c.running.Store(true)
	assert.Equal(t, ErrAlreadyRunning, c.Start(context.Background()))
}

func TestConsumeLoop_DispatchesAndCommits(t *testing.T) {
	var fetched atomic.Bool
	var commits atomic.Int32
	reader := &mockKafkaReader{
		fetchFunc: func(ctx context.Context) (kafka.Message, error) {
			if fetched.Swap(true) {
				<-ctx.Done()
				return kafka.Message{}, ctx.Err()
			}
			return kafka.Message{
				Topic:  TopicExportRequested,
				Offset: 7,
				Key:    []byte("exp-1"),
				Value:  []byte(`{"event_id":"e-1"}`),
				Headers: []kafka.Header{
					{Key: "event_type", Value: []byte(TopicExportRequested)},
				},
			}, nil
		},
		commitFunc: func(_ context.Context, msgs ...kafka.Message) error {
			require.Len(t, msgs, 1)
			commits.Add(1)
			return nil
		},
	}

	c := newTestConsumer(reader)
	handled := make(chan *Message, 1)
	c.Subscribe(TopicExportRequested, func(_ context.Context, msg *Message) error {
		handled <- msg
		return nil
	})

	require.NoError(t, c.Start(context.Background()))

	select {
	case msg := <-handled:
		assert.Equal(t, TopicExportRequested, msg.Topic)
		assert.Equal(t, int64(7), msg.Offset)
		assert.Equal(t, "exp-1", string(msg.Key))
		assert.Equal(t, TopicExportRequested, msg.Headers["event_type"])
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for handler")
	}

	require.NoError(t, c.Close())
	assert.Equal(t, int32(1), commits.Load())
}

func TestConsumeLoop_CommitsUnroutedTopics(t *testing.T) {
	var fetched atomic.Bool
	committed := make(chan struct{}, 1)
	reader := &mockKafkaReader{
		fetchFunc: func(ctx context.Context) (kafka.Message, error) {
			if fetched.Swap(true) {
				<-ctx.Done()
				return kafka.Message{}, ctx.Err()
			}
			return kafka.Message{Topic: "unrouted.topic"}, nil
		},
		commitFunc: func(_ context.Context, _ ...kafka.Message) error {
			committed <- struct{}{}
			return nil
		},
	}

	c := newTestConsumer(reader)
	handlerCalled := false
	c.Subscribe(TopicExportRequested, func(context.Context, *Message) error {
		handlerCalled = true
		return nil
	})

	require.NoError(t, c.Start(context.Background()))

	select {
	case <-committed:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for commit")
	}

	require.NoError(t, c.Close())
	assert.False(t, handlerCalled)
}

func TestConsumeLoop_CommitsAbandonedMessages(t *testing.T) {
	var fetched atomic.Bool
	committed := make(chan struct{}, 1)
	reader := &mockKafkaReader{
		fetchFunc: func(ctx context.Context) (kafka.Message, error) {
			if fetched.Swap(true) {
				<-ctx.Done()
				return kafka.Message{}, ctx.Err()
			}
			return kafka.Message{Topic: TopicExportRequested}, nil
		},
		commitFunc: func(_ context.Context, _ ...kafka.Message) error {
			committed <- struct{}{}
			return nil
		},
	}

	c := newTestConsumer(reader)
	var attempts atomic.Int32
	c.Subscribe(TopicExportRequested, func(context.Context, *Message) error {
		attempts.Add(1)
		return assert.AnError
	})

	require.NoError(t, c.Start(context.Background()))

	// The offset is committed only after the initial attempt plus
	// maxRetries retries have all failed.
	select {
	case <-committed:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for commit")
	}

	require.NoError(t, c.Close())
	assert.Equal(t, int32(3), attempts.Load())
}

func TestProcessMessage_RetriesThenSucceeds(t *testing.T) {
	c := newTestConsumer(&mockKafkaReader{})

	attempts := 0
	err := c.processMessage(context.Background(), &Message{}, func(context.Context, *Message) error {
		attempts++
		if attempts < 2 {
			return assert.AnError
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestProcessMessage_ReturnsLastErrorWhenExhausted(t *testing.T) {
	c := newTestConsumer(&mockKafkaReader{})

	attempts := 0
	err := c.processMessage(context.Background(), &Message{}, func(context.Context, *Message) error {
		attempts++
		return assert.AnError
	})

	assert.Equal(t, assert.AnError, err)
	assert.Equal(t, 3, attempts)
}

func TestProcessMessage_StopsOnContextCancel(t *testing.T) {
	c := newTestConsumer(&mockKafkaReader{})
	c.retryBackoff = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := c.processMessage(ctx, &Message{}, func(context.Context, *Message) error {
		attempts++
		cancel()
		return assert.AnError
	})

	assert.Equal(t, context.Canceled, err)
	assert.Equal(t, 1, attempts)
}

func TestClose_BeforeStartIsNoop(t *testing.T) {
	closed := false
	c := newTestConsumer(&mockKafkaReader{
		closeFunc: func() error {
			closed = true
			return nil
		},
	})

	require.NoError(t, c.Close())
	assert.False(t, closed)
}

func TestClose_StopsLoopAndClosesReader(t *testing.T) {
	closed := false
	c := newTestConsumer(&mockKafkaReader{
		closeFunc: func() error {
			closed = true
			return nil
		},
	})

	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Close())
	assert.True(t, closed)

	// Second close is a no-op.
	require.NoError(t, c.Close())
}
