package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Explorer/pkg/errors"
)

type mockKafkaConn struct {
	createFunc func(topics ...kafka.TopicConfig) error
	readFunc   func(topics ...string) ([]kafka.Partition, error)
	closeFunc  func() error
}

func (m *mockKafkaConn) CreateTopics(topics ...kafka.TopicConfig) error {
	if m.createFunc != nil {
		return m.createFunc(topics...)
	}
	return nil
}

func (m *mockKafkaConn) ReadPartitions(topics ...string) ([]kafka.Partition, error) {
	if m.readFunc != nil {
		return m.readFunc(topics...)
	}
	return nil, nil
}

func (m *mockKafkaConn) Close() error {
	if m.closeFunc != nil {
		return m.closeFunc()
	}
	return nil
}

func newTestTopicManager(conn ConnInterface) *TopicManager {
	return &TopicManager{
		conn:   conn,
		logger: logging.NewNopLogger(),
	}
}

func TestTopicConstants(t *testing.T) {
	assert.Equal(t, "export.requested", TopicExportRequested)
	assert.Equal(t, "export.completed", TopicExportCompleted)
	assert.Equal(t, "export.failed", TopicExportFailed)
}

func TestExportTopics_CoverTheLifecycle(t *testing.T) {
	topics := ExportTopics()
	require.Len(t, topics, 3)

	names := make([]string, 0, len(topics))
	for _, tc := range topics {
		names = append(names, tc.Name)
		assert.Positive(t, tc.NumPartitions)
		assert.Positive(t, tc.ReplicationFactor)
		assert.Positive(t, tc.RetentionMs)
	}
	assert.ElementsMatch(t, []string{TopicExportRequested, TopicExportCompleted, TopicExportFailed}, names)
}

func TestNewEventEnvelope_PopulatesEnvelope(t *testing.T) {
	env, err := NewEventEnvelope(TopicExportRequested, "apiserver", map[string]int{"rows": 3})
	require.NoError(t, err)

	_, err = uuid.Parse(env.EventID)
	assert.NoError(t, err)
	assert.Equal(t, TopicExportRequested, env.EventType)
	assert.Equal(t, "apiserver", env.Source)
	assert.Equal(t, "v1", env.SchemaVersion)
	assert.WithinDuration(t, time.Now().UTC(), env.Timestamp, 2*time.Second)
	assert.JSONEq(t, `{"rows":3}`, string(env.Payload))
}

func TestNewEventEnvelope_UnmarshalablePayload(t *testing.T) {
	_, err := NewEventEnvelope(TopicExportRequested, "apiserver", make(chan int))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeSerialization))
}

func TestEventEnvelope_RoundTrip(t *testing.T) {
	type payload struct {
		JobID string `json:"job_id"`
		Rows  int    `json:"rows"`
	}

	env, err := NewEventEnvelope(TopicExportCompleted, "worker", payload{JobID: "exp-1", Rows: 42})
	require.NoError(t, err)

	wire, err := json.Marshal(env)
	require.NoError(t, err)

	decoded, err := ParseEnvelope(wire)
	require.NoError(t, err)
	assert.Equal(t, env.EventID, decoded.EventID)
	assert.Equal(t, env.EventType, decoded.EventType)
	assert.Equal(t, env.Source, decoded.Source)

	var p payload
	require.NoError(t, decoded.DecodePayload(&p))
	assert.Equal(t, "exp-1", p.JobID)
	assert.Equal(t, 42, p.Rows)
}

func TestParseEnvelope_EmptyValue(t *testing.T) {
	_, err := ParseEnvelope(nil)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestParseEnvelope_Garbage(t *testing.T) {
	_, err := ParseEnvelope([]byte("{not json"))
	assert.True(t, errors.IsCode(err, errors.CodeSerialization))
}

func TestDecodePayload_EmptyPayload(t *testing.T) {
	env := &EventEnvelope{}
	var out map[string]string
	err := env.DecodePayload(&out)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestCreateTopic_Success(t *testing.T) {
	var captured []kafka.TopicConfig
	conn := &mockKafkaConn{
		createFunc: func(topics ...kafka.TopicConfig) error {
			captured = topics
			return nil
		},
	}
	m := newTestTopicManager(conn)

	err := m.CreateTopic(context.Background(), TopicConfig{
		Name:              TopicExportRequested,
		NumPartitions:     3,
		ReplicationFactor: 1,
		RetentionMs:       1000,
	})
	require.NoError(t, err)

	require.Len(t, captured, 1)
	assert.Equal(t, TopicExportRequested, captured[0].Topic)
	assert.Equal(t, 3, captured[0].NumPartitions)
	assert.Equal(t, 1, captured[0].ReplicationFactor)
	require.Len(t, captured[0].ConfigEntries, 1)
	assert.Equal(t, "retention.ms", captured[0].ConfigEntries[0].ConfigName)
	assert.Equal(t, "1000", captured[0].ConfigEntries[0].ConfigValue)
}

func TestCreateTopic_ValidatesInput(t *testing.T) {
	tests := []struct {
		name string
		cfg  TopicConfig
	}{
		{name: "missing name", cfg: TopicConfig{NumPartitions: 1, ReplicationFactor: 1}},
		{name: "zero partitions", cfg: TopicConfig{Name: "t", ReplicationFactor: 1}},
		{name: "zero replication", cfg: TopicConfig{Name: "t", NumPartitions: 1}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			m := newTestTopicManager(&mockKafkaConn{})
			err := m.CreateTopic(context.Background(), tc.cfg)
			assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
		})
	}
}

func TestCreateTopic_ExistingTopicIsNoop(t *testing.T) {
	conn := &mockKafkaConn{
		createFunc: func(_ ...kafka.TopicConfig) error {
			return assert.AnError
		},
		readFunc: func(_ ...string) ([]kafka.Partition, error) {
			return []kafka.Partition{{Topic: TopicExportRequested}}, nil
		},
	}
	m := newTestTopicManager(conn)

	err := m.CreateTopic(context.Background(), TopicConfig{
		Name:              TopicExportRequested,
		NumPartitions:     3,
		ReplicationFactor: 1,
	})
	assert.NoError(t, err)
}

func TestCreateTopic_FailureWithoutExistingTopic(t *testing.T) {
	conn := &mockKafkaConn{
		createFunc: func(_ ...kafka.TopicConfig) error {
			return assert.AnError
		},
		readFunc: func(_ ...string) ([]kafka.Partition, error) {
			return nil, assert.AnError
		},
	}
	m := newTestTopicManager(conn)

	err := m.CreateTopic(context.Background(), TopicConfig{
		Name:              TopicExportRequested,
		NumPartitions:     3,
		ReplicationFactor: 1,
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeMessagingError))
}

func TestTopicExists(t *testing.T) {
	m := newTestTopicManager(&mockKafkaConn{
		readFunc: func(_ ...string) ([]kafka.Partition, error) {
			return []kafka.Partition{{Topic: "t"}, {Topic: "t"}}, nil
		},
	})
	exists, err := m.TopicExists(context.Background(), "t")
	require.NoError(t, err)
	assert.True(t, exists)

	m = newTestTopicManager(&mockKafkaConn{
		readFunc: func(_ ...string) ([]kafka.Partition, error) {
			return nil, assert.AnError
		},
	})
	exists, err = m.TopicExists(context.Background(), "t")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestEnsureExportTopics_CreatesAll(t *testing.T) {
	var created []string
	conn := &mockKafkaConn{
		createFunc: func(topics ...kafka.TopicConfig) error {
			for _, tc := range topics {
				created = append(created, tc.Topic)
			}
			return nil
		},
	}
	m := newTestTopicManager(conn)

	require.NoError(t, m.EnsureExportTopics(context.Background()))
	assert.ElementsMatch(t, []string{TopicExportRequested, TopicExportCompleted, TopicExportFailed}, created)
}

func TestEnsureTopics_StopsAtFirstFailure(t *testing.T) {
	calls := 0
	conn := &mockKafkaConn{
		createFunc: func(_ ...kafka.TopicConfig) error {
			calls++
			if calls == 2 {
				return assert.AnError
			}
			return nil
		},
	}
	m := newTestTopicManager(conn)

	err := m.EnsureTopics(context.Background(), ExportTopics())
	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestNewTopicManager_RequiresBrokers(t *testing.T) {
	_, err := NewTopicManager(nil, logging.NewNopLogger())
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}
