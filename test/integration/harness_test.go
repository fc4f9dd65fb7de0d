//go:build integration

// Package integration runs the queued export pipeline against real backing
// services. The per-package integration tests cover each store and client on
// its own; here the pieces run together, from the requested event announced
// by the API side to the completed event closing the loop. Every service is
// a disposable container.
package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/turtacn/KeyIP-Explorer/internal/config"
)

// Container requests mirror the per-package integration tests, so both
// levels exercise the same images.

func startPostgres(t *testing.T) config.DatabaseConfig {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "kipx",
			"POSTGRES_PASSWORD": "kipx",
			"POSTGRES_DB":       "kipx_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = ctr.Terminate(context.Background())
	})

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return config.DatabaseConfig{
		Host:     host,
		Port:     port.Int(),
		User:     "kipx",
		Password: "kipx",
		DBName:   "kipx_test",
		SSLMode:  "disable",
		MaxConns: 4,
	}
}

func startRedis(t *testing.T) config.RedisConfig {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor: wait.ForLog("Ready to accept connections").
			WithStartupTimeout(30 * time.Second),
	}
	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = ctr.Terminate(context.Background())
	})

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return config.RedisConfig{
		Addr:        host + ":" + port.Port(),
		DialTimeout: 5 * time.Second,
	}
}

func startMinIO(t *testing.T) config.MinIOConfig {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "minio/minio:RELEASE.2024-01-16T16-07-38Z",
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"MINIO_ROOT_USER":     "kipx",
			"MINIO_ROOT_PASSWORD": "kipx-secret",
		},
		Cmd: []string{"server", "/data"},
		WaitingFor: wait.ForHTTP("/minio/health/live").
			WithPort("9000/tcp").
			WithStartupTimeout(60 * time.Second),
	}
	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = ctr.Terminate(context.Background())
	})

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "9000")
	require.NoError(t, err)

	return config.MinIOConfig{
		Endpoint:      host + ":" + port.Port(),
		AccessKey:     "kipx",
		SecretKey:     "kipx-secret",
		Bucket:        "kipx-exports-it",
		PresignExpiry: time.Minute,
	}
}

func startKafka(t *testing.T) config.KafkaConfig {
	t.Helper()
	ctx := context.Background()

	ctr, err := tckafka.RunContainer(ctx,
		tckafka.WithClusterID("kipx-it"),
		testcontainers.WithImage("confluentinc/confluent-local:7.5.0"),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = ctr.Terminate(context.Background())
	})

	brokers, err := ctr.Brokers(ctx)
	require.NoError(t, err)

	return config.KafkaConfig{
		Brokers:         brokers,
		GroupID:         "kipx-worker-it",
		AutoOffsetReset: "earliest",
		// Flush single events promptly; the default batch timeout is tuned
		// for throughput, not a one-message test.
		BatchTimeout: 50 * time.Millisecond,
	}
}
