// The worker binary runs queued CSV exports. It consumes export.requested,
// claims each job with a Redis lock so a redelivered or rebalanced message
// is dropped instead of run twice, produces and uploads the artifact, and
// emits export.completed or export.failed.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/turtacn/KeyIP-Explorer/internal/application/export"
	"github.com/turtacn/KeyIP-Explorer/internal/config"
	"github.com/turtacn/KeyIP-Explorer/internal/domain/patent"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/database/postgres"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/database/redis"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/search/opensearch"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/storage/minio"
	"github.com/turtacn/KeyIP-Explorer/internal/interfaces/worker"
)

// Build metadata, injected via -ldflags.
var (
	version   = "dev"
	gitCommit = "unknown"
)

const defaultHealthAddr = ":8081"

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: config.yaml in ., ./configs, /etc/kipx)")
	healthAddr := flag.String("health-addr", defaultHealthAddr, "address for the health and metrics endpoints")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	logger.Info("starting kipx export worker",
		logging.String("version", version),
		logging.String("commit", gitCommit),
		logging.String("backend", cfg.Search.Backend))

	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            cfg.Metrics.Namespace,
		Subsystem:            "worker",
		EnableProcessMetrics: cfg.Metrics.EnableProcessMetrics,
		EnableGoMetrics:      cfg.Metrics.EnableGoMetrics,
	}, logger)
	if err != nil {
		logger.Fatal("metrics collector init failed", logging.Err(err))
	}
	metrics := prometheus.NewAppMetrics(collector)
	metrics.SetBuildInfo(version, gitCommit)

	ctx := context.Background()
	var closers []func()
	defer runClosers(&closers)

	store, err := openStore(ctx, cfg, metrics, logger, &closers)
	if err != nil {
		logger.Fatal("store init failed", logging.Err(err))
	}

	mc, err := minio.NewClient(ctx, cfg.MinIO, logger)
	if err != nil {
		logger.Fatal("object store init failed", logging.Err(err))
	}
	files := minio.NewArtifactStore(mc, cfg.MinIO, metrics, logger)
	if err := files.EnsureBucket(ctx); err != nil {
		logger.Fatal("export bucket init failed", logging.Err(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("redis init failed", logging.Err(err))
	}
	closers = append(closers, func() { _ = rdb.Close() })

	producer, err := kafka.NewProducer(cfg.Kafka, metrics, logger)
	if err != nil {
		logger.Fatal("kafka producer init failed", logging.Err(err))
	}
	closers = append(closers, func() { _ = producer.Close() })
	events := kafka.NewExportEventPublisher(producer, "worker")
	ensureExportTopics(ctx, cfg, logger)

	runner := export.NewRunner(export.NewEngine(store, logger), files, events, metrics, logger)

	consumer, err := kafka.NewConsumer(cfg.Kafka, []string{kafka.TopicExportRequested}, metrics, logger,
		kafka.WithRetryPolicy(cfg.Worker.MaxRetries, cfg.Worker.RetryBackoff))
	if err != nil {
		logger.Fatal("kafka consumer init failed", logging.Err(err))
	}
	w := worker.New(runner, exportJobLocks(rdb, logger), logger)
	consumer.Subscribe(kafka.TopicExportRequested, w.HandleExportRequested)

	healthSrv := startHealthServer(*healthAddr, collector, logger)

	if err := consumer.Start(ctx); err != nil {
		logger.Fatal("consumer start failed", logging.Err(err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("received shutdown signal", logging.String("signal", sig.String()))

	// Close waits for the in-flight job; bound that wait so a stuck export
	// cannot hold up process exit forever.
	drainDone := make(chan struct{})
	go func() {
		if err := consumer.Close(); err != nil {
			logger.Error("consumer close failed", logging.Err(err))
		}
		close(drainDone)
	}()

	drainTimeout := cfg.Worker.ShutdownTimeout
	if drainTimeout <= 0 {
		drainTimeout = 30 * time.Second
	}
	select {
	case <-drainDone:
	case <-time.After(drainTimeout):
		logger.Warn("drain timeout exceeded, exiting with job in flight")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_ = healthSrv.Shutdown(shutdownCtx)

	logger.Info("worker stopped")
}

// exportJobLocks mints the per-job Redis lock the worker claims deliveries
// with. The watchdog keeps the claim alive for exports that outlive the
// base TTL.
func exportJobLocks(rdb *goredis.Client, logger logging.Logger) worker.LockFactory {
	return func(jobID string) worker.JobLock {
		return redis.NewLock(rdb, "export:"+jobID, logger, redis.WithWatchdog(0))
	}
}

// loadConfig loads the named file, or walks the search path when no file is
// given; with no file anywhere the built-in defaults apply.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(config.WithConfigPath(path))
	}
	return config.Load(config.WithSearchPaths(".", "./configs", "/etc/kipx"))
}

// openStore connects the query backend the export engine reads from.
func openStore(
	ctx context.Context,
	cfg *config.Config,
	metrics *prometheus.AppMetrics,
	logger logging.Logger,
	closers *[]func(),
) (patent.Executor, error) {
	switch cfg.Search.Backend {
	case config.BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, pool.Close)
		return postgres.NewStore(pool, metrics, logger), nil

	case config.BackendOpenSearch:
		client, err := opensearch.NewClient(ctx, cfg.OpenSearch, logger)
		if err != nil {
			return nil, err
		}
		return opensearch.NewStore(client, cfg.OpenSearch, metrics, logger), nil

	default:
		return nil, fmt.Errorf("unknown search backend %q", cfg.Search.Backend)
	}
}

// ensureExportTopics creates the export topics on the broker. Failure is
// logged, not fatal; the consumer reconnects once the broker is back.
func ensureExportTopics(ctx context.Context, cfg *config.Config, logger logging.Logger) {
	mgr, err := kafka.NewTopicManager(cfg.Kafka.Brokers, logger)
	if err != nil {
		logger.Warn("kafka unreachable, export topics not ensured", logging.Err(err))
		return
	}
	defer mgr.Close()
	if err := mgr.EnsureExportTopics(ctx); err != nil {
		logger.Warn("export topics not ensured", logging.Err(err))
	}
}

// startHealthServer serves the liveness probe and the metrics endpoint on
// their own port, separate from the API server's.
func startHealthServer(addr string, collector prometheus.MetricsCollector, logger logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"alive"}`))
	})
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", logging.Err(err))
		}
	}()
	logger.Info("health server listening", logging.String("addr", addr))
	return srv
}

// runClosers releases resources in reverse acquisition order.
func runClosers(closers *[]func()) {
	for i := len(*closers) - 1; i >= 0; i-- {
		(*closers)[i]()
	}
}
