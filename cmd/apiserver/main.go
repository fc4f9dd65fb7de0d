// The apiserver binary serves the patent search and export HTTP API. It
// wires the configured search backend, the Redis assignee cache, MinIO
// artifact storage and the Kafka export events into the chi route tree and
// runs it with graceful shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/turtacn/KeyIP-Explorer/internal/application/export"
	"github.com/turtacn/KeyIP-Explorer/internal/application/search"
	"github.com/turtacn/KeyIP-Explorer/internal/config"
	"github.com/turtacn/KeyIP-Explorer/internal/domain/patent"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/database/postgres"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/database/redis"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/search/opensearch"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/storage/minio"
	httpserver "github.com/turtacn/KeyIP-Explorer/internal/interfaces/http"
	"github.com/turtacn/KeyIP-Explorer/internal/interfaces/http/handlers"
	"github.com/turtacn/KeyIP-Explorer/internal/interfaces/http/middleware"
)

// Build metadata, injected via -ldflags.
var (
	version   = "dev"
	gitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: config.yaml in ., ./configs, /etc/kipx)")
	port := flag.Int("port", 0, "HTTP port (overrides config)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	logger.Info("starting kipx apiserver",
		logging.String("version", version),
		logging.String("commit", gitCommit),
		logging.String("addr", cfg.Server.Addr()),
		logging.String("backend", cfg.Search.Backend))

	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            cfg.Metrics.Namespace,
		Subsystem:            cfg.Metrics.Subsystem,
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

	// Search backend.
	backend, check, err := openBackend(ctx, cfg, metrics, logger, &closers)
	if err != nil {
		logger.Fatal("search backend init failed", logging.Err(err))
	}

	// Redis fronts the assignee directory.
	rdb, err := redis.NewClient(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("redis init failed", logging.Err(err))
	}
	closers = append(closers, func() { _ = rdb.Close() })

	cacheOpts := []redis.CacheOption{}
	if cfg.Redis.KeyPrefix != "" {
		cacheOpts = append(cacheOpts, redis.WithPrefix(cfg.Redis.KeyPrefix))
	}
	if cfg.Redis.DefaultTTL > 0 {
		cacheOpts = append(cacheOpts, redis.WithDefaultTTL(cfg.Redis.DefaultTTL))
	}
	cache := redis.NewCache(rdb, logger, cacheOpts...)

	store := searchStore{
		Executor:          backend,
		AssigneeDirectory: redis.NewAssigneeCache(backend, cache, metrics, logger),
	}

	// Object storage for export artifacts.
	mc, err := minio.NewClient(ctx, cfg.MinIO, logger)
	if err != nil {
		logger.Fatal("object store init failed", logging.Err(err))
	}
	files := minio.NewArtifactStore(mc, cfg.MinIO, metrics, logger)
	if err := files.EnsureBucket(ctx); err != nil {
		logger.Fatal("export bucket init failed", logging.Err(err))
	}

	// Kafka carries the export lifecycle events. The producer dials lazily,
	// so a broker outage degrades exports without blocking startup.
	producer, err := kafka.NewProducer(cfg.Kafka, metrics, logger)
	if err != nil {
		logger.Fatal("kafka producer init failed", logging.Err(err))
	}
	closers = append(closers, func() { _ = producer.Close() })
	events := kafka.NewExportEventPublisher(producer, "apiserver")
	ensureExportTopics(ctx, cfg, logger)

	// Application services and handlers.
	searchSvc := search.NewService(store, logger)
	engine := export.NewEngine(store, logger)
	runner := export.NewRunner(engine, files, events, metrics, logger)

	health := handlers.NewHealthHandler(version,
		check,
		handlers.NewCheck("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}),
		handlers.NewCheck("minio", files.Ping),
	)

	router := httpserver.NewRouter(httpserver.RouterConfig{
		Search:           handlers.NewSearchHandler(searchSvc, logger),
		Assignees:        handlers.NewAssigneeHandler(searchSvc, cfg.Search.AssigneeLimit, logger),
		Exports:          handlers.NewExportHandler(runner, engine, searchSvc, events, cfg.Export.Async, logger),
		Health:           health,
		CORS:             middleware.CORS(middleware.DefaultCORSConfig()),
		Metrics:          middleware.Metrics(metrics),
		RequestLogging:   middleware.RequestLogging(logger, middleware.DefaultLoggingConfig()),
		MaxBodyBytes:     cfg.Server.MaxBodySize,
		MetricsCollector: collector,
	})

	srv := httpserver.NewServer(cfg.Server, router, logger)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", logging.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Fatal("http server failed", logging.Err(err))
		}
		return
	}

	if err := srv.Stop(ctx); err != nil {
		logger.Error("shutdown incomplete", logging.Err(err))
	}
	logger.Info("apiserver stopped")
}

// loadConfig loads the named file, or walks the search path when no file is
// given; with no file anywhere the built-in defaults apply.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(config.WithConfigPath(path))
	}
	return config.Load(config.WithSearchPaths(".", "./configs", "/etc/kipx"))
}

// openBackend connects the store selected by search.backend and returns it
// with its readiness check. Pending migrations run before the postgres store
// is handed out.
func openBackend(
	ctx context.Context,
	cfg *config.Config,
	metrics *prometheus.AppMetrics,
	logger logging.Logger,
	closers *[]func(),
) (patent.Store, handlers.Checker, error) {
	switch cfg.Search.Backend {
	case config.BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.Database, logger)
		if err != nil {
			return nil, nil, err
		}
		*closers = append(*closers, pool.Close)
		if cfg.Database.MigrationPath != "" {
			if err := postgres.Migrate(pool, cfg.Database.MigrationPath, logger); err != nil {
				return nil, nil, err
			}
		}
		check := handlers.NewCheck("postgres", func(ctx context.Context) error {
			return pool.Ping(ctx)
		})
		return postgres.NewStore(pool, metrics, logger), check, nil

	case config.BackendOpenSearch:
		client, err := opensearch.NewClient(ctx, cfg.OpenSearch, logger)
		if err != nil {
			return nil, nil, err
		}
		store := opensearch.NewStore(client, cfg.OpenSearch, metrics, logger)
		if err := store.EnsureIndex(ctx); err != nil {
			return nil, nil, err
		}
		check := handlers.NewCheck("opensearch", func(ctx context.Context) error {
			return opensearch.Ping(ctx, client)
		})
		return store, check, nil

	default:
		return nil, nil, fmt.Errorf("unknown search backend %q", cfg.Search.Backend)
	}
}

// ensureExportTopics creates the export topics on the broker. Failure is
// logged, not fatal: the broker may auto-create topics or come up later, and
// search must not depend on it.
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

// runClosers releases resources in reverse acquisition order.
func runClosers(closers *[]func()) {
	for i := len(*closers) - 1; i >= 0; i-- {
		(*closers)[i]()
	}
}
