package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix for all settings; nested keys
// map dots to underscores, so "database.host" resolves to KIPX_DATABASE_HOST.
const envPrefix = "KIPX"

// Sentinel errors for load failures, matchable with errors.Is.
var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigParseError   = errors.New("config parse error")
	ErrConfigValidation   = errors.New("config validation failed")
)

// Option customises a Load call.
type Option func(*loadOptions)

type loadOptions struct {
	configPath  string
	searchPaths []string
	overrides   map[string]interface{}
}

// WithConfigPath reads configuration from an explicit file; a missing file is
// an error.
func WithConfigPath(path string) Option {
	return func(o *loadOptions) { o.configPath = path }
}

// WithSearchPaths looks for a "config.yaml" in the given directories; finding
// none falls through to environment variables and defaults.
func WithSearchPaths(paths ...string) Option {
	return func(o *loadOptions) { o.searchPaths = append(o.searchPaths, paths...) }
}

// WithOverrides applies explicit key overrides on top of file and environment
// values, mainly for tests and CLI flags.
func WithOverrides(overrides map[string]interface{}) Option {
	return func(o *loadOptions) {
		if o.overrides == nil {
			o.overrides = make(map[string]interface{}, len(overrides))
		}
		for k, v := range overrides {
			o.overrides[k] = v
		}
	}
}

// newViper builds a pre-configured viper instance: YAML files, KIPX_ env
// prefix with automatic binding, and every known key registered with its
// default so environment-only loading sees the full key set.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setViperDefaults(v)
	return v
}

// setViperDefaults registers the default for every configuration key.  Viper
// only considers keys it knows about during Unmarshal, so keys that exist
// solely as environment variables must be registered here to be seen at all.
func setViperDefaults(v *viper.Viper) {
	v.SetDefault("server.host", DefaultServerHost)
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.read_timeout", DefaultReadTimeout)
	v.SetDefault("server.write_timeout", DefaultWriteTimeout)
	v.SetDefault("server.shutdown_timeout", DefaultShutdownTimeout)
	v.SetDefault("server.max_body_size", DefaultMaxBodySize)

	v.SetDefault("database.host", DefaultDBHost)
	v.SetDefault("database.port", DefaultDBPort)
	v.SetDefault("database.user", DefaultDBUser)
	v.SetDefault("database.password", "")
	v.SetDefault("database.db_name", DefaultDBName)
	v.SetDefault("database.ssl_mode", DefaultDBSSLMode)
	v.SetDefault("database.max_conns", DefaultDBMaxConns)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.conn_max_lifetime", 0)
	v.SetDefault("database.conn_max_idle_time", 0)
	v.SetDefault("database.migration_path", "")

	v.SetDefault("opensearch.addresses", []string{DefaultOpenSearchAddr})
	v.SetDefault("opensearch.user", "")
	v.SetDefault("opensearch.password", "")
	v.SetDefault("opensearch.insecure_skip_verify", false)
	v.SetDefault("opensearch.index_prefix", DefaultOpenSearchPrefix)
	v.SetDefault("opensearch.request_timeout", DefaultOpenSearchTimeout)

	v.SetDefault("redis.addr", DefaultRedisAddr)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 0)
	v.SetDefault("redis.min_idle_conns", 0)
	v.SetDefault("redis.dial_timeout", 0)
	v.SetDefault("redis.read_timeout", 0)
	v.SetDefault("redis.write_timeout", 0)
	v.SetDefault("redis.default_ttl", DefaultRedisTTL)
	v.SetDefault("redis.key_prefix", DefaultRedisKeyPrefix)

	v.SetDefault("kafka.brokers", []string{DefaultKafkaBroker})
	v.SetDefault("kafka.group_id", DefaultKafkaGroupID)
	v.SetDefault("kafka.auto_offset_reset", DefaultKafkaOffsetReset)
	v.SetDefault("kafka.batch_size", DefaultKafkaBatchSize)
	v.SetDefault("kafka.batch_timeout", DefaultKafkaBatchTimeout)
	v.SetDefault("kafka.max_attempts", DefaultKafkaMaxAttempts)

	v.SetDefault("minio.endpoint", DefaultMinIOEndpoint)
	v.SetDefault("minio.access_key", "")
	v.SetDefault("minio.secret_key", "")
	v.SetDefault("minio.bucket", DefaultExportBucket)
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.presign_expiry", DefaultPresignExpiry)

	v.SetDefault("worker.concurrency", DefaultWorkerConcurrency)
	v.SetDefault("worker.max_retries", DefaultWorkerRetries)
	v.SetDefault("worker.retry_backoff", DefaultWorkerBackoff)
	v.SetDefault("worker.shutdown_timeout", DefaultShutdownTimeout)

	v.SetDefault("metrics.namespace", DefaultMetricsNamespace)
	v.SetDefault("metrics.subsystem", "")
	v.SetDefault("metrics.enable_process_metrics", true)
	v.SetDefault("metrics.enable_go_metrics", true)

	v.SetDefault("search.backend", DefaultSearchBackend)
	v.SetDefault("search.assignee_limit", DefaultAssigneeLimit)
	v.SetDefault("search.assignee_cache_ttl", DefaultAssigneeCacheTTL)

	v.SetDefault("export.async", false)

	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)
	v.SetDefault("log.output_paths", []string{"stdout"})
	v.SetDefault("log.error_output_paths", []string{"stderr"})
}

// Load assembles a Config from, in increasing precedence: defaults, a config
// file, KIPX_* environment variables, and explicit overrides.  On success the
// result also becomes the package-level config returned by Get.
func Load(opts ...Option) (*Config, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}

	v := newViper()

	switch {
	case o.configPath != "":
		v.SetConfigFile(o.configPath)
		if err := v.ReadInConfig(); err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %q", ErrConfigFileNotFound, o.configPath)
			}
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				return nil, fmt.Errorf("%w: %q", ErrConfigFileNotFound, o.configPath)
			}
			return nil, fmt.Errorf("%w: %v", ErrConfigParseError, err)
		}
	case len(o.searchPaths) > 0:
		v.SetConfigName("config")
		for _, p := range o.searchPaths {
			v.AddConfigPath(p)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("%w: %v", ErrConfigParseError, err)
			}
			// No file on the search path; environment and defaults apply.
		}
	}

	for k, val := range o.overrides {
		v.Set(k, val)
	}

	return unmarshalAndFinalize(v)
}

// LoadFromFile reads configuration from an explicit file path.
func LoadFromFile(path string) (*Config, error) {
	return Load(WithConfigPath(path))
}

// LoadFromEnv builds a Config entirely from KIPX_* environment variables and
// defaults, with no config file required.  This is the preferred loading
// strategy for containerised deployments.
func LoadFromEnv() (*Config, error) {
	return Load()
}

// unmarshalAndFinalize unmarshals viper state into a Config, applies struct
// defaults, validates, and publishes the result.
func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigParseError, err)
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigValidation, err)
	}

	Set(cfg)
	return cfg, nil
}

// MustLoad is Load for main(), where a config failure is always fatal.
func MustLoad(opts ...Option) *Config {
	cfg, err := Load(opts...)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}

// Watch monitors configPath and invokes onChange with the freshly parsed
// Config whenever the file changes on disk.  A change that fails to parse or
// validate is skipped, keeping the last good config in place.  Watch is
// non-blocking; the watcher goroutine is managed by viper.
func Watch(configPath string, onChange func(*Config)) error {
	v := newViper()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigParseError, err)
	}

	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Package-level config
// ─────────────────────────────────────────────────────────────────────────────

var (
	currentMu sync.RWMutex
	current   *Config
)

// Set publishes cfg as the package-level config.
func Set(cfg *Config) {
	currentMu.Lock()
	defer currentMu.Unlock()
	current = cfg
}

// Get returns the most recently loaded config, or nil before any Load.
func Get() *Config {
	currentMu.RLock()
	defer currentMu.RUnlock()
	return current
}
