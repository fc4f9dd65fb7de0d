// Package opensearch implements the patent record store on OpenSearch.  A
// Query is rendered to bool-query DSL with the same match and ordering
// contract as the PostgreSQL backend, so the two stores are interchangeable
// behind patent.Store.
package opensearch

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/opensearch-project/opensearch-go/v3"
	"github.com/opensearch-project/opensearch-go/v3/opensearchapi"

	"github.com/turtacn/KeyIP-Explorer/internal/config"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Explorer/pkg/errors"
)

const defaultRequestTimeout = 10 * time.Second

// NewClient builds an OpenSearch API client from cfg and verifies the
// cluster answers before returning it.
func NewClient(ctx context.Context, cfg config.OpenSearchConfig, logger logging.Logger) (*opensearchapi.Client, error) {
	if len(cfg.Addresses) == 0 {
		return nil, errors.New(errors.CodeInvalidParam, "opensearch: no addresses configured")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	transport := &http.Transport{MaxIdleConnsPerHost: 10}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	client, err := opensearchapi.NewClient(opensearchapi.Config{
		Client: opensearch.Config{
			Addresses:     cfg.Addresses,
			Username:      cfg.User,
			Password:      cfg.Password,
			Transport:     transport,
			MaxRetries:    3,
			RetryOnStatus: []int{429, 502, 503, 504},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStoreUnavailable, "opensearch client init failed")
	}

	infoCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	info, err := client.Info(infoCtx, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStoreUnavailable, "opensearch cluster unreachable")
	}

	logger.Info("connected to opensearch",
		logging.String("cluster", info.ClusterName),
		logging.String("version", info.Version.Number))
	return client, nil
}

// Ping reports whether the cluster still answers; readiness checks use it.
func Ping(ctx context.Context, client *opensearchapi.Client) error {
	if _, err := client.Info(ctx, nil); err != nil {
		return errors.Wrap(err, errors.CodeStoreUnavailable, "opensearch cluster unreachable")
	}
	return nil
}
