// Package minio stores finished export artifacts in S3-compatible object
// storage and mints presigned download links for them.
package minio

import (
	"context"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/turtacn/KeyIP-Explorer/internal/config"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Explorer/pkg/errors"
)

const connectTimeout = 10 * time.Second

// NewClient connects to the object store in cfg and verifies it answers
// before handing the client out.
func NewClient(ctx context.Context, cfg config.MinIOConfig, logger logging.Logger) (*minio.Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New(errors.CodeInvalidParam, "minio endpoint is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStorageError, "minio client setup failed")
	}

	checkCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if _, err := client.ListBuckets(checkCtx); err != nil {
		return nil, errors.Wrap(err, errors.CodeStorageError, "object store unreachable")
	}

	logger.Info("connected to object store",
		logging.String("endpoint", cfg.Endpoint),
		logging.Bool("ssl", cfg.UseSSL))
	return client, nil
}
