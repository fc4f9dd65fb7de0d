package minio

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/KeyIP-Explorer/internal/application/export"
	"github.com/turtacn/KeyIP-Explorer/internal/config"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyIP-Explorer/pkg/errors"
)

const (
	backendName = "minio"

	defaultBucket = "kipx-exports"
	defaultExpiry = time.Hour

	artifactContentType = "text/csv"
)

// API is the slice of the minio client the artifact store uses, narrow on
// purpose so tests can substitute it.
type API interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucket, object string, expiry time.Duration, reqParams url.Values) (*url.URL, error)
}

// ArtifactStore persists finished export CSVs and hands out presigned
// download URLs for them.
type ArtifactStore struct {
	client  API
	bucket  string
	expiry  time.Duration
	metrics *prometheus.AppMetrics
	logger  logging.Logger
}

var _ export.FileStore = (*ArtifactStore)(nil)

// NewArtifactStore builds a store writing to cfg.Bucket.
func NewArtifactStore(client API, cfg config.MinIOConfig, metrics *prometheus.AppMetrics, logger logging.Logger) *ArtifactStore {
	bucket := cfg.Bucket
	if bucket == "" {
		bucket = defaultBucket
	}
	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = defaultExpiry
	}
	return &ArtifactStore{
		client:  client,
		bucket:  bucket,
		expiry:  expiry,
		metrics: metrics,
		logger:  logger.Named("store.artifacts"),
	}
}

// EnsureBucket creates the export bucket when it does not exist yet.
func (s *ArtifactStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return errors.Wrap(err, errors.CodeStorageError, "bucket check failed")
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return errors.Wrap(err, errors.CodeStorageError, "bucket create failed")
	}
	s.logger.Info("bucket created", logging.String("bucket", s.bucket))
	return nil
}

// Save implements export.FileStore.  The artifact is uploaded under
// filename and the returned location is a presigned GET URL valid for the
// configured expiry.
func (s *ArtifactStore) Save(ctx context.Context, filename string, data []byte) (string, error) {
	start := time.Now()
	_, err := s.client.PutObject(ctx, s.bucket, filename, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: artifactContentType})
	s.metrics.RecordStoreQuery(backendName, "upload", time.Since(start), err)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeExportUploadFailed, "artifact upload failed")
	}

	location, err := s.PresignDownload(ctx, filename)
	if err != nil {
		return "", err
	}
	s.logger.Info("artifact stored",
		logging.String("object", filename),
		logging.Int("bytes", len(data)))
	return location, nil
}

// PresignDownload returns a fresh time-limited GET URL for an artifact
// that was stored earlier.
func (s *ArtifactStore) PresignDownload(ctx context.Context, filename string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, filename, s.expiry, nil)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeExportUploadFailed, "artifact presign failed")
	}
	return u.String(), nil
}

// Ping reports whether the object store answers and the export bucket
// exists.  Used by readiness checks.
func (s *ArtifactStore) Ping(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return errors.Wrap(err, errors.CodeStorageError, "object store unreachable")
	}
	if !exists {
		return errors.Newf(errors.CodeStorageError, "export bucket %q missing", s.bucket)
	}
	return nil
}
