// Package s3 provides a read-only S3-compatible content backend with metrics.
// The bucket mirrors the archive tree under "package/version/sub/path" keys.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/debsources/debsources/internal/archerr"
	"github.com/debsources/debsources/internal/logging"
	"github.com/debsources/debsources/internal/metrics"
)

// BackendConfig holds S3 connection settings.
type BackendConfig struct {
	Endpoint  string `json:"endpoint"`
	Bucket    string `json:"bucket"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Region    string `json:"region"`
	UseSSL    bool   `json:"use_ssl"`
}

// S3Backend implements storage.Backend using S3/MinIO.
type S3Backend struct {
	client *s3.Client
	bucket string
}

// NewBackend creates a new S3 backend from a BackendConfig.
func NewBackend(ctx context.Context, cfg BackendConfig) (*S3Backend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := endpointURL(cfg.Endpoint, cfg.UseSSL)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = true
	})

	backend := &S3Backend{
		client: client,
		bucket: cfg.Bucket,
	}

	// The archive is populated externally; a missing bucket is logged, not created.
	if err := backend.checkBucket(ctx); err != nil {
		logging.Error("bucket check failed", zap.Error(err))
	}

	return backend, nil
}

// endpointURL adds a scheme to a bare host:port endpoint.
func endpointURL(endpoint string, useSSL bool) string {
	if endpoint == "" || strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

// rangeHeader renders an HTTP Range value, or "" for the whole object.
func rangeHeader(offset, length int64) string {
	switch {
	case length > 0:
		return fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)
	case offset > 0:
		return fmt.Sprintf("bytes=%d-", offset)
	default:
		return ""
	}
}

func (b *S3Backend) checkBucket(ctx context.Context) error {
	start := time.Now()
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucket),
	})
	metrics.RecordS3Operation("head_bucket", time.Since(start), err == nil)
	if err != nil {
		return fmt.Errorf("bucket %s: %w", b.bucket, err)
	}
	return nil
}

// GetObject retrieves an object from S3 with range support.
func (b *S3Backend) GetObject(ctx context.Context, key string, offset, length int64) (io.ReadCloser, int64, error) {
	start := time.Now()

	input := &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	}
	if r := rangeHeader(offset, length); r != "" {
		input.Range = aws.String(r)
	}

	result, err := b.client.GetObject(ctx, input)
	if err != nil {
		metrics.RecordS3Operation("get_object", time.Since(start), false)
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, 0, fmt.Errorf("get object %s: %w", key, archerr.ErrNotFound)
		}
		return nil, 0, fmt.Errorf("get object %s: %w", key, err)
	}

	metrics.RecordS3Operation("get_object", time.Since(start), true)

	size := int64(0)
	if result.ContentLength != nil {
		size = *result.ContentLength
	}

	logging.Debug("S3 get object",
		zap.String("key", key),
		zap.Int64("offset", offset),
		zap.Int64("length", length),
		zap.Int64("size", size))

	return result.Body, size, nil
}

// ObjectExists checks if an object exists in S3.
func (b *S3Backend) ObjectExists(ctx context.Context, key string) (bool, error) {
	start := time.Now()

	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		metrics.RecordS3Operation("head_object", time.Since(start), false)
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("head object %s: %w", key, err)
	}

	metrics.RecordS3Operation("head_object", time.Since(start), true)
	return true, nil
}

// Type returns "s3".
func (b *S3Backend) Type() string { return "s3" }

// Close is a no-op for S3 backends.
func (b *S3Backend) Close() error { return nil }
