package storage

import (
	"context"
	"fmt"

	"github.com/debsources/debsources/internal/config"
	"github.com/debsources/debsources/internal/storage/local"
	s3backend "github.com/debsources/debsources/internal/storage/s3"
)

// New creates the raw content backend selected by cfg.RawBackend.
func New(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch cfg.RawBackend {
	case "s3":
		return s3backend.NewBackend(ctx, s3backend.BackendConfig{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
		})
	case "local", "":
		return local.New(local.Config{RootPath: cfg.SourcesDir})
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.RawBackend)
	}
}
