package storage

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/listings/media-pipeline/internal/config"
)

// Open builds the blob store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig, log logrus.FieldLogger) (BlobStore, error) {
	switch cfg.Driver {
	case "s3":
		return NewS3Store(ctx, cfg.S3, cfg.PublicBaseURL, log)
	case "minio":
		return NewMinioStore(ctx, cfg.Minio, cfg.PublicBaseURL, log)
	case "memory":
		log.Warn("using in-memory blob store, objects are lost on restart")
		return NewMemoryStore(cfg.PublicBaseURL), nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}
