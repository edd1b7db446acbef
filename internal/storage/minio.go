package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"

	"github.com/listings/media-pipeline/internal/config"
)

// MinioStore implements BlobStore on a MinIO server.
type MinioStore struct {
	URLResolver
	client     *minio.Client
	bucketName string
	log        logrus.FieldLogger
}

// NewMinioStore connects to MinIO and creates the bucket if it is missing.
func NewMinioStore(ctx context.Context, cfg config.MinioConfig, publicBaseURL string, log logrus.FieldLogger) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		log.WithField("bucket", cfg.BucketName).Info("created bucket")
	}

	log.WithFields(logrus.Fields{"endpoint": cfg.Endpoint, "bucket": cfg.BucketName}).Info("MinIO blob store initialized")
	return &MinioStore{
		URLResolver: NewURLResolver(publicBaseURL),
		client:      client,
		bucketName:  cfg.BucketName,
		log:         log,
	}, nil
}

func (m *MinioStore) Put(ctx context.Context, key string, data []byte, contentType string) (Object, error) {
	info, err := m.client.PutObject(ctx, m.bucketName, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return Object{}, &StoreError{Op: "put", Key: key, Err: err}
	}
	return Object{Key: key, ContentType: contentType, Size: info.Size, URL: m.PublicURL(key)}, nil
}

func (m *MinioStore) DeleteObject(ctx context.Context, key string) error {
	if err := m.client.RemoveObject(ctx, m.bucketName, key, minio.RemoveObjectOptions{}); err != nil {
		return &StoreError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

func (m *MinioStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range m.client.ListObjects(ctx, m.bucketName, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, &StoreError{Op: "list", Key: prefix, Err: obj.Err}
		}
		if obj.Key != "" {
			keys = append(keys, obj.Key)
		}
	}
	return keys, nil
}

// DeleteByPrefix lists first so the count reflects what was actually removed.
func (m *MinioStore) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	if prefix == "" {
		return 0, &StoreError{Op: "delete-prefix", Key: prefix, Err: fmt.Errorf("empty prefix")}
	}
	keys, err := m.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	objectsCh := make(chan minio.ObjectInfo)
	go func() {
		defer close(objectsCh)
		for _, k := range keys {
			select {
			case objectsCh <- minio.ObjectInfo{Key: k}:
			case <-ctx.Done():
				return
			}
		}
	}()

	failed := 0
	var firstErr error
	for removeErr := range m.client.RemoveObjects(ctx, m.bucketName, objectsCh, minio.RemoveObjectsOptions{}) {
		if removeErr.Err != nil {
			failed++
			if firstErr == nil {
				firstErr = removeErr.Err
			}
			m.log.WithError(removeErr.Err).WithField("key", removeErr.ObjectName).Warn("failed to delete object")
		}
	}

	deleted := len(keys) - failed
	if firstErr != nil {
		return deleted, &StoreError{Op: "delete-prefix", Key: prefix, Err: fmt.Errorf("%d objects not deleted: %w", failed, firstErr)}
	}
	if err := ctx.Err(); err != nil {
		return deleted, &StoreError{Op: "delete-prefix", Key: prefix, Err: err}
	}
	m.log.WithFields(logrus.Fields{"prefix": prefix, "count": deleted}).Info("deleted objects by prefix")
	return deleted, nil
}
