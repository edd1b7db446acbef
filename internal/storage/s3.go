package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfg "github.com/aws/aws-sdk-go-v2/config" // Alias config to avoid clash
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"

	"github.com/listings/media-pipeline/internal/config"
)

// DeleteObjects accepts at most this many keys per request.
const s3DeleteBatchSize = 1000

// s3API is the subset of *s3.Client used here. It also satisfies
// s3.ListObjectsV2APIClient so the paginator can drive it.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Store implements BlobStore using an S3-compatible backend.
type S3Store struct {
	URLResolver
	client     s3API
	bucketName string
	log        logrus.FieldLogger
}

// NewS3Store creates a new S3 storage service instance.
func NewS3Store(ctx context.Context, cfg config.S3Config, publicBaseURL string, log logrus.FieldLogger) (*S3Store, error) {
	awsSDKConfig, err := awsCfg.LoadDefaultConfig(ctx,
		awsCfg.WithRegion(cfg.Region),
		awsCfg.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsSDKConfig, func(o *s3.Options) {
		// Custom endpoints (MinIO, Spaces) need path-style addressing.
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	log.WithFields(logrus.Fields{"endpoint": cfg.Endpoint, "bucket": cfg.BucketName}).Info("S3 blob store initialized")
	return newS3Store(client, cfg.BucketName, publicBaseURL, log), nil
}

func newS3Store(client s3API, bucket, publicBaseURL string, log logrus.FieldLogger) *S3Store {
	return &S3Store{
		URLResolver: NewURLResolver(publicBaseURL),
		client:      client,
		bucketName:  bucket,
		log:         log,
	}
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) (Object, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucketName),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return Object{}, &StoreError{Op: "put", Key: key, Err: err}
	}
	return Object{Key: key, ContentType: contentType, Size: int64(len(data)), URL: s.PublicURL(key)}, nil
}

// DeleteObject removes an object from the S3 bucket.
func (s *S3Store) DeleteObject(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return &StoreError{Op: "delete", Key: key, Err: err}
	}
	s.log.WithField("key", key).Debug("deleted object")
	return nil
}

func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucketName),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, &StoreError{Op: "list", Key: prefix, Err: err}
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// DeleteByPrefix lists the prefix and removes the keys in DeleteObjects batches.
// Per-key failures reported by S3 fail the call after the remaining batches ran.
func (s *S3Store) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	if prefix == "" {
		return 0, &StoreError{Op: "delete-prefix", Key: prefix, Err: fmt.Errorf("empty prefix")}
	}
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return 0, err
	}

	deleted := 0
	var failed []string
	for start := 0; start < len(keys); start += s3DeleteBatchSize {
		end := min(start+s3DeleteBatchSize, len(keys))
		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(k)})
		}

		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucketName),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return deleted, &StoreError{Op: "delete-prefix", Key: prefix, Err: err}
		}
		deleted += len(ids) - len(out.Errors)
		for _, e := range out.Errors {
			failed = append(failed, aws.ToString(e.Key))
		}
	}

	if len(failed) > 0 {
		return deleted, &StoreError{
			Op:  "delete-prefix",
			Key: prefix,
			Err: fmt.Errorf("%d objects not deleted: %s", len(failed), strings.Join(failed, ", ")),
		}
	}
	s.log.WithFields(logrus.Fields{"prefix": prefix, "count": deleted}).Info("deleted objects by prefix")
	return deleted, nil
}
