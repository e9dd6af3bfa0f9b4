// Package s3 stores file content in an S3-compatible bucket.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"drivestore/internal/domain"
	models "drivestore/internal/domain/models/namespace"
	nsRepo "drivestore/internal/domain/repositories/namespace"
	"drivestore/internal/metrics"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const backendName = "s3"

// Config holds the bucket connection settings
type Config struct {
	Endpoint   string // empty = AWS
	Bucket     string
	AccessKey  string
	SecretKey  string
	Region     string
	PresignTTL time.Duration
}

// Store implements ContentStore using S3/MinIO
type Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	ttl     time.Duration
	logger  *slog.Logger
}

// New creates an S3 content store
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
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

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	store := &Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		ttl:     cfg.PresignTTL,
		logger:  logger,
	}

	if err := store.ensureBucket(ctx); err != nil {
		logger.Error("bucket check failed", "bucket", cfg.Bucket, "error", err)
	}

	return store, nil
}

var _ nsRepo.ContentStore = (*Store)(nil)

func (s *Store) ensureBucket(ctx context.Context) error {
	start := time.Now()
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err == nil {
		return nil
	}

	_, createErr := s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	})
	metrics.RecordContentOperation(backendName, "create_bucket", time.Since(start), createErr == nil)
	if createErr != nil {
		return fmt.Errorf("bucket %s does not exist and cannot create: %w", s.bucket, createErr)
	}

	s.logger.Info("created S3 bucket", "bucket", s.bucket)
	return nil
}

// Type returns the backend name
func (s *Store) Type() string {
	return backendName
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}

func unavailable(op, key string, err error) error {
	return fmt.Errorf("%w: %s %s: %v", domain.ErrStorageUnavailable, op, key, err)
}

// Put uploads content
func (s *Store) Put(ctx context.Context, key string, data []byte, mimeType string) error {
	start := time.Now()

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if mimeType != "" {
		input.ContentType = aws.String(mimeType)
	}

	_, err := s.client.PutObject(ctx, input)
	metrics.RecordContentOperation(backendName, "put_object", time.Since(start), err == nil)
	if err != nil {
		return unavailable("put", key, err)
	}

	metrics.RecordContentUpload(int64(len(data)))
	s.logger.Debug("S3 put object", "key", key, "size", len(data))
	return nil
}

// Get presigns a GET for an existing object
func (s *Store) Get(ctx context.Context, key string) (*models.ContentReference, error) {
	start := time.Now()

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		metrics.RecordContentOperation(backendName, "head_object", time.Since(start), false)
		if isNotFound(err) {
			return nil, fmt.Errorf("content %s: %w", key, domain.ErrNotFound)
		}
		return nil, unavailable("head", key, err)
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.ttl))
	metrics.RecordContentOperation(backendName, "presign_get", time.Since(start), err == nil)
	if err != nil {
		return nil, unavailable("presign", key, err)
	}

	return &models.ContentReference{
		URL:       req.URL,
		ExpiresAt: time.Now().Add(s.ttl).UTC(),
	}, nil
}

// Delete removes an object. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	start := time.Now()

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	metrics.RecordContentOperation(backendName, "delete_object", time.Since(start), err == nil)
	if err != nil && !isNotFound(err) {
		return unavailable("delete", key, err)
	}

	s.logger.Debug("S3 delete object", "key", key)
	return nil
}
