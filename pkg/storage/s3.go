package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// S3Storage implements ArtifactStorage backed by an S3-compatible object store
type S3Storage struct {
	client *s3.Client
	bucket string
	tracer trace.Tracer
}

// NewS3Storage creates a new S3-backed storage from cfg
func NewS3Storage(ctx context.Context, cfg Config) (*S3Storage, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	if cfg.S3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3UsePathStyle
	})

	return &S3Storage{
		client: client,
		bucket: cfg.S3Bucket,
		tracer: otel.Tracer("plugmart.storage.s3"),
	}, nil
}

// PutArchive implements ArtifactStorage.PutArchive
func (s *S3Storage) PutArchive(ctx context.Context, pluginID, version string, data io.Reader) (string, string, int64, error) {
	key := archiveKey(pluginID, version)

	ctx, span := s.tracer.Start(ctx, "s3.PutArchive", trace.WithAttributes(
		attribute.String("s3.bucket", s.bucket),
		attribute.String("s3.key", key),
	))
	defer span.End()

	content, err := io.ReadAll(data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		return "", "", 0, fmt.Errorf("failed to read archive: %w", err)
	}

	checksum := checksumHex(content)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String("application/java-archive"),
		Metadata: map[string]string{
			"sha256": checksum,
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "put failed")
		return "", "", 0, fmt.Errorf("failed to upload archive: %w", err)
	}

	span.SetAttributes(attribute.Int("s3.size", len(content)))
	return key, checksum, int64(len(content)), nil
}

// GetArchive implements ArtifactStorage.GetArchive
func (s *S3Storage) GetArchive(ctx context.Context, key string) (io.ReadCloser, error) {
	ctx, span := s.tracer.Start(ctx, "s3.GetArchive", trace.WithAttributes(
		attribute.String("s3.bucket", s.bucket),
		attribute.String("s3.key", key),
	))
	defer span.End()

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get failed")
		return nil, fmt.Errorf("failed to download archive: %w", err)
	}
	return result.Body, nil
}

// DeleteArchive implements ArtifactStorage.DeleteArchive
func (s *S3Storage) DeleteArchive(ctx context.Context, key string) error {
	ctx, span := s.tracer.Start(ctx, "s3.DeleteArchive", trace.WithAttributes(
		attribute.String("s3.bucket", s.bucket),
		attribute.String("s3.key", key),
	))
	defer span.End()

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return fmt.Errorf("failed to delete archive: %w", err)
	}
	return nil
}

// HealthCheck implements ArtifactStorage.HealthCheck
func (s *S3Storage) HealthCheck(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3 bucket unavailable: %w", err)
	}
	return nil
}
