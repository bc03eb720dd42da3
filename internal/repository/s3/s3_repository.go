package s3

import (
	"context"
	"fmt"
	"io"
	"strings"

	"armory/internal/config"
	"armory/internal/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ObjectAPI is the subset of the S3 client used by BlobStore.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// BlobStore mirrors captured frames into an S3-compatible bucket.
type BlobStore struct {
	client ObjectAPI
	bucket string
	region string
	logger *logger.Logger
}

// NewBlobStore builds an S3 client from the configuration and makes sure the bucket exists.
func NewBlobStore(ctx context.Context, cfg *config.S3Config, logger *logger.Logger) (*BlobStore, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(endpointURL(cfg.Endpoint, cfg.UseSSL))
		}
	})

	store := NewBlobStoreWithClient(client, cfg.BucketName, cfg.Region, logger)

	if err := store.ensureBucketExists(ctx); err != nil {
		logger.Warning("Failed to ensure bucket %s exists: %v", cfg.BucketName, err)
	}

	return store, nil
}

// NewBlobStoreWithClient wraps an existing client.
func NewBlobStoreWithClient(client ObjectAPI, bucket, region string, logger *logger.Logger) *BlobStore {
	return &BlobStore{client: client, bucket: bucket, region: region, logger: logger}
}

func (b *BlobStore) ensureBucketExists(ctx context.Context) error {
	if _, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.bucket)}); err == nil {
		b.logger.Info("Bucket %s already exists", b.bucket)
		return nil
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(b.bucket)}
	// us-east-1 rejects an explicit location constraint.
	if b.region != "" && b.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(b.region),
		}
	}

	if _, err := b.client.CreateBucket(ctx, input); err != nil {
		return err
	}

	b.logger.Info("Bucket %s created", b.bucket)
	return nil
}

// UploadFile stores body under key.
func (b *BlobStore) UploadFile(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}

	b.logger.Info("Capture %s mirrored to bucket %s (%d bytes)", key, b.bucket, size)
	return nil
}

func endpointURL(endpoint string, useSSL bool) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}
