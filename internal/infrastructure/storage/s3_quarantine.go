// Package storage keeps unmappable marketplace payloads for later inspection.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/erp/marketsync/internal/domain/integration"
	infraconfig "github.com/erp/marketsync/internal/infrastructure/config"
	"go.uber.org/zap"
)

// maxReasonMetadata bounds the reason stored in object metadata (S3 caps user metadata at 2KB)
const maxReasonMetadata = 1024

// Ensure S3Quarantine implements integration.PayloadQuarantine
var _ integration.PayloadQuarantine = (*S3Quarantine)(nil)

// s3API is the subset of the S3 client used by S3Quarantine
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// S3Quarantine writes each quarantined payload as one JSON object.
// It works with any S3-compatible store (AWS S3, MinIO, RustFS).
type S3Quarantine struct {
	client s3API
	bucket string
	prefix string
	logger *zap.Logger
	now    func() time.Time
}

// S3QuarantineOption is a functional option for configuring S3Quarantine
type S3QuarantineOption func(*S3Quarantine)

// WithLogger sets a custom logger
func WithLogger(logger *zap.Logger) S3QuarantineOption {
	return func(s *S3Quarantine) {
		s.logger = logger
	}
}

// withClient replaces the S3 client (tests)
func withClient(client s3API) S3QuarantineOption {
	return func(s *S3Quarantine) {
		s.client = client
	}
}

// NewS3Quarantine creates an S3Quarantine from configuration
func NewS3Quarantine(cfg *infraconfig.QuarantineConfig, opts ...S3QuarantineOption) (*S3Quarantine, error) {
	if cfg == nil {
		return nil, errors.New("quarantine configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("quarantine bucket is required")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" || cfg.SecretAccessKey != "" {
		if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
			return nil, errors.New("quarantine access key and secret key must be set together")
		}
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	var endpoint string
	if cfg.Endpoint != "" {
		endpoint = cfg.Endpoint
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			endpoint = "https://" + endpoint
		}
		if _, err := url.Parse(endpoint); err != nil {
			return nil, fmt.Errorf("invalid quarantine endpoint: %w", err)
		}
	}

	q := &S3Quarantine{
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}

	if q.client == nil {
		awsCfg, err := config.LoadDefaultConfig(context.Background(), loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create AWS config: %w", err)
		}
		q.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.UsePathStyle = cfg.UsePathStyle
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		})
	}
	return q, nil
}

// EnsureBucket creates the bucket if it does not exist
func (q *S3Quarantine) EnsureBucket(ctx context.Context) error {
	_, err := q.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(q.bucket)})
	if err == nil {
		return nil
	}
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	q.logger.Info("Creating quarantine bucket", zap.String("bucket", q.bucket))
	_, err = q.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(q.bucket)})
	if err != nil {
		var alreadyOwned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &alreadyOwned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Quarantine stores payload under prefix/tenant/marketplace/resource/id-timestamp.json
func (q *S3Quarantine) Quarantine(ctx context.Context, key integration.Key, resource integration.ResourceKind, externalID string, payload []byte, reason string) error {
	if externalID == "" {
		return errors.New("external id is required")
	}
	objectKey := q.ObjectKey(key, resource, externalID, q.now())

	_, err := q.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(q.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"reason":      truncate(reason, maxReasonMetadata),
			"external-id": externalID,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to quarantine payload: %w", err)
	}

	q.logger.Info("Payload quarantined",
		zap.String("bucket", q.bucket),
		zap.String("object_key", objectKey),
		zap.String("reason", reason),
	)
	return nil
}

// ObjectKey returns the object key of a quarantined payload
func (q *S3Quarantine) ObjectKey(key integration.Key, resource integration.ResourceKind, externalID string, at time.Time) string {
	name := fmt.Sprintf("%s-%d.json", url.PathEscape(externalID), at.UTC().UnixMilli())
	return path.Join(q.prefix, key.TenantID.String(), strings.ToLower(key.Marketplace.String()), resource.String(), name)
}

// Bucket returns the bucket name
func (q *S3Quarantine) Bucket() string {
	return q.bucket
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	s = s[:max]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
