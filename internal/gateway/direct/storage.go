package direct

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"lumigram/internal/config"
)

// Storage implements gateway.BlobStore on S3-compatible object storage
// (Cloudflare R2).
type Storage struct {
	s3Client  *s3.Client
	publicURL string
}

// NewStorage constructs an S3-compatible client for Cloudflare R2.
func NewStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	if cfg.R2AccountID == "" || cfg.R2AccessKeyID == "" || cfg.R2SecretAccessKey == "" || cfg.R2PublicURL == "" {
		return nil, fmt.Errorf("missing Cloudflare R2 configuration")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.R2AccessKeyID, cfg.R2SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for R2: %w", err)
	}

	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.R2AccountID)
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return &Storage{
		s3Client:  s3Client,
		publicURL: strings.TrimSuffix(cfg.R2PublicURL, "/"),
	}, nil
}

// Upload writes a blob to bucket at path.
func (s *Storage) Upload(ctx context.Context, bucket, path string, r io.Reader, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(path),
		Body:   r,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.s3Client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to r2: %w", err)
	}
	return nil
}

// PublicURL returns the public endpoint URL for an object. The R2 public
// endpoint is bound to a single bucket, so the bucket argument only
// participates when it differs from the bound one.
func (s *Storage) PublicURL(bucket, path string) string {
	return fmt.Sprintf("%s/%s", s.publicURL, path)
}

// Delete removes an object by path. Not part of the gateway surface; kept for
// cleanup tooling.
func (s *Storage) Delete(ctx context.Context, bucket, path string) error {
	if path == "" {
		return nil
	}
	_, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from r2: %w", err)
	}
	return nil
}
