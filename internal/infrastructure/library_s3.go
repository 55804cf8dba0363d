package infrastructure

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/yourusername/mediagrab/internal/domain"
)

const s3PartSize = 16 * 1024 * 1024

// objectUploader is the subset of manager.Uploader used by S3Library
type objectUploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Library publishes finished files to an S3 bucket
type S3Library struct {
	uploader objectUploader
	bucket   string
	prefix   string
}

// NewS3Library creates an S3 library sink using the shared AWS config and profile
func NewS3Library(ctx context.Context, cfg *domain.LibraryConfig) (*S3Library, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("library.s3_bucket is required for the s3 backend")
	}

	opts := []func(*config.LoadOptions) error{config.WithRetryMode(aws.RetryModeAdaptive)}
	if cfg.S3Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.S3Profile))
	}
	if cfg.S3Region != "" {
		opts = append(opts, config.WithRegion(cfg.S3Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.DisableLogOutputChecksumValidationSkipped = true
	})
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = s3PartSize
		u.Concurrency = 4
	})
	return newS3Library(uploader, cfg.S3Bucket, cfg.S3Prefix), nil
}

func newS3Library(uploader objectUploader, bucket, prefix string) *S3Library {
	return &S3Library{
		uploader: uploader,
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
	}
}

// Publish uploads src as <prefix>/<displayName> and returns its s3:// location
func (l *S3Library) Publish(ctx context.Context, src, displayName, mimeType string) (string, error) {
	file, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer file.Close()

	key := domain.SanitizeFileName(displayName)
	if l.prefix != "" {
		key = path.Join(l.prefix, key)
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(key),
		Body:   file,
	}
	if mimeType != "" {
		input.ContentType = aws.String(mimeType)
	}

	if _, err := l.uploader.Upload(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload %s to s3://%s: %w", key, l.bucket, err)
	}
	return fmt.Sprintf("s3://%s/%s", l.bucket, key), nil
}
