package export

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"sentinel-go/internal/config"
	"sentinel-go/internal/sentinel"
)

// S3Exporter uploads exported files to an S3 bucket under a key prefix.
// Uploads stream through the SDK's multipart uploader, so the plaintext
// size does not need to be known up front.
type S3Exporter struct {
	name     string
	bucket   string
	prefix   string
	uploader *manager.Uploader
}

var _ sentinel.Exporter = (*S3Exporter)(nil)

// NewS3Exporter creates an exporter targeting the configured bucket.
// Credentials come from the config when set, otherwise from the default
// AWS credential chain (environment, shared config, instance role).
func NewS3Exporter(ctx context.Context, cfg config.ExportConfig) (*S3Exporter, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 export requires s3_bucket to be set")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKeyID != "" && cfg.S3SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	return &S3Exporter{
		name:     cfg.Name,
		bucket:   cfg.S3Bucket,
		prefix:   cfg.S3Prefix,
		uploader: manager.NewUploader(client),
	}, nil
}

// Export uploads r to the bucket and returns the "s3://bucket/key" location.
func (e *S3Exporter) Export(ctx context.Context, name string, r io.Reader, size int64) (string, error) {
	key := path.Join(e.prefix, path.Base(name))

	_, err := e.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(key),
		Body:   r,
	})
	if err != nil {
		return "", fmt.Errorf("uploading to s3: %w", err)
	}

	return "s3://" + e.bucket + "/" + key, nil
}
