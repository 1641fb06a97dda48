package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/clipqueue/client/internal/config"
)

// Uploader is the subset of the S3 upload manager used by S3Sink.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Sink mirrors downloaded videos into an S3-compatible bucket.
type S3Sink struct {
	uploader Uploader
	bucket   string
	prefix   string
	baseURL  string
}

// NewS3Sink configures an uploader targeting the provided object store.
func NewS3Sink(ctx context.Context, cfg config.ObjectStoreConfig, prefix string) (*S3Sink, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("s3 sink: bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 5 * 1024 * 1024
		u.LeavePartsOnError = false
	})

	return NewS3SinkWithUploader(uploader, cfg.Bucket, prefix, cfg.PublicBaseURL), nil
}

// NewS3SinkWithUploader builds a sink around an existing uploader.
func NewS3SinkWithUploader(uploader Uploader, bucket, prefix, publicBaseURL string) *S3Sink {
	return &S3Sink{
		uploader: uploader,
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
		baseURL:  strings.TrimSuffix(publicBaseURL, "/"),
	}
}

// Save uploads the video under prefix/name and returns its location: a public
// URL when one is configured, otherwise an s3:// URI.
func (s *S3Sink) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	key := strings.TrimLeft(path.Join(s.prefix, name), "/")
	if key == "" || strings.HasSuffix(key, "/") {
		return "", fmt.Errorf("s3 sink: empty key")
	}

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String("video/mp4"),
	})
	if err != nil {
		return "", fmt.Errorf("s3 sink upload %s: %w", key, err)
	}

	if s.baseURL == "" {
		return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
	}
	return fmt.Sprintf("%s/%s", s.baseURL, key), nil
}
