package report

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// S3Options configures the object storage client. A custom endpoint (R2,
// MinIO) switches to path-style addressing. Empty keys fall back to the
// default AWS credential chain.
type S3Options struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// uploader is the part of manager.Uploader the sink uses.
type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Sink uploads the encoded report to a bucket.
type S3Sink struct {
	uploader uploader
	bucket   string
	key      string
	format   Format
	log      zerolog.Logger
}

// NewS3Sink creates an S3 client from opts and returns a sink for bucket/key.
func NewS3Sink(ctx context.Context, opts S3Options, bucket, key string, log zerolog.Logger) (*S3Sink, error) {
	up, err := NewS3Uploader(ctx, opts)
	if err != nil {
		return nil, err
	}
	return newS3Sink(up, bucket, key, log), nil
}

// NewS3Uploader creates a multipart uploader for opts.
func NewS3Uploader(ctx context.Context, opts S3Options) (*manager.Uploader, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return manager.NewUploader(client), nil
}

func newS3Sink(up uploader, bucket, key string, log zerolog.Logger) *S3Sink {
	return &S3Sink{
		uploader: up,
		bucket:   bucket,
		key:      key,
		format:   FormatFor(key),
		log:      log.With().Str("component", "s3_sink").Logger(),
	}
}

// Write implements Sink.
func (s *S3Sink) Write(ctx context.Context, r *optimization.Report) error {
	data, err := Encode(s.format, r)
	if err != nil {
		return err
	}

	out, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(s.format.ContentType()),
		Metadata:    map[string]string{"run-id": r.RunID},
	})
	if err != nil {
		return fmt.Errorf("failed to upload report to s3://%s/%s: %w", s.bucket, s.key, err)
	}

	s.log.Info().
		Str("bucket", s.bucket).
		Str("key", s.key).
		Str("location", out.Location).
		Int("bytes", len(data)).
		Msg("Report uploaded")

	return nil
}

// ParseS3URL splits s3://bucket/key.
func ParseS3URL(raw string) (bucket, key string, err error) {
	return parseS3URL(raw, false)
}

// ParseS3Prefix splits s3://bucket[/prefix].
func ParseS3Prefix(raw string) (bucket, prefix string, err error) {
	return parseS3URL(raw, true)
}

func parseS3URL(raw string, allowEmptyKey bool) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid s3 url %q: %w", raw, err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("invalid s3 url %q: scheme must be s3", raw)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || (key == "" && !allowEmptyKey) {
		return "", "", fmt.Errorf("invalid s3 url %q: expected s3://bucket/key", raw)
	}
	return u.Host, key, nil
}
