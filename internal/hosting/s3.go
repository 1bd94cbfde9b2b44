package hosting

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// S3Host hosts payloads as objects in an S3 bucket. The public URL handed
// to the Threads API is a presigned GET URL, so the bucket can stay private.
type S3Host struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
	prefix    string
	urlExpiry time.Duration
	timeout   time.Duration
}

// S3Config configures an S3Host.
type S3Config struct {
	Bucket    string
	Prefix    string        // object key prefix, default "threadspipe-uploads"
	URLExpiry time.Duration // presigned URL lifetime, default 1h
	Timeout   time.Duration // per-upload bound, default 60s
}

// NewS3Host creates an S3-backed temporary host using the default AWS
// credential chain.
func NewS3Host(ctx context.Context, cfg S3Config) (*S3Host, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 hosting requires a bucket name")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	return newS3Host(client, cfg), nil
}

func newS3Host(client *s3.Client, cfg S3Config) *S3Host {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "threadspipe-uploads"
	}
	urlExpiry := cfg.URLExpiry
	if urlExpiry <= 0 {
		urlExpiry = time.Hour
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultUploadTimeout
	}
	return &S3Host{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.Bucket,
		prefix:    prefix,
		urlExpiry: urlExpiry,
		timeout:   timeout,
	}
}

// Upload stores data under a uniquely named key and returns a presigned GET
// URL valid long enough for Threads to fetch the media.
func (h *S3Host) Upload(ctx context.Context, data []byte, filenameHint, contentType string) (*UploadedFile, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	key := h.prefix + "/" + uuid.NewString()
	if ext := path.Ext(filenameHint); ext != "" {
		key += ext
	}

	log.Debug().
		Str("bucket", h.bucket).
		Str("key", key).
		Str("contentType", contentType).
		Int("sizeBytes", len(data)).
		Msg("Uploading payload to S3")

	_, err := h.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &h.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 upload %s: %w", key, err)
	}

	result, err := h.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &h.bucket, Key: &key,
	}, func(opts *s3.PresignOptions) {
		opts.Expires = h.urlExpiry
	})
	if err != nil {
		return nil, fmt.Errorf("presign GetObject %s: %w", key, err)
	}

	log.Info().Str("key", key).Msg("Payload uploaded to S3")
	return &UploadedFile{URL: result.URL, Key: key}, nil
}

// Delete removes a previously uploaded object.
func (h *S3Host) Delete(ctx context.Context, f *UploadedFile) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	_, err := h.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &h.bucket,
		Key:    &f.Key,
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", f.Key, err)
	}
	log.Debug().Str("key", f.Key).Msg("Hosted payload deleted from S3")
	return nil
}
