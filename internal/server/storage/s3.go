package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/dmitrijs2005/drivestore/internal/netx"
)

// S3Options carries the connection settings for an S3-compatible backend
// (AWS S3, MinIO, and others speaking the same protocol).
type S3Options struct {
	AccessKey    string
	SecretKey    string
	Region       string
	Bucket       string
	BaseEndpoint string
	// BaseURL overrides the derived public URL base when set.
	BaseURL string
	// UsePathStyle must be enabled for MinIO-style deployments.
	UsePathStyle bool
}

// S3Backend stores blobs in an S3-compatible bucket.
type S3Backend struct {
	client  *s3.Client
	bucket  string
	baseURL string
}

// NewS3Backend builds the S3 client with static credentials and an optional
// endpoint override.
func NewS3Backend(ctx context.Context, opts S3Options) (*S3Backend, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(opts.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKey, opts.SecretKey, "")))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(opts.BaseEndpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = strings.TrimSuffix(opts.BaseEndpoint, "/") + "/" + opts.Bucket
	}

	return &S3Backend{
		client:  client,
		bucket:  opts.Bucket,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// Put uploads the content under key with an immutable cache policy.
func (b *S3Backend) Put(ctx context.Context, key string, content io.Reader, size int64, contentType, dispositionName string) error {
	input := &s3.PutObjectInput{
		Bucket:       aws.String(b.bucket),
		Key:          aws.String(key),
		Body:         content,
		ContentType:  aws.String(contentType),
		CacheControl: aws.String(cacheControlImmutable),
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}
	if dispositionName != "" {
		input.ContentDisposition = aws.String(netx.ContentDisposition("inline", dispositionName))
	}

	if _, err := b.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("s3 put %s: %w", key, err)
	}
	return nil
}

// Open streams the object stored under key.
func (b *S3Backend) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("s3 get %s: %w", key, err)
	}
	return out.Body, nil
}

// Delete removes the object under key. Missing keys are not an error.
func (b *S3Backend) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", key, err)
	}
	return nil
}

// PublicURL derives the object's public URL from the configured base.
func (b *S3Backend) PublicURL(key string) string {
	return b.baseURL + "/" + key
}

// Kind identifies this backend.
func (b *S3Backend) Kind() string { return KindS3 }
