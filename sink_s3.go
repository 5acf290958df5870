package gdpull

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Client is the interface for Amazon S3 operations used by S3Sink.
// This is satisfied by *s3.Client.
type S3Client interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Sink writes files as objects under a bucket prefix.
type S3Sink struct {
	client S3Client
	bucket string
	prefix string
}

// NewS3Sink creates a new S3Sink with the given AWS config.
func NewS3Sink(awsCfg aws.Config, bucket, prefix string) *S3Sink {
	return NewS3SinkWithClient(s3.NewFromConfig(awsCfg), bucket, prefix)
}

// NewS3SinkWithClient creates a new S3Sink with the given client.
func NewS3SinkWithClient(client S3Client, bucket, prefix string) *S3Sink {
	return &S3Sink{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}
}

func (s *S3Sink) String() string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, s.prefix)
}

func (s *S3Sink) key(name string) string {
	return path.Join(s.prefix, name)
}

// Prepare checks the bucket is reachable.
func (s *S3Sink) Prepare(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return &DestinationError{Path: s.String(), Err: fmt.Errorf("head bucket: %w", err)}
	}
	slog.InfoContext(ctx, "target bucket ready", "s3_uri", s.String())
	return nil
}

// Release is a no-op; S3 writes are not locked.
func (s *S3Sink) Release() error {
	return nil
}

// Write uploads body. The body is read fully first to get Content-Length,
// so nothing is stored under the key unless the whole body arrived.
func (s *S3Sink) Write(ctx context.Context, name string, body io.Reader, contentType string) (*WriteResult, error) {
	key := s.key(name)
	buf, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read body for s3://%s/%s: %w", s.bucket, key, err)
	}
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(buf),
		ContentLength: aws.Int64(int64(len(buf))),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return nil, fmt.Errorf("upload to s3://%s/%s: %w", s.bucket, key, err)
	}
	return &WriteResult{
		Location: fmt.Sprintf("s3://%s/%s", s.bucket, key),
		Size:     int64(len(buf)),
	}, nil
}

// Verify checks the object exists.
func (s *S3Sink) Verify(ctx context.Context, name string) error {
	key := s.key(name)
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return nil
	}
	var ae smithy.APIError
	if errors.As(err, &ae) && ae.ErrorCode() == "NotFound" {
		return &WriteVerificationError{Path: fmt.Sprintf("s3://%s/%s", s.bucket, key)}
	}
	return fmt.Errorf("head object s3://%s/%s: %w", s.bucket, key, err)
}
