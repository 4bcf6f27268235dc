package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	s3MaxRetries = 3
	s3RetryWait  = 500 * time.Millisecond
)

// s3API is the subset of the S3 client the backend uses; narrowed for tests.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3 uploads segments to an AWS S3 bucket under <stream-id>/<name> keys.
// Uploads retry with linearly increasing backoff because the encoder may
// still be flushing the file when the watcher first reports it.
type S3 struct {
	client s3API
	bucket string
	log    *slog.Logger
}

// NewS3 returns the S3 backend with static credentials.
func NewS3(region, accessKey, secretKey, bucket string, log *slog.Logger) *S3 {
	client := s3.New(s3.Options{
		Region: region,
		Credentials: aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	})
	return &S3{client: client, bucket: bucket, log: log}
}

// Kind implements Backend.
func (b *S3) Kind() Kind { return KindS3 }

// Upload implements Backend. A missing or zero-byte source file counts as a
// retryable condition, not a failure: the next attempt waits longer and the
// encoder usually has finished flushing by then.
func (b *S3) Upload(ctx context.Context, localPath, streamID string) (string, error) {
	name := filepath.Base(localPath)
	key := streamID + "/" + name

	var lastErr error
	for attempt := 1; attempt <= s3MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s3RetryWait * time.Duration(attempt)):
		}

		data, err := readCompleteFile(localPath)
		if err == nil {
			_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
				Bucket: aws.String(b.bucket),
				Key:    aws.String(key),
				Body:   bytes.NewReader(data),
			})
			if err == nil {
				b.log.Debug("uploaded segment to s3",
					slog.String("key", key), slog.Int("size", len(data)))
				return b.SegmentURL(streamID, name), nil
			}
		}

		lastErr = err
		b.log.Warn("s3 upload retry",
			slog.Int("attempt", attempt),
			slog.String("key", key),
			slog.String("error", err.Error()))
	}

	return "", fmt.Errorf("upload %s after %d attempts: %w", key, s3MaxRetries, lastErr)
}

// DeleteStream implements Backend: list by prefix page by page and delete
// each object. Individual delete failures are logged and skipped.
func (b *S3) DeleteStream(ctx context.Context, streamID string) error {
	prefix := streamID + "/"
	in := &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	}

	for {
		out, err := b.client.ListObjectsV2(ctx, in)
		if err != nil {
			return fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, obj := range out.Contents {
			_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(b.bucket),
				Key:    obj.Key,
			})
			if err != nil {
				b.log.Error("s3 delete failed",
					slog.String("key", aws.ToString(obj.Key)),
					slog.String("error", err.Error()))
			}
		}
		if out.NextContinuationToken == nil {
			return nil
		}
		in.ContinuationToken = out.NextContinuationToken
	}
}

// DeleteSegment implements Backend.
func (b *S3) DeleteSegment(ctx context.Context, streamID, segmentName string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(streamID + "/" + segmentName),
	})
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", streamID, segmentName, err)
	}
	return nil
}

// SegmentURL implements Backend.
func (b *S3) SegmentURL(streamID, segmentName string) string {
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s/%s", b.bucket, streamID, segmentName)
}

// AdURL implements Backend.
func (b *S3) AdURL(streamID, segmentName string) string {
	return b.SegmentURL(streamID, segmentName)
}

// readCompleteFile reads a segment file, treating absence and emptiness as
// errors so callers can retry until the encoder has flushed it.
func readCompleteFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("segment not on disk: %w", err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("segment %s still empty", filepath.Base(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read segment: %w", err)
	}
	return data, nil
}
