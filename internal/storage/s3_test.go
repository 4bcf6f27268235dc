package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"stream-segmenter/internal/platform/logger"
)

// fakeS3 records calls and fails PutObject until failuresLeft reaches zero.
type fakeS3 struct {
	puts         []string
	deletes      []string
	failuresLeft int

	listPages []*s3.ListObjectsV2Output
	listCalls int
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.failuresLeft > 0 {
		f.failuresLeft--
		return nil, errors.New("transient s3 error")
	}
	f.puts = append(f.puts, aws.ToString(in.Key))
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.listCalls >= len(f.listPages) {
		return &s3.ListObjectsV2Output{}, nil
	}
	page := f.listPages[f.listCalls]
	f.listCalls++
	return page, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deletes = append(f.deletes, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func writeSegment(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestS3_Upload(t *testing.T) {
	fake := &fakeS3{}
	b := &S3{client: fake, bucket: "bucket", log: logger.Nop()}

	path := writeSegment(t, "segment_0.ts", []byte("data"))
	url, err := b.Upload(context.Background(), path, "s1")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if url != "https://bucket.s3.amazonaws.com/s1/segment_0.ts" {
		t.Errorf("unexpected url %q", url)
	}
	if len(fake.puts) != 1 || fake.puts[0] != "s1/segment_0.ts" {
		t.Errorf("unexpected puts %v", fake.puts)
	}
}

func TestS3_Upload_retries_transient_failure(t *testing.T) {
	fake := &fakeS3{failuresLeft: 2}
	b := &S3{client: fake, bucket: "bucket", log: logger.Nop()}

	path := writeSegment(t, "segment_1.ts", []byte("data"))
	if _, err := b.Upload(context.Background(), path, "s1"); err != nil {
		t.Fatalf("third attempt should succeed: %v", err)
	}
	if len(fake.puts) != 1 {
		t.Errorf("expected exactly 1 successful put, got %d", len(fake.puts))
	}
}

func TestS3_Upload_gives_up(t *testing.T) {
	fake := &fakeS3{failuresLeft: 3}
	b := &S3{client: fake, bucket: "bucket", log: logger.Nop()}

	path := writeSegment(t, "segment_2.ts", []byte("data"))
	if _, err := b.Upload(context.Background(), path, "s1"); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if len(fake.puts) != 0 {
		t.Errorf("no put should have succeeded, got %v", fake.puts)
	}
}

func TestS3_Upload_empty_file_is_retryable(t *testing.T) {
	fake := &fakeS3{}
	b := &S3{client: fake, bucket: "bucket", log: logger.Nop()}

	// An empty file never fills up, so all attempts fail without touching S3.
	path := writeSegment(t, "segment_3.ts", nil)
	if _, err := b.Upload(context.Background(), path, "s1"); err == nil {
		t.Fatal("expected error for a file that stays empty")
	}
	if len(fake.puts) != 0 {
		t.Errorf("empty file must not be uploaded, got %v", fake.puts)
	}
}

func TestS3_DeleteStream_paginates(t *testing.T) {
	fake := &fakeS3{
		listPages: []*s3.ListObjectsV2Output{
			{
				Contents:              []types.Object{{Key: aws.String("s1/segment_0.ts")}},
				NextContinuationToken: aws.String("token"),
			},
			{
				Contents: []types.Object{{Key: aws.String("s1/segment_1.ts")}},
			},
		},
	}
	b := &S3{client: fake, bucket: "bucket", log: logger.Nop()}

	if err := b.DeleteStream(context.Background(), "s1"); err != nil {
		t.Fatalf("DeleteStream: %v", err)
	}
	if len(fake.deletes) != 2 {
		t.Errorf("expected both pages deleted, got %v", fake.deletes)
	}
	if fake.listCalls != 2 {
		t.Errorf("expected 2 list calls, got %d", fake.listCalls)
	}
}
