package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	gcstorage "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCS uploads segments to a Google Cloud Storage bucket under
// <stream-id>/<name> object names.
type GCS struct {
	client *gcstorage.Client
	bucket string
	log    *slog.Logger
}

// NewGCS returns the GCS backend, authenticating with the service account
// key file when one is configured.
func NewGCS(ctx context.Context, projectID, bucket, credentialsFile string, log *slog.Logger) (*GCS, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := gcstorage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client for project %s: %w", projectID, err)
	}
	return &GCS{client: client, bucket: bucket, log: log}, nil
}

// Kind implements Backend.
func (b *GCS) Kind() Kind { return KindGCS }

// Upload implements Backend.
func (b *GCS) Upload(ctx context.Context, localPath, streamID string) (string, error) {
	name := filepath.Base(localPath)
	object := streamID + "/" + name

	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("read segment: %w", err)
	}

	w := b.client.Bucket(b.bucket).Object(object).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write object %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finish object %s: %w", object, err)
	}

	return b.SegmentURL(streamID, name), nil
}

// DeleteStream implements Backend by iterating the stream's prefix.
func (b *GCS) DeleteStream(ctx context.Context, streamID string) error {
	bucket := b.client.Bucket(b.bucket)
	it := bucket.Objects(ctx, &gcstorage.Query{Prefix: streamID + "/"})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return fmt.Errorf("list %s/: %w", streamID, err)
		}
		if err := bucket.Object(attrs.Name).Delete(ctx); err != nil {
			b.log.Error("gcs delete failed",
				slog.String("object", attrs.Name),
				slog.String("error", err.Error()))
		}
	}
}

// DeleteSegment implements Backend.
func (b *GCS) DeleteSegment(ctx context.Context, streamID, segmentName string) error {
	object := streamID + "/" + segmentName
	if err := b.client.Bucket(b.bucket).Object(object).Delete(ctx); err != nil {
		return fmt.Errorf("delete %s: %w", object, err)
	}
	return nil
}

// SegmentURL implements Backend.
func (b *GCS) SegmentURL(streamID, segmentName string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s/%s", b.bucket, streamID, segmentName)
}

// AdURL implements Backend.
func (b *GCS) AdURL(streamID, segmentName string) string {
	return b.SegmentURL(streamID, segmentName)
}
