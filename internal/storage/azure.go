package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// Azure uploads segments to an Azure Blob Storage container under
// <stream-id>/<name> blob names.
type Azure struct {
	client    *azblob.Client
	account   string
	container string
	log       *slog.Logger
}

// NewAzure returns the Azure backend from a connection string.
func NewAzure(connectionString, account, container string, log *slog.Logger) (*Azure, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("azure client: %w", err)
	}
	return &Azure{client: client, account: account, container: container, log: log}, nil
}

// Kind implements Backend.
func (b *Azure) Kind() Kind { return KindAzure }

// Upload implements Backend.
func (b *Azure) Upload(ctx context.Context, localPath, streamID string) (string, error) {
	name := filepath.Base(localPath)
	blob := streamID + "/" + name

	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("read segment: %w", err)
	}

	if _, err := b.client.UploadBuffer(ctx, b.container, blob, data, nil); err != nil {
		return "", fmt.Errorf("upload blob %s: %w", blob, err)
	}

	return b.SegmentURL(streamID, name), nil
}

// DeleteStream implements Backend using a flat listing filtered by prefix.
func (b *Azure) DeleteStream(ctx context.Context, streamID string) error {
	prefix := streamID + "/"
	pager := b.client.NewListBlobsFlatPager(b.container, &azblob.ListBlobsFlatOptions{
		Prefix: &prefix,
	})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			if _, err := b.client.DeleteBlob(ctx, b.container, *item.Name, nil); err != nil {
				b.log.Error("azure delete failed",
					slog.String("blob", *item.Name),
					slog.String("error", err.Error()))
			}
		}
	}
	return nil
}

// DeleteSegment implements Backend.
func (b *Azure) DeleteSegment(ctx context.Context, streamID, segmentName string) error {
	blob := streamID + "/" + segmentName
	if _, err := b.client.DeleteBlob(ctx, b.container, blob, nil); err != nil {
		return fmt.Errorf("delete blob %s: %w", blob, err)
	}
	return nil
}

// SegmentURL implements Backend.
func (b *Azure) SegmentURL(streamID, segmentName string) string {
	return fmt.Sprintf("https://%s.blob.core.windows.net/%s/%s/%s",
		b.account, b.container, streamID, segmentName)
}

// AdURL implements Backend.
func (b *Azure) AdURL(streamID, segmentName string) string {
	return b.SegmentURL(streamID, segmentName)
}
