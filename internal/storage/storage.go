package storage

import (
	"context"
	"errors"
	"strings"
)

// Kind identifies a storage backend variant. The set is closed: local disk
// plus three remote object stores.
type Kind string

const (
	KindLocal Kind = "local"
	KindS3    Kind = "s3"
	KindGCS   Kind = "gcs"
	KindAzure Kind = "azure"
)

// ErrUnknownKind is returned when a request names a backend kind that is not
// part of the closed set.
var ErrUnknownKind = errors.New("unknown storage kind")

// ParseKind maps a request string onto a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(s)) {
	case KindLocal:
		return KindLocal, nil
	case KindS3:
		return KindS3, nil
	case KindGCS:
		return KindGCS, nil
	case KindAzure:
		return KindAzure, nil
	}
	return "", ErrUnknownKind
}

// Backend is one destination for segment artifacts. Implementations are
// stateless after construction and safe for concurrent use across streams.
type Backend interface {
	// Kind identifies the variant.
	Kind() Kind

	// Upload copies the local file under the stream's key space and returns
	// the public URL of the stored copy.
	Upload(ctx context.Context, localPath, streamID string) (string, error)

	// DeleteStream removes every stored artifact for the stream.
	DeleteStream(ctx context.Context, streamID string) error

	// DeleteSegment removes one stored artifact by name.
	DeleteSegment(ctx context.Context, streamID, segmentName string) error

	// SegmentURL returns the public URL for a stored media segment.
	SegmentURL(streamID, segmentName string) string

	// AdURL returns the public URL for a stored advertisement segment.
	AdURL(streamID, segmentName string) string
}
