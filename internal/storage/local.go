package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Local stores segments in a server-local directory tree under
// <root>/streams/<stream-id>/ and serves them via the static file route.
type Local struct {
	root      string
	serverURL string
	log       *slog.Logger
}

// NewLocal returns the local filesystem backend. root is the working tree
// (segments live under root/streams), serverURL the externally visible base
// for static file URLs.
func NewLocal(root, serverURL string, log *slog.Logger) *Local {
	return &Local{root: root, serverURL: serverURL, log: log}
}

// Kind implements Backend.
func (l *Local) Kind() Kind { return KindLocal }

// StreamDir returns the on-disk directory holding the stream's segments.
func (l *Local) StreamDir(streamID string) string {
	return filepath.Join(l.root, "streams", streamID)
}

// Upload implements Backend by copying the file into the stream's directory.
func (l *Local) Upload(ctx context.Context, localPath, streamID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := l.StreamDir(streamID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create stream dir: %w", err)
	}

	name := filepath.Base(localPath)
	target := filepath.Join(dir, name)
	if target == localPath {
		// Segments produced directly into the serving tree need no copy.
		return l.SegmentURL(streamID, name), nil
	}

	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open segment: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("create segment copy: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", fmt.Errorf("copy segment: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("close segment copy: %w", err)
	}

	return l.SegmentURL(streamID, name), nil
}

// DeleteStream implements Backend by removing the stream's directory tree.
func (l *Local) DeleteStream(ctx context.Context, streamID string) error {
	if err := os.RemoveAll(l.StreamDir(streamID)); err != nil {
		return fmt.Errorf("remove stream dir: %w", err)
	}
	return nil
}

// DeleteSegment implements Backend.
func (l *Local) DeleteSegment(ctx context.Context, streamID, segmentName string) error {
	err := os.Remove(filepath.Join(l.StreamDir(streamID), segmentName))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove segment: %w", err)
	}
	return nil
}

// SegmentURL implements Backend.
func (l *Local) SegmentURL(streamID, segmentName string) string {
	return fmt.Sprintf("%s/streams/%s/%s", l.serverURL, streamID, segmentName)
}

// AdURL implements Backend. Ads live in the same per-stream tree.
func (l *Local) AdURL(streamID, segmentName string) string {
	return l.SegmentURL(streamID, segmentName)
}
