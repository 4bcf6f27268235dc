package stream

import (
	"context"
	"sync/atomic"
	"time"

	"stream-segmenter/internal/ffmpeg"
	"stream-segmenter/internal/storage"
)

// StartRequest carries everything needed to bring up one stream.
type StartRequest struct {
	// ID is optional; the scheduler passes the scheduled record's id so the
	// stream keeps it. When empty a fresh id is assigned.
	ID string

	SourceURL    string
	Quality      ffmpeg.Quality
	Watermark    *ffmpeg.Watermark
	StorageKinds []storage.Kind

	// StartTime in the future defers the encoder start via a local timer.
	// The zero value means start now. Cross-instance deferred starts go
	// through the scheduler instead.
	StartTime time.Time
}

// Session is the per-stream state owned by the Orchestrator. All mutable
// state reachable from other components is scoped here and accessed through
// the orchestrator's registry.
type Session struct {
	ID        string
	SourceURL string
	Quality   ffmpeg.Quality
	Watermark *ffmpeg.Watermark
	Dir       string

	active atomic.Bool
	cancel context.CancelFunc
}

// Active reports whether the session is still live.
func (s *Session) Active() bool {
	return s.active.Load()
}
