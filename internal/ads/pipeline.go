package ads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"stream-segmenter/internal/platform/metrics"
	"stream-segmenter/internal/playlist"
	"stream-segmenter/internal/schedule"
	"stream-segmenter/internal/storage"
	"stream-segmenter/internal/stream"
)

// Kind says how an uploaded creative must be turned into segments.
type Kind string

const (
	KindImage Kind = "image" // still image looped for the requested duration
	KindVideo Kind = "video" // clip re-segmented at the nominal cadence
	KindTS    Kind = "ts"    // pre-segmented transport stream, copied verbatim
)

// ParseKind maps a request string onto a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(s)) {
	case KindImage:
		return KindImage, nil
	case KindVideo:
		return KindVideo, nil
	case KindTS:
		return KindTS, nil
	}
	return "", fmt.Errorf("unsupported advertisement kind %q", s)
}

// ErrNoSuchStream rejects insertion against an id that is neither live nor
// scheduled.
var ErrNoSuchStream = errors.New("no active or scheduled stream with this id")

// Converter is the ffmpeg surface the pipeline drives.
type Converter interface {
	ConvertImageToVideo(ctx context.Context, imagePath, outputPath string, durationSeconds int) error
	ConvertVideoToSegments(ctx context.Context, videoPath, outputDir string, startSegment, durationSeconds int) error
}

// Sessions is the orchestrator's live-session lookup.
type Sessions interface {
	Session(streamID string) (*stream.Session, bool)
}

// Schedules is the scheduler's record lookup.
type Schedules interface {
	Get(ctx context.Context, id string) (schedule.Record, bool, error)
}

// InsertRequest describes one advertisement insertion.
type InsertRequest struct {
	StreamID        string
	SourcePath      string // creative already saved to local disk by the caller
	Kind            Kind
	StartSequence   int
	DurationSeconds int
}

// Pipeline converts uploaded creatives into segment-duration chunks, pushes
// them to the stream's storage backends, and splices them into the playlist.
type Pipeline struct {
	converter Converter
	engine    *playlist.Engine
	router    *storage.Router
	sessions  Sessions
	schedules Schedules
	metrics   *metrics.Metrics
	log       *slog.Logger
	workRoot  string
}

// New returns a Pipeline writing artifacts under workRoot (the same tree the
// encoder and local backend use). metrics may be nil.
func New(converter Converter, engine *playlist.Engine, router *storage.Router, sessions Sessions, schedules Schedules, m *metrics.Metrics, workRoot string, log *slog.Logger) *Pipeline {
	return &Pipeline{
		converter: converter,
		engine:    engine,
		router:    router,
		sessions:  sessions,
		schedules: schedules,
		metrics:   m,
		log:       log,
		workRoot:  workRoot,
	}
}

// Insert validates the target stream, renders the creative into
// advertisement chunks, uploads them to every remote backend, and registers
// the slots with the playlist engine. Insertion against an unknown stream is
// rejected with ErrNoSuchStream and no side effects.
func (p *Pipeline) Insert(ctx context.Context, req InsertRequest) error {
	if err := p.ensureStream(ctx, req.StreamID); err != nil {
		return err
	}

	dir := filepath.Join(p.workRoot, "streams", req.StreamID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create stream dir: %w", err)
	}

	if err := p.render(ctx, req, dir); err != nil {
		return fmt.Errorf("render advertisement: %w", err)
	}

	p.uploadChunks(ctx, req, dir)
	p.engine.RegisterAdvertisement(req.StreamID, req.StartSequence, dir, req.DurationSeconds)

	if p.metrics != nil {
		p.metrics.IncAdsInserted()
	}
	p.log.Info("advertisement inserted",
		slog.String("stream_id", req.StreamID),
		slog.Int("start_sequence", req.StartSequence),
		slog.Int("duration", req.DurationSeconds))
	return nil
}

// ensureStream accepts live streams as-is; a scheduled stream additionally
// gets its requested backends registered now so playback works before the
// stream itself starts.
func (p *Pipeline) ensureStream(ctx context.Context, streamID string) error {
	if _, ok := p.sessions.Session(streamID); ok {
		return nil
	}
	rec, ok, err := p.schedules.Get(ctx, streamID)
	if err != nil {
		return fmt.Errorf("schedule lookup: %w", err)
	}
	if !ok {
		return ErrNoSuchStream
	}
	if !p.router.Registered(streamID) {
		p.router.Register(streamID, rec.StorageKinds)
	}
	return nil
}

// render produces advertisement_<seq>.ts chunk files in dir.
func (p *Pipeline) render(ctx context.Context, req InsertRequest, dir string) error {
	switch req.Kind {
	case KindImage:
		if req.DurationSeconds <= playlist.SegmentDuration {
			return p.converter.ConvertImageToVideo(ctx, req.SourcePath,
				filepath.Join(dir, playlist.AdName(req.StartSequence)), req.DurationSeconds)
		}
		// Long stills render to one clip first, then split at the nominal
		// cadence like any other video.
		clip := filepath.Join(dir, fmt.Sprintf("ad_source_%d.ts", req.StartSequence))
		if err := p.converter.ConvertImageToVideo(ctx, req.SourcePath, clip, req.DurationSeconds); err != nil {
			return err
		}
		defer os.Remove(clip)
		return p.converter.ConvertVideoToSegments(ctx, clip, dir, req.StartSequence, req.DurationSeconds)

	case KindVideo:
		return p.converter.ConvertVideoToSegments(ctx, req.SourcePath, dir, req.StartSequence, req.DurationSeconds)

	case KindTS:
		return copyFile(req.SourcePath, filepath.Join(dir, playlist.AdName(req.StartSequence)))

	default:
		return fmt.Errorf("unsupported advertisement kind %q", req.Kind)
	}
}

// uploadChunks pushes every rendered chunk to each remote backend of the
// stream. The local backend is skipped: the artifacts already live in its
// serving tree. Per-backend failures are logged, not fatal — the slot still
// plays from the backends that accepted it.
func (p *Pipeline) uploadChunks(ctx context.Context, req InsertRequest, dir string) {
	chunks := playlist.AdChunkDurations(req.DurationSeconds)
	for i := range chunks {
		name := playlist.AdName(req.StartSequence + i)
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			p.log.Warn("advertisement chunk missing on disk",
				slog.String("stream_id", req.StreamID), slog.String("name", name))
			continue
		}
		for _, backend := range p.router.Resolve(req.StreamID) {
			if backend.Kind() == storage.KindLocal {
				continue
			}
			if _, err := backend.Upload(ctx, path, req.StreamID); err != nil {
				p.log.Error("advertisement upload failed",
					slog.String("stream_id", req.StreamID),
					slog.String("backend", string(backend.Kind())),
					slog.String("name", name),
					slog.String("error", err.Error()))
			}
		}
	}
}

// Remove deletes advertisement slots in [startSeq, endSeq]: backend copies,
// local artifacts, and the playlist entries.
func (p *Pipeline) Remove(ctx context.Context, streamID string, startSeq, endSeq int) {
	slots := p.engine.AdSlots(streamID, startSeq, endSeq)
	backends := p.router.Resolve(streamID)

	for seq, dir := range slots {
		name := playlist.AdName(seq)
		for _, backend := range backends {
			if err := backend.DeleteSegment(ctx, streamID, name); err != nil {
				p.log.Error("advertisement delete failed",
					slog.String("stream_id", streamID),
					slog.String("backend", string(backend.Kind())),
					slog.String("name", name),
					slog.String("error", err.Error()))
			}
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			p.log.Warn("advertisement artifact cleanup failed",
				slog.String("stream_id", streamID), slog.String("name", name))
		}
	}

	p.engine.RemoveAdvertisement(streamID, startSeq, endSeq)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open creative: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create artifact: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy artifact: %w", err)
	}
	return out.Close()
}
