package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"stream-segmenter/internal/ffmpeg"
	"stream-segmenter/internal/platform/metrics"
	"stream-segmenter/internal/playlist"
	"stream-segmenter/internal/storage"
)

// DefaultReadyTimeout is how long a starting stream may take to produce its
// first uploaded segment before the start is declared failed.
const DefaultReadyTimeout = 30 * time.Second

var (
	// ErrStreamExists is returned when starting a stream id that is already live.
	ErrStreamExists = errors.New("stream already active")

	// ErrReadyTimeout is returned when no segment arrived within the ready
	// timeout; the session has been torn down.
	ErrReadyTimeout = errors.New("no segment produced within ready timeout")
)

// Encoder is the subprocess manager contract the orchestrator drives.
type Encoder interface {
	Start(streamID, sourceURL, outputPattern string, q ffmpeg.Quality, wm *ffmpeg.Watermark) (<-chan error, error)
	Stop(streamID string)
}

// Watcher is the segment detector contract: watch dir until ctx is done,
// calling onReady after the first fully uploaded segment.
type Watcher interface {
	Watch(ctx context.Context, streamID, dir string, onReady func())
}

// Orchestrator composes the encoder, segment watcher, playlist engine and
// storage router into per-stream start/stop operations, and owns the registry
// of live sessions.
type Orchestrator struct {
	encoder Encoder
	watcher Watcher
	engine  *playlist.Engine
	router  *storage.Router
	metrics *metrics.Metrics
	log     *slog.Logger

	workRoot     string
	readyTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

// New returns an Orchestrator writing stream working directories under
// workRoot. metrics may be nil.
func New(encoder Encoder, watcher Watcher, engine *playlist.Engine, router *storage.Router, m *metrics.Metrics, workRoot string, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		encoder:      encoder,
		watcher:      watcher,
		engine:       engine,
		router:       router,
		metrics:      m,
		log:          log,
		workRoot:     workRoot,
		readyTimeout: DefaultReadyTimeout,
		sessions:     make(map[string]*Session),
	}
}

// SetReadyTimeout overrides how long Start waits for the first segment.
func (o *Orchestrator) SetReadyTimeout(d time.Duration) {
	if d > 0 {
		o.readyTimeout = d
	}
}

// Start brings up a stream and returns its manifest URLs, one per registered
// backend. For an immediate start it blocks until the first segment has been
// uploaded everywhere, or fails after the ready timeout (tearing the session
// down). A future StartTime arms a local timer instead and returns at once;
// readiness is then enforced in the background.
func (o *Orchestrator) Start(ctx context.Context, req StartRequest) (urls []string, id string, err error) {
	id = req.ID
	if id == "" {
		id = uuid.NewString()
	}

	o.mu.Lock()
	if _, exists := o.sessions[id]; exists {
		o.mu.Unlock()
		return nil, "", fmt.Errorf("%w: %s", ErrStreamExists, id)
	}

	dir := filepath.Join(o.workRoot, "streams", id)
	sctx, cancel := context.WithCancel(context.Background())
	sess := &Session{
		ID:        id,
		SourceURL: req.SourceURL,
		Quality:   req.Quality,
		Watermark: req.Watermark,
		Dir:       dir,
		cancel:    cancel,
	}
	sess.active.Store(true)
	o.sessions[id] = sess
	o.mu.Unlock()

	o.router.Register(id, req.StorageKinds)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		o.Stop(id)
		return nil, "", fmt.Errorf("create stream dir: %w", err)
	}

	urls = o.engine.ManifestURLs(id)

	delay := time.Until(req.StartTime)
	if !req.StartTime.IsZero() && delay > 0 {
		o.log.Info("stream start deferred",
			slog.String("stream_id", id),
			slog.String("start_time", req.StartTime.Format(time.RFC3339)))
		go func() {
			select {
			case <-sctx.Done():
				return
			case <-time.After(delay):
			}
			ready, err := o.launch(sctx, sess)
			if err != nil {
				o.log.Error("deferred stream failed to start",
					slog.String("stream_id", id),
					slog.String("error", err.Error()))
				o.Stop(id)
				return
			}
			select {
			case <-ready:
				if o.metrics != nil {
					o.metrics.IncStreamsStarted()
				}
				o.log.Info("stream live", slog.String("stream_id", id))
			case <-time.After(o.readyTimeout):
				o.log.Error("deferred stream produced no segments, stopping",
					slog.String("stream_id", id))
				o.Stop(id)
			case <-sctx.Done():
			}
		}()
		return urls, id, nil
	}

	ready, err := o.launch(sctx, sess)
	if err != nil {
		o.Stop(id)
		return nil, "", err
	}

	select {
	case <-ready:
	case <-time.After(o.readyTimeout):
		o.Stop(id)
		return nil, "", ErrReadyTimeout
	case <-ctx.Done():
		o.Stop(id)
		return nil, "", ctx.Err()
	}

	if o.metrics != nil {
		o.metrics.IncStreamsStarted()
	}
	o.log.Info("stream live", slog.String("stream_id", id))
	return urls, id, nil
}

// launch spawns the encoder and watch loop for a session. The returned
// channel closes once the first segment has been uploaded to every backend.
func (o *Orchestrator) launch(sctx context.Context, sess *Session) (<-chan struct{}, error) {
	pattern := filepath.Join(sess.Dir, "segment_%d.ts")
	exit, err := o.encoder.Start(sess.ID, sess.SourceURL, pattern, sess.Quality, sess.Watermark)
	if err != nil {
		return nil, err
	}

	ready := make(chan struct{})
	var once sync.Once
	go o.watcher.Watch(sctx, sess.ID, sess.Dir, func() {
		once.Do(func() { close(ready) })
	})

	// A non-nil exit means the encoder died on its own; that is fatal for
	// the session. Deliberate stops deliver nil and teardown is already
	// underway.
	go func() {
		select {
		case err := <-exit:
			if err != nil {
				o.log.Error("encoder failure, stopping stream",
					slog.String("stream_id", sess.ID),
					slog.String("error", err.Error()))
				o.Stop(sess.ID)
			}
		case <-sctx.Done():
		}
	}()

	return ready, nil
}

// Stop tears a stream down: encoder, watch loop, playlist state, stored
// artifacts on every backend, working directory, and registry entries.
// Stopping an unknown id is a no-op.
func (o *Orchestrator) Stop(streamID string) {
	o.mu.Lock()
	sess, ok := o.sessions[streamID]
	if ok {
		delete(o.sessions, streamID)
	}
	o.mu.Unlock()
	if !ok {
		return
	}

	sess.active.Store(false)
	sess.cancel()
	o.encoder.Stop(streamID)
	o.engine.Clear(streamID)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, backend := range o.router.Resolve(streamID) {
		if err := backend.DeleteStream(ctx, streamID); err != nil {
			o.log.Warn("artifact cleanup failed",
				slog.String("stream_id", streamID),
				slog.String("backend", string(backend.Kind())),
				slog.String("error", err.Error()))
		}
	}
	if err := os.RemoveAll(sess.Dir); err != nil {
		o.log.Warn("work dir cleanup failed",
			slog.String("stream_id", streamID),
			slog.String("error", err.Error()))
	}

	o.router.Unregister(streamID)
	if o.metrics != nil {
		o.metrics.IncStreamsStopped()
	}
	o.log.Info("stream stopped", slog.String("stream_id", streamID))
}

// Session returns the live session for an id, if any.
func (o *Orchestrator) Session(streamID string) (*Session, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[streamID]
	return s, ok
}

// Active returns the manifest URLs of every live stream, keyed by stream id.
func (o *Orchestrator) Active() map[string][]string {
	o.mu.Lock()
	ids := make([]string, 0, len(o.sessions))
	for id := range o.sessions {
		ids = append(ids, id)
	}
	o.mu.Unlock()

	out := make(map[string][]string, len(ids))
	for _, id := range ids {
		out[id] = o.engine.ManifestURLs(id)
	}
	return out
}

// ActiveCount returns the number of live sessions. Used for metrics.
func (o *Orchestrator) ActiveCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sessions)
}
