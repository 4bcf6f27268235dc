package detector

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"stream-segmenter/internal/platform/metrics"
	"stream-segmenter/internal/playlist"
	"stream-segmenter/internal/storage"
)

const (
	defaultPollInterval = 1 * time.Second
	defaultSettleDelay  = 250 * time.Millisecond
)

// Detector watches a stream's working directory for completed segment files
// and fans each one out to the stream's storage backends. Filesystem events
// drive dispatch; a periodic polling sweep covers events the watcher missed
// or platforms where it is unavailable.
type Detector struct {
	router  *storage.Router
	engine  *playlist.Engine
	metrics *metrics.Metrics
	log     *slog.Logger

	pollInterval time.Duration
	settleDelay  time.Duration
}

// New returns a Detector. metrics may be nil to disable metric recording.
func New(router *storage.Router, engine *playlist.Engine, m *metrics.Metrics, log *slog.Logger) *Detector {
	return &Detector{
		router:       router,
		engine:       engine,
		metrics:      m,
		log:          log,
		pollInterval: defaultPollInterval,
		settleDelay:  defaultSettleDelay,
	}
}

// Watch monitors dir for new segment files belonging to streamID until ctx is
// cancelled. onReady is invoked exactly once, after the first segment has been
// uploaded to every backend and registered in the playlist.
func (d *Detector) Watch(ctx context.Context, streamID, dir string, onReady func()) {
	processed := make(map[string]bool)
	ready := false

	var events chan fsnotify.Event
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		if err := watcher.Add(dir); err == nil {
			events = watcher.Events
		} else {
			d.log.Warn("directory watch unavailable, polling only",
				slog.String("dir", dir), slog.String("error", err.Error()))
		}
		defer watcher.Close()
	} else {
		d.log.Warn("fsnotify unavailable, polling only", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	sweep := func() {
		for _, name := range d.listSegments(dir) {
			d.maybeDispatch(ctx, streamID, dir, name, processed, &ready, onReady)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Op&fsnotify.Create == 0 {
				continue
			}
			name := filepath.Base(ev.Name)
			if !isSegmentName(name) {
				continue
			}
			// A create event for segment N means N-1 is complete; sweep so
			// the predecessor dispatches without waiting for the next tick.
			sweep()
		case <-ticker.C:
			sweep()
		}
	}
}

// maybeDispatch dispatches one segment file if it passes the completion
// heuristic and has not been handled before.
func (d *Detector) maybeDispatch(ctx context.Context, streamID, dir, name string, processed map[string]bool, ready *bool, onReady func()) {
	if processed[name] {
		return
	}

	seq, err := playlist.ParseSequence(name)
	if err != nil {
		d.log.Warn("unparseable segment name", slog.String("name", name))
		processed[name] = true
		return
	}

	path := filepath.Join(dir, name)
	if !d.complete(dir, path, seq) {
		return
	}

	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		d.log.Warn("segment vanished or empty at dispatch, skipping",
			slog.String("stream_id", streamID), slog.String("name", name))
		processed[name] = true
		return
	}

	// Either way the filename is finished with: re-dispatching a failed
	// segment would reorder the window long after its slot has passed.
	processed[name] = true

	if err := d.fanOut(ctx, streamID, path); err != nil {
		d.log.Error("segment upload failed, dropping registration",
			slog.String("stream_id", streamID),
			slog.String("name", name),
			slog.String("error", err.Error()))
		return
	}

	d.engine.AddSegment(streamID, seq)
	d.log.Debug("segment registered",
		slog.String("stream_id", streamID), slog.Int("sequence", seq))

	if !*ready {
		*ready = true
		onReady()
	}
}

// complete applies the completion heuristic: a segment is safe to read once
// its successor file exists (the encoder has moved on), or once it has been
// quiet on disk for the settle delay (covers the last segment at stream end).
func (d *Detector) complete(dir, path string, seq int) bool {
	if _, err := os.Stat(filepath.Join(dir, playlist.SegmentName(seq+1))); err == nil {
		return true
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) >= d.settleDelay
}

// fanOut uploads the segment to every backend for the stream concurrently and
// waits for all of them. Any failure fails the fan-out.
func (d *Detector) fanOut(ctx context.Context, streamID, path string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, backend := range d.router.Resolve(streamID) {
		g.Go(func() error {
			_, err := backend.Upload(gctx, path, streamID)
			if d.metrics != nil {
				if err != nil {
					d.metrics.IncUploadFailures(string(backend.Kind()))
				} else {
					d.metrics.IncSegmentsUploaded(string(backend.Kind()))
				}
			}
			return err
		})
	}
	return g.Wait()
}

func (d *Detector) listSegments(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && isSegmentName(e.Name()) {
			names = append(names, e.Name())
		}
	}
	return names
}

func isSegmentName(name string) bool {
	return strings.HasPrefix(name, "segment_") && strings.HasSuffix(name, ".ts")
}
