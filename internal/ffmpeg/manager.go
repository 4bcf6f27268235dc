package ffmpeg

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// stopGrace is how long Stop waits after SIGTERM before force-killing.
const stopGrace = 5 * time.Second

// process tracks one running encoder subprocess.
type process struct {
	cmd     *exec.Cmd
	done    chan struct{}
	stopped atomic.Bool
}

// Manager owns the external encoder subprocess for each stream id. At most one
// subprocess is tracked per id; Start replaces a previous handle only after the
// old process is confirmed stopped.
type Manager struct {
	binPath string
	log     *slog.Logger

	mu    sync.Mutex
	procs map[string]*process
}

// NewManager returns a Manager that invokes the given ffmpeg binary.
// An empty binPath means "ffmpeg" on PATH.
func NewManager(binPath string, log *slog.Logger) *Manager {
	if binPath == "" {
		binPath = "ffmpeg"
	}
	return &Manager{
		binPath: binPath,
		log:     log,
		procs:   make(map[string]*process),
	}
}

// Start spawns the long-lived encoder for the stream and returns a channel
// that delivers exactly one value when the process exits: nil for a clean
// exit or deliberate stop, an error for a non-zero exit. The error case is
// fatal for the stream and the caller is expected to tear the session down.
func (m *Manager) Start(streamID, sourceURL, outputPattern string, q Quality, wm *Watermark) (<-chan error, error) {
	args := StreamArgs(sourceURL, outputPattern, q, wm)

	m.mu.Lock()
	// terminate blocks on the old process, so the lock is dropped around it.
	// Another Start for the same id may insert in the gap; re-check until the
	// slot is free.
	for {
		old, ok := m.procs[streamID]
		if !ok {
			break
		}
		m.mu.Unlock()
		m.terminate(streamID, old)
		m.mu.Lock()
	}

	cmd := exec.Command(m.binPath, args...)
	p := &process{cmd: cmd, done: make(chan struct{})}

	m.log.Debug("starting encoder",
		slog.String("stream_id", streamID),
		slog.String("command", m.binPath+" "+strings.Join(args, " ")))

	if err := cmd.Start(); err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("start encoder: %w", err)
	}
	m.procs[streamID] = p
	m.mu.Unlock()

	exitCh := make(chan error, 1)
	go func() {
		defer close(exitCh)
		err := cmd.Wait()
		close(p.done)

		m.mu.Lock()
		if m.procs[streamID] == p {
			delete(m.procs, streamID)
		}
		m.mu.Unlock()

		if p.stopped.Load() {
			exitCh <- nil
			return
		}
		if err != nil {
			m.log.Error("encoder exited abnormally",
				slog.String("stream_id", streamID),
				slog.String("error", err.Error()))
			exitCh <- fmt.Errorf("encoder failed: %w", err)
			return
		}
		exitCh <- nil
	}()

	return exitCh, nil
}

// Stop terminates the stream's subprocess: SIGTERM first, SIGKILL if it is
// still alive after the grace period. Stopping an unknown or already-stopped
// id is a no-op.
func (m *Manager) Stop(streamID string) {
	m.mu.Lock()
	p, ok := m.procs[streamID]
	if ok {
		delete(m.procs, streamID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	m.terminate(streamID, p)
}

func (m *Manager) terminate(streamID string, p *process) {
	p.stopped.Store(true)

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Already gone.
		return
	}

	select {
	case <-p.done:
	case <-time.After(stopGrace):
		m.log.Warn("encoder ignored SIGTERM, killing",
			slog.String("stream_id", streamID))
		_ = p.cmd.Process.Kill()
		<-p.done
	}

	m.log.Info("encoder stopped", slog.String("stream_id", streamID))
}

// ConvertImageToVideo loops a still image into a mpegts clip of the given
// duration. Used by the advertisement pipeline; runs to completion.
func (m *Manager) ConvertImageToVideo(ctx context.Context, imagePath, outputPath string, durationSeconds int) error {
	return m.runOnce(ctx, ImageToVideoArgs(imagePath, outputPath, durationSeconds))
}

// ConvertVideoToSegments remuxes a clip into 5-second advertisement segments
// numbered from startSegment. Used by the advertisement pipeline.
func (m *Manager) ConvertVideoToSegments(ctx context.Context, videoPath, outputDir string, startSegment, durationSeconds int) error {
	return m.runOnce(ctx, VideoToSegmentsArgs(videoPath, outputDir, startSegment, durationSeconds))
}

func (m *Manager) runOnce(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, m.binPath, args...)
	m.log.Debug("running ffmpeg", slog.String("command", m.binPath+" "+strings.Join(args, " ")))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %w", err)
	}
	return nil
}
