package playlist

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"stream-segmenter/internal/storage"
)

const (
	// SegmentDuration is the nominal segment length in seconds.
	SegmentDuration = 5

	// WindowSize bounds the sliding window of live sequence numbers.
	WindowSize = 6
)

// adSlot is one advertisement chunk occupying a sequence position.
type adSlot struct {
	name     string // artifact filename, advertisement_<seq>.ts
	dir      string // local directory holding the artifact
	duration int    // seconds, at most SegmentDuration
}

// streamState is the per-stream playlist state: the bounded window, the
// advertisement overlay, and the last render per backend kind.
type streamState struct {
	window    []int // sorted ascending, len <= WindowSize
	ads       map[int]adSlot
	manifests map[storage.Kind]string
}

// Engine maintains the sliding window and advertisement overlay for each
// stream and renders the per-backend manifest text playback clients poll.
// All mutation and rendering for a stream happens under one mutex, so a
// rendered manifest is always consistent with the window that produced it.
type Engine struct {
	router *storage.Router
	log    *slog.Logger

	mu      sync.Mutex
	streams map[string]*streamState
}

// NewEngine returns an Engine that resolves backends through router.
func NewEngine(router *storage.Router, log *slog.Logger) *Engine {
	return &Engine{
		router:  router,
		log:     log,
		streams: make(map[string]*streamState),
	}
}

// AddSegment inserts a sequence number into the stream's window, evicting the
// smallest entry past capacity, and re-renders all backend manifests.
func (e *Engine) AddSegment(streamID string, sequence int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.stateLocked(streamID)
	for _, s := range st.window {
		if s == sequence {
			return
		}
	}
	st.window = append(st.window, sequence)
	sort.Ints(st.window)
	for len(st.window) > WindowSize {
		st.window = st.window[1:]
	}

	e.renderLocked(streamID, st)
}

// AdChunkDurations splits a total advertisement duration into nominal-length
// chunks: every chunk is SegmentDuration seconds except the last, which
// carries the remainder. The chunk durations always sum to total.
func AdChunkDurations(total int) []int {
	if total <= 0 {
		return nil
	}
	n := (total + SegmentDuration - 1) / SegmentDuration
	out := make([]int, n)
	for i := 0; i < n-1; i++ {
		out[i] = SegmentDuration
	}
	out[n-1] = total - SegmentDuration*(n-1)
	return out
}

// RegisterAdvertisement occupies ceil(duration/5) consecutive sequence slots
// starting at startSequence with advertisement chunks rendered into dir, then
// re-renders the stream's manifests.
func (e *Engine) RegisterAdvertisement(streamID string, startSequence int, dir string, durationSeconds int) {
	chunks := AdChunkDurations(durationSeconds)
	if len(chunks) == 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.stateLocked(streamID)
	for i, d := range chunks {
		seq := startSequence + i
		st.ads[seq] = adSlot{name: AdName(seq), dir: dir, duration: d}
	}

	e.log.Info("advertisement registered",
		slog.String("stream_id", streamID),
		slog.Int("start_sequence", startSequence),
		slog.Int("chunks", len(chunks)))

	e.renderLocked(streamID, st)
}

// RemoveAdvertisement drops advertisement slots in [startSeq, endSeq] and
// re-renders. Sequences without a slot are ignored.
func (e *Engine) RemoveAdvertisement(streamID string, startSeq, endSeq int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.streams[streamID]
	if !ok {
		return
	}
	for seq := startSeq; seq <= endSeq; seq++ {
		delete(st.ads, seq)
	}
	e.renderLocked(streamID, st)
}

// AdSlots reports which sequences in [startSeq, endSeq] currently hold an
// advertisement, with the directory each artifact lives in.
func (e *Engine) AdSlots(streamID string, startSeq, endSeq int) map[int]string {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[int]string)
	st, ok := e.streams[streamID]
	if !ok {
		return out
	}
	for seq := startSeq; seq <= endSeq; seq++ {
		if slot, ok := st.ads[seq]; ok {
			out[seq] = slot.dir
		}
	}
	return out
}

// Render returns the current manifest for the stream and backend kind. A
// stream with no segments yet renders a minimal valid manifest with media
// sequence 0.
func (e *Engine) Render(streamID string, kind storage.Kind) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if st, ok := e.streams[streamID]; ok {
		if m, ok := st.manifests[kind]; ok {
			return m
		}
	}
	return emptyManifest()
}

// ManifestURLs returns one playlist URL per backend registered for the stream.
func (e *Engine) ManifestURLs(streamID string) []string {
	backends := e.router.Resolve(streamID)
	urls := make([]string, 0, len(backends))
	for _, b := range backends {
		urls = append(urls, fmt.Sprintf("/api/stream/%s/%s/playlist.m3u8", streamID, b.Kind()))
	}
	return urls
}

// Clear drops all playlist state for the stream.
func (e *Engine) Clear(streamID string) {
	e.mu.Lock()
	delete(e.streams, streamID)
	e.mu.Unlock()
}

func (e *Engine) stateLocked(streamID string) *streamState {
	st, ok := e.streams[streamID]
	if !ok {
		st = &streamState{
			ads:       make(map[int]adSlot),
			manifests: make(map[storage.Kind]string),
		}
		e.streams[streamID] = st
	}
	return st
}

// renderLocked rebuilds the manifest for every backend the stream fans out
// to. Caller must hold e.mu.
func (e *Engine) renderLocked(streamID string, st *streamState) {
	if len(st.window) == 0 {
		return
	}
	for _, backend := range e.router.Resolve(streamID) {
		st.manifests[backend.Kind()] = buildManifest(streamID, st, backend)
	}
}
