package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"stream-segmenter/internal/ads"
	"stream-segmenter/internal/ffmpeg"
	"stream-segmenter/internal/platform/metrics"
	"stream-segmenter/internal/playlist"
	"stream-segmenter/internal/schedule"
	"stream-segmenter/internal/storage"
	"stream-segmenter/internal/stream"

	"github.com/go-chi/chi/v5"
)

const (
	playlistContentType = "application/vnd.apple.mpegurl"

	// maxCreativeBytes bounds advertisement uploads.
	maxCreativeBytes = 512 << 20
)

// Handler exposes the segmenter HTTP endpoints using go-chi.
type Handler struct {
	orch    *stream.Orchestrator
	engine  *playlist.Engine
	router  *storage.Router
	sched   *schedule.Scheduler
	ads     *ads.Pipeline
	log     *slog.Logger
	metrics *metrics.Metrics
	uploads string
}

// NewHandler returns a Handler over the given subsystems. uploads is the
// directory advertisement creatives are spooled to. Metrics may be nil to
// disable metric recording (e.g. in tests).
func NewHandler(orch *stream.Orchestrator, engine *playlist.Engine, router *storage.Router, sched *schedule.Scheduler, ads *ads.Pipeline, uploads string, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		orch:    orch,
		engine:  engine,
		router:  router,
		sched:   sched,
		ads:     ads,
		log:     log,
		metrics: m,
		uploads: uploads,
	}
}

// Routes mounts all endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/stream/start", h.StartStream)
	r.Post("/api/stream/stop/{stream_id}", h.StopStream)
	r.Get("/api/stream/active", h.ActiveStreams)
	r.Get("/api/stream/scheduled", h.ListScheduled)
	r.Put("/api/stream/scheduled/{stream_id}", h.UpdateScheduled)
	r.Delete("/api/stream/scheduled/{stream_id}", h.CancelScheduled)
	r.Get("/api/stream/{stream_id}/{storage}/playlist.m3u8", h.GetPlaylist)
	r.Post("/api/advertisement/insert", h.InsertAdvertisement)
	r.Delete("/api/advertisement/{stream_id}", h.RemoveAdvertisement)
}

// StartStream handles POST /api/stream/start. A future startTime persists a
// scheduled record instead of starting the encoder.
func (h *Handler) StartStream(w http.ResponseWriter, r *http.Request) {
	var req StartStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid start body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if req.URL == "" {
		http.Error(w, "url is required", http.StatusBadRequest)
		return
	}

	kinds, err := parseKinds(req.StorageTypes)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.StartTime != nil && req.StartTime.After(time.Now()) {
		rec, err := h.sched.Schedule(r.Context(), schedule.Record{
			SourceURL:    req.URL,
			Quality:      ffmpeg.ParseQuality(req.Quality),
			StorageKinds: kinds,
			StartTime:    *req.StartTime,
		})
		if err != nil {
			h.log.Error("schedule stream failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusAccepted, ScheduledStreamResponse{ID: rec.ID, StartTime: rec.StartTime})
		return
	}

	urls, id, err := h.orch.Start(r.Context(), stream.StartRequest{
		SourceURL:    req.URL,
		Quality:      ffmpeg.ParseQuality(req.Quality),
		Watermark:    req.Watermark.toFFmpeg(),
		StorageKinds: kinds,
	})
	if err != nil {
		switch {
		case errors.Is(err, stream.ErrStreamExists):
			w.WriteHeader(http.StatusConflict)
		case errors.Is(err, stream.ErrReadyTimeout):
			h.log.Error("stream produced no segments", slog.String("id", id))
			w.WriteHeader(http.StatusGatewayTimeout)
		default:
			h.log.Error("start stream failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, StartStreamResponse{ID: id, Playlists: urls})
}

// StopStream handles POST /api/stream/stop/{stream_id}.
func (h *Handler) StopStream(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "stream_id")
	if streamID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if _, ok := h.orch.Session(streamID); !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	h.orch.Stop(streamID)
	w.WriteHeader(http.StatusOK)
}

// ActiveStreams handles GET /api/stream/active: live streams and pending
// scheduled records in one listing.
func (h *Handler) ActiveStreams(w http.ResponseWriter, r *http.Request) {
	scheduled, err := h.sched.List(r.Context())
	if err != nil {
		h.log.Error("list scheduled failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, StreamsOverview{
		Active:    h.orch.Active(),
		Scheduled: scheduled,
	})
}

// ListScheduled handles GET /api/stream/scheduled.
func (h *Handler) ListScheduled(w http.ResponseWriter, r *http.Request) {
	recs, err := h.sched.List(r.Context())
	if err != nil {
		h.log.Error("list scheduled failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// UpdateScheduled handles PUT /api/stream/scheduled/{stream_id}. Updates to
// processed records are rejected with 404.
func (h *Handler) UpdateScheduled(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "stream_id")

	var req UpdateScheduledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	kinds, err := parseKinds(req.StorageTypes)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	patch := schedule.Patch{
		SourceURL:    req.URL,
		StorageKinds: kinds,
	}
	if req.Quality != "" {
		patch.Quality = ffmpeg.ParseQuality(req.Quality)
	}
	if req.StartTime != nil {
		patch.StartTime = *req.StartTime
	}

	ok, err := h.sched.Update(r.Context(), streamID, patch)
	if err != nil {
		h.log.Error("update scheduled failed", slog.String("id", streamID), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// CancelScheduled handles DELETE /api/stream/scheduled/{stream_id}.
func (h *Handler) CancelScheduled(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "stream_id")

	ok, err := h.sched.Cancel(r.Context(), streamID)
	if err != nil {
		h.log.Error("cancel scheduled failed", slog.String("id", streamID), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetPlaylist handles GET /api/stream/{stream_id}/{storage}/playlist.m3u8.
func (h *Handler) GetPlaylist(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "stream_id")
	kind, err := storage.ParseKind(chi.URLParam(r, "storage"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if !h.router.Registered(streamID) {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", playlistContentType)
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, h.engine.Render(streamID, kind))
}

// InsertAdvertisement handles POST /api/advertisement/insert. The creative
// arrives as multipart form data: file, streamId, type, startSegment,
// duration.
func (h *Handler) InsertAdvertisement(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxCreativeBytes); err != nil {
		http.Error(w, "invalid multipart body", http.StatusBadRequest)
		return
	}

	streamID := r.FormValue("streamId")
	kind, err := ads.ParseKind(r.FormValue("type"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	startSeq, err := strconv.Atoi(r.FormValue("startSegment"))
	if err != nil || startSeq < 0 {
		http.Error(w, "startSegment must be a non-negative integer", http.StatusBadRequest)
		return
	}
	duration, err := strconv.Atoi(r.FormValue("duration"))
	if err != nil || duration <= 0 {
		http.Error(w, "duration must be a positive integer", http.StatusBadRequest)
		return
	}
	if streamID == "" {
		http.Error(w, "streamId is required", http.StatusBadRequest)
		return
	}

	src, err := h.spoolCreative(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer os.Remove(src)

	err = h.ads.Insert(r.Context(), ads.InsertRequest{
		StreamID:        streamID,
		SourcePath:      src,
		Kind:            kind,
		StartSequence:   startSeq,
		DurationSeconds: duration,
	})
	if err != nil {
		if errors.Is(err, ads.ErrNoSuchStream) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.log.Error("insert advertisement failed",
			slog.String("stream_id", streamID), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

// RemoveAdvertisement handles DELETE /api/advertisement/{stream_id}?from=N&to=M.
func (h *Handler) RemoveAdvertisement(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "stream_id")
	from, errFrom := strconv.Atoi(r.URL.Query().Get("from"))
	to, errTo := strconv.Atoi(r.URL.Query().Get("to"))
	if errFrom != nil || errTo != nil || from < 0 || to < from {
		http.Error(w, "from and to must be a valid sequence range", http.StatusBadRequest)
		return
	}

	h.ads.Remove(r.Context(), streamID, from, to)
	w.WriteHeader(http.StatusOK)
}

// spoolCreative writes the uploaded file to the uploads directory and returns
// its path.
func (h *Handler) spoolCreative(r *http.Request) (string, error) {
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", fmt.Errorf("file is required")
	}
	defer file.Close()

	if err := os.MkdirAll(h.uploads, 0o755); err != nil {
		return "", err
	}
	dst, err := os.CreateTemp(h.uploads, "creative-*"+filepath.Ext(header.Filename))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}

func parseKinds(names []string) ([]storage.Kind, error) {
	kinds := make([]storage.Kind, 0, len(names))
	for _, name := range names {
		k, err := storage.ParseKind(name)
		if err != nil {
			return nil, fmt.Errorf("storage type %q: %w", name, err)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
