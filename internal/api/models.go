package api

import (
	"time"

	"stream-segmenter/internal/ffmpeg"
	"stream-segmenter/internal/schedule"
)

// WatermarkRequest is the optional watermark block of a start request. An
// image path takes precedence over text when both are given.
type WatermarkRequest struct {
	ImagePath string  `json:"imagePath,omitempty"`
	Text      string  `json:"text,omitempty"`
	Color     string  `json:"color,omitempty"`
	Size      int     `json:"size,omitempty"`
	Opacity   float64 `json:"opacity,omitempty"`
	X         int     `json:"x,omitempty"`
	Y         int     `json:"y,omitempty"`
}

func (w *WatermarkRequest) toFFmpeg() *ffmpeg.Watermark {
	if w == nil {
		return nil
	}
	return &ffmpeg.Watermark{
		ImagePath: w.ImagePath,
		Text:      w.Text,
		Color:     w.Color,
		Size:      w.Size,
		Opacity:   w.Opacity,
		X:         w.X,
		Y:         w.Y,
	}
}

// StartStreamRequest is the body of POST /api/stream/start. A future
// startTime schedules the stream instead of starting it now.
type StartStreamRequest struct {
	URL          string            `json:"url"`
	Quality      string            `json:"quality,omitempty"`
	StorageTypes []string          `json:"storageTypes,omitempty"`
	StartTime    *time.Time        `json:"startTime,omitempty"`
	Watermark    *WatermarkRequest `json:"watermark,omitempty"`
}

// StartStreamResponse answers an immediate start.
type StartStreamResponse struct {
	ID        string   `json:"id"`
	Playlists []string `json:"playlists"`
}

// ScheduledStreamResponse answers a deferred start.
type ScheduledStreamResponse struct {
	ID        string    `json:"id"`
	StartTime time.Time `json:"startTime"`
}

// StreamsOverview answers GET /api/stream/active: live streams with their
// manifest URLs plus the pending scheduled records.
type StreamsOverview struct {
	Active    map[string][]string `json:"active"`
	Scheduled []schedule.Record   `json:"scheduled"`
}

// UpdateScheduledRequest is the body of PUT /api/stream/scheduled/{id}.
// Absent fields are left unchanged.
type UpdateScheduledRequest struct {
	URL          string     `json:"url,omitempty"`
	Quality      string     `json:"quality,omitempty"`
	StorageTypes []string   `json:"storageTypes,omitempty"`
	StartTime    *time.Time `json:"startTime,omitempty"`
}
