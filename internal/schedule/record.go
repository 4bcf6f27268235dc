package schedule

import (
	"time"

	"stream-segmenter/internal/ffmpeg"
	"stream-segmenter/internal/storage"
)

// Record is a persisted scheduled-stream entry. Records are claimed by one
// worker instance before starting and marked processed afterwards; a
// processed record is terminal.
type Record struct {
	ID           string         `json:"id"`
	SourceURL    string         `json:"url"`
	Quality      ffmpeg.Quality `json:"quality"`
	StorageKinds []storage.Kind `json:"storageTypes"`
	StartTime    time.Time      `json:"startTime"`
	Processed    bool           `json:"processed"`
	ClaimedBy    string         `json:"claimingInstance,omitempty"`
}

// Due reports whether the record's start time has passed and it is still
// eligible for a claim.
func (r Record) Due(now time.Time) bool {
	return !r.Processed && r.ClaimedBy == "" && r.StartTime.Before(now)
}

// Patch is a partial update to a scheduled record; zero-valued fields are
// left unchanged.
type Patch struct {
	SourceURL    string
	Quality      ffmpeg.Quality
	StartTime    time.Time
	StorageKinds []storage.Kind
}
