package ffmpeg

import "strings"

// Quality selects the encoder bitrate pair for a stream.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// ParseQuality maps a request string onto a Quality, defaulting to low.
func ParseQuality(s string) Quality {
	switch strings.ToLower(s) {
	case string(QualityMedium):
		return QualityMedium
	case string(QualityHigh):
		return QualityHigh
	default:
		return QualityLow
	}
}

// VideoBitrateKbps returns the target video bitrate in kbit/s.
func (q Quality) VideoBitrateKbps() int {
	switch q {
	case QualityHigh:
		return 4500
	case QualityMedium:
		return 2500
	default:
		return 1000
	}
}

// AudioBitrateKbps returns the target audio bitrate in kbit/s.
func (q Quality) AudioBitrateKbps() int {
	switch q {
	case QualityHigh:
		return 192
	case QualityMedium:
		return 128
	default:
		return 96
	}
}
