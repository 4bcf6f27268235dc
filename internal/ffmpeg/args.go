package ffmpeg

import (
	"fmt"
	"path/filepath"
	"strconv"
)

// SegmentDuration is the nominal length of every media segment in seconds.
const SegmentDuration = 5

// Watermark describes an overlay burned into the encoded video. ImagePath and
// Text are mutually exclusive; if both are set the image overlay wins.
type Watermark struct {
	ImagePath string
	Text      string
	Color     string
	Size      int
	Opacity   float64
	X         int
	Y         int
}

// StreamArgs builds the ffmpeg argument list for live ingestion: pull the
// source, optionally burn in a watermark, re-encode at the quality's bitrates,
// and emit an unbounded run of 5-second mpegts segments matching outputPattern.
func StreamArgs(sourceURL, outputPattern string, q Quality, wm *Watermark) []string {
	args := []string{"-i", sourceURL}

	if wm != nil {
		switch {
		case wm.ImagePath != "":
			args = append(args,
				"-i", wm.ImagePath,
				"-filter_complex", fmt.Sprintf(
					"[1:v]scale=-1:%d,format=rgba,colorchannelmixer=aa=%g[watermark];[0:v][watermark]overlay=%d:%d",
					wm.Size, wm.Opacity, wm.X, wm.Y),
			)
		case wm.Text != "":
			args = append(args,
				"-vf", fmt.Sprintf("drawtext=text='%s':fontsize=%d:fontcolor=%s@%g:x=%d:y=%d",
					wm.Text, wm.Size, wm.Color, wm.Opacity, wm.X, wm.Y),
			)
		}
	}

	args = append(args,
		"-c:v", "libx264",
		"-b:v", strconv.Itoa(q.VideoBitrateKbps())+"k",
		"-c:a", "aac",
		"-b:a", strconv.Itoa(q.AudioBitrateKbps())+"k",
		"-f", "segment",
		"-segment_time", strconv.Itoa(SegmentDuration),
		"-segment_format", "mpegts",
		"-segment_list_size", "0",
		"-segment_list_flags", "+live",
		"-map", "0",
		outputPattern,
	)

	return args
}

// ImageToVideoArgs builds the argument list that loops a still image into a
// single mpegts clip of the given duration. Dimensions are forced even so
// libx264 accepts arbitrary source images.
func ImageToVideoArgs(imagePath, outputPath string, durationSeconds int) []string {
	return []string{
		"-loop", "1",
		"-i", imagePath,
		"-vf", "scale=trunc(iw/2)*2:trunc(ih/2)*2",
		"-c:v", "libx264",
		"-t", strconv.Itoa(durationSeconds),
		"-pix_fmt", "yuv420p",
		"-f", "mpegts",
		outputPath,
	}
}

// VideoToSegmentsArgs builds the argument list that remuxes an input clip into
// 5-second mpegts segments named advertisement_<n>.ts, numbered from
// startSegment. A positive duration trims the input.
func VideoToSegmentsArgs(videoPath, outputDir string, startSegment, durationSeconds int) []string {
	args := []string{
		"-i", videoPath,
		"-c", "copy",
		"-f", "segment",
		"-segment_time", strconv.Itoa(SegmentDuration),
		"-segment_format", "mpegts",
		"-segment_start_number", strconv.Itoa(startSegment),
	}
	if durationSeconds > 0 {
		args = append(args, "-t", strconv.Itoa(durationSeconds))
	}
	return append(args, filepath.Join(outputDir, "advertisement_%d.ts"))
}
