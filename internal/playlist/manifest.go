package playlist

import (
	"fmt"
	"strings"

	"stream-segmenter/internal/storage"
)

// buildManifest renders the stream's window and advertisement overlay into
// HLS manifest text with the backend's URL scheme. A sequence holding an
// advertisement slot suppresses the ordinary segment line for that slot;
// discontinuity markers appear only at the two boundaries of an ad region,
// never between consecutive chunks of one multi-chunk ad.
func buildManifest(streamID string, st *streamState, backend storage.Backend) string {
	targetDuration := SegmentDuration
	for _, seq := range st.window {
		if slot, ok := st.ads[seq]; ok && slot.duration > targetDuration {
			targetDuration = slot.duration
		}
	}

	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", targetDuration)
	fmt.Fprintf(&b, "#EXT-X-MEDIA-SEQUENCE:%d\n", st.window[0])
	b.WriteString("#EXT-X-DISCONTINUITY-SEQUENCE:0\n")

	inAd := false
	for _, seq := range st.window {
		if slot, ok := st.ads[seq]; ok {
			if !inAd {
				b.WriteString("#EXT-X-DISCONTINUITY\n")
				inAd = true
			}
			fmt.Fprintf(&b, "#EXTINF:%d.0,\n", slot.duration)
			b.WriteString(backend.AdURL(streamID, slot.name))
			b.WriteString("\n")
			continue
		}

		if inAd {
			b.WriteString("#EXT-X-DISCONTINUITY\n")
			inAd = false
		}
		fmt.Fprintf(&b, "#EXTINF:%d.0,\n", SegmentDuration)
		b.WriteString(backend.SegmentURL(streamID, SegmentName(seq)))
		b.WriteString("\n")
	}

	return b.String()
}

// emptyManifest is the valid minimal playlist for a stream with no segments.
func emptyManifest() string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", SegmentDuration)
	b.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")
	b.WriteString("#EXT-X-DISCONTINUITY-SEQUENCE:0\n")
	return b.String()
}
