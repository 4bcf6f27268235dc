package playlist

import (
	"fmt"
	"strconv"
	"strings"
)

// SegmentName returns the canonical filename for an ordinary media segment.
func SegmentName(sequence int) string {
	return fmt.Sprintf("segment_%d.ts", sequence)
}

// AdName returns the canonical filename for an advertisement segment.
func AdName(sequence int) string {
	return fmt.Sprintf("advertisement_%d.ts", sequence)
}

// ParseSequence extracts the sequence number from a canonical segment
// filename, "segment_<n>.ts" or "advertisement_<n>.ts". Anything else is an
// error.
func ParseSequence(name string) (int, error) {
	base, ok := strings.CutSuffix(name, ".ts")
	if !ok {
		return 0, fmt.Errorf("not a segment filename: %q", name)
	}
	digits, ok := strings.CutPrefix(base, "segment_")
	if !ok {
		digits, ok = strings.CutPrefix(base, "advertisement_")
	}
	if !ok {
		return 0, fmt.Errorf("not a segment filename: %q", name)
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("bad sequence number in %q", name)
	}
	return n, nil
}
