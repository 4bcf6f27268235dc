package playlist

import (
	"strings"
	"testing"

	"stream-segmenter/internal/platform/logger"
	"stream-segmenter/internal/storage"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	local := storage.NewLocal(t.TempDir(), "http://localhost:8080", logger.Nop())
	router := storage.NewRouter([]storage.Backend{local})
	return NewEngine(router, logger.Nop())
}

func TestEngine_window_slides(t *testing.T) {
	e := newTestEngine(t)

	for i := 0; i <= 7; i++ {
		e.AddSegment("s1", i)
	}

	m := e.Render("s1", storage.KindLocal)
	if !strings.Contains(m, "#EXT-X-MEDIA-SEQUENCE:2") {
		t.Errorf("window of 6 over 0..7 should start at 2, got:\n%s", m)
	}
	if strings.Contains(m, "segment_1.ts") {
		t.Errorf("evicted segment still in manifest:\n%s", m)
	}
	if !strings.Contains(m, "segment_7.ts") {
		t.Errorf("newest segment missing from manifest:\n%s", m)
	}
	if got := strings.Count(m, "#EXTINF:"); got != 6 {
		t.Errorf("expected 6 entries, got %d:\n%s", got, m)
	}
}

func TestEngine_AddSegment_duplicate(t *testing.T) {
	e := newTestEngine(t)

	e.AddSegment("s1", 0)
	e.AddSegment("s1", 0)

	m := e.Render("s1", storage.KindLocal)
	if got := strings.Count(m, "segment_0.ts"); got != 1 {
		t.Errorf("duplicate sequence rendered %d times:\n%s", got, m)
	}
}

func TestEngine_Render_empty_stream(t *testing.T) {
	e := newTestEngine(t)

	m := e.Render("missing", storage.KindLocal)
	for _, want := range []string{
		"#EXTM3U",
		"#EXT-X-VERSION:3",
		"#EXT-X-TARGETDURATION:5",
		"#EXT-X-MEDIA-SEQUENCE:0",
		"#EXT-X-DISCONTINUITY-SEQUENCE:0",
	} {
		if !strings.Contains(m, want) {
			t.Errorf("empty manifest missing %q:\n%s", want, m)
		}
	}
	if strings.Contains(m, "#EXTINF") {
		t.Errorf("empty manifest should have no entries:\n%s", m)
	}
}

func TestAdChunkDurations(t *testing.T) {
	cases := []struct {
		total int
		want  []int
	}{
		{total: 5, want: []int{5}},
		{total: 12, want: []int{5, 5, 2}},
		{total: 3, want: []int{3}},
		{total: 10, want: []int{5, 5}},
		{total: 0, want: nil},
	}
	for _, tc := range cases {
		got := AdChunkDurations(tc.total)
		if len(got) != len(tc.want) {
			t.Errorf("AdChunkDurations(%d) = %v, want %v", tc.total, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("AdChunkDurations(%d) = %v, want %v", tc.total, got, tc.want)
				break
			}
		}
	}
}

func TestEngine_advertisement_splice(t *testing.T) {
	e := newTestEngine(t)

	for i := 0; i <= 5; i++ {
		e.AddSegment("s1", i)
	}
	// 12s ad occupies sequences 3, 4, 5 as chunks 5+5+2.
	e.RegisterAdvertisement("s1", 3, t.TempDir(), 12)

	m := e.Render("s1", storage.KindLocal)

	if got := strings.Count(m, "#EXT-X-DISCONTINUITY\n"); got != 1 {
		t.Errorf("ad at tail of window should emit 1 discontinuity, got %d:\n%s", got, m)
	}
	for _, want := range []string{
		"advertisement_3.ts",
		"advertisement_4.ts",
		"advertisement_5.ts",
		"#EXTINF:2.0,",
	} {
		if !strings.Contains(m, want) {
			t.Errorf("manifest missing %q:\n%s", want, m)
		}
	}
	if strings.Contains(m, "segment_3.ts") || strings.Contains(m, "segment_4.ts") {
		t.Errorf("ad slots should suppress ordinary segment lines:\n%s", m)
	}
}

func TestEngine_advertisement_mid_window_boundaries(t *testing.T) {
	e := newTestEngine(t)

	for i := 0; i <= 5; i++ {
		e.AddSegment("s1", i)
	}
	e.RegisterAdvertisement("s1", 2, t.TempDir(), 10)

	m := e.Render("s1", storage.KindLocal)
	if got := strings.Count(m, "#EXT-X-DISCONTINUITY\n"); got != 2 {
		t.Errorf("mid-window ad should emit entry and exit discontinuities, got %d:\n%s", got, m)
	}

	// No marker between the two chunks of one region.
	idx := strings.Index(m, "advertisement_2.ts")
	rest := m[idx:]
	if between := rest[:strings.Index(rest, "advertisement_3.ts")]; strings.Contains(between, "#EXT-X-DISCONTINUITY\n") {
		t.Errorf("discontinuity between consecutive chunks of one ad:\n%s", m)
	}
}

func TestEngine_RemoveAdvertisement_restores_segments(t *testing.T) {
	e := newTestEngine(t)

	for i := 0; i <= 5; i++ {
		e.AddSegment("s1", i)
	}
	e.RegisterAdvertisement("s1", 2, t.TempDir(), 10)
	e.RemoveAdvertisement("s1", 2, 3)

	m := e.Render("s1", storage.KindLocal)
	if strings.Contains(m, "advertisement_") {
		t.Errorf("removed ad still rendered:\n%s", m)
	}
	if !strings.Contains(m, "segment_2.ts") || !strings.Contains(m, "segment_3.ts") {
		t.Errorf("ordinary segments should return after removal:\n%s", m)
	}
	if strings.Contains(m, "#EXT-X-DISCONTINUITY\n") {
		t.Errorf("no ad region left, no discontinuity expected:\n%s", m)
	}
}

func TestEngine_AdSlots(t *testing.T) {
	e := newTestEngine(t)

	dir := t.TempDir()
	e.AddSegment("s1", 0)
	e.RegisterAdvertisement("s1", 4, dir, 7)

	slots := e.AdSlots("s1", 0, 10)
	if len(slots) != 2 {
		t.Fatalf("expected slots at 4 and 5, got %v", slots)
	}
	if slots[4] != dir || slots[5] != dir {
		t.Errorf("slot dirs wrong: %v", slots)
	}
}

func TestEngine_Clear(t *testing.T) {
	e := newTestEngine(t)

	e.AddSegment("s1", 0)
	e.Clear("s1")

	m := e.Render("s1", storage.KindLocal)
	if strings.Contains(m, "segment_0.ts") {
		t.Errorf("cleared stream should render empty manifest:\n%s", m)
	}
}

func TestParseSequence(t *testing.T) {
	cases := []struct {
		name    string
		want    int
		wantErr bool
	}{
		{name: "segment_0.ts", want: 0},
		{name: "segment_42.ts", want: 42},
		{name: "advertisement_7.ts", want: 7},
		{name: "segment_.ts", wantErr: true},
		{name: "segment_1_2.ts", wantErr: true},
		{name: "segment_3.ts.tmp", wantErr: true},
		{name: "clip_5.ts", wantErr: true},
		{name: "segment_-1.ts", wantErr: true},
		{name: "playlist.m3u8", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseSequence(tc.name)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseSequence(%q): expected error", tc.name)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("ParseSequence(%q) = (%d, %v), want %d", tc.name, got, err, tc.want)
		}
	}
}
