package storage

import (
	"context"
	"testing"

	"stream-segmenter/internal/platform/logger"
)

// fakeBackend is a no-op Backend of an arbitrary kind.
type fakeBackend struct{ kind Kind }

func (f *fakeBackend) Kind() Kind { return f.kind }
func (f *fakeBackend) Upload(ctx context.Context, localPath, streamID string) (string, error) {
	return "", nil
}
func (f *fakeBackend) DeleteStream(ctx context.Context, streamID string) error { return nil }
func (f *fakeBackend) DeleteSegment(ctx context.Context, streamID, segmentName string) error {
	return nil
}
func (f *fakeBackend) SegmentURL(streamID, segmentName string) string { return "" }
func (f *fakeBackend) AdURL(streamID, segmentName string) string      { return "" }

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	local := NewLocal(t.TempDir(), "http://localhost:8080", logger.Nop())
	return NewRouter([]Backend{local, &fakeBackend{kind: KindS3}, &fakeBackend{kind: KindGCS}})
}

func TestRouter_Resolve_fallback_to_local(t *testing.T) {
	r := newTestRouter(t)

	got := r.Resolve("unknown")
	if len(got) != 1 || got[0].Kind() != KindLocal {
		t.Errorf("unregistered stream should resolve to local only, got %d backends", len(got))
	}
}

func TestRouter_Register_filters_unconfigured(t *testing.T) {
	r := newTestRouter(t)

	// Azure is requested but not configured; it is dropped.
	r.Register("s1", []Kind{KindS3, KindAzure})

	got := r.Resolve("s1")
	if len(got) != 1 || got[0].Kind() != KindS3 {
		t.Errorf("expected s3 only, got %v", kindsOf(got))
	}
}

func TestRouter_Register_empty_selection_falls_back(t *testing.T) {
	r := newTestRouter(t)

	r.Register("s1", []Kind{KindAzure})

	got := r.Resolve("s1")
	if len(got) != 1 || got[0].Kind() != KindLocal {
		t.Errorf("empty selection should fall back to local, got %v", kindsOf(got))
	}
	if !r.Registered("s1") {
		t.Error("stream should still count as registered")
	}
}

func TestRouter_Unregister(t *testing.T) {
	r := newTestRouter(t)

	r.Register("s1", []Kind{KindS3})
	r.Unregister("s1")

	if r.Registered("s1") {
		t.Error("unregistered stream should not be registered")
	}
	got := r.Resolve("s1")
	if len(got) != 1 || got[0].Kind() != KindLocal {
		t.Errorf("expected local fallback after unregister, got %v", kindsOf(got))
	}
}

func TestRouter_Kinds(t *testing.T) {
	r := newTestRouter(t)

	kinds := r.Kinds()
	if len(kinds) != 3 || kinds[0] != KindLocal {
		t.Errorf("unexpected kinds %v", kinds)
	}
}

func kindsOf(backends []Backend) []Kind {
	out := make([]Kind, 0, len(backends))
	for _, b := range backends {
		out = append(out, b.Kind())
	}
	return out
}
