package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"stream-segmenter/internal/platform/logger"
	"stream-segmenter/internal/storage"
	"stream-segmenter/internal/stream"
)

// fakeStarter records start requests and can be told to fail.
type fakeStarter struct {
	mu       sync.Mutex
	requests []stream.StartRequest
	fail     error
}

func (f *fakeStarter) Start(ctx context.Context, req stream.StartRequest) ([]string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, "", f.fail
	}
	f.requests = append(f.requests, req)
	return []string{"/api/stream/" + req.ID + "/local/playlist.m3u8"}, req.ID, nil
}

func (f *fakeStarter) started() []stream.StartRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]stream.StartRequest(nil), f.requests...)
}

// recordingNotifier captures Notify calls.
type recordingNotifier struct {
	mu    sync.Mutex
	calls []int
}

func (n *recordingNotifier) Notify(rec Record, minutesUntilStart int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, minutesUntilStart)
}

func newTestStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStoreWithClient(client)
}

func TestScheduler_Schedule_assigns_id(t *testing.T) {
	store := newTestStore(t)
	s := New(store, &fakeStarter{}, nil, nil, nil, logger.Nop())

	rec, err := s.Schedule(context.Background(), Record{
		SourceURL: "rtmp://src",
		StartTime: time.Now().Add(time.Hour),
		Processed: true, // must be reset
		ClaimedBy: "stale",
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if rec.ID == "" {
		t.Fatal("expected assigned id")
	}

	got, ok, err := s.Get(context.Background(), rec.ID)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.Processed || got.ClaimedBy != "" {
		t.Errorf("Schedule must reset processed and claim fields: %+v", got)
	}
	if got.SourceURL != "rtmp://src" {
		t.Errorf("round-trip lost url: %+v", got)
	}
}

func TestScheduler_Tick_starts_due_record_once(t *testing.T) {
	store := newTestStore(t)
	starter := &fakeStarter{}
	s := New(store, starter, nil, nil, nil, logger.Nop())

	rec, err := s.Schedule(context.Background(), Record{
		SourceURL:    "rtmp://src",
		StorageKinds: []storage.Kind{storage.KindS3},
		StartTime:    time.Now().Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	s.Tick(context.Background())
	s.Tick(context.Background())

	started := starter.started()
	if len(started) != 1 {
		t.Fatalf("due record should start exactly once, got %d", len(started))
	}
	if started[0].ID != rec.ID || started[0].SourceURL != "rtmp://src" {
		t.Errorf("start request does not match record: %+v", started[0])
	}
	if len(started[0].StorageKinds) != 1 || started[0].StorageKinds[0] != storage.KindS3 {
		t.Errorf("storage kinds lost: %+v", started[0])
	}

	got, _, _ := s.Get(context.Background(), rec.ID)
	if !got.Processed {
		t.Error("started record should be marked processed")
	}
	if got.ClaimedBy != s.InstanceID() {
		t.Errorf("claim should name this instance, got %q", got.ClaimedBy)
	}
}

func TestScheduler_Tick_releases_claim_on_start_failure(t *testing.T) {
	store := newTestStore(t)
	starter := &fakeStarter{fail: errors.New("source unreachable")}
	s := New(store, starter, nil, nil, nil, logger.Nop())

	rec, err := s.Schedule(context.Background(), Record{
		SourceURL: "rtmp://src",
		StartTime: time.Now().Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	s.Tick(context.Background())

	got, _, _ := s.Get(context.Background(), rec.ID)
	if got.Processed {
		t.Error("failed start must not mark the record processed")
	}
	if got.ClaimedBy != "" {
		t.Errorf("failed start must release the claim, got %q", got.ClaimedBy)
	}

	// Once the starter recovers, the next tick picks the record up again.
	starter.fail = nil
	s.Tick(context.Background())
	if len(starter.started()) != 1 {
		t.Error("released record should be retried on a later tick")
	}
}

func TestScheduler_Tick_ignores_future_records(t *testing.T) {
	store := newTestStore(t)
	starter := &fakeStarter{}
	s := New(store, starter, nil, nil, nil, logger.Nop())

	if _, err := s.Schedule(context.Background(), Record{
		SourceURL: "rtmp://src",
		StartTime: time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	s.Tick(context.Background())
	if len(starter.started()) != 0 {
		t.Error("future record must not start")
	}
}

func TestScheduler_Tick_notifies_at_marks(t *testing.T) {
	store := newTestStore(t)
	notifier := &recordingNotifier{}
	s := New(store, &fakeStarter{}, notifier, []int{10}, nil, logger.Nop())

	if _, err := s.Schedule(context.Background(), Record{
		SourceURL: "rtmp://src",
		StartTime: time.Now().Add(10*time.Minute + 30*time.Second),
	}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	s.Tick(context.Background())

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.calls) != 1 || notifier.calls[0] != 10 {
		t.Errorf("expected one notification at the 10 minute mark, got %v", notifier.calls)
	}
}

func TestScheduler_Update(t *testing.T) {
	store := newTestStore(t)
	s := New(store, &fakeStarter{}, nil, nil, nil, logger.Nop())

	rec, err := s.Schedule(context.Background(), Record{
		SourceURL: "rtmp://old",
		StartTime: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	later := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	ok, err := s.Update(context.Background(), rec.ID, Patch{SourceURL: "rtmp://new", StartTime: later})
	if err != nil || !ok {
		t.Fatalf("Update: ok=%v err=%v", ok, err)
	}

	got, _, _ := s.Get(context.Background(), rec.ID)
	if got.SourceURL != "rtmp://new" || !got.StartTime.Equal(later) {
		t.Errorf("update not applied: %+v", got)
	}
}

func TestScheduler_Update_rejects_processed(t *testing.T) {
	store := newTestStore(t)
	s := New(store, &fakeStarter{}, nil, nil, nil, logger.Nop())

	rec, _ := s.Schedule(context.Background(), Record{
		SourceURL: "rtmp://src",
		StartTime: time.Now().Add(-time.Minute),
	})
	s.Tick(context.Background())

	ok, err := s.Update(context.Background(), rec.ID, Patch{SourceURL: "rtmp://new"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if ok {
		t.Error("processed record must not be updatable")
	}
}

func TestScheduler_Cancel(t *testing.T) {
	store := newTestStore(t)
	s := New(store, &fakeStarter{}, nil, nil, nil, logger.Nop())

	rec, _ := s.Schedule(context.Background(), Record{
		SourceURL: "rtmp://src",
		StartTime: time.Now().Add(time.Hour),
	})

	ok, err := s.Cancel(context.Background(), rec.ID)
	if err != nil || !ok {
		t.Fatalf("Cancel: ok=%v err=%v", ok, err)
	}
	if _, found, _ := s.Get(context.Background(), rec.ID); found {
		t.Error("cancelled record should be gone")
	}

	ok, err = s.Cancel(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("Cancel missing: %v", err)
	}
	if ok {
		t.Error("cancelling a missing record should report false")
	}
}
