package schedule

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"stream-segmenter/internal/platform/metrics"
	"stream-segmenter/internal/stream"
)

// DefaultTickInterval is the period between scans of the schedule store.
const DefaultTickInterval = time.Minute

// Starter abstracts the stream orchestrator's start operation.
type Starter interface {
	Start(ctx context.Context, req stream.StartRequest) (urls []string, id string, err error)
}

// Notifier is told about upcoming scheduled streams. Delivery (email, SMS,
// chat) lives outside the core.
type Notifier interface {
	Notify(rec Record, minutesUntilStart int)
}

// Scheduler polls the shared store, claims due records for this instance,
// and starts them. The claim is best effort: the claim write is persisted
// before the start attempt, and released again on failure so a later tick
// (here or on another instance) can retry. Two instances racing between read
// and claim-write can still both start the same record; exactly-once across
// instances would need a conditional write on the claim field.
type Scheduler struct {
	store      Store
	starter    Starter
	notifier   Notifier
	metrics    *metrics.Metrics
	log        *slog.Logger
	instanceID string

	tickInterval time.Duration
	notifyBefore map[int]bool // minutes-until-start values worth announcing
}

// New returns a Scheduler identified by a hostname-qualified instance id.
// notifier and m may be nil; notifyBefore lists the minutes-until-start
// marks at which the notifier fires.
func New(store Store, starter Starter, notifier Notifier, notifyBefore []int, m *metrics.Metrics, log *slog.Logger) *Scheduler {
	host, err := os.Hostname()
	if err != nil {
		host = "instance"
	}
	marks := make(map[int]bool, len(notifyBefore))
	for _, mnt := range notifyBefore {
		marks[mnt] = true
	}
	return &Scheduler{
		store:        store,
		starter:      starter,
		notifier:     notifier,
		metrics:      m,
		log:          log,
		instanceID:   host + "-" + uuid.NewString(),
		tickInterval: DefaultTickInterval,
		notifyBefore: marks,
	}
}

// InstanceID returns this scheduler's claim identity.
func (s *Scheduler) InstanceID() string {
	return s.instanceID
}

// Schedule persists a new scheduled record, assigning an id when absent and
// resetting the processed and claim fields.
func (s *Scheduler) Schedule(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.Processed = false
	rec.ClaimedBy = ""
	if err := s.store.Put(ctx, rec); err != nil {
		return Record{}, err
	}
	s.log.Info("stream scheduled",
		slog.String("id", rec.ID),
		slog.String("start_time", rec.StartTime.Format(time.RFC3339)))
	return rec, nil
}

// Get returns one scheduled record.
func (s *Scheduler) Get(ctx context.Context, id string) (Record, bool, error) {
	return s.store.Get(ctx, id)
}

// List returns all scheduled records.
func (s *Scheduler) List(ctx context.Context) ([]Record, error) {
	return s.store.List(ctx)
}

// Update applies a partial update to an unprocessed record. It returns false
// when the record does not exist or has already been processed.
func (s *Scheduler) Update(ctx context.Context, id string, patch Patch) (bool, error) {
	rec, ok, err := s.store.Get(ctx, id)
	if err != nil || !ok || rec.Processed {
		return false, err
	}

	if patch.SourceURL != "" {
		rec.SourceURL = patch.SourceURL
	}
	if patch.Quality != "" {
		rec.Quality = patch.Quality
	}
	if !patch.StartTime.IsZero() {
		rec.StartTime = patch.StartTime
	}
	if len(patch.StorageKinds) > 0 {
		rec.StorageKinds = patch.StorageKinds
	}

	if err := s.store.Put(ctx, rec); err != nil {
		return false, err
	}
	s.log.Info("scheduled stream updated", slog.String("id", id))
	return true, nil
}

// Cancel deletes an unprocessed record. It returns false when the record does
// not exist or has already been processed.
func (s *Scheduler) Cancel(ctx context.Context, id string) (bool, error) {
	rec, ok, err := s.store.Get(ctx, id)
	if err != nil || !ok || rec.Processed {
		return false, err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return false, err
	}
	s.log.Info("scheduled stream cancelled", slog.String("id", id))
	return true, nil
}

// Run ticks at the configured interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick scans the store once: claims and starts every due record, and fires
// upcoming-stream notifications. Errors never propagate past Tick; failed
// starts release their claim for a later retry.
func (s *Scheduler) Tick(ctx context.Context) {
	records, err := s.store.List(ctx)
	if err != nil {
		s.log.Error("schedule scan failed", slog.String("error", err.Error()))
		return
	}

	now := time.Now()
	for _, rec := range records {
		if rec.Processed {
			continue
		}
		s.maybeNotify(rec, now)
		if rec.Due(now) {
			s.claimAndStart(ctx, rec)
		}
	}
}

// claimAndStart writes this instance's claim before attempting the start.
// The ordering is deliberate: a crash after the claim write leaves the record
// stuck claimed-but-unstarted, which is accepted over double starts.
func (s *Scheduler) claimAndStart(ctx context.Context, rec Record) {
	rec.ClaimedBy = s.instanceID
	if err := s.store.Put(ctx, rec); err != nil {
		s.log.Error("claim write failed", slog.String("id", rec.ID), slog.String("error", err.Error()))
		return
	}
	if s.metrics != nil {
		s.metrics.IncSchedulerClaims()
	}

	_, _, err := s.starter.Start(ctx, stream.StartRequest{
		ID:           rec.ID,
		SourceURL:    rec.SourceURL,
		Quality:      rec.Quality,
		StorageKinds: rec.StorageKinds,
	})
	if err != nil {
		s.log.Error("scheduled stream failed to start, releasing claim",
			slog.String("id", rec.ID), slog.String("error", err.Error()))
		rec.ClaimedBy = ""
		if err := s.store.Put(ctx, rec); err != nil {
			s.log.Error("claim release failed", slog.String("id", rec.ID), slog.String("error", err.Error()))
		}
		return
	}

	rec.Processed = true
	if err := s.store.Put(ctx, rec); err != nil {
		s.log.Error("processed write failed", slog.String("id", rec.ID), slog.String("error", err.Error()))
		return
	}
	s.log.Info("scheduled stream started", slog.String("id", rec.ID))
}

func (s *Scheduler) maybeNotify(rec Record, now time.Time) {
	if s.notifier == nil || len(s.notifyBefore) == 0 {
		return
	}
	minutes := int(rec.StartTime.Sub(now).Minutes())
	if s.notifyBefore[minutes] {
		s.notifier.Notify(rec, minutes)
	}
}
