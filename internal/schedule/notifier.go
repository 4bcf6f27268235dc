package schedule

import "log/slog"

// LogNotifier announces upcoming scheduled streams on the structured log.
// Real delivery channels implement Notifier outside the core.
type LogNotifier struct {
	Log *slog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(rec Record, minutesUntilStart int) {
	n.Log.Info("scheduled stream starting soon",
		slog.String("id", rec.ID),
		slog.String("url", rec.SourceURL),
		slog.Int("minutes_until_start", minutesUntilStart))
}
