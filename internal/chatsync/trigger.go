package chatsync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	syncerrors "github.com/arbob/session-sync/internal/errors"
)

// Trigger runs a sync on behalf of an automatic source (timer, watcher).
// Requests that arrive while a cycle runs, while disabled, or before
// setup are dropped quietly. Failures are already reflected in Status.
func (s *Syncer) Trigger(ctx context.Context, reason string) {
	_, err := s.Sync(ctx)

	switch {
	case err == nil:
	case errors.Is(err, syncerrors.ErrSyncInProgress),
		errors.Is(err, syncerrors.ErrSyncDisabled),
		errors.Is(err, syncerrors.ErrSetupRequired):
		s.logger.Debug("triggered sync skipped", slog.String("reason", reason), slog.String("cause", err.Error()))
	default:
		s.logger.Warn("triggered sync failed", slog.String("reason", reason), slog.String("error", err.Error()))
	}
}

// RunPeriodic triggers a sync every interval until ctx is done. A tick
// that fires while a cycle is still running is a no-op.
func (s *Syncer) RunPeriodic(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Trigger(ctx, "timer")
		}
	}
}
