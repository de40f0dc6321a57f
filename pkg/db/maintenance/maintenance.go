package maintenance

import (
	"context"
	"log/slog"
	"time"

	"streetroll/pkg/db"
	"streetroll/pkg/store"
)

const lastPruneStateKey = "history_last_pruned"

// minInterval keeps frequent restarts from pruning over and over.
const minInterval = 24 * time.Hour

// Run prunes route history older than retention. It blocks until completion.
// Pruning is skipped if it already ran within the last day.
func Run(ctx context.Context, s store.StateStore, d *db.DB, retention time.Duration) error {
	if retention <= 0 {
		return nil
	}

	if last, ok := s.GetState(ctx, lastPruneStateKey); ok {
		if t, err := time.Parse(time.RFC3339, last); err == nil && time.Since(t) < minInterval {
			slog.Debug("History pruning skipped", "last_run", last)
			return nil
		}
	}

	slog.Info("Starting database maintenance...")
	n, err := d.PruneRuns(retention)
	if err != nil {
		slog.Error("History pruning failed", "error", err)
		return err
	}
	slog.Info("History pruning completed", "removed", n)

	return s.SetState(ctx, lastPruneStateKey, time.Now().UTC().Format(time.RFC3339))
}
