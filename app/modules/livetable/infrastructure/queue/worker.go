package livetablequeue

import (
	"context"
	"log/slog"
	"time"

	"github.com/riverqueue/river"
)

// Persister is the part of the nonce ledger the snapshot job drives.
type Persister interface {
	Persist(ctx context.Context) error
}

// NonceSnapshotWorker writes the nonce map to storage.
type NonceSnapshotWorker struct {
	river.WorkerDefaults[NonceSnapshotJob]
	persister Persister
	logger    *slog.Logger
}

func NewNonceSnapshotWorker(persister Persister, logger *slog.Logger) *NonceSnapshotWorker {
	return &NonceSnapshotWorker{persister: persister, logger: logger}
}

func (w *NonceSnapshotWorker) Work(ctx context.Context, job *river.Job[NonceSnapshotJob]) error {
	start := time.Now()
	if err := w.persister.Persist(ctx); err != nil {
		w.logger.Warn("Nonce snapshot failed",
			slog.Int64("job_id", job.ID),
			slog.Int("attempt", job.Attempt),
			slog.Any("error", err),
		)
		return err
	}
	w.logger.Debug("Nonce snapshot written", slog.Duration("duration", time.Since(start)))
	return nil
}

func (w *NonceSnapshotWorker) Timeout(*river.Job[NonceSnapshotJob]) time.Duration {
	return 30 * time.Second
}
