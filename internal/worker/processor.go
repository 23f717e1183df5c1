package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ecomsync/paysync/internal/domain"
	"github.com/ecomsync/paysync/internal/metrics"
	"github.com/ecomsync/paysync/internal/syncjob"
)

// processJob runs one sync job end to end: claim it, build the dedup'd
// batch from the entry's pending rows, dispatch sequentially with progress
// events, then record the outcome and release the entry in one transaction.
func (w *Worker) processJob(ctx context.Context, msg *domain.JobMessage) error {
	w.logger.Info("Processing job",
		slog.String("job_id", msg.JobID),
		slog.String("job_type", msg.JobType),
		slog.String("worker_id", w.workerID),
	)

	job, err := w.storage.ClaimJob(ctx, msg.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobAlreadyClaimed) {
			w.logger.Warn("Job already claimed, skipping",
				slog.String("job_id", msg.JobID),
			)
			return fmt.Errorf("job already claimed: %w", err)
		}
		return domain.NewRetryableError(fmt.Errorf("failed to claim job: %w", err))
	}

	items, err := w.storage.EntryItems(ctx, job.EntryID)
	if err != nil {
		// The job row is FAILED now, so a redelivery could never re-claim
		// it; don't requeue, the operator re-triggers instead.
		w.failJob(ctx, job, fmt.Sprintf("failed to load entry items: %s", err.Error()))
		return fmt.Errorf("failed to load entry items: %w", err)
	}

	candidates := make([]syncjob.Candidate, len(items))
	for i, item := range items {
		candidates[i] = syncjob.Candidate{
			OrderID:        item.OrderID,
			ReadyToProcess: item.ReadyToProcess,
		}
	}
	batch := syncjob.BuildBatch(candidates, w.maxBatchSize)

	invoker, err := w.invokerFor(job)
	if err != nil {
		w.failJob(ctx, job, err.Error())
		return fmt.Errorf("%w: %v", domain.ErrInvalidMessage, err)
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	channel := domain.ChannelName(job.JobType, job.EntryID)
	gate := newTerminalGate(w.progress)
	dispatcher := syncjob.NewDispatcher(invoker, gate, w.logger)
	outcome := dispatcher.Run(jobCtx, channel, job.ConfigName, batch)

	succeeded := outcome.Succeeded()
	failed := outcome.Failed()

	metrics.AddDispatchItems("success", succeeded)
	metrics.AddDispatchItems("failure", failed)

	if err := jobCtx.Err(); err != nil {
		// The batch was cut short. No terminal progress event was sent and
		// the entry stays locked; only the job row records what happened.
		metrics.IncJob(job.JobType, "timeout")

		w.logger.Error("Job aborted before finishing the batch",
			slog.String("job_id", job.JobID),
			slog.Int("succeeded", succeeded),
			slog.Int("failed", failed),
			slog.String("error", err.Error()),
		)

		updateErr := w.storage.CompleteSyncJob(ctx, job.JobID, job.EntryID, domain.JobStatusFailed,
			succeeded, failed, fmt.Sprintf("batch aborted: %s", err.Error()))
		if updateErr != nil {
			w.logger.Error("Failed to record aborted job",
				slog.String("job_id", job.JobID),
				slog.String("error", updateErr.Error()),
			)
		}

		// ACK anyway: redelivering a half-run batch would re-dispatch items
		// that already succeeded.
		return nil
	}

	metrics.IncJob(job.JobType, "completed")

	if err := w.storage.CompleteSyncJob(ctx, job.JobID, job.EntryID, domain.JobStatusCompleted, succeeded, failed, ""); err != nil {
		w.logger.Error("Failed to record job completion",
			slog.String("job_id", job.JobID),
			slog.String("error", err.Error()),
		)
		// The batch ran; the flag may still be set. Best effort release so
		// the entry is not orphaned behind a transient DB error.
		if clearErr := w.storage.ClearInProgress(ctx, job.EntryID); clearErr != nil {
			w.logger.Error("Failed to clear in-progress flag",
				slog.String("entry_id", job.EntryID),
				slog.String("error", clearErr.Error()),
			)
		}
		w.flushTerminal(ctx, gate, channel)
		return nil
	}

	w.flushTerminal(ctx, gate, channel)

	w.logger.Info("Job completed successfully",
		slog.String("job_id", job.JobID),
		slog.String("job_type", job.JobType),
		slog.Int("batch_size", len(batch)),
		slog.Int("succeeded", succeeded),
		slog.Int("failed", failed),
	)

	return nil
}

// flushTerminal publishes the withheld terminal event. The event stream is
// a liveness signal only, so a publish failure is logged and the job still
// counts as done.
func (w *Worker) flushTerminal(ctx context.Context, gate *terminalGate, channel string) {
	if err := gate.Flush(ctx); err != nil {
		w.logger.Warn("Failed to publish terminal progress event",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

// terminalGate withholds the terminal progress event until the entry's
// in-progress flag has been cleared, so the reload the terminal event
// triggers observes the unlocked entry.
type terminalGate struct {
	inner syncjob.ProgressPublisher

	mu       sync.Mutex
	held     bool
	channel  string
	progress int
	total    int
}

func newTerminalGate(inner syncjob.ProgressPublisher) *terminalGate {
	return &terminalGate{inner: inner}
}

func (g *terminalGate) Publish(ctx context.Context, channel string, progress, total int) error {
	if progress == total {
		g.mu.Lock()
		g.held = true
		g.channel = channel
		g.progress = progress
		g.total = total
		g.mu.Unlock()
		return nil
	}
	return g.inner.Publish(ctx, channel, progress, total)
}

// Flush publishes the held terminal event, if any.
func (g *terminalGate) Flush(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.held {
		return nil
	}
	g.held = false
	return g.inner.Publish(ctx, g.channel, g.progress, g.total)
}

// failJob marks a claimed job FAILED and releases its entry. Used for
// failures before any dispatch happened.
func (w *Worker) failJob(ctx context.Context, job *domain.SyncJob, errorMsg string) {
	metrics.IncJob(job.JobType, "failed")

	if err := w.storage.CompleteSyncJob(ctx, job.JobID, job.EntryID, domain.JobStatusFailed, 0, 0, errorMsg); err != nil {
		w.logger.Error("Failed to mark job failed",
			slog.String("job_id", job.JobID),
			slog.String("error", err.Error()),
		)
	}
}
