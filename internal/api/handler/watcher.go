package handler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ecomsync/paysync/internal/syncjob"
)

const (
	// defaultWatchTimeout bounds how long a listener may wait for events.
	// An orphaned job (worker died before the terminal event) stops costing
	// a goroutine and a Redis subscription after this long.
	defaultWatchTimeout = 30 * time.Minute

	// defaultSnapshotRetention keeps a finished watch's snapshot around so
	// late progress polls still see the final state.
	defaultSnapshotRetention = time.Minute
)

// jobWatch is one active or recently finished progress watch.
type jobWatch struct {
	entryID  string
	cancel   context.CancelFunc
	progress int
	total    int
	done     bool
}

// ProgressWatcher follows the progress channels of jobs triggered through
// this API instance. It keeps a snapshot per job for the progress endpoint
// and, on the terminal event, reloads the owning entry from the database so
// the served state is authoritative. One listener per job; every watch has
// a bounded lifetime and its subscription is released when the listener
// returns.
type ProgressWatcher struct {
	subscriber syncjob.Subscriber
	storage    Store
	logger     *slog.Logger

	watchTimeout time.Duration
	retention    time.Duration

	mu   sync.Mutex
	jobs map[string]*jobWatch
}

// NewProgressWatcher creates a watcher over the given subscriber.
func NewProgressWatcher(subscriber syncjob.Subscriber, storage Store, logger *slog.Logger) *ProgressWatcher {
	return &ProgressWatcher{
		subscriber:   subscriber,
		storage:      storage,
		logger:       logger,
		watchTimeout: defaultWatchTimeout,
		retention:    defaultSnapshotRetention,
		jobs:         make(map[string]*jobWatch),
	}
}

// Watch starts following the progress channel for a job. Idempotent per job
// ID: a second call for the same job is a no-op, so re-triggering a view
// never stacks duplicate listeners. The watch outlives the request but not
// the watch timeout, and CancelEntry stops it early.
func (w *ProgressWatcher) Watch(ctx context.Context, jobID, channel, entryID string) error {
	watchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.watchTimeout)

	w.mu.Lock()
	if _, ok := w.jobs[jobID]; ok {
		w.mu.Unlock()
		cancel()
		return nil
	}
	w.jobs[jobID] = &jobWatch{entryID: entryID, cancel: cancel}
	w.mu.Unlock()

	events, stop, err := w.subscriber.Subscribe(watchCtx, channel)
	if err != nil {
		cancel()
		w.mu.Lock()
		delete(w.jobs, jobID)
		w.mu.Unlock()
		return err
	}

	listener := syncjob.NewListener(
		func(ev syncjob.Event) {
			w.mu.Lock()
			if watch, ok := w.jobs[jobID]; ok {
				watch.progress = ev.Progress
				watch.total = ev.Total
				watch.done = ev.Done()
			}
			w.mu.Unlock()
		},
		func(ctx context.Context) error {
			// Terminal event: refresh the entry so in_progress and item
			// state reflect the finished job.
			_, err := w.storage.GetPaymentEntry(ctx, entryID)
			return err
		},
		w.logger,
	)

	go func() {
		defer cancel()
		defer stop()
		if err := listener.Run(watchCtx, events); err != nil {
			w.logger.Warn("Progress listener stopped without terminal event",
				slog.String("job_id", jobID),
				slog.String("channel", channel),
				slog.String("error", err.Error()),
			)
		}
		w.expire(jobID)
	}()

	return nil
}

// expire drops the snapshot once the retention window passes.
func (w *ProgressWatcher) expire(jobID string) {
	time.AfterFunc(w.retention, func() {
		w.mu.Lock()
		delete(w.jobs, jobID)
		w.mu.Unlock()
	})
}

// CancelEntry stops every active watch over an entry's channels. Called on
// manual reset so an orphaned listener does not outlive the lock it was
// watching.
func (w *ProgressWatcher) CancelEntry(entryID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, watch := range w.jobs {
		if watch.entryID == entryID {
			watch.cancel()
		}
	}
}

// Snapshot returns the latest observed progress for a job.
func (w *ProgressWatcher) Snapshot(jobID string) (progress, total int, done, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	watch, ok := w.jobs[jobID]
	if !ok {
		return 0, 0, false, false
	}
	return watch.progress, watch.total, watch.done, true
}
