package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/ecomsync/paysync/internal/domain"
	"github.com/ecomsync/paysync/internal/syncjob"
	"github.com/ecomsync/paysync/shared/rabbitmq"
	"github.com/google/uuid"
)

// Store is the persistence surface the worker depends on. Satisfied by
// *storage.Storage.
type Store interface {
	ClaimJob(ctx context.Context, jobID string) (*domain.SyncJob, error)
	CompleteSyncJob(ctx context.Context, jobID, entryID, status string, succeeded, failed int, errorMsg string) error
	EntryItems(ctx context.Context, entryID string) ([]domain.PaymentItem, error)
	InvoiceByOrderID(ctx context.Context, orderID string) (invoice, customer string, err error)
	MarkItemReady(ctx context.Context, entryID, orderID, invoice, customer string) error
	SaveFetchedOrder(ctx context.Context, order *domain.FetchedOrder) error
	SaveFailedSyncRecord(ctx context.Context, orderID, lastError string) error
	ClearInProgress(ctx context.Context, entryID string) error
}

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	Storage       Store
	RabbitClient  *rabbitmq.Client
	Progress      syncjob.ProgressPublisher
	Marketplace   OrderFetcher
	Concurrency   int
	JobTimeout    time.Duration
	MaxBatchSize  int
	PrefetchCount int
	QueueName     string
}

// Worker consumes sync job messages and runs the dispatch protocol for each
// one: claim the job, build the batch, dispatch sequentially with progress
// events, record the outcome, release the entry.
type Worker struct {
	logger            *slog.Logger
	storage           Store
	rabbitClient      *rabbitmq.Client
	progress          syncjob.ProgressPublisher
	marketplace       OrderFetcher
	concurrency       int
	jobTimeout        time.Duration
	maxBatchSize      int
	prefetchCount     int
	rabbitMQQueueName string
	workerID          string
	wg                sync.WaitGroup
	stopChan          chan struct{}
	jobsChan          chan *domain.JobMessage
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "worker"
	}

	return &Worker{
		logger:            cfg.Logger,
		storage:           cfg.Storage,
		rabbitClient:      cfg.RabbitClient,
		progress:          cfg.Progress,
		marketplace:       cfg.Marketplace,
		concurrency:       cfg.Concurrency,
		jobTimeout:        cfg.JobTimeout,
		maxBatchSize:      cfg.MaxBatchSize,
		prefetchCount:     cfg.PrefetchCount,
		rabbitMQQueueName: cfg.QueueName,
		workerID:          fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8]),
		stopChan:          make(chan struct{}),
		jobsChan:          make(chan *domain.JobMessage, cfg.Concurrency),
	}
}

// Start begins consuming and processing jobs. Blocks until ctx is canceled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
		slog.Int("max_batch_size", w.maxBatchSize),
	)

	deliveries, err := w.setupConsumer(ctx)
	if err != nil {
		return fmt.Errorf("failed to setup consumer: %w", err)
	}

	w.spawnWorkerPool(ctx)

	w.startMessageDispatcher(ctx, deliveries)

	w.logger.Info("Worker context canceled, stopping...")
	return nil
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
