package handler

import (
	"context"
	"log/slog"

	"github.com/ecomsync/paysync/internal/api/storage"
	"github.com/ecomsync/paysync/internal/domain"
	"github.com/ecomsync/paysync/internal/marketplace"
	"github.com/ecomsync/paysync/internal/syncjob"
)

// Store is the persistence surface the handlers depend on. Satisfied by
// *storage.Storage; narrowed to an interface so handlers are testable
// without a database.
type Store interface {
	GetPaymentEntry(ctx context.Context, entryID string) (*domain.PaymentEntry, error)
	AcquireInProgress(ctx context.Context, entryID string) (bool, error)
	ClearInProgress(ctx context.Context, entryID string) error
	ActiveSellerConfig(ctx context.Context) (*domain.SellerConfig, error)
	CreateSyncJob(ctx context.Context, job *domain.SyncJob) error
	GetSyncJob(ctx context.Context, jobID string) (*domain.SyncJob, error)
	GetFailedSyncRecord(ctx context.Context, recordID string) (*domain.FailedSyncRecord, error)
	UpdateFailedSyncRecord(ctx context.Context, recordID string, synced bool, lastError string) error
	SaveFetchedOrder(ctx context.Context, order *domain.FetchedOrder) error
	ListFailedSyncRecords(ctx context.Context, filter storage.RecordFilter) ([]domain.FailedSyncRecord, error)
}

// JobPublisher hands sync job messages to the worker service. Satisfied by
// the RabbitMQ client.
type JobPublisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// OrderFetcher is the synchronous marketplace call used for single-record
// retries. Satisfied by *marketplace.Client.
type OrderFetcher interface {
	GetOrder(ctx context.Context, orderID string) (*marketplace.Order, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger      *slog.Logger
	Storage     Store
	Publisher   JobPublisher
	Marketplace OrderFetcher
	Subscriber  syncjob.Subscriber
}

// SyncHandler handles payment-entry sync and failed-sync-record HTTP requests
type SyncHandler struct {
	logger      *slog.Logger
	storage     Store
	publisher   JobPublisher
	marketplace OrderFetcher
	guard       *syncjob.Guard
	watcher     *ProgressWatcher
}

// NewSyncHandler creates a new SyncHandler instance
func NewSyncHandler(deps *Dependencies) *SyncHandler {
	return &SyncHandler{
		logger:      deps.Logger,
		storage:     deps.Storage,
		publisher:   deps.Publisher,
		marketplace: deps.Marketplace,
		guard:       syncjob.NewGuard(deps.Storage),
		watcher:     NewProgressWatcher(deps.Subscriber, deps.Storage, deps.Logger),
	}
}
