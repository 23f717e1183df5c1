package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ecomsync/paysync/internal/domain"
	"github.com/ecomsync/paysync/internal/marketplace"
	"github.com/ecomsync/paysync/internal/syncjob"
)

// OrderFetcher pulls one order from the marketplace. Satisfied by
// *marketplace.Client.
type OrderFetcher interface {
	GetOrder(ctx context.Context, orderID string) (*marketplace.Order, error)
}

// invokerFor selects the per-item operation for a job type.
func (w *Worker) invokerFor(job *domain.SyncJob) (syncjob.Invoker, error) {
	switch job.JobType {
	case domain.JobTypeMissingOrderSync:
		return &orderSyncInvoker{
			fetcher: w.marketplace,
			storage: w.storage,
			logger:  w.logger,
		}, nil
	case domain.JobTypeInvoiceDetailFetch:
		return &invoiceDetailInvoker{
			entryID: job.EntryID,
			storage: w.storage,
		}, nil
	default:
		return nil, fmt.Errorf("unknown job type %q", job.JobType)
	}
}

// orderSyncInvoker fetches one order from the marketplace and persists it.
// A fetch failure is captured as a failed-sync record so operators can
// retry it one at a time later.
type orderSyncInvoker struct {
	fetcher OrderFetcher
	storage Store
	logger  *slog.Logger
}

func (inv *orderSyncInvoker) Invoke(ctx context.Context, configName, orderID string) error {
	order, err := inv.fetcher.GetOrder(ctx, orderID)
	if err != nil {
		if saveErr := inv.storage.SaveFailedSyncRecord(ctx, orderID, err.Error()); saveErr != nil {
			inv.logger.Error("Failed to save failed sync record",
				slog.String("order_id", orderID),
				slog.String("error", saveErr.Error()),
			)
		}
		return fmt.Errorf("failed to fetch order %s: %w", orderID, err)
	}

	payload, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to encode order %s: %w", orderID, err)
	}

	fetched := &domain.FetchedOrder{
		OrderID:      order.OrderID,
		Status:       order.Status,
		PurchaseDate: order.PurchaseDate,
		Payload:      string(payload),
	}

	if err := inv.storage.SaveFetchedOrder(ctx, fetched); err != nil {
		return fmt.Errorf("failed to save order %s: %w", orderID, err)
	}

	return nil
}

// invoiceDetailInvoker resolves the submitted sales invoice for one order
// and writes the details back onto the entry's settlement rows.
type invoiceDetailInvoker struct {
	entryID string
	storage Store
}

func (inv *invoiceDetailInvoker) Invoke(ctx context.Context, _ string, orderID string) error {
	invoice, customer, err := inv.storage.InvoiceByOrderID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to resolve invoice for order %s: %w", orderID, err)
	}

	if err := inv.storage.MarkItemReady(ctx, inv.entryID, orderID, invoice, customer); err != nil {
		return fmt.Errorf("failed to mark order %s ready: %w", orderID, err)
	}

	return nil
}
