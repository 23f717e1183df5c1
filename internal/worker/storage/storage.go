package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ecomsync/paysync/internal/domain"
	"github.com/jmoiron/sqlx"
)

// Storage handles all database operations for the worker
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// ClaimJob attempts to claim a sync job using optimistic locking. Exactly
// one worker wins the PENDING to RUNNING transition; everyone else gets
// domain.ErrJobAlreadyClaimed.
func (s *Storage) ClaimJob(ctx context.Context, jobID string) (*domain.SyncJob, error) {
	query := `
		UPDATE sync_jobs
		SET status = $1,
		    updated_at = NOW()
		WHERE job_id = $2
		  AND status = $3
		RETURNING job_id, entry_id, job_type, config_name, created_at
	`

	var job domain.SyncJob
	err := s.db.QueryRowContext(ctx, query, domain.JobStatusRunning, jobID, domain.JobStatusPending).Scan(
		&job.JobID,
		&job.EntryID,
		&job.JobType,
		&job.ConfigName,
		&job.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("Failed to claim job - already claimed or not found",
				slog.String("job_id", jobID),
			)
			return nil, domain.ErrJobAlreadyClaimed
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	job.Status = domain.JobStatusRunning

	s.logger.Info("Job claimed successfully",
		slog.String("job_id", jobID),
		slog.String("job_type", job.JobType),
		slog.String("entry_id", job.EntryID),
	)

	return &job, nil
}

// CompleteSyncJob records the batch outcome and clears the owning entry's
// in-progress flag in one transaction, so the terminal state and the
// released lock are never observed apart.
func (s *Storage) CompleteSyncJob(ctx context.Context, jobID, entryID, status string, succeeded, failed int, errorMsg string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	jobQuery := `
		UPDATE sync_jobs
		SET status = $1,
		    succeeded = $2,
		    failed = $3,
		    error_message = $4,
		    updated_at = NOW()
		WHERE job_id = $5
	`

	if _, err := tx.ExecContext(ctx, jobQuery, status, succeeded, failed, errorMsg, jobID); err != nil {
		return fmt.Errorf("failed to update sync job: %w", err)
	}

	entryQuery := `
		UPDATE payment_entries
		SET in_progress = FALSE,
		    updated_at = NOW()
		WHERE entry_id = $1
	`

	if _, err := tx.ExecContext(ctx, entryQuery, entryID); err != nil {
		return fmt.Errorf("failed to clear in_progress: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit job completion: %w", err)
	}

	s.logger.Info("Job completed",
		slog.String("job_id", jobID),
		slog.String("status", status),
		slog.Int("succeeded", succeeded),
		slog.Int("failed", failed),
	)

	return nil
}

// EntryItems loads the settlement rows of one payment entry.
func (s *Storage) EntryItems(ctx context.Context, entryID string) ([]domain.PaymentItem, error) {
	query := `
		SELECT item_id, entry_id, order_id, transaction_type, total,
		       ready_to_process, sales_invoice, customer
		FROM payment_entry_items
		WHERE entry_id = $1
		ORDER BY item_id
	`

	var items []domain.PaymentItem
	if err := s.db.SelectContext(ctx, &items, query, entryID); err != nil {
		return nil, fmt.Errorf("failed to get entry items: %w", err)
	}

	return items, nil
}

// InvoiceByOrderID resolves the submitted sales invoice and its customer for
// an order. Returns sql.ErrNoRows wrapped when no invoice exists yet.
func (s *Storage) InvoiceByOrderID(ctx context.Context, orderID string) (invoice, customer string, err error) {
	query := `
		SELECT invoice_id, customer
		FROM sales_invoices
		WHERE order_id = $1
		  AND docstatus = 1
		ORDER BY created_at DESC
		LIMIT 1
	`

	row := s.db.QueryRowContext(ctx, query, orderID)
	if err := row.Scan(&invoice, &customer); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", fmt.Errorf("no submitted invoice for order %s: %w", orderID, err)
		}
		return "", "", fmt.Errorf("failed to resolve invoice: %w", err)
	}

	return invoice, customer, nil
}

// MarkItemReady writes the resolved invoice details onto every settlement
// row carrying the order ID and flips ready_to_process.
func (s *Storage) MarkItemReady(ctx context.Context, entryID, orderID, invoice, customer string) error {
	query := `
		UPDATE payment_entry_items
		SET ready_to_process = TRUE,
		    sales_invoice = $1,
		    customer = $2
		WHERE entry_id = $3
		  AND order_id = $4
	`

	if _, err := s.db.ExecContext(ctx, query, invoice, customer, entryID, orderID); err != nil {
		return fmt.Errorf("failed to mark item ready: %w", err)
	}

	return nil
}

// SaveFetchedOrder upserts the order state pulled from the marketplace.
func (s *Storage) SaveFetchedOrder(ctx context.Context, order *domain.FetchedOrder) error {
	query := `
		INSERT INTO fetched_orders (order_id, status, purchase_date, payload, fetched_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (order_id) DO UPDATE
		SET status = EXCLUDED.status,
		    purchase_date = EXCLUDED.purchase_date,
		    payload = EXCLUDED.payload,
		    fetched_at = NOW()
	`

	if _, err := s.db.ExecContext(ctx, query, order.OrderID, order.Status, order.PurchaseDate, order.Payload); err != nil {
		return fmt.Errorf("failed to save fetched order: %w", err)
	}

	return nil
}

// SaveFailedSyncRecord records an order the marketplace could not deliver so
// operators can retry it later. Duplicate order IDs update the existing
// record instead of stacking rows.
func (s *Storage) SaveFailedSyncRecord(ctx context.Context, orderID, lastError string) error {
	query := `
		INSERT INTO failed_sync_records (record_id, order_id, synced, last_error, created_at, updated_at)
		VALUES (gen_random_uuid(), $1, FALSE, $2, NOW(), NOW())
		ON CONFLICT (order_id) DO UPDATE
		SET synced = FALSE,
		    last_error = EXCLUDED.last_error,
		    updated_at = NOW()
	`

	if _, err := s.db.ExecContext(ctx, query, orderID, lastError); err != nil {
		return fmt.Errorf("failed to save failed sync record: %w", err)
	}

	return nil
}

// ClearInProgress unconditionally clears the entry's in-progress flag.
func (s *Storage) ClearInProgress(ctx context.Context, entryID string) error {
	query := `
		UPDATE payment_entries
		SET in_progress = FALSE,
		    updated_at = NOW()
		WHERE entry_id = $1
	`

	if _, err := s.db.ExecContext(ctx, query, entryID); err != nil {
		return fmt.Errorf("failed to clear in_progress: %w", err)
	}

	return nil
}
