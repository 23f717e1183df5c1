package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ecomsync/paysync/internal/domain"
	"github.com/ecomsync/paysync/shared/postgresql"
	"github.com/jmoiron/sqlx"
)

type Storage struct {
	db *sqlx.DB
}

func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{
		db: pg.GetDB(),
	}
}

// GetPaymentEntry loads the full entry state including its items. This is
// the reload operation: callers replace everything they hold for the entry.
func (s *Storage) GetPaymentEntry(ctx context.Context, entryID string) (*domain.PaymentEntry, error) {
	var entry domain.PaymentEntry
	query := `
		SELECT entry_id, posting_date, in_progress, created_at, updated_at
		FROM payment_entries
		WHERE entry_id = $1
	`

	err := s.db.GetContext(ctx, &entry, query, entryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get payment entry: %w", err)
	}

	itemsQuery := `
		SELECT item_id, entry_id, order_id, transaction_type, total,
		       ready_to_process, sales_invoice, customer
		FROM payment_entry_items
		WHERE entry_id = $1
		ORDER BY item_id
	`

	if err := s.db.SelectContext(ctx, &entry.Items, itemsQuery, entryID); err != nil {
		return nil, fmt.Errorf("failed to get payment entry items: %w", err)
	}

	return &entry, nil
}

// AcquireInProgress sets the in-progress flag only when it is currently
// clear. The conditional UPDATE makes the flag acquisition atomic.
func (s *Storage) AcquireInProgress(ctx context.Context, entryID string) (bool, error) {
	query := `
		UPDATE payment_entries
		SET in_progress = TRUE,
		    updated_at = NOW()
		WHERE entry_id = $1
		  AND in_progress = FALSE
	`

	result, err := s.db.ExecContext(ctx, query, entryID)
	if err != nil {
		return false, fmt.Errorf("failed to set in_progress: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// ClearInProgress unconditionally clears the in-progress flag. Used both for
// normal release and the manual reset of orphaned entries.
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

// ActiveSellerConfig resolves the effective target configuration: the most
// recently modified active row. Absence is terminal for any dispatch.
func (s *Storage) ActiveSellerConfig(ctx context.Context) (*domain.SellerConfig, error) {
	var cfg domain.SellerConfig
	query := `
		SELECT name, is_active, modified_at
		FROM seller_configs
		WHERE is_active = TRUE
		ORDER BY modified_at DESC
		LIMIT 1
	`

	err := s.db.GetContext(ctx, &cfg, query)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNoActiveConfig
		}
		return nil, fmt.Errorf("failed to get active seller config: %w", err)
	}

	return &cfg, nil
}

func (s *Storage) CreateSyncJob(ctx context.Context, job *domain.SyncJob) error {
	query := `
		INSERT INTO sync_jobs (
			job_id, entry_id, job_type, config_name,
			status, succeeded, failed, error_message, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, 0, 0, '', $6, $7
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		job.JobID,
		job.EntryID,
		job.JobType,
		job.ConfigName,
		job.Status,
		job.CreatedAt,
		job.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create sync job: %w", err)
	}

	return nil
}

func (s *Storage) GetSyncJob(ctx context.Context, jobID string) (*domain.SyncJob, error) {
	var job domain.SyncJob
	query := `
		SELECT job_id, entry_id, job_type, config_name,
		       status, succeeded, failed, error_message, created_at, updated_at
		FROM sync_jobs
		WHERE job_id = $1
	`

	err := s.db.GetContext(ctx, &job, query, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get sync job: %w", err)
	}

	return &job, nil
}

func (s *Storage) GetFailedSyncRecord(ctx context.Context, recordID string) (*domain.FailedSyncRecord, error) {
	var record domain.FailedSyncRecord
	query := `
		SELECT record_id, order_id, payload, replaced_order, synced,
		       last_error, created_at, updated_at
		FROM failed_sync_records
		WHERE record_id = $1
	`

	err := s.db.GetContext(ctx, &record, query, recordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get failed-sync record: %w", err)
	}

	return &record, nil
}

// UpdateFailedSyncRecord stores the outcome of a manual retry.
func (s *Storage) UpdateFailedSyncRecord(ctx context.Context, recordID string, synced bool, lastError string) error {
	query := `
		UPDATE failed_sync_records
		SET synced = $1,
		    last_error = $2,
		    updated_at = NOW()
		WHERE record_id = $3
	`

	if _, err := s.db.ExecContext(ctx, query, synced, lastError, recordID); err != nil {
		return fmt.Errorf("failed to update failed-sync record: %w", err)
	}

	return nil
}

// SaveFetchedOrder upserts the order state pulled during a manual retry.
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

type RecordFilter struct {
	Synced   *bool
	PageSize int
	Cursor   *RecordCursor
}

type RecordCursor struct {
	CreatedAt time.Time
	RecordID  string
}

func (s *Storage) ListFailedSyncRecords(ctx context.Context, filter RecordFilter) ([]domain.FailedSyncRecord, error) {
	query := `
		SELECT record_id, order_id, payload, replaced_order, synced,
		       last_error, created_at, updated_at
		FROM failed_sync_records
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if filter.Synced != nil {
		query += fmt.Sprintf(" AND synced = $%d", argIdx)
		args = append(args, *filter.Synced)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, record_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.RecordID)
		argIdx += 2
	}

	// Order by created_at DESC, record_id DESC for consistent pagination
	query += " ORDER BY created_at DESC, record_id DESC"

	// Fetch one extra to determine if there are more results
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var records []domain.FailedSyncRecord
	if err := s.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list failed-sync records: %w", err)
	}

	return records, nil
}
