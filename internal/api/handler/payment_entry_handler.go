package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ecomsync/paysync/internal/api/dto"
	"github.com/ecomsync/paysync/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// GetPaymentEntry handles GET /api/v1/payment-entries/:entry_id
// Returns the full entry state including items (the reload operation)
func (h *SyncHandler) GetPaymentEntry(c *gin.Context) {
	entryID := c.Param("entry_id")
	if entryID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "entry_id is required",
		})
		return
	}

	entry, err := h.storage.GetPaymentEntry(c.Request.Context(), entryID)
	if err != nil {
		if errors.Is(err, domain.ErrEntryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Payment entry not found",
			})
			return
		}
		h.logger.Error("Failed to get payment entry", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get payment entry",
		})
		return
	}

	c.JSON(http.StatusOK, toPaymentEntryDTO(entry))
}

// SyncMissingOrders handles POST /api/v1/payment-entries/:entry_id/sync-missing-orders
// Starts a background job fetching missing orders from the marketplace
func (h *SyncHandler) SyncMissingOrders(c *gin.Context) {
	h.triggerSync(c, domain.JobTypeMissingOrderSync)
}

// FetchInvoiceDetails handles POST /api/v1/payment-entries/:entry_id/fetch-invoice-details
// Starts a background job resolving invoice and customer details per item
func (h *SyncHandler) FetchInvoiceDetails(c *gin.Context) {
	h.triggerSync(c, domain.JobTypeInvoiceDetailFetch)
}

// triggerSync runs the shared dispatch protocol: load entry, resolve the
// active config, acquire the in-progress flag, publish the job message.
// The guard is released again if the publish fails, so a broker outage
// never leaves the entry locked with no job running.
func (h *SyncHandler) triggerSync(c *gin.Context, jobType string) {
	entryID := c.Param("entry_id")

	h.logger.Info("Sync triggered",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("entry_id", entryID),
		slog.String("job_type", jobType),
	)

	ctx := c.Request.Context()

	if _, err := h.storage.GetPaymentEntry(ctx, entryID); err != nil {
		if errors.Is(err, domain.ErrEntryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Payment entry not found",
			})
			return
		}
		h.logger.Error("Failed to load payment entry", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load payment entry",
		})
		return
	}

	// Configuration absence is terminal: report before any state changes.
	cfg, err := h.storage.ActiveSellerConfig(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNoActiveConfig) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error": "No active seller configuration found",
			})
			return
		}
		h.logger.Error("Failed to resolve seller config", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to resolve seller configuration",
		})
		return
	}

	if err := h.guard.Acquire(ctx, entryID); err != nil {
		if errors.Is(err, domain.ErrSyncInProgress) {
			c.JSON(http.StatusConflict, gin.H{
				"error": "A sync is already in progress for this entry",
			})
			return
		}
		h.logger.Error("Failed to acquire in-progress flag", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to acquire in-progress flag",
		})
		return
	}

	now := time.Now()
	job := &domain.SyncJob{
		JobID:      uuid.New().String(),
		EntryID:    entryID,
		JobType:    jobType,
		ConfigName: cfg.Name,
		Status:     domain.JobStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := h.storage.CreateSyncJob(ctx, job); err != nil {
		h.logger.Error("Failed to create sync job", slog.String("error", err.Error()))
		h.releaseAfterFailure(ctx, entryID)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create sync job",
		})
		return
	}

	msg := domain.JobMessage{
		JobID:   job.JobID,
		EntryID: entryID,
		JobType: jobType,
	}
	body, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to encode job message", slog.String("error", err.Error()))
		h.releaseAfterFailure(ctx, entryID)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to encode job message",
		})
		return
	}

	if err := h.publisher.PublishWithRetry(ctx, body, "application/json"); err != nil {
		h.logger.Error("Failed to publish job message", slog.String("error", err.Error()))
		h.releaseAfterFailure(ctx, entryID)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to publish job message",
		})
		return
	}

	channel := domain.ChannelName(jobType, entryID)
	if err := h.watcher.Watch(ctx, job.JobID, channel, entryID); err != nil {
		// The job is already running; losing the watcher only degrades the
		// progress endpoint, so log and carry on.
		h.logger.Warn("Failed to start progress watcher",
			slog.String("job_id", job.JobID),
			slog.String("error", err.Error()),
		)
	}

	c.JSON(http.StatusAccepted, dto.TriggerSyncResponse{
		JobID:   job.JobID,
		EntryID: entryID,
		JobType: jobType,
		Channel: channel,
		Status:  job.Status,
	})
}

func (h *SyncHandler) releaseAfterFailure(ctx context.Context, entryID string) {
	if err := h.guard.Release(ctx, entryID); err != nil {
		h.logger.Error("Failed to release in-progress flag after dispatch failure",
			slog.String("entry_id", entryID),
			slog.String("error", err.Error()),
		)
	}
}

// ResetInProgress handles POST /api/v1/payment-entries/:entry_id/reset
// Force-clears the in-progress flag of an orphaned entry
func (h *SyncHandler) ResetInProgress(c *gin.Context) {
	entryID := c.Param("entry_id")

	h.logger.Info("Manual in-progress reset",
		slog.String("entry_id", entryID),
		slog.String("ip", c.ClientIP()),
	)

	ctx := c.Request.Context()

	if _, err := h.storage.GetPaymentEntry(ctx, entryID); err != nil {
		if errors.Is(err, domain.ErrEntryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Payment entry not found",
			})
			return
		}
		h.logger.Error("Failed to load payment entry", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load payment entry",
		})
		return
	}

	if err := h.guard.Reset(ctx, entryID); err != nil {
		h.logger.Error("Failed to reset in-progress flag", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to reset in-progress flag",
		})
		return
	}

	// The job the flag belonged to is considered dead; stop watching its
	// channels so the listener and subscription are released too.
	h.watcher.CancelEntry(entryID)

	c.JSON(http.StatusOK, gin.H{
		"entry_id":    entryID,
		"in_progress": false,
	})
}

// JobProgress handles GET /api/v1/jobs/:job_id/progress
// Returns the job status plus the latest progress snapshot when this
// instance is watching the job's channel
func (h *SyncHandler) JobProgress(c *gin.Context) {
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	job, err := h.storage.GetSyncJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Sync job not found",
			})
			return
		}
		h.logger.Error("Failed to get sync job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get sync job",
		})
		return
	}

	resp := dto.JobProgressResponse{
		JobID:     job.JobID,
		Status:    job.Status,
		Succeeded: job.Succeeded,
		Failed:    job.Failed,
	}

	if progress, total, done, ok := h.watcher.Snapshot(jobID); ok {
		resp.Progress = progress
		resp.Total = total
		resp.Done = done
	} else {
		resp.Done = job.Status == domain.JobStatusCompleted || job.Status == domain.JobStatusFailed
	}

	c.JSON(http.StatusOK, resp)
}

func toPaymentEntryDTO(entry *domain.PaymentEntry) dto.PaymentEntryDTO {
	items := make([]dto.PaymentItemDTO, len(entry.Items))
	for i, item := range entry.Items {
		items[i] = dto.PaymentItemDTO{
			ItemID:          item.ItemID,
			OrderID:         item.OrderID,
			TransactionType: item.TransactionType,
			Total:           item.Total,
			ReadyToProcess:  item.ReadyToProcess,
			SalesInvoice:    item.SalesInvoice,
			Customer:        item.Customer,
		}
	}

	return dto.PaymentEntryDTO{
		EntryID:     entry.EntryID,
		PostingDate: entry.PostingDate.Format("2006-01-02"),
		InProgress:  entry.InProgress,
		CreatedAt:   entry.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   entry.UpdatedAt.Format(time.RFC3339),
		Items:       items,
	}
}
