package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ecomsync/paysync/internal/api/dto"
	"github.com/ecomsync/paysync/internal/api/storage"
	"github.com/ecomsync/paysync/internal/domain"
	"github.com/gin-gonic/gin"
)

const (
	defaultRecordPageSize = 20
	maxRecordPageSize     = 100
)

// ListFailedSyncRecords handles GET /api/v1/failed-sync-records
// Supports synced filtering and cursor pagination
func (h *SyncHandler) ListFailedSyncRecords(c *gin.Context) {
	var req dto.ListFailedSyncRecordsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultRecordPageSize
	}
	if req.PageSize > maxRecordPageSize {
		req.PageSize = maxRecordPageSize
	}

	filter := storage.RecordFilter{
		PageSize: req.PageSize,
	}

	switch req.Synced {
	case "":
	case "true":
		synced := true
		filter.Synced = &synced
	case "false":
		synced := false
		filter.Synced = &synced
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "synced must be true or false",
		})
		return
	}

	cursor, err := DecodeRecordCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}
	filter.Cursor = cursor

	records, err := h.storage.ListFailedSyncRecords(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list failed sync records", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list failed sync records",
		})
		return
	}

	resp := dto.ListFailedSyncRecordsResponse{
		Records: make([]dto.FailedSyncRecordDTO, 0, len(records)),
	}

	hasMore := len(records) > req.PageSize
	if hasMore {
		records = records[:req.PageSize]
	}

	for _, record := range records {
		resp.Records = append(resp.Records, toFailedSyncRecordDTO(&record))
	}

	if hasMore {
		last := records[len(records)-1]
		nextCursor, err := EncodeRecordCursor(&storage.RecordCursor{
			CreatedAt: last.CreatedAt,
			RecordID:  last.RecordID,
		})
		if err != nil {
			h.logger.Error("Failed to encode cursor", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to encode cursor",
			})
			return
		}
		resp.NextCursor = nextCursor
	}

	c.JSON(http.StatusOK, resp)
}

// RetryFailedSyncRecord handles POST /api/v1/failed-sync-records/:record_id/retry
// Re-fetches the order synchronously; the record keeps the last error when
// the fetch fails again
func (h *SyncHandler) RetryFailedSyncRecord(c *gin.Context) {
	recordID := c.Param("record_id")

	h.logger.Info("Retrying failed sync record",
		slog.String("record_id", recordID),
	)

	ctx := c.Request.Context()

	record, err := h.storage.GetFailedSyncRecord(ctx, recordID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Failed sync record not found",
			})
			return
		}
		h.logger.Error("Failed to get failed sync record", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get failed sync record",
		})
		return
	}

	if record.Synced {
		c.JSON(http.StatusOK, dto.RetryRecordResponse{
			RecordID: record.RecordID,
			OrderID:  record.OrderID,
			Synced:   true,
		})
		return
	}

	if _, err := h.storage.ActiveSellerConfig(ctx); err != nil {
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

	orderID := record.OrderID
	if record.ReplacedOrder != "" {
		orderID = record.ReplacedOrder
	}

	order, err := h.marketplace.GetOrder(ctx, orderID)
	if err != nil {
		h.logger.Warn("Retry fetch failed",
			slog.String("record_id", record.RecordID),
			slog.String("order_id", orderID),
			slog.String("error", err.Error()),
		)

		if updateErr := h.storage.UpdateFailedSyncRecord(ctx, record.RecordID, false, err.Error()); updateErr != nil {
			h.logger.Error("Failed to record retry error", slog.String("error", updateErr.Error()))
		}

		c.JSON(http.StatusBadGateway, dto.RetryRecordResponse{
			RecordID: record.RecordID,
			OrderID:  orderID,
			Synced:   false,
			Error:    err.Error(),
		})
		return
	}

	// The record exists because the fetch-and-persist failed. Store the
	// order first; the record only turns synced once the row really exists.
	payload, err := json.Marshal(order)
	if err != nil {
		h.logger.Error("Failed to encode fetched order", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to encode fetched order",
		})
		return
	}

	fetched := &domain.FetchedOrder{
		OrderID:      order.OrderID,
		Status:       order.Status,
		PurchaseDate: order.PurchaseDate,
		Payload:      string(payload),
	}

	if err := h.storage.SaveFetchedOrder(ctx, fetched); err != nil {
		h.logger.Error("Failed to save fetched order", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to save fetched order",
		})
		return
	}

	if err := h.storage.UpdateFailedSyncRecord(ctx, record.RecordID, true, ""); err != nil {
		h.logger.Error("Failed to mark record synced", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to mark record synced",
		})
		return
	}

	c.JSON(http.StatusOK, dto.RetryRecordResponse{
		RecordID: record.RecordID,
		OrderID:  orderID,
		Synced:   true,
	})
}

func toFailedSyncRecordDTO(record *domain.FailedSyncRecord) dto.FailedSyncRecordDTO {
	return dto.FailedSyncRecordDTO{
		RecordID:      record.RecordID,
		OrderID:       record.OrderID,
		ReplacedOrder: record.ReplacedOrder,
		Synced:        record.Synced,
		LastError:     record.LastError,
		CreatedAt:     record.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     record.UpdatedAt.Format(time.RFC3339),
	}
}
