package domain

import "time"

// Job status constants
const (
	JobStatusPending   = "PENDING"
	JobStatusRunning   = "RUNNING"
	JobStatusCompleted = "COMPLETED"
	JobStatusFailed    = "FAILED"
)

// Sync job types. Each type gets its own progress channel per entry.
const (
	JobTypeMissingOrderSync   = "missing-order-sync"
	JobTypeInvoiceDetailFetch = "invoice-detail-fetch"
)

// SyncJob is one long-running sync operation tied to a payment entry.
type SyncJob struct {
	JobID        string    `db:"job_id"`
	EntryID      string    `db:"entry_id"`
	JobType      string    `db:"job_type"`
	ConfigName   string    `db:"config_name"`
	Status       string    `db:"status"`
	Succeeded    int       `db:"succeeded"`
	Failed       int       `db:"failed"`
	ErrorMessage string    `db:"error_message"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// JobMessage is the sync job message exchanged over RabbitMQ between the
// API service and the worker service.
type JobMessage struct {
	JobID       string `json:"job_id"`
	EntryID     string `json:"entry_id"`
	JobType     string `json:"job_type"`
	DeliveryTag uint64 `json:"-"`
}

// ValidJobType reports whether t is a known sync job type.
func ValidJobType(t string) bool {
	return t == JobTypeMissingOrderSync || t == JobTypeInvoiceDetailFetch
}

// ChannelName returns the progress channel for a job type scoped to one
// payment entry.
func ChannelName(jobType, entryID string) string {
	return "paysync:" + jobType + ":" + entryID
}
