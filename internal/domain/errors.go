package domain

import "errors"

var (
	// ErrEntryNotFound is returned when a payment entry cannot be found in the database
	ErrEntryNotFound = errors.New("payment entry not found")

	// ErrRecordNotFound is returned when a failed-sync record cannot be found
	ErrRecordNotFound = errors.New("failed-sync record not found")

	// ErrJobNotFound is returned when a sync job cannot be found
	ErrJobNotFound = errors.New("sync job not found")

	// ErrJobAlreadyClaimed is returned when attempting to claim a job that's already claimed
	ErrJobAlreadyClaimed = errors.New("job already claimed or not in PENDING status")

	// ErrSyncInProgress is returned when a sync is triggered against an entry
	// whose in-progress flag is still set
	ErrSyncInProgress = errors.New("a sync is already in progress for this entry")

	// ErrNoActiveConfig is returned when no active seller configuration exists
	ErrNoActiveConfig = errors.New("no active seller configuration found")

	// ErrInvalidMessage is returned when a job message JSON is malformed
	ErrInvalidMessage = errors.New("invalid job message")
)

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
