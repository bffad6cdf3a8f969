// Package domain provides the task, worker and report entities shared by the
// scheduler core and its adapters.
package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrTaskNotFound is returned when a task id matches neither the active
	// set nor the archive.
	ErrTaskNotFound = errors.New("task not found")

	// ErrNotCancelable is returned by Cancel for tasks that are running or
	// already terminal. Only queued and retrying tasks may be cancelled.
	ErrNotCancelable = errors.New("task is not cancelable")

	// ErrSchedulerClosed is returned for operations against a stopped scheduler.
	ErrSchedulerClosed = errors.New("scheduler is closed")

	// ErrWorkerExists is returned when registering a duplicate worker id.
	ErrWorkerExists = errors.New("worker already registered")
)

// ValidationError rejects a malformed submission synchronously, before the
// task enters any queue.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a submission validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
