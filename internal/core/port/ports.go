// Package port provides the behavior interfaces that connect the scheduler
// core to its execution, storage and coordination adapters.
package port

import (
	"context"

	"github.com/taskpilot/taskpilot/internal/core/domain"
)

// Assignment is the contract handed to an executor when a task is dispatched.
// It is a snapshot; executors never touch the live task record.
type Assignment struct {
	TaskID      string          `json:"task_id"`
	Description string          `json:"description"`
	Priority    domain.Priority `json:"priority"`
	Attempt     int             `json:"attempt"`
	WorkerID    string          `json:"worker_id"`
}

// Completion is how an executor reports an outcome back to the scheduler.
type Completion struct {
	TaskID   string `json:"task_id"`
	WorkerID string `json:"worker_id"`
	Success  bool   `json:"success"`
	Result   any    `json:"result,omitempty"`
	Error    string `json:"error,omitempty"`
}

// CompletionSink receives execution outcomes. The scheduler implements it;
// executors call it exactly once per assignment (real or simulated).
type CompletionSink interface {
	ReportCompletion(c Completion)
}

// Executor starts execution of an assignment. Execute must not block on the
// work itself: the outcome arrives asynchronously through the CompletionSink.
type Executor interface {
	Execute(ctx context.Context, a Assignment) error
}

// ArchiveStore persists finalized task records. Writes are best-effort
// write-behind; the in-memory archive stays authoritative for reports.
type ArchiveStore interface {
	Save(ctx context.Context, task *domain.Task) error
	ListRecent(ctx context.Context, limit int) ([]*domain.Task, error)
}

// WorkerDirectory mirrors live worker registrations so other processes can
// observe the worker set (Redis-backed in production).
type WorkerDirectory interface {
	Announce(ctx context.Context, worker *domain.Worker) error
	ListActive(ctx context.Context) ([]*domain.Worker, error)
}
