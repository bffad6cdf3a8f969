package domain

import (
	"time"
)

type TaskStatus string

const (
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusRetrying  TaskStatus = "retrying"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// Phase is one audit-trail entry on a task. Appended only, never mutated.
type Phase struct {
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Worker      string    `json:"worker,omitempty"`
}

const (
	PhaseInitialization = "initialization"
	PhaseExecution      = "task_execution"
	PhaseRetry          = "retry"
	PhaseTimeout        = "timeout"
	PhaseCancellation   = "cancellation"
	PhaseFinalization   = "finalization"
)

// ResourceUsage accumulates per-resource-kind counters.
type ResourceUsage struct {
	Calls               int           `json:"calls"`
	TotalSize           int64         `json:"total_size"`
	TotalProcessingTime time.Duration `json:"total_processing_time"`
}

// TaskError is one entry in a task's error trail.
type TaskError struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Worker    string    `json:"worker,omitempty"`
	Phase     string    `json:"phase,omitempty"`
}

// Task is the unit of work tracked through queued -> running -> (retrying) ->
// completed/failed/cancelled. The scheduler owns the record exclusively while
// it is non-terminal; after finalization it is immutable.
type Task struct {
	ID                   string                    `json:"id"`
	Description          string                    `json:"description"`
	Priority             Priority                  `json:"priority"`
	Status               TaskStatus                `json:"status"`
	Attempts             int                       `json:"attempts"`
	MaxAttempts          int                       `json:"max_attempts"`
	RequiredCapabilities []string                  `json:"required_capabilities,omitempty"`
	AssignedWorker       string                    `json:"assigned_worker,omitempty"`
	CreatedAt            time.Time                 `json:"created_at"`
	StartTime            time.Time                 `json:"start_time,omitzero"`
	EndTime              time.Time                 `json:"end_time,omitzero"`
	Duration             time.Duration             `json:"duration"`
	Phases               []Phase                   `json:"phases"`
	ResourceUsage        map[string]*ResourceUsage `json:"resource_usage,omitempty"`
	Errors               []TaskError               `json:"errors,omitempty"`
	Result               any                       `json:"result,omitempty"`

	// NotBefore gates re-dispatch of a retrying task. Zero unless retrying.
	NotBefore time.Time `json:"not_before,omitzero"`
}

// AddPhase appends an audit entry. Callers must hold whatever lock
// serializes writes to the record.
func (t *Task) AddPhase(phaseType, description, status, worker string, at time.Time) {
	t.Phases = append(t.Phases, Phase{
		Type:        phaseType,
		Description: description,
		Status:      status,
		Timestamp:   at,
		Worker:      worker,
	})
}

// AddError appends an error entry without touching status.
func (t *Task) AddError(message, worker, phase string, at time.Time) {
	t.Errors = append(t.Errors, TaskError{
		Timestamp: at,
		Message:   message,
		Worker:    worker,
		Phase:     phase,
	})
}

// RecordUsage accumulates resource counters, creating the bucket on first use.
func (t *Task) RecordUsage(kind string, size int64, processing time.Duration) {
	if t.ResourceUsage == nil {
		t.ResourceUsage = make(map[string]*ResourceUsage)
	}
	u, ok := t.ResourceUsage[kind]
	if !ok {
		u = &ResourceUsage{}
		t.ResourceUsage[kind] = u
	}
	u.Calls++
	u.TotalSize += size
	u.TotalProcessingTime += processing
}

// TotalResourceCalls sums calls across every resource kind.
func (t *Task) TotalResourceCalls() int {
	total := 0
	for _, u := range t.ResourceUsage {
		total += u.Calls
	}
	return total
}

// TotalResourceSize sums sizes across every resource kind.
func (t *Task) TotalResourceSize() int64 {
	var total int64
	for _, u := range t.ResourceUsage {
		total += u.TotalSize
	}
	return total
}
