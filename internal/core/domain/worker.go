package domain

import "time"

type WorkerStatus string

const (
	WorkerStatusReady    WorkerStatus = "ready"
	WorkerStatusDraining WorkerStatus = "draining"
	WorkerStatusOffline  WorkerStatus = "offline"
)

// Worker describes an executor the scheduler may assign tasks to. The
// scheduler owns CurrentLoad exclusively; workers never self-report load.
type Worker struct {
	ID            string       `json:"id"`
	Capabilities  []string     `json:"capabilities,omitempty"`
	MaxLoad       int          `json:"max_load"`
	CurrentLoad   int          `json:"current_load"`
	Status        WorkerStatus `json:"status"`
	RegisteredAt  time.Time    `json:"registered_at"`
	LastHeartbeat time.Time    `json:"last_heartbeat,omitzero"`
}

// HasCapacity reports whether the worker can take one more task.
func (w *Worker) HasCapacity() bool {
	return w.Status == WorkerStatusReady && w.CurrentLoad < w.MaxLoad
}

// CanRun reports whether the worker's capabilities are a superset of the
// task's required capabilities.
func (w *Worker) CanRun(t *Task) bool {
	if len(t.RequiredCapabilities) == 0 {
		return true
	}
	caps := make(map[string]struct{}, len(w.Capabilities))
	for _, c := range w.Capabilities {
		caps[c] = struct{}{}
	}
	for _, need := range t.RequiredCapabilities {
		if _, ok := caps[need]; !ok {
			return false
		}
	}
	return true
}

// Utilization returns the worker's load as a percentage of its cap.
func (w *Worker) Utilization() float64 {
	if w.MaxLoad <= 0 {
		return 0
	}
	return float64(w.CurrentLoad) / float64(w.MaxLoad) * 100
}
