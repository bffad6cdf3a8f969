package domain

import "time"

// Recommendation is one rule-derived advisory entry in a report.
type Recommendation struct {
	Category string   `json:"category"`
	Message  string   `json:"message"`
	Details  []string `json:"details,omitempty"`
}

const (
	RecommendationErrorPrevention  = "error_prevention"
	RecommendationPerformance      = "performance_optimization"
	RecommendationDataOptimization = "data_optimization"
	RecommendationReliability      = "reliability"
)

// TimelineEntry re-renders a phase with a timestamp relative to task creation.
type TimelineEntry struct {
	Type        string        `json:"type"`
	Description string        `json:"description"`
	Status      string        `json:"status"`
	Offset      time.Duration `json:"offset"`
	Worker      string        `json:"worker,omitempty"`
}

// WorkerBreakdown summarizes one worker's share of a task or of the system.
type WorkerBreakdown struct {
	WorkerID    string  `json:"worker_id"`
	Phases      int     `json:"phases"`
	Errors      int     `json:"errors"`
	SuccessRate float64 `json:"success_rate"`
}

// TaskReport is the structured summary of a finalized task record.
type TaskReport struct {
	TaskID          string           `json:"task_id"`
	Description     string           `json:"description"`
	Status          TaskStatus       `json:"status"`
	Duration        string           `json:"duration"`
	WorkerCount     int              `json:"worker_count"`
	PhaseCount      int              `json:"phase_count"`
	ErrorCount      int              `json:"error_count"`
	ResourceSize    int64            `json:"resource_size"`
	Timeline        []TimelineEntry   `json:"timeline"`
	Workers         []WorkerBreakdown `json:"workers"`
	Recommendations []Recommendation  `json:"recommendations"`
	GeneratedFrom   time.Time         `json:"generated_from"`
}

// WorkerUtilization is one row of the system report's worker table.
type WorkerUtilization struct {
	WorkerID       string       `json:"worker_id"`
	Status         WorkerStatus `json:"status"`
	CurrentLoad    int          `json:"current_load"`
	MaxLoad        int          `json:"max_load"`
	UtilizationPct float64      `json:"utilization_pct"`
	TasksHandled   int          `json:"tasks_handled"`
}

// ActivityEntry is one recently finalized task in the system report.
type ActivityEntry struct {
	TaskID   string     `json:"task_id"`
	Status   TaskStatus `json:"status"`
	Worker   string     `json:"worker,omitempty"`
	Duration string     `json:"duration"`
	EndedAt  time.Time  `json:"ended_at"`
}

// SystemReport is the system-wide overview derived from a stats snapshot.
type SystemReport struct {
	TotalTasks      int                 `json:"total_tasks"`
	Succeeded       int                 `json:"succeeded"`
	Failed          int                 `json:"failed"`
	Cancelled       int                 `json:"cancelled"`
	Running         int                 `json:"running"`
	Queued          int                 `json:"queued"`
	QueueDepths     map[Priority]int    `json:"queue_depths"`
	SuccessRate     float64             `json:"success_rate"`
	ErrorRate       float64             `json:"error_rate"`
	AverageDuration string              `json:"average_duration"`
	HealthScore     int                 `json:"health_score"`
	Workers         []WorkerUtilization `json:"workers"`
	RecentActivity  []ActivityEntry     `json:"recent_activity"`
	Recommendations []Recommendation    `json:"recommendations"`
	GeneratedAt     time.Time           `json:"generated_at"`
}
