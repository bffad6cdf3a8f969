package service

import (
	"fmt"
	"sort"
	"time"

	"github.com/taskpilot/taskpilot/internal/core/domain"
)

// Thresholds drive the rule-based recommendations and health penalties.
// They are configuration so tests can override them.
type Thresholds struct {
	SlowTask       time.Duration // per-task duration triggering a performance hint
	ResourceCalls  int           // total resource calls triggering a data hint
	ErrorRatePct   float64       // system error rate penalized with -30
	SlowAverage    time.Duration // system average duration penalized with -20
	SuccessRatePct float64       // system success rate penalized with -25
}

// DefaultThresholds returns the production rule set.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SlowTask:       30 * time.Second,
		ResourceCalls:  10,
		ErrorRatePct:   10,
		SlowAverage:    20 * time.Second,
		SuccessRatePct: 90,
	}
}

// SystemSnapshot is the immutable input to SystemReport. The scheduler
// assembles it under its lock; the generator never mutates it.
type SystemSnapshot struct {
	Aggregates  Aggregates
	Running     int
	QueueDepths map[domain.Priority]int
	Workers     []domain.Worker
	At          time.Time
}

// ReportGenerator renders finalized records and system snapshots into report
// objects. All methods are pure: same input, same output, no side effects.
type ReportGenerator struct {
	thresholds Thresholds
}

func NewReportGenerator(thresholds Thresholds) *ReportGenerator {
	return &ReportGenerator{thresholds: thresholds}
}

// TaskReport summarizes one finalized task: execution summary, timeline with
// relative timestamps, per-worker breakdown and recommendations.
func (g *ReportGenerator) TaskReport(t *domain.Task) *domain.TaskReport {
	timeline := make([]domain.TimelineEntry, 0, len(t.Phases))
	for _, p := range t.Phases {
		timeline = append(timeline, domain.TimelineEntry{
			Type:        p.Type,
			Description: p.Description,
			Status:      p.Status,
			Offset:      p.Timestamp.Sub(t.CreatedAt),
			Worker:      p.Worker,
		})
	}

	phasesByWorker := make(map[string]int)
	for _, p := range t.Phases {
		if p.Worker != "" {
			phasesByWorker[p.Worker]++
		}
	}
	errorsByWorker := make(map[string]int)
	for _, e := range t.Errors {
		if e.Worker != "" {
			errorsByWorker[e.Worker]++
		}
	}

	workerIDs := make([]string, 0, len(phasesByWorker))
	for id := range phasesByWorker {
		workerIDs = append(workerIDs, id)
	}
	for id := range errorsByWorker {
		if _, seen := phasesByWorker[id]; !seen {
			workerIDs = append(workerIDs, id)
		}
	}
	sort.Strings(workerIDs)

	workers := make([]domain.WorkerBreakdown, 0, len(workerIDs))
	for _, id := range workerIDs {
		phases := phasesByWorker[id]
		errs := errorsByWorker[id]
		rate := 100.0
		if phases > 0 {
			rate = float64(phases-errs) / float64(phases) * 100
			if rate < 0 {
				rate = 0
			}
		}
		workers = append(workers, domain.WorkerBreakdown{
			WorkerID:    id,
			Phases:      phases,
			Errors:      errs,
			SuccessRate: rate,
		})
	}

	return &domain.TaskReport{
		TaskID:          t.ID,
		Description:     t.Description,
		Status:          t.Status,
		Duration:        formatDuration(t.Duration),
		WorkerCount:     len(workers),
		PhaseCount:      len(t.Phases),
		ErrorCount:      len(t.Errors),
		ResourceSize:    t.TotalResourceSize(),
		Timeline:        timeline,
		Workers:         workers,
		Recommendations: g.taskRecommendations(t),
		GeneratedFrom:   t.EndTime,
	}
}

func (g *ReportGenerator) taskRecommendations(t *domain.Task) []domain.Recommendation {
	var recs []domain.Recommendation

	if len(t.Errors) > 0 {
		details := make([]string, 0, len(t.Errors))
		for _, e := range t.Errors {
			details = append(details, e.Message)
		}
		recs = append(recs, domain.Recommendation{
			Category: domain.RecommendationErrorPrevention,
			Message:  fmt.Sprintf("task recorded %d error(s); review the messages below", len(t.Errors)),
			Details:  details,
		})
	}

	if t.Duration > g.thresholds.SlowTask {
		recs = append(recs, domain.Recommendation{
			Category: domain.RecommendationPerformance,
			Message: fmt.Sprintf("task took %s, above the %s threshold; consider splitting the work",
				formatDuration(t.Duration), formatDuration(g.thresholds.SlowTask)),
		})
	}

	if calls := t.TotalResourceCalls(); calls > g.thresholds.ResourceCalls {
		recs = append(recs, domain.Recommendation{
			Category: domain.RecommendationDataOptimization,
			Message: fmt.Sprintf("task made %d resource calls (threshold %d); consider batching",
				calls, g.thresholds.ResourceCalls),
		})
	}

	return recs
}

// SystemReport renders the system-wide overview: counts, per-worker
// utilization, recent activity, a 0-100 health score and recommendations
// derived from the same penalty triggers.
func (g *ReportGenerator) SystemReport(snap SystemSnapshot) *domain.SystemReport {
	agg := snap.Aggregates

	successRate := 100.0
	if denom := agg.Succeeded + agg.Failed; denom > 0 {
		successRate = float64(agg.Succeeded) / float64(denom) * 100
	}
	errorRate := 0.0
	if agg.TotalTasks > 0 {
		errorRate = float64(agg.Failed) / float64(agg.TotalTasks) * 100
	}

	score := 100
	var recs []domain.Recommendation
	if errorRate > g.thresholds.ErrorRatePct {
		score -= 30
		recs = append(recs, domain.Recommendation{
			Category: domain.RecommendationErrorPrevention,
			Message: fmt.Sprintf("error rate %.1f%% exceeds %.1f%%; inspect recent failed tasks",
				errorRate, g.thresholds.ErrorRatePct),
		})
	}
	if agg.TotalTasks > 0 && agg.AverageDuration > g.thresholds.SlowAverage {
		score -= 20
		recs = append(recs, domain.Recommendation{
			Category: domain.RecommendationPerformance,
			Message: fmt.Sprintf("average task duration %s exceeds %s; check worker capacity",
				formatDuration(agg.AverageDuration), formatDuration(g.thresholds.SlowAverage)),
		})
	}
	if successRate < g.thresholds.SuccessRatePct {
		score -= 25
		recs = append(recs, domain.Recommendation{
			Category: domain.RecommendationReliability,
			Message: fmt.Sprintf("success rate %.1f%% is below %.1f%%; raise max attempts or fix failing workers",
				successRate, g.thresholds.SuccessRatePct),
		})
	}

	queued := 0
	depths := make(map[domain.Priority]int, len(snap.QueueDepths))
	for p, d := range snap.QueueDepths {
		depths[p] = d
		queued += d
	}

	workers := make([]domain.WorkerUtilization, 0, len(snap.Workers))
	for i := range snap.Workers {
		w := snap.Workers[i]
		workers = append(workers, domain.WorkerUtilization{
			WorkerID:       w.ID,
			Status:         w.Status,
			CurrentLoad:    w.CurrentLoad,
			MaxLoad:        w.MaxLoad,
			UtilizationPct: w.Utilization(),
			TasksHandled:   agg.PerWorker[w.ID],
		})
	}
	sort.Slice(workers, func(i, j int) bool { return workers[i].WorkerID < workers[j].WorkerID })

	return &domain.SystemReport{
		TotalTasks:      agg.TotalTasks,
		Succeeded:       agg.Succeeded,
		Failed:          agg.Failed,
		Cancelled:       agg.Cancelled,
		Running:         snap.Running,
		Queued:          queued,
		QueueDepths:     depths,
		SuccessRate:     successRate,
		ErrorRate:       errorRate,
		AverageDuration: formatDuration(agg.AverageDuration),
		HealthScore:     score,
		Workers:         workers,
		RecentActivity:  agg.Recent,
		Recommendations: recs,
		GeneratedAt:     snap.At,
	}
}

// formatDuration renders durations the way operators read them, with
// millisecond precision below a minute.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}
