package service

import (
	"context"
	"time"

	"github.com/taskpilot/taskpilot/internal/core/domain"
	"github.com/taskpilot/taskpilot/internal/core/port"
	"go.uber.org/zap"
)

// TrackerConfig bounds the completed-task archive.
type TrackerConfig struct {
	// ArchiveCapacity caps the in-memory archive; the oldest entry is
	// evicted silently past the cap.
	ArchiveCapacity int

	// RecentActivity is how many archived tasks feed the system report's
	// recent-activity list.
	RecentActivity int

	// StoreTimeout bounds each write-behind archive persist.
	StoreTimeout time.Duration
}

func (c *TrackerConfig) withDefaults() {
	if c.ArchiveCapacity <= 0 {
		c.ArchiveCapacity = 1000
	}
	if c.RecentActivity <= 0 {
		c.RecentActivity = 20
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 5 * time.Second
	}
}

// Aggregates is the incrementally maintained system-wide state.
type Aggregates struct {
	TotalTasks      int
	Succeeded       int
	Failed          int
	Cancelled       int
	AverageDuration time.Duration
	PerWorker       map[string]int
	Recent          []domain.ActivityEntry
}

// Tracker owns the audit trail: the active task map, the capped completed
// archive, and the aggregate counters. It is not safe for concurrent use on
// its own; the scheduler serializes every call (single-writer rule for task
// records).
type Tracker struct {
	cfg   TrackerConfig
	gen   *ReportGenerator
	store port.ArchiveStore
	log   *zap.Logger
	now   func() time.Time

	active    map[string]*domain.Task
	archive   []*domain.Task
	archived  map[string]*domain.Task
	reports   map[string]*domain.TaskReport
	total     int
	succeeded int
	failed    int
	cancelled int
	perWorker map[string]int
}

// NewTracker creates a tracker backed by an in-memory archive.
func NewTracker(cfg TrackerConfig, gen *ReportGenerator, log *zap.Logger) *Tracker {
	cfg.withDefaults()
	return &Tracker{
		cfg:       cfg,
		gen:       gen,
		log:       log,
		now:       time.Now,
		active:    make(map[string]*domain.Task),
		archived:  make(map[string]*domain.Task),
		reports:   make(map[string]*domain.TaskReport),
		perWorker: make(map[string]int),
	}
}

// SetArchiveStore attaches a durable store; finalized records are persisted
// write-behind and persistence errors are logged, never fatal.
func (tr *Tracker) SetArchiveStore(store port.ArchiveStore) {
	tr.store = store
}

// Register puts a freshly created task into the active set.
func (tr *Tracker) Register(t *domain.Task) {
	tr.active[t.ID] = t
}

// Get returns the live record for an active (non-finalized) task.
func (tr *Tracker) Get(taskID string) (*domain.Task, bool) {
	t, ok := tr.active[taskID]
	return t, ok
}

// Lookup returns the record whether active or archived.
func (tr *Tracker) Lookup(taskID string) (*domain.Task, bool) {
	if t, ok := tr.active[taskID]; ok {
		return t, true
	}
	t, ok := tr.archived[taskID]
	return t, ok
}

// AddPhase appends an audit entry to an active task. Recording against an
// unknown or finalized id is logged and ignored: the trail is best-effort.
func (tr *Tracker) AddPhase(taskID, phaseType, description, status, worker string) {
	t, ok := tr.active[taskID]
	if !ok {
		tr.log.Debug("Dropping phase for unknown or finalized task",
			zap.String("task_id", taskID),
			zap.String("phase", phaseType))
		return
	}
	t.AddPhase(phaseType, description, status, worker, tr.now())
}

// RecordResourceUsage accumulates usage counters on an active task.
func (tr *Tracker) RecordResourceUsage(taskID, kind string, size int64, processing time.Duration) {
	t, ok := tr.active[taskID]
	if !ok {
		tr.log.Debug("Dropping resource usage for unknown or finalized task",
			zap.String("task_id", taskID),
			zap.String("kind", kind))
		return
	}
	t.RecordUsage(kind, size, processing)
}

// RecordError appends to the error trail. Status is untouched: the scheduler
// alone decides retry versus fail.
func (tr *Tracker) RecordError(taskID, message, worker, phase string) {
	t, ok := tr.active[taskID]
	if !ok {
		tr.log.Debug("Dropping error for unknown or finalized task",
			zap.String("task_id", taskID),
			zap.String("error", message))
		return
	}
	t.AddError(message, worker, phase, tr.now())
}

// Finalize moves a terminal task from the active set to the archive, updates
// the aggregates and generates its report. Calling it again for the same id
// is a no-op.
func (tr *Tracker) Finalize(taskID string) *domain.Task {
	t, ok := tr.active[taskID]
	if !ok {
		// Already finalized (idempotent) or never known.
		return tr.archived[taskID]
	}
	if !t.Status.IsTerminal() {
		tr.log.Warn("Refusing to finalize non-terminal task",
			zap.String("task_id", taskID),
			zap.String("status", string(t.Status)))
		return nil
	}

	delete(tr.active, taskID)
	t.AddPhase(domain.PhaseFinalization, "record archived", string(t.Status), t.AssignedWorker, tr.now())

	tr.archive = append(tr.archive, t)
	tr.archived[taskID] = t
	if len(tr.archive) > tr.cfg.ArchiveCapacity {
		evicted := tr.archive[0]
		tr.archive = tr.archive[1:]
		delete(tr.archived, evicted.ID)
		delete(tr.reports, evicted.ID)
	}

	tr.total++
	switch t.Status {
	case domain.TaskStatusCompleted:
		tr.succeeded++
	case domain.TaskStatusFailed:
		tr.failed++
	case domain.TaskStatusCancelled:
		tr.cancelled++
	}
	if t.AssignedWorker != "" {
		tr.perWorker[t.AssignedWorker]++
	}

	tr.reports[taskID] = tr.gen.TaskReport(t)

	if tr.store != nil {
		snapshot := cloneTask(t)
		timeout := tr.cfg.StoreTimeout
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			if err := tr.store.Save(ctx, snapshot); err != nil {
				tr.log.Warn("Failed to persist archived task",
					zap.String("task_id", snapshot.ID),
					zap.Error(err))
			}
		}()
	}

	tr.log.Info("Task finalized",
		zap.String("task_id", t.ID),
		zap.String("status", string(t.Status)),
		zap.Int("attempts", t.Attempts),
		zap.Duration("duration", t.Duration))
	return t
}

// Report returns the cached report generated at finalize time.
func (tr *Tracker) Report(taskID string) (*domain.TaskReport, bool) {
	r, ok := tr.reports[taskID]
	return r, ok
}

// Active returns the live active records. Callers copy before publishing.
func (tr *Tracker) Active() []*domain.Task {
	out := make([]*domain.Task, 0, len(tr.active))
	for _, t := range tr.active {
		out = append(out, t)
	}
	return out
}

// Aggregates recomputes the average duration from the archive window and
// returns the counters alongside the recent-activity slice.
func (tr *Tracker) Aggregates() Aggregates {
	var sum time.Duration
	counted := 0
	for _, t := range tr.archive {
		if t.Status == domain.TaskStatusCancelled {
			continue
		}
		sum += t.Duration
		counted++
	}
	var avg time.Duration
	if counted > 0 {
		avg = sum / time.Duration(counted)
	}

	perWorker := make(map[string]int, len(tr.perWorker))
	for k, v := range tr.perWorker {
		perWorker[k] = v
	}

	n := tr.cfg.RecentActivity
	if n > len(tr.archive) {
		n = len(tr.archive)
	}
	recent := make([]domain.ActivityEntry, 0, n)
	for i := len(tr.archive) - 1; i >= len(tr.archive)-n; i-- {
		t := tr.archive[i]
		recent = append(recent, domain.ActivityEntry{
			TaskID:   t.ID,
			Status:   t.Status,
			Worker:   t.AssignedWorker,
			Duration: formatDuration(t.Duration),
			EndedAt:  t.EndTime,
		})
	}

	return Aggregates{
		TotalTasks:      tr.total,
		Succeeded:       tr.succeeded,
		Failed:          tr.failed,
		Cancelled:       tr.cancelled,
		AverageDuration: avg,
		PerWorker:       perWorker,
		Recent:          recent,
	}
}

// cloneTask deep-copies a record so snapshots never alias live state.
func cloneTask(t *domain.Task) *domain.Task {
	c := *t
	c.Phases = append([]domain.Phase(nil), t.Phases...)
	c.Errors = append([]domain.TaskError(nil), t.Errors...)
	c.RequiredCapabilities = append([]string(nil), t.RequiredCapabilities...)
	if t.ResourceUsage != nil {
		c.ResourceUsage = make(map[string]*domain.ResourceUsage, len(t.ResourceUsage))
		for k, v := range t.ResourceUsage {
			u := *v
			c.ResourceUsage[k] = &u
		}
	}
	return &c
}
