package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/taskpilot/taskpilot/internal/core/domain"
	"github.com/taskpilot/taskpilot/internal/core/port"
	"github.com/taskpilot/taskpilot/internal/metrics"
	"go.uber.org/zap"
)

// SchedulerConfig tunes the dispatch loop.
type SchedulerConfig struct {
	MaxConcurrentTasks   int
	DefaultMaxAttempts   int
	DefaultWorkerMaxLoad int
	TickInterval         time.Duration
	TaskTimeout          time.Duration
	RetryDelay           time.Duration
}

func (c *SchedulerConfig) withDefaults() {
	if c.MaxConcurrentTasks <= 0 {
		c.MaxConcurrentTasks = 10
	}
	if c.DefaultMaxAttempts <= 0 {
		c.DefaultMaxAttempts = 3
	}
	if c.DefaultWorkerMaxLoad <= 0 {
		c.DefaultWorkerMaxLoad = 5
	}
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 5 * time.Minute
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}
}

// SubmitRequest is the validated-at-the-boundary submission payload.
type SubmitRequest struct {
	Description          string   `json:"description"`
	Priority             string   `json:"priority,omitempty"`
	MaxAttempts          int      `json:"max_attempts,omitempty"`
	RequiredCapabilities []string `json:"required_capabilities,omitempty"`
}

// WorkerSpec registers an executor with the scheduler.
type WorkerSpec struct {
	ID           string   `json:"id"`
	Capabilities []string `json:"capabilities,omitempty"`
	MaxLoad      int      `json:"max_load,omitempty"`
}

// runningEntry tracks one in-flight assignment; startedAt is the current
// attempt's dispatch time and drives the timeout check.
type runningEntry struct {
	task      *domain.Task
	workerID  string
	startedAt time.Time
}

// Scheduler admits tasks into per-priority FIFO queues and dispatches them to
// workers under a global concurrency bound and per-worker load caps. A single
// mutex serializes every mutation of queues, worker loads and task records,
// so the dispatch loop, submitters and completion reports never race on the
// same record.
type Scheduler struct {
	mu sync.Mutex

	cfg       SchedulerConfig
	tracker   *Tracker
	executor  port.Executor
	directory port.WorkerDirectory
	log       *zap.Logger
	now       func() time.Time

	queues      *queueSet
	workers     []*domain.Worker // insertion order, for deterministic tie-breaks
	workerIndex map[string]*domain.Worker
	running     map[string]*runningEntry
	retrying    []*domain.Task
	closed      bool
}

func NewScheduler(cfg SchedulerConfig, tracker *Tracker, log *zap.Logger) *Scheduler {
	cfg.withDefaults()
	return &Scheduler{
		cfg:         cfg,
		tracker:     tracker,
		log:         log,
		now:         time.Now,
		queues:      newQueueSet(),
		workerIndex: make(map[string]*domain.Worker),
		running:     make(map[string]*runningEntry),
	}
}

// SetExecutor attaches the execution backend. Must be called before Run.
func (s *Scheduler) SetExecutor(exec port.Executor) {
	s.executor = exec
}

// SetWorkerDirectory attaches an optional directory that mirrors worker
// registrations for external observers.
func (s *Scheduler) SetWorkerDirectory(dir port.WorkerDirectory) {
	s.directory = dir
}

// Submit validates the request, creates the task record with its
// initialization phase and appends it to the tail of its priority queue.
// Workers are untouched until the next dispatch tick.
func (s *Scheduler) Submit(req SubmitRequest) (*domain.Task, error) {
	if req.Description == "" {
		return nil, &domain.ValidationError{Field: "description", Reason: "must not be empty"}
	}
	priority, err := domain.ParsePriority(req.Priority)
	if err != nil {
		return nil, err
	}
	if req.MaxAttempts < 0 {
		return nil, &domain.ValidationError{Field: "max_attempts", Reason: "must not be negative"}
	}
	maxAttempts := req.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = s.cfg.DefaultMaxAttempts
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, domain.ErrSchedulerClosed
	}

	now := s.now()
	task := &domain.Task{
		ID:                   uuid.NewString(),
		Description:          req.Description,
		Priority:             priority,
		Status:               domain.TaskStatusQueued,
		MaxAttempts:          maxAttempts,
		RequiredCapabilities: append([]string(nil), req.RequiredCapabilities...),
		CreatedAt:            now,
	}
	task.AddPhase(domain.PhaseInitialization, "task accepted", string(domain.TaskStatusQueued), "", now)

	s.tracker.Register(task)
	s.queues.push(task)
	s.publishQueueDepths()
	metrics.TasksSubmitted.WithLabelValues(string(priority)).Inc()

	s.log.Info("Task submitted",
		zap.String("task_id", task.ID),
		zap.String("priority", string(priority)),
		zap.Int("max_attempts", maxAttempts))
	return cloneTask(task), nil
}

// RegisterWorker adds a worker to the dispatch pool.
func (s *Scheduler) RegisterWorker(spec WorkerSpec) (*domain.Worker, error) {
	if spec.ID == "" {
		return nil, &domain.ValidationError{Field: "id", Reason: "must not be empty"}
	}
	maxLoad := spec.MaxLoad
	if maxLoad <= 0 {
		maxLoad = s.cfg.DefaultWorkerMaxLoad
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.workerIndex[spec.ID]; exists {
		return nil, fmt.Errorf("%w: %s", domain.ErrWorkerExists, spec.ID)
	}

	w := &domain.Worker{
		ID:           spec.ID,
		Capabilities: append([]string(nil), spec.Capabilities...),
		MaxLoad:      maxLoad,
		Status:       domain.WorkerStatusReady,
		RegisteredAt: s.now(),
	}
	s.workers = append(s.workers, w)
	s.workerIndex[w.ID] = w

	s.log.Info("Worker registered",
		zap.String("worker_id", w.ID),
		zap.Int("max_load", w.MaxLoad),
		zap.Strings("capabilities", w.Capabilities))
	snapshot := *w
	return &snapshot, nil
}

// Cancel aborts a task that has not been handed to a worker. Only queued and
// retrying tasks are cancelable; running tasks would need cooperative worker
// support.
func (s *Scheduler) Cancel(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tracker.Get(taskID)
	if !ok {
		if _, archived := s.tracker.Lookup(taskID); archived {
			return domain.ErrNotCancelable
		}
		return domain.ErrTaskNotFound
	}

	switch task.Status {
	case domain.TaskStatusQueued:
		s.queues.remove(taskID)
	case domain.TaskStatusRetrying:
		// A retrying task sits either on the backoff list or, once its
		// delay elapsed, back in its priority queue.
		s.removeRetrying(taskID)
		s.queues.remove(taskID)
	default:
		return domain.ErrNotCancelable
	}

	now := s.now()
	task.Status = domain.TaskStatusCancelled
	task.EndTime = now
	if !task.StartTime.IsZero() {
		task.Duration = task.EndTime.Sub(task.StartTime)
	}
	task.NotBefore = time.Time{}
	task.AddPhase(domain.PhaseCancellation, "cancelled by caller", string(domain.TaskStatusCancelled), "", now)
	s.tracker.Finalize(taskID)
	s.publishQueueDepths()
	metrics.TasksCancelled.Inc()
	return nil
}

// GetStatus returns a snapshot of the record, active or archived.
func (s *Scheduler) GetStatus(taskID string) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tracker.Lookup(taskID)
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	return cloneTask(t), nil
}

// ListActive snapshots every non-finalized task.
func (s *Scheduler) ListActive() []*domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	live := s.tracker.Active()
	out := make([]*domain.Task, 0, len(live))
	for _, t := range live {
		out = append(out, cloneTask(t))
	}
	return out
}

// ListWorkers snapshots the registered worker set.
func (s *Scheduler) ListWorkers() []domain.Worker {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Worker, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, *w)
	}
	return out
}

// AddPhase exposes the tracker's audit primitive behind the scheduler's lock.
func (s *Scheduler) AddPhase(taskID, phaseType, description, status, worker string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracker.AddPhase(taskID, phaseType, description, status, worker)
}

// RecordResourceUsage exposes the tracker's usage primitive behind the lock.
func (s *Scheduler) RecordResourceUsage(taskID, kind string, size int64, processing time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracker.RecordResourceUsage(taskID, kind, size, processing)
}

// RecordError exposes the tracker's error primitive behind the lock.
func (s *Scheduler) RecordError(taskID, message, worker, phase string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracker.RecordError(taskID, message, worker, phase)
}

// TaskReport returns the report generated when the task was finalized.
func (s *Scheduler) TaskReport(taskID string) (*domain.TaskReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.tracker.Report(taskID)
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	return r, nil
}

// SystemReport assembles a snapshot under the lock and renders it.
func (s *Scheduler) SystemReport(gen *ReportGenerator) *domain.SystemReport {
	s.mu.Lock()
	workers := make([]domain.Worker, 0, len(s.workers))
	for _, w := range s.workers {
		workers = append(workers, *w)
	}
	snap := SystemSnapshot{
		Aggregates:  s.tracker.Aggregates(),
		Running:     len(s.running),
		QueueDepths: s.queues.depths(),
		Workers:     workers,
		At:          s.now(),
	}
	s.mu.Unlock()
	return gen.SystemReport(snap)
}

// ReportCompletion is the serialized channel worker backends report through.
// Stale reports (unknown task, task no longer running, or a worker other
// than the assignee) are logged and dropped.
func (s *Scheduler) ReportCompletion(c port.Completion) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.running[c.TaskID]
	if !ok {
		s.log.Warn("Dropping completion for task not running",
			zap.String("task_id", c.TaskID),
			zap.String("worker_id", c.WorkerID))
		return
	}
	if c.WorkerID != "" && c.WorkerID != entry.workerID {
		s.log.Warn("Dropping completion from unexpected worker",
			zap.String("task_id", c.TaskID),
			zap.String("expected", entry.workerID),
			zap.String("got", c.WorkerID))
		return
	}

	if c.Success {
		s.completeLocked(entry, c.Result)
	} else {
		msg := c.Error
		if msg == "" {
			msg = "worker reported failure"
		}
		s.failLocked(entry, msg, domain.PhaseExecution)
	}
}

// Run drives the dispatch loop until the context is cancelled. One tick
// completes before the next begins; worker registrations are mirrored to the
// directory on a slower cadence.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	count := 0
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Stopping scheduler loop")
			s.mu.Lock()
			s.closed = true
			s.mu.Unlock()
			return
		case <-ticker.C:
			count++
			if count%3 == 0 {
				s.announceWorkers(ctx)
				s.mu.Lock()
				queued := s.queues.total()
				running := len(s.running)
				s.mu.Unlock()
				s.log.Info("Scheduler heartbeat",
					zap.Int("queued", queued),
					zap.Int("running", running),
					zap.Duration("interval", s.cfg.TickInterval))
			}
			s.Tick(ctx, s.now())
		}
	}
}

// Tick runs one dispatch iteration: expire timeouts, promote retry entries
// whose backoff elapsed, then drain queues in priority order while capacity
// allows. Exported so tests can step the loop deterministically.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	s.mu.Lock()

	s.expireTimeoutsLocked(now)
	s.promoteRetriesLocked(now)
	assignments := s.dispatchLocked(now)
	s.publishQueueDepths()
	metrics.RunningTasks.Set(float64(len(s.running)))

	s.mu.Unlock()

	// Executor calls happen outside the lock; outcomes come back through
	// ReportCompletion.
	for _, a := range assignments {
		if s.executor == nil {
			s.log.Error("No executor configured, failing assignment", zap.String("task_id", a.TaskID))
			s.ReportCompletion(port.Completion{TaskID: a.TaskID, WorkerID: a.WorkerID, Success: false, Error: "no executor configured"})
			continue
		}
		if err := s.executor.Execute(ctx, a); err != nil {
			s.log.Error("Executor rejected assignment",
				zap.String("task_id", a.TaskID),
				zap.String("worker_id", a.WorkerID),
				zap.Error(err))
			s.ReportCompletion(port.Completion{TaskID: a.TaskID, WorkerID: a.WorkerID, Success: false, Error: err.Error()})
		}
	}
}

// expireTimeoutsLocked fails any task running longer than the configured
// timeout; the failure enters the normal retry path.
func (s *Scheduler) expireTimeoutsLocked(now time.Time) {
	for _, entry := range s.running {
		if now.Sub(entry.startedAt) <= s.cfg.TaskTimeout {
			continue
		}
		s.log.Warn("Task timed out",
			zap.String("task_id", entry.task.ID),
			zap.String("worker_id", entry.workerID),
			zap.Duration("timeout", s.cfg.TaskTimeout))
		s.failLocked(entry, fmt.Sprintf("execution timed out after %s", s.cfg.TaskTimeout), domain.PhaseTimeout)
	}
}

// promoteRetriesLocked re-queues retry entries whose backoff has elapsed, at
// the tail of their original level.
func (s *Scheduler) promoteRetriesLocked(now time.Time) {
	var still []*domain.Task
	for _, t := range s.retrying {
		if t.NotBefore.After(now) {
			still = append(still, t)
			continue
		}
		// Status stays retrying until the next dispatch: the only legal
		// transition out of retrying is back to running.
		t.NotBefore = time.Time{}
		s.queues.push(t)
	}
	s.retrying = still
}

// dispatchLocked pops heads in priority order and assigns workers until the
// concurrency cap is reached. A level with a head nobody can run is skipped
// for this tick, its head left in place.
func (s *Scheduler) dispatchLocked(now time.Time) []port.Assignment {
	var assignments []port.Assignment
	for _, level := range domain.PriorityOrder {
		for s.queues.depth(level) > 0 {
			if len(s.running) >= s.cfg.MaxConcurrentTasks {
				return assignments
			}
			task := s.queues.pop(level)
			worker := s.selectWorkerLocked(task)
			if worker == nil {
				// Head goes back to the head: FIFO order holds, and this
				// level is done for the tick.
				s.queues.pushFront(task)
				break
			}
			assignments = append(assignments, s.assignLocked(task, worker, now))
		}
	}
	return assignments
}

// selectWorkerLocked filters ready workers with spare load and a capability
// superset, then picks the least loaded; the first match wins ties so
// dispatch stays deterministic.
func (s *Scheduler) selectWorkerLocked(task *domain.Task) *domain.Worker {
	var best *domain.Worker
	for _, w := range s.workers {
		if !w.HasCapacity() || !w.CanRun(task) {
			continue
		}
		if best == nil || w.CurrentLoad < best.CurrentLoad {
			best = w
		}
	}
	return best
}

func (s *Scheduler) assignLocked(task *domain.Task, worker *domain.Worker, now time.Time) port.Assignment {
	task.Status = domain.TaskStatusRunning
	task.AssignedWorker = worker.ID
	if task.StartTime.IsZero() {
		task.StartTime = now
	}
	task.AddPhase(domain.PhaseExecution,
		fmt.Sprintf("attempt %d/%d dispatched", task.Attempts+1, task.MaxAttempts),
		string(domain.TaskStatusRunning), worker.ID, now)

	worker.CurrentLoad++
	s.running[task.ID] = &runningEntry{task: task, workerID: worker.ID, startedAt: now}
	metrics.TasksDispatched.WithLabelValues(string(task.Priority)).Inc()

	s.log.Info("Task dispatched",
		zap.String("task_id", task.ID),
		zap.String("worker_id", worker.ID),
		zap.Int("attempt", task.Attempts+1),
		zap.Int("worker_load", worker.CurrentLoad))

	return port.Assignment{
		TaskID:      task.ID,
		Description: task.Description,
		Priority:    task.Priority,
		Attempt:     task.Attempts + 1,
		WorkerID:    worker.ID,
	}
}

func (s *Scheduler) completeLocked(entry *runningEntry, result any) {
	task := entry.task
	now := s.now()

	task.Status = domain.TaskStatusCompleted
	task.Result = result
	task.EndTime = now
	task.Duration = now.Sub(task.StartTime)
	s.releaseLocked(entry)

	metrics.TasksCompleted.Inc()
	metrics.TaskDuration.Observe(task.Duration.Seconds())
	s.tracker.Finalize(task.ID)
}

// failLocked drives the retry/fail state machine: below the attempt bound
// the task becomes retrying with an exponential backoff schedule entry;
// at the bound it is terminally failed and finalized.
func (s *Scheduler) failLocked(entry *runningEntry, message, phase string) {
	task := entry.task
	now := s.now()

	task.Attempts++
	task.AddError(message, entry.workerID, phase, now)
	s.releaseLocked(entry)

	if task.Attempts < task.MaxAttempts {
		task.Status = domain.TaskStatusRetrying
		task.NotBefore = now.Add(s.cfg.RetryDelay * time.Duration(task.Attempts))
		task.AddPhase(domain.PhaseRetry,
			fmt.Sprintf("attempt %d/%d failed, retry scheduled", task.Attempts, task.MaxAttempts),
			string(domain.TaskStatusRetrying), entry.workerID, now)
		s.retrying = append(s.retrying, task)
		metrics.TasksRetried.Inc()
		s.log.Warn("Task failed, will retry",
			zap.String("task_id", task.ID),
			zap.Int("attempt", task.Attempts),
			zap.Time("not_before", task.NotBefore),
			zap.String("error", message))
		return
	}

	task.Status = domain.TaskStatusFailed
	task.EndTime = now
	task.Duration = now.Sub(task.StartTime)
	metrics.TasksFailed.Inc()
	s.log.Error("Task failed terminally",
		zap.String("task_id", task.ID),
		zap.Int("attempts", task.Attempts),
		zap.String("error", message))
	s.tracker.Finalize(task.ID)
}

// releaseLocked drops the task from the running set and gives the worker its
// load slot back.
func (s *Scheduler) releaseLocked(entry *runningEntry) {
	delete(s.running, entry.task.ID)
	if w, ok := s.workerIndex[entry.workerID]; ok && w.CurrentLoad > 0 {
		w.CurrentLoad--
	}
}

func (s *Scheduler) removeRetrying(taskID string) {
	for i, t := range s.retrying {
		if t.ID == taskID {
			s.retrying = append(s.retrying[:i:i], s.retrying[i+1:]...)
			return
		}
	}
}

func (s *Scheduler) publishQueueDepths() {
	for level, depth := range s.queues.depths() {
		metrics.QueueDepth.WithLabelValues(string(level)).Set(float64(depth))
	}
}

// announceWorkers mirrors registrations to the directory with fresh
// heartbeats; failures are logged and retried on the next cadence.
func (s *Scheduler) announceWorkers(ctx context.Context) {
	if s.directory == nil {
		return
	}
	s.mu.Lock()
	workers := make([]domain.Worker, 0, len(s.workers))
	now := s.now()
	for _, w := range s.workers {
		snapshot := *w
		snapshot.LastHeartbeat = now
		workers = append(workers, snapshot)
	}
	s.mu.Unlock()

	for i := range workers {
		if err := s.directory.Announce(ctx, &workers[i]); err != nil {
			s.log.Warn("Worker announce failed",
				zap.String("worker_id", workers[i].ID),
				zap.Error(err))
		}
	}
}
