package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	pgdb "github.com/taskpilot/taskpilot/config/storage/postgresql"
	"github.com/taskpilot/taskpilot/internal/core/domain"
	"github.com/taskpilot/taskpilot/internal/core/port"
	"go.uber.org/zap"
)

type archiveRepository struct {
	db      *pgxpool.Pool
	builder *squirrel.StatementBuilderType
	log     *zap.Logger
}

// NewArchiveRepository creates the postgres-backed archive store for
// finalized task records.
func NewArchiveRepository(db *pgxpool.Pool, builder *squirrel.StatementBuilderType, log *zap.Logger) port.ArchiveStore {
	return &archiveRepository{
		db:      db,
		builder: builder,
		log:     log,
	}
}

func (r *archiveRepository) Save(ctx context.Context, task *domain.Task) error {
	phases, err := json.Marshal(task.Phases)
	if err != nil {
		return fmt.Errorf("marshal phases: %w", err)
	}
	usage, err := json.Marshal(task.ResourceUsage)
	if err != nil {
		return fmt.Errorf("marshal resource usage: %w", err)
	}
	taskErrors, err := json.Marshal(task.Errors)
	if err != nil {
		return fmt.Errorf("marshal errors: %w", err)
	}
	var result []byte
	if task.Result != nil {
		if result, err = json.Marshal(task.Result); err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
	}

	query, args, err := r.builder.
		Insert("task_archive").
		Columns("id", "description", "priority", "status", "attempts", "max_attempts",
			"assigned_worker", "created_at", "start_time", "end_time", "duration_ms",
			"phases", "resource_usage", "errors", "result").
		Values(task.ID, task.Description, task.Priority, task.Status, task.Attempts, task.MaxAttempts,
			task.AssignedWorker, task.CreatedAt, nullableTime(task.StartTime), nullableTime(task.EndTime),
			task.Duration.Milliseconds(), phases, usage, taskErrors, result).
		Suffix("ON CONFLICT (id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		r.log.Error("Failed to archive task",
			zap.String("task_id", task.ID),
			zap.String("pg_code", pgdb.ErrorCode(err)),
			zap.Error(err))
		return err
	}
	return nil
}

func (r *archiveRepository) ListRecent(ctx context.Context, limit int) ([]*domain.Task, error) {
	if limit <= 0 {
		limit = 20
	}
	query, args, err := r.builder.
		Select("id", "description", "priority", "status", "attempts", "max_attempts",
			"assigned_worker", "created_at", "start_time", "end_time", "duration_ms",
			"phases", "errors").
		From("task_archive").
		OrderBy("archived_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		var (
			t          domain.Task
			start, end *time.Time
			durationMs int64
			phases     []byte
			taskErrors []byte
		)
		if err := rows.Scan(&t.ID, &t.Description, &t.Priority, &t.Status, &t.Attempts, &t.MaxAttempts,
			&t.AssignedWorker, &t.CreatedAt, &start, &end, &durationMs, &phases, &taskErrors); err != nil {
			return nil, err
		}
		if start != nil {
			t.StartTime = *start
		}
		if end != nil {
			t.EndTime = *end
		}
		t.Duration = time.Duration(durationMs) * time.Millisecond
		if err := json.Unmarshal(phases, &t.Phases); err != nil {
			r.log.Warn("Skipping malformed phases column", zap.String("task_id", t.ID), zap.Error(err))
		}
		if err := json.Unmarshal(taskErrors, &t.Errors); err != nil {
			r.log.Warn("Skipping malformed errors column", zap.String("task_id", t.ID), zap.Error(err))
		}
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
