package repository

import (
	"context"
	"errors"
	"fmt"

	"paperlens-backend/apperrors"
	"paperlens-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TaskRepository handles database operations for tasks. Transitions are
// guarded in SQL so concurrent workers cannot both claim or finish a task.
type TaskRepository struct {
	db *pgxpool.Pool
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{db: db}
}

const (
	uniqueViolation = "23505"
	activeTaskIndex = "idx_tasks_active_owner"
)

const taskColumns = `id, task_type, owner_id, status, current_step, result, error_message,
	created_at, updated_at, started_at, completed_at`

func scanTask(row pgx.Row) (*models.Task, error) {
	task := &models.Task{}
	err := row.Scan(
		&task.ID,
		&task.Type,
		&task.OwnerID,
		&task.Status,
		&task.CurrentStep,
		&task.Result,
		&task.ErrorMessage,
		&task.CreatedAt,
		&task.UpdatedAt,
		&task.StartedAt,
		&task.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return task, nil
}

// Create creates a new pending task
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.Status == "" {
		task.Status = models.TaskPending
	}
	query := `
		INSERT INTO tasks (id, task_type, owner_id, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query, task.ID, task.Type, task.OwnerID, task.Status).
		Scan(&task.CreatedAt, &task.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == activeTaskIndex {
		return fmt.Errorf("%s for %s: %w", task.Type, task.OwnerID, apperrors.ErrActiveTask)
	}
	return err
}

// GetByID retrieves a task by ID
func (r *TaskRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	task, err := scanTask(r.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "task "+id.String())
	}
	return task, nil
}

// Claim moves a pending task to running. It reports false when another
// caller already claimed it.
func (r *TaskRepository) Claim(ctx context.Context, id uuid.UUID) (*models.Task, bool, error) {
	query := `
		UPDATE tasks SET
			status = $2,
			started_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND status = $3
		RETURNING ` + taskColumns

	task, err := scanTask(r.db.QueryRow(ctx, query, id, models.TaskRunning, models.TaskPending))
	if err == nil {
		return task, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return nil, false, err
	}
	return nil, false, nil
}

// UpdateProgress records the current step of a running task
func (r *TaskRepository) UpdateProgress(ctx context.Context, id uuid.UUID, step string) error {
	query := `
		UPDATE tasks SET
			current_step = $2,
			updated_at = NOW()
		WHERE id = $1 AND status = $3`

	return r.transition(ctx, id, query, id, step, models.TaskRunning)
}

// Complete marks a running task as completed with its result
func (r *TaskRepository) Complete(ctx context.Context, id uuid.UUID, result models.Payload) error {
	query := `
		UPDATE tasks SET
			status = $2,
			result = $3,
			completed_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND status = $4`

	return r.transition(ctx, id, query, id, models.TaskCompleted, jsonArg(result), models.TaskRunning)
}

// Fail marks a running task as failed
func (r *TaskRepository) Fail(ctx context.Context, id uuid.UUID, errorMessage string) error {
	query := `
		UPDATE tasks SET
			status = $2,
			error_message = $3,
			completed_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND status = $4`

	return r.transition(ctx, id, query, id, models.TaskFailed, errorMessage, models.TaskRunning)
}

// ListByStatus lists tasks in a status, oldest first
func (r *TaskRepository) ListByStatus(ctx context.Context, status models.TaskStatus) ([]*models.Task, error) {
	rows, err := r.db.Query(ctx, `SELECT `+taskColumns+` FROM tasks WHERE status = $1 ORDER BY created_at, id`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// ListActiveByOwner lists the owner's pending and running tasks, oldest first
func (r *TaskRepository) ListActiveByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE owner_id = $1 AND status IN ($2, $3)
		ORDER BY created_at, id`
	rows, err := r.db.Query(ctx, query, ownerID, models.TaskPending, models.TaskRunning)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// transition runs a guarded update. No affected row means the task is
// missing or not in the required state.
func (r *TaskRepository) transition(ctx context.Context, id uuid.UUID, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	task, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("task %s is %s: %w", id, task.Status, apperrors.ErrInvalidTransition)
}

// jsonArg passes an empty payload as SQL NULL
func jsonArg(p models.Payload) any {
	if len(p) == 0 {
		return nil
	}
	return []byte(p)
}
