package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"paperlens-backend/apperrors"
	"paperlens-backend/models"

	"github.com/google/uuid"
)

// TaskStore keeps tasks in memory. Every transition is checked against
// models.TaskStatus.CanTransition under the store lock.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*models.Task
}

func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[uuid.UUID]*models.Task)}
}

func (s *TaskStore) Create(_ context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if _, ok := s.tasks[task.ID]; ok {
		return fmt.Errorf("task %s already exists", task.ID)
	}
	if task.Status == "" {
		task.Status = models.TaskPending
	}
	if active(task.Status) {
		for _, t := range s.tasks {
			if t.OwnerID == task.OwnerID && t.Type == task.Type && active(t.Status) {
				return fmt.Errorf("%s for %s: %w", task.Type, task.OwnerID, apperrors.ErrActiveTask)
			}
		}
	}
	now := time.Now()
	task.CreatedAt, task.UpdatedAt = now, now
	s.tasks[task.ID] = task.Clone()
	return nil
}

func (s *TaskStore) GetByID(_ context.Context, id uuid.UUID) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, apperrors.ErrNotFound)
	}
	return t.Clone(), nil
}

func (s *TaskStore) Claim(_ context.Context, id uuid.UUID) (*models.Task, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, false, fmt.Errorf("task %s: %w", id, apperrors.ErrNotFound)
	}
	if !t.Status.CanTransition(models.TaskRunning) {
		return nil, false, nil
	}
	now := time.Now()
	t.Status = models.TaskRunning
	t.StartedAt = &now
	t.UpdatedAt = now
	return t.Clone(), true, nil
}

func (s *TaskStore) UpdateProgress(_ context.Context, id uuid.UUID, step string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task %s: %w", id, apperrors.ErrNotFound)
	}
	if t.Status != models.TaskRunning {
		return fmt.Errorf("task %s is %s: %w", id, t.Status, apperrors.ErrInvalidTransition)
	}
	t.CurrentStep = &step
	t.UpdatedAt = time.Now()
	return nil
}

func (s *TaskStore) Complete(_ context.Context, id uuid.UUID, result models.Payload) error {
	return s.finish(id, models.TaskCompleted, func(t *models.Task) {
		t.Result = append(models.Payload(nil), result...)
	})
}

func (s *TaskStore) Fail(_ context.Context, id uuid.UUID, message string) error {
	return s.finish(id, models.TaskFailed, func(t *models.Task) {
		t.ErrorMessage = &message
	})
}

func (s *TaskStore) finish(id uuid.UUID, to models.TaskStatus, fn func(*models.Task)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task %s: %w", id, apperrors.ErrNotFound)
	}
	if !t.Status.CanTransition(to) {
		return fmt.Errorf("task %s %s -> %s: %w", id, t.Status, to, apperrors.ErrInvalidTransition)
	}
	now := time.Now()
	fn(t)
	t.Status = to
	t.CompletedAt = &now
	t.UpdatedAt = now
	return nil
}

func (s *TaskStore) ListByStatus(_ context.Context, status models.TaskStatus) ([]*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Task
	for _, t := range s.tasks {
		if t.Status == status {
			out = append(out, t.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.Task) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID.String(), b.ID.String()))
	})
	return out, nil
}

// ListActiveByOwner returns the owner's pending and running tasks
func (s *TaskStore) ListActiveByOwner(_ context.Context, ownerID uuid.UUID) ([]*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Task
	for _, t := range s.tasks {
		if t.OwnerID == ownerID && active(t.Status) {
			out = append(out, t.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.Task) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID.String(), b.ID.String()))
	})
	return out, nil
}

func active(s models.TaskStatus) bool {
	return s == models.TaskPending || s == models.TaskRunning
}
