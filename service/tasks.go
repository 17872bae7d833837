package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"paperlens-backend/apperrors"
	"paperlens-backend/models"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	ErrTaskNotFound    = errors.New("task not found")
	ErrUnknownTaskType = errors.New("unknown task type")
	ErrTaskInProgress  = errors.New("task already in progress")
)

// ProgressFunc records the step a running task is on.
type ProgressFunc func(step string)

// TaskFunc executes one task. The returned value is stored as the task
// result; an error fails the task with its message.
type TaskFunc func(ctx context.Context, task *models.Task, progress ProgressFunc) (any, error)

// TaskManager creates tasks, hands them to a worker pool and answers status
// polls from the task store.
type TaskManager struct {
	tasks        TaskStore
	logger       *slog.Logger
	workers      int
	pollInterval  time.Duration
	sweepInterval time.Duration
	queue         chan uuid.UUID

	mu       sync.RWMutex
	handlers map[models.TaskType]TaskFunc

	queuedMu sync.Mutex
	queued   map[uuid.UUID]struct{}
}

// TaskManagerOption is a functional option for TaskManager
type TaskManagerOption func(*TaskManager)

// WithWorkers sets the number of concurrent workers
func WithWorkers(n int) TaskManagerOption {
	return func(m *TaskManager) {
		if n > 0 {
			m.workers = n
		}
	}
}

// WithQueueSize sets the buffer of the in-process task queue
func WithQueueSize(n int) TaskManagerOption {
	return func(m *TaskManager) {
		if n > 0 {
			m.queue = make(chan uuid.UUID, n)
		}
	}
}

// WithTaskLogger sets the logger
func WithTaskLogger(logger *slog.Logger) TaskManagerOption {
	return func(m *TaskManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithPollInterval sets how often Await re-reads a task
func WithPollInterval(d time.Duration) TaskManagerOption {
	return func(m *TaskManager) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// WithSweepInterval sets how often Start looks for pending tasks that are
// not on the queue
func WithSweepInterval(d time.Duration) TaskManagerOption {
	return func(m *TaskManager) {
		if d > 0 {
			m.sweepInterval = d
		}
	}
}

// NewTaskManager creates a task manager over store
func NewTaskManager(store TaskStore, opts ...TaskManagerOption) *TaskManager {
	m := &TaskManager{
		tasks:        store,
		logger:       slog.Default(),
		workers:      4,
		pollInterval:  250 * time.Millisecond,
		sweepInterval: 30 * time.Second,
		queue:         make(chan uuid.UUID, 256),
		handlers:      make(map[models.TaskType]TaskFunc),
		queued:        make(map[uuid.UUID]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register installs the function that executes tasks of type t
func (m *TaskManager) Register(t models.TaskType, fn TaskFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[t] = fn
}

func (m *TaskManager) handler(t models.TaskType) (TaskFunc, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn, ok := m.handlers[t]
	return fn, ok
}

// Create inserts a pending task without scheduling it. It returns
// ErrTaskInProgress when the owner already has a pending or running task of
// the same type.
func (m *TaskManager) Create(ctx context.Context, t models.TaskType, ownerID uuid.UUID) (*models.Task, error) {
	if _, ok := m.handler(t); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTaskType, t)
	}
	task := &models.Task{
		ID:      uuid.New(),
		Type:    t,
		OwnerID: ownerID,
		Status:  models.TaskPending,
	}
	if err := m.tasks.Create(ctx, task); err != nil {
		if errors.Is(err, apperrors.ErrActiveTask) {
			return nil, fmt.Errorf("%w: %s for %s", ErrTaskInProgress, t, ownerID)
		}
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return task, nil
}

// ActiveTasks lists the owner's pending and running tasks
func (m *TaskManager) ActiveTasks(ctx context.Context, ownerID uuid.UUID) ([]*models.Task, error) {
	return m.tasks.ListActiveByOwner(ctx, ownerID)
}

// Submit creates a pending task and queues it. It never waits for queue
// space, so it is safe to call from inside a running task.
func (m *TaskManager) Submit(ctx context.Context, t models.TaskType, ownerID uuid.UUID) (*models.Task, error) {
	task, err := m.Create(ctx, t, ownerID)
	if err != nil {
		return nil, err
	}
	logger := m.logger.With("task_id", task.ID, "task_type", t, "owner_id", ownerID)
	if !m.Enqueue(task.ID) {
		logger.Warn("task queue full, task left pending for the sweep")
		return task, nil
	}
	logger.Info("task submitted")
	return task, nil
}

// Enqueue hands an existing task to the worker pool without blocking. It
// reports false when the queue is full; the task stays pending and the
// periodic sweep in Start queues it later. An id already on the queue is
// not added twice.
func (m *TaskManager) Enqueue(id uuid.UUID) bool {
	m.queuedMu.Lock()
	defer m.queuedMu.Unlock()
	if _, ok := m.queued[id]; ok {
		return true
	}
	select {
	case m.queue <- id:
		m.queued[id] = struct{}{}
		return true
	default:
		return false
	}
}

func (m *TaskManager) dequeued(id uuid.UUID) {
	m.queuedMu.Lock()
	delete(m.queued, id)
	m.queuedMu.Unlock()
}

// sweep queues pending tasks until the queue is full
func (m *TaskManager) sweep(ctx context.Context) error {
	pending, err := m.tasks.ListByStatus(ctx, models.TaskPending)
	if err != nil {
		return fmt.Errorf("failed to list pending tasks: %w", err)
	}
	for i, t := range pending {
		if !m.Enqueue(t.ID) {
			m.logger.Debug("task queue full during sweep", "left_pending", len(pending)-i)
			break
		}
	}
	return nil
}

// Run executes one task. Only the caller that wins the pending->running
// claim executes it; everyone else returns nil immediately. Errors and
// panics inside the task are recorded as a failed task.
func (m *TaskManager) Run(ctx context.Context, id uuid.UUID) error {
	task, claimed, err := m.tasks.Claim(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return ErrTaskNotFound
		}
		return fmt.Errorf("failed to claim task: %w", err)
	}
	if !claimed {
		m.logger.Debug("task already claimed", "task_id", id)
		return nil
	}

	logger := m.logger.With("task_id", task.ID, "task_type", task.Type, "owner_id", task.OwnerID)
	start := time.Now()
	result, runErr := m.execute(ctx, task, logger)

	// The outcome is recorded even when ctx was cancelled mid-task.
	storeCtx := context.WithoutCancel(ctx)
	if runErr != nil {
		logger.Warn("task failed", "error", runErr, "duration_ms", time.Since(start).Milliseconds())
		if err := m.tasks.Fail(storeCtx, task.ID, runErr.Error()); err != nil {
			return fmt.Errorf("failed to record task failure: %w", err)
		}
		return nil
	}

	payload, err := models.NewPayload(result)
	if err != nil {
		if ferr := m.tasks.Fail(storeCtx, task.ID, "failed to encode result: "+err.Error()); ferr != nil {
			return fmt.Errorf("failed to record task failure: %w", ferr)
		}
		return nil
	}
	if err := m.tasks.Complete(storeCtx, task.ID, payload); err != nil {
		return fmt.Errorf("failed to complete task: %w", err)
	}
	logger.Info("task completed", "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (m *TaskManager) execute(ctx context.Context, task *models.Task, logger *slog.Logger) (result any, err error) {
	fn, ok := m.handler(task.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTaskType, task.Type)
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("task panicked", "panic", r, "stack", string(debug.Stack()))
			result, err = nil, fmt.Errorf("internal error: %v", r)
		}
	}()

	progress := func(step string) {
		if err := m.tasks.UpdateProgress(ctx, task.ID, step); err != nil {
			logger.Warn("failed to update task progress", "step", step, "error", err)
		}
	}
	return fn(ctx, task, progress)
}

// Start queues tasks left pending by a previous run and then runs the
// worker pool until ctx is cancelled. Pending tasks that did not fit on the
// queue are swept onto it every sweep interval.
func (m *TaskManager) Start(ctx context.Context) error {
	if err := m.sweep(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := time.NewTicker(m.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := m.sweep(ctx); err != nil && ctx.Err() == nil {
					m.logger.Warn("pending task sweep failed", "error", err)
				}
			}
		}
	})

	for i := 0; i < m.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case id := <-m.queue:
					m.dequeued(id)
					if err := m.Run(ctx, id); err != nil {
						m.logger.Error("task run failed", "task_id", id, "error", err)
					}
				}
			}
		})
	}
	m.logger.Info("task workers started", "workers", m.workers)
	return g.Wait()
}

// GetStatus is a pure read of the stored task
func (m *TaskManager) GetStatus(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	task, err := m.tasks.GetByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return task, nil
}

// Await polls a task until it is terminal or timeout elapses. On timeout it
// returns a copy whose status is models.TaskTimeout; the stored task is not
// touched and keeps running. A non-positive timeout is a single read.
func (m *TaskManager) Await(ctx context.Context, id uuid.UUID, timeout time.Duration) (*models.Task, error) {
	task, err := m.GetStatus(ctx, id)
	if err != nil || timeout <= 0 || task.Status.IsTerminal() {
		return task, err
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			view := task.Clone()
			view.Status = models.TaskTimeout
			return view, nil
		case <-ticker.C:
			task, err = m.GetStatus(ctx, id)
			if err != nil {
				return nil, err
			}
			if task.Status.IsTerminal() {
				return task, nil
			}
		}
	}
}
