package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"paperlens-backend/models"
	"paperlens-backend/repository/memory"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTask models.TaskType = "test_task"

func newTestManager(fn TaskFunc) (*TaskManager, *memory.TaskStore) {
	store := memory.NewTaskStore()
	m := NewTaskManager(store, WithPollInterval(5*time.Millisecond), WithWorkers(2))
	m.Register(testTask, fn)
	return m, store
}

func TestTaskManager_RunCompletes(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(func(_ context.Context, task *models.Task, progress ProgressFunc) (any, error) {
		progress("working")
		return map[string]string{"owner": task.OwnerID.String()}, nil
	})

	owner := uuid.New()
	task, err := m.Submit(ctx, testTask, owner)
	require.NoError(t, err)
	assert.Equal(t, models.TaskPending, task.Status)

	require.NoError(t, m.Run(ctx, task.ID))
	got, err := m.GetStatus(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, got.Status)
	assert.Equal(t, "working", *got.CurrentStep)
	assert.JSONEq(t, `{"owner":"`+owner.String()+`"}`, string(got.Result))
	assert.Nil(t, got.ErrorMessage)
}

func TestTaskManager_RunFails(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(func(context.Context, *models.Task, ProgressFunc) (any, error) {
		return nil, errors.New("model unavailable")
	})

	task, err := m.Create(ctx, testTask, uuid.New())
	require.NoError(t, err)
	require.NoError(t, m.Run(ctx, task.ID))

	got, err := m.GetStatus(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskFailed, got.Status)
	assert.Equal(t, "model unavailable", *got.ErrorMessage)
	assert.Nil(t, got.Result)
}

func TestTaskManager_PanicBecomesFailure(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(func(context.Context, *models.Task, ProgressFunc) (any, error) {
		panic("index out of range")
	})

	task, err := m.Create(ctx, testTask, uuid.New())
	require.NoError(t, err)
	require.NoError(t, m.Run(ctx, task.ID))

	got, err := m.GetStatus(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskFailed, got.Status)
	assert.Contains(t, *got.ErrorMessage, "index out of range")
}

func TestTaskManager_RunsAtMostOnce(t *testing.T) {
	ctx := context.Background()
	var runs atomic.Int32
	m, _ := newTestManager(func(context.Context, *models.Task, ProgressFunc) (any, error) {
		runs.Add(1)
		return nil, nil
	})

	task, err := m.Create(ctx, testTask, uuid.New())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Run(ctx, task.ID))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), runs.Load())
}

func TestTaskManager_AwaitTimeoutIsAdvisory(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})
	m, _ := newTestManager(func(context.Context, *models.Task, ProgressFunc) (any, error) {
		close(started)
		<-release
		return "done", nil
	})

	task, err := m.Create(ctx, testTask, uuid.New())
	require.NoError(t, err)
	finished := make(chan error, 1)
	go func() { finished <- m.Run(ctx, task.ID) }()
	<-started

	view, err := m.Await(ctx, task.ID, 30*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, models.TaskTimeout, view.Status)

	stored, err := m.GetStatus(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskRunning, stored.Status)

	close(release)
	require.NoError(t, <-finished)

	view, err = m.Await(ctx, task.ID, time.Second)
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, view.Status)
	assert.JSONEq(t, `"done"`, string(view.Result))
}

func TestTaskManager_AwaitWithoutTimeoutIsSingleRead(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(func(context.Context, *models.Task, ProgressFunc) (any, error) { return nil, nil })

	task, err := m.Create(ctx, testTask, uuid.New())
	require.NoError(t, err)
	view, err := m.Await(ctx, task.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, models.TaskPending, view.Status)

	_, err = m.Await(ctx, uuid.New(), time.Second)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestTaskManager_StartRequeuesPending(t *testing.T) {
	m, store := newTestManager(func(context.Context, *models.Task, ProgressFunc) (any, error) { return "ok", nil })

	// Left pending by a previous process: stored but never queued.
	orphan := &models.Task{ID: uuid.New(), Type: testTask, OwnerID: uuid.New(), Status: models.TaskPending}
	require.NoError(t, store.Create(context.Background(), orphan))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- m.Start(ctx) }()

	submitted, err := m.Submit(ctx, testTask, uuid.New())
	require.NoError(t, err)

	for _, id := range []uuid.UUID{orphan.ID, submitted.ID} {
		assert.Eventually(t, func() bool {
			task, err := m.GetStatus(context.Background(), id)
			return err == nil && task.Status == models.TaskCompleted
		}, 2*time.Second, 5*time.Millisecond)
	}

	cancel()
	require.NoError(t, <-stopped)
}

func TestTaskManager_UnknownType(t *testing.T) {
	m, _ := newTestManager(func(context.Context, *models.Task, ProgressFunc) (any, error) { return nil, nil })
	_, err := m.Submit(context.Background(), "nope", uuid.New())
	assert.ErrorIs(t, err, ErrUnknownTaskType)

	assert.ErrorIs(t, m.Run(context.Background(), uuid.New()), ErrTaskNotFound)
}

func TestTaskManager_OneActiveTaskPerOwnerAndType(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(func(context.Context, *models.Task, ProgressFunc) (any, error) { return nil, nil })
	owner := uuid.New()

	first, err := m.Submit(ctx, testTask, owner)
	require.NoError(t, err)
	_, err = m.Submit(ctx, testTask, owner)
	assert.ErrorIs(t, err, ErrTaskInProgress)

	active, err := m.ActiveTasks(ctx, owner)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, first.ID, active[0].ID)

	require.NoError(t, m.Run(ctx, first.ID))
	active, err = m.ActiveTasks(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = m.Submit(ctx, testTask, owner)
	assert.NoError(t, err)
}

func TestTaskManager_SubmitFromWorkerOnFullQueue(t *testing.T) {
	const childTask models.TaskType = "child_task"
	store := memory.NewTaskStore()
	m := NewTaskManager(store,
		WithWorkers(1),
		WithQueueSize(1),
		WithPollInterval(5*time.Millisecond),
		WithSweepInterval(10*time.Millisecond),
	)

	var children []uuid.UUID
	var mu sync.Mutex
	m.Register(testTask, func(ctx context.Context, task *models.Task, _ ProgressFunc) (any, error) {
		// The only worker is busy here, so the second child finds the queue full.
		for range 2 {
			child, err := m.Submit(ctx, childTask, uuid.New())
			if err != nil {
				return nil, err
			}
			mu.Lock()
			children = append(children, child.ID)
			mu.Unlock()
		}
		return "parent", nil
	})
	m.Register(childTask, func(context.Context, *models.Task, ProgressFunc) (any, error) { return "child", nil })

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- m.Start(ctx) }()

	parent, err := m.Submit(ctx, testTask, uuid.New())
	require.NoError(t, err)
	done, err := m.Await(ctx, parent.ID, 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, models.TaskCompleted, done.Status)

	mu.Lock()
	ids := append([]uuid.UUID(nil), children...)
	mu.Unlock()
	require.Len(t, ids, 2)
	for _, id := range ids {
		assert.Eventually(t, func() bool {
			task, err := m.GetStatus(context.Background(), id)
			return err == nil && task.Status == models.TaskCompleted
		}, 2*time.Second, 5*time.Millisecond)
	}

	cancel()
	require.NoError(t, <-stopped)
}

func TestTaskManager_SubmitDoesNotBlockOnFullQueue(t *testing.T) {
	store := memory.NewTaskStore()
	m := NewTaskManager(store, WithQueueSize(1))
	m.Register(testTask, func(context.Context, *models.Task, ProgressFunc) (any, error) { return nil, nil })
	ctx := context.Background()

	queued, err := m.Submit(ctx, testTask, uuid.New())
	require.NoError(t, err)

	submitted := make(chan *models.Task, 1)
	go func() {
		task, err := m.Submit(ctx, testTask, uuid.New())
		assert.NoError(t, err)
		submitted <- task
	}()

	select {
	case task := <-submitted:
		require.NotNil(t, task)
		assert.Equal(t, models.TaskPending, task.Status)
		assert.NotEqual(t, queued.ID, task.ID)
	case <-time.After(time.Second):
		t.Fatal("Submit blocked on a full queue")
	}

	assert.True(t, m.Enqueue(queued.ID), "an id already on the queue is not queued twice")
}
