package handlers

import (
	"net/http"
	"time"

	"paperlens-backend/service"

	"github.com/gin-gonic/gin"
)

// TaskHandler answers task status polls
type TaskHandler struct {
	tasks   *service.TaskManager
	maxWait time.Duration
}

// NewTaskHandler creates a task handler. Long polls are capped at maxWait.
func NewTaskHandler(tasks *service.TaskManager, maxWait time.Duration) *TaskHandler {
	if maxWait <= 0 {
		maxWait = 5 * time.Minute
	}
	return &TaskHandler{tasks: tasks, maxWait: maxWait}
}

// GetTask handles GET /api/tasks/:id. With ?wait=<duration> it blocks until
// the task is terminal or the wait elapses, in which case the reported
// status is "timeout" while the task itself keeps running.
func (h *TaskHandler) GetTask(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var wait time.Duration
	if raw := c.Query("wait"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "wait must be a non-negative duration such as 30s")
			return
		}
		wait = min(d, h.maxWait)
	}

	task, err := h.tasks.Await(c.Request.Context(), id, wait)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, task)
}
