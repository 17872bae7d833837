package models

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the status of an asynchronous task
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	// TaskTimeout is only ever reported to pollers. It is never stored.
	TaskTimeout TaskStatus = "timeout"
)

// IsTerminal reports whether no further transition is possible
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// CanTransition is the single transition table for stored tasks
func (s TaskStatus) CanTransition(to TaskStatus) bool {
	switch s {
	case TaskPending:
		return to == TaskRunning
	case TaskRunning:
		return to == TaskCompleted || to == TaskFailed
	default:
		return false
	}
}

// TaskType names the operation a task executes
type TaskType string

const (
	TaskProcessDocument    TaskType = "process_document"
	TaskExtractDatasets    TaskType = "datasets"
	TaskExtractLicenses    TaskType = "licenses"
	TaskExtractMethodology TaskType = "methodology"
	TaskSectionSummaries   TaskType = "section_summaries"
	TaskGlobalSummary      TaskType = "global_summary"
	TaskGapAnalysis        TaskType = "gap_analysis"
)

// Task represents one tracked unit of asynchronous work
type Task struct {
	ID           uuid.UUID  `json:"id"`
	Type         TaskType   `json:"task_type"`
	OwnerID      uuid.UUID  `json:"owner_id"`
	Status       TaskStatus `json:"status"`
	CurrentStep  *string    `json:"current_step,omitempty"`
	Result       Payload    `json:"result,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a copy that shares no mutable state with t
func (t *Task) Clone() *Task {
	c := *t
	if t.Result != nil {
		c.Result = append(Payload(nil), t.Result...)
	}
	c.CurrentStep = cloneString(t.CurrentStep)
	c.ErrorMessage = cloneString(t.ErrorMessage)
	c.StartedAt = cloneTime(t.StartedAt)
	c.CompletedAt = cloneTime(t.CompletedAt)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
