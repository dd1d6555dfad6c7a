package scheduler

import (
	"time"

	"github.com/google/uuid"
)

// TaskFailure records one failed subtask during a pipeline run. Failures live
// in memory only; the backlog document records nothing beyond the terminal
// failed status.
type TaskFailure struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	Title     string    `json:"title"`
	Error     string    `json:"error"`
	ErrorCode string    `json:"error_code,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Phase     string    `json:"phase,omitempty"`
	Milestone string    `json:"milestone,omitempty"`
}

func newTaskFailure(taskID, title, phase, milestone string, err error) TaskFailure {
	return TaskFailure{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		Title:     title,
		Error:     err.Error(),
		ErrorCode: classifyErrorCode(err),
		Timestamp: time.Now().UTC(),
		Phase:     phase,
		Milestone: milestone,
	}
}
