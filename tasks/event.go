package tasks

import (
	"encoding/json"
	"time"
)

// SubjectTerminal is the message bus subject terminal-task events are
// published on. One event is published per task completion, after the
// terminal status has been persisted.
const SubjectTerminal = "tasks.terminal"

// TaskEvent is the envelope broadcast on the bus when a task reaches a
// terminal status. The notification consumer uses it to decide whether
// a parent orchestrator run must be resumed with the outcome.
type TaskEvent struct {
	// TaskID identifies the task that finished.
	TaskID string `json:"task_id"`

	// RemoteRunID is the remote run that executed the task. Zero when
	// the task failed before a run was created.
	RemoteRunID int64 `json:"remote_run_id,omitempty"`

	// OrchestratorRunID is the parent run to notify, zero for tasks
	// that were not delegated.
	OrchestratorRunID int64 `json:"orchestrator_run_id,omitempty"`

	// Status is the terminal local status the task settled in.
	Status Status `json:"status"`

	// Result carries the run output for completed tasks.
	Result string `json:"result,omitempty"`

	// Error carries the failure text for failed tasks.
	Error string `json:"error,omitempty"`

	// OccurredAt is when the terminal status was recorded.
	OccurredAt time.Time `json:"occurred_at"`
}

// NewTaskEvent builds the terminal event for a task record.
func NewTaskEvent(t *Task) *TaskEvent {
	ev := &TaskEvent{
		TaskID:            t.ID,
		RemoteRunID:       t.RemoteRunID,
		OrchestratorRunID: t.OrchestratorRunID,
		Status:            t.Status,
		Result:            t.Result,
		Error:             t.Error,
		OccurredAt:        time.Now(),
	}
	if t.CompletedAt != nil {
		ev.OccurredAt = *t.CompletedAt
	}
	return ev
}

// Validate checks that the event is well formed.
func (e *TaskEvent) Validate() error {
	if e.TaskID == "" {
		return ErrInvalidTask
	}
	if !e.Status.IsTerminal() {
		return ErrBadTransition
	}
	return nil
}

// Marshal serializes the event to JSON.
func (e *TaskEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalTaskEvent deserializes an event from JSON.
func UnmarshalTaskEvent(data []byte) (*TaskEvent, error) {
	var e TaskEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
