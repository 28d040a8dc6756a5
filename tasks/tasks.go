package tasks

import (
	"errors"
	"strings"
	"time"
)

// Common errors.
var (
	// ErrTaskNotFound is returned when a task ID does not exist.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskExists is returned when creating a task with an ID that
	// is already in use.
	ErrTaskExists = errors.New("task already exists")

	// ErrTaskTerminal is returned when an operation requires an open
	// task but the task has already reached a final status.
	ErrTaskTerminal = errors.New("task already terminal")

	// ErrBadTransition is returned when a status update would move a
	// task backwards along its lifecycle.
	ErrBadTransition = errors.New("invalid status transition")

	// ErrRunIDAssigned is returned when a task already carries a
	// remote run ID and an attempt is made to assign a different one.
	ErrRunIDAssigned = errors.New("remote run id already assigned")

	// ErrInvalidTask is returned when a task record fails validation.
	ErrInvalidTask = errors.New("invalid task")

	// ErrStoreClosed is returned when operations are attempted on a
	// closed store.
	ErrStoreClosed = errors.New("store is closed")
)

// CancellationMarker is recorded in a task's error field when the task
// is cancelled rather than failed by the remote run. Consumers can use
// it to tell the two apart, since both settle as StatusFailed.
const CancellationMarker = "task cancelled"

// Task is the unit of delegated work. It tracks one remote agent run
// from creation through completion.
//
// A task starts pending with no remote run. Once the remote service
// accepts the work the run ID is assigned exactly once and the task
// moves to running. It settles as completed or failed and never
// changes afterwards.
type Task struct {
	// ID uniquely identifies the task within the orchestrator.
	ID string `json:"id"`

	// Prompt is the instruction the remote run is created from.
	// Persisted so pending tasks survive a restart.
	Prompt string `json:"prompt,omitempty"`

	// RemoteRunID is the identifier of the remote agent run executing
	// this task. Zero means no run has been created yet. Once set it
	// never changes.
	RemoteRunID int64 `json:"remote_run_id,omitempty"`

	// OrchestratorRunID identifies the remote run that delegated this
	// task, if any. Zero means the task has no parent and completion
	// triggers no notification.
	OrchestratorRunID int64 `json:"orchestrator_run_id,omitempty"`

	// Status is the local lifecycle state.
	Status Status `json:"status"`

	// RemoteStatus is the last status observed from the remote
	// service, normalized. Empty until the first observation.
	RemoteStatus RemoteStatus `json:"remote_status,omitempty"`

	// Result holds the run's output once it completes.
	Result string `json:"result,omitempty"`

	// Error describes why the task failed, when it did. Cancelled
	// tasks carry CancellationMarker here.
	Error string `json:"error,omitempty"`

	// Metadata carries caller-supplied key/value pairs. The
	// orchestrator stores them verbatim and never interprets them.
	Metadata map[string]string `json:"metadata,omitempty"`

	// WebURL links to the run on the remote service, when the service
	// reports one.
	WebURL string `json:"web_url,omitempty"`

	// CreatedAt is when the task record was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the record last changed. Every persisted
	// mutation refreshes it.
	UpdatedAt time.Time `json:"updated_at"`

	// CompletedAt is when the task reached a terminal status, nil
	// while the task is open.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Validate checks that the task record is well formed.
func (t *Task) Validate() error {
	if t == nil {
		return ErrInvalidTask
	}
	if err := ValidateID(t.ID); err != nil {
		return err
	}
	if t.Status != "" && !t.Status.Valid() {
		return ErrBadTransition
	}
	return nil
}

// ValidateID checks that an ID is usable as a task identifier. IDs end
// up as file names in the file-backed store, so path separators and
// relative path elements are rejected.
func ValidateID(id string) error {
	if id == "" {
		return ErrInvalidTask
	}
	if strings.ContainsAny(id, "/\\") || id == "." || id == ".." {
		return ErrInvalidTask
	}
	return nil
}

// AssignRemoteRun records the remote run executing this task. The run
// ID is set-once: assigning the same ID again is a no-op, assigning a
// different one returns ErrRunIDAssigned.
func (t *Task) AssignRemoteRun(runID int64, webURL string) error {
	if t.RemoteRunID != 0 {
		if t.RemoteRunID == runID {
			return nil
		}
		return ErrRunIDAssigned
	}
	t.RemoteRunID = runID
	if webURL != "" {
		t.WebURL = webURL
	}
	return nil
}

// Delegated reports whether the task was created on behalf of a parent
// orchestrator run.
func (t *Task) Delegated() bool {
	return t.OrchestratorRunID != 0
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	clone := *t
	if t.Metadata != nil {
		clone.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			clone.Metadata[k] = v
		}
	}
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		clone.CompletedAt = &completed
	}
	return &clone
}
