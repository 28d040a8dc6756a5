package runs

import (
	"context"
	"strings"
	"time"

	kiterrors "github.com/praxisworks/runkit/errors"
	"github.com/praxisworks/runkit/tasks"
)

// PromptSpec describes the work a new run should perform.
type PromptSpec struct {
	// Prompt is the instruction text handed to the remote agent.
	Prompt string `json:"prompt"`

	// Metadata carries opaque key/value pairs stored with the run.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Validate checks that the spec can be submitted.
func (s PromptSpec) Validate() error {
	if strings.TrimSpace(s.Prompt) == "" {
		return kiterrors.Validation("prompt is required")
	}
	return nil
}

// RunInfo is the client's view of one remote agent run. Status is
// already folded into the normalized vocabulary; RawStatus keeps what
// the service actually said, for logs and diagnostics.
type RunInfo struct {
	// ID is the remote run identifier.
	ID int64

	// Status is the normalized run status.
	Status tasks.RemoteStatus

	// RawStatus is the status string as reported by the service.
	RawStatus string

	// Result is the run output, populated once the run completes.
	Result string

	// Error describes the failure for runs that ended in error.
	Error string

	// WebURL links to the run in the service's web UI.
	WebURL string
}

// LogEntry is one line of a run's execution log.
type LogEntry struct {
	// Timestamp is when the line was emitted.
	Timestamp time.Time `json:"timestamp"`

	// Level is the severity the service assigned the line.
	Level string `json:"level,omitempty"`

	// Message is the log text.
	Message string `json:"message"`
}

// Client talks to the remote agent run service. Implementations must
// be safe for concurrent use; the orchestrator's workers and the
// background monitor share one client.
type Client interface {
	// CreateRun starts a new run from a prompt.
	CreateRun(ctx context.Context, spec PromptSpec) (*RunInfo, error)

	// GetRun fetches the current status and outcome of a run.
	GetRun(ctx context.Context, id int64) (*RunInfo, error)

	// ResumeRun continues an existing run with a follow-up prompt.
	ResumeRun(ctx context.Context, id int64, prompt string) (*RunInfo, error)

	// CancelRun asks the service to stop a run.
	CancelRun(ctx context.Context, id int64) (*RunInfo, error)

	// Logs returns a page of the run's log, skipping skip entries and
	// returning at most limit.
	Logs(ctx context.Context, id int64, skip, limit int) ([]LogEntry, error)

	// Close releases the client.
	Close() error
}
