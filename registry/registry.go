package registry

import "errors"

// Common errors.
var (
	ErrClosed       = errors.New("registry closed")
	ErrInvalidRunID = errors.New("invalid run id")
)

// Registry tracks which remote runs delegated which other runs, and
// which delegated runs are still being watched. The orchestrator
// registers an edge when a delegated task's run is created, the
// background monitor polls the active set, and completion moves a run
// into the completed set exactly once.
type Registry interface {
	// Register records that parentRunID delegated childRunID and adds
	// the child to the active set unless it already completed.
	// Registering the same pair again is a no-op.
	Register(parentRunID, childRunID int64) error

	// MarkCompleted moves a run out of the active set. It is
	// idempotent: completing an already-completed or never-registered
	// run is not an error, and a completed run can never be made
	// active again by a late Register.
	MarkCompleted(runID int64) error

	// Parent returns the run that delegated childRunID, and whether
	// such an edge exists.
	Parent(childRunID int64) (int64, bool, error)

	// Children returns the runs delegated by parentRunID, sorted.
	Children(parentRunID int64) ([]int64, error)

	// Active returns the runs currently being watched, sorted. The
	// result is a snapshot; it does not change as runs complete.
	Active() ([]int64, error)

	// Snapshot returns a deep copy of the full relationship state.
	Snapshot() (*Snapshot, error)

	// Close shuts down the registry.
	Close() error
}

// Snapshot is a point-in-time copy of the relationship graph. It is
// what the file-backed registry persists.
type Snapshot struct {
	// Children maps each parent run to the runs it delegated.
	Children map[int64][]int64 `json:"children,omitempty"`

	// Parents maps each delegated run back to its parent.
	Parents map[int64]int64 `json:"parents,omitempty"`

	// Active lists runs still being watched.
	Active []int64 `json:"active,omitempty"`

	// Completed lists runs that finished and were handled.
	Completed []int64 `json:"completed,omitempty"`
}

// ValidateRunID checks that a run ID is usable. Remote run IDs are
// positive; zero is the sentinel for "no run".
func ValidateRunID(id int64) error {
	if id <= 0 {
		return ErrInvalidRunID
	}
	return nil
}
