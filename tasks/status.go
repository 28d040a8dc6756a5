package tasks

import "strings"

// Status represents the local lifecycle state of a delegated task.
type Status string

const (
	// StatusPending indicates the task is recorded but no remote run
	// has been created for it yet.
	StatusPending Status = "pending"

	// StatusRunning indicates a remote run exists and is being tracked.
	StatusRunning Status = "running"

	// StatusCompleted indicates the task finished successfully.
	StatusCompleted Status = "completed"

	// StatusFailed indicates the task finished unsuccessfully. This
	// includes cancelled tasks, which carry a cancellation marker in
	// their error field.
	StatusFailed Status = "failed"
)

// String returns the status as a string.
func (s Status) String() string {
	return string(s)
}

// Valid reports whether s is one of the defined lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the status is a final state. Terminal
// tasks never transition again.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// rank orders statuses along the one-way lifecycle. Transitions may
// never decrease rank.
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusRunning:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	}
	return -1
}

// RemoteStatus is a status reported by the remote agent run service,
// normalized to a closed vocabulary. Raw service strings are folded
// through ParseRemoteStatus before use.
type RemoteStatus string

const (
	// RemoteActive means the run is executing on the remote service.
	RemoteActive RemoteStatus = "ACTIVE"

	// RemoteComplete means the run finished and produced a result.
	// This is the only status a run can be resumed from.
	RemoteComplete RemoteStatus = "COMPLETE"

	// RemoteError means the run failed on the remote service.
	RemoteError RemoteStatus = "ERROR"

	// RemotePaused means the run is suspended awaiting external input.
	// Paused runs are still open locally but are not treated as
	// actively attended.
	RemotePaused RemoteStatus = "PAUSED"

	// RemoteCancelled means the run was cancelled on the remote service.
	RemoteCancelled RemoteStatus = "CANCELLED"

	// RemoteUnknown is used for statuses the service reports that this
	// package does not recognize. Unknown runs are kept open and
	// watched rather than guessed terminal.
	RemoteUnknown RemoteStatus = "UNKNOWN"
)

// ResumableStatus is the single remote status from which a run may be
// resumed. Resuming from any other status is rejected before any
// remote call is made.
const ResumableStatus = RemoteComplete

// ParseRemoteStatus folds a raw status string from the remote service
// into the normalized vocabulary. Matching is case-insensitive and
// tolerates the aliases different service versions have used.
func ParseRemoteStatus(raw string) RemoteStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "active", "running", "pending", "in_progress", "evaluating":
		return RemoteActive
	case "complete", "completed", "success", "succeeded", "done":
		return RemoteComplete
	case "error", "failed", "failure":
		return RemoteError
	case "paused":
		return RemotePaused
	case "cancelled", "canceled":
		return RemoteCancelled
	}
	return RemoteUnknown
}

// String returns the remote status as a string.
func (s RemoteStatus) String() string {
	return string(s)
}

// statusMapping projects one remote status onto the local lifecycle.
type statusMapping struct {
	local    Status
	terminal bool
	active   bool
}

// statusTable is the single place remote statuses map to local ones.
// All terminal/active decisions elsewhere in the module go through
// these entries.
//
// Unknown statuses map to running/active: a run we cannot classify is
// kept open and polled rather than closed on a guess.
var statusTable = map[RemoteStatus]statusMapping{
	RemoteActive:    {local: StatusRunning, terminal: false, active: true},
	RemoteComplete:  {local: StatusCompleted, terminal: true, active: false},
	RemoteError:     {local: StatusFailed, terminal: true, active: false},
	RemotePaused:    {local: StatusRunning, terminal: false, active: false},
	RemoteCancelled: {local: StatusFailed, terminal: true, active: false},
	RemoteUnknown:   {local: StatusRunning, terminal: false, active: true},
}

func (s RemoteStatus) mapping() statusMapping {
	if m, ok := statusTable[s]; ok {
		return m
	}
	return statusTable[RemoteUnknown]
}

// TaskStatus returns the local lifecycle status this remote status
// maps to.
func (s RemoteStatus) TaskStatus() Status {
	return s.mapping().local
}

// IsTerminal reports whether the remote status is final. Terminal runs
// are settled locally and their watchers stop.
func (s RemoteStatus) IsTerminal() bool {
	return s.mapping().terminal
}

// IsActive reports whether the run is actively attended on the remote
// service. Parent notification is suppressed while a parent is active,
// since an attended run sees child results without being resumed.
func (s RemoteStatus) IsActive() bool {
	return s.mapping().active
}

// Resumable reports whether a run in this status may be resumed.
func (s RemoteStatus) Resumable() bool {
	return s == ResumableStatus
}
