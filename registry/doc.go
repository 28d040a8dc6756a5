// Package registry tracks delegation relationships between remote runs.
//
// # Overview
//
// When a remote run delegates work, the orchestrator creates a child
// run and registers the parent→child edge here. The registry answers
// the two questions the rest of the system asks: which runs are still
// being watched (the background monitor polls exactly this set), and
// who delegated a given run (the notification path looks up the parent
// when a child finishes).
//
// # Available Implementations
//
//   - MemoryRegistry: in-memory graph for testing and ephemeral use
//   - FileRegistry: the same graph persisted as a JSON snapshot, so a
//     restarted orchestrator resumes watching the runs it left active
//
// # Basic Usage
//
// Record a delegation and walk it back:
//
//	reg := registry.NewMemoryRegistry()
//	reg.Register(parentRunID, childRunID)
//
//	active, _ := reg.Active()        // runs the monitor should poll
//	parent, ok, _ := reg.Parent(childRunID)
//
//	// After the child's completion has been handled:
//	reg.MarkCompleted(childRunID)
//
// # Completion Is One-Way
//
// MarkCompleted is idempotent and final: once a run is completed it
// leaves the active set for good, and a late Register of the same run
// will not resurrect it. This is what keeps a parent from being
// notified twice about the same child.
package registry
