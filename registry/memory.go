package registry

import (
	"sort"
	"sync"
)

// MemoryRegistry is an in-memory implementation of Registry.
// Suitable for testing and single-process deployments.
type MemoryRegistry struct {
	mu        sync.RWMutex
	children  map[int64][]int64
	parents   map[int64]int64
	active    map[int64]struct{}
	completed map[int64]struct{}
	closed    bool
}

var _ Registry = (*MemoryRegistry)(nil)

// NewMemoryRegistry creates a new in-memory relationship registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		children:  make(map[int64][]int64),
		parents:   make(map[int64]int64),
		active:    make(map[int64]struct{}),
		completed: make(map[int64]struct{}),
	}
}

// Register records a delegation edge and activates the child.
func (r *MemoryRegistry) Register(parentRunID, childRunID int64) error {
	if err := ValidateRunID(parentRunID); err != nil {
		return err
	}
	if err := ValidateRunID(childRunID); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	if prev, ok := r.parents[childRunID]; ok {
		if prev == parentRunID {
			// Same edge again: only ensure the child is watched.
			if _, done := r.completed[childRunID]; !done {
				r.active[childRunID] = struct{}{}
			}
			return nil
		}
		r.removeChild(prev, childRunID)
	}

	r.parents[childRunID] = parentRunID
	r.children[parentRunID] = append(r.children[parentRunID], childRunID)
	if _, done := r.completed[childRunID]; !done {
		r.active[childRunID] = struct{}{}
	}
	return nil
}

// removeChild drops childRunID from parentRunID's child list.
// Must be called with the lock held.
func (r *MemoryRegistry) removeChild(parentRunID, childRunID int64) {
	kids := r.children[parentRunID]
	for i, id := range kids {
		if id == childRunID {
			r.children[parentRunID] = append(kids[:i], kids[i+1:]...)
			break
		}
	}
	if len(r.children[parentRunID]) == 0 {
		delete(r.children, parentRunID)
	}
}

// MarkCompleted moves a run out of the active set.
func (r *MemoryRegistry) MarkCompleted(runID int64) error {
	if err := ValidateRunID(runID); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	delete(r.active, runID)
	r.completed[runID] = struct{}{}
	return nil
}

// Parent returns the run that delegated childRunID.
func (r *MemoryRegistry) Parent(childRunID int64) (int64, bool, error) {
	if err := ValidateRunID(childRunID); err != nil {
		return 0, false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return 0, false, ErrClosed
	}

	parent, ok := r.parents[childRunID]
	return parent, ok, nil
}

// Children returns the runs delegated by parentRunID, sorted.
func (r *MemoryRegistry) Children(parentRunID int64) ([]int64, error) {
	if err := ValidateRunID(parentRunID); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrClosed
	}

	kids := make([]int64, len(r.children[parentRunID]))
	copy(kids, r.children[parentRunID])
	sortRunIDs(kids)
	return kids, nil
}

// Active returns a sorted snapshot of the runs being watched.
func (r *MemoryRegistry) Active() ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrClosed
	}

	ids := make([]int64, 0, len(r.active))
	for id := range r.active {
		ids = append(ids, id)
	}
	sortRunIDs(ids)
	return ids, nil
}

// Snapshot returns a deep copy of the relationship state.
func (r *MemoryRegistry) Snapshot() (*Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrClosed
	}

	snap := &Snapshot{
		Children: make(map[int64][]int64, len(r.children)),
		Parents:  make(map[int64]int64, len(r.parents)),
	}
	for parent, kids := range r.children {
		cp := make([]int64, len(kids))
		copy(cp, kids)
		sortRunIDs(cp)
		snap.Children[parent] = cp
	}
	for child, parent := range r.parents {
		snap.Parents[child] = parent
	}
	for id := range r.active {
		snap.Active = append(snap.Active, id)
	}
	for id := range r.completed {
		snap.Completed = append(snap.Completed, id)
	}
	sortRunIDs(snap.Active)
	sortRunIDs(snap.Completed)
	return snap, nil
}

// restore replaces the registry contents with a snapshot.
func (r *MemoryRegistry) restore(snap *Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.children = make(map[int64][]int64, len(snap.Children))
	for parent, kids := range snap.Children {
		cp := make([]int64, len(kids))
		copy(cp, kids)
		r.children[parent] = cp
	}
	r.parents = make(map[int64]int64, len(snap.Parents))
	for child, parent := range snap.Parents {
		r.parents[child] = parent
	}
	r.active = make(map[int64]struct{}, len(snap.Active))
	for _, id := range snap.Active {
		r.active[id] = struct{}{}
	}
	r.completed = make(map[int64]struct{}, len(snap.Completed))
	for _, id := range snap.Completed {
		r.completed[id] = struct{}{}
	}
}

// Close shuts down the registry.
func (r *MemoryRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	r.children = nil
	r.parents = nil
	r.active = nil
	r.completed = nil
	return nil
}

func sortRunIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
