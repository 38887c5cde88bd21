package validator

// VisitedPathTracker holds the set of normalized paths currently being
// descended within one validation chain. It is scoped strictly to a single
// top-level Validate call and is never shared across chains, so it needs no
// locking of its own.
type VisitedPathTracker struct {
	active map[string]struct{}
}

// NewVisitedPathTracker creates an empty tracker for a fresh chain
func NewVisitedPathTracker() *VisitedPathTracker {
	return &VisitedPathTracker{
		active: make(map[string]struct{}),
	}
}

// Enter attempts to add path to the active chain. It returns true and
// records the path on first entry. It returns false if the path is already
// on the chain (a cycle) or if the path is empty; empty paths are excluded
// from cycle accounting entirely and are never tracked.
func (t *VisitedPathTracker) Enter(path string) bool {
	if path == "" {
		return false
	}
	if _, exists := t.active[path]; exists {
		return false
	}
	t.active[path] = struct{}{}
	return true
}

// Exit removes path from the active chain. No-op for empty or untracked
// paths. Must be called exactly once for every Enter that returned true,
// on every exit path including cancellation and error.
func (t *VisitedPathTracker) Exit(path string) {
	if path == "" {
		return
	}
	delete(t.active, path)
}

// Contains reports whether path is currently on the chain
func (t *VisitedPathTracker) Contains(path string) bool {
	if path == "" {
		return false
	}
	_, exists := t.active[path]
	return exists
}

// Len returns the number of paths currently on the chain
func (t *VisitedPathTracker) Len() int {
	return len(t.active)
}
