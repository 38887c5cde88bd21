package validator

// RecordedChild is one child entry as recorded in the domain tree
type RecordedChild struct {
	ID             string
	Name           string
	Path           string
	IsDirectory    bool
	ModifiedMarker int64
}

// Delta is the reconciliation result for one folder: what to materialize,
// what to detach, and which existing children need a metadata refresh.
// Produced fresh per folder per pass, consumed immediately, then discarded.
type Delta struct {
	ToAdd            []ChildDescriptor
	ToRemove         []RecordedChild
	ToRefresh        []RecordedChild
	DuplicateAliases []string
}

// ChildReconciler diffs discovered children against recorded children.
// Pure computation, no I/O. onActiveChain guards removals: a recorded
// child whose path is still mid-validation on an active chain (an alias
// reachable through another branch) is never removed.
type ChildReconciler struct {
	onActiveChain func(path string) bool
}

// NewChildReconciler creates a reconciler. onActiveChain may be nil, in
// which case no removal is protected.
func NewChildReconciler(onActiveChain func(path string) bool) *ChildReconciler {
	return &ChildReconciler{onActiveChain: onActiveChain}
}

// Reconcile computes the delta between recorded and discovered children.
// Matching is by normalized path. When two discovered entries normalize to
// the same path (duplicate alias), the first in enumeration order wins and
// the duplicate is reported as a cycle-equivalent condition. forceRefresh
// marks every surviving matched child as a refresh candidate regardless of
// its change marker.
func (r *ChildReconciler) Reconcile(recorded []RecordedChild, discovered []ChildDescriptor, forceRefresh bool) Delta {
	var delta Delta

	recordedByPath := make(map[string]RecordedChild, len(recorded))
	for _, child := range recorded {
		path := Normalize(child.Path)
		if path == "" {
			continue
		}
		recordedByPath[path] = child
	}

	seen := make(map[string]struct{}, len(discovered))
	for _, child := range discovered {
		path := Normalize(child.Path)
		if path == "" {
			continue
		}
		if _, dup := seen[path]; dup {
			delta.DuplicateAliases = append(delta.DuplicateAliases, path)
			continue
		}
		seen[path] = struct{}{}

		existing, known := recordedByPath[path]
		if !known {
			delta.ToAdd = append(delta.ToAdd, child)
			continue
		}
		if forceRefresh || existing.ModifiedMarker != child.ModifiedMarker {
			delta.ToRefresh = append(delta.ToRefresh, existing)
		}
	}

	for path, child := range recordedByPath {
		if _, present := seen[path]; present {
			continue
		}
		if r.onActiveChain != nil && r.onActiveChain(path) {
			continue
		}
		delta.ToRemove = append(delta.ToRemove, child)
	}

	return delta
}
