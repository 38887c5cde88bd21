package validator

// ValidationOptions configures one top-level validation run. Cancellation
// travels on the context passed to Validate, not in the options.
type ValidationOptions struct {
	// ReplaceAllMetadata tells the refresh coordinator to discard and
	// rebuild metadata instead of merging
	ReplaceAllMetadata bool

	// ForceRefresh marks every matched child as a refresh candidate even
	// when its change marker is unchanged
	ForceRefresh bool

	// MaxDepth bounds descent; non-positive falls back to DefaultMaxDepth
	MaxDepth int

	// Progress, when set, receives a monotonically non-decreasing
	// completion fraction in [0,1] after each folder completes
	Progress func(fraction float64)
}

// IssueKind classifies a non-fatal branch condition
type IssueKind string

const (
	IssueInaccessible   IssueKind = "inaccessible"
	IssueCycle          IssueKind = "cycle"
	IssueDepthExceeded  IssueKind = "depth_exceeded"
	IssueDuplicateAlias IssueKind = "duplicate_alias"
	IssueRefreshFailed  IssueKind = "refresh_failed"
)

// BranchIssue records one non-fatal condition absorbed during the walk
type BranchIssue struct {
	Kind IssueKind `json:"kind"`
	Path string    `json:"path"`
	Err  error     `json:"-"`
}

// Result aggregates the outcome of one Validate call. Branch conditions
// prune single branches and land here; they never unwind the walk.
type Result struct {
	FoldersProcessed  int           `json:"folders_processed"`
	FoldersDiscovered int           `json:"folders_discovered"`
	FoldersAdded      int           `json:"folders_added"`
	FoldersRemoved    int           `json:"folders_removed"`
	ItemsAdded        int           `json:"items_added"`
	ItemsRemoved      int           `json:"items_removed"`
	ItemsRefreshed    int           `json:"items_refreshed"`
	RefreshFailures   int           `json:"refresh_failures"`
	Issues            []BranchIssue `json:"issues,omitempty"`
}

// CountIssues returns how many recorded issues match the given kind
func (r *Result) CountIssues(kind IssueKind) int {
	n := 0
	for _, issue := range r.Issues {
		if issue.Kind == kind {
			n++
		}
	}
	return n
}
