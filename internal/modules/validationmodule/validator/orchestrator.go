package validator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkarlsen/medialib/internal/database"
	"github.com/dkarlsen/medialib/internal/logger"
)

// RefreshRequest identifies one item handed to the RefreshCoordinator
type RefreshRequest struct {
	ItemID             string
	Path               string
	ReplaceAllMetadata bool
}

// RefreshCoordinator performs metadata refresh on validated items. The
// engine calls it but does not own its internals; per-item failures are
// recorded and never abort the walk.
type RefreshCoordinator interface {
	Refresh(ctx context.Context, req RefreshRequest) error
}

// Orchestrator drives the validation walk over a library tree. All
// collaborators are injected at construction; nothing is reached through
// ambient lookup.
type Orchestrator struct {
	accessor       DirectoryAccessor
	store          TreeStore
	refresher      RefreshCoordinator
	locks          *PathLockManager
	refreshWorkers int
}

// NewOrchestrator creates an orchestrator with explicit collaborators.
// refreshWorkers bounds the per-folder refresh pool; values below 1 are
// treated as 1.
func NewOrchestrator(accessor DirectoryAccessor, store TreeStore, refresher RefreshCoordinator, locks *PathLockManager, refreshWorkers int) *Orchestrator {
	if refreshWorkers < 1 {
		refreshWorkers = 1
	}
	if locks == nil {
		locks = NewPathLockManager()
	}
	return &Orchestrator{
		accessor:       accessor,
		store:          store,
		refresher:      refresher,
		locks:          locks,
		refreshWorkers: refreshWorkers,
	}
}

// walkState carries the per-chain structures for one Validate call. It is
// owned by the single goroutine driving the walk and discarded when the
// call returns.
type walkState struct {
	tracker    *VisitedPathTracker
	guard      *DepthGuard
	reconciler *ChildReconciler
	estimator  *ProgressEstimator
	opts       ValidationOptions
	result     *Result
}

// Validate walks the tree rooted at root, reconciling recorded children
// against the filesystem. Branch conditions (inaccessible folders, cycles,
// exceeded depth, duplicate aliases, refresh failures) prune single
// branches and are recorded in the Result. Cancellation surfaces the
// context error with all chain state unwound; only store failures are
// otherwise fatal.
func (o *Orchestrator) Validate(ctx context.Context, root *database.FolderNode, opts ValidationOptions) (*Result, error) {
	if root == nil {
		return nil, fmt.Errorf("validation root is required")
	}

	st := &walkState{
		tracker:   NewVisitedPathTracker(),
		guard:     NewDepthGuard(opts.MaxDepth),
		estimator: NewProgressEstimator(),
		opts:      opts,
		result:    &Result{},
	}
	st.reconciler = NewChildReconciler(st.tracker.Contains)

	st.estimator.AddDiscovered(1)
	st.result.FoldersDiscovered = 1

	err := o.visit(ctx, st, root)

	if st.tracker.Len() != 0 || st.guard.Depth() != 0 {
		// Enter/Exit pairing is enforced by defer; hitting this means a
		// bug in the walk itself
		logger.Error("Validation chain leaked state (tracked=%d depth=%d)", st.tracker.Len(), st.guard.Depth())
	}

	if err != nil {
		return st.result, err
	}

	if opts.Progress != nil {
		opts.Progress(1.0)
	}
	return st.result, nil
}

// visit processes one folder: steps 1 through 8 of the walk, with
// guaranteed symmetric release of the depth guard and the chain tracker on
// every exit path.
func (o *Orchestrator) visit(ctx context.Context, st *walkState, folder *database.FolderNode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := Normalize(folder.Path)
	if path == "" {
		st.result.Issues = append(st.result.Issues, BranchIssue{Kind: IssueInaccessible, Path: folder.Path})
		return nil
	}

	// The chain already holds the lock for every path on it; re-acquiring
	// would deadlock on our own lock before the cycle check runs
	if !st.tracker.Contains(path) {
		o.locks.Acquire(path)
		defer o.locks.Release(path)
	}

	if !o.accessor.IsAccessible(path) {
		logger.Warn("Folder inaccessible, skipping branch: %s", path)
		st.result.Issues = append(st.result.Issues, BranchIssue{Kind: IssueInaccessible, Path: path})
		if err := o.store.SetAccessible(folder, false); err != nil {
			return err
		}
		return nil
	}

	if !st.tracker.Enter(path) {
		logger.Warn("Cycle detected, skipping branch: %s", path)
		st.result.Issues = append(st.result.Issues, BranchIssue{Kind: IssueCycle, Path: path})
		return nil
	}
	defer st.tracker.Exit(path)

	withinDepth := st.guard.Enter()
	defer st.guard.Exit()
	if !withinDepth {
		logger.Warn("Max depth %d exceeded at %s, treating as leaf", st.guard.Max(), path)
		st.result.Issues = append(st.result.Issues, BranchIssue{Kind: IssueDepthExceeded, Path: path})
		return nil
	}

	discovered, err := o.accessor.EnumerateChildren(path)
	if err != nil {
		logger.Warn("Failed to enumerate %s, skipping branch: %v", path, err)
		st.result.Issues = append(st.result.Issues, BranchIssue{Kind: IssueInaccessible, Path: path, Err: err})
		return nil
	}

	// Enumeration is a suspension point; cancellation delivered while it
	// was in flight is observed here
	if err := ctx.Err(); err != nil {
		return err
	}

	recorded, err := o.store.Children(folder)
	if err != nil {
		return err
	}

	delta := st.reconciler.Reconcile(recorded, discovered, st.opts.ForceRefresh)
	for _, dup := range delta.DuplicateAliases {
		logger.Warn("Duplicate alias under %s, first enumeration wins: %s", path, dup)
		st.result.Issues = append(st.result.Issues, BranchIssue{Kind: IssueDuplicateAlias, Path: dup})
	}

	subfolders, refreshTargets, err := o.applyDelta(st, folder, delta)
	if err != nil {
		return err
	}

	if err := o.refreshItems(ctx, st, refreshTargets); err != nil {
		return err
	}

	// Surviving recorded subfolders continue the walk alongside the
	// newly materialized ones
	removed := make(map[string]struct{}, len(delta.ToRemove))
	for _, child := range delta.ToRemove {
		removed[child.ID] = struct{}{}
	}
	for _, child := range recorded {
		if !child.IsDirectory {
			continue
		}
		if _, gone := removed[child.ID]; gone {
			continue
		}
		subfolders = append(subfolders, &database.FolderNode{
			ID:        child.ID,
			LibraryID: folder.LibraryID,
			ParentID:  &folder.ID,
			Path:      child.Path,
		})
	}

	st.estimator.AddDiscovered(len(subfolders))
	st.result.FoldersDiscovered += len(subfolders)

	for _, child := range subfolders {
		if err := o.visit(ctx, st, child); err != nil {
			return err
		}
	}

	if err := o.store.MarkValidated(folder, folderMarker(discovered)); err != nil {
		return err
	}

	st.result.FoldersProcessed++
	st.estimator.Update()
	if st.opts.Progress != nil {
		st.opts.Progress(st.estimator.Fraction())
	}
	return nil
}

// applyDelta materializes additions and detaches removals as one unit, so
// no concurrent reader of the tree observes a partial delta for this
// folder (the per-path lock is held for the whole window).
func (o *Orchestrator) applyDelta(st *walkState, folder *database.FolderNode, delta Delta) ([]*database.FolderNode, []RefreshRequest, error) {
	var subfolders []*database.FolderNode
	var refreshTargets []RefreshRequest

	for _, child := range delta.ToAdd {
		if child.IsDirectory {
			node, err := o.store.MaterializeFolder(folder, child)
			if err != nil {
				return nil, nil, err
			}
			subfolders = append(subfolders, node)
			st.result.FoldersAdded++
			continue
		}

		item, err := o.store.MaterializeItem(folder, child)
		if err != nil {
			return nil, nil, err
		}
		st.result.ItemsAdded++
		refreshTargets = append(refreshTargets, RefreshRequest{
			ItemID:             item.ID,
			Path:               item.Path,
			ReplaceAllMetadata: st.opts.ReplaceAllMetadata,
		})
	}

	for _, child := range delta.ToRemove {
		if err := o.store.Detach(child); err != nil {
			return nil, nil, err
		}
		if child.IsDirectory {
			st.result.FoldersRemoved++
		} else {
			st.result.ItemsRemoved++
		}
	}

	for _, child := range delta.ToRefresh {
		if child.IsDirectory {
			continue
		}
		refreshTargets = append(refreshTargets, RefreshRequest{
			ItemID:             child.ID,
			Path:               child.Path,
			ReplaceAllMetadata: st.opts.ReplaceAllMetadata,
		})
	}

	return subfolders, refreshTargets, nil
}

// refreshItems runs one folder's refresh candidates through a bounded
// worker pool. Outcomes are aggregated by the walk goroutine alone;
// workers never touch shared counters.
func (o *Orchestrator) refreshItems(ctx context.Context, st *walkState, targets []RefreshRequest) error {
	if len(targets) == 0 || o.refresher == nil {
		return nil
	}

	workers := o.refreshWorkers
	if workers > len(targets) {
		workers = len(targets)
	}

	type outcome struct {
		req RefreshRequest
		err error
	}

	jobs := make(chan RefreshRequest)
	outcomes := make(chan outcome, len(targets))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for req := range jobs {
				outcomes <- outcome{req: req, err: o.refresher.Refresh(ctx, req)}
			}
		}()
	}

	canceled := false
	for _, req := range targets {
		select {
		case jobs <- req:
		case <-ctx.Done():
			canceled = true
		}
		if canceled {
			break
		}
	}
	close(jobs)
	wg.Wait()
	close(outcomes)

	for oc := range outcomes {
		if oc.err == nil {
			st.result.ItemsRefreshed++
			continue
		}
		// Only the walk's own cancellation is a cancellation outcome. A
		// refresher surfacing an internal per-request timeout under a live
		// context is an ordinary per-item failure
		if ctx.Err() != nil && (errors.Is(oc.err, context.Canceled) || errors.Is(oc.err, context.DeadlineExceeded)) {
			continue
		}
		logger.Warn("Metadata refresh failed for %s: %v", oc.req.Path, oc.err)
		st.result.Issues = append(st.result.Issues, BranchIssue{Kind: IssueRefreshFailed, Path: oc.req.Path, Err: oc.err})
		st.result.RefreshFailures++
	}

	return ctx.Err()
}

// folderMarker derives a change marker for the folder itself from its
// enumerated children, so an unchanged folder is cheap to revisit
func folderMarker(children []ChildDescriptor) int64 {
	var marker int64
	for _, child := range children {
		if child.ModifiedMarker > marker {
			marker = child.ModifiedMarker
		}
	}
	return marker
}
