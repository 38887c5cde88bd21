package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileAddRemoveRefresh(t *testing.T) {
	reconciler := NewChildReconciler(nil)

	recorded := []RecordedChild{
		{ID: "a", Path: "/lib/a", ModifiedMarker: 100},
		{ID: "b", Path: "/lib/b", ModifiedMarker: 200},
	}
	discovered := []ChildDescriptor{
		{Name: "b", Path: "/lib/b", ModifiedMarker: 200},
		{Name: "c", Path: "/lib/c", ModifiedMarker: 300},
	}

	delta := reconciler.Reconcile(recorded, discovered, false)

	require.Len(t, delta.ToAdd, 1)
	assert.Equal(t, "/lib/c", delta.ToAdd[0].Path)

	require.Len(t, delta.ToRemove, 1)
	assert.Equal(t, "a", delta.ToRemove[0].ID)

	assert.Empty(t, delta.ToRefresh, "unchanged marker must not trigger refresh")
}

func TestReconcileChangedMarkerTriggersRefresh(t *testing.T) {
	reconciler := NewChildReconciler(nil)

	recorded := []RecordedChild{{ID: "b", Path: "/lib/b", ModifiedMarker: 200}}
	discovered := []ChildDescriptor{{Name: "b", Path: "/lib/b", ModifiedMarker: 250}}

	delta := reconciler.Reconcile(recorded, discovered, false)

	require.Len(t, delta.ToRefresh, 1)
	assert.Equal(t, "b", delta.ToRefresh[0].ID)
	assert.Empty(t, delta.ToAdd)
	assert.Empty(t, delta.ToRemove)
}

func TestReconcileForceRefresh(t *testing.T) {
	reconciler := NewChildReconciler(nil)

	recorded := []RecordedChild{{ID: "b", Path: "/lib/b", ModifiedMarker: 200}}
	discovered := []ChildDescriptor{{Name: "b", Path: "/lib/b", ModifiedMarker: 200}}

	delta := reconciler.Reconcile(recorded, discovered, true)

	require.Len(t, delta.ToRefresh, 1)
	assert.Equal(t, "b", delta.ToRefresh[0].ID)
}

func TestReconcileDuplicateAliasFirstWins(t *testing.T) {
	reconciler := NewChildReconciler(nil)

	discovered := []ChildDescriptor{
		{Name: "x", Path: "/lib/x", ModifiedMarker: 1},
		{Name: "x2", Path: "/lib/x/", ModifiedMarker: 2},
	}

	delta := reconciler.Reconcile(nil, discovered, false)

	require.Len(t, delta.ToAdd, 1, "only the first of two aliases is authoritative")
	assert.Equal(t, int64(1), delta.ToAdd[0].ModifiedMarker)
	require.Len(t, delta.DuplicateAliases, 1)
	assert.Equal(t, "/lib/x", delta.DuplicateAliases[0])
}

func TestReconcileProtectsActiveChainPaths(t *testing.T) {
	tracker := NewVisitedPathTracker()
	require.True(t, tracker.Enter("/lib/active"))

	reconciler := NewChildReconciler(tracker.Contains)

	recorded := []RecordedChild{
		{ID: "active", Path: "/lib/active", ModifiedMarker: 1},
		{ID: "stale", Path: "/lib/stale", ModifiedMarker: 1},
	}

	delta := reconciler.Reconcile(recorded, nil, false)

	require.Len(t, delta.ToRemove, 1, "a node mid-validation elsewhere must not be removed")
	assert.Equal(t, "stale", delta.ToRemove[0].ID)

	// Once the chain exits, the node is removable again
	tracker.Exit("/lib/active")
	delta = reconciler.Reconcile(recorded, nil, false)
	assert.Len(t, delta.ToRemove, 2)
}

func TestReconcileIgnoresEmptyPaths(t *testing.T) {
	reconciler := NewChildReconciler(nil)

	recorded := []RecordedChild{{ID: "empty", Path: "   "}}
	discovered := []ChildDescriptor{{Name: "blank", Path: ""}}

	delta := reconciler.Reconcile(recorded, discovered, false)

	assert.Empty(t, delta.ToAdd)
	assert.Empty(t, delta.ToRemove)
	assert.Empty(t, delta.ToRefresh)
}

func TestReconcileMatchesAcrossSpellings(t *testing.T) {
	reconciler := NewChildReconciler(nil)

	recorded := []RecordedChild{{ID: "b", Path: "/lib/b/", ModifiedMarker: 200}}
	discovered := []ChildDescriptor{{Name: "b", Path: "/lib/b", ModifiedMarker: 200}}

	delta := reconciler.Reconcile(recorded, discovered, false)

	assert.Empty(t, delta.ToAdd, "different spellings of the same path must match")
	assert.Empty(t, delta.ToRemove)
}
