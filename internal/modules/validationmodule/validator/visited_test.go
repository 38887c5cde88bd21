package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrackerEnterDetectsReentry(t *testing.T) {
	tracker := NewVisitedPathTracker()

	assert.True(t, tracker.Enter("/media/a"))
	assert.False(t, tracker.Enter("/media/a"), "unmatched re-entry must report a cycle")
	assert.Equal(t, 1, tracker.Len())
}

func TestTrackerReenterAfterExit(t *testing.T) {
	tracker := NewVisitedPathTracker()

	assert.True(t, tracker.Enter("/media/a"))
	tracker.Exit("/media/a")
	assert.True(t, tracker.Enter("/media/a"), "re-entry after exit must succeed")
	assert.Equal(t, 1, tracker.Len())
}

func TestTrackerEmptyPathsNeverTracked(t *testing.T) {
	tracker := NewVisitedPathTracker()

	assert.False(t, tracker.Enter(""))
	assert.False(t, tracker.Enter(""))
	tracker.Exit("")
	assert.Equal(t, 0, tracker.Len(), "empty paths must never occupy the set")
	assert.False(t, tracker.Contains(""))
}

func TestTrackerExitUnknownPathIsNoop(t *testing.T) {
	tracker := NewVisitedPathTracker()

	assert.True(t, tracker.Enter("/media/a"))
	tracker.Exit("/media/b")
	assert.Equal(t, 1, tracker.Len())
	assert.True(t, tracker.Contains("/media/a"))
}

func TestTrackerIndependentPaths(t *testing.T) {
	tracker := NewVisitedPathTracker()

	assert.True(t, tracker.Enter("/media/a"))
	assert.True(t, tracker.Enter("/media/b"))
	assert.Equal(t, 2, tracker.Len())

	tracker.Exit("/media/a")
	assert.False(t, tracker.Contains("/media/a"))
	assert.True(t, tracker.Contains("/media/b"))
}
