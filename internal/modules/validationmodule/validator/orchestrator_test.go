package validator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dkarlsen/medialib/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// fakeAccessor serves a canned tree so tests can shape pathological
// topologies without touching the filesystem
type fakeAccessor struct {
	children     map[string][]ChildDescriptor
	inaccessible map[string]bool
	onEnumerate  func(path string)
}

func (f *fakeAccessor) IsAccessible(path string) bool {
	if f.inaccessible[path] {
		return false
	}
	_, known := f.children[path]
	return known
}

func (f *fakeAccessor) EnumerateChildren(path string) ([]ChildDescriptor, error) {
	if f.onEnumerate != nil {
		f.onEnumerate(path)
	}
	children, known := f.children[path]
	if !known {
		return nil, fmt.Errorf("unknown path: %s", path)
	}
	return children, nil
}

// fakeRefresher records refresh requests and optionally fails them
type fakeRefresher struct {
	mu        sync.Mutex
	refreshed []string
	err       error
}

func (f *fakeRefresher) Refresh(ctx context.Context, req RefreshRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.refreshed = append(f.refreshed, req.Path)
	return nil
}

func (f *fakeRefresher) paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.refreshed...)
}

func dirEntry(path string, marker int64) ChildDescriptor {
	return ChildDescriptor{Name: filepath.Base(path), Path: path, IsDirectory: true, ModifiedMarker: marker}
}

func fileEntry(path string, marker int64) ChildDescriptor {
	return ChildDescriptor{Name: filepath.Base(path), Path: path, IsDirectory: false, Size: 42, ModifiedMarker: marker}
}

func testRoot(t *testing.T, db *gorm.DB, path string) *database.FolderNode {
	t.Helper()
	library := createTestLibrary(t, db, path)
	node := &database.FolderNode{
		ID:         "root-node",
		LibraryID:  library.ID,
		Path:       Normalize(path),
		Accessible: true,
	}
	require.NoError(t, db.Create(node).Error)
	return node
}

func TestValidateAddsDiscoveredTree(t *testing.T) {
	db := setupTestDB(t)
	root := testRoot(t, db, "/lib")

	accessor := &fakeAccessor{children: map[string][]ChildDescriptor{
		"/lib":       {dirEntry("/lib/album", 1), fileEntry("/lib/track.mp3", 2)},
		"/lib/album": {fileEntry("/lib/album/song.mp3", 3)},
	}}
	refresher := &fakeRefresher{}

	orchestrator := NewOrchestrator(accessor, NewTreeStore(db), refresher, NewPathLockManager(), 2)

	var fractions []float64
	result, err := orchestrator.Validate(context.Background(), root, ValidationOptions{
		Progress: func(f float64) { fractions = append(fractions, f) },
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.FoldersProcessed)
	assert.Equal(t, 1, result.FoldersAdded)
	assert.Equal(t, 2, result.ItemsAdded)
	assert.Equal(t, 2, result.ItemsRefreshed, "new items get an initial refresh")
	assert.Empty(t, result.Issues)
	assert.ElementsMatch(t, []string{"/lib/track.mp3", "/lib/album/song.mp3"}, refresher.paths())

	var folderCount, itemCount int64
	db.Model(&database.FolderNode{}).Count(&folderCount)
	db.Model(&database.MediaItem{}).Count(&itemCount)
	assert.Equal(t, int64(2), folderCount)
	assert.Equal(t, int64(2), itemCount)

	require.NotEmpty(t, fractions)
	assert.Equal(t, 1.0, fractions[len(fractions)-1])
	for i := 1; i < len(fractions); i++ {
		assert.GreaterOrEqual(t, fractions[i], fractions[i-1], "progress must never regress")
	}
}

func TestValidateSecondPassIsStable(t *testing.T) {
	db := setupTestDB(t)
	root := testRoot(t, db, "/lib")

	accessor := &fakeAccessor{children: map[string][]ChildDescriptor{
		"/lib":       {dirEntry("/lib/album", 1)},
		"/lib/album": {fileEntry("/lib/album/song.mp3", 3)},
	}}

	orchestrator := NewOrchestrator(accessor, NewTreeStore(db), &fakeRefresher{}, NewPathLockManager(), 1)

	_, err := orchestrator.Validate(context.Background(), root, ValidationOptions{})
	require.NoError(t, err)

	second, err := orchestrator.Validate(context.Background(), root, ValidationOptions{})
	require.NoError(t, err)
	assert.Zero(t, second.FoldersAdded)
	assert.Zero(t, second.ItemsAdded)
	assert.Zero(t, second.ItemsRemoved)
	assert.Zero(t, second.ItemsRefreshed, "unchanged markers must not re-refresh")
}

func TestValidateRemovesStaleChildren(t *testing.T) {
	db := setupTestDB(t)
	root := testRoot(t, db, "/lib")

	// Recorded state the filesystem no longer backs
	require.NoError(t, db.Create(&database.FolderNode{
		ID: "gone-folder", LibraryID: root.LibraryID, ParentID: &root.ID, Path: "/lib/gone",
	}).Error)
	require.NoError(t, db.Create(&database.MediaItem{
		ID: "gone-item", LibraryID: root.LibraryID, FolderID: root.ID, Path: "/lib/gone.mp3",
	}).Error)
	require.NoError(t, db.Create(&database.MediaItem{
		ID: "nested-item", LibraryID: root.LibraryID, FolderID: "gone-folder", Path: "/lib/gone/deep.mp3",
	}).Error)

	accessor := &fakeAccessor{children: map[string][]ChildDescriptor{"/lib": {}}}
	orchestrator := NewOrchestrator(accessor, NewTreeStore(db), &fakeRefresher{}, NewPathLockManager(), 1)

	result, err := orchestrator.Validate(context.Background(), root, ValidationOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.FoldersRemoved)
	assert.Equal(t, 1, result.ItemsRemoved)

	var folderCount, itemCount int64
	db.Model(&database.FolderNode{}).Count(&folderCount)
	db.Model(&database.MediaItem{}).Count(&itemCount)
	assert.Equal(t, int64(1), folderCount, "only the root survives")
	assert.Equal(t, int64(0), itemCount, "detaching a folder removes its subtree items")
}

func TestValidateAliasCycleCompletes(t *testing.T) {
	db := setupTestDB(t)
	root := testRoot(t, db, "/lib")

	// /lib/sub aliases back to /lib, the virtual-folder loop shape
	accessor := &fakeAccessor{children: map[string][]ChildDescriptor{
		"/lib":     {dirEntry("/lib/sub", 1)},
		"/lib/sub": {dirEntry("/lib", 1)},
	}}
	orchestrator := NewOrchestrator(accessor, NewTreeStore(db), &fakeRefresher{}, NewPathLockManager(), 1)

	result, err := orchestrator.Validate(context.Background(), root, ValidationOptions{})
	require.NoError(t, err, "a cyclic graph must complete, not hang or error")

	assert.Equal(t, 1, result.CountIssues(IssueCycle))
	assert.Equal(t, 2, result.FoldersProcessed)
}

func TestValidateSymlinkCycleCompletes(t *testing.T) {
	tempDir := t.TempDir()
	inner := filepath.Join(tempDir, "inner")
	require.NoError(t, os.Mkdir(inner, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(inner, "song.mp3"), []byte("x"), 0644))
	if err := os.Symlink(tempDir, filepath.Join(inner, "loop")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	db := setupTestDB(t)
	root := testRoot(t, db, tempDir)

	orchestrator := NewOrchestrator(NewOSAccessor(), NewTreeStore(db), &fakeRefresher{}, NewPathLockManager(), 1)

	result, err := orchestrator.Validate(context.Background(), root, ValidationOptions{})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, result.CountIssues(IssueCycle), 1, "the symlink loop must surface as a cycle")
	assert.Equal(t, 1, result.ItemsAdded)
}

func TestValidateCancellationUnwindsCleanly(t *testing.T) {
	db := setupTestDB(t)
	root := testRoot(t, db, "/lib")

	ctx, cancel := context.WithCancel(context.Background())
	accessor := &fakeAccessor{
		children: map[string][]ChildDescriptor{
			"/lib":   {dirEntry("/lib/a", 1), dirEntry("/lib/b", 1)},
			"/lib/a": {},
			"/lib/b": {},
		},
		onEnumerate: func(path string) {
			if path == "/lib" {
				cancel()
			}
		},
	}

	locks := NewPathLockManager()
	orchestrator := NewOrchestrator(accessor, NewTreeStore(db), &fakeRefresher{}, locks, 1)

	_, err := orchestrator.Validate(ctx, root, ValidationOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled), "cancellation must surface as a distinct outcome")
	assert.Equal(t, 0, locks.ActiveLocks(), "cancellation must not leak path locks")

	// A fresh run over the same tree succeeds, proving no chain state leaked
	accessor.onEnumerate = nil
	result, err := orchestrator.Validate(context.Background(), root, ValidationOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, result.FoldersProcessed)
}

func TestValidateInaccessibleSiblingDoesNotBlockOthers(t *testing.T) {
	db := setupTestDB(t)
	root := testRoot(t, db, "/lib")

	accessor := &fakeAccessor{
		children: map[string][]ChildDescriptor{
			"/lib":        {dirEntry("/lib/broken", 1), dirEntry("/lib/ok", 1)},
			"/lib/broken": {},
			"/lib/ok":     {fileEntry("/lib/ok/song.mp3", 2)},
		},
		inaccessible: map[string]bool{"/lib/broken": true},
	}
	orchestrator := NewOrchestrator(accessor, NewTreeStore(db), &fakeRefresher{}, NewPathLockManager(), 1)

	result, err := orchestrator.Validate(context.Background(), root, ValidationOptions{})
	require.NoError(t, err, "an inaccessible branch is non-fatal")

	assert.Equal(t, 1, result.CountIssues(IssueInaccessible))
	assert.Equal(t, 1, result.ItemsAdded, "the accessible sibling still validates")

	var broken database.FolderNode
	require.NoError(t, db.Where("path = ?", "/lib/broken").First(&broken).Error)
	assert.False(t, broken.Accessible)
}

func TestValidateDepthLimitTreatsBranchAsLeaf(t *testing.T) {
	db := setupTestDB(t)
	root := testRoot(t, db, "/lib")

	accessor := &fakeAccessor{children: map[string][]ChildDescriptor{
		"/lib":     {dirEntry("/lib/a", 1)},
		"/lib/a":   {dirEntry("/lib/a/b", 1)},
		"/lib/a/b": {dirEntry("/lib/a/b/c", 1)},
	}}
	orchestrator := NewOrchestrator(accessor, NewTreeStore(db), &fakeRefresher{}, NewPathLockManager(), 1)

	result, err := orchestrator.Validate(context.Background(), root, ValidationOptions{MaxDepth: 2})
	require.NoError(t, err)

	assert.Equal(t, 1, result.CountIssues(IssueDepthExceeded))
	assert.Equal(t, 2, result.FoldersProcessed, "the walk stops descending at the limit")
}

func TestValidateRefreshFailureDoesNotAbort(t *testing.T) {
	db := setupTestDB(t)
	root := testRoot(t, db, "/lib")

	accessor := &fakeAccessor{children: map[string][]ChildDescriptor{
		"/lib": {fileEntry("/lib/bad.mp3", 1)},
	}}
	refresher := &fakeRefresher{err: fmt.Errorf("provider unavailable")}
	orchestrator := NewOrchestrator(accessor, NewTreeStore(db), refresher, NewPathLockManager(), 1)

	result, err := orchestrator.Validate(context.Background(), root, ValidationOptions{})
	require.NoError(t, err, "per-item refresh failures never abort the walk")

	assert.Equal(t, 1, result.RefreshFailures)
	assert.Equal(t, 1, result.CountIssues(IssueRefreshFailed))
	assert.Equal(t, 1, result.FoldersProcessed)
}

func TestValidateRefresherTimeoutIsPerItemFailure(t *testing.T) {
	db := setupTestDB(t)
	root := testRoot(t, db, "/lib")

	accessor := &fakeAccessor{children: map[string][]ChildDescriptor{
		"/lib":       {dirEntry("/lib/album", 1), fileEntry("/lib/track.mp3", 2)},
		"/lib/album": {fileEntry("/lib/album/song.mp3", 3)},
	}}

	// A coordinator enforcing its own per-request deadline reports the
	// timeout as a context error even though the walk is still live
	refresher := &fakeRefresher{err: context.DeadlineExceeded}
	orchestrator := NewOrchestrator(accessor, NewTreeStore(db), refresher, NewPathLockManager(), 2)

	result, err := orchestrator.Validate(context.Background(), root, ValidationOptions{})
	require.NoError(t, err, "an internal refresher timeout must not read as walk cancellation")

	assert.Equal(t, 2, result.FoldersProcessed)
	assert.Equal(t, 2, result.RefreshFailures)
	assert.Equal(t, 2, result.CountIssues(IssueRefreshFailed))
	assert.Zero(t, result.ItemsRefreshed)
}

func TestValidateStoreFailurePropagates(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{})
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "folder_nodes"`)).
		WillReturnError(fmt.Errorf("connection refused"))

	accessor := &fakeAccessor{children: map[string][]ChildDescriptor{"/lib": {}}}
	orchestrator := NewOrchestrator(accessor, NewTreeStore(db), &fakeRefresher{}, NewPathLockManager(), 1)

	root := &database.FolderNode{ID: "root-node", LibraryID: 1, Path: "/lib", Accessible: true}
	_, err = orchestrator.Validate(context.Background(), root, ValidationOptions{})
	require.Error(t, err, "persistence failure is fatal and must unwind the walk")
	assert.False(t, errors.Is(err, context.Canceled))
	assert.Contains(t, err.Error(), "connection refused")
}
