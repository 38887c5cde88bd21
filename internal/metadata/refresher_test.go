package metadata

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dkarlsen/medialib/internal/database"
	"github.com/dkarlsen/medialib/internal/modules/validationmodule/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupRefresherTest(t *testing.T) (*gorm.DB, *Refresher) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&database.MediaItem{}))
	return db, NewRefresher(db)
}

func createItem(t *testing.T, db *gorm.DB, path string) *database.MediaItem {
	item := &database.MediaItem{
		ID:        "item-1",
		LibraryID: 1,
		FolderID:  "folder-1",
		Path:      path,
	}
	require.NoError(t, db.Create(item).Error)
	return item
}

func TestRefreshUpdatesFileFacts(t *testing.T) {
	db, refresher := setupRefresherTest(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))
	item := createItem(t, db, path)

	err := refresher.Refresh(context.Background(), validator.RefreshRequest{ItemID: item.ID, Path: path})
	require.NoError(t, err)

	var stored database.MediaItem
	require.NoError(t, db.First(&stored, "id = ?", item.ID).Error)
	assert.Equal(t, int64(5), stored.Size)
	assert.NotZero(t, stored.ModifiedMarker)
	assert.False(t, stored.LastSeen.IsZero())
}

func TestRefreshMissingFileFails(t *testing.T) {
	_, refresher := setupRefresherTest(t)

	err := refresher.Refresh(context.Background(), validator.RefreshRequest{
		ItemID: "item-1",
		Path:   "/does/not/exist.mp3",
	})
	assert.Error(t, err)
}

func TestRefreshUnreadableTagsStillRecordsFileFacts(t *testing.T) {
	db, refresher := setupRefresherTest(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "broken.mp3")
	require.NoError(t, os.WriteFile(path, []byte("not really audio"), 0644))
	item := createItem(t, db, path)

	err := refresher.Refresh(context.Background(), validator.RefreshRequest{ItemID: item.ID, Path: path})
	assert.Error(t, err, "unparseable tags are reported per item")

	var stored database.MediaItem
	require.NoError(t, db.First(&stored, "id = ?", item.ID).Error)
	assert.Equal(t, int64(len("not really audio")), stored.Size, "file facts survive a tag failure")
}

func TestRefreshHonorsCancellation(t *testing.T) {
	_, refresher := setupRefresherTest(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := refresher.Refresh(ctx, validator.RefreshRequest{ItemID: "item-1", Path: "/anything"})
	assert.ErrorIs(t, err, context.Canceled)
}
