// Package metadata provides the local metadata refresher used as the
// default refresh coordinator: it re-reads embedded tags from media files
// and updates the recorded item.
package metadata

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"github.com/dkarlsen/medialib/internal/database"
	"github.com/dkarlsen/medialib/internal/logger"
	"github.com/dkarlsen/medialib/internal/modules/validationmodule/validator"
	"gorm.io/gorm"
)

// audio extensions dhowden/tag can parse
var taggableExtensions = map[string]bool{
	".mp3":  true,
	".m4a":  true,
	".m4b":  true,
	".m4p":  true,
	".flac": true,
	".ogg":  true,
	".dsf":  true,
}

// Refresher is the local tag-reading RefreshCoordinator
type Refresher struct {
	db *gorm.DB
}

// NewRefresher creates a refresher backed by the given database
func NewRefresher(db *gorm.DB) *Refresher {
	return &Refresher{db: db}
}

var _ validator.RefreshCoordinator = (*Refresher)(nil)

// Refresh re-reads metadata for one item. Failures are returned per item;
// the caller decides they never abort the walk.
func (r *Refresher) Refresh(ctx context.Context, req validator.RefreshRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := os.Stat(req.Path)
	if err != nil {
		return fmt.Errorf("item unreadable: %w", err)
	}

	updates := map[string]interface{}{
		"size":            info.Size(),
		"modified_marker": info.ModTime().UnixNano(),
		"last_seen":       time.Now(),
	}

	if taggableExtensions[strings.ToLower(filepath.Ext(req.Path))] {
		meta, err := readTags(req.Path)
		if err != nil {
			// Unreadable tags still leave a valid item; record the file
			// facts and report the tag failure
			if dbErr := r.apply(req.ItemID, updates); dbErr != nil {
				return dbErr
			}
			return fmt.Errorf("failed to read tags from %s: %w", req.Path, err)
		}

		if req.ReplaceAllMetadata {
			updates["title"] = meta.Title()
			updates["artist"] = meta.Artist()
			updates["album"] = meta.Album()
		} else {
			// Merge: only fill fields the tags actually carry
			if meta.Title() != "" {
				updates["title"] = meta.Title()
			}
			if meta.Artist() != "" {
				updates["artist"] = meta.Artist()
			}
			if meta.Album() != "" {
				updates["album"] = meta.Album()
			}
		}
	}

	if err := r.apply(req.ItemID, updates); err != nil {
		return err
	}

	logger.Debug("Refreshed metadata for %s", req.Path)
	return nil
}

func (r *Refresher) apply(itemID string, updates map[string]interface{}) error {
	err := r.db.Model(&database.MediaItem{}).Where("id = ?", itemID).Updates(updates).Error
	if err != nil {
		return fmt.Errorf("failed to update item %s: %w", itemID, err)
	}
	return nil
}

func readTags(path string) (tag.Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return tag.ReadFrom(f)
}
