package validator

import (
	"fmt"
	"time"

	"github.com/dkarlsen/medialib/internal/database"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TreeStore persists the domain tree the orchestrator mutates. Errors from
// the store are the one fatal condition the walk propagates; everything
// else prunes a branch and continues.
type TreeStore interface {
	// Children returns the recorded children of a folder node
	Children(folder *database.FolderNode) ([]RecordedChild, error)

	// MaterializeFolder records a newly discovered subfolder
	MaterializeFolder(parent *database.FolderNode, child ChildDescriptor) (*database.FolderNode, error)

	// MaterializeItem records a newly discovered media item and returns
	// its recorded form
	MaterializeItem(parent *database.FolderNode, child ChildDescriptor) (RecordedChild, error)

	// Detach removes a stale child and, for folders, its subtree
	Detach(child RecordedChild) error

	// SetAccessible updates a folder's accessibility flag
	SetAccessible(folder *database.FolderNode, accessible bool) error

	// MarkValidated stamps a folder as validated in this pass
	MarkValidated(folder *database.FolderNode, marker int64) error
}

// gormTreeStore is the database-backed TreeStore
type gormTreeStore struct {
	db *gorm.DB
}

// NewTreeStore creates a TreeStore backed by the given database
func NewTreeStore(db *gorm.DB) TreeStore {
	return &gormTreeStore{db: db}
}

func (s *gormTreeStore) Children(folder *database.FolderNode) ([]RecordedChild, error) {
	var folders []database.FolderNode
	if err := s.db.Where("parent_id = ?", folder.ID).Find(&folders).Error; err != nil {
		return nil, fmt.Errorf("failed to load child folders of %s: %w", folder.ID, err)
	}

	var items []database.MediaItem
	if err := s.db.Where("folder_id = ?", folder.ID).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to load items of %s: %w", folder.ID, err)
	}

	children := make([]RecordedChild, 0, len(folders)+len(items))
	for _, f := range folders {
		children = append(children, RecordedChild{
			ID:             f.ID,
			Path:           f.Path,
			IsDirectory:    true,
			ModifiedMarker: f.ModifiedMarker,
		})
	}
	for _, item := range items {
		children = append(children, RecordedChild{
			ID:             item.ID,
			Path:           item.Path,
			IsDirectory:    false,
			ModifiedMarker: item.ModifiedMarker,
		})
	}
	return children, nil
}

func (s *gormTreeStore) MaterializeFolder(parent *database.FolderNode, child ChildDescriptor) (*database.FolderNode, error) {
	node := &database.FolderNode{
		ID:             uuid.NewString(),
		LibraryID:      parent.LibraryID,
		ParentID:       &parent.ID,
		Path:           Normalize(child.Path),
		Accessible:     true,
		ModifiedMarker: child.ModifiedMarker,
	}
	if err := s.db.Create(node).Error; err != nil {
		return nil, fmt.Errorf("failed to create folder node %s: %w", node.Path, err)
	}
	return node, nil
}

func (s *gormTreeStore) MaterializeItem(parent *database.FolderNode, child ChildDescriptor) (RecordedChild, error) {
	item := &database.MediaItem{
		ID:             uuid.NewString(),
		LibraryID:      parent.LibraryID,
		FolderID:       parent.ID,
		Path:           Normalize(child.Path),
		Size:           child.Size,
		ModifiedMarker: child.ModifiedMarker,
		LastSeen:       time.Now(),
	}
	if err := s.db.Create(item).Error; err != nil {
		return RecordedChild{}, fmt.Errorf("failed to create media item %s: %w", item.Path, err)
	}
	return RecordedChild{
		ID:             item.ID,
		Path:           item.Path,
		IsDirectory:    false,
		ModifiedMarker: item.ModifiedMarker,
	}, nil
}

func (s *gormTreeStore) Detach(child RecordedChild) error {
	if !child.IsDirectory {
		if err := s.db.Delete(&database.MediaItem{}, "id = ?", child.ID).Error; err != nil {
			return fmt.Errorf("failed to remove item %s: %w", child.ID, err)
		}
		return nil
	}
	return s.detachFolder(child.ID)
}

// detachFolder removes a folder node and everything under it
func (s *gormTreeStore) detachFolder(folderID string) error {
	var subfolders []database.FolderNode
	if err := s.db.Where("parent_id = ?", folderID).Find(&subfolders).Error; err != nil {
		return fmt.Errorf("failed to load subtree of %s: %w", folderID, err)
	}
	for _, sub := range subfolders {
		if err := s.detachFolder(sub.ID); err != nil {
			return err
		}
	}

	if err := s.db.Delete(&database.MediaItem{}, "folder_id = ?", folderID).Error; err != nil {
		return fmt.Errorf("failed to remove items of %s: %w", folderID, err)
	}
	if err := s.db.Delete(&database.FolderNode{}, "id = ?", folderID).Error; err != nil {
		return fmt.Errorf("failed to remove folder %s: %w", folderID, err)
	}
	return nil
}

func (s *gormTreeStore) SetAccessible(folder *database.FolderNode, accessible bool) error {
	err := s.db.Model(&database.FolderNode{}).
		Where("id = ?", folder.ID).
		Update("accessible", accessible).Error
	if err != nil {
		return fmt.Errorf("failed to update accessibility of %s: %w", folder.ID, err)
	}
	folder.Accessible = accessible
	return nil
}

func (s *gormTreeStore) MarkValidated(folder *database.FolderNode, marker int64) error {
	err := s.db.Model(&database.FolderNode{}).
		Where("id = ?", folder.ID).
		Updates(map[string]interface{}{
			"modified_marker": marker,
			"last_validated":  time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark %s validated: %w", folder.ID, err)
	}
	folder.ModifiedMarker = marker
	return nil
}
