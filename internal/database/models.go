package database

import (
	"time"
)

// MediaLibrary represents a configured library root. A library may point at a
// real directory or at a virtual folder alias whose target overlaps another
// library's physical path.
type MediaLibrary struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Path      string    `gorm:"not null" json:"path"`
	Type      string    `gorm:"not null" json:"type"` // "movie", "tv", "music"
	Virtual   bool      `gorm:"default:false" json:"virtual"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FolderNode represents one folder in a library tree. Children are owned
// exclusively by their parent node, but two nodes in different branches may
// resolve to the same physical path (virtual folder aliases).
type FolderNode struct {
	ID             string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	LibraryID      uint      `gorm:"not null;index" json:"library_id"`
	ParentID       *string   `gorm:"type:varchar(36);index" json:"parent_id,omitempty"`
	Path           string    `gorm:"not null;index" json:"path"`
	Accessible     bool      `gorm:"default:true" json:"accessible"`
	ModifiedMarker int64     `json:"modified_marker"` // mtime in unix nanoseconds
	LastValidated  time.Time `json:"last_validated"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// MediaItem represents a media file recorded under a folder node
type MediaItem struct {
	ID             string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	LibraryID      uint      `gorm:"not null;index" json:"library_id"`
	FolderID       string    `gorm:"type:varchar(36);not null;index" json:"folder_id"`
	Path           string    `gorm:"not null;index" json:"path"`
	Size           int64     `json:"size"`
	ModifiedMarker int64     `json:"modified_marker"`
	Title          string    `json:"title,omitempty"`
	Artist         string    `json:"artist,omitempty"`
	Album          string    `json:"album,omitempty"`
	LastSeen       time.Time `json:"last_seen"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ValidationJob tracks one top-level validation run over a library
type ValidationJob struct {
	ID                  uint         `gorm:"primaryKey" json:"id"`
	LibraryID           uint         `gorm:"not null;index" json:"library_id"`
	Library             MediaLibrary `gorm:"foreignKey:LibraryID" json:"library,omitempty"`
	Status              string       `gorm:"not null;default:pending" json:"status"`
	StatusMessage       string       `json:"status_message,omitempty"`
	ErrorMessage        string       `json:"error_message,omitempty"`
	FoldersFound        int          `json:"folders_found"`
	FoldersProcessed    int          `json:"folders_processed"`
	ItemsAdded          int          `json:"items_added"`
	ItemsRemoved        int          `json:"items_removed"`
	ItemsRefreshed      int          `json:"items_refreshed"`
	CyclesDetected      int          `json:"cycles_detected"`
	DepthExceeded       int          `json:"depth_exceeded"`
	InaccessibleFolders int          `json:"inaccessible_folders"`
	RefreshFailures     int          `json:"refresh_failures"`
	Progress            float64      `json:"progress"` // fraction in [0,1]
	StartedAt           *time.Time   `json:"started_at,omitempty"`
	CompletedAt         *time.Time   `json:"completed_at,omitempty"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}
