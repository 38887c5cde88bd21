package validator

import (
	"fmt"
	"os"
	"path/filepath"
)

// ChildDescriptor describes one immediate child discovered under a folder
type ChildDescriptor struct {
	Name           string
	Path           string
	IsDirectory    bool
	Size           int64
	ModifiedMarker int64 // mtime in unix nanoseconds
}

// DirectoryAccessor reports accessibility of a path and enumerates its
// immediate children. The engine treats it as an opaque capability; tests
// substitute fakes for pathological tree shapes.
type DirectoryAccessor interface {
	IsAccessible(path string) bool
	EnumerateChildren(path string) ([]ChildDescriptor, error)
}

// osAccessor is the filesystem-backed DirectoryAccessor
type osAccessor struct{}

// NewOSAccessor returns a DirectoryAccessor backed by the local filesystem
func NewOSAccessor() DirectoryAccessor {
	return &osAccessor{}
}

func (a *osAccessor) IsAccessible(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

func (a *osAccessor) EnumerateChildren(path string) ([]ChildDescriptor, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate %s: %w", path, err)
	}

	children := make([]ChildDescriptor, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			// Entry vanished between ReadDir and stat, skip it
			continue
		}

		child := ChildDescriptor{
			Name:           entry.Name(),
			Path:           filepath.Join(path, entry.Name()),
			IsDirectory:    entry.IsDir(),
			ModifiedMarker: info.ModTime().UnixNano(),
		}
		if !entry.IsDir() {
			child.Size = info.Size()
		}

		// Symlinked directories are followed under their physical path so
		// identical locations compare equal and the chain tracker catches
		// the loops they create
		if info.Mode()&os.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(child.Path)
			if err != nil {
				continue
			}
			if target, err := os.Stat(resolved); err == nil && target.IsDir() {
				child.IsDirectory = true
				child.Path = resolved
				child.ModifiedMarker = target.ModTime().UnixNano()
			}
		}

		children = append(children, child)
	}

	return children, nil
}
