package validator

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dkarlsen/medialib/internal/events"
	"github.com/dkarlsen/medialib/internal/logger"
	"github.com/fsnotify/fsnotify"
)

// FolderMonitor watches validated library roots for filesystem changes and
// queues re-validation after a debounce window, so a burst of writes
// triggers a single pass.
type FolderMonitor struct {
	watcher  *fsnotify.Watcher
	eventBus events.EventBus
	debounce time.Duration

	// libraryID resolution for changed paths
	rootsMu sync.RWMutex
	roots   map[string]uint // normalized root path -> library ID

	pendingMu sync.Mutex
	pending   map[uint]*time.Timer // library ID -> debounce timer

	// onChange receives the library ID once the debounce window closes
	onChange func(libraryID uint)

	stopCh  chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

// NewFolderMonitor creates a monitor. onChange is invoked outside any
// monitor lock once per settled burst of changes under a watched root.
func NewFolderMonitor(eventBus events.EventBus, debounce time.Duration, onChange func(libraryID uint)) (*FolderMonitor, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem watcher: %w", err)
	}

	if debounce <= 0 {
		debounce = 2 * time.Second
	}

	return &FolderMonitor{
		watcher:  watcher,
		eventBus: eventBus,
		debounce: debounce,
		roots:    make(map[string]uint),
		pending:  make(map[uint]*time.Timer),
		onChange: onChange,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start begins processing filesystem events
func (fm *FolderMonitor) Start() {
	fm.wg.Add(1)
	go fm.processEvents()
	logger.Info("Folder monitoring started (debounce=%s)", fm.debounce)

	if fm.eventBus != nil {
		fm.eventBus.PublishAsync(events.NewSystemEvent(
			events.EventMonitoringStarted,
			"Folder Monitoring Started",
			"Watching library roots for changes",
		))
	}
}

// WatchLibrary adds a library root and its subdirectories to the watch set
func (fm *FolderMonitor) WatchLibrary(libraryID uint, rootPath string) error {
	root := Normalize(rootPath)
	if root == "" {
		return fmt.Errorf("cannot watch library %d: empty root path", libraryID)
	}

	fm.rootsMu.Lock()
	fm.roots[root] = libraryID
	fm.rootsMu.Unlock()

	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			// Inaccessible subtrees are the validator's problem, not the
			// watcher's
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := fm.watcher.Add(path); err != nil {
			logger.Warn("Failed to watch %s: %v", path, err)
		}
		return nil
	})
}

// UnwatchLibrary removes a library root from the watch set
func (fm *FolderMonitor) UnwatchLibrary(libraryID uint) {
	fm.rootsMu.Lock()
	defer fm.rootsMu.Unlock()
	for root, id := range fm.roots {
		if id == libraryID {
			delete(fm.roots, root)
		}
	}
}

func (fm *FolderMonitor) processEvents() {
	defer fm.wg.Done()

	for {
		select {
		case event, ok := <-fm.watcher.Events:
			if !ok {
				return
			}
			fm.handleEvent(event)
		case err, ok := <-fm.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("Filesystem watcher error: %v", err)
		case <-fm.stopCh:
			return
		}
	}
}

func (fm *FolderMonitor) handleEvent(event fsnotify.Event) {
	path := Normalize(event.Name)
	if path == "" {
		return
	}

	// Newly created directories join the watch set so deeper changes are
	// still observed
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if err := fm.watcher.Add(path); err != nil {
				logger.Warn("Failed to watch new directory %s: %v", path, err)
			}
		}
	}

	libraryID, ok := fm.libraryFor(path)
	if !ok {
		return
	}

	fm.scheduleRevalidation(libraryID, path)
}

// libraryFor resolves the owning library by longest matching watched root
func (fm *FolderMonitor) libraryFor(path string) (uint, bool) {
	fm.rootsMu.RLock()
	defer fm.rootsMu.RUnlock()

	var bestRoot string
	var bestID uint
	found := false
	for root, id := range fm.roots {
		if path == root || len(path) > len(root) && path[:len(root)] == root && path[len(root)] == '/' {
			if len(root) > len(bestRoot) {
				bestRoot, bestID, found = root, id, true
			}
		}
	}
	return bestID, found
}

// scheduleRevalidation resets the library's debounce timer
func (fm *FolderMonitor) scheduleRevalidation(libraryID uint, path string) {
	fm.pendingMu.Lock()
	defer fm.pendingMu.Unlock()

	if timer, exists := fm.pending[libraryID]; exists {
		timer.Stop()
	}

	fm.pending[libraryID] = time.AfterFunc(fm.debounce, func() {
		fm.pendingMu.Lock()
		delete(fm.pending, libraryID)
		fm.pendingMu.Unlock()

		logger.Info("Change burst settled under library %d (last: %s), queueing re-validation", libraryID, path)

		if fm.eventBus != nil {
			event := events.NewSystemEvent(
				events.EventFolderChanged,
				"Library Folder Changed",
				fmt.Sprintf("Changes detected under library #%d", libraryID),
			)
			event.Data = map[string]interface{}{
				"libraryId": libraryID,
				"path":      path,
			}
			fm.eventBus.PublishAsync(event)
		}

		if fm.onChange != nil {
			fm.onChange(libraryID)
		}
	})
}

// Stop shuts the monitor down and cancels pending debounce timers
func (fm *FolderMonitor) Stop() {
	fm.stopped.Do(func() {
		close(fm.stopCh)
		fm.watcher.Close()

		fm.pendingMu.Lock()
		for id, timer := range fm.pending {
			timer.Stop()
			delete(fm.pending, id)
		}
		fm.pendingMu.Unlock()

		fm.wg.Wait()
		logger.Info("Folder monitoring stopped")

		if fm.eventBus != nil {
			fm.eventBus.PublishAsync(events.NewSystemEvent(
				events.EventMonitoringStopped,
				"Folder Monitoring Stopped",
				"No longer watching library roots",
			))
		}
	})
}
