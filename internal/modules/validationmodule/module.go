// Package validationmodule wires the validation engine into the module
// system: database migrations, the job manager, folder monitoring, and the
// HTTP control surface.
package validationmodule

import (
	"fmt"

	"github.com/dkarlsen/medialib/internal/config"
	"github.com/dkarlsen/medialib/internal/database"
	"github.com/dkarlsen/medialib/internal/events"
	"github.com/dkarlsen/medialib/internal/logger"
	"github.com/dkarlsen/medialib/internal/metadata"
	"github.com/dkarlsen/medialib/internal/modules/modulemanager"
	"github.com/dkarlsen/medialib/internal/modules/validationmodule/validator"
	"gorm.io/gorm"
)

const (
	// ModuleID is the unique identifier for the validation module
	ModuleID = "system.validation"

	// ModuleName is the display name for the validation module
	ModuleName = "Library Validator"
)

// Module implements library validation as a module
type Module struct {
	db       *gorm.DB
	eventBus events.EventBus
	cfg      *config.Config

	manager *validator.Manager
	monitor *validator.FolderMonitor
}

// NewModule creates a new validation module
func NewModule(db *gorm.DB, eventBus events.EventBus, cfg *config.Config) *Module {
	return &Module{
		db:       db,
		eventBus: eventBus,
		cfg:      cfg,
	}
}

// Register creates the module and adds it to the registry
func Register(db *gorm.DB, eventBus events.EventBus, cfg *config.Config) *Module {
	module := NewModule(db, eventBus, cfg)
	modulemanager.Register(module)
	return module
}

// ID returns the unique module identifier
func (m *Module) ID() string {
	return ModuleID
}

// Name returns the module display name
func (m *Module) Name() string {
	return ModuleName
}

// Core returns whether this is a core module
func (m *Module) Core() bool {
	return true
}

// Migrate performs the module's database migrations
func (m *Module) Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&database.MediaLibrary{},
		&database.FolderNode{},
		&database.MediaItem{},
		&database.ValidationJob{},
	)
}

// Init builds the job manager, recovers orphaned jobs, and starts folder
// monitoring when enabled
func (m *Module) Init() error {
	if m.db == nil || m.cfg == nil {
		return fmt.Errorf("validation module requires a database and configuration")
	}

	m.manager = validator.NewManager(
		m.db,
		m.eventBus,
		m.cfg.Validator,
		validator.NewOSAccessor(),
		metadata.NewRefresher(m.db),
	)

	if err := m.manager.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize validation manager: %w", err)
	}

	if m.cfg.Monitor.Enabled {
		monitor, err := validator.NewFolderMonitor(m.eventBus, m.cfg.Monitor.DebounceInterval, m.onLibraryChanged)
		if err != nil {
			// Monitoring is best-effort; validation still works without it
			logger.Warn("Folder monitoring unavailable: %v", err)
		} else {
			m.monitor = monitor
			m.monitor.Start()
			m.watchExistingLibraries()
		}
	}

	return nil
}

// watchExistingLibraries puts every configured library root under watch
func (m *Module) watchExistingLibraries() {
	var libraries []database.MediaLibrary
	if err := m.db.Find(&libraries).Error; err != nil {
		logger.Warn("Failed to list libraries for monitoring: %v", err)
		return
	}
	for _, library := range libraries {
		if err := m.monitor.WatchLibrary(library.ID, library.Path); err != nil {
			logger.Warn("Failed to watch library %d: %v", library.ID, err)
		}
	}
}

// onLibraryChanged queues a validation pass when a watched root settles
// after a burst of changes. An already-active job covers the change.
func (m *Module) onLibraryChanged(libraryID uint) {
	_, err := m.manager.StartValidation(libraryID, validator.ValidationOptions{})
	if err != nil {
		logger.Debug("Re-validation of library %d not started: %v", libraryID, err)
	}
}

// Manager returns the underlying validation manager
func (m *Module) Manager() *validator.Manager {
	return m.manager
}

// Monitor returns the folder monitor, or nil when monitoring is disabled
func (m *Module) Monitor() *validator.FolderMonitor {
	return m.monitor
}
