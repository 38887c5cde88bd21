package validator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkarlsen/medialib/internal/config"
	"github.com/dkarlsen/medialib/internal/database"
	"github.com/dkarlsen/medialib/internal/events"
	"github.com/dkarlsen/medialib/internal/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Job status values
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusPaused    = "paused"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"
)

// Manager owns validation job lifecycles: one active job per library,
// orphan recovery after restarts, pause/resume/terminate, and lifecycle
// events on the bus.
type Manager struct {
	db        *gorm.DB
	eventBus  events.EventBus
	cfg       config.ValidatorConfig
	accessor  DirectoryAccessor
	refresher RefreshCoordinator
	locks     *PathLockManager
	load      *LoadMonitor

	jobs   map[uint]*activeJob
	jobsMu sync.RWMutex
	wg     sync.WaitGroup
}

// activeJob tracks a running validation goroutine
type activeJob struct {
	libraryID uint
	cancel    context.CancelFunc
	done      chan struct{}

	mu          sync.Mutex
	finalStatus string // status to record when the context is canceled
}

func (j *activeJob) setFinalStatus(status string) {
	j.mu.Lock()
	j.finalStatus = status
	j.mu.Unlock()
}

func (j *activeJob) cancelStatus() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.finalStatus == "" {
		return StatusCanceled
	}
	return j.finalStatus
}

// NewManager creates a validation job manager with explicit collaborators
func NewManager(db *gorm.DB, eventBus events.EventBus, cfg config.ValidatorConfig, accessor DirectoryAccessor, refresher RefreshCoordinator) *Manager {
	return &Manager{
		db:        db,
		eventBus:  eventBus,
		cfg:       cfg,
		accessor:  accessor,
		refresher: refresher,
		locks:     NewPathLockManager(),
		load:      NewLoadMonitor(cfg.CPUThreshold, cfg.MemoryThreshold),
		jobs:      make(map[uint]*activeJob),
	}
}

// Initialize recovers jobs orphaned by a restart: anything still marked
// running is moved to paused so it can be resumed.
func (m *Manager) Initialize() error {
	var orphaned []database.ValidationJob
	if err := m.db.Where("status = ?", StatusRunning).Find(&orphaned).Error; err != nil {
		return fmt.Errorf("failed to query orphaned validation jobs: %w", err)
	}

	for _, job := range orphaned {
		updates := map[string]interface{}{
			"status":         StatusPaused,
			"status_message": fmt.Sprintf("Paused after restart (had processed %d/%d folders)", job.FoldersProcessed, job.FoldersFound),
			"error_message":  "",
		}
		if err := m.db.Model(&database.ValidationJob{}).Where("id = ?", job.ID).Updates(updates).Error; err != nil {
			logger.Error("Failed to recover orphaned validation job %d: %v", job.ID, err)
			continue
		}
		logger.Info("Recovered orphaned validation job %d for library %d", job.ID, job.LibraryID)
	}

	return nil
}

// StartValidation creates and starts a validation job for the library.
// Only one job may be active per library at a time.
func (m *Manager) StartValidation(libraryID uint, opts ValidationOptions) (*database.ValidationJob, error) {
	m.jobsMu.Lock()
	defer m.jobsMu.Unlock()

	for _, active := range m.jobs {
		if active.libraryID == libraryID {
			return nil, fmt.Errorf("validation already active for library %d", libraryID)
		}
	}

	var library database.MediaLibrary
	if err := m.db.First(&library, libraryID).Error; err != nil {
		return nil, fmt.Errorf("library %d not found: %w", libraryID, err)
	}

	now := time.Now()
	job := &database.ValidationJob{
		LibraryID: libraryID,
		Status:    StatusRunning,
		StartedAt: &now,
	}
	if err := m.db.Create(job).Error; err != nil {
		return nil, fmt.Errorf("failed to create validation job: %w", err)
	}

	if opts.MaxDepth <= 0 {
		opts.MaxDepth = m.cfg.MaxDepth
	}

	ctx, cancel := context.WithCancel(context.Background())
	active := &activeJob{
		libraryID: libraryID,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	m.jobs[job.ID] = active

	if m.eventBus != nil {
		event := events.NewValidationEvent(
			events.EventValidationStarted,
			"Library Validation Started",
			fmt.Sprintf("Starting validation for library #%d at path: %s", libraryID, library.Path),
		)
		event.Data = map[string]interface{}{
			"libraryId": libraryID,
			"jobId":     job.ID,
			"path":      library.Path,
		}
		m.eventBus.PublishAsync(event)
	}

	m.wg.Add(1)
	go m.runJob(ctx, active, job.ID, &library, opts)

	return job, nil
}

// runJob executes one validation job and records its terminal state
func (m *Manager) runJob(ctx context.Context, active *activeJob, jobID uint, library *database.MediaLibrary, opts ValidationOptions) {
	defer m.wg.Done()
	defer close(active.done)
	defer m.removeJob(jobID)

	root, err := m.rootNode(library)
	if err != nil {
		m.finishJob(jobID, library.ID, StatusFailed, nil, err)
		return
	}

	workers := m.cfg.RefreshWorkers
	if m.cfg.AdaptiveScaling {
		workers = m.load.RecommendWorkers(workers)
	}

	orchestrator := NewOrchestrator(m.accessor, NewTreeStore(m.db), m.refresher, m.locks, workers)

	lastPersist := time.Now()
	opts.Progress = func(fraction float64) {
		if time.Since(lastPersist) < m.cfg.ProgressInterval && fraction < 1.0 {
			return
		}
		lastPersist = time.Now()
		m.persistProgress(jobID, library.ID, fraction)
	}

	result, err := orchestrator.Validate(ctx, root, opts)

	switch {
	case err == nil:
		m.finishJob(jobID, library.ID, StatusCompleted, result, nil)
	case errors.Is(err, context.Canceled):
		m.finishJob(jobID, library.ID, active.cancelStatus(), result, err)
	default:
		m.finishJob(jobID, library.ID, StatusFailed, result, err)
	}
}

// rootNode finds or creates the persistent root folder node for a library
func (m *Manager) rootNode(library *database.MediaLibrary) (*database.FolderNode, error) {
	path := Normalize(library.Path)
	if path == "" {
		return nil, fmt.Errorf("library %d has an empty path", library.ID)
	}

	var node database.FolderNode
	err := m.db.Where("library_id = ? AND parent_id IS NULL", library.ID).First(&node).Error
	if err == nil {
		return &node, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load root node for library %d: %w", library.ID, err)
	}

	node = database.FolderNode{
		ID:         uuid.NewString(),
		LibraryID:  library.ID,
		Path:       path,
		Accessible: true,
	}
	if err := m.db.Create(&node).Error; err != nil {
		return nil, fmt.Errorf("failed to create root node for library %d: %w", library.ID, err)
	}
	return &node, nil
}

// persistProgress writes throttled progress to the job row and the bus
func (m *Manager) persistProgress(jobID, libraryID uint, fraction float64) {
	if err := m.db.Model(&database.ValidationJob{}).Where("id = ?", jobID).Update("progress", fraction).Error; err != nil {
		logger.Warn("Failed to persist progress for job %d: %v", jobID, err)
	}

	if m.eventBus != nil {
		event := events.NewValidationEvent(
			events.EventValidationProgress,
			"Validation Progress",
			fmt.Sprintf("Job #%d at %.1f%%", jobID, fraction*100),
		)
		event.Data = map[string]interface{}{
			"jobId":     jobID,
			"libraryId": libraryID,
			"progress":  fraction,
		}
		m.eventBus.PublishAsync(event)
	}
}

// finishJob records the terminal state of a job and publishes the outcome
func (m *Manager) finishJob(jobID, libraryID uint, status string, result *Result, cause error) {
	now := time.Now()
	updates := map[string]interface{}{
		"status":       status,
		"completed_at": &now,
	}
	if result != nil {
		updates["folders_found"] = result.FoldersDiscovered
		updates["folders_processed"] = result.FoldersProcessed
		updates["items_added"] = result.ItemsAdded
		updates["items_removed"] = result.ItemsRemoved
		updates["items_refreshed"] = result.ItemsRefreshed
		updates["cycles_detected"] = result.CountIssues(IssueCycle) + result.CountIssues(IssueDuplicateAlias)
		updates["depth_exceeded"] = result.CountIssues(IssueDepthExceeded)
		updates["inaccessible_folders"] = result.CountIssues(IssueInaccessible)
		updates["refresh_failures"] = result.RefreshFailures
	}
	if status == StatusCompleted {
		updates["progress"] = 1.0
	}
	if cause != nil && status == StatusFailed {
		updates["error_message"] = cause.Error()
	}
	if status == StatusPaused {
		updates["completed_at"] = nil
		updates["status_message"] = "Paused by request"
	}

	if err := m.db.Model(&database.ValidationJob{}).Where("id = ?", jobID).Updates(updates).Error; err != nil {
		logger.Error("Failed to record final state of job %d: %v", jobID, err)
	}

	if m.eventBus == nil {
		return
	}

	if result != nil {
		for _, issue := range result.Issues {
			eventType, title, known := issueEvent(issue.Kind)
			if !known {
				continue
			}
			event := events.NewValidationEvent(eventType, title, issue.Path)
			event.Data = map[string]interface{}{
				"jobId":     jobID,
				"libraryId": libraryID,
				"path":      issue.Path,
			}
			if issue.Err != nil {
				event.Data["error"] = issue.Err.Error()
			}
			m.eventBus.PublishAsync(event)
		}
	}

	var eventType events.EventType
	var title string
	switch status {
	case StatusCompleted:
		eventType, title = events.EventValidationCompleted, "Library Validation Completed"
	case StatusPaused:
		eventType, title = events.EventValidationPaused, "Library Validation Paused"
	case StatusCanceled:
		eventType, title = events.EventValidationCanceled, "Library Validation Canceled"
	default:
		eventType, title = events.EventValidationFailed, "Library Validation Failed"
	}

	event := events.NewValidationEvent(eventType, title, fmt.Sprintf("Validation job #%d for library #%d: %s", jobID, libraryID, status))
	event.Data = map[string]interface{}{
		"jobId":     jobID,
		"libraryId": libraryID,
		"status":    status,
	}
	if result != nil {
		event.Data["foldersProcessed"] = result.FoldersProcessed
		event.Data["itemsAdded"] = result.ItemsAdded
		event.Data["itemsRemoved"] = result.ItemsRemoved
		event.Data["issues"] = len(result.Issues)
	}
	m.eventBus.PublishAsync(event)
}

// issueEvent maps a branch condition to the event it is published as.
// Duplicate aliases surface as cycles; the walk treats them the same way.
func issueEvent(kind IssueKind) (events.EventType, string, bool) {
	switch kind {
	case IssueCycle, IssueDuplicateAlias:
		return events.EventCycleDetected, "Folder Cycle Detected", true
	case IssueDepthExceeded:
		return events.EventDepthExceeded, "Max Folder Depth Exceeded", true
	case IssueInaccessible:
		return events.EventFolderSkipped, "Inaccessible Folder Skipped", true
	case IssueRefreshFailed:
		return events.EventRefreshFailed, "Metadata Refresh Failed", true
	}
	return "", "", false
}

// StopValidation pauses a running job. The job can be resumed later; a
// validation pass is idempotent, so resume re-walks from the root.
func (m *Manager) StopValidation(jobID uint) error {
	m.jobsMu.RLock()
	active, exists := m.jobs[jobID]
	m.jobsMu.RUnlock()

	if !exists {
		return fmt.Errorf("no active validation job %d", jobID)
	}

	active.setFinalStatus(StatusPaused)
	active.cancel()
	return nil
}

// ResumeValidation restarts a paused job as a fresh walk under the same row
func (m *Manager) ResumeValidation(jobID uint, opts ValidationOptions) error {
	var job database.ValidationJob
	if err := m.db.First(&job, jobID).Error; err != nil {
		return fmt.Errorf("validation job %d not found: %w", jobID, err)
	}
	if job.Status != StatusPaused {
		return fmt.Errorf("validation job %d is %s, only paused jobs can be resumed", jobID, job.Status)
	}

	m.jobsMu.Lock()
	for _, active := range m.jobs {
		if active.libraryID == job.LibraryID {
			m.jobsMu.Unlock()
			return fmt.Errorf("validation already active for library %d", job.LibraryID)
		}
	}

	var library database.MediaLibrary
	if err := m.db.First(&library, job.LibraryID).Error; err != nil {
		m.jobsMu.Unlock()
		return fmt.Errorf("library %d not found: %w", job.LibraryID, err)
	}

	updates := map[string]interface{}{
		"status":         StatusRunning,
		"status_message": "",
	}
	if err := m.db.Model(&database.ValidationJob{}).Where("id = ?", jobID).Updates(updates).Error; err != nil {
		m.jobsMu.Unlock()
		return fmt.Errorf("failed to resume validation job %d: %w", jobID, err)
	}

	if opts.MaxDepth <= 0 {
		opts.MaxDepth = m.cfg.MaxDepth
	}

	ctx, cancel := context.WithCancel(context.Background())
	active := &activeJob{
		libraryID: job.LibraryID,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	m.jobs[jobID] = active
	m.jobsMu.Unlock()

	if m.eventBus != nil {
		event := events.NewValidationEvent(
			events.EventValidationResumed,
			"Library Validation Resumed",
			fmt.Sprintf("Resumed validation job #%d for library #%d", jobID, job.LibraryID),
		)
		event.Data = map[string]interface{}{
			"jobId":     jobID,
			"libraryId": job.LibraryID,
		}
		m.eventBus.PublishAsync(event)
	}

	m.wg.Add(1)
	go m.runJob(ctx, active, jobID, &library, opts)

	return nil
}

// TerminateValidation cancels a job outright; it cannot be resumed
func (m *Manager) TerminateValidation(jobID uint) error {
	m.jobsMu.RLock()
	active, exists := m.jobs[jobID]
	m.jobsMu.RUnlock()

	if exists {
		active.setFinalStatus(StatusCanceled)
		active.cancel()
		<-active.done
		return nil
	}

	// Not running; mark any non-terminal row canceled
	result := m.db.Model(&database.ValidationJob{}).
		Where("id = ? AND status IN ?", jobID, []string{StatusPending, StatusPaused}).
		Update("status", StatusCanceled)
	if result.Error != nil {
		return fmt.Errorf("failed to terminate validation job %d: %w", jobID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("no terminable validation job %d", jobID)
	}
	return nil
}

// GetStatus returns the stored state of a job
func (m *Manager) GetStatus(jobID uint) (*database.ValidationJob, error) {
	var job database.ValidationJob
	if err := m.db.First(&job, jobID).Error; err != nil {
		return nil, fmt.Errorf("validation job %d not found: %w", jobID, err)
	}
	return &job, nil
}

// GetAllJobs returns all validation jobs, newest first
func (m *Manager) GetAllJobs() ([]database.ValidationJob, error) {
	var jobs []database.ValidationJob
	if err := m.db.Order("created_at DESC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list validation jobs: %w", err)
	}
	return jobs, nil
}

// ActiveJobCount returns how many jobs are currently running
func (m *Manager) ActiveJobCount() int {
	m.jobsMu.RLock()
	defer m.jobsMu.RUnlock()
	return len(m.jobs)
}

// Shutdown pauses all running jobs and waits for their goroutines
func (m *Manager) Shutdown(ctx context.Context) error {
	m.jobsMu.RLock()
	for _, active := range m.jobs {
		active.setFinalStatus(StatusPaused)
		active.cancel()
	}
	m.jobsMu.RUnlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Validation manager shut down cleanly")
		return nil
	case <-ctx.Done():
		logger.Warn("Validation manager shutdown timed out")
		return ctx.Err()
	}
}

func (m *Manager) removeJob(jobID uint) {
	m.jobsMu.Lock()
	delete(m.jobs, jobID)
	m.jobsMu.Unlock()
}
