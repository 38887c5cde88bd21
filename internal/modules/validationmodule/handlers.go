package validationmodule

import (
	"net/http"
	"strconv"

	"github.com/dkarlsen/medialib/internal/database"
	"github.com/dkarlsen/medialib/internal/modules/validationmodule/validator"
	"github.com/gin-gonic/gin"
)

// validateRequest is the body accepted by the start-validation endpoint
type validateRequest struct {
	ForceRefresh       bool `json:"force_refresh"`
	ReplaceAllMetadata bool `json:"replace_all_metadata"`
	MaxDepth           int  `json:"max_depth"`
}

// createLibraryRequest is the body accepted by the create-library endpoint
type createLibraryRequest struct {
	Path    string `json:"path" binding:"required"`
	Type    string `json:"type" binding:"required"`
	Virtual bool   `json:"virtual"`
}

func (m *Module) listLibraries(c *gin.Context) {
	var libraries []database.MediaLibrary
	if err := m.db.Find(&libraries).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"libraries": libraries})
}

func (m *Module) createLibrary(c *gin.Context) {
	var req createLibraryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	library := database.MediaLibrary{
		Path:    req.Path,
		Type:    req.Type,
		Virtual: req.Virtual,
	}
	if err := m.db.Create(&library).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if m.monitor != nil {
		if err := m.monitor.WatchLibrary(library.ID, library.Path); err != nil {
			// Library creation succeeded; watching is best-effort
			c.JSON(http.StatusCreated, gin.H{"library": library, "warning": "monitoring unavailable for this path"})
			return
		}
	}

	c.JSON(http.StatusCreated, gin.H{"library": library})
}

func (m *Module) deleteLibrary(c *gin.Context) {
	libraryID, ok := parseID(c)
	if !ok {
		return
	}

	if m.monitor != nil {
		m.monitor.UnwatchLibrary(libraryID)
	}

	if err := m.db.Delete(&database.MediaLibrary{}, libraryID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Library deleted"})
}

// startValidation starts a validation job for a library
func (m *Module) startValidation(c *gin.Context) {
	libraryID, ok := parseID(c)
	if !ok {
		return
	}

	var req validateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	job, err := m.manager.StartValidation(libraryID, validator.ValidationOptions{
		ForceRefresh:       req.ForceRefresh,
		ReplaceAllMetadata: req.ReplaceAllMetadata,
		MaxDepth:           req.MaxDepth,
	})
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

func (m *Module) listJobs(c *gin.Context) {
	jobs, err := m.manager.GetAllJobs()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (m *Module) getJobStatus(c *gin.Context) {
	jobID, ok := parseID(c)
	if !ok {
		return
	}

	job, err := m.manager.GetStatus(jobID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (m *Module) pauseJob(c *gin.Context) {
	jobID, ok := parseID(c)
	if !ok {
		return
	}

	if err := m.manager.StopValidation(jobID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Validation paused"})
}

func (m *Module) resumeJob(c *gin.Context) {
	jobID, ok := parseID(c)
	if !ok {
		return
	}

	var req validateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	err := m.manager.ResumeValidation(jobID, validator.ValidationOptions{
		ForceRefresh:       req.ForceRefresh,
		ReplaceAllMetadata: req.ReplaceAllMetadata,
		MaxDepth:           req.MaxDepth,
	})
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Validation resumed"})
}

func (m *Module) terminateJob(c *gin.Context) {
	jobID, ok := parseID(c)
	if !ok {
		return
	}

	if err := m.manager.TerminateValidation(jobID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Validation terminated"})
}

func (m *Module) getStatus(c *gin.Context) {
	var libraryCount, jobCount int64
	m.db.Model(&database.MediaLibrary{}).Count(&libraryCount)
	m.db.Model(&database.ValidationJob{}).Count(&jobCount)

	c.JSON(http.StatusOK, gin.H{
		"active_jobs": m.manager.ActiveJobCount(),
		"libraries":   libraryCount,
		"total_jobs":  jobCount,
		"monitoring":  m.monitor != nil,
	})
}

// parseID pulls the numeric :id parameter, writing the error response on
// failure
func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return 0, false
	}
	return uint(id), true
}
