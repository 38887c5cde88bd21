package validationmodule

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the validation module routes
func (m *Module) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/validation")
	{
		// Library management
		api.GET("/libraries", m.listLibraries)
		api.POST("/libraries", m.createLibrary)
		api.DELETE("/libraries/:id", m.deleteLibrary)

		// Validation job control
		api.POST("/libraries/:id/validate", m.startValidation)
		api.GET("/jobs", m.listJobs)
		api.GET("/jobs/:id", m.getJobStatus)
		api.POST("/jobs/:id/pause", m.pauseJob)
		api.POST("/jobs/:id/resume", m.resumeJob)
		api.DELETE("/jobs/:id", m.terminateJob)

		// Overall status
		api.GET("/status", m.getStatus)
	}
}
