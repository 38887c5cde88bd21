package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dkarlsen/medialib/internal/config"
	"github.com/dkarlsen/medialib/internal/database"
	"github.com/dkarlsen/medialib/internal/events"
	"github.com/dkarlsen/medialib/internal/logger"
	"github.com/dkarlsen/medialib/internal/modules/modulemanager"
	"github.com/dkarlsen/medialib/internal/modules/validationmodule"
	"github.com/gin-gonic/gin"
)

func main() {
	configPath := os.Getenv("MEDIALIB_CONFIG")
	if err := config.GetConfigManager().LoadConfig(configPath); err != nil {
		logger.Error("Failed to load configuration: %v", err)
		os.Exit(1)
	}
	cfg := config.Get()

	logger.SetLevelFromString(cfg.Logging.Level)

	if err := database.Initialize(&cfg.Database); err != nil {
		logger.Error("Failed to initialize database: %v", err)
		os.Exit(1)
	}
	db := database.GetDB()

	eventBus := events.NewEventBus(events.DefaultEventBusConfig())
	if err := eventBus.Start(context.Background()); err != nil {
		logger.Error("Failed to start event bus: %v", err)
		os.Exit(1)
	}

	validationModule := validationmodule.Register(db, eventBus, cfg)

	if err := modulemanager.LoadAll(db); err != nil {
		logger.Error("Failed to load modules: %v", err)
		os.Exit(1)
	}

	eventBus.PublishAsync(events.NewSystemEvent(
		events.EventSystemStarted,
		"Media Library Service Started",
		"All modules loaded",
	))

	router := gin.Default()
	router.GET("/health", func(c *gin.Context) {
		if err := eventBus.Health(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	modulemanager.RegisterRoutes(router)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("Starting media library server on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if monitor := validationModule.Monitor(); monitor != nil {
		monitor.Stop()
	}
	if manager := validationModule.Manager(); manager != nil {
		if err := manager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Validation manager shutdown: %v", err)
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown: %v", err)
	}

	eventBus.PublishAsync(events.NewSystemEvent(
		events.EventSystemStopped,
		"Media Library Service Stopping",
		"Shutdown in progress",
	))
	if err := eventBus.Stop(shutdownCtx); err != nil {
		logger.Warn("Event bus shutdown: %v", err)
	}

	logger.Info("Shutdown complete")
}
