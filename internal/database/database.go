package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dkarlsen/medialib/internal/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var DB *gorm.DB

// Initialize sets up the database connection based on the loaded configuration
func Initialize(cfg *config.DatabaseConfig) error {
	var err error

	switch cfg.Type {
	case "postgres":
		DB, err = connectPostgres(cfg)
	case "sqlite":
		DB, err = connectSQLite(cfg)
	default:
		return fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	return nil
}

func gormConfig(cfg *config.DatabaseConfig) *gorm.Config {
	logMode := gormlogger.Warn
	if cfg.LogQueries {
		logMode = gormlogger.Info
	}
	return &gorm.Config{
		Logger: gormlogger.Default.LogMode(logMode),
	}
}

func connectPostgres(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
		cfg.Host, cfg.Username, cfg.Password, cfg.Database, cfg.Port)

	return gorm.Open(postgres.Open(dsn), gormConfig(cfg))
}

func connectSQLite(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dbPath := cfg.DatabasePath
	if dbPath == "" {
		dbPath = "./data/medialib.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	return gorm.Open(sqlite.Open(dbPath), gormConfig(cfg))
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}
