package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server" json:"server"`

	// Database configuration
	Database DatabaseConfig `yaml:"database" json:"database"`

	// Validator configuration
	Validator ValidatorConfig `yaml:"validator" json:"validator"`

	// Folder monitoring configuration
	Monitor MonitorConfig `yaml:"monitor" json:"monitor"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host         string        `yaml:"host" json:"host" env:"MEDIALIB_HOST"`
	Port         int           `yaml:"port" json:"port" env:"MEDIALIB_PORT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout" env:"MEDIALIB_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" env:"MEDIALIB_WRITE_TIMEOUT"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Type         string `yaml:"type" json:"type" env:"DATABASE_TYPE"`
	Host         string `yaml:"host" json:"host" env:"POSTGRES_HOST"`
	Port         int    `yaml:"port" json:"port" env:"POSTGRES_PORT"`
	Username     string `yaml:"username" json:"username" env:"POSTGRES_USER"`
	Password     string `yaml:"password" json:"-" env:"POSTGRES_PASSWORD"`
	Database     string `yaml:"database" json:"database" env:"POSTGRES_DB"`
	DatabasePath string `yaml:"database_path" json:"database_path" env:"MEDIALIB_DATABASE_PATH"`
	LogQueries   bool   `yaml:"log_queries" json:"log_queries" env:"DB_LOG_QUERIES"`
}

// ValidatorConfig holds traversal engine configuration
type ValidatorConfig struct {
	MaxDepth         int           `yaml:"max_depth" json:"max_depth" env:"MEDIALIB_MAX_DEPTH"`
	RefreshWorkers   int           `yaml:"refresh_workers" json:"refresh_workers" env:"MEDIALIB_REFRESH_WORKERS"`
	ProgressInterval time.Duration `yaml:"progress_interval" json:"progress_interval" env:"MEDIALIB_PROGRESS_INTERVAL"`
	CPUThreshold     float64       `yaml:"cpu_threshold" json:"cpu_threshold" env:"MEDIALIB_CPU_THRESHOLD"`
	MemoryThreshold  float64       `yaml:"memory_threshold" json:"memory_threshold" env:"MEDIALIB_MEMORY_THRESHOLD"`
	AdaptiveScaling  bool          `yaml:"adaptive_scaling" json:"adaptive_scaling" env:"MEDIALIB_ADAPTIVE_SCALING"`
}

// MonitorConfig holds folder monitoring configuration
type MonitorConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled" env:"MEDIALIB_MONITOR_ENABLED"`
	DebounceInterval time.Duration `yaml:"debounce_interval" json:"debounce_interval" env:"MEDIALIB_MONITOR_DEBOUNCE"`
	QueueSize        int           `yaml:"queue_size" json:"queue_size" env:"MEDIALIB_MONITOR_QUEUE_SIZE"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level" env:"MEDIALIB_LOG_LEVEL"`
}

// ConfigManager manages application configuration
type ConfigManager struct {
	config     *Config
	configPath string
	mu         sync.RWMutex
}

var (
	globalConfigManager *ConfigManager
	configOnce          sync.Once
)

// GetConfigManager returns the global configuration manager instance
func GetConfigManager() *ConfigManager {
	configOnce.Do(func() {
		globalConfigManager = NewConfigManager()
	})
	return globalConfigManager
}

// NewConfigManager creates a new configuration manager
func NewConfigManager() *ConfigManager {
	return &ConfigManager{
		config: DefaultConfig(),
	}
}

// DefaultConfig returns the default application configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Type:         "sqlite",
			Host:         "localhost",
			Port:         5432,
			Username:     "medialib",
			Database:     "medialib",
			DatabasePath: "./data/medialib.db",
			LogQueries:   false,
		},
		Validator: ValidatorConfig{
			MaxDepth:         100,
			RefreshWorkers:   2,
			ProgressInterval: 1 * time.Second,
			CPUThreshold:     80.0,
			MemoryThreshold:  85.0,
			AdaptiveScaling:  true,
		},
		Monitor: MonitorConfig{
			Enabled:          true,
			DebounceInterval: 2 * time.Second,
			QueueSize:        1000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func (cm *ConfigManager) LoadConfig(configPath string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.configPath = configPath

	// Start with default configuration
	newConfig := DefaultConfig()

	// Load from file if it exists
	if configPath != "" && fileExists(configPath) {
		if err := loadFromFile(configPath, newConfig); err != nil {
			return fmt.Errorf("failed to load config from file: %w", err)
		}
		log.Printf("Configuration loaded from file: %s", configPath)
	}

	// Override with environment variables
	if err := loadFromEnv(newConfig); err != nil {
		return fmt.Errorf("failed to load config from environment: %w", err)
	}

	// Validate configuration
	if err := validateConfig(newConfig); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	cm.config = newConfig
	return nil
}

// GetConfig returns the current configuration (thread-safe)
func (cm *ConfigManager) GetConfig() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	configCopy := *cm.config
	return &configCopy
}

// Get returns the globally loaded configuration
func Get() *Config {
	return GetConfigManager().GetConfig()
}

func loadFromFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, config)
	case ".json":
		return json.Unmarshal(data, config)
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}
}

// loadFromEnv overrides config fields from environment variables using `env` struct tags
func loadFromEnv(config *Config) error {
	return applyEnvOverrides(reflect.ValueOf(config).Elem())
}

func applyEnvOverrides(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		structField := t.Field(i)

		if field.Kind() == reflect.Struct {
			if err := applyEnvOverrides(field); err != nil {
				return err
			}
			continue
		}

		envName := structField.Tag.Get("env")
		if envName == "" {
			continue
		}

		envValue, ok := os.LookupEnv(envName)
		if !ok || envValue == "" {
			continue
		}

		if err := setFieldFromString(field, envValue); err != nil {
			return fmt.Errorf("invalid value for %s: %w", envName, err)
		}
	}

	return nil
}

func setFieldFromString(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	default:
		return fmt.Errorf("unsupported field kind: %s", field.Kind())
	}
	return nil
}

func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	switch config.Database.Type {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database type: %s", config.Database.Type)
	}

	if config.Validator.MaxDepth <= 0 {
		return fmt.Errorf("validator max_depth must be positive, got %d", config.Validator.MaxDepth)
	}

	if config.Validator.RefreshWorkers < 1 {
		return fmt.Errorf("validator refresh_workers must be at least 1, got %d", config.Validator.RefreshWorkers)
	}

	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
