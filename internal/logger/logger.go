package logger

import (
	"log"
	"strings"
	"sync/atomic"
)

// Level controls which messages are emitted
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var minLevel atomic.Int32

// SetLevel sets the minimum level that will be logged
func SetLevel(level Level) {
	minLevel.Store(int32(level))
}

// SetLevelFromString sets the minimum level from a config string ("debug", "info", "warn", "error")
func SetLevelFromString(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		SetLevel(LevelDebug)
	case "warn", "warning":
		SetLevel(LevelWarn)
	case "error":
		SetLevel(LevelError)
	default:
		SetLevel(LevelInfo)
	}
}

func enabled(level Level) bool {
	return int32(level) >= minLevel.Load()
}

// Info logs informational messages
func Info(format string, args ...interface{}) {
	if enabled(LevelInfo) {
		log.Printf("INFO: "+format, args...)
	}
}

// Warn logs warning messages
func Warn(format string, args ...interface{}) {
	if enabled(LevelWarn) {
		log.Printf("WARN: "+format, args...)
	}
}

// Error logs error messages
func Error(format string, args ...interface{}) {
	if enabled(LevelError) {
		log.Printf("ERROR: "+format, args...)
	}
}

// Debug logs debug messages
func Debug(format string, args ...interface{}) {
	if enabled(LevelDebug) {
		log.Printf("DEBUG: "+format, args...)
	}
}
