// Package events provides the event bus used for validation lifecycle
// notifications and folder monitoring signals.
package events

import (
	"time"
)

// EventType represents the type of event
type EventType string

// System-wide event types
const (
	// Validation lifecycle events
	EventValidationStarted   EventType = "validation.started"
	EventValidationProgress  EventType = "validation.progress"
	EventValidationCompleted EventType = "validation.completed"
	EventValidationFailed    EventType = "validation.failed"
	EventValidationPaused    EventType = "validation.paused"
	EventValidationResumed   EventType = "validation.resumed"
	EventValidationCanceled  EventType = "validation.canceled"

	// Branch condition events
	EventCycleDetected EventType = "validation.cycle_detected"
	EventDepthExceeded EventType = "validation.depth_exceeded"
	EventFolderSkipped EventType = "validation.folder_skipped"
	EventRefreshFailed EventType = "validation.refresh_failed"

	// Monitoring events
	EventMonitoringStarted EventType = "folder.monitoring.started"
	EventMonitoringStopped EventType = "folder.monitoring.stopped"
	EventFolderChanged     EventType = "folder.changed"

	// System events
	EventSystemStarted EventType = "system.started"
	EventSystemStopped EventType = "system.stopped"

	// General events
	EventInfo EventType = "info"
)

// EventPriority represents the priority level of an event
type EventPriority int

const (
	PriorityLow      EventPriority = 1
	PriorityNormal   EventPriority = 5
	PriorityHigh     EventPriority = 10
	PriorityCritical EventPriority = 20
)

// Event represents a system event
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Source    string                 `json:"source"` // system, validator, monitor, etc.
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data"`
	Priority  EventPriority          `json:"priority"`
	Timestamp time.Time              `json:"timestamp"`
}

// EventHandler represents a function that handles events
type EventHandler func(event Event) error

// EventFilter represents filters for event subscriptions
type EventFilter struct {
	Types    []EventType    `json:"types,omitempty"`
	Sources  []string       `json:"sources,omitempty"`
	Priority *EventPriority `json:"priority,omitempty"`
}

// Subscription represents an event subscription
type Subscription struct {
	ID            string       `json:"id"`
	Filter        EventFilter  `json:"filter"`
	Handler       EventHandler `json:"-"`
	Created       time.Time    `json:"created"`
	LastTriggered *time.Time   `json:"last_triggered,omitempty"`
	TriggerCount  int64        `json:"trigger_count"`
}

// EventStats represents statistics about events
type EventStats struct {
	TotalEvents         int64            `json:"total_events"`
	EventsByType        map[string]int64 `json:"events_by_type"`
	RecentEvents        []Event          `json:"recent_events"`
	ActiveSubscriptions int              `json:"active_subscriptions"`
	DroppedEvents       int64            `json:"dropped_events"`
}

// EventBusConfig represents configuration for the event bus
type EventBusConfig struct {
	BufferSize      int `json:"buffer_size"`
	MaxStoredEvents int `json:"max_stored_events"`
}

// DefaultEventBusConfig returns default configuration
func DefaultEventBusConfig() EventBusConfig {
	return EventBusConfig{
		BufferSize:      1000,
		MaxStoredEvents: 1000,
	}
}

// ValidationProgressData represents data for validation.progress events
type ValidationProgressData struct {
	JobID            uint    `json:"job_id"`
	LibraryID        uint    `json:"library_id"`
	Progress         float64 `json:"progress"`
	FoldersFound     int     `json:"folders_found"`
	FoldersProcessed int     `json:"folders_processed"`
	ItemsAdded       int     `json:"items_added"`
	ItemsRemoved     int     `json:"items_removed"`
	ErrorCount       int     `json:"error_count,omitempty"`
	CurrentFolder    string  `json:"current_folder,omitempty"`
}
