package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventBus defines the interface for the event bus system
type EventBus interface {
	// Publish publishes an event to the event bus
	Publish(ctx context.Context, event Event) error

	// PublishAsync publishes an event asynchronously (non-blocking)
	PublishAsync(event Event) error

	// Subscribe subscribes to events matching the filter
	Subscribe(ctx context.Context, filter EventFilter, handler EventHandler) (*Subscription, error)

	// Unsubscribe removes a subscription
	Unsubscribe(subscriptionID string) error

	// GetSubscriptions returns all active subscriptions
	GetSubscriptions() []*Subscription

	// GetEvents returns recent events matching the filter
	GetEvents(filter EventFilter, limit, offset int) ([]Event, int64, error)

	// GetStats returns event bus statistics
	GetStats() EventStats

	// Start starts the event bus
	Start(ctx context.Context) error

	// Stop stops the event bus gracefully
	Stop(ctx context.Context) error

	// Health returns the health status of the event bus
	Health() error
}

// NewEvent creates a new event with default values
func NewEvent(eventType EventType, source string, title string, message string) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		Title:     title,
		Message:   message,
		Data:      make(map[string]interface{}),
		Priority:  PriorityNormal,
		Timestamp: time.Now(),
	}
}

// NewSystemEvent creates a system event
func NewSystemEvent(eventType EventType, title string, message string) Event {
	return NewEvent(eventType, "system", title, message)
}

// NewValidationEvent creates an event sourced from the validation engine
func NewValidationEvent(eventType EventType, title string, message string) Event {
	return NewEvent(eventType, "validator", title, message)
}

// MatchesFilter checks if an event matches the given filter
func MatchesFilter(event Event, filter EventFilter) bool {
	if len(filter.Types) > 0 {
		found := false
		for _, t := range filter.Types {
			if event.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(filter.Sources) > 0 {
		found := false
		for _, s := range filter.Sources {
			if event.Source == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if filter.Priority != nil && event.Priority < *filter.Priority {
		return false
	}

	return true
}

// FilterEvents filters a slice of events based on the filter
func FilterEvents(events []Event, filter EventFilter) []Event {
	var filtered []Event
	for _, event := range events {
		if MatchesFilter(event, filter) {
			filtered = append(filtered, event)
		}
	}
	return filtered
}
