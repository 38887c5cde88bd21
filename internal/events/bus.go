// Package events provides the core event bus implementation.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dkarlsen/medialib/internal/logger"
	"github.com/google/uuid"
)

// eventBus implements the EventBus interface with a bounded in-memory store
type eventBus struct {
	config EventBusConfig

	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	eventChannel  chan Event
	running       bool
	stopCh        chan struct{}
	wg            sync.WaitGroup

	recentEvents []Event
	totalEvents  int64
	dropped      int64
	byType       map[string]int64
}

// NewEventBus creates a new event bus instance
func NewEventBus(config EventBusConfig) EventBus {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultEventBusConfig().BufferSize
	}
	if config.MaxStoredEvents <= 0 {
		config.MaxStoredEvents = DefaultEventBusConfig().MaxStoredEvents
	}
	return &eventBus{
		config:        config,
		subscriptions: make(map[string]*Subscription),
		eventChannel:  make(chan Event, config.BufferSize),
		recentEvents:  make([]Event, 0, config.MaxStoredEvents),
		byType:        make(map[string]int64),
		stopCh:        make(chan struct{}),
	}
}

// Start starts the event bus
func (eb *eventBus) Start(ctx context.Context) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.running {
		return fmt.Errorf("event bus is already running")
	}

	eb.running = true
	eb.stopCh = make(chan struct{})

	eb.wg.Add(1)
	go eb.processEvents()

	logger.Info("Event bus started (buffer_size=%d)", eb.config.BufferSize)
	return nil
}

// Stop stops the event bus gracefully
func (eb *eventBus) Stop(ctx context.Context) error {
	eb.mu.Lock()
	if !eb.running {
		eb.mu.Unlock()
		return nil
	}
	eb.running = false
	eb.mu.Unlock()

	close(eb.stopCh)

	done := make(chan struct{})
	go func() {
		eb.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Event bus stopped gracefully")
		return nil
	case <-ctx.Done():
		logger.Warn("Event bus stop timed out")
		return ctx.Err()
	}
}

// Health returns the health status of the event bus
func (eb *eventBus) Health() error {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if !eb.running {
		return fmt.Errorf("event bus is not running")
	}
	return nil
}

// Publish publishes an event to the event bus
func (eb *eventBus) Publish(ctx context.Context, event Event) error {
	if err := eb.prepare(&event); err != nil {
		return err
	}

	select {
	case eb.eventChannel <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishAsync publishes an event asynchronously (non-blocking)
func (eb *eventBus) PublishAsync(event Event) error {
	if err := eb.prepare(&event); err != nil {
		return err
	}

	select {
	case eb.eventChannel <- event:
		return nil
	default:
		eb.mu.Lock()
		eb.dropped++
		eb.mu.Unlock()
		logger.Warn("Event channel full, dropping event (type=%s id=%s)", event.Type, event.ID)
		return fmt.Errorf("event channel full")
	}
}

func (eb *eventBus) prepare(event *Event) error {
	eb.mu.RLock()
	running := eb.running
	eb.mu.RUnlock()

	if !running {
		return fmt.Errorf("event bus is not running")
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Type == "" {
		return fmt.Errorf("invalid event: type is required")
	}
	return nil
}

// Subscribe subscribes to events matching the filter
func (eb *eventBus) Subscribe(ctx context.Context, filter EventFilter, handler EventHandler) (*Subscription, error) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subscription := &Subscription{
		ID:      uuid.NewString(),
		Filter:  filter,
		Handler: handler,
		Created: time.Now(),
	}

	eb.subscriptions[subscription.ID] = subscription

	logger.Debug("New subscription created (id=%s types=%v)", subscription.ID, filter.Types)
	return subscription, nil
}

// Unsubscribe removes a subscription
func (eb *eventBus) Unsubscribe(subscriptionID string) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if _, exists := eb.subscriptions[subscriptionID]; !exists {
		return fmt.Errorf("subscription not found: %s", subscriptionID)
	}

	delete(eb.subscriptions, subscriptionID)
	return nil
}

// GetSubscriptions returns all active subscriptions
func (eb *eventBus) GetSubscriptions() []*Subscription {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	subscriptions := make([]*Subscription, 0, len(eb.subscriptions))
	for _, sub := range eb.subscriptions {
		subscriptions = append(subscriptions, sub)
	}
	return subscriptions
}

// GetEvents returns recent events matching the filter with pagination
func (eb *eventBus) GetEvents(filter EventFilter, limit, offset int) ([]Event, int64, error) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	filtered := FilterEvents(eb.recentEvents, filter)
	total := int64(len(filtered))

	if offset >= len(filtered) {
		return []Event{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(filtered) {
		end = len(filtered)
	}

	return append([]Event{}, filtered[offset:end]...), total, nil
}

// GetStats returns event bus statistics
func (eb *eventBus) GetStats() EventStats {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	byType := make(map[string]int64, len(eb.byType))
	for k, v := range eb.byType {
		byType[k] = v
	}

	recent := eb.recentEvents
	if len(recent) > 20 {
		recent = recent[len(recent)-20:]
	}

	return EventStats{
		TotalEvents:         eb.totalEvents,
		EventsByType:        byType,
		RecentEvents:        append([]Event{}, recent...),
		ActiveSubscriptions: len(eb.subscriptions),
		DroppedEvents:       eb.dropped,
	}
}

// processEvents dispatches queued events to matching subscribers
func (eb *eventBus) processEvents() {
	defer eb.wg.Done()

	for {
		select {
		case event := <-eb.eventChannel:
			eb.dispatch(event)
		case <-eb.stopCh:
			// Drain whatever is already queued before exiting
			for {
				select {
				case event := <-eb.eventChannel:
					eb.dispatch(event)
				default:
					return
				}
			}
		}
	}
}

func (eb *eventBus) dispatch(event Event) {
	eb.mu.Lock()
	eb.totalEvents++
	eb.byType[string(event.Type)]++
	eb.recentEvents = append(eb.recentEvents, event)
	if len(eb.recentEvents) > eb.config.MaxStoredEvents {
		eb.recentEvents = eb.recentEvents[len(eb.recentEvents)-eb.config.MaxStoredEvents:]
	}

	matching := make([]*Subscription, 0, len(eb.subscriptions))
	for _, sub := range eb.subscriptions {
		if MatchesFilter(event, sub.Filter) {
			matching = append(matching, sub)
		}
	}
	eb.mu.Unlock()

	for _, sub := range matching {
		if sub.Handler == nil {
			continue
		}
		if err := sub.Handler(event); err != nil {
			logger.Error("Event handler failed (subscription=%s type=%s): %v", sub.ID, event.Type, err)
		}
		eb.mu.Lock()
		now := time.Now()
		sub.LastTriggered = &now
		sub.TriggerCount++
		eb.mu.Unlock()
	}
}
