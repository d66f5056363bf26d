package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one generation event delivered to subscribers.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// RunID is the associated run ID, if applicable.
	RunID string `json:"run_id,omitempty"`

	// Solution is the root solution the event belongs to, if any.
	Solution string `json:"solution,omitempty"`

	// Entity is the project or solution the event concerns, if any.
	Entity string `json:"entity,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// Event types.
const (
	EventTypeRunStarted        = "run.started"
	EventTypeRunCompleted      = "run.completed"
	EventTypeStageCompleted    = "stage.completed"
	EventTypeStageFailed       = "stage.failed"
	EventTypeTargetsExpanded   = "targets.expanded"
	EventTypeArtifactProcessed = "artifact.processed"
	EventTypePolicyFinding     = "policy.finding"
	EventTypeWatchTriggered    = "watch.triggered"
	EventTypeError             = "error"
)

// Event levels.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber handles one event.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be delivered.
type EventFilter func(event Event) bool

// EventPublisher fans events out to subscribers. Synchronous publishers
// deliver in publish order on the caller's goroutine; async publishers
// deliver in order from one background goroutine.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	closed      bool
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	ep := &EventPublisher{config: cfg}
	if !cfg.Enabled {
		return ep, nil
	}

	if cfg.EnableAsync {
		if cfg.BufferSize <= 0 {
			return nil, fmt.Errorf("event buffer size must be positive, got: %d", cfg.BufferSize)
		}
		ep.buffer = make(chan Event, cfg.BufferSize)
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish delivers an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Level == "" {
		event.Level = EventLevelInfo
	}

	ep.mu.RLock()
	defer ep.mu.RUnlock()

	if ep.closed {
		return fmt.Errorf("event publisher stopped")
	}
	for _, filter := range ep.filters {
		if !filter(event) {
			return nil
		}
	}

	if ep.buffer != nil {
		select {
		case ep.buffer <- event:
			return nil
		default:
			return fmt.Errorf("event buffer full, event %s dropped", event.Type)
		}
	}

	ep.deliverLocked(event)
	return nil
}

// PublishRunStarted publishes a run started event.
func (ep *EventPublisher) PublishRunStarted(solutions []string) error {
	return ep.Publish(Event{
		Type:    EventTypeRunStarted,
		Message: fmt.Sprintf("Run started for %d solution(s)", len(solutions)),
		Data: map[string]interface{}{
			"solutions": solutions,
		},
	})
}

// PublishRunCompleted publishes a run completed event.
func (ep *EventPublisher) PublishRunCompleted(runID, status string, errorCount int, duration time.Duration) error {
	level := EventLevelInfo
	if errorCount > 0 {
		level = EventLevelError
	}
	return ep.Publish(Event{
		Type:    EventTypeRunCompleted,
		RunID:   runID,
		Message: fmt.Sprintf("Run %s completed with status: %s", runID, status),
		Level:   level,
		Data: map[string]interface{}{
			"status":   status,
			"errors":   errorCount,
			"duration": duration.Seconds(),
		},
	})
}

// PublishStage publishes the outcome of one solution stage.
func (ep *EventPublisher) PublishStage(solution, stage string, err error, duration time.Duration) error {
	event := Event{
		Type:     EventTypeStageCompleted,
		Solution: solution,
		Message:  fmt.Sprintf("Solution %s reached stage %s", solution, stage),
		Data: map[string]interface{}{
			"stage":    stage,
			"duration": duration.Seconds(),
		},
	}
	if err != nil {
		event.Type = EventTypeStageFailed
		event.Level = EventLevelError
		event.Message = fmt.Sprintf("Solution %s failed in stage %s: %v", solution, stage, err)
	}
	return ep.Publish(event)
}

// PublishArtifact publishes one artifact outcome.
func (ep *EventPublisher) PublishArtifact(entity, path, emitter, status string) error {
	return ep.Publish(Event{
		Type:    EventTypeArtifactProcessed,
		Entity:  entity,
		Message: fmt.Sprintf("Artifact %s %s", path, status),
		Data: map[string]interface{}{
			"path":    path,
			"emitter": emitter,
			"status":  status,
		},
	})
}

// PublishPolicyFinding publishes a policy finding.
func (ep *EventPublisher) PublishPolicyFinding(entity, policy, severity, message string) error {
	level := EventLevelWarning
	if severity == "error" {
		level = EventLevelError
	}
	return ep.Publish(Event{
		Type:    EventTypePolicyFinding,
		Entity:  entity,
		Message: fmt.Sprintf("Policy %s: %s", policy, message),
		Level:   level,
		Data: map[string]interface{}{
			"policy":   policy,
			"severity": severity,
		},
	})
}

// PublishWatchTriggered publishes a regeneration trigger.
func (ep *EventPublisher) PublishWatchTriggered(changed []string) error {
	return ep.Publish(Event{
		Type:    EventTypeWatchTriggered,
		Message: fmt.Sprintf("%d file(s) changed", len(changed)),
		Data: map[string]interface{}{
			"files": changed,
		},
	})
}

// PublishError publishes one aggregated error.
func (ep *EventPublisher) PublishError(entity, kind string, err error) error {
	return ep.Publish(Event{
		Type:    EventTypeError,
		Entity:  entity,
		Message: err.Error(),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"kind": kind,
		},
	})
}

// Subscribe adds a subscriber. A nil filter receives every event.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	for event := range ep.buffer {
		ep.mu.RLock()
		ep.deliverLocked(event)
		ep.mu.RUnlock()
	}
}

// deliverLocked runs subscribers in order. Callers hold mu.
func (ep *EventPublisher) deliverLocked(event Event) {
	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown stops accepting events and waits for buffered ones to be delivered.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}

	ep.mu.Lock()
	if ep.closed {
		ep.mu.Unlock()
		return nil
	}
	ep.closed = true
	if ep.buffer != nil {
		close(ep.buffer)
	}
	ep.mu.Unlock()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// FilterByLevel only allows events of minLevel or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType only allows events of the given types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByRunID only allows events of one run.
func FilterByRunID(runID string) EventFilter {
	return func(event Event) bool {
		return event.RunID == runID
	}
}

// FilterByEntity only allows events concerning one project or solution.
func FilterByEntity(entity string) EventFilter {
	return func(event Event) bool {
		return event.Entity == entity
	}
}
