// pkg/event/event.go
package event

import (
	"sync"
)

// Type represents the type of event
type Type string

// Fleet event types
const (
	SimulationStarted Type = "simulation_started"
	SimulationStopped Type = "simulation_stopped"
	AgentSpawned      Type = "agent_spawned"
	AgentArrived      Type = "agent_arrived"
	AgentDespawned    Type = "agent_despawned"
	AgentStopped      Type = "agent_stopped"
	AgentResumed      Type = "agent_resumed"
)

// Event is the base interface for all events
type Event interface {
	GetType() Type
	GetSource() interface{}
}

// BaseEvent provides common functionality for all events
type BaseEvent struct {
	EventType Type
	Source    interface{}
}

// GetType returns the event type
func (e *BaseEvent) GetType() Type {
	return e.EventType
}

// GetSource returns the event source
func (e *BaseEvent) GetSource() interface{} {
	return e.Source
}

// Handler is a function that handles events
type Handler func(Event)

// Subscription identifies a registered handler
type Subscription struct {
	ID     uint64
	Type   Type
	Cancel func()
}

type registration struct {
	id      uint64
	handler Handler
}

// Bus manages event subscriptions and dispatching
type Bus struct {
	handlers map[Type][]registration
	nextID   uint64
	mu       sync.RWMutex
}

// NewEventBus creates a new event bus
func NewEventBus() *Bus {
	return &Bus{
		handlers: make(map[Type][]registration),
		nextID:   1,
	}
}

// Subscribe registers a handler for a specific event type
func (b *Bus) Subscribe(eventType Type, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.handlers[eventType] = append(b.handlers[eventType], registration{id: id, handler: handler})

	return &Subscription{
		ID:     id,
		Type:   eventType,
		Cancel: func() { b.Unsubscribe(id) },
	}
}

// Unsubscribe removes the handler registered under id. It reports whether a
// handler was removed.
func (b *Bus) Unsubscribe(id uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, regs := range b.handlers {
		for i, r := range regs {
			if r.id != id {
				continue
			}
			kept := make([]registration, 0, len(regs)-1)
			kept = append(kept, regs[:i]...)
			kept = append(kept, regs[i+1:]...)
			if len(kept) == 0 {
				delete(b.handlers, eventType)
			} else {
				b.handlers[eventType] = kept
			}
			return true
		}
	}
	return false
}

// Publish sends an event to all subscribed handlers synchronously. Handlers
// may subscribe or unsubscribe while being called.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	regs := b.handlers[event.GetType()]
	b.mu.RUnlock()

	for _, r := range regs {
		r.handler(event)
	}
}

// HandlerCount returns the number of handlers subscribed to eventType
func (b *Bus) HandlerCount(eventType Type) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}

// Specific event implementations

// AgentEvent describes a vessel entering or leaving the lake
type AgentEvent struct {
	BaseEvent
	AgentID uint64
	Name    string
	Moving  bool
}

// NewAgentEvent creates a new agent event
func NewAgentEvent(eventType Type, source interface{}, agentID uint64, name string, moving bool) *AgentEvent {
	return &AgentEvent{
		BaseEvent: BaseEvent{
			EventType: eventType,
			Source:    source,
		},
		AgentID: agentID,
		Name:    name,
		Moving:  moving,
	}
}

// MotionEvent reports a vessel pausing or resuming
type MotionEvent struct {
	BaseEvent
	AgentID   uint64
	BlockedBy uint64
	Tick      uint64
}

// NewMotionEvent creates a stop or resume event
func NewMotionEvent(source interface{}, agentID, blockedBy, tick uint64, moving bool) *MotionEvent {
	eventType := AgentStopped
	if moving {
		eventType = AgentResumed
	}
	return &MotionEvent{
		BaseEvent: BaseEvent{
			EventType: eventType,
			Source:    source,
		},
		AgentID:   agentID,
		BlockedBy: blockedBy,
		Tick:      tick,
	}
}

// SimulationEvent marks the fleet starting or stopping
type SimulationEvent struct {
	BaseEvent
	RunID string
	Tick  uint64
}

// NewSimulationEvent creates a simulation lifecycle event
func NewSimulationEvent(eventType Type, source interface{}, runID string, tick uint64) *SimulationEvent {
	return &SimulationEvent{
		BaseEvent: BaseEvent{
			EventType: eventType,
			Source:    source,
		},
		RunID: runID,
		Tick:  tick,
	}
}
