// pkg/event/event.go
package event

import (
	"sync"

	"github.com/opd-ai/go-collide/pkg/physics"
)

// Type represents the type of event
type Type string

// Collision event types
const (
	ActorLinked     Type = "actor_linked"
	ActorUnlinked   Type = "actor_unlinked"
	ActorCollision  Type = "actor_collision"
	StaticCollision Type = "static_collision"
	WorldResized    Type = "world_resized"
	TickCompleted   Type = "tick_completed"
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

// Subscription is returned by Subscribe; Cancel removes the handler
type Subscription struct {
	ID     uint64
	Type   Type
	Cancel func()
}

type entry struct {
	id      uint64
	handler Handler
}

// Bus manages event subscriptions and dispatching
type Bus struct {
	handlers map[Type][]entry
	nextID   uint64
	mu       sync.RWMutex
}

// NewEventBus creates a new event bus
func NewEventBus() *Bus {
	return &Bus{
		handlers: make(map[Type][]entry),
		nextID:   1,
	}
}

// Subscribe registers a handler for a specific event type
func (b *Bus) Subscribe(eventType Type, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.handlers[eventType] = append(b.handlers[eventType], entry{id: id, handler: handler})

	return &Subscription{
		ID:     id,
		Type:   eventType,
		Cancel: func() { b.unsubscribe(eventType, id) },
	}
}

func (b *Bus) unsubscribe(eventType Type, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.handlers[eventType]
	for i, e := range entries {
		if e.id == id {
			// copy so a Publish iterating the old slice is unaffected
			next := make([]entry, 0, len(entries)-1)
			next = append(next, entries[:i]...)
			b.handlers[eventType] = append(next, entries[i+1:]...)
			return
		}
	}
}

// Publish sends an event to all subscribed handlers
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	entries := b.handlers[event.GetType()]
	b.mu.RUnlock()

	for _, e := range entries {
		e.handler(event)
	}
}

// HasSubscribers reports whether anything listens for eventType
func (b *Bus) HasSubscribers(eventType Type) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType]) > 0
}

// Specific event implementations

// ActorEvent reports an actor joining or leaving the broad phase
type ActorEvent struct {
	BaseEvent
	ActorID uint64
}

// NewActorEvent creates a new actor lifecycle event
func NewActorEvent(eventType Type, source interface{}, actorID uint64) *ActorEvent {
	return &ActorEvent{
		BaseEvent: BaseEvent{
			EventType: eventType,
			Source:    source,
		},
		ActorID: actorID,
	}
}

// CollisionEvent contains information about an actor/actor contact
type CollisionEvent struct {
	BaseEvent
	EntityA uint64
	EntityB uint64
	// Normal is the contact normal as seen by EntityA.
	Normal physics.Vector2D
	Ratio  float64
}

// NewCollisionEvent creates a new collision event
func NewCollisionEvent(source interface{}, entityA, entityB uint64, normal physics.Vector2D, ratio float64) *CollisionEvent {
	return &CollisionEvent{
		BaseEvent: BaseEvent{
			EventType: ActorCollision,
			Source:    source,
		},
		EntityA: entityA,
		EntityB: entityB,
		Normal:  normal,
		Ratio:   ratio,
	}
}

// StaticCollisionEvent reports an actor stopped by the tile grid
type StaticCollisionEvent struct {
	BaseEvent
	ActorID uint64
	Normal  physics.Vector2D
	Point   physics.Vector2D
	TileX   int
	TileY   int
}

// NewStaticCollisionEvent creates a new tile collision event
func NewStaticCollisionEvent(source interface{}, actorID uint64, normal, point physics.Vector2D, tileX, tileY int) *StaticCollisionEvent {
	return &StaticCollisionEvent{
		BaseEvent: BaseEvent{
			EventType: StaticCollision,
			Source:    source,
		},
		ActorID: actorID,
		Normal:  normal,
		Point:   point,
		TileX:   tileX,
		TileY:   tileY,
	}
}

// WorldEvent reports a change of world size
type WorldEvent struct {
	BaseEvent
	Width  float64
	Height float64
}

// NewWorldEvent creates a new world resize event
func NewWorldEvent(source interface{}, width, height float64) *WorldEvent {
	return &WorldEvent{
		BaseEvent: BaseEvent{
			EventType: WorldResized,
			Source:    source,
		},
		Width:  width,
		Height: height,
	}
}

// TickEvent carries the summary of one broad phase update
type TickEvent struct {
	BaseEvent
	Tick         uint64
	Actors       int
	Moved        int
	StaticHits   int
	ActorHits    int
	IndexedItems int
}

// NewTickEvent creates a new tick summary event
func NewTickEvent(source interface{}, tick uint64, actors, moved, staticHits, actorHits, indexed int) *TickEvent {
	return &TickEvent{
		BaseEvent: BaseEvent{
			EventType: TickCompleted,
			Source:    source,
		},
		Tick:         tick,
		Actors:       actors,
		Moved:        moved,
		StaticHits:   staticHits,
		ActorHits:    actorHits,
		IndexedItems: indexed,
	}
}
