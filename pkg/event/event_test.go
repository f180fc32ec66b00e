// pkg/event/event_test.go
package event

import (
	"sync"
	"testing"

	"github.com/opd-ai/go-collide/pkg/physics"
)

func TestNewEventBus_Creation_ReturnsInitializedBus(t *testing.T) {
	bus := NewEventBus()

	if bus == nil {
		t.Fatal("NewEventBus() returned nil")
	}
	if bus.handlers == nil {
		t.Error("handlers map not initialized")
	}
	if bus.nextID != 1 {
		t.Errorf("expected nextID to be 1, got %d", bus.nextID)
	}
}

func TestBaseEvent_GetType_ReturnsCorrectType(t *testing.T) {
	tests := []struct {
		name      string
		eventType Type
		source    interface{}
	}{
		{name: "linked_event", eventType: ActorLinked, source: "broadphase"},
		{name: "tick_event", eventType: TickCompleted, source: 123},
		{name: "empty_source", eventType: WorldResized, source: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := &BaseEvent{EventType: tt.eventType, Source: tt.source}

			if event.GetType() != tt.eventType {
				t.Errorf("GetType() = %v, want %v", event.GetType(), tt.eventType)
			}
			if event.GetSource() != tt.source {
				t.Errorf("GetSource() = %v, want %v", event.GetSource(), tt.source)
			}
		})
	}
}

func TestBusSubscribe_MultipleHandlers_UniqueIDs(t *testing.T) {
	bus := NewEventBus()

	sub1 := bus.Subscribe(ActorCollision, func(Event) {})
	sub2 := bus.Subscribe(ActorCollision, func(Event) {})
	sub3 := bus.Subscribe(StaticCollision, func(Event) {})

	if sub1.ID == 0 || sub1.ID == sub2.ID || sub2.ID == sub3.ID {
		t.Errorf("subscription IDs %d %d %d are not unique and non-zero", sub1.ID, sub2.ID, sub3.ID)
	}
	if sub3.Type != StaticCollision {
		t.Errorf("Type = %v, want %v", sub3.Type, StaticCollision)
	}
	if !bus.HasSubscribers(ActorCollision) || bus.HasSubscribers(TickCompleted) {
		t.Error("HasSubscribers() returned unexpected results")
	}
}

func TestBusPublish_WithSubscribers_CallsAllHandlers(t *testing.T) {
	bus := NewEventBus()
	var received []Event

	bus.Subscribe(ActorCollision, func(e Event) { received = append(received, e) })
	bus.Subscribe(ActorCollision, func(e Event) { received = append(received, e) })
	bus.Subscribe(StaticCollision, func(e Event) { t.Error("static handler called for actor collision") })

	bus.Publish(NewCollisionEvent("test", 1, 2, physics.Vec(-1, 0), 0.5))

	if len(received) != 2 {
		t.Fatalf("expected 2 handler calls, got %d", len(received))
	}
	for _, e := range received {
		if e.GetType() != ActorCollision {
			t.Errorf("expected event type %v, got %v", ActorCollision, e.GetType())
		}
	}
}

func TestBusPublish_NoSubscribers_NoError(t *testing.T) {
	bus := NewEventBus()
	bus.Publish(&BaseEvent{EventType: TickCompleted, Source: "test"})
}

func TestSubscriptionCancel_ValidSubscription_RemovesHandler(t *testing.T) {
	bus := NewEventBus()
	handler1Called := false
	handler2Called := false

	sub1 := bus.Subscribe(ActorLinked, func(Event) { handler1Called = true })
	bus.Subscribe(ActorLinked, func(Event) { handler2Called = true })

	sub1.Cancel()
	sub1.Cancel()

	bus.mu.RLock()
	remaining := len(bus.handlers[ActorLinked])
	bus.mu.RUnlock()
	if remaining != 1 {
		t.Errorf("expected 1 handler after cancel, got %d", remaining)
	}

	bus.Publish(NewActorEvent(ActorLinked, "test", 9))
	if handler1Called {
		t.Error("handler should not be called after cancellation")
	}
	if !handler2Called {
		t.Error("remaining handler should be called")
	}
}

func TestSubscriptionCancel_DuringPublish_FinishesDelivery(t *testing.T) {
	bus := NewEventBus()
	calls := 0
	var sub *Subscription
	sub = bus.Subscribe(TickCompleted, func(Event) {
		calls++
		sub.Cancel()
	})
	bus.Subscribe(TickCompleted, func(Event) { calls++ })

	bus.Publish(NewTickEvent("test", 1, 0, 0, 0, 0, 0))
	bus.Publish(NewTickEvent("test", 2, 0, 0, 0, 0, 0))

	if calls != 3 {
		t.Errorf("expected 3 handler calls, got %d", calls)
	}
}

func TestBusSubscribe_ConcurrentAccess_ThreadSafe(t *testing.T) {
	bus := NewEventBus()
	var wg sync.WaitGroup
	var mu sync.Mutex
	handlerCount := 0

	handler := func(e Event) {
		mu.Lock()
		handlerCount++
		mu.Unlock()
	}

	numGoroutines := 10
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			bus.Subscribe(ActorCollision, handler)
		}()
	}
	wg.Wait()

	event := &BaseEvent{EventType: ActorCollision, Source: "test"}
	wg.Add(3)
	for i := 0; i < 3; i++ {
		go func() {
			defer wg.Done()
			bus.Publish(event)
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if handlerCount != numGoroutines*3 {
		t.Errorf("expected %d handler calls, got %d", numGoroutines*3, handlerCount)
	}
}

func TestNewStaticCollisionEvent_ValidParameters_ReturnsCorrectEvent(t *testing.T) {
	event := NewStaticCollisionEvent("broadphase", 42, physics.Vec(0, -1), physics.Vec(3, 4.5), 3, 5)

	if event.GetType() != StaticCollision {
		t.Errorf("GetType() = %v, want %v", event.GetType(), StaticCollision)
	}
	if event.ActorID != 42 || event.TileX != 3 || event.TileY != 5 {
		t.Errorf("event = %+v, want actor 42 at tile 3,5", event)
	}
	if event.Normal != physics.Vec(0, -1) || event.Point != physics.Vec(3, 4.5) {
		t.Errorf("Normal/Point = %v/%v, want (0,-1)/(3,4.5)", event.Normal, event.Point)
	}
}

func TestNewTickEvent_ValidParameters_ReturnsCorrectEvent(t *testing.T) {
	event := NewTickEvent("broadphase", 7, 10, 4, 2, 3, 12)

	if event.GetType() != TickCompleted {
		t.Errorf("GetType() = %v, want %v", event.GetType(), TickCompleted)
	}
	if event.Tick != 7 || event.Actors != 10 || event.Moved != 4 ||
		event.StaticHits != 2 || event.ActorHits != 3 || event.IndexedItems != 12 {
		t.Errorf("event = %+v, want tick 7 with 10/4/2/3/12", event)
	}
}

func TestEventTypes_Constants_AllDefined(t *testing.T) {
	expectedTypes := []Type{
		ActorLinked,
		ActorUnlinked,
		ActorCollision,
		StaticCollision,
		WorldResized,
		TickCompleted,
	}

	seen := map[Type]bool{}
	for _, eventType := range expectedTypes {
		if string(eventType) == "" {
			t.Errorf("event type %v is empty", eventType)
		}
		if seen[eventType] {
			t.Errorf("event type %v defined twice", eventType)
		}
		seen[eventType] = true
	}
}
