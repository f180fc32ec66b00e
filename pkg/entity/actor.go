// pkg/entity/actor.go
package entity

import (
	"sync/atomic"

	"github.com/opd-ai/go-collide/pkg/physics"
)

// BaseActor is a ready made Actor for simple simulations and tests
type BaseActor struct {
	EntityID ID
	Position physics.Vector2D
	Velocity physics.Vector2D
	HalfSize physics.Vector2D
	Offset   physics.Vector2D
	Flags    Flags
	Type     TypeMask
	With     TypeMask

	// Optional hooks run after the counters are updated.
	OnActor  func(self *BaseActor, other Actor, c Contact)
	OnStatic func(self *BaseActor, c StaticContact)

	ActorHits  int
	StaticHits int

	refs atomic.Int32
}

// NewBaseActor creates an actor at position with the given half size
func NewBaseActor(id ID, position, half physics.Vector2D) *BaseActor {
	return &BaseActor{EntityID: id, Position: position, HalfSize: half}
}

// ID returns the actor's unique identifier
func (a *BaseActor) ID() ID {
	return a.EntityID
}

// State returns the actor's collision state
func (a *BaseActor) State() State {
	return State{
		Position: a.Position,
		HalfSize: a.HalfSize,
		Offset:   a.Offset,
		Flags:    a.Flags,
		Type:     a.Type,
		With:     a.With,
	}
}

// SetPosition moves the actor
func (a *BaseActor) SetPosition(p physics.Vector2D) {
	a.Position = p
}

func (a *BaseActor) OnCollideWithActor(other Actor, c Contact) {
	a.ActorHits++
	if a.OnActor != nil {
		a.OnActor(a, other, c)
	}
}

func (a *BaseActor) OnCollideWithStatic(c StaticContact) {
	a.StaticHits++
	if a.OnStatic != nil {
		a.OnStatic(a, c)
	}
}

// AddRef takes a reference
func (a *BaseActor) AddRef() {
	a.refs.Add(1)
}

// Release drops a reference
func (a *BaseActor) Release() {
	a.refs.Add(-1)
}

// Refs returns the number of outstanding references
func (a *BaseActor) Refs() int {
	return int(a.refs.Load())
}

// Update advances the position by velocity
func (a *BaseActor) Update(deltaTime float64) {
	a.Position = a.Position.Add(a.Velocity.Scale(deltaTime))
}

// Reflect mirrors the velocity on every axis the normal points along and
// the velocity heads into.
func (a *BaseActor) Reflect(normal physics.Vector2D) {
	if normal.X != 0 && a.Velocity.X*normal.X < 0 {
		a.Velocity.X = -a.Velocity.X
	}
	if normal.Y != 0 && a.Velocity.Y*normal.Y < 0 {
		a.Velocity.Y = -a.Velocity.Y
	}
}
