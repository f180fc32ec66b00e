// pkg/entity/entity.go
package entity

import (
	"strings"

	"github.com/opd-ai/go-collide/pkg/physics"
)

// ID is a unique identifier for an actor
type ID uint64

// Flags select how an actor takes part in collision. The bits are dense
// from zero: CollideMap is 1 and IsProjectile is 2. Masks carried over from
// a layout where the map bit was 2 must be remapped, since that value now
// means IsProjectile.
type Flags uint32

const (
	// CollideMap makes the actor collide with the tile grid
	CollideMap Flags = 1 << iota
	// IsProjectile tests the actor as a line along its motion
	IsProjectile
	// IsGhost reports contacts to the other side without correcting
	// positions; a ghost receives no actor callbacks itself
	IsGhost
	// IsStatic marks an actor that never moves in response to contacts
	IsStatic
	// WantsCallback enables the OnCollide hooks
	WantsCallback
	// StepTeleport files the actor at its destination only, without
	// sweeping from its previous position
	StepTeleport
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{CollideMap, "collide_map"},
	{IsProjectile, "projectile"},
	{IsGhost, "ghost"},
	{IsStatic, "static"},
	{WantsCallback, "callback"},
	{StepTeleport, "teleport"},
}

// Has reports whether every bit of o is set
func (f Flags) Has(o Flags) bool {
	return f&o == o
}

func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, "|")
}

// TypeMask is a set of collision categories
type TypeMask uint32

// State is a snapshot of everything collision needs from an actor
type State struct {
	// Position is the actor position; the collision box is centered at
	// Position+Offset.
	Position physics.Vector2D
	HalfSize physics.Vector2D
	Offset   physics.Vector2D
	Flags    Flags
	// Type is what the actor is, With is what it collides with.
	Type TypeMask
	With TypeMask
}

// Center returns the center of the collision box
func (s State) Center() physics.Vector2D {
	return s.Position.Add(s.Offset)
}

// Box returns the collision box
func (s State) Box() physics.Box {
	return physics.NewBox(s.Center(), s.HalfSize)
}

// Interacts reports whether either actor collides with the other's type
func (s State) Interacts(o State) bool {
	return s.With&o.Type != 0 || o.With&s.Type != 0
}

// Contact is delivered to an actor that hit another actor
type Contact struct {
	// Normal points away from the other actor.
	Normal physics.Vector2D
	// Fix is the correction applied to the receiving actor.
	Fix physics.Vector2D
}

// StaticContact is delivered to an actor that hit the tile grid
type StaticContact struct {
	Normal physics.Vector2D
	// Point is where the collision box center came to rest.
	Point physics.Vector2D
}

// Actor is implemented by whatever owns simulation objects. The broad phase
// only talks to actors through this interface.
type Actor interface {
	ID() ID
	State() State
	// SetPosition moves the actor; p is a Position, not a box center.
	SetPosition(p physics.Vector2D)
	OnCollideWithActor(other Actor, c Contact)
	OnCollideWithStatic(c StaticContact)
	// AddRef and Release bracket the time the broad phase holds the actor.
	AddRef()
	Release()
}

// Validate returns v as an Actor when it implements the contract
func Validate(v any) (Actor, bool) {
	if v == nil {
		return nil, false
	}
	a, ok := v.(Actor)
	return a, ok
}
