// Package ecsbridge lets EngoEngine entities take part in collision. A
// CollisionSystem links every entity carrying a CollisionComponent to a
// broad phase and reports contacts through an engo message manager.
package ecsbridge

import (
	"sync/atomic"

	"github.com/EngoEngine/ecs"
	"github.com/EngoEngine/engo"
	"github.com/EngoEngine/engo/common"

	"github.com/opd-ai/go-collide/pkg/entity"
	"github.com/opd-ai/go-collide/pkg/physics"
)

// CollisionComponent holds the collision settings of an engo entity. The
// collision box is the entity's SpaceComponent rectangle moved by Offset.
type CollisionComponent struct {
	Offset engo.Point
	Flags  entity.Flags
	Type   entity.TypeMask
	With   entity.TypeMask
	// Velocity is applied by the system in world units per second.
	Velocity engo.Point
	// Bounce reverses Velocity on the axis of every contact normal.
	Bounce bool
}

// GetCollisionComponent returns the component itself
func (c *CollisionComponent) GetCollisionComponent() *CollisionComponent {
	return c
}

// CollisionFace is implemented by entities embedding a CollisionComponent
type CollisionFace interface {
	GetCollisionComponent() *CollisionComponent
}

// Collidable is what the system accepts through AddByInterface
type Collidable interface {
	ecs.BasicFace
	common.SpaceFace
	CollisionFace
}

// body adapts one engo entity to entity.Actor
type body struct {
	basic *ecs.BasicEntity
	space *common.SpaceComponent
	col   *CollisionComponent
	sys   *CollisionSystem
	refs  atomic.Int32

	// placed keeps the full precision of the last SetPosition while the
	// component still holds its float32 rounding
	placed    physics.Vector2D
	hasPlaced bool
}

func (b *body) ID() entity.ID {
	return entity.ID(b.basic.ID())
}

// State reports the SpaceComponent corner as the position and shifts the
// box center by half the size plus the component offset.
func (b *body) State() entity.State {
	half := physics.Vec(float64(b.space.Width)/2, float64(b.space.Height)/2)
	pos := fromPoint(b.space.Position)
	if b.hasPlaced && toPoint(b.placed) == b.space.Position {
		pos = b.placed
	}
	return entity.State{
		Position: pos,
		HalfSize: half,
		Offset:   half.Add(fromPoint(b.col.Offset)),
		Flags:    b.col.Flags,
		Type:     b.col.Type,
		With:     b.col.With,
	}
}

func (b *body) SetPosition(p physics.Vector2D) {
	b.placed, b.hasPlaced = p, true
	b.space.Position = toPoint(p)
}

func (b *body) OnCollideWithActor(other entity.Actor, c entity.Contact) {
	b.bounce(c.Normal)
	msg := CollisionMessage{Entity: b.basic, OtherID: other.ID(), Contact: c}
	if o, ok := other.(*body); ok {
		msg.Other = o.basic
	}
	b.sys.dispatch(msg)
}

func (b *body) OnCollideWithStatic(c entity.StaticContact) {
	b.bounce(c.Normal)
	b.sys.dispatch(StaticCollisionMessage{Entity: b.basic, Contact: c})
}

func (b *body) AddRef() {
	b.refs.Add(1)
}

func (b *body) Release() {
	b.refs.Add(-1)
}

func (b *body) bounce(normal physics.Vector2D) {
	if !b.col.Bounce {
		return
	}
	v := &b.col.Velocity
	if normal.X != 0 && float64(v.X)*normal.X < 0 {
		v.X = -v.X
	}
	if normal.Y != 0 && float64(v.Y)*normal.Y < 0 {
		v.Y = -v.Y
	}
}

func fromPoint(p engo.Point) physics.Vector2D {
	return physics.Vec(float64(p.X), float64(p.Y))
}

func toPoint(v physics.Vector2D) engo.Point {
	return engo.Point{X: float32(v.X), Y: float32(v.Y)}
}
