package ecsbridge

import (
	"github.com/EngoEngine/ecs"

	"github.com/opd-ai/go-collide/pkg/entity"
)

// Message types dispatched by the CollisionSystem
const (
	CollisionMessageType       = "CollisionMessage"
	StaticCollisionMessageType = "StaticCollisionMessage"
)

// CollisionMessage reports that Entity hit another linked actor. Other is
// nil when that actor is not managed by the system.
type CollisionMessage struct {
	Entity  *ecs.BasicEntity
	Other   *ecs.BasicEntity
	OtherID entity.ID
	Contact entity.Contact
}

// Type implements engo.Message
func (CollisionMessage) Type() string {
	return CollisionMessageType
}

// StaticCollisionMessage reports that Entity hit the tile map
type StaticCollisionMessage struct {
	Entity  *ecs.BasicEntity
	Contact entity.StaticContact
}

// Type implements engo.Message
func (StaticCollisionMessage) Type() string {
	return StaticCollisionMessageType
}
