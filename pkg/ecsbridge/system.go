package ecsbridge

import (
	"context"

	"github.com/EngoEngine/ecs"
	"github.com/EngoEngine/engo"
	"github.com/EngoEngine/engo/common"

	"github.com/opd-ai/go-collide/pkg/engine"
	"github.com/opd-ai/go-collide/pkg/logging"
)

// CollisionSystem moves entities by their velocity and runs one broad phase
// update per frame
type CollisionSystem struct {
	bp      *engine.BroadPhase
	mailbox *engo.MessageManager
	logger  *logging.Logger

	bodies map[uint64]*body
	last   *engine.TickReport
}

// NewCollisionSystem creates a system driving bp. Messages go to mailbox,
// or nowhere when it is nil.
func NewCollisionSystem(bp *engine.BroadPhase, mailbox *engo.MessageManager, logger *logging.Logger) *CollisionSystem {
	if logger == nil {
		logger = logging.Discard()
	}
	return &CollisionSystem{
		bp:      bp,
		mailbox: mailbox,
		logger:  logger.With("component", "ecs_collision"),
		bodies:  make(map[uint64]*body),
	}
}

// Priority runs collision after systems that set velocities and before
// rendering
func (s *CollisionSystem) Priority() int {
	return 10
}

// Add links an entity to the broad phase. Adding an entity twice is ignored.
func (s *CollisionSystem) Add(basic *ecs.BasicEntity, space *common.SpaceComponent, col *CollisionComponent) {
	if _, ok := s.bodies[basic.ID()]; ok {
		return
	}
	b := &body{basic: basic, space: space, col: col, sys: s}
	if err := s.bp.Link(b); err != nil {
		s.logger.Error(context.Background(), "failed to link entity", err, "entity_id", basic.ID())
		return
	}
	s.bodies[basic.ID()] = b
}

// AddByInterface implements ecs.SystemAddByInterfacer
func (s *CollisionSystem) AddByInterface(i ecs.Identifier) {
	o := i.(Collidable)
	s.Add(o.GetBasicEntity(), o.GetSpaceComponent(), o.GetCollisionComponent())
}

// Remove unlinks an entity
func (s *CollisionSystem) Remove(basic ecs.BasicEntity) {
	b, ok := s.bodies[basic.ID()]
	if !ok {
		return
	}
	delete(s.bodies, basic.ID())
	if err := s.bp.Unlink(b); err != nil {
		s.logger.Warn(context.Background(), "failed to unlink entity", "entity_id", basic.ID(), "error", err.Error())
	}
}

// Update applies velocities for dt seconds and resolves collisions
func (s *CollisionSystem) Update(dt float32) {
	for _, b := range s.bodies {
		b.space.Position.X += b.col.Velocity.X * dt
		b.space.Position.Y += b.col.Velocity.Y * dt
	}

	report, err := s.bp.Update(context.Background())
	if err != nil {
		s.logger.Warn(context.Background(), "collision update skipped", "error", err.Error())
		return
	}
	s.last = report
}

// LastReport returns the report of the most recent successful Update
func (s *CollisionSystem) LastReport() *engine.TickReport {
	return s.last
}

// BroadPhase returns the broad phase the system drives
func (s *CollisionSystem) BroadPhase() *engine.BroadPhase {
	return s.bp
}

// Len returns the number of entities the system manages
func (s *CollisionSystem) Len() int {
	return len(s.bodies)
}

func (s *CollisionSystem) dispatch(msg engo.Message) {
	if s.mailbox != nil {
		s.mailbox.Dispatch(msg)
	}
}
