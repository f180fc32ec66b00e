// Package trace records broad phase ticks as msgpack frames, replays them,
// and streams them to websocket viewers.
package trace

import (
	"github.com/opd-ai/go-collide/pkg/engine"
	"github.com/opd-ai/go-collide/pkg/entity"
)

// Body is one actor as it stood at the end of a tick
type Body struct {
	ID uint64 `msgpack:"id"`
	// X and Y are the collision box center.
	X     float64 `msgpack:"x"`
	Y     float64 `msgpack:"y"`
	HalfX float64 `msgpack:"hx"`
	HalfY float64 `msgpack:"hy"`
	Flags uint32  `msgpack:"f"`
}

// Frame is the recorded outcome of one Update
type Frame struct {
	Tick       uint64 `msgpack:"tick"`
	Actors     int    `msgpack:"actors"`
	Moved      int    `msgpack:"moved"`
	StaticHits int    `msgpack:"static_hits"`
	ActorHits  int    `msgpack:"actor_hits"`
	Indexed    int    `msgpack:"indexed"`
	Bodies     []Body `msgpack:"bodies"`
}

// Capture builds a frame from the report of the Update that just finished
// and the current state of every linked actor
func Capture(bp *engine.BroadPhase, report *engine.TickReport) *Frame {
	f := &Frame{}
	if report != nil {
		f.Tick = report.Tick
		f.Actors = report.Actors
		f.Moved = report.Moved
		f.StaticHits = report.StaticHits
		f.ActorHits = report.ActorHits
		f.Indexed = report.Indexed
	}
	f.Bodies = make([]Body, 0, bp.Len())
	bp.Each(func(a entity.Actor) bool {
		f.Bodies = append(f.Bodies, NewBody(a.ID(), a.State()))
		return true
	})
	return f
}

// NewBody snapshots one actor state
func NewBody(id entity.ID, s entity.State) Body {
	c := s.Center()
	return Body{
		ID:    uint64(id),
		X:     c.X,
		Y:     c.Y,
		HalfX: s.HalfSize.X,
		HalfY: s.HalfSize.Y,
		Flags: uint32(s.Flags),
	}
}

// State rebuilds the actor state a body was captured from. Position is the
// box center; the offset is not recorded.
func (b Body) State() entity.State {
	s := entity.State{Flags: entity.Flags(b.Flags)}
	s.Position.X, s.Position.Y = b.X, b.Y
	s.HalfSize.X, s.HalfSize.Y = b.HalfX, b.HalfY
	return s
}
