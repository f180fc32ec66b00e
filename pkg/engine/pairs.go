// pkg/engine/pairs.go
package engine

import (
	"context"
	"math"

	"github.com/opd-ai/go-collide/pkg/entity"
	"github.com/opd-ai/go-collide/pkg/event"
	"github.com/opd-ai/go-collide/pkg/physics"
	"github.com/opd-ai/go-collide/pkg/quadtree"
)

type pairKey [2]entity.ID

type candidate struct {
	a, b *record
}

// contact is a resolved actor/actor hit: the normal as seen by a and the
// box centers both actors should move to
type contact struct {
	ratio  float64
	normal physics.Vector2D
	a, b   physics.Vector2D
}

// narrowPhase runs the configured number of passes over the index pairs and
// returns the number of contacts found. Pairs that were reported without
// any correction are not reported again in later passes of the same tick.
func (b *BroadPhase) narrowPhase(ctx context.Context) int {
	if b.holder == nil {
		return 0
	}
	settled := make(map[pairKey]bool)
	hits := 0
	for pass := 0; pass < b.cfg.NarrowPhasePasses; pass++ {
		n, corrected := b.narrowPass(ctx, settled, pass == 0)
		hits += n
		if !corrected {
			break
		}
	}
	return hits
}

func (b *BroadPhase) narrowPass(ctx context.Context, settled map[pairKey]bool, first bool) (hits int, corrected bool) {
	// the index cannot be refiled while OperatePairs walks it
	for _, c := range b.candidates(settled) {
		hit, moved := b.resolvePair(ctx, c.a, c.b, first)
		if !hit {
			continue
		}
		hits++
		if moved {
			corrected = true
		} else {
			settled[pairKey{c.a.id, c.b.id}] = true
		}
	}
	b.refileDirty()
	return hits, corrected
}

// candidates collects each interacting pair sharing a leaf once, lower id first
func (b *BroadPhase) candidates(settled map[pairKey]bool) []candidate {
	seen := make(map[pairKey]bool)
	var out []candidate
	b.holder.OperatePairs(func(x, y *quadtree.Item) {
		ra, rb := x.Value.(*record), y.Value.(*record)
		if ra.id > rb.id {
			ra, rb = rb, ra
		}
		key := pairKey{ra.id, rb.id}
		if seen[key] || settled[key] {
			return
		}
		seen[key] = true
		if ra.state.Interacts(rb.state) {
			out = append(out, candidate{a: ra, b: rb})
		}
	})
	return out
}

// resolvePair tests one pair and applies the outcome. It reports whether the
// actors touched and whether either was moved. After the first pass only
// contacts that move an actor are reported.
func (b *BroadPhase) resolvePair(ctx context.Context, ra, rb *record, first bool) (hit, moved bool) {
	fa, fb := ra.state.Flags, rb.state.Flags
	if fa.Has(entity.IsStatic) && fb.Has(entity.IsStatic) {
		return false, false
	}

	var c contact
	var ok bool
	switch pa, pb := fa.Has(entity.IsProjectile), fb.Has(entity.IsProjectile); {
	case pa && pb:
		c, ok = lineLine(ra, rb)
	case pa:
		c, ok = lineBox(ra, rb)
	case pb:
		c, ok = lineBox(rb, ra)
		c = c.swap()
	default:
		c, ok = boxBox(ra, rb)
	}
	if !ok {
		return false, false
	}

	var fixA, fixB physics.Vector2D
	if !fa.Has(entity.IsGhost) && !fb.Has(entity.IsGhost) {
		fixA, fixB = c.a.Sub(ra.target), c.b.Sub(rb.target)
		if !fa.Has(entity.IsStatic) {
			moved = b.place(ra, c.a)
		}
		if !fb.Has(entity.IsStatic) {
			moved = b.place(rb, c.b) || moved
		}
	}
	if !moved && !first {
		return false, false
	}

	if notified(fa) {
		ra.actor.OnCollideWithActor(rb.actor, entity.Contact{Normal: c.normal, Fix: fixA})
	}
	if notified(fb) {
		rb.actor.OnCollideWithActor(ra.actor, entity.Contact{Normal: c.normal.Neg(), Fix: fixB})
	}
	if b.bus.HasSubscribers(event.ActorCollision) {
		b.bus.Publish(event.NewCollisionEvent(b, uint64(ra.id), uint64(rb.id), c.normal, c.ratio))
	}
	b.logger.Debug(ctx, "actor collision",
		"actor_a", uint64(ra.id),
		"actor_b", uint64(rb.id),
		"ratio", c.ratio,
		"moved", moved)
	return true, moved
}

// notified reports whether a side receives actor callbacks; ghosts never do
func notified(f entity.Flags) bool {
	return f.Has(entity.WantsCallback) && !f.Has(entity.IsGhost)
}

func (c contact) swap() contact {
	return contact{ratio: c.ratio, normal: c.normal.Neg(), a: c.b, b: c.a}
}

// boxBox sweeps two boxes against each other with the sliding correction
func boxBox(ra, rb *record) (contact, bool) {
	res := physics.BoxSweepSlideCollision(ra.sweep(), rb.sweep())
	if !res.Found || res.Normal.IsZero() {
		return contact{}, false
	}
	return contact{ratio: res.Ratio, normal: res.Normal, a: res.A, b: res.B}, true
}

// lineBox treats the projectile p as a point moving relative to o and clips
// that motion against both boxes combined. p stops where it reaches o, so a
// second pass sees the two just touching.
func lineBox(p, o *record) (contact, bool) {
	rel := p.target.Sub(p.last).Sub(o.target.Sub(o.last))
	sum := physics.Box{Center: o.last, Half: p.state.HalfSize.Add(o.state.HalfSize)}
	hit := physics.BoxLineCollision(sum, p.last, p.last.Add(rel))
	if !hit.Found {
		return contact{}, false
	}

	if hit.Normal.IsZero() {
		// started inside: report where it is, facing back along its motion
		normal := facing(rel)
		if fix, ok := physics.BoxCollision(physics.NewBox(p.last, p.state.HalfSize), physics.NewBox(o.last, o.state.HalfSize)); ok {
			normal = physics.Vector2D{X: physics.Sign(fix.X), Y: physics.Sign(fix.Y)}
		}
		return contact{normal: normal, a: p.target, b: o.target}, true
	}
	return contact{
		ratio:  hit.Ratio,
		normal: hit.Normal,
		a:      p.last.Add(rel.Scale(hit.Ratio)).Add(o.target.Sub(o.last)),
		b:      o.target,
	}, true
}

// lineLine intersects the paths of two projectiles. Neither is moved.
func lineLine(ra, rb *record) (contact, bool) {
	ratio, _, ok := physics.LineIntersection(ra.last, ra.target, rb.last, rb.target)
	if !ok {
		return contact{}, false
	}
	rel := ra.target.Sub(ra.last).Sub(rb.target.Sub(rb.last))
	return contact{ratio: ratio, normal: facing(rel), a: ra.target, b: rb.target}, true
}

// facing returns the axis normal opposing v along its dominant axis
func facing(v physics.Vector2D) physics.Vector2D {
	switch {
	case v.IsZero():
		return physics.Vector2D{}
	case math.Abs(v.X) >= math.Abs(v.Y):
		return physics.Vector2D{X: -physics.Sign(v.X)}
	default:
		return physics.Vector2D{Y: -physics.Sign(v.Y)}
	}
}
