package tilemap

import (
	"fmt"
	"math"
	"sort"

	"github.com/opd-ai/go-collide/pkg/entity"
	"github.com/opd-ai/go-collide/pkg/grid"
	"github.com/opd-ai/go-collide/pkg/physics"
)

const (
	// penetrations below this many tiles are treated as touching
	contactEpsilon = 1e-9
	// a sweep can be deflected once per axis plus one corner retry
	maxDeflections = 3
)

var tileHalf = physics.Vector2D{X: 0.5, Y: 0.5}

// Cell addresses one tile
type Cell struct {
	X, Y int
}

func (c Cell) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}

func (c Cell) box() physics.Box {
	return physics.Box{Center: physics.Vector2D{X: float64(c.X) + 0.5, Y: float64(c.Y) + 0.5}, Half: tileHalf}
}

// TileHandler decides what touching a callback tile does. fix is the
// proposed correction in world units; the returned vector replaces it and
// the zero vector lets the actor pass.
type TileHandler func(actor entity.Actor, cell Cell, fix physics.Vector2D) physics.Vector2D

// Hit is the outcome of resolving a box against the grid
type Hit struct {
	Found bool
	// Point is where the box center comes to rest.
	Point physics.Vector2D
	// Fix moves the requested position onto Point.
	Fix physics.Vector2D
	// Normal holds the sign of every axis the box was pushed back on.
	Normal physics.Vector2D
	// Cell is the last tile that stopped the box.
	Cell Cell
}

// LineHit is the outcome of LineCollision
type LineHit struct {
	Found  bool
	Point  physics.Vector2D
	Normal physics.Vector2D
	Cell   Cell
}

// Collider resolves boxes and segments in world units against a TileGrid
// whose tiles are tileSize wide.
type Collider struct {
	grid     TileGrid
	tileSize float64
	handlers map[TileCode]TileHandler
}

// NewCollider wraps a grid
func NewCollider(g TileGrid, tileSize float64) *Collider {
	if tileSize <= 0 {
		panic(fmt.Sprintf("tilemap: invalid tile size %v", tileSize))
	}
	return &Collider{grid: g, tileSize: tileSize, handlers: make(map[TileCode]TileHandler)}
}

// Grid returns the wrapped grid
func (c *Collider) Grid() TileGrid {
	return c.grid
}

// TileSize returns the width of one tile in world units
func (c *Collider) TileSize() float64 {
	return c.tileSize
}

// Handle registers h for a callback tile code. A nil handler removes the
// registration; unhandled callback tiles block like Block.
func (c *Collider) Handle(code TileCode, h TileHandler) {
	if !code.IsCallback() {
		panic(fmt.Sprintf("tilemap: code %d is not a callback tile", code))
	}
	if h == nil {
		delete(c.handlers, code)
		return
	}
	c.handlers[code] = h
}

func (c *Collider) toGrid(v physics.Vector2D) physics.Vector2D {
	return v.Scale(1 / c.tileSize)
}

func (c *Collider) toWorld(v physics.Vector2D) physics.Vector2D {
	return v.Scale(c.tileSize)
}

// consult runs the handler of a callback tile on a fix in grid units
func (c *Collider) consult(actor entity.Actor, cell Cell, code TileCode, fix physics.Vector2D) physics.Vector2D {
	if !code.IsCallback() {
		return fix
	}
	h, ok := c.handlers[code]
	if !ok {
		return fix
	}
	return c.toGrid(h(actor, cell, c.toWorld(fix)))
}

func signs(v physics.Vector2D) physics.Vector2D {
	return physics.Vector2D{X: physics.Sign(v.X), Y: physics.Sign(v.Y)}
}

// Collide pushes a static box out of every blocking tile it overlaps,
// nearest tiles first.
func (c *Collider) Collide(actor entity.Actor, box physics.Box) Hit {
	b := physics.Box{Center: c.toGrid(box.Center), Half: c.toGrid(box.Half)}
	fix, cell, found := c.overlap(actor, b)
	if !found {
		return Hit{Point: box.Center}
	}
	w := c.toWorld(fix)
	return Hit{Found: true, Point: box.Center.Add(w), Fix: w, Normal: signs(fix), Cell: cell}
}

// overlap accumulates the fix that moves b out of the blocking tiles it
// overlaps, in grid units.
func (c *Collider) overlap(actor entity.Actor, b physics.Box) (fix physics.Vector2D, last Cell, found bool) {
	home := Cell{X: int(math.Floor(b.Center.X)), Y: int(math.Floor(b.Center.Y))}

	var cells []Cell
	grid.BoxCells(b).Each(func(x, y int) bool {
		if c.grid.Tile(x, y).Blocking() {
			cells = append(cells, Cell{X: x, Y: y})
		}
		return true
	})
	ring := func(t Cell) (int, int) {
		dx, dy := abs(t.X-home.X), abs(t.Y-home.Y)
		return max(dx, dy), dx + dy
	}
	sort.SliceStable(cells, func(i, j int) bool {
		ri, mi := ring(cells[i])
		rj, mj := ring(cells[j])
		if ri != rj {
			return ri < rj
		}
		return mi < mj
	})

	for _, t := range cells {
		f, ok := physics.BoxCollision(b.Moved(fix), t.box())
		if !ok || f.Length() < contactEpsilon {
			continue
		}
		f = c.consult(actor, t, c.grid.Tile(t.X, t.Y), f)
		if f.IsZero() {
			continue
		}
		fix = fix.Add(f)
		last = t
		found = true
	}
	return fix, last, found
}

type contact struct {
	res  physics.SweepResult
	at   physics.Vector2D
	cell Cell
}

// Sweep moves a box with the given half size from one center to another
// and stops or deflects it at the first blocking tiles along the way. A box
// that starts inside blocking tiles is resolved with Collide from its start
// position instead.
//
// After each contact the remaining motion continues along the free axis.
// The sweep ends once it has been deflected on both axes, so a later tile
// on a long diagonal path can be missed.
func (c *Collider) Sweep(actor entity.Actor, from, to, half physics.Vector2D) Hit {
	start, end, h := c.toGrid(from), c.toGrid(to), c.toGrid(half.Abs())

	if fix, cell, found := c.overlap(actor, physics.Box{Center: start, Half: h}); found {
		p := from.Add(c.toWorld(fix))
		return Hit{Found: true, Point: p, Fix: p.Sub(to), Normal: signs(fix), Cell: cell}
	}

	hit := Hit{Point: to}
	ignored := make(map[Cell]bool)
	cur, target := start, end
	var normal physics.Vector2D
	for i := 0; i < maxDeflections && cur != target; i++ {
		ct, ok := c.firstContact(actor, cur, target, h, ignored)
		if !ok {
			break
		}
		hit.Found = true
		hit.Cell = ct.cell
		if ct.res.Normal.X != 0 {
			normal.X = ct.res.Normal.X
		}
		if ct.res.Normal.Y != 0 {
			normal.Y = ct.res.Normal.Y
		}
		cur, target = ct.at, ct.res.A
		if normal.X != 0 && normal.Y != 0 {
			break
		}
	}
	if !hit.Found {
		return hit
	}

	hit.Point = c.toWorld(target)
	hit.Fix = hit.Point.Sub(to)
	hit.Normal = normal
	return hit
}

// firstContact walks the swept box through the grid and returns the
// earliest contact in the first block of cells that produces one.
func (c *Collider) firstContact(actor entity.Actor, cur, target, half physics.Vector2D, ignored map[Cell]bool) (contact, bool) {
	mover := physics.Sweep{Start: cur, End: target, Half: half}

	var best contact
	found := false
	grid.WalkWide(cur, target, half, func(r grid.CellRect) bool {
		var candidates []contact
		r.Each(func(x, y int) bool {
			cell := Cell{X: x, Y: y}
			if ignored[cell] || !c.grid.Tile(x, y).Blocking() {
				return true
			}
			tb := cell.box()
			res := physics.BoxSweepCollision(mover, physics.Sweep{Start: tb.Center, End: tb.Center, Half: tb.Half, Static: true})
			if !res.Found || res.Normal.IsZero() {
				return true
			}
			if res.Embedded {
				// rounding can leave a box a hair inside a tile it was just
				// stopped against; moving further in counts as a contact
				if res.Fix(mover).Length() >= contactEpsilon || mover.Motion().Dot(res.Normal) >= 0 {
					return true
				}
				res.Embedded = false
				res.Ratio = 0
				res.A = target
			}
			candidates = append(candidates, contact{res: res, cell: cell})
			return true
		})
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].res.Ratio < candidates[j].res.Ratio
		})

		for _, ct := range candidates {
			code := c.grid.Tile(ct.cell.X, ct.cell.Y)
			ct.at = cur.Lerp(target, ct.res.Ratio)
			if code.IsCallback() {
				fix := c.consult(actor, ct.cell, code, ct.res.A.Sub(target))
				if fix.IsZero() {
					ignored[ct.cell] = true
					continue
				}
				ct.res.A = target.Add(fix)
			} else {
				// land exactly on the tile edge so the next pass starts touching
				edge := ct.cell.box().Center.Add(ct.res.Normal.Mul(half.Add(tileHalf)))
				if ct.res.Normal.X != 0 {
					ct.res.A.X, ct.at.X = edge.X, edge.X
				} else {
					ct.res.A.Y, ct.at.Y = edge.Y, edge.Y
				}
			}
			best, found = ct, true
			return false
		}
		return true
	})
	return best, found
}

// LineCollision walks the segment from p1 to p2 and reports where it first
// enters a blocking tile. A segment starting inside a blocking tile hits at
// p1 with a zero normal.
func (c *Collider) LineCollision(actor entity.Actor, p1, p2 physics.Vector2D) LineHit {
	a, b := c.toGrid(p1), c.toGrid(p2)

	var hit LineHit
	grid.Walk(a, b, false, func(x, y int) bool {
		code := c.grid.Tile(x, y)
		if !code.Blocking() {
			return true
		}
		cell := Cell{X: x, Y: y}
		lh, at := physics.BoxLinePoint(cell.box(), a, b)
		if !lh.Found {
			return true
		}
		switch {
		case lh.Normal.X < 0:
			at.X = float64(x)
		case lh.Normal.X > 0:
			at.X = float64(x + 1)
		case lh.Normal.Y < 0:
			at.Y = float64(y)
		case lh.Normal.Y > 0:
			at.Y = float64(y + 1)
		}
		if code.IsCallback() && c.consult(actor, cell, code, at.Sub(b)).IsZero() {
			return true
		}
		hit = LineHit{Found: true, Point: c.toWorld(at), Normal: lh.Normal, Cell: cell}
		return false
	})
	return hit
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}
