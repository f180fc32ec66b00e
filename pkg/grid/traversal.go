// Package grid walks the unit cells of a regular grid that a segment, or a
// box swept along a segment, passes through.
//
// Cells are half-open: cell (i, j) covers [i, i+1) x [j, j+1). Callers using
// other cell sizes scale their coordinates before walking and scale the
// returned stopping point back.
package grid

import (
	"math"

	"github.com/opd-ai/go-collide/pkg/physics"
)

// Visitor is called for each cell in order. Returning false stops the walk.
type Visitor func(x, y int) bool

// RectVisitor is called with each block of newly touched cells.
// Returning false stops the walk.
type RectVisitor func(r CellRect) bool

// CellRect is an inclusive rectangle of cells
type CellRect struct {
	MinX, MinY int
	MaxX, MaxY int
}

// Contains reports whether the cell lies in the rectangle
func (r CellRect) Contains(x, y int) bool {
	return x >= r.MinX && x <= r.MaxX && y >= r.MinY && y <= r.MaxY
}

// Union returns the smallest rectangle covering both
func (r CellRect) Union(o CellRect) CellRect {
	return CellRect{
		MinX: min(r.MinX, o.MinX), MinY: min(r.MinY, o.MinY),
		MaxX: max(r.MaxX, o.MaxX), MaxY: max(r.MaxY, o.MaxY),
	}
}

// Each calls fn for every cell in row-major order until fn returns false
func (r CellRect) Each(fn Visitor) bool {
	for y := r.MinY; y <= r.MaxY; y++ {
		for x := r.MinX; x <= r.MaxX; x++ {
			if !fn(x, y) {
				return false
			}
		}
	}
	return true
}

// Area returns the number of cells covered
func (r CellRect) Area() int {
	if r.MaxX < r.MinX || r.MaxY < r.MinY {
		return 0
	}
	return (r.MaxX - r.MinX + 1) * (r.MaxY - r.MinY + 1)
}

// BoxCells returns the cells a box covers. Edges lying exactly on a cell
// boundary do not reach into the neighbouring cell.
func BoxCells(b physics.Box) CellRect {
	min, max := b.Min(), b.Max()
	return CellRect{
		MinX: lowCell(min.X), MinY: lowCell(min.Y),
		MaxX: highCell(max.X, min.X), MaxY: highCell(max.Y, min.Y),
	}
}

func lowCell(v float64) int {
	return int(math.Floor(v))
}

// highCell is the cell holding an upper edge; a zero-width extent stays in
// the cell of its lower edge.
func highCell(v, low float64) int {
	c := math.Ceil(v) - 1
	if f := math.Floor(low); c < f {
		return int(f)
	}
	return int(c)
}

// startCell is the cell the segment occupies just after leaving v
func startCell(v, dir float64) int {
	f := math.Floor(v)
	if dir < 0 && f == v {
		return int(f) - 1
	}
	return int(f)
}

// endCell is the cell the segment occupies just before reaching v
func endCell(v, dir float64) int {
	if dir > 0 {
		return int(math.Ceil(v)) - 1
	}
	return int(math.Floor(v))
}

func step(d float64) int {
	switch {
	case d > 0:
		return 1
	case d < 0:
		return -1
	}
	return 0
}

// dda steps a point across cell boundaries. Its loop is bounded by the
// Manhattan distance between the first and last cell, so accumulated
// rounding can never make it run away.
type dda struct {
	x, y         int
	endX, endY   int
	stepX, stepY int
	tMaxX, tMaxY float64
	tDelX, tDelY float64
	remaining    int
}

func newDDA(origin, d physics.Vector2D, x, y, endX, endY int) dda {
	w := dda{
		x: x, y: y,
		endX: endX, endY: endY,
		stepX: step(d.X), stepY: step(d.Y),
		tMaxX: math.Inf(1), tMaxY: math.Inf(1),
	}
	// an axis that does not move cannot change cell
	if w.stepX == 0 {
		w.endX = x
	}
	if w.stepY == 0 {
		w.endY = y
	}
	if (w.endX-x)*w.stepX < 0 {
		w.endX = x
	}
	if (w.endY-y)*w.stepY < 0 {
		w.endY = y
	}

	if w.stepX > 0 {
		w.tDelX = 1 / d.X
		w.tMaxX = (float64(x+1) - origin.X) / d.X
	} else if w.stepX < 0 {
		w.tDelX = -1 / d.X
		w.tMaxX = (origin.X - float64(x)) / -d.X
	}
	if w.stepY > 0 {
		w.tDelY = 1 / d.Y
		w.tMaxY = (float64(y+1) - origin.Y) / d.Y
	} else if w.stepY < 0 {
		w.tDelY = -1 / d.Y
		w.tMaxY = (origin.Y - float64(y)) / -d.Y
	}

	w.remaining = abs(w.endX-x) + abs(w.endY-y)
	return w
}

// next advances one cell. It returns which axis moved (0 for x, 1 for y),
// the ratio at which the boundary was crossed and false when done.
func (w *dda) next() (axis int, t float64, ok bool) {
	if w.remaining <= 0 {
		return 0, 1, false
	}
	w.remaining--

	moveX := w.tMaxX < w.tMaxY
	if w.x == w.endX {
		moveX = false
	} else if w.y == w.endY {
		moveX = true
	}

	if moveX {
		t = w.tMaxX
		w.x += w.stepX
		w.tMaxX += w.tDelX
		return 0, clamp01(t), true
	}
	t = w.tMaxY
	w.y += w.stepY
	w.tMaxY += w.tDelY
	return 1, clamp01(t), true
}

// Walk visits every cell the segment from start to end passes through, in
// order. When skipStart is set the first cell is not reported. If visit
// halts the walk, the returned point is where the segment entered the
// halting cell and completed is false; otherwise end is returned.
func Walk(start, end physics.Vector2D, skipStart bool, visit Visitor) (stop physics.Vector2D, completed bool) {
	d := end.Sub(start)
	x, y := startCell(start.X, d.X), startCell(start.Y, d.Y)
	ex, ey := endCell(end.X, d.X), endCell(end.Y, d.Y)

	if !skipStart && !visit(x, y) {
		return start, false
	}
	if x == ex && y == ey {
		return end, true
	}

	// axis aligned segments are walked directly
	if d.X == 0 || d.Y == 0 {
		return walkStraight(start, end, x, y, ex, ey, visit)
	}

	w := newDDA(start, d, x, y, ex, ey)
	for {
		_, t, ok := w.next()
		if !ok {
			return end, true
		}
		if !visit(w.x, w.y) {
			return start.Add(d.Scale(t)), false
		}
	}
}

func walkStraight(start, end physics.Vector2D, x, y, ex, ey int, visit Visitor) (physics.Vector2D, bool) {
	d := end.Sub(start)
	if d.Y == 0 {
		sx := step(d.X)
		for x != ex {
			x += sx
			boundary := float64(x)
			if sx < 0 {
				boundary = float64(x + 1)
			}
			if !visit(x, y) {
				return physics.Vector2D{X: boundary, Y: start.Y}, false
			}
		}
		return end, true
	}

	sy := step(d.Y)
	for y != ey {
		y += sy
		boundary := float64(y)
		if sy < 0 {
			boundary = float64(y + 1)
		}
		if !visit(x, y) {
			return physics.Vector2D{X: start.X, Y: boundary}, false
		}
	}
	return end, true
}

// WalkWide visits the cells touched by a box with the given half extents
// swept from start to end. The first call covers the box at start; every
// following call covers the column or row of cells the leading edge of the
// box enters, spanning the box's extent on the other axis at that moment.
// When the leading corner never changes cell, a single call covers the
// union of the start and end boxes.
//
// If visit halts the walk, the returned point is the box center at the
// moment it entered the halting block of cells.
func WalkWide(start, end, half physics.Vector2D, visit RectVisitor) (stop physics.Vector2D, completed bool) {
	half = half.Abs()
	d := end.Sub(start)
	startRect := BoxCells(physics.Box{Center: start, Half: half})
	endRect := BoxCells(physics.Box{Center: end, Half: half})

	lead := func(c physics.Vector2D) (float64, float64) {
		lx, ly := c.X+half.X, c.Y+half.Y
		if d.X < 0 {
			lx = c.X - half.X
		}
		if d.Y < 0 {
			ly = c.Y - half.Y
		}
		return lx, ly
	}
	lx, ly := lead(start)
	elx, ely := lead(end)
	x, y := leadCell(lx, d.X, startRect.MinX, startRect.MaxX), leadCell(ly, d.Y, startRect.MinY, startRect.MaxY)
	ex, ey := leadCell(elx, d.X, endRect.MinX, endRect.MaxX), leadCell(ely, d.Y, endRect.MinY, endRect.MaxY)

	if x == ex && y == ey {
		if !visit(startRect.Union(endRect)) {
			return start, false
		}
		return end, true
	}

	if !visit(startRect) {
		return start, false
	}

	w := newDDA(physics.Vector2D{X: lx, Y: ly}, d, x, y, ex, ey)
	for {
		axis, t, ok := w.next()
		if !ok {
			return end, true
		}
		r := BoxCells(physics.Box{Center: start.Add(d.Scale(t)), Half: half})
		if axis == 0 {
			r.MinX, r.MaxX = w.x, w.x
			r.MinY, r.MaxY = min(r.MinY, w.y), max(r.MaxY, w.y)
		} else {
			r.MinY, r.MaxY = w.y, w.y
			r.MinX, r.MaxX = min(r.MinX, w.x), max(r.MaxX, w.x)
		}
		if !visit(r) {
			return start.Add(d.Scale(t)), false
		}
	}
}

// leadCell is the cell holding the leading edge of a box moving along dir
func leadCell(v, dir float64, low, high int) int {
	switch {
	case dir > 0:
		return high
	case dir < 0:
		return low
	}
	return startCell(v, dir)
}

func clamp01(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}
