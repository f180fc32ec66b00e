package quadtree

import (
	"fmt"
	"math"

	"github.com/opd-ai/go-collide/pkg/grid"
	"github.com/opd-ai/go-collide/pkg/physics"
)

// Holder tiles the world with square root trees of a fixed size. Items that
// straddle a root boundary are filed in every root they touch. Items lying
// outside the world are filed in the nearest edge roots.
type Holder struct {
	cellSize float64
	cols     int
	rows     int
	roots    []*Tree
	count    int
}

// NewHolder creates enough roots of cellSize to cover width by height
func NewHolder(width, height, cellSize float64, maxItems, maxDepth int) *Holder {
	if cellSize <= 0 {
		panic(fmt.Sprintf("quadtree: invalid root cell size %v", cellSize))
	}
	h := &Holder{
		cellSize: cellSize,
		cols:     max(1, int(math.Ceil(width/cellSize))),
		rows:     max(1, int(math.Ceil(height/cellSize))),
	}
	half := physics.Vector2D{X: cellSize / 2, Y: cellSize / 2}
	h.roots = make([]*Tree, h.cols*h.rows)
	for y := 0; y < h.rows; y++ {
		for x := 0; x < h.cols; x++ {
			center := physics.Vector2D{X: float64(x)*cellSize + half.X, Y: float64(y)*cellSize + half.Y}
			h.roots[y*h.cols+x] = NewTree(physics.Box{Center: center, Half: half}, maxItems, maxDepth)
		}
	}
	return h
}

// Bounds returns the area covered by the root trees
func (h *Holder) Bounds() physics.Box {
	return physics.BoxFromMinMax(
		physics.Vector2D{},
		physics.Vector2D{X: float64(h.cols) * h.cellSize, Y: float64(h.rows) * h.cellSize},
	)
}

// Len returns the number of filed items
func (h *Holder) Len() int {
	return h.count
}

func (h *Holder) root(x, y int) *Tree {
	return h.roots[y*h.cols+x]
}

func (h *Holder) clampCell(v float64, n int) int {
	c := int(math.Floor(v / h.cellSize))
	if c < 0 {
		return 0
	}
	if c >= n {
		return n - 1
	}
	return c
}

// rootRange maps a box to the inclusive range of roots it overlaps
func (h *Holder) rootRange(b physics.Box) grid.CellRect {
	min, max := b.Min(), b.Max()
	return grid.CellRect{
		MinX: h.clampCell(min.X, h.cols), MinY: h.clampCell(min.Y, h.rows),
		MaxX: h.clampCell(max.X, h.cols), MaxY: h.clampCell(max.Y, h.rows),
	}
}

// Insert files the item under its current bounds
func (h *Holder) Insert(it *Item) {
	if it.filed {
		panic(fmt.Sprintf("quadtree: item %v inserted twice", it.Value))
	}
	it.bounds = it.bounds.Sanitize()
	it.roots = h.rootRange(it.bounds)
	it.roots.Each(func(x, y int) bool {
		h.root(x, y).Insert(it)
		return true
	})
	it.filed = true
	h.count++
}

// Remove takes the item out of every root it was filed in
func (h *Holder) Remove(it *Item) {
	if !it.filed {
		panic(fmt.Sprintf("quadtree: item %v is not filed", it.Value))
	}
	it.roots.Each(func(x, y int) bool {
		h.root(x, y).Remove(it)
		return true
	})
	it.filed = false
	h.count--
}

// Move refiles the item under new bounds
func (h *Holder) Move(it *Item, bounds physics.Box) {
	if it.filed {
		h.Remove(it)
	}
	it.bounds = bounds
	h.Insert(it)
}

// areaFind reports each item in the roots under bounds once, provided test
// accepts its box. Areas entirely outside the world find nothing.
func (h *Holder) areaFind(bounds physics.Box, test func(physics.Box) bool, visit func(*Item) bool) {
	if !bounds.Intersects(h.Bounds()) {
		return
	}
	seen := make(seenSet)
	h.rootRange(bounds).Each(func(x, y int) bool {
		return h.root(x, y).search(0, bounds, func(it *Item) bool {
			if !seen.first(it) {
				return true
			}
			if !it.bounds.Intersects(bounds) || !test(it.bounds) {
				return true
			}
			return visit(it)
		})
	})
}

// Query calls visit for every item whose bounds intersect area. Returning
// false from visit ends the query.
func (h *Holder) Query(area physics.Box, visit func(*Item) bool) {
	h.areaFind(area, func(physics.Box) bool { return true }, visit)
}

// QueryCircle calls visit for every item whose bounds touch the circle
func (h *Holder) QueryCircle(center physics.Vector2D, radius float64, visit func(*Item) bool) {
	bounds := physics.Box{Center: center, Half: physics.Vector2D{X: radius, Y: radius}}
	h.areaFind(bounds, func(b physics.Box) bool {
		min, max := b.Min(), b.Max()
		nearest := physics.Vector2D{
			X: math.Max(min.X, math.Min(center.X, max.X)),
			Y: math.Max(min.Y, math.Min(center.Y, max.Y)),
		}
		return nearest.Sub(center).LengthSquared() <= radius*radius
	}, visit)
}

// QueryLine calls visit for every item whose bounds the segment crosses or
// starts inside.
func (h *Holder) QueryLine(p1, p2 physics.Vector2D, visit func(*Item) bool) {
	h.areaFind(physics.BoxFromMinMax(p1, p2), func(b physics.Box) bool {
		return physics.BoxLineCollision(b, p1, p2).Found
	}, visit)
}

// OperatePairs calls fn for every unordered pair of items sharing a leaf in
// any root. Straddling items can produce the same pair more than once.
func (h *Holder) OperatePairs(fn func(a, b *Item)) {
	for _, t := range h.roots {
		t.OperatePairs(fn)
	}
}

// Walk calls fn for every node of every root
func (h *Holder) Walk(fn func(bounds physics.Box, depth int, leaf bool, items int)) {
	for _, t := range h.roots {
		t.Walk(fn)
	}
}

// Stats sums the shape of every root
func (h *Holder) Stats() Stats {
	var s Stats
	for _, t := range h.roots {
		s.add(t.Stats())
	}
	s.Items = h.count
	return s
}
