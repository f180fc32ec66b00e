// Package quadtree implements the spatial index used by the broad phase: an
// arena backed quadtree of boxed items and a Holder that tiles the world with
// fixed size root trees.
//
// Nodes live in a slice and reference each other by index. A node is either
// a leaf holding items or a branch with exactly four children. Recursion
// depth is bounded by the configured maximum depth.
//
// Neither type is safe for concurrent use.
package quadtree

import (
	"fmt"

	"github.com/opd-ai/go-collide/pkg/grid"
	"github.com/opd-ai/go-collide/pkg/physics"
)

const noNode = -1

// Item pairs an opaque payload with the box it is filed under
type Item struct {
	Value any

	bounds physics.Box
	roots  grid.CellRect
	filed  bool
}

// NewItem creates an item that is not yet filed in any index
func NewItem(value any, bounds physics.Box) *Item {
	return &Item{Value: value, bounds: bounds.Sanitize()}
}

// Bounds returns the box the item is filed under
func (it *Item) Bounds() physics.Box {
	return it.bounds
}

// Filed reports whether the item currently lives in a Holder
func (it *Item) Filed() bool {
	return it.filed
}

// seenSet records the items one query has already reported, so visitors
// may start queries of their own
type seenSet map[*Item]struct{}

// first reports whether it is new to the set and adds it
func (s seenSet) first(it *Item) bool {
	if _, ok := s[it]; ok {
		return false
	}
	s[it] = struct{}{}
	return true
}

type node struct {
	parent   int32
	children [4]int32
	depth    int
	bounds   physics.Box
	items    []*Item
	leaf     bool
	live     bool
}

// Tree is a single quadtree rooted at a fixed box
type Tree struct {
	nodes    []node
	free     []int32
	maxItems int
	maxDepth int
}

// NewTree creates a tree whose root covers bounds. A leaf splits once it
// holds more than maxItems entries, unless it is already maxDepth levels
// below the root.
func NewTree(bounds physics.Box, maxItems, maxDepth int) *Tree {
	if maxItems < 1 {
		maxItems = 1
	}
	if maxDepth < 0 {
		maxDepth = 0
	}
	t := &Tree{maxItems: maxItems, maxDepth: maxDepth}
	t.alloc(noNode, 0, bounds)
	return t
}

func (t *Tree) alloc(parent int32, depth int, bounds physics.Box) int32 {
	n := node{
		parent:   parent,
		children: [4]int32{noNode, noNode, noNode, noNode},
		depth:    depth,
		bounds:   bounds,
		leaf:     true,
		live:     true,
	}
	if k := len(t.free); k > 0 {
		idx := t.free[k-1]
		t.free = t.free[:k-1]
		t.nodes[idx] = n
		return idx
	}
	t.nodes = append(t.nodes, n)
	return int32(len(t.nodes) - 1)
}

func (t *Tree) release(idx int32) {
	t.nodes[idx] = node{parent: t.nodes[idx].parent}
	t.free = append(t.free, idx)
}

// quadrants returns a bitmask of the children of n that b reaches into.
// Bit 0 selects the positive x half and bit 1 the positive y half.
func (t *Tree) quadrants(n int32, b physics.Box) int {
	c := t.nodes[n].bounds.Center
	min, max := b.Min(), b.Max()

	var xs, ys [2]bool
	xs[0], xs[1] = min.X < c.X, max.X >= c.X
	ys[0], ys[1] = min.Y < c.Y, max.Y >= c.Y

	mask := 0
	for q := 0; q < 4; q++ {
		if xs[q&1] && ys[q>>1] {
			mask |= 1 << q
		}
	}
	return mask
}

// Insert files the item in every leaf its bounds reach
func (t *Tree) Insert(it *Item) {
	t.insert(0, it)
}

func (t *Tree) insert(n int32, it *Item) {
	if !t.nodes[n].leaf {
		mask := t.quadrants(n, it.bounds)
		for q := 0; q < 4; q++ {
			if mask&(1<<q) != 0 {
				t.insert(t.nodes[n].children[q], it)
			}
		}
		return
	}

	t.nodes[n].items = append(t.nodes[n].items, it)
	if len(t.nodes[n].items) > t.maxItems && t.nodes[n].depth < t.maxDepth {
		t.subdivide(n)
	}
}

func (t *Tree) subdivide(n int32) {
	b := t.nodes[n].bounds
	depth := t.nodes[n].depth + 1
	quarter := b.Half.Scale(0.5)

	var children [4]int32
	for q := 0; q < 4; q++ {
		offset := quarter
		if q&1 == 0 {
			offset.X = -offset.X
		}
		if q&2 == 0 {
			offset.Y = -offset.Y
		}
		children[q] = t.alloc(n, depth, physics.Box{Center: b.Center.Add(offset), Half: quarter})
	}

	items := t.nodes[n].items
	t.nodes[n].items = nil
	t.nodes[n].leaf = false
	t.nodes[n].children = children

	for _, it := range items {
		t.insert(n, it)
	}
}

// Remove takes the item out of every leaf it was filed in and merges
// branches that no longer hold enough items. Removing an item that was never
// inserted panics.
func (t *Tree) Remove(it *Item) {
	var touched []int32
	t.remove(0, it, &touched)
	for _, leaf := range touched {
		for p := t.nodes[leaf].parent; p != noNode; p = t.nodes[p].parent {
			t.balance(p)
		}
	}
}

func (t *Tree) remove(n int32, it *Item, touched *[]int32) {
	if !t.nodes[n].leaf {
		mask := t.quadrants(n, it.bounds)
		for q := 0; q < 4; q++ {
			if mask&(1<<q) != 0 {
				t.remove(t.nodes[n].children[q], it, touched)
			}
		}
		return
	}

	items := t.nodes[n].items
	for i, other := range items {
		if other == it {
			items[i] = items[len(items)-1]
			items[len(items)-1] = nil
			t.nodes[n].items = items[:len(items)-1]
			*touched = append(*touched, n)
			return
		}
	}
	panic(fmt.Sprintf("quadtree: item %v not present in leaf at depth %d", it.Value, t.nodes[n].depth))
}

// balance folds the children of n back into it when they are all leaves
// holding at most one distinct item between them.
func (t *Tree) balance(n int32) {
	nd := &t.nodes[n]
	if !nd.live || nd.leaf {
		return
	}

	var keep *Item
	for _, c := range nd.children {
		child := &t.nodes[c]
		if !child.leaf {
			return
		}
		for _, it := range child.items {
			if keep != nil && keep != it {
				return
			}
			keep = it
		}
	}

	for _, c := range nd.children {
		t.release(c)
	}
	nd = &t.nodes[n]
	nd.children = [4]int32{noNode, noNode, noNode, noNode}
	nd.leaf = true
	nd.items = nil
	if keep != nil {
		nd.items = append(nd.items, keep)
	}
}

// search calls visit for every item filed in a leaf whose quadrant reaches
// area. Items may be reported more than once and are not tested against
// area.
func (t *Tree) search(n int32, area physics.Box, visit func(*Item) bool) bool {
	if t.nodes[n].leaf {
		for _, it := range t.nodes[n].items {
			if !visit(it) {
				return false
			}
		}
		return true
	}
	mask := t.quadrants(n, area)
	for q := 0; q < 4; q++ {
		if mask&(1<<q) == 0 {
			continue
		}
		if !t.search(t.nodes[n].children[q], area, visit) {
			return false
		}
	}
	return true
}

// Query calls visit once for each item whose bounds intersect area.
// Returning false from visit ends the query.
func (t *Tree) Query(area physics.Box, visit func(*Item) bool) {
	seen := make(seenSet)
	t.search(0, area, func(it *Item) bool {
		if !it.bounds.Intersects(area) || !seen.first(it) {
			return true
		}
		return visit(it)
	})
}

// OperatePairs calls fn for every unordered pair of items sharing a leaf.
// Items filed in several leaves can produce the same pair more than once.
func (t *Tree) OperatePairs(fn func(a, b *Item)) {
	t.eachLeaf(0, func(items []*Item) {
		for i := 0; i < len(items); i++ {
			for j := i + 1; j < len(items); j++ {
				fn(items[i], items[j])
			}
		}
	})
}

func (t *Tree) eachLeaf(n int32, fn func(items []*Item)) {
	if t.nodes[n].leaf {
		fn(t.nodes[n].items)
		return
	}
	for _, c := range t.nodes[n].children {
		t.eachLeaf(c, fn)
	}
}

// Walk calls fn for every node, parents before children
func (t *Tree) Walk(fn func(bounds physics.Box, depth int, leaf bool, items int)) {
	t.walk(0, fn)
}

func (t *Tree) walk(n int32, fn func(bounds physics.Box, depth int, leaf bool, items int)) {
	nd := t.nodes[n]
	fn(nd.bounds, nd.depth, nd.leaf, len(nd.items))
	if nd.leaf {
		return
	}
	for _, c := range nd.children {
		t.walk(c, fn)
	}
}

// IsLeaf reports whether the whole tree has collapsed into its root
func (t *Tree) IsLeaf() bool {
	return t.nodes[0].leaf
}

// Stats summarizes the shape of an index
type Stats struct {
	Nodes    int
	Leaves   int
	MaxDepth int
	// Refs counts leaf entries, so straddling items are counted once per leaf.
	Refs int
	// Items counts distinct filed items. Only set by Holder.
	Items int
}

func (s *Stats) add(o Stats) {
	s.Nodes += o.Nodes
	s.Leaves += o.Leaves
	s.Refs += o.Refs
	s.MaxDepth = max(s.MaxDepth, o.MaxDepth)
}

// Stats walks the tree and reports its shape
func (t *Tree) Stats() Stats {
	var s Stats
	t.Walk(func(_ physics.Box, depth int, leaf bool, items int) {
		s.Nodes++
		s.MaxDepth = max(s.MaxDepth, depth)
		if leaf {
			s.Leaves++
			s.Refs += items
		}
	})
	return s
}
