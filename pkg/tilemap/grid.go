// Package tilemap holds the static tile grid and resolves boxes and segments
// against it.
package tilemap

import (
	"fmt"
	"strings"
)

// TileCode is the content of one tile
type TileCode int

const (
	Empty TileCode = 0
	Block TileCode = 1
	// Callback is the first code whose outcome is decided by a handler
	Callback TileCode = 80
)

// Blocking reports whether the tile stops boxes. Reserved codes between
// Block and Callback are treated as empty.
func (c TileCode) Blocking() bool {
	return c == Block || c >= Callback
}

// IsCallback reports whether a handler decides the outcome
func (c TileCode) IsCallback() bool {
	return c >= Callback
}

// TileGrid is a read only rectangular array of tile codes. Reads outside
// the grid must return Empty.
type TileGrid interface {
	Tile(x, y int) TileCode
	Size() (width, height int)
}

// Grid is an in-memory TileGrid
type Grid struct {
	width  int
	height int
	tiles  []TileCode
}

// NewGrid creates an empty grid
func NewGrid(width, height int) *Grid {
	width, height = max(width, 0), max(height, 0)
	return &Grid{width: width, height: height, tiles: make([]TileCode, width*height)}
}

// Size returns the grid dimensions in tiles
func (g *Grid) Size() (int, int) {
	return g.width, g.height
}

func (g *Grid) inside(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.width && y < g.height
}

// Tile returns the code at x,y or Empty outside the grid
func (g *Grid) Tile(x, y int) TileCode {
	if !g.inside(x, y) {
		return Empty
	}
	return g.tiles[y*g.width+x]
}

// Set stores a code; writes outside the grid are ignored
func (g *Grid) Set(x, y int, code TileCode) {
	if g.inside(x, y) {
		g.tiles[y*g.width+x] = code
	}
}

// Fill sets every tile in the inclusive rectangle
func (g *Grid) Fill(x0, y0, x1, y1 int, code TileCode) {
	for y := min(y0, y1); y <= max(y0, y1); y++ {
		for x := min(x0, x1); x <= max(x0, x1); x++ {
			g.Set(x, y, code)
		}
	}
}

// Border surrounds the grid with blocking tiles
func (g *Grid) Border() {
	g.Fill(0, 0, g.width-1, 0, Block)
	g.Fill(0, g.height-1, g.width-1, g.height-1, Block)
	g.Fill(0, 0, 0, g.height-1, Block)
	g.Fill(g.width-1, 0, g.width-1, g.height-1, Block)
}

// ParseGrid builds a grid from rows of text, row 0 first. '.' and ' ' are
// empty, '#' blocks, and 'a' through 'z' map to Callback+0 through
// Callback+25. Rows shorter than the longest one are padded with empty
// tiles.
func ParseGrid(text string) (*Grid, error) {
	lines := strings.Split(strings.Trim(text, "\n"), "\n")
	width := 0
	for _, l := range lines {
		width = max(width, len(l))
	}

	g := NewGrid(width, len(lines))
	for y, l := range lines {
		for x, r := range []byte(l) {
			switch {
			case r == '.' || r == ' ':
			case r == '#':
				g.Set(x, y, Block)
			case r >= 'a' && r <= 'z':
				g.Set(x, y, Callback+TileCode(r-'a'))
			default:
				return nil, fmt.Errorf("tile %q at %d,%d: unknown code", r, x, y)
			}
		}
	}
	return g, nil
}

// Rune returns the character ParseGrid reads for a code
func (c TileCode) Rune() rune {
	switch {
	case c == Block:
		return '#'
	case c >= Callback && c < Callback+26:
		return rune('a' + int(c-Callback))
	case c >= Callback:
		return '?'
	}
	return '.'
}
