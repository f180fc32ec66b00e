package render

import (
	"bufio"
	"io"
	"math"
	"strings"

	"github.com/opd-ai/go-collide/pkg/entity"
	"github.com/opd-ai/go-collide/pkg/physics"
	"github.com/opd-ai/go-collide/pkg/tilemap"
)

// Glyphs used for actors, by flag
const (
	GlyphActor      = '@'
	GlyphStatic     = 'S'
	GlyphGhost      = 'g'
	GlyphProjectile = '*'
	GlyphOutline    = '+'
)

// Glyph picks the rune an actor with flags is drawn with
func Glyph(f entity.Flags) rune {
	switch {
	case f.Has(entity.IsProjectile):
		return GlyphProjectile
	case f.Has(entity.IsGhost):
		return GlyphGhost
	case f.Has(entity.IsStatic):
		return GlyphStatic
	}
	return GlyphActor
}

// TerminalRenderer provides a simple ASCII-based rendering for terminals.
// One character covers scale world units on both axes.
type TerminalRenderer struct {
	width     int
	height    int
	buffer    [][]rune
	scale     float64
	centerPos physics.Vector2D
}

// NewTerminalRenderer creates a new terminal renderer with the specified dimensions
func NewTerminalRenderer(width, height int, scale float64) *TerminalRenderer {
	buffer := make([][]rune, height)
	for i := range buffer {
		buffer[i] = make([]rune, width)
	}

	r := &TerminalRenderer{
		width:  width,
		height: height,
		buffer: buffer,
		scale:  scale,
	}
	r.Clear()
	return r
}

// Size returns the view size in characters
func (r *TerminalRenderer) Size() (int, int) {
	return r.width, r.height
}

// SetCenter sets the center position of the view
func (r *TerminalRenderer) SetCenter(pos physics.Vector2D) {
	r.centerPos = pos
}

// worldToScreen converts world coordinates to screen coordinates
func (r *TerminalRenderer) worldToScreen(pos physics.Vector2D) (int, int) {
	screenX := int(math.Floor((pos.X-r.centerPos.X)/r.scale + float64(r.width)/2))
	screenY := int(math.Floor((pos.Y-r.centerPos.Y)/r.scale + float64(r.height)/2))
	return screenX, screenY
}

// screenToWorld returns the world position of the middle of a character
func (r *TerminalRenderer) screenToWorld(x, y int) physics.Vector2D {
	return physics.Vector2D{
		X: (float64(x)+0.5-float64(r.width)/2)*r.scale + r.centerPos.X,
		Y: (float64(y)+0.5-float64(r.height)/2)*r.scale + r.centerPos.Y,
	}
}

func (r *TerminalRenderer) set(x, y int, c rune) {
	if x >= 0 && x < r.width && y >= 0 && y < r.height {
		r.buffer[y][x] = c
	}
}

// At returns the character at screen position x, y
func (r *TerminalRenderer) At(x, y int) rune {
	if x < 0 || x >= r.width || y < 0 || y >= r.height {
		return ' '
	}
	return r.buffer[y][x]
}

// Clear implements Renderer
func (r *TerminalRenderer) Clear() {
	for y := range r.buffer {
		for x := range r.buffer[y] {
			r.buffer[y][x] = ' '
		}
	}
}

// RenderTiles samples the grid at the middle of every character and draws
// the non-empty tiles
func (r *TerminalRenderer) RenderTiles(g tilemap.TileGrid, tileSize float64) {
	if g == nil || tileSize <= 0 {
		return
	}
	for y := 0; y < r.height; y++ {
		for x := 0; x < r.width; x++ {
			p := r.screenToWorld(x, y)
			code := g.Tile(int(math.Floor(p.X/tileSize)), int(math.Floor(p.Y/tileSize)))
			if code != tilemap.Empty {
				r.buffer[y][x] = code.Rune()
			}
		}
	}
}

// RenderActor fills the actor's collision box. Boxes smaller than one
// character still mark the character holding their center.
func (r *TerminalRenderer) RenderActor(s entity.State) {
	glyph := Glyph(s.Flags)
	box := s.Box()
	x0, y0 := r.worldToScreen(box.Min())
	x1, y1 := r.worldToScreen(box.Max())
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			if box.ContainsPoint(r.screenToWorld(x, y)) {
				r.set(x, y, glyph)
			}
		}
	}
	cx, cy := r.worldToScreen(box.Center)
	r.set(cx, cy, glyph)
}

// RenderOutline draws the border of b, leaving the inside untouched
func (r *TerminalRenderer) RenderOutline(b physics.Box) {
	x0, y0 := r.worldToScreen(b.Min())
	x1, y1 := r.worldToScreen(b.Max())
	for x := x0; x <= x1; x++ {
		r.outline(x, y0)
		r.outline(x, y1)
	}
	for y := y0; y <= y1; y++ {
		r.outline(x0, y)
		r.outline(x1, y)
	}
}

// outline only draws over blank characters
func (r *TerminalRenderer) outline(x, y int) {
	if r.At(x, y) == ' ' {
		r.set(x, y, GlyphOutline)
	}
}

// Lines returns the buffer as one string per row
func (r *TerminalRenderer) Lines() []string {
	lines := make([]string, r.height)
	for y := range r.buffer {
		lines[y] = string(r.buffer[y])
	}
	return lines
}

// Present writes the framed buffer to w
func (r *TerminalRenderer) Present(w io.Writer) error {
	bw := bufio.NewWriter(w)
	border := "+" + strings.Repeat("-", r.width) + "+\n"

	bw.WriteString(border)
	for _, line := range r.Lines() {
		bw.WriteString("|")
		bw.WriteString(line)
		bw.WriteString("|\n")
	}
	bw.WriteString(border)
	return bw.Flush()
}
