// pkg/render/renderer.go
package render

import (
	"context"
	"io"

	"github.com/opd-ai/go-collide/pkg/entity"
	"github.com/opd-ai/go-collide/pkg/logging"
	"github.com/opd-ai/go-collide/pkg/physics"
	"github.com/opd-ai/go-collide/pkg/tilemap"
)

// Renderer draws a debug view of the collision world
type Renderer interface {
	Clear()
	RenderTiles(g tilemap.TileGrid, tileSize float64)
	RenderActor(s entity.State)
	RenderOutline(b physics.Box)
	Present(w io.Writer) error
}

// NullRenderer is a Renderer that only logs what it is asked to draw
type NullRenderer struct {
	logger *logging.Logger
}

// NewNullRenderer creates a NullRenderer; a nil logger discards everything
func NewNullRenderer(logger *logging.Logger) *NullRenderer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &NullRenderer{logger: logger}
}

// Clear implements Renderer.
func (d *NullRenderer) Clear() {
	d.logger.Debug(context.Background(), "Clear called")
}

// RenderTiles implements Renderer.
func (d *NullRenderer) RenderTiles(g tilemap.TileGrid, tileSize float64) {
	ctx := context.Background()
	if g == nil {
		d.logger.Debug(ctx, "RenderTiles called with nil grid")
		return
	}
	w, h := g.Size()
	d.logger.Debug(ctx, "RenderTiles called", "width", w, "height", h, "tile_size", tileSize)
}

// RenderActor implements Renderer.
func (d *NullRenderer) RenderActor(s entity.State) {
	d.logger.Debug(context.Background(), "RenderActor called",
		"x", s.Position.X,
		"y", s.Position.Y,
		"flags", s.Flags.String(),
	)
}

// RenderOutline implements Renderer.
func (d *NullRenderer) RenderOutline(b physics.Box) {
	d.logger.Debug(context.Background(), "RenderOutline called", "x", b.Center.X, "y", b.Center.Y)
}

// Present implements Renderer.
func (d *NullRenderer) Present(io.Writer) error {
	d.logger.Debug(context.Background(), "Present called")
	return nil
}
