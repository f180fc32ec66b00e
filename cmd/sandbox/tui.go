// cmd/sandbox/tui.go
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/opd-ai/go-collide/pkg/physics"
	"github.com/opd-ai/go-collide/pkg/render"
)

const (
	panChars   = 4
	zoomFactor = 1.25
)

var glyphStyles = map[rune]tcell.Style{
	'#':                    tcell.StyleDefault.Foreground(tcell.ColorGray),
	render.GlyphActor:      tcell.StyleDefault.Foreground(tcell.ColorGreen),
	render.GlyphStatic:     tcell.StyleDefault.Foreground(tcell.ColorYellow),
	render.GlyphGhost:      tcell.StyleDefault.Foreground(tcell.ColorTeal),
	render.GlyphProjectile: tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true),
	render.GlyphOutline:    tcell.StyleDefault.Foreground(tcell.ColorDarkGray),
}

// terminal shows the world in a tcell screen
type terminal struct {
	screen tcell.Screen
	w      *world
	out    *sinks
	view   *render.TerminalRenderer

	center    physics.Vector2D
	scale     float64
	paused    bool
	showIndex bool
}

func newTerminal(w *world, out *sinks) (*terminal, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	if err := screen.Init(); err != nil {
		return nil, err
	}

	t := &terminal{screen: screen, w: w, out: out}
	t.resize()
	t.fit()
	return t, nil
}

// resize rebuilds the view for the screen size, keeping a status line
func (t *terminal) resize() {
	sw, sh := t.screen.Size()
	t.view = render.NewTerminalRenderer(sw, max(1, sh-1), max(t.scale, 1e-3))
	t.view.SetCenter(t.center)
}

// fit zooms to show the whole world
func (t *terminal) fit() {
	ww, wh := t.w.bp.WorldSize()
	vw, vh := t.view.Size()
	t.center = physics.Vec(ww/2, wh/2)
	t.scale = max(ww/float64(max(1, vw)), wh/float64(max(1, vh)))
	t.resize()
}

func (t *terminal) zoom(f float64) {
	t.scale *= f
	t.resize()
}

func (t *terminal) pan(dx, dy float64) {
	t.center = t.center.Add(physics.Vec(dx*panChars*t.scale, dy*panChars*t.scale))
	t.view.SetCenter(t.center)
}

func (t *terminal) step(ctx context.Context) error {
	report, err := t.w.step(ctx)
	if err != nil {
		return err
	}
	t.out.publish(ctx, t.w.bp, report)
	return nil
}

func (t *terminal) draw() {
	v := t.view
	v.Clear()
	v.RenderTiles(t.w.grid, t.w.cfg.Collision.TileSize)
	for _, a := range t.w.actors {
		v.RenderActor(a.State())
	}
	if t.showIndex {
		t.w.bp.WalkIndex(func(bounds physics.Box, _ int, leaf bool, _ int) {
			if leaf {
				v.RenderOutline(bounds)
			}
		})
	}

	t.screen.Clear()
	for y, line := range v.Lines() {
		x := 0
		for _, r := range line {
			style, ok := glyphStyles[r]
			if !ok && r >= 'a' && r <= 'z' {
				style = tcell.StyleDefault.Foreground(tcell.ColorBlue)
			}
			t.screen.SetContent(x, y, r, nil, style)
			x++
		}
	}
	t.drawStatus()
	t.screen.Show()
}

func (t *terminal) drawStatus() {
	_, sh := t.screen.Size()
	status := "tick 0"
	if r := t.w.last; r != nil {
		stats := t.w.bp.Stats()
		status = fmt.Sprintf("tick %d  actors %d  moved %d  tile hits %d  actor hits %d  leaves %d  depth %d",
			r.Tick, r.Actors, r.Moved, r.StaticHits, r.ActorHits, stats.Leaves, stats.MaxDepth)
	}
	if t.paused {
		status += "  [paused]"
	}
	status += "  space:pause n:step i:index +/-:zoom arrows:pan f:fit q:quit"
	style := tcell.StyleDefault.Reverse(true)
	for x, r := range []rune(status) {
		t.screen.SetContent(x, sh-1, r, nil, style)
	}
}

// handleInput returns false when the user asks to quit
func (t *terminal) handleInput(ctx context.Context, ev tcell.Event) (bool, error) {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEscape, tcell.KeyCtrlC:
			return false, nil
		case tcell.KeyLeft:
			t.pan(-1, 0)
		case tcell.KeyRight:
			t.pan(1, 0)
		case tcell.KeyUp:
			t.pan(0, -1)
		case tcell.KeyDown:
			t.pan(0, 1)
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'q':
				return false, nil
			case ' ':
				t.paused = !t.paused
			case 'n':
				if t.paused {
					return true, t.step(ctx)
				}
			case 'i':
				t.showIndex = !t.showIndex
			case '+', '=':
				t.zoom(1 / zoomFactor)
			case '-':
				t.zoom(zoomFactor)
			case 'f':
				t.fit()
			}
		}

	case *tcell.EventResize:
		t.screen.Sync()
		t.resize()
	}
	return true, nil
}

// run ticks at the configured rate until the user quits or ctx ends
func (t *terminal) run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(t.w.cfg.Sandbox.TickRate))
	defer ticker.Stop()

	events := make(chan tcell.Event, 100)
	go func() {
		defer close(events)
		// PollEvent returns nil once the screen is finalized
		for ev := t.screen.PollEvent(); ev != nil; ev = t.screen.PollEvent() {
			events <- ev
		}
	}()

	t.draw()
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			cont, err := t.handleInput(ctx, ev)
			if err != nil || !cont {
				return err
			}
			t.draw()

		case <-ticker.C:
			if t.paused {
				continue
			}
			if err := t.step(ctx); err != nil {
				return err
			}
			t.draw()
		}
	}
}

func (t *terminal) close() {
	t.screen.Fini()
}
