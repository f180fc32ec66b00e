// cmd/replay/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/opd-ai/go-collide/pkg/logging"
	"github.com/opd-ai/go-collide/pkg/physics"
	"github.com/opd-ai/go-collide/pkg/render"
	"github.com/opd-ai/go-collide/pkg/trace"
)

func main() {
	tracePath := flag.String("trace", "trace.bin", "Trace file written by the sandbox")
	showTick := flag.Uint64("show", 0, "Draw the bodies of this tick; 0 draws the last one")
	width := flag.Int("width", 80, "Drawing width in characters")
	height := flag.Int("height", 40, "Drawing height in characters")
	scale := flag.Float64("scale", 16, "World units per character")
	quiet := flag.Bool("quiet", false, "Skip the per-tick table")
	noDraw := flag.Bool("nodraw", false, "Log the selected frame instead of drawing it (needs COLLIDE_LOG_LEVEL=DEBUG)")
	flag.Parse()

	ctx := context.Background()
	logger := logging.NewLogger()

	f, err := os.Open(*tracePath)
	if err != nil {
		logger.Error(ctx, "Failed to open trace", err, "trace", *tracePath)
		os.Exit(1)
	}
	defer f.Close()

	opts := options{show: *showTick, width: *width, height: *height, scale: *scale, quiet: *quiet}
	if *noDraw {
		opts.view = render.NewNullRenderer(logger)
	}
	if err := replay(f, os.Stdout, opts); err != nil {
		logger.Error(ctx, "Replay failed", err, "trace", *tracePath)
		os.Exit(1)
	}
}

type options struct {
	show          uint64
	width, height int
	scale         float64
	quiet         bool
	// view replaces the terminal drawing when set
	view render.Renderer
}

// replay prints one row per frame followed by totals and a drawing of
// the selected frame
func replay(r io.Reader, out io.Writer, opts options) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	if !opts.quiet {
		fmt.Fprintln(tw, "tick\tactors\tmoved\tstatic\tactor\tindexed\t")
	}

	var frames, staticHits, actorHits int
	var shown *trace.Frame
	reader := trace.NewReader(r)
	for {
		f, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		frames++
		staticHits += f.StaticHits
		actorHits += f.ActorHits
		if opts.show == 0 || f.Tick == opts.show {
			shown = f
		}
		if !opts.quiet {
			fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\t%d\t\n", f.Tick, f.Actors, f.Moved, f.StaticHits, f.ActorHits, f.Indexed)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "%d frames, %d static hits, %d actor hits\n", frames, staticHits, actorHits)
	if shown == nil {
		if opts.show != 0 {
			return fmt.Errorf("tick %d not found in trace", opts.show)
		}
		return nil
	}

	fmt.Fprintf(out, "tick %d\n", shown.Tick)
	return draw(out, shown, opts)
}

// draw renders the bodies of f centered on their bounding box
func draw(out io.Writer, f *trace.Frame, opts options) error {
	view := opts.view
	if view == nil {
		term := render.NewTerminalRenderer(opts.width, opts.height, opts.scale)
		if len(f.Bodies) > 0 {
			lo, hi := bodyBounds(f.Bodies)
			term.SetCenter(lo.Add(hi).Scale(0.5))
		}
		view = term
	}
	view.Clear()
	for _, b := range f.Bodies {
		view.RenderActor(b.State())
	}
	return view.Present(out)
}

func bodyBounds(bodies []trace.Body) (lo, hi physics.Vector2D) {
	for i, b := range bodies {
		box := b.State().Box()
		if i == 0 {
			lo, hi = box.Min(), box.Max()
			continue
		}
		lo = physics.Vec(min(lo.X, box.Min().X), min(lo.Y, box.Min().Y))
		hi = physics.Vec(max(hi.X, box.Max().X), max(hi.Y, box.Max().Y))
	}
	return lo, hi
}
