package tilemap

import (
	"testing"

	"github.com/opd-ai/go-collide/pkg/entity"
	"github.com/opd-ai/go-collide/pkg/physics"
)

func near(a, b physics.Vector2D) bool {
	return a.Distance(b) < 1e-9
}

func TestTileCode(t *testing.T) {
	tests := []struct {
		code     TileCode
		blocking bool
		callback bool
		r        rune
	}{
		{Empty, false, false, '.'},
		{Block, true, false, '#'},
		{5, false, false, '.'},
		{Callback, true, true, 'a'},
		{Callback + 3, true, true, 'd'},
		{Callback + 40, true, true, '?'},
	}

	for _, tt := range tests {
		if tt.code.Blocking() != tt.blocking || tt.code.IsCallback() != tt.callback {
			t.Errorf("code %d: Blocking/IsCallback = %v/%v, expected %v/%v",
				tt.code, tt.code.Blocking(), tt.code.IsCallback(), tt.blocking, tt.callback)
		}
		if tt.code.Rune() != tt.r {
			t.Errorf("code %d: Rune() = %q, expected %q", tt.code, tt.code.Rune(), tt.r)
		}
	}
}

func TestParseGrid(t *testing.T) {
	g, err := ParseGrid(`
#####
#.a.#
#...
#####
`)
	if err != nil {
		t.Fatalf("ParseGrid() error = %v", err)
	}
	if w, h := g.Size(); w != 5 || h != 4 {
		t.Errorf("Size() = %d,%d, expected 5,4", w, h)
	}

	tests := []struct {
		name     string
		x, y     int
		expected TileCode
	}{
		{"corner", 0, 0, Block},
		{"floor", 1, 1, Empty},
		{"trigger", 2, 1, Callback},
		{"padded", 4, 2, Empty},
		{"out_of_bounds_left", -1, 1, Empty},
		{"out_of_bounds_below", 2, 9, Empty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.Tile(tt.x, tt.y); got != tt.expected {
				t.Errorf("Tile(%d,%d) = %d, expected %d", tt.x, tt.y, got, tt.expected)
			}
		})
	}

	if _, err := ParseGrid("#!#"); err == nil {
		t.Error("ParseGrid() accepted an unknown tile")
	}
}

func TestGrid_Border(t *testing.T) {
	g := NewGrid(4, 3)
	g.Border()
	g.Set(10, 10, Block)

	blocked := 0
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			if g.Tile(x, y) == Block {
				blocked++
			}
		}
	}
	if blocked != 10 {
		t.Errorf("Border() blocked %d tiles, expected 10", blocked)
	}
}

func TestCollider_Collide(t *testing.T) {
	g := NewGrid(5, 5)
	g.Set(2, 2, Block)

	tests := []struct {
		name     string
		tileSize float64
		box      physics.Box
		found    bool
		point    physics.Vector2D
		normal   physics.Vector2D
	}{
		{"push_left", 1, physics.NewBox(physics.Vec(2, 2.5), physics.Vec(0.5, 0.5)), true, physics.Vec(1.5, 2.5), physics.Vec(-1, 0)},
		{"push_up_scaled", 10, physics.NewBox(physics.Vec(25, 31), physics.Vec(5, 5)), true, physics.Vec(25, 35), physics.Vec(0, 1)},
		{"clear", 1, physics.NewBox(physics.Vec(1, 1), physics.Vec(0.5, 0.5)), false, physics.Vec(1, 1), physics.Vector2D{}},
		{"touching", 1, physics.NewBox(physics.Vec(1.5, 2.5), physics.Vec(0.5, 0.5)), false, physics.Vec(1.5, 2.5), physics.Vector2D{}},
		{"outside_grid", 1, physics.NewBox(physics.Vec(-5, -5), physics.Vec(1, 1)), false, physics.Vec(-5, -5), physics.Vector2D{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCollider(g, tt.tileSize)
			hit := c.Collide(nil, tt.box)
			if hit.Found != tt.found {
				t.Fatalf("Collide() found = %v, expected %v", hit.Found, tt.found)
			}
			if !near(hit.Point, tt.point) {
				t.Errorf("Collide() point = %v, expected %v", hit.Point, tt.point)
			}
			if hit.Normal != tt.normal {
				t.Errorf("Collide() normal = %v, expected %v", hit.Normal, tt.normal)
			}
			if !near(hit.Point.Sub(tt.box.Center), hit.Fix) {
				t.Errorf("Collide() fix = %v, expected point minus center", hit.Fix)
			}
		})
	}
}

func TestCollider_CollideHandler(t *testing.T) {
	g := NewGrid(5, 5)
	g.Set(2, 2, Callback+1)
	box := physics.NewBox(physics.Vec(20, 25), physics.Vec(5, 5))
	actor := entity.NewBaseActor(1, physics.Vector2D{}, physics.Vec(5, 5))

	t.Run("unhandled_blocks", func(t *testing.T) {
		c := NewCollider(g, 10)
		if hit := c.Collide(actor, box); !hit.Found || !near(hit.Fix, physics.Vec(-5, 0)) {
			t.Errorf("Collide() = %+v, expected fix (-5,0)", hit)
		}
	})

	t.Run("ignored", func(t *testing.T) {
		c := NewCollider(g, 10)
		var gotActor entity.Actor
		var gotCell Cell
		var gotFix physics.Vector2D
		c.Handle(Callback+1, func(a entity.Actor, cell Cell, fix physics.Vector2D) physics.Vector2D {
			gotActor, gotCell, gotFix = a, cell, fix
			return physics.Vector2D{}
		})
		if hit := c.Collide(actor, box); hit.Found {
			t.Errorf("Collide() = %+v, expected no hit", hit)
		}
		if gotActor != actor || gotCell != (Cell{2, 2}) || !near(gotFix, physics.Vec(-5, 0)) {
			t.Errorf("handler got %v %v %v, expected actor 1 (2,2) (-5,0)", gotActor, gotCell, gotFix)
		}
	})

	t.Run("adjusted", func(t *testing.T) {
		c := NewCollider(g, 10)
		c.Handle(Callback+1, func(_ entity.Actor, _ Cell, fix physics.Vector2D) physics.Vector2D {
			return fix.Scale(2)
		})
		if hit := c.Collide(actor, box); !hit.Found || !near(hit.Point, physics.Vec(10, 25)) {
			t.Errorf("Collide() = %+v, expected point (10,25)", hit)
		}
	})

	t.Run("non_callback_code_panics", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("Handle() accepted a plain block code")
			}
		}()
		NewCollider(g, 1).Handle(Block, func(entity.Actor, Cell, physics.Vector2D) physics.Vector2D { return physics.Vector2D{} })
	})
}

func TestCollider_Sweep(t *testing.T) {
	wall := NewGrid(10, 10)
	wall.Fill(5, 0, 5, 9, Block)

	floor := NewGrid(10, 10)
	floor.Fill(0, 5, 9, 5, Block)

	corner := NewGrid(10, 10)
	corner.Fill(5, 0, 5, 9, Block)
	corner.Fill(0, 5, 9, 5, Block)

	half := physics.Vec(0.4, 0.4)

	tests := []struct {
		name     string
		grid     TileGrid
		from, to physics.Vector2D
		found    bool
		point    physics.Vector2D
		normal   physics.Vector2D
	}{
		{"open_space", NewGrid(10, 10), physics.Vec(1.5, 1.5), physics.Vec(8.5, 7.5), false, physics.Vec(8.5, 7.5), physics.Vector2D{}},
		{"stops_at_wall", wall, physics.Vec(2.5, 4.5), physics.Vec(7.5, 4.5), true, physics.Vec(4.6, 4.5), physics.Vec(-1, 0)},
		{"wall_from_right", wall, physics.Vec(8.5, 4.5), physics.Vec(3.5, 4.5), true, physics.Vec(6.4, 4.5), physics.Vec(1, 0)},
		{"slides_on_floor", floor, physics.Vec(2.5, 3.5), physics.Vec(4.5, 6.5), true, physics.Vec(4.5, 4.6), physics.Vec(0, -1)},
		{"stops_in_corner", corner, physics.Vec(3.5, 3.5), physics.Vec(6.5, 6.5), true, physics.Vec(4.6, 4.6), physics.Vec(-1, -1)},
		{"embedded_start", wall, physics.Vec(5.2, 4.5), physics.Vec(5.2, 8.5), true, physics.Vec(4.6, 4.5), physics.Vec(-1, 0)},
		{"leaves_grid", NewGrid(3, 3), physics.Vec(1.5, 1.5), physics.Vec(-4, 1.5), false, physics.Vec(-4, 1.5), physics.Vector2D{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCollider(tt.grid, 1)
			hit := c.Sweep(nil, tt.from, tt.to, half)
			if hit.Found != tt.found {
				t.Fatalf("Sweep() found = %v, expected %v (%+v)", hit.Found, tt.found, hit)
			}
			if !near(hit.Point, tt.point) {
				t.Errorf("Sweep() point = %v, expected %v", hit.Point, tt.point)
			}
			if hit.Normal != tt.normal {
				t.Errorf("Sweep() normal = %v, expected %v", hit.Normal, tt.normal)
			}
			if tt.found && !near(hit.Fix, tt.point.Sub(tt.to)) {
				t.Errorf("Sweep() fix = %v, expected %v", hit.Fix, tt.point.Sub(tt.to))
			}
		})
	}
}

func TestCollider_SweepScaled(t *testing.T) {
	g := NewGrid(10, 10)
	g.Fill(5, 0, 5, 9, Block)
	c := NewCollider(g, 16)

	hit := c.Sweep(nil, physics.Vec(40, 72), physics.Vec(120, 72), physics.Vec(8, 8))
	if !hit.Found || !near(hit.Point, physics.Vec(72, 72)) {
		t.Errorf("Sweep() = %+v, expected stop at (72,72)", hit)
	}
}

func TestCollider_SweepHandler(t *testing.T) {
	g := NewGrid(10, 10)
	g.Fill(5, 0, 5, 9, Callback)
	half := physics.Vec(0.4, 0.4)

	calls := 0
	c := NewCollider(g, 1)
	c.Handle(Callback, func(_ entity.Actor, cell Cell, fix physics.Vector2D) physics.Vector2D {
		calls++
		if cell != (Cell{5, 4}) || !near(fix, physics.Vec(-2.9, 0)) {
			t.Errorf("handler got %v %v, expected (5,4) (-2.9,0)", cell, fix)
		}
		return physics.Vector2D{}
	})

	hit := c.Sweep(nil, physics.Vec(2.5, 4.5), physics.Vec(7.5, 4.5), half)
	if hit.Found || hit.Point != physics.Vec(7.5, 4.5) {
		t.Errorf("Sweep() = %+v, expected to pass through", hit)
	}
	if calls != 1 {
		t.Errorf("handler called %d times, expected 1", calls)
	}
}

func TestCollider_LineCollision(t *testing.T) {
	g := NewGrid(6, 6)
	g.Set(2, 0, Block)
	g.Set(3, 4, Block)

	tests := []struct {
		name     string
		tileSize float64
		p1, p2   physics.Vector2D
		found    bool
		point    physics.Vector2D
		normal   physics.Vector2D
		cell     Cell
	}{
		{"blocked_between", 1, physics.Vec(0.5, 0.5), physics.Vec(4.5, 0.5), true, physics.Vec(2, 0.5), physics.Vec(-1, 0), Cell{2, 0}},
		{"blocked_from_right", 1, physics.Vec(5.5, 0.5), physics.Vec(0.5, 0.5), true, physics.Vec(3, 0.5), physics.Vec(1, 0), Cell{2, 0}},
		{"scaled", 16, physics.Vec(8, 8), physics.Vec(72, 8), true, physics.Vec(32, 8), physics.Vec(-1, 0), Cell{2, 0}},
		{"vertical", 1, physics.Vec(3.25, 0.5), physics.Vec(3.25, 5.5), true, physics.Vec(3.25, 4), physics.Vec(0, -1), Cell{3, 4}},
		{"diagonal", 1, physics.Vec(0.5, 2.5), physics.Vec(4.5, 4.5), true, physics.Vec(3.5, 4), physics.Vec(0, -1), Cell{3, 4}},
		{"clear", 1, physics.Vec(0.5, 1.5), physics.Vec(5.5, 1.5), false, physics.Vector2D{}, physics.Vector2D{}, Cell{}},
		{"starts_inside", 1, physics.Vec(2.5, 0.5), physics.Vec(5.5, 0.5), true, physics.Vec(2.5, 0.5), physics.Vector2D{}, Cell{2, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hit := NewCollider(g, tt.tileSize).LineCollision(nil, tt.p1, tt.p2)
			if hit.Found != tt.found {
				t.Fatalf("LineCollision() found = %v, expected %v", hit.Found, tt.found)
			}
			if hit.Point != tt.point {
				t.Errorf("LineCollision() point = %v, expected %v", hit.Point, tt.point)
			}
			if hit.Normal != tt.normal || hit.Cell != tt.cell {
				t.Errorf("LineCollision() normal/cell = %v/%v, expected %v/%v", hit.Normal, hit.Cell, tt.normal, tt.cell)
			}
		})
	}
}

func TestCollider_LineThroughTrigger(t *testing.T) {
	g := NewGrid(6, 1)
	g.Set(2, 0, Callback+2)
	g.Set(4, 0, Block)

	var seen []Cell
	c := NewCollider(g, 1)
	c.Handle(Callback+2, func(_ entity.Actor, cell Cell, fix physics.Vector2D) physics.Vector2D {
		seen = append(seen, cell)
		return physics.Vector2D{}
	})

	hit := c.LineCollision(nil, physics.Vec(0.5, 0.5), physics.Vec(5.5, 0.5))
	if !hit.Found || hit.Point != physics.Vec(4, 0.5) {
		t.Errorf("LineCollision() = %+v, expected hit at (4,0.5)", hit)
	}
	if len(seen) != 1 || seen[0] != (Cell{2, 0}) {
		t.Errorf("handler saw %v, expected [(2,0)]", seen)
	}
}
