// cmd/sandbox/world.go
package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"

	"github.com/opd-ai/go-collide/pkg/config"
	"github.com/opd-ai/go-collide/pkg/engine"
	"github.com/opd-ai/go-collide/pkg/entity"
	"github.com/opd-ai/go-collide/pkg/event"
	"github.com/opd-ai/go-collide/pkg/logging"
	"github.com/opd-ai/go-collide/pkg/physics"
	"github.com/opd-ai/go-collide/pkg/tilemap"
)

// Collision categories used by the sandbox
const (
	typeBody   entity.TypeMask = 1 << 0
	typeBullet entity.TypeMask = 1 << 1
)

// gateTile lets projectiles through and stops everything else
const gateTile = tilemap.Callback

const spawnAttempts = 50

// world is a bouncing box simulation driven by one broad phase
type world struct {
	cfg    *config.Config
	logger *logging.Logger
	bp     *engine.BroadPhase
	grid   *tilemap.Grid

	actors      []*entity.BaseActor
	projectiles map[entity.ID]*entity.BaseActor
	expired     map[entity.ID]bool
	rng         *rand.Rand
	nextID      entity.ID

	last  *engine.TickReport
	fired int
}

func newWorld(cfg *config.Config, logger *logging.Logger, bus *event.Bus) (*world, error) {
	grid, err := loadGrid(cfg)
	if err != nil {
		return nil, err
	}
	tileSize := cfg.Collision.TileSize
	gw, gh := grid.Size()

	w := &world{
		cfg:         cfg,
		logger:      logger,
		bp:          engine.New(cfg.Collision, logger, bus),
		grid:        grid,
		projectiles: make(map[entity.ID]*entity.BaseActor),
		expired:     make(map[entity.ID]bool),
		rng:         rand.New(rand.NewSource(cfg.Sandbox.Seed)),
		nextID:      1,
	}
	w.bp.Init(float64(gw)*tileSize, float64(gh)*tileSize)
	w.bp.SetTileMap(tilemap.NewCollider(grid, tileSize))
	w.bp.RegisterTileHandler(gateTile, gate)

	for i := 0; i < cfg.Sandbox.Actors; i++ {
		if err := w.spawnBody(i); err != nil {
			return nil, err
		}
	}
	for i := 0; i < cfg.Sandbox.Projectiles; i++ {
		if err := w.spawnProjectile(); err != nil {
			return nil, err
		}
	}
	logger.Info(context.Background(), "sandbox world created",
		"tiles_x", gw,
		"tiles_y", gh,
		"actors", len(w.actors),
		"seed", cfg.Sandbox.Seed)
	return w, nil
}

// loadGrid reads the configured map or builds a walled room with a gate
func loadGrid(cfg *config.Config) (*tilemap.Grid, error) {
	if cfg.Sandbox.MapFile != "" {
		data, err := os.ReadFile(cfg.Sandbox.MapFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read map file: %w", err)
		}
		grid, err := tilemap.ParseGrid(string(data))
		if err != nil {
			return nil, fmt.Errorf("failed to parse map file %s: %w", cfg.Sandbox.MapFile, err)
		}
		return grid, nil
	}

	col := cfg.Collision
	gw := int(col.WorldWidth / col.TileSize)
	gh := int(col.WorldHeight / col.TileSize)
	if gw < 8 || gh < 8 {
		return nil, fmt.Errorf("world of %dx%d tiles is too small for the sandbox room", gw, gh)
	}
	grid := tilemap.NewGrid(gw, gh)
	grid.Border()
	// a wall across the middle with a gate only projectiles pass
	mid := gh / 2
	grid.Fill(1, mid, gw/3, mid, tilemap.Block)
	grid.Fill(gw/3+1, mid, gw/3+2, mid, gateTile)
	grid.Fill(gw/2, gh/4, gw/2, gh/4+2, tilemap.Block)
	return grid, nil
}

// gate blocks everything but projectiles
func gate(actor entity.Actor, _ tilemap.Cell, fix physics.Vector2D) physics.Vector2D {
	if actor.State().Flags.Has(entity.IsProjectile) {
		return physics.Vector2D{}
	}
	return fix
}

func (w *world) id() entity.ID {
	id := w.nextID
	w.nextID++
	return id
}

// freeSpot picks a random center whose box only covers empty tiles
func (w *world) freeSpot(half physics.Vector2D) (physics.Vector2D, error) {
	tileSize := w.cfg.Collision.TileSize
	gw, gh := w.grid.Size()
	for i := 0; i < spawnAttempts; i++ {
		p := physics.Vec(w.rng.Float64()*float64(gw)*tileSize, w.rng.Float64()*float64(gh)*tileSize)
		if w.vacant(physics.NewBox(p, half)) {
			return p, nil
		}
	}
	return physics.Vector2D{}, fmt.Errorf("no free spot after %d attempts", spawnAttempts)
}

// vacant reports whether every tile under b is inside the grid and empty
func (w *world) vacant(b physics.Box) bool {
	ts := w.cfg.Collision.TileSize
	gw, gh := w.grid.Size()
	lo, hi := b.Min(), b.Max()
	for y := int(math.Floor(lo.Y / ts)); y <= int(math.Floor(hi.Y/ts)); y++ {
		for x := int(math.Floor(lo.X / ts)); x <= int(math.Floor(hi.X/ts)); x++ {
			if x < 0 || y < 0 || x >= gw || y >= gh || w.grid.Tile(x, y) != tilemap.Empty {
				return false
			}
		}
	}
	return true
}

func (w *world) velocity(speed float64) physics.Vector2D {
	return physics.Vec((w.rng.Float64()*2-1)*speed, (w.rng.Float64()*2-1)*speed)
}

// spawnBody adds the i-th body: every fifth is a static crate, every
// seventh a ghost
func (w *world) spawnBody(i int) error {
	ts := w.cfg.Collision.TileSize
	half := physics.Vec(ts*(0.3+0.5*w.rng.Float64()), ts*(0.3+0.5*w.rng.Float64()))
	pos, err := w.freeSpot(half)
	if err != nil {
		return fmt.Errorf("failed to place actor %d: %w", i, err)
	}

	a := entity.NewBaseActor(w.id(), pos, half)
	a.Flags = entity.CollideMap | entity.WantsCallback
	a.Type, a.With = typeBody, typeBody
	switch {
	case i%5 == 4:
		a.Flags |= entity.IsStatic
	case i%7 == 6:
		a.Flags |= entity.IsGhost
		a.Velocity = w.velocity(w.cfg.Sandbox.MaxSpeed)
	default:
		a.Velocity = w.velocity(w.cfg.Sandbox.MaxSpeed)
	}
	a.OnActor = func(self *entity.BaseActor, _ entity.Actor, c entity.Contact) { self.Reflect(c.Normal) }
	a.OnStatic = func(self *entity.BaseActor, c entity.StaticContact) { self.Reflect(c.Normal) }
	return w.link(a)
}

// spawnProjectile fires a fast point that expires on its first contact
func (w *world) spawnProjectile() error {
	ts := w.cfg.Collision.TileSize
	half := physics.Vec(ts*0.05, ts*0.05)
	pos, err := w.freeSpot(half)
	if err != nil {
		return fmt.Errorf("failed to place projectile: %w", err)
	}

	p := entity.NewBaseActor(w.id(), pos, half)
	p.Flags = entity.IsProjectile | entity.CollideMap | entity.WantsCallback
	p.Type, p.With = typeBullet, typeBody
	p.Velocity = w.velocity(3 * w.cfg.Sandbox.MaxSpeed)
	p.OnActor = func(self *entity.BaseActor, _ entity.Actor, _ entity.Contact) { w.expired[self.EntityID] = true }
	p.OnStatic = func(self *entity.BaseActor, _ entity.StaticContact) { w.expired[self.EntityID] = true }
	w.projectiles[p.EntityID] = p
	w.fired++
	return w.link(p)
}

func (w *world) link(a *entity.BaseActor) error {
	if err := w.bp.Link(a); err != nil {
		return fmt.Errorf("failed to link actor %d: %w", a.EntityID, err)
	}
	w.actors = append(w.actors, a)
	return nil
}

// step advances every actor by its velocity and resolves collisions
func (w *world) step(ctx context.Context) (*engine.TickReport, error) {
	for _, a := range w.actors {
		a.Update(1)
	}
	report, err := w.bp.Update(ctx)
	if err != nil {
		return nil, err
	}
	w.last = report
	w.recycle(ctx)
	return report, nil
}

// recycle replaces projectiles that hit something this tick
func (w *world) recycle(ctx context.Context) {
	if len(w.expired) == 0 {
		return
	}
	kept := w.actors[:0]
	for _, a := range w.actors {
		if !w.expired[a.EntityID] {
			kept = append(kept, a)
			continue
		}
		if err := w.bp.Unlink(a); err != nil {
			w.logger.Warn(ctx, "failed to unlink projectile", "actor_id", uint64(a.EntityID), "error", err.Error())
		}
		delete(w.projectiles, a.EntityID)
	}
	w.actors = kept

	n := len(w.expired)
	clear(w.expired)
	for i := 0; i < n; i++ {
		if err := w.spawnProjectile(); err != nil {
			w.logger.Warn(ctx, "failed to respawn projectile", "error", err.Error())
		}
	}
}
