// pkg/engine/broadphase.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/opd-ai/go-collide/pkg/config"
	"github.com/opd-ai/go-collide/pkg/entity"
	"github.com/opd-ai/go-collide/pkg/event"
	"github.com/opd-ai/go-collide/pkg/logging"
	"github.com/opd-ai/go-collide/pkg/physics"
	"github.com/opd-ai/go-collide/pkg/quadtree"
	"github.com/opd-ai/go-collide/pkg/tilemap"
)

var (
	// ErrReentrantUpdate is returned by an Update started from inside another
	ErrReentrantUpdate = errors.New("broad phase update already running")
	// ErrNotActor is returned when a handle does not implement entity.Actor
	ErrNotActor = errors.New("handle is not an actor")
	// ErrAlreadyLinked is returned when linking an actor twice
	ErrAlreadyLinked = errors.New("actor already linked")
	// ErrNotLinked is returned when unlinking an actor that is not linked
	ErrNotLinked = errors.New("actor not linked")
)

// record is the broad phase's view of one linked actor
type record struct {
	id    entity.ID
	actor entity.Actor
	state entity.State
	item  *quadtree.Item
	// last is the box center at the end of the previous tick and target
	// the center the actor is heading for in this one.
	last   physics.Vector2D
	target physics.Vector2D
	fresh  bool
	dirty  bool
}

func (r *record) sweep() physics.Sweep {
	return physics.Sweep{
		Start:  r.last,
		End:    r.target,
		Half:   r.state.HalfSize,
		Static: r.state.Flags.Has(entity.IsStatic),
	}
}

// bounds is the box the actor is filed under: the destination for
// teleporting actors, the whole sweep for the rest
func (r *record) bounds() physics.Box {
	if r.state.Flags.Has(entity.StepTeleport) {
		return physics.NewBox(r.target, r.state.HalfSize)
	}
	return r.sweep().Bounds()
}

type pendingOp struct {
	actor entity.Actor
	link  bool
}

// TickReport summarizes one Update
type TickReport struct {
	Tick       uint64
	Actors     int
	Moved      int
	StaticHits int
	ActorHits  int
	// Indexed is the number of items filed in the spatial index.
	Indexed int
}

// BroadPhase owns the spatial index and the set of linked actors, and
// resolves their collisions once per Update.
type BroadPhase struct {
	cfg    config.CollisionConfig
	logger *logging.Logger
	bus    *event.Bus
	tiles  *tilemap.Collider

	holder      *quadtree.Holder
	width       float64
	height      float64
	initialized bool
	rebuild     bool

	records map[entity.ID]*record
	order   []*record

	// mu guards the link state callers see and the queue consumed by Update
	mu      sync.Mutex
	members map[entity.ID]entity.Actor
	pending []pendingOp

	updating atomic.Bool
	tick     uint64
}

// New creates a broad phase. A nil logger discards output and a nil bus is
// replaced by a private one.
func New(cfg config.CollisionConfig, logger *logging.Logger, bus *event.Bus) *BroadPhase {
	if logger == nil {
		logger = logging.Discard()
	}
	if bus == nil {
		bus = event.NewEventBus()
	}
	cfg.NarrowPhasePasses = max(1, cfg.NarrowPhasePasses)
	return &BroadPhase{
		cfg:     cfg,
		logger:  logger.With("component", "broadphase"),
		bus:     bus,
		records: make(map[entity.ID]*record),
		members: make(map[entity.ID]entity.Actor),
	}
}

// Init sets the initial world size. It must be called exactly once, before
// the first Update. The index is built on the first tick that sees a
// non-empty world.
func (b *BroadPhase) Init(width, height float64) {
	if b.initialized {
		panic("engine: BroadPhase initialized twice")
	}
	b.initialized = true
	b.width, b.height = width, height
	b.rebuild = true
	b.logger.Info(context.Background(), "broad phase initialized", "width", width, "height", height)
}

// SetWorldSize changes the world size. The index is discarded and every
// linked actor refiled on the next tick.
func (b *BroadPhase) SetWorldSize(width, height float64) {
	if !b.initialized {
		panic("engine: SetWorldSize called before Init")
	}
	if width == b.width && height == b.height {
		return
	}
	b.width, b.height = width, height
	b.rebuild = true
	b.logger.Info(context.Background(), "world resized", "width", width, "height", height)
	b.bus.Publish(event.NewWorldEvent(b, width, height))
}

// WorldSize returns the configured world size
func (b *BroadPhase) WorldSize() (float64, float64) {
	return b.width, b.height
}

// SetTileMap sets the tile grid actors flagged CollideMap collide with
func (b *BroadPhase) SetTileMap(c *tilemap.Collider) {
	b.tiles = c
}

// TileMap returns the tile collider, if any
func (b *BroadPhase) TileMap() *tilemap.Collider {
	return b.tiles
}

// RegisterTileHandler installs h for a callback tile code
func (b *BroadPhase) RegisterTileHandler(code tilemap.TileCode, h tilemap.TileHandler) {
	if b.tiles == nil {
		panic("engine: RegisterTileHandler called without a tile map")
	}
	b.tiles.Handle(code, h)
}

// EventBus returns the bus collision events are published on
func (b *BroadPhase) EventBus() *event.Bus {
	return b.bus
}

// Link queues handle to join the broad phase at the start of the next tick.
// The actor is referenced until its unlink has been processed.
func (b *BroadPhase) Link(handle any) error {
	a, ok := entity.Validate(handle)
	if !ok {
		return fmt.Errorf("link %T: %w", handle, ErrNotActor)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.members[a.ID()]; ok {
		return fmt.Errorf("link actor %d: %w", a.ID(), ErrAlreadyLinked)
	}
	a.AddRef()
	b.members[a.ID()] = a
	b.pending = append(b.pending, pendingOp{actor: a, link: true})
	return nil
}

// Unlink queues handle to leave the broad phase at the start of the next tick
func (b *BroadPhase) Unlink(handle any) error {
	a, ok := entity.Validate(handle)
	if !ok {
		return fmt.Errorf("unlink %T: %w", handle, ErrNotActor)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	linked, ok := b.members[a.ID()]
	if !ok {
		return fmt.Errorf("unlink actor %d: %w", a.ID(), ErrNotLinked)
	}
	delete(b.members, a.ID())
	b.pending = append(b.pending, pendingOp{actor: linked})
	return nil
}

// Linked reports whether the actor with id is linked or queued to be
func (b *BroadPhase) Linked(id entity.ID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.members[id]
	return ok
}

// Len returns the number of actors taking part in ticks
func (b *BroadPhase) Len() int {
	return len(b.order)
}

// Tick returns the number of completed updates
func (b *BroadPhase) Tick() uint64 {
	return b.tick
}

// Update runs one tick: pending links, index synchronization, tile
// collision and the narrow phase passes, in that order. Calling Update from
// a collision callback returns ErrReentrantUpdate.
func (b *BroadPhase) Update(ctx context.Context) (*TickReport, error) {
	if !b.initialized {
		panic("engine: Update called before Init")
	}
	if !b.updating.CompareAndSwap(false, true) {
		b.logger.Warn(ctx, "rejected reentrant update", "running_tick", b.tick)
		return nil, ErrReentrantUpdate
	}
	defer b.updating.Store(false)

	b.tick++
	ctx = logging.WithTick(ctx, b.tick)
	report := &TickReport{Tick: b.tick}

	b.applyPending(ctx)
	b.ensureHolder(ctx)
	report.Moved = b.syncActors(ctx)
	report.StaticHits = b.collideTiles(ctx)
	report.ActorHits = b.narrowPhase(ctx)

	report.Actors = len(b.order)
	if b.holder != nil {
		report.Indexed = b.holder.Len()
	}
	b.logger.Debug(ctx, "tick complete",
		"actors", report.Actors,
		"moved", report.Moved,
		"static_hits", report.StaticHits,
		"actor_hits", report.ActorHits,
		"indexed", report.Indexed)
	b.bus.Publish(event.NewTickEvent(b, report.Tick, report.Actors, report.Moved,
		report.StaticHits, report.ActorHits, report.Indexed))
	return report, nil
}

// applyPending consumes the link queue in the order requests were made
func (b *BroadPhase) applyPending(ctx context.Context) {
	b.mu.Lock()
	ops := b.pending
	b.pending = nil
	b.mu.Unlock()

	for _, op := range ops {
		if op.link {
			b.addRecord(ctx, op.actor)
		} else {
			b.removeRecord(ctx, op.actor)
		}
	}
}

func (b *BroadPhase) addRecord(ctx context.Context, a entity.Actor) {
	r := &record{id: a.ID(), actor: a, fresh: true}
	r.item = quadtree.NewItem(r, physics.Box{})
	b.records[r.id] = r
	b.order = append(b.order, r)
	b.logger.Debug(ctx, "actor linked", "actor_id", uint64(r.id))
	b.bus.Publish(event.NewActorEvent(event.ActorLinked, b, uint64(r.id)))
}

func (b *BroadPhase) removeRecord(ctx context.Context, a entity.Actor) {
	id := a.ID()
	if r, ok := b.records[id]; ok {
		if b.holder != nil && r.item.Filed() {
			b.holder.Remove(r.item)
		}
		delete(b.records, id)
		for i, o := range b.order {
			if o == r {
				b.order = append(b.order[:i], b.order[i+1:]...)
				break
			}
		}
	}
	a.Release()
	b.logger.Debug(ctx, "actor unlinked", "actor_id", uint64(id))
	b.bus.Publish(event.NewActorEvent(event.ActorUnlinked, b, uint64(id)))
}

// ensureHolder builds the index once the world has a size, and rebuilds it
// after SetWorldSize
func (b *BroadPhase) ensureHolder(ctx context.Context) {
	if !b.rebuild || b.width <= 0 || b.height <= 0 {
		return
	}
	b.rebuild = false
	b.holder = quadtree.NewHolder(b.width, b.height, b.cfg.RootCellSize, b.cfg.MaxBucketSize, b.cfg.MaxDepth)
	for _, r := range b.order {
		r.item = quadtree.NewItem(r, physics.Box{})
	}
	b.logger.Info(ctx, "spatial index built",
		"width", b.width,
		"height", b.height,
		"root_cell_size", b.cfg.RootCellSize,
		"actors", len(b.order))
}

// syncActors reads every actor and refiles the ones whose bounds changed.
// It returns the number of actors that moved since the previous tick.
func (b *BroadPhase) syncActors(ctx context.Context) int {
	moved := 0
	for _, r := range b.order {
		st := b.sanitizeState(ctx, r, r.actor.State())
		center := st.Center()
		if !r.fresh && settled(center, r.target) {
			center = r.target
		}

		if !r.fresh && center != r.target {
			moved++
		}
		if r.fresh || st.Flags.Has(entity.StepTeleport) {
			r.last = center
		} else {
			r.last = r.target
		}
		r.fresh = false
		r.target = center
		r.state = st
		b.refile(r)
	}
	return moved
}

// settleTolerance absorbs round-off from embedders that store positions
// relative to an offset or at reduced precision
const settleTolerance = 1e-6

// settled reports whether an actor read back within round-off of where the
// engine last placed it
func settled(center, target physics.Vector2D) bool {
	scale := math.Max(1, math.Max(math.Abs(target.X), math.Abs(target.Y)))
	return math.Abs(center.X-target.X) <= settleTolerance*scale &&
		math.Abs(center.Y-target.Y) <= settleTolerance*scale
}

// sanitizeState resets non-finite geometry read from an actor
func (b *BroadPhase) sanitizeState(ctx context.Context, r *record, st entity.State) entity.State {
	if st.Position.IsNaN() || st.Offset.IsNaN() {
		b.logger.Warn(ctx, "reset non-finite actor position",
			"actor_id", uint64(r.id),
			"position", fmt.Sprint(st.Position),
			"offset", fmt.Sprint(st.Offset))
		st.Position = physics.Vector2D{}
		st.Offset = st.Offset.Sanitize()
		r.actor.SetPosition(st.Position)
	}
	if st.HalfSize.IsNaN() {
		b.logger.Warn(ctx, "reset non-finite actor size", "actor_id", uint64(r.id))
		st.HalfSize = physics.Vector2D{}
	}
	st.HalfSize = st.HalfSize.Abs()
	return st
}

// refile moves the actor's index entry to its current bounds
func (b *BroadPhase) refile(r *record) {
	r.dirty = false
	if b.holder == nil {
		return
	}
	bounds := r.bounds()
	if r.item.Filed() && r.item.Bounds() == bounds {
		return
	}
	b.holder.Move(r.item, bounds)
}

// place moves the actor's box center to center through the adapter
func (b *BroadPhase) place(r *record, center physics.Vector2D) bool {
	if center == r.target {
		return false
	}
	r.target = center
	r.actor.SetPosition(center.Sub(r.state.Offset))
	r.dirty = true
	return true
}

func (b *BroadPhase) refileDirty() {
	for _, r := range b.order {
		if r.dirty {
			b.refile(r)
		}
	}
}

// collideTiles runs tile collision for every actor flagged CollideMap and
// returns the number of actors the grid stopped
func (b *BroadPhase) collideTiles(ctx context.Context) int {
	if b.tiles == nil {
		return 0
	}
	hits := 0
	for _, r := range b.order {
		if r.state.Flags.Has(entity.CollideMap) && b.collideTile(ctx, r) {
			hits++
		}
	}
	b.refileDirty()
	return hits
}

func (b *BroadPhase) collideTile(ctx context.Context, r *record) bool {
	flags := r.state.Flags

	var point, normal physics.Vector2D
	var cell tilemap.Cell
	switch {
	case flags.Has(entity.IsStatic):
		hit := b.tiles.Collide(r.actor, physics.NewBox(r.target, r.state.HalfSize))
		if !hit.Found {
			return false
		}
		point, normal, cell = hit.Point, hit.Normal, hit.Cell
	case flags.Has(entity.IsProjectile):
		hit := b.tiles.LineCollision(r.actor, r.last, r.target)
		if !hit.Found {
			return false
		}
		point, normal, cell = hit.Point, hit.Normal, hit.Cell
	default:
		hit := b.tiles.Sweep(r.actor, r.last, r.target, r.state.HalfSize)
		if !hit.Found {
			return false
		}
		point, normal, cell = hit.Point, hit.Normal, hit.Cell
	}

	b.place(r, point)
	if flags.Has(entity.WantsCallback) {
		r.actor.OnCollideWithStatic(entity.StaticContact{Normal: normal, Point: point})
	}
	if b.bus.HasSubscribers(event.StaticCollision) {
		b.bus.Publish(event.NewStaticCollisionEvent(b, uint64(r.id), normal, point, cell.X, cell.Y))
	}
	b.logger.Debug(ctx, "tile collision", "actor_id", uint64(r.id), "tile", cell.String())
	return true
}

// Query calls visit for every linked actor filed under a box intersecting area
func (b *BroadPhase) Query(area physics.Box, visit func(entity.Actor) bool) {
	if b.holder == nil {
		return
	}
	b.holder.Query(area, visitActors(visit))
}

// QueryCircle calls visit for every linked actor whose filed box touches the circle
func (b *BroadPhase) QueryCircle(center physics.Vector2D, radius float64, visit func(entity.Actor) bool) {
	if b.holder == nil {
		return
	}
	b.holder.QueryCircle(center, radius, visitActors(visit))
}

// QueryLine calls visit for every linked actor whose filed box the segment crosses
func (b *BroadPhase) QueryLine(p1, p2 physics.Vector2D, visit func(entity.Actor) bool) {
	if b.holder == nil {
		return
	}
	b.holder.QueryLine(p1, p2, visitActors(visit))
}

func visitActors(visit func(entity.Actor) bool) func(*quadtree.Item) bool {
	return func(it *quadtree.Item) bool {
		return visit(it.Value.(*record).actor)
	}
}

// Stats describes the shape of the spatial index
func (b *BroadPhase) Stats() quadtree.Stats {
	if b.holder == nil {
		return quadtree.Stats{}
	}
	return b.holder.Stats()
}

// WalkIndex calls fn for every node of the spatial index
func (b *BroadPhase) WalkIndex(fn func(bounds physics.Box, depth int, leaf bool, items int)) {
	if b.holder == nil {
		return
	}
	b.holder.Walk(fn)
}

// Bounds returns the box the actor with id was last filed under
func (b *BroadPhase) Bounds(id entity.ID) (physics.Box, bool) {
	r, ok := b.records[id]
	if !ok || !r.item.Filed() {
		return physics.Box{}, false
	}
	return r.item.Bounds(), true
}

// Each calls fn for every actor processed by the last Update, in link order,
// until fn returns false
func (b *BroadPhase) Each(fn func(entity.Actor) bool) {
	for _, r := range b.order {
		if !fn(r.actor) {
			return
		}
	}
}
