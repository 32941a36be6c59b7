// Package physics is the reference collision consumer: a single-body AABB platformer that
// rebuilds its collision grid from the streamed solid collection.
package physics

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"sidecraft.ai/internal/sim/tuning"
	"sidecraft.ai/internal/sim/world/terrain/store"
)

// Config is in pixels and pixels per tick.
type Config struct {
	Gravity       float32
	JumpSpeed     float32
	MovementSpeed float32
	BlockPixels   float32
	Width         float32
	Height        float32
}

func ConfigFromTuning(t tuning.Tuning) Config {
	return Config{
		Gravity:       t.Physics.Gravity,
		JumpSpeed:     t.Physics.JumpSpeed,
		MovementSpeed: t.Physics.MovementSpeed,
		BlockPixels:   t.BlockPixels,
		Width:         t.Physics.PlayerWidth,
		Height:        t.Physics.PlayerHeight,
	}
}

type Input struct {
	Dir  int8 `json:"dir"`
	Jump bool `json:"jump"`
}

type cell struct{ x, y int }

type Platformer struct {
	cfg   Config
	cells map[cell]struct{}
	box   AABB
	vel   mgl32.Vec2
}

// New places the body with its bottom-left corner at spawn.
func New(cfg Config, spawn mgl32.Vec2) *Platformer {
	return &Platformer{
		cfg:   cfg,
		cells: map[cell]struct{}{},
		box:   BoxFromDimensions(spawn, cfg.Width, cfg.Height),
	}
}

// Rebuild replaces the collision grid. The slice is not retained.
func (p *Platformer) Rebuild(solid []store.Block) {
	clear(p.cells)
	for _, b := range solid {
		p.cells[cell{b.X, b.Y}] = struct{}{}
	}
}

func (p *Platformer) SolidCells() int { return len(p.cells) }

func (p *Platformer) Box() AABB { return p.box }

func (p *Platformer) Position() mgl32.Vec2 { return p.box.Min }

func (p *Platformer) Velocity() mgl32.Vec2 { return p.vel }

// Teleport moves the body without collision checks and clears its velocity.
func (p *Platformer) Teleport(pos mgl32.Vec2) {
	p.box = BoxFromDimensions(pos, p.cfg.Width, p.cfg.Height)
	p.vel = mgl32.Vec2{}
}

// CanJump reports whether the body stands on something.
func (p *Platformer) CanJump() bool {
	return p.collides(p.box.Translate(mgl32.Vec2{0, -1}))
}

// Step integrates one tick: horizontal speed from input, jump impulse, gravity, then the y and x
// axes are resolved separately.
func (p *Platformer) Step(in Input) {
	dir := in.Dir
	if dir > 1 {
		dir = 1
	} else if dir < -1 {
		dir = -1
	}
	p.vel[0] = float32(dir) * p.cfg.MovementSpeed
	if in.Jump && p.CanJump() {
		p.vel[1] = p.cfg.JumpSpeed
	}
	p.vel[1] -= p.cfg.Gravity
	// Keep each move under one block so nothing is tunnelled through.
	limit := p.cfg.BlockPixels - 1
	p.vel[1] = math32.Max(-limit, math32.Min(limit, p.vel[1]))

	if p.moveAxis(1, p.vel.Y()) {
		p.vel[1] = 0
	}
	if p.moveAxis(0, p.vel.X()) {
		p.vel[0] = 0
	}
}

// moveAxis moves the box by d along axis and snaps it to the blocking cell edge on contact. It
// reports whether the move was blocked.
func (p *Platformer) moveAxis(axis int, d float32) bool {
	if d == 0 {
		return false
	}
	var delta mgl32.Vec2
	delta[axis] = d
	next := p.box.Translate(delta)
	if !p.collides(next) {
		p.box = next
		return false
	}

	bp := p.cfg.BlockPixels
	size := p.box.Max[axis] - p.box.Min[axis]
	var edge float32
	if d < 0 {
		edge = (math32.Floor(next.Min[axis]/bp) + 1) * bp
	} else {
		edge = math32.Floor((next.Max[axis]-1e-3)/bp)*bp - size
	}
	snapped := p.box
	snapped.Min[axis] = edge
	snapped.Max[axis] = edge + size
	if !p.collides(snapped) {
		p.box = snapped
	}
	return true
}

func (p *Platformer) collides(box AABB) bool {
	x0, y0, x1, y1 := box.cellRange(p.cfg.BlockPixels)
	for x := x0; x <= x1; x++ {
		for y := y0; y <= y1; y++ {
			if _, ok := p.cells[cell{x, y}]; ok {
				return true
			}
		}
	}
	return false
}

// SpawnPoint stands a body of cfg's size on the highest solid block of column. Without one it
// spawns at the bottom of the world.
func SpawnPoint(solid []store.Block, column int, cfg Config) mgl32.Vec2 {
	top := 0
	for _, b := range solid {
		if b.X == column && b.Y+1 > top {
			top = b.Y + 1
		}
	}
	x := float32(column)*cfg.BlockPixels + (cfg.BlockPixels-cfg.Width)/2
	return mgl32.Vec2{x, float32(top) * cfg.BlockPixels}
}
