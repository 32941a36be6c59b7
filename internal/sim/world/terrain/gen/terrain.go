package gen

import (
	"sidecraft.ai/internal/sim/world/logic/mathx"
	"sidecraft.ai/internal/sim/world/terrain/store"
)

// Palette holds the type codes the generator places. Solid codes must sit above the world's
// solid threshold and decorative codes at or below it; zero is air and is never emitted.
type Palette struct {
	Bedrock uint16
	Stone   uint16
	Dirt    uint16
	Grass   uint16
	CoalOre uint16
	IronOre uint16

	StoneWall uint16
	DirtWall  uint16
	Log       uint16
	Leaves    uint16
	Flower    uint16
	TallGrass uint16
}

type Params struct {
	Seed          int64
	ChunkWidth    int
	SectionHeight int

	SurfaceBase      int
	SurfaceAmplitude int
	SurfacePeriod    int
	DirtDepth        int

	CavePermille      int
	CoalPermille      int
	IronPermille      int
	TreePermille      int
	FlowerPermille    int
	TallGrassPermille int
}

// Generator is a pure function of (Params, Palette, range): no state survives a call.
type Generator struct {
	p   Params
	pal Palette
}

func New(p Params, pal Palette) *Generator {
	if p.ChunkWidth <= 0 {
		p.ChunkWidth = 16
	}
	if p.SectionHeight <= 0 {
		p.SectionHeight = 16
	}
	if p.SurfacePeriod <= 0 {
		p.SurfacePeriod = 32
	}
	if p.DirtDepth <= 0 {
		p.DirtDepth = 4
	}
	return &Generator{p: p, pal: pal}
}

func (g *Generator) Params() Params { return g.p }

// Generate fills the half-open block range [xMin,xMax) x [yMin,yMax) and returns the non-air
// blocks grouped into ChunkWidth x SectionHeight sections. Within a section blocks are ordered by
// x, then y.
func (g *Generator) Generate(xMin, xMax, yMin, yMax int) map[store.SectionKey][]store.Block {
	out := map[store.SectionKey][]store.Block{}
	if xMax <= xMin || yMax <= yMin {
		return out
	}
	col := make([]uint16, yMax-yMin)
	for x := xMin; x < xMax; x++ {
		for i := range col {
			col[i] = 0
		}
		g.column(x, yMin, col)
		cx := FloorDiv(x, g.p.ChunkWidth)
		for i, code := range col {
			if code == 0 {
				continue
			}
			y := yMin + i
			k := store.SectionKey{CX: cx, CY: FloorDiv(y, g.p.SectionHeight)}
			out[k] = append(out[k], store.Block{Code: code, X: x, Y: y})
		}
	}
	return out
}

// SurfaceAt returns the y of the topmost ground block in column x.
func (g *Generator) SurfaceAt(x int) int {
	n := mathx.ValueNoise1(g.p.Seed, x, g.p.SurfacePeriod)
	fine := mathx.ValueNoise1(g.p.Seed+1, x, max(g.p.SurfacePeriod/4, 1))
	h := g.p.SurfaceBase + int(n*float64(g.p.SurfaceAmplitude)) + int(fine*float64(g.p.SurfaceAmplitude)/4)
	return max(h, 1)
}

func (g *Generator) column(x, yMin int, col []uint16) {
	set := func(y int, code uint16) {
		i := y - yMin
		if i >= 0 && i < len(col) {
			col[i] = code
		}
	}
	get := func(y int) uint16 {
		i := y - yMin
		if i >= 0 && i < len(col) {
			return col[i]
		}
		return 0
	}

	s := g.p.Seed
	h := g.SurfaceAt(x)
	for y := 0; y <= h; y++ {
		if y < yMin || y >= yMin+len(col) {
			continue
		}
		var code uint16
		cave := y > 0 && y < h-1 && InCluster(s+11, x, y, 24, 3, uint64(ClampPermille(g.p.CavePermille)))
		switch {
		case y == 0:
			code = g.pal.Bedrock
		case y == h:
			code = g.pal.Grass
			if cave {
				code = g.pal.DirtWall
			}
		case y > h-g.p.DirtDepth:
			code = g.pal.Dirt
			if cave {
				code = g.pal.DirtWall
			}
		case cave:
			code = g.pal.StoneWall
		case InCluster(s+21, x, y, 20, 2, uint64(ClampPermille(g.p.IronPermille))) && y < h/2:
			code = g.pal.IronOre
		case InCluster(s+22, x, y, 14, 2, uint64(ClampPermille(g.p.CoalPermille))):
			code = g.pal.CoalOre
		default:
			code = g.pal.Stone
		}
		set(y, code)
	}

	// Trees: a trunk in this column or a neighbour's canopy reaching over it.
	for dx := -1; dx <= 1; dx++ {
		tx := x + dx
		if !g.hasTree(tx) {
			continue
		}
		base := g.SurfaceAt(tx)
		top := base + g.trunkHeight(tx)
		if dx == 0 {
			for y := base + 1; y <= top; y++ {
				set(y, g.pal.Log)
			}
			for y := top + 1; y <= top+2; y++ {
				set(y, g.pal.Leaves)
			}
			continue
		}
		for y := top - 1; y <= top+1; y++ {
			if y > h && get(y) == 0 {
				set(y, g.pal.Leaves)
			}
		}
	}

	if get(h+1) == 0 && get(h) == g.pal.Grass {
		switch {
		case Roll(s+31, x, g.p.FlowerPermille):
			set(h+1, g.pal.Flower)
		case Roll(s+32, x, g.p.TallGrassPermille):
			set(h+1, g.pal.TallGrass)
		}
	}
}

// Trunks never stand in adjacent columns, so canopies do not overlap.
func (g *Generator) hasTree(x int) bool {
	if !Roll(g.p.Seed+41, x, g.p.TreePermille) {
		return false
	}
	return !Roll(g.p.Seed+41, x-1, g.p.TreePermille)
}

func (g *Generator) trunkHeight(x int) int {
	return 3 + int(Hash1(g.p.Seed+42, x)%3)
}
