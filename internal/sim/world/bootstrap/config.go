package bootstrap

import (
	"fmt"
	"path/filepath"

	"sidecraft.ai/internal/sim/catalogs"
	"sidecraft.ai/internal/sim/tuning"
	"sidecraft.ai/internal/sim/world/terrain/gen"
	"sidecraft.ai/internal/sim/world/terrain/store"
)

// ConfigFromTuning places the snapshot at <worldDir>/world.snap.zst.
func ConfigFromTuning(t tuning.Tuning, worldDir string) Config {
	return Config{
		WorldID:      t.WorldID,
		SnapshotPath: filepath.Join(worldDir, "world.snap.zst"),
		Shape:        ShapeFromTuning(t),
		Threshold:    t.SolidThreshold,
		Seed:         t.Seed,
	}
}

func ShapeFromTuning(t tuning.Tuning) store.Shape {
	return store.Shape{
		MinIndex:    t.WorldMinChunk,
		Count:       t.ChunkCount(),
		ChunkWidth:  t.ChunkWidth,
		ChunkHeight: t.ChunkHeight,
	}
}

func GenParams(t tuning.Tuning) gen.Params {
	wg := t.WorldGen
	return gen.Params{
		Seed:              t.Seed,
		ChunkWidth:        t.ChunkWidth,
		SectionHeight:     t.SectionHeight,
		SurfaceBase:       wg.SurfaceBase,
		SurfaceAmplitude:  wg.SurfaceAmplitude,
		SurfacePeriod:     wg.SurfacePeriod,
		DirtDepth:         wg.DirtDepth,
		CavePermille:      wg.CavePermille,
		CoalPermille:      wg.CoalPermille,
		IronPermille:      wg.IronPermille,
		TreePermille:      wg.TreePermille,
		FlowerPermille:    wg.FlowerPermille,
		TallGrassPermille: wg.TallGrassPermille,
	}
}

// PaletteFromCatalog resolves the generator's block ids and checks them against the threshold.
func PaletteFromCatalog(cat catalogs.BlockCatalog, threshold uint16) (gen.Palette, error) {
	var p gen.Palette
	if err := cat.CheckThreshold(threshold); err != nil {
		return p, err
	}
	targets := []struct {
		id  string
		dst *uint16
	}{
		{"BEDROCK", &p.Bedrock},
		{"STONE", &p.Stone},
		{"DIRT", &p.Dirt},
		{"GRASS", &p.Grass},
		{"COAL_ORE", &p.CoalOre},
		{"IRON_ORE", &p.IronOre},
		{"STONE_WALL", &p.StoneWall},
		{"DIRT_WALL", &p.DirtWall},
		{"LOG", &p.Log},
		{"LEAVES", &p.Leaves},
		{"FLOWER", &p.Flower},
		{"TALL_GRASS", &p.TallGrass},
	}
	for _, tg := range targets {
		code, ok := cat.Code(tg.id)
		if !ok {
			return p, fmt.Errorf("block palette: missing %s", tg.id)
		}
		*tg.dst = code
	}
	return p, nil
}
