package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	WorldID string `yaml:"world_id" json:"world_id"`
	Seed    int64  `yaml:"seed" json:"seed"`

	ChunkWidth    int `yaml:"chunk_width" json:"chunk_width"`
	ChunkHeight   int `yaml:"chunk_height" json:"chunk_height"`
	SectionHeight int `yaml:"section_height" json:"section_height"`

	WorldMinChunk   int `yaml:"world_min_chunk" json:"world_min_chunk"`
	WorldMaxChunk   int `yaml:"world_max_chunk" json:"world_max_chunk"`
	VisibleMinChunk int `yaml:"visible_min_chunk" json:"visible_min_chunk"`
	VisibleMaxChunk int `yaml:"visible_max_chunk" json:"visible_max_chunk"`
	StreamLead      int `yaml:"stream_lead" json:"stream_lead"`

	SolidThreshold uint16 `yaml:"solid_threshold" json:"solid_threshold"`

	TickRateHz  int     `yaml:"tick_rate_hz" json:"tick_rate_hz"`
	BlockPixels float32 `yaml:"block_pixels" json:"block_pixels"`
	PhysicsMode string  `yaml:"physics_mode" json:"physics_mode"`

	Physics  Physics  `yaml:"physics" json:"physics"`
	WorldGen WorldGen `yaml:"worldgen" json:"worldgen"`
}

type Physics struct {
	Gravity       float32 `yaml:"gravity" json:"gravity"`
	JumpSpeed     float32 `yaml:"jump_speed" json:"jump_speed"`
	MovementSpeed float32 `yaml:"movement_speed" json:"movement_speed"`
	PlayerWidth   float32 `yaml:"player_width" json:"player_width"`
	PlayerHeight  float32 `yaml:"player_height" json:"player_height"`
}

type WorldGen struct {
	SurfaceBase       int `yaml:"surface_base" json:"surface_base"`
	SurfaceAmplitude  int `yaml:"surface_amplitude" json:"surface_amplitude"`
	SurfacePeriod     int `yaml:"surface_period" json:"surface_period"`
	DirtDepth         int `yaml:"dirt_depth" json:"dirt_depth"`
	CavePermille      int `yaml:"cave_permille" json:"cave_permille"`
	CoalPermille      int `yaml:"coal_permille" json:"coal_permille"`
	IronPermille      int `yaml:"iron_permille" json:"iron_permille"`
	TreePermille      int `yaml:"tree_permille" json:"tree_permille"`
	FlowerPermille    int `yaml:"flower_permille" json:"flower_permille"`
	TallGrassPermille int `yaml:"tall_grass_permille" json:"tall_grass_permille"`
}

const (
	PhysicsSequential = "sequential"
	PhysicsConcurrent = "concurrent"
)

// Defaults is 62 chunks of 16 blocks around the origin with a five chunk visible window.
func Defaults() Tuning {
	return Tuning{
		WorldID:         "world_1",
		Seed:            1337,
		ChunkWidth:      16,
		ChunkHeight:     128,
		SectionHeight:   16,
		WorldMinChunk:   -31,
		WorldMaxChunk:   30,
		VisibleMinChunk: -2,
		VisibleMaxChunk: 2,
		StreamLead:      1,
		SolidThreshold:  129,
		TickRateHz:      60,
		BlockPixels:     64,
		PhysicsMode:     PhysicsSequential,
		Physics: Physics{
			Gravity:       0.45,
			JumpSpeed:     14,
			MovementSpeed: 5,
			PlayerWidth:   40,
			PlayerHeight:  100,
		},
		WorldGen: WorldGen{
			SurfaceBase:       48,
			SurfaceAmplitude:  20,
			SurfacePeriod:     32,
			DirtDepth:         4,
			CavePermille:      350,
			CoalPermille:      450,
			IronPermille:      300,
			TreePermille:      110,
			FlowerPermille:    120,
			TallGrassPermille: 250,
		},
	}
}

// Load reads path over Defaults(), so a file only needs the keys it changes.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.ChunkWidth <= 0 || t.ChunkHeight <= 0 || t.SectionHeight <= 0 {
		return fmt.Errorf("chunk dimensions must be positive")
	}
	if t.WorldMaxChunk < t.WorldMinChunk {
		return fmt.Errorf("world_max_chunk %d < world_min_chunk %d", t.WorldMaxChunk, t.WorldMinChunk)
	}
	if t.VisibleMaxChunk < t.VisibleMinChunk {
		return fmt.Errorf("visible_max_chunk %d < visible_min_chunk %d", t.VisibleMaxChunk, t.VisibleMinChunk)
	}
	if t.StreamLead < 1 {
		return fmt.Errorf("stream_lead must be >= 1, got %d", t.StreamLead)
	}
	if t.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be positive")
	}
	if t.BlockPixels <= 0 {
		return fmt.Errorf("block_pixels must be positive")
	}
	switch t.PhysicsMode {
	case PhysicsSequential, PhysicsConcurrent:
	default:
		return fmt.Errorf("physics_mode %q: want %s or %s", t.PhysicsMode, PhysicsSequential, PhysicsConcurrent)
	}
	if t.WorldGen.SurfaceBase+t.WorldGen.SurfaceAmplitude+t.WorldGen.SurfaceAmplitude/4+8 >= t.ChunkHeight {
		return fmt.Errorf("surface may exceed chunk_height %d", t.ChunkHeight)
	}
	return nil
}

// ChunkCount is the number of chunks in [WorldMinChunk, WorldMaxChunk].
func (t Tuning) ChunkCount() int {
	return t.WorldMaxChunk - t.WorldMinChunk + 1
}

// VisibleSpan is the number of chunks in the visible window.
func (t Tuning) VisibleSpan() int {
	return t.VisibleMaxChunk - t.VisibleMinChunk + 1
}
