package session

import (
	"github.com/go-gl/mathgl/mgl32"

	"sidecraft.ai/internal/sim/world/stream"
)

// State is the player as seen after a tick.
type State struct {
	Tick     uint64        `json:"tick"`
	Pos      mgl32.Vec2    `json:"pos"`
	Vel      mgl32.Vec2    `json:"vel"`
	Chunk    int           `json:"chunk"`
	Facing   stream.Facing `json:"facing"`
	Grounded bool          `json:"grounded"`
}

// JournalEntry is one window transition with the window bounds and player position after it.
type JournalEntry struct {
	stream.Transition
	Lo     int        `json:"lo"`
	Hi     int        `json:"hi"`
	Player [2]float32 `json:"player"`
}

type TickResult struct {
	State      State
	Transition *stream.Transition
}

// Journal is the durable record of transitions.
type Journal interface {
	WriteTransition(e JournalEntry) error
}

// Index is a best-effort read model; implementations must not block.
type Index interface {
	RecordTransition(e JournalEntry)
}

// Feed receives frames for renderers. PublishWindow is called after a transition, PublishTick
// after every tick.
type Feed interface {
	PublishWindow(st State, f *stream.Frame)
	PublishTick(st State)
}
