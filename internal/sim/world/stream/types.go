package stream

import (
	"errors"
	"fmt"

	"sidecraft.ai/internal/sim/world/terrain/store"
)

// ErrInvariant marks a broken window precondition. The window cannot be trusted afterwards and
// callers treat it as fatal.
var ErrInvariant = errors.New("stream invariant violated")

func invariantf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariant, fmt.Sprintf(format, args...))
}

type Facing int8

const (
	Left  Facing = -1
	Right Facing = 1
)

func (f Facing) String() string {
	switch f {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return fmt.Sprintf("facing(%d)", int8(f))
	}
}

// Signal is the player's state as seen by the streamer for one tick.
type Signal struct {
	Tick   uint64
	Chunk  int
	Facing Facing
}

type Counts struct {
	Solid      int
	Decorative int
}

// Transition describes one window mutation. Evicted is nil for pure admissions (initial fill).
type Transition struct {
	Seq       uint64 `json:"seq"`
	Tick      uint64 `json:"tick"`
	Direction Facing `json:"direction"`
	Evicted   *int   `json:"evicted,omitempty"`
	Admitted  int    `json:"admitted"`

	EvictedCounts  Counts `json:"evicted_counts"`
	AdmittedCounts Counts `json:"admitted_counts"`
}

// CollisionSet consumes the solid collection. Rebuild receives a complete, ordered view after
// every window mutation and must not keep it past the next Rebuild.
type CollisionSet interface {
	Rebuild(solid []store.Block)
}

// Frame is an immutable published view of the window. Lo > Hi when nothing is loaded.
type Frame struct {
	Seq        uint64
	Tick       uint64
	Lo, Hi     int
	Solid      []store.Block
	Decorative []store.Block
}

func (f *Frame) Empty() bool { return f == nil || f.Hi < f.Lo }

func (f *Frame) Contains(i int) bool { return !f.Empty() && i >= f.Lo && i <= f.Hi }

// Chunks lists the loaded indices in ascending order.
func (f *Frame) Chunks() []int {
	if f.Empty() {
		return nil
	}
	out := make([]int, 0, f.Hi-f.Lo+1)
	for i := f.Lo; i <= f.Hi; i++ {
		out = append(out, i)
	}
	return out
}

// Follower applies published frames to a CollisionSet from the consumer's own goroutine. It
// rebuilds only when the frame sequence moved.
type Follower struct {
	set    CollisionSet
	seq    uint64
	synced bool
}

func NewFollower(set CollisionSet) *Follower { return &Follower{set: set} }

func (f *Follower) Follow(fr *Frame) bool {
	if fr == nil || (f.synced && fr.Seq == f.seq) {
		return false
	}
	f.set.Rebuild(fr.Solid)
	f.seq = fr.Seq
	f.synced = true
	return true
}
