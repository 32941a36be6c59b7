package stream

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"

	"sidecraft.ai/internal/sim/world/terrain/store"
)

const testWidth = 4

type recordingSet struct {
	calls int
	last  []store.Block
}

func (r *recordingSet) Rebuild(solid []store.Block) {
	r.calls++
	r.last = solid
}

// testWorld builds chunks [min,max] with uneven, index-dependent partitions. Chunk 0 has no
// solid blocks at all.
func testWorld(t *testing.T, min, max int) *store.WorldStore {
	t.Helper()
	shape := store.Shape{MinIndex: min, Count: max - min + 1, ChunkWidth: testWidth, ChunkHeight: 8}
	s, err := store.NewWorldStore(shape, store.DefaultSolidThreshold, 1)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	sections := map[store.SectionKey][]store.Block{}
	for i := min; i <= max; i++ {
		n := 3 + abs(i)%4
		bs := make([]store.Block, 0, n)
		for j := 0; j < n; j++ {
			code := uint16(140)
			if i == 0 || j%3 == 1 {
				code = 10
			}
			bs = append(bs, store.Block{Code: code, X: i*testWidth + j%testWidth, Y: j})
		}
		sections[store.SectionKey{CX: i}] = bs
	}
	if err := s.MergeSections(sections); err != nil {
		t.Fatalf("merge: %v", err)
	}
	s.Seal()
	return s
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func newFilled(t *testing.T, lead int, set CollisionSet) *Streamer {
	t.Helper()
	s, err := New(testWorld(t, -5, 5), set, Options{Lead: lead})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.Fill(-2, 2); err != nil {
		t.Fatalf("fill: %v", err)
	}
	return s
}

func mustStep(t *testing.T, s *Streamer, sig Signal) (Transition, bool) {
	t.Helper()
	tr, ok, err := s.Step(sig)
	if err != nil {
		t.Fatalf("step %+v: %v", sig, err)
	}
	if err := s.Check(); err != nil {
		t.Fatalf("check after %+v: %v", sig, err)
	}
	return tr, ok
}

func TestNew_RequiresSealedWorld(t *testing.T) {
	w, err := store.NewWorldStore(store.Shape{MinIndex: 0, Count: 2, ChunkWidth: 4, ChunkHeight: 4}, 129, 1)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if _, err := New(w, nil, Options{}); err == nil {
		t.Fatalf("expected error for unsealed world")
	}
}

func TestFill_SkipsOutOfRange(t *testing.T) {
	set := &recordingSet{}
	s, err := New(testWorld(t, -5, 5), set, Options{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.Fill(-8, -4); err != nil {
		t.Fatalf("fill: %v", err)
	}
	if got := s.Loaded(); !reflect.DeepEqual(got, []int{-5, -4}) {
		t.Fatalf("loaded=%v", got)
	}
	if set.calls != 1 {
		t.Fatalf("fill should rebuild once, got %d", set.calls)
	}
	if err := s.Check(); err != nil {
		t.Fatalf("check: %v", err)
	}
}

func TestFill_RejectsGap(t *testing.T) {
	s, err := New(testWorld(t, -5, 5), nil, Options{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.Fill(-2, -1); err != nil {
		t.Fatalf("fill: %v", err)
	}
	if err := s.Fill(2, 3); !errors.Is(err, ErrInvariant) {
		t.Fatalf("expected ErrInvariant, got %v", err)
	}
}

func TestStep_WalkRightWithLeadTwo(t *testing.T) {
	s := newFilled(t, 2, nil)
	var evicted []int
	for c := 0; c <= 4; c++ {
		tr, ok := mustStep(t, s, Signal{Tick: uint64(c), Chunk: c, Facing: Right})
		if ok {
			evicted = append(evicted, *tr.Evicted)
		}
	}
	if !reflect.DeepEqual(evicted, []int{-2, -1, 0}) {
		t.Fatalf("evicted=%v", evicted)
	}
	if got := s.Loaded(); !reflect.DeepEqual(got, []int{1, 2, 3, 4, 5}) {
		t.Fatalf("loaded=%v", got)
	}
}

func TestStep_LeadOneWaitsForEdge(t *testing.T) {
	s := newFilled(t, 1, nil)
	if _, ok := mustStep(t, s, Signal{Chunk: 1, Facing: Right}); ok {
		t.Fatalf("chunk 2 is resident; expected no-op")
	}
	tr, ok := mustStep(t, s, Signal{Chunk: 2, Facing: Right})
	if !ok || *tr.Evicted != -2 || tr.Admitted != 3 || tr.Direction != Right {
		t.Fatalf("unexpected transition %+v ok=%v", tr, ok)
	}
	if got := s.Loaded(); !reflect.DeepEqual(got, []int{-1, 0, 1, 2, 3}) {
		t.Fatalf("loaded=%v", got)
	}
}

func TestStep_WalkLeftMirrors(t *testing.T) {
	s := newFilled(t, 1, nil)
	tr, ok := mustStep(t, s, Signal{Chunk: -2, Facing: Left})
	if !ok || *tr.Evicted != 2 || tr.Admitted != -3 || tr.Direction != Left {
		t.Fatalf("unexpected transition %+v ok=%v", tr, ok)
	}
	if got := s.Loaded(); !reflect.DeepEqual(got, []int{-3, -2, -1, 0, 1}) {
		t.Fatalf("loaded=%v", got)
	}
}

func TestStep_WorldEdgeIsNoop(t *testing.T) {
	s, err := New(testWorld(t, -5, 5), nil, Options{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.Fill(-5, -1); err != nil {
		t.Fatalf("fill: %v", err)
	}
	before := s.Current()
	if _, ok := mustStep(t, s, Signal{Chunk: -5, Facing: Left}); ok {
		t.Fatalf("expected no transition at the left edge")
	}
	if s.Current() != before {
		t.Fatalf("no-op must not publish a frame")
	}
	if got := s.Loaded(); !reflect.DeepEqual(got, []int{-5, -4, -3, -2, -1}) {
		t.Fatalf("loaded=%v", got)
	}
}

func TestStep_RepeatedSignalIsIdempotent(t *testing.T) {
	s := newFilled(t, 1, nil)
	sig := Signal{Chunk: 2, Facing: Right}
	if _, ok := mustStep(t, s, sig); !ok {
		t.Fatalf("expected first step to move the window")
	}
	for i := 0; i < 3; i++ {
		if _, ok := mustStep(t, s, sig); ok {
			t.Fatalf("repeat %d moved the window again", i)
		}
	}
}

func TestStep_OppositeSideIsNoop(t *testing.T) {
	s := newFilled(t, 1, nil)
	if _, ok := mustStep(t, s, Signal{Chunk: -5, Facing: Right}); ok {
		t.Fatalf("target behind the window while facing right must not move it")
	}
	if _, ok := mustStep(t, s, Signal{Chunk: 5, Facing: Left}); ok {
		t.Fatalf("target behind the window while facing left must not move it")
	}
}

func TestStep_JumpCatchesUpOneChunkPerTick(t *testing.T) {
	s := newFilled(t, 1, nil)
	var admitted []int
	for i := 0; i < 5; i++ {
		if tr, ok := mustStep(t, s, Signal{Chunk: 4, Facing: Right}); ok {
			admitted = append(admitted, tr.Admitted)
		}
	}
	if !reflect.DeepEqual(admitted, []int{3, 4, 5}) {
		t.Fatalf("admitted=%v", admitted)
	}
}

func TestStep_RebuildsAfterEveryMutation(t *testing.T) {
	set := &recordingSet{}
	s := newFilled(t, 1, set)
	if set.calls != 1 {
		t.Fatalf("fill rebuilds=%d", set.calls)
	}
	moves := 0
	for c := 2; c <= 6; c++ {
		if _, ok := mustStep(t, s, Signal{Chunk: c, Facing: Right}); ok {
			moves++
		}
		if set.calls != 1+moves {
			t.Fatalf("rebuilds=%d after %d moves", set.calls, moves)
		}
		if len(set.last) != len(s.Current().Solid) {
			t.Fatalf("consumer view has %d blocks, frame has %d", len(set.last), len(s.Current().Solid))
		}
	}
}

func TestFrame_SurvivesOneTransition(t *testing.T) {
	for _, facing := range []Facing{Right, Left} {
		s := newFilled(t, 1, nil)
		f := s.Current()
		want := append([]store.Block(nil), f.Solid...)
		wantDeco := append([]store.Block(nil), f.Decorative...)

		c := 2
		if facing == Left {
			c = -2
		}
		if _, ok := mustStep(t, s, Signal{Chunk: c, Facing: facing}); !ok {
			t.Fatalf("%s: expected transition", facing)
		}
		if !reflect.DeepEqual(f.Solid, want) || !reflect.DeepEqual(f.Decorative, wantDeco) {
			t.Fatalf("%s: borrowed frame changed under a single transition", facing)
		}
		if cap(f.Solid) != len(f.Solid) {
			t.Fatalf("%s: frame slice must be capped", facing)
		}
	}
}

func TestStep_CorruptCountsAreFatal(t *testing.T) {
	s := newFilled(t, 1, nil)
	s.loaded[s.lo] = Counts{Solid: 1 << 20}
	if _, _, err := s.Step(Signal{Chunk: 2, Facing: Right}); !errors.Is(err, ErrInvariant) {
		t.Fatalf("expected ErrInvariant, got %v", err)
	}

	s = newFilled(t, 1, nil)
	delete(s.loaded, s.lo)
	if _, _, err := s.Step(Signal{Chunk: 2, Facing: Right}); !errors.Is(err, ErrInvariant) {
		t.Fatalf("expected ErrInvariant for missing chunk, got %v", err)
	}
}

func TestCheck_DetectsDrift(t *testing.T) {
	s := newFilled(t, 1, nil)
	s.solid.DropBack(1)
	if err := s.Check(); !errors.Is(err, ErrInvariant) {
		t.Fatalf("expected ErrInvariant, got %v", err)
	}
}

func TestStep_RandomWalkKeepsInvariants(t *testing.T) {
	s := newFilled(t, 2, nil)
	rng := rand.New(rand.NewSource(42))
	c := 0
	for tick := 0; tick < 2000; tick++ {
		facing := Right
		if rng.Intn(2) == 0 {
			facing = Left
		}
		c += int(facing)
		if c < -5 {
			c = -5
		}
		if c > 5 {
			c = 5
		}
		mustStep(t, s, Signal{Tick: uint64(tick), Chunk: c, Facing: facing})
		if n := len(s.Loaded()); n != 5 {
			t.Fatalf("tick %d: window size %d", tick, n)
		}
		var sum Counts
		for _, i := range s.Loaded() {
			ct, _ := s.Counts(i)
			sum.Solid += ct.Solid
			sum.Decorative += ct.Decorative
		}
		f := s.Current()
		if sum.Solid != len(f.Solid) || sum.Decorative != len(f.Decorative) {
			t.Fatalf("tick %d: counts %+v vs frame (%d, %d)", tick, sum, len(f.Solid), len(f.Decorative))
		}
	}
}

func TestFollower_RebuildsOncePerFrame(t *testing.T) {
	set := &recordingSet{}
	fw := NewFollower(set)
	s := newFilled(t, 1, nil)
	if !fw.Follow(s.Current()) || fw.Follow(s.Current()) {
		t.Fatalf("follower should rebuild exactly once for the same frame")
	}
	mustStep(t, s, Signal{Chunk: 2, Facing: Right})
	if !fw.Follow(s.Current()) || set.calls != 2 {
		t.Fatalf("follower missed a new frame, calls=%d", set.calls)
	}
}

func TestDeque_GrowsBothWays(t *testing.T) {
	var d blockDeque
	var want []store.Block
	for i := 0; i < 300; i++ {
		b := store.Block{Code: uint16(i), X: i}
		if i%2 == 0 {
			d.PushBack([]store.Block{b})
			want = append(want, b)
		} else {
			d.PushFront([]store.Block{b})
			want = append([]store.Block{b}, want...)
		}
	}
	if !reflect.DeepEqual(d.View(), want) {
		t.Fatalf("deque order broken after growth")
	}
	d.DropFront(10)
	d.DropBack(10)
	if !reflect.DeepEqual(d.View(), want[10:len(want)-10]) {
		t.Fatalf("deque drop broken")
	}
}
