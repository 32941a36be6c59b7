package session

import (
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/sirupsen/logrus"

	"sidecraft.ai/internal/sim/physics"
	"sidecraft.ai/internal/sim/tuning"
	"sidecraft.ai/internal/sim/world/stream"
	"sidecraft.ai/internal/sim/world/terrain/store"
)

const chunkWidth = 16

type recorder struct {
	mu      sync.Mutex
	entries []JournalEntry
	indexed []JournalEntry
	windows []*stream.Frame
	ticks   []State
}

func (r *recorder) WriteTransition(e JournalEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *recorder) RecordTransition(e JournalEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexed = append(r.indexed, e)
}

func (r *recorder) PublishWindow(_ State, f *stream.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.windows = append(r.windows, f)
}

func (r *recorder) PublishTick(st State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, st)
}

func (r *recorder) tickCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ticks)
}

// flatWorld has a one block floor across chunks [-5,5] plus a marker block per chunk.
func flatWorld(t *testing.T) *store.WorldStore {
	t.Helper()
	shape := store.Shape{MinIndex: -5, Count: 11, ChunkWidth: chunkWidth, ChunkHeight: 8}
	w, err := store.NewWorldStore(shape, store.DefaultSolidThreshold, 1)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	sections := map[store.SectionKey][]store.Block{}
	for c := -5; c <= 5; c++ {
		var bs []store.Block
		for x := c * chunkWidth; x < (c+1)*chunkWidth; x++ {
			bs = append(bs, store.Block{Code: 150, X: x, Y: 0})
		}
		bs = append(bs, store.Block{Code: 10, X: c * chunkWidth, Y: 1})
		sections[store.SectionKey{CX: c}] = bs
	}
	if err := w.MergeSections(sections); err != nil {
		t.Fatalf("merge: %v", err)
	}
	w.Seal()
	return w
}

func quiet() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newSession(t *testing.T, mode string, rec *recorder) *Session {
	t.Helper()
	tu := tuning.Defaults()
	st, err := stream.New(flatWorld(t), nil, stream.Options{Lead: 1, Logger: quiet()})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if err := st.Fill(-2, 2); err != nil {
		t.Fatalf("fill: %v", err)
	}
	cfg := physics.ConfigFromTuning(tu)
	engine := physics.New(cfg, physics.SpawnPoint(st.Current().Solid, 8, cfg))
	opts := Options{
		Mode:        mode,
		ChunkWidth:  chunkWidth,
		BlockPixels: tu.BlockPixels,
		TickRateHz:  1000,
		Logger:      quiet(),
	}
	if rec != nil {
		opts.Journal, opts.Index, opts.Feed = rec, rec, rec
	}
	s, err := New(st, engine, opts)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	return s
}

func walkRight(t *testing.T, s *Session, ticks int) ([]int, State) {
	t.Helper()
	var admitted []int
	for i := 0; i < ticks; i++ {
		res, err := s.Tick(context.Background(), physics.Input{Dir: 1})
		if err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		if res.Transition != nil {
			admitted = append(admitted, res.Transition.Admitted)
		}
	}
	return admitted, s.State()
}

func TestTick_WalkingRightStreamsChunks(t *testing.T) {
	rec := &recorder{}
	s := newSession(t, tuning.PhysicsSequential, rec)
	if s.State().Chunk != 0 {
		t.Fatalf("spawn chunk=%d", s.State().Chunk)
	}
	admitted, st := walkRight(t, s, 1000)
	if !reflect.DeepEqual(admitted, []int{3, 4, 5}) {
		t.Fatalf("admitted=%v", admitted)
	}
	if st.Chunk != 5 || st.Facing != stream.Right {
		t.Fatalf("final state %+v", st)
	}
	if len(rec.entries) != 3 || len(rec.indexed) != 3 || len(rec.windows) != 3 || len(rec.ticks) != 1000 {
		t.Fatalf("hooks: journal=%d index=%d windows=%d ticks=%d",
			len(rec.entries), len(rec.indexed), len(rec.windows), len(rec.ticks))
	}
	last := rec.entries[2]
	if last.Lo != 1 || last.Hi != 5 || last.Evicted == nil || *last.Evicted != 0 {
		t.Fatalf("last entry %+v", last)
	}
}

func TestTick_ModesAgree(t *testing.T) {
	seq := newSession(t, tuning.PhysicsSequential, nil)
	con := newSession(t, tuning.PhysicsConcurrent, nil)

	for i := 0; i < 900; i++ {
		in := physics.Input{Dir: 1, Jump: i%97 == 0}
		a, err := seq.Tick(context.Background(), in)
		if err != nil {
			t.Fatalf("sequential tick %d: %v", i, err)
		}
		b, err := con.Tick(context.Background(), in)
		if err != nil {
			t.Fatalf("concurrent tick %d: %v", i, err)
		}
		if (a.Transition == nil) != (b.Transition == nil) {
			t.Fatalf("tick %d: transition presence differs", i)
		}
		if a.Transition != nil && a.Transition.Admitted != b.Transition.Admitted {
			t.Fatalf("tick %d: admitted %d vs %d", i, a.Transition.Admitted, b.Transition.Admitted)
		}
		if !a.State.Pos.ApproxEqual(b.State.Pos) {
			t.Fatalf("tick %d: position %v vs %v", i, a.State.Pos, b.State.Pos)
		}
	}
}

func TestTick_FacingFollowsLastInput(t *testing.T) {
	s := newSession(t, "", nil)
	if s.Mode() != tuning.PhysicsSequential {
		t.Fatalf("default mode=%s", s.Mode())
	}
	steps := []struct {
		dir  int8
		want stream.Facing
	}{{-1, stream.Left}, {0, stream.Left}, {1, stream.Right}, {0, stream.Right}}
	for _, st := range steps {
		res, err := s.Tick(context.Background(), physics.Input{Dir: st.dir})
		if err != nil {
			t.Fatalf("tick: %v", err)
		}
		if res.State.Facing != st.want {
			t.Fatalf("dir %d: facing=%s want %s", st.dir, res.State.Facing, st.want)
		}
	}
}

func TestRun_StopsCleanly(t *testing.T) {
	rec := &recorder{}
	s := newSession(t, tuning.PhysicsConcurrent, rec)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	s.Inputs() <- physics.Input{Dir: 1}

	deadline := time.Now().Add(3 * time.Second)
	for rec.tickCount() < 20 {
		if time.Now().After(deadline) {
			t.Fatalf("run produced %d ticks", rec.tickCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestNew_RejectsUnknownMode(t *testing.T) {
	st, err := stream.New(flatWorld(t), nil, stream.Options{})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	engine := physics.New(physics.ConfigFromTuning(tuning.Defaults()), mgl32.Vec2{})
	if _, err := New(st, engine, Options{Mode: "parallel", ChunkWidth: 16, BlockPixels: 64}); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestRecoverTick_ReportsPanicAsError(t *testing.T) {
	err := func() (err error) {
		defer recoverTick(&err, "physics", 7)
		panic("boom")
	}()
	if err == nil || !strings.Contains(err.Error(), "boom") || errors.Is(err, stream.ErrInvariant) {
		t.Fatalf("unexpected error %v", err)
	}
}
