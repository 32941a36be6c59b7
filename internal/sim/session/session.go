// Package session advances one player through the streamed world: each tick it moves the chunk
// window and integrates physics, either one after the other or side by side.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chewxy/math32"
	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"sidecraft.ai/internal/sim/physics"
	"sidecraft.ai/internal/sim/tuning"
	"sidecraft.ai/internal/sim/world/logic/mathx"
	"sidecraft.ai/internal/sim/world/stream"
)

type Options struct {
	// Mode is tuning.PhysicsSequential (default) or tuning.PhysicsConcurrent.
	Mode        string
	ChunkWidth  int
	BlockPixels float32
	TickRateHz  int
	Logger      logrus.FieldLogger

	Journal Journal
	Index   Index
	Feed    Feed
}

type Session struct {
	st     *stream.Streamer
	engine *physics.Platformer
	follow *stream.Follower
	opts   Options
	log    logrus.FieldLogger

	tick  uint64
	state State
	ticks atomic.Uint64

	inputs   chan physics.Input
	stop     chan struct{}
	stopOnce sync.Once
}

// New wires a filled streamer to the engine. The streamer must not push to the engine itself;
// the session hands frames over on the physics side.
func New(st *stream.Streamer, engine *physics.Platformer, opts Options) (*Session, error) {
	if st == nil || engine == nil {
		return nil, fmt.Errorf("session: streamer and engine are required")
	}
	switch opts.Mode {
	case "":
		opts.Mode = tuning.PhysicsSequential
	case tuning.PhysicsSequential, tuning.PhysicsConcurrent:
	default:
		return nil, fmt.Errorf("session: unknown mode %q", opts.Mode)
	}
	if opts.ChunkWidth <= 0 || opts.BlockPixels <= 0 {
		return nil, fmt.Errorf("session: chunk width and block pixels must be positive")
	}
	if opts.TickRateHz <= 0 {
		opts.TickRateHz = 60
	}
	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		log = l
	}
	s := &Session{
		st:     st,
		engine: engine,
		follow: stream.NewFollower(engine),
		opts:   opts,
		log:    log.WithField("component", "session"),
		inputs: make(chan physics.Input, 64),
		stop:   make(chan struct{}),
	}
	s.state = s.observe(stream.Right)
	return s, nil
}

func (s *Session) Mode() string { return s.opts.Mode }

func (s *Session) State() State { return s.state }

// Ticks is safe to call from any goroutine.
func (s *Session) Ticks() uint64 { return s.ticks.Load() }

// SetFeed replaces the feed. Call before Run.
func (s *Session) SetFeed(f Feed) { s.opts.Feed = f }

// Inputs accepts player input for Run. The latest direction is held until replaced; a jump is
// applied once.
func (s *Session) Inputs() chan<- physics.Input { return s.inputs }

func (s *Session) Stop() { s.stopOnce.Do(func() { close(s.stop) }) }

// Run ticks at TickRateHz until ctx ends, Stop is called, or a tick fails.
func (s *Session) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(s.opts.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var in physics.Input
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		case next := <-s.inputs:
			jump := in.Jump || next.Jump
			in = next
			in.Jump = jump
		case <-ticker.C:
			if _, err := s.Tick(ctx, in); err != nil {
				return err
			}
			in.Jump = false
		}
	}
}

// Tick runs one streaming step for the player's chunk and facing as of the previous tick, then
// one physics step.
func (s *Session) Tick(ctx context.Context, in physics.Input) (TickResult, error) {
	sig := stream.Signal{Tick: s.tick, Chunk: s.state.Chunk, Facing: s.state.Facing}

	var (
		tr    stream.Transition
		moved bool
		err   error
	)
	if s.opts.Mode == tuning.PhysicsConcurrent {
		tr, moved, err = s.tickConcurrent(ctx, sig, in)
	} else {
		tr, moved, err = s.tickSequential(sig, in)
	}
	if err != nil {
		s.log.WithError(err).WithField("tick", s.tick).Error("tick failed")
		return TickResult{}, err
	}

	s.tick++
	s.ticks.Store(s.tick)
	facing := s.state.Facing
	if in.Dir > 0 {
		facing = stream.Right
	} else if in.Dir < 0 {
		facing = stream.Left
	}
	s.state = s.observe(facing)

	res := TickResult{State: s.state}
	if moved {
		res.Transition = &tr
		s.record(tr)
	}
	if s.opts.Feed != nil {
		s.opts.Feed.PublishTick(s.state)
	}
	return res, nil
}

func (s *Session) tickSequential(sig stream.Signal, in physics.Input) (tr stream.Transition, moved bool, err error) {
	defer recoverTick(&err, "tick", s.tick)
	tr, moved, err = s.st.Step(sig)
	if err != nil {
		return tr, false, err
	}
	s.follow.Follow(s.st.Current())
	s.engine.Step(in)
	return tr, moved, nil
}

// tickConcurrent borrows the current frame for physics while the streamer moves on. The
// streamer only writes outside the borrowed frame and publishes by swap, so the two never share
// mutable memory.
func (s *Session) tickConcurrent(ctx context.Context, sig stream.Signal, in physics.Input) (stream.Transition, bool, error) {
	frame := s.st.Current()

	var (
		tr    stream.Transition
		moved bool
	)
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		defer recoverTick(&err, "physics", sig.Tick)
		s.follow.Follow(frame)
		s.engine.Step(in)
		return nil
	})
	g.Go(func() (err error) {
		defer recoverTick(&err, "stream", sig.Tick)
		tr, moved, err = s.st.Step(sig)
		return err
	})
	if err := g.Wait(); err != nil {
		return stream.Transition{}, false, err
	}
	return tr, moved, nil
}

func (s *Session) record(tr stream.Transition) {
	f := s.st.Current()
	pos := s.state.Pos
	entry := JournalEntry{Transition: tr, Lo: f.Lo, Hi: f.Hi, Player: [2]float32{pos.X(), pos.Y()}}

	fields := logrus.Fields{
		"tick":     tr.Tick,
		"facing":   tr.Direction.String(),
		"admitted": tr.Admitted,
		"lo":       f.Lo,
		"hi":       f.Hi,
	}
	if tr.Evicted != nil {
		fields["evicted"] = *tr.Evicted
	}
	s.log.WithFields(fields).Info("chunk transition")

	if s.opts.Journal != nil {
		if err := s.opts.Journal.WriteTransition(entry); err != nil {
			s.log.WithError(err).Warn("journal write failed")
		}
	}
	if s.opts.Index != nil {
		s.opts.Index.RecordTransition(entry)
	}
	if s.opts.Feed != nil {
		s.opts.Feed.PublishWindow(s.state, f)
	}
}

func (s *Session) observe(facing stream.Facing) State {
	center := s.engine.Box().Center()
	blockX := int(math32.Floor(center.X() / s.opts.BlockPixels))
	return State{
		Tick:     s.tick,
		Pos:      s.engine.Position(),
		Vel:      s.engine.Velocity(),
		Chunk:    mathx.FloorDiv(blockX, s.opts.ChunkWidth),
		Facing:   facing,
		Grounded: s.engine.CanJump(),
	}
}

// recoverTick turns a panic into an error and reports it.
func recoverTick(errp *error, phase string, tick uint64) {
	r := recover()
	if r == nil {
		return
	}
	hub := sentry.CurrentHub().Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("phase", phase)
		scope.SetTag("tick", fmt.Sprint(tick))
	})
	hub.Recover(r)
	hub.Flush(2 * time.Second)
	*errp = fmt.Errorf("%s panic at tick %d: %v", phase, tick, r)
}
